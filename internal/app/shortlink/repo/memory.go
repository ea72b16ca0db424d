package repo

import (
	"context"
	"sync"
	"time"

	"github.com/sitedyno/urlbot/internal/app/shortlink"
	"github.com/sitedyno/urlbot/internal/app/shortlink/stats"
)

type memRow struct {
	id   uint64
	code string
	meta shortlink.Metadata
}

// MemoryRepo is a Store kept in process memory. It serves single instance
// deployments without postgres and the tests.
type MemoryRepo struct {
	mu     sync.Mutex
	coder  shortlink.Coder
	now    func() time.Time
	nextID uint64
	byCode map[string]*memRow
	byURL  map[string]*memRow
	clicks map[string][]shortlink.ClickStats
	clickN int64
}

var (
	_ shortlink.Store  = (*MemoryRepo)(nil)
	_ stats.ClickStore = (*MemoryRepo)(nil)
)

func NewMemoryRepo(coder shortlink.Coder) *MemoryRepo {
	if coder == nil {
		coder = shortlink.Base62Coder{}
	}
	return &MemoryRepo{
		coder:  coder,
		now:    time.Now,
		byCode: make(map[string]*memRow),
		byURL:  make(map[string]*memRow),
		clicks: make(map[string][]shortlink.ClickStats),
	}
}

func (m *MemoryRepo) Create(_ context.Context, rawURL, createdBy string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if row, ok := m.byURL[rawURL]; ok {
		if row.meta.Disabled {
			return "", shortlink.ErrShortlinkDisabled
		}
		return row.code, nil
	}
	id := m.nextID + 1
	code, err := m.coder.Encode(id)
	if err != nil {
		return "", err
	}
	// Codes picked through CreateWithCode may collide with generated ones.
	for m.byCode[code] != nil {
		id++
		if code, err = m.coder.Encode(id); err != nil {
			return "", err
		}
	}
	m.nextID = id
	m.insert(id, rawURL, code, createdBy)
	return code, nil
}

func (m *MemoryRepo) CreateWithCode(_ context.Context, rawURL, code, createdBy string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if row, ok := m.byURL[rawURL]; ok {
		if row.code != code {
			return "", shortlink.ErrShortlinkURLAlreadyHasDifferentCode
		}
		return code, nil
	}
	if _, taken := m.byCode[code]; taken {
		return "", shortlink.ErrShortlinkCodeAlreadyExists
	}
	m.nextID++
	m.insert(m.nextID, rawURL, code, createdBy)
	return code, nil
}

func (m *MemoryRepo) insert(id uint64, rawURL, code, createdBy string) {
	now := m.now()
	row := &memRow{id: id, code: code, meta: shortlink.Metadata{
		URL:       rawURL,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	m.byCode[code] = row
	m.byURL[rawURL] = row
}

func (m *MemoryRepo) Resolve(_ context.Context, code string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.byCode[code]
	if !ok || row.meta.Disabled {
		return "", shortlink.ErrShortlinkNotFound
	}
	return row.meta.URL, nil
}

func (m *MemoryRepo) FindByCode(_ context.Context, code string) (*shortlink.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.byCode[code]
	if !ok {
		return nil, shortlink.ErrShortlinkNotFound
	}
	meta := row.meta
	return &meta, nil
}

func (m *MemoryRepo) DisableByCode(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.byCode[code]
	if !ok {
		return shortlink.ErrShortlinkNotFound
	}
	if row.meta.Disabled {
		return shortlink.ErrAlreadyDisabled
	}
	row.meta.Disabled = true
	row.meta.UpdatedAt = m.now()
	return nil
}

func (m *MemoryRepo) ListStatsByCode(_ context.Context, code string, limit int, cursor int64) (*shortlink.StatsPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.byCode[code]
	if !ok {
		return nil, shortlink.ErrShortlinkNotFound
	}

	all := m.clicks[code]
	page := &shortlink.StatsPage{TotalClicks: row.meta.ClickCount}
	// clicks are stored oldest first; walk backwards for newest first
	for i := len(all) - 1; i >= 0 && len(page.RecentClicks) < limit; i-- {
		if cursor != 0 && all[i].ID >= cursor {
			continue
		}
		page.RecentClicks = append(page.RecentClicks, all[i])
	}
	if limit > 0 && len(page.RecentClicks) == limit {
		next := page.RecentClicks[len(page.RecentClicks)-1].ID
		page.NextCursor = &next
	}
	return page, nil
}

// SaveClicks records clicks for known codes; unknown codes are ignored.
func (m *MemoryRepo) SaveClicks(_ context.Context, batch []stats.ClickEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range batch {
		row, ok := m.byCode[e.Code]
		if !ok {
			continue
		}
		m.clickN++
		m.clicks[e.Code] = append(m.clicks[e.Code], shortlink.ClickStats{
			ID:        m.clickN,
			ClickedAt: e.ClickedAt,
			Referer:   e.Referer,
			UserAgent: e.UserAgent,
		})
		row.meta.ClickCount++
	}
	return nil
}
