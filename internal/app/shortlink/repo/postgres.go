package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitedyno/urlbot/internal/app/shortlink"
	"github.com/sitedyno/urlbot/internal/app/shortlink/cache"
	"github.com/sitedyno/urlbot/internal/app/shortlink/stats"
)

const uniqueViolation = "23505"

// ShortlinksRepo is the postgres Store. cache and bloom are optional.
type ShortlinksRepo struct {
	db     *pgxpool.Pool
	cache  *cache.ShortlinkCache
	bloom  *cache.BloomFilter
	coder  shortlink.Coder
	logger *slog.Logger
}

var (
	_ shortlink.Store  = (*ShortlinksRepo)(nil)
	_ stats.ClickStore = (*ShortlinksRepo)(nil)
)

func NewShortlinksRepo(db *pgxpool.Pool, c *cache.ShortlinkCache, bloom *cache.BloomFilter, coder shortlink.Coder, logger *slog.Logger) *ShortlinksRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShortlinksRepo{db: db, cache: c, bloom: bloom, coder: coder, logger: logger}
}

// WarmBloom adds every existing code to the bloom filter. Resolve trusts the
// filter, so this must run before serving traffic.
func (s *ShortlinksRepo) WarmBloom(ctx context.Context) (int, error) {
	if s.bloom == nil {
		return 0, nil
	}
	rows, err := s.db.Query(ctx, "SELECT code FROM shortlinks WHERE code IS NOT NULL AND code <> ''")
	if err != nil {
		return 0, fmt.Errorf("warm bloom: %w", err)
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return n, fmt.Errorf("warm bloom: %w", err)
		}
		s.bloom.Add(code)
		n++
	}
	return n, rows.Err()
}

// Create inserts rawURL, or returns the code it already has. A disabled row is
// never handed out again.
func (s *ShortlinksRepo) Create(ctx context.Context, rawURL, createdBy string) (string, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := s.db.Begin(dbctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(dbctx)

	var id int64
	var code string
	var disabled bool
	if err := tx.QueryRow(dbctx,
		`INSERT INTO shortlinks (url, disabled, created_by) VALUES ($1, false, $2)
		 ON CONFLICT (url) DO UPDATE SET url=EXCLUDED.url RETURNING id, COALESCE(code,''), disabled`,
		rawURL, createdBy,
	).Scan(&id, &code, &disabled); err != nil {
		return "", fmt.Errorf("insert shortlink: %w", err)
	}
	if disabled {
		return "", shortlink.ErrShortlinkDisabled
	}

	if code == "" {
		newCode, err := s.coder.Encode(uint64(id))
		if err != nil {
			return "", err
		}
		// Another transaction may have set the code meanwhile; read it back then.
		err = tx.QueryRow(dbctx,
			"UPDATE shortlinks SET code=$1 WHERE id=$2 AND (code IS NULL OR code='') RETURNING code",
			newCode, id,
		).Scan(&code)
		if errors.Is(err, pgx.ErrNoRows) {
			err = tx.QueryRow(dbctx, "SELECT code FROM shortlinks WHERE id=$1", id).Scan(&code)
		}
		if err != nil {
			return "", fmt.Errorf("set code: %w", err)
		}
	}

	if err := tx.Commit(dbctx); err != nil {
		return "", err
	}
	s.remember(ctx, code, rawURL)
	return code, nil
}

// CreateWithCode stores rawURL under a caller chosen code. It is idempotent
// for the same pair and fails when either side is taken by another pair.
func (s *ShortlinksRepo) CreateWithCode(ctx context.Context, rawURL, code, createdBy string) (string, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := s.db.Begin(dbctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(dbctx)

	var gotCode string
	err = tx.QueryRow(dbctx,
		"INSERT INTO shortlinks (url, code, disabled, created_by) VALUES ($1, $2, false, $3) ON CONFLICT (url) DO NOTHING RETURNING code",
		rawURL, code, createdBy,
	).Scan(&gotCode)
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		if err := tx.QueryRow(dbctx, "SELECT COALESCE(code,'') FROM shortlinks WHERE url=$1", rawURL).Scan(&gotCode); err != nil {
			return "", err
		}
		if gotCode != "" && gotCode != code {
			return "", shortlink.ErrShortlinkURLAlreadyHasDifferentCode
		}
		if gotCode == "" {
			if err := tx.QueryRow(dbctx,
				"UPDATE shortlinks SET code=$1 WHERE url=$2 AND (code IS NULL OR code='') RETURNING code",
				code, rawURL,
			).Scan(&gotCode); err != nil {
				if isUniqueViolation(err, "") {
					return "", shortlink.ErrShortlinkCodeAlreadyExists
				}
				return "", err
			}
		}
	case isUniqueViolation(err, "code"):
		return "", shortlink.ErrShortlinkCodeAlreadyExists
	default:
		return "", err
	}

	if err := tx.Commit(dbctx); err != nil {
		return "", err
	}
	s.remember(ctx, gotCode, rawURL)
	return gotCode, nil
}

func isUniqueViolation(err error, constraintPart string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraintPart == "" || strings.Contains(strings.ToLower(pgErr.ConstraintName), constraintPart)
}

// remember overwrites any negative cache entry so a fresh code resolves
// immediately.
func (s *ShortlinksRepo) remember(ctx context.Context, code, rawURL string) {
	if code == "" {
		return
	}
	if s.bloom != nil {
		s.bloom.Add(code)
	}
	if s.cache != nil {
		cacheCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		if err := s.cache.Set(cacheCtx, code, rawURL); err != nil {
			s.logger.Warn("shortlink cache set failed", "code", code, "err", err)
		}
	}
}

// Resolve checks bloom, then cache, then postgres.
func (s *ShortlinksRepo) Resolve(ctx context.Context, code string) (string, error) {
	if s.bloom != nil && !s.bloom.MightExist(code) {
		return "", shortlink.ErrShortlinkNotFound
	}
	if s.cache != nil {
		url, hit, err := s.cache.Get(ctx, code)
		if err != nil {
			s.logger.Warn("shortlink cache get failed", "code", code, "err", err)
		} else if hit {
			if url == "" {
				return "", shortlink.ErrShortlinkNotFound
			}
			return url, nil
		}
	}

	dbctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	var url string
	err := s.db.QueryRow(dbctx, "SELECT url FROM shortlinks WHERE code=$1 AND disabled=false", code).Scan(&url)
	if errors.Is(err, pgx.ErrNoRows) {
		if s.cache != nil {
			_ = s.cache.SetNotFound(ctx, code)
		}
		return "", shortlink.ErrShortlinkNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", code, err)
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, code, url)
	}
	return url, nil
}

func (s *ShortlinksRepo) FindByCode(ctx context.Context, code string) (*shortlink.Metadata, error) {
	dbctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	var data shortlink.Metadata
	err := s.db.QueryRow(dbctx,
		"SELECT url, disabled, click_count, created_by, created_at, updated_at FROM shortlinks WHERE code=$1", code,
	).Scan(&data.URL, &data.Disabled, &data.ClickCount, &data.CreatedBy, &data.CreatedAt, &data.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shortlink.ErrShortlinkNotFound
	}
	if err != nil {
		return nil, err
	}
	return &data, nil
}

func (s *ShortlinksRepo) DisableByCode(ctx context.Context, code string) error {
	dbctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	var ok int
	err := s.db.QueryRow(dbctx,
		"UPDATE shortlinks SET disabled=true, updated_at=now() WHERE code=$1 AND disabled=false RETURNING 1", code,
	).Scan(&ok)
	if err == nil {
		if s.cache != nil {
			_ = s.cache.Delete(ctx, code)
		}
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	// Nothing updated: the code is unknown or already disabled.
	var disabled bool
	if err := s.db.QueryRow(dbctx, "SELECT disabled FROM shortlinks WHERE code=$1", code).Scan(&disabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shortlink.ErrShortlinkNotFound
		}
		return err
	}
	if disabled {
		return shortlink.ErrAlreadyDisabled
	}
	return errors.New("shortlink disable failed")
}

// ListStatsByCode pages click details newest first. cursor is the last id of
// the previous page, 0 for the first page.
func (s *ShortlinksRepo) ListStatsByCode(ctx context.Context, code string, limit int, cursor int64) (*shortlink.StatsPage, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var total int64
	if err := s.db.QueryRow(dbctx, `SELECT click_count FROM shortlinks WHERE code=$1`, code).Scan(&total); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shortlink.ErrShortlinkNotFound
		}
		return nil, err
	}

	var rows pgx.Rows
	var err error
	if cursor == 0 {
		rows, err = s.db.Query(dbctx, `SELECT id, clicked_at, referer, user_agent FROM click_stats WHERE code=$1 ORDER BY id DESC LIMIT $2`, code, limit)
	} else {
		rows, err = s.db.Query(dbctx, `SELECT id, clicked_at, referer, user_agent FROM click_stats WHERE code=$1 AND id<$2 ORDER BY id DESC LIMIT $3`, code, cursor, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clicks []shortlink.ClickStats
	for rows.Next() {
		var item shortlink.ClickStats
		if err := rows.Scan(&item.ID, &item.ClickedAt, &item.Referer, &item.UserAgent); err != nil {
			return nil, err
		}
		clicks = append(clicks, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &shortlink.StatsPage{TotalClicks: total, RecentClicks: clicks}
	if len(clicks) == limit && limit > 0 {
		page.NextCursor = &clicks[len(clicks)-1].ID
	}
	return page, nil
}

// SaveClicks writes a batch of click events in one transaction. A failing
// row is logged and skipped.
func (s *ShortlinksRepo) SaveClicks(ctx context.Context, batch []stats.ClickEvent) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin click batch: %w", err)
	}
	defer tx.Rollback(context.Background())

	for _, e := range batch {
		if _, err := tx.Exec(ctx,
			`INSERT INTO click_stats (code, clicked_at, ip, user_agent, referer) VALUES ($1,$2,$3,$4,$5)`,
			e.Code, e.ClickedAt, e.IP, e.UserAgent, e.Referer); err != nil {
			s.logger.Error("click stats: insert failed", "err", err, "code", e.Code)
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE shortlinks SET click_count = click_count + 1 WHERE code=$1`, e.Code); err != nil {
			s.logger.Error("click stats: update count failed", "err", err, "code", e.Code)
		}
	}
	return tx.Commit(ctx)
}
