package shortlink

import (
	"context"
	"errors"
	"time"
)

var (
	ErrShortlinkNotFound                   = errors.New("shortlink not found")
	ErrAlreadyDisabled                     = errors.New("shortlink already disabled")
	ErrShortlinkDisabled                   = errors.New("shortlink disabled")
	ErrShortlinkCodeAlreadyExists          = errors.New("shortlink code already exists")
	ErrShortlinkURLAlreadyHasDifferentCode = errors.New("shortlink url already has different code")
)

// Shortlink is a code and the URL it points to.
type Shortlink struct {
	Code string
	URL  string
}

// Metadata is what the admin API reports about a code.
type Metadata struct {
	URL        string    `json:"url"`
	Disabled   bool      `json:"disabled"`
	ClickCount int64     `json:"click_count"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ClickStats struct {
	ID        int64     `json:"id"` // pagination cursor
	ClickedAt time.Time `json:"clicked_at"`
	Referer   string    `json:"referer"`
	UserAgent string    `json:"user_agent"`
}

type StatsPage struct {
	TotalClicks  int64        `json:"total_clicks"`
	RecentClicks []ClickStats `json:"recent_clicks"`
	NextCursor   *int64       `json:"next_cursor,omitempty"`
}

// Creator hands out codes. Creating the same URL twice returns the same code,
// unless that code was disabled: then ErrShortlinkDisabled is returned.
type Creator interface {
	Create(ctx context.Context, rawURL, createdBy string) (string, error)
}

// Resolver maps a code to its URL. Unknown and disabled codes return
// ErrShortlinkNotFound.
type Resolver interface {
	Resolve(ctx context.Context, code string) (string, error)
}

// Store is everything the shortlink server needs from a repository.
type Store interface {
	Creator
	Resolver
	CreateWithCode(ctx context.Context, rawURL, code, createdBy string) (string, error)
	FindByCode(ctx context.Context, code string) (*Metadata, error)
	DisableByCode(ctx context.Context, code string) error
	ListStatsByCode(ctx context.Context, code string, limit int, cursor int64) (*StatsPage, error)
}
