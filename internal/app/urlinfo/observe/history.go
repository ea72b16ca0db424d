package observe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sitedyno/urlbot/internal/app/urlinfo"
)

const historyKeyPrefix = "urlbot:history:"

// Entry is one remembered URL.
type Entry struct {
	RequestID string    `json:"request_id"`
	URL       string    `json:"url"`
	Nick      string    `json:"nick"`
	At        time.Time `json:"at"`
}

// HistoryObserver keeps the last size URLs per reply target in a redis list,
// newest first.
type HistoryObserver struct {
	client redis.Cmdable
	size   int64
	logger *slog.Logger
}

func NewHistoryObserver(client redis.Cmdable, size int, logger *slog.Logger) *HistoryObserver {
	if size <= 0 {
		size = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryObserver{client: client, size: int64(size), logger: logger}
}

// Observe records req. Redis failures are logged, never returned, so a broken
// history does not fail dispatch.
func (h *HistoryObserver) Observe(ctx context.Context, req *urlinfo.Request) error {
	data, err := json.Marshal(Entry{
		RequestID: req.ID,
		URL:       req.URL,
		Nick:      req.Origin.Nick,
		At:        req.StartedAt.UTC(),
	})
	if err != nil {
		h.logger.Error("history encode failed", "request_id", req.ID, "err", err)
		return nil
	}

	key := historyKeyPrefix + req.Origin.Target()
	ctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, h.size-1)
		return nil
	})
	if err != nil {
		h.logger.Warn("history write failed", "request_id", req.ID, "key", key, "err", err)
	}
	return nil
}

// Recent returns up to n entries for target, newest first.
func (h *HistoryObserver) Recent(ctx context.Context, target string, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := h.client.LRange(ctx, historyKeyPrefix+target, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", target, err)
	}
	out := make([]Entry, 0, len(raw))
	for _, s := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Register subscribes h to url.host.all.
func (h *HistoryObserver) Register(ev *urlinfo.Events) error {
	return ev.OnAnyURL(h.Observe)
}
