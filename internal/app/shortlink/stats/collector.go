package stats

import (
	"context"
	"sync"
	"time"

	"github.com/sitedyno/urlbot/internal/platform/metrics"
)

// ClickEvent is one redirect served for a code.
type ClickEvent struct {
	Code      string    `json:"code"`
	ClickedAt time.Time `json:"clicked_at"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Referer   string    `json:"referer"`
}

// Collector accepts click events from the redirect handler. Collect must not
// block the request.
type Collector interface {
	Collect(event ClickEvent)
	Close()
}

// ClickStore persists batches of click events.
type ClickStore interface {
	SaveClicks(ctx context.Context, batch []ClickEvent) error
}

// ChannelCollector buffers events in memory for a Consumer. Events arriving
// while the buffer is full are dropped.
type ChannelCollector struct {
	mu     sync.RWMutex
	ch     chan ClickEvent
	closed bool
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &ChannelCollector{ch: make(chan ClickEvent, bufferSize)}
}

func (c *ChannelCollector) Collect(event ClickEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- event:
		metrics.ClickEvents.WithLabelValues("collected").Inc()
	default:
		metrics.ClickEvents.WithLabelValues("dropped").Inc()
	}
}

func (c *ChannelCollector) Events() <-chan ClickEvent {
	return c.ch
}

// Close stops collection and closes the event channel. It is safe to call
// more than once.
func (c *ChannelCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
