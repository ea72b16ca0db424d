package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/sitedyno/urlbot/internal/platform/metrics"
)

const (
	defaultBatchSize = 100
	defaultInterval  = time.Second
	flushTimeout     = 5 * time.Second
)

// Consumer drains a ChannelCollector into a ClickStore in batches.
type Consumer struct {
	store     ClickStore
	collector *ChannelCollector
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
}

func NewConsumer(store ClickStore, collector *ChannelCollector, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		store:     store,
		collector: collector,
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
		logger:    logger,
	}
}

// Run blocks until ctx is done or the collector is closed, then flushes
// whatever is left.
func (c *Consumer) Run(ctx context.Context) {
	runBatches(ctx, c.collector.Events(), c.store, c.batchSize, c.interval, c.logger)
}

// runBatches flushes when a batch fills up or interval passes, whichever
// comes first.
func runBatches(ctx context.Context, events <-chan ClickEvent, store ClickStore, batchSize int, interval time.Duration, logger *slog.Logger) {
	batch := make([]ClickEvent, 0, batchSize)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flush(store, batch, logger)
			return
		case event, ok := <-events:
			if !ok {
				flush(store, batch, logger)
				return
			}
			batch = append(batch, event)
			if len(batch) >= batchSize {
				flush(store, batch, logger)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				flush(store, batch, logger)
				batch = batch[:0]
			}
		}
	}
}

// flush runs on its own deadline so the final batch survives ctx cancellation.
func flush(store ClickStore, batch []ClickEvent, logger *slog.Logger) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := store.SaveClicks(ctx, batch); err != nil {
		metrics.ClickEvents.WithLabelValues("failed").Add(float64(len(batch)))
		logger.Error("click stats: flush failed", "err", err, "count", len(batch))
		return
	}
	metrics.ClickEvents.WithLabelValues("saved").Add(float64(len(batch)))
	logger.Debug("click stats: flushed", "count", len(batch))
}
