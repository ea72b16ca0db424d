package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConsumer reads click events from a topic into a ClickStore.
type KafkaConsumer struct {
	reader    MessageReader
	store     ClickStore
	batchSize int
	interval  time.Duration
	backoff   time.Duration
	logger    *slog.Logger
}

func NewKafkaConsumer(brokers []string, topic string, store ClickStore, logger *slog.Logger) *KafkaConsumer {
	return NewKafkaConsumerWithReader(kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  "urlbot-click-stats",
		MinBytes: 1,
		MaxBytes: 10e6,
	}), store, logger)
}

func NewKafkaConsumerWithReader(r MessageReader, store ClickStore, logger *slog.Logger) *KafkaConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaConsumer{
		reader:    r,
		store:     store,
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
		backoff:   time.Second,
		logger:    logger,
	}
}

// Run blocks until ctx is done. Undecodable messages are skipped.
func (k *KafkaConsumer) Run(ctx context.Context) {
	events := make(chan ClickEvent, k.batchSize)
	go func() {
		defer close(events)
		for {
			msg, err := k.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				k.logger.Error("kafka read failed", "err", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(k.backoff):
				}
				continue
			}

			var event ClickEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				k.logger.Error("unmarshal click event failed", "err", err, "offset", msg.Offset)
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	runBatches(ctx, events, k.store, k.batchSize, k.interval, k.logger)
}

func (k *KafkaConsumer) Close() {
	if err := k.reader.Close(); err != nil {
		k.logger.Warn("kafka reader close failed", "err", err)
	}
}
