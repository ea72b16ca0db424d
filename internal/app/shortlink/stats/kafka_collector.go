package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sitedyno/urlbot/internal/platform/metrics"
)

// MessageWriter is the part of *kafka.Writer the collector uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaCollector publishes click events to a topic, keyed by code.
type KafkaCollector struct {
	writer MessageWriter
	logger *slog.Logger
}

func NewKafkaCollector(brokers []string, topic string, logger *slog.Logger) *KafkaCollector {
	return NewKafkaCollectorWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
	}, logger)
}

func NewKafkaCollectorWithWriter(w MessageWriter, logger *slog.Logger) *KafkaCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaCollector{writer: w, logger: logger}
}

func (k *KafkaCollector) Collect(event ClickEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		k.logger.Error("kafka: marshal click event failed", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(event.Code), Value: data}); err != nil {
		metrics.ClickEvents.WithLabelValues("dropped").Inc()
		k.logger.Error("kafka write failed", "err", err)
		return
	}
	metrics.ClickEvents.WithLabelValues("collected").Inc()
}

func (k *KafkaCollector) Close() {
	if err := k.writer.Close(); err != nil {
		k.logger.Warn("kafka writer close failed", "err", err)
	}
}
