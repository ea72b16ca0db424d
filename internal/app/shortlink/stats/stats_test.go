package stats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	events  []ClickEvent
	batches int
	err     error
}

func (m *memStore) SaveClicks(_ context.Context, batch []ClickEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.batches++
	m.events = append(m.events, batch...)
	return nil
}

func (m *memStore) codes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Code)
	}
	return out
}

func TestChannelCollectorDropsWhenFullAndAfterClose(t *testing.T) {
	c := NewChannelCollector(1)
	c.Collect(ClickEvent{Code: "a"})
	c.Collect(ClickEvent{Code: "b"})

	c.Close()
	c.Close()
	c.Collect(ClickEvent{Code: "c"})

	var got []string
	for e := range c.Events() {
		got = append(got, e.Code)
	}
	assert.Equal(t, []string{"a"}, got)
}

func TestChannelCollectorConcurrentCloseIsSafe(t *testing.T) {
	c := NewChannelCollector(64)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Collect(ClickEvent{Code: "x"})
			}
		}()
	}
	c.Close()
	wg.Wait()
}

func TestConsumerFlushesRemainingOnClose(t *testing.T) {
	store := &memStore{}
	c := NewChannelCollector(10)
	consumer := NewConsumer(store, c, nil)

	c.Collect(ClickEvent{Code: "a"})
	c.Collect(ClickEvent{Code: "b"})
	c.Collect(ClickEvent{Code: "c"})
	c.Close()

	done := make(chan struct{})
	go func() {
		consumer.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after collector close")
	}
	assert.Equal(t, []string{"a", "b", "c"}, store.codes())
}

func TestConsumerFlushesFullBatches(t *testing.T) {
	store := &memStore{}
	c := NewChannelCollector(10)
	consumer := NewConsumer(store, c, nil)
	consumer.batchSize = 2
	consumer.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumer.Run(ctx)
		close(done)
	}()

	c.Collect(ClickEvent{Code: "a"})
	c.Collect(ClickEvent{Code: "b"})
	require.Eventually(t, func() bool { return len(store.codes()) == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestFlushFailureKeepsRunning(t *testing.T) {
	store := &memStore{err: errors.New("db down")}
	c := NewChannelCollector(10)
	consumer := NewConsumer(store, c, nil)
	consumer.interval = 10 * time.Millisecond

	c.Collect(ClickEvent{Code: "a"})
	c.Close()
	consumer.Run(context.Background())

	assert.Empty(t, store.codes())
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestKafkaCollectorWritesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	k := NewKafkaCollectorWithWriter(w, nil)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	k.Collect(ClickEvent{Code: "abc", ClickedAt: at, IP: "10.0.0.1", Referer: "https://chat.example"})
	k.Close()

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "abc", string(w.msgs[0].Key))
	var got ClickEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "abc", got.Code)
	assert.True(t, at.Equal(got.ClickedAt))
	assert.Equal(t, "10.0.0.1", got.IP)
	assert.True(t, w.closed)
}

func TestKafkaCollectorSwallowsWriteErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	k := NewKafkaCollectorWithWriter(w, nil)
	assert.NotPanics(t, func() { k.Collect(ClickEvent{Code: "abc"}) })
}

type fakeReader struct {
	msgs chan kafka.Message
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) Close() error { return nil }

func TestKafkaConsumerSkipsBadMessages(t *testing.T) {
	r := &fakeReader{msgs: make(chan kafka.Message, 3)}
	good1, _ := json.Marshal(ClickEvent{Code: "one"})
	good2, _ := json.Marshal(ClickEvent{Code: "two"})
	r.msgs <- kafka.Message{Value: good1}
	r.msgs <- kafka.Message{Value: []byte("{not json")}
	r.msgs <- kafka.Message{Value: good2}

	store := &memStore{}
	k := NewKafkaConsumerWithReader(r, store, nil)
	k.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		k.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(store.codes()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"one", "two"}, store.codes())

	cancel()
	<-done
	k.Close()
}
