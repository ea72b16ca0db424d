package observe

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitedyno/urlbot/internal/app/urlinfo"
	"github.com/sitedyno/urlbot/internal/platform/metrics"
)

func newRequest(i int, target string) *urlinfo.Request {
	return &urlinfo.Request{
		ID:        fmt.Sprintf("req-%d", i),
		URL:       fmt.Sprintf("http://example.com/%d", i),
		Origin:    urlinfo.Message{Source: target, Nick: "alice"},
		StartedAt: time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC),
	}
}

func TestHistoryObserverKeepsNewestFirstAndCaps(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := NewHistoryObserver(client, 3, nil)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		require.NoError(t, h.Observe(ctx, newRequest(i, "#go")))
	}
	require.NoError(t, h.Observe(ctx, newRequest(9, "#other")))

	got, err := h.Recent(ctx, "#go", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "http://example.com/5", got[0].URL)
	assert.Equal(t, "http://example.com/3", got[2].URL)
	assert.Equal(t, "alice", got[0].Nick)
	assert.Equal(t, "req-5", got[0].RequestID)

	other, err := h.Recent(ctx, "#other", 10)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestHistoryObserverSwallowsRedisErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	h := NewHistoryObserver(client, 3, nil)
	assert.NoError(t, h.Observe(context.Background(), newRequest(1, "#go")))

	_, err := h.Recent(context.Background(), "#go", 1)
	assert.Error(t, err)
}

func TestObserversRegisterOnCatchAll(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ev := urlinfo.NewEvents()
	require.NoError(t, MetricsObserver{}.Register(ev))
	require.NoError(t, NewHistoryObserver(client, 10, nil).Register(ev))
	assert.Equal(t, 2, ev.Hosts.Listeners(urlinfo.EventHostAll))

	before := testutil.ToFloat64(metrics.URLsObserved.WithLabelValues("https"))
	req := newRequest(1, "#go")
	req.URL = "https://example.com/"
	require.NoError(t, ev.Hosts.Emit(context.Background(), urlinfo.EventHostAll, req))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.URLsObserved.WithLabelValues("https")))
}
