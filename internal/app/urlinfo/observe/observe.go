// Package observe holds passive url.host.all listeners.
package observe

import (
	"context"
	"net/url"

	"github.com/sitedyno/urlbot/internal/app/urlinfo"
	"github.com/sitedyno/urlbot/internal/platform/metrics"
)

// MetricsObserver counts every dispatched URL by scheme.
type MetricsObserver struct{}

func (MetricsObserver) Observe(_ context.Context, req *urlinfo.Request) error {
	scheme := "unknown"
	if u, err := url.Parse(req.URL); err == nil && u.Scheme != "" {
		scheme = u.Scheme
	}
	metrics.URLsObserved.WithLabelValues(scheme).Inc()
	return nil
}

// Register subscribes o to url.host.all.
func (o MetricsObserver) Register(ev *urlinfo.Events) error {
	return ev.OnAnyURL(o.Observe)
}
