package urlinfo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sitedyno/urlbot/internal/platform/metrics"
)

// DefaultShortenTimeout bounds how long a shortener may take.
const DefaultShortenTimeout = 15 * time.Second

// Outcome is the result of a shorten race. The zero value is Absent.
type Outcome struct {
	ShortURL string
	OK       bool
}

// Absent means no short URL is available.
var Absent = Outcome{}

// ShortenRequest is the payload of url.shorten.* events.
type ShortenRequest struct {
	URL      string
	Acceptor *Acceptor
}

// Reasons recorded for a resolved race.
const (
	reasonAccepted = "accepted"
	reasonDeclined = "declined"
	reasonFailed   = "failed"
	reasonTimeout  = "timeout"
	reasonCanceled = "canceled"
	reasonNone     = "no_shortener"
)

type resolution struct {
	outcome Outcome
	reason  string
}

// Acceptor is the write-once slot a shortener resolves. Only the first call to
// Accept or Decline has an effect; later calls return false and change
// nothing. It is safe to call from any goroutine.
type Acceptor struct {
	done atomic.Bool
	ch   chan resolution
}

func newAcceptor() *Acceptor {
	return &Acceptor{ch: make(chan resolution, 1)}
}

// Accept resolves the race with shortURL. An empty shortURL declines.
func (a *Acceptor) Accept(shortURL string) bool {
	shortURL = strings.TrimSpace(shortURL)
	if shortURL == "" {
		return a.resolve(Absent, reasonDeclined)
	}
	return a.resolve(Outcome{ShortURL: shortURL, OK: true}, reasonAccepted)
}

// Decline resolves the race without a short URL.
func (a *Acceptor) Decline() bool {
	return a.resolve(Absent, reasonDeclined)
}

// Resolved reports whether the slot has been written.
func (a *Acceptor) Resolved() bool { return a.done.Load() }

func (a *Acceptor) resolve(o Outcome, reason string) bool {
	if !a.done.CompareAndSwap(false, true) {
		return false
	}
	a.ch <- resolution{outcome: o, reason: reason}
	return true
}

// wait returns the stored resolution. It must only be called once, after the
// slot is known to be written or about to be.
func (a *Acceptor) wait() resolution { return <-a.ch }

// Race asks the registered shortener for a short URL and bounds the wait.
type Race struct {
	events  *Events
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewRace creates a race over events. A non-positive timeout falls back to
// DefaultShortenTimeout.
func NewRace(events *Events, timeout time.Duration, logger *slog.Logger) *Race {
	if timeout <= 0 {
		timeout = DefaultShortenTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Race{
		events:  events,
		timeout: timeout,
		logger:  logger,
		tracer:  otel.Tracer("github.com/sitedyno/urlbot/internal/app/urlinfo"),
	}
}

// Timeout returns the configured deadline.
func (r *Race) Timeout() time.Duration { return r.timeout }

// Shorten resolves to exactly one Outcome. A host specific shortener is
// preferred over the catch-all one; without any shortener it returns Absent
// immediately. Otherwise the first of {Accept, Decline, deadline, ctx done}
// decides and everything after that is ignored.
func (r *Race) Shorten(ctx context.Context, rawURL string) Outcome {
	ctx, span := r.tracer.Start(ctx, "urlinfo.shorten")
	defer span.End()

	res := r.run(ctx, rawURL)

	span.SetAttributes(
		attribute.String("shorten.reason", res.reason),
		attribute.Bool("shorten.ok", res.outcome.OK),
	)
	metrics.ShortenOutcomes.WithLabelValues(res.reason).Inc()
	return res.outcome
}

func (r *Race) run(ctx context.Context, rawURL string) resolution {
	name := r.eventFor(rawURL)
	if name == "" {
		return resolution{outcome: Absent, reason: reasonNone}
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	acc := newAcceptor()
	go r.emit(subCtx, name, ShortenRequest{URL: rawURL, Acceptor: acc})

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case res := <-acc.ch:
		return res
	case <-timer.C:
		if acc.resolve(Absent, reasonTimeout) {
			r.logger.Debug("shortener timed out", "event", name, "url", rawURL, "timeout", r.timeout)
		}
		return acc.wait()
	case <-ctx.Done():
		acc.resolve(Absent, reasonCanceled)
		return acc.wait()
	}
}

func (r *Race) eventFor(rawURL string) string {
	if host := HostOf(rawURL); routable(host) && r.events.Shorteners.HasListeners(ShortenEvent(host)) {
		return ShortenEvent(host)
	}
	if r.events.Shorteners.HasListeners(EventShortenAll) {
		return EventShortenAll
	}
	return ""
}

// emit runs the shortener listeners. A listener error or panic declines.
func (r *Race) emit(ctx context.Context, name string, req ShortenRequest) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("shortener panicked", "event", name, "url", req.URL, "panic", fmt.Sprint(p))
			req.Acceptor.resolve(Absent, reasonFailed)
		}
	}()
	r.logger.Debug("emitting", "event", name, "url", req.URL)
	if err := r.events.Shorteners.Emit(ctx, name, req); err != nil {
		r.logger.Warn("shortener failed", "event", name, "url", req.URL, "err", err)
		req.Acceptor.resolve(Absent, reasonFailed)
	}
}
