package urlinfo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sitedyno/urlbot/internal/platform/metrics"
)

// ErrNoSink is returned when a message is handled without an outbound sink.
var ErrNoSink = errors.New("urlinfo: nil sink")

// FetchResult is what the fetch collaborator reports about a URL.
type FetchResult struct {
	Body    []byte
	Header  http.Header
	Status  int
	Elapsed time.Duration
}

// Fetcher downloads a URL. Implementations fill Elapsed even when they fail.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (FetchResult, error)
}

// Options configures a Plugin. Zero values select the defaults.
type Options struct {
	// Handler builds the reply text; nil selects DefaultHandler.
	Handler Handler
	// ShortenTimeout bounds the shortener race; <= 0 selects 15s.
	ShortenTimeout time.Duration
	// HostURLEmitsOnly disables the generic fetch pipeline. Host overrides and
	// url.host.all still run.
	HostURLEmitsOnly bool
	// Filter may suppress URLs before dispatch.
	Filter Filter
	// Extractor finds URLs in text; nil selects RelaxedExtractor.
	Extractor Extractor
	// Fetcher is required unless HostURLEmitsOnly is set.
	Fetcher Fetcher
	Logger  *slog.Logger
}

// Plugin dispatches URLs found in chat messages.
type Plugin struct {
	events    *Events
	race      *Race
	handler   Handler
	filter    Filter
	extractor Extractor
	fetcher   Fetcher
	hostOnly  bool
	logger    *slog.Logger
	tracer    trace.Tracer

	wg sync.WaitGroup
}

// New validates opts, seals events and returns a ready Plugin. All listeners
// must be registered on events before New is called.
func New(events *Events, opts Options) (*Plugin, error) {
	if events == nil {
		return nil, errors.New("urlinfo: nil events")
	}
	if opts.Fetcher == nil && !opts.HostURLEmitsOnly {
		return nil, errors.New("urlinfo: fetcher is required unless host url emits only")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	handler := opts.Handler
	if handler == nil {
		handler = NewDefaultHandler("")
	}
	extractor := opts.Extractor
	if extractor == nil {
		extractor = NewRelaxedExtractor()
	}

	events.Seal()

	return &Plugin{
		events:    events,
		race:      NewRace(events, opts.ShortenTimeout, logger),
		handler:   handler,
		filter:    opts.Filter,
		extractor: extractor,
		fetcher:   opts.Fetcher,
		hostOnly:  opts.HostURLEmitsOnly,
		logger:    logger,
		tracer:    otel.Tracer("github.com/sitedyno/urlbot/internal/app/urlinfo"),
	}, nil
}

// Handler returns the reply builder in use.
func (p *Plugin) Handler() Handler { return p.handler }

// Race returns the shortener race used by the generic pipeline.
func (p *Plugin) Race() *Race { return p.race }

// HandleMessage dispatches every URL in msg.Text in order. Malformed and
// filtered URLs are skipped; listener errors are collected and returned after
// all URLs were handled.
func (p *Plugin) HandleMessage(ctx context.Context, msg Message, sink Sink) error {
	if sink == nil {
		return ErrNoSink
	}
	var errs []error
	for _, rawURL := range p.extractor.ExtractURLs(msg.Text) {
		if p.filter != nil && p.filter.Filter(ctx, rawURL, msg) == Suppress {
			metrics.URLsSeen.WithLabelValues("filtered").Inc()
			p.logger.Debug("url suppressed by filter", "url", rawURL, "source", msg.Target())
			continue
		}
		if _, err := p.HandleURL(ctx, rawURL, msg, sink); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleURL dispatches one URL. It returns false when rawURL is not a usable
// URL. A url.host.<host> listener owns the URL outright; otherwise the generic
// pipeline is started in the background unless HostURLEmitsOnly is set. In
// both cases url.host.all is emitted exactly once, after that decision.
func (p *Plugin) HandleURL(ctx context.Context, rawURL string, origin Message, sink Sink) (bool, error) {
	target, ok := Normalize(rawURL)
	if !ok {
		metrics.URLsSeen.WithLabelValues("rejected").Inc()
		return false, nil
	}

	req := &Request{
		ID:        uuid.NewString(),
		URL:       target,
		Origin:    origin,
		Sink:      sink,
		StartedAt: time.Now(),
	}
	log := p.logger.With("request_id", req.ID)
	log.Debug("found url", "url", rawURL)
	if target != rawURL {
		log.Debug("corrected url", "url", target)
	}

	ctx, span := p.tracer.Start(ctx, "urlinfo.dispatch", trace.WithAttributes(
		attribute.String("request.id", req.ID),
		attribute.String("url.full", target),
	))
	defer span.End()

	var errs []error
	branch := "generic"
	if host := HostOf(target); routable(host) && p.events.Hosts.HasListeners(HostEvent(host)) {
		branch = "host"
		log.Debug("emitting", "event", HostEvent(host))
		if err := p.events.Hosts.Emit(ctx, HostEvent(host), req); err != nil {
			errs = append(errs, err)
		}
	} else if p.hostOnly {
		branch = "emits_only"
	} else {
		log.Debug("fetching", "url", target)
		p.wg.Add(1)
		go p.process(context.WithoutCancel(ctx), req, log)
	}
	span.SetAttributes(attribute.String("dispatch.branch", branch))
	metrics.URLsSeen.WithLabelValues(branch).Inc()

	log.Debug("emitting", "event", EventHostAll)
	if err := p.events.Hosts.Emit(ctx, EventHostAll, req); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return true, fmt.Errorf("dispatch %s: %w", target, err)
	}
	return true, nil
}

// Wait blocks until every generic pipeline started so far has finished.
func (p *Plugin) Wait() { p.wg.Wait() }

// process is the generic branch: fetch, race the shortener, assemble, send.
// Failures of optional collaborators degrade the reply instead of dropping it.
func (p *Plugin) process(ctx context.Context, req *Request, log *slog.Logger) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error("url pipeline panicked", "url", req.URL, "panic", fmt.Sprint(r))
		}
	}()

	ctx, span := p.tracer.Start(ctx, "urlinfo.process", trace.WithAttributes(
		attribute.String("request.id", req.ID),
	))
	defer span.End()

	res, err := p.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		log.Info("fetch failed", "url", req.URL, "err", err, "latency_ms", res.Elapsed.Milliseconds())
		span.RecordError(err)
	} else {
		log.Debug("download complete", "url", req.URL, "status", res.Status,
			"bytes", len(res.Body), "latency_ms", res.Elapsed.Milliseconds())
	}

	outcome := p.race.Shorten(ctx, req.URL)

	text := p.handler.Handle(URL{
		URL:      req.URL,
		Body:     res.Body,
		Header:   res.Header,
		Status:   res.Status,
		Elapsed:  res.Elapsed,
		ShortURL: outcome.ShortURL,
		Err:      err,
	})
	if text == "" {
		return
	}
	if err := req.Reply(ctx, text); err != nil {
		metrics.RepliesSent.WithLabelValues("error").Inc()
		log.Error("send reply failed", "target", req.Origin.Target(), "err", err)
		return
	}
	metrics.RepliesSent.WithLabelValues("ok").Inc()
}
