package shortlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/sitedyno/urlbot/internal/app/urlinfo"
	"github.com/sitedyno/urlbot/internal/platform/metrics"
)

// CreatedByBot marks codes created from chat.
const CreatedByBot = "urlbot"

// CreatorResolver is the part of a Store the chat side needs.
type CreatorResolver interface {
	Creator
	Resolver
}

// Shortener plugs the shortlink store into the URL plugin. It answers
// url.shorten.all with codes under its base URL and owns url.host.<base host>
// so links to itself are resolved locally instead of being fetched.
type Shortener struct {
	store    CreatorResolver
	base     string
	baseHost string
	basePath string
	logger   *slog.Logger
}

func NewShortener(store CreatorResolver, baseURL string, logger *slog.Logger) (*Shortener, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if err := ValidateURL(baseURL); err != nil {
		return nil, fmt.Errorf("base url %q: %w", baseURL, err)
	}
	u, _ := url.Parse(baseURL)
	if logger == nil {
		logger = slog.Default()
	}
	return &Shortener{
		store:    store,
		base:     baseURL,
		baseHost: urlinfo.HostOf(baseURL),
		basePath: strings.TrimRight(u.Path, "/"),
		logger:   logger,
	}, nil
}

// BaseHost is the host key the override is registered under.
func (s *Shortener) BaseHost() string { return s.baseHost }

// ShortURL is the public URL of code.
func (s *Shortener) ShortURL(code string) string { return s.base + "/" + code }

// Register subscribes s to url.shorten.all and url.host.<base host>.
func (s *Shortener) Register(ev *urlinfo.Events) error {
	if err := ev.OnShortenAll(s.Shorten); err != nil {
		return err
	}
	return ev.OnHost(s.baseHost, s.Override)
}

// Shorten declines URLs it cannot store, URLs that already are short links and
// URLs whose code was disabled. A store failure is returned and ends the race
// without a short URL.
func (s *Shortener) Shorten(ctx context.Context, req urlinfo.ShortenRequest) error {
	if err := ValidateURL(req.URL); err != nil {
		req.Acceptor.Decline()
		return nil
	}
	if urlinfo.HostOf(req.URL) == s.baseHost {
		req.Acceptor.Decline()
		return nil
	}
	code, err := s.store.Create(ctx, req.URL, CreatedByBot)
	if errors.Is(err, ErrShortlinkDisabled) {
		req.Acceptor.Decline()
		return nil
	}
	if err != nil {
		return fmt.Errorf("shorten %s: %w", req.URL, err)
	}
	metrics.ShortlinksCreated.Inc()
	if !req.Acceptor.Accept(s.ShortURL(code)) {
		s.logger.Debug("short link arrived after the race ended", "url", req.URL, "code", code)
	}
	return nil
}

// Override answers a link to one of our own codes with its target. The host
// is owned here, so paths that are not codes get a reply too.
func (s *Shortener) Override(ctx context.Context, req *urlinfo.Request) error {
	code := s.codeOf(req.URL)
	if code == "" || ValidateCode(code) != nil {
		return req.Reply(ctx, fmt.Sprintf("[ %s ] -> not a short link", req.URL))
	}
	target, err := s.store.Resolve(ctx, code)
	if errors.Is(err, ErrShortlinkNotFound) {
		return req.Reply(ctx, fmt.Sprintf("[ %s ] -> unknown short link", s.ShortURL(code)))
	}
	if err != nil {
		return fmt.Errorf("resolve %s: %w", code, err)
	}
	return req.Reply(ctx, fmt.Sprintf("[ %s ] -> %s", s.ShortURL(code), target))
}

func (s *Shortener) codeOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	p := strings.TrimPrefix(u.Path, s.basePath)
	p = strings.Trim(p, "/")
	if strings.Contains(p, "/") {
		return ""
	}
	return p
}
