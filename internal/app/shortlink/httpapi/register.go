package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sitedyno/urlbot/internal/app/shortlink"
	"github.com/sitedyno/urlbot/internal/app/shortlink/stats"
	"github.com/sitedyno/urlbot/internal/platform/auth"
	"github.com/sitedyno/urlbot/internal/platform/httpmiddleware"
	"github.com/sitedyno/urlbot/internal/platform/ratelimit"
)

// Deps are the collaborators of the shortlink HTTP server. Collector and
// Limiter are optional.
type Deps struct {
	Store     shortlink.Store
	Collector stats.Collector
	Tokens    auth.TokenService
	Limiter   ratelimit.Allower
	// BaseURL prefixes codes in API responses. Empty derives it from the
	// request host.
	BaseURL string
	Logger  *slog.Logger
}

// NewRouter mounts the public redirect at /{code} and the admin API under
// /api/v1. The admin API needs a bearer token with the admin role.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{
		store:     d.Store,
		collector: d.Collector,
		baseURL:   strings.TrimRight(d.BaseURL, "/"),
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		httpmiddleware.ReqID,
		httpmiddleware.AccessLog(logger),
		httpmiddleware.Metrics,
		httpmiddleware.TraceName,
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(httpmiddleware.AuthRequired(d.Tokens), httpmiddleware.RequireRole(auth.RoleAdmin))
		api.With(httpmiddleware.RateLimit(d.Limiter, "create", 30, time.Minute)).
			Post("/shortlinks", h.create)
		api.Get("/shortlinks/{code}", h.find)
		api.Post("/shortlinks/{code}/disable", h.disable)
		api.Get("/shortlinks/{code}/stats", h.stats)
	})

	r.With(httpmiddleware.RateLimit(d.Limiter, "redirect", 100, time.Minute)).
		Get("/{code}", h.redirect)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpmiddleware.WriteError(w, req, http.StatusNotFound, "not found")
	})
	return r
}
