package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sitedyno/urlbot/internal/app/shortlink"
	"github.com/sitedyno/urlbot/internal/app/shortlink/stats"
	"github.com/sitedyno/urlbot/internal/platform/auth"
	"github.com/sitedyno/urlbot/internal/platform/httpmiddleware"
	"github.com/sitedyno/urlbot/internal/platform/metrics"
)

const (
	defaultStatsLimit = 20
	maxStatsLimit     = 100
	maxBodyBytes      = 64 << 10
)

type handlers struct {
	store     shortlink.Store
	collector stats.Collector
	baseURL   string
	logger    *slog.Logger
}

type CreateRequest struct {
	URL  string `json:"url"`
	Code string `json:"code,omitempty"`
}

type CreateResponse struct {
	Code     string `json:"code"`
	ShortURL string `json:"short_url"`
	URL      string `json:"url"`
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		httpmiddleware.WriteError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if err := shortlink.ValidateURL(req.URL); err != nil {
		httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	customCode := strings.TrimSpace(req.Code)
	if customCode != "" {
		if err := shortlink.ValidateCode(customCode); err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	var createdBy string
	if id, ok := auth.GetIdentity(r.Context()); ok {
		createdBy = id.Subject
	}

	var code string
	var err error
	if customCode != "" {
		code, err = h.store.CreateWithCode(r.Context(), req.URL, customCode, createdBy)
	} else {
		code, err = h.store.Create(r.Context(), req.URL, createdBy)
	}
	switch {
	case errors.Is(err, shortlink.ErrShortlinkCodeAlreadyExists), errors.Is(err, shortlink.ErrShortlinkURLAlreadyHasDifferentCode),
		errors.Is(err, shortlink.ErrShortlinkDisabled):
		httpmiddleware.WriteError(w, r, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.Error("shortlink create failed", "err", err, "request_id", r.Header.Get(httpmiddleware.RequestIDHeader))
		httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "shortlink create failed")
		return
	}
	metrics.ShortlinksCreated.Inc()

	httpmiddleware.WriteJSON(w, http.StatusCreated, CreateResponse{
		Code:     code,
		ShortURL: h.shortURL(r, code),
		URL:      req.URL,
	})
}

func (h *handlers) shortURL(r *http.Request, code string) string {
	if h.baseURL != "" {
		return h.baseURL + "/" + code
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
	}
	if r.Host == "" {
		return "/" + code
	}
	return scheme + "://" + r.Host + "/" + code
}

func (h *handlers) redirect(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if shortlink.ValidateCode(code) != nil {
		httpmiddleware.WriteError(w, r, http.StatusNotFound, "url not found")
		return
	}
	url, err := h.store.Resolve(r.Context(), code)
	if errors.Is(err, shortlink.ErrShortlinkNotFound) {
		httpmiddleware.WriteError(w, r, http.StatusNotFound, "url not found")
		return
	}
	if err != nil {
		h.logger.Error("shortlink resolve failed", "code", code, "err", err)
		httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	metrics.ShortlinkRedirects.Inc()

	if h.collector != nil {
		h.collector.Collect(stats.ClickEvent{
			Code:      code,
			ClickedAt: time.Now(),
			IP:        httpmiddleware.ClientIP(r),
			UserAgent: r.UserAgent(),
			Referer:   r.Referer(),
		})
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *handlers) find(w http.ResponseWriter, r *http.Request) {
	data, err := h.store.FindByCode(r.Context(), chi.URLParam(r, "code"))
	if errors.Is(err, shortlink.ErrShortlinkNotFound) {
		httpmiddleware.WriteError(w, r, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	httpmiddleware.WriteJSON(w, http.StatusOK, data)
}

func (h *handlers) disable(w http.ResponseWriter, r *http.Request) {
	err := h.store.DisableByCode(r.Context(), chi.URLParam(r, "code"))
	switch {
	case errors.Is(err, shortlink.ErrShortlinkNotFound):
		httpmiddleware.WriteError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, shortlink.ErrAlreadyDisabled):
		httpmiddleware.WriteError(w, r, http.StatusConflict, err.Error())
	case err != nil:
		httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// stats serves ?limit=N&cursor=ID, newest clicks first.
func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	limit := defaultStatsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxStatsLimit)
	}
	var cursor int64
	if v := r.URL.Query().Get("cursor"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, "invalid cursor")
			return
		}
		cursor = n
	}

	page, err := h.store.ListStatsByCode(r.Context(), chi.URLParam(r, "code"), limit, cursor)
	if errors.Is(err, shortlink.ErrShortlinkNotFound) {
		httpmiddleware.WriteError(w, r, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if page.RecentClicks == nil {
		page.RecentClicks = []shortlink.ClickStats{}
	}
	httpmiddleware.WriteJSON(w, http.StatusOK, page)
}
