// Package handler exposes the search service and the feedback service over
// HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gesetzesinfo/lawsearch/internal/feedback"
	"github.com/gesetzesinfo/lawsearch/internal/searcher"
	"github.com/gesetzesinfo/lawsearch/internal/searcher/cache"
	apperrors "github.com/gesetzesinfo/lawsearch/pkg/errors"
	"github.com/gesetzesinfo/lawsearch/pkg/logger"
)

type SearchService interface {
	Search(ctx context.Context, raw string) (*searcher.Response, error)
	ProvisionCount() int
	TermCount() int
}

type FeedbackRecorder interface {
	Record(ctx context.Context, queryID string, resultID int, rating feedback.Rating) (feedback.Feedback, error)
}

type Handler struct {
	search   SearchService
	feedback FeedbackRecorder
	cache    *cache.QueryCache
	limits   Limits
	logger   *slog.Logger
}

// New builds the handler. queryCache may be nil.
func New(search SearchService, fb FeedbackRecorder, queryCache *cache.QueryCache, limits Limits) *Handler {
	return &Handler{
		search:   search,
		feedback: fb,
		cache:    queryCache,
		limits:   limits,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/search", h.Search)
	mux.HandleFunc("GET /api/rate", h.Rate)
	mux.HandleFunc("GET /api/laws/count", h.LawCount)
	mux.HandleFunc("GET /api/terms/count", h.TermCount)
	mux.HandleFunc("GET /api/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/cache/invalidate", h.CacheInvalidate)
}

type noResultsBody struct {
	Query   string         `json:"query"`
	Total   int            `json:"total"`
	Results []searcher.Hit `json:"results"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	req, err := ParseSearchRequest(r, h.limits)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	resp, err := h.search.Search(r.Context(), req.Query)
	if errors.Is(err, apperrors.ErrNoResults) {
		h.writeJSON(w, http.StatusOK, noResultsBody{
			Query:   req.Query,
			Total:   0,
			Results: []searcher.Hit{},
			Code:    apperrors.Code(err),
			Message: message(err),
		})
		return
	}
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	logger.FromContext(r.Context()).Info("search completed",
		"query_id", resp.QueryID,
		"returned", resp.Total,
		"cache_hit", resp.CacheHit,
	)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Rate(w http.ResponseWriter, r *http.Request) {
	req, err := ParseRateRequest(r)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	if _, err := h.feedback.Record(r.Context(), req.QueryID, req.ResultID, req.Rating); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) LawCount(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]int{"count": h.search.ProvisionCount()})
}

func (h *Handler) TermCount(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]int{"count": h.search.TermCount()})
}

func (h *Handler) CacheStats(w http.ResponseWriter, _ *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError answers with the status mapped from err. Internal failures are
// logged and their detail is not sent to the client.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	body := map[string]string{
		"error": message(err),
		"code":  apperrors.Code(err),
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(ctx).Error("request failed", "error", err)
		body["error"] = "internal server error"
	}
	h.writeJSON(w, status, body)
}

func message(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
