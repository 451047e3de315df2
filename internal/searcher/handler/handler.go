// Package handler serves the search service over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/service"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/proto"
)

const maxIndexBody = 64 << 20

// CacheAdmin is the part of the result cache exposed to operators.
type CacheAdmin interface {
	Stats() cache.Stats
	Invalidate(ctx context.Context) (int64, error)
}

type Handler struct {
	svc          *service.Service
	cache        CacheAdmin
	defaultLimit int
	maxLimit     int
	logger       *slog.Logger
}

// New returns a Handler. queryCache may be nil when caching is disabled.
func New(svc *service.Service, queryCache CacheAdmin, defaultLimit, maxLimit int) *Handler {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &Handler{
		svc:          svc,
		cache:        queryCache,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/index", h.Index)
	mux.HandleFunc("GET /api/v1/generation", h.Generation)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.Document)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("POST /api/v1/snapshot", h.Snapshot)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("DELETE /api/v1/cache", h.CacheInvalidate)
}

// Search serves GET /api/v1/search?q=...&limit=N. An absent or blank q is
// the empty query and matches nothing.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, h.maxLimit)
	}

	result, err := h.svc.Search(r.Context(), query, limit)
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	logger.FromContext(r.Context()).Info("search completed",
		"query", query,
		"generation", result.Generation,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", result.Cached,
	)
	h.writeJSON(w, http.StatusOK, result)
}

// Index serves POST /api/v1/index. The body replaces the whole corpus.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	var req proto.IndexRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIndexBody))
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := service.IndexRequest(r.Context(), h.svc, req)
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) Generation(w http.ResponseWriter, r *http.Request) {
	info, ok := h.svc.Generation()
	if !ok {
		h.writeError(w, http.StatusNotFound, "no index generation is active")
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Document(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Stats())
}

func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	path, err := h.svc.Snapshot("")
	if err != nil {
		h.logger.Error("snapshot failed", "error", err)
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// client went away; the status is never read
		status = 499
	}
	body := map[string]any{"error": err.Error(), "code": service.ErrorCode(err)}
	var mq *parser.MalformedQueryError
	if errors.As(err, &mq) {
		body["position"] = mq.Position
		body["reason"] = mq.Reason
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(ctx).Error("request failed", "error", err)
	}
	h.writeJSON(w, status, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
