// Package api provides HTTP handlers for the relay API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"mkv-relay-go/pkg/appctx"
	"mkv-relay-go/pkg/extractors"
	"mkv-relay-go/pkg/logging"
	"mkv-relay-go/pkg/middleware"
	"mkv-relay-go/pkg/types"

	"github.com/gorilla/mux"
)

// Version is reported by the index and info endpoints.
const Version = "1.0.0"

// Error messages returned to clients.
const (
	msgNotFound         = "MKV URL not found"
	msgMovieFetchFailed = "Failed to fetch movie stream"
	msgTVFetchFailed    = "Failed to fetch TV stream"
	msgRouteNotFound    = "not found"
	msgMethodNotAllowed = "method not allowed"
)

// Handlers contains all API handlers.
type Handlers struct {
	ctx *appctx.Context
	log *logging.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ctx *appctx.Context) *Handlers {
	return &Handlers{
		ctx: ctx,
		log: ctx.Log.WithComponent("api"),
	}
}

// RegisterRoutes registers all API routes.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	// Public routes
	r.HandleFunc("/", h.handleIndex).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/api/info", h.handleAPIInfo).Methods(http.MethodGet, http.MethodHead)

	// Stream routes
	r.HandleFunc("/movie/{id}", h.handleMovie).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/tv/{id}/{season}/{episode}", h.handleEpisode).Methods(http.MethodGet, http.MethodHead)

	if h.ctx.Metrics != nil {
		r.Handle("/metrics", h.ctx.Metrics.Handler()).Methods(http.MethodGet, http.MethodHead)
	}

	r.NotFoundHandler = h.unmatched(h.handleNotFound)
	r.MethodNotAllowedHandler = h.unmatched(h.handleMethodNotAllowed)
}

// unmatched wraps a fallback handler so requests no route accepted are still
// counted.
func (h *Handlers) unmatched(fn http.HandlerFunc) http.Handler {
	if h.ctx.Metrics == nil {
		return fn
	}
	return middleware.Metrics(h.ctx.Metrics)(fn)
}

// handleIndex lists the service routes.
func (h *Handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	routes := []string{
		"GET /movie/{id}",
		"GET /tv/{id}/{season}/{episode}",
		"GET /api/info",
	}
	if h.ctx.Metrics != nil {
		routes = append(routes, "GET /metrics")
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":     "mkv-relay",
		"version":  Version,
		"upstream": h.ctx.Config.UpstreamBaseURL,
		"routes":   routes,
	})
}

// handleAPIInfo returns server status as JSON.
func (h *Handlers) handleAPIInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "running",
		"version": Version,
	})
}

// handleMovie resolves /movie/{id}.
func (h *Handlers) handleMovie(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")

	ctx, cancel := h.resolveContext(r)
	defer cancel()

	env, err := h.ctx.StreamService.ResolveMovie(ctx, id)
	h.writeResolveResult(w, r, env, err, msgMovieFetchFailed)
}

// handleEpisode resolves /tv/{id}/{season}/{episode}.
func (h *Handlers) handleEpisode(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	season := pathVar(r, "season")
	episode := pathVar(r, "episode")

	ctx, cancel := h.resolveContext(r)
	defer cancel()

	env, err := h.ctx.StreamService.ResolveEpisode(ctx, id, season, episode)
	h.writeResolveResult(w, r, env, err, msgTVFetchFailed)
}

// resolveContext bounds a resolve so its response is written before the
// server's write deadline closes the connection.
func (h *Handlers) resolveContext(r *http.Request) (context.Context, context.CancelFunc) {
	if budget := h.ctx.Config.ResolveTimeout(); budget > 0 {
		return context.WithTimeout(r.Context(), budget)
	}
	return context.WithCancel(r.Context())
}

func (h *Handlers) handleNotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, http.StatusNotFound, msgRouteNotFound)
}

func (h *Handlers) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
}

// writeResolveResult maps a resolution outcome to a response: the envelope on
// success, 404 when the page had no .mkv URL, 500 for everything else.
func (h *Handlers) writeResolveResult(w http.ResponseWriter, r *http.Request, env *types.StreamEnvelope, err error, fetchFailedMsg string) {
	if err == nil {
		h.writeJSON(w, http.StatusOK, env)
		return
	}

	if errors.Is(err, extractors.ErrNoMKV) {
		h.writeError(w, http.StatusNotFound, msgNotFound)
		return
	}

	details := err.Error()
	var fetchErr *extractors.FetchError
	if errors.As(err, &fetchErr) {
		details = fetchErr.Error()
	}

	logging.FromContext(r.Context()).Debug("responding with fetch failure", "details", details)
	h.writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{
		Error:   fetchFailedMsg,
		Details: details,
	})
}

// pathVar returns a decoded path variable. The router matches on the encoded
// path so an escaped slash stays inside one segment.
func pathVar(r *http.Request, name string) string {
	raw := mux.Vars(r)[name]
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Warn("failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, types.ErrorResponse{Error: message})
}
