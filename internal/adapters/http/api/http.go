// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/okian/aggregator/internal/domain/dedupe"
	"github.com/okian/aggregator/internal/domain/ingest"
	"github.com/okian/aggregator/internal/domain/model"
	"github.com/okian/aggregator/internal/domain/stats"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	PublishDependencies
	EventsDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	publishHandler *PublishHandler
	eventsHandler  *EventsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...PublishOption) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(deps),
		publishHandler: NewPublishHandler(deps, opts...),
		eventsHandler:  NewEventsHandler(deps),
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	if r == nil {
		panic("router is nil")
	}
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	r.Get("/events", MetricsMiddleware(s.eventsHandler.HandleGetEvents, "events"))
	r.Post("/publish", MetricsMiddleware(s.publishHandler.HandlePublish, "publish"))
}

// NewRouter returns a chi router with the standard middleware stack and every
// API route registered.
func NewRouter(ctx context.Context, deps Dependencies, opts ...PublishOption) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	NewServer(deps, opts...).Register(ctx, r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type eventsResponse struct {
	Events []model.Record `json:"events"`
}

type publishResponse = ingest.Result

type statsResponse = stats.Report

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDependencyError maps an upstream failure to a response. Store
// failures are reported as unavailable; anything else is internal.
func writeDependencyError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, dedupe.ErrStore) {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", WrapKind(op, ErrUnavailable, err))
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", WrapKind(op, ErrInternal, err))
}
