// Package http exposes a read-only inspection API over persisted runs.
// It never touches the gateway: it is an operational window, not a
// control surface.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/skein"
	"github.com/aretw0/skein/internal/logging"
	"github.com/aretw0/skein/pkg/domain"
	"github.com/aretw0/skein/pkg/ports"
	"github.com/aretw0/skein/pkg/record"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves run documents from a store.
type Server struct {
	store  ports.RunStore
	logger *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewHandler creates the HTTP handler over a run store. The /metrics
// endpoint serves the default Prometheus registry.
func NewHandler(store ports.RunStore, opts ...Option) http.Handler {
	s := &Server{
		store:  store,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Get("/runs", s.listRuns)
	r.Get("/runs/{runID}", s.getRun)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": skein.Version,
	})
}

// runSummary is the list-view projection of a run document.
type runSummary struct {
	ID          string           `json:"id"`
	Status      domain.RunStatus `json:"status,omitempty"`
	Invocations int              `json:"invocations"`
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("list runs: %w", err))
		return
	}

	summaries := make([]runSummary, 0, len(ids))
	for _, id := range ids {
		summary := runSummary{ID: id}
		if data, err := s.store.Load(r.Context(), id); err == nil {
			if doc, err := record.Decode(data); err == nil {
				summary.Status = doc.Status
				summary.Invocations = len(doc.Invocations)
			}
		}
		summaries = append(summaries, summary)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": summaries})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	data, err := s.store.Load(r.Context(), runID)
	if errors.Is(err, domain.ErrRunNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("load run: %w", err))
		return
	}

	doc, err := record.Decode(data)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("decode run: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("Response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Warn("Request failed", "status", status, "err", err)
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
