// Package api provides the HTTP surface used by the UI and sync layers.
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jask/smsledger/internal/database/repository"
	"github.com/jask/smsledger/internal/logger"
	"github.com/jask/smsledger/internal/sms"
	"github.com/jask/smsledger/internal/service"
)

// maxBody bounds request bodies; batches of a few thousand messages fit.
const maxBody = 16 << 20

// Server is the smsledger HTTP API server.
type Server struct {
	DB         *sql.DB
	Engine     *service.Engine
	Reconciler *service.Reconciler
	Merchants  *service.MerchantService
	// Gatherer backs /metrics; nil leaves the route unmounted.
	Gatherer prometheus.Gatherer
	// Location decides day boundaries for /v1/summary.
	Location *time.Location
	Log      zerolog.Logger
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.Log))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/classify", s.handleClassify)

		r.Post("/messages", s.handleIngest)
		r.Post("/messages/batch", s.handleBatch)

		r.Post("/maintenance/dedup", s.handleDedup)

		r.Get("/categories", s.handleListCategories)
		r.Post("/categories", s.handleCreateCategory)
		r.Delete("/categories/{id}", s.handleDeleteCategory)

		r.Route("/merchants/{name}", func(r chi.Router) {
			r.Get("/transactions", s.handleMerchantTransactions)
			r.Put("/category", s.handleRecategorize)
			r.Put("/exclusion", s.handleExclusion)
		})

		r.Get("/summary", s.handleSummary)
	})

	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func (s *Server) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// merchantParam returns the {name} segment, unescaped.
func merchantParam(r *http.Request) string {
	name := chi.URLParam(r, "name")
	if u, err := url.PathUnescape(name); err == nil {
		return u
	}
	return name
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeFault maps domain errors onto status codes. Anything unrecognised is
// logged and reported as a 500 without leaking the cause.
func writeFault(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sms.ErrMalformedMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrSystemCategory):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
