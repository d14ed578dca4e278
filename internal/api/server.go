// Package api provides the HTTP server for the points ledger.
// It is a thin transport shell: every handler decodes, calls the ledger
// service once, and encodes the result.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/pointsledger/pointsledger/internal/app/ledger"
	"github.com/pointsledger/pointsledger/internal/domain"
)

// Wire messages returned to HTTP clients.
const (
	msgNegativeBalance   = "Invalid transactions, at least one payer has a negative balance"
	msgNoPointsSpent     = "No points spent"
	msgTooFewPoints      = "Too few points to spend"
	msgInternal          = "internal error"
	legacyNoPointsPayer  = "NO POINTS"
	legacyNoPointsAmount = -1
)

// Server is the ledger HTTP API server.
type Server struct {
	ledger             *ledger.Service
	log                logrus.FieldLogger
	validate           *validator.Validate
	metricsEnabled     bool
	legacyEmptyBalance bool
	timeout            time.Duration
}

// NewServer creates a new API server.
func NewServer(svc *ledger.Service, log logrus.FieldLogger) *Server {
	return &Server{
		ledger:   svc,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		timeout:  30 * time.Second,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// EnableLegacyEmptyBalance makes GET /balance answer an empty ledger with
// {"NO POINTS": -1} instead of 204 No Content.
func (s *Server) EnableLegacyEmptyBalance() { s.legacyEmptyBalance = true }

// SetTimeout sets the per-request timeout.
func (s *Server) SetTimeout(d time.Duration) { s.timeout = d }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	// Ledger endpoints
	r.Post("/points", s.handleAddPoints)
	r.Get("/balance", s.handleBalance)
	r.Put("/spend", s.handleSpend)
	r.Get("/balance_times", s.handleRecords)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"detail": msg,
	})
}

// writeLedgerError maps ledger errors to status codes and wire messages.
func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNegativeBalance):
		writeError(w, http.StatusBadRequest, msgNegativeBalance)
	case errors.Is(err, domain.ErrNoPointsRequested):
		writeError(w, http.StatusBadRequest, msgNoPointsSpent)
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, msgTooFewPoints)
	case errors.Is(err, domain.ErrInvalidRecord):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.log.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
			"error":      err.Error(),
		}).Error("ledger operation failed")
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

// requestLogger logs one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
			}).Debug("request")
		}()
		next.ServeHTTP(ww, r)
	})
}
