package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lazypower/tether/internal/alerts"
	"github.com/lazypower/tether/internal/engine"
	"github.com/lazypower/tether/internal/store"
	"go.uber.org/zap"
)

// Server is the tether HTTP API server.
type Server struct {
	engine  *engine.Engine
	log     *zap.Logger
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server over the engine.
func New(eng *engine.Engine, log *zap.Logger, version string) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		engine:  eng,
		log:     log,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/interactions", s.handleLogInteraction)
			r.Post("/values", s.handleDeclareValue)
			r.Post("/focus-areas", s.handleDeclareFocusArea)

			r.Get("/summary", s.handleSummary)
			r.Get("/summary/weekly", s.handleWeeklySummary)
			r.Get("/focus-areas/progress", s.handleFocusProgress)
			r.Get("/patterns", s.handlePatterns)
			r.Get("/streak", s.handleStreak)

			r.Get("/alerts", s.handleListAlerts)
			r.Post("/alerts/check", s.handleCheckAlerts)

			r.Get("/drift/alerts", s.handleDriftAlerts)
			r.Get("/drift/realtime", s.handleDriftRealTime)

			r.Get("/relationships/top", s.handleTopRelationships)
			r.Get("/relationships/neglected", s.handleNeglectedRelationships)
			r.Get("/insights", s.handleInsights)
		})

		r.Post("/alerts/{alertID}/acknowledge", s.handleAcknowledgeAlert)
		r.Post("/alerts/{alertID}/dismiss", s.handleDismissAlert)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.engine.DB.PingContext(r.Context()); err != nil {
		dbOK = false
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.engine.DB.Path,
	})
}

// logRequests logs one line per request at debug, or at warn for 5xx.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		}
		if ww.Status() >= http.StatusInternalServerError {
			s.log.Warn("request failed", fields...)
			return
		}
		s.log.Debug("request", fields...)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes and writes {"error": ...}.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalid), errors.Is(err, alerts.ErrUnknownType), errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case r.Context().Err() != nil:
		// Client went away; nobody reads this.
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.log.Error("handler error", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
