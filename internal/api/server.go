package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/okharin/mv-parser/internal/metrics"
	"github.com/okharin/mv-parser/internal/scrape"
	"github.com/okharin/mv-parser/internal/service"
	"github.com/okharin/mv-parser/internal/status"
	"github.com/okharin/mv-parser/internal/store"
	"github.com/okharin/mv-parser/internal/urlsource"
)

// ParseJob starts and stops scraping runs. *service.Parser is the production
// implementation.
type ParseJob interface {
	Start(category string, force bool, limit int) (string, error)
	Stop() error
}

// UpdateJob starts and stops sitemap refreshes. *service.URLUpdater is the
// production implementation.
type UpdateJob interface {
	Start() error
	Stop() error
}

// Config tunes the HTTP server.
type Config struct {
	// RequestTimeout bounds handler execution.
	RequestTimeout time.Duration
	// StaleAfter is the heartbeat age past which an active job is flagged
	// stalled in status responses.
	StaleAfter time.Duration
}

// Server wires HTTP handlers to the background services and the product
// store.
type Server struct {
	router        chi.Router
	parser        ParseJob
	updater       UpdateJob
	store         store.Store
	parserStatus  *status.Tracker
	updaterStatus *status.Tracker
	clock         scrape.Clock
	cfg           Config
	logger        *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	parser ParseJob,
	updater UpdateJob,
	st store.Store,
	parserStatus *status.Tracker,
	updaterStatus *status.Tracker,
	clock scrape.Clock,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if st == nil {
		st = store.Noop{}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		parser:        parser,
		updater:       updater,
		store:         st,
		parserStatus:  parserStatus,
		updaterStatus: updaterStatus,
		clock:         clock,
		cfg:           cfg,
		logger:        logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Post("/parse/{category}", s.startParse)
	r.Post("/update-urls", s.startURLUpdate)
	r.Post("/stop/parser", s.stopParser)
	r.Post("/stop/url-updater", s.stopURLUpdater)
	r.Get("/status/parser", s.getParserStatus)
	r.Get("/status/url-updater", s.getUpdaterStatus)
	r.Get("/products", s.listProducts)
	r.Get("/products/{product_id}", s.getProduct)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// startParse handles POST /parse/{category}?force=&limit=. It replies 202
// with the run ID, 409 while a run is active, 404 for categories without a
// link file, and 400 for malformed parameters.
func (s *Server) startParse(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")

	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid force")
			return
		}
		force = parsed
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	runID, err := s.parser.Start(category, force, limit)
	if err != nil {
		s.writeStartError(w, err, "parse job already running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id":   runID,
		"category": category,
		"status":   "started",
	})
}

// startURLUpdate handles POST /update-urls: 202 on accept, 409 while a
// refresh is active.
func (s *Server) startURLUpdate(w http.ResponseWriter, _ *http.Request) {
	if err := s.updater.Start(); err != nil {
		s.writeStartError(w, err, "url update already running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) stopParser(w http.ResponseWriter, _ *http.Request) {
	s.stopJob(w, s.parser.Stop, "parse job is not running")
}

func (s *Server) stopURLUpdater(w http.ResponseWriter, _ *http.Request) {
	s.stopJob(w, s.updater.Stop, "url update is not running")
}

// stopJob replies 200 {"status":"stopping"} or 409 when the job is idle.
func (s *Server) stopJob(w http.ResponseWriter, stop func() error, idleMsg string) {
	if err := stop(); err != nil {
		if errors.Is(err, service.ErrNotRunning) {
			writeError(w, http.StatusConflict, idleMsg)
			return
		}
		s.logger.Error("stop job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to stop job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) writeStartError(w http.ResponseWriter, err error, busyMsg string) {
	switch {
	case errors.Is(err, service.ErrBusy):
		writeError(w, http.StatusConflict, busyMsg)
	case errors.Is(err, urlsource.ErrUnknownCategory):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, urlsource.ErrInvalidCategory):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("start job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// jobStatusResponse is a tracker snapshot plus the derived stalled flag.
type jobStatusResponse struct {
	status.Snapshot
	Stalled bool `json:"stalled"`
}

func (s *Server) getParserStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeTrackerStatus(w, s.parserStatus)
}

func (s *Server) getUpdaterStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeTrackerStatus(w, s.updaterStatus)
}

func (s *Server) writeTrackerStatus(w http.ResponseWriter, tracker *status.Tracker) {
	if tracker == nil {
		writeError(w, http.StatusServiceUnavailable, "status tracking unavailable")
		return
	}
	snap := tracker.Snapshot()
	writeJSON(w, http.StatusOK, jobStatusResponse{
		Snapshot: snap,
		Stalled:  snap.Stalled(s.now(), s.cfg.StaleAfter),
	})
}

func (s *Server) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock.Now()
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
