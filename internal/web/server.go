// Package web serves the status page, metrics and the run trigger over HTTP.
package web

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sweeney/bed-scheduler/internal/metrics"
	"github.com/sweeney/bed-scheduler/internal/runner"
	"github.com/sweeney/bed-scheduler/internal/status"
)

// Runner executes one scheduling pass. Implementations serialise runs.
type Runner interface {
	Run(ctx context.Context, override *time.Time) (runner.Report, error)
}

// Options configures a Server.
type Options struct {
	Addr    string
	Tracker *status.Tracker
	Runner  Runner
	Metrics *metrics.Collector
	Logger  *zap.Logger

	// TriggerSecret guards POST /run. The route is not mounted when empty.
	TriggerSecret string
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	runner     Runner
	secret     string
	logger     *zap.Logger
}

// New creates a Server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		tracker: opts.Tracker,
		runner:  opts.Runner,
		secret:  opts.TriggerSecret,
		logger:  logger,
	}

	m := opts.Metrics
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/", m.WrapHandler("/", http.HandlerFunc(s.handleIndex)))
	r.Method(http.MethodGet, "/index.html", m.WrapHandler("/index.html", http.HandlerFunc(s.handleIndex)))
	r.Method(http.MethodGet, "/index.json", m.WrapHandler("/index.json", http.HandlerFunc(s.handleJSON)))
	r.Method(http.MethodGet, "/healthz", m.WrapHandler("/healthz", http.HandlerFunc(handleHealth)))
	r.Method(http.MethodGet, "/metrics", m.Handler())
	if s.secret != "" && s.runner != nil {
		r.Method(http.MethodPost, "/run", m.WrapHandler("/run", http.HandlerFunc(s.handleRun)))
	}

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.logger.Warn("render status page", zap.Error(err))
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) authorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.secret)) == 1
}

// handleRun triggers a run. testTime (unix seconds) makes it a dry run at
// that instant.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var override *time.Time
	if raw := r.URL.Query().Get("testTime"); raw != "" {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "testTime must be unix seconds")
			return
		}
		t := time.Unix(sec, 0).UTC()
		override = &t
	}

	// The run outlives a caller that disconnects or times out.
	rep, err := s.runner.Run(context.WithoutCancel(r.Context()), override)
	if err != nil {
		s.logger.Error("triggered run failed", zap.String("run_id", rep.RunID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, RunResponse{
			Success: false,
			RunID:   rep.RunID,
			Error:   err.Error(),
			Results: []status.ProfileJSON{},
		})
		return
	}

	writeJSON(w, http.StatusOK, RunResponse{
		Success: true,
		RunID:   rep.RunID,
		DryRun:  rep.DryRun,
		Results: status.ProfilesJSON(status.ReportStates(rep)),
	})
}
