// Package server publishes the canonical feed file over HTTP and hosts the
// like-persistence and admin cleanup endpoints that write it back.
package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"webinar-directory/internal/cleanup"
	"webinar-directory/internal/config"
	"webinar-directory/internal/snapshot"
)

type Options struct {
	Config config.ServerConfig
	Writer *snapshot.FileWriter
	Job    *cleanup.Job
	// AdminHash is the hex SHA-256 of the admin password. Empty leaves
	// /api/admin open.
	AdminHash string
	// Schedule is a cron expression for the expired-record job.
	Schedule string
	Logger   *slog.Logger
	Now      func() time.Time
}

type Server struct {
	cfg       config.ServerConfig
	writer    *snapshot.FileWriter
	job       *cleanup.Job
	adminHash []byte
	schedule  string
	log       *slog.Logger
	now       func() time.Time

	feed    *feedCache
	metrics *metrics

	// one maintenance job at a time
	jobMu sync.Mutex
}

func New(opts Options) (*Server, error) {
	if opts.Writer == nil {
		return nil, errors.New("server: writer is required")
	}
	s := &Server{
		cfg:      opts.Config,
		writer:   opts.Writer,
		job:      opts.Job,
		schedule: opts.Schedule,
		log:      opts.Logger,
		now:      opts.Now,
		feed:     &feedCache{path: opts.Writer.Path},
		metrics:  newMetrics(),
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.cfg.MaxBodyBytes <= 0 {
		s.cfg.MaxBodyBytes = 10 << 20
	}
	if s.cfg.FeedRoute == "" {
		s.cfg.FeedRoute = "/webinars.json"
	}
	if s.job == nil {
		s.job = &cleanup.Job{Writer: opts.Writer, Logger: s.log, Now: s.now}
	}
	if opts.AdminHash != "" {
		h, err := hex.DecodeString(opts.AdminHash)
		if err != nil || len(h) != 32 {
			return nil, fmt.Errorf("server: admin hash must be 64 hex characters")
		}
		s.adminHash = h
	}

	if err := s.reloadFeed("startup"); err != nil {
		// the first save-likes or admin write creates it
		s.log.Warn("feed not loaded", "path", s.feed.path, "error", err)
	}
	return s, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)
	r.Use(s.logRequests)
	r.Use(s.metrics.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", s.metrics.handler())

	r.Get(s.cfg.FeedRoute, s.handleFeed)

	r.Route("/api", func(r chi.Router) {
		r.Get("/view", s.handleView)
		r.Post("/save-likes", s.handleSaveLikes)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/admin", s.handleAdmin)
		})
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully. The feed
// watcher and the cleanup schedule live for the same span.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.cfg.WatchFeed {
		if err := s.watchFeed(ctx); err != nil {
			s.log.Warn("feed watch disabled", "error", err)
		}
	}
	if s.schedule != "" {
		sched, err := s.startSchedule()
		if err != nil {
			return err
		}
		defer func() {
			if err := sched.Shutdown(); err != nil {
				s.log.Warn("scheduler shutdown", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.cfg.Addr, "feed", s.cfg.FeedRoute)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), timeout)
	defer cancelShutdown()
	s.log.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// reloadFeed refreshes the cached feed from disk. On failure the previous
// copy keeps being served.
func (s *Server) reloadFeed(reason string) error {
	n, err := s.feed.reload()
	if err != nil {
		s.metrics.feedReloads.WithLabelValues("error").Inc()
		return err
	}
	s.metrics.feedReloads.WithLabelValues("ok").Inc()
	s.metrics.feedRecords.Set(float64(n))
	s.log.Debug("feed reloaded", "reason", reason, "records", n)
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
