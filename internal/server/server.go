// Package server serves rendered templates over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/quill/internal/watch"
	"github.com/leapstack-labs/quill/pkg/engine"
)

// Defaults used when the corresponding Config field is zero.
const (
	DefaultShutdownTimeout = 5 * time.Second
	DefaultMaxBody         = 1 << 20
)

// Config holds configuration for the server.
type Config struct {
	Engine *engine.Engine
	Addr   string
	// Watcher, if set, builds a watcher that calls notify for each changed
	// template. It runs for the lifetime of the server.
	Watcher         func(notify watch.Handler) *watch.Watcher
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// MaxBody bounds the size of a request body.
	MaxBody int64
	Logger  *slog.Logger
}

// Server renders templates on request.
type Server struct {
	engine          *engine.Engine
	addr            string
	watcher         func(notify watch.Handler) *watch.Watcher
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	maxBody         int64
	logger          *slog.Logger
	notifier        *notifier
}

// New creates a server.
func New(cfg Config) *Server {
	s := &Server{
		engine:          cfg.Engine,
		addr:            cfg.Addr,
		watcher:         cfg.Watcher,
		readTimeout:     cfg.ReadTimeout,
		writeTimeout:    cfg.WriteTimeout,
		shutdownTimeout: cfg.ShutdownTimeout,
		maxBody:         cfg.MaxBody,
		logger:          cfg.Logger,
		notifier:        newNotifier(),
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = DefaultShutdownTimeout
	}
	if s.maxBody <= 0 {
		s.maxBody = DefaultMaxBody
	}
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RealIP,
		s.requestLogger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Get("/healthz", s.handleHealth)
	r.Get("/events", s.handleEvents)
	r.Get("/templates", s.handleList)
	r.Get("/templates/*", s.handleDescribe)
	r.Get("/render/*", s.handleRender)
	r.Post("/render/*", s.handleRender)
	return r
}

// Notify tells the event streams that the template called name changed.
func (s *Server) Notify(name string) {
	s.notifier.broadcast(name)
}

// Serve listens on the configured address and blocks until ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting server", "addr", "http://"+ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
	}

	if s.watcher != nil {
		w := s.watcher(s.Notify)
		eg.Go(func() error {
			return w.Run(egctx, nil)
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		s.logger.Debug("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// requestLogger logs one line per request at debug level, or at warn level
// for server errors.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"render_id", ww.Header().Get(RenderIDHeader),
			"duration", time.Since(start),
		)
	})
}
