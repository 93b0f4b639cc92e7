// internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/middleman/internal/config"
	"github.com/xkilldash9x/middleman/internal/flow"
	"github.com/xkilldash9x/middleman/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const shutdownGracePeriod = 30 * time.Second

// Driver runs the externally driven session flow.
type Driver interface {
	Start(ctx context.Context, location string) (*session.Handle, error)
	Round(ctx context.Context, id string, supplied map[string]string) (*flow.Outcome, error)
}

// Reaper releases abandoned sessions.
type Reaper interface {
	Reap(ctx context.Context, maxIdle time.Duration) int
	CloseAll(ctx context.Context)
}

// Server is the HTTP front of the externally driven flow.
type Server struct {
	logger      *zap.Logger
	cfg         config.ServerConfig
	idleTimeout time.Duration
	driver      Driver
	reaper      Reaper
	now         func() time.Time
}

// NewServer creates a Server. Sessions idle for longer than idleTimeout are
// released; zero disables reaping.
func NewServer(logger *zap.Logger, cfg config.ServerConfig, idleTimeout time.Duration, driver Driver, reaper Reaper) *Server {
	return &Server{
		logger:      logger.Named("server"),
		cfg:         cfg,
		idleTimeout: idleTimeout,
		driver:      driver,
		reaper:      reaper,
		now:         time.Now,
	}
}

// Handler builds the router with its middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the endpoints on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleHome)
	r.Get("/start", s.handleStart)
	r.Post("/link/{id}", s.handleLink)
}

// Run serves until ctx is done, then shuts down and releases every session.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Server listening.", zap.String("address", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGracePeriod)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown error.", zap.Error(err))
		}
		s.reaper.CloseAll(shutdownCtx)
		return nil
	})
	g.Go(func() error {
		s.reapLoop(gctx)
		return nil
	})
	return g.Wait()
}

func (s *Server) reapInterval() time.Duration {
	interval := s.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}
	return interval
}

func (s *Server) reapLoop(ctx context.Context) {
	if s.idleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(s.reapInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.reaper.Reap(ctx, s.idleTimeout); n > 0 {
				s.logger.Info("Released idle sessions.", zap.Int("count", n))
			}
		}
	}
}
