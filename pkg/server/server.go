// Package server provides the HTTP server implementation.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mkv-relay-go/pkg/config"
	"mkv-relay-go/pkg/logging"
	"mkv-relay-go/pkg/metrics"
	"mkv-relay-go/pkg/middleware"

	"github.com/gorilla/mux"
)

// Server is the main HTTP server.
type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	log        *logging.Logger
	router     *mux.Router
}

// New creates a new server with the given configuration. When m is non-nil
// every routed request is counted.
func New(cfg *config.Config, log *logging.Logger, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:    cfg,
		log:    log.WithComponent("server"),
		router: mux.NewRouter().UseEncodedPath(),
	}

	if m != nil {
		s.router.Use(middleware.Metrics(m))
	}

	return s
}

// Router returns the server's router for registering handlers.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the router wrapped in the middleware chain. Call it after
// all routes are registered.
func (s *Server) Handler() http.Handler {
	return middleware.Chain(
		s.router,
		middleware.Recovery(s.log),
		middleware.RequestID,
		middleware.Logging(s.log),
		middleware.CORS,
		middleware.CanonicalPath(s.literalPrefixes()...),
	)
}

// literalPrefixes returns the fixed leading part of every registered route
// template, e.g. "/movie" for "/movie/{id}".
func (s *Server) literalPrefixes() []string {
	var prefixes []string
	s.router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		tmpl, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}
		if i := strings.Index(tmpl, "{"); i >= 0 {
			tmpl = tmpl[:i]
		}
		tmpl = strings.TrimSuffix(tmpl, "/")
		if tmpl != "" {
			prefixes = append(prefixes, tmpl)
		}
		return nil
	})
	return prefixes
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	// Graceful shutdown
	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		s.log.Info("server shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Error("server shutdown error", "error", err)
		}
		close(done)
	}()

	s.log.Info("server starting", "port", s.cfg.Port, "url", s.cfg.BaseURL)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	s.log.Info("server stopped")
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
