// Package app provides the main application setup and dependency injection.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"mkv-relay-go/pkg/appctx"
	"mkv-relay-go/pkg/config"
	"mkv-relay-go/pkg/extractors"
	"mkv-relay-go/pkg/flaresolverr"
	"mkv-relay-go/pkg/handlers/api"
	"mkv-relay-go/pkg/httpclient"
	"mkv-relay-go/pkg/interfaces"
	"mkv-relay-go/pkg/logging"
	"mkv-relay-go/pkg/metrics"
	"mkv-relay-go/pkg/server"
	"mkv-relay-go/pkg/services"
)

// App is the main application container.
type App struct {
	Ctx        *appctx.Context
	Server     *server.Server
	HTTPClient *httpclient.Client

	logCloser io.Closer
}

// New creates and initializes the application.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg), nil
}

// NewWithConfig wires the application from an already loaded configuration.
func NewWithConfig(cfg *config.Config) *App {
	var out io.Writer
	var logCloser io.Closer
	if cfg.LogFile != "" {
		out, logCloser = logging.NewFileWriter(logging.FileOptions{
			Path:       cfg.LogFile,
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAgeDays: cfg.LogMaxAgeDays,
			Compress:   cfg.LogCompress,
		})
	}

	log := logging.New(cfg.LogLevel, cfg.LogJSON, out)
	log.Info("initializing mkv-relay", "port", cfg.Port, "log_level", cfg.LogLevel, "upstream", cfg.UpstreamBaseURL)

	ctx := appctx.New(cfg, log)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
		ctx.WithMetrics(m)
	}

	httpClient := httpclient.New(cfg, log)

	extractor := extractors.NewMKVExtractor(pageFetcher(cfg, log, httpClient), log)
	ctx.WithStreamService(services.NewStreamService(log, extractor, cfg.UpstreamBaseURL, m))

	srv := server.New(cfg, log, m)
	api.NewHandlers(ctx).RegisterRoutes(srv.Router())

	return &App{
		Ctx:        ctx,
		Server:     srv,
		HTTPClient: httpClient,
		logCloser:  logCloser,
	}
}

// pageFetcher picks how upstream pages are retrieved. FlareSolverr takes over
// when configured, otherwise pages are fetched directly.
func pageFetcher(cfg *config.Config, log *logging.Logger, client *httpclient.Client) interfaces.PageFetcher {
	if cfg.FlareSolverrURL != "" {
		log.Info("FlareSolverr client enabled", "url", cfg.FlareSolverrURL)
		return flaresolverr.NewClient(cfg.FlareSolverrURL, cfg.FlareSolverrTimeout, log)
	}
	return client
}

// Run starts the application.
func (a *App) Run() error {
	a.Ctx.Log.Info("starting mkv-relay server", "port", a.Ctx.Config.Port)
	return a.Server.Start()
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() {
	a.Ctx.Log.Info("shutting down application")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(ctx); err != nil {
		a.Ctx.Log.WithError(err).Warn("server shutdown")
	}

	a.HTTPClient.Close()

	if a.logCloser != nil {
		a.logCloser.Close()
	}
}
