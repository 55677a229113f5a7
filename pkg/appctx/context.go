// Package appctx provides the application context that holds all runtime dependencies.
package appctx

import (
	"mkv-relay-go/pkg/config"
	"mkv-relay-go/pkg/logging"
	"mkv-relay-go/pkg/metrics"
	"mkv-relay-go/pkg/services"
)

// Context holds all application runtime dependencies.
// Pass this single struct to components instead of individual parameters.
type Context struct {
	Config        *config.Config
	Log           *logging.Logger
	StreamService *services.StreamService
	Metrics       *metrics.Metrics
	BaseURL       string
}

// New creates a new application context.
func New(cfg *config.Config, log *logging.Logger) *Context {
	return &Context{
		Config:  cfg,
		Log:     log,
		BaseURL: cfg.BaseURL,
	}
}

// WithStreamService sets the stream service.
func (c *Context) WithStreamService(s *services.StreamService) *Context {
	c.StreamService = s
	return c
}

// WithMetrics sets the metrics collectors.
func (c *Context) WithMetrics(m *metrics.Metrics) *Context {
	c.Metrics = m
	return c
}
