// Package pagediag provides a top-level convenience entry point for building
// page diagnostic systems with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/pagediag"
//
//	sys, err := pagediag.New(rodpage.New(p))
//	sys, err := pagediag.New(pg, pagediag.WithConfigFile("pagediag.yaml"))
//	sys, err := pagediag.New(pg, pagediag.WithConfig(cfg), pagediag.WithMetrics(nil))
//
// This is a thin wrapper around [quick.New]; both produce identical results.
// Use this package when you prefer the shorter import path.
package pagediag

import (
	"github.com/BaSui01/pagediag/diag"
	"github.com/BaSui01/pagediag/page"
	"github.com/BaSui01/pagediag/quick"
)

// Option configures the system created by [New].
type Option = quick.Option

// New creates a [diag.System] bound to pg with minimal configuration.
// Components are constructed lazily on Init or the first operation.
func New(pg page.Page, opts ...Option) (*diag.System, error) {
	return quick.New(pg, opts...)
}

// Re-export construction options so callers never need to import quick/.

// WithConfig sets a pre-built configuration.
var WithConfig = quick.WithConfig

// WithConfigFile loads configuration from a YAML file plus PAGEDIAG_* env.
var WithConfigFile = quick.WithConfigFile

// WithLogger sets a custom zap logger.
var WithLogger = quick.WithLogger

// WithLogging builds a logger from the configuration's log section.
var WithLogging = quick.WithLogging

// WithMetrics enables Prometheus metrics on the given registerer.
var WithMetrics = quick.WithMetrics
