// =============================================================================
// Package quick — One-Line Diagnostic System Construction
// =============================================================================
// Provides a convenience entry point for building a diagnostic System with
// minimal boilerplate. Delegates to diag.New with configuration, logging,
// and metrics resolved from options.
//
// The package lives under quick/ (not root) so the root package can re-export
// it without the leaf packages importing back up the tree.
//
// Usage:
//
//	import "github.com/BaSui01/pagediag/quick"
//
//	sys, err := quick.New(pg)
//	sys, err := quick.New(pg, quick.WithConfigFile("pagediag.yaml"), quick.WithLogging())
//	sys, err := quick.New(pg, quick.WithConfig(cfg), quick.WithMetrics(nil))
//
// =============================================================================
package quick

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/pagediag/config"
	"github.com/BaSui01/pagediag/diag"
	"github.com/BaSui01/pagediag/internal/metrics"
	"github.com/BaSui01/pagediag/page"
)

// Option configures the system created by New.
type Option func(*options)

type options struct {
	cfg     *config.Config
	cfgPath string
	logger  *zap.Logger

	// Flags resolved against the final config.
	configuredLog bool
	metricsOn     bool
	registerer    prometheus.Registerer
}

// WithConfig sets a pre-built configuration. Takes precedence over
// WithConfigFile.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithConfigFile loads the configuration from a YAML file, with PAGEDIAG_*
// environment variables applied on top.
func WithConfigFile(path string) Option {
	return func(o *options) { o.cfgPath = path }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithLogging builds a logger from the resolved configuration's log section.
// Ignored when WithLogger is also given.
func WithLogging() Option {
	return func(o *options) { o.configuredLog = true }
}

// WithMetrics enables Prometheus metrics on the given registerer. A nil
// registerer means the default one.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.metricsOn = true
		o.registerer = reg
	}
}

// New creates a diagnostic System bound to pg with minimal configuration.
func New(pg page.Page, opts ...Option) (*diag.System, error) {
	if pg == nil {
		return nil, fmt.Errorf("page is required")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	// Resolve configuration.
	cfg := o.cfg
	if cfg == nil && o.cfgPath != "" {
		loaded, err := config.NewLoader().WithConfigPath(o.cfgPath).Load()
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", o.cfgPath, err)
		}
		cfg = loaded
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	logger := o.logger
	if logger == nil && o.configuredLog {
		logger = config.NewLogger(cfg.Log)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var collector *metrics.Collector
	if o.metricsOn {
		namespace := cfg.Metrics.Namespace
		if namespace == "" {
			namespace = config.DefaultMetricsConfig().Namespace
		}
		collector = metrics.NewCollector(namespace, o.registerer, logger)
	}

	return diag.New(pg, cfg, logger, collector), nil
}
