package handle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/BaSui01/pagediag/internal/metrics"
	"github.com/BaSui01/pagediag/page"
	"github.com/BaSui01/pagediag/types"
)

// Options configures a Manager.
type Options struct {
	// HandleCap is the tracked-handle budget health checks alarm against.
	// Tracking beyond the cap still succeeds; the overage is reported, not
	// enforced, so diagnostics keep working on pathological pages.
	HandleCap int
	// DisposeConcurrency bounds how many disposals run against the page at
	// once during batch disposal.
	DisposeConcurrency int
	// DisposeRate paces batch disposal in releases per second. Zero means
	// unpaced.
	DisposeRate float64
}

// Manager tracks every page-side handle the engine acquires, accounting
// for leaks across long automation sessions. It is one of the two
// components holding cross-call state and is safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	active map[string]*SmartHandle

	peak            int
	totalTracked    int64
	disposeFailures int64

	opts    Options
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewManager creates a handle manager. A nil logger defaults to a noop
// logger; a nil collector disables metric recording.
func NewManager(opts Options, logger *zap.Logger, collector *metrics.Collector) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HandleCap <= 0 {
		opts.HandleCap = 500
	}
	if opts.DisposeConcurrency <= 0 {
		opts.DisposeConcurrency = 4
	}

	var limiter *rate.Limiter
	if opts.DisposeRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.DisposeRate), opts.DisposeConcurrency)
	}

	return &Manager{
		active:  make(map[string]*SmartHandle),
		opts:    opts,
		sem:     semaphore.NewWeighted(int64(opts.DisposeConcurrency)),
		limiter: limiter,
		logger:  logger.With(zap.String("component", "resources")),
		metrics: collector,
	}
}

// Track wraps an element into a SmartHandle and records it in the active
// set. The label shows up in logs and leak reports.
func (m *Manager) Track(el page.Element, label string) *SmartHandle {
	h := &SmartHandle{
		id:        uuid.NewString(),
		label:     label,
		el:        el,
		trackedAt: time.Now(),
		mgr:       m,
	}

	m.mu.Lock()
	m.active[h.id] = h
	m.totalTracked++
	if len(m.active) > m.peak {
		m.peak = len(m.active)
	}
	active, peak := len(m.active), m.peak
	overCap := active > m.opts.HandleCap
	m.mu.Unlock()

	m.metrics.RecordHandleCounts(active, peak)
	if overCap {
		m.logger.Warn("tracked handles exceed configured cap",
			zap.Int("active", active),
			zap.Int("cap", m.opts.HandleCap),
			zap.String("label", label),
		)
	}
	return h
}

// untrack removes a handle from the active set after disposal.
func (m *Manager) untrack(h *SmartHandle, disposeErr error) {
	m.mu.Lock()
	delete(m.active, h.id)
	if disposeErr != nil {
		m.disposeFailures++
	}
	active, peak := len(m.active), m.peak
	m.mu.Unlock()

	m.metrics.RecordHandleCounts(active, peak)
	m.metrics.RecordDisposal(disposeErr == nil)
}

// Stats returns the manager's counters.
func (m *Manager) Stats() types.HandleStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return types.HandleStats{
		ActiveCount:     len(m.active),
		PeakCount:       m.peak,
		TotalTracked:    m.totalTracked,
		DisposeFailures: m.disposeFailures,
	}
}

// UsageRatio reports active handles as a fraction of the configured cap.
func (m *Manager) UsageRatio() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(len(m.active)) / float64(m.opts.HandleCap)
}

// Cap returns the configured handle budget.
func (m *Manager) Cap() int { return m.opts.HandleCap }

// DisposeBatch disposes a set of handles with all-settled semantics: every
// handle gets a disposal attempt and one failure never blocks the rest.
// Disposal concurrency is bounded and paced so bulk cleanup cannot
// stampede the live page.
func (m *Manager) DisposeBatch(ctx context.Context, handles []*SmartHandle) {
	if len(handles) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, h := range handles {
		if h == nil || h.Disposed() {
			continue
		}

		if err := m.sem.Acquire(ctx, 1); err != nil {
			// Context ended; dispose the rest inline so nothing leaks.
			h.Dispose(ctx)
			continue
		}

		wg.Add(1)
		go func(h *SmartHandle) {
			defer wg.Done()
			defer m.sem.Release(1)
			if m.limiter != nil {
				_ = m.limiter.Wait(ctx)
			}
			h.Dispose(ctx)
		}(h)
	}
	wg.Wait()
}

// DisposeAll disposes every handle still in the active set. Used on
// teardown and safe to call repeatedly.
func (m *Manager) DisposeAll(ctx context.Context) {
	m.mu.Lock()
	remaining := make([]*SmartHandle, 0, len(m.active))
	for _, h := range m.active {
		remaining = append(remaining, h)
	}
	m.mu.Unlock()

	if len(remaining) > 0 {
		m.logger.Info("disposing remaining handles", zap.Int("count", len(remaining)))
	}
	m.DisposeBatch(ctx, remaining)
}
