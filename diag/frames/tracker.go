package frames

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/pagediag/config"
	"github.com/BaSui01/pagediag/internal/metrics"
	"github.com/BaSui01/pagediag/page"
	"github.com/BaSui01/pagediag/types"
)

// Reap reasons recorded against the frame_reaps_total metric.
const (
	reasonProbeFailed  = "probe_failed"
	reasonProbeTimeout = "probe_timeout"
	reasonUntracked    = "untracked"
)

// Tracker is an identity-keyed side table over the frames the engine has
// seen. It stores metadata only, never live frame references, so tracking
// a frame can never keep it alive. A background reaper probes liveness on
// a fixed interval and purges entries whose frames are gone.
type Tracker struct {
	pg  page.Page
	cfg config.FramesConfig

	mu    sync.Mutex
	table map[string]*types.FrameMetadata

	totalTracked  int64
	detachedTotal int64
	reapCycles    int64

	// reapMu serializes reap passes so the periodic reaper and on-demand
	// cleanup never probe the same snapshot twice.
	reapMu  sync.Mutex
	limiter *rate.Limiter

	disposed atomic.Bool
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewTracker creates a frame tracker and starts its reaper goroutine.
// Callers must Dispose the tracker to stop the reaper.
func NewTracker(pg page.Page, cfg config.FramesConfig, logger *zap.Logger, collector *metrics.Collector) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = time.Second
	}

	var limiter *rate.Limiter
	if cfg.ProbeRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ProbeRate), 1)
	}

	t := &Tracker{
		pg:      pg,
		cfg:     cfg,
		table:   make(map[string]*types.FrameMetadata),
		limiter: limiter,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger.With(zap.String("component", "frames")),
		metrics: collector,
	}
	go t.run()
	return t
}

// Track records or refreshes metadata for a frame. The frame reference is
// read once and not retained.
func (t *Tracker) Track(ctx context.Context, f page.Frame) (types.FrameMetadata, error) {
	return t.TrackChild(ctx, f, "")
}

// TrackChild records a frame together with its parent's ID, used when a
// frame was discovered inside another frame's subtree.
func (t *Tracker) TrackChild(ctx context.Context, f page.Frame, parentFrameID string) (types.FrameMetadata, error) {
	if t.disposed.Load() {
		return types.FrameMetadata{}, types.NewError(types.ErrDisposed, "frame tracker is disposed").
			WithComponent(types.ComponentFrames).
			WithOperation("track")
	}

	probeCtx, cancel := context.WithTimeout(ctx, t.cfg.ProbeTimeout)
	defer cancel()

	url, err := f.URL(probeCtx)
	if err != nil {
		return types.FrameMetadata{}, types.NewError(types.ErrAccess, "frame is not reachable").
			WithComponent(types.ComponentFrames).
			WithOperation("track").
			WithCause(err)
	}
	name, _ := f.Name(probeCtx)
	count, _ := f.ElementCount(probeCtx)

	now := time.Now()
	t.mu.Lock()
	m, ok := t.table[f.ID()]
	if !ok {
		m = &types.FrameMetadata{
			FrameID:   f.ID(),
			TrackedAt: now,
		}
		t.table[f.ID()] = m
		t.totalTracked++
	}
	m.URL = url
	m.Name = name
	m.ElementCount = count
	m.LastSeen = now
	m.IsDetached = false
	if parentFrameID != "" {
		m.ParentFrameID = parentFrameID
	}
	snapshot := *m
	active := t.activeLocked()
	t.mu.Unlock()

	t.metrics.RecordFrameCount(active)
	return snapshot, nil
}

// Untrack drops a frame from the side table.
func (t *Tracker) Untrack(frameID string) {
	t.mu.Lock()
	delete(t.table, frameID)
	active := t.activeLocked()
	t.mu.Unlock()
	t.metrics.RecordFrameCount(active)
}

// Get returns a copy of the tracked metadata for a frame ID. Detached
// frames stay queryable until the next reap pass purges them.
func (t *Tracker) Get(frameID string) (types.FrameMetadata, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.table[frameID]
	if !ok {
		return types.FrameMetadata{}, false
	}
	return *m, true
}

// ActiveCount reports frames currently considered attached.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeLocked()
}

func (t *Tracker) activeLocked() int {
	n := 0
	for _, m := range t.table {
		if !m.IsDetached {
			n++
		}
	}
	return n
}

// CleanupDetachedFrames runs one reap pass immediately and returns the
// number of frames marked detached. Safe to call while the periodic
// reaper is running.
func (t *Tracker) CleanupDetachedFrames(ctx context.Context) int {
	return t.reap(ctx, false)
}

// FindPerformanceIssues flags attached frames whose element load or
// tracked age crosses the configured thresholds.
func (t *Tracker) FindPerformanceIssues() []types.FrameIssue {
	t.mu.Lock()
	defer t.mu.Unlock()

	var issues []types.FrameIssue
	for _, m := range t.table {
		if m.IsDetached {
			continue
		}
		if m.ElementCount > t.cfg.ElementLoadThreshold {
			issues = append(issues, types.FrameIssue{
				FrameID: m.FrameID,
				URL:     m.URL,
				Kind:    "element_load",
				Message: fmt.Sprintf("frame holds %d elements (threshold %d)", m.ElementCount, t.cfg.ElementLoadThreshold),
			})
		}
		if age := m.Age(); age > t.cfg.MaxFrameAge {
			issues = append(issues, types.FrameIssue{
				FrameID: m.FrameID,
				URL:     m.URL,
				Kind:    "age",
				Message: fmt.Sprintf("frame tracked for %s (max %s)", age.Round(time.Second), t.cfg.MaxFrameAge),
			})
		}
	}
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].FrameID != issues[j].FrameID {
			return issues[i].FrameID < issues[j].FrameID
		}
		return issues[i].Kind < issues[j].Kind
	})
	return issues
}

// Stats returns the tracker's counters.
func (t *Tracker) Stats() types.FrameStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return types.FrameStats{
		ActiveFrames:   t.activeLocked(),
		DetachedFrames: int(t.detachedTotal),
		TotalTracked:   t.totalTracked,
		ReapCycles:     t.reapCycles,
	}
}

// Dispose stops the reaper and runs one final unpaced reap. Idempotent.
func (t *Tracker) Dispose() {
	t.stopOnce.Do(func() {
		t.disposed.Store(true)
		close(t.stop)
		<-t.done
		t.reap(context.Background(), false)
	})
}

func (t *Tracker) run() {
	defer close(t.done)
	ticker := time.NewTicker(t.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), t.cfg.ReapInterval)
			t.reap(ctx, true)
			cancel()
		}
	}
}

// reap probes every tracked frame's liveness and marks failures detached.
// Entries marked detached by an earlier pass are purged first, giving
// callers one cycle to inspect them. The frame references used for
// probing are re-resolved from the page each pass.
func (t *Tracker) reap(ctx context.Context, paced bool) int {
	t.reapMu.Lock()
	defer t.reapMu.Unlock()

	t.mu.Lock()
	for id, m := range t.table {
		if m.IsDetached {
			delete(t.table, id)
		}
	}
	ids := make([]string, 0, len(t.table))
	for id := range t.table {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	if len(ids) == 0 {
		t.finishCycle(nil)
		return 0
	}

	live, err := t.resolveLive(ctx)
	if err != nil {
		// Enumeration failure says nothing about individual frames; skip
		// the pass rather than wipe the table on a transient error.
		t.logger.Warn("frame enumeration failed, skipping reap pass", zap.Error(err))
		t.finishCycle(nil)
		return 0
	}

	reaped := make(map[string]string, len(ids))
	for _, id := range ids {
		f, ok := live[id]
		if !ok {
			reaped[id] = reasonUntracked
			continue
		}
		if paced && t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				break
			}
		}
		switch url, count, err := t.probe(ctx, f); {
		case err == nil:
			t.refresh(id, url, count)
		case errors.Is(err, context.DeadlineExceeded):
			reaped[id] = reasonProbeTimeout
		default:
			reaped[id] = reasonProbeFailed
		}
	}

	t.finishCycle(reaped)
	if len(reaped) > 0 {
		t.logger.Debug("marked frames detached", zap.Int("count", len(reaped)))
	}
	return len(reaped)
}

func (t *Tracker) resolveLive(ctx context.Context) (map[string]page.Frame, error) {
	enumCtx, cancel := context.WithTimeout(ctx, t.cfg.ProbeTimeout)
	defer cancel()

	fs, err := t.pg.Frames(enumCtx)
	if err != nil {
		return nil, err
	}
	live := make(map[string]page.Frame, len(fs))
	for _, f := range fs {
		live[f.ID()] = f
	}
	return live, nil
}

// probe reads a frame's URL and element count under the probe timeout.
// The URL read is the liveness verdict; the count read is best-effort and
// keeps FindPerformanceIssues working from fresh numbers between Track calls.
func (t *Tracker) probe(ctx context.Context, f page.Frame) (string, int, error) {
	probeCtx, cancel := context.WithTimeout(ctx, t.cfg.ProbeTimeout)
	defer cancel()
	url, err := f.URL(probeCtx)
	if err != nil {
		return "", 0, err
	}
	count, err := f.ElementCount(probeCtx)
	if err != nil {
		return url, -1, nil
	}
	return url, count, nil
}

func (t *Tracker) refresh(frameID, url string, count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.table[frameID]; ok {
		m.URL = url
		if count >= 0 {
			m.ElementCount = count
		}
		m.LastSeen = time.Now()
	}
}

// finishCycle applies reap verdicts under the lock and emits metrics.
func (t *Tracker) finishCycle(reaped map[string]string) {
	t.mu.Lock()
	for id := range reaped {
		if m, ok := t.table[id]; ok && !m.IsDetached {
			m.IsDetached = true
			t.detachedTotal++
		}
	}
	t.reapCycles++
	active := t.activeLocked()
	t.mu.Unlock()

	t.metrics.RecordFrameCount(active)
	for _, reason := range reaped {
		t.metrics.RecordFrameReap(reason)
	}
}
