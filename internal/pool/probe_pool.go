// Package pool provides a bounded worker pool for page probes.
// This package is internal and should not be imported by external projects.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrPoolClosed = errors.New("probe pool is closed")
	ErrPoolFull   = errors.New("probe pool queue is full")
)

// Probe is one unit of page inspection work. Probes run against a live
// page and must honor context cancellation; a probe that loses a timeout
// race keeps running in the background and is responsible for releasing
// whatever handles it acquired.
type Probe func(ctx context.Context) error

// ProbePool bounds how many probes run against the page at once. Remote
// pages degrade badly under unbounded concurrent evaluation, so parallel
// analysis dispatches its per-frame work through this pool instead of
// spawning one goroutine per frame.
type ProbePool struct {
	maxWorkers  int
	queue       chan probeJob
	workerCount atomic.Int32
	closed      atomic.Bool
	wg          sync.WaitGroup

	// Counters feeding types.WorkerStats.
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64

	panicHandler func(any)
}

type probeJob struct {
	probe  Probe
	ctx    context.Context
	result chan error
}

// Config sizes the pool.
type Config struct {
	MaxWorkers   int
	QueueSize    int
	PanicHandler func(any)
}

// DefaultConfig returns sizing suited to per-frame analysis probes.
func DefaultConfig() Config {
	return Config{
		MaxWorkers: 4,
		QueueSize:  64,
	}
}

// New creates a probe pool.
func New(cfg Config) *ProbePool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultConfig().MaxWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	return &ProbePool{
		maxWorkers:   cfg.MaxWorkers,
		queue:        make(chan probeJob, cfg.QueueSize),
		panicHandler: cfg.PanicHandler,
	}
}

// Submit enqueues a probe without waiting for it. Returns ErrPoolFull when
// the queue is saturated; callers fall back to running inline.
func (p *ProbePool) Submit(ctx context.Context, probe Probe) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.submitted.Add(1)

	job := probeJob{probe: probe, ctx: ctx}
	select {
	case p.queue <- job:
		p.ensureWorker()
		return nil
	default:
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

// SubmitWait enqueues a probe and blocks until it finishes or ctx ends.
func (p *ProbePool) SubmitWait(ctx context.Context, probe Probe) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.submitted.Add(1)

	job := probeJob{
		probe:  probe,
		ctx:    ctx,
		result: make(chan error, 1),
	}

	select {
	case p.queue <- job:
		p.ensureWorker()
	case <-ctx.Done():
		p.rejected.Add(1)
		return ctx.Err()
	}

	select {
	case err := <-job.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunAll dispatches every probe through the pool and waits for the whole
// batch. Probe errors are collected, not short-circuited: one frame failing
// to analyze must not abandon the remaining frames. The returned slice is
// indexed like probes; nil entries mean success.
func (p *ProbePool) RunAll(ctx context.Context, probes []Probe) []error {
	results := make([]error, len(probes))
	var wg sync.WaitGroup

	for i, probe := range probes {
		wg.Add(1)
		go func(i int, probe Probe) {
			defer wg.Done()
			results[i] = p.SubmitWait(ctx, probe)
		}(i, probe)
	}

	wg.Wait()
	return results
}

func (p *ProbePool) ensureWorker() {
	for {
		current := p.workerCount.Load()
		if current >= int32(p.maxWorkers) {
			return
		}
		if p.workerCount.CompareAndSwap(current, current+1) {
			p.wg.Add(1)
			go p.worker()
			return
		}
	}
}

func (p *ProbePool) worker() {
	defer p.wg.Done()
	defer p.workerCount.Add(-1)

	for job := range p.queue {
		err := p.runProbe(job)

		if job.result != nil {
			job.result <- err
			close(job.result)
		}

		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
	}
}

func (p *ProbePool) runProbe(job probeJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if p.panicHandler != nil {
				p.panicHandler(r)
			}
			err = errors.New("probe panicked")
		}
	}()

	if job.ctx != nil {
		if ctxErr := job.ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return job.probe(job.ctx)
}

// Close drains the pool and waits for in-flight probes.
func (p *ProbePool) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.queue)
	p.wg.Wait()
}

// Workers reports how many workers are currently alive.
func (p *ProbePool) Workers() int {
	return int(p.workerCount.Load())
}

// Stats returns a counter snapshot.
func (p *ProbePool) Stats() Stats {
	return Stats{
		Workers:   int(p.workerCount.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Workers   int
	Queued    int
	Submitted int64
	Completed int64
	Failed    int64
	Rejected  int64
}
