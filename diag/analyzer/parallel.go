package analyzer

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/pagediag/internal/pool"
	"github.com/BaSui01/pagediag/page"
	"github.com/BaSui01/pagediag/types"
)

// ShouldUseParallelAnalysis scores page complexity and recommends whether
// the parallel analysis path is worth its overhead. The score weighs
// iframes heaviest since each one multiplies probe work. Evaluation
// failure recommends parallel: when the page cannot even be scored, the
// monitored path is the safer one.
func (a *Analyzer) ShouldUseParallelAnalysis(ctx context.Context) types.ParallelRecommendation {
	failure := types.ParallelRecommendation{
		UseParallel: true,
		Reason:      "complexity evaluation failed, defaulting to parallel analysis",
	}
	if a.pg == nil {
		return failure
	}

	raw, err := a.pg.Eval(ctx, complexityScript)
	if err != nil {
		a.logger.Warn("complexity evaluation failed", zap.Error(err))
		return failure
	}
	var out struct {
		ElementCount     int `json:"elementCount"`
		IframeCount      int `json:"iframeCount"`
		FormElementCount int `json:"formElementCount"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		a.logger.Warn("complexity payload malformed", zap.Error(err))
		return failure
	}

	score := out.ElementCount + out.IframeCount*100 + out.FormElementCount*10
	switch {
	case score > a.cfg.ComplexityStrong:
		return types.ParallelRecommendation{
			UseParallel: true,
			Strongly:    true,
			Score:       score,
			Reason:      "High page complexity",
		}
	case score > a.cfg.ComplexityRecommend:
		return types.ParallelRecommendation{
			UseParallel: true,
			Score:       score,
			Reason:      "Moderate page complexity",
		}
	default:
		return types.ParallelRecommendation{
			Score:  score,
			Reason: "Sequential analysis sufficient",
		}
	}
}

// AnalyzeStructureParallel runs the standard three probes, then dispatches
// a per-frame sub-analysis for every accessible iframe through a bounded
// worker pool. One frame failing to analyze never abandons the rest; its
// slot carries the error instead.
func (a *Analyzer) AnalyzeStructureParallel(ctx context.Context) (*types.ParallelAnalysisResult, error) {
	start := time.Now()

	base, err := a.AnalyzeStructure(ctx)
	if err != nil {
		return nil, err
	}

	workers := a.cfg.ParallelWorkers
	if workers <= 0 {
		workers = pool.DefaultConfig().MaxWorkers
	}
	p := pool.New(pool.Config{
		MaxWorkers: workers,
		QueueSize:  len(base.Iframes.Accessible) + 1,
		PanicHandler: func(v any) {
			a.logger.Error("frame analysis probe panicked", zap.Any("panic", v))
		},
	})
	defer p.Close()

	accessible := base.Iframes.Accessible
	frameResults := make([]types.FrameAnalysis, len(accessible))

	// Resolve live frames once; every probe works off this snapshot.
	live := a.liveFrames(ctx)

	probes := make([]pool.Probe, len(accessible))
	for i, info := range accessible {
		i, info := i, info
		probes[i] = func(ctx context.Context) error {
			frameResults[i] = a.analyzeFrame(ctx, info, live[info.FrameID])
			return nil
		}
	}
	for i, err := range p.RunAll(ctx, probes) {
		if err != nil {
			frameResults[i] = types.FrameAnalysis{
				FrameID: accessible[i].FrameID,
				URL:     accessible[i].URL,
				Err:     err.Error(),
			}
		}
	}

	stats := p.Stats()
	return &types.ParallelAnalysisResult{
		PageStructureAnalysis: *base,
		FrameResults:          frameResults,
		WorkersUsed:           stats.Workers,
		Duration:              time.Since(start),
		Workers: types.WorkerStats{
			Submitted: stats.Submitted,
			Completed: stats.Completed,
			Failed:    stats.Failed,
			Rejected:  stats.Rejected,
		},
	}, nil
}

func (a *Analyzer) liveFrames(ctx context.Context) map[string]page.Frame {
	fs, err := a.pg.Frames(ctx)
	if err != nil {
		a.logger.Warn("frame enumeration failed for parallel analysis", zap.Error(err))
		return nil
	}
	live := make(map[string]page.Frame, len(fs))
	for _, f := range fs {
		live[f.ID()] = f
	}
	return live
}

// analyzeFrame measures one accessible frame. The tracker's record is
// refreshed on success so FindPerformanceIssues sees current load numbers.
func (a *Analyzer) analyzeFrame(ctx context.Context, info types.IframeInfo, f page.Frame) (fa types.FrameAnalysis) {
	start := time.Now()
	fa = types.FrameAnalysis{FrameID: info.FrameID, URL: info.URL}
	defer func() { fa.Duration = time.Since(start) }()

	if f == nil {
		fa.Err = "frame no longer attached"
		return fa
	}

	frameCtx, cancel := context.WithTimeout(ctx, a.cfg.IframeProbeTimeout)
	defer cancel()

	count, err := f.ElementCount(frameCtx)
	if err != nil {
		fa.Err = err.Error()
		return fa
	}
	fa.ElementCount = count

	if _, err := a.tracker.Track(frameCtx, f); err != nil {
		a.logger.Debug("frame refresh after analysis failed",
			zap.String("frame_id", info.FrameID), zap.Error(err))
	}
	return fa
}
