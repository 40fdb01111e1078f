package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/pagediag/types"
)

// AnalyzePerformanceMetrics walks the full element tree once and derives
// size, interaction, resource and layout metrics. It never returns an
// error: any failure produces zeroed metrics carrying a single
// danger-level warning, because a broken metrics pass must not take the
// diagnosis down with it.
func (a *Analyzer) AnalyzePerformanceMetrics(ctx context.Context) *types.PerformanceMetrics {
	m := &types.PerformanceMetrics{CollectedAt: time.Now()}
	if a.pg == nil {
		m.Warnings = collectionFailure("no live page")
		return m
	}

	script := fmt.Sprintf(performanceScript,
		a.cfg.LargeSubtreeThreshold, a.cfg.HighZIndex, a.cfg.ExtremeZIndex)
	raw, err := a.pg.Eval(ctx, script)
	if err != nil {
		a.logger.Warn("performance metrics collection failed", zap.Error(err))
		m.Warnings = collectionFailure(err.Error())
		return m
	}

	var out struct {
		TotalElements    int `json:"totalElements"`
		MaxDepth         int `json:"maxDepth"`
		LargeSubtrees    int `json:"largeSubtrees"`
		Clickable        int `json:"clickable"`
		FormElements     int `json:"formElements"`
		DisabledElements int `json:"disabledElements"`
		Images           int `json:"images"`
		Scripts          int `json:"scripts"`
		Stylesheets      int `json:"stylesheets"`
		FixedPosition    int `json:"fixedPosition"`
		HighZIndex       int `json:"highZIndex"`
		ExtremeZIndex    int `json:"extremeZIndex"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		a.logger.Warn("performance metrics payload malformed", zap.Error(err))
		m.Warnings = collectionFailure(err.Error())
		return m
	}

	m.DOM = types.DOMMetrics{
		TotalElements: out.TotalElements,
		MaxDepth:      out.MaxDepth,
		LargeSubtrees: out.LargeSubtrees,
	}
	m.Interaction = types.InteractionMetrics{
		ClickableElements: out.Clickable,
		FormElements:      out.FormElements,
		DisabledElements:  out.DisabledElements,
	}
	m.Resources = types.ResourceMetrics{
		Images:      out.Images,
		Scripts:     out.Scripts,
		Stylesheets: out.Stylesheets,
	}
	m.Layout = types.LayoutMetrics{
		FixedPositionElements: out.FixedPosition,
		HighZIndexElements:    out.HighZIndex,
		ExtremeZIndexElements: out.ExtremeZIndex,
	}
	m.Warnings = a.thresholdWarnings(out.TotalElements, out.MaxDepth)
	return m
}

func collectionFailure(detail string) []types.PerformanceWarning {
	return []types.PerformanceWarning{{
		Type:    "collection",
		Level:   types.WarnLevelDanger,
		Message: "metrics collection failed: " + detail,
	}}
}

// thresholdWarnings grades element count and depth against the two-tier
// thresholds. At most one warning per dimension, the worse tier wins.
func (a *Analyzer) thresholdWarnings(totalElements, maxDepth int) []types.PerformanceWarning {
	var ws []types.PerformanceWarning
	switch {
	case totalElements > a.cfg.ElementDanger:
		ws = append(ws, types.PerformanceWarning{
			Type:    "element_count",
			Level:   types.WarnLevelDanger,
			Message: fmt.Sprintf("page has %d elements (danger threshold %d)", totalElements, a.cfg.ElementDanger),
		})
	case totalElements > a.cfg.ElementWarning:
		ws = append(ws, types.PerformanceWarning{
			Type:    "element_count",
			Level:   types.WarnLevelWarning,
			Message: fmt.Sprintf("page has %d elements (warning threshold %d)", totalElements, a.cfg.ElementWarning),
		})
	}
	switch {
	case maxDepth > a.cfg.DepthDanger:
		ws = append(ws, types.PerformanceWarning{
			Type:    "dom_depth",
			Level:   types.WarnLevelDanger,
			Message: fmt.Sprintf("DOM nesting depth %d (danger threshold %d)", maxDepth, a.cfg.DepthDanger),
		})
	case maxDepth > a.cfg.DepthWarning:
		ws = append(ws, types.PerformanceWarning{
			Type:    "dom_depth",
			Level:   types.WarnLevelWarning,
			Message: fmt.Sprintf("DOM nesting depth %d (warning threshold %d)", maxDepth, a.cfg.DepthWarning),
		})
	}
	return ws
}
