package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/pagediag/config"
	"github.com/BaSui01/pagediag/diag/frames"
	"github.com/BaSui01/pagediag/diag/handle"
	"github.com/BaSui01/pagediag/page"
	"github.com/BaSui01/pagediag/types"
)

// Inaccessibility reasons reported for iframes.
const (
	reasonNoContentFrame = "no content frame"
	reasonBlocked        = "cross-origin or blocked"
	reasonTimeout        = "timeout"
)

// Analyzer inspects a live page's structure. It holds no cross-call
// state; every analysis is a fresh snapshot.
type Analyzer struct {
	pg      page.Page
	tracker *frames.Tracker
	handles *handle.Manager
	cfg     config.AnalyzerConfig
	logger  *zap.Logger
}

// New creates a structure analyzer bound to a page. Accessible iframes
// found during analysis are registered with the frame tracker; element
// handles acquired during probing go through the handle manager.
func New(pg page.Page, tracker *frames.Tracker, handles *handle.Manager, cfg config.AnalyzerConfig, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IframeProbeTimeout <= 0 {
		cfg.IframeProbeTimeout = time.Second
	}
	return &Analyzer{
		pg:      pg,
		tracker: tracker,
		handles: handles,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "analyzer")),
	}
}

// AnalyzeStructure runs the iframe, modal and element probes concurrently
// and merges their results. A failed probe zeroes its own section and is
// recorded in ProbeErrors; only a missing page fails the whole call.
func (a *Analyzer) AnalyzeStructure(ctx context.Context) (*types.PageStructureAnalysis, error) {
	if a.pg == nil {
		return nil, types.NewError(types.ErrConfiguration, "no live page to analyze").
			WithComponent(types.ComponentAnalyzer).
			WithOperation("analyze_structure")
	}

	var (
		iframes  types.IframeAnalysis
		modals   types.ModalStates
		elements types.ElementCounts
	)
	probeErrs := make([]string, 3)

	// Each probe writes its own slot and returns nil so siblings always
	// run to completion.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := a.probeIframes(gctx)
		if err != nil {
			probeErrs[0] = "iframe probe: " + err.Error()
			return nil
		}
		iframes = res
		return nil
	})
	g.Go(func() error {
		res, err := a.probeModals(gctx)
		if err != nil {
			probeErrs[1] = "modal probe: " + err.Error()
			return nil
		}
		modals = res
		return nil
	})
	g.Go(func() error {
		res, err := a.probeElements(gctx)
		if err != nil {
			probeErrs[2] = "element probe: " + err.Error()
			return nil
		}
		elements = res
		return nil
	})
	_ = g.Wait()

	analysis := &types.PageStructureAnalysis{
		Iframes:     iframes,
		ModalStates: modals,
		Elements:    elements,
		AnalyzedAt:  time.Now(),
	}
	for _, e := range probeErrs {
		if e != "" {
			analysis.ProbeErrors = append(analysis.ProbeErrors, e)
		}
	}
	if len(analysis.ProbeErrors) > 0 {
		a.logger.Warn("structure analysis degraded to partial results",
			zap.Strings("probe_errors", analysis.ProbeErrors))
	}
	return analysis, nil
}

// probeIframes enumerates iframe elements and classifies each by whether
// its content frame resolves and its URL reads within the probe timeout.
func (a *Analyzer) probeIframes(ctx context.Context) (types.IframeAnalysis, error) {
	els, err := a.pg.Query(ctx, "iframe")
	if err != nil {
		return types.IframeAnalysis{}, err
	}

	res := types.IframeAnalysis{
		Detected:     len(els) > 0,
		Count:        len(els),
		Accessible:   []types.IframeInfo{},
		Inaccessible: []types.IframeInfo{},
	}
	for _, el := range els {
		info, accessible := a.probeIframe(ctx, el)
		if accessible {
			res.Accessible = append(res.Accessible, info)
		} else {
			res.Inaccessible = append(res.Inaccessible, info)
		}
	}
	return res, nil
}

// probeIframe classifies a single iframe element. The element handle is
// always disposed, whatever path the probe takes.
func (a *Analyzer) probeIframe(ctx context.Context, el page.Element) (types.IframeInfo, bool) {
	h := a.handles.Track(el, "iframe probe")
	defer h.Dispose(ctx)

	frameCtx, cancel := context.WithTimeout(ctx, a.cfg.IframeProbeTimeout)
	defer cancel()

	f, err := el.ContentFrame(frameCtx)
	switch {
	case errors.Is(err, page.ErrNoContentFrame):
		return types.IframeInfo{Reason: reasonNoContentFrame}, false
	case errors.Is(err, context.DeadlineExceeded):
		return types.IframeInfo{Reason: reasonTimeout}, false
	case err != nil:
		return types.IframeInfo{Reason: reasonBlocked}, false
	}

	meta, err := a.tracker.Track(frameCtx, f)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return types.IframeInfo{FrameID: f.ID(), Reason: reasonTimeout}, false
		}
		return types.IframeInfo{FrameID: f.ID(), Reason: reasonBlocked}, false
	}
	return types.IframeInfo{FrameID: meta.FrameID, URL: meta.URL, Name: meta.Name}, true
}

func (a *Analyzer) probeModals(ctx context.Context) (types.ModalStates, error) {
	raw, err := a.pg.Eval(ctx, modalProbeScript)
	if err != nil {
		return types.ModalStates{}, err
	}
	var out struct {
		HasDialog      bool `json:"hasDialog"`
		HasFileChooser bool `json:"hasFileChooser"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return types.ModalStates{}, err
	}

	st := types.ModalStates{HasDialog: out.HasDialog, HasFileChooser: out.HasFileChooser}
	if out.HasDialog {
		st.BlockedBy = append(st.BlockedBy, "dialog")
	}
	if out.HasFileChooser {
		st.BlockedBy = append(st.BlockedBy, "fileChooser")
	}
	return st, nil
}

func (a *Analyzer) probeElements(ctx context.Context) (types.ElementCounts, error) {
	raw, err := a.pg.Eval(ctx, elementProbeScript)
	if err != nil {
		return types.ElementCounts{}, err
	}
	var out struct {
		TotalVisible      int `json:"totalVisible"`
		TotalInteractable int `json:"totalInteractable"`
		MissingAria       int `json:"missingAria"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return types.ElementCounts{}, err
	}
	return types.ElementCounts{
		TotalVisible:      out.TotalVisible,
		TotalInteractable: out.TotalInteractable,
		MissingAria:       out.MissingAria,
	}, nil
}
