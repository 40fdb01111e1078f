package enrich

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/pagediag/config"
	"github.com/BaSui01/pagediag/diag/analyzer"
	"github.com/BaSui01/pagediag/diag/discovery"
	"github.com/BaSui01/pagediag/types"
)

// BatchContext describes where in a multi-step batch the failure happened.
type BatchContext struct {
	FailedStep     int      `json:"failed_step"`
	TotalSteps     int      `json:"total_steps"`
	CompletedSteps []string `json:"completed_steps,omitempty"`
}

// Enricher augments failures with fresh page context and remediation
// suggestions. Enrichment never replaces the failure: the original error is
// always carried as the cause with its message preserved, and any error
// during enrichment itself degrades to pattern-only suggestions.
type Enricher struct {
	analyzer  *analyzer.Analyzer
	discovery *discovery.Engine
	cfg       config.EnrichmentConfig
	logger    *zap.Logger
}

// New creates an enricher over the given analyzer and discovery engine.
func New(an *analyzer.Analyzer, disc *discovery.Engine, cfg config.EnrichmentConfig, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := config.DefaultEnrichmentConfig()
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = def.MaxSuggestions
	}
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = def.GatherTimeout
	}
	if cfg.LongExecution <= 0 {
		cfg.LongExecution = def.LongExecution
	}
	return &Enricher{
		analyzer:  an,
		discovery: disc,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "enrichment")),
	}
}

// ElementNotFound enriches a failed element lookup. A fresh structure
// analysis and a discovery pass over criteria extracted from the failed
// selector run concurrently; candidates found become a suggestion and their
// handles are released before returning.
func (e *Enricher) ElementNotFound(ctx context.Context, original error, selector string) *types.Error {
	sugg := matchPatterns(original)
	sugg = append(sugg, selectorRules(selector)...)

	analysis, alts := e.gather(ctx, selector, true)
	defer types.ReleaseAlternatives(ctx, alts)

	if analysis != nil {
		sugg = append(sugg, analysisRules(analysis)...)
	}
	if len(alts) > 0 {
		sugg = append(sugg, fmt.Sprintf("%d alternative element(s) found; best candidate %q (confidence %.2f)",
			len(alts), alts[0].Selector, alts[0].Confidence))
	}

	return e.base(original, types.ErrNotFound, "element lookup").
		WithSuggestions(dedupe(sugg, e.cfg.MaxSuggestions)...)
}

// Timeout enriches an operation timeout with execution context.
func (e *Enricher) Timeout(ctx context.Context, original error, op string, elapsed time.Duration) *types.Error {
	sugg := matchPatterns(original)
	sugg = append(sugg, e.executionRules(op, elapsed)...)

	analysis, _ := e.gather(ctx, "", false)
	if analysis != nil {
		sugg = append(sugg, analysisRules(analysis)...)
	}

	return e.base(original, types.ErrTimeout, op).
		WithExecutionTime(elapsed).
		WithSuggestions(dedupe(sugg, e.cfg.MaxSuggestions)...)
}

// BatchFailure enriches a failure inside a multi-step batch.
func (e *Enricher) BatchFailure(ctx context.Context, original error, batch BatchContext) *types.Error {
	sugg := matchPatterns(original)
	if batch.TotalSteps > 0 {
		sugg = append(sugg, fmt.Sprintf("step %d of %d failed after %d completed step(s); rerun from the failed step",
			batch.FailedStep, batch.TotalSteps, len(batch.CompletedSteps)))
	}

	analysis, _ := e.gather(ctx, "", false)
	if analysis != nil {
		sugg = append(sugg, analysisRules(analysis)...)
	}

	return e.base(original, types.ErrInternal, "batch execution").
		WithSuggestions(dedupe(sugg, e.cfg.MaxSuggestions)...)
}

// ForOperation routes an already-structured operation failure to the
// enrichment path matching its code. Timeouts and lookup failures gather
// fresh page context; every other code gets message-pattern suggestions
// appended in place.
func (e *Enricher) ForOperation(ctx context.Context, original *types.Error, op string, elapsed time.Duration) *types.Error {
	if original == nil {
		return nil
	}
	switch original.Code {
	case types.ErrTimeout:
		return e.Timeout(ctx, original, op, elapsed)
	case types.ErrNotFound:
		return e.ElementNotFound(ctx, original, "")
	default:
		if sugg := matchPatterns(original); len(sugg) > 0 {
			original.Suggestions = dedupe(append(original.Suggestions, sugg...), e.cfg.MaxSuggestions)
		}
		return original
	}
}

// base builds the enriched error shell. Message and code of a structured
// original are preserved unmodified; the original always remains the cause.
func (e *Enricher) base(original error, fallback types.ErrorCode, op string) *types.Error {
	code := fallback
	msg := ""
	if orig := types.AsError(original); orig != nil {
		code = orig.Code
		msg = orig.Message
	} else if original != nil {
		msg = original.Error()
	}
	return types.NewError(code, msg).WithOperation(op).WithCause(original)
}

// gather collects fresh page context under the gather timeout. Any failure
// here is logged and degrades to nil results, never propagated.
func (e *Enricher) gather(ctx context.Context, selector string, withDiscovery bool) (*types.PageStructureAnalysis, []types.AlternativeElement) {
	gctx, cancel := context.WithTimeout(ctx, e.cfg.GatherTimeout)
	defer cancel()

	var (
		analysis *types.PageStructureAnalysis
		alts     []types.AlternativeElement
	)
	g, groupCtx := errgroup.WithContext(gctx)
	if e.analyzer != nil {
		g.Go(func() error {
			res, err := e.analyzer.AnalyzeStructure(groupCtx)
			if err != nil {
				e.logger.Debug("enrichment analysis failed", zap.Error(err))
				return nil
			}
			analysis = res
			return nil
		})
	}
	if withDiscovery && e.discovery != nil {
		if criteria := criteriaFromSelector(selector); !criteria.Empty() {
			g.Go(func() error {
				found, err := e.discovery.FindAlternatives(groupCtx, criteria, e.cfg.MaxSuggestions)
				if err != nil {
					e.logger.Debug("enrichment discovery failed", zap.Error(err))
					return nil
				}
				alts = found
				return nil
			})
		}
	}
	_ = g.Wait()
	return analysis, alts
}

// executionRules derives advice from how and how long the operation ran.
func (e *Enricher) executionRules(op string, elapsed time.Duration) []string {
	var sugg []string
	if elapsed > e.cfg.LongExecution {
		sugg = append(sugg, fmt.Sprintf("operation ran %s; consider raising the component timeout or splitting the work", elapsed.Round(time.Millisecond)))
	}
	if opTouchesFrames(op) {
		sugg = append(sugg, "the operation touches iframes; verify frame accessibility and cross-origin restrictions")
	}
	return sugg
}

// selectorRules flags selector shapes that break across renders.
func selectorRules(selector string) []string {
	var sugg []string
	if strings.Contains(selector, "#") {
		sugg = append(sugg, "id-based selectors break when ids are generated; prefer stable data attributes")
	}
	if strings.Contains(selector, ":nth-child") || strings.Contains(selector, ":nth-of-type") {
		sugg = append(sugg, "positional selectors break when page structure shifts; anchor on attributes instead")
	}
	return sugg
}

// analysisRules derives advice from a fresh structural snapshot.
func analysisRules(a *types.PageStructureAnalysis) []string {
	var sugg []string
	if a.ModalStates.HasDialog {
		sugg = append(sugg, "an open dialog may be blocking interaction; dismiss it first")
	}
	if a.ModalStates.HasFileChooser {
		sugg = append(sugg, "an open file chooser intercepts page input")
	}
	if n := len(a.Iframes.Inaccessible); n > 0 {
		sugg = append(sugg, fmt.Sprintf("%d iframe(s) are inaccessible; the element may live inside one of them", n))
	}
	return sugg
}

func opTouchesFrames(op string) bool {
	lower := strings.ToLower(op)
	return strings.Contains(lower, "frame")
}

var (
	leadTagRe  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]*`)
	attrPairRe = regexp.MustCompile(`\[([a-zA-Z_-][a-zA-Z0-9_-]*)="([^"]*)"\]`)
)

// criteriaFromSelector extracts search criteria from a failed selector: a
// leading tag and quoted attribute pairs. Id fragments are ignored, the id
// is dead by definition when the lookup failed.
func criteriaFromSelector(selector string) types.SearchCriteria {
	c := types.SearchCriteria{}
	if tag := leadTagRe.FindString(selector); tag != "" {
		c.TagName = tag
	}
	for _, m := range attrPairRe.FindAllStringSubmatch(selector, -1) {
		if m[1] == "id" {
			continue
		}
		if c.Attributes == nil {
			c.Attributes = map[string]string{}
		}
		c.Attributes[m[1]] = m[2]
	}
	return c
}

// dedupe removes repeated suggestions, preserving first-seen order, and
// caps the result.
func dedupe(sugg []string, limit int) []string {
	seen := make(map[string]struct{}, len(sugg))
	out := make([]string, 0, min(limit, len(sugg)))
	for _, s := range sugg {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}
