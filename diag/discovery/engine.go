package discovery

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/pagediag/config"
	"github.com/BaSui01/pagediag/diag/handle"
	"github.com/BaSui01/pagediag/internal/metrics"
	"github.com/BaSui01/pagediag/page"
	"github.com/BaSui01/pagediag/types"
)

// Engine 在既有选择器失效后,按搜索条件重新发现候选元素。
// 每次调用无状态:四个策略并发执行,单个策略失败只丢弃它自己的候选。
type Engine struct {
	pg      page.Page
	handles *handle.Manager
	cfg     config.DiscoveryConfig
	logger  *zap.Logger
	metrics *metrics.Collector
}

// New 创建元素发现引擎。logger 为 nil 时使用 Nop。
func New(pg page.Page, handles *handle.Manager, cfg config.DiscoveryConfig, logger *zap.Logger, collector *metrics.Collector) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := config.DefaultDiscoveryConfig()
	if cfg.DefaultMaxResults <= 0 {
		cfg.DefaultMaxResults = def.DefaultMaxResults
	}
	if cfg.MaxResultsCap <= 0 || cfg.MaxResultsCap > config.MaxResultsHardCap {
		cfg.MaxResultsCap = config.MaxResultsHardCap
	}
	if cfg.MinTextSimilarity <= 0 {
		cfg.MinTextSimilarity = def.MinTextSimilarity
	}
	return &Engine{
		pg:      pg,
		handles: handles,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "discovery")),
		metrics: collector,
	}
}

// FindAlternatives 并发运行条件涉及的策略,合成选择器去重后按置信度
// 降序返回至多 maxResults 个候选。返回的句柄所有权归调用方;
// 未返回的候选句柄在本调用内全部释放。
func (e *Engine) FindAlternatives(ctx context.Context, criteria types.SearchCriteria, maxResults int) ([]types.AlternativeElement, error) {
	if e.pg == nil {
		return nil, types.NewError(types.ErrConfiguration, "element discovery requires a live page").
			WithComponent(types.ComponentDiscovery)
	}
	if criteria.Empty() {
		return nil, types.NewError(types.ErrConfiguration, "at least one search criterion must be set").
			WithComponent(types.ComponentDiscovery)
	}
	limit := e.effectiveLimit(maxResults)

	type strategyRun struct {
		name string
		run  func(context.Context) ([]candidate, error)
	}
	var runs []strategyRun
	if criteria.Text != "" {
		runs = append(runs, strategyRun{"text", func(ctx context.Context) ([]candidate, error) {
			return e.textStrategy(ctx, criteria.Text, limit)
		}})
	}
	if criteria.Role != "" {
		runs = append(runs, strategyRun{"role", func(ctx context.Context) ([]candidate, error) {
			return e.roleStrategy(ctx, criteria.Role, limit)
		}})
	}
	if criteria.TagName != "" {
		runs = append(runs, strategyRun{"tag", func(ctx context.Context) ([]candidate, error) {
			return e.tagStrategy(ctx, criteria.TagName, limit)
		}})
	}
	if len(criteria.Attributes) > 0 {
		runs = append(runs, strategyRun{"attribute", func(ctx context.Context) ([]candidate, error) {
			return e.attributeStrategy(ctx, criteria.Attributes, limit)
		}})
	}

	// 策略并发执行,各写各的结果槽;失败只记日志,不取消其余策略
	results := make([][]candidate, len(runs))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range runs {
		g.Go(func() error {
			cands, err := r.run(gctx)
			if err != nil {
				e.logger.Warn("discovery strategy failed",
					zap.String("strategy", r.name),
					zap.Error(err),
				)
				return nil
			}
			results[i] = cands
			e.metrics.RecordDiscoveryCandidates(r.name, len(cands))
			return nil
		})
	}
	_ = g.Wait()

	var all []candidate
	for _, cands := range results {
		all = append(all, cands...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].confidence > all[j].confidence })

	// 合成选择器并以其去重;超出上限或重复的候选当场释放
	syn := &synthesizer{pg: e.pg}
	seen := make(map[string]struct{}, len(all))
	alts := make([]types.AlternativeElement, 0, min(limit, len(all)))
	for _, c := range all {
		if len(alts) >= limit {
			c.handle.Dispose(ctx)
			continue
		}
		sel, err := syn.selectorFor(ctx, c.handle)
		if err != nil {
			e.logger.Debug("selector synthesis failed",
				zap.String("strategy", c.strategy),
				zap.Error(err),
			)
			c.handle.Dispose(ctx)
			continue
		}
		if _, dup := seen[sel]; dup {
			c.handle.Dispose(ctx)
			continue
		}
		seen[sel] = struct{}{}
		alts = append(alts, types.AlternativeElement{
			Selector:   sel,
			Confidence: c.confidence,
			Reason:     c.reason,
			ElementID:  c.handle.Element().ID(),
			Handle:     c.handle,
		})
	}

	e.logger.Debug("discovery finished",
		zap.Int("strategies", len(runs)),
		zap.Int("candidates", len(all)),
		zap.Int("returned", len(alts)),
	)
	return alts, nil
}

// effectiveLimit 归一化 maxResults:非正值用默认,上限受硬顶约束。
func (e *Engine) effectiveLimit(maxResults int) int {
	if maxResults <= 0 {
		maxResults = e.cfg.DefaultMaxResults
	}
	return min(maxResults, e.cfg.MaxResultsCap)
}

// capCandidates 将策略产出裁剪到上限,置信度低的先被释放。
func (e *Engine) capCandidates(ctx context.Context, cands []candidate, limit int) []candidate {
	if len(cands) <= limit {
		return cands
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].confidence > cands[j].confidence })
	for _, c := range cands[limit:] {
		c.handle.Dispose(ctx)
	}
	return cands[:limit]
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
