// =============================================================================
// 🎯 PageDiag 统一诊断编排器
// =============================================================================
// System 把句柄跟踪、frame 跟踪、结构分析、元素发现与错误增强编排为
// 一个绑定单页面的诊断引擎:分阶段初始化、统一的操作执行包装、运行
// 统计与健康检查。
//
// 使用方法:
//
//	sys := diag.New(pg, cfg, logger, collector)
//	defer sys.Dispose(ctx)
//
//	res := sys.AnalyzePageStructure(ctx, false)
//	if res.Success {
//	    analysis, _ := diag.ResultDataAs[*types.PageStructureAnalysis](res)
//	    ...
//	}
// =============================================================================
package diag

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/pagediag/config"
	"github.com/BaSui01/pagediag/internal/metrics"
	"github.com/BaSui01/pagediag/page"
	"github.com/BaSui01/pagediag/types"
)

// System 是绑定单个页面会话的诊断编排器。生命周期:
// uninitialized → initializing → ready,失败进入 failed 并缓存初始化
// 错误,此后每次调用重新抛出;disposed 为终态,释放后的操作返回
// DISPOSED 结果而非 panic。
type System struct {
	pg        page.Page
	logger    *zap.Logger
	collector *metrics.Collector

	// cfgMu 保护共享配置。操作入口取克隆快照,运行中的操作不受并发
	// UpdateConfiguration 影响。
	cfgMu sync.RWMutex
	cfg   *config.Config

	// stateMu 保护生命周期状态、组件集与已构建阶段表
	stateMu sync.Mutex
	state   types.SystemState
	initErr *types.Error
	comps   componentSet
	built   []stageTuple

	initGroup singleflight.Group

	parallelReady atomic.Bool

	stats     *statsBook
	tuner     *tuner
	startedAt time.Time
}

// New 构建绑定 pg 的诊断系统。cfg 为 nil 时使用默认配置;传入的配置
// 会被克隆并补齐零值字段,构造后外部修改不影响系统。组件要到 Init
// (或首个操作隐式触发)才真正构造。
func New(pg page.Page, cfg *config.Config, logger *zap.Logger, collector *metrics.Collector) *System {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = normalizeConfig(cfg)
	return &System{
		pg:        pg,
		logger:    logger.With(zap.String("component", "system")),
		collector: collector,
		cfg:       cfg,
		state:     types.StateUninitialized,
		stats:     newStatsBook(cfg.System.HistoryLimit),
		tuner:     newTuner(cfg.Adaptive),
		startedAt: time.Now(),
	}
}

// normalizeConfig 克隆配置并为系统直接消费的零值字段补默认值。
// 组件级配置由各组件构造器自行补齐。
func normalizeConfig(cfg *config.Config) *config.Config {
	if cfg == nil {
		return config.DefaultConfig()
	}
	out := cfg.Clone()

	sdef := config.DefaultSystemConfig()
	if out.System.DefaultTimeout <= 0 {
		out.System.DefaultTimeout = sdef.DefaultTimeout
	}
	if out.System.HistoryLimit <= 0 {
		out.System.HistoryLimit = sdef.HistoryLimit
	}

	hdef := config.DefaultHealthConfig()
	if out.Health.HandleUsageRatio <= 0 {
		out.Health.HandleUsageRatio = hdef.HandleUsageRatio
	}
	if out.Health.ErrorRateThreshold <= 0 {
		out.Health.ErrorRateThreshold = hdef.ErrorRateThreshold
	}
	if out.Health.AvgExecutionThreshold <= 0 {
		out.Health.AvgExecutionThreshold = hdef.AvgExecutionThreshold
	}

	adef := config.DefaultAdaptiveConfig()
	if out.Adaptive.Window <= 0 {
		out.Adaptive.Window = adef.Window
	}
	if out.Adaptive.MinSamples <= 0 {
		out.Adaptive.MinSamples = adef.MinSamples
	}
	if out.Adaptive.Multiplier < 1 {
		out.Adaptive.Multiplier = adef.Multiplier
	}
	if out.Adaptive.MinTimeout <= 0 {
		out.Adaptive.MinTimeout = adef.MinTimeout
	}
	if out.Adaptive.MaxTimeout <= 0 {
		out.Adaptive.MaxTimeout = adef.MaxTimeout
	}
	return out
}

// =============================================================================
// 🧬 生命周期
// =============================================================================

// Init 执行分阶段初始化。幂等;首个操作会隐式调用。并发调用共享同一
// 次初始化尝试,所有调用者观察到相同结果。
func (s *System) Init(ctx context.Context) error {
	if err, settled := s.settledState(); settled {
		return err
	}
	_, err, _ := s.initGroup.Do("init", func() (any, error) {
		return nil, s.initOnce(ctx)
	})
	return err
}

// settledState 报告生命周期是否已有定论:就绪返回 nil,失败返回缓存
// 的初始化错误,已释放返回 DISPOSED 错误。
func (s *System) settledState() (error, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	switch s.state {
	case types.StateReady:
		return nil, true
	case types.StateFailed:
		return s.initErr, true
	case types.StateDisposed:
		return types.NewError(types.ErrDisposed, "system already disposed").
			WithComponent(types.ComponentSystem).
			WithOperation("initialize"), true
	default:
		return nil, false
	}
}

// initOnce 是单次初始化尝试的主体,只会在 singleflight 内运行
func (s *System) initOnce(ctx context.Context) error {
	if err, settled := s.settledState(); settled {
		return err
	}

	s.stateMu.Lock()
	s.state = types.StateInitializing
	s.stateMu.Unlock()

	start := time.Now()
	s.logger.Info("initializing diagnostic system")

	cfg := s.GetConfiguration()
	var cs componentSet
	built, initErr := s.runStages(ctx, s.stages(cfg, &cs))

	s.stateMu.Lock()
	if s.state == types.StateDisposed {
		// Dispose 在初始化期间到达:把刚构造的组件原样拆掉
		s.stateMu.Unlock()
		for i := len(built) - 1; i >= 0; i-- {
			s.disposeStage(ctx, built[i])
		}
		return types.NewError(types.ErrDisposed, "system disposed during initialization").
			WithComponent(types.ComponentSystem).
			WithOperation("initialize")
	}
	if initErr != nil {
		s.state = types.StateFailed
		s.initErr = initErr
	} else {
		s.state = types.StateReady
		s.comps = cs
		s.built = built
	}
	s.stateMu.Unlock()

	elapsed := time.Since(start)
	status := "ok"
	if initErr != nil {
		status = "failed"
	}
	s.stats.record(types.OperationRecord{
		Operation: "initialize",
		Component: types.ComponentSystem,
		Success:   initErr == nil,
		Duration:  elapsed,
		At:        time.Now(),
	})
	s.collector.RecordOperation(string(types.ComponentSystem), "initialize", status, elapsed)

	if initErr != nil {
		s.logger.Error("diagnostic system initialization failed",
			zap.Error(initErr), zap.Duration("duration", elapsed))
		return initErr
	}
	s.logger.Info("diagnostic system ready", zap.Duration("duration", elapsed))
	return nil
}

// Dispose 逆序释放全部组件。幂等;之后的操作调用返回 DISPOSED 结果。
func (s *System) Dispose(ctx context.Context) {
	s.stateMu.Lock()
	if s.state == types.StateDisposed {
		s.stateMu.Unlock()
		return
	}
	built := s.built
	s.built = nil
	s.state = types.StateDisposed
	s.stateMu.Unlock()

	for i := len(built) - 1; i >= 0; i-- {
		s.disposeStage(ctx, built[i])
	}
	s.logger.Info("diagnostic system disposed", zap.Int("stages", len(built)))
}

// snapshotComponents 在状态锁下取组件集与当前状态
func (s *System) snapshotComponents() (componentSet, types.SystemState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.comps, s.state
}

// State 返回当前生命周期状态
func (s *System) State() types.SystemState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// =============================================================================
// 🔍 诊断操作
// =============================================================================

// AnalyzePageStructure 运行页面结构分析。forceParallel 为 true 时强制
// 走并行路径;否则在并行路径可用时按复杂度推荐自动选择。成功结果的
// Data 是 *types.PageStructureAnalysis,并行路径下是
// *types.ParallelAnalysisResult。
func (s *System) AnalyzePageStructure(ctx context.Context, forceParallel bool) types.OperationResult {
	return s.execute(ctx, types.ComponentAnalyzer, "analyze_page_structure", func(ctx context.Context) (any, error) {
		comps, _ := s.snapshotComponents()
		if s.useParallel(ctx, comps, forceParallel) {
			return comps.analyzer.AnalyzeStructureParallel(ctx)
		}
		return comps.analyzer.AnalyzeStructure(ctx)
	})
}

// useParallel 决定本次结构分析走哪条路径。EnableParallelAnalysis 是
// 可热更新字段,这里读当前值而非初始化时的快照,UpdateConfiguration
// 之后的下一次分析立即按新开关执行。
func (s *System) useParallel(ctx context.Context, comps componentSet, force bool) bool {
	s.cfgMu.RLock()
	enabled := s.cfg.System.EnableParallelAnalysis
	s.cfgMu.RUnlock()
	if !enabled || !s.parallelReady.Load() {
		if force {
			s.logger.Debug("parallel analysis requested but not enabled, using sequential path")
		}
		return false
	}
	if force {
		return true
	}
	rec := comps.analyzer.ShouldUseParallelAnalysis(ctx)
	if rec.UseParallel {
		s.logger.Debug("parallel analysis recommended",
			zap.Int("score", rec.Score), zap.String("reason", rec.Reason))
	}
	return rec.UseParallel
}

// FindAlternativeElements 按搜索条件并发执行多策略元素发现。成功结果
// 的 Data 是 []types.AlternativeElement;其中的句柄归调用方所有,用完
// 必须释放。
func (s *System) FindAlternativeElements(ctx context.Context, criteria types.SearchCriteria, maxResults int) types.OperationResult {
	return s.execute(ctx, types.ComponentDiscovery, "find_alternative_elements", func(ctx context.Context) (any, error) {
		comps, _ := s.snapshotComponents()
		return comps.discovery.FindAlternatives(ctx, criteria, maxResults)
	})
}

// AnalyzePerformanceMetrics 采集页面性能指标。采集失败退化为零值指标
// 加 danger 告警,操作本身仍然成功;Data 是 *types.PerformanceMetrics。
func (s *System) AnalyzePerformanceMetrics(ctx context.Context) types.OperationResult {
	return s.execute(ctx, types.ComponentAnalyzer, "analyze_performance_metrics", func(ctx context.Context) (any, error) {
		comps, _ := s.snapshotComponents()
		return comps.analyzer.AnalyzePerformanceMetrics(ctx), nil
	})
}

// =============================================================================
// ⚙️ 配置
// =============================================================================

// GetConfiguration 返回当前配置的克隆。操作以此做快照:进行中的操作
// 不受后续 UpdateConfiguration 影响。
func (s *System) GetConfiguration() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg.Clone()
}

// UpdateConfiguration 应用运行时配置补丁。补丁先整体校验,任一字段非
// 法则整个补丁拒绝。构造期选项(如 HandleCap)的新值对统计与健康检查
// 生效,已构造组件的内部参数不变。
func (s *System) UpdateConfiguration(patch config.Patch) error {
	if patch.Empty() {
		return nil
	}
	if err := validatePatch(patch); err != nil {
		return err
	}

	s.cfgMu.Lock()
	changed := patch.Apply(s.cfg)
	s.cfgMu.Unlock()

	if patch.HistoryLimit != nil {
		s.stats.setHistoryLimit(*patch.HistoryLimit)
	}

	s.logger.Info("configuration updated", zap.Strings("changed", changed))
	return nil
}

// validatePatch 校验补丁字段
func validatePatch(p config.Patch) error {
	if p.DefaultTimeout != nil && *p.DefaultTimeout <= 0 {
		return types.NewError(types.ErrConfiguration, "default_timeout must be positive").
			WithComponent(types.ComponentSystem)
	}
	if p.HandleCap != nil && *p.HandleCap <= 0 {
		return types.NewError(types.ErrConfiguration, "handle_cap must be positive").
			WithComponent(types.ComponentSystem)
	}
	if p.HistoryLimit != nil && *p.HistoryLimit <= 0 {
		return types.NewError(types.ErrConfiguration, "history_limit must be positive").
			WithComponent(types.ComponentSystem)
	}
	for name, d := range p.ComponentTimeouts {
		if !types.Component(name).Valid() {
			return types.NewError(types.ErrConfiguration, "unknown component in component_timeouts: "+name).
				WithComponent(types.ComponentSystem)
		}
		if d <= 0 {
			return types.NewError(types.ErrConfiguration, "component timeout must be positive: "+name).
				WithComponent(types.ComponentSystem)
		}
	}
	return nil
}

// ConfigurationReport 汇总当前生效的运行时配置与自适应覆盖
type ConfigurationReport struct {
	State             types.SystemState                 `json:"state"`
	DefaultTimeout    time.Duration                     `json:"default_timeout"`
	ComponentTimeouts map[string]time.Duration          `json:"component_timeouts,omitempty"`
	AdaptiveOverrides map[types.Component]time.Duration `json:"adaptive_overrides,omitempty"`
	HandleCap         int                               `json:"handle_cap"`
	HistoryLimit      int                               `json:"history_limit"`
	ParallelAnalysis  bool                              `json:"parallel_analysis"`
	Enrichment        bool                              `json:"enrichment"`
	Adaptive          bool                              `json:"adaptive"`
}

// GetConfigurationReport 生成配置报告
func (s *System) GetConfigurationReport() ConfigurationReport {
	cfg := s.GetConfiguration()
	return ConfigurationReport{
		State:             s.State(),
		DefaultTimeout:    cfg.System.DefaultTimeout,
		ComponentTimeouts: cfg.System.ComponentTimeouts,
		AdaptiveOverrides: s.tuner.snapshot(),
		HandleCap:         cfg.Resources.HandleCap,
		HistoryLimit:      cfg.System.HistoryLimit,
		ParallelAnalysis:  cfg.System.EnableParallelAnalysis,
		Enrichment:        cfg.System.EnableEnrichment,
		Adaptive:          cfg.System.EnableAdaptive,
	}
}

// =============================================================================
// 📊 统计
// =============================================================================

// GetSystemStats 返回运行统计快照
func (s *System) GetSystemStats() types.SystemStats {
	comps, state := s.snapshotComponents()
	var hs types.HandleStats
	var fs types.FrameStats
	if comps.handles != nil {
		hs = comps.handles.Stats()
	}
	if comps.tracker != nil {
		fs = comps.tracker.Stats()
	}
	return s.stats.snapshot(state, hs, fs, time.Since(s.startedAt))
}

// GetOperationHistory 按时间序返回有界操作历史的副本
func (s *System) GetOperationHistory() []types.OperationRecord {
	return s.stats.history()
}
