// =============================================================================
// 🧬 PageDiag 分阶段初始化
// =============================================================================
// 初始化被表达为一张显式的有序阶段表:每个阶段声明名称、前置依赖、
// 构造器与释放器。回滚只遍历实际构造成功的元组,逆序执行,不靠重新
// 扫描字段推导。
// =============================================================================
package diag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/pagediag/config"
	"github.com/BaSui01/pagediag/diag/analyzer"
	"github.com/BaSui01/pagediag/diag/discovery"
	"github.com/BaSui01/pagediag/diag/enrich"
	"github.com/BaSui01/pagediag/diag/frames"
	"github.com/BaSui01/pagediag/diag/handle"
	"github.com/BaSui01/pagediag/internal/telemetry"
	"github.com/BaSui01/pagediag/types"
)

// stageTuple 是阶段表中的一行。provides 列出该阶段构造的组件,
// 回滚计数按它统计。
type stageTuple struct {
	name     types.Stage
	requires []types.Stage
	provides []types.Component
	build    func(ctx context.Context) error
	dispose  func(ctx context.Context)
}

// componentSet 是一次成功初始化产出的全部组件。阶段构造器写入同一个
// 局部实例,全部完成后整体提交,操作端不会读到半初始化状态。
type componentSet struct {
	handles   *handle.Manager
	tracker   *frames.Tracker
	analyzer  *analyzer.Analyzer
	discovery *discovery.Engine
	enricher  *enrich.Enricher
	telemetry *telemetry.Providers
}

// stages 返回有序阶段表。顺序即依赖顺序:
// core-infrastructure → page-dependent → advanced-features。
func (s *System) stages(cfg *config.Config, cs *componentSet) []stageTuple {
	return []stageTuple{
		{
			name:     types.StageCoreInfrastructure,
			provides: []types.Component{types.ComponentResources},
			build: func(ctx context.Context) error {
				cs.handles = handle.NewManager(handle.Options{
					HandleCap:          cfg.Resources.HandleCap,
					DisposeConcurrency: cfg.Resources.DisposeConcurrency,
					DisposeRate:        cfg.Resources.DisposeRate,
				}, s.logger, s.collector)
				return nil
			},
			dispose: func(ctx context.Context) {
				if cs.handles != nil {
					cs.handles.DisposeAll(ctx)
				}
			},
		},
		{
			name:     types.StagePageDependent,
			requires: []types.Stage{types.StageCoreInfrastructure},
			provides: []types.Component{
				types.ComponentFrames,
				types.ComponentAnalyzer,
				types.ComponentDiscovery,
				types.ComponentEnrichment,
			},
			build: func(ctx context.Context) error {
				if s.pg == nil {
					return types.NewError(types.ErrConfiguration, "page-dependent stage requires a live page")
				}
				cs.tracker = frames.NewTracker(s.pg, cfg.Frames, s.logger, s.collector)
				cs.analyzer = analyzer.New(s.pg, cs.tracker, cs.handles, cfg.Analyzer, s.logger)
				cs.discovery = discovery.New(s.pg, cs.handles, cfg.Discovery, s.logger, s.collector)
				cs.enricher = enrich.New(cs.analyzer, cs.discovery, cfg.Enrichment, s.logger)
				return nil
			},
			dispose: func(ctx context.Context) {
				if cs.tracker != nil {
					cs.tracker.Dispose()
				}
			},
		},
		{
			name:     types.StageAdvancedFeatures,
			requires: []types.Stage{types.StagePageDependent},
			build: func(ctx context.Context) error {
				// Telemetry.Enabled 为 false 时 Init 返回空提供者,不连外部服务
				prov, err := telemetry.Init(cfg.Telemetry, s.logger)
				if err != nil {
					return err
				}
				cs.telemetry = prov
				// parallelReady 表示高级阶段已就位;是否真正走并行路径
				// 由当前配置的 EnableParallelAnalysis 决定,可在运行时切换。
				if !cfg.System.EnableParallelAnalysis {
					s.logger.Info("parallel analysis disabled, path stays dormant until enabled at runtime")
				}
				s.parallelReady.Store(true)
				return nil
			},
			dispose: func(ctx context.Context) {
				s.parallelReady.Store(false)
				if cs.telemetry != nil {
					if err := cs.telemetry.Shutdown(ctx); err != nil {
						s.logger.Warn("telemetry shutdown failed", zap.Error(err))
					}
				}
			},
		},
	}
}

// runStages 顺序执行阶段表。依赖未满足按配置错误处理;构造失败把已
// 构造的阶段逆序回滚,错误指明最后完成的阶段与回滚的组件数。
func (s *System) runStages(ctx context.Context, tuples []stageTuple) ([]stageTuple, *types.Error) {
	completed := make(map[types.Stage]bool, len(tuples))
	built := make([]stageTuple, 0, len(tuples))
	lastCompleted := "none"

	for _, t := range tuples {
		for _, req := range t.requires {
			if !completed[req] {
				s.collector.RecordInitStage(string(t.name), "failed")
				s.rollback(ctx, built)
				return nil, types.NewError(types.ErrConfiguration,
					fmt.Sprintf("stage %q requires %q which has not completed", t.name, req)).
					WithComponent(types.ComponentSystem).
					WithOperation("initialize")
			}
		}

		if err := t.build(ctx); err != nil {
			s.collector.RecordInitStage(string(t.name), "failed")
			s.logger.Error("initialization stage failed",
				zap.String("stage", string(t.name)), zap.Error(err))
			rolledBack := s.rollback(ctx, built)
			return nil, types.NewError(types.ErrInitialization,
				fmt.Sprintf("stage %q failed after %q completed; rolled back %d component(s)",
					t.name, lastCompleted, rolledBack)).
				WithCause(err).
				WithComponent(types.ComponentSystem).
				WithOperation("initialize")
		}

		completed[t.name] = true
		lastCompleted = string(t.name)
		built = append(built, t)
		s.collector.RecordInitStage(string(t.name), "ok")
		s.logger.Info("initialization stage completed", zap.String("stage", string(t.name)))
	}

	return built, nil
}

// rollback 逆序释放已构造的阶段,返回回滚的组件数
func (s *System) rollback(ctx context.Context, built []stageTuple) int {
	rolledBack := 0
	for i := len(built) - 1; i >= 0; i-- {
		t := built[i]
		s.disposeStage(ctx, t)
		rolledBack += len(t.provides)
		s.collector.RecordInitStage(string(t.name), "rolled_back")
		s.logger.Warn("initialization stage rolled back", zap.String("stage", string(t.name)))
	}
	return rolledBack
}

// disposeStage 执行单个阶段的释放器。释放为尽力而为:panic 被拦截并
// 记日志,绝不向上传播。
func (s *System) disposeStage(ctx context.Context, t stageTuple) {
	defer func() {
		if v := recover(); v != nil {
			s.logger.Error("stage disposal panicked",
				zap.String("stage", string(t.name)), zap.Any("panic", v))
		}
	}()
	t.dispose(ctx)
}
