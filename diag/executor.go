// =============================================================================
// ⏱️ PageDiag 操作执行包装
// =============================================================================
// execute 是所有公开诊断操作的统一入口:解析超时、与计时器竞争、记录
// 统计 / 指标 / 追踪,并把失败包装为结构化错误。
// =============================================================================
package diag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/pagediag/config"
	"github.com/BaSui01/pagediag/internal/telemetry"
	"github.com/BaSui01/pagediag/types"
)

// opFunc 是被编排执行的操作体。超时竞争落败后它会继续在后台运行,
// 必须自行释放已获取的资源;其结果会被丢弃。
type opFunc func(ctx context.Context) (any, error)

type opOutcome struct {
	data any
	err  error
}

// execute 包装一次诊断操作:
//
//  1. 隐式初始化(失败返回初始化错误结果)
//  2. 从配置快照解析超时:自适应覆盖 → 组件级覆盖 → 默认值
//  3. fn 在独立协程中带子上下文运行,与计时器竞争;计时器胜出即返回
//     TIMEOUT 结果,fn 依赖子上下文的取消信号协作式善后
//  4. 结果统一记入统计、操作历史、Prometheus 指标与 OTel span
func (s *System) execute(parent context.Context, component types.Component, op string, fn opFunc) types.OperationResult {
	start := time.Now()

	if err := s.Init(parent); err != nil {
		initErr := types.AsError(err)
		if initErr == nil {
			initErr = types.NewError(types.ErrInitialization, err.Error()).WithCause(err)
		}
		elapsed := time.Since(start)
		s.recordOutcome(component, op, false, "failed", elapsed)
		return types.OperationResult{Error: initErr, ExecutionTime: elapsed}
	}

	cfg := s.GetConfiguration()
	timeout := s.resolveTimeout(cfg, component)

	ctx, span := otel.Tracer(telemetry.TracerName).Start(parent, "diag."+op,
		trace.WithAttributes(
			attribute.String("component", string(component)),
			attribute.String("operation", op),
		))
	defer span.End()

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	done := make(chan opOutcome, 1)
	go func() {
		defer cancel()
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("operation panicked",
					zap.String("operation", op), zap.Any("panic", v))
				done <- opOutcome{err: types.NewError(types.ErrInternal,
					fmt.Sprintf("operation %q panicked: %v", op, v))}
			}
		}()
		data, err := fn(opCtx)
		done <- opOutcome{data: data, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res types.OperationResult
	select {
	case out := <-done:
		elapsed := time.Since(start)
		if out.err != nil {
			res = s.failureResult(ctx, cfg, component, op, out.err, elapsed)
		} else {
			res = types.OperationResult{Success: true, Data: out.data, ExecutionTime: elapsed}
		}
	case <-timer.C:
		elapsed := time.Since(start)
		s.logger.Warn("operation timed out, abandoning cooperatively",
			zap.String("component", string(component)),
			zap.String("operation", op),
			zap.Duration("timeout", timeout))
		timeoutErr := types.NewError(types.ErrTimeout,
			fmt.Sprintf("operation %q exceeded its %s budget", op, timeout)).
			WithRetryable(true)
		res = s.failureResult(ctx, cfg, component, op, timeoutErr, elapsed)
	}

	s.finishSpan(span, res)

	status := "ok"
	if !res.Success {
		status = "failed"
		if res.Error != nil && res.Error.Code == types.ErrTimeout {
			status = "timeout"
		}
	}
	s.recordOutcome(component, op, res.Success, status, res.ExecutionTime)

	if cfg.System.EnableAdaptive {
		s.tuner.observe(component, op, res.ExecutionTime, time.Now())
	}
	return res
}

// resolveTimeout 按优先级解析操作超时:自适应覆盖 → 组件级覆盖 → 默认值
func (s *System) resolveTimeout(cfg *config.Config, component types.Component) time.Duration {
	if cfg.System.EnableAdaptive {
		if d, ok := s.tuner.override(component); ok {
			return d
		}
	}
	if d, ok := cfg.System.ComponentTimeouts[string(component)]; ok && d > 0 {
		return d
	}
	return cfg.System.DefaultTimeout
}

// failureResult 把失败统一包装为结构化错误,并在启用时交给增强器
// 补充上下文与建议
func (s *System) failureResult(ctx context.Context, cfg *config.Config, component types.Component, op string, cause error, elapsed time.Duration) types.OperationResult {
	diagErr := types.AsError(cause)
	if diagErr == nil {
		// 操作体自己观察到截止时间也算超时,与计时器胜出同等对待
		if errors.Is(cause, context.DeadlineExceeded) {
			diagErr = types.NewError(types.ErrTimeout, cause.Error()).
				WithCause(cause).
				WithRetryable(true)
		} else {
			diagErr = types.NewError(types.ErrInternal, cause.Error()).WithCause(cause)
		}
	}

	if cfg.System.EnableEnrichment {
		if comps, _ := s.snapshotComponents(); comps.enricher != nil {
			diagErr = comps.enricher.ForOperation(ctx, diagErr, op, elapsed)
		}
	}

	diagErr = diagErr.
		WithComponent(component).
		WithOperation(op).
		WithExecutionTime(elapsed)

	s.logger.Warn("operation failed",
		zap.String("component", string(component)),
		zap.String("operation", op),
		zap.Error(diagErr))
	return types.OperationResult{Error: diagErr, ExecutionTime: elapsed}
}

// finishSpan 按结果落 span 状态
func (s *System) finishSpan(span trace.Span, res types.OperationResult) {
	if res.Success {
		span.SetStatus(codes.Ok, "")
		return
	}
	if res.Error != nil {
		span.RecordError(res.Error)
		span.SetStatus(codes.Error, string(res.Error.Code))
	}
}

// recordOutcome 把一次操作结果记入统计与指标
func (s *System) recordOutcome(component types.Component, op string, success bool, status string, elapsed time.Duration) {
	s.stats.record(types.OperationRecord{
		Operation: op,
		Component: component,
		Success:   success,
		Duration:  elapsed,
		At:        time.Now(),
	})
	s.collector.RecordOperation(string(component), op, status, elapsed)
}

// ResultDataAs 以具体类型取出操作结果的数据载荷
func ResultDataAs[T any](res types.OperationResult) (T, bool) {
	v, ok := res.Data.(T)
	return v, ok
}
