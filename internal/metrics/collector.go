// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。进程内共享一个实例：Registry 创建它并传给每个
// System，避免同名指标重复注册。所有 Record 方法对 nil 接收者安全，
// 指标禁用时传 nil collector 即可。
type Collector struct {
	// 操作指标
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	// 句柄指标
	handlesActive prometheus.Gauge
	handlesPeak   prometheus.Gauge
	disposals     *prometheus.CounterVec

	// frame 指标
	framesActive prometheus.Gauge
	frameReaps   *prometheus.CounterVec

	// 发现指标
	discoveryCandidates *prometheus.CounterVec

	// 生命周期指标
	initStages   *prometheus.CounterVec
	healthChecks *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时使用默认注册表。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 操作指标
	c.operationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of diagnostic operations",
		},
		[]string{"component", "operation", "status"},
	)

	c.operationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Diagnostic operation duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"component", "operation"},
	)

	// 句柄指标
	c.handlesActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "handles_active",
			Help:      "Number of currently tracked page-side handles",
		},
	)

	c.handlesPeak = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "handles_peak",
			Help:      "Peak number of tracked page-side handles",
		},
	)

	c.disposals = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handle_disposals_total",
			Help:      "Total number of handle disposal attempts",
		},
		[]string{"status"}, // status: ok, failed
	)

	// frame 指标
	c.framesActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frames_active",
			Help:      "Number of frames in the tracker's active set",
		},
	)

	c.frameReaps = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_reaps_total",
			Help:      "Total number of frames removed by liveness reaping",
		},
		[]string{"reason"}, // reason: probe_failed, probe_timeout, untracked
	)

	// 发现指标
	c.discoveryCandidates = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_candidates_total",
			Help:      "Total number of element candidates produced per strategy",
		},
		[]string{"strategy"},
	)

	// 生命周期指标
	c.initStages = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "init_stages_total",
			Help:      "Total number of initialization stage outcomes",
		},
		[]string{"stage", "status"}, // status: ok, failed, rolled_back
	)

	c.healthChecks = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_checks_total",
			Help:      "Total number of health checks by resulting status",
		},
		[]string{"status"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 操作指标记录
// =============================================================================

// RecordOperation 记录一次编排操作
func (c *Collector) RecordOperation(component, operation, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.operationsTotal.WithLabelValues(component, operation, status).Inc()
	c.operationDuration.WithLabelValues(component, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🧷 句柄指标记录
// =============================================================================

// RecordHandleCounts 记录当前 / 峰值句柄数
func (c *Collector) RecordHandleCounts(active, peak int) {
	if c == nil {
		return
	}
	c.handlesActive.Set(float64(active))
	c.handlesPeak.Set(float64(peak))
}

// RecordDisposal 记录一次句柄释放尝试
func (c *Collector) RecordDisposal(ok bool) {
	if c == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	c.disposals.WithLabelValues(status).Inc()
}

// =============================================================================
// 🖼️ frame 指标记录
// =============================================================================

// RecordFrameCount 记录活跃 frame 数
func (c *Collector) RecordFrameCount(active int) {
	if c == nil {
		return
	}
	c.framesActive.Set(float64(active))
}

// RecordFrameReap 记录一次 frame 回收
func (c *Collector) RecordFrameReap(reason string) {
	if c == nil {
		return
	}
	c.frameReaps.WithLabelValues(reason).Inc()
}

// =============================================================================
// 🔎 发现指标记录
// =============================================================================

// RecordDiscoveryCandidates 记录某策略产出的候选数
func (c *Collector) RecordDiscoveryCandidates(strategy string, count int) {
	if c == nil || count <= 0 {
		return
	}
	c.discoveryCandidates.WithLabelValues(strategy).Add(float64(count))
}

// =============================================================================
// 🧬 生命周期指标记录
// =============================================================================

// RecordInitStage 记录初始化阶段结果
func (c *Collector) RecordInitStage(stage, status string) {
	if c == nil {
		return
	}
	c.initStages.WithLabelValues(stage, status).Inc()
}

// RecordHealthCheck 记录健康检查结果
func (c *Collector) RecordHealthCheck(status string) {
	if c == nil {
		return
	}
	c.healthChecks.WithLabelValues(status).Inc()
}
