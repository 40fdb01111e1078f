// =============================================================================
// 📦 PageDiag 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// MaxResultsHardCap 是元素发现 maxResults 的硬上限
const MaxResultsHardCap = 100

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		System:     DefaultSystemConfig(),
		Resources:  DefaultResourcesConfig(),
		Frames:     DefaultFramesConfig(),
		Analyzer:   DefaultAnalyzerConfig(),
		Discovery:  DefaultDiscoveryConfig(),
		Enrichment: DefaultEnrichmentConfig(),
		Health:     DefaultHealthConfig(),
		Adaptive:   DefaultAdaptiveConfig(),
		Log:        DefaultLogConfig(),
		Metrics:    DefaultMetricsConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultSystemConfig 返回默认编排器配置
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		DefaultTimeout:         10 * time.Second,
		ComponentTimeouts:      map[string]time.Duration{},
		HistoryLimit:           200,
		EnableParallelAnalysis: true,
		EnableEnrichment:       true,
		EnableAdaptive:         true,
	}
}

// DefaultResourcesConfig 返回默认句柄跟踪配置
func DefaultResourcesConfig() ResourcesConfig {
	return ResourcesConfig{
		HandleCap:          500,
		DisposeConcurrency: 4,
		DisposeRate:        50,
	}
}

// DefaultFramesConfig 返回默认 frame 跟踪配置
func DefaultFramesConfig() FramesConfig {
	return FramesConfig{
		ReapInterval:         30 * time.Second,
		ProbeTimeout:         1 * time.Second,
		ProbeRate:            20,
		MaxFrameAge:          5 * time.Minute,
		ElementLoadThreshold: 1000,
	}
}

// DefaultAnalyzerConfig 返回默认分析器配置
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		IframeProbeTimeout:    1 * time.Second,
		ElementWarning:        1500,
		ElementDanger:         3000,
		DepthWarning:          15,
		DepthDanger:           25,
		LargeSubtreeThreshold: 500,
		HighZIndex:            1000,
		ExtremeZIndex:         9999,
		ComplexityRecommend:   1000,
		ComplexityStrong:      2000,
		ParallelWorkers:       4,
	}
}

// DefaultDiscoveryConfig 返回默认元素发现配置
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		DefaultMaxResults: 10,
		MaxResultsCap:     MaxResultsHardCap,
		MinTextSimilarity: 0.3,
	}
}

// DefaultEnrichmentConfig 返回默认错误增强配置
func DefaultEnrichmentConfig() EnrichmentConfig {
	return EnrichmentConfig{
		MaxSuggestions: 5,
		GatherTimeout:  5 * time.Second,
		LongExecution:  5 * time.Second,
	}
}

// DefaultHealthConfig 返回默认健康检查阈值
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		HandleUsageRatio:      0.9,
		ErrorRateThreshold:    0.1,
		AvgExecutionThreshold: 2 * time.Second,
	}
}

// DefaultAdaptiveConfig 返回默认自适应配置
func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{
		Window:     5 * time.Minute,
		MinSamples: 10,
		Multiplier: 2.0,
		MinTimeout: 500 * time.Millisecond,
		MaxTimeout: 60 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "pagediag",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "pagediag",
		SampleRate:   0.1,
	}
}
