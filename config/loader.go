// =============================================================================
// 📦 PageDiag 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("pagediag.yaml").
//	    WithEnvPrefix("PAGEDIAG").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是诊断引擎的完整配置结构
type Config struct {
	// System 编排器与操作执行配置
	System SystemConfig `yaml:"system" env:"SYSTEM"`

	// Resources 句柄跟踪配置
	Resources ResourcesConfig `yaml:"resources" env:"RESOURCES"`

	// Frames frame 跟踪与回收配置
	Frames FramesConfig `yaml:"frames" env:"FRAMES"`

	// Analyzer 页面结构 / 性能分析配置
	Analyzer AnalyzerConfig `yaml:"analyzer" env:"ANALYZER"`

	// Discovery 元素发现配置
	Discovery DiscoveryConfig `yaml:"discovery" env:"DISCOVERY"`

	// Enrichment 错误增强配置
	Enrichment EnrichmentConfig `yaml:"enrichment" env:"ENRICHMENT"`

	// Health 健康检查阈值
	Health HealthConfig `yaml:"health" env:"HEALTH"`

	// Adaptive 自适应阈值重调配置
	Adaptive AdaptiveConfig `yaml:"adaptive" env:"ADAPTIVE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Metrics Prometheus 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Telemetry OTel 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// SystemConfig 编排器配置
type SystemConfig struct {
	// 操作默认超时（无组件级覆盖时生效）
	DefaultTimeout time.Duration `yaml:"default_timeout" env:"DEFAULT_TIMEOUT"`
	// 组件级超时覆盖（resources / frames / analyzer / discovery / enrichment）
	ComponentTimeouts map[string]time.Duration `yaml:"component_timeouts" env:"-"`
	// 操作历史环形缓冲区长度
	HistoryLimit int `yaml:"history_limit" env:"HISTORY_LIMIT"`
	// 是否启用并行分析路径（advanced-features 阶段）
	EnableParallelAnalysis bool `yaml:"enable_parallel_analysis" env:"ENABLE_PARALLEL_ANALYSIS"`
	// 是否启用错误增强
	EnableEnrichment bool `yaml:"enable_enrichment" env:"ENABLE_ENRICHMENT"`
	// 是否启用自适应阈值重调
	EnableAdaptive bool `yaml:"enable_adaptive" env:"ENABLE_ADAPTIVE"`
}

// ResourcesConfig 句柄跟踪配置
type ResourcesConfig struct {
	// 句柄数量上限（健康检查按使用率告警）
	HandleCap int `yaml:"handle_cap" env:"HANDLE_CAP"`
	// 批量释放的并发软上限
	DisposeConcurrency int `yaml:"dispose_concurrency" env:"DISPOSE_CONCURRENCY"`
	// 批量释放速率（次/秒，0 表示不限速）
	DisposeRate float64 `yaml:"dispose_rate" env:"DISPOSE_RATE"`
}

// FramesConfig frame 跟踪配置
type FramesConfig struct {
	// 定期回收间隔
	ReapInterval time.Duration `yaml:"reap_interval" env:"REAP_INTERVAL"`
	// 存活探测超时（读取 URL）
	ProbeTimeout time.Duration `yaml:"probe_timeout" env:"PROBE_TIMEOUT"`
	// 存活探测速率（次/秒，0 表示不限速）
	ProbeRate float64 `yaml:"probe_rate" env:"PROBE_RATE"`
	// 超过该跟踪时长的 frame 视为性能问题
	MaxFrameAge time.Duration `yaml:"max_frame_age" env:"MAX_FRAME_AGE"`
	// 超过该后代元素数的 frame 视为性能问题
	ElementLoadThreshold int `yaml:"element_load_threshold" env:"ELEMENT_LOAD_THRESHOLD"`
}

// AnalyzerConfig 分析器配置
type AnalyzerConfig struct {
	// iframe 内容 frame 解析超时
	IframeProbeTimeout time.Duration `yaml:"iframe_probe_timeout" env:"IFRAME_PROBE_TIMEOUT"`
	// 元素总数告警 / 危险阈值
	ElementWarning int `yaml:"element_warning" env:"ELEMENT_WARNING"`
	ElementDanger  int `yaml:"element_danger" env:"ELEMENT_DANGER"`
	// DOM 深度告警 / 危险阈值
	DepthWarning int `yaml:"depth_warning" env:"DEPTH_WARNING"`
	DepthDanger  int `yaml:"depth_danger" env:"DEPTH_DANGER"`
	// 大子树后代元素阈值
	LargeSubtreeThreshold int `yaml:"large_subtree_threshold" env:"LARGE_SUBTREE_THRESHOLD"`
	// z-index 高 / 极端阈值
	HighZIndex    int `yaml:"high_z_index" env:"HIGH_Z_INDEX"`
	ExtremeZIndex int `yaml:"extreme_z_index" env:"EXTREME_Z_INDEX"`
	// 复杂度评分：建议 / 强烈建议并行的阈值
	ComplexityRecommend int `yaml:"complexity_recommend" env:"COMPLEXITY_RECOMMEND"`
	ComplexityStrong    int `yaml:"complexity_strong" env:"COMPLEXITY_STRONG"`
	// 并行分析工作协程数
	ParallelWorkers int `yaml:"parallel_workers" env:"PARALLEL_WORKERS"`
}

// DiscoveryConfig 元素发现配置
type DiscoveryConfig struct {
	// 未指定 maxResults 时的默认返回数
	DefaultMaxResults int `yaml:"default_max_results" env:"DEFAULT_MAX_RESULTS"`
	// maxResults 硬上限
	MaxResultsCap int `yaml:"max_results_cap" env:"MAX_RESULTS_CAP"`
	// 文本相似度下限，低于即丢弃候选并释放句柄
	MinTextSimilarity float64 `yaml:"min_text_similarity" env:"MIN_TEXT_SIMILARITY"`
}

// EnrichmentConfig 错误增强配置
type EnrichmentConfig struct {
	// 建议条数上限
	MaxSuggestions int `yaml:"max_suggestions" env:"MAX_SUGGESTIONS"`
	// 上下文采集（结构分析 + 发现）超时
	GatherTimeout time.Duration `yaml:"gather_timeout" env:"GATHER_TIMEOUT"`
	// 认为执行时间偏长的阈值（触发上下文建议）
	LongExecution time.Duration `yaml:"long_execution" env:"LONG_EXECUTION"`
}

// HealthConfig 健康检查阈值
type HealthConfig struct {
	// 句柄使用率告警阈值（占 HandleCap 比例）
	HandleUsageRatio float64 `yaml:"handle_usage_ratio" env:"HANDLE_USAGE_RATIO"`
	// 错误率告警阈值
	ErrorRateThreshold float64 `yaml:"error_rate_threshold" env:"ERROR_RATE_THRESHOLD"`
	// 平均执行时间告警阈值
	AvgExecutionThreshold time.Duration `yaml:"avg_execution_threshold" env:"AVG_EXECUTION_THRESHOLD"`
}

// AdaptiveConfig 自适应阈值重调配置
type AdaptiveConfig struct {
	// 统计窗口（只统计该窗口内的同操作样本）
	Window time.Duration `yaml:"window" env:"WINDOW"`
	// 重调所需最少样本数
	MinSamples int `yaml:"min_samples" env:"MIN_SAMPLES"`
	// 新超时 = 平均执行时间 × Multiplier，夹在 [MinTimeout, MaxTimeout]
	Multiplier float64       `yaml:"multiplier" env:"MULTIPLIER"`
	MinTimeout time.Duration `yaml:"min_timeout" env:"MIN_TIMEOUT"`
	MaxTimeout time.Duration `yaml:"max_timeout" env:"MAX_TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// 是否注册指标
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// TelemetryConfig OTel 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "PAGEDIAG",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.System.DefaultTimeout <= 0 {
		errs = append(errs, "system.default_timeout must be positive")
	}
	if c.System.HistoryLimit <= 0 {
		errs = append(errs, "system.history_limit must be positive")
	}
	for name := range c.System.ComponentTimeouts {
		if !knownComponentName(name) {
			errs = append(errs, fmt.Sprintf("system.component_timeouts: unknown component %q", name))
		}
	}
	if c.Resources.HandleCap <= 0 {
		errs = append(errs, "resources.handle_cap must be positive")
	}
	if c.Frames.ReapInterval <= 0 {
		errs = append(errs, "frames.reap_interval must be positive")
	}
	if c.Frames.ProbeTimeout <= 0 {
		errs = append(errs, "frames.probe_timeout must be positive")
	}
	if c.Discovery.MaxResultsCap <= 0 || c.Discovery.MaxResultsCap > MaxResultsHardCap {
		errs = append(errs, fmt.Sprintf("discovery.max_results_cap must be in (0, %d]", MaxResultsHardCap))
	}
	if c.Discovery.MinTextSimilarity < 0 || c.Discovery.MinTextSimilarity > 1 {
		errs = append(errs, "discovery.min_text_similarity must be in [0, 1]")
	}
	if c.Health.HandleUsageRatio <= 0 || c.Health.HandleUsageRatio > 1 {
		errs = append(errs, "health.handle_usage_ratio must be in (0, 1]")
	}
	if c.Adaptive.MinSamples <= 0 {
		errs = append(errs, "adaptive.min_samples must be positive")
	}
	if c.Adaptive.Multiplier < 1 {
		errs = append(errs, "adaptive.multiplier must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// knownComponentName 校验组件级超时覆盖的键。与 types.Component 的封闭集合
// 保持一致；此处使用字符串副本以避免 config → types 反向依赖。
func knownComponentName(name string) bool {
	switch name {
	case "system", "resources", "frames", "analyzer", "discovery", "enrichment":
		return true
	}
	return false
}

// Clone 返回配置的深拷贝，供快照式读取（每次操作开始时捕获一份快照，
// 运行中的操作不受并发 Update 影响）
func (c *Config) Clone() *Config {
	out := *c
	if c.System.ComponentTimeouts != nil {
		out.System.ComponentTimeouts = make(map[string]time.Duration, len(c.System.ComponentTimeouts))
		for k, v := range c.System.ComponentTimeouts {
			out.System.ComponentTimeouts[k] = v
		}
	}
	if c.Log.OutputPaths != nil {
		out.Log.OutputPaths = append([]string(nil), c.Log.OutputPaths...)
	}
	return &out
}
