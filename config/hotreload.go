// =============================================================================
// 🔁 PageDiag 配置热重载
// =============================================================================
// HotReloadManager 监听配置文件,加载并校验新配置后整体替换,再通知注册
// 的回调;回调失败自动回滚到上一份配置。版本号随每次成功替换递增。
//
// 字段注册表标注哪些配置项可以热生效:与 config.Patch 对应的运行时可调
// 字段直接生效,其余字段在组件构造时快照,变更需重建 System。
// =============================================================================
package config

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ChangeCallback 在单个配置字段变化时调用
type ChangeCallback func(change ConfigChange)

// ReloadCallback 在新配置整体生效后调用
type ReloadCallback func(oldConfig, newConfig *Config)

// RollbackCallback 在配置回滚后调用
type RollbackCallback func(event RollbackEvent)

// ValidateFunc 是应用前的校验钩子,返回非 nil 错误则整份新配置被拒绝
type ValidateFunc func(newConfig *Config) error

// ConfigChange 描述一个字段的变化
type ConfigChange struct {
	Timestamp time.Time `json:"timestamp"`
	// Source 标注变更来源:file、api 或 rollback
	Source string `json:"source"`
	// Path 是字段路径,如 "System.DefaultTimeout"
	Path     string `json:"path"`
	OldValue any    `json:"old_value,omitempty"`
	NewValue any    `json:"new_value,omitempty"`
	// RequiresRestart 表示该变更对运行中的 System 不生效,需要重建
	RequiresRestart bool `json:"requires_restart"`
}

// RollbackEvent 描述一次配置回滚
type RollbackEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	Reason         string    `json:"reason"`
	FailedConfig   *Config   `json:"failed_config"`
	RestoredConfig *Config   `json:"restored_config"`
	// Version 是回滚完成后的当前版本号
	Version int   `json:"version"`
	Error   error `json:"error,omitempty"`
}

// HotReloadableField 是注册表中一个字段的描述
type HotReloadableField struct {
	Path        string
	Description string
	// RequiresRestart 为 true 的字段变更只在下次构建 System 时生效
	RequiresRestart bool
}

// hotReloadableFields 标注各配置字段的热生效能力。与 config.Patch 对应
// 的字段可通过 UpdateConfiguration 在运行中的 System 上生效。
var hotReloadableFields = map[string]HotReloadableField{
	// 日志配置 - 可以热重载
	"Log.Level": {
		Path:        "Log.Level",
		Description: "Log level (debug, info, warn, error)",
	},
	"Log.Format": {
		Path:        "Log.Format",
		Description: "Log format (json, console)",
	},

	// 编排器配置 - 可以热重载
	"System.DefaultTimeout": {
		Path:        "System.DefaultTimeout",
		Description: "Default per-operation timeout",
	},
	"System.HistoryLimit": {
		Path:        "System.HistoryLimit",
		Description: "Operation history ring size",
	},
	"System.EnableParallelAnalysis": {
		Path:        "System.EnableParallelAnalysis",
		Description: "Enable the parallel analysis path",
	},
	"System.EnableEnrichment": {
		Path:        "System.EnableEnrichment",
		Description: "Enable error enrichment",
	},
	"System.EnableAdaptive": {
		Path:        "System.EnableAdaptive",
		Description: "Enable adaptive timeout tuning",
	},

	// 句柄跟踪配置 - 上限为建议值,可热重载;释放参数在构造时快照
	"Resources.HandleCap": {
		Path:        "Resources.HandleCap",
		Description: "Advisory handle cap (health check warns on usage)",
	},
	"Resources.DisposeConcurrency": {
		Path:            "Resources.DisposeConcurrency",
		Description:     "Batch disposal concurrency cap",
		RequiresRestart: true,
	},
	"Resources.DisposeRate": {
		Path:            "Resources.DisposeRate",
		Description:     "Batch disposal rate limit (ops/sec)",
		RequiresRestart: true,
	},

	// frame 跟踪配置 - 回收循环在初始化时启动,需要重建
	"Frames.ReapInterval": {
		Path:            "Frames.ReapInterval",
		Description:     "Detached frame reap interval",
		RequiresRestart: true,
	},
	"Frames.ProbeTimeout": {
		Path:            "Frames.ProbeTimeout",
		Description:     "Frame liveness probe timeout",
		RequiresRestart: true,
	},

	// 分析器阈值 - 组件构造时快照,需要重建
	"Analyzer.ElementWarning": {
		Path:            "Analyzer.ElementWarning",
		Description:     "Element count warning threshold",
		RequiresRestart: true,
	},
	"Analyzer.ComplexityStrong": {
		Path:            "Analyzer.ComplexityStrong",
		Description:     "Complexity score that strongly recommends parallel analysis",
		RequiresRestart: true,
	},
	"Analyzer.ParallelWorkers": {
		Path:            "Analyzer.ParallelWorkers",
		Description:     "Parallel analysis worker count",
		RequiresRestart: true,
	},

	// 健康检查阈值 - 需要重建
	"Health.ErrorRateThreshold": {
		Path:            "Health.ErrorRateThreshold",
		Description:     "Operation error rate warning threshold",
		RequiresRestart: true,
	},
	"Health.HandleUsageRatio": {
		Path:            "Health.HandleUsageRatio",
		Description:     "Handle usage warning ratio",
		RequiresRestart: true,
	},

	// 遥测配置 - SDK 在初始化阶段读取,需要重建
	"Telemetry.Enabled": {
		Path:            "Telemetry.Enabled",
		Description:     "Enable telemetry",
		RequiresRestart: true,
	},
	"Telemetry.OTLPEndpoint": {
		Path:            "Telemetry.OTLPEndpoint",
		Description:     "OTLP collector endpoint",
		RequiresRestart: true,
	},
	"Telemetry.SampleRate": {
		Path:            "Telemetry.SampleRate",
		Description:     "Trace sample rate",
		RequiresRestart: true,
	},

	// 指标配置 - 采集器构造时读取,需要重建
	"Metrics.Enabled": {
		Path:            "Metrics.Enabled",
		Description:     "Register Prometheus metrics",
		RequiresRestart: true,
	},
	"Metrics.Namespace": {
		Path:            "Metrics.Namespace",
		Description:     "Prometheus metric namespace",
		RequiresRestart: true,
	},
}

// GetHotReloadableFields 返回字段注册表的副本
func GetHotReloadableFields() map[string]HotReloadableField {
	out := make(map[string]HotReloadableField, len(hotReloadableFields))
	for k, v := range hotReloadableFields {
		out[k] = v
	}
	return out
}

// IsHotReloadable 报告字段变更能否不重建 System 就生效
func IsHotReloadable(path string) bool {
	field, known := hotReloadableFields[path]
	return known && !field.RequiresRestart
}

// HotReloadManager 持有当前配置并驱动文件触发的重载
type HotReloadManager struct {
	mu sync.RWMutex

	config   *Config
	previous *Config
	version  int

	configPath   string
	validateFunc ValidateFunc

	watcher *FileWatcher
	running bool

	changeCallbacks   []ChangeCallback
	reloadCallbacks   []ReloadCallback
	rollbackCallbacks []RollbackCallback

	logger *zap.Logger
}

// HotReloadOption 配置 HotReloadManager
type HotReloadOption func(*HotReloadManager)

// WithHotReloadLogger 设置记录器
func WithHotReloadLogger(logger *zap.Logger) HotReloadOption {
	return func(m *HotReloadManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithConfigPath 设置被监听的配置文件路径
func WithConfigPath(path string) HotReloadOption {
	return func(m *HotReloadManager) {
		m.configPath = path
	}
}

// WithValidateFunc 设置应用前校验钩子
func WithValidateFunc(fn ValidateFunc) HotReloadOption {
	return func(m *HotReloadManager) {
		m.validateFunc = fn
	}
}

// NewHotReloadManager 创建热重载管理器,初始配置计为版本 1
func NewHotReloadManager(config *Config, opts ...HotReloadOption) *HotReloadManager {
	m := &HotReloadManager{
		config:  config,
		version: 1,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start 启动配置文件监听。未设置配置路径时只提供 ApplyConfig/Rollback
// 的编程接口,不监听文件。
func (m *HotReloadManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("hot reload manager already running")
	}

	if m.configPath != "" {
		watcher, err := NewFileWatcher(
			[]string{m.configPath},
			WithWatcherLogger(m.logger),
			WithDebounceDelay(500*time.Millisecond),
		)
		if err != nil {
			return fmt.Errorf("create file watcher: %w", err)
		}
		watcher.OnChange(m.handleFileChange)
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("start file watcher: %w", err)
		}
		m.watcher = watcher
	}

	m.running = true
	m.logger.Info("hot reload manager started", zap.String("config_path", m.configPath))
	return nil
}

// Stop 停止文件监听。幂等。监听器在锁外停掉:它的分发协程可能正停在
// ApplyConfig 等这把锁,持锁等它退出会死锁。
func (m *HotReloadManager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	watcher := m.watcher
	m.watcher = nil
	m.mu.Unlock()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			m.logger.Error("failed to stop file watcher", zap.Error(err))
		}
	}
	m.logger.Info("hot reload manager stopped")
	return nil
}

// handleFileChange 响应文件事件:出现或修改都触发整份重载
func (m *HotReloadManager) handleFileChange(event FileEvent) {
	m.logger.Info("configuration file changed",
		zap.String("path", event.Path),
		zap.Stringer("op", event.Op))

	if event.Op == FileOpWrite || event.Op == FileOpCreate {
		if err := m.ReloadFromFile(); err != nil {
			m.logger.Error("configuration reload failed", zap.Error(err))
		}
	}
}

// ReloadFromFile 从配置文件加载、校验并应用新配置。加载或校验失败时
// 当前配置不动。
func (m *HotReloadManager) ReloadFromFile() error {
	if m.configPath == "" {
		return fmt.Errorf("no config path set")
	}

	newConfig, err := NewLoader().WithConfigPath(m.configPath).Load()
	if err != nil {
		m.logger.Error("failed to load config from file, keeping current config",
			zap.Error(err), zap.String("path", m.configPath))
		return fmt.Errorf("load config: %w", err)
	}
	if err := newConfig.Validate(); err != nil {
		m.logger.Error("invalid config from file, keeping current config",
			zap.Error(err), zap.String("path", m.configPath))
		return fmt.Errorf("invalid config: %w", err)
	}
	return m.ApplyConfig(newConfig, "file")
}

// ApplyConfig 整体替换当前配置。校验、变更检测与替换在同一把锁内完成;
// 回调在锁外执行,任一回调失败或 panic 时自动回滚到旧配置。
func (m *HotReloadManager) ApplyConfig(newConfig *Config, source string) error {
	m.mu.Lock()
	oldConfig := m.config

	if m.validateFunc != nil {
		if err := m.validateFunc(newConfig); err != nil {
			m.mu.Unlock()
			m.logger.Warn("config validation hook rejected new config",
				zap.Error(err), zap.String("source", source))
			return fmt.Errorf("config validation failed: %w", err)
		}
	}

	changes := diffConfigs(oldConfig, newConfig)
	now := time.Now()
	requiresRestart := false
	for i := range changes {
		changes[i].Timestamp = now
		changes[i].Source = source
		if field, known := hotReloadableFields[changes[i].Path]; known {
			changes[i].RequiresRestart = field.RequiresRestart
		} else {
			changes[i].RequiresRestart = true
		}
		if changes[i].RequiresRestart {
			requiresRestart = true
		}
	}

	m.previous = oldConfig.Clone()
	m.config = newConfig
	m.version++
	version := m.version

	changeCbs := append([]ChangeCallback(nil), m.changeCallbacks...)
	reloadCbs := append([]ReloadCallback(nil), m.reloadCallbacks...)
	m.mu.Unlock()

	for _, change := range changes {
		m.logger.Info("configuration changed",
			zap.String("path", change.Path),
			zap.String("source", change.Source),
			zap.Bool("requires_restart", change.RequiresRestart),
			zap.Any("old_value", change.OldValue),
			zap.Any("new_value", change.NewValue))
	}

	if err := notifySafe(changeCbs, reloadCbs, oldConfig, newConfig, changes); err != nil {
		m.mu.Lock()
		if m.config == newConfig {
			m.logger.Error("reload callback failed, rolling back", zap.Error(err))
			m.rollbackLocked(oldConfig, fmt.Sprintf("callback error: %v", err), err)
		} else {
			m.logger.Warn("reload callback failed but config changed concurrently, skip rollback",
				zap.Error(err))
		}
		m.mu.Unlock()
		return fmt.Errorf("config applied but callback failed: %w", err)
	}

	if requiresRestart {
		m.logger.Warn("some configuration changes require a rebuilt system to take effect")
	}
	m.logger.Info("configuration reloaded",
		zap.Int("changes", len(changes)),
		zap.Int("version", version),
		zap.Bool("requires_restart", requiresRestart))
	return nil
}

// notifySafe 执行全部回调并拦截 panic
func notifySafe(changeCbs []ChangeCallback, reloadCbs []ReloadCallback, oldConfig, newConfig *Config, changes []ConfigChange) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	for _, cb := range changeCbs {
		for _, change := range changes {
			cb(change)
		}
	}
	for _, cb := range reloadCbs {
		cb(oldConfig, newConfig)
	}
	return nil
}

// OnChange 注册字段变化回调
func (m *HotReloadManager) OnChange(callback ChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeCallbacks = append(m.changeCallbacks, callback)
}

// OnReload 注册整份配置生效后的回调
func (m *HotReloadManager) OnReload(callback ReloadCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadCallbacks = append(m.reloadCallbacks, callback)
}

// OnRollback 注册回滚事件回调
func (m *HotReloadManager) OnRollback(callback RollbackCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbackCallbacks = append(m.rollbackCallbacks, callback)
}

// Rollback 手动回滚到上一份成功应用的配置
func (m *HotReloadManager) Rollback() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.previous == nil {
		return fmt.Errorf("no previous config available for rollback")
	}
	m.rollbackLocked(m.previous, "manual rollback", nil)
	return nil
}

// rollbackLocked 执行回滚并通知回滚回调。调用方必须持有 m.mu 写锁;
// 回滚回调的 panic 被拦截,不会让配置停在未定义状态。
func (m *HotReloadManager) rollbackLocked(target *Config, reason string, cause error) {
	failed := m.config
	restored := target.Clone()
	m.config = restored
	m.version++

	event := RollbackEvent{
		Timestamp:      time.Now(),
		Reason:         reason,
		FailedConfig:   failed,
		RestoredConfig: restored,
		Version:        m.version,
		Error:          cause,
	}

	for _, cb := range m.rollbackCallbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("rollback callback panicked", zap.Any("panic", r))
				}
			}()
			cb(event)
		}()
	}

	m.logger.Warn("configuration rolled back",
		zap.String("reason", reason),
		zap.Int("version", m.version))
}

// GetConfig 返回当前配置的克隆
func (m *HotReloadManager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Clone()
}

// GetCurrentVersion 返回当前配置版本号,每次成功替换或回滚递增
func (m *HotReloadManager) GetCurrentVersion() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// diffConfigs 递归对比两份配置,返回逐字段的差异
func diffConfigs(oldConfig, newConfig *Config) []ConfigChange {
	var changes []ConfigChange
	diffStructs("", reflect.ValueOf(oldConfig).Elem(), reflect.ValueOf(newConfig).Elem(), &changes)
	return changes
}

func diffStructs(prefix string, oldVal, newVal reflect.Value, changes *[]ConfigChange) {
	t := oldVal.Type()
	for i := 0; i < oldVal.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		path := field.Name
		if prefix != "" {
			path = prefix + "." + field.Name
		}

		of, nf := oldVal.Field(i), newVal.Field(i)
		if of.Kind() == reflect.Struct {
			diffStructs(path, of, nf, changes)
			continue
		}
		if !reflect.DeepEqual(of.Interface(), nf.Interface()) {
			*changes = append(*changes, ConfigChange{
				Path:     path,
				OldValue: of.Interface(),
				NewValue: nf.Interface(),
			})
		}
	}
}
