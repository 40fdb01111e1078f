// =============================================================================
// 🔄 PageDiag 运行时配置更新
// =============================================================================
// Patch 表达一次部分更新：nil 字段保持原值。编排器在持锁状态下对共享配置
// 应用补丁；进行中的操作继续使用各自的快照，不受影响。
// =============================================================================
package config

import "time"

// Patch 是 UpdateConfiguration 接受的部分更新。只列出运行时可调的选项；
// 其余配置在构造后只读。
type Patch struct {
	// 操作默认超时
	DefaultTimeout *time.Duration `yaml:"default_timeout,omitempty" json:"default_timeout,omitempty"`
	// 组件级超时覆盖（整体替换，不做逐键合并）
	ComponentTimeouts map[string]time.Duration `yaml:"component_timeouts,omitempty" json:"component_timeouts,omitempty"`
	// 句柄数量上限
	HandleCap *int `yaml:"handle_cap,omitempty" json:"handle_cap,omitempty"`
	// 并行分析开关
	EnableParallelAnalysis *bool `yaml:"enable_parallel_analysis,omitempty" json:"enable_parallel_analysis,omitempty"`
	// 错误增强开关
	EnableEnrichment *bool `yaml:"enable_enrichment,omitempty" json:"enable_enrichment,omitempty"`
	// 自适应阈值开关
	EnableAdaptive *bool `yaml:"enable_adaptive,omitempty" json:"enable_adaptive,omitempty"`
	// 操作历史环形缓冲区长度
	HistoryLimit *int `yaml:"history_limit,omitempty" json:"history_limit,omitempty"`
}

// Empty 报告补丁是否不包含任何变更
func (p Patch) Empty() bool {
	return p.DefaultTimeout == nil &&
		p.ComponentTimeouts == nil &&
		p.HandleCap == nil &&
		p.EnableParallelAnalysis == nil &&
		p.EnableEnrichment == nil &&
		p.EnableAdaptive == nil &&
		p.HistoryLimit == nil
}

// Apply 将补丁应用到配置上，返回变更的字段名列表
func (p Patch) Apply(c *Config) []string {
	var changed []string

	if p.DefaultTimeout != nil {
		c.System.DefaultTimeout = *p.DefaultTimeout
		changed = append(changed, "system.default_timeout")
	}
	if p.ComponentTimeouts != nil {
		c.System.ComponentTimeouts = make(map[string]time.Duration, len(p.ComponentTimeouts))
		for k, v := range p.ComponentTimeouts {
			c.System.ComponentTimeouts[k] = v
		}
		changed = append(changed, "system.component_timeouts")
	}
	if p.HandleCap != nil {
		c.Resources.HandleCap = *p.HandleCap
		changed = append(changed, "resources.handle_cap")
	}
	if p.EnableParallelAnalysis != nil {
		c.System.EnableParallelAnalysis = *p.EnableParallelAnalysis
		changed = append(changed, "system.enable_parallel_analysis")
	}
	if p.EnableEnrichment != nil {
		c.System.EnableEnrichment = *p.EnableEnrichment
		changed = append(changed, "system.enable_enrichment")
	}
	if p.EnableAdaptive != nil {
		c.System.EnableAdaptive = *p.EnableAdaptive
		changed = append(changed, "system.enable_adaptive")
	}
	if p.HistoryLimit != nil {
		c.System.HistoryLimit = *p.HistoryLimit
		changed = append(changed, "system.history_limit")
	}

	return changed
}
