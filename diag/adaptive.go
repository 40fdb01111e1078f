package diag

import (
	"sync"
	"time"

	"github.com/BaSui01/pagediag/config"
	"github.com/BaSui01/pagediag/types"
)

// tuner 维护自适应超时覆盖。样本按操作名累积;某操作在窗口内的样本
// 到量后,其所属组件的覆盖被重算为平均执行时间的固定倍数,夹在配置
// 的上下限之间。覆盖只存在 tuner 内部,永不写回共享配置。
type tuner struct {
	mu        sync.Mutex
	cfg       config.AdaptiveConfig
	samples   map[string][]tunerSample
	overrides map[types.Component]time.Duration
}

type tunerSample struct {
	at time.Time
	d  time.Duration
}

func newTuner(cfg config.AdaptiveConfig) *tuner {
	def := config.DefaultAdaptiveConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.MinTimeout <= 0 {
		cfg.MinTimeout = def.MinTimeout
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = def.MaxTimeout
	}
	return &tuner{
		cfg:       cfg,
		samples:   make(map[string][]tunerSample),
		overrides: make(map[types.Component]time.Duration),
	}
}

// observe 记录一个执行时长样本,样本到量时重算组件覆盖。窗口外的旧
// 样本在每次记录时剔除。
func (t *tuner) observe(component types.Component, op string, d time.Duration, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := at.Add(-t.cfg.Window)
	kept := t.samples[op][:0]
	for _, smp := range t.samples[op] {
		if smp.at.After(cutoff) {
			kept = append(kept, smp)
		}
	}
	kept = append(kept, tunerSample{at: at, d: d})
	t.samples[op] = kept

	if len(kept) < t.cfg.MinSamples {
		return
	}

	var total time.Duration
	for _, smp := range kept {
		total += smp.d
	}
	avg := total / time.Duration(len(kept))

	next := time.Duration(float64(avg) * t.cfg.Multiplier)
	if next < t.cfg.MinTimeout {
		next = t.cfg.MinTimeout
	}
	if next > t.cfg.MaxTimeout {
		next = t.cfg.MaxTimeout
	}
	t.overrides[component] = next
}

// override 返回组件的自适应超时覆盖
func (t *tuner) override(component types.Component) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.overrides[component]
	return d, ok
}

// snapshot 返回覆盖表副本,为空时返回 nil
func (t *tuner) snapshot() map[types.Component]time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.overrides) == 0 {
		return nil
	}
	out := make(map[types.Component]time.Duration, len(t.overrides))
	for k, v := range t.overrides {
		out[k] = v
	}
	return out
}
