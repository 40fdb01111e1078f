package diag

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/pagediag/config"
	"github.com/BaSui01/pagediag/types"
)

func defaultTunerConfig() config.AdaptiveConfig {
	return config.AdaptiveConfig{
		Window:     5 * time.Minute,
		MinSamples: 10,
		Multiplier: 2,
		MinTimeout: 500 * time.Millisecond,
		MaxTimeout: 60 * time.Second,
	}
}

func TestTuner_OverrideClamping(t *testing.T) {
	tn := newTuner(defaultTunerConfig())
	now := time.Now()

	// 平均 40s ×2 = 80s,夹到上限
	for i := 0; i < 10; i++ {
		tn.observe(types.ComponentAnalyzer, "heavy", 40*time.Second, now)
	}
	d, ok := tn.override(types.ComponentAnalyzer)
	require.True(t, ok)
	assert.Equal(t, 60*time.Second, d)

	// 平均 1ms ×2 = 2ms,夹到下限
	for i := 0; i < 10; i++ {
		tn.observe(types.ComponentDiscovery, "light", time.Millisecond, now)
	}
	d, ok = tn.override(types.ComponentDiscovery)
	require.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, d)

	// 中间值不夹:平均 3s ×2 = 6s
	for i := 0; i < 10; i++ {
		tn.observe(types.ComponentFrames, "medium", 3*time.Second, now)
	}
	d, ok = tn.override(types.ComponentFrames)
	require.True(t, ok)
	assert.Equal(t, 6*time.Second, d)
}

func TestTuner_MinSamplesGate(t *testing.T) {
	tn := newTuner(defaultTunerConfig())
	now := time.Now()

	for i := 0; i < 9; i++ {
		tn.observe(types.ComponentAnalyzer, "op", time.Second, now)
	}
	_, ok := tn.override(types.ComponentAnalyzer)
	assert.False(t, ok)

	tn.observe(types.ComponentAnalyzer, "op", time.Second, now)
	d, ok := tn.override(types.ComponentAnalyzer)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, d)
}

func TestTuner_WindowPrunesStaleSamples(t *testing.T) {
	tn := newTuner(defaultTunerConfig())
	now := time.Now()
	stale := now.Add(-10 * time.Minute)

	// 九个过期样本加一个新样本:窗口内只剩一个,不触发覆盖
	for i := 0; i < 9; i++ {
		tn.observe(types.ComponentAnalyzer, "op", time.Second, stale)
	}
	tn.observe(types.ComponentAnalyzer, "op", time.Second, now)
	_, ok := tn.override(types.ComponentAnalyzer)
	assert.False(t, ok)
}

func TestTuner_SnapshotCopies(t *testing.T) {
	tn := newTuner(defaultTunerConfig())
	assert.Nil(t, tn.snapshot())

	now := time.Now()
	for i := 0; i < 10; i++ {
		tn.observe(types.ComponentAnalyzer, "op", time.Second, now)
	}
	snap := tn.snapshot()
	require.Len(t, snap, 1)
	snap[types.ComponentAnalyzer] = time.Hour

	d, ok := tn.override(types.ComponentAnalyzer)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, d)
}

func TestStatsBook_RingWrap(t *testing.T) {
	b := newStatsBook(3)
	for i := 0; i < 5; i++ {
		b.record(types.OperationRecord{
			Operation: fmt.Sprintf("op_%d", i),
			Component: types.ComponentAnalyzer,
			Success:   true,
			Duration:  time.Millisecond,
			At:        time.Now(),
		})
	}

	hist := b.history()
	require.Len(t, hist, 3)
	assert.Equal(t, "op_2", hist[0].Operation)
	assert.Equal(t, "op_3", hist[1].Operation)
	assert.Equal(t, "op_4", hist[2].Operation)
}

func TestStatsBook_ResizeKeepsRecent(t *testing.T) {
	b := newStatsBook(4)
	for i := 0; i < 4; i++ {
		b.record(types.OperationRecord{Operation: fmt.Sprintf("op_%d", i), Success: true})
	}

	// 缩容留最近两条
	b.setHistoryLimit(2)
	hist := b.history()
	require.Len(t, hist, 2)
	assert.Equal(t, "op_2", hist[0].Operation)
	assert.Equal(t, "op_3", hist[1].Operation)

	// 扩容不丢现有,继续追加
	b.setHistoryLimit(5)
	b.record(types.OperationRecord{Operation: "op_4", Success: true})
	hist = b.history()
	require.Len(t, hist, 3)
	assert.Equal(t, "op_2", hist[0].Operation)
	assert.Equal(t, "op_4", hist[2].Operation)
}

func TestStatsBook_Snapshot(t *testing.T) {
	b := newStatsBook(10)
	b.record(types.OperationRecord{Operation: "a", Component: types.ComponentAnalyzer, Success: true, Duration: 10 * time.Millisecond})
	b.record(types.OperationRecord{Operation: "a", Component: types.ComponentAnalyzer, Success: false, Duration: 30 * time.Millisecond})
	b.record(types.OperationRecord{Operation: "b", Component: types.ComponentDiscovery, Success: true, Duration: 20 * time.Millisecond})

	snap := b.snapshot(types.StateReady,
		types.HandleStats{ActiveCount: 2},
		types.FrameStats{ActiveFrames: 1},
		time.Minute)

	assert.Equal(t, types.StateReady, snap.State)
	assert.EqualValues(t, 3, snap.TotalOperations)
	assert.EqualValues(t, 2, snap.SuccessfulOperations)
	assert.EqualValues(t, 1, snap.FailedOperations)
	assert.InDelta(t, 2.0/3.0, snap.SuccessRate, 1e-9)

	a := snap.Operations["a"]
	assert.EqualValues(t, 2, a.Count)
	assert.EqualValues(t, 1, a.Failures)
	assert.Equal(t, 20*time.Millisecond, a.AvgDuration)
	assert.Equal(t, 30*time.Millisecond, a.LastDuration)

	assert.EqualValues(t, 1, snap.ComponentErrors[types.ComponentAnalyzer])
	assert.Equal(t, 2, snap.Handles.ActiveCount)
	assert.Equal(t, 1, snap.Frames.ActiveFrames)
	assert.Equal(t, time.Minute, snap.Uptime)
}

func TestStatsBook_EmptySuccessRate(t *testing.T) {
	snap := newStatsBook(1).snapshot(types.StateUninitialized, types.HandleStats{}, types.FrameStats{}, 0)
	assert.Equal(t, 1.0, snap.SuccessRate)
	assert.Empty(t, snap.Operations)
}
