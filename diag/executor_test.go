package diag

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/pagediag/config"
	"github.com/BaSui01/pagediag/testutil"
	"github.com/BaSui01/pagediag/types"
)

func TestExecute_Success(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newSysRig(t, nil)
	require.NoError(t, rig.sys.Init(ctx))

	res := rig.sys.execute(ctx, types.ComponentAnalyzer, "probe_op", func(context.Context) (any, error) {
		return "payload", nil
	})
	require.True(t, res.Success)
	assert.Nil(t, res.Error)
	assert.Positive(t, res.ExecutionTime)

	data, ok := ResultDataAs[string](res)
	require.True(t, ok)
	assert.Equal(t, "payload", data)

	stats := rig.sys.GetSystemStats()
	assert.EqualValues(t, 1, stats.Operations["probe_op"].Count)
	assert.Zero(t, stats.Operations["probe_op"].Failures)

	// 历史按时间序:隐式初始化在前,操作在后
	hist := rig.sys.GetOperationHistory()
	require.Len(t, hist, 2)
	assert.Equal(t, "initialize", hist[0].Operation)
	assert.Equal(t, "probe_op", hist[1].Operation)
	assert.True(t, hist[1].Success)
}

func TestExecute_TimeoutAbandonsOperation(t *testing.T) {
	ctx := testutil.TestContext(t)
	cfg := testConfig()
	cfg.System.EnableEnrichment = false
	cfg.System.EnableAdaptive = false
	cfg.System.ComponentTimeouts = map[string]time.Duration{
		string(types.ComponentAnalyzer): 50 * time.Millisecond,
	}
	rig := newSysRig(t, cfg)
	require.NoError(t, rig.sys.Init(ctx))

	cleaned := make(chan struct{})
	start := time.Now()
	res := rig.sys.execute(ctx, types.ComponentAnalyzer, "never_finishes", func(opCtx context.Context) (any, error) {
		defer close(cleaned)
		<-opCtx.Done()
		return nil, opCtx.Err()
	})
	elapsed := time.Since(start)

	// 计时器胜出:调用方在 50ms 档位拿到 TIMEOUT,不等默认超时
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, types.ErrTimeout, res.Error.Code)
	assert.True(t, res.Error.Retryable)
	assert.Equal(t, types.ComponentAnalyzer, res.Error.Component)
	assert.Equal(t, "never_finishes", res.Error.Operation)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Less(t, elapsed, time.Second)

	// 被放弃的操作体通过子上下文观察到取消并自行退出
	select {
	case <-cleaned:
	case <-time.After(time.Second):
		t.Fatal("abandoned operation never observed cancellation")
	}

	stats := rig.sys.GetSystemStats()
	assert.EqualValues(t, 1, stats.Operations["never_finishes"].Failures)
	assert.EqualValues(t, 1, stats.ComponentErrors[types.ComponentAnalyzer])
}

func TestExecute_PlainErrorWrappedAndEnriched(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newSysRig(t, nil)
	require.NoError(t, rig.sys.Init(ctx))

	res := rig.sys.execute(ctx, types.ComponentDiscovery, "click_target", func(context.Context) (any, error) {
		return nil, errors.New("element is disabled right now")
	})
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, types.ErrInternal, res.Error.Code)
	assert.Equal(t, types.ComponentDiscovery, res.Error.Component)
	assert.Equal(t, "click_target", res.Error.Operation)

	// 消息模式命中 disabled 规则,增强器补了建议
	require.NotEmpty(t, res.Error.Suggestions)
	assert.Contains(t, res.Error.Suggestions[0], "enabled")
}

func TestExecute_PanicRecovered(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newSysRig(t, nil)
	require.NoError(t, rig.sys.Init(ctx))

	res := rig.sys.execute(ctx, types.ComponentAnalyzer, "explosive", func(context.Context) (any, error) {
		panic("boom")
	})
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, types.ErrInternal, res.Error.Code)
	assert.Contains(t, res.Error.Message, "panicked")
}

func TestExecute_AdaptiveOverride(t *testing.T) {
	ctx := testutil.TestContext(t)
	cfg := testConfig()
	cfg.System.EnableEnrichment = false
	cfg.Adaptive = config.AdaptiveConfig{
		Window:     time.Minute,
		MinSamples: 3,
		Multiplier: 2,
		MinTimeout: 30 * time.Millisecond,
		MaxTimeout: 5 * time.Second,
	}
	rig := newSysRig(t, cfg)
	require.NoError(t, rig.sys.Init(ctx))

	// 三次快操作把 frames 组件的覆盖收紧到下限
	for i := 0; i < 3; i++ {
		res := rig.sys.execute(ctx, types.ComponentFrames, "fast_probe", func(context.Context) (any, error) {
			return nil, nil
		})
		require.True(t, res.Success)
	}
	d, ok := rig.sys.tuner.override(types.ComponentFrames)
	require.True(t, ok)
	assert.Equal(t, 30*time.Millisecond, d)

	// 覆盖只住在 tuner 里,共享配置原样
	assert.Equal(t, config.DefaultSystemConfig().DefaultTimeout, rig.sys.GetConfiguration().System.DefaultTimeout)
	assert.Empty(t, rig.sys.GetConfiguration().System.ComponentTimeouts)

	// 下一个 frames 操作按收紧后的 30ms 预算竞争
	start := time.Now()
	res := rig.sys.execute(ctx, types.ComponentFrames, "slow_probe", func(opCtx context.Context) (any, error) {
		<-opCtx.Done()
		return nil, opCtx.Err()
	})
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, types.ErrTimeout, res.Error.Code)
	assert.Less(t, time.Since(start), time.Second)

	// 报告里能看到覆盖
	rep := rig.sys.GetConfigurationReport()
	assert.Equal(t, 30*time.Millisecond, rep.AdaptiveOverrides[types.ComponentFrames])
}

func TestExecute_HistoryRing(t *testing.T) {
	ctx := testutil.TestContext(t)
	cfg := testConfig()
	cfg.System.HistoryLimit = 3
	rig := newSysRig(t, cfg)
	require.NoError(t, rig.sys.Init(ctx))

	for i := 0; i < 5; i++ {
		op := fmt.Sprintf("op_%d", i)
		res := rig.sys.execute(ctx, types.ComponentAnalyzer, op, func(context.Context) (any, error) {
			return nil, nil
		})
		require.True(t, res.Success)
	}

	// 环形历史只留最近三条,时间序
	hist := rig.sys.GetOperationHistory()
	require.Len(t, hist, 3)
	assert.Equal(t, "op_2", hist[0].Operation)
	assert.Equal(t, "op_3", hist[1].Operation)
	assert.Equal(t, "op_4", hist[2].Operation)

	// 运行时缩短上限保留最近条目
	limit := 2
	require.NoError(t, rig.sys.UpdateConfiguration(config.Patch{HistoryLimit: &limit}))
	hist = rig.sys.GetOperationHistory()
	require.Len(t, hist, 2)
	assert.Equal(t, "op_3", hist[0].Operation)
	assert.Equal(t, "op_4", hist[1].Operation)

	// 缩短后继续写入仍按新上限滚动
	res := rig.sys.execute(ctx, types.ComponentAnalyzer, "op_5", func(context.Context) (any, error) {
		return nil, nil
	})
	require.True(t, res.Success)
	hist = rig.sys.GetOperationHistory()
	require.Len(t, hist, 2)
	assert.Equal(t, "op_4", hist[0].Operation)
	assert.Equal(t, "op_5", hist[1].Operation)
}
