package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/goleak"

	"github.com/BaSui01/pagediag/config"
	"github.com/BaSui01/pagediag/testutil"
	"github.com/BaSui01/pagediag/testutil/fixtures"
	"github.com/BaSui01/pagediag/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testConfig 收紧探测超时并拉长收割周期,让测试不受后台节拍干扰
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Frames.ReapInterval = time.Hour
	cfg.Frames.ProbeTimeout = 100 * time.Millisecond
	cfg.Analyzer.IframeProbeTimeout = 100 * time.Millisecond
	return cfg
}

// evalStub 按脚本特征路由页面级 Eval 调用
func evalStub(payloads map[string]any) func(js string, args ...any) (json.RawMessage, error) {
	return func(js string, args ...any) (json.RawMessage, error) {
		for marker, payload := range payloads {
			if strings.Contains(js, marker) {
				if err, ok := payload.(error); ok {
					return nil, err
				}
				return testutil.RawJSON(payload), nil
			}
		}
		return nil, fmt.Errorf("unexpected script: %.40s", js)
	}
}

// quietPayloads 描述一个无模态、低复杂度的页面,四个页面级脚本都有答案
func quietPayloads() map[string]any {
	return map[string]any{
		"hasDialog":    map[string]any{"hasDialog": false, "hasFileChooser": false},
		"totalVisible": map[string]any{"totalVisible": 24, "totalInteractable": 8, "missingAria": 1},
		"totalElements": map[string]any{
			"totalElements": 120, "maxDepth": 8, "largeSubtrees": 0,
			"clickable": 9, "formElements": 5, "disabledElements": 1,
			"images": 2, "scripts": 1, "stylesheets": 1,
			"fixedPosition": 0, "highZIndex": 0, "extremeZIndex": 0,
		},
		"elementCount": map[string]any{"elementCount": 120, "iframeCount": 0, "formElementCount": 5},
	}
}

type sysRig struct {
	pg  *testutil.StaticPage
	sys *System
}

func newSysRig(t *testing.T, cfg *config.Config) *sysRig {
	t.Helper()
	pg := testutil.NewStaticPage(t, fixtures.LoginPage)
	pg.EvalFn = evalStub(quietPayloads())
	pg.ElemEvalFn = func(el *testutil.StaticElement, js string, _ ...any) (json.RawMessage, error) {
		if strings.Contains(js, "nthChild") {
			nthChild, nthOfType := el.PositionInParent()
			return testutil.RawJSON(map[string]int{"nthChild": nthChild, "nthOfType": nthOfType}), nil
		}
		return nil, fmt.Errorf("unexpected element script: %.40s", js)
	}
	if cfg == nil {
		cfg = testConfig()
	}
	sys := New(pg, cfg, nil, nil)
	t.Cleanup(func() { sys.Dispose(context.Background()) })
	return &sysRig{pg: pg, sys: sys}
}

func TestInit(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newSysRig(t, nil)

	assert.Equal(t, types.StateUninitialized, rig.sys.State())
	require.NoError(t, rig.sys.Init(ctx))
	assert.Equal(t, types.StateReady, rig.sys.State())

	// 重复 Init 是空操作,不产生第二条初始化记录
	require.NoError(t, rig.sys.Init(ctx))
	stats := rig.sys.GetSystemStats()
	assert.EqualValues(t, 1, stats.Operations["initialize"].Count)
	assert.Zero(t, stats.Operations["initialize"].Failures)
}

func TestInit_ConcurrentSharesOneAttempt(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newSysRig(t, nil)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = rig.sys.Init(ctx)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, types.StateReady, rig.sys.State())
	assert.EqualValues(t, 1, rig.sys.GetSystemStats().Operations["initialize"].Count)
}

func TestInit_NoPageRollsBackAndCaches(t *testing.T) {
	ctx := testutil.TestContext(t)
	sys := New(nil, testConfig(), nil, nil)
	t.Cleanup(func() { sys.Dispose(context.Background()) })

	err := sys.Init(ctx)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInitialization))
	assert.Contains(t, err.Error(), "core-infrastructure")
	assert.Contains(t, err.Error(), "rolled back 1 component")
	assert.Equal(t, types.StateFailed, sys.State())

	// 失败缓存:后续 Init 重抛同一个错误对象,不再尝试
	again := sys.Init(ctx)
	assert.Same(t, types.AsError(err), types.AsError(again))

	// 操作在失败系统上返回结构化失败而不是 panic
	res := sys.AnalyzePageStructure(ctx, false)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, types.ErrInitialization, res.Error.Code)
}

func TestInit_TelemetryLifecycle(t *testing.T) {
	ctx := testutil.TestContext(t)

	// 全局 OTel 提供者是进程级状态,测试后恢复
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})

	t.Run("disabled keeps noop providers", func(t *testing.T) {
		rig := newSysRig(t, nil)
		require.NoError(t, rig.sys.Init(ctx))

		comps, _ := rig.sys.snapshotComponents()
		require.NotNil(t, comps.telemetry)
		_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
		assert.False(t, isSDK)
	})

	t.Run("enabled installs sdk providers, dispose shuts them down", func(t *testing.T) {
		cfg := testConfig()
		cfg.Telemetry.Enabled = true
		rig := newSysRig(t, cfg)
		require.NoError(t, rig.sys.Init(ctx))

		comps, _ := rig.sys.snapshotComponents()
		require.NotNil(t, comps.telemetry)
		_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
		assert.True(t, isSDK)

		// 操作产生的 span 进入 SDK 提供者而非全局空实现
		res := rig.sys.AnalyzePerformanceMetrics(ctx)
		assert.True(t, res.Success)

		// Dispose 经由高级阶段的释放器关闭提供者,不 panic 不悬挂
		rig.sys.Dispose(ctx)
		assert.Equal(t, types.StateDisposed, rig.sys.State())
	})
}

func TestDispose(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newSysRig(t, nil)
	require.NoError(t, rig.sys.Init(ctx))

	// 留下未释放的发现结果句柄,Dispose 要替调用方收尾
	res := rig.sys.FindAlternativeElements(ctx, types.SearchCriteria{Text: "Sign in"}, 3)
	require.True(t, res.Success)
	alts, ok := ResultDataAs[[]types.AlternativeElement](res)
	require.True(t, ok)
	require.NotEmpty(t, alts)
	assert.Positive(t, rig.pg.OpenHandles())

	rig.sys.Dispose(ctx)
	assert.Equal(t, types.StateDisposed, rig.sys.State())
	assert.Zero(t, rig.pg.OpenHandles())

	// 幂等
	rig.sys.Dispose(ctx)
	assert.Equal(t, types.StateDisposed, rig.sys.State())
}

func TestDispose_OperationsAfterwards(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newSysRig(t, nil)
	require.NoError(t, rig.sys.Init(ctx))
	rig.sys.Dispose(ctx)

	res := rig.sys.AnalyzePageStructure(ctx, false)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, types.ErrDisposed, res.Error.Code)

	res = rig.sys.FindAlternativeElements(ctx, types.SearchCriteria{Text: "x"}, 1)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, types.ErrDisposed, res.Error.Code)
}

func TestOperations_ImplicitInit(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newSysRig(t, nil)

	// 第一次操作自己触发初始化
	res := rig.sys.AnalyzePerformanceMetrics(ctx)
	require.True(t, res.Success)
	assert.Equal(t, types.StateReady, rig.sys.State())

	pm, ok := ResultDataAs[*types.PerformanceMetrics](res)
	require.True(t, ok)
	assert.Equal(t, 120, pm.DOM.TotalElements)
}

func TestAnalyzePageStructure_PathSelection(t *testing.T) {
	ctx := testutil.TestContext(t)

	t.Run("simple page stays sequential", func(t *testing.T) {
		rig := newSysRig(t, nil)
		res := rig.sys.AnalyzePageStructure(ctx, false)
		require.True(t, res.Success)
		_, ok := ResultDataAs[*types.PageStructureAnalysis](res)
		assert.True(t, ok)
	})

	t.Run("forced parallel", func(t *testing.T) {
		rig := newSysRig(t, nil)
		res := rig.sys.AnalyzePageStructure(ctx, true)
		require.True(t, res.Success)
		par, ok := ResultDataAs[*types.ParallelAnalysisResult](res)
		require.True(t, ok)
		assert.Equal(t, 24, par.Elements.TotalVisible)
	})

	t.Run("complex page goes parallel on its own", func(t *testing.T) {
		rig := newSysRig(t, nil)
		payloads := quietPayloads()
		payloads["elementCount"] = map[string]any{"elementCount": 2500, "iframeCount": 2, "formElementCount": 10}
		rig.pg.EvalFn = evalStub(payloads)

		res := rig.sys.AnalyzePageStructure(ctx, false)
		require.True(t, res.Success)
		_, ok := ResultDataAs[*types.ParallelAnalysisResult](res)
		assert.True(t, ok)
	})

	t.Run("disabled parallel wins over force", func(t *testing.T) {
		cfg := testConfig()
		cfg.System.EnableParallelAnalysis = false
		rig := newSysRig(t, cfg)

		res := rig.sys.AnalyzePageStructure(ctx, true)
		require.True(t, res.Success)
		_, ok := ResultDataAs[*types.PageStructureAnalysis](res)
		assert.True(t, ok)
	})
}

func TestAnalyzePageStructure_ParallelToggleAtRuntime(t *testing.T) {
	ctx := testutil.TestContext(t)
	cfg := testConfig()
	cfg.System.EnableParallelAnalysis = false
	rig := newSysRig(t, cfg)
	require.NoError(t, rig.sys.Init(ctx))

	// 初始化时关闭:强制并行也走顺序路径
	res := rig.sys.AnalyzePageStructure(ctx, true)
	require.True(t, res.Success)
	_, ok := ResultDataAs[*types.PageStructureAnalysis](res)
	assert.True(t, ok)

	// 运行时打开开关,无需重建系统,下一次分析即走并行路径
	on := true
	require.NoError(t, rig.sys.UpdateConfiguration(config.Patch{EnableParallelAnalysis: &on}))
	assert.True(t, rig.sys.GetConfigurationReport().ParallelAnalysis)

	res = rig.sys.AnalyzePageStructure(ctx, true)
	require.True(t, res.Success)
	par, ok := ResultDataAs[*types.ParallelAnalysisResult](res)
	require.True(t, ok)
	assert.Equal(t, 24, par.Elements.TotalVisible)

	// 再关回去同样即时生效
	off := false
	require.NoError(t, rig.sys.UpdateConfiguration(config.Patch{EnableParallelAnalysis: &off}))
	res = rig.sys.AnalyzePageStructure(ctx, true)
	require.True(t, res.Success)
	_, ok = ResultDataAs[*types.PageStructureAnalysis](res)
	assert.True(t, ok)
}

func TestUpdateConfiguration(t *testing.T) {
	rig := newSysRig(t, nil)

	newTimeout := 5 * time.Second
	require.NoError(t, rig.sys.UpdateConfiguration(config.Patch{DefaultTimeout: &newTimeout}))
	assert.Equal(t, newTimeout, rig.sys.GetConfiguration().System.DefaultTimeout)

	// 非法补丁整体拒绝,原配置不动
	bad := -time.Second
	err := rig.sys.UpdateConfiguration(config.Patch{DefaultTimeout: &bad})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrConfiguration))
	assert.Equal(t, newTimeout, rig.sys.GetConfiguration().System.DefaultTimeout)

	// 未知组件名拒绝
	err = rig.sys.UpdateConfiguration(config.Patch{
		ComponentTimeouts: map[string]time.Duration{"bogus": time.Second},
	})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrConfiguration))

	// 合法组件超时生效
	require.NoError(t, rig.sys.UpdateConfiguration(config.Patch{
		ComponentTimeouts: map[string]time.Duration{string(types.ComponentAnalyzer): 3 * time.Second},
	}))
	assert.Equal(t, 3*time.Second, rig.sys.GetConfiguration().System.ComponentTimeouts[string(types.ComponentAnalyzer)])

	// GetConfiguration 返回克隆,改它不影响系统
	got := rig.sys.GetConfiguration()
	got.System.DefaultTimeout = time.Minute
	got.System.ComponentTimeouts["injected"] = time.Second
	assert.Equal(t, newTimeout, rig.sys.GetConfiguration().System.DefaultTimeout)
	assert.NotContains(t, rig.sys.GetConfiguration().System.ComponentTimeouts, "injected")
}

func TestGetConfigurationReport(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newSysRig(t, nil)

	rep := rig.sys.GetConfigurationReport()
	assert.Equal(t, types.StateUninitialized, rep.State)
	assert.True(t, rep.ParallelAnalysis)
	assert.True(t, rep.Enrichment)
	assert.Equal(t, config.DefaultResourcesConfig().HandleCap, rep.HandleCap)
	assert.Equal(t, config.DefaultSystemConfig().HistoryLimit, rep.HistoryLimit)
	assert.Empty(t, rep.AdaptiveOverrides)

	require.NoError(t, rig.sys.Init(ctx))
	assert.Equal(t, types.StateReady, rig.sys.GetConfigurationReport().State)
}

func TestGetSystemStats_FreshSystem(t *testing.T) {
	rig := newSysRig(t, nil)

	stats := rig.sys.GetSystemStats()
	assert.Equal(t, types.StateUninitialized, stats.State)
	assert.Zero(t, stats.TotalOperations)
	assert.Equal(t, 1.0, stats.SuccessRate)
	assert.GreaterOrEqual(t, stats.Uptime, time.Duration(0))
}
