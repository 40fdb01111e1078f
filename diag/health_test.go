package diag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/pagediag/testutil"
	"github.com/BaSui01/pagediag/types"
)

func TestHealthCheck_BeforeInit(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newSysRig(t, nil)

	rep := rig.sys.PerformHealthCheck(ctx)
	assert.Equal(t, types.HealthCritical, rep.Status)
	assert.Equal(t, []string{"System not initialized"}, rep.Issues)
	require.Len(t, rep.Recommendations, 1)
	assert.False(t, rep.CheckedAt.IsZero())
}

func TestHealthCheck_Disposed(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newSysRig(t, nil)
	require.NoError(t, rig.sys.Init(ctx))
	rig.sys.Dispose(ctx)

	rep := rig.sys.PerformHealthCheck(ctx)
	assert.Equal(t, types.HealthCritical, rep.Status)
	assert.Equal(t, []string{"System disposed"}, rep.Issues)
}

func TestHealthCheck_Healthy(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newSysRig(t, nil)
	require.NoError(t, rig.sys.Init(ctx))

	rep := rig.sys.PerformHealthCheck(ctx)
	assert.Equal(t, types.HealthHealthy, rep.Status)
	assert.Empty(t, rep.Issues)
	assert.Empty(t, rep.Recommendations)
}

func TestHealthCheck_Degradation(t *testing.T) {
	ctx := testutil.TestContext(t)

	failOnce := func(rig *sysRig) {
		res := rig.sys.execute(ctx, types.ComponentAnalyzer, "doomed", func(context.Context) (any, error) {
			return nil, errors.New("synthetic failure")
		})
		require.False(t, res.Success)
	}

	t.Run("one issue is a warning", func(t *testing.T) {
		cfg := testConfig()
		cfg.System.EnableEnrichment = false
		rig := newSysRig(t, cfg)
		require.NoError(t, rig.sys.Init(ctx))
		failOnce(rig)

		// 错误率 1/2 超过 10% 阈值,其余两项正常
		rep := rig.sys.PerformHealthCheck(ctx)
		assert.Equal(t, types.HealthWarning, rep.Status)
		require.Len(t, rep.Issues, 1)
		assert.Contains(t, rep.Issues[0], "error rate")
		assert.Len(t, rep.Recommendations, 1)
	})

	t.Run("two issues stay warning", func(t *testing.T) {
		cfg := testConfig()
		cfg.System.EnableEnrichment = false
		cfg.Health.AvgExecutionThreshold = time.Nanosecond
		rig := newSysRig(t, cfg)
		require.NoError(t, rig.sys.Init(ctx))
		failOnce(rig)

		rep := rig.sys.PerformHealthCheck(ctx)
		assert.Equal(t, types.HealthWarning, rep.Status)
		assert.Len(t, rep.Issues, 2)
	})

	t.Run("three issues go critical", func(t *testing.T) {
		cfg := testConfig()
		cfg.System.EnableEnrichment = false
		cfg.Health.AvgExecutionThreshold = time.Nanosecond
		cfg.Resources.HandleCap = 1
		rig := newSysRig(t, cfg)
		require.NoError(t, rig.sys.Init(ctx))

		// 留住发现结果的句柄,把使用率推过上限
		res := rig.sys.FindAlternativeElements(ctx, types.SearchCriteria{Text: "Sign in"}, 3)
		require.True(t, res.Success)
		alts, ok := ResultDataAs[[]types.AlternativeElement](res)
		require.True(t, ok)
		require.NotEmpty(t, alts)

		failOnce(rig)

		rep := rig.sys.PerformHealthCheck(ctx)
		assert.Equal(t, types.HealthCritical, rep.Status)
		assert.Len(t, rep.Issues, 3)
		assert.Contains(t, rep.Issues[0], "handle usage")
	})
}
