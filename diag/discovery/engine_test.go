package discovery

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/BaSui01/pagediag/config"
	"github.com/BaSui01/pagediag/diag/handle"
	"github.com/BaSui01/pagediag/testutil"
	"github.com/BaSui01/pagediag/testutil/fixtures"
	"github.com/BaSui01/pagediag/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type engineRig struct {
	pg      *testutil.StaticPage
	handles *handle.Manager
	engine  *Engine
}

func newEngineRig(t *testing.T, source string, cfg config.DiscoveryConfig) *engineRig {
	t.Helper()
	pg := testutil.NewStaticPage(t, source)
	// 位置脚本在测试里由节点树直接回答
	pg.ElemEvalFn = func(el *testutil.StaticElement, js string, _ ...any) (json.RawMessage, error) {
		if strings.Contains(js, "nthChild") {
			nthChild, nthOfType := el.PositionInParent()
			return testutil.RawJSON(map[string]int{"nthChild": nthChild, "nthOfType": nthOfType}), nil
		}
		return nil, fmt.Errorf("unexpected element script: %.40s", js)
	}
	handles := handle.NewManager(handle.Options{HandleCap: 200}, nil, nil)
	return &engineRig{
		pg:      pg,
		handles: handles,
		engine:  New(pg, handles, cfg, nil, nil),
	}
}

func TestFindAlternatives_TextRanking(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newEngineRig(t, fixtures.ButtonGrid("Submit", "Submit Form", "Submit All Changes"), config.DefaultDiscoveryConfig())

	alts, err := rig.engine.FindAlternatives(ctx, types.SearchCriteria{Text: "Submit"}, 5)
	require.NoError(t, err)
	require.Len(t, alts, 3)

	// 精确匹配排第一,置信度 1.0;包含匹配 0.8
	assert.Equal(t, 1.0, alts[0].Confidence)
	assert.Equal(t, `button[data-index="0"]`, alts[0].Selector)
	assert.InDelta(t, 0.8, alts[1].Confidence, 1e-9)
	assert.InDelta(t, 0.8, alts[2].Confidence, 1e-9)

	// 选择器互不重复,置信度降序
	seen := map[string]bool{}
	for i, alt := range alts {
		assert.False(t, seen[alt.Selector], "duplicate selector %q", alt.Selector)
		seen[alt.Selector] = true
		assert.GreaterOrEqual(t, alt.Confidence, 0.0)
		assert.LessOrEqual(t, alt.Confidence, 1.0)
		if i > 0 {
			assert.LessOrEqual(t, alt.Confidence, alts[i-1].Confidence)
		}
		assert.NotNil(t, alt.Handle)
	}

	// 返回的句柄所有权在调用方,未返回的已经释放
	assert.Equal(t, len(alts), rig.pg.OpenHandles())
	assert.Equal(t, len(alts), rig.handles.Stats().ActiveCount)

	types.ReleaseAlternatives(ctx, alts)
	assert.Zero(t, rig.pg.OpenHandles())
	assert.Zero(t, rig.handles.Stats().ActiveCount)
}

func TestFindAlternatives_SimilarityFallback(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newEngineRig(t, fixtures.ButtonGrid("Sumbit"), config.DefaultDiscoveryConfig())

	alts, err := rig.engine.FindAlternatives(ctx, types.SearchCriteria{Text: "Submit"}, 5)
	require.NoError(t, err)
	require.Len(t, alts, 1)
	// 换位算两次编辑:1 - 2/6
	assert.InDelta(t, 1.0-2.0/6.0, alts[0].Confidence, 1e-4)
	types.ReleaseAlternatives(ctx, alts)
}

func TestFindAlternatives_BelowThresholdDiscarded(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newEngineRig(t, fixtures.ButtonGrid("Quarterly report", "Legal notices"), config.DefaultDiscoveryConfig())

	alts, err := rig.engine.FindAlternatives(ctx, types.SearchCriteria{Text: "Submit"}, 5)
	require.NoError(t, err)
	assert.Empty(t, alts)

	// 低于阈值的候选当场释放
	assert.Zero(t, rig.pg.OpenHandles())
	stats := rig.handles.Stats()
	assert.Zero(t, stats.ActiveCount)
	assert.GreaterOrEqual(t, stats.TotalTracked, int64(2))
}

func TestFindAlternatives_Attributes(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newEngineRig(t, fixtures.LoginPage, config.DefaultDiscoveryConfig())

	alts, err := rig.engine.FindAlternatives(ctx, types.SearchCriteria{
		Attributes: map[string]string{"name": "username"},
	}, 5)
	require.NoError(t, err)
	require.Len(t, alts, 1)

	assert.Equal(t, confidenceAttribute, alts[0].Confidence)
	assert.Equal(t, "#username", alts[0].Selector, "id 形态优先于其它合成路径")
	assert.Contains(t, alts[0].Reason, "attributes match")
	types.ReleaseAlternatives(ctx, alts)
}

func TestFindAlternatives_MultiAttribute(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newEngineRig(t, fixtures.LoginPage, config.DefaultDiscoveryConfig())

	alts, err := rig.engine.FindAlternatives(ctx, types.SearchCriteria{
		Attributes: map[string]string{"type": "password", "name": "password"},
	}, 5)
	require.NoError(t, err)
	require.Len(t, alts, 1)
	assert.Equal(t, "#password", alts[0].Selector)
	types.ReleaseAlternatives(ctx, alts)
}

func TestFindAlternatives_ExplicitRole(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newEngineRig(t, fixtures.DashboardPage, config.DefaultDiscoveryConfig())

	alts, err := rig.engine.FindAlternatives(ctx, types.SearchCriteria{Role: "navigation"}, 5)
	require.NoError(t, err)
	require.Len(t, alts, 1)

	// 显式 role 计 0.7,且不再按隐式路径重复计分
	assert.Equal(t, confidenceRole, alts[0].Confidence)
	assert.Equal(t, `nav[role="navigation"]`, alts[0].Selector)
	assert.Contains(t, alts[0].Reason, "explicit role")
	types.ReleaseAlternatives(ctx, alts)
}

func TestFindAlternatives_ImplicitRole(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newEngineRig(t, fixtures.DashboardPage, config.DefaultDiscoveryConfig())

	alts, err := rig.engine.FindAlternatives(ctx, types.SearchCriteria{Role: "button"}, 10)
	require.NoError(t, err)

	// 工具栏三个按钮靠 nth-of-type 区分;三个行内 Edit 按钮合成出
	// 同一个选择器,去重后只留一个
	require.Len(t, alts, 4)
	selectors := make([]string, 0, len(alts))
	for _, alt := range alts {
		assert.Equal(t, confidenceImplicitRole, alt.Confidence)
		assert.Contains(t, alt.Reason, "implicit role")
		selectors = append(selectors, alt.Selector)
	}
	assert.Contains(t, selectors, "section > button:nth-of-type(1)")
	assert.Contains(t, selectors, "section > button:nth-of-type(2)")
	assert.Contains(t, selectors, "section > button:nth-of-type(3)")
	assert.Contains(t, selectors, "button.row-action")

	assert.Equal(t, 4, rig.pg.OpenHandles())
	types.ReleaseAlternatives(ctx, alts)
	assert.Zero(t, rig.pg.OpenHandles())
}

func TestFindAlternatives_ImplicitRoleSearchbox(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newEngineRig(t, fixtures.DashboardPage, config.DefaultDiscoveryConfig())

	alts, err := rig.engine.FindAlternatives(ctx, types.SearchCriteria{Role: "searchbox"}, 5)
	require.NoError(t, err)
	require.Len(t, alts, 1)
	assert.Equal(t, `input[type="search"]`, alts[0].Selector)
	types.ReleaseAlternatives(ctx, alts)
}

func TestFindAlternatives_Tag(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newEngineRig(t, fixtures.LoginPage, config.DefaultDiscoveryConfig())

	alts, err := rig.engine.FindAlternatives(ctx, types.SearchCriteria{TagName: "INPUT"}, 5)
	require.NoError(t, err)
	require.Len(t, alts, 2)
	for _, alt := range alts {
		assert.Equal(t, confidenceTag, alt.Confidence)
	}
	assert.Equal(t, "#username", alts[0].Selector)
	assert.Equal(t, "#password", alts[1].Selector)
	types.ReleaseAlternatives(ctx, alts)
}

func TestFindAlternatives_CrossStrategyDedupe(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newEngineRig(t, fixtures.LoginPage, config.DefaultDiscoveryConfig())

	alts, err := rig.engine.FindAlternatives(ctx, types.SearchCriteria{
		Text:    "Sign in",
		TagName: "button",
	}, 10)
	require.NoError(t, err)

	// 提交按钮同时被文本(1.0)和标签(0.5)命中:去重保高分
	require.Len(t, alts, 2)
	assert.Equal(t, 1.0, alts[0].Confidence)
	assert.Equal(t, `button[data-testid="login-submit"]`, alts[0].Selector)
	assert.Equal(t, confidenceTag, alts[1].Confidence)
	assert.Equal(t, `button[aria-label="Open help"]`, alts[1].Selector)

	assert.Equal(t, 2, rig.pg.OpenHandles())
	types.ReleaseAlternatives(ctx, alts)
	assert.Zero(t, rig.pg.OpenHandles())
}

func TestFindAlternatives_StrategyFailurePartial(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newEngineRig(t, fixtures.LoginPage, config.DefaultDiscoveryConfig())

	// 标签策略因非法标签名失败,文本策略照常返回
	alts, err := rig.engine.FindAlternatives(ctx, types.SearchCriteria{
		Text:    "Sign in",
		TagName: "no such tag!",
	}, 10)
	require.NoError(t, err)
	require.Len(t, alts, 1)
	assert.Equal(t, 1.0, alts[0].Confidence)
	types.ReleaseAlternatives(ctx, alts)
}

func TestFindAlternatives_MaxResults(t *testing.T) {
	ctx := testutil.TestContext(t)
	labels := make([]string, 8)
	for i := range labels {
		labels[i] = fmt.Sprintf("Item %d", i)
	}

	t.Run("explicit limit", func(t *testing.T) {
		rig := newEngineRig(t, fixtures.ButtonGrid(labels...), config.DefaultDiscoveryConfig())
		alts, err := rig.engine.FindAlternatives(ctx, types.SearchCriteria{Text: "Item"}, 3)
		require.NoError(t, err)
		assert.Len(t, alts, 3)
		assert.Equal(t, 3, rig.pg.OpenHandles())
		types.ReleaseAlternatives(ctx, alts)
	})

	t.Run("non-positive falls back to default capped by hard cap", func(t *testing.T) {
		rig := newEngineRig(t, fixtures.ButtonGrid(labels...), config.DiscoveryConfig{MaxResultsCap: 5})
		alts, err := rig.engine.FindAlternatives(ctx, types.SearchCriteria{Text: "Item"}, 0)
		require.NoError(t, err)
		assert.Len(t, alts, 5)
		types.ReleaseAlternatives(ctx, alts)
	})

	t.Run("oversized request clamped", func(t *testing.T) {
		rig := newEngineRig(t, fixtures.ButtonGrid(labels...), config.DiscoveryConfig{MaxResultsCap: 5})
		alts, err := rig.engine.FindAlternatives(ctx, types.SearchCriteria{Text: "Item"}, 500)
		require.NoError(t, err)
		assert.Len(t, alts, 5)
		types.ReleaseAlternatives(ctx, alts)
	})
}

func TestFindAlternatives_InvalidInput(t *testing.T) {
	ctx := testutil.TestContext(t)

	t.Run("empty criteria", func(t *testing.T) {
		rig := newEngineRig(t, fixtures.LoginPage, config.DefaultDiscoveryConfig())
		_, err := rig.engine.FindAlternatives(ctx, types.SearchCriteria{}, 5)
		require.Error(t, err)
		assert.True(t, types.IsCode(err, types.ErrConfiguration))
	})

	t.Run("no page", func(t *testing.T) {
		eng := New(nil, handle.NewManager(handle.Options{}, nil, nil), config.DefaultDiscoveryConfig(), nil, nil)
		_, err := eng.FindAlternatives(ctx, types.SearchCriteria{Text: "x"}, 5)
		require.Error(t, err)
		assert.True(t, types.IsCode(err, types.ErrConfiguration))
	})
}

func TestFindAlternatives_ReturnedHandleUsable(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newEngineRig(t, fixtures.LoginPage, config.DefaultDiscoveryConfig())

	alts, err := rig.engine.FindAlternatives(ctx, types.SearchCriteria{Text: "Sign in"}, 1)
	require.NoError(t, err)
	require.Len(t, alts, 1)

	// 所有权转移后句柄仍然可用
	text, err := alts[0].Handle.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Sign in", text)

	types.ReleaseAlternatives(ctx, alts)
	assert.Zero(t, rig.handles.Stats().ActiveCount)
}
