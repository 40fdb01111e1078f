package enrich

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/BaSui01/pagediag/config"
	"github.com/BaSui01/pagediag/diag/analyzer"
	"github.com/BaSui01/pagediag/diag/discovery"
	"github.com/BaSui01/pagediag/diag/frames"
	"github.com/BaSui01/pagediag/diag/handle"
	"github.com/BaSui01/pagediag/testutil"
	"github.com/BaSui01/pagediag/testutil/fixtures"
	"github.com/BaSui01/pagediag/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type enrichRig struct {
	pg       *testutil.StaticPage
	enricher *Enricher
}

// newEnrichRig 搭建真实的分析器与发现引擎,页面探针默认返回干净状态
func newEnrichRig(t *testing.T, source string) *enrichRig {
	t.Helper()
	pg := testutil.NewStaticPage(t, source)
	pg.EvalFn = func(js string, _ ...any) (json.RawMessage, error) {
		switch {
		case strings.Contains(js, "hasDialog"):
			return testutil.RawJSON(map[string]any{"hasDialog": false, "hasFileChooser": false}), nil
		case strings.Contains(js, "totalVisible"):
			return testutil.RawJSON(map[string]any{"totalVisible": 10, "totalInteractable": 4, "missingAria": 0}), nil
		}
		return nil, fmt.Errorf("unexpected script: %.40s", js)
	}

	tracker := frames.NewTracker(pg, config.FramesConfig{
		ReapInterval: time.Hour,
		ProbeTimeout: 100 * time.Millisecond,
	}, nil, nil)
	t.Cleanup(tracker.Dispose)

	handles := handle.NewManager(handle.Options{HandleCap: 100}, nil, nil)
	an := analyzer.New(pg, tracker, handles, config.DefaultAnalyzerConfig(), nil)
	disc := discovery.New(pg, handles, config.DefaultDiscoveryConfig(), nil, nil)

	return &enrichRig{
		pg:       pg,
		enricher: New(an, disc, config.DefaultEnrichmentConfig(), nil),
	}
}

func TestElementNotFound(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newEnrichRig(t, fixtures.LoginPage)

	original := errors.New("element not found: #login-btn")
	enriched := rig.enricher.ElementNotFound(ctx, original, "#login-btn")

	require.NotNil(t, enriched)
	assert.Equal(t, types.ErrNotFound, enriched.Code)
	// 原始错误原样保留
	assert.Equal(t, "element not found: #login-btn", enriched.Message)
	assert.ErrorIs(t, enriched, original)

	// 模式建议 + 脆弱选择器建议
	assert.Contains(t, enriched.Suggestions, "verify the selector still matches the current DOM")
	assert.Contains(t, enriched.Suggestions, "id-based selectors break when ids are generated; prefer stable data attributes")
	assert.LessOrEqual(t, len(enriched.Suggestions), 5)
}

func TestElementNotFound_FindsAlternatives(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newEnrichRig(t, fixtures.ButtonGrid("Save", "Save Draft"))

	original := errors.New("could not find element")
	enriched := rig.enricher.ElementNotFound(ctx, original, `button[data-role="save"]`)

	var alternatives string
	for _, s := range enriched.Suggestions {
		if strings.Contains(s, "alternative element") {
			alternatives = s
		}
	}
	require.NotEmpty(t, alternatives, "发现结果应转成建议: %v", enriched.Suggestions)
	assert.Contains(t, alternatives, "2 alternative element(s)")

	// 发现的候选句柄在返回前全部释放
	assert.Zero(t, rig.pg.OpenHandles())
}

func TestTimeout(t *testing.T) {
	ctx := testutil.TestContext(t)

	t.Run("long execution", func(t *testing.T) {
		rig := newEnrichRig(t, fixtures.LoginPage)
		original := errors.New("operation timed out after 10s")

		enriched := rig.enricher.Timeout(ctx, original, "clickElement", 11*time.Second)
		assert.Equal(t, types.ErrTimeout, enriched.Code)
		assert.Equal(t, 11*time.Second, enriched.ExecutionTime)
		assert.Contains(t, enriched.Suggestions, "increase the operation timeout for this component")

		var longExec bool
		for _, s := range enriched.Suggestions {
			if strings.Contains(s, "consider raising the component timeout") {
				longExec = true
			}
		}
		assert.True(t, longExec, "超长执行应有专门建议: %v", enriched.Suggestions)
	})

	t.Run("frame operation", func(t *testing.T) {
		rig := newEnrichRig(t, fixtures.LoginPage)
		original := errors.New("timeout waiting for frame")

		enriched := rig.enricher.Timeout(ctx, original, "analyzeFrameTree", time.Second)
		var frameAdvice bool
		for _, s := range enriched.Suggestions {
			if strings.Contains(s, "touches iframes") {
				frameAdvice = true
			}
		}
		assert.True(t, frameAdvice)
	})

	t.Run("blocking dialog surfaces in advice", func(t *testing.T) {
		rig := newEnrichRig(t, fixtures.LoginPage)
		rig.pg.EvalFn = func(js string, _ ...any) (json.RawMessage, error) {
			switch {
			case strings.Contains(js, "hasDialog"):
				return testutil.RawJSON(map[string]any{"hasDialog": true, "hasFileChooser": false}), nil
			case strings.Contains(js, "totalVisible"):
				return testutil.RawJSON(map[string]any{}), nil
			}
			return nil, fmt.Errorf("unexpected script")
		}

		enriched := rig.enricher.Timeout(ctx, errors.New("timed out"), "clickElement", time.Second)
		assert.Contains(t, enriched.Suggestions, "an open dialog may be blocking interaction; dismiss it first")
	})
}

func TestBatchFailure(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newEnrichRig(t, fixtures.LoginPage)

	original := errors.New("step 3 blew up")
	enriched := rig.enricher.BatchFailure(ctx, original, BatchContext{
		FailedStep:     3,
		TotalSteps:     5,
		CompletedSteps: []string{"navigate", "fill"},
	})

	assert.Equal(t, types.ErrInternal, enriched.Code)
	assert.Equal(t, "step 3 blew up", enriched.Message)
	require.NotEmpty(t, enriched.Suggestions)
	assert.Contains(t, enriched.Suggestions[0], "step 3 of 5 failed after 2 completed step(s)")
}

func TestEnrichment_PreservesStructuredOriginal(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newEnrichRig(t, fixtures.LoginPage)

	original := types.NewError(types.ErrEvaluation, "script exploded").
		WithComponent(types.ComponentAnalyzer)
	enriched := rig.enricher.ElementNotFound(ctx, original, "div.card")

	// 结构化原始错误的 code 与 message 原样透传
	assert.Equal(t, types.ErrEvaluation, enriched.Code)
	assert.Equal(t, "script exploded", enriched.Message)
	assert.ErrorIs(t, enriched, error(original))
}

func TestEnrichment_DegradesGracefully(t *testing.T) {
	ctx := testutil.TestContext(t)

	// 分析器没有页面可用:上下文收集失败,只剩模式建议
	an := analyzer.New(nil, nil, nil, config.DefaultAnalyzerConfig(), nil)
	enricher := New(an, nil, config.DefaultEnrichmentConfig(), nil)

	original := errors.New("element not found")
	enriched := enricher.ElementNotFound(ctx, original, "button")

	require.NotNil(t, enriched)
	assert.Equal(t, "element not found", enriched.Message)
	assert.ErrorIs(t, enriched, original)
	assert.Contains(t, enriched.Suggestions, "verify the selector still matches the current DOM")
}

func TestEnrichment_SuggestionCap(t *testing.T) {
	ctx := testutil.TestContext(t)
	rig := newEnrichRig(t, fixtures.LoginPage)

	// 一条消息同时命中四类模式,建议总量超限后截断
	original := errors.New("timed out: element not found, button disabled, out of memory")
	enriched := rig.enricher.ElementNotFound(ctx, original, "#x:nth-child(2)")
	assert.Len(t, enriched.Suggestions, 5)
}

func TestCriteriaFromSelector(t *testing.T) {
	cases := []struct {
		name     string
		selector string
		wantTag  string
		wantAttr map[string]string
	}{
		{"纯 id 无可提取条件", "#login", "", nil},
		{"标签加属性", `button[data-role="save"]`, "button", map[string]string{"data-role": "save"}},
		{"id 属性成对出现时跳过", `input[name="q"][id="x"]`, "input", map[string]string{"name": "q"}},
		{"类选择器只取标签", "div.card", "div", nil},
		{"空选择器", "", "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := criteriaFromSelector(tc.selector)
			assert.Equal(t, tc.wantTag, c.TagName)
			if tc.wantAttr == nil {
				assert.Empty(t, c.Attributes)
			} else {
				assert.Equal(t, tc.wantAttr, c.Attributes)
			}
		})
	}
}

func TestDedupe(t *testing.T) {
	in := []string{"a", "b", "a", "c", "b", "d"}
	assert.Equal(t, []string{"a", "b", "c"}, dedupe(in, 3))
	assert.Equal(t, []string{"a", "b", "c", "d"}, dedupe(in, 10))
}
