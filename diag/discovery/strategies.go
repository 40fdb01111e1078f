package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/pagediag/diag/handle"
	"github.com/BaSui01/pagediag/types"
)

// 各策略的固定置信度。文本策略的置信度由相似度给出。
const (
	confidenceAttribute    = 0.9
	confidenceRole         = 0.7
	confidenceImplicitRole = 0.6
	confidenceTag          = 0.5
)

// textSourceSelector 圈定文本策略扫描的承载文本的元素。
const textSourceSelector = `a, button, label, h1, h2, h3, h4, h5, h6, p, li, td, th, ` +
	`[role="button"], [role="link"], [role="menuitem"], [role="tab"]`

// candidate 是策略产出的内部候选,selector 尚未合成。
type candidate struct {
	strategy   string
	reason     string
	confidence float64
	handle     *handle.SmartHandle
}

// textStrategy 扫描文本承载元素,按相似度打分。
// 低于阈值的候选当场释放句柄。
func (e *Engine) textStrategy(ctx context.Context, text string, limit int) ([]candidate, error) {
	els, err := e.pg.Query(ctx, textSourceSelector)
	if err != nil {
		return nil, err
	}

	var cands []candidate
	for _, el := range els {
		h := e.handles.Track(el, "discovery text candidate")
		content, err := h.Text(ctx)
		if err != nil {
			h.Dispose(ctx)
			continue
		}
		sim := TextSimilarity(text, content)
		if sim < e.cfg.MinTextSimilarity {
			h.Dispose(ctx)
			continue
		}
		cands = append(cands, candidate{
			strategy:   "text",
			reason:     fmt.Sprintf("text %q similar to %q (%.2f)", content, text, sim),
			confidence: sim,
			handle:     h,
		})
	}
	return e.capCandidates(ctx, cands, limit), nil
}

// roleStrategy 先查显式 role 属性,再按隐式角色表扫描候选标签。
// 带显式 role 的元素不会再按隐式路径计分。
func (e *Engine) roleStrategy(ctx context.Context, role string, limit int) ([]candidate, error) {
	var cands []candidate

	if safeIdent(role) {
		els, err := e.pg.Query(ctx, fmt.Sprintf(`[role="%s"]`, role))
		if err != nil {
			return nil, err
		}
		for _, el := range els {
			if len(cands) >= limit {
				_ = el.Release(ctx)
				continue
			}
			cands = append(cands, candidate{
				strategy:   "role",
				reason:     fmt.Sprintf("explicit role %q", role),
				confidence: confidenceRole,
				handle:     e.handles.Track(el, "discovery role candidate"),
			})
		}
	}

	for _, tag := range implicitRoleSources(role) {
		if len(cands) >= limit {
			break
		}
		els, err := e.pg.Query(ctx, tag)
		if err != nil {
			continue
		}
		for _, el := range els {
			if len(cands) >= limit {
				_ = el.Release(ctx)
				continue
			}
			h := e.handles.Track(el, "discovery implicit role candidate")
			attrs, err := h.Attributes(ctx)
			if err != nil || attrs["role"] != "" || implicitRole(tag, attrs) != role {
				h.Dispose(ctx)
				continue
			}
			cands = append(cands, candidate{
				strategy:   "role",
				reason:     fmt.Sprintf("implicit role %q from <%s>", role, tag),
				confidence: confidenceImplicitRole,
				handle:     h,
			})
		}
	}
	return cands, nil
}

// tagStrategy 按标签名匹配。
func (e *Engine) tagStrategy(ctx context.Context, tag string, limit int) ([]candidate, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if !safeIdent(tag) {
		return nil, types.NewError(types.ErrConfiguration, fmt.Sprintf("tag criterion %q is not a valid tag name", tag)).
			WithComponent(types.ComponentDiscovery)
	}

	els, err := e.pg.Query(ctx, tag)
	if err != nil {
		return nil, err
	}
	var cands []candidate
	for _, el := range els {
		if len(cands) >= limit {
			_ = el.Release(ctx)
			continue
		}
		cands = append(cands, candidate{
			strategy:   "tag",
			reason:     fmt.Sprintf("tag <%s>", tag),
			confidence: confidenceTag,
			handle:     e.handles.Track(el, "discovery tag candidate"),
		})
	}
	return cands, nil
}

// attributeStrategy 用全部属性对构造复合属性选择器,精确匹配。
func (e *Engine) attributeStrategy(ctx context.Context, attrs map[string]string, limit int) ([]candidate, error) {
	var sel strings.Builder
	for _, name := range sortedKeys(attrs) {
		if !safeIdent(name) || !safeAttrValue(attrs[name]) {
			return nil, types.NewError(types.ErrConfiguration,
				fmt.Sprintf("attribute criterion %q is not expressible as a selector", name)).
				WithComponent(types.ComponentDiscovery)
		}
		fmt.Fprintf(&sel, `[%s="%s"]`, name, attrs[name])
	}

	els, err := e.pg.Query(ctx, sel.String())
	if err != nil {
		return nil, err
	}
	var cands []candidate
	for _, el := range els {
		if len(cands) >= limit {
			_ = el.Release(ctx)
			continue
		}
		cands = append(cands, candidate{
			strategy:   "attribute",
			reason:     "attributes match " + sel.String(),
			confidence: confidenceAttribute,
			handle:     e.handles.Track(el, "discovery attribute candidate"),
		})
	}
	return cands, nil
}
