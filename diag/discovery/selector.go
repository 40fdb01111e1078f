package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/BaSui01/pagediag/page"
	"github.com/BaSui01/pagediag/types"
)

// positionScript 计算元素在父元素下的位置,用于合成定位选择器。
const positionScript = `(el) => {
	const parent = el.parentElement;
	if (!parent) {
		return { nthChild: 0, nthOfType: 0 };
	}
	const children = Array.from(parent.children);
	const sameTag = children.filter((c) => c.tagName === el.tagName);
	return {
		nthChild: children.indexOf(el) + 1,
		nthOfType: sameTag.indexOf(el) + 1,
	};
}`

// meaningfulAttrs 是按优先级排列的语义属性,用于属性形态的选择器合成。
var meaningfulAttrs = []string{"name", "type", "aria-label", "placeholder", "value", "role"}

// identRe 圈定无需转义即可进入 #id/.class 形态的安全标识符。
// 其余值一律走带引号的属性选择器,避免 CSS 转义。
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

func safeIdent(s string) bool { return identRe.MatchString(s) }

// safeAttrValue 拒绝无法安全放进双引号属性选择器的值。
func safeAttrValue(s string) bool {
	return s != "" && !strings.ContainsAny(s, "\"\\\n\r")
}

// synthesizer 为候选元素合成能重新定位到它的选择器。
// 形态从最稳定到最脆弱依次尝试,第一个在页面上唯一命中的胜出;
// 全部不唯一时返回命中数最少的形态,绝不因此失败。
type synthesizer struct {
	pg page.Page
}

// nonUnique 记录目前为止命中数最少的非唯一形态。
type nonUnique struct {
	selector string
	count    int
}

func (s *synthesizer) selectorFor(ctx context.Context, el page.Element) (string, error) {
	tag, err := el.Tag(ctx)
	if err != nil {
		return "", types.NewError(types.ErrAccess, "candidate tag unavailable").
			WithComponent(types.ComponentDiscovery).WithCause(err)
	}
	attrs, err := el.Attributes(ctx)
	if err != nil {
		return "", types.NewError(types.ErrAccess, "candidate attributes unavailable").
			WithComponent(types.ComponentDiscovery).WithCause(err)
	}

	var best nonUnique

	if id := attrs["id"]; id != "" {
		if sel, ok := s.try(ctx, idSelector(id), &best); ok {
			return sel, nil
		}
	}

	for _, name := range sortedDataAttrs(attrs) {
		if sel, ok := s.try(ctx, attrSelector(tag, name, attrs[name]), &best); ok {
			return sel, nil
		}
	}

	for _, name := range meaningfulAttrs {
		if v := attrs[name]; safeAttrValue(v) {
			if sel, ok := s.try(ctx, attrSelector(tag, name, v), &best); ok {
				return sel, nil
			}
		}
	}

	own := ownShape(tag, attrs)
	if own != tag {
		if sel, ok := s.try(ctx, own, &best); ok {
			return sel, nil
		}
	}

	if sel, ok := s.parentScoped(ctx, el, tag, own, &best); ok {
		return sel, nil
	}

	if best.selector != "" {
		return best.selector, nil
	}
	return own, nil
}

// parentScoped 尝试父级限定、位置限定与祖级限定三类形态。
// 父级句柄只在本函数内存活。
func (s *synthesizer) parentScoped(ctx context.Context, el page.Element, tag, own string, best *nonUnique) (string, bool) {
	parent, err := el.Parent(ctx)
	if err != nil {
		return "", false
	}
	defer func() { _ = parent.Release(ctx) }()

	pBase, ok := baseShape(ctx, parent)
	if !ok {
		return "", false
	}

	if sel, ok := s.try(ctx, pBase+" > "+own, best); ok {
		return sel, true
	}

	var pos struct {
		NthChild  int `json:"nthChild"`
		NthOfType int `json:"nthOfType"`
	}
	if raw, err := el.Eval(ctx, positionScript); err == nil {
		_ = json.Unmarshal(raw, &pos)
	}
	if pos.NthOfType > 0 {
		if sel, ok := s.try(ctx, fmt.Sprintf("%s > %s:nth-of-type(%d)", pBase, tag, pos.NthOfType), best); ok {
			return sel, true
		}
	}
	if pos.NthChild > 0 {
		if sel, ok := s.try(ctx, fmt.Sprintf("%s > %s:nth-child(%d)", pBase, tag, pos.NthChild), best); ok {
			return sel, true
		}
	}

	grand, err := parent.Parent(ctx)
	if err != nil {
		return "", false
	}
	defer func() { _ = grand.Release(ctx) }()

	gBase, ok := baseShape(ctx, grand)
	if !ok {
		return "", false
	}
	if sel, ok := s.try(ctx, gBase+" "+pBase+" > "+own, best); ok {
		return sel, true
	}
	return "", false
}

// try 在页面上验证形态的命中数:恰好 1 个即胜出;
// 多个则更新最优非唯一记录;0 个或查询失败则放弃该形态。
func (s *synthesizer) try(ctx context.Context, sel string, best *nonUnique) (string, bool) {
	if sel == "" {
		return "", false
	}
	n, err := s.pg.Count(ctx, sel)
	if err != nil || n == 0 {
		return "", false
	}
	if n == 1 {
		return sel, true
	}
	if best.count == 0 || n < best.count {
		best.selector, best.count = sel, n
	}
	return "", false
}

func idSelector(id string) string {
	if safeIdent(id) {
		return "#" + id
	}
	if safeAttrValue(id) {
		return `[id="` + id + `"]`
	}
	return ""
}

func attrSelector(tag, name, value string) string {
	if !safeAttrValue(value) {
		return ""
	}
	return fmt.Sprintf(`%s[%s="%s"]`, tag, name, value)
}

// ownShape 返回元素自身的基础形态:标签加上全部安全类名。
func ownShape(tag string, attrs map[string]string) string {
	var classes []string
	for _, c := range strings.Fields(attrs["class"]) {
		if safeIdent(c) {
			classes = append(classes, c)
		}
	}
	if len(classes) == 0 {
		return tag
	}
	return tag + "." + strings.Join(classes, ".")
}

// baseShape 返回祖先元素的锚定形态:优先 #id,退化为标签。
func baseShape(ctx context.Context, el page.Element) (string, bool) {
	tag, err := el.Tag(ctx)
	if err != nil {
		return "", false
	}
	if id, ok, err := el.Attribute(ctx, "id"); err == nil && ok && safeIdent(id) {
		return "#" + id, true
	}
	return tag, true
}

func sortedDataAttrs(attrs map[string]string) []string {
	var names []string
	for name, v := range attrs {
		if strings.HasPrefix(name, "data-") && safeAttrValue(v) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
