package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/BaSui01/pagediag/page"
)

// StaticPage 是 page.Page 的内存实现:在解析后的 HTML 文档上执行
// 选择器查询,脚本执行通过 EvalFn 钩子注入。所有句柄创建与释放都被
// 计数,便于断言"未返回的句柄必须全部释放"这类纪律。
type StaticPage struct {
	mu  sync.Mutex
	doc *html.Node
	url string

	// EvalFn 处理 Eval 调用;未设置时 Eval 返回错误
	EvalFn func(js string, args ...any) (json.RawMessage, error)
	// ElemEvalFn 处理元素级 Eval 调用
	ElemEvalFn func(el *StaticElement, js string, args ...any) (json.RawMessage, error)
	// QueryErr 注入查询失败
	QueryErr error

	frames        []page.Frame
	contentFrames map[string]page.Frame

	ids    map[*html.Node]string
	nextID int

	created  int
	released int
}

// NewStaticPage 解析 HTML 源并返回静态页面
func NewStaticPage(t testing.TB, source string) *StaticPage {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		t.Fatalf("parse page source: %v", err)
	}
	return &StaticPage{
		doc:           doc,
		url:           "https://test.local/page",
		contentFrames: make(map[string]page.Frame),
		ids:           make(map[*html.Node]string),
	}
}

// SetURL 设置页面 URL
func (p *StaticPage) SetURL(url string) { p.url = url }

// AddFrame 注册一个会被 Frames 枚举到的 frame
func (p *StaticPage) AddFrame(f page.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, f)
}

// RemoveFrame 按 ID 移除 frame,模拟页面侧的 frame 卸载
func (p *StaticPage) RemoveFrame(frameID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.frames[:0]
	for _, f := range p.frames {
		if f.ID() != frameID {
			kept = append(kept, f)
		}
	}
	p.frames = kept
}

// SetContentFrame 把 iframe 元素(按 id、name 或 src 属性匹配)指向一个
// content frame;未注册的 iframe 解析时返回 page.ErrNoContentFrame
func (p *StaticPage) SetContentFrame(key string, f page.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contentFrames[key] = f
}

// OpenHandles 返回已创建但未释放的句柄数
func (p *StaticPage) OpenHandles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created - p.released
}

// HandlesCreated 返回累计创建的句柄数
func (p *StaticPage) HandlesCreated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

func (p *StaticPage) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.url, nil
}

func (p *StaticPage) Query(ctx context.Context, selector string) ([]page.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.QueryErr != nil {
		return nil, p.QueryErr
	}
	nodes, err := queryAll(p.doc, selector)
	if err != nil {
		return nil, err
	}
	els := make([]page.Element, len(nodes))
	for i, n := range nodes {
		els[i] = p.newElementLocked(n)
	}
	return els, nil
}

func (p *StaticPage) Count(ctx context.Context, selector string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.QueryErr != nil {
		return 0, p.QueryErr
	}
	nodes, err := queryAll(p.doc, selector)
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

func (p *StaticPage) Eval(ctx context.Context, js string, args ...any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.EvalFn == nil {
		return nil, fmt.Errorf("testutil: no EvalFn configured for script evaluation")
	}
	return p.EvalFn(js, args...)
}

func (p *StaticPage) Frames(ctx context.Context) ([]page.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]page.Frame, len(p.frames))
	copy(out, p.frames)
	return out, nil
}

func (p *StaticPage) newElementLocked(n *html.Node) *StaticElement {
	p.created++
	return &StaticElement{p: p, node: n}
}

func (p *StaticPage) idForLocked(n *html.Node) string {
	if id, ok := p.ids[n]; ok {
		return id
	}
	p.nextID++
	id := fmt.Sprintf("node-%d", p.nextID)
	p.ids[n] = id
	return id
}

// StaticElement 是 StaticPage 发出的元素句柄
type StaticElement struct {
	p        *StaticPage
	node     *html.Node
	released bool
}

func (e *StaticElement) ID() string {
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	return e.p.idForLocked(e.node)
}

func (e *StaticElement) Tag(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.node.Data, nil
}

func (e *StaticElement) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var sb strings.Builder
	var collect func(n *html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(e.node)
	return strings.Join(strings.Fields(sb.String()), " "), nil
}

func (e *StaticElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, ok := lookupAttr(e.node, name)
	return v, ok, nil
}

func (e *StaticElement) Attributes(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	attrs := make(map[string]string, len(e.node.Attr))
	for _, a := range e.node.Attr {
		attrs[a.Key] = a.Val
	}
	return attrs, nil
}

func (e *StaticElement) Query(ctx context.Context, selector string) ([]page.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	if e.p.QueryErr != nil {
		return nil, e.p.QueryErr
	}
	nodes, err := queryAll(e.node, selector)
	if err != nil {
		return nil, err
	}
	els := make([]page.Element, 0, len(nodes))
	for _, n := range nodes {
		if n == e.node {
			continue
		}
		els = append(els, e.p.newElementLocked(n))
	}
	return els, nil
}

func (e *StaticElement) Parent(ctx context.Context) (page.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parent := elementParent(e.node)
	if parent == nil {
		return nil, page.ErrNotFound
	}
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	return e.p.newElementLocked(parent), nil
}

func (e *StaticElement) ContentFrame(ctx context.Context) (page.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	for _, key := range []string{"id", "name", "src"} {
		if v, ok := lookupAttr(e.node, key); ok {
			if f, found := e.p.contentFrames[v]; found {
				return f, nil
			}
		}
	}
	return nil, page.ErrNoContentFrame
}

func (e *StaticElement) Eval(ctx context.Context, js string, args ...any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.p.ElemEvalFn == nil {
		return nil, fmt.Errorf("testutil: no ElemEvalFn configured for element evaluation")
	}
	return e.p.ElemEvalFn(e, js, args...)
}

func (e *StaticElement) Release(ctx context.Context) error {
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	if e.released {
		return nil
	}
	e.released = true
	e.p.released++
	return nil
}

// Node 暴露底层节点,仅供 testutil 内部与自测使用
func (e *StaticElement) Node() *html.Node { return e.node }

// PositionInParent 返回元素在父元素下的 1 基位置(nth-child 序号与
// 同标签 nth-of-type 序号),供测试响应位置类脚本。
func (e *StaticElement) PositionInParent() (nthChild, nthOfType int) {
	return nthChildIndex(e.node), nthOfTypeIndex(e.node)
}

// StaticFrame 是 page.Frame 的可配置实现
type StaticFrame struct {
	FrameID       string
	FrameURL      string
	FrameName     string
	FrameElements int
	// URLErr 注入探活失败
	URLErr error
	// URLDelay 模拟慢探活,用于超时路径
	URLDelay time.Duration
}

func (f *StaticFrame) ID() string { return f.FrameID }

func (f *StaticFrame) URL(ctx context.Context) (string, error) {
	if f.URLDelay > 0 {
		select {
		case <-time.After(f.URLDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.URLErr != nil {
		return "", f.URLErr
	}
	return f.FrameURL, nil
}

func (f *StaticFrame) Name(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.FrameName, nil
}

func (f *StaticFrame) ElementCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return f.FrameElements, nil
}
