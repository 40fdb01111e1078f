// Package rodpage adapts a go-rod page to the page.Page contract consumed
// by the diagnostic engine. The adapter is a thin translation layer: element
// handles map to rod remote objects, scripts run through rod's evaluator,
// and frames are resolved live on every call so holding a Frame never pins
// the underlying browser frame.
package rodpage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/BaSui01/pagediag/page"
)

// Page wraps a rod page. Construct with New; the rod page stays owned by
// the caller and is never closed by the adapter.
type Page struct {
	p *rod.Page
}

// New wraps an already-open rod page.
func New(p *rod.Page) *Page {
	return &Page{p: p}
}

// Connect attaches to the browser behind controlURL. An empty controlURL
// launches a headless instance through the rod launcher.
func Connect(ctx context.Context, controlURL string) (*rod.Browser, error) {
	if controlURL == "" {
		u, err := launcher.New().Headless(true).Launch()
		if err != nil {
			return nil, fmt.Errorf("rodpage: launch browser: %w", err)
		}
		controlURL = u
	}
	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("rodpage: connect browser: %w", err)
	}
	return browser, nil
}

// Rod exposes the underlying rod page for callers that need to drive the
// browser beyond the diagnostic surface.
func (p *Page) Rod() *rod.Page {
	return p.p
}

func (p *Page) URL(ctx context.Context) (string, error) {
	info, err := p.p.Context(ctx).Info()
	if err != nil {
		return "", classify(err)
	}
	return info.URL, nil
}

func (p *Page) Query(ctx context.Context, selector string) ([]page.Element, error) {
	els, err := p.p.Context(ctx).Elements(selector)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]page.Element, len(els))
	for i, el := range els {
		out[i] = &Element{el: el}
	}
	return out, nil
}

const countScript = `(sel) => document.querySelectorAll(sel).length`

func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	raw, err := p.Eval(ctx, countScript, selector)
	if err != nil {
		return 0, err
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("rodpage: decode count: %w", err)
	}
	return n, nil
}

func (p *Page) Eval(ctx context.Context, js string, args ...any) (json.RawMessage, error) {
	res, err := p.p.Context(ctx).Eval(js, args...)
	if err != nil {
		return nil, classify(err)
	}
	if res == nil {
		return json.RawMessage("null"), nil
	}
	return res.Value.MarshalJSON()
}

// frameWalkDepthLimit bounds the nested-frame walk. Documents nested deeper
// are outside anything the analyzer probes.
const frameWalkDepthLimit = 5

func (p *Page) Frames(ctx context.Context) ([]page.Frame, error) {
	var out []page.Frame
	if err := collectFrames(ctx, p.p, &out, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// collectFrames walks iframe/frame elements depth first. Frames whose
// content document cannot be resolved (cross-origin restrictions, detach
// races) are skipped here; the structure analyzer attributes those through
// its own probes.
func collectFrames(ctx context.Context, root *rod.Page, out *[]page.Frame, depth int) error {
	if depth >= frameWalkDepthLimit {
		return nil
	}
	els, err := root.Context(ctx).Elements("iframe, frame")
	if err != nil {
		return classify(err)
	}
	defer func() {
		for _, el := range els {
			_ = el.Release()
		}
	}()
	for _, el := range els {
		if err := ctx.Err(); err != nil {
			return err
		}
		fp, err := el.Context(ctx).Frame()
		if err != nil {
			continue
		}
		*out = append(*out, &Frame{fp: fp})
		// a subtree lost to a detach race is skipped, cancellation is not
		if err := collectFrames(ctx, fp, out, depth+1); err != nil && ctx.Err() != nil {
			return err
		}
	}
	return nil
}
