package rodpage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"

	"github.com/BaSui01/pagediag/page"
)

// Element wraps a rod element handle.
type Element struct {
	el *rod.Element
}

// elemWrapper bridges calling conventions: engine scripts take the element
// as their first argument, rod binds it as `this`.
const elemWrapper = `function (...args) { return (%s)(this, ...args); }`

func (e *Element) ID() string {
	return string(e.el.Object.ObjectID)
}

func (e *Element) Tag(ctx context.Context) (string, error) {
	raw, err := e.Eval(ctx, `(el) => el.tagName.toLowerCase()`)
	if err != nil {
		return "", err
	}
	var tag string
	if err := json.Unmarshal(raw, &tag); err != nil {
		return "", fmt.Errorf("rodpage: decode tag: %w", err)
	}
	return tag, nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	text, err := e.el.Context(ctx).Text()
	if err != nil {
		return "", classify(err)
	}
	return strings.TrimSpace(text), nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, classify(err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *Element) Attributes(ctx context.Context) (map[string]string, error) {
	node, err := e.el.Context(ctx).Describe(0, false)
	if err != nil {
		return nil, classify(err)
	}
	// DOM.describeNode reports attributes as a flat name/value list
	attrs := make(map[string]string, len(node.Attributes)/2)
	for i := 0; i+1 < len(node.Attributes); i += 2 {
		attrs[node.Attributes[i]] = node.Attributes[i+1]
	}
	return attrs, nil
}

func (e *Element) Query(ctx context.Context, selector string) ([]page.Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]page.Element, len(els))
	for i, el := range els {
		out[i] = &Element{el: el}
	}
	return out, nil
}

func (e *Element) Parent(ctx context.Context) (page.Element, error) {
	raw, err := e.Eval(ctx, `(el) => el.parentElement !== null`)
	if err != nil {
		return nil, err
	}
	var has bool
	if err := json.Unmarshal(raw, &has); err != nil {
		return nil, fmt.Errorf("rodpage: decode parent probe: %w", err)
	}
	if !has {
		return nil, page.ErrNotFound
	}
	parent, err := e.el.Context(ctx).ElementByJS(&rod.EvalOptions{JS: `() => this.parentElement`})
	if err != nil {
		return nil, classify(err)
	}
	return &Element{el: parent}, nil
}

func (e *Element) ContentFrame(ctx context.Context) (page.Frame, error) {
	node, err := e.el.Context(ctx).Describe(0, false)
	if err != nil {
		return nil, classify(err)
	}
	if node.FrameID == "" {
		return nil, page.ErrNoContentFrame
	}
	fp, err := e.el.Context(ctx).Frame()
	if err != nil {
		return nil, classify(err)
	}
	return &Frame{fp: fp}, nil
}

func (e *Element) Eval(ctx context.Context, js string, args ...any) (json.RawMessage, error) {
	res, err := e.el.Context(ctx).Eval(fmt.Sprintf(elemWrapper, js), args...)
	if err != nil {
		return nil, classify(err)
	}
	if res == nil {
		return json.RawMessage("null"), nil
	}
	return res.Value.MarshalJSON()
}

func (e *Element) Release(ctx context.Context) error {
	if err := e.el.Context(ctx).Release(); err != nil {
		err = classify(err)
		if errors.Is(err, page.ErrDetached) {
			return nil
		}
		return err
	}
	return nil
}
