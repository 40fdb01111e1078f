package rodpage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"

	"github.com/BaSui01/pagediag/page"
)

// Frame wraps a frame-scoped rod page. Every method evaluates in the
// frame's current execution context, so a detached frame fails with
// page.ErrDetached instead of serving stale data.
type Frame struct {
	fp *rod.Page
}

func (f *Frame) ID() string {
	return string(f.fp.FrameID)
}

func (f *Frame) URL(ctx context.Context) (string, error) {
	return f.evalString(ctx, `() => location.href`)
}

func (f *Frame) Name(ctx context.Context) (string, error) {
	return f.evalString(ctx, `() => window.name`)
}

func (f *Frame) ElementCount(ctx context.Context) (int, error) {
	raw, err := f.eval(ctx, `() => document.querySelectorAll('*').length`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("rodpage: decode element count: %w", err)
	}
	return n, nil
}

func (f *Frame) eval(ctx context.Context, js string) (json.RawMessage, error) {
	res, err := f.fp.Context(ctx).Eval(js)
	if err != nil {
		return nil, classify(err)
	}
	if res == nil {
		return json.RawMessage("null"), nil
	}
	return res.Value.MarshalJSON()
}

func (f *Frame) evalString(ctx context.Context, js string) (string, error) {
	raw, err := f.eval(ctx, js)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("rodpage: decode string result: %w", err)
	}
	return s, nil
}

// detachedMessages are the CDP failure messages that mean the remote
// object, node, or execution context behind a handle is gone.
var detachedMessages = []string{
	"Could not find object with given id",
	"Cannot find context with specified id",
	"Execution context was destroyed",
	"Node with given id does not belong to the document",
	"Inspected target navigated or closed",
}

// classify maps CDP-level staleness failures onto page.ErrDetached so
// components can recognize detached handles without knowing the backend.
// Context errors and everything else pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var cdpErr *cdp.Error
	if errors.As(err, &cdpErr) {
		for _, msg := range detachedMessages {
			if strings.Contains(cdpErr.Message, msg) {
				return fmt.Errorf("%w: %v", page.ErrDetached, err)
			}
		}
	}
	return err
}
