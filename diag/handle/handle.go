package handle

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/pagediag/page"
)

// SmartHandle wraps a page-side element handle with deterministic,
// idempotent disposal. Disposing twice, or after the remote object has
// already become invalid, is safe: the failure is swallowed and logged,
// never propagated, because cleanup must not mask the outcome of the
// operation that used the handle.
type SmartHandle struct {
	id        string
	label     string
	el        page.Element
	trackedAt time.Time

	disposed atomic.Bool
	mgr      *Manager
}

// ID returns the tracker-assigned handle identity.
func (h *SmartHandle) ID() string { return h.id }

// Label returns the human-readable tag supplied at Track time.
func (h *SmartHandle) Label() string { return h.label }

// Element returns the wrapped element. Callers must not use it after
// Dispose.
func (h *SmartHandle) Element() page.Element { return h.el }

// Disposed reports whether the handle has been released.
func (h *SmartHandle) Disposed() bool { return h.disposed.Load() }

// Dispose releases the underlying remote handle. Idempotent; disposal
// failures are logged and swallowed.
func (h *SmartHandle) Dispose(ctx context.Context) {
	_ = h.release(ctx)
}

// Release is the error-returning variant of Dispose for callers that want
// to observe the failure. Still idempotent: the second and later calls
// return nil without touching the page.
func (h *SmartHandle) Release(ctx context.Context) error {
	return h.release(ctx)
}

// SmartHandle implements page.Element by delegation, so a tracked handle can
// be passed wherever a raw element is expected. ID reports the tracker
// identity rather than the remote object identity; use Element().ID for the
// latter.
var _ page.Element = (*SmartHandle)(nil)

func (h *SmartHandle) Tag(ctx context.Context) (string, error)  { return h.el.Tag(ctx) }
func (h *SmartHandle) Text(ctx context.Context) (string, error) { return h.el.Text(ctx) }

func (h *SmartHandle) Attribute(ctx context.Context, name string) (string, bool, error) {
	return h.el.Attribute(ctx, name)
}

func (h *SmartHandle) Attributes(ctx context.Context) (map[string]string, error) {
	return h.el.Attributes(ctx)
}

func (h *SmartHandle) Query(ctx context.Context, selector string) ([]page.Element, error) {
	return h.el.Query(ctx, selector)
}

func (h *SmartHandle) Parent(ctx context.Context) (page.Element, error) {
	return h.el.Parent(ctx)
}

func (h *SmartHandle) ContentFrame(ctx context.Context) (page.Frame, error) {
	return h.el.ContentFrame(ctx)
}

func (h *SmartHandle) Eval(ctx context.Context, js string, args ...any) (json.RawMessage, error) {
	return h.el.Eval(ctx, js, args...)
}

func (h *SmartHandle) release(ctx context.Context) error {
	if h.disposed.Swap(true) {
		return nil
	}

	err := h.el.Release(ctx)
	h.mgr.untrack(h, err)
	if err != nil {
		h.mgr.logger.Debug("handle disposal failed",
			zap.String("handle_id", h.id),
			zap.String("label", h.label),
			zap.Error(err),
		)
	}
	return err
}
