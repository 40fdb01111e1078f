package page

import (
	"context"
	"encoding/json"
	"errors"
)

// Sentinel errors drivers wrap so components can classify failures
// without knowing the backend.
var (
	// ErrNotFound indicates a selector resolved to no element.
	ErrNotFound = errors.New("page: element not found")
	// ErrNoContentFrame indicates an iframe element has no resolvable content frame.
	ErrNoContentFrame = errors.New("page: no content frame")
	// ErrDetached indicates the element or frame is no longer attached to the page.
	ErrDetached = errors.New("page: detached from page")
)

// Page is the browser-driving collaborator this engine consumes. It is the
// only contact surface with the live page: element query by CSS selector,
// script evaluation in page context, and frame enumeration. Implementations
// live under drivers/ (drivers/rodpage wraps go-rod); testutil.StaticPage
// provides an in-memory implementation for tests.
//
// All methods honor context cancellation. Eval returns the script's result
// serialized as JSON so components stay backend-neutral.
type Page interface {
	// URL returns the page's current URL.
	URL(ctx context.Context) (string, error)

	// Query returns all elements matching the CSS selector. Returned handles
	// must be released by the caller.
	Query(ctx context.Context, selector string) ([]Element, error)

	// Count reports how many elements match the selector without allocating
	// handles for them.
	Count(ctx context.Context, selector string) (int, error)

	// Eval evaluates a JavaScript function expression in page context and
	// returns its result as JSON.
	Eval(ctx context.Context, js string, args ...any) (json.RawMessage, error)

	// Frames enumerates the frames currently attached to the page, the main
	// frame excluded.
	Frames(ctx context.Context) ([]Frame, error)
}

// Element is a handle to a page-side element. Handles reference remote
// objects and must be released with Release when no longer needed; the
// element may detach at any time, in which case methods return an error
// wrapping ErrDetached.
type Element interface {
	// ID returns a stable identifier for the underlying remote object,
	// unique within the page for the element's lifetime.
	ID() string

	// Tag returns the lower-case tag name.
	Tag(ctx context.Context) (string, error)

	// Text returns the element's trimmed visible text content.
	Text(ctx context.Context) (string, error)

	// Attribute returns the named attribute's value. ok is false when the
	// attribute is absent.
	Attribute(ctx context.Context, name string) (value string, ok bool, err error)

	// Attributes returns all attributes as a map.
	Attributes(ctx context.Context) (map[string]string, error)

	// Query returns elements matching the selector scoped to this element's
	// subtree.
	Query(ctx context.Context, selector string) ([]Element, error)

	// Parent returns the parent element, or ErrNotFound at the document root.
	Parent(ctx context.Context) (Element, error)

	// ContentFrame resolves the content frame of an iframe/frame element.
	// Returns ErrNoContentFrame when the element hosts none, and a
	// cross-origin or access error when the frame exists but is not
	// reachable.
	ContentFrame(ctx context.Context) (Frame, error)

	// Eval evaluates a JavaScript function expression with this element
	// bound as the first argument.
	Eval(ctx context.Context, js string, args ...any) (json.RawMessage, error)

	// Release disposes the remote handle. Safe to call on an already
	// detached element.
	Release(ctx context.Context) error
}

// Frame is a non-owning view of a frame attached to the page. Holding a
// Frame must never keep the underlying frame alive; implementations resolve
// the live object per call and report ErrDetached once it is gone.
type Frame interface {
	// ID returns the frame's stable identity, unique within the browser
	// session.
	ID() string

	// URL returns the frame's current URL. This is the cheap liveness probe
	// used by the reaper: a detached frame fails here.
	URL(ctx context.Context) (string, error)

	// Name returns the frame's name attribute, possibly empty.
	Name(ctx context.Context) (string, error)

	// ElementCount reports the number of descendant elements in the frame's
	// document.
	ElementCount(ctx context.Context) (int, error)
}
