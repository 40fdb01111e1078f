package types

import (
	"context"

	"github.com/BaSui01/pagediag/page"
)

// SearchCriteria describes what to look for when a referenced element
// cannot be resolved. All fields are optional but at least one must be set.
// Inputs are immutable: the engine never mutates a caller's criteria.
type SearchCriteria struct {
	// Text matches element text content by similarity scoring.
	Text string `json:"text,omitempty"`
	// Role matches the explicit ARIA role, falling back to implicit roles
	// derived from the tag.
	Role string `json:"role,omitempty"`
	// TagName matches the element tag.
	TagName string `json:"tag_name,omitempty"`
	// Attributes matches exact attribute name/value pairs.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Empty reports whether no criterion is set.
func (c SearchCriteria) Empty() bool {
	return c.Text == "" && c.Role == "" && c.TagName == "" && len(c.Attributes) == 0
}

// AlternativeElement is one discovered candidate for a failed selector.
// The Handle is owned by the caller once returned and must be released;
// candidates that are not returned have their handles disposed by the
// engine before the call completes.
type AlternativeElement struct {
	// Selector is a synthesized selector expected to re-resolve the
	// candidate, preferring unique shapes (id, data attributes) over
	// positional ones.
	Selector string `json:"selector"`
	// Confidence is a heuristic score in [0,1].
	Confidence float64 `json:"confidence"`
	// Reason names the strategy and evidence behind the match.
	Reason string `json:"reason"`
	// ElementID identifies the candidate for logging and deduplication.
	ElementID string `json:"element_id"`
	// Handle references the live element. Ownership transfers to the caller.
	Handle page.Element `json:"-"`
}

// ReleaseAlternatives disposes the handles of every candidate in the slice.
// Callers use it when they are done with a discovery result; failures are
// ignored because the handles may already be detached.
func ReleaseAlternatives(ctx context.Context, alts []AlternativeElement) {
	for _, alt := range alts {
		if alt.Handle != nil {
			_ = alt.Handle.Release(ctx)
		}
	}
}
