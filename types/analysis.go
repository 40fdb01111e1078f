package types

import "time"

// IframeInfo describes one iframe probed during structure analysis.
type IframeInfo struct {
	// FrameID is the content frame's identity when it resolved, else empty.
	FrameID string `json:"frame_id,omitempty"`
	// URL is the content frame's URL when readable.
	URL string `json:"url,omitempty"`
	// Name is the frame's name attribute.
	Name string `json:"name,omitempty"`
	// Reason explains why the iframe is inaccessible (empty for accessible
	// frames): "no content frame", "cross-origin or blocked", "timeout".
	Reason string `json:"reason,omitempty"`
}

// IframeAnalysis aggregates the iframe probe.
// Invariant: Count == len(Accessible) + len(Inaccessible).
type IframeAnalysis struct {
	Detected     bool         `json:"detected"`
	Count        int          `json:"count"`
	Accessible   []IframeInfo `json:"accessible"`
	Inaccessible []IframeInfo `json:"inaccessible"`
}

// ModalStates reports blocking overlays detected on the page.
type ModalStates struct {
	HasDialog      bool `json:"has_dialog"`
	HasFileChooser bool `json:"has_file_chooser"`
	// BlockedBy lists the blocking condition names: "dialog", "fileChooser".
	BlockedBy []string `json:"blocked_by"`
}

// ElementCounts reports visibility and interactability totals.
type ElementCounts struct {
	TotalVisible      int `json:"total_visible"`
	TotalInteractable int `json:"total_interactable"`
	// MissingAria counts visible interactable elements lacking both an
	// accessible name and text content.
	MissingAria int `json:"missing_aria"`
}

// PageStructureAnalysis is one structural snapshot of the page. Produced
// per analysis call; it has no persistent identity.
type PageStructureAnalysis struct {
	Iframes     IframeAnalysis `json:"iframes"`
	ModalStates ModalStates    `json:"modal_states"`
	Elements    ElementCounts  `json:"elements"`
	// AnalyzedAt is when the snapshot was taken.
	AnalyzedAt time.Time `json:"analyzed_at"`
	// ProbeErrors records per-probe failures that degraded the snapshot to
	// partial results (the failed probe's section is zeroed).
	ProbeErrors []string `json:"probe_errors,omitempty"`
}

// FrameAnalysis is one frame's sub-analysis inside a parallel run.
type FrameAnalysis struct {
	FrameID      string        `json:"frame_id"`
	URL          string        `json:"url,omitempty"`
	ElementCount int           `json:"element_count"`
	Duration     time.Duration `json:"duration"`
	Err          string        `json:"error,omitempty"`
}

// WorkerStats summarizes the worker pool usage of a parallel analysis.
type WorkerStats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}

// ParallelAnalysisResult is the richer envelope returned by the parallel
// analysis path: the merged structural snapshot plus per-frame results and
// pool usage.
type ParallelAnalysisResult struct {
	PageStructureAnalysis
	FrameResults []FrameAnalysis `json:"frame_results"`
	WorkersUsed  int             `json:"workers_used"`
	Duration     time.Duration   `json:"duration"`
	Workers      WorkerStats     `json:"workers"`
}

// Warning levels for performance metrics.
const (
	WarnLevelWarning = "warning"
	WarnLevelDanger  = "danger"
)

// PerformanceWarning flags one threshold breach found by the metrics pass.
type PerformanceWarning struct {
	Type    string `json:"type"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// DOMMetrics describes tree size and shape.
type DOMMetrics struct {
	TotalElements int `json:"total_elements"`
	MaxDepth      int `json:"max_depth"`
	// LargeSubtrees counts subtrees with at least the configured descendant
	// threshold (default 500).
	LargeSubtrees int `json:"large_subtrees"`
}

// InteractionMetrics counts actionable elements.
type InteractionMetrics struct {
	ClickableElements int `json:"clickable_elements"`
	FormElements      int `json:"form_elements"`
	DisabledElements  int `json:"disabled_elements"`
}

// ResourceMetrics estimates page weight by referenced resources.
type ResourceMetrics struct {
	Images      int `json:"images"`
	Scripts     int `json:"scripts"`
	Stylesheets int `json:"stylesheets"`
}

// LayoutMetrics flags layout anomalies.
type LayoutMetrics struct {
	FixedPositionElements int `json:"fixed_position_elements"`
	// HighZIndexElements counts elements with z-index >= 1000.
	HighZIndexElements int `json:"high_z_index_elements"`
	// ExtremeZIndexElements counts elements with z-index >= 9999.
	ExtremeZIndexElements int `json:"extreme_z_index_elements"`
}

// PerformanceMetrics is the heavier complexity pass over the full element
// tree. On failure the analyzer returns a zeroed value carrying exactly one
// danger-level warning; the pass never propagates an error.
type PerformanceMetrics struct {
	DOM         DOMMetrics           `json:"dom"`
	Interaction InteractionMetrics   `json:"interaction"`
	Resources   ResourceMetrics      `json:"resources"`
	Layout      LayoutMetrics        `json:"layout"`
	Warnings    []PerformanceWarning `json:"warnings"`
	CollectedAt time.Time            `json:"collected_at"`
}

// ParallelRecommendation is the verdict of the complexity scorer.
type ParallelRecommendation struct {
	// UseParallel is true when the score crosses the recommend threshold.
	UseParallel bool `json:"use_parallel"`
	// Strongly is true when the score crosses the strong threshold.
	Strongly bool   `json:"strongly"`
	Score    int    `json:"score"`
	Reason   string `json:"reason"`
}
