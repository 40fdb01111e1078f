package types

import "time"

// FrameMetadata is the tracker's non-owning record of one frame. It holds
// identities and scalars only, never a live frame reference, so tracking a
// frame can never be the reason it stays alive.
type FrameMetadata struct {
	FrameID       string    `json:"frame_id"`
	URL           string    `json:"url"`
	Name          string    `json:"name,omitempty"`
	ParentFrameID string    `json:"parent_frame_id,omitempty"`
	IsDetached    bool      `json:"is_detached"`
	TrackedAt     time.Time `json:"tracked_at"`
	LastSeen      time.Time `json:"last_seen"`
	ElementCount  int       `json:"element_count"`
}

// Age returns how long the frame has been tracked.
func (m *FrameMetadata) Age() time.Duration {
	return time.Since(m.TrackedAt)
}

// FrameIssue flags a tracked frame that looks like a performance problem.
type FrameIssue struct {
	FrameID string `json:"frame_id"`
	URL     string `json:"url,omitempty"`
	// Kind is "element_load" (too many descendants) or "age" (tracked longer
	// than the configured maximum).
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// FrameStats aggregates the tracker's counters.
type FrameStats struct {
	ActiveFrames   int   `json:"active_frames"`
	DetachedFrames int   `json:"detached_frames"`
	TotalTracked   int64 `json:"total_tracked"`
	ReapCycles     int64 `json:"reap_cycles"`
}

// HandleStats aggregates the resource tracker's counters.
type HandleStats struct {
	ActiveCount     int   `json:"active_count"`
	PeakCount       int   `json:"peak_count"`
	TotalTracked    int64 `json:"total_tracked"`
	DisposeFailures int64 `json:"dispose_failures"`
}
