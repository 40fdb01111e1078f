// Package frames tracks frame identity and liveness for diagnostics.
//
// The Tracker is a side table keyed by frame ID. It records metadata
// scalars only and re-resolves live frames from the page when probing,
// so tracking never extends a frame's lifetime. A periodic reaper marks
// unreachable frames detached and purges them one cycle later.
package frames
