package frames

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_TrackerAccounting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("active count equals tracked minus untracked", prop.ForAll(
		func(numFrames, numUntracks int) bool {
			ctx := context.Background()
			tr := NewTracker(&fakePage{}, testConfig(), nil, nil)
			defer tr.Dispose()

			for i := 0; i < numFrames; i++ {
				f := &fakeFrame{
					id:    fmt.Sprintf("frame-%d", i),
					url:   fmt.Sprintf("https://example.com/%d", i),
					count: i,
				}
				if _, err := tr.Track(ctx, f); err != nil {
					t.Logf("track %d failed: %v", i, err)
					return false
				}
			}

			untracked := numUntracks % (numFrames + 1)
			for i := 0; i < untracked; i++ {
				tr.Untrack(fmt.Sprintf("frame-%d", i))
			}

			if got := tr.ActiveCount(); got != numFrames-untracked {
				t.Logf("active = %d, want %d", got, numFrames-untracked)
				return false
			}
			stats := tr.Stats()
			if stats.TotalTracked != int64(numFrames) {
				t.Logf("total tracked = %d, want %d", stats.TotalTracked, numFrames)
				return false
			}
			if _, ok := tr.Get("frame-0"); ok != (untracked == 0) {
				t.Logf("frame-0 presence = %v after %d untracks", ok, untracked)
				return false
			}
			if numFrames > untracked {
				if _, ok := tr.Get(fmt.Sprintf("frame-%d", numFrames-1)); !ok {
					t.Logf("last frame missing while still tracked")
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 15),
		gen.IntRange(0, 30),
	))

	properties.Property("re-tracking refreshes metadata without a new identity", prop.ForAll(
		func(path string, firstCount, secondCount int) bool {
			ctx := context.Background()
			tr := NewTracker(&fakePage{}, testConfig(), nil, nil)
			defer tr.Dispose()

			f := &fakeFrame{id: "frame-a", url: "https://example.com/" + path, count: firstCount}
			first, err := tr.Track(ctx, f)
			if err != nil {
				t.Logf("first track failed: %v", err)
				return false
			}

			f.url = "https://example.com/" + path + "/moved"
			f.count = secondCount
			second, err := tr.Track(ctx, f)
			if err != nil {
				t.Logf("second track failed: %v", err)
				return false
			}

			if second.FrameID != first.FrameID {
				t.Logf("frame ID changed: %s -> %s", first.FrameID, second.FrameID)
				return false
			}
			if !second.TrackedAt.Equal(first.TrackedAt) {
				t.Logf("TrackedAt changed on refresh")
				return false
			}
			if second.ElementCount != secondCount {
				t.Logf("element count = %d, want %d", second.ElementCount, secondCount)
				return false
			}
			if stats := tr.Stats(); stats.TotalTracked != 1 {
				t.Logf("total tracked = %d, want 1", stats.TotalTracked)
				return false
			}
			return true
		},
		gen.Identifier(),
		gen.IntRange(0, 500),
		gen.IntRange(0, 500),
	))

	properties.TestingRun(t)
}
