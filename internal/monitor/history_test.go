package monitor

import (
	"testing"
	"time"
)

func TestTrackerFirstSample(t *testing.T) {
	tracker := NewTracker(DefaultOptions())
	base := time.Now()

	// A first observation has nothing to compare against, even at a position
	// deep into the media.
	if got := tracker.Observe("1", base, 3_000_000, false); got != TransitionUnknown {
		t.Errorf("first sample = %v, want %v", got, TransitionUnknown)
	}

	if got := tracker.Observe("2", base, 500_000, true); got != TransitionPaused {
		t.Errorf("first paused sample = %v, want %v", got, TransitionPaused)
	}
}

func TestTrackerClassification(t *testing.T) {
	// Defaults: threshold 5s, max rewind 300s, jitter 1.5s, min interval 800ms.
	tests := []struct {
		name    string
		prev    int64
		next    int64
		elapsed time.Duration
		paused  bool
		want    Transition
	}{
		{"normal playback", 100_000, 102_000, 2 * time.Second, false, TransitionForward},
		{"backward at exact threshold", 100_000, 95_000, 2 * time.Second, false, TransitionUnknown},
		{"backward just past threshold", 100_000, 94_999, 2 * time.Second, false, TransitionRewind},
		{"deep rewind", 100_000, 40_000, 2 * time.Second, false, TransitionRewind},
		{"backward within jitter", 100_000, 99_000, 2 * time.Second, false, TransitionForward},
		{"backward between jitter and threshold", 100_000, 97_000, 2 * time.Second, false, TransitionUnknown},
		{"paused wins over rewind", 100_000, 40_000, 2 * time.Second, true, TransitionPaused},
		{"paused holding position", 100_000, 100_000, 2 * time.Second, true, TransitionPaused},
		{"seek ahead", 100_000, 162_000, 2 * time.Second, false, TransitionSeekForward},
		{"position frozen while playing", 100_000, 100_000, 2 * time.Second, false, TransitionUnknown},
		{"crawling slower than wall time", 100_000, 100_200, 2 * time.Second, false, TransitionUnknown},
		{"slightly slow but within jitter", 100_000, 100_600, 2 * time.Second, false, TransitionForward},
		{"jump back past max rewind", 400_000, 5_000, 2 * time.Second, false, TransitionSeekForward},
		{"sub-interval duplicate poll", 100_000, 40_000, 500 * time.Millisecond, false, TransitionUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(DefaultOptions())
			base := time.Now()

			tracker.Observe("s", base, tt.prev, false)
			got := tracker.Observe("s", base.Add(tt.elapsed), tt.next, tt.paused)
			if got != tt.want {
				t.Errorf("Observe(%d -> %d over %s) = %v, want %v", tt.prev, tt.next, tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestTrackerMaxRewindDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxRewind = 0
	tracker := NewTracker(opts)
	base := time.Now()

	tracker.Observe("s", base, 2_000_000, false)
	got := tracker.Observe("s", base.Add(2*time.Second), 5_000, false)
	if got != TransitionRewind {
		t.Errorf("uncapped deep rewind = %v, want %v", got, TransitionRewind)
	}
}

func TestTrackerResumeAfterPause(t *testing.T) {
	tracker := NewTracker(DefaultOptions())
	base := time.Now()

	tracker.Observe("s", base, 100_000, false)
	tracker.Observe("s", base.Add(2*time.Second), 102_000, false)

	// A long pause holds the position; the paused sample still lands in the
	// history so the resume compares against pause-time position, not
	// pre-pause position.
	if got := tracker.Observe("s", base.Add(4*time.Second), 102_000, true); got != TransitionPaused {
		t.Fatalf("pause = %v, want %v", got, TransitionPaused)
	}
	if got := tracker.Observe("s", base.Add(60*time.Second), 102_000, true); got != TransitionPaused {
		t.Fatalf("held pause = %v, want %v", got, TransitionPaused)
	}

	if got := tracker.Observe("s", base.Add(62*time.Second), 103_500, false); got != TransitionForward {
		t.Errorf("resume = %v, want %v", got, TransitionForward)
	}
}

func TestTrackerSessionsIndependent(t *testing.T) {
	tracker := NewTracker(DefaultOptions())
	base := time.Now()

	tracker.Observe("a", base, 100_000, false)
	tracker.Observe("b", base, 500_000, false)

	// Session b rewinds; session a plays on. Neither decision leaks.
	gotA := tracker.Observe("a", base.Add(2*time.Second), 102_000, false)
	gotB := tracker.Observe("b", base.Add(2*time.Second), 480_000, false)

	if gotA != TransitionForward {
		t.Errorf("session a = %v, want %v", gotA, TransitionForward)
	}
	if gotB != TransitionRewind {
		t.Errorf("session b = %v, want %v", gotB, TransitionRewind)
	}
}

func TestTrackerForget(t *testing.T) {
	tracker := NewTracker(DefaultOptions())
	base := time.Now()

	tracker.Observe("s", base, 100_000, false)
	tracker.Observe("s", base.Add(2*time.Second), 102_000, false)
	if tracker.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tracker.Len())
	}

	tracker.Forget("s")
	if tracker.Len() != 0 {
		t.Fatalf("Len() after Forget = %d, want 0", tracker.Len())
	}

	// Re-observation starts a fresh history; a backward position relative to
	// the forgotten samples is not a rewind.
	if got := tracker.Observe("s", base.Add(4*time.Second), 10_000, false); got != TransitionUnknown {
		t.Errorf("sample after Forget = %v, want %v", got, TransitionUnknown)
	}
}

func TestTrackerHistoryBounded(t *testing.T) {
	tracker := NewTracker(DefaultOptions())
	base := time.Now()

	for i := range 20 {
		tracker.Observe("s", base.Add(time.Duration(i)*2*time.Second), int64(i)*2_000, false)
	}

	if got := len(tracker.history["s"]); got != maxSamples {
		t.Errorf("history length = %d, want %d", got, maxSamples)
	}

	// The retained window is the most recent samples.
	last := tracker.history["s"][maxSamples-1]
	if last.Position != 38_000 {
		t.Errorf("newest retained position = %d, want 38000", last.Position)
	}
}
