package monitor

import "testing"

func TestDetectorStaysNormalWithoutRewind(t *testing.T) {
	d := NewDetector(2)

	for _, tr := range []Transition{
		TransitionUnknown, TransitionForward, TransitionPaused,
		TransitionSeekForward, TransitionForward, TransitionForward,
	} {
		if got := d.Advance(tr); got != IntentNone {
			t.Errorf("Advance(%v) in normal state = %v, want %v", tr, got, IntentNone)
		}
	}

	if d.State() != StateNormal {
		t.Errorf("state = %v, want %v", d.State(), StateNormal)
	}
}

func TestDetectorEngagesOnRewind(t *testing.T) {
	d := NewDetector(2)

	if got := d.Advance(TransitionRewind); got != IntentApplyOverride {
		t.Fatalf("Advance(rewind) = %v, want %v", got, IntentApplyOverride)
	}
	if d.State() != StateOverrideActive {
		t.Fatalf("state = %v, want %v", d.State(), StateOverrideActive)
	}

	// Rewinding again while engaged keeps the override without a second
	// apply; the saved selection must not be overwritten.
	if got := d.Advance(TransitionRewind); got != IntentNone {
		t.Errorf("repeated rewind = %v, want %v", got, IntentNone)
	}
	if d.State() != StateOverrideActive {
		t.Errorf("state after repeated rewind = %v, want %v", d.State(), StateOverrideActive)
	}
}

func TestDetectorConfirmationWindow(t *testing.T) {
	d := NewDetector(3)
	d.Advance(TransitionRewind)

	if got := d.Advance(TransitionForward); got != IntentNone {
		t.Fatalf("forward 1/3 = %v, want %v", got, IntentNone)
	}
	if got := d.Advance(TransitionForward); got != IntentNone {
		t.Fatalf("forward 2/3 = %v, want %v", got, IntentNone)
	}
	if got := d.Advance(TransitionForward); got != IntentRestoreOverride {
		t.Fatalf("forward 3/3 = %v, want %v", got, IntentRestoreOverride)
	}
	if d.State() != StateNormal {
		t.Errorf("state after release = %v, want %v", d.State(), StateNormal)
	}
}

func TestDetectorWindowResetsOnInterruption(t *testing.T) {
	tests := []struct {
		name      string
		interrupt Transition
	}{
		{"pause", TransitionPaused},
		{"unknown", TransitionUnknown},
		{"seek forward", TransitionSeekForward},
		{"another rewind", TransitionRewind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(2)
			d.Advance(TransitionRewind)

			// One forward, then an interruption: the window starts over.
			if got := d.Advance(TransitionForward); got != IntentNone {
				t.Fatalf("forward 1/2 = %v, want %v", got, IntentNone)
			}
			if got := d.Advance(tt.interrupt); got != IntentNone {
				t.Fatalf("interrupt = %v, want %v", got, IntentNone)
			}
			if got := d.Advance(TransitionForward); got != IntentNone {
				t.Fatalf("forward after interrupt = %v, want %v", got, IntentNone)
			}
			if got := d.Advance(TransitionForward); got != IntentRestoreOverride {
				t.Errorf("second consecutive forward = %v, want %v", got, IntentRestoreOverride)
			}
		})
	}
}

func TestDetectorReengagesAfterRelease(t *testing.T) {
	d := NewDetector(2)

	d.Advance(TransitionRewind)
	d.Advance(TransitionForward)
	if got := d.Advance(TransitionForward); got != IntentRestoreOverride {
		t.Fatalf("release = %v, want %v", got, IntentRestoreOverride)
	}

	// A later rewind starts a whole new cycle.
	if got := d.Advance(TransitionRewind); got != IntentApplyOverride {
		t.Errorf("re-engage = %v, want %v", got, IntentApplyOverride)
	}
}

func TestDetectorSingleCycleConfirmation(t *testing.T) {
	d := NewDetector(1)

	d.Advance(TransitionRewind)
	if got := d.Advance(TransitionForward); got != IntentRestoreOverride {
		t.Errorf("first forward with window of 1 = %v, want %v", got, IntentRestoreOverride)
	}
}
