package monitor

// SessionState is the rewind state machine's per-session state.
type SessionState int

const (
	// StateNormal means playback is untouched.
	StateNormal SessionState = iota

	// StateOverrideActive means subtitles are being forced for this session.
	StateOverrideActive
)

func (s SessionState) String() string {
	if s == StateOverrideActive {
		return "override_active"
	}
	return "normal"
}

// IntentKind is an action the state machine wants executed for a session.
type IntentKind int

const (
	IntentNone IntentKind = iota
	IntentApplyOverride
	IntentRestoreOverride
)

func (k IntentKind) String() string {
	switch k {
	case IntentApplyOverride:
		return "apply_override"
	case IntentRestoreOverride:
		return "restore_override"
	default:
		return "none"
	}
}

// Detector is one session's rewind state machine. It consumes transition
// classifications and emits intents; it performs no I/O itself.
type Detector struct {
	state         SessionState
	confirmCycles int
	forwardStreak int
}

// NewDetector returns a detector in StateNormal. confirmCycles is how many
// consecutive forward classifications release an active override.
func NewDetector(confirmCycles int) *Detector {
	return &Detector{
		state:         StateNormal,
		confirmCycles: confirmCycles,
	}
}

// State returns the current state.
func (d *Detector) State() SessionState {
	return d.state
}

// Advance feeds one classification into the state machine and returns the
// intent to execute, if any.
//
// A rewind in StateNormal engages the override. Further rewinds while the
// override is active keep it engaged without re-saving the user's selection;
// the original selection is only captured on the engage edge. Forward
// playback must be observed for confirmCycles consecutive polls before the
// override is released, so a user rewinding repeatedly does not see
// subtitles flap on and off.
func (d *Detector) Advance(classification Transition) IntentKind {
	switch d.state {
	case StateNormal:
		if classification == TransitionRewind {
			d.state = StateOverrideActive
			d.forwardStreak = 0
			return IntentApplyOverride
		}
		return IntentNone

	case StateOverrideActive:
		if classification == TransitionForward {
			d.forwardStreak++
			if d.forwardStreak >= d.confirmCycles {
				d.state = StateNormal
				d.forwardStreak = 0
				return IntentRestoreOverride
			}
			return IntentNone
		}
		// Rewinds, pauses and unknowns all interrupt the confirmation window.
		d.forwardStreak = 0
		return IntentNone
	}

	return IntentNone
}
