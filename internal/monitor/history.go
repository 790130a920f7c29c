package monitor

import "time"

// Transition classifies the position change between two consecutive samples
// of one session.
type Transition int

const (
	// TransitionUnknown means no decision could be made: first sample of a
	// session, a sub-interval duplicate poll, or an ambiguous delta.
	TransitionUnknown Transition = iota

	// TransitionForward is normal playback, position advancing with wall time.
	TransitionForward

	// TransitionPaused means the player reported itself paused.
	TransitionPaused

	// TransitionSeekForward is a deliberate jump ahead, or a backward jump so
	// large it reads as restarting the media rather than replaying a moment.
	TransitionSeekForward

	// TransitionRewind is a backward jump past the rewind threshold.
	TransitionRewind
)

func (t Transition) String() string {
	switch t {
	case TransitionForward:
		return "forward"
	case TransitionPaused:
		return "paused"
	case TransitionSeekForward:
		return "seek_forward"
	case TransitionRewind:
		return "rewind"
	default:
		return "unknown"
	}
}

// maxSamples bounds each session's history. Two samples decide a transition;
// the rest absorb the occasional out-of-order report.
const maxSamples = 4

// PositionSample is one observed playback position.
type PositionSample struct {
	Time     time.Time
	Position int64 // milliseconds
	Seq      uint64
}

// Tracker keeps a bounded position history per session and classifies each
// new sample against the previous one. It does no I/O and is owned by the
// poll loop; nothing here is safe for concurrent use.
type Tracker struct {
	opts    Options
	nextSeq uint64
	history map[string][]PositionSample
}

// NewTracker creates an empty tracker with the given tuning.
func NewTracker(opts Options) *Tracker {
	return &Tracker{
		opts:    opts,
		history: make(map[string][]PositionSample),
	}
}

// Observe records a sample for the session and classifies the transition
// from the previous sample. A session's first sample is never classified as
// a rewind: with no history there is nothing to rewind from.
func (t *Tracker) Observe(sessionKey string, now time.Time, positionMillis int64, paused bool) Transition {
	samples := t.history[sessionKey]

	classification := TransitionUnknown
	if len(samples) > 0 {
		prev := samples[len(samples)-1]
		delta := time.Duration(positionMillis-prev.Position) * time.Millisecond
		elapsed := now.Sub(prev.Time)
		classification = t.classify(delta, elapsed, paused)
	} else if paused {
		classification = TransitionPaused
	}

	t.nextSeq++
	samples = append(samples, PositionSample{Time: now, Position: positionMillis, Seq: t.nextSeq})
	if len(samples) > maxSamples {
		samples = samples[len(samples)-maxSamples:]
	}
	t.history[sessionKey] = samples

	return classification
}

// classify applies the transition rules to a single delta pair.
func (t *Tracker) classify(delta, elapsed time.Duration, paused bool) Transition {
	switch {
	case paused:
		return TransitionPaused

	case elapsed < t.opts.MinSampleInterval:
		// Duplicate or near-duplicate poll; deciding here would double-count
		// a single player report.
		return TransitionUnknown

	case delta < -t.opts.RewindThreshold:
		if t.opts.MaxRewind > 0 && -delta > t.opts.MaxRewind {
			return TransitionSeekForward
		}
		return TransitionRewind

	case delta < 0:
		// Small backward blips come from player buffering, not the user.
		if -delta <= t.opts.JitterTolerance {
			return TransitionForward
		}
		return TransitionUnknown

	case delta > elapsed+t.opts.JitterTolerance:
		return TransitionSeekForward

	case delta+t.opts.JitterTolerance < elapsed:
		// Position advanced slower than wall time: stalled or buffering.
		return TransitionUnknown

	default:
		return TransitionForward
	}
}

// Forget drops a session's history.
func (t *Tracker) Forget(sessionKey string) {
	delete(t.history, sessionKey)
}

// Len reports how many sessions currently have history.
func (t *Tracker) Len() int {
	return len(t.history)
}
