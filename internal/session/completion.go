package session

// DetectorState is the completion state of the active segment
type DetectorState int

const (
	InProgress DetectorState = iota
	PendingConfirmation
	Completed
)

func (s DetectorState) String() string {
	switch s {
	case InProgress:
		return "in_progress"
	case PendingConfirmation:
		return "pending_confirmation"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// EventKind enumerates what the detector reacts to
type EventKind int

const (
	// EventAllResolved fires when every item of the segment is resolved
	EventAllResolved EventKind = iota
	// EventExpired fires when the countdown reaches zero
	EventExpired
	// EventSettled fires when the settle delay after EventAllResolved ends
	EventSettled
	// EventContinue is the player's explicit continue action
	EventContinue
	// EventAutoAdvance fires when the auto-advance delay ends
	EventAutoAdvance
)

// Event is an input to the detector, tagged with the segment token it
// was raised for.
type Event struct {
	Kind  EventKind
	Token string
}

// Effect is a side effect the session must carry out after a transition
type Effect int

const (
	EffectStopClock Effect = iota
	EffectScheduleSettle
	EffectRoundComplete
	EffectScheduleAutoAdvance
	EffectAwaitContinue
	EffectSegmentDone
)

// Detector collapses the racing completion paths of a segment (all items
// resolved, timer expiry, continue) into exactly one completion.
type Detector struct {
	state       DetectorState
	guard       bool
	token       string
	autoAdvance bool
}

// NewDetector creates a detector. With autoAdvance the pending state
// moves on by itself after a delay; otherwise it waits for EventContinue.
func NewDetector(autoAdvance bool) *Detector {
	return &Detector{state: Completed, autoAdvance: autoAdvance}
}

// Reset arms the detector for a new segment
func (d *Detector) Reset(token string) {
	d.state = InProgress
	d.guard = false
	d.token = token
}

// State returns the current state
func (d *Detector) State() DetectorState { return d.state }

// Token returns the segment token the detector is armed for
func (d *Detector) Token() string { return d.token }

// OnEvent applies an event and returns the resulting state and the side
// effects to perform. Events for another segment token are ignored.
func (d *Detector) OnEvent(e Event) (DetectorState, []Effect) {
	if e.Token != d.token {
		return d.state, nil
	}

	switch e.Kind {
	case EventAllResolved:
		if d.state != InProgress || d.guard {
			return d.state, nil
		}
		d.guard = true
		return d.state, []Effect{EffectStopClock, EffectScheduleSettle}

	case EventExpired:
		if d.state != InProgress || d.guard {
			return d.state, nil
		}
		d.guard = true
		d.state = PendingConfirmation
		return d.state, []Effect{EffectStopClock, EffectRoundComplete, d.pendingEffect()}

	case EventSettled:
		if d.state != InProgress || !d.guard {
			return d.state, nil
		}
		d.state = PendingConfirmation
		return d.state, []Effect{EffectRoundComplete, d.pendingEffect()}

	case EventContinue, EventAutoAdvance:
		if d.state != PendingConfirmation {
			return d.state, nil
		}
		d.state = Completed
		// the next segment's first completion must not be swallowed
		d.guard = false
		return d.state, []Effect{EffectSegmentDone}
	}

	return d.state, nil
}

func (d *Detector) pendingEffect() Effect {
	if d.autoAdvance {
		return EffectScheduleAutoAdvance
	}
	return EffectAwaitContinue
}
