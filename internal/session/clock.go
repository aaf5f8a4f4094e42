package session

// ClockMode selects the timer discipline for a segment
type ClockMode int

const (
	// ClockCountdown counts down from the segment time limit (competitive)
	ClockCountdown ClockMode = iota
	// ClockElapsed counts up without limit (practice)
	ClockElapsed
)

// ErosionInterval is how many elapsed ticks pass between idle penalties
// in quiz practice.
const ErosionInterval = 10

// TickResult reports what a single tick produced
type TickResult struct {
	Applied bool // false when the tick was ignored
	Expired bool // countdown reached zero on this tick
	Erode   bool // an idle penalty is due
}

// RoundClock is the per-segment timer. It owns no goroutine; the session
// drives it from scheduled callbacks and every tick carries the segment
// token it was scheduled for.
type RoundClock struct {
	mode    ClockMode
	token   string
	seconds int
	ticks   int
	erode   bool
	paused  bool
	stopped bool
	expired bool
}

// NewCountdownClock creates a clock that counts down from limit seconds
func NewCountdownClock(token string, limit int) *RoundClock {
	if limit < 0 {
		limit = 0
	}
	return &RoundClock{mode: ClockCountdown, token: token, seconds: limit}
}

// NewElapsedClock creates a clock that counts up from offset seconds.
// When erode is set, every ErosionInterval ticks report an idle penalty.
func NewElapsedClock(token string, offset int, erode bool) *RoundClock {
	if offset < 0 {
		offset = 0
	}
	return &RoundClock{mode: ClockElapsed, token: token, seconds: offset, erode: erode}
}

// Tick advances the clock by one second
func (c *RoundClock) Tick(token string) TickResult {
	if token != c.token || c.paused || c.stopped || c.expired {
		return TickResult{}
	}

	c.ticks++
	switch c.mode {
	case ClockCountdown:
		if c.seconds > 0 {
			c.seconds--
		}
		if c.seconds == 0 {
			c.expired = true
			return TickResult{Applied: true, Expired: true}
		}
	case ClockElapsed:
		c.seconds++
		if c.erode && c.ticks%ErosionInterval == 0 {
			return TickResult{Applied: true, Erode: true}
		}
	}
	return TickResult{Applied: true}
}

// Pause suspends ticking until Resume is called
func (c *RoundClock) Pause() { c.paused = true }

// Resume lifts a pause
func (c *RoundClock) Resume() { c.paused = false }

// Stop freezes the clock for good
func (c *RoundClock) Stop() { c.stopped = true }

// Paused reports whether the clock is waiting for a ready signal
func (c *RoundClock) Paused() bool { return c.paused }

// Expired reports whether a countdown has hit zero
func (c *RoundClock) Expired() bool { return c.expired }

// Mode returns the timer discipline
func (c *RoundClock) Mode() ClockMode { return c.mode }

// Token returns the segment token the clock belongs to
func (c *RoundClock) Token() string { return c.token }

// Remaining returns seconds left on a countdown, zero for elapsed clocks
func (c *RoundClock) Remaining() int {
	if c.mode != ClockCountdown {
		return 0
	}
	return c.seconds
}

// Elapsed returns the seconds shown by an elapsed clock, or the seconds
// consumed so far by a countdown.
func (c *RoundClock) Elapsed() int {
	if c.mode == ClockElapsed {
		return c.seconds
	}
	return c.ticks
}
