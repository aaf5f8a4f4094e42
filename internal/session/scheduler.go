package session

import (
	"sync"
	"time"
)

// Scheduler runs delayed and periodic callbacks for a session. The
// returned func cancels the callback; calling it more than once is safe.
type Scheduler interface {
	Every(d time.Duration, fn func()) (cancel func())
	After(d time.Duration, fn func()) (cancel func())
}

// TimeScheduler schedules callbacks on the runtime timers
type TimeScheduler struct{}

// Every calls fn on each tick of a ticker until cancelled
func (TimeScheduler) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// After calls fn once after d unless cancelled first
func (TimeScheduler) After(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
