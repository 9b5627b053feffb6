package metrics

import (
	"time"
)

// Timer measures the wall time elapsed since it was started.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer at the current instant.
func NewTimer() Timer {
	return Timer{start: time.Now()}
}

// Elapsed returns the time since the timer was started.
func (t Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
