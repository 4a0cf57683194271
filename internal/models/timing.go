package models

import (
	"time"

	"github.com/google/uuid"
)

// Timing is one start/stop interval measured by the stopwatch.
type Timing struct {
	ID    uuid.UUID `json:"id"`    // UUIDv7, sorts by creation
	Start time.Time `json:"start"`
	Stop  time.Time `json:"stop,omitzero"`
}

// Running returns true until the timing has been stopped.
func (t *Timing) Running() bool {
	return t.Stop.IsZero()
}

// Elapsed returns the time measured so far, or the final duration once stopped.
func (t *Timing) Elapsed(now time.Time) time.Duration {
	if t.Running() {
		return now.Sub(t.Start)
	}
	return t.Stop.Sub(t.Start)
}
