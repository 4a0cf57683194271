package store

import (
	"context"
	"errors"
	"time"

	"github.com/wolfeidau/htmx-go-timer/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrNoTimings     = errors.New("no timings recorded")
	ErrTimingRunning = errors.New("a timing is already running")
	ErrTimingStopped = errors.New("latest timing is already stopped")
)

// TimingStore persists the ordered list of timings. At most one timing, the
// latest, may be running at any time.
type TimingStore interface {
	// StartTiming appends a new running timing started at the given time.
	StartTiming(ctx context.Context, at time.Time) (*models.Timing, error)
	// StopTiming stops the latest timing at the given time.
	StopTiming(ctx context.Context, at time.Time) (*models.Timing, error)
	// Latest returns the most recently started timing.
	Latest(ctx context.Context) (*models.Timing, error)
	// List returns all timings, oldest first.
	List(ctx context.Context) ([]*models.Timing, error)
}
