package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/htmx-go-timer/internal/models"
	"github.com/wolfeidau/htmx-go-timer/internal/store"
)

var _ store.TimingStore = (*TimingStore)(nil)

// TimingStore implements store.TimingStore using in-memory storage.
// Data is lost on restart.
type TimingStore struct {
	mu      sync.RWMutex
	timings []*models.Timing
}

// NewTimingStore creates a new in-memory timing store.
func NewTimingStore() *TimingStore {
	return &TimingStore{}
}

// StartTiming appends a new running timing.
func (s *TimingStore) StartTiming(ctx context.Context, at time.Time) (*models.Timing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if latest := s.latest(); latest != nil && latest.Running() {
		return nil, store.ErrTimingRunning
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate timing id: %w", err)
	}

	timing := &models.Timing{ID: id, Start: at}
	s.timings = append(s.timings, timing)

	// Clone to avoid external modifications
	clone := *timing
	return &clone, nil
}

// StopTiming stops the latest timing.
func (s *TimingStore) StopTiming(ctx context.Context, at time.Time) (*models.Timing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := s.latest()
	if latest == nil {
		return nil, store.ErrNoTimings
	}
	if !latest.Running() {
		return nil, store.ErrTimingStopped
	}

	latest.Stop = at

	clone := *latest
	return &clone, nil
}

// Latest returns the most recently started timing.
func (s *TimingStore) Latest(ctx context.Context) (*models.Timing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := s.latest()
	if latest == nil {
		return nil, store.ErrNoTimings
	}

	clone := *latest
	return &clone, nil
}

// List returns copies of all timings, oldest first.
func (s *TimingStore) List(ctx context.Context) ([]*models.Timing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	timings := make([]*models.Timing, len(s.timings))
	for i, t := range s.timings {
		clone := *t
		timings[i] = &clone
	}
	return timings, nil
}

func (s *TimingStore) latest() *models.Timing {
	if len(s.timings) == 0 {
		return nil
	}
	return s.timings[len(s.timings)-1]
}
