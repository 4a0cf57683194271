// Package reporter pushes the stopwatch state to connected browsers on a fixed interval.
package reporter

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/htmx-go-timer/internal/store"
	"github.com/wolfeidau/htmx-go-timer/internal/stream"
	"github.com/wolfeidau/htmx-go-timer/internal/telemetry"
	"github.com/wolfeidau/htmx-go-timer/internal/timefmt"
)

const DefaultInterval = time.Second

// Publisher receives the rendered stopwatch text.
type Publisher interface {
	Publish(ev stream.Event) int
}

// Reporter publishes the elapsed seconds of the running timing, or the list
// of finished timings once the latest has been stopped.
type Reporter struct {
	store     store.TimingStore
	publisher Publisher
	interval  time.Duration
	now       func() time.Time
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithInterval sets the publish interval.
func WithInterval(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		r.now = now
	}
}

func New(st store.TimingStore, publisher Publisher, opts ...Option) *Reporter {
	r := &Reporter{
		store:     st,
		publisher: publisher,
		interval:  DefaultInterval,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run publishes on every tick until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.interval).Msg("Reporter started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reporter stopped")
			return nil
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				telemetry.GetMetrics().ReporterTickErrorTotal.Add(ctx, 1)
				log.Error().Err(err).Msg("Failed to report timing")
			}
		}
	}
}

// Tick publishes the current state once. Nothing is published before the
// first timing exists.
func (r *Reporter) Tick(ctx context.Context) error {
	message, ok, err := Message(ctx, r.store, r.now())
	if err != nil || !ok {
		return err
	}
	r.publisher.Publish(stream.Event{Name: stream.EventMessage, Data: message})
	return nil
}

// Message renders the stopwatch text for the store's current state. ok is
// false when there are no timings yet.
func Message(ctx context.Context, st store.TimingStore, now time.Time) (string, bool, error) {
	latest, err := st.Latest(ctx)
	if errors.Is(err, store.ErrNoTimings) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if latest.Running() {
		return timefmt.ElapsedSeconds(latest.Elapsed(now)), true, nil
	}

	timings, err := st.List(ctx)
	if err != nil {
		return "", false, err
	}
	return timefmt.TimingList(timings), true, nil
}
