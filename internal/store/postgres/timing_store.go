package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/htmx-go-timer/internal/models"
	"github.com/wolfeidau/htmx-go-timer/internal/store"
)

var _ store.TimingStore = (*TimingStore)(nil)

const timingColumns = `id, started_at, stopped_at`

// TimingStore implements store.TimingStore using PostgreSQL.
type TimingStore struct {
	pool *pgxpool.Pool
}

// NewTimingStore creates a new PostgreSQL-backed timing store.
func NewTimingStore(pool *pgxpool.Pool) *TimingStore {
	return &TimingStore{
		pool: pool,
	}
}

// StartTiming inserts a new running timing. The partial unique index on
// running timings rejects a second concurrent start.
func (s *TimingStore) StartTiming(ctx context.Context, at time.Time) (*models.Timing, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate timing id: %w", err)
	}

	query := `
		INSERT INTO timings (id, started_at)
		VALUES ($1, $2)
		RETURNING ` + timingColumns

	timing, err := scanTiming(s.pool.QueryRow(ctx, query, id, at))
	if err != nil {
		mapped := mapPostgresError(err)
		if errors.Is(mapped, store.ErrTimingRunning) {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to start timing: %w", mapped)
	}

	log.Debug().Str("timing_id", timing.ID.String()).Msg("Started timing")

	return timing, nil
}

// StopTiming stops the latest timing.
func (s *TimingStore) StopTiming(ctx context.Context, at time.Time) (*models.Timing, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	latest, err := scanTiming(tx.QueryRow(ctx, `
		SELECT `+timingColumns+`
		FROM timings
		ORDER BY seq DESC
		LIMIT 1
		FOR UPDATE
	`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNoTimings
		}
		return nil, fmt.Errorf("failed to load latest timing: %w", mapPostgresError(err))
	}

	if !latest.Running() {
		return nil, store.ErrTimingStopped
	}

	stopped, err := scanTiming(tx.QueryRow(ctx, `
		UPDATE timings
		SET stopped_at = $2
		WHERE id = $1
		RETURNING `+timingColumns, latest.ID, at))
	if err != nil {
		return nil, fmt.Errorf("failed to stop timing: %w", mapPostgresError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit stop: %w", mapPostgresError(err))
	}

	log.Debug().Str("timing_id", stopped.ID.String()).Msg("Stopped timing")

	return stopped, nil
}

// Latest returns the most recently started timing.
func (s *TimingStore) Latest(ctx context.Context) (*models.Timing, error) {
	timing, err := scanTiming(s.pool.QueryRow(ctx, `
		SELECT `+timingColumns+`
		FROM timings
		ORDER BY seq DESC
		LIMIT 1
	`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNoTimings
		}
		return nil, fmt.Errorf("failed to get latest timing: %w", mapPostgresError(err))
	}
	return timing, nil
}

// List returns all timings, oldest first.
func (s *TimingStore) List(ctx context.Context) ([]*models.Timing, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+timingColumns+`
		FROM timings
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list timings: %w", mapPostgresError(err))
	}

	timings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Timing, error) {
		return scanTiming(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan timings: %w", mapPostgresError(err))
	}

	return timings, nil
}

func scanTiming(row pgx.Row) (*models.Timing, error) {
	var (
		timing  models.Timing
		stopped *time.Time
	)
	if err := row.Scan(&timing.ID, &timing.Start, &stopped); err != nil {
		return nil, err
	}
	if stopped != nil {
		timing.Stop = *stopped
	}
	return &timing, nil
}
