package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/wolfeidau/htmx-go-timer/internal/models"
	"github.com/wolfeidau/htmx-go-timer/internal/reporter"
	"github.com/wolfeidau/htmx-go-timer/internal/store"
	"github.com/wolfeidau/htmx-go-timer/internal/stream"
	"github.com/wolfeidau/htmx-go-timer/internal/timefmt"
)

const (
	startButton = `<button hx-post="/new-timing">Start</button>`
	stopButton  = `<button hx-patch="/stop-timing">Stop</button>`
)

// PageContext is what the index template renders the stopwatch from.
type PageContext struct {
	Running bool
	Display string
}

func (s *Server) pageContext(r *http.Request) (any, error) {
	latest, err := s.store.Latest(r.Context())
	if errors.Is(err, store.ErrNoTimings) {
		return PageContext{Display: "0"}, nil
	}
	if err != nil {
		return nil, err
	}

	display, _, err := reporter.Message(r.Context(), s.store, s.now())
	if err != nil {
		return nil, err
	}
	return PageContext{Running: latest.Running(), Display: display}, nil
}

func (s *Server) healthcheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Server is OK"))
}

func (s *Server) newTiming(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := hlog.FromRequest(r)

	timing, err := s.store.StartTiming(ctx, s.now())
	if errors.Is(err, store.ErrTimingRunning) {
		s.metrics.TimingConflicts.Add(ctx, 1)
		writeButton(w, http.StatusConflict, stopButton)
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start timing")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.metrics.TimingsStartedTotal.Add(ctx, 1)
	logger.Info().Str("timing_id", timing.ID.String()).Str("client_ip", clientIP(r)).Msg("Timing started")

	s.broker.Publish(stream.Event{
		Name: stream.EventMessage,
		Data: timefmt.ElapsedSeconds(timing.Elapsed(timing.Start)),
	})

	writeButton(w, http.StatusOK, stopButton)
}

func (s *Server) stopTiming(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := hlog.FromRequest(r)

	timing, err := s.store.StopTiming(ctx, s.now())
	if errors.Is(err, store.ErrNoTimings) || errors.Is(err, store.ErrTimingStopped) {
		s.metrics.TimingConflicts.Add(ctx, 1)
		writeButton(w, http.StatusConflict, startButton)
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to stop timing")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.metrics.TimingsStoppedTotal.Add(ctx, 1)
	logger.Info().
		Str("timing_id", timing.ID.String()).
		Str("client_ip", clientIP(r)).
		Dur("elapsed", timing.Elapsed(timing.Stop)).
		Msg("Timing stopped")

	if timings, err := s.store.List(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to list timings after stop")
	} else {
		s.broker.Publish(stream.Event{Name: stream.EventMessage, Data: timefmt.TimingList(timings)})
	}

	writeButton(w, http.StatusOK, startButton)
}

type timingView struct {
	ID             string     `json:"id"`
	Start          time.Time  `json:"start"`
	Stop           *time.Time `json:"stop,omitempty"`
	Running        bool       `json:"running"`
	ElapsedSeconds float64    `json:"elapsed_seconds"`
}

func (s *Server) listTimings(w http.ResponseWriter, r *http.Request) {
	timings, err := s.store.List(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to list timings")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	now := s.now()
	views := make([]timingView, 0, len(timings))
	for _, t := range timings {
		views = append(views, newTimingView(t, now))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"timings": views}); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to encode timings")
	}
}

func newTimingView(t *models.Timing, now time.Time) timingView {
	v := timingView{
		ID:             t.ID.String(),
		Start:          t.Start,
		Running:        t.Running(),
		ElapsedSeconds: t.Elapsed(now).Seconds(),
	}
	if !t.Running() {
		stop := t.Stop
		v.Stop = &stop
	}
	return v
}

func writeButton(w http.ResponseWriter, status int, markup string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(markup))
}
