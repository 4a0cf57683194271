package stream

import (
	"bufio"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/hlog"
)

// WriteEvent encodes ev in the text/event-stream format. Multi-line data is
// split over several data fields, which the browser joins back with newlines.
func WriteEvent(w io.Writer, ev Event) error {
	var sb strings.Builder
	if ev.Name != "" {
		sb.WriteString("event: ")
		sb.WriteString(ev.Name)
		sb.WriteByte('\n')
	}
	for line := range strings.SplitSeq(ev.Data, "\n") {
		sb.WriteString("data: ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')

	_, err := io.WriteString(w, sb.String())
	return err
}

// Handler streams broker events to the client until it disconnects or the
// broker shuts down. A comment is sent every heartbeat to keep proxies from
// closing an idle connection.
func (b *Broker) Handler(heartbeat time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		if b.Closed() {
			http.Error(w, "event stream shutting down", http.StatusServiceUnavailable)
			return
		}

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")

		events, unsubscribe := b.Subscribe()
		defer unsubscribe()

		logger := hlog.FromRequest(r)
		logger.Debug().Msg("Event stream opened")

		bw := bufio.NewWriter(w)
		flush := func() error {
			if err := bw.Flush(); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		}

		if _, err := bw.WriteString(": connected\n\n"); err != nil {
			return
		}
		if err := flush(); err != nil {
			return
		}

		var ping <-chan time.Time
		if heartbeat > 0 {
			ticker := time.NewTicker(heartbeat)
			defer ticker.Stop()
			ping = ticker.C
		}

		for {
			select {
			case <-r.Context().Done():
				logger.Debug().Msg("Event stream closed (client disconnect)")
				return
			case <-ping:
				if _, err := bw.WriteString(": ping\n\n"); err != nil {
					return
				}
				if err := flush(); err != nil {
					return
				}
			case ev, ok := <-events:
				if !ok {
					logger.Debug().Msg("Event stream closed (channel closed)")
					return
				}
				if err := WriteEvent(bw, ev); err != nil {
					logger.Debug().Err(err).Msg("Event write failed")
					return
				}
				if err := flush(); err != nil {
					return
				}
			}
		}
	}
}
