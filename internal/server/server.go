package server

import (
	"net/http"
	"time"

	"filippo.io/csrf"
	"github.com/rs/zerolog"

	"github.com/wolfeidau/htmx-go-timer/internal/assets"
	httpmiddleware "github.com/wolfeidau/htmx-go-timer/internal/http"
	"github.com/wolfeidau/htmx-go-timer/internal/logger"
	"github.com/wolfeidau/htmx-go-timer/internal/store"
	"github.com/wolfeidau/htmx-go-timer/internal/stream"
	"github.com/wolfeidau/htmx-go-timer/internal/telemetry"
)

// Config holds the HTTP surface settings.
type Config struct {
	// LibsDir holds vendored browser libraries served under /libs/
	LibsDir string
	// CORSOrigins may read /events, /healthcheck and /timings cross-origin
	CORSOrigins []string
	// Heartbeat is the interval between SSE keep-alive comments
	Heartbeat time.Duration
	// TrustProxy takes the client IP from X-Forwarded-For/X-Real-IP
	TrustProxy bool
}

// Server wraps the stopwatch HTTP handlers
type Server struct {
	cfg      Config
	store    store.TimingStore
	broker   *stream.Broker
	pipeline *assets.Pipeline
	metrics  *telemetry.Metrics
	now      func() time.Time
}

// NewServer creates a new server with the given store, broker and asset pipeline
func NewServer(cfg Config, st store.TimingStore, broker *stream.Broker, pipeline *assets.Pipeline) *Server {
	if cfg.LibsDir == "" {
		cfg.LibsDir = "public/libs"
	}
	if cfg.Heartbeat == 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	return &Server{
		cfg:      cfg,
		store:    st,
		broker:   broker,
		pipeline: pipeline,
		metrics:  telemetry.GetMetrics(),
		now:      time.Now,
	}
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler(log zerolog.Logger) (http.Handler, error) {
	mux := http.NewServeMux()

	index, err := s.pipeline.Handler("index.html", "Timer", s.pageContext)
	if err != nil {
		return nil, err
	}
	mux.HandleFunc("GET /{$}", index)

	cors := httpmiddleware.CORSMiddleware(s.cfg.CORSOrigins)

	mux.Handle("GET /healthcheck", cors(http.HandlerFunc(s.healthcheck)))
	mux.Handle("GET /events", cors(s.broker.Handler(s.cfg.Heartbeat)))
	mux.Handle("GET /timings", cors(http.HandlerFunc(s.listTimings)))

	mux.HandleFunc("POST /new-timing", s.newTiming)
	mux.HandleFunc("PATCH /stop-timing", s.stopTiming)

	mux.Handle("GET /static/", httpmiddleware.StaticHandler("/static/", s.pipeline.Config().OutDir))
	mux.Handle("GET /libs/", httpmiddleware.StaticHandler("/libs/", s.cfg.LibsDir))

	// Cross-origin POST/PATCH are rejected, safe methods pass through
	protection := csrf.New()

	return httpmiddleware.Chain(mux,
		logger.NewRequests(log),
		httpmiddleware.ClientIPMiddleware(s.cfg.TrustProxy),
		protection.Handler,
	), nil
}

func clientIP(r *http.Request) string {
	return httpmiddleware.ClientIPFromContext(r.Context())
}
