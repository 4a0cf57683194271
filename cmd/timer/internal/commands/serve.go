package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wolfeidau/htmx-go-timer/internal/assets"
	"github.com/wolfeidau/htmx-go-timer/internal/logger"
	"github.com/wolfeidau/htmx-go-timer/internal/reporter"
	"github.com/wolfeidau/htmx-go-timer/internal/server"
	"github.com/wolfeidau/htmx-go-timer/internal/store"
	memorystore "github.com/wolfeidau/htmx-go-timer/internal/store/memory"
	postgresstore "github.com/wolfeidau/htmx-go-timer/internal/store/postgres"
	"github.com/wolfeidau/htmx-go-timer/internal/stream"
	"github.com/wolfeidau/htmx-go-timer/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

type ServeCmd struct {
	// Server configuration
	Listen    string        `help:"HTTP server listen address" default:":8080" env:"TIMER_LISTEN"`
	Templates string        `help:"directory holding the page templates" default:"public/views" env:"TIMER_TEMPLATES" type:"path"`
	Libs      string        `help:"directory of vendored browser libraries served under /libs" default:"public/libs" env:"TIMER_LIBS" type:"path"`
	Heartbeat time.Duration `help:"interval between keep-alive comments on /events" default:"30s" env:"TIMER_HEARTBEAT"`
	Interval  time.Duration `help:"interval between timer broadcasts" default:"1s" env:"TIMER_INTERVAL"`

	// CORS configuration
	CORSOrigins []string `help:"origins allowed to read /events, /healthcheck and /timings, none when empty" env:"TIMER_CORS_ORIGINS"`
	TrustProxy  bool     `help:"take client addresses from X-Forwarded-For, only behind a reverse proxy" default:"false" env:"TIMER_TRUST_PROXY"`

	// Development and operational modes
	Watch   bool `help:"rebuild the bundle when sources change and tell browsers to reload" default:"false" env:"TIMER_WATCH"`
	Tracing bool `help:"enable tracing and metrics export" default:"false" env:"TIMER_TRACING"`

	Bundle BundleFlags `embed:"" prefix:"bundle-"`

	// Store configuration
	StoreType     string             `name:"store" help:"store type (memory or postgres)" default:"memory" env:"TIMER_STORE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"10"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"1"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`
	ConnectRetry    time.Duration `help:"how long to retry the initial connection" default:"30s"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"TIMER_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{Version: globals.Version})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	timingStore, closeStore, err := c.openStore(ctx, log)
	if err != nil {
		return err
	}
	defer closeStore()

	bundleCfg, err := c.Bundle.load()
	if err != nil {
		return err
	}
	pipeline, err := assets.NewWithTemplateDir(bundleCfg, c.Templates)
	if err != nil {
		return fmt.Errorf("failed to create asset pipeline: %w", err)
	}
	if _, err := pipeline.Build(ctx); err != nil {
		return fmt.Errorf("failed to build assets: %w", err)
	}

	broker := stream.NewBroker()
	defer broker.Shutdown()

	srv := server.NewServer(server.Config{
		LibsDir:     c.Libs,
		CORSOrigins: c.CORSOrigins,
		Heartbeat:   c.Heartbeat,
		TrustProxy:  c.TrustProxy,
	}, timingStore, broker, pipeline)

	handler, err := srv.Handler(log)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}
	if c.Tracing {
		handler = otelhttp.NewHandler(handler, "timer")
	}

	httpServer := configureHTTPServer(c.Listen, handler)
	rep := reporter.New(timingStore, broker, reporter.WithInterval(c.Interval))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", c.Listen).Str("store", c.StoreType).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return rep.Run(gctx)
	})

	if c.Watch {
		g.Go(func() error {
			return pipeline.Watch(gctx, func(result *assets.Result, err error) {
				if err != nil {
					return
				}
				log.Info().Dur("duration", result.Duration).Msg("Bundle rebuilt, reloading clients")
				broker.Publish(stream.Event{Name: stream.EventReload, Data: "reload"})
			})
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")

		// open event streams never finish on their own
		broker.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (c *ServeCmd) openStore(ctx context.Context, log zerolog.Logger) (store.TimingStore, func(), error) {
	switch c.StoreType {
	case "postgres":
		if err := c.PostgresStore.validate(); err != nil {
			return nil, nil, err
		}

		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:          c.PostgresStore.ConnString,
			MaxConns:            c.PostgresStore.MaxConns,
			MinConns:            c.PostgresStore.MinConns,
			MaxConnLifetime:     c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime:     c.PostgresStore.MaxConnIdleTime,
			ConnectRetryTimeout: c.PostgresStore.ConnectRetry,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
		}

		if c.PostgresStore.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("Database migrations completed")
		}

		log.Info().Msg("Using PostgreSQL timing store")
		return postgresstore.NewTimingStore(pool), pool.Close, nil
	default:
		log.Info().Msg("Using in-memory timing store")
		return memorystore.NewTimingStore(), func() {}, nil
	}
}
