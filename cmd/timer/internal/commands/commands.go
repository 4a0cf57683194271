package commands

import (
	"fmt"
	"net/http"
	"time"

	"github.com/wolfeidau/htmx-go-timer/internal/assets"
)

type Globals struct {
	Debug   bool
	Version string
}

// BundleFlags selects the bundle configuration shared by serve and build.
type BundleFlags struct {
	Config string `help:"path to a YAML bundle config, defaults are used when empty" default:"" env:"TIMER_BUNDLE_CONFIG"`
}

func (f BundleFlags) load() (assets.Config, error) {
	if f.Config == "" {
		return assets.DefaultConfig(), nil
	}
	cfg, err := assets.LoadConfig(f.Config)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("bundle config %s: %w", f.Config, err)
	}
	return cfg, nil
}

// configureHTTPServer has no WriteTimeout, /events responses stay open.
func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
