package commands

import (
	"context"

	"github.com/wolfeidau/htmx-go-timer/internal/assets"
	"github.com/wolfeidau/htmx-go-timer/internal/logger"
)

type BuildCmd struct {
	Bundle BundleFlags `embed:"" prefix:"bundle-"`
}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	cfg, err := c.Bundle.load()
	if err != nil {
		return err
	}

	pipeline, err := assets.New(cfg)
	if err != nil {
		return err
	}

	result, err := pipeline.Build(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Int("files", len(result.Files)).
		Dur("duration", result.Duration).
		Str("outdir", cfg.OutDir).
		Msg("Bundle built")
	return nil
}
