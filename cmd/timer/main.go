package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/htmx-go-timer/cmd/timer/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode."`
		Version kong.VersionFlag
		Serve   commands.ServeCmd `cmd:"" help:"Start the timer server"`
		Build   commands.BuildCmd `cmd:"" help:"Build the browser bundle and exit"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("timer"),
		kong.Description("htmx stopwatch served over server-sent events"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
