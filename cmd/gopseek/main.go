// Package main provides the CLI entry point for gopseek.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/gopseek/pkg/adapters/logger"
	"github.com/user/gopseek/pkg/config"
	"github.com/user/gopseek/pkg/ports"
)

var version = "dev"

// Flag categories
const (
	catBackend = "Backend"
	catOutput  = "Output"
	catSheet   = "Contact Sheet"
	catLogging = "Logging"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Fprintln(c.App.Writer, l10n.F("gopseek version %s", c.App.Version))
	}

	return &cli.App{
		Name:    "gopseek",
		Usage:   l10n.T("Frame-accurate random access into long-GOP video"),
		Version: version,
		Description: l10n.T("gopseek indexes a video, validates that it is seekable, " +
			"and decodes individual frames or frame ranges with a GOP cache."),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   l10n.T("YAML configuration file"),
			},
			&cli.StringFlag{
				Name:     "backend",
				Aliases:  []string{"b"},
				Usage:    l10n.T("Decoding backend (auto, mp4, libav)"),
				Category: l10n.T(catBackend),
			},
			&cli.StringFlag{
				Name:     "ffmpeg-path",
				Usage:    l10n.T("Path to the ffmpeg executable"),
				EnvVars:  []string{"FFMPEG_PATH"},
				Category: l10n.T(catBackend),
			},
			&cli.StringFlag{
				Name:     "layout",
				Usage:    l10n.T("Pixel layout (auto, gray, rgb)"),
				Category: l10n.T(catOutput),
			},
			&cli.StringFlag{
				Name:     "output-dir",
				Usage:    l10n.T("Directory for output files without an explicit path"),
				Category: l10n.T(catOutput),
			},
			&cli.StringFlag{
				Name:     "log-level",
				Aliases:  []string{"l"},
				Usage:    l10n.T("Log level (debug, info, warn, error)"),
				Category: l10n.T(catLogging),
			},
			&cli.BoolFlag{
				Name:     "quiet",
				Aliases:  []string{"Q"},
				Usage:    l10n.T("Suppress all log output"),
				Category: l10n.T(catLogging),
			},
		},
		Commands: []*cli.Command{
			infoCommand(),
			indexCommand(),
			frameCommand(),
			rangeCommand(),
			sheetCommand(),
			{
				Name:  "version",
				Usage: l10n.T("Show version information"),
				Action: func(c *cli.Context) error {
					fmt.Fprintln(c.App.Writer, l10n.F("gopseek version %s", version))
					return nil
				},
			},
		},
	}
}

// env is the state shared by every command: the merged configuration, the
// logger and a context cancelled on SIGINT or SIGTERM.
type env struct {
	cfg    config.Config
	log    ports.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// setup loads the configuration file, applies global flag overrides and
// installs the signal handler.
func setup(c *cli.Context) (*env, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	applyGlobalFlags(c, &cfg)

	var log ports.Logger
	if c.Bool("quiet") {
		log = logger.NewNoop()
	} else {
		level, err := cfg.ParseLogLevel()
		if err != nil {
			return nil, err
		}
		log = logger.NewConsole(level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Warn("Interrupted, shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return &env{cfg: cfg, log: log, ctx: ctx, cancel: cancel}, nil
}

// applyGlobalFlags overrides configuration values with flags that were set.
func applyGlobalFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("backend") {
		cfg.Backend = c.String("backend")
	}
	if c.IsSet("ffmpeg-path") {
		cfg.FFmpegPath = c.String("ffmpeg-path")
	}
	if c.IsSet("layout") {
		cfg.Layout = c.String("layout")
	}
	if c.IsSet("output-dir") {
		cfg.OutputDir = c.String("output-dir")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
}
