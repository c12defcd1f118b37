package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v2"

	"github.com/dshills/litsearch/internal/config"
	"github.com/dshills/litsearch/internal/engine"
	applog "github.com/dshills/litsearch/internal/logger"
	"github.com/dshills/litsearch/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Fprintf(c.App.Writer, "litsearch %s\n", c.App.Version)
		fmt.Fprintf(c.App.Writer, "Build Time: %s\n", buildTime)
		fmt.Fprintf(c.App.Writer, "Build Mode: %s\n", storage.BuildMode)
		fmt.Fprintf(c.App.Writer, "SQLite Driver: %s\n", storage.DriverName)
		fmt.Fprintf(c.App.Writer, "Vector Extension: %v\n", storage.VectorExtensionAvailable)
	}

	return &cli.App{
		Name:    "litsearch",
		Usage:   "Semantic search and citations over recovery literature",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				EnvVars: []string{"LITSEARCH_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  "json-logs",
				Usage: "Write logs as JSON",
			},
		},
		Commands: []*cli.Command{
			searchCommand(),
			bookCommand(),
			evalCommand(),
			embedCommand(),
			statusCommand(),
			seedCommand(),
		},
	}
}

// loadConfig reads the configuration and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.Bool("json-logs") {
		cfg.Log.JSON = true
	}
	return cfg, nil
}

// openEngine builds the engine from the configuration. Logs go to the app's
// error writer so command output stays clean.
func openEngine(c *cli.Context) (*engine.Engine, *log.Logger, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	logger, err := applog.New(applog.Config{
		Level:  cfg.Log.Level,
		JSON:   cfg.Log.JSON,
		Output: c.App.ErrWriter,
	})
	if err != nil {
		return nil, nil, err
	}
	e, err := engine.New(cfg, engine.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return e, logger, nil
}

// closeEngine closes e and reports a close failure unless err is already set.
func closeEngine(e *engine.Engine, err *error) {
	if cerr := e.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
