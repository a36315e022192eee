package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/valtiodata/eduskunta-fetch/internal/config"
	"github.com/valtiodata/eduskunta-fetch/internal/exitcodes"
	"github.com/valtiodata/eduskunta-fetch/internal/export"
	"github.com/valtiodata/eduskunta-fetch/internal/logging"
	"github.com/valtiodata/eduskunta-fetch/internal/orchestrator"
	"github.com/valtiodata/eduskunta-fetch/internal/sink"
	"github.com/valtiodata/eduskunta-fetch/internal/tui"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "eduskunta-fetch",
		Usage:   "Download Finnish Parliament open data into SQLite or PostgreSQL",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
			},
			&cli.StringFlag{
				Name:  "verbosity",
				Value: "info",
				Usage: "Log verbosity level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "Log format: text or json",
			},
			&cli.BoolFlag{
				Name:  "no-progress",
				Usage: "Disable the progress bar",
			},
		},
		Before: func(c *cli.Context) error {
			level, err := logging.ParseLevel(c.String("verbosity"))
			if err != nil {
				return exitcodes.NewExitError(err, exitcodes.ConfigError)
			}
			logging.SetLevel(level)
			if c.String("log-format") == "json" {
				logging.SetFormat("json")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "download",
				Usage:  "Download tables from the Eduskunta API",
				Action: runDownload,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "tables",
						Usage: "Tables to download (repeatable)",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Download every available table",
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Concurrent page requests",
					},
					&cli.Float64Flag{
						Name:  "rate-limit",
						Usage: "Maximum requests per second (0 = unlimited)",
					},
					&cli.Int64Flag{
						Name:  "limit",
						Usage: "Maximum rows per table (0 = all)",
					},
					&cli.IntFlag{
						Name:  "per-page",
						Usage: "Rows per page request (max 100)",
					},
					&cli.StringFlag{
						Name:  "db-file",
						Usage: "SQLite database file",
					},
					&cli.StringFlag{
						Name:  "pg-dsn",
						Usage: "PostgreSQL DSN (switches the sink to Postgres)",
					},
					&cli.BoolFlag{
						Name:  "keep-tables",
						Usage: "Append to existing tables instead of replacing them",
					},
				},
			},
			{
				Name:   "resume",
				Usage:  "Resume the most recent interrupted download",
				Action: runResume,
			},
			{
				Name:   "tables",
				Usage:  "List available tables with row counts",
				Action: runTables,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "show-columns",
						Usage: "Also fetch column names for each table",
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show the current download status",
				Action: runStatus,
			},
			{
				Name:   "history",
				Usage:  "Show download run history",
				Action: runHistory,
			},
			{
				Name:   "export",
				Usage:  "Export downloaded tables to CSV, JSON, or Excel",
				Action: runExport,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "tables",
						Usage: "Tables to export (default: all)",
					},
					&cli.StringFlag{
						Name:  "format",
						Value: "csv",
						Usage: "Output format: csv, json, or xlsx",
					},
					&cli.StringFlag{
						Name:  "output-dir",
						Value: "exports",
						Usage: "Directory for output files",
					},
					&cli.Int64Flag{
						Name:  "limit",
						Usage: "Maximum rows per table (0 = all)",
					},
					&cli.StringFlag{
						Name:  "where",
						Usage: "SQL filter applied to every exported table",
					},
					&cli.StringFlag{
						Name:  "db-file",
						Usage: "SQLite database file",
					},
				},
			},
			{
				Name:   "explore",
				Usage:  "Browse downloaded tables interactively",
				Action: runExplore,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "db-file",
						Usage: "SQLite database file",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitcodes.FromError(err))
	}
}

// loadConfig reads the config file if given, otherwise uses defaults, and
// applies command-line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return nil, exitcodes.NewExitError(err, exitcodes.ConfigError)
		}
	} else {
		cfg = config.Default()
	}

	if c.IsSet("concurrency") {
		cfg.Download.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("rate-limit") {
		cfg.API.RatePerSecond = c.Float64("rate-limit")
	}
	if c.IsSet("limit") {
		cfg.Download.RowLimit = c.Int64("limit")
	}
	if c.IsSet("per-page") {
		cfg.Download.PerPage = c.Int("per-page")
	}
	if c.IsSet("db-file") {
		cfg.Database.Path = c.String("db-file")
	}
	if c.IsSet("pg-dsn") {
		cfg.Database.PostgresDSN = c.String("pg-dsn")
	}
	if c.IsSet("keep-tables") {
		cfg.Download.KeepTables = c.Bool("keep-tables")
	}
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted. Saving checkpoint...")
		cancel()
	}()
	return ctx, cancel
}

func newOrchestrator(c *cli.Context) (*orchestrator.Orchestrator, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return orchestrator.New(cfg, !c.Bool("no-progress"))
}

func runDownload(c *cli.Context) error {
	orch, err := newOrchestrator(c)
	if err != nil {
		return err
	}
	defer orch.Close()

	ctx, cancel := signalContext()
	defer cancel()

	return orch.Download(ctx, c.StringSlice("tables"), c.Bool("all"))
}

func runResume(c *cli.Context) error {
	orch, err := newOrchestrator(c)
	if err != nil {
		return err
	}
	defer orch.Close()

	ctx, cancel := signalContext()
	defer cancel()

	return orch.Resume(ctx)
}

func runTables(c *cli.Context) error {
	orch, err := newOrchestrator(c)
	if err != nil {
		return err
	}
	defer orch.Close()

	ctx, cancel := signalContext()
	defer cancel()

	return orch.ListTables(ctx, c.Bool("show-columns"))
}

func runStatus(c *cli.Context) error {
	orch, err := newOrchestrator(c)
	if err != nil {
		return err
	}
	defer orch.Close()
	return orch.ShowStatus()
}

func runHistory(c *cli.Context) error {
	orch, err := newOrchestrator(c)
	if err != nil {
		return err
	}
	defer orch.Close()
	return orch.ShowHistory()
}

// openLocalStore opens the SQLite database read path for export and explore
// without touching the API.
func openLocalStore(c *cli.Context) (*sink.SQLite, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	path := cfg.Database.Path
	if path == "" {
		dataDir, err := config.DefaultDataDir()
		if err != nil {
			return nil, exitcodes.NewExitError(err, exitcodes.IOError)
		}
		path = filepath.Join(dataDir, "eduskunta.db")
	}
	store, err := sink.OpenSQLite(path)
	if err != nil {
		return nil, exitcodes.NewExitError(err, exitcodes.IOError)
	}
	return store, nil
}

func runExport(c *cli.Context) error {
	format, err := export.ParseFormat(c.String("format"))
	if err != nil {
		return exitcodes.NewExitError(err, exitcodes.ConfigError)
	}

	store, err := openLocalStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := signalContext()
	defer cancel()

	paths, err := export.Run(ctx, store, export.Options{
		Tables:    c.StringSlice("tables"),
		Format:    format,
		OutputDir: c.String("output-dir"),
		Limit:     c.Int64("limit"),
		Where:     c.String("where"),
	})
	if err != nil {
		return exitcodes.NewExitError(err, exitcodes.IOError)
	}
	fmt.Printf("Exported %d files to %s\n", len(paths), c.String("output-dir"))
	return nil
}

func runExplore(c *cli.Context) error {
	store, err := openLocalStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := signalContext()
	defer cancel()

	return tui.Run(ctx, store)
}
