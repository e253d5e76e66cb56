package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/dispatch-hub/internal/app"
	"github.com/andresuchdata/dispatch-hub/internal/config"
	"github.com/andresuchdata/dispatch-hub/internal/domain"
	"github.com/andresuchdata/dispatch-hub/internal/pipeline"
	"github.com/andresuchdata/dispatch-hub/internal/service"
	"github.com/andresuchdata/dispatch-hub/pkg/logger"
)

type appKey struct{}

func inputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "raw",
			Usage:    "Dispatch extract (path, drive://ID, drive:/Folder/Name.xlsx or s3://key)",
			Required: true,
			EnvVars:  []string{"DISPATCH_RAW"},
		},
		&cli.StringFlag{
			Name:     "mapping",
			Usage:    "Workbook holding the plant mapping and recipient sheets",
			Required: true,
			EnvVars:  []string{"DISPATCH_MAPPING"},
		},
		&cli.StringFlag{
			Name:    "previous",
			Usage:   "Previous day's report, for the yesterday remarks",
			EnvVars: []string{"DISPATCH_PREVIOUS"},
		},
		&cli.TimestampFlag{
			Name:     "as-of",
			Usage:    "Processing date (YYYY-MM-DD); defaults to today",
			Layout:   "2006-01-02",
			Timezone: time.UTC,
		},
	}
}

func main() {
	cliApp := &cli.App{
		Name:  "dispatch",
		Usage: "Build and mail the daily dispatch and POD reports",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn, error", EnvVars: []string{"LOG_LEVEL"}},
			&cli.StringFlag{Name: "log-format", Usage: "console or json", EnvVars: []string{"LOG_FORMAT"}},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Compute, render and send every report",
				Before: attachApp,
				Flags: append(inputFlags(),
					&cli.BoolFlag{Name: "dry-run", Usage: "Render files without sending"},
					&cli.StringFlag{Name: "output-dir", Usage: "Where dry-run files are written"},
				),
				Action: runReports,
			},
			{
				Name:   "preview",
				Usage:  "Render every report into the output dir without sending",
				Before: attachApp,
				Flags: append(inputFlags(),
					&cli.StringFlag{Name: "output-dir", Usage: "Where files are written"},
				),
				Action: runReports,
			},
			{
				Name:   "summary",
				Usage:  "Print the headline metrics of the inputs",
				Before: attachApp,
				Flags: append(inputFlags(),
					&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
					&cli.BoolFlag{Name: "refresh", Usage: "Drop cached summaries before computing"},
				),
				Action: summarize,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Log.Error().Err(err).Msg("dispatch failed")
		os.Exit(1)
	}
}

func setupLogging(c *cli.Context) error {
	cfg := config.Load()
	level, format := cfg.App.LogLevel, cfg.App.LogFormat
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		format = c.String("log-format")
	}
	logger.SetFormat(format)
	logger.SetLevel(level)
	return nil
}

func attachApp(c *cli.Context) error {
	a, err := app.New(c.Context, config.Load())
	if err != nil {
		return err
	}
	c.Context = context.WithValue(c.Context, appKey{}, a)
	return nil
}

func fromContext(c *cli.Context) *app.App {
	return c.Context.Value(appKey{}).(*app.App)
}

func loadInputs(c *cli.Context, a *app.App) (pipeline.Inputs, func(), error) {
	dir, err := os.MkdirTemp(a.Config.App.WorkDir, "inputs-")
	if err != nil {
		return pipeline.Inputs{}, nil, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	in, err := a.Loader.Load(c.Context, service.Sources{
		Raw:      c.String("raw"),
		Mapping:  c.String("mapping"),
		Previous: c.String("previous"),
	}, dir)
	if err != nil {
		cleanup()
		return pipeline.Inputs{}, nil, err
	}
	return in, cleanup, nil
}

func asOf(c *cli.Context) time.Time {
	if t := c.Timestamp("as-of"); t != nil {
		return *t
	}
	return time.Time{}
}

func runReports(c *cli.Context) error {
	a := fromContext(c)
	in, cleanup, err := loadInputs(c, a)
	if err != nil {
		return exitFor(err)
	}
	defer cleanup()

	dryRun := c.Command.Name == "preview" || c.Bool("dry-run")
	outputDir := c.String("output-dir")
	if dryRun && outputDir == "" {
		outputDir = a.Config.App.OutputDir
	}

	run, err := a.Reports.Run(c.Context, in, service.Options{
		DryRun:    dryRun,
		OutputDir: outputDir,
		AsOf:      asOf(c),
		OnOutcome: printOutcome,
	})
	if err != nil {
		return exitFor(err)
	}

	fmt.Printf("run %s: %s\n", run.RunID, run.Status)
	if run.Summary != nil {
		printSummary(*run.Summary)
	}
	if run.Status == pipeline.StatusPartial {
		return cli.Exit(fmt.Sprintf("failed sends: %v", run.Failed()), 1)
	}
	return nil
}

func summarize(c *cli.Context) error {
	a := fromContext(c)
	in, cleanup, err := loadInputs(c, a)
	if err != nil {
		return exitFor(err)
	}
	defer cleanup()

	if c.Bool("refresh") {
		if err := a.Reports.ResetSummaries(c.Context); err != nil {
			return exitFor(err)
		}
	}
	s, err := a.Reports.Summarize(c.Context, in, asOf(c))
	if err != nil {
		return exitFor(err)
	}
	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	printSummary(*s)
	return nil
}

func printOutcome(o service.Outcome) {
	switch o.Status {
	case domain.OutcomeSent:
		fmt.Printf("Sent: %s\n", o.Target)
	case domain.OutcomeRendered:
		fmt.Printf("Rendered: %s -> %s\n", o.Target, o.File)
	case domain.OutcomeSkipped:
		fmt.Printf("Skipped: %s (%s)\n", o.Target, o.Error)
	default:
		fmt.Printf("Failed: %s (%s)\n", o.Target, o.Error)
	}
}

func printSummary(s domain.Summary) {
	fmt.Printf("as of %s\n", s.AsOf)
	fmt.Printf("  pending invoices   %s\n", s.Display["pending_invoices"])
	fmt.Printf("  pending amount     %s\n", s.Display["pending_amount"])
	fmt.Printf("  pending weight (t) %s\n", s.Display["pending_weight_tons"])
	fmt.Printf("  critical pending   %s\n", s.Display["critical_pending"])
	fmt.Printf("  POD processed      %s\n", s.Display["delivered_count"])
}

// exitFor maps schema errors to exit code 2 and everything else to 1.
func exitFor(err error) error {
	var schemaErr *domain.SchemaError
	if errors.As(err, &schemaErr) {
		return cli.Exit(schemaErr.Error(), 2)
	}
	return cli.Exit(err.Error(), 1)
}
