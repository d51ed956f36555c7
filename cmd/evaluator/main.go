// Command evaluator runs the rolling-origin forecast evaluation over a
// quarterly series, writes the run artifacts as CSV files, and optionally
// serves the report over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"qeval/internal/app"
	"qeval/internal/config"
	"qeval/internal/infrastructure"
	httptransport "qeval/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	configFile := flag.String("config", "qeval.yaml", "path to YAML config file (optional)")
	inputPath := flag.String("input", "", "input file, overrides the configured path")
	outputDir := flag.String("output", "", "output directory, overrides the configured path")
	serve := flag.Bool("serve", false, "serve the report over HTTP after the run")
	flag.Parse()

	// Flags feed the env layer so they participate in validation.
	if *inputPath != "" {
		os.Setenv("QEVAL_INPUT_PATH", *inputPath)
	}
	if *outputDir != "" {
		os.Setenv("QEVAL_OUTPUT_DIR", *outputDir)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	if *inputPath != "" {
		cfg.Input.Path = *inputPath
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}
	defer infrastructure.CloseLogFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline := app.New(cfg, logger)
	report, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}
	if err := pipeline.Export(report); err != nil {
		return err
	}

	logger.InfoContext(ctx, "artifacts written",
		slog.String("dir", cfg.Output.Dir),
		slog.String("run_id", report.RunID))

	if *serve {
		server := httptransport.NewServer(cfg.Server, report, logger)
		return server.ListenAndServe(ctx)
	}
	return nil
}
