package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/gdelt-extract/internal/config"
	"github.com/jonathan/gdelt-extract/internal/db"
	"github.com/jonathan/gdelt-extract/internal/fetch"
	"github.com/jonathan/gdelt-extract/internal/logging"
	"github.com/jonathan/gdelt-extract/internal/metrics"
	"github.com/jonathan/gdelt-extract/internal/observability"
	"github.com/jonathan/gdelt-extract/internal/pipeline"
	"github.com/jonathan/gdelt-extract/internal/publish"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the full extraction pipeline end-to-end",
	Long: `Retrieves the master file list, selects the export archives in the window, filters
every archive by country code and writes the matches to one CSV file.

Archives that fail to download or decode are skipped and reported. Configuration can
be loaded from a JSON file using --config; environment variables override the file and
command-line flags override both.`,
	RunE: runExtractCmd,
}

func init() {
	addSourceFlags(runCommand.Flags())
	addRunFlags(runCommand.Flags())

	rootCmd.AddCommand(runCommand)
}

func runExtractCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := resolveConfig(cmd.Flags())
	if err != nil {
		return err
	}

	return extract(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// newClient builds the HTTP client described by cfg
func newClient(cfg config.Config) (*fetch.Client, error) {
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}
	opts := fetch.DefaultOptions()
	opts.Timeout = timeout
	opts.Limiter = fetch.NewLimiter(cfg.RateLimit)
	return fetch.NewClient(opts), nil
}

// extract runs the pipeline for a validated config. Console boxes go to
// stdout and logs to stderr.
func extract(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) error {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, stderr)

	window, err := cfg.Window()
	if err != nil {
		return err
	}
	outputPath, err := cfg.OutputPath()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	printer := observability.NewPrinter(stdout)
	m := metrics.New()

	opts := pipeline.Options{
		IndexURL:       cfg.IndexURL,
		IndexPath:      cfg.IndexPath(),
		Window:         window,
		CountryCode:    cfg.CountryCode,
		OutputPath:     outputPath,
		VerifyChecksum: cfg.VerifyChecksum,
		Client:         client,
		Logger:         logger,
		Printer:        printer,
		Metrics:        m,
	}

	// Database ledger is optional
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.EnsureSchema(ctx); err != nil {
			return err
		}
		opts.Ledger = database
		logger.Debug("connected to run ledger")
	}

	publishCfg := publish.Config{
		Endpoint:  cfg.S3Endpoint,
		Bucket:    cfg.S3Bucket,
		Prefix:    cfg.S3Prefix,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Region:    cfg.S3Region,
		UseSSL:    cfg.S3UseSSL,
	}
	if publishCfg.Enabled() {
		uploader, err := publish.New(publishCfg)
		if err != nil {
			return err
		}
		opts.Publisher = uploader
	}

	result, runErr := pipeline.Run(ctx, opts)
	if result != nil && (runErr == nil || errors.Is(runErr, pipeline.ErrEmptyResult)) {
		printer.PrintSummary(result.Summary())
	}

	if cfg.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("failed to write metrics file", "path", cfg.MetricsFile, "error", err)
		}
	}

	if errors.Is(runErr, pipeline.ErrEmptyResult) {
		return fmt.Errorf("%w for code %s in %s", runErr, cfg.CountryCode, window)
	}
	return runErr
}
