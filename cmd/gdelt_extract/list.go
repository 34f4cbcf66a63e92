package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/gdelt-extract/internal/config"
	"github.com/jonathan/gdelt-extract/internal/logging"
	"github.com/jonathan/gdelt-extract/internal/masterlist"
	"github.com/jonathan/gdelt-extract/internal/observability"
)

var listCommand = &cobra.Command{
	Use:   "list",
	Short: "List the export archives selected for a window",
	Long: `Retrieves the master file list and prints one line per export archive in the
window: publication time, size in bytes and URL. No archives are downloaded.`,
	RunE: runListCmd,
}

var listAll bool

func init() {
	addSourceFlags(listCommand.Flags())
	listCommand.Flags().BoolVar(&listAll, "all", false, "List every export archive, ignoring the window")

	rootCmd.AddCommand(listCommand)
}

func runListCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := resolveConfig(cmd.Flags())
	if err != nil {
		return err
	}

	return listArchives(ctx, cfg, listAll, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// listArchives fetches the index and writes the worklist to stdout and the
// window summary to stderr, so stdout can be piped.
func listArchives(ctx context.Context, cfg config.Config, all bool, stdout, stderr io.Writer) error {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, stderr)

	window, err := cfg.Window()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DownloadDir, 0755); err != nil {
		return err
	}
	n, err := masterlist.Fetch(ctx, client, cfg.IndexURL, cfg.IndexPath())
	if err != nil {
		return err
	}
	logger.Debug("retrieved master file list", "bytes", n, "path", cfg.IndexPath())

	var entries []masterlist.Entry
	if all {
		entries, err = masterlist.Load(cfg.IndexPath())
	} else {
		entries, err = masterlist.SelectWindow(cfg.IndexPath(), window.Begin, window.End)
	}
	if err != nil {
		return err
	}

	observability.NewPrinter(stdout).PrintWorklist(entries)
	summary := observability.WindowSummary{IndexURL: cfg.IndexURL, Window: window, Selected: len(entries)}
	if all && len(entries) > 0 {
		summary.Window = masterlist.Window{Begin: entries[0].Timestamp, End: entries[0].Timestamp}
		for _, e := range entries[1:] {
			if e.Timestamp.Before(summary.Window.Begin) {
				summary.Window.Begin = e.Timestamp
			}
			if e.Timestamp.After(summary.Window.End) {
				summary.Window.End = e.Timestamp
			}
		}
	}
	observability.NewPrinter(stderr).PrintWindow(summary)
	return nil
}
