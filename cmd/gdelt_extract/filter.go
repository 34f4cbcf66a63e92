package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/gdelt-extract/internal/config"
	"github.com/jonathan/gdelt-extract/internal/events"
	"github.com/jonathan/gdelt-extract/internal/output"
)

var filterCommand = &cobra.Command{
	Use:   "filter",
	Short: "Filter a local export archive by country code",
	Long: `Reads a GDELT export zip archive from disk and writes the events whose actor or
geography country code matches --code. Output is CSV without a header, to --out or stdout.`,
	RunE: runFilterCmd,
}

var (
	filterArchivePath string
	filterCode        string
	filterOut         string
)

func init() {
	filterCommand.Flags().StringVarP(&filterArchivePath, "archive", "a", "", "Path to a .export.CSV.zip archive")
	filterCommand.Flags().StringVar(&filterCode, "code", config.DefaultCountryCode, "Country code to match")
	filterCommand.Flags().StringVarP(&filterOut, "out", "o", "", "Output CSV path (default stdout)")

	_ = filterCommand.MarkFlagRequired("archive")

	rootCmd.AddCommand(filterCommand)
}

func runFilterCmd(cmd *cobra.Command, _ []string) error {
	rows, err := filterArchive(filterArchivePath, filterCode, filterOut, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%d rows matched %s\n", rows, filterCode)
	return nil
}

// filterArchive filters every member of the archive at path. With out empty
// the rows go to stdout, otherwise to the file at out, which is only created
// when something matched.
func filterArchive(path, code, out string, stdout io.Writer) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read archive: %w", err)
	}

	tables, err := events.DecodeArchive(data)
	if err != nil {
		return 0, err
	}

	if out == "" {
		rows := 0
		for _, t := range tables {
			filtered := events.FilterByCode(t, code)
			if err := output.WriteTable(stdout, filtered); err != nil {
				return rows, err
			}
			rows += filtered.Len()
		}
		return rows, nil
	}

	sink, err := output.CreateFile(out)
	if err != nil {
		return 0, err
	}
	for _, t := range tables {
		if err := sink.Append(events.FilterByCode(t, code)); err != nil {
			_ = sink.Abort()
			return 0, err
		}
	}
	if sink.Rows() == 0 {
		_ = sink.Abort()
		return 0, fmt.Errorf("no records matching %s in %s", code, path)
	}
	if err := sink.Commit(); err != nil {
		return 0, err
	}
	return sink.Rows(), nil
}
