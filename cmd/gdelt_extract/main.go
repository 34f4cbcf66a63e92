// Package main provides the entry point for the gdelt_extract CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gdelt_extract",
	Short: "Extract GDELT 2.0 events for one country code",
	Long: `gdelt_extract downloads the GDELT 2.0 master file list, selects the event-export
archives published within a time window and keeps every event whose actor or
geography country code matches. Matches are consolidated into one CSV file.`,
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
