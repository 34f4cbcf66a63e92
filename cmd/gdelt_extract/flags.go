package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/jonathan/gdelt-extract/internal/config"
	"github.com/jonathan/gdelt-extract/internal/masterlist"
)

// addSourceFlags registers the flags shared by commands that read the index
func addSourceFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to config.json file (values can be overridden by other flags)")
	flags.String("index-url", "", fmt.Sprintf("Master file list URL (default %q)", masterlist.DefaultURL))
	flags.String("begin", "", "Window start, YYYY-MM-DD or RFC 3339 (default 2016-01-01)")
	flags.String("end", "", "Window end, inclusive; a date covers the whole day (default 2016-12-31)")
	flags.String("download-dir", "", "Directory for the master file list (default <executable dir>/download)")
	flags.Float64("rate", 0, "Maximum archive requests per second (0 = unlimited)")
	flags.String("timeout", "", "Per-request HTTP timeout, e.g. 30s (default none)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: text or json")
}

// addRunFlags registers the flags only the run command uses
func addRunFlags(flags *pflag.FlagSet) {
	flags.String("code", "", "Country code to match (default KOR)")
	flags.String("result-dir", "", "Directory for the result file (default <executable dir>/result)")
	flags.String("output", "", "Result file path (default <result-dir>/<begin year>_<code>.csv)")
	flags.Bool("verify-checksum", false, "Verify each archive against the MD5 in the master file list")
	flags.String("metrics-file", "", "Write Prometheus metrics in text format to this file")
	flags.String("db-url", "", "PostgreSQL connection URL for the run ledger (optional, defaults to DATABASE_URL env var)")
	flags.BoolP("verbose", "v", false, "Print detailed debug information")
}

// stringOverrides maps flag names to the config field they set
func stringOverrides(cfg *config.Config) map[string]*string {
	return map[string]*string{
		"index-url":    &cfg.IndexURL,
		"begin":        &cfg.Begin,
		"end":          &cfg.End,
		"code":         &cfg.CountryCode,
		"download-dir": &cfg.DownloadDir,
		"result-dir":   &cfg.ResultDir,
		"output":       &cfg.Output,
		"timeout":      &cfg.HTTPTimeout,
		"log-level":    &cfg.LogLevel,
		"log-format":   &cfg.LogFormat,
		"metrics-file": &cfg.MetricsFile,
		"db-url":       &cfg.DatabaseURL,
	}
}

// resolveConfig layers defaults, the --config file, the environment and any
// explicitly set flags, then validates the result.
func resolveConfig(flags *pflag.FlagSet) (config.Config, error) {
	path, _ := flags.GetString("config")

	cfg, err := config.Load(path, baseDir())
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	if err := applyOverrides(flags, &cfg); err != nil {
		return config.Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// applyOverrides copies flags that were explicitly set onto cfg.
func applyOverrides(flags *pflag.FlagSet, cfg *config.Config) error {
	for name, field := range stringOverrides(cfg) {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			continue
		}
		value, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*field = value
	}

	if flags.Lookup("rate") != nil && flags.Changed("rate") {
		rate, err := flags.GetFloat64("rate")
		if err != nil {
			return err
		}
		cfg.RateLimit = rate
	}
	if flags.Lookup("verify-checksum") != nil && flags.Changed("verify-checksum") {
		verify, err := flags.GetBool("verify-checksum")
		if err != nil {
			return err
		}
		cfg.VerifyChecksum = verify
	}
	if flags.Lookup("verbose") != nil && flags.Changed("verbose") {
		if verbose, _ := flags.GetBool("verbose"); verbose {
			cfg.LogLevel = "debug"
		}
	}
	return nil
}

// baseDir is the directory default download and result directories live in:
// the directory holding the executable, or the working directory as a fallback.
func baseDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}
