// Package config provides configuration loading and validation for the CLI.
//
// Values are layered: built-in defaults, then a JSON config file, then
// environment variables, then explicitly set command-line flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"

	"github.com/jonathan/gdelt-extract/internal/masterlist"
	"github.com/jonathan/gdelt-extract/internal/schemas"
)

// Defaults for the settings that have one
const (
	DefaultBegin       = "2016-01-01"
	DefaultEnd         = "2016-12-31"
	DefaultCountryCode = "KOR"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DownloadDirName    = "download"
	ResultDirName      = "result"
)

// Config represents the CLI configuration that can be loaded from a JSON file
// and the environment. Empty fields in a file fall back to the defaults.
type Config struct {
	// Source
	IndexURL string `json:"index_url,omitempty" env:"GDELT_INDEX_URL" validate:"required,url"`

	// Window and filter
	Begin       string `json:"begin,omitempty" env:"GDELT_BEGIN" validate:"required"`
	End         string `json:"end,omitempty" env:"GDELT_END" validate:"required"`
	CountryCode string `json:"country_code,omitempty" env:"GDELT_COUNTRY_CODE" validate:"required,alphanum"`

	// Paths
	DownloadDir string `json:"download_dir,omitempty" env:"GDELT_DOWNLOAD_DIR" validate:"required"`
	ResultDir   string `json:"result_dir,omitempty" env:"GDELT_RESULT_DIR" validate:"required"`
	Output      string `json:"output,omitempty" env:"GDELT_OUTPUT"`

	// Transfer
	VerifyChecksum bool    `json:"verify_checksum,omitempty" env:"GDELT_VERIFY_CHECKSUM"`
	RateLimit      float64 `json:"rate_limit,omitempty" env:"GDELT_RATE_LIMIT" validate:"gte=0"`
	HTTPTimeout    string  `json:"http_timeout,omitempty" env:"GDELT_HTTP_TIMEOUT"`

	// Observability
	LogLevel    string `json:"log_level,omitempty" env:"GDELT_LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
	LogFormat   string `json:"log_format,omitempty" env:"GDELT_LOG_FORMAT" validate:"omitempty,oneof=text json"`
	MetricsFile string `json:"metrics_file,omitempty" env:"GDELT_METRICS_FILE"`

	// Run ledger
	DatabaseURL string `json:"database_url,omitempty" env:"DATABASE_URL"`

	// Result publishing
	S3Endpoint  string `json:"s3_endpoint,omitempty" env:"S3_ENDPOINT" validate:"required_with=S3Bucket"`
	S3Bucket    string `json:"s3_bucket,omitempty" env:"S3_BUCKET" validate:"required_with=S3Endpoint"`
	S3Prefix    string `json:"s3_prefix,omitempty" env:"S3_PREFIX"`
	S3AccessKey string `json:"s3_access_key,omitempty" env:"S3_ACCESS_KEY"`
	S3SecretKey string `json:"s3_secret_key,omitempty" env:"S3_SECRET_KEY"`
	S3Region    string `json:"s3_region,omitempty" env:"S3_REGION"`
	S3UseSSL    bool   `json:"s3_use_ssl,omitempty" env:"S3_USE_SSL"`
}

// Default returns the built-in configuration. Directories are placed under baseDir.
func Default(baseDir string) Config {
	return Config{
		IndexURL:    masterlist.DefaultURL,
		Begin:       DefaultBegin,
		End:         DefaultEnd,
		CountryCode: DefaultCountryCode,
		DownloadDir: filepath.Join(baseDir, DownloadDirName),
		ResultDir:   filepath.Join(baseDir, ResultDirName),
		LogLevel:    DefaultLogLevel,
		LogFormat:   DefaultLogFormat,
	}
}

// LoadConfig loads configuration from a JSON file.
// The document is checked against the config schema before it is decoded, so
// unknown keys and mistyped values are rejected.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("failed to parse config JSON: %s is not valid JSON", path)
	}

	if err := schemas.ValidateConfig(data); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv overrides fields with any environment variables that are set.
// Unset variables leave the field untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// Load builds the layered configuration from defaults, an optional config
// file and the environment. Flag overrides are applied by the caller.
func Load(path, baseDir string) (Config, error) {
	cfg := Default(baseDir)

	if path != "" {
		fileCfg, err := LoadConfig(path)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg.MergeWithDefaults(cfg)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if _, err := c.Window(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if _, err := c.Timeout(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	// Directories are created on demand but must not collide with files
	for _, dir := range []string{c.DownloadDir, c.ResultDir} {
		if info, err := os.Stat(dir); err == nil && !info.IsDir() {
			return fmt.Errorf("config error: %s exists and is not a directory", dir)
		}
	}

	return nil
}

// Window parses the configured begin and end bounds
func (c *Config) Window() (masterlist.Window, error) {
	return masterlist.ParseWindow(c.Begin, c.End)
}

// Timeout parses the configured HTTP timeout. Empty means no timeout.
func (c *Config) Timeout() (time.Duration, error) {
	if c.HTTPTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.HTTPTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid http_timeout %q: %w", c.HTTPTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid http_timeout %q: must be non-negative", c.HTTPTimeout)
	}
	return d, nil
}

// OutputPath returns the result file path: the configured output if set,
// otherwise <result_dir>/<begin year>_<lowercase code>.csv.
func (c *Config) OutputPath() (string, error) {
	if c.Output != "" {
		return c.Output, nil
	}
	w, err := c.Window()
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%d_%s.csv", w.Begin.Year(), strings.ToLower(c.CountryCode))
	return filepath.Join(c.ResultDir, name), nil
}

// IndexPath returns where the master file list is stored
func (c *Config) IndexPath() string {
	return filepath.Join(c.DownloadDir, masterlist.FileName)
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values over the built-in defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&result.IndexURL, defaults.IndexURL)
	fill(&result.Begin, defaults.Begin)
	fill(&result.End, defaults.End)
	fill(&result.CountryCode, defaults.CountryCode)
	fill(&result.DownloadDir, defaults.DownloadDir)
	fill(&result.ResultDir, defaults.ResultDir)
	fill(&result.Output, defaults.Output)
	fill(&result.HTTPTimeout, defaults.HTTPTimeout)
	fill(&result.LogLevel, defaults.LogLevel)
	fill(&result.LogFormat, defaults.LogFormat)
	fill(&result.MetricsFile, defaults.MetricsFile)
	fill(&result.DatabaseURL, defaults.DatabaseURL)
	fill(&result.S3Endpoint, defaults.S3Endpoint)
	fill(&result.S3Bucket, defaults.S3Bucket)
	fill(&result.S3Prefix, defaults.S3Prefix)
	fill(&result.S3AccessKey, defaults.S3AccessKey)
	fill(&result.S3SecretKey, defaults.S3SecretKey)
	fill(&result.S3Region, defaults.S3Region)

	if result.RateLimit == 0 {
		result.RateLimit = defaults.RateLimit
	}

	// Bool fields: cannot distinguish unset from false, so a true in either wins
	result.VerifyChecksum = result.VerifyChecksum || defaults.VerifyChecksum
	result.S3UseSSL = result.S3UseSSL || defaults.S3UseSSL

	return result
}
