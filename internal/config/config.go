// Package config loads application settings from a YAML file, a .env file and the environment.
//
// Precedence, lowest first: built-in defaults, the YAML file, environment variables.
// Credentials are read only from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "config.yaml"

// Sink names accepted in Sinks.
const (
	SinkBigQuery = "bigquery"
	SinkPostgres = "postgres"
	SinkNotion   = "notion"
)

// Config holds all settings for the CLI and the API server.
type Config struct {
	Input     InputConfig     `yaml:"input"`
	Output    OutputConfig    `yaml:"output"`
	Reference ReferenceConfig `yaml:"reference"`
	Matching  MatchingConfig  `yaml:"matching"`
	Normalize NormalizeConfig `yaml:"normalize"`
	FX        FXConfig        `yaml:"fx"`
	Report    ReportConfig    `yaml:"report"`
	Log       LogConfig       `yaml:"log"`
	API       APIConfig       `yaml:"api"`
	GCP       GCPConfig       `yaml:"gcp"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Notion    NotionConfig    `yaml:"notion"`

	// Sinks lists where cleaned records are persisted besides the output file.
	Sinks []string `yaml:"sinks"`
}

type InputConfig struct {
	Path      string `yaml:"path"`
	HasHeader bool   `yaml:"has_header"`
}

type OutputConfig struct {
	Path       string `yaml:"path"`
	ReportPath string `yaml:"report_path"` // empty: report is only logged
	UploadURI  string `yaml:"upload_uri"`  // gs://bucket/prefix, empty disables upload
}

type ReferenceConfig struct {
	MerchantsPath     string `yaml:"merchants_path"`
	CurrenciesPath    string `yaml:"currencies_path"`
	BigQueryMerchants bool   `yaml:"bigquery_merchants"`
}

type MatchingConfig struct {
	Threshold int `yaml:"threshold"`
}

type NormalizeConfig struct {
	Workers               int `yaml:"workers"`
	ConversionConcurrency int `yaml:"conversion_concurrency"`
}

type FXConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	APIKey     string        `yaml:"-"`
}

type ReportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	MaxRows int    `yaml:"max_rows"`
	APIKey  string `yaml:"-"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type APIConfig struct {
	Addr           string `yaml:"addr"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	Workers        int    `yaml:"workers"`

	// JobRetention is how long finished jobs and their results stay queryable.
	JobRetention time.Duration `yaml:"job_retention"`
}

type GCPConfig struct {
	ProjectID string `yaml:"project_id"`
	Dataset   string `yaml:"dataset"`
	Bucket    string `yaml:"bucket"`
}

type PostgresConfig struct {
	URL string `yaml:"-"`
}

type NotionConfig struct {
	DatabaseID string `yaml:"database_id"`
	Token      string `yaml:"-"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Input:     InputConfig{Path: "data/messy_data.csv", HasHeader: true},
		Output:    OutputConfig{Path: "data/cleaned_data.csv"},
		Matching:  MatchingConfig{Threshold: 90},
		Normalize: NormalizeConfig{ConversionConcurrency: 4},
		FX: FXConfig{
			BaseURL:    "https://v6.exchangerate-api.com/v6",
			Timeout:    5 * time.Second,
			MaxRetries: 2,
		},
		Report: ReportConfig{Enabled: true, Model: "gemini-2.5-flash", MaxRows: 200},
		Log:    LogConfig{Level: "info", Format: "console"},
		API:    APIConfig{Addr: ":8080", MaxUploadBytes: 32 << 20, Workers: 5, JobRetention: 24 * time.Hour},
		GCP:    GCPConfig{Dataset: "finance"},
	}
}

// Load builds the configuration. A missing file at path is only an error when required is true.
// A .env file in the working directory is loaded first when present.
func Load(path string, required bool) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("Load: read .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("Load: parse %q: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("Load: read %q: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	first := func(names ...string) string {
		for _, n := range names {
			if v := strings.TrimSpace(getenv(n)); v != "" {
				return v
			}
		}
		return ""
	}
	set := func(dst *string, names ...string) {
		if v := first(names...); v != "" {
			*dst = v
		}
	}

	set(&c.Report.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	set(&c.FX.APIKey, "EXCHANGE_RATE_API_KEY")
	set(&c.Postgres.URL, "DATABASE_URL")
	set(&c.Notion.Token, "NOTION_TOKEN")
	set(&c.Notion.DatabaseID, "NOTION_DATABASE_ID")
	set(&c.GCP.ProjectID, "GCP_PROJECT", "GOOGLE_CLOUD_PROJECT")
	set(&c.GCP.Dataset, "BQ_DATASET")
	set(&c.GCP.Bucket, "GCS_BUCKET")
	set(&c.Log.Level, "LOG_LEVEL")
	set(&c.Log.Format, "LOG_FORMAT")
	set(&c.API.Addr, "API_ADDR")

	if v := first("MATCH_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MATCH_THRESHOLD: %w", err)
		}
		c.Matching.Threshold = n
	}
	return nil
}

// Validate checks value ranges and sink names.
func (c *Config) Validate() error {
	var errs []error

	if c.Matching.Threshold < 0 || c.Matching.Threshold > 100 {
		errs = append(errs, fmt.Errorf("matching.threshold must be within 0..100, got %d", c.Matching.Threshold))
	}
	if c.Normalize.Workers < 0 {
		errs = append(errs, fmt.Errorf("normalize.workers must not be negative, got %d", c.Normalize.Workers))
	}
	if c.Normalize.ConversionConcurrency < 0 {
		errs = append(errs, fmt.Errorf("normalize.conversion_concurrency must not be negative, got %d", c.Normalize.ConversionConcurrency))
	}
	if c.FX.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("fx.max_retries must not be negative, got %d", c.FX.MaxRetries))
	}
	if c.Report.MaxRows < 0 {
		errs = append(errs, fmt.Errorf("report.max_rows must not be negative, got %d", c.Report.MaxRows))
	}
	if c.API.JobRetention < 0 {
		errs = append(errs, fmt.Errorf("api.job_retention must not be negative, got %s", c.API.JobRetention))
	}
	if c.Output.UploadURI != "" && !strings.HasPrefix(c.Output.UploadURI, "gs://") {
		errs = append(errs, fmt.Errorf("output.upload_uri must start with gs://, got %q", c.Output.UploadURI))
	}
	for _, s := range c.Sinks {
		switch s {
		case SinkBigQuery, SinkPostgres, SinkNotion:
		default:
			errs = append(errs, fmt.Errorf("unknown sink %q", s))
		}
	}

	return errors.Join(errs...)
}

// RequireSinkCredentials reports missing settings for the configured sinks.
func (c *Config) RequireSinkCredentials() error {
	var errs []error
	for _, s := range c.Sinks {
		switch s {
		case SinkBigQuery:
			if c.GCP.ProjectID == "" {
				errs = append(errs, errors.New("bigquery sink needs GCP_PROJECT"))
			}
		case SinkPostgres:
			if c.Postgres.URL == "" {
				errs = append(errs, errors.New("postgres sink needs DATABASE_URL"))
			}
		case SinkNotion:
			if c.Notion.Token == "" || c.Notion.DatabaseID == "" {
				errs = append(errs, errors.New("notion sink needs NOTION_TOKEN and NOTION_DATABASE_ID"))
			}
		}
	}
	return errors.Join(errs...)
}

// HasSink reports whether name is among the configured sinks.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.Sinks {
		if s == name {
			return true
		}
	}
	return false
}
