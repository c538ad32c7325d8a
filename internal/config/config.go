// Package config loads the process-wide configuration once at startup into
// an explicit immutable object that is passed to components. Nothing in
// the pipeline reads configuration ad hoc.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full YAML document.
type Config struct {
	Listen string `yaml:"listen"` // e.g. ":8080"

	Storage   Storage   `yaml:"storage"`
	Inference Inference `yaml:"inference"`
	Metrics   Metrics   `yaml:"metrics"`

	// FieldMap renames source fields to canonical names before
	// normalization, e.g. {ts: timestamp, lvl: log_level}.
	FieldMap map[string]string `yaml:"field_map"`

	PreviewRows    int   `yaml:"preview_rows"`     // default 100
	MaxUploadBytes int64 `yaml:"max_upload_bytes"` // default 32 MiB
}

// Storage locates the artifact directories and the catalog database.
type Storage struct {
	UploadsDir   string `yaml:"uploads_dir"`   // default "uploads"
	ProcessedDir string `yaml:"processed_dir"` // default "processed"
	CatalogDSN   string `yaml:"catalog_dsn"`   // default "file:lognorm.db"
}

// Inference configures the external pattern-inference service.
type Inference struct {
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"api_key"`
	APIKeyEnv      string        `yaml:"api_key_env"` // default GEMINI_API_KEY
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	MaxAttempts    int           `yaml:"max_attempts"`
	Backoff        time.Duration `yaml:"backoff"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

// Metrics selects and configures a metrics backend.
type Metrics struct {
	// Backend: "datadog", "prometheus" or "none" (default).
	Backend string `yaml:"backend"`

	Datadog struct {
		Tags       []string      `yaml:"tags"`
		FlushEvery time.Duration `yaml:"flush_every"`
	} `yaml:"datadog"`

	Prometheus struct {
		Path string `yaml:"path"` // default "/metrics"
	} `yaml:"prometheus"`
}

// Load reads path, applies defaults and resolves the inference credential
// (explicit key, then the configured environment variable). A missing file
// is an error; use Default() for a config-less start.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var c Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Storage.UploadsDir == "" {
		c.Storage.UploadsDir = "uploads"
	}
	if c.Storage.ProcessedDir == "" {
		c.Storage.ProcessedDir = "processed"
	}
	if c.Storage.CatalogDSN == "" {
		c.Storage.CatalogDSN = "file:lognorm.db"
	}
	if c.Inference.APIKeyEnv == "" {
		c.Inference.APIKeyEnv = "GEMINI_API_KEY"
	}
	if c.Inference.APIKey == "" {
		c.Inference.APIKey = os.Getenv(c.Inference.APIKeyEnv)
	}
	if c.Metrics.Backend == "" {
		c.Metrics.Backend = "none"
	}
	if c.Metrics.Prometheus.Path == "" {
		c.Metrics.Prometheus.Path = "/metrics"
	}
	if c.PreviewRows <= 0 {
		c.PreviewRows = 100
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 32 << 20
	}
}

// Severity of a validation issue.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// Issue is one finding from Validate.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// Validate returns every problem it can find rather than stopping at the
// first, so a bad config is fixable in one pass. Callers treat any
// SeverityError issue as fatal.
//
// A missing inference credential is reported loudly at startup and the
// delimited-text path is disabled; it never defaults to a broken state.
// The other formats keep working, so the finding is a warning, not fatal.
func (c *Config) Validate() []Issue {
	var issues []Issue

	if c.Inference.APIKey == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarn,
			Path:     "inference.api_key",
			Message:  fmt.Sprintf("no API key configured and $%s is empty; .log/.txt uploads will be rejected", c.Inference.APIKeyEnv),
		})
	}
	if c.Metrics.Backend != "none" && c.Metrics.Backend != "datadog" && c.Metrics.Backend != "prometheus" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown backend %q (want datadog, prometheus or none)", c.Metrics.Backend),
		})
	}
	if c.Metrics.Backend == "datadog" && os.Getenv("DD_API_KEY") == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarn,
			Path:     "metrics.datadog",
			Message:  "$DD_API_KEY is empty; metric submission will fail",
		})
	}
	if c.PreviewRows > 1000 {
		issues = append(issues, Issue{
			Severity: SeverityWarn,
			Path:     "preview_rows",
			Message:  "very large previews make the result page slow",
		})
	}
	for from, to := range c.FieldMap {
		if from == to {
			issues = append(issues, Issue{
				Severity: SeverityWarn,
				Path:     "field_map." + from,
				Message:  "maps a field to itself",
			})
		}
	}
	return issues
}

// HasErrors reports whether any issue is fatal.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}
