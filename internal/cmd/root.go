// Package cmd wires the command-line interface: `lognorm serve` runs the
// upload server, `lognorm process` normalizes a single file from the shell.
package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lognorm/internal/config"
	"lognorm/internal/infer"
	"lognorm/internal/metrics"
	"lognorm/internal/metrics/datadog"
	"lognorm/internal/metrics/promexp"
	"lognorm/internal/normalize"
	"lognorm/internal/pipeline"
)

var (
	cfgFile        string
	metricsBackend string
)

var rootCmd = &cobra.Command{
	Use:   "lognorm",
	Short: "Normalize messy log and data files into one canonical CSV schema",
	Long: `lognorm ingests delimited logs, JSON, JSONL, XML and CSV files and
normalizes them into rows of a fixed schema (timestamp, log_level, message,
service_name, host_name, trace_id, error_details, metadata).

Unstructured .log/.txt files are handled adaptively: a small leading sample
is sent to a pattern-inference service which answers with a named-capture
expression; when that fails, every line is preserved as a raw message.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initEnv)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML; default: built-in defaults + environment)")
	rootCmd.PersistentFlags().StringVar(&metricsBackend, "metrics-backend", "", "metrics backend: datadog, prometheus or none (overrides config)")
}

func initEnv() {
	viper.SetEnvPrefix("LOGNORM")
	viper.AutomaticEnv()
}

// loadConfig reads the config file (or defaults), applies environment and
// flag overrides, and reports validation issues. Error-severity issues are
// fatal; warnings are logged and execution continues.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if v := viper.GetString("listen"); v != "" { // $LOGNORM_LISTEN
		cfg.Listen = v
	}
	if v := viper.GetString("api_key"); v != "" { // $LOGNORM_API_KEY
		cfg.Inference.APIKey = v
	}
	if metricsBackend != "" {
		cfg.Metrics.Backend = metricsBackend
	}

	issues := cfg.Validate()
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return nil, fmt.Errorf("configuration is invalid")
	}
	return cfg, nil
}

// buildInferrer returns nil when no credential is configured; the pipeline
// then rejects .log/.txt uploads with a clear message instead of failing
// mid-request.
func buildInferrer(cfg *config.Config) infer.Inferrer {
	if cfg.Inference.APIKey == "" {
		log.Printf("pattern inference disabled: no API key configured")
		return nil
	}
	g, err := infer.NewGemini(infer.GeminiConfig{
		BaseURL:     cfg.Inference.BaseURL,
		Model:       cfg.Inference.Model,
		APIKey:      cfg.Inference.APIKey,
		Timeout:     secondsOrZero(cfg.Inference.TimeoutSeconds),
		MaxAttempts: cfg.Inference.MaxAttempts,
		Backoff:     cfg.Inference.Backoff,
		BackoffMax:  cfg.Inference.BackoffMax,
	})
	if err != nil {
		log.Printf("pattern inference disabled: %v", err)
		return nil
	}
	return g
}

func secondsOrZero(s int) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s) * time.Second
}

// buildMetrics selects the backend the way the config asks. The
// prometheus backend is returned separately so serve can mount its
// handler; it is nil for the other backends.
func buildMetrics(ctx context.Context, cfg *config.Config) (metrics.Backend, *promexp.Backend, error) {
	switch cfg.Metrics.Backend {
	case "datadog":
		b, err := datadog.NewBackend(ctx, datadog.Options{
			Tags:       cfg.Metrics.Datadog.Tags,
			FlushEvery: cfg.Metrics.Datadog.FlushEvery,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init datadog backend: %w", err)
		}
		return b, nil, nil
	case "prometheus":
		b := promexp.NewBackend()
		return b, b, nil
	default:
		return metrics.Nop{}, nil, nil
	}
}

func buildPipeline(cfg *config.Config, m metrics.Backend) *pipeline.Pipeline {
	p := pipeline.New(buildInferrer(cfg), normalize.FieldMap(cfg.FieldMap), m)
	p.PreviewRows = cfg.PreviewRows
	return p
}
