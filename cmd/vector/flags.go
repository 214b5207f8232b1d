package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Tomwslape5638/vector/config"
)

// Flag names, also the viper keys. VECTOR_<NAME> with dashes as underscores overrides
// the default of each one.
const (
	flagConfig          = "config"
	flagLogLevel        = "log-level"
	flagLogFormat       = "log-format"
	flagHealthAddr      = "health-addr"
	flagShutdownTimeout = "shutdown-timeout"
	flagRequireHealthy  = "require-healthy"
	flagValidate        = "validate"
	flagVersion         = "version"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPaths     []string
	LogLevel        string
	LogFormat       string
	HealthAddr      string
	ShutdownTimeout time.Duration
	// RequireHealthy is nil unless set on the command line or in the environment
	RequireHealthy *bool
	Validate       bool
	ShowVersion    bool

	// Command is the subcommand, empty to run the pipeline
	Command string
	Args    []string
}

func newFlagSet(output io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringSliceP(flagConfig, "c", []string{"vector.yaml"},
		"Configuration files, merged in order (env: VECTOR_CONFIG, space separated)")
	fs.String(flagLogLevel, "info", "Log level: debug, info, warn, error (env: VECTOR_LOG_LEVEL)")
	fs.String(flagLogFormat, "json", "Log format: json, text (env: VECTOR_LOG_FORMAT)")
	fs.String(flagHealthAddr, ":8686",
		"Address serving /metrics and /healthz, empty to disable (env: VECTOR_HEALTH_ADDR)")
	fs.Duration(flagShutdownTimeout, 0,
		"Graceful shutdown timeout, 0 uses shutdown.timeout_secs (env: VECTOR_SHUTDOWN_TIMEOUT)")
	fs.Bool(flagRequireHealthy, false,
		"Abort startup when a sink healthcheck fails (env: VECTOR_REQUIRE_HEALTHY)")
	fs.Bool(flagValidate, false, "Validate configuration and exit")
	fs.BoolP(flagVersion, "v", false, "Show version information")

	fs.Usage = func() {
		printDetailedHelp(output, fs)
	}
	return fs
}

// parseFlags reads args, falling back to VECTOR_ environment variables for flags that
// were not given. It returns pflag.ErrHelp when help was requested.
func parseFlags(args []string, output io.Writer) (*CLIConfig, error) {
	fs := newFlagSet(output)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	cfg := &CLIConfig{
		ConfigPaths:     v.GetStringSlice(flagConfig),
		LogLevel:        strings.ToLower(v.GetString(flagLogLevel)),
		LogFormat:       strings.ToLower(v.GetString(flagLogFormat)),
		HealthAddr:      v.GetString(flagHealthAddr),
		ShutdownTimeout: v.GetDuration(flagShutdownTimeout),
		Validate:        v.GetBool(flagValidate),
		ShowVersion:     v.GetBool(flagVersion),
	}

	if v.IsSet(flagRequireHealthy) {
		require := v.GetBool(flagRequireHealthy)
		cfg.RequireHealthy = &require
	}

	if rest := fs.Args(); len(rest) > 0 {
		cfg.Command = rest[0]
		cfg.Args = rest[1:]
	}

	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion {
		return nil
	}

	switch cfg.Command {
	case "":
	case "generate":
		if len(cfg.Args) == 0 {
			return fmt.Errorf("generate needs at least one component type")
		}
	default:
		return fmt.Errorf("unknown command: %s", cfg.Command)
	}

	if cfg.Command == "" && len(cfg.ConfigPaths) == 0 {
		return fmt.Errorf("no configuration file given")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}

	return nil
}

func printDetailedHelp(w io.Writer, fs *pflag.FlagSet) {
	_, _ = fmt.Fprintf(w, `%s - observability data pipeline

Usage:
  %s [options]                 run the pipeline
  %s generate <type>...        print a pipeline using the default config of each type

Options:
`, appName, appName, appName)
	_, _ = fmt.Fprint(w, fs.FlagUsages())
	_, _ = fmt.Fprintf(w, `
Examples:
  # Run with layered configuration
  %s --config=base.yaml --config=prod.yaml

  # Validate configuration only
  %s --config=vector.yaml --validate

  # Start from a generated pipeline
  %s generate http_scrape websocket > vector.yaml

Version: %s
Build: %s
`, appName, appName, appName, Version, BuildTime)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
