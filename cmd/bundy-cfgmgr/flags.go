package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/yodamaster/bundy/cfgmgr"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	DataPath        string
	ConfigFile      string
	BusURL          string
	ClearConfig     bool
	ModuleTimeout   time.Duration
	LogLevel        string
	LogFormat       string
	MetricsPort     int
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	flag.StringVar(&cfg.DataPath, "data-path",
		getEnv("BUNDY_DATA_PATH", "/var/lib/bundy"),
		"Directory holding the configuration database (env: BUNDY_DATA_PATH)")

	flag.StringVar(&cfg.DataPath, "p",
		getEnv("BUNDY_DATA_PATH", "/var/lib/bundy"),
		"Directory holding the configuration database (env: BUNDY_DATA_PATH)")

	flag.StringVar(&cfg.ConfigFile, "config-filename",
		getEnv("BUNDY_CONFIG_FILE", "b10-config.db"),
		"Configuration database file, absolute or relative to data-path (env: BUNDY_CONFIG_FILE)")

	flag.StringVar(&cfg.ConfigFile, "c",
		getEnv("BUNDY_CONFIG_FILE", "b10-config.db"),
		"Configuration database file, absolute or relative to data-path (env: BUNDY_CONFIG_FILE)")

	flag.StringVar(&cfg.BusURL, "bus-url",
		getEnv("BUNDY_BUS_URL", "nats://localhost:4222"),
		"Message bus URL (env: BUNDY_BUS_URL)")

	flag.BoolVar(&cfg.ClearConfig, "clear-config",
		getEnvBool("BUNDY_CLEAR_CONFIG", false),
		"Back up the existing configuration and start fresh (env: BUNDY_CLEAR_CONFIG)")

	flag.DurationVar(&cfg.ModuleTimeout, "module-timeout",
		getEnvDuration("BUNDY_MODULE_TIMEOUT", cfgmgr.DefaultModuleTimeout),
		"Timeout for a module to answer a configuration update (env: BUNDY_MODULE_TIMEOUT)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("BUNDY_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: BUNDY_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("BUNDY_LOG_FORMAT", "json"),
		"Log format: json, text (env: BUNDY_LOG_FORMAT)")

	flag.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("BUNDY_METRICS_PORT", 8087),
		"Prometheus metrics port, 0 to disable (env: BUNDY_METRICS_PORT)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("BUNDY_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: BUNDY_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")

	flag.Usage = printDetailedHelp

	flag.Parse()

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigFile == "" {
		return fmt.Errorf("config-filename cannot be empty")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}

	if cfg.ModuleTimeout <= 0 {
		return fmt.Errorf("module timeout must be positive: %v", cfg.ModuleTimeout)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Configuration Manager

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run with a custom database location
  %s --data-path=/etc/bundy --config-filename=config.db

  # Run with debug logging
  %s --log-level=debug --log-format=text

  # Discard the stored configuration and start fresh
  %s --clear-config

  # Run with environment variables
  export BUNDY_DATA_PATH=/etc/bundy
  export BUNDY_LOG_LEVEL=debug
  %s

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Utility function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
