package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Dataset source.
	DatasetSource  string        // "synthetic" (default) or "postgres"
	DatabaseURL    string        // required when DatasetSource is "postgres"
	DatasetQuery   string        // single SELECT producing the dataset; required for postgres
	QueryTimeout   time.Duration // default: 30s
	MaxDatasetRows int           // cap on loaded rows, default: 100000

	// Synthetic generator.
	GeneratorRows int    // default: 1000
	GeneratorSeed uint64 // default: 42

	// Table view.
	MaxTableRows int // hard cap on one table page, default: 500

	// Logging.
	LogLevel slog.Level

	// Transport.
	Transport       string // "stdio" (default) or "http"
	HTTPAddr        string // listen address for HTTP transport (default ":8080")
	HTTPBearerToken string // enables bearer auth on the HTTP transport when set

	// Session bootstrap.
	SessionFile string // optional path to session YAML

	// Connection pool (postgres source).
	PoolMaxConns        int32         // default: 5
	PoolMinConns        int32         // default: 1
	PoolMaxConnLifetime time.Duration // default: 30m

	// Observability.
	OTelEnabled bool // enable OpenTelemetry tracing and metrics

	// Audit.
	AuditLog string // path to NDJSON audit log file

	// CLI-only fields (not settable via env vars).
	CheckQuery bool // validate the dataset query and exit
}

// Overrides holds CLI flag values that override environment variables.
// Pointer fields distinguish "not set" from zero values.
type Overrides struct {
	DatasetSource   *string
	DatabaseURL     *string
	DatasetQuery    *string
	QueryTimeout    *time.Duration
	GeneratorRows   *int
	GeneratorSeed   *uint64
	MaxTableRows    *int
	LogLevel        *string
	Transport       *string
	HTTPAddr        *string
	HTTPBearerToken *string
	SessionFile     *string
	AuditLog        *string
	OTelEnabled     bool
	CheckQuery      bool

	// Connection pool overrides.
	PoolMaxConns        *int32
	PoolMinConns        *int32
	PoolMaxConnLifetime *time.Duration
}

// Load builds a Config from environment variables, then applies CLI overrides,
// then validates the result.
func Load(overrides Overrides) (*Config, error) {
	cfg := defaults()

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config populated with default values.
func defaults() *Config {
	return &Config{
		DatasetSource:       "synthetic",
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		QueryTimeout:        30 * time.Second,
		MaxDatasetRows:      100000,
		GeneratorRows:       1000,
		GeneratorSeed:       42,
		MaxTableRows:        500,
		Transport:           "stdio",
		HTTPAddr:            ":8080",
		PoolMaxConns:        5,
		PoolMinConns:        1,
		PoolMaxConnLifetime: 30 * time.Minute,
	}
}

// loadEnvVars reads all supported environment variables into cfg.
func loadEnvVars(cfg *Config) error {
	if v := os.Getenv("DATASET_SOURCE"); v != "" {
		cfg.DatasetSource = v
	}
	cfg.DatasetQuery = os.Getenv("DATASET_QUERY")

	if v := os.Getenv("QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid QUERY_TIMEOUT value %q: %w", v, err)
		}
		cfg.QueryTimeout = d
	}

	if v := os.Getenv("MAX_DATASET_ROWS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid MAX_DATASET_ROWS value %q: must be a positive integer", v)
		}
		cfg.MaxDatasetRows = n
	}

	if v := os.Getenv("GENERATOR_ROWS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid GENERATOR_ROWS value %q: must be a positive integer", v)
		}
		cfg.GeneratorRows = n
	}

	if v := os.Getenv("GENERATOR_SEED"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid GENERATOR_SEED value %q: must be an unsigned integer", v)
		}
		cfg.GeneratorSeed = n
	}

	if v := os.Getenv("MAX_TABLE_ROWS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid MAX_TABLE_ROWS value %q: must be a positive integer", v)
		}
		cfg.MaxTableRows = n
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	if v := os.Getenv("TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.HTTPBearerToken = os.Getenv("HTTP_BEARER_TOKEN")
	cfg.SessionFile = os.Getenv("SESSION_FILE")
	cfg.AuditLog = os.Getenv("AUDIT_LOG")

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OTEL_ENABLED value %q: %w", v, err)
		}
		cfg.OTelEnabled = b
	}

	if err := loadPoolEnvVars(cfg); err != nil {
		return err
	}

	return nil
}

// loadPoolEnvVars reads connection pool environment variables.
func loadPoolEnvVars(cfg *Config) error {
	if v := os.Getenv("POOL_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid POOL_MAX_CONNS value %q: must be a positive integer", v)
		}
		cfg.PoolMaxConns = int32(n)
	}
	if v := os.Getenv("POOL_MIN_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid POOL_MIN_CONNS value %q: must be a non-negative integer", v)
		}
		cfg.PoolMinConns = int32(n)
	}
	if v := os.Getenv("POOL_MAX_CONN_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid POOL_MAX_CONN_LIFETIME value %q: %w", v, err)
		}
		cfg.PoolMaxConnLifetime = d
	}
	return nil
}

// applyOverrides applies CLI flag values on top of the env-loaded config.
func applyOverrides(cfg *Config, o Overrides) error {
	if o.DatasetSource != nil {
		cfg.DatasetSource = *o.DatasetSource
	}
	if o.DatabaseURL != nil {
		cfg.DatabaseURL = *o.DatabaseURL
	}
	if o.DatasetQuery != nil {
		cfg.DatasetQuery = *o.DatasetQuery
	}
	if o.QueryTimeout != nil {
		cfg.QueryTimeout = *o.QueryTimeout
	}
	if o.GeneratorRows != nil {
		if *o.GeneratorRows <= 0 {
			return fmt.Errorf("invalid --rows value: must be a positive integer")
		}
		cfg.GeneratorRows = *o.GeneratorRows
	}
	if o.GeneratorSeed != nil {
		cfg.GeneratorSeed = *o.GeneratorSeed
	}
	if o.MaxTableRows != nil {
		if *o.MaxTableRows <= 0 {
			return fmt.Errorf("invalid --max-table-rows value: must be a positive integer")
		}
		cfg.MaxTableRows = *o.MaxTableRows
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if o.Transport != nil {
		cfg.Transport = *o.Transport
	}
	if o.HTTPAddr != nil {
		cfg.HTTPAddr = *o.HTTPAddr
	}
	if o.HTTPBearerToken != nil {
		cfg.HTTPBearerToken = *o.HTTPBearerToken
	}
	if o.SessionFile != nil {
		cfg.SessionFile = *o.SessionFile
	}
	if o.AuditLog != nil {
		cfg.AuditLog = *o.AuditLog
	}

	if err := applyPoolOverrides(cfg, o); err != nil {
		return err
	}

	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled
	cfg.CheckQuery = o.CheckQuery

	return nil
}

// applyPoolOverrides applies connection pool CLI flag overrides.
func applyPoolOverrides(cfg *Config, o Overrides) error {
	if o.PoolMaxConns != nil {
		if *o.PoolMaxConns <= 0 {
			return fmt.Errorf("invalid --pool-max-conns value: must be a positive integer")
		}
		cfg.PoolMaxConns = *o.PoolMaxConns
	}
	if o.PoolMinConns != nil {
		if *o.PoolMinConns < 0 {
			return fmt.Errorf("invalid --pool-min-conns value: must be a non-negative integer")
		}
		cfg.PoolMinConns = *o.PoolMinConns
	}
	if o.PoolMaxConnLifetime != nil {
		cfg.PoolMaxConnLifetime = *o.PoolMaxConnLifetime
	}
	return nil
}

// validate checks cross-field constraints on the final config.
func validate(cfg *Config) error {
	switch cfg.DatasetSource {
	case "synthetic":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATASET_SOURCE is \"postgres\" (set via env var or --database-url flag)")
		}
		if cfg.DatasetQuery == "" {
			return fmt.Errorf("DATASET_QUERY is required when DATASET_SOURCE is \"postgres\" (set via env var or --query flag)")
		}
	default:
		return fmt.Errorf("invalid DATASET_SOURCE value %q: must be \"synthetic\" or \"postgres\"", cfg.DatasetSource)
	}

	switch cfg.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid TRANSPORT value %q: must be \"stdio\" or \"http\"", cfg.Transport)
	}

	if cfg.CheckQuery && cfg.DatasetSource != "postgres" {
		return fmt.Errorf("--check-query requires DATASET_SOURCE \"postgres\"")
	}

	if cfg.PoolMinConns > cfg.PoolMaxConns {
		return fmt.Errorf("POOL_MIN_CONNS (%d) must not exceed POOL_MAX_CONNS (%d)", cfg.PoolMinConns, cfg.PoolMaxConns)
	}

	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
