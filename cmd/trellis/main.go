package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/trellisviz/trellis/internal/adapter/httpapi"
	"github.com/trellisviz/trellis/internal/adapter/mcp"
	"github.com/trellisviz/trellis/internal/adapter/postgres"
	"github.com/trellisviz/trellis/internal/audit"
	"github.com/trellisviz/trellis/internal/config"
	"github.com/trellisviz/trellis/internal/core/port"
	"github.com/trellisviz/trellis/internal/core/service"
	"github.com/trellisviz/trellis/internal/datagen"
	"github.com/trellisviz/trellis/internal/telemetry"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	overrides, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr — stdout is reserved for the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting trellis",
		slog.String("version", version),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.String("dataset_source", cfg.DatasetSource),
		slog.String("transport", cfg.Transport),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracer := telemetry.NoopTracer()
	var inst port.Instrumentation = port.NoopInstrumentation{}
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, "trellis", version)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown failed", slog.String("error", err.Error()))
			}
		}()
		tracer = otel.Tracer("trellis")
		inst = telemetry.NewInstruments()
		logger.Info("telemetry enabled")
	}

	var auditor port.MutationAuditor = port.NoopAuditor{}
	if cfg.AuditLog != "" {
		fileAuditor, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer fileAuditor.Close()
		auditor = fileAuditor
		logger.Info("audit log enabled", slog.String("file", cfg.AuditLog))
	}

	var sessionFile *config.SessionFile
	if cfg.SessionFile != "" {
		sessionFile, err = config.LoadSessionFile(cfg.SessionFile)
		if err != nil {
			return fmt.Errorf("loading session file: %w", err)
		}
		if g := sessionFile.Generator; g != nil {
			if g.Rows > 0 {
				cfg.GeneratorRows = g.Rows
			}
			if g.Seed != 0 {
				cfg.GeneratorSeed = g.Seed
			}
		}
		logger.Info("session file loaded", slog.String("file", cfg.SessionFile))
	}

	var source port.DatasetSource
	switch cfg.DatasetSource {
	case "postgres":
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
			URL:             cfg.DatabaseURL,
			MaxConns:        cfg.PoolMaxConns,
			MinConns:        cfg.PoolMinConns,
			MaxConnLifetime: cfg.PoolMaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()

		logger.Info("database pool connected",
			slog.String("url", redactDSN(cfg.DatabaseURL)))

		pgSource := postgres.NewSource(pool, datasetName(sessionFile),
			cfg.DatasetQuery, cfg.QueryTimeout, cfg.MaxDatasetRows, logger)

		if cfg.CheckQuery {
			if err := pgSource.Verify(ctx); err != nil {
				return fmt.Errorf("checking dataset query: %w", err)
			}
			logger.Info("dataset query OK")
			return nil
		}
		source = pgSource
	default:
		source = datagen.NewGenerator(cfg.GeneratorRows, cfg.GeneratorSeed, logger)
	}

	ds, err := source.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading dataset: %w", err)
	}

	if sessionFile != nil && len(sessionFile.ExcludeColumns) > 0 {
		ds, err = ds.Without(sessionFile.ExcludeColumns...)
		if err != nil {
			return fmt.Errorf("excluding columns: %w", err)
		}
	}

	logger.Info("dataset ready",
		slog.String("name", ds.Name()),
		slog.Int("rows", ds.Rows()),
		slog.Int("columns", len(ds.Columns())),
	)

	session := service.NewSession(ds, logger, auditor, tracer, inst, cfg.MaxTableRows)

	if sessionFile != nil {
		seedCtx := service.WithToolName(ctx, "session_file")
		for i, seed := range sessionFile.Scatters {
			if _, err := session.ConfigureScatter(seedCtx, seed.Spec()); err != nil {
				return fmt.Errorf("configuring scatter %d from session file: %w", i, err)
			}
		}
	}

	switch cfg.Transport {
	case "http":
		return serveHTTP(ctx, cfg, session, logger)
	default:
		return serveStdio(ctx, session, logger, tracer, inst)
	}
}

// serveStdio runs the MCP server over stdin/stdout until ctx is cancelled
// or the client closes the pipe.
func serveStdio(ctx context.Context, session *service.Session, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) error {
	mcpServer := mcp.NewServer(version, session, logger, tracer, inst)
	stdioServer := mcpserver.NewStdioServer(mcpServer)

	logger.Info("serving MCP over stdio")
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		return fmt.Errorf("stdio server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// serveHTTP runs the JSON API until ctx is cancelled, then drains in-flight
// requests before returning.
func serveHTTP(ctx context.Context, cfg *config.Config, session *service.Session, logger *slog.Logger) error {
	srv := httpapi.NewServer(cfg.HTTPAddr, cfg.HTTPBearerToken, session, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving HTTP API",
			slog.String("addr", cfg.HTTPAddr),
			slog.Bool("auth", cfg.HTTPBearerToken != ""),
		)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// parseFlags parses CLI flags into config overrides. Flags win over
// environment variables; pointer fields stay nil for flags not passed so
// the env values keep applying.
func parseFlags(args []string) (config.Overrides, error) {
	fs := flag.NewFlagSet("trellis", flag.ContinueOnError)

	datasetSource := fs.String("source", "", `dataset source: "synthetic" or "postgres"`)
	databaseURL := fs.String("database-url", "", "Postgres connection string (overrides DATABASE_URL)")
	datasetQuery := fs.String("query", "", "SELECT statement producing the dataset (overrides DATASET_QUERY)")
	queryTimeout := fs.Duration("query-timeout", 0, "dataset query timeout (e.g. 45s)")
	rows := fs.Int("rows", 0, "synthetic dataset size")
	seed := fs.Uint64("seed", 0, "synthetic dataset seed")
	maxTableRows := fs.Int("max-table-rows", 0, "hard cap on one table page")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, or error")
	transport := fs.String("transport", "", `transport: "stdio" or "http"`)
	httpAddr := fs.String("http-addr", "", "HTTP listen address")
	httpBearerToken := fs.String("http-bearer-token", "", "bearer token required by the HTTP transport")
	sessionFile := fs.String("session-file", "", "path to a session YAML file")
	auditLog := fs.String("audit-log", "", "path to an NDJSON audit log")
	otelEnabled := fs.Bool("otel", false, "enable OpenTelemetry tracing and metrics")
	checkQuery := fs.Bool("check-query", false, "validate the dataset query and exit")
	poolMaxConns := fs.Int("pool-max-conns", 0, "max connections in the pool")
	poolMinConns := fs.Int("pool-min-conns", 0, "min idle connections in the pool")
	poolMaxConnLifetime := fs.Duration("pool-max-conn-lifetime", 0, "max lifetime of a pooled connection")

	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, err
	}

	o := config.Overrides{
		OTelEnabled: *otelEnabled,
		CheckQuery:  *checkQuery,
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "source":
			o.DatasetSource = datasetSource
		case "database-url":
			o.DatabaseURL = databaseURL
		case "query":
			o.DatasetQuery = datasetQuery
		case "query-timeout":
			o.QueryTimeout = queryTimeout
		case "rows":
			o.GeneratorRows = rows
		case "seed":
			o.GeneratorSeed = seed
		case "max-table-rows":
			o.MaxTableRows = maxTableRows
		case "log-level":
			o.LogLevel = logLevel
		case "transport":
			o.Transport = transport
		case "http-addr":
			o.HTTPAddr = httpAddr
		case "http-bearer-token":
			o.HTTPBearerToken = httpBearerToken
		case "session-file":
			o.SessionFile = sessionFile
		case "audit-log":
			o.AuditLog = auditLog
		case "pool-max-conns":
			v := int32(*poolMaxConns)
			o.PoolMaxConns = &v
		case "pool-min-conns":
			v := int32(*poolMinConns)
			o.PoolMinConns = &v
		case "pool-max-conn-lifetime":
			o.PoolMaxConnLifetime = poolMaxConnLifetime
		}
	})

	return o, nil
}

// datasetName picks the display name for a database-backed dataset: the
// session file's name when present, a generic fallback otherwise.
func datasetName(sf *config.SessionFile) string {
	if sf != nil && sf.Name != "" {
		return sf.Name
	}
	return "dataset"
}

// redactDSN masks the password portion of a connection string for logging.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
