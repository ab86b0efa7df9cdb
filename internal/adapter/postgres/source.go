package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trellisviz/trellis/internal/core/domain"
)

// Source loads an immutable dataset snapshot from a single read-only
// SELECT. The query runs once at startup inside a read-only transaction
// with a server-side statement timeout; the engine never touches the
// database again.
type Source struct {
	pool    *pgxpool.Pool
	name    string
	query   string
	timeout time.Duration
	maxRows int
	logger  *slog.Logger
}

func NewSource(pool *pgxpool.Pool, name, query string, timeout time.Duration, maxRows int, logger *slog.Logger) *Source {
	return &Source{
		pool: pool,
		name: name,
		// Trailing semicolons would break the LIMIT wrapping.
		query:   strings.TrimSpace(strings.TrimRight(query, "; \t\r\n")),
		timeout: timeout,
		maxRows: maxRows,
		logger:  logger,
	}
}

// Load validates the dataset query, executes it, and converts the result
// into columnar form.
func (s *Source) Load(ctx context.Context) (*domain.Dataset, error) {
	if err := ValidateDatasetQuery(s.query); err != nil {
		return nil, fmt.Errorf("validating dataset query: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Enforce the timeout at the database level so PostgreSQL cancels the
	// query server-side even if the Go context is cancelled first.
	// SET LOCAL scopes to this transaction only — no global side effects.
	timeoutMS := s.timeout.Milliseconds()
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%d'", timeoutMS)); err != nil {
		return nil, fmt.Errorf("setting statement timeout: %w", err)
	}

	wrapped := fmt.Sprintf("SELECT * FROM (%s) AS _src LIMIT %d", s.query, s.maxRows)
	rows, err := tx.Query(ctx, wrapped)
	if err != nil {
		return nil, fmt.Errorf("executing dataset query: %w", err)
	}

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, fd := range fields {
		names[i] = fd.Name
	}

	var raw [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		raw = append(raw, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	rows.Close()

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	ds, err := buildDataset(s.name, names, raw)
	if err != nil {
		return nil, err
	}

	s.logger.Info("dataset loaded from postgres",
		slog.Int("rows", ds.Rows()),
		slog.Int("columns", len(ds.Columns())))
	return ds, nil
}

// Verify parses and plans the dataset query without materializing rows.
// Backs the --check-query flag.
func (s *Source) Verify(ctx context.Context) error {
	if err := ValidateDatasetQuery(s.query); err != nil {
		return fmt.Errorf("validating dataset query: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "EXPLAIN "+s.query); err != nil {
		return fmt.Errorf("planning dataset query: %w", err)
	}
	return nil
}
