package postgres

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trellisviz/trellis/internal/core/domain"
)

func TestValidateDatasetQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sql     string
		wantErr error
	}{
		{"plain SELECT", "SELECT * FROM orders", nil},
		{"SELECT with WHERE and joins", "SELECT o.id, c.name FROM orders o JOIN customers c ON c.id = o.customer_id WHERE o.total > 10", nil},
		{"CTE is a SELECT", "WITH recent AS (SELECT * FROM orders WHERE placed_at > now() - interval '7 days') SELECT * FROM recent", nil},
		{"trailing whitespace", "  SELECT 1  ", nil},
		{"empty string", "", ErrEmptyQuery},
		{"only whitespace", "   \n\t", ErrEmptyQuery},
		{"INSERT rejected", "INSERT INTO orders (id) VALUES (1)", ErrNotSelect},
		{"UPDATE rejected", "UPDATE orders SET total = 0", ErrNotSelect},
		{"DELETE rejected", "DELETE FROM orders", ErrNotSelect},
		{"DDL rejected", "DROP TABLE orders", ErrNotSelect},
		{"EXPLAIN rejected", "EXPLAIN SELECT * FROM orders", ErrNotSelect},
		{"multiple statements rejected", "SELECT 1; SELECT 2", ErrMultiStatement},
		{"piggybacked write rejected", "SELECT 1; DELETE FROM orders", ErrMultiStatement},
		{"garbage fails to parse", "SELEKT me", ErrParseFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateDatasetQuery(tt.sql)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBuildDataset(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	stamp := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	columns := []string{"qty", "price", "name", "active", "day", "placed_at", "order_id"}
	rows := [][]any{
		{int64(3), pgtype.Numeric{Int: big.NewInt(1234), Exp: -2, Valid: true}, "alpha", true, day, stamp, [16]byte(id)},
		{int32(7), pgtype.Numeric{Int: big.NewInt(50), Exp: 0, Valid: true}, []byte("beta"), false, day, stamp, [16]byte(id)},
		{nil, pgtype.Numeric{Int: big.NewInt(99), Exp: -1, Valid: true}, nil, true, day, stamp, [16]byte(id)},
	}

	ds, err := buildDataset("orders", columns, rows)
	require.NoError(t, err)

	assert.Equal(t, "orders", ds.Name())
	assert.Equal(t, 3, ds.Rows())
	assert.Equal(t, columns, ds.Columns())

	qty, ok := ds.Column("qty")
	require.True(t, ok)
	assert.Equal(t, domain.ColumnFloat, qty.Type())
	assert.Equal(t, 3.0, qty.Float(0))
	assert.Equal(t, 7.0, qty.Float(1))
	assert.True(t, math.IsNaN(qty.Float(2)), "NULL in a numeric column becomes NaN")

	price, ok := ds.Column("price")
	require.True(t, ok)
	assert.Equal(t, domain.ColumnFloat, price.Type())
	assert.InDelta(t, 12.34, price.Float(0), 1e-9)
	assert.InDelta(t, 50.0, price.Float(1), 1e-9)
	assert.InDelta(t, 9.9, price.Float(2), 1e-9)

	name, ok := ds.Column("name")
	require.True(t, ok)
	assert.Equal(t, domain.ColumnString, name.Type())
	assert.Equal(t, "alpha", name.String(0))
	assert.Equal(t, "beta", name.String(1))
	assert.Equal(t, "", name.String(2), "NULL in a string column becomes empty")
	assert.True(t, name.Missing(2))

	active, ok := ds.Column("active")
	require.True(t, ok)
	assert.Equal(t, domain.ColumnString, active.Type())
	assert.Equal(t, "true", active.String(0))
	assert.Equal(t, "false", active.String(1))

	dayCol, ok := ds.Column("day")
	require.True(t, ok)
	assert.Equal(t, "2024-03-15", dayCol.String(0))

	placed, ok := ds.Column("placed_at")
	require.True(t, ok)
	assert.Equal(t, "2024-03-15T10:30:00Z", placed.String(0))

	orderID, ok := ds.Column("order_id")
	require.True(t, ok)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", orderID.String(0))
}

func TestBuildDatasetSkipsLeadingNulls(t *testing.T) {
	t.Parallel()

	// Type detection must look past NULLs in early rows.
	rows := [][]any{
		{nil},
		{nil},
		{float64(2.5)},
	}
	ds, err := buildDataset("sparse", []string{"score"}, rows)
	require.NoError(t, err)

	score, ok := ds.Column("score")
	require.True(t, ok)
	assert.Equal(t, domain.ColumnFloat, score.Type())
	assert.True(t, math.IsNaN(score.Float(0)))
	assert.Equal(t, 2.5, score.Float(2))
}

func TestBuildDatasetAllNullColumnIsString(t *testing.T) {
	t.Parallel()

	rows := [][]any{{nil, int64(1)}, {nil, int64(2)}}
	ds, err := buildDataset("d", []string{"ghost", "id"}, rows)
	require.NoError(t, err)

	ghost, ok := ds.Column("ghost")
	require.True(t, ok)
	assert.Equal(t, domain.ColumnString, ghost.Type())
	assert.True(t, ghost.Missing(0))
}

func TestBuildDatasetEmpty(t *testing.T) {
	t.Parallel()

	_, err := buildDataset("d", []string{"a"}, nil)
	assert.ErrorContains(t, err, "no rows")

	_, err = buildDataset("d", nil, [][]any{{1}})
	assert.ErrorContains(t, err, "no columns")
}

func TestNewSourceTrimsTrailingSemicolon(t *testing.T) {
	t.Parallel()

	s := NewSource(nil, "orders", "SELECT * FROM orders;  ", time.Second, 100, nil)
	assert.Equal(t, "SELECT * FROM orders", s.query)

	s = NewSource(nil, "orders", "SELECT * FROM orders ;;", time.Second, 100, nil)
	assert.Equal(t, "SELECT * FROM orders", s.query)
}
