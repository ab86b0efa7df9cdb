package postgres

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/trellisviz/trellis/internal/core/domain"
)

// buildDataset converts a row-major query result into the engine's columnar
// form. A column is numeric when its first non-NULL value converts to
// float64; everything else is rendered as a string. NULLs become NaN in
// numeric columns and the empty string in string columns.
func buildDataset(name string, columns []string, rows [][]any) (*domain.Dataset, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("dataset query returned no columns")
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("dataset query returned no rows")
	}

	cols := make([]*domain.Column, 0, len(columns))
	for i, colName := range columns {
		if isNumericColumn(rows, i) {
			values := make([]float64, len(rows))
			for r, row := range rows {
				values[r] = floatValue(row[i])
			}
			cols = append(cols, domain.NumberColumn(colName, values))
			continue
		}
		values := make([]string, len(rows))
		for r, row := range rows {
			values[r] = stringValue(row[i])
		}
		cols = append(cols, domain.StringColumn(colName, values))
	}
	return domain.NewDataset(name, cols...)
}

func isNumericColumn(rows [][]any, col int) bool {
	for _, row := range rows {
		if row[col] == nil {
			continue
		}
		_, ok := asFloat(row[col])
		return ok
	}
	return false
}

// asFloat converts the numeric types pgx produces for standard scans.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int16:
		return float64(n), true
	case int8:
		return float64(n), true
	case int:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case pgtype.Numeric:
		fv, err := n.Float64Value()
		if err != nil || !fv.Valid {
			return 0, false
		}
		return fv.Float64, true
	default:
		return 0, false
	}
}

func floatValue(v any) float64 {
	if v == nil {
		return math.NaN()
	}
	f, ok := asFloat(v)
	if !ok {
		return math.NaN()
	}
	return f
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case bool:
		return strconv.FormatBool(s)
	case time.Time:
		// DATE columns scan as midnight timestamps; render them as plain dates.
		if s.Hour() == 0 && s.Minute() == 0 && s.Second() == 0 && s.Nanosecond() == 0 {
			return s.Format(time.DateOnly)
		}
		return s.Format(time.RFC3339)
	case [16]byte:
		return uuid.UUID(s).String()
	default:
		return fmt.Sprint(s)
	}
}
