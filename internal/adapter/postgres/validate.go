package postgres

import (
	"errors"
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

var (
	ErrEmptyQuery     = errors.New("empty dataset query")
	ErrNotSelect      = errors.New("dataset query must be a SELECT")
	ErrMultiStatement = errors.New("multiple statements are not allowed")
	ErrParseFailed    = errors.New("failed to parse SQL")
)

// ValidateDatasetQuery parses sql using PostgreSQL's actual parser and
// rejects anything that isn't a single SELECT statement. The dataset query
// is operator-supplied configuration, so it is checked before it ever
// reaches a connection.
func ValidateDatasetQuery(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return ErrEmptyQuery
	}

	tree, err := pg_query.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrParseFailed, err)
	}

	if len(tree.Stmts) == 0 {
		return ErrEmptyQuery
	}
	if len(tree.Stmts) > 1 {
		return ErrMultiStatement
	}

	stmt := tree.Stmts[0].Stmt
	if stmt == nil {
		return ErrEmptyQuery
	}
	if _, ok := stmt.Node.(*pg_query.Node_SelectStmt); !ok {
		return ErrNotSelect
	}
	return nil
}
