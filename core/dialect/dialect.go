// Package dialect provides database-specific SQL generation.
// Each dialect maps field kinds to column types, quotes identifiers,
// renders placeholders and literals, and reads the live catalog.
package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/artpar/ondemand/core/schema"
)

// Dialect defines the interface for database-specific SQL generation.
// Implementations exist for SQLite and PostgreSQL.
type Dialect interface {
	// Name returns the dialect name (sqlite, postgres).
	Name() string

	// DriverName returns the database/sql driver name.
	DriverName() string

	// ColumnType returns the column type for a kind.
	ColumnType(k schema.Kind) string

	// AutoKeyType returns the full column type of an auto-assigned integer key.
	AutoKeyType() string

	// QuoteIdent quotes an identifier.
	QuoteIdent(name string) string

	// Placeholder returns the bind placeholder for the 1-based argument index.
	Placeholder(index int) string

	// Literal renders a value as an SQL literal for DEFAULT clauses.
	Literal(v schema.Value) string

	// Arg converts a value to a statement argument.
	Arg(v schema.Value) any

	// TableExists reports whether the catalog lists the table.
	TableExists(ctx context.Context, q Querier, table string) (bool, error)

	// Columns returns the live column names of a table in ordinal order.
	Columns(ctx context.Context, q Querier, table string) ([]string, error)

	// ReservedNames returns table names the database refuses to create.
	// An entry ending in "*" reserves every name with that prefix.
	ReservedNames() []string
}

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// For returns the dialect registered under name.
func For(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite(), nil
	case "postgres", "postgresql", "pg":
		return Postgres(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", name)
	}
}

func quoteIdentDoubleQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
