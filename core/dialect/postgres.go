package dialect

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/artpar/ondemand/core/schema"
)

type postgres struct{}

// Postgres returns the PostgreSQL dialect.
func Postgres() Dialect {
	return &postgres{}
}

func (d *postgres) Name() string {
	return "postgres"
}

func (d *postgres) DriverName() string {
	return "postgres"
}

func (d *postgres) ReservedNames() []string {
	return nil
}

func (d *postgres) ColumnType(k schema.Kind) string {
	switch k {
	case schema.KindInteger:
		return "BIGINT"
	case schema.KindFloat:
		return "DOUBLE PRECISION"
	case schema.KindBoolean:
		return "BOOLEAN"
	case schema.KindTimestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

func (d *postgres) AutoKeyType() string {
	return "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
}

func (d *postgres) QuoteIdent(name string) string {
	// PostgreSQL uses double quotes for identifiers
	return quoteIdentDoubleQuote(name)
}

func (d *postgres) Placeholder(index int) string {
	return "$" + strconv.Itoa(index)
}

func (d *postgres) Literal(v schema.Value) string {
	if v.IsNull() {
		return "NULL"
	}
	switch v.Kind {
	case schema.KindInteger:
		return strconv.FormatInt(v.Int64(), 10)
	case schema.KindFloat:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case schema.KindBoolean:
		if v.BoolValue() {
			return "TRUE"
		}
		return "FALSE"
	case schema.KindTimestamp:
		return quoteString(v.TimeValue().Format(time.RFC3339Nano)) + "::timestamptz"
	default:
		return quoteString(v.Str())
	}
}

func (d *postgres) Arg(v schema.Value) any {
	return v.DriverValue()
}

func (d *postgres) TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_tables
			WHERE schemaname = current_schema() AND tablename = $1
		)`, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query pg_tables: %w", err)
	}
	return exists, nil
}

func (d *postgres) Columns(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("query information_schema.columns: %w", err)
	}
	cols, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("scan information_schema.columns: %w", err)
	}
	return cols, nil
}
