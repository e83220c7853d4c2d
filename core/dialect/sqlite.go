package dialect

import (
	"context"
	"fmt"
	"strconv"

	"github.com/artpar/ondemand/core/schema"
)

// sqliteTimeLayout is one of the layouts go-sqlite3 parses back into time.Time.
const sqliteTimeLayout = "2006-01-02 15:04:05.999999999-07:00"

type sqlite struct{}

// SQLite returns the SQLite dialect.
func SQLite() Dialect {
	return &sqlite{}
}

func (d *sqlite) Name() string {
	return "sqlite"
}

func (d *sqlite) DriverName() string {
	return "sqlite3"
}

// ReservedNames covers the sqlite_ prefix SQLite keeps for internal tables.
func (d *sqlite) ReservedNames() []string {
	return []string{"sqlite_*"}
}

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

func (d *sqlite) ColumnType(k schema.Kind) string {
	switch k {
	case schema.KindInteger, schema.KindBoolean:
		return "INTEGER"
	case schema.KindFloat:
		return "REAL"
	case schema.KindTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (d *sqlite) AutoKeyType() string {
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// -----------------------------------------------------------------------------
// Identifiers and values
// -----------------------------------------------------------------------------

func (d *sqlite) QuoteIdent(name string) string {
	return quoteIdentDoubleQuote(name)
}

func (d *sqlite) Placeholder(index int) string {
	// SQLite uses ? for all placeholders
	return "?"
}

func (d *sqlite) Literal(v schema.Value) string {
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
			return "1"
		}
		return "0"
	case schema.KindTimestamp:
		return quoteString(v.TimeValue().Format(sqliteTimeLayout))
	default:
		return quoteString(v.Str())
	}
}

func (d *sqlite) Arg(v schema.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind {
	case schema.KindBoolean:
		if v.BoolValue() {
			return int64(1)
		}
		return int64(0)
	case schema.KindTimestamp:
		return v.TimeValue().Format(sqliteTimeLayout)
	default:
		return v.DriverValue()
	}
}

// -----------------------------------------------------------------------------
// Catalog
// -----------------------------------------------------------------------------

func (d *sqlite) TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query sqlite_master: %w", err)
	}
	return n > 0, nil
}

func (d *sqlite) Columns(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("query table_info: %w", err)
	}
	cols, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("scan table_info: %w", err)
	}
	return cols, nil
}
