// Package storage creates tables for registered models and performs
// transactional CRUD and list operations over their records.
package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/ondemand/core/convention"
	"github.com/artpar/ondemand/core/dialect"
	"github.com/artpar/ondemand/core/schema"
)

// Errors returned by record operations.
var (
	ErrNotFound      = errors.New("item not found")
	ErrInvalidRecord = errors.New("invalid record")
	ErrInvalidKey    = errors.New("invalid key")
)

// SchemaApplyError reports a table that could not be created or does not
// match its descriptor after creation.
type SchemaApplyError struct {
	Table   string
	Step    string
	Missing []string
	Err     error
}

// Error returns the schema error message.
func (e *SchemaApplyError) Error() string {
	switch {
	case len(e.Missing) > 0:
		return fmt.Sprintf("apply schema for table %q: %s: missing columns %s",
			e.Table, e.Step, strings.Join(e.Missing, ", "))
	case e.Err != nil:
		return fmt.Sprintf("apply schema for table %q: %s: %v", e.Table, e.Step, e.Err)
	default:
		return fmt.Sprintf("apply schema for table %q: %s", e.Table, e.Step)
	}
}

// Unwrap returns the underlying database error.
func (e *SchemaApplyError) Unwrap() error {
	return e.Err
}

// BuildCreateTableSQL generates CREATE TABLE SQL from a descriptor.
func BuildCreateTableSQL(d dialect.Dialect, desc convention.Descriptor) string {
	columns := make([]string, 0, len(desc.Fields))
	for _, f := range desc.Fields {
		columns = append(columns, buildColumnDef(d, f))
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		d.QuoteIdent(desc.Table),
		strings.Join(columns, ",\n  "),
	)
}

// buildColumnDef builds a column definition from a resolved field.
func buildColumnDef(d dialect.Dialect, f convention.Field) string {
	parts := []string{d.QuoteIdent(f.Name)}

	if f.PrimaryKey && f.AutoAssigned {
		parts = append(parts, d.AutoKeyType())
		return strings.Join(parts, " ")
	}

	parts = append(parts, d.ColumnType(f.Kind))

	if f.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	}

	if !f.Nullable {
		parts = append(parts, "NOT NULL")
	}

	if f.Default != nil {
		parts = append(parts, "DEFAULT "+d.Literal(*f.Default))
	}

	if model, field, ok := schema.SplitForeignKey(f.ForeignKey); ok {
		parts = append(parts, fmt.Sprintf("REFERENCES %s(%s)",
			d.QuoteIdent(strings.ToLower(model)), d.QuoteIdent(field)))
	}

	return strings.Join(parts, " ")
}
