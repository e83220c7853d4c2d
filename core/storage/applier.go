package storage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/artpar/ondemand/core/convention"
	"github.com/artpar/ondemand/core/dialect"
)

// Applier creates model tables and checks them against the live catalog.
type Applier struct {
	db      *sql.DB
	dialect dialect.Dialect
}

// NewApplier creates an applier over a connection pool.
func NewApplier(db *sql.DB, d dialect.Dialect) *Applier {
	return &Applier{db: db, dialect: d}
}

// Apply creates the table if it does not exist and verifies it.
// Running it again for an existing matching table is a no-op.
func (a *Applier) Apply(ctx context.Context, desc convention.Descriptor) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return &SchemaApplyError{Table: desc.Table, Step: "begin", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, BuildCreateTableSQL(a.dialect, desc)); err != nil {
		return &SchemaApplyError{Table: desc.Table, Step: "create table", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &SchemaApplyError{Table: desc.Table, Step: "commit", Err: err}
	}

	return a.Verify(ctx, desc)
}

// Verify checks that the table is listed in the catalog and carries every
// descriptor column. Column names are compared ignoring case.
func (a *Applier) Verify(ctx context.Context, desc convention.Descriptor) error {
	exists, err := a.dialect.TableExists(ctx, a.db, desc.Table)
	if err != nil {
		return &SchemaApplyError{Table: desc.Table, Step: "verify table", Err: err}
	}
	if !exists {
		return &SchemaApplyError{Table: desc.Table, Step: "table not found in catalog"}
	}

	cols, err := a.dialect.Columns(ctx, a.db, desc.Table)
	if err != nil {
		return &SchemaApplyError{Table: desc.Table, Step: "verify columns", Err: err}
	}

	live := make(map[string]bool, len(cols))
	for _, c := range cols {
		live[strings.ToLower(c)] = true
	}

	var missing []string
	for _, f := range desc.Fields {
		if !live[strings.ToLower(f.Name)] {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return &SchemaApplyError{Table: desc.Table, Step: "column drift", Missing: missing}
	}

	return nil
}
