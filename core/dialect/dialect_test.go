package dialect

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/ondemand/core/schema"
)

func TestFor(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"sqlite", "sqlite", false},
		{"SQLite3", "sqlite", false},
		{"postgres", "postgres", false},
		{"postgresql", "postgres", false},
		{"mysql", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := For(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("For(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && d.Name() != tt.want {
				t.Errorf("For(%q).Name() = %q, want %q", tt.in, d.Name(), tt.want)
			}
		})
	}
}

func TestReservedNames(t *testing.T) {
	if got := SQLite().ReservedNames(); len(got) != 1 || got[0] != "sqlite_*" {
		t.Errorf("SQLite().ReservedNames() = %v, want [sqlite_*]", got)
	}
	if got := Postgres().ReservedNames(); len(got) != 0 {
		t.Errorf("Postgres().ReservedNames() = %v, want none", got)
	}
}

func TestColumnTypes(t *testing.T) {
	tests := []struct {
		kind     schema.Kind
		sqlite   string
		postgres string
	}{
		{schema.KindString, "TEXT", "TEXT"},
		{schema.KindInteger, "INTEGER", "BIGINT"},
		{schema.KindFloat, "REAL", "DOUBLE PRECISION"},
		{schema.KindBoolean, "INTEGER", "BOOLEAN"},
		{schema.KindTimestamp, "TIMESTAMP", "TIMESTAMPTZ"},
	}

	for _, tt := range tests {
		if got := SQLite().ColumnType(tt.kind); got != tt.sqlite {
			t.Errorf("SQLite().ColumnType(%s) = %q, want %q", tt.kind, got, tt.sqlite)
		}
		if got := Postgres().ColumnType(tt.kind); got != tt.postgres {
			t.Errorf("Postgres().ColumnType(%s) = %q, want %q", tt.kind, got, tt.postgres)
		}
	}
}

func TestQuoteAndPlaceholder(t *testing.T) {
	if got := SQLite().QuoteIdent(`we"ird`); got != `"we""ird"` {
		t.Errorf("QuoteIdent() = %s", got)
	}
	if got := SQLite().Placeholder(3); got != "?" {
		t.Errorf("SQLite().Placeholder(3) = %s, want ?", got)
	}
	if got := Postgres().Placeholder(3); got != "$3" {
		t.Errorf("Postgres().Placeholder(3) = %s, want $3", got)
	}
}

func TestLiteral(t *testing.T) {
	ts := schema.Time(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))

	tests := []struct {
		name     string
		v        schema.Value
		sqlite   string
		postgres string
	}{
		{"string with quote", schema.String("it's"), "'it''s'", "'it''s'"},
		{"integer", schema.Int(-4), "-4", "-4"},
		{"float", schema.Float(2.5), "2.5", "2.5"},
		{"bool", schema.Bool(true), "1", "TRUE"},
		{"null", schema.Null(schema.KindString), "NULL", "NULL"},
		{"timestamp", ts, "'2024-03-01 08:00:00+00:00'", "'2024-03-01T08:00:00Z'::timestamptz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SQLite().Literal(tt.v); got != tt.sqlite {
				t.Errorf("SQLite().Literal() = %s, want %s", got, tt.sqlite)
			}
			if got := Postgres().Literal(tt.v); got != tt.postgres {
				t.Errorf("Postgres().Literal() = %s, want %s", got, tt.postgres)
			}
		})
	}
}

func TestSQLiteCatalog(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	d := SQLite()

	exists, err := d.TableExists(ctx, db, "book")
	if err != nil {
		t.Fatalf("TableExists failed: %v", err)
	}
	if exists {
		t.Error("TableExists(book) = true before create")
	}

	if _, err := db.Exec(`CREATE TABLE "book" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "title" TEXT)`); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	exists, err = d.TableExists(ctx, db, "book")
	if err != nil || !exists {
		t.Fatalf("TableExists(book) = %v, %v; want true", exists, err)
	}

	cols, err := d.Columns(ctx, db, "book")
	if err != nil {
		t.Fatalf("Columns failed: %v", err)
	}
	if len(cols) != 2 || cols[0] != "id" || cols[1] != "title" {
		t.Errorf("Columns() = %v, want [id title]", cols)
	}
}
