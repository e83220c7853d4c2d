// Package database opens the connection pool that generated models are stored in.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/artpar/ondemand/core/dialect"
)

// SQLiteDriver is the database/sql driver Open uses for SQLite. Its
// connections replace the built-in lower(), which folds ASCII only, with
// Unicode case folding so that search matches non-ASCII text.
const SQLiteDriver = "sqlite3_ondemand"

func init() {
	sql.Register(SQLiteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower", unicodeLower, true)
		},
	})
}

func unicodeLower(v any) any {
	switch s := v.(type) {
	case string:
		return strings.ToLower(s)
	case []byte:
		if s == nil {
			return nil
		}
		return strings.ToLower(string(s))
	default:
		return v
	}
}

// Options configures the connection pool.
type Options struct {
	Driver          string // sqlite or postgres
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB wraps a database connection and the dialect that matches it.
type DB struct {
	*sql.DB
	Dialect dialect.Dialect
}

// Open creates a new database connection and verifies it answers.
func Open(ctx context.Context, opts Options) (*DB, error) {
	d, err := dialect.For(opts.Driver)
	if err != nil {
		return nil, err
	}

	dsn := opts.DSN
	if d.Name() == "sqlite" {
		dsn = sqliteDSN(dsn)
	}

	driverName := d.DriverName()
	if d.Name() == "sqlite" {
		driverName = SQLiteDriver
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if d.Name() == "sqlite" {
		// Set pragmas for performance
		pragmas := []string{
			"PRAGMA synchronous = NORMAL",
			"PRAGMA cache_size = -64000", // 64MB
			"PRAGMA temp_store = MEMORY",
		}
		for _, pragma := range pragmas {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("set pragma: %w", err)
			}
		}
	}

	return &DB{DB: db, Dialect: d}, nil
}

// sqliteDSN enables WAL and a busy timeout unless the DSN already sets options.
func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "ondemand.db"
	}
	if strings.Contains(dsn, "?") || dsn == ":memory:" {
		return dsn
	}
	return dsn + "?_journal_mode=WAL&_busy_timeout=5000"
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
