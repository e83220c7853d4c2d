package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/artpar/ondemand/core/convention"
	"github.com/artpar/ondemand/core/dialect"
	"github.com/artpar/ondemand/core/query"
	"github.com/artpar/ondemand/core/schema"
)

// Store performs record operations for any registered model.
// Every mutation runs in its own transaction.
type Store struct {
	db      *sql.DB
	dialect dialect.Dialect
	newKey  func() string
}

// NewStore creates a record store over a connection pool.
func NewStore(db *sql.DB, d dialect.Dialect) *Store {
	return &Store{db: db, dialect: d, newKey: uuid.NewString}
}

// Dialect returns the SQL dialect of the store.
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

// ParseKey parses a path segment as the model's key.
func ParseKey(desc convention.Descriptor, raw string) (schema.Value, error) {
	key := desc.Key()
	v, err := schema.ParseFilterLiteral(key.Kind, raw)
	if err != nil {
		return schema.Value{}, fmt.Errorf("%w: %s: %v", ErrInvalidKey, key.Name, err)
	}
	return v, nil
}

// Create inserts a record and returns it as stored.
// Absent fields take their default; an omitted string key is filled with a UUID.
func (s *Store) Create(ctx context.Context, desc convention.Descriptor, input map[string]any) (schema.Record, error) {
	var columns []string
	var placeholders []string
	var values []any

	for _, f := range desc.Fields {
		raw, exists := input[f.Name]

		var val schema.Value
		switch {
		case exists:
			v, err := schema.Coerce(f.Kind, raw)
			if err != nil {
				return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidRecord, f.Name, err)
			}
			if v.IsNull() && !f.Nullable {
				return nil, fmt.Errorf("%w: field %q may not be null", ErrInvalidRecord, f.Name)
			}
			val = v
		case f.Default != nil:
			val = *f.Default
		case f.PrimaryKey && f.AutoAssigned:
			continue // Let DB assign
		case f.PrimaryKey && f.Kind == schema.KindString:
			val = schema.String(s.newKey())
		case f.Nullable:
			continue
		default:
			return nil, fmt.Errorf("%w: field %q is required", ErrInvalidRecord, f.Name)
		}

		columns = append(columns, s.dialect.QuoteIdent(f.Name))
		placeholders = append(placeholders, s.dialect.Placeholder(len(values)+1))
		values = append(values, s.dialect.Arg(val))
	}

	key := desc.Key()
	table := s.dialect.QuoteIdent(desc.Table)

	var insertSQL string
	if len(columns) == 0 {
		insertSQL = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s",
			table, s.dialect.QuoteIdent(key.Name))
	} else {
		insertSQL = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			table,
			strings.Join(columns, ", "),
			strings.Join(placeholders, ", "),
			s.dialect.QuoteIdent(key.Name))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var rawKey any
	if err := tx.QueryRowContext(ctx, insertSQL, values...).Scan(&rawKey); err != nil {
		return nil, fmt.Errorf("insert into %s: %w", desc.Table, err)
	}

	keyVal, err := schema.FromDB(key.Kind, rawKey)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}

	rec, err := s.get(ctx, tx, desc, keyVal)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return rec, nil
}

// Get retrieves a record by key.
func (s *Store) Get(ctx context.Context, desc convention.Descriptor, key schema.Value) (schema.Record, error) {
	return s.get(ctx, s.db, desc, key)
}

func (s *Store) get(ctx context.Context, q dialect.Querier, desc convention.Descriptor, key schema.Value) (schema.Record, error) {
	selectSQL := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		s.columnList(desc),
		s.dialect.QuoteIdent(desc.Table),
		s.dialect.QuoteIdent(desc.Key().Name),
		s.dialect.Placeholder(1))

	rows, err := q.QueryContext(ctx, selectSQL, s.dialect.Arg(key))
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", desc.Table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	return scanRecord(rows, desc.Fields)
}

// Update applies a partial update. Absent fields keep their value and the
// key field is never changed.
func (s *Store) Update(ctx context.Context, desc convention.Descriptor, key schema.Value, input map[string]any) (schema.Record, error) {
	var sets []string
	var values []any

	for _, f := range desc.Fields {
		if f.PrimaryKey {
			continue
		}
		raw, exists := input[f.Name]
		if !exists {
			continue
		}

		v, err := schema.Coerce(f.Kind, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidRecord, f.Name, err)
		}
		if v.IsNull() && !f.Nullable {
			return nil, fmt.Errorf("%w: field %q may not be null", ErrInvalidRecord, f.Name)
		}

		values = append(values, s.dialect.Arg(v))
		sets = append(sets, s.dialect.QuoteIdent(f.Name)+" = "+s.dialect.Placeholder(len(values)))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if len(sets) > 0 {
		values = append(values, s.dialect.Arg(key))
		updateSQL := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
			s.dialect.QuoteIdent(desc.Table),
			strings.Join(sets, ", "),
			s.dialect.QuoteIdent(desc.Key().Name),
			s.dialect.Placeholder(len(values)))

		result, err := tx.ExecContext(ctx, updateSQL, values...)
		if err != nil {
			return nil, fmt.Errorf("update %s: %w", desc.Table, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("update %s: %w", desc.Table, err)
		}
		if affected == 0 {
			return nil, ErrNotFound
		}
	}

	rec, err := s.get(ctx, tx, desc, key)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return rec, nil
}

// Delete removes a record by key.
func (s *Store) Delete(ctx context.Context, desc convention.Descriptor, key schema.Value) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		s.dialect.QuoteIdent(desc.Table),
		s.dialect.QuoteIdent(desc.Key().Name),
		s.dialect.Placeholder(1))

	result, err := tx.ExecContext(ctx, deleteSQL, s.dialect.Arg(key))
	if err != nil {
		return fmt.Errorf("delete from %s: %w", desc.Table, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete from %s: %w", desc.Table, err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// List runs a paginated list query.
func (s *Store) List(ctx context.Context, desc convention.Descriptor, params query.Params) (query.Page, error) {
	plan, err := query.Build(s.dialect, desc, params)
	if err != nil {
		return query.Page{}, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, plan.CountSQL, plan.WhereArgs...).Scan(&total); err != nil {
		return query.Page{}, fmt.Errorf("count %s: %w", desc.Table, err)
	}

	rows, err := s.db.QueryContext(ctx, plan.SelectSQL, plan.Args...)
	if err != nil {
		return query.Page{}, fmt.Errorf("list %s: %w", desc.Table, err)
	}
	defer rows.Close()

	var items []schema.Record
	for rows.Next() {
		rec, err := scanRecord(rows, plan.Columns)
		if err != nil {
			return query.Page{}, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return query.Page{}, fmt.Errorf("list %s: %w", desc.Table, err)
	}

	return query.NewPage(items, params, total), nil
}

func (s *Store) columnList(desc convention.Descriptor) string {
	cols := make([]string, len(desc.Fields))
	for i, f := range desc.Fields {
		cols[i] = s.dialect.QuoteIdent(f.Name)
	}
	return strings.Join(cols, ", ")
}

// scanRecord reads one row whose columns follow fields.
func scanRecord(rows *sql.Rows, fields []convention.Field) (schema.Record, error) {
	values := make([]any, len(fields))
	scanDest := make([]any, len(fields))
	for i := range values {
		scanDest[i] = &values[i]
	}

	if err := rows.Scan(scanDest...); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	rec := make(schema.Record, len(fields))
	for i, f := range fields {
		v, err := schema.FromDB(f.Kind, values[i])
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		rec[f.Name] = v
	}
	return rec, nil
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
