package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/ondemand/core/convention"
	"github.com/artpar/ondemand/core/dialect"
	"github.com/artpar/ondemand/core/schema"
)

// Plan is a built list query. CountSQL uses only the first len(WhereArgs)
// arguments; SelectSQL uses Args.
type Plan struct {
	CountSQL  string
	SelectSQL string
	WhereArgs []any
	Args      []any
	Columns   []convention.Field
	Params    Params
}

// binder appends arguments and hands back dialect placeholders.
type binder struct {
	d    dialect.Dialect
	args []any
}

func (b *binder) bind(v any) string {
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

// Build validates params against the model and renders the count and page queries.
func Build(d dialect.Dialect, desc convention.Descriptor, p Params) (Plan, error) {
	if err := p.checkBounds(); err != nil {
		return Plan{}, err
	}

	b := &binder{d: d}

	var conds []string

	// Filters in sorted key order so the SQL is deterministic.
	keys := make([]string, 0, len(p.Filter))
	for k := range p.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		f, ok := desc.Field(k)
		if !ok {
			return Plan{}, fmt.Errorf("%w: %q is not a field of %s", ErrInvalidFilterField, k, desc.Name)
		}
		v, err := schema.ParseFilterLiteral(f.Kind, p.Filter[k])
		if err != nil {
			return Plan{}, fmt.Errorf("%w: %q: %v", ErrInvalidFilterFormat, k, err)
		}
		conds = append(conds, d.QuoteIdent(f.Name)+" = "+b.bind(d.Arg(v)))
	}

	if p.Search != "" {
		conds = append(conds, searchPredicate(d, b, desc, p.Search))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	whereArgs := append([]any(nil), b.args...)

	table := d.QuoteIdent(desc.Table)
	cols := make([]string, len(desc.Fields))
	for i, f := range desc.Fields {
		cols[i] = d.QuoteIdent(f.Name)
	}

	selectSQL := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT %s OFFSET %s",
		strings.Join(cols, ", "), table, where,
		orderBy(d, desc, p),
		b.bind(p.PageSize), b.bind(p.Offset()))

	return Plan{
		CountSQL:  fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, where),
		SelectSQL: selectSQL,
		WhereArgs: whereArgs,
		Args:      b.args,
		Columns:   desc.Fields,
		Params:    p,
	}, nil
}

// searchPredicate ORs a case-insensitive substring match across text fields.
// A model without text fields matches nothing.
func searchPredicate(d dialect.Dialect, b *binder, desc convention.Descriptor, term string) string {
	text := desc.TextFields()
	if len(text) == 0 {
		return "1 = 0"
	}

	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	ors := make([]string, len(text))
	for i, f := range text {
		ors[i] = fmt.Sprintf(`LOWER(%s) LIKE %s ESCAPE '\'`, d.QuoteIdent(f.Name), b.bind(pattern))
	}
	return "(" + strings.Join(ors, " OR ") + ")"
}

// orderBy sorts by sort_by when it names a field, with the key as final tiebreaker.
func orderBy(d dialect.Dialect, desc convention.Descriptor, p Params) string {
	dir := "ASC"
	if p.SortOrder == SortDesc {
		dir = "DESC"
	}

	key := desc.Key()
	if f, ok := desc.Field(p.SortBy); ok && !f.PrimaryKey {
		return fmt.Sprintf("%s %s, %s ASC", d.QuoteIdent(f.Name), dir, d.QuoteIdent(key.Name))
	}
	return fmt.Sprintf("%s %s", d.QuoteIdent(key.Name), dir)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
