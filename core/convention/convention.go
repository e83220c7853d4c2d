// Package convention derives a record type descriptor from a model definition.
// It applies naming conventions, the implicit primary key, and default coercion.
package convention

import (
	"net/http"
	"strings"

	"github.com/artpar/ondemand/core/schema"
)

// ImplicitKey is the name of the auto-assigned primary key added to models
// that declare no key of their own.
const ImplicitKey = "id"

// Descriptor is the resolved, immutable representation of a registered model.
// This is the fully-expanded form used by storage, queries and endpoints.
type Descriptor struct {
	// Source is the original model definition.
	Source schema.ModelDefinition

	// Name is the model name as declared.
	Name string

	// Table is the physical table name (lower-cased model name).
	Table string

	// Prefix is the endpoint group prefix, "/" + Table.
	Prefix string

	// Fields contains all fields in order, including the implicit key.
	Fields []Field
}

// Field is a fully-resolved field with all defaults applied.
type Field struct {
	// Name is the normalized field name.
	Name string

	// Kind is the resolved field kind.
	Kind schema.Kind

	// Nullable is true for fields declared required=false.
	Nullable bool

	// Default is the coerced default, nil when there is none.
	Default *schema.Value

	// PrimaryKey marks the record key.
	PrimaryKey bool

	// AutoAssigned means the database assigns the key when a create omits it.
	AutoAssigned bool

	// Implicit marks the injected id field.
	Implicit bool

	// ForeignKey is the "<model>.<field>" reference, empty when none.
	ForeignKey string
}

// Endpoint describes one generated route.
type Endpoint struct {
	Operation string `json:"operation" yaml:"operation"`
	Method    string `json:"method" yaml:"method"`
	Path      string `json:"path" yaml:"path"`
}

// Operation names of the generated endpoint group.
const (
	OpCreate = "create"
	OpList   = "list"
	OpGet    = "get"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Derive expands a model definition into a descriptor.
// The definition is expected to have passed schema.Validate; a default that
// does not parse for its kind is reported here as schema.ErrInvalidDefault.
func Derive(def schema.ModelDefinition) (Descriptor, error) {
	table := def.TableName()
	d := Descriptor{
		Source: def,
		Name:   def.Name,
		Table:  table,
		Prefix: "/" + table,
	}

	fields, err := deriveFields(def)
	if err != nil {
		return Descriptor{}, err
	}
	d.Fields = fields

	return d, nil
}

// deriveFields creates the full list of fields including the implicit key.
func deriveFields(def schema.ModelDefinition) ([]Field, error) {
	fields := make([]Field, 0, len(def.Fields)+1)

	keyName := ""
	for _, f := range def.Fields {
		if f.PrimaryKey {
			keyName = f.NormalizedName()
			break
		}
	}
	if keyName == "" {
		for _, f := range def.Fields {
			if strings.EqualFold(f.NormalizedName(), ImplicitKey) {
				keyName = f.NormalizedName()
				break
			}
		}
	}

	// Implicit ID field
	if keyName == "" {
		fields = append(fields, Field{
			Name:         ImplicitKey,
			Kind:         schema.KindInteger,
			PrimaryKey:   true,
			AutoAssigned: true,
			Implicit:     true,
		})
	}

	for _, f := range def.Fields {
		kind, ok := schema.LookupKind(f.Type)
		if !ok {
			return nil, &schema.ValidationError{
				Rule:   schema.ErrUnknownFieldType,
				Field:  f.NormalizedName(),
				Detail: "type " + f.Type + " is not supported",
			}
		}

		field := Field{
			Name:       f.NormalizedName(),
			Kind:       kind,
			Nullable:   !f.IsRequired(),
			ForeignKey: f.ForeignKey,
		}

		if field.Name == keyName {
			field.PrimaryKey = true
			field.Nullable = false
			field.AutoAssigned = kind == schema.KindInteger && f.Default == nil
		}

		if f.Default != nil {
			v, err := schema.ParseLiteral(kind, f.Default.String())
			if err != nil {
				return nil, schema.InvalidDefault(field.Name, err)
			}
			field.Default = &v
		}

		fields = append(fields, field)
	}

	return fields, nil
}

// Key returns the primary key field.
func (d Descriptor) Key() Field {
	for _, f := range d.Fields {
		if f.PrimaryKey {
			return f
		}
	}
	return Field{}
}

// Field returns the field with the given name.
func (d Descriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames returns field names in declaration order.
func (d Descriptor) FieldNames() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

// TextFields returns the fields that participate in free-text search.
func (d Descriptor) TextFields() []Field {
	var out []Field
	for _, f := range d.Fields {
		if f.Kind.IsTextual() {
			out = append(out, f)
		}
	}
	return out
}

// Endpoints returns the five generated routes in a stable order.
func (d Descriptor) Endpoints() []Endpoint {
	item := d.Prefix + "/{id}"
	return []Endpoint{
		{Operation: OpCreate, Method: http.MethodPost, Path: d.Prefix + "/"},
		{Operation: OpList, Method: http.MethodGet, Path: d.Prefix + "/"},
		{Operation: OpGet, Method: http.MethodGet, Path: item},
		{Operation: OpUpdate, Method: http.MethodPut, Path: item},
		{Operation: OpDelete, Method: http.MethodDelete, Path: item},
	}
}
