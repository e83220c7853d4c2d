package schema

import "strings"

// ModelDefinition is the root definition of a runtime model.
// Everything else (table, record shape, endpoints) is derived from it.
type ModelDefinition struct {
	// Name is the model name. Its lower-cased form is the table name and
	// the endpoint prefix.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Fields are the declared fields in order.
	Fields []FieldDefinition `json:"fields" yaml:"fields" validate:"dive"`
}

// TableName returns the physical table name for the model.
func (d ModelDefinition) TableName() string {
	return strings.ToLower(d.Name)
}

// HasField reports whether a field with the given name exists (case-insensitive,
// after normalization).
func (d ModelDefinition) HasField(name string) bool {
	for _, f := range d.Fields {
		if strings.EqualFold(f.NormalizedName(), name) {
			return true
		}
	}
	return false
}
