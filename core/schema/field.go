package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// FieldDefinition defines a single field of a model definition.
type FieldDefinition struct {
	// Name of the field. Interior spaces are normalized to underscores.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Type is the declared kind. See Kind for accepted spellings.
	Type string `json:"type" yaml:"type" validate:"required"`

	// Required marks the field NOT NULL. Defaults to true when omitted.
	Required *bool `json:"required,omitempty" yaml:"required,omitempty"`

	// Default is a textual literal coerced to the field kind at derive time.
	Default *Literal `json:"default,omitempty" yaml:"default,omitempty"`

	// PrimaryKey marks this field as the record key.
	PrimaryKey bool `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`

	// ForeignKey is an opaque "<model>.<field>" reference.
	ForeignKey string `json:"foreign_key,omitempty" yaml:"foreign_key,omitempty"`
}

// IsRequired returns whether the field is required.
// Fields are required unless explicitly marked otherwise.
func (f FieldDefinition) IsRequired() bool {
	if f.Required != nil {
		return *f.Required
	}
	return true
}

// NormalizedName returns the field name with spaces replaced by underscores.
func (f FieldDefinition) NormalizedName() string {
	return NormalizeName(f.Name)
}

// NormalizeName trims a name and replaces interior spaces with underscores.
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}

// SplitForeignKey splits a "<model>.<field>" reference.
func SplitForeignKey(ref string) (model, field string, ok bool) {
	model, field, ok = strings.Cut(ref, ".")
	if !ok || model == "" || field == "" || strings.Contains(field, ".") {
		return "", "", false
	}
	return model, field, true
}

// Literal is a default value in textual form. It accepts JSON and YAML strings,
// numbers and booleans so that "default": 10 and "default": "10" are equivalent.
type Literal string

// String returns the literal text.
func (l Literal) String() string {
	return string(l)
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Literal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Literal(s)
		return nil
	}
	switch {
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		*l = Literal(data)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("default must be a string, number or boolean")
	}
	*l = Literal(n.String())
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *Literal) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: default must be a scalar", node.Line)
	}
	*l = Literal(node.Value)
	return nil
}

// Lit returns a pointer to a literal, for building definitions in code.
func Lit(s string) *Literal {
	l := Literal(s)
	return &l
}
