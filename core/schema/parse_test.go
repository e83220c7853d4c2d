package schema

import (
	"errors"
	"strings"
	"testing"
)

func boolPtr(b bool) *bool {
	return &b
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     ModelDefinition
		wantErr error
	}{
		{
			name: "valid definition",
			def: ModelDefinition{Name: "Book", Fields: []FieldDefinition{
				{Name: "title", Type: "string"},
				{Name: "pages", Type: "int", Default: Lit("10")},
				{Name: "author id", Type: "integer", ForeignKey: "Author.id"},
			}},
		},
		{
			name: "no fields is allowed",
			def:  ModelDefinition{Name: "Empty"},
		},
		{
			name:    "missing name",
			def:     ModelDefinition{Fields: []FieldDefinition{{Name: "a", Type: "str"}}},
			wantErr: ErrInvalidName,
		},
		{
			name:    "name starting with digit",
			def:     ModelDefinition{Name: "1book"},
			wantErr: ErrInvalidName,
		},
		{
			name:    "name starting with underscore",
			def:     ModelDefinition{Name: "_book"},
			wantErr: ErrInvalidName,
		},
		{
			name:    "name with dash",
			def:     ModelDefinition{Name: "my-book"},
			wantErr: ErrInvalidName,
		},
		{
			name:    "name too long",
			def:     ModelDefinition{Name: "a" + strings.Repeat("b", MaxNameLength)},
			wantErr: ErrInvalidName,
		},
		{
			name:    "unknown field type",
			def:     ModelDefinition{Name: "Book", Fields: []FieldDefinition{{Name: "x", Type: "decimal"}}},
			wantErr: ErrUnknownFieldType,
		},
		{
			name:    "missing field type",
			def:     ModelDefinition{Name: "Book", Fields: []FieldDefinition{{Name: "x"}}},
			wantErr: ErrInvalidDefinition,
		},
		{
			name: "duplicate after normalization",
			def: ModelDefinition{Name: "Book", Fields: []FieldDefinition{
				{Name: "first name", Type: "str"},
				{Name: "first_name", Type: "str"},
			}},
			wantErr: ErrDuplicateFieldName,
		},
		{
			name: "duplicate differing in case",
			def: ModelDefinition{Name: "Book", Fields: []FieldDefinition{
				{Name: "Title", Type: "str"},
				{Name: "title", Type: "str"},
			}},
			wantErr: ErrDuplicateFieldName,
		},
		{
			name:    "field name with punctuation",
			def:     ModelDefinition{Name: "Book", Fields: []FieldDefinition{{Name: "title;drop", Type: "str"}}},
			wantErr: ErrInvalidFieldName,
		},
		{
			name: "two primary keys",
			def: ModelDefinition{Name: "Book", Fields: []FieldDefinition{
				{Name: "isbn", Type: "str", PrimaryKey: true},
				{Name: "code", Type: "str", PrimaryKey: true},
			}},
			wantErr: ErrMultiplePrimaryKeys,
		},
		{
			name:    "foreign key without field",
			def:     ModelDefinition{Name: "Book", Fields: []FieldDefinition{{Name: "a", Type: "int", ForeignKey: "author"}}},
			wantErr: ErrInvalidForeignKey,
		},
		{
			name:    "foreign key with extra segment",
			def:     ModelDefinition{Name: "Book", Fields: []FieldDefinition{{Name: "a", Type: "int", ForeignKey: "a.b.c"}}},
			wantErr: ErrInvalidForeignKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.def)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error is %T, want *ValidationError", err)
			}
			if verr.Code() == "validation_error" {
				t.Errorf("Code() has no specific rule for %v", tt.wantErr)
			}
		})
	}
}

func TestValidateReservedNames(t *testing.T) {
	def := ModelDefinition{Name: "Rest"}
	if err := Validate(def, "rest", "health"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Validate(reserved) error = %v, want ErrInvalidName", err)
	}
	if err := Validate(def, "health"); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidateNameReservedPrefix(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"sqlite_master", true},
		{"SQLite_Stat1", true},
		{"sqlite_", true},
		{"sqlite", false},
		{"sqlitex", false},
		{"my_sqlite_notes", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.name, "health", "sqlite_*")
			if tt.wantErr && !errors.Is(err, ErrInvalidName) {
				t.Errorf("ValidateName(%q) error = %v, want ErrInvalidName", tt.name, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateName(%q) unexpected error: %v", tt.name, err)
			}
		})
	}
}

func TestParse(t *testing.T) {
	t.Run("json with numeric default", func(t *testing.T) {
		def, err := Parse([]byte(`{"name":"Book","fields":[{"name":"pages","type":"int","default":10,"required":false}]}`))
		if err != nil {
			t.Fatalf("Parse() error: %v", err)
		}
		if def.Name != "Book" || len(def.Fields) != 1 {
			t.Fatalf("Parse() = %+v", def)
		}
		f := def.Fields[0]
		if f.Default == nil || f.Default.String() != "10" {
			t.Errorf("Default = %v, want 10", f.Default)
		}
		if f.IsRequired() {
			t.Error("IsRequired() = true, want false")
		}
	})

	t.Run("yaml", func(t *testing.T) {
		def, err := Parse([]byte("name: Book\nfields:\n  - name: done\n    type: bool\n    default: true\n"))
		if err != nil {
			t.Fatalf("Parse() error: %v", err)
		}
		if got := def.Fields[0].Default.String(); got != "true" {
			t.Errorf("Default = %q, want true", got)
		}
		if !def.Fields[0].IsRequired() {
			t.Error("IsRequired() = false, want true by default")
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := Parse([]byte(`{"name": [`)); err == nil {
			t.Error("Parse() expected error")
		}
	})
}

func TestFieldIsRequired(t *testing.T) {
	tests := []struct {
		name     string
		field    FieldDefinition
		expected bool
	}{
		{"nil Required (default true)", FieldDefinition{Type: "str"}, true},
		{"Required set to true", FieldDefinition{Type: "str", Required: boolPtr(true)}, true},
		{"Required set to false", FieldDefinition{Type: "str", Required: boolPtr(false)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.field.IsRequired(); got != tt.expected {
				t.Errorf("FieldDefinition.IsRequired() = %v, want %v", got, tt.expected)
			}
		})
	}
}
