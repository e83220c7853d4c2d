package schema

import (
	"errors"
	"fmt"
)

// Validation rules. A *ValidationError always wraps exactly one of these.
var (
	ErrInvalidName         = errors.New("invalid model name")
	ErrDuplicateModel      = errors.New("model already exists")
	ErrUnknownFieldType    = errors.New("unknown field type")
	ErrDuplicateFieldName  = errors.New("duplicate field name")
	ErrInvalidFieldName    = errors.New("invalid field name")
	ErrMultiplePrimaryKeys = errors.New("multiple primary keys")
	ErrInvalidForeignKey   = errors.New("invalid foreign key")
	ErrInvalidDefault      = errors.New("invalid default")
	ErrInvalidDefinition   = errors.New("invalid definition")
)

// ruleCodes maps rules to stable machine-readable codes.
var ruleCodes = map[error]string{
	ErrInvalidName:         "invalid_name",
	ErrDuplicateModel:      "duplicate_model",
	ErrUnknownFieldType:    "unknown_field_type",
	ErrDuplicateFieldName:  "duplicate_field_name",
	ErrInvalidFieldName:    "invalid_field_name",
	ErrMultiplePrimaryKeys: "multiple_primary_keys",
	ErrInvalidForeignKey:   "invalid_foreign_key",
	ErrInvalidDefault:      "invalid_default",
	ErrInvalidDefinition:   "invalid_definition",
}

// ValidationError reports a definition that violates a rule.
type ValidationError struct {
	Rule   error
	Field  string
	Detail string
}

// Error returns the validation error message.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: field %q: %s", e.Rule, e.Field, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Rule, e.Detail)
}

// Unwrap returns the violated rule.
func (e *ValidationError) Unwrap() error {
	return e.Rule
}

// Code returns the machine-readable code of the violated rule.
func (e *ValidationError) Code() string {
	if code, ok := ruleCodes[e.Rule]; ok {
		return code
	}
	return "validation_error"
}

func invalid(rule error, field, format string, args ...any) *ValidationError {
	return &ValidationError{Rule: rule, Field: field, Detail: fmt.Sprintf(format, args...)}
}

// DuplicateModel returns the error reported when a model name is already taken.
func DuplicateModel(name, existing string) *ValidationError {
	if existing != "" && existing != name {
		return invalid(ErrDuplicateModel, "", "model %q conflicts with registered model %q", name, existing)
	}
	return invalid(ErrDuplicateModel, "", "model %q already exists", name)
}

// InvalidDefault returns the error reported when a default literal does not parse.
func InvalidDefault(field string, err error) *ValidationError {
	return invalid(ErrInvalidDefault, field, "%v", err)
}
