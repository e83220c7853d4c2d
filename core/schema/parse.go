package schema

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MaxNameLength bounds model and field names so they fit every dialect's identifiers.
const MaxNameLength = 63

var (
	modelNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	shape = validator.New(validator.WithRequiredStructEnabled())
)

// ParseFile parses a model definition from a JSON or YAML file.
func ParseFile(path string) (ModelDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ModelDefinition{}, fmt.Errorf("read file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses a model definition from JSON or YAML bytes.
// JSON is accepted because it is a subset of YAML.
func Parse(data []byte) (ModelDefinition, error) {
	var def ModelDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return ModelDefinition{}, fmt.Errorf("parse definition: %w", err)
	}
	return def, nil
}

// Validate checks a model definition before anything is created.
// reserved lists lower-case names that may not be used as models because their
// prefix is already owned by the host router.
// Duplicate model detection is done by the registry, not here.
func Validate(def ModelDefinition, reserved ...string) error {
	if err := shape.Struct(def); err != nil {
		return shapeError(err)
	}

	if err := ValidateName(def.Name, reserved...); err != nil {
		return err
	}

	seen := make(map[string]string, len(def.Fields))
	primaryKeys := 0

	for _, f := range def.Fields {
		name := f.NormalizedName()

		if len(name) > MaxNameLength || !fieldNamePattern.MatchString(name) {
			return invalid(ErrInvalidFieldName, f.Name,
				"must start with a letter or underscore and contain only letters, numbers or underscores")
		}

		key := strings.ToLower(name)
		if prev, ok := seen[key]; ok {
			return invalid(ErrDuplicateFieldName, name, "collides with field %q", prev)
		}
		seen[key] = f.Name

		if _, ok := LookupKind(f.Type); !ok {
			return invalid(ErrUnknownFieldType, name, "type %q is not one of string, integer, float, boolean, timestamp", f.Type)
		}

		if f.ForeignKey != "" {
			model, field, ok := SplitForeignKey(f.ForeignKey)
			if !ok || !modelNamePattern.MatchString(model) || !fieldNamePattern.MatchString(field) {
				return invalid(ErrInvalidForeignKey, name, "reference %q must have the form <model>.<field>", f.ForeignKey)
			}
		}

		if f.PrimaryKey {
			primaryKeys++
		}
	}

	if primaryKeys > 1 {
		return invalid(ErrMultiplePrimaryKeys, "", "at most one field may be marked primary_key, got %d", primaryKeys)
	}

	return nil
}

// ValidateName checks a model name against the identifier pattern and the
// reserved set. A reserved entry ending in "*" matches any name with that prefix.
func ValidateName(name string, reserved ...string) error {
	if len(name) > MaxNameLength || !modelNamePattern.MatchString(name) {
		return invalid(ErrInvalidName, "",
			"model name %q must start with a letter and contain only letters, numbers, or underscores", name)
	}

	lower := strings.ToLower(name)
	for _, r := range reserved {
		r = strings.ToLower(r)
		if prefix, ok := strings.CutSuffix(r, "*"); ok {
			if strings.HasPrefix(lower, prefix) {
				return invalid(ErrInvalidName, "", "model names starting with %q are reserved", prefix)
			}
			continue
		}
		if lower == r {
			return invalid(ErrInvalidName, "", "model name %q is reserved", name)
		}
	}

	return nil
}

// shapeError converts struct tag violations into a validation error.
func shapeError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalid(ErrInvalidDefinition, "", "%v", err)
	}

	fe := verrs[0]
	if fe.StructNamespace() == "ModelDefinition.Name" {
		return invalid(ErrInvalidName, "", "model name is required")
	}
	return invalid(ErrInvalidDefinition, "", "%s is %s", jsonPath(fe.Namespace()), fe.Tag())
}

// jsonPath turns "ModelDefinition.Fields[0].Name" into "fields[0].name".
func jsonPath(ns string) string {
	ns = strings.TrimPrefix(ns, "ModelDefinition.")
	return strings.ToLower(ns)
}
