package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is one of the closed set of field kinds.
type Kind string

const (
	KindString    Kind = "string"
	KindInteger   Kind = "integer"
	KindFloat     Kind = "float"
	KindBoolean   Kind = "boolean"
	KindTimestamp Kind = "timestamp"
)

// kindAliases maps every accepted type spelling to its canonical kind.
var kindAliases = map[string]Kind{
	"string":    KindString,
	"str":       KindString,
	"integer":   KindInteger,
	"int":       KindInteger,
	"float":     KindFloat,
	"boolean":   KindBoolean,
	"bool":      KindBoolean,
	"timestamp": KindTimestamp,
	"datetime":  KindTimestamp,
}

// Kinds returns the canonical kinds in declaration order.
func Kinds() []Kind {
	return []Kind{KindString, KindInteger, KindFloat, KindBoolean, KindTimestamp}
}

// LookupKind resolves a declared type string to its kind.
// The lookup is case-insensitive.
func LookupKind(typ string) (Kind, bool) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(typ))]
	return k, ok
}

// IsTextual reports whether the kind participates in free-text search.
func (k Kind) IsTextual() bool {
	return k == KindString
}

// GoType returns the name of the native Go type used for values of this kind.
func (k Kind) GoType() string {
	switch k {
	case KindInteger:
		return "int64"
	case KindFloat:
		return "float64"
	case KindBoolean:
		return "bool"
	case KindTimestamp:
		return "time.Time"
	default:
		return "string"
	}
}

// timestampLayouts are tried in order when parsing timestamp text.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses timestamp text in any of the accepted layouts.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a valid timestamp", s)
}

// ParseLiteral converts textual input to a Value of the given kind.
// Booleans follow the definition rule: only "true" (any case) is true.
func ParseLiteral(k Kind, s string) (Value, error) {
	switch k {
	case KindInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%q is not a valid integer", s)
		}
		return Int(n), nil
	case KindFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Value{}, fmt.Errorf("%q is not a valid float", s)
		}
		return Float(f), nil
	case KindBoolean:
		return Bool(strings.EqualFold(strings.TrimSpace(s), "true")), nil
	case KindTimestamp:
		t, err := ParseTimestamp(s)
		if err != nil {
			return Value{}, err
		}
		return Time(t), nil
	default:
		return String(s), nil
	}
}

// ParseFilterLiteral converts a query-string value to a Value of the given kind.
// Unlike ParseLiteral it rejects boolean text other than true/false/1/0.
func ParseFilterLiteral(k Kind, s string) (Value, error) {
	if k != KindBoolean {
		return ParseLiteral(k, s)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1":
		return Bool(true), nil
	case "false", "0":
		return Bool(false), nil
	default:
		return Value{}, fmt.Errorf("%q is not a valid boolean", s)
	}
}
