package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value is a tagged union holding one field value of a record.
// The zero Value is a null string.
type Value struct {
	Kind  Kind
	Valid bool

	str string
	i   int64
	f   float64
	b   bool
	t   time.Time
}

// Record is a dynamically-typed row keyed by field name.
type Record map[string]Value

// String returns a string value.
func String(s string) Value { return Value{Kind: KindString, Valid: true, str: s} }

// Int returns an integer value.
func Int(n int64) Value { return Value{Kind: KindInteger, Valid: true, i: n} }

// Float returns a float value.
func Float(f float64) Value { return Value{Kind: KindFloat, Valid: true, f: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBoolean, Valid: true, b: b} }

// Time returns a timestamp value normalized to UTC.
func Time(t time.Time) Value { return Value{Kind: KindTimestamp, Valid: true, t: t.UTC()} }

// Null returns a null value of the given kind.
func Null(k Kind) Value { return Value{Kind: k} }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return !v.Valid }

// Str returns the string payload.
func (v Value) Str() string { return v.str }

// Int64 returns the integer payload.
func (v Value) Int64() int64 { return v.i }

// Float64 returns the float payload.
func (v Value) Float64() float64 { return v.f }

// BoolValue returns the boolean payload.
func (v Value) BoolValue() bool { return v.b }

// TimeValue returns the timestamp payload.
func (v Value) TimeValue() time.Time { return v.t }

// Interface returns the native Go value, or nil when null.
func (v Value) Interface() any {
	if !v.Valid {
		return nil
	}
	switch v.Kind {
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindBoolean:
		return v.b
	case KindTimestamp:
		return v.t
	default:
		return v.str
	}
}

// DriverValue returns the value passed as a statement argument.
func (v Value) DriverValue() any {
	return v.Interface()
}

// Equal reports whether two values have the same kind, nullness and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind || v.Valid != o.Valid {
		return false
	}
	if !v.Valid {
		return true
	}
	switch v.Kind {
	case KindInteger:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindBoolean:
		return v.b == o.b
	case KindTimestamp:
		return v.t.Equal(o.t)
	default:
		return v.str == o.str
	}
}

// Text renders the value in its literal textual form.
func (v Value) Text() string {
	if !v.Valid {
		return ""
	}
	switch v.Kind {
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindTimestamp:
		return v.t.Format(time.RFC3339Nano)
	default:
		return v.str
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	switch v.Kind {
	case KindTimestamp:
		return json.Marshal(v.t.Format(time.RFC3339Nano))
	default:
		return json.Marshal(v.Interface())
	}
}

// Coerce converts a decoded JSON value to a Value of the given kind.
// Numbers should be decoded with json.Decoder.UseNumber to keep integer precision.
func Coerce(k Kind, in any) (Value, error) {
	if in == nil {
		return Null(k), nil
	}

	switch k {
	case KindString:
		if s, ok := in.(string); ok {
			return String(s), nil
		}
	case KindInteger:
		switch n := in.(type) {
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return Int(i), nil
			}
			if f, err := n.Float64(); err == nil {
				if i, ok := wholeInt64(f); ok {
					return Int(i), nil
				}
			}
		case float64:
			if i, ok := wholeInt64(n); ok {
				return Int(i), nil
			}
		case int:
			return Int(int64(n)), nil
		case int64:
			return Int(n), nil
		case string:
			return ParseLiteral(k, n)
		}
	case KindFloat:
		switch n := in.(type) {
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return Float(f), nil
			}
		case float64:
			return Float(n), nil
		case int:
			return Float(float64(n)), nil
		case int64:
			return Float(float64(n)), nil
		case string:
			return ParseLiteral(k, n)
		}
	case KindBoolean:
		switch b := in.(type) {
		case bool:
			return Bool(b), nil
		case string:
			return ParseFilterLiteral(k, b)
		}
	case KindTimestamp:
		switch t := in.(type) {
		case string:
			return ParseLiteral(k, t)
		case time.Time:
			return Time(t), nil
		}
	}

	return Value{}, fmt.Errorf("expected %s, got %s", k, describeJSON(in))
}

// wholeInt64 reports f as an int64 when it is a whole number inside the
// int64 range. 2^63 itself is representable as a float64 but not as an int64.
func wholeInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < -(1<<63) || f >= 1<<63 {
		return 0, false
	}
	return int64(f), true
}

// FromDB converts a scanned driver value to a Value of the given kind.
func FromDB(k Kind, in any) (Value, error) {
	if in == nil {
		return Null(k), nil
	}
	if b, ok := in.([]byte); ok {
		in = string(b)
	}

	switch k {
	case KindInteger:
		switch n := in.(type) {
		case int64:
			return Int(n), nil
		case float64:
			if i, ok := wholeInt64(math.Trunc(n)); ok {
				return Int(i), nil
			}
		case string:
			return ParseLiteral(k, n)
		}
	case KindFloat:
		switch n := in.(type) {
		case float64:
			return Float(n), nil
		case int64:
			return Float(float64(n)), nil
		case string:
			return ParseLiteral(k, n)
		}
	case KindBoolean:
		switch b := in.(type) {
		case bool:
			return Bool(b), nil
		case int64:
			return Bool(b != 0), nil
		case string:
			return ParseFilterLiteral(k, b)
		}
	case KindTimestamp:
		switch t := in.(type) {
		case time.Time:
			return Time(t), nil
		case string:
			return ParseLiteral(k, t)
		}
	default:
		switch s := in.(type) {
		case string:
			return String(s), nil
		case time.Time:
			return String(s.Format(time.RFC3339Nano)), nil
		default:
			return String(fmt.Sprint(s)), nil
		}
	}

	return Value{}, fmt.Errorf("cannot read %T as %s", in, k)
}

func describeJSON(in any) string {
	switch in.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int, int64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return strings.TrimPrefix(fmt.Sprintf("%T", in), "*")
	}
}
