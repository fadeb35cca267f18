package types

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DataType identifies the declared type of a property.
//
// Canonical in-memory values are bool, int64 (every integral type), float64
// (both floating types), string and time.Time in UTC.
type DataType string

const (
	DataTypeBoolean  DataType = "Boolean"
	DataTypeInt16    DataType = "Int16"
	DataTypeInt32    DataType = "Int32"
	DataTypeInt64    DataType = "Int64"
	DataTypeFloat32  DataType = "Float32"
	DataTypeFloat64  DataType = "Float64"
	DataTypeString   DataType = "String"
	DataTypeDateTime DataType = "DateTime"
)

// Valid reports whether d is a known data type.
func (d DataType) Valid() bool {
	switch d {
	case DataTypeBoolean, DataTypeInt16, DataTypeInt32, DataTypeInt64,
		DataTypeFloat32, DataTypeFloat64, DataTypeString, DataTypeDateTime:
		return true
	}
	return false
}

// IsIntegral reports whether d holds whole numbers.
func (d DataType) IsIntegral() bool {
	return d == DataTypeInt16 || d == DataTypeInt32 || d == DataTypeInt64
}

// IsFloating reports whether d holds floating point numbers.
func (d DataType) IsFloating() bool {
	return d == DataTypeFloat32 || d == DataTypeFloat64
}

// IsNumeric reports whether d is integral or floating.
func (d DataType) IsNumeric() bool {
	return d.IsIntegral() || d.IsFloating()
}

// Interpolable reports whether values of d can be linearly interpolated.
func (d DataType) Interpolable() bool {
	return d.IsNumeric() || d == DataTypeDateTime
}

// Orderable reports whether d may be used as an index axis.
func (d DataType) Orderable() bool {
	return d.Valid() && d != DataTypeBoolean
}

// Zero returns the type default value.
func (d DataType) Zero() any {
	switch {
	case d == DataTypeBoolean:
		return false
	case d.IsIntegral():
		return int64(0)
	case d.IsFloating():
		return float64(0)
	case d == DataTypeString:
		return ""
	case d == DataTypeDateTime:
		return time.Time{}
	}
	return nil
}

func (d DataType) intRange() (int64, int64) {
	switch d {
	case DataTypeInt16:
		return math.MinInt16, math.MaxInt16
	case DataTypeInt32:
		return math.MinInt32, math.MaxInt32
	default:
		return math.MinInt64, math.MaxInt64
	}
}

// Widens reports whether every value of from is representable in to without
// loss. Identical types always widen.
func Widens(from, to DataType) bool {
	if from == to {
		return true
	}
	switch from {
	case DataTypeInt16:
		return to == DataTypeInt32 || to == DataTypeInt64 || to == DataTypeFloat32 || to == DataTypeFloat64
	case DataTypeInt32:
		return to == DataTypeInt64 || to == DataTypeFloat64
	case DataTypeFloat32:
		return to == DataTypeFloat64
	}
	return false
}

// Convertible reports whether Convert can map values of from into to.
func Convertible(from, to DataType) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to || to == DataTypeString {
		return true
	}
	numericish := func(d DataType) bool { return d.IsNumeric() || d == DataTypeBoolean }
	if numericish(from) && numericish(to) {
		return true
	}
	return from == DataTypeString && to == DataTypeDateTime
}

// Coerce normalizes v into the canonical representation of d. It accepts
// any Go numeric type and json.Number for numeric types, and RFC 3339
// strings for DateTime. A nil value yields the type default. Floating
// values assigned to integral types must be whole.
func Coerce(d DataType, v any) (any, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDataType, d)
	}
	if v == nil {
		return d.Zero(), nil
	}
	switch {
	case d == DataTypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case d.IsIntegral():
		n, ok, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if ok {
			lo, hi := d.intRange()
			if n < lo || n > hi {
				return nil, fmt.Errorf("%w: %d for %s", ErrValueOutOfRange, n, d)
			}
			return n, nil
		}
	case d.IsFloating():
		if f, ok := toFloat(v); ok {
			if d == DataTypeFloat32 {
				f = float64(float32(f))
			}
			return f, nil
		}
	case d == DataTypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case d == DataTypeDateTime:
		switch t := v.(type) {
		case time.Time:
			return t.UTC(), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not an RFC 3339 time", ErrValueType, t)
			}
			return parsed.UTC(), nil
		}
	}
	return nil, fmt.Errorf("%w: %T for %s", ErrValueType, v, d)
}

// Convert maps a canonical value into data type d using projection rules:
// floating to integral truncates toward zero and saturates at the type
// range, numbers and times format into strings, booleans become 1 or 0.
func Convert(d DataType, v any) (any, error) {
	if v == nil {
		return d.Zero(), nil
	}
	if out, err := Coerce(d, v); err == nil {
		return out, nil
	}
	switch {
	case d.IsIntegral():
		switch x := v.(type) {
		case float64:
			return saturate(d, x), nil
		case int64:
			return saturate(d, float64(x)), nil
		case bool:
			if x {
				return int64(1), nil
			}
			return int64(0), nil
		}
	case d.IsFloating():
		if b, ok := v.(bool); ok {
			if b {
				return float64(1), nil
			}
			return float64(0), nil
		}
	case d == DataTypeBoolean:
		if f, ok := toFloat(v); ok {
			return f != 0, nil
		}
	case d == DataTypeString:
		return FormatValue(v), nil
	}
	return nil, fmt.Errorf("%w: cannot convert %T to %s", ErrValueType, v, d)
}

// FromFloat builds a canonical value of d from a float, as produced by
// interpolation. Integral results truncate toward zero.
func FromFloat(d DataType, f float64) any {
	switch {
	case d.IsIntegral():
		return saturate(d, f)
	case d == DataTypeFloat32:
		return float64(float32(f))
	case d == DataTypeDateTime:
		return time.Unix(0, int64(f)).UTC()
	}
	return f
}

// ToFloat returns the numeric position of a canonical value. Times are
// measured in nanoseconds since the Unix epoch.
func ToFloat(v any) (float64, bool) {
	if t, ok := v.(time.Time); ok {
		return float64(t.UnixNano()), true
	}
	return toFloat(v)
}

func saturate(d DataType, f float64) int64 {
	lo, hi := d.intRange()
	if math.IsNaN(f) {
		return 0
	}
	t := math.Trunc(f)
	if t <= float64(lo) {
		return lo
	}
	if t >= float64(hi) {
		return hi
	}
	return int64(t)
}

func toInt64(v any) (int64, bool, error) {
	switch n := v.(type) {
	case int:
		return int64(n), true, nil
	case int8:
		return int64(n), true, nil
	case int16:
		return int64(n), true, nil
	case int32:
		return int64(n), true, nil
	case int64:
		return n, true, nil
	case uint8:
		return int64(n), true, nil
	case uint16:
		return int64(n), true, nil
	case uint32:
		return int64(n), true, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, false, fmt.Errorf("%w: %d", ErrValueOutOfRange, n)
		}
		return int64(n), true, nil
	case float32:
		return wholeFloat(float64(n))
	case float64:
		return wholeFloat(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false, nil
		}
		return wholeFloat(f)
	}
	return 0, false, nil
}

func wholeFloat(f float64) (int64, bool, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false, nil
	}
	if f < math.MinInt64 || f > math.MaxInt64 {
		return 0, false, fmt.Errorf("%w: %v", ErrValueOutOfRange, f)
	}
	return int64(f), true, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Compare orders two canonical values. Integral and floating values compare
// numerically with each other; other kinds must match.
func Compare(a, b any) (int, error) {
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y), nil
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
		return 0, fmt.Errorf("%w: %T and %T", ErrIncomparable, a, b)
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), nil
		}
		return 0, fmt.Errorf("%w: %T and %T", ErrIncomparable, a, b)
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			default:
				return 1, nil
			}
		}
		return 0, fmt.Errorf("%w: %T and %T", ErrIncomparable, a, b)
	}
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return cmp.Compare(fa, fb), nil
	}
	return 0, fmt.Errorf("%w: %T and %T", ErrIncomparable, a, b)
}

// ParseValue reads a textual value, as sent in a query string, into the
// canonical representation of d.
func ParseValue(d DataType, s string) (any, error) {
	switch {
	case d == DataTypeBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q for %s", ErrValueType, s, d)
		}
		return b, nil
	case d.IsIntegral():
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q for %s", ErrValueType, s, d)
		}
		return Coerce(d, n)
	case d.IsFloating():
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q for %s", ErrValueType, s, d)
		}
		return Coerce(d, f)
	case d == DataTypeString:
		return s, nil
	case d == DataTypeDateTime:
		return Coerce(d, s)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedDataType, d)
}

// FormatValue renders a canonical value as text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}
