package types

import "errors"

// Value and definition errors. Callers in internal packages wrap these into
// structured errors with a category.
var (
	// ErrUnsupportedDataType is returned for a data type outside the known set
	ErrUnsupportedDataType = errors.New("unsupported data type")

	// ErrValueType is returned when a value cannot represent the declared data type
	ErrValueType = errors.New("value does not match data type")

	// ErrValueOutOfRange is returned when an integral value overflows its declared width
	ErrValueOutOfRange = errors.New("value out of range")

	// ErrNonFinite is returned for a NaN or infinite floating value
	ErrNonFinite = errors.New("value is not finite")

	// ErrIncomparable is returned when two values have no common ordering
	ErrIncomparable = errors.New("values are not comparable")

	// ErrNoKeyProperty is returned for a type that declares no key property
	ErrNoKeyProperty = errors.New("type must declare at least one key property")
)
