package types

import "strings"

// KeySeparator joins compound key components in textual form.
const KeySeparator = "|"

// Event is one instance of a type's properties, keyed by property id.
type Event map[string]any

// Clone returns a shallow copy; canonical values are immutable.
func (e Event) Clone() Event {
	if e == nil {
		return nil
	}
	cp := make(Event, len(e))
	for k, v := range e {
		cp[k] = v
	}
	return cp
}

// Key is an ordered tuple of canonical key component values.
type Key []any

// Compare orders two keys lexicographically by component.
func (k Key) Compare(other Key) int {
	n := len(k)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		c, err := Compare(k[i], other[i])
		if err != nil {
			continue
		}
		if c != 0 {
			return c
		}
	}
	switch {
	case len(k) < len(other):
		return -1
	case len(k) > len(other):
		return 1
	}
	return 0
}

// Equal reports whether two keys hold the same components.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.Compare(other) == 0
}

// String renders the key with components joined by KeySeparator.
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, v := range k {
		parts[i] = FormatValue(v)
	}
	return strings.Join(parts, KeySeparator)
}

func splitKey(s string, n int) []string {
	if n <= 1 {
		return []string{s}
	}
	return strings.SplitN(s, KeySeparator, n)
}

// BoundaryType decides what a read returns at an index with no stored event.
type BoundaryType int

const (
	// BoundaryExact only returns stored events
	BoundaryExact BoundaryType = 0

	// BoundaryInside keeps reads within the requested range
	BoundaryInside BoundaryType = 1

	// BoundaryOutside extends reads to the nearest stored events beyond the range
	BoundaryOutside BoundaryType = 2

	// BoundaryExactOrCalculated synthesizes events where none are stored
	BoundaryExactOrCalculated BoundaryType = 3
)

var boundaryNames = map[BoundaryType]string{
	BoundaryExact:             "Exact",
	BoundaryInside:            "Inside",
	BoundaryOutside:           "Outside",
	BoundaryExactOrCalculated: "ExactOrCalculated",
}

// String returns the boundary name.
func (b BoundaryType) String() string {
	if name, ok := boundaryNames[b]; ok {
		return name
	}
	return "Unknown"
}

// Valid reports whether b is a known boundary type.
func (b BoundaryType) Valid() bool {
	_, ok := boundaryNames[b]
	return ok
}

// ParseBoundaryType accepts either the name (case-insensitive) or the
// numeric value.
func ParseBoundaryType(s string) (BoundaryType, bool) {
	for b, name := range boundaryNames {
		if strings.EqualFold(name, s) {
			return b, true
		}
	}
	switch s {
	case "0":
		return BoundaryExact, true
	case "1":
		return BoundaryInside, true
	case "2":
		return BoundaryOutside, true
	case "3":
		return BoundaryExactOrCalculated, true
	}
	return 0, false
}
