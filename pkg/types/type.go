// Package types provides the data model of the sds store: type schemas,
// events and their key tuples, streams and stream views.
package types

import (
	"fmt"
	"math"
	"sort"
)

// InterpolationMode governs how a property is synthesized at an index that
// holds no stored event.
type InterpolationMode string

const (
	// InterpolationContinuous interpolates linearly between neighbors and
	// extrapolates with the nearest neighbor's value
	InterpolationContinuous InterpolationMode = "Continuous"

	// InterpolationDiscrete returns the type default
	InterpolationDiscrete InterpolationMode = "Discrete"
)

// Valid reports whether m is a known mode. The empty mode means Continuous.
func (m InterpolationMode) Valid() bool {
	return m == "" || m == InterpolationContinuous || m == InterpolationDiscrete
}

// Effective resolves the empty mode to Continuous.
func (m InterpolationMode) Effective() InterpolationMode {
	if m == "" {
		return InterpolationContinuous
	}
	return m
}

// Property is one declared member of a Type.
type Property struct {
	// ID is the property identifier, unique within the type
	ID string `json:"id" yaml:"id"`

	// Name is an optional display name
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// DataType is the declared value type
	DataType DataType `json:"data_type" yaml:"data_type"`

	// IsKey marks the property as part of the primary index
	IsKey bool `json:"is_key,omitempty" yaml:"is_key,omitempty"`

	// KeyOrder sets precedence among key properties. Ties fall back to
	// declaration order.
	KeyOrder int `json:"key_order,omitempty" yaml:"key_order,omitempty"`

	// InterpolationMode is the type default for this property
	InterpolationMode InterpolationMode `json:"interpolation_mode,omitempty" yaml:"interpolation_mode,omitempty"`
}

// Type is a declarative schema: an ordered property list where one or more
// key properties form the primary index.
type Type struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name,omitempty" yaml:"name,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Properties  []Property `json:"properties" yaml:"properties"`
}

// Validate checks the structural invariants of the type.
func (t *Type) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("type id is required")
	}
	if len(t.Properties) == 0 {
		return fmt.Errorf("type %q declares no properties", t.ID)
	}
	seen := make(map[string]bool, len(t.Properties))
	keys := 0
	for _, p := range t.Properties {
		if p.ID == "" {
			return fmt.Errorf("type %q has a property without id", t.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("type %q declares property %q twice", t.ID, p.ID)
		}
		seen[p.ID] = true
		if !p.DataType.Valid() {
			return fmt.Errorf("property %q: %w: %q", p.ID, ErrUnsupportedDataType, p.DataType)
		}
		if !p.InterpolationMode.Valid() {
			return fmt.Errorf("property %q: unknown interpolation mode %q", p.ID, p.InterpolationMode)
		}
		if p.IsKey {
			if !p.DataType.Orderable() {
				return fmt.Errorf("key property %q cannot be %s", p.ID, p.DataType)
			}
			keys++
		}
	}
	if keys == 0 {
		return fmt.Errorf("type %q: %w", t.ID, ErrNoKeyProperty)
	}
	return nil
}

// Property looks up a property by id.
func (t *Type) Property(id string) (Property, bool) {
	for _, p := range t.Properties {
		if p.ID == id {
			return p, true
		}
	}
	return Property{}, false
}

// KeyProperties returns the key properties in sort precedence.
func (t *Type) KeyProperties() []Property {
	var keys []Property
	for _, p := range t.Properties {
		if p.IsKey {
			keys = append(keys, p)
		}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i].KeyOrder < keys[j].KeyOrder
	})
	return keys
}

// KeyIDs returns the key property ids in sort precedence.
func (t *Type) KeyIDs() []string {
	keys := t.KeyProperties()
	ids := make([]string, len(keys))
	for i, p := range keys {
		ids[i] = p.ID
	}
	return ids
}

// SameKey reports whether t and other declare the same key layout.
func (t *Type) SameKey(other *Type) bool {
	a, b := t.KeyProperties(), other.KeyProperties()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].DataType != b[i].DataType {
			return false
		}
	}
	return true
}

// Equal reports whether two definitions are identical.
func (t *Type) Equal(other *Type) bool {
	if t.ID != other.ID || t.Name != other.Name || t.Description != other.Description {
		return false
	}
	if len(t.Properties) != len(other.Properties) {
		return false
	}
	for i := range t.Properties {
		a, b := t.Properties[i], other.Properties[i]
		a.InterpolationMode = a.InterpolationMode.Effective()
		b.InterpolationMode = b.InterpolationMode.Effective()
		if a != b {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (t *Type) Clone() *Type {
	cp := *t
	cp.Properties = append([]Property(nil), t.Properties...)
	return &cp
}

// KeyOf extracts the key tuple of a normalized event.
func (t *Type) KeyOf(ev Event) Key {
	keys := t.KeyProperties()
	k := make(Key, len(keys))
	for i, p := range keys {
		k[i] = ev[p.ID]
	}
	return k
}

// NewKey coerces raw components into a key tuple of this type.
func (t *Type) NewKey(components ...any) (Key, error) {
	keys := t.KeyProperties()
	if len(components) != len(keys) {
		return nil, fmt.Errorf("type %q key has %d components, got %d", t.ID, len(keys), len(components))
	}
	k := make(Key, len(keys))
	for i, p := range keys {
		v, err := Coerce(p.DataType, components[i])
		if err == nil {
			err = checkFinite(v)
		}
		if err != nil {
			return nil, fmt.Errorf("key property %q: %w", p.ID, err)
		}
		k[i] = v
	}
	return k, nil
}

// ParseKey reads a key tuple from its textual form, components separated
// by KeySeparator.
func (t *Type) ParseKey(s string) (Key, error) {
	keys := t.KeyProperties()
	parts := splitKey(s, len(keys))
	if len(parts) != len(keys) {
		return nil, fmt.Errorf("type %q key has %d components, got %d", t.ID, len(keys), len(parts))
	}
	k := make(Key, len(keys))
	for i, p := range keys {
		v, err := ParseValue(p.DataType, parts[i])
		if err == nil {
			err = checkFinite(v)
		}
		if err != nil {
			return nil, fmt.Errorf("key property %q: %w", p.ID, err)
		}
		k[i] = v
	}
	return k, nil
}

// Normalize coerces every property of ev into its canonical value, filling
// defaults for absent non-key properties. Key properties are required and
// unknown properties are rejected.
func (t *Type) Normalize(ev Event) (Event, error) {
	out := make(Event, len(t.Properties))
	for name := range ev {
		if _, ok := t.Property(name); !ok {
			return nil, fmt.Errorf("type %q has no property %q", t.ID, name)
		}
	}
	for _, p := range t.Properties {
		raw, ok := ev[p.ID]
		if !ok || raw == nil {
			if p.IsKey {
				return nil, fmt.Errorf("key property %q is required", p.ID)
			}
			out[p.ID] = p.DataType.Zero()
			continue
		}
		v, err := Coerce(p.DataType, raw)
		if err == nil {
			err = checkFinite(v)
		}
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", p.ID, err)
		}
		out[p.ID] = v
	}
	return out, nil
}

// checkFinite rejects NaN and infinities, which have no stable order and
// no JSON form.
func checkFinite(v any) error {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return fmt.Errorf("%w: %v", ErrNonFinite, f)
	}
	return nil
}

// Defaults returns an event holding the default of every property.
func (t *Type) Defaults() Event {
	ev := make(Event, len(t.Properties))
	for _, p := range t.Properties {
		ev[p.ID] = p.DataType.Zero()
	}
	return ev
}
