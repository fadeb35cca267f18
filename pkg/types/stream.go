package types

// PropertyOverride replaces a type's interpolation mode for one stream.
type PropertyOverride struct {
	PropertyID        string            `json:"property_id" yaml:"property_id"`
	InterpolationMode InterpolationMode `json:"interpolation_mode" yaml:"interpolation_mode"`
}

// IndexDefinition declares a secondary index over a non-key property.
type IndexDefinition struct {
	PropertyID string `json:"property_id" yaml:"property_id"`
}

// Stream is a named, ordered collection of events of one type.
type Stream struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// TypeID is the type reads return. It starts equal to StorageTypeID and
	// moves when the stream is rebound through a view.
	TypeID string `json:"type_id" yaml:"type_id"`

	// StorageTypeID is the type events are written and stored in
	StorageTypeID string `json:"storage_type_id,omitempty" yaml:"storage_type_id,omitempty"`

	// Views lists the stream views applied by rebinding, oldest first
	Views []string `json:"views,omitempty" yaml:"views,omitempty"`

	PropertyOverrides []PropertyOverride `json:"property_overrides,omitempty" yaml:"property_overrides,omitempty"`
	Indexes           []IndexDefinition  `json:"indexes,omitempty" yaml:"indexes,omitempty"`
	Tags              []string           `json:"tags,omitempty" yaml:"tags,omitempty"`
	Metadata          map[string]string  `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Clone returns a deep copy.
func (s *Stream) Clone() *Stream {
	cp := *s
	cp.Views = append([]string(nil), s.Views...)
	cp.PropertyOverrides = append([]PropertyOverride(nil), s.PropertyOverrides...)
	cp.Indexes = append([]IndexDefinition(nil), s.Indexes...)
	cp.Tags = append([]string(nil), s.Tags...)
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// Overrides returns the property overrides as a lookup map.
func (s *Stream) Overrides() map[string]InterpolationMode {
	m := make(map[string]InterpolationMode, len(s.PropertyOverrides))
	for _, o := range s.PropertyOverrides {
		m[o.PropertyID] = o.InterpolationMode.Effective()
	}
	return m
}

// IndexIDs returns the secondary index property ids.
func (s *Stream) IndexIDs() []string {
	ids := make([]string, len(s.Indexes))
	for i, idx := range s.Indexes {
		ids[i] = idx.PropertyID
	}
	return ids
}

// StreamViewProperty is one explicit source to target pairing.
type StreamViewProperty struct {
	SourceID string `json:"source_id" yaml:"source_id"`
	TargetID string `json:"target_id" yaml:"target_id"`
}

// StreamView maps events of a source type into a target type at read time.
// An empty property list asks for automatic mapping.
type StreamView struct {
	ID           string               `json:"id" yaml:"id"`
	Name         string               `json:"name,omitempty" yaml:"name,omitempty"`
	Description  string               `json:"description,omitempty" yaml:"description,omitempty"`
	SourceTypeID string               `json:"source_type_id" yaml:"source_type_id"`
	TargetTypeID string               `json:"target_type_id" yaml:"target_type_id"`
	Properties   []StreamViewProperty `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Clone returns a deep copy.
func (v *StreamView) Clone() *StreamView {
	cp := *v
	cp.Properties = append([]StreamViewProperty(nil), v.Properties...)
	return &cp
}

// MapMode records how a map entry was resolved.
type MapMode string

const (
	MapModeExplicit MapMode = "Explicit"
	MapModeAuto     MapMode = "Auto"
	MapModeUnmapped MapMode = "Unmapped"
)

// StreamViewMapProperty is one resolved entry. An empty TargetID means the
// source property is not mapped.
type StreamViewMapProperty struct {
	SourceID string  `json:"source_id"`
	TargetID string  `json:"target_id,omitempty"`
	Mode     MapMode `json:"mode"`
}

// Mapped reports whether the source property has a target.
func (p StreamViewMapProperty) Mapped() bool {
	return p.TargetID != ""
}

// StreamViewMap is the fully resolved mapping of a view. It lists every
// source property in declaration order.
type StreamViewMap struct {
	SourceTypeID string                  `json:"source_type_id"`
	TargetTypeID string                  `json:"target_type_id"`
	Properties   []StreamViewMapProperty `json:"properties"`
}
