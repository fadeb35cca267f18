// Package view resolves stream view mappings between two types and
// projects stored events into the target shape at read time. Projection
// never touches stored events.
package view

import (
	sdserrors "github.com/arkilian/sds/internal/errors"
	"github.com/arkilian/sds/pkg/types"
)

// ResolveMap computes the full mapping of v from source to target. An
// explicit property list is used as given, with every unlisted source
// property left unmapped. An empty list maps automatically: properties
// with the same id pair first, then remaining properties pair by declared
// position; in both passes the data types must widen losslessly.
func ResolveMap(v *types.StreamView, source, target *types.Type) (*types.StreamViewMap, error) {
	if v.SourceTypeID != source.ID || v.TargetTypeID != target.ID {
		return nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidView,
			"view %q maps %q to %q, got types %q and %q",
			v.ID, v.SourceTypeID, v.TargetTypeID, source.ID, target.ID)
	}
	if len(v.Properties) > 0 {
		return explicitMap(v, source, target)
	}
	return autoMap(source, target), nil
}

func explicitMap(v *types.StreamView, source, target *types.Type) (*types.StreamViewMap, error) {
	pairs := make(map[string]string, len(v.Properties))
	usedTargets := make(map[string]string, len(v.Properties))
	for _, p := range v.Properties {
		sp, ok := source.Property(p.SourceID)
		if !ok {
			return nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidView,
				"view %q: source type %q has no property %q", v.ID, source.ID, p.SourceID)
		}
		if _, dup := pairs[p.SourceID]; dup {
			return nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidView,
				"view %q maps source property %q twice", v.ID, p.SourceID)
		}
		if p.TargetID == "" {
			pairs[p.SourceID] = ""
			continue
		}
		tp, ok := target.Property(p.TargetID)
		if !ok {
			return nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidView,
				"view %q: target type %q has no property %q", v.ID, target.ID, p.TargetID)
		}
		if prev, dup := usedTargets[p.TargetID]; dup {
			return nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidView,
				"view %q maps both %q and %q to %q", v.ID, prev, p.SourceID, p.TargetID)
		}
		if !types.Convertible(sp.DataType, tp.DataType) {
			return nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidView,
				"view %q: %s %q cannot map to %s %q", v.ID, sp.DataType, sp.ID, tp.DataType, tp.ID)
		}
		pairs[p.SourceID] = p.TargetID
		usedTargets[p.TargetID] = p.SourceID
	}

	m := &types.StreamViewMap{SourceTypeID: source.ID, TargetTypeID: target.ID}
	for _, sp := range source.Properties {
		entry := types.StreamViewMapProperty{SourceID: sp.ID, Mode: types.MapModeUnmapped}
		if tid := pairs[sp.ID]; tid != "" {
			entry.TargetID = tid
			entry.Mode = types.MapModeExplicit
		}
		m.Properties = append(m.Properties, entry)
	}
	return m, nil
}

func autoMap(source, target *types.Type) *types.StreamViewMap {
	pairs := make(map[string]string, len(source.Properties))
	used := make(map[string]bool, len(target.Properties))

	for _, sp := range source.Properties {
		if tp, ok := target.Property(sp.ID); ok && types.Widens(sp.DataType, tp.DataType) {
			pairs[sp.ID] = tp.ID
			used[tp.ID] = true
		}
	}
	for i, sp := range source.Properties {
		if _, done := pairs[sp.ID]; done || i >= len(target.Properties) {
			continue
		}
		tp := target.Properties[i]
		if !used[tp.ID] && types.Widens(sp.DataType, tp.DataType) {
			pairs[sp.ID] = tp.ID
			used[tp.ID] = true
		}
	}

	m := &types.StreamViewMap{SourceTypeID: source.ID, TargetTypeID: target.ID}
	for _, sp := range source.Properties {
		entry := types.StreamViewMapProperty{SourceID: sp.ID, Mode: types.MapModeUnmapped}
		if tid, ok := pairs[sp.ID]; ok {
			entry.TargetID = tid
			entry.Mode = types.MapModeAuto
		}
		m.Properties = append(m.Properties, entry)
	}
	return m
}

// Projector applies a resolved map to events.
type Projector struct {
	target *types.Type
	// target property id -> source property id
	sources map[string]string
}

// NewProjector prepares the projection described by m.
func NewProjector(m *types.StreamViewMap, target *types.Type) *Projector {
	sources := make(map[string]string, len(m.Properties))
	for _, p := range m.Properties {
		if p.Mapped() {
			sources[p.TargetID] = p.SourceID
		}
	}
	return &Projector{target: target, sources: sources}
}

// Target returns the type projected events belong to.
func (p *Projector) Target() *types.Type {
	return p.target
}

// Project builds a target event from ev. Mapped values convert to the
// target data type, truncating toward zero on narrowing; unmapped target
// properties take their defaults. A value that cannot convert also takes
// the default.
func (p *Projector) Project(ev types.Event) types.Event {
	out := make(types.Event, len(p.target.Properties))
	for _, tp := range p.target.Properties {
		sid, ok := p.sources[tp.ID]
		if !ok {
			out[tp.ID] = tp.DataType.Zero()
			continue
		}
		v, err := types.Convert(tp.DataType, ev[sid])
		if err != nil {
			v = tp.DataType.Zero()
		}
		out[tp.ID] = v
	}
	return out
}

// ProjectAll projects every event.
func (p *Projector) ProjectAll(events []types.Event) []types.Event {
	out := make([]types.Event, len(events))
	for i, ev := range events {
		out[i] = p.Project(ev)
	}
	return out
}

// Project is a one-shot projection of ev through m.
func Project(ev types.Event, m *types.StreamViewMap, target *types.Type) types.Event {
	return NewProjector(m, target).Project(ev)
}

// Chain composes projectors, applied in order.
type Chain []*Projector

// Project runs ev through every projector.
func (c Chain) Project(ev types.Event) types.Event {
	for _, p := range c {
		ev = p.Project(ev)
	}
	return ev
}

// ProjectAll runs every event through the chain.
func (c Chain) ProjectAll(events []types.Event) []types.Event {
	if len(c) == 0 {
		return events
	}
	out := make([]types.Event, len(events))
	for i, ev := range events {
		out[i] = c.Project(ev)
	}
	return out
}
