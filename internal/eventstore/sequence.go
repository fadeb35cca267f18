package eventstore

import (
	"sort"

	sdserrors "github.com/arkilian/sds/internal/errors"
	"github.com/arkilian/sds/pkg/types"
)

// Modes holds per-stream interpolation overrides keyed by property id.
type Modes map[string]types.InterpolationMode

// For returns the effective mode of p: the override if present, else the
// type default.
func (m Modes) For(p types.Property) types.InterpolationMode {
	if mode, ok := m[p.ID]; ok {
		return mode.Effective()
	}
	return p.InterpolationMode.Effective()
}

// Predicate selects events by their property values.
type Predicate interface {
	Matches(record map[string]any) bool
}

// Sequence is an immutable run of events ordered along an axis: the key
// properties for a stream, or a single property for a secondary index.
// Events sharing an axis position are kept in primary key order.
type Sequence struct {
	Stream string
	Type   *types.Type
	Modes  Modes
	Axis   []types.Property
	Events []types.Event
}

// PositionOf returns the axis position of ev.
func (q *Sequence) PositionOf(ev types.Event) types.Key {
	pos := make(types.Key, len(q.Axis))
	for i, p := range q.Axis {
		pos[i] = ev[p.ID]
	}
	return pos
}

// Len returns the number of events.
func (q *Sequence) Len() int {
	return len(q.Events)
}

// lowerBound returns the first index whose position is >= at.
func (q *Sequence) lowerBound(at types.Key) int {
	return sort.Search(len(q.Events), func(i int) bool {
		return q.PositionOf(q.Events[i]).Compare(at) >= 0
	})
}

// upperBound returns the first index whose position is > at.
func (q *Sequence) upperBound(at types.Key) int {
	return sort.Search(len(q.Events), func(i int) bool {
		return q.PositionOf(q.Events[i]).Compare(at) > 0
	})
}

func (q *Sequence) storedAt(i int, at types.Key) bool {
	return i < len(q.Events) && q.PositionOf(q.Events[i]).Equal(at)
}

// First returns the lowest event.
func (q *Sequence) First() (types.Event, error) {
	if len(q.Events) == 0 {
		return nil, sdserrors.EmptyStream(q.Stream)
	}
	return q.Events[0].Clone(), nil
}

// Last returns the highest event.
func (q *Sequence) Last() (types.Event, error) {
	if len(q.Events) == 0 {
		return nil, sdserrors.EmptyStream(q.Stream)
	}
	return q.Events[len(q.Events)-1].Clone(), nil
}

// At returns the event stored at position at, or applies boundary when
// none is stored. Exact and Inside fail with NotFound, ExactOrCalculated
// interpolates, Outside returns the nearest stored event preferring the
// preceding one.
func (q *Sequence) At(at types.Key, boundary types.BoundaryType) (types.Event, error) {
	i := q.lowerBound(at)
	if q.storedAt(i, at) {
		return q.Events[i].Clone(), nil
	}
	if len(q.Events) == 0 {
		return nil, sdserrors.EmptyStream(q.Stream)
	}

	switch boundary {
	case types.BoundaryExactOrCalculated:
		return q.calculateAt(i, at), nil
	case types.BoundaryOutside:
		if i > 0 {
			return q.Events[i-1].Clone(), nil
		}
		return q.Events[i].Clone(), nil
	default:
		return nil, sdserrors.NotFound(sdserrors.CodeEventNotFound,
			"stream %q has no event at index %s", q.Stream, at.String()).
			WithDetails(map[string]interface{}{"index": at.String()})
	}
}

// Window returns the stored events with position in [start, end].
func (q *Sequence) Window(start, end types.Key) []types.Event {
	if start.Compare(end) > 0 {
		return []types.Event{}
	}
	lo, hi := q.lowerBound(start), q.upperBound(end)
	out := make([]types.Event, 0, hi-lo)
	for _, ev := range q.Events[lo:hi] {
		out = append(out, ev.Clone())
	}
	return out
}

// WindowBoundary is Window with endpoint handling. Outside adds the
// nearest stored event beyond an endpoint that is not itself stored;
// ExactOrCalculated synthesizes events at missing endpoints.
func (q *Sequence) WindowBoundary(start, end types.Key, boundary types.BoundaryType) []types.Event {
	out := q.Window(start, end)
	if start.Compare(end) > 0 || len(q.Events) == 0 {
		return out
	}

	lo, hi := q.lowerBound(start), q.upperBound(end)
	startStored := q.storedAt(lo, start)
	endStored := hi > 0 && q.PositionOf(q.Events[hi-1]).Equal(end)

	switch boundary {
	case types.BoundaryOutside:
		if !startStored && lo > 0 {
			out = append([]types.Event{q.Events[lo-1].Clone()}, out...)
		}
		if !endStored && hi < len(q.Events) {
			out = append(out, q.Events[hi].Clone())
		}
	case types.BoundaryExactOrCalculated:
		if !startStored {
			out = append([]types.Event{q.calculateAt(lo, start)}, out...)
		}
		if !endStored && !start.Equal(end) {
			out = append(out, q.calculateAt(hi, end))
		}
	}
	return out
}

// Filtered applies WindowBoundary and keeps the events matching pred.
func (q *Sequence) Filtered(start, end types.Key, boundary types.BoundaryType, pred Predicate) []types.Event {
	events := q.WindowBoundary(start, end, boundary)
	out := events[:0]
	for _, ev := range events {
		if pred == nil || pred.Matches(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// calculateAt synthesizes an event at a position with no stored event; i
// is the insertion index of at.
func (q *Sequence) calculateAt(i int, at types.Key) types.Event {
	var lower, upper types.Event
	if i > 0 {
		lower = q.Events[i-1]
	}
	if i < len(q.Events) {
		upper = q.Events[i]
	}
	return Calculate(q.Type, q.Modes, q.Axis, at, lower, upper)
}

// Calculate builds an event at position at from its neighbors. Axis
// properties take the requested position. Every other property follows
// its effective mode: Discrete yields the type default; Continuous
// interpolates linearly when both neighbors exist and the value is
// numeric, and otherwise takes the nearest neighbor's value, preferring the
// lower one. Key properties off the axis are always Continuous.
func Calculate(typ *types.Type, modes Modes, axis []types.Property, at types.Key, lower, upper types.Event) types.Event {
	onAxis := make(map[string]int, len(axis))
	for i, p := range axis {
		onAxis[p.ID] = i
	}
	ratio, hasRatio := position(axis, at, lower, upper)

	out := make(types.Event, len(typ.Properties))
	for _, p := range typ.Properties {
		if i, ok := onAxis[p.ID]; ok {
			out[p.ID] = at[i]
			continue
		}
		mode := modes.For(p)
		if p.IsKey {
			mode = types.InterpolationContinuous
		}
		if mode == types.InterpolationDiscrete {
			out[p.ID] = p.DataType.Zero()
			continue
		}

		switch {
		case lower != nil && upper != nil:
			lv, uv := lower[p.ID], upper[p.ID]
			lf, okL := types.ToFloat(lv)
			uf, okU := types.ToFloat(uv)
			if hasRatio && p.DataType.Interpolable() && okL && okU {
				out[p.ID] = types.FromFloat(p.DataType, lf+(uf-lf)*ratio)
			} else {
				out[p.ID] = lv
			}
		case lower != nil:
			out[p.ID] = lower[p.ID]
		case upper != nil:
			out[p.ID] = upper[p.ID]
		default:
			out[p.ID] = p.DataType.Zero()
		}
	}
	return out
}

// position returns where at lies between lower and upper, measured on the
// first axis component where the neighbors differ.
func position(axis []types.Property, at types.Key, lower, upper types.Event) (float64, bool) {
	if lower == nil || upper == nil {
		return 0, false
	}
	for i, p := range axis {
		lv, uv := lower[p.ID], upper[p.ID]
		c, err := types.Compare(lv, uv)
		if err != nil || c == 0 {
			continue
		}
		lf, okL := types.ToFloat(lv)
		uf, okU := types.ToFloat(uv)
		af, okA := types.ToFloat(at[i])
		if !okL || !okU || !okA {
			return 0, false
		}
		return (af - lf) / (uf - lf), true
	}
	return 0, false
}
