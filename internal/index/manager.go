// Package index maintains secondary orderings of a stream's events over
// non-key properties.
//
// A secondary view is derived from the primary store and is never mutated
// directly. Each view remembers the store version it was built from and is
// rebuilt on the first read after that version moves.
package index

import (
	"sort"
	"sync"

	sdserrors "github.com/arkilian/sds/internal/errors"
	"github.com/arkilian/sds/internal/eventstore"
	"github.com/arkilian/sds/pkg/types"
)

// Source is the primary store a manager derives its views from.
type Source interface {
	Stream() string
	Snapshot() (*eventstore.Sequence, uint64)
}

type secondary struct {
	property types.Property
	version  uint64
	built    bool
	seq      *eventstore.Sequence
}

// Manager holds the secondary indexes of one stream.
type Manager struct {
	mu      sync.Mutex
	source  Source
	indexes map[string]*secondary
	builds  int
}

// NewManager creates a manager with no indexes.
func NewManager(source Source) *Manager {
	return &Manager{
		source:  source,
		indexes: make(map[string]*secondary),
	}
}

// AddIndex creates a secondary view over propertyID and builds it.
func (m *Manager) AddIndex(propertyID string) error {
	seq, version := m.source.Snapshot()
	p, err := validateProperty(seq.Type, propertyID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	idx := &secondary{property: p}
	m.build(idx, seq, version)
	m.indexes[propertyID] = idx
	return nil
}

// RemoveIndex discards the view over propertyID. Unknown ids are ignored.
func (m *Manager) RemoveIndex(propertyID string) {
	m.mu.Lock()
	delete(m.indexes, propertyID)
	m.mu.Unlock()
}

// SetIndexes reconciles the manager with a stream's index definitions:
// views not listed are dropped and new ones are built. Every definition is
// validated before anything changes.
func (m *Manager) SetIndexes(defs []types.IndexDefinition) error {
	seq, _ := m.source.Snapshot()
	if err := ValidateDefinitions(seq.Type, defs); err != nil {
		return err
	}
	wanted := make(map[string]bool, len(defs))
	for _, d := range defs {
		wanted[d.PropertyID] = true
	}

	m.mu.Lock()
	for id := range m.indexes {
		if !wanted[id] {
			delete(m.indexes, id)
		}
	}
	var missing []string
	for id := range wanted {
		if _, ok := m.indexes[id]; !ok {
			missing = append(missing, id)
		}
	}
	m.mu.Unlock()

	sort.Strings(missing)
	for _, id := range missing {
		if err := m.AddIndex(id); err != nil {
			return err
		}
	}
	return nil
}

// ValidateDefinitions checks index definitions against a type without
// changing any view.
func ValidateDefinitions(typ *types.Type, defs []types.IndexDefinition) error {
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if seen[d.PropertyID] {
			return sdserrors.InvalidDefinition(sdserrors.CodeInvalidIndex,
				"property %q is indexed twice", d.PropertyID)
		}
		seen[d.PropertyID] = true
		if _, err := validateProperty(typ, d.PropertyID); err != nil {
			return err
		}
	}
	return nil
}

// Indexes returns the indexed property ids in sorted order.
func (m *Manager) Indexes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.indexes))
	for id := range m.indexes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Builds reports how many times a view has been built.
func (m *Manager) Builds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.builds
}

func validateProperty(typ *types.Type, propertyID string) (types.Property, error) {
	p, ok := typ.Property(propertyID)
	if !ok {
		return types.Property{}, sdserrors.InvalidDefinition(sdserrors.CodeInvalidIndex,
			"type %q has no property %q to index", typ.ID, propertyID)
	}
	if p.IsKey {
		return types.Property{}, sdserrors.InvalidDefinition(sdserrors.CodeInvalidIndex,
			"property %q is a key property; secondary indexes need a non-key property", propertyID)
	}
	if !p.DataType.Orderable() {
		return types.Property{}, sdserrors.InvalidDefinition(sdserrors.CodeInvalidIndex,
			"property %q of type %s cannot be indexed", propertyID, p.DataType)
	}
	return p, nil
}

// build sorts the primary events by the indexed property. The sort is
// stable over primary key order, which breaks ties.
func (m *Manager) build(idx *secondary, primary *eventstore.Sequence, version uint64) {
	events := append([]types.Event(nil), primary.Events...)
	id := idx.property.ID
	sort.SliceStable(events, func(i, j int) bool {
		// stored values of one property share a canonical type and floats
		// are finite, so Compare is a total order here
		c, err := types.Compare(events[i][id], events[j][id])
		return err == nil && c < 0
	})
	idx.seq = &eventstore.Sequence{
		Stream: primary.Stream,
		Type:   primary.Type,
		Modes:  primary.Modes,
		Axis:   []types.Property{idx.property},
		Events: events,
	}
	idx.version = version
	idx.built = true
	m.builds++
}

// view returns the current view over propertyID, rebuilding it when the
// primary store moved since the last build.
func (m *Manager) view(propertyID string) (*eventstore.Sequence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.indexes[propertyID]
	if !ok {
		return nil, sdserrors.NotFound(sdserrors.CodeIndexNotFound,
			"stream %q has no secondary index on %q", m.source.Stream(), propertyID)
	}
	primary, version := m.source.Snapshot()
	if !idx.built || idx.version != version {
		m.build(idx, primary, version)
	}
	return idx.seq, nil
}

func (m *Manager) value(propertyID string, raw any) (types.Key, *eventstore.Sequence, error) {
	seq, err := m.view(propertyID)
	if err != nil {
		return nil, nil, err
	}
	v, err := types.Coerce(seq.Axis[0].DataType, raw)
	if err != nil {
		return nil, nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidQuery,
			"index %q: %v", propertyID, err)
	}
	return types.Key{v}, seq, nil
}

// GetAt returns the first event, in primary key order, whose indexed
// property equals value, applying boundary when none does.
func (m *Manager) GetAt(propertyID string, value any, boundary types.BoundaryType) (types.Event, error) {
	at, seq, err := m.value(propertyID, value)
	if err != nil {
		return nil, err
	}
	return seq.At(at, boundary)
}

// GetWindow returns the events whose indexed property lies in [start, end].
func (m *Manager) GetWindow(propertyID string, start, end any) ([]types.Event, error) {
	return m.GetWindowBoundary(propertyID, start, end, types.BoundaryExact)
}

// GetWindowBoundary is GetWindow with endpoint handling governed by boundary.
func (m *Manager) GetWindowBoundary(propertyID string, start, end any, boundary types.BoundaryType) ([]types.Event, error) {
	return m.GetWindowFiltered(propertyID, start, end, boundary, nil)
}

// GetWindowFiltered is GetWindowBoundary keeping events that match pred.
func (m *Manager) GetWindowFiltered(propertyID string, start, end any, boundary types.BoundaryType, pred eventstore.Predicate) ([]types.Event, error) {
	lo, seq, err := m.value(propertyID, start)
	if err != nil {
		return nil, err
	}
	hi, _, err := m.value(propertyID, end)
	if err != nil {
		return nil, err
	}
	return seq.Filtered(lo, hi, boundary, pred), nil
}

// GetFirst returns the event with the lowest indexed value.
func (m *Manager) GetFirst(propertyID string) (types.Event, error) {
	seq, err := m.view(propertyID)
	if err != nil {
		return nil, err
	}
	return seq.First()
}

// GetLast returns the event with the highest indexed value.
func (m *Manager) GetLast(propertyID string) (types.Event, error) {
	seq, err := m.view(propertyID)
	if err != nil {
		return nil, err
	}
	return seq.Last()
}
