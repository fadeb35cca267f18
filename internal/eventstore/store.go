// Package eventstore holds the ordered events of a single stream and
// implements its reads, writes and interpolation.
//
// A Store serializes writes and lets reads proceed concurrently. Every
// write builds a new event slice and swaps it in under the write lock, so a
// reader never observes a partially applied batch and a Snapshot stays
// valid after the lock is released.
package eventstore

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	sdserrors "github.com/arkilian/sds/internal/errors"
	"github.com/arkilian/sds/pkg/types"
)

// Store is the event collection of one stream.
type Store struct {
	mu        sync.RWMutex
	stream    string
	typ       *types.Type
	keyProps  []types.Property
	overrides Modes
	events    []types.Event
	version   uint64
	maxCount  int
}

// DefaultMaxCount bounds the events a single GetRange or GetSampled call
// may produce.
const DefaultMaxCount = 100000

// Option configures a Store.
type Option func(*Store)

// WithMaxCount sets the largest count GetRange and GetSampled accept.
// Values below one keep the default.
func WithMaxCount(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxCount = n
		}
	}
}

// New creates an empty store for events of typ.
func New(stream string, typ *types.Type, opts ...Option) *Store {
	s := &Store{
		stream:    stream,
		typ:       typ,
		keyProps:  typ.KeyProperties(),
		overrides: Modes{},
		maxCount:  DefaultMaxCount,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stream returns the owning stream id.
func (s *Store) Stream() string {
	return s.stream
}

// Type returns the storage type.
func (s *Store) Type() *types.Type {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.typ
}

// SetType replaces the storage type. A store holding events only accepts a
// type with the same key layout.
func (s *Store) SetType(typ *types.Type) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) > 0 && !s.typ.SameKey(typ) {
		return sdserrors.InvalidDefinition(sdserrors.CodeKeyImmutable,
			"stream %q holds events; key properties of type %q cannot change", s.stream, typ.ID)
	}
	s.typ = typ
	s.keyProps = typ.KeyProperties()
	s.version++
	return nil
}

// SetOverrides replaces the stream's interpolation overrides. Subsequent
// reads use them immediately.
func (s *Store) SetOverrides(overrides map[string]types.InterpolationMode) {
	m := make(Modes, len(overrides))
	for k, v := range overrides {
		m[k] = v
	}
	s.mu.Lock()
	s.overrides = m
	s.version++
	s.mu.Unlock()
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Version increments on every change to events, type or overrides.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns the current contents ordered by primary key.
func (s *Store) Snapshot() (*Sequence, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sequence(), s.version
}

func (s *Store) sequence() *Sequence {
	return &Sequence{
		Stream: s.stream,
		Type:   s.typ,
		Modes:  s.overrides,
		Axis:   s.keyProps,
		Events: s.events,
	}
}

// Key coerces raw components into a key of the storage type.
func (s *Store) Key(components ...any) (types.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key(components...)
}

// key coerces components against the current type. Callers hold s.mu.
func (s *Store) key(components ...any) (types.Key, error) {
	k, err := s.typ.NewKey(components...)
	if err != nil {
		return nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidQuery, "stream %q: %v", s.stream, err)
	}
	return k, nil
}

func (s *Store) normalizeKey(k types.Key) (types.Key, error) {
	return s.Key([]any(k)...)
}

type entry struct {
	key types.Key
	ev  types.Event
}

// stage normalizes events and sorts them by key, keeping input order
// among equal keys.
func (s *Store) stage(events []types.Event) ([]entry, error) {
	staged := make([]entry, len(events))
	for i, ev := range events {
		norm, err := s.typ.Normalize(ev)
		if err != nil {
			return nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidEvent,
				"stream %q: event %d: %v", s.stream, i, err)
		}
		staged[i] = entry{key: s.typ.KeyOf(norm), ev: norm}
	}
	sort.SliceStable(staged, func(i, j int) bool {
		return staged[i].key.Compare(staged[j].key) < 0
	})
	return staged, nil
}

func (s *Store) find(k types.Key) (int, bool) {
	seq := s.sequence()
	i := seq.lowerBound(k)
	return i, seq.storedAt(i, k)
}

// merge combines the stored events with staged entries; staged entries
// replace stored events with equal keys.
func (s *Store) merge(staged []entry) []types.Event {
	out := make([]types.Event, 0, len(s.events)+len(staged))
	i := 0
	for _, e := range staged {
		for i < len(s.events) && s.typ.KeyOf(s.events[i]).Compare(e.key) < 0 {
			out = append(out, s.events[i])
			i++
		}
		if i < len(s.events) && s.typ.KeyOf(s.events[i]).Equal(e.key) {
			i++
		}
		out = append(out, e.ev)
	}
	return append(out, s.events[i:]...)
}

// Insert adds one event; Conflict if its key is already stored.
func (s *Store) Insert(ev types.Event) error {
	return s.InsertBatch([]types.Event{ev})
}

// InsertBatch adds events atomically. A duplicate key, either against the
// stored events or within the batch, fails the whole batch.
func (s *Store) InsertBatch(events []types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged, err := s.stage(events)
	if err != nil {
		return err
	}
	for i, e := range staged {
		if i > 0 && staged[i-1].key.Equal(e.key) {
			return duplicate(s.stream, e.key, "batch repeats index")
		}
		if _, ok := s.find(e.key); ok {
			return duplicate(s.stream, e.key, "event already exists at index")
		}
	}
	s.commit(s.merge(staged))
	return nil
}

func duplicate(stream string, k types.Key, msg string) error {
	return sdserrors.Conflict(sdserrors.CodeDuplicateKey, "stream %q: %s %s", stream, msg, k.String()).
		WithDetails(map[string]interface{}{"index": k.String()})
}

// Update upserts one event.
func (s *Store) Update(ev types.Event) error {
	return s.UpdateBatch([]types.Event{ev})
}

// UpdateBatch upserts events atomically. When the batch repeats a key the
// last occurrence wins.
func (s *Store) UpdateBatch(events []types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged, err := s.stage(events)
	if err != nil {
		return err
	}
	s.commit(s.merge(lastWins(staged)))
	return nil
}

// Replace overwrites one stored event; NotFound if its key is absent.
func (s *Store) Replace(ev types.Event) error {
	return s.ReplaceBatch([]types.Event{ev})
}

// ReplaceBatch overwrites stored events atomically. Any absent key fails
// the whole batch.
func (s *Store) ReplaceBatch(events []types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged, err := s.stage(events)
	if err != nil {
		return err
	}
	staged = lastWins(staged)
	for _, e := range staged {
		if _, ok := s.find(e.key); !ok {
			return sdserrors.NotFound(sdserrors.CodeEventNotFound,
				"stream %q has no event at index %s to replace", s.stream, e.key.String()).
				WithDetails(map[string]interface{}{"index": e.key.String()})
		}
	}
	s.commit(s.merge(staged))
	return nil
}

func lastWins(staged []entry) []entry {
	out := staged[:0]
	for i, e := range staged {
		if i+1 < len(staged) && staged[i+1].key.Equal(e.key) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Remove deletes the event at k. A missing key is not an error.
func (s *Store) Remove(k types.Key) error {
	return s.RemoveBatch([]types.Key{k})
}

// RemoveBatch deletes the events at keys atomically, skipping missing ones.
func (s *Store) RemoveBatch(keys []types.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	norm := make([]types.Key, len(keys))
	for i, k := range keys {
		nk, err := s.key([]any(k)...)
		if err != nil {
			return err
		}
		norm[i] = nk
	}

	drop := make(map[int]bool, len(norm))
	for _, k := range norm {
		if i, ok := s.find(k); ok {
			drop[i] = true
		}
	}
	if len(drop) == 0 {
		return nil
	}
	out := make([]types.Event, 0, len(s.events)-len(drop))
	for i, ev := range s.events {
		if !drop[i] {
			out = append(out, ev)
		}
	}
	s.commit(out)
	return nil
}

// RemoveWindow deletes every event with key in [start, end].
func (s *Store) RemoveWindow(start, end types.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start, err := s.key([]any(start)...)
	if err != nil {
		return err
	}
	end, err = s.key([]any(end)...)
	if err != nil {
		return err
	}

	if start.Compare(end) > 0 {
		return nil
	}
	seq := s.sequence()
	lo, hi := seq.lowerBound(start), seq.upperBound(end)
	if lo == hi {
		return nil
	}
	out := make([]types.Event, 0, len(s.events)-(hi-lo))
	out = append(out, s.events[:lo]...)
	out = append(out, s.events[hi:]...)
	s.commit(out)
	return nil
}

// Load replaces the whole contents, as when restoring a snapshot.
func (s *Store) Load(events []types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged, err := s.stage(events)
	if err != nil {
		return err
	}
	out := make([]types.Event, 0, len(staged))
	for i, e := range staged {
		if i > 0 && staged[i-1].key.Equal(e.key) {
			return duplicate(s.stream, e.key, "snapshot repeats index")
		}
		out = append(out, e.ev)
	}
	s.commit(out)
	return nil
}

func (s *Store) commit(events []types.Event) {
	s.events = events
	s.version++
}

// GetAt returns the event at k, applying boundary when none is stored.
func (s *Store) GetAt(k types.Key, boundary types.BoundaryType) (types.Event, error) {
	k, err := s.normalizeKey(k)
	if err != nil {
		return nil, err
	}
	seq, _ := s.Snapshot()
	return seq.At(k, boundary)
}

// GetFirst returns the event with the lowest key.
func (s *Store) GetFirst() (types.Event, error) {
	seq, _ := s.Snapshot()
	return seq.First()
}

// GetLast returns the event with the highest key.
func (s *Store) GetLast() (types.Event, error) {
	seq, _ := s.Snapshot()
	return seq.Last()
}

// GetWindow returns the stored events with key in [start, end].
func (s *Store) GetWindow(start, end types.Key) ([]types.Event, error) {
	return s.GetWindowBoundary(start, end, types.BoundaryExact)
}

// GetWindowBoundary returns the events with key in [start, end] with
// endpoint handling governed by boundary.
func (s *Store) GetWindowBoundary(start, end types.Key, boundary types.BoundaryType) ([]types.Event, error) {
	start, end, err := s.window(start, end)
	if err != nil {
		return nil, err
	}
	seq, _ := s.Snapshot()
	return seq.WindowBoundary(start, end, boundary), nil
}

// GetWindowFiltered is GetWindowBoundary keeping only events that match
// pred. Calculated endpoints are filtered too.
func (s *Store) GetWindowFiltered(start, end types.Key, boundary types.BoundaryType, pred Predicate) ([]types.Event, error) {
	start, end, err := s.window(start, end)
	if err != nil {
		return nil, err
	}
	seq, _ := s.Snapshot()
	return seq.Filtered(start, end, boundary, pred), nil
}

func (s *Store) window(start, end types.Key) (types.Key, types.Key, error) {
	start, err := s.normalizeKey(start)
	if err != nil {
		return nil, nil, err
	}
	end, err = s.normalizeKey(end)
	if err != nil {
		return nil, nil, err
	}
	return start, end, nil
}

// GetRange returns |count| consecutive index positions starting at start,
// one natural increment of the least significant key component apart.
// A negative count walks backward. Each position is resolved on its own:
// ExactOrCalculated synthesizes missing positions, Outside substitutes the
// nearest stored event, and Exact or Inside fail with NotFound on the
// first missing position.
func (s *Store) GetRange(start types.Key, count int, boundary types.BoundaryType) ([]types.Event, error) {
	start, err := s.normalizeKey(start)
	if err != nil {
		return nil, err
	}
	if err := s.checkCount(count); err != nil {
		return nil, err
	}
	seq, _ := s.Snapshot()
	if seq.Len() == 0 {
		return nil, sdserrors.EmptyStream(s.stream)
	}

	n, dir := count, 1
	if count < 0 {
		n, dir = -count, -1
	}
	last := len(seq.Axis) - 1
	out := make([]types.Event, 0, n)
	for i := 0; i < n; i++ {
		pos := append(types.Key(nil), start...)
		v, err := advance(seq.Axis[last], start[last], dir*i)
		if err != nil {
			return nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidQuery, "stream %q: %v", s.stream, err)
		}
		pos[last] = v
		ev, err := seq.At(pos, boundary)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// checkCount rejects counts whose magnitude exceeds the configured maximum.
func (s *Store) checkCount(count int) error {
	if count == math.MinInt || count > s.maxCount || -count > s.maxCount {
		return sdserrors.InvalidDefinition(sdserrors.CodeInvalidQuery,
			"stream %q: count %d exceeds the limit of %d", s.stream, count, s.maxCount)
	}
	return nil
}

// advance moves v by steps natural increments of p's data type.
func advance(p types.Property, v any, steps int) (any, error) {
	switch {
	case p.DataType.IsIntegral():
		return types.Coerce(p.DataType, v.(int64)+int64(steps))
	case p.DataType.IsFloating():
		return types.Coerce(p.DataType, v.(float64)+float64(steps))
	case p.DataType == types.DataTypeDateTime:
		return v.(time.Time).Add(time.Duration(steps) * time.Second), nil
	}
	return nil, fmt.Errorf("key property %q of type %s has no natural increment", p.ID, p.DataType)
}

// GetSampled returns count calculated events evenly spaced from start to
// end inclusive. The stream must have a single numeric or DateTime key.
func (s *Store) GetSampled(start, end types.Key, count int) ([]types.Event, error) {
	start, end, err := s.window(start, end)
	if err != nil {
		return nil, err
	}
	seq, _ := s.Snapshot()
	if len(seq.Axis) != 1 || !seq.Axis[0].DataType.Interpolable() {
		return nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidQuery,
			"stream %q: sampling needs a single numeric or DateTime key", s.stream)
	}
	if count < 1 {
		return nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidQuery,
			"stream %q: sample count must be positive, got %d", s.stream, count)
	}
	if err := s.checkCount(count); err != nil {
		return nil, err
	}
	if seq.Len() == 0 {
		return nil, sdserrors.EmptyStream(s.stream)
	}

	keyProp := seq.Axis[0]
	sf, _ := types.ToFloat(start[0])
	ef, _ := types.ToFloat(end[0])
	out := make([]types.Event, 0, count)
	for i := 0; i < count; i++ {
		f := sf
		if count > 1 {
			f = sf + (ef-sf)*float64(i)/float64(count-1)
		}
		ev, err := seq.At(types.Key{types.FromFloat(keyProp.DataType, f)}, types.BoundaryExactOrCalculated)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}
