package service

import (
	"github.com/arkilian/sds/internal/catalog"
	sdserrors "github.com/arkilian/sds/internal/errors"
	"github.com/arkilian/sds/internal/eventstore"
	"github.com/arkilian/sds/internal/filter"
	"github.com/arkilian/sds/internal/notify"
	"github.com/arkilian/sds/internal/view"
	"github.com/arkilian/sds/pkg/types"
)

// ReadOptions selects how a read resolves and shapes its results.
type ReadOptions struct {
	// ViewID projects results through a stream view after the stream's own
	// view chain. The view must read the stream's current type.
	ViewID string

	// Index reads through the secondary index on this property instead of
	// the primary key. Index values are single components.
	Index string
}

func (s *Service) entry(streamID string) (*catalog.Entry, error) {
	return s.catalog.Lookup(streamID)
}

// projection returns the projections a read applies: the stream's chain
// followed by the requested view, if any.
func (s *Service) projection(e *catalog.Entry, opts ReadOptions) (view.Chain, error) {
	chain := e.Chain()
	if opts.ViewID == "" {
		return chain, nil
	}
	v, source, target, err := s.catalog.ResolveView(opts.ViewID)
	if err != nil {
		return nil, err
	}
	if readType := e.ReadType(); source.ID != readType.ID {
		return nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidView,
			"stream view %q reads type %q, stream %q is read as %q", v.ID, source.ID, e.ID(), readType.ID)
	}
	m, err := view.ResolveMap(v, source, target)
	if err != nil {
		return nil, err
	}
	out := make(view.Chain, 0, len(chain)+1)
	out = append(out, chain...)
	return append(out, view.NewProjector(m, target)), nil
}

func (s *Service) one(e *catalog.Entry, opts ReadOptions, ev types.Event, err error) (types.Event, error) {
	if err != nil {
		return nil, err
	}
	s.recordIndexRead(e, opts)
	chain, err := s.projection(e, opts)
	if err != nil {
		return nil, err
	}
	return chain.Project(ev), nil
}

func (s *Service) many(e *catalog.Entry, opts ReadOptions, events []types.Event, err error) ([]types.Event, error) {
	if err != nil {
		return nil, err
	}
	s.recordIndexRead(e, opts)
	chain, err := s.projection(e, opts)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []types.Event{}
	}
	return chain.ProjectAll(events), nil
}

func (s *Service) recordIndexRead(e *catalog.Entry, opts ReadOptions) {
	if s.stats != nil && opts.Index != "" {
		s.stats.RecordIndexRead(e.ID(), opts.Index)
	}
}

func (s *Service) recordFilter(e *catalog.Entry, f *filter.Filter) {
	if s.stats == nil {
		return
	}
	for _, c := range f.Comparisons() {
		s.stats.RecordPredicate(e.ID(), c.Property, c.Operator)
	}
}

func indexValue(opts ReadOptions, k types.Key) (any, error) {
	if len(k) != 1 {
		return nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidQuery,
			"secondary index %q takes a single value, got %d", opts.Index, len(k))
	}
	return k[0], nil
}

func unsupportedOnIndex(op string, opts ReadOptions) error {
	return sdserrors.InvalidDefinition(sdserrors.CodeInvalidQuery,
		"%s is not supported on secondary index %q", op, opts.Index)
}

// ParseIndex reads a textual index into a key of the stream's storage type,
// or into a value of the secondary index property when opts.Index is set.
// Compound keys separate components with types.KeySeparator.
func (s *Service) ParseIndex(streamID, text string, opts ReadOptions) (types.Key, error) {
	e, err := s.entry(streamID)
	if err != nil {
		return nil, err
	}
	typ := e.Store().Type()
	if opts.Index != "" {
		p, ok := typ.Property(opts.Index)
		if !ok {
			return nil, sdserrors.NotFound(sdserrors.CodeIndexNotFound,
				"stream %q has no property %q", streamID, opts.Index)
		}
		v, err := types.ParseValue(p.DataType, text)
		if err != nil {
			return nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidQuery, "index %q: %v", text, err)
		}
		return types.Key{v}, nil
	}
	k, err := typ.ParseKey(text)
	if err != nil {
		return nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidQuery, "index %q: %v", text, err)
	}
	return k, nil
}

// publish announces a successful mutation of e on the change bus.
func (s *Service) publish(op notify.Op, e *catalog.Entry, count int) {
	if s.changes == nil {
		return
	}
	s.changes.Publish(notify.Change{Op: op, StreamID: e.ID(), Version: e.Store().Version(), Count: count})
}

// Writes. Events are written in the stream's storage type.

func (s *Service) Insert(streamID string, ev types.Event) error {
	return s.InsertBatch(streamID, []types.Event{ev})
}

func (s *Service) InsertBatch(streamID string, events []types.Event) error {
	e, err := s.entry(streamID)
	if err != nil {
		return err
	}
	if err := e.Store().InsertBatch(events); err != nil {
		return err
	}
	s.publish(notify.OpWrite, e, len(events))
	return nil
}

func (s *Service) Update(streamID string, ev types.Event) error {
	return s.UpdateBatch(streamID, []types.Event{ev})
}

func (s *Service) UpdateBatch(streamID string, events []types.Event) error {
	e, err := s.entry(streamID)
	if err != nil {
		return err
	}
	if err := e.Store().UpdateBatch(events); err != nil {
		return err
	}
	s.publish(notify.OpWrite, e, len(events))
	return nil
}

func (s *Service) Replace(streamID string, ev types.Event) error {
	return s.ReplaceBatch(streamID, []types.Event{ev})
}

func (s *Service) ReplaceBatch(streamID string, events []types.Event) error {
	e, err := s.entry(streamID)
	if err != nil {
		return err
	}
	if err := e.Store().ReplaceBatch(events); err != nil {
		return err
	}
	s.publish(notify.OpWrite, e, len(events))
	return nil
}

func (s *Service) Remove(streamID string, k types.Key) error {
	return s.RemoveBatch(streamID, []types.Key{k})
}

func (s *Service) RemoveBatch(streamID string, keys []types.Key) error {
	e, err := s.entry(streamID)
	if err != nil {
		return err
	}
	if err := e.Store().RemoveBatch(keys); err != nil {
		return err
	}
	s.publish(notify.OpRemove, e, len(keys))
	return nil
}

func (s *Service) RemoveWindow(streamID string, start, end types.Key) error {
	e, err := s.entry(streamID)
	if err != nil {
		return err
	}
	if err := e.Store().RemoveWindow(start, end); err != nil {
		return err
	}
	s.publish(notify.OpRemove, e, 0)
	return nil
}

// Reads

// GetFirst returns the first event by primary key, or by the secondary
// index when opts.Index is set.
func (s *Service) GetFirst(streamID string, opts ReadOptions) (types.Event, error) {
	e, err := s.entry(streamID)
	if err != nil {
		return nil, err
	}
	if opts.Index != "" {
		ev, err := e.Indexes().GetFirst(opts.Index)
		return s.one(e, opts, ev, err)
	}
	ev, err := e.Store().GetFirst()
	return s.one(e, opts, ev, err)
}

// GetLast returns the last event by primary key or secondary index.
func (s *Service) GetLast(streamID string, opts ReadOptions) (types.Event, error) {
	e, err := s.entry(streamID)
	if err != nil {
		return nil, err
	}
	if opts.Index != "" {
		ev, err := e.Indexes().GetLast(opts.Index)
		return s.one(e, opts, ev, err)
	}
	ev, err := e.Store().GetLast()
	return s.one(e, opts, ev, err)
}

// GetAt returns the event at an index, applying boundary when none is
// stored there.
func (s *Service) GetAt(streamID string, at types.Key, boundary types.BoundaryType, opts ReadOptions) (types.Event, error) {
	e, err := s.entry(streamID)
	if err != nil {
		return nil, err
	}
	if opts.Index != "" {
		v, err := indexValue(opts, at)
		if err != nil {
			return nil, err
		}
		ev, err := e.Indexes().GetAt(opts.Index, v, boundary)
		return s.one(e, opts, ev, err)
	}
	ev, err := e.Store().GetAt(at, boundary)
	return s.one(e, opts, ev, err)
}

// GetWindow returns the stored events in [start, end].
func (s *Service) GetWindow(streamID string, start, end types.Key, opts ReadOptions) ([]types.Event, error) {
	return s.GetWindowFiltered(streamID, start, end, types.BoundaryExact, "", opts)
}

// GetWindowFiltered returns the events in [start, end] with endpoints
// resolved by boundary, keeping those that satisfy filterExpr. The filter
// reads the stream's storage type properties and runs before projection.
// An empty filter keeps every event.
func (s *Service) GetWindowFiltered(streamID string, start, end types.Key, boundary types.BoundaryType, filterExpr string, opts ReadOptions) ([]types.Event, error) {
	e, err := s.entry(streamID)
	if err != nil {
		return nil, err
	}
	var pred eventstore.Predicate
	if filterExpr != "" {
		f, err := filter.Compile(filterExpr, filter.SchemaOf(e.Store().Type()))
		if err != nil {
			return nil, err
		}
		s.recordFilter(e, f)
		pred = f
	}
	if opts.Index != "" {
		lo, err := indexValue(opts, start)
		if err != nil {
			return nil, err
		}
		hi, err := indexValue(opts, end)
		if err != nil {
			return nil, err
		}
		events, err := e.Indexes().GetWindowFiltered(opts.Index, lo, hi, boundary, pred)
		return s.many(e, opts, events, err)
	}
	events, err := e.Store().GetWindowFiltered(start, end, boundary, pred)
	return s.many(e, opts, events, err)
}

// GetRange returns |count| consecutive index positions from start. A
// negative count walks backward.
func (s *Service) GetRange(streamID string, start types.Key, count int, boundary types.BoundaryType, opts ReadOptions) ([]types.Event, error) {
	if opts.Index != "" {
		return nil, unsupportedOnIndex("range read", opts)
	}
	e, err := s.entry(streamID)
	if err != nil {
		return nil, err
	}
	events, err := e.Store().GetRange(start, count, boundary)
	return s.many(e, opts, events, err)
}

// GetSampled returns count evenly spaced calculated events from start to
// end inclusive.
func (s *Service) GetSampled(streamID string, start, end types.Key, count int, opts ReadOptions) ([]types.Event, error) {
	if opts.Index != "" {
		return nil, unsupportedOnIndex("sampled read", opts)
	}
	e, err := s.entry(streamID)
	if err != nil {
		return nil, err
	}
	events, err := e.Store().GetSampled(start, end, count)
	return s.many(e, opts, events, err)
}
