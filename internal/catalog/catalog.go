// Package catalog owns the definitions of the store: types, stream views
// and streams. Each stream entry carries its event store and secondary
// index manager. Definition changes are serialized; data reads and writes
// only touch the per-stream entry.
package catalog

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	sdserrors "github.com/arkilian/sds/internal/errors"
	"github.com/arkilian/sds/internal/eventstore"
	"github.com/arkilian/sds/internal/filter"
	"github.com/arkilian/sds/internal/index"
	"github.com/arkilian/sds/internal/view"
	"github.com/arkilian/sds/pkg/types"
)

// Repository persists catalog definitions. Every method is called after the
// change is validated and before it becomes visible.
type Repository interface {
	SaveType(ctx context.Context, t *types.Type) error
	DeleteType(ctx context.Context, id string) error
	SaveView(ctx context.Context, v *types.StreamView) error
	DeleteView(ctx context.Context, id string) error
	SaveStream(ctx context.Context, s *types.Stream) error
	DeleteStream(ctx context.Context, id string) error
	Load(ctx context.Context) (*State, error)
}

// State is the full set of persisted definitions.
type State struct {
	Types   []*types.Type
	Views   []*types.StreamView
	Streams []*types.Stream
}

type nopRepository struct{}

func (nopRepository) SaveType(context.Context, *types.Type) error { return nil }
func (nopRepository) DeleteType(context.Context, string) error { return nil }
func (nopRepository) SaveView(context.Context, *types.StreamView) error { return nil }
func (nopRepository) DeleteView(context.Context, string) error { return nil }
func (nopRepository) SaveStream(context.Context, *types.Stream) error { return nil }
func (nopRepository) DeleteStream(context.Context, string) error { return nil }
func (nopRepository) Load(context.Context) (*State, error) { return &State{}, nil }

// Catalog is the registry of types, views and streams.
type Catalog struct {
	// mu serializes definition changes.
	mu sync.Mutex

	defsMu sync.RWMutex
	types  map[string]*types.Type
	views  map[string]*types.StreamView

	streams *shardMap
	repo     Repository
	logger   *slog.Logger
	maxCount int
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithRepository persists definitions through r.
func WithRepository(r Repository) Option {
	return func(c *Catalog) {
		if r != nil {
			c.repo = r
		}
	}
}

// WithLogger sets the catalog logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxReadCount bounds the count of GetRange and GetSampled reads on
// every stream.
func WithMaxReadCount(n int) Option {
	return func(c *Catalog) {
		c.maxCount = n
	}
}

// New creates an empty catalog.
func New(opts ...Option) *Catalog {
	c := &Catalog{
		types:   make(map[string]*types.Type),
		views:   make(map[string]*types.StreamView),
		streams: newShardMap(),
		repo:    nopRepository{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Entry is one stream together with its event store and secondary indexes.
type Entry struct {
	mu       sync.RWMutex
	def      *types.Stream
	readType *types.Type
	chain    view.Chain

	store   *eventstore.Store
	indexes *index.Manager
}

// Definition returns a copy of the stream definition.
func (e *Entry) Definition() *types.Stream {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.def.Clone()
}

// ID returns the stream id.
func (e *Entry) ID() string {
	return e.store.Stream()
}

// ReadType is the type events are returned as once the view chain applies.
func (e *Entry) ReadType() *types.Type {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.readType
}

// Chain returns the projections applied by stream rebinding, in order.
func (e *Entry) Chain() view.Chain {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.chain
}

// Store returns the stream's event store.
func (e *Entry) Store() *eventstore.Store {
	return e.store
}

// Indexes returns the stream's secondary index manager.
func (e *Entry) Indexes() *index.Manager {
	return e.indexes
}

func (e *Entry) set(def *types.Stream, readType *types.Type, chain view.Chain) {
	e.mu.Lock()
	e.def = def
	e.readType = readType
	e.chain = chain
	e.mu.Unlock()
}

func (c *Catalog) lookupType(id string) (*types.Type, bool) {
	c.defsMu.RLock()
	defer c.defsMu.RUnlock()
	t, ok := c.types[id]
	return t, ok
}

func (c *Catalog) lookupView(id string) (*types.StreamView, bool) {
	c.defsMu.RLock()
	defer c.defsMu.RUnlock()
	v, ok := c.views[id]
	return v, ok
}

func typeNotFound(id string) error {
	return sdserrors.NotFound(sdserrors.CodeTypeNotFound, "type %q not found", id)
}

func viewNotFound(id string) error {
	return sdserrors.NotFound(sdserrors.CodeViewNotFound, "stream view %q not found", id)
}

func streamNotFound(id string) error {
	return sdserrors.NotFound(sdserrors.CodeStreamNotFound, "stream %q not found", id)
}

func persistFailed(what string, err error) error {
	return sdserrors.NewStorageError(sdserrors.CodeCatalogFailed, "failed to persist "+what, err)
}

// resolveChain computes the read type and projections of a stream whose
// events are stored as storage and rebound through viewIDs. lookupT and
// lookupV let callers resolve against definitions not yet committed.
func resolveChain(storage *types.Type, viewIDs []string,
	lookupT func(string) (*types.Type, bool), lookupV func(string) (*types.StreamView, bool),
) (*types.Type, view.Chain, error) {
	current := storage
	var chain view.Chain
	for _, id := range viewIDs {
		v, ok := lookupV(id)
		if !ok {
			return nil, nil, viewNotFound(id)
		}
		if v.SourceTypeID != current.ID {
			return nil, nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidView,
				"stream view %q reads type %q, stream is read as %q", id, v.SourceTypeID, current.ID)
		}
		target, ok := lookupT(v.TargetTypeID)
		if !ok {
			return nil, nil, typeNotFound(v.TargetTypeID)
		}
		m, err := view.ResolveMap(v, current, target)
		if err != nil {
			return nil, nil, err
		}
		chain = append(chain, view.NewProjector(m, target))
		current = target
	}
	return current, chain, nil
}

// Restore loads every persisted definition. Streams whose types or views
// can no longer be resolved are skipped with a warning.
func (c *Catalog) Restore(ctx context.Context) error {
	state, err := c.repo.Load(ctx)
	if err != nil {
		return sdserrors.NewStorageError(sdserrors.CodeCatalogFailed, "failed to load catalog", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.defsMu.Lock()
	for _, t := range state.Types {
		if err := t.Validate(); err != nil {
			c.logger.Warn("skipping invalid persisted type", "type", t.ID, "error", err)
			continue
		}
		c.types[t.ID] = t.Clone()
	}
	for _, v := range state.Views {
		c.views[v.ID] = v.Clone()
	}
	c.defsMu.Unlock()

	for _, def := range state.Streams {
		e, err := c.buildEntry(def.Clone())
		if err != nil {
			c.logger.Warn("skipping persisted stream", "stream", def.ID, "error", err)
			continue
		}
		c.streams.put(def.ID, e)
	}
	c.logger.Info("catalog restored",
		"types", len(state.Types), "views", len(state.Views), "streams", c.streams.len())
	return nil
}

// compileList prepares an optional filter over definition records.
func compileList(expr string, fields ...string) (func(map[string]any) bool, error) {
	if strings.TrimSpace(expr) == "" {
		return func(map[string]any) bool { return true }, nil
	}
	schema := make(filter.Schema, len(fields))
	for _, f := range fields {
		schema[f] = types.DataTypeString
	}
	f, err := filter.Compile(expr, schema)
	if err != nil {
		return nil, err
	}
	return f.Matches, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
