package catalog

import (
	"context"
	"sort"

	sdserrors "github.com/arkilian/sds/internal/errors"
	"github.com/arkilian/sds/internal/eventstore"
	"github.com/arkilian/sds/internal/index"
	"github.com/arkilian/sds/pkg/types"
)

// validateStream checks the overrides and index definitions of def against
// the type its events are stored as.
func validateStream(def *types.Stream, storage *types.Type) error {
	if def.ID == "" {
		return sdserrors.InvalidDefinition(sdserrors.CodeInvalidStream, "stream id is required")
	}
	seen := make(map[string]bool, len(def.PropertyOverrides))
	for _, o := range def.PropertyOverrides {
		if _, ok := storage.Property(o.PropertyID); !ok {
			return sdserrors.InvalidDefinition(sdserrors.CodeInvalidStream,
				"stream %q overrides unknown property %q of type %q", def.ID, o.PropertyID, storage.ID)
		}
		if seen[o.PropertyID] {
			return sdserrors.InvalidDefinition(sdserrors.CodeInvalidStream,
				"stream %q overrides property %q twice", def.ID, o.PropertyID)
		}
		seen[o.PropertyID] = true
		if o.InterpolationMode == "" || !o.InterpolationMode.Valid() {
			return sdserrors.InvalidDefinition(sdserrors.CodeInvalidStream,
				"stream %q: invalid interpolation mode %q for %q", def.ID, o.InterpolationMode, o.PropertyID)
		}
	}
	return index.ValidateDefinitions(storage, def.Indexes)
}

// buildEntry creates the store and index manager of a stream definition.
// Callers hold c.mu.
func (c *Catalog) buildEntry(def *types.Stream) (*Entry, error) {
	if def.StorageTypeID == "" {
		def.StorageTypeID = def.TypeID
	}
	storage, ok := c.lookupType(def.StorageTypeID)
	if !ok {
		return nil, typeNotFound(def.StorageTypeID)
	}
	if err := validateStream(def, storage); err != nil {
		return nil, err
	}
	readType, chain, err := resolveChain(storage, def.Views, c.lookupType, c.lookupView)
	if err != nil {
		return nil, err
	}
	def.TypeID = readType.ID

	store := eventstore.New(def.ID, storage, eventstore.WithMaxCount(c.maxCount))
	store.SetOverrides(def.Overrides())
	mgr := index.NewManager(store)
	if err := mgr.SetIndexes(def.Indexes); err != nil {
		return nil, err
	}
	return &Entry{def: def, readType: readType, chain: chain, store: store, indexes: mgr}, nil
}

func (c *Catalog) createStream(ctx context.Context, def *types.Stream) (*types.Stream, error) {
	def = def.Clone()
	if def.TypeID == "" {
		return nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidStream, "stream %q needs a type id", def.ID)
	}
	def.StorageTypeID = def.TypeID
	def.Views = nil

	e, err := c.buildEntry(def)
	if err != nil {
		return nil, err
	}
	if err := c.repo.SaveStream(ctx, def); err != nil {
		return nil, persistFailed("stream "+def.ID, err)
	}
	c.streams.put(def.ID, e)
	c.logger.Info("stream created", "stream", def.ID, "type", def.TypeID, "indexes", len(def.Indexes))
	return def.Clone(), nil
}

// CreateOrGetStream creates the stream described by def, or returns the
// existing stream with the same id. An existing stream bound to a
// different type is a Conflict.
func (c *Catalog) CreateOrGetStream(ctx context.Context, def *types.Stream) (*types.Stream, error) {
	if def == nil || def.ID == "" {
		return nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidStream, "stream id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.streams.get(def.ID); ok {
		cur := e.Definition()
		if def.TypeID != "" && def.TypeID != cur.TypeID {
			return nil, sdserrors.Conflict(sdserrors.CodeDefinitionDiffer,
				"stream %q exists with type %q, not %q", def.ID, cur.TypeID, def.TypeID)
		}
		return cur, nil
	}
	return c.createStream(ctx, def)
}

// CreateOrUpdateStream creates the stream or updates its name, description,
// property overrides and indexes. Tags and metadata are replaced only when
// def carries them. The type of an existing stream cannot change here; use
// UpdateStreamType.
func (c *Catalog) CreateOrUpdateStream(ctx context.Context, def *types.Stream) (*types.Stream, error) {
	if def == nil || def.ID == "" {
		return nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidStream, "stream id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.streams.get(def.ID)
	if !ok {
		return c.createStream(ctx, def)
	}
	cur := e.Definition()
	if def.TypeID != "" && def.TypeID != cur.TypeID {
		return nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidStream,
			"stream %q is read as type %q; rebind it with a stream view to use %q", def.ID, cur.TypeID, def.TypeID)
	}

	next := cur.Clone()
	next.Name = def.Name
	next.Description = def.Description
	next.PropertyOverrides = append([]types.PropertyOverride(nil), def.PropertyOverrides...)
	next.Indexes = append([]types.IndexDefinition(nil), def.Indexes...)
	if def.Tags != nil {
		next.Tags = append([]string(nil), def.Tags...)
	}
	if def.Metadata != nil {
		next.Metadata = copyMetadata(def.Metadata)
	}
	if err := validateStream(next, e.store.Type()); err != nil {
		return nil, err
	}
	if err := c.repo.SaveStream(ctx, next); err != nil {
		return nil, persistFailed("stream "+next.ID, err)
	}

	e.store.SetOverrides(next.Overrides())
	if err := e.indexes.SetIndexes(next.Indexes); err != nil {
		return nil, err
	}
	e.set(next, e.ReadType(), e.Chain())
	c.logger.Info("stream updated", "stream", next.ID, "overrides", len(next.PropertyOverrides), "indexes", len(next.Indexes))
	return next.Clone(), nil
}

// UpdateStreamType rebinds a stream through the stream view viewID. The
// view must read the stream's current type; afterwards the stream is read
// as the view's target type. Stored events are unchanged.
func (c *Catalog) UpdateStreamType(ctx context.Context, streamID, viewID string) (*types.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.streams.get(streamID)
	if !ok {
		return nil, streamNotFound(streamID)
	}
	if _, ok := c.lookupView(viewID); !ok {
		return nil, viewNotFound(viewID)
	}
	next := e.Definition()
	next.Views = append(next.Views, viewID)
	readType, chain, err := resolveChain(e.store.Type(), next.Views, c.lookupType, c.lookupView)
	if err != nil {
		return nil, err
	}
	next.TypeID = readType.ID

	if err := c.repo.SaveStream(ctx, next); err != nil {
		return nil, persistFailed("stream "+next.ID, err)
	}
	e.set(next, readType, chain)
	c.logger.Info("stream rebound", "stream", streamID, "view", viewID, "type", readType.ID)
	return next.Clone(), nil
}

// GetStream returns the definition of stream id.
func (c *Catalog) GetStream(id string) (*types.Stream, error) {
	e, err := c.Lookup(id)
	if err != nil {
		return nil, err
	}
	return e.Definition(), nil
}

// Lookup returns the entry of stream id.
func (c *Catalog) Lookup(id string) (*Entry, error) {
	e, ok := c.streams.get(id)
	if !ok {
		return nil, streamNotFound(id)
	}
	return e, nil
}

// Entries returns every stream entry ordered by stream id.
func (c *Catalog) Entries() []*Entry {
	entries := c.streams.all()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID() < entries[j].ID()
	})
	return entries
}

// ListStreams returns the streams ordered by id. A non-empty filter is
// evaluated over the fields Id, Name, Description and TypeId.
func (c *Catalog) ListStreams(filterExpr string) ([]*types.Stream, error) {
	match, err := compileList(filterExpr, "Id", "Name", "Description", "TypeId")
	if err != nil {
		return nil, err
	}
	out := []*types.Stream{}
	for _, e := range c.Entries() {
		def := e.Definition()
		if match(map[string]any{"Id": def.ID, "Name": def.Name, "Description": def.Description, "TypeId": def.TypeID}) {
			out = append(out, def)
		}
	}
	return out, nil
}

// DeleteStream removes a stream with its events, indexes, tags and
// metadata.
func (c *Catalog) DeleteStream(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.streams.get(id); !ok {
		return streamNotFound(id)
	}
	if err := c.repo.DeleteStream(ctx, id); err != nil {
		return persistFailed("stream deletion "+id, err)
	}
	c.streams.delete(id)
	c.logger.Info("stream deleted", "stream", id)
	return nil
}
