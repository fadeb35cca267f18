package catalog

import (
	"context"

	sdserrors "github.com/arkilian/sds/internal/errors"
	"github.com/arkilian/sds/internal/view"
	"github.com/arkilian/sds/pkg/types"
)

func validateType(t *types.Type) error {
	if t == nil {
		return sdserrors.InvalidDefinition(sdserrors.CodeInvalidType, "type definition is required")
	}
	if err := t.Validate(); err != nil {
		return sdserrors.InvalidDefinition(sdserrors.CodeInvalidType, "%v", err)
	}
	return nil
}

// CreateOrGetType registers t, or returns the registered definition with
// the same id. A registered definition that differs from t is a Conflict.
func (c *Catalog) CreateOrGetType(ctx context.Context, t *types.Type) (*types.Type, error) {
	if err := validateType(t); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.lookupType(t.ID); ok {
		if !existing.Equal(t) {
			return nil, sdserrors.Conflict(sdserrors.CodeDefinitionDiffer,
				"type %q already exists with a different definition", t.ID)
		}
		return existing.Clone(), nil
	}
	return c.putType(ctx, t.Clone())
}

func (c *Catalog) putType(ctx context.Context, t *types.Type) (*types.Type, error) {
	if err := c.repo.SaveType(ctx, t); err != nil {
		return nil, persistFailed("type "+t.ID, err)
	}
	c.defsMu.Lock()
	c.types[t.ID] = t
	c.defsMu.Unlock()
	c.logger.Info("type saved", "type", t.ID, "properties", len(t.Properties))
	return t.Clone(), nil
}

type pendingEntry struct {
	entry    *Entry
	def      *types.Stream
	storage  *types.Type
	readType *types.Type
	chain    view.Chain
}

// CreateOrUpdateType registers t or replaces the definition with the same
// id. A type used by a stream that holds events cannot change: a new key
// layout is InvalidDefinition, any other change is a Conflict. Streams and
// views that use the type are re-resolved against the new definition and
// any failure leaves everything unchanged.
func (c *Catalog) CreateOrUpdateType(ctx context.Context, t *types.Type) (*types.Type, error) {
	if err := validateType(t); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.lookupType(t.ID)
	if !ok {
		return c.putType(ctx, t.Clone())
	}
	if existing.Equal(t) {
		return existing.Clone(), nil
	}

	next := t.Clone()
	lookupT := func(id string) (*types.Type, bool) {
		if id == next.ID {
			return next, true
		}
		return c.lookupType(id)
	}

	for _, v := range c.views {
		if v.SourceTypeID != next.ID && v.TargetTypeID != next.ID {
			continue
		}
		src, _ := lookupT(v.SourceTypeID)
		tgt, _ := lookupT(v.TargetTypeID)
		if _, err := view.ResolveMap(v, src, tgt); err != nil {
			return nil, err
		}
	}

	var pending []pendingEntry
	for _, e := range c.streams.all() {
		def := e.Definition()
		if !c.streamUsesType(def, next.ID) {
			continue
		}
		if e.store.Len() > 0 {
			if def.StorageTypeID == next.ID && !existing.SameKey(next) {
				return nil, sdserrors.InvalidDefinition(sdserrors.CodeKeyImmutable,
					"type %q: key properties cannot change while stream %q holds events", next.ID, def.ID)
			}
			return nil, sdserrors.Conflict(sdserrors.CodeTypeInUse,
				"type %q is used by stream %q which holds events", next.ID, def.ID)
		}
		storage, _ := lookupT(def.StorageTypeID)
		if err := validateStream(def, storage); err != nil {
			return nil, err
		}
		readType, chain, err := resolveChain(storage, def.Views, lookupT, c.lookupView)
		if err != nil {
			return nil, err
		}
		pending = append(pending, pendingEntry{entry: e, def: def, storage: storage, readType: readType, chain: chain})
	}

	saved, err := c.putType(ctx, next)
	if err != nil {
		return nil, err
	}
	for _, p := range pending {
		if err := c.apply(p); err != nil {
			return nil, err
		}
	}
	return saved, nil
}

// apply commits a re-resolved stream entry. The entry holds no events, so
// changing its storage type cannot fail on the key layout.
func (c *Catalog) apply(p pendingEntry) error {
	if err := p.entry.store.SetType(p.storage); err != nil {
		return err
	}
	if err := p.entry.indexes.SetIndexes(p.def.Indexes); err != nil {
		return err
	}
	p.def.TypeID = p.readType.ID
	p.entry.set(p.def, p.readType, p.chain)
	return nil
}

// streamUsesType reports whether typeID is the storage type, the read type
// or a type along the view chain of def. Callers hold c.mu.
func (c *Catalog) streamUsesType(def *types.Stream, typeID string) bool {
	if def.StorageTypeID == typeID || def.TypeID == typeID {
		return true
	}
	for _, id := range def.Views {
		if v, ok := c.views[id]; ok && (v.SourceTypeID == typeID || v.TargetTypeID == typeID) {
			return true
		}
	}
	return false
}

// GetType returns the definition registered under id.
func (c *Catalog) GetType(id string) (*types.Type, error) {
	t, ok := c.lookupType(id)
	if !ok {
		return nil, typeNotFound(id)
	}
	return t.Clone(), nil
}

// ListTypes returns the registered types ordered by id. A non-empty filter
// is evaluated over the fields Id, Name and Description, for example
// "contains(Id, 'Target')".
func (c *Catalog) ListTypes(filterExpr string) ([]*types.Type, error) {
	match, err := compileList(filterExpr, "Id", "Name", "Description")
	if err != nil {
		return nil, err
	}
	c.defsMu.RLock()
	defer c.defsMu.RUnlock()

	out := make([]*types.Type, 0, len(c.types))
	for _, id := range sortedKeys(c.types) {
		t := c.types[id]
		if match(map[string]any{"Id": t.ID, "Name": t.Name, "Description": t.Description}) {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// DeleteType removes the type registered under id. A type referenced by a
// stream or a stream view is a Conflict.
func (c *Catalog) DeleteType(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lookupType(id); !ok {
		return typeNotFound(id)
	}
	for _, e := range c.streams.all() {
		if def := e.Definition(); c.streamUsesType(def, id) {
			return sdserrors.Conflict(sdserrors.CodeTypeInUse, "type %q is used by stream %q", id, def.ID)
		}
	}
	for _, vid := range sortedKeys(c.views) {
		v := c.views[vid]
		if v.SourceTypeID == id || v.TargetTypeID == id {
			return sdserrors.Conflict(sdserrors.CodeTypeInUse, "type %q is used by stream view %q", id, v.ID)
		}
	}

	if err := c.repo.DeleteType(ctx, id); err != nil {
		return persistFailed("type deletion "+id, err)
	}
	c.defsMu.Lock()
	delete(c.types, id)
	c.defsMu.Unlock()
	c.logger.Info("type deleted", "type", id)
	return nil
}
