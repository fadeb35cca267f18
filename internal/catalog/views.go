package catalog

import (
	"context"
	"slices"

	sdserrors "github.com/arkilian/sds/internal/errors"
	"github.com/arkilian/sds/internal/view"
	"github.com/arkilian/sds/pkg/types"
)

// CreateOrUpdateView registers v or replaces the view with the same id.
// Both types must exist and the mapping must resolve. A view already used
// by a stream keeps its source and target types; changing them is a
// Conflict. Otherwise the streams using it pick up the new mapping.
func (c *Catalog) CreateOrUpdateView(ctx context.Context, v *types.StreamView) (*types.StreamView, error) {
	if v == nil || v.ID == "" {
		return nil, sdserrors.InvalidDefinition(sdserrors.CodeInvalidView, "stream view id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	source, ok := c.lookupType(v.SourceTypeID)
	if !ok {
		return nil, typeNotFound(v.SourceTypeID)
	}
	target, ok := c.lookupType(v.TargetTypeID)
	if !ok {
		return nil, typeNotFound(v.TargetTypeID)
	}
	if _, err := view.ResolveMap(v, source, target); err != nil {
		return nil, err
	}

	next := v.Clone()
	lookupV := func(id string) (*types.StreamView, bool) {
		if id == next.ID {
			return next, true
		}
		return c.lookupView(id)
	}
	var pending []pendingEntry
	if existing, ok := c.lookupView(v.ID); ok {
		for _, e := range c.streams.all() {
			def := e.Definition()
			if !slices.Contains(def.Views, v.ID) {
				continue
			}
			if existing.SourceTypeID != next.SourceTypeID || existing.TargetTypeID != next.TargetTypeID {
				return nil, sdserrors.Conflict(sdserrors.CodeViewInUse,
					"stream view %q is used by stream %q; its types cannot change", v.ID, def.ID)
			}
			storage := e.store.Type()
			readType, chain, err := resolveChain(storage, def.Views, c.lookupType, lookupV)
			if err != nil {
				return nil, err
			}
			pending = append(pending, pendingEntry{entry: e, def: def, storage: storage, readType: readType, chain: chain})
		}
	}

	if err := c.repo.SaveView(ctx, next); err != nil {
		return nil, persistFailed("stream view "+next.ID, err)
	}
	c.defsMu.Lock()
	c.views[next.ID] = next
	c.defsMu.Unlock()
	for _, p := range pending {
		p.entry.set(p.def, p.readType, p.chain)
	}
	c.logger.Info("stream view saved", "view", next.ID, "source", next.SourceTypeID, "target", next.TargetTypeID)
	return next.Clone(), nil
}

// GetView returns the stream view registered under id.
func (c *Catalog) GetView(id string) (*types.StreamView, error) {
	v, ok := c.lookupView(id)
	if !ok {
		return nil, viewNotFound(id)
	}
	return v.Clone(), nil
}

// ListViews returns every stream view ordered by id.
func (c *Catalog) ListViews() []*types.StreamView {
	c.defsMu.RLock()
	defer c.defsMu.RUnlock()
	out := make([]*types.StreamView, 0, len(c.views))
	for _, id := range sortedKeys(c.views) {
		out = append(out, c.views[id].Clone())
	}
	return out
}

// GetViewMap resolves the full property mapping of stream view id.
func (c *Catalog) GetViewMap(id string) (*types.StreamViewMap, error) {
	v, source, target, err := c.ResolveView(id)
	if err != nil {
		return nil, err
	}
	return view.ResolveMap(v, source, target)
}

// ResolveView returns stream view id with its source and target types.
func (c *Catalog) ResolveView(id string) (*types.StreamView, *types.Type, *types.Type, error) {
	v, ok := c.lookupView(id)
	if !ok {
		return nil, nil, nil, viewNotFound(id)
	}
	source, ok := c.lookupType(v.SourceTypeID)
	if !ok {
		return nil, nil, nil, typeNotFound(v.SourceTypeID)
	}
	target, ok := c.lookupType(v.TargetTypeID)
	if !ok {
		return nil, nil, nil, typeNotFound(v.TargetTypeID)
	}
	return v, source, target, nil
}

// DeleteView removes stream view id. A view in the chain of a stream is a
// Conflict.
func (c *Catalog) DeleteView(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lookupView(id); !ok {
		return viewNotFound(id)
	}
	for _, e := range c.Entries() {
		if def := e.Definition(); slices.Contains(def.Views, id) {
			return sdserrors.Conflict(sdserrors.CodeViewInUse, "stream view %q is used by stream %q", id, def.ID)
		}
	}
	if err := c.repo.DeleteView(ctx, id); err != nil {
		return persistFailed("stream view deletion "+id, err)
	}
	c.defsMu.Lock()
	delete(c.views, id)
	c.defsMu.Unlock()
	c.logger.Info("stream view deleted", "view", id)
	return nil
}
