package catalog

import (
	"context"

	sdserrors "github.com/arkilian/sds/internal/errors"
	"github.com/arkilian/sds/pkg/types"
)

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// amend applies change to a copy of stream id's definition, persists it and
// publishes it.
func (c *Catalog) amend(ctx context.Context, id string, change func(def *types.Stream)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.streams.get(id)
	if !ok {
		return streamNotFound(id)
	}
	next := e.Definition()
	change(next)
	if err := c.repo.SaveStream(ctx, next); err != nil {
		return persistFailed("stream "+id, err)
	}
	e.set(next, e.ReadType(), e.Chain())
	return nil
}

// SetTags replaces the tags of stream id.
func (c *Catalog) SetTags(ctx context.Context, id string, tags []string) error {
	return c.amend(ctx, id, func(def *types.Stream) {
		def.Tags = append([]string(nil), tags...)
	})
}

// GetTags returns the tags of stream id.
func (c *Catalog) GetTags(id string) ([]string, error) {
	def, err := c.GetStream(id)
	if err != nil {
		return nil, err
	}
	if def.Tags == nil {
		return []string{}, nil
	}
	return def.Tags, nil
}

// SetMetadata replaces the whole metadata map of stream id.
func (c *Catalog) SetMetadata(ctx context.Context, id string, metadata map[string]string) error {
	return c.amend(ctx, id, func(def *types.Stream) {
		def.Metadata = copyMetadata(metadata)
	})
}

// SetMetadataEntry sets one metadata key of stream id.
func (c *Catalog) SetMetadataEntry(ctx context.Context, id, key, value string) error {
	if key == "" {
		return sdserrors.InvalidDefinition(sdserrors.CodeInvalidStream, "metadata key is required")
	}
	return c.amend(ctx, id, func(def *types.Stream) {
		if def.Metadata == nil {
			def.Metadata = make(map[string]string)
		}
		def.Metadata[key] = value
	})
}

// GetMetadata returns the metadata of stream id.
func (c *Catalog) GetMetadata(id string) (map[string]string, error) {
	def, err := c.GetStream(id)
	if err != nil {
		return nil, err
	}
	if def.Metadata == nil {
		return map[string]string{}, nil
	}
	return def.Metadata, nil
}

// GetMetadataValue returns one metadata value of stream id.
func (c *Catalog) GetMetadataValue(id, key string) (string, error) {
	md, err := c.GetMetadata(id)
	if err != nil {
		return "", err
	}
	v, ok := md[key]
	if !ok {
		return "", sdserrors.NotFound(sdserrors.CodeMetadataNotFound, "stream %q has no metadata key %q", id, key)
	}
	return v, nil
}
