// Package service exposes the operations of the store. It routes every
// call through the catalog to a stream's event store or secondary index
// and projects results through the stream's view chain and an optional
// requested view.
package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/arkilian/sds/internal/catalog"
	"github.com/arkilian/sds/internal/notify"
	"github.com/arkilian/sds/internal/observability"
	"github.com/arkilian/sds/internal/snapshot"
	"github.com/arkilian/sds/pkg/types"
)

// Service is the operation surface used by the transport adapters and the
// CLI.
type Service struct {
	catalog   *catalog.Catalog
	snapshots *snapshot.Store
	changes   *notify.Bus
	stats     *observability.ReadStats
	logger    *slog.Logger

	mu      sync.Mutex
	flushed map[string]uint64
}

// Option configures a Service.
type Option func(*Service)

// WithSnapshots enables Flush and Restore of stream events.
func WithSnapshots(s *snapshot.Store) Option {
	return func(svc *Service) { svc.snapshots = s }
}

// WithChanges publishes every successful stream mutation on b.
func WithChanges(b *notify.Bus) Option {
	return func(svc *Service) { svc.changes = b }
}

// WithReadStats records filter predicates and secondary-index reads in rs.
func WithReadStats(rs *observability.ReadStats) Option {
	return func(svc *Service) { svc.stats = rs }
}

// ReadStats returns the read statistics, or nil when they are not recorded.
func (s *Service) ReadStats() *observability.ReadStats {
	return s.stats
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

// New creates a service over cat.
func New(cat *catalog.Catalog, opts ...Option) *Service {
	s := &Service{
		catalog: cat,
		logger:  slog.Default(),
		flushed: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the underlying catalog.
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// Types

func (s *Service) CreateOrGetType(ctx context.Context, t *types.Type) (*types.Type, error) {
	return s.catalog.CreateOrGetType(ctx, t)
}

func (s *Service) CreateOrUpdateType(ctx context.Context, t *types.Type) (*types.Type, error) {
	return s.catalog.CreateOrUpdateType(ctx, t)
}

func (s *Service) GetType(id string) (*types.Type, error) {
	return s.catalog.GetType(id)
}

func (s *Service) ListTypes(filter string) ([]*types.Type, error) {
	return s.catalog.ListTypes(filter)
}

func (s *Service) DeleteType(ctx context.Context, id string) error {
	return s.catalog.DeleteType(ctx, id)
}

// Streams

func (s *Service) CreateOrGetStream(ctx context.Context, def *types.Stream) (*types.Stream, error) {
	return s.catalog.CreateOrGetStream(ctx, def)
}

func (s *Service) CreateOrUpdateStream(ctx context.Context, def *types.Stream) (*types.Stream, error) {
	return s.catalog.CreateOrUpdateStream(ctx, def)
}

func (s *Service) GetStream(id string) (*types.Stream, error) {
	return s.catalog.GetStream(id)
}

func (s *Service) ListStreams(filter string) ([]*types.Stream, error) {
	return s.catalog.ListStreams(filter)
}

func (s *Service) UpdateStreamType(ctx context.Context, streamID, viewID string) (*types.Stream, error) {
	return s.catalog.UpdateStreamType(ctx, streamID, viewID)
}

// DeleteStream removes the stream and its snapshot. A snapshot that cannot
// be removed is logged; it is ignored on restore because the stream no
// longer exists.
func (s *Service) DeleteStream(ctx context.Context, id string) error {
	if err := s.catalog.DeleteStream(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.flushed, id)
	s.mu.Unlock()
	if s.changes != nil {
		s.changes.Publish(notify.Change{Op: notify.OpDelete, StreamID: id})
	}
	if s.stats != nil {
		s.stats.Forget(id)
	}
	if s.snapshots != nil {
		if err := s.snapshots.Delete(ctx, id); err != nil {
			s.logger.Warn("failed to delete stream snapshot", "stream", id, "error", err)
		}
	}
	return nil
}

// Stream views

func (s *Service) CreateOrUpdateView(ctx context.Context, v *types.StreamView) (*types.StreamView, error) {
	return s.catalog.CreateOrUpdateView(ctx, v)
}

func (s *Service) GetView(id string) (*types.StreamView, error) {
	return s.catalog.GetView(id)
}

func (s *Service) ListViews() []*types.StreamView {
	return s.catalog.ListViews()
}

func (s *Service) GetViewMap(id string) (*types.StreamViewMap, error) {
	return s.catalog.GetViewMap(id)
}

func (s *Service) DeleteView(ctx context.Context, id string) error {
	return s.catalog.DeleteView(ctx, id)
}

// Tags and metadata

func (s *Service) SetTags(ctx context.Context, streamID string, tags []string) error {
	return s.catalog.SetTags(ctx, streamID, tags)
}

func (s *Service) GetTags(streamID string) ([]string, error) {
	return s.catalog.GetTags(streamID)
}

func (s *Service) SetMetadata(ctx context.Context, streamID string, md map[string]string) error {
	return s.catalog.SetMetadata(ctx, streamID, md)
}

func (s *Service) SetMetadataEntry(ctx context.Context, streamID, key, value string) error {
	return s.catalog.SetMetadataEntry(ctx, streamID, key, value)
}

func (s *Service) GetMetadata(streamID string) (map[string]string, error) {
	return s.catalog.GetMetadata(streamID)
}

func (s *Service) GetMetadataValue(streamID, key string) (string, error) {
	return s.catalog.GetMetadataValue(streamID, key)
}
