package service

import (
	"context"
	"time"

	"github.com/arkilian/sds/internal/snapshot"
)

// Flush snapshots every stream whose events changed since its last flush.
// Without a snapshot store it does nothing.
func (s *Service) Flush(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}

	s.mu.Lock()
	var snaps []*snapshot.Snapshot
	for _, e := range s.catalog.Entries() {
		seq, version := e.Store().Snapshot()
		if last, ok := s.flushed[e.ID()]; ok && last == version {
			continue
		}
		snaps = append(snaps, &snapshot.Snapshot{
			StreamID: e.ID(),
			TypeID:   seq.Type.ID,
			Version:  version,
			TakenAt:  time.Now().UTC(),
			Events:   seq.Events,
		})
	}
	s.mu.Unlock()

	if len(snaps) == 0 {
		return nil
	}
	start := time.Now()
	if err := s.snapshots.SaveAll(ctx, snaps); err != nil {
		return err
	}

	s.mu.Lock()
	for _, snap := range snaps {
		s.flushed[snap.StreamID] = snap.Version
	}
	s.mu.Unlock()
	s.logger.Info("streams flushed", "streams", len(snaps), "duration", time.Since(start))
	return nil
}

// Restore loads the catalog and then the snapshot of every stream. A
// snapshot written for a different storage type is skipped with a warning.
func (s *Service) Restore(ctx context.Context) error {
	if err := s.catalog.Restore(ctx); err != nil {
		return err
	}
	if s.snapshots == nil {
		return nil
	}

	loaded := 0
	for _, e := range s.catalog.Entries() {
		snap, err := s.snapshots.Load(ctx, e.ID())
		if err != nil {
			return err
		}
		if snap == nil {
			continue
		}
		typ := e.Store().Type()
		if snap.TypeID != typ.ID {
			s.logger.Warn("skipping snapshot of another type", "stream", e.ID(), "snapshot_type", snap.TypeID, "type", typ.ID)
			continue
		}
		if err := e.Store().Load(snap.Events); err != nil {
			return err
		}
		s.mu.Lock()
		s.flushed[e.ID()] = e.Store().Version()
		s.mu.Unlock()
		loaded++
	}
	s.logger.Info("snapshots restored", "streams", loaded)
	return nil
}
