// Package snapshot persists the events of a stream as one compressed
// object. Snapshots are JSON encoded with jsoniter and compressed with
// snappy; numbers decode as json.Number so integral values keep their full
// precision when the event store normalizes them.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang/snappy"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/semaphore"

	sdserrors "github.com/arkilian/sds/internal/errors"
	"github.com/arkilian/sds/internal/storage"
	"github.com/arkilian/sds/pkg/types"
)

// DefaultPrefix is the object path prefix of stream snapshots.
const DefaultPrefix = "streams/"

// DefaultConcurrency bounds parallel uploads in SaveAll.
const DefaultConcurrency = 4

const suffix = ".snap"

var codec = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	UseNumber:              true,
	ValidateJsonRawMessage: true,
}.Froze()

// Snapshot is the full event content of one stream at a store version.
type Snapshot struct {
	StreamID string        `json:"stream_id"`
	TypeID   string        `json:"type_id"`
	Version  uint64        `json:"version"`
	TakenAt  time.Time     `json:"taken_at"`
	Events   []types.Event `json:"events"`
}

// Encode serializes and compresses s.
func Encode(s *Snapshot) ([]byte, error) {
	raw, err := codec.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to encode stream %q: %w", s.StreamID, err)
	}
	return snappy.Encode(nil, raw), nil
}

// Decode reverses Encode.
func Decode(data []byte) (*Snapshot, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to decompress: %w", err)
	}
	var s Snapshot
	if err := codec.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("snapshot: failed to decode: %w", err)
	}
	return &s, nil
}

// Store reads and writes snapshots in object storage.
type Store struct {
	objects storage.ObjectStorage
	prefix  string
	sem     *semaphore.Weighted
	logger  *slog.Logger
}

// NewStore creates a snapshot store writing below prefix. A concurrency
// below one uses DefaultConcurrency.
func NewStore(objects storage.ObjectStorage, prefix string, concurrency int, logger *slog.Logger) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		objects: objects,
		prefix:  prefix,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		logger:  logger,
	}
}

// Path returns the object path of a stream's snapshot.
func (s *Store) Path(streamID string) string {
	return s.prefix + url.PathEscape(streamID) + suffix
}

// Save writes snap, replacing the previous snapshot of the stream.
func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return sdserrors.NewInternalError("failed to encode snapshot", err)
	}
	if err := s.objects.Put(ctx, s.Path(snap.StreamID), data); err != nil {
		return sdserrors.NewStorageError(sdserrors.CodeUploadFailed,
			fmt.Sprintf("failed to upload snapshot of stream %q", snap.StreamID), err)
	}
	s.logger.Debug("snapshot saved", "stream", snap.StreamID, "events", len(snap.Events), "bytes", len(data))
	return nil
}

// SaveAll writes every snapshot with bounded concurrency and reports the
// failures joined. One failure does not stop the others.
func (s *Store) SaveAll(ctx context.Context, snaps []*Snapshot) error {
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for _, snap := range snaps {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func(snap *Snapshot) {
			defer wg.Done()
			defer s.sem.Release(1)
			if err := s.Save(ctx, snap); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(snap)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Load reads the snapshot of a stream. A stream without a snapshot returns
// nil and no error.
func (s *Store) Load(ctx context.Context, streamID string) (*Snapshot, error) {
	data, err := s.objects.Get(ctx, s.Path(streamID))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, sdserrors.NewStorageError(sdserrors.CodeDownloadFailed,
			fmt.Sprintf("failed to download snapshot of stream %q", streamID), err)
	}
	snap, err := Decode(data)
	if err != nil {
		return nil, sdserrors.NewInternalError(fmt.Sprintf("corrupt snapshot of stream %q", streamID), err)
	}
	return snap, nil
}

// Delete removes the snapshot of a stream if one exists.
func (s *Store) Delete(ctx context.Context, streamID string) error {
	if err := s.objects.Delete(ctx, s.Path(streamID)); err != nil {
		return sdserrors.NewStorageError(sdserrors.CodeUploadFailed,
			fmt.Sprintf("failed to delete snapshot of stream %q", streamID), err)
	}
	return nil
}

// List returns the ids of every stream with a snapshot.
func (s *Store) List(ctx context.Context) ([]string, error) {
	paths, err := s.objects.List(ctx, s.prefix)
	if err != nil {
		return nil, sdserrors.NewStorageError(sdserrors.CodeDownloadFailed, "failed to list snapshots", err)
	}
	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		name := strings.TrimPrefix(p, s.prefix)
		if !strings.HasSuffix(name, suffix) || strings.Contains(name, "/") {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, suffix))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
