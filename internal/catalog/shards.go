package catalog

import (
	"sync"

	"github.com/spaolacci/murmur3"
)

// DefaultShardCount is the number of stream map shards.
const DefaultShardCount = 32

// shardMap distributes stream entries across independently locked shards.
// Shard selection: murmur3(stream id) % shard count.
type shardMap struct {
	shards []*shard
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func newShardMap() *shardMap {
	m := &shardMap{shards: make([]*shard, DefaultShardCount)}
	for i := range m.shards {
		m.shards[i] = &shard{entries: make(map[string]*Entry)}
	}
	return m
}

func (m *shardMap) shardFor(id string) *shard {
	return m.shards[murmur3.Sum32([]byte(id))%uint32(len(m.shards))]
}

func (m *shardMap) get(id string) (*Entry, bool) {
	s := m.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

func (m *shardMap) put(id string, e *Entry) {
	s := m.shardFor(id)
	s.mu.Lock()
	s.entries[id] = e
	s.mu.Unlock()
}

func (m *shardMap) delete(id string) {
	s := m.shardFor(id)
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

func (m *shardMap) len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// all returns every entry, in no particular order.
func (m *shardMap) all() []*Entry {
	var out []*Entry
	for _, s := range m.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			out = append(out, e)
		}
		s.mu.RUnlock()
	}
	return out
}
