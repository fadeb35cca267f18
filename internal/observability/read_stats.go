// Package observability tracks how stream properties are read, so operators
// can tell which properties deserve a secondary index.
package observability

import (
	"sort"
	"sync"
	"time"
)

// ReadStats counts filter predicates and secondary-index reads per stream
// property over a sliding window.
type ReadStats struct {
	mu         sync.RWMutex
	predicates map[propertyKey]*PropertyStats
	indexReads map[propertyKey]*PropertyStats
	window     time.Duration
	now        func() time.Time
}

type propertyKey struct {
	stream   string
	property string
}

// PropertyStats holds the counters of one stream property.
type PropertyStats struct {
	StreamID   string         `json:"streamId"`
	PropertyID string         `json:"propertyId"`
	Frequency  int64          `json:"frequency"`
	LastSeen   time.Time      `json:"lastSeen"`
	Operators  map[string]int `json:"operators,omitempty"` // operator → count (e.g. "gt" → 5)
}

// NewReadStats creates a tracker whose entries expire after window.
func NewReadStats(window time.Duration) *ReadStats {
	return &ReadStats{
		predicates: make(map[propertyKey]*PropertyStats),
		indexReads: make(map[propertyKey]*PropertyStats),
		window:     window,
		now:        time.Now,
	}
}

// RecordPredicate records one comparison on a property inside a filter.
func (q *ReadStats) RecordPredicate(streamID, propertyID, operator string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := q.entry(q.predicates, streamID, propertyID)
	stats.Operators[operator]++
}

// RecordIndexRead records one read through the secondary index on a property.
func (q *ReadStats) RecordIndexRead(streamID, propertyID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entry(q.indexReads, streamID, propertyID)
}

func (q *ReadStats) entry(m map[propertyKey]*PropertyStats, streamID, propertyID string) *PropertyStats {
	k := propertyKey{streamID, propertyID}
	stats, ok := m[k]
	if !ok {
		stats = &PropertyStats{StreamID: streamID, PropertyID: propertyID, Operators: make(map[string]int)}
		m[k] = stats
	}
	stats.Frequency++
	stats.LastSeen = q.now()
	return stats
}

// TopPredicates returns copies of the n most filtered properties, most
// frequent first.
func (q *ReadStats) TopPredicates(n int) []PropertyStats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return top(q.predicates, n)
}

// TopIndexReads returns copies of the n most read secondary indexes.
func (q *ReadStats) TopIndexReads(n int) []PropertyStats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return top(q.indexReads, n)
}

func top(m map[propertyKey]*PropertyStats, n int) []PropertyStats {
	if n <= 0 || len(m) == 0 {
		return []PropertyStats{}
	}
	stats := make([]PropertyStats, 0, len(m))
	for _, s := range m {
		c := *s
		c.Operators = make(map[string]int, len(s.Operators))
		for op, count := range s.Operators {
			c.Operators[op] = count
		}
		stats = append(stats, c)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		if stats[i].StreamID != stats[j].StreamID {
			return stats[i].StreamID < stats[j].StreamID
		}
		return stats[i].PropertyID < stats[j].PropertyID
	})
	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Forget drops every entry of a stream.
func (q *ReadStats) Forget(streamID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range []map[propertyKey]*PropertyStats{q.predicates, q.indexReads} {
		for k := range m {
			if k.stream == streamID {
				delete(m, k)
			}
		}
	}
}

// Prune removes entries not seen within the window.
func (q *ReadStats) Prune() {
	q.mu.Lock()
	defer q.mu.Unlock()
	threshold := q.now().Add(-q.window)
	for _, m := range []map[propertyKey]*PropertyStats{q.predicates, q.indexReads} {
		for k, s := range m {
			if s.LastSeen.Before(threshold) {
				delete(m, k)
			}
		}
	}
}
