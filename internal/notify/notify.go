// Package notify provides an in-process change bus: the service publishes
// a Change after every successful stream write or deletion, and
// subscribers such as the snapshot flusher react to it.
package notify

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Op is the kind of change.
type Op int

const (
	// OpWrite covers inserts, updates and replacements
	OpWrite Op = iota
	// OpRemove covers removal of events by key or window
	OpRemove
	// OpDelete means the stream itself was deleted
	OpDelete
)

var opNames = [...]string{"write", "remove", "delete"}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "unknown"
}

// Change describes one successful mutation of a stream.
type Change struct {
	Op       Op
	StreamID string
	// Version is the event store version after the change; zero for OpDelete
	Version uint64
	Count   int
	At      time.Time
}

// Subscriber receives changes of the streams its prefixes select.
type Subscriber struct {
	ID       string
	Prefixes []string
	C        <-chan Change

	ch      chan Change
	dropped atomic.Uint64
}

// Dropped returns how many changes were discarded because C was full.
func (s *Subscriber) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscriber) matches(streamID string) bool {
	if len(s.Prefixes) == 0 {
		return true
	}
	for _, p := range s.Prefixes {
		if strings.HasPrefix(streamID, p) {
			return true
		}
	}
	return false
}

// Bus fans changes out to subscribers. Publish never blocks: a change for a
// subscriber whose buffer is full is dropped and counted.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	bufferSize  int
	nextID      atomic.Uint64
}

// NewBus creates a bus whose subscriber channels hold bufferSize changes.
func NewBus(bufferSize int) *Bus {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Bus{subscribers: make(map[string]*Subscriber), bufferSize: bufferSize}
}

// Publish delivers c to every matching subscriber.
func (b *Bus) Publish(c Change) {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if !sub.matches(c.StreamID) {
			continue
		}
		select {
		case sub.ch <- c:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber for streams whose id starts with one of
// prefixes; no prefixes selects every stream.
func (b *Bus) Subscribe(prefixes ...string) *Subscriber {
	ch := make(chan Change, b.bufferSize)
	sub := &Subscriber{
		ID:       "sub-" + time.Now().UTC().Format("20060102150405") + "-" + strconv.FormatUint(b.nextID.Add(1), 10),
		Prefixes: prefixes,
		C:        ch,
		ch:       ch,
	}
	b.mu.Lock()
	b.subscribers[sub.ID] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub.ID]; ok {
		delete(b.subscribers, sub.ID)
		close(sub.ch)
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
