package docstore

import "sync"

// Op is the kind of write a Change describes.
type Op string

// Write kinds.
const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change describes one committed write.
//
// Before is nil for creates and After is nil for deletes. Origin identifies
// the process that made the write; it is empty for local writes and set by
// the replication relay for writes applied from a peer.
type Change struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Op         Op     `json:"op"`
	Before     Fields `json:"before,omitempty"`
	After      Fields `json:"after,omitempty"`
	Origin     string `json:"origin,omitempty"`
}

// Affects reports whether the change could alter the result of q.
func (c Change) Affects(q Query) bool {
	return (c.Before != nil && q.Matches(c.Before)) || (c.After != nil && q.Matches(c.After))
}

// Feed fans committed changes out to watchers.
//
// Watchers are called synchronously from Publish and must not block.
type Feed struct {
	mu       sync.RWMutex
	nextID   uint64
	watchers map[uint64]watcher
}

type watcher struct {
	collection string
	fn         func(Change)
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{watchers: make(map[uint64]watcher)}
}

// Watch registers fn for changes to collection. An empty collection watches
// everything. The returned cancel function is idempotent.
func (f *Feed) Watch(collection string, fn func(Change)) (cancel func()) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.watchers[id] = watcher{collection: collection, fn: fn}
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.watchers, id)
		f.mu.Unlock()
	}
}

// Publish delivers c to every interested watcher.
func (f *Feed) Publish(c Change) {
	f.mu.RLock()
	targets := make([]func(Change), 0, len(f.watchers))
	for _, w := range f.watchers {
		if w.collection == "" || w.collection == c.Collection {
			targets = append(targets, w.fn)
		}
	}
	f.mu.RUnlock()

	for _, fn := range targets {
		fn(c)
	}
}

// Len returns the number of registered watchers.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.watchers)
}
