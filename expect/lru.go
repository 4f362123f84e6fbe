package expect

import (
	"container/list"
	"sync"
)

// lruTier is the bounded fast tier: a fixed-capacity LRU over fingerprint
// lists keyed by namespace+kind. Reads are concurrent-safe; writes and
// evictions are serialized behind the same lock (a Get also serializes,
// because touching recency is a write).
type lruTier struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type lruEntry struct {
	key string
	fps []Fingerprint
}

func newLRUTier(capacity int) *lruTier {
	if capacity < 1 {
		capacity = 1
	}
	return &lruTier{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Get returns the fingerprints under key and marks the entry most recently
// used.
func (t *lruTier) Get(key string) ([]Fingerprint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	elem, ok := t.entries[key]
	if !ok {
		return nil, false
	}
	t.order.MoveToFront(elem)
	return elem.Value.(*lruEntry).fps, true
}

// Append adds a fingerprint to the entry under key, creating the entry if
// needed and evicting the least-recently-used entry when over capacity.
func (t *lruTier) Append(key string, fp Fingerprint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if elem, ok := t.entries[key]; ok {
		entry := elem.Value.(*lruEntry)
		entry.fps = append(entry.fps, fp)
		t.order.MoveToFront(elem)
		return
	}
	t.insertLocked(key, []Fingerprint{fp})
}

// Replace installs a full fingerprint list under key (used to re-populate
// the fast tier after a durable-tier hit).
func (t *lruTier) Replace(key string, fps []Fingerprint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if elem, ok := t.entries[key]; ok {
		elem.Value.(*lruEntry).fps = fps
		t.order.MoveToFront(elem)
		return
	}
	t.insertLocked(key, fps)
}

// Len returns the number of cached entries.
func (t *lruTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}

func (t *lruTier) insertLocked(key string, fps []Fingerprint) {
	elem := t.order.PushFront(&lruEntry{key: key, fps: fps})
	t.entries[key] = elem
	for t.order.Len() > t.capacity {
		oldest := t.order.Back()
		t.order.Remove(oldest)
		delete(t.entries, oldest.Value.(*lruEntry).key)
	}
}
