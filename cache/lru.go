package cache

import (
	"encoding/json"
	"time"
)

// Entry is one cached response payload.
type Entry struct {
	Payload  json.RawMessage
	StoredAt time.Time
}

// Fresh reports whether the entry may still be served.
// An entry exactly ttl old is not fresh.
func Fresh(e Entry, ttl time.Duration, now time.Time) bool {
	return now.Sub(e.StoredAt) < ttl
}

// LRU is a bounded map of identity to Entry with a recency order.
// After every mutation the recency list holds exactly the keys of the map,
// each once, and its length never exceeds the bound.
//
// LRU is not safe for concurrent use.
type LRU struct {
	entries    map[string]Entry
	recency    []string // oldest first
	maxEntries int
	now        func() time.Time
}

// NewLRU creates an empty LRU holding at most maxEntries entries
// (DefaultMaxEntries if non-positive). now stamps inserted entries; nil means time.Now.
func NewLRU(maxEntries int, now func() time.Time) *LRU {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if now == nil {
		now = time.Now
	}
	return &LRU{
		entries:    map[string]Entry{},
		maxEntries: maxEntries,
		now:        now,
	}
}

// Get returns the entry without checking freshness or changing recency.
func (l *LRU) Get(id string) (Entry, bool) {
	e, ok := l.entries[id]
	return e, ok
}

// Put inserts or replaces the payload under id, stamped with the current time,
// and makes it the most recent. It returns the identities evicted to stay
// within the bound, oldest first.
func (l *LRU) Put(id string, payload json.RawMessage) []string {
	l.entries[id] = Entry{Payload: payload, StoredAt: l.now()}
	l.moveToBack(id)
	if over := len(l.recency) - l.maxEntries; over > 0 {
		return l.EvictOldest(over)
	}
	return nil
}

// Touch makes an existing identity the most recent. Unknown identities are ignored.
func (l *LRU) Touch(id string) bool {
	if _, ok := l.entries[id]; !ok {
		return false
	}
	l.moveToBack(id)
	return true
}

// EvictOldest removes up to n least recent entries and returns their identities.
func (l *LRU) EvictOldest(n int) []string {
	if n <= 0 {
		return nil
	}
	if n > len(l.recency) {
		n = len(l.recency)
	}
	evicted := make([]string, n)
	copy(evicted, l.recency[:n])
	for _, id := range evicted {
		delete(l.entries, id)
	}
	l.recency = append(l.recency[:0], l.recency[n:]...)
	return evicted
}

func (l *LRU) Len() int {
	return len(l.recency)
}

// Identities lists the cached identities, least recent first.
func (l *LRU) Identities() []string {
	ids := make([]string, len(l.recency))
	copy(ids, l.recency)
	return ids
}

func (l *LRU) moveToBack(id string) {
	for i, r := range l.recency {
		if r == id {
			l.recency = append(l.recency[:i], l.recency[i+1:]...)
			break
		}
	}
	l.recency = append(l.recency, id)
}

// restore sets an entry without stamping it, appending it as most recent.
// Used when rebuilding from the persisted form.
func (l *LRU) restore(id string, e Entry) {
	if _, ok := l.entries[id]; ok {
		return
	}
	l.entries[id] = e
	l.recency = append(l.recency, id)
}
