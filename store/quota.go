package store

import "sync"

// DefaultQuota is the capacity ceiling browsers commonly give session storage.
const DefaultQuota = 5 << 20

// Quota enforces a capacity ceiling on top of another store.
// Usage is counted as the sum of key and value lengths in the namespace.
type Quota struct {
	Store
	limit int
	mutex sync.Mutex
}

// WithQuota wraps the store. A non-positive limit means DefaultQuota.
func WithQuota(s Store, limit int) *Quota {
	if limit <= 0 {
		limit = DefaultQuota
	}
	return &Quota{Store: s, limit: limit}
}

// Limit returns the capacity ceiling in bytes.
func (q *Quota) Limit() int {
	return q.limit
}

// Set fails with ErrQuotaExceeded, storing nothing, when the new value
// would take the namespace over the limit.
func (q *Quota) Set(key, value string) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	used, err := Usage(q.Store)
	if err != nil {
		return err
	}
	if old, ok, err := q.Store.Get(key); err != nil {
		return err
	} else if ok {
		used -= len(key) + len(old)
	}
	if used+len(key)+len(value) > q.limit {
		return ErrQuotaExceeded
	}
	return q.Store.Set(key, value)
}
