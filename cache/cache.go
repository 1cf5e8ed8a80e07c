// Package cache holds the bounded response cache and its persisted form.
package cache

import (
	"errors"
	"fmt"
	"time"

	codec "github.com/always-cache/anti-reload/pkg/cache-codec"
	"github.com/always-cache/anti-reload/pkg/metrics"
	"github.com/always-cache/anti-reload/store"
	"github.com/rs/zerolog"
)

const (
	DefaultKey            = "anti_reload_api_cache"
	DefaultMaxEntries     = 25
	DefaultRetryEvictions = 10
	DefaultMaxRetries     = 1
)

type Config struct {
	// Store the cache is persisted in. Required.
	Store store.Store
	// Key the cache blob is stored under. Defaults to DefaultKey.
	Key string
	// Maximum number of entries. Defaults to DefaultMaxEntries.
	MaxEntries int
	// Version tag of the persisted blob. Defaults to codec.CurrentVersion.
	// Data written with another version is discarded on load.
	Version int
	// Compress the persisted blob with snappy.
	Compress bool
	// Number of least recent entries dropped before each save retry.
	// Defaults to DefaultRetryEvictions.
	RetryEvictions int
	// Number of save retries after a failed write. Zero means
	// DefaultMaxRetries, negative disables retrying.
	MaxRetries int
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Now is the clock used to stamp entries. Defaults to time.Now.
	Now func() time.Time
}

// Cache loads and saves an LRU from the persisted store.
type Cache struct {
	store          store.Store
	key            string
	codec          codec.Codec
	maxEntries     int
	retryEvictions int
	maxRetries     int
	now            func() time.Time
	log            zerolog.Logger
}

func New(config Config) *Cache {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	c := &Cache{
		store:          config.Store,
		key:            config.Key,
		codec:          codec.New(config.Version, config.Compress),
		maxEntries:     config.MaxEntries,
		retryEvictions: config.RetryEvictions,
		maxRetries:     config.MaxRetries,
		now:            config.Now,
	}
	if c.key == "" {
		c.key = DefaultKey
	}
	if c.maxEntries <= 0 {
		c.maxEntries = DefaultMaxEntries
	}
	if c.retryEvictions <= 0 {
		c.retryEvictions = DefaultRetryEvictions
	}
	if c.maxRetries == 0 {
		c.maxRetries = DefaultMaxRetries
	} else if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.log = logger.With().Str("component", "cache").Str("key", c.key).Logger()
	return c
}

// Empty returns a new empty LRU with the cache's bound and clock.
func (c *Cache) Empty() *LRU {
	return NewLRU(c.maxEntries, c.now)
}

// Load reads the persisted cache. The returned LRU is always usable:
// absent, unreadable, malformed or version-mismatched data gives an empty one,
// and the error only tells why the data was discarded.
func (c *Cache) Load() (*LRU, error) {
	lru := c.Empty()
	value, ok, err := c.store.Get(c.key)
	if err != nil {
		metrics.ObserveStoreFailure("load")
		c.log.Warn().Err(err).Msg("Could not read cache, starting empty")
		return lru, fmt.Errorf("load cache: %w", err)
	}
	if !ok {
		metrics.ObserveCacheSize(0)
		return lru, nil
	}

	blob, err := c.codec.Decode(value)
	if err != nil {
		metrics.ObserveStoreFailure("load")
		if errors.Is(err, codec.ErrVersionMismatch) {
			c.log.Debug().Err(err).Msg("Discarding cache written by another version")
		} else {
			c.log.Warn().Err(err).Msg("Discarding unreadable cache")
		}
		return lru, fmt.Errorf("load cache: %w", err)
	}
	for _, id := range blob.Recency {
		e := blob.Entries[id]
		lru.restore(id, Entry{Payload: e.Payload, StoredAt: time.UnixMilli(e.StoredAt)})
	}
	if over := lru.Len() - c.maxEntries; over > 0 {
		metrics.ObserveEvictions("capacity", len(lru.EvictOldest(over)))
	}
	metrics.ObserveCacheSize(lru.Len())
	c.log.Trace().Msgf("Loaded %d cache entries", lru.Len())
	return lru, nil
}

// Save persists the LRU. When the write fails, the least recent entries are
// evicted from the LRU and the write retried, a bounded number of times.
// The error is returned for logging; the LRU stays usable either way.
func (c *Cache) Save(lru *LRU) error {
	if over := lru.Len() - c.maxEntries; over > 0 {
		metrics.ObserveEvictions("capacity", len(lru.EvictOldest(over)))
	}

	var err error
	for attempt := 0; ; attempt++ {
		if err = c.write(lru); err == nil {
			metrics.ObserveCacheSize(lru.Len())
			return nil
		}
		if attempt >= c.maxRetries {
			break
		}
		evicted := lru.EvictOldest(c.retryEvictions)
		metrics.ObserveEvictions("quota", len(evicted))
		c.log.Debug().Err(err).Msgf("Cache write failed, evicted %d entries and retrying", len(evicted))
	}

	metrics.ObserveStoreFailure("save")
	metrics.ObserveCacheSize(lru.Len())
	c.log.Warn().Err(err).Msg("Could not save cache")
	return fmt.Errorf("save cache: %w", err)
}

// Clear removes the persisted cache.
func (c *Cache) Clear() error {
	return c.store.Remove(c.key)
}

func (c *Cache) write(lru *LRU) error {
	blob := codec.Blob{
		Entries: make(map[string]codec.Entry, lru.Len()),
		Recency: lru.Identities(),
	}
	for _, id := range blob.Recency {
		e := lru.entries[id]
		blob.Entries[id] = codec.Entry{Payload: e.Payload, StoredAt: e.StoredAt.UnixMilli()}
	}
	value, err := c.codec.Encode(blob)
	if err != nil {
		return err
	}
	return c.store.Set(c.key, value)
}
