package antireload

import (
	"net/http"

	"github.com/always-cache/anti-reload/cache"
	codec "github.com/always-cache/anti-reload/pkg/cache-codec"
	cachekey "github.com/always-cache/anti-reload/pkg/cache-key"
	cachestatus "github.com/always-cache/anti-reload/pkg/cache-status"
	"github.com/always-cache/anti-reload/pkg/metrics"
	serializer "github.com/always-cache/anti-reload/pkg/response-serializer"
	tee "github.com/always-cache/anti-reload/pkg/response-tee"
	"github.com/rs/zerolog"
)

// Transport serves tracked GET requests from the cache while the page is
// returning and records live responses to them. Every other request goes
// straight to the next transport.
type Transport struct {
	c    *Coordinator
	next http.RoundTripper
}

// Transport wraps next, http.DefaultTransport if nil.
func (c *Coordinator) Transport(next http.RoundTripper) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Transport{c: c, next: next}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.c.resources.Match(req) {
		return t.next.RoundTrip(req)
	}
	id, err := cachekey.Identity(req)
	if err != nil {
		return t.next.RoundTrip(req)
	}
	log := t.c.log.With().Str("identity", id).Logger()
	status := &cachestatus.CacheStatus{}

	if t.c.machine.WithinWindow() {
		if res := t.serveCached(req, id, status, log); res != nil {
			t.c.fetched(FetchEvent{Identity: id, Cached: true, StatusCode: res.StatusCode})
			return res, nil
		}
	} else {
		status.Forward(cachestatus.FwdBypass)
		metrics.ObserveLookup("bypass")
	}

	res, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	event := FetchEvent{Identity: id, StatusCode: res.StatusCode}
	defer func() { t.c.fetched(event) }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		log.Trace().Msgf("Not caching status %d", res.StatusCode)
		return res, nil
	}
	body, err := tee.Capture(res)
	if err != nil {
		log.Warn().Err(err).Msg("Could not read response body, not caching")
		return res, nil
	}
	if !codec.Valid(body) {
		log.Trace().Msg("Response is not JSON, not caching")
		return res, nil
	}

	if t.insert(id, body) {
		status.Stored()
		event.Stored = true
		if cachekey.IsPagination(id) {
			log.Debug().Msg("Cached (pagination)")
		} else {
			log.Debug().Msg("Cached")
		}
	}
	if res.Header == nil {
		res.Header = http.Header{}
	}
	res.Header.Add(cachestatus.HeaderName, status.String())
	return res, nil
}

// serveCached returns a response synthesized from a fresh cache entry, or nil.
func (t *Transport) serveCached(req *http.Request, id string, status *cachestatus.CacheStatus, log zerolog.Logger) *http.Response {
	t.c.cacheMutex.Lock()
	defer t.c.cacheMutex.Unlock()

	lru, _ := t.c.cache.Load()
	entry, ok := lru.Get(id)
	if !ok {
		status.Forward(cachestatus.FwdUriMiss)
		metrics.ObserveLookup("miss")
		return nil
	}
	now := t.c.clock.Now()
	if !cache.Fresh(entry, t.c.ttl, now) {
		status.Forward(cachestatus.FwdStale)
		metrics.ObserveLookup("stale")
		log.Trace().Msg("Cached response is stale")
		return nil
	}

	lru.Touch(id)
	if err := t.c.cache.Save(lru); err != nil {
		log.Trace().Err(err).Msg("Serving hit without persisting recency")
	}
	metrics.ObserveLookup("hit")
	log.Debug().Msg("Using cache")

	res := serializer.Synthesize(req, entry.Payload, entry.StoredAt, now)
	status.Hit()
	status.TTL(t.c.ttl - now.Sub(entry.StoredAt))
	res.Header.Set(cachestatus.HeaderName, status.String())
	return res
}

func (t *Transport) insert(id string, body []byte) bool {
	t.c.cacheMutex.Lock()
	defer t.c.cacheMutex.Unlock()

	lru, _ := t.c.cache.Load()
	evicted := lru.Put(id, append([]byte(nil), body...))
	metrics.ObserveEvictions("capacity", len(evicted))
	return t.c.cache.Save(lru) == nil
}

func (c *Coordinator) fetched(e FetchEvent) {
	if c.onFetch != nil {
		c.onFetch(e)
	}
}

