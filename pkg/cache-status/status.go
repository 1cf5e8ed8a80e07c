// Package cachestatus builds Cache-Status header values (RFC 9211)
// for responses that went through the anti-reload transport.
package cachestatus

import (
	"fmt"
	"time"
)

const HeaderName = "Cache-Status"

// CacheName identifies this cache in the header value.
const CacheName = "Anti-Reload"

type Status string

const (
	Hit = "hit"
	Fwd = "fwd"
)

type FwdReason string

const (
	// The request did not match the tracked resources, or the returning
	// window was closed.
	FwdBypass = "bypass"

	// The cache did not contain any responses that matched the
	// request URI.
	FwdUriMiss = "uri-miss"

	// The cache contained a response that matched the request
	// URI, but it was stale.
	FwdStale = "stale"
)

type CacheStatus struct {
	status    Status
	fwdReason FwdReason
	stored    bool
	ttl       time.Duration
	hasTTL    bool
	detail    string
}

func (cs *CacheStatus) Hit() {
	cs.status = Hit
}

func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.status = Fwd
	cs.fwdReason = reason
}

// Stored records that the forwarded response was written to the cache.
func (cs *CacheStatus) Stored() {
	cs.stored = true
}

// TTL records the remaining freshness of a served response.
func (cs *CacheStatus) TTL(ttl time.Duration) {
	cs.ttl = ttl
	cs.hasTTL = true
}

func (cs *CacheStatus) Detail(detail string) {
	cs.detail = detail
}

func (cs *CacheStatus) String() string {
	status := fmt.Sprintf("%s; %s", CacheName, cs.status)
	if cs.status == Fwd && cs.fwdReason != "" {
		status = fmt.Sprintf("%s=%s", status, cs.fwdReason)
	}
	if cs.hasTTL {
		status = fmt.Sprintf("%s; ttl=%d", status, int64(cs.ttl/time.Second))
	}
	if cs.stored {
		status = status + "; stored"
	}
	if cs.detail != "" {
		status = status + "; detail=" + cs.detail
	}
	return status
}
