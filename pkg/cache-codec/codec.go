// Package codec serializes the response cache to and from the string form
// kept in the persisted store.
//
// The wire form is
//
//	{"v":2,"entries":{"<identity>":{"payload":<json>,"storedAt":<unix ms>}},"recency":["<identity>"]}
//
// optionally snappy-compressed and base64-encoded behind the "snappy:" prefix.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/golang/snappy"
)

// CurrentVersion is the version tag written by this package.
const CurrentVersion = 2

const snappyPrefix = "snappy:"

var (
	// ErrVersionMismatch means the stored blob carries another version tag.
	ErrVersionMismatch = errors.New("cache version mismatch")
	// ErrMalformed means the stored blob could not be parsed.
	ErrMalformed = errors.New("malformed cache data")
)

// Entry is one cached payload on the wire.
type Entry struct {
	Payload  json.RawMessage `json:"payload"`
	StoredAt int64           `json:"storedAt"`
}

// Blob is the whole cache on the wire. Recency lists identities oldest first.
type Blob struct {
	V       int              `json:"v"`
	Entries map[string]Entry `json:"entries"`
	Recency []string         `json:"recency"`
}

// legacyEntry is the shape of the unversioned format, a plain map of
// identity to {data, timestamp}.
type legacyEntry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp *int64          `json:"timestamp"`
}

type Codec struct {
	// Version written on encode and required on decode.
	Version int
	// Compress output with snappy. Decode accepts both forms regardless.
	Compress bool
}

// New returns a codec for the given version; zero means CurrentVersion.
func New(version int, compress bool) Codec {
	if version == 0 {
		version = CurrentVersion
	}
	return Codec{Version: version, Compress: compress}
}

// Empty returns an empty blob tagged with the codec version.
func (c Codec) Empty() Blob {
	return Blob{V: c.Version, Entries: map[string]Entry{}, Recency: []string{}}
}

// Encode serializes the blob, stamping the codec version on it.
func (c Codec) Encode(b Blob) (string, error) {
	b.V = c.Version
	if b.Entries == nil {
		b.Entries = map[string]Entry{}
	}
	if b.Recency == nil {
		b.Recency = []string{}
	}
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encode cache: %w", err)
	}
	if !c.Compress {
		return string(data), nil
	}
	return snappyPrefix + base64.StdEncoding.EncodeToString(snappy.Encode(nil, data)), nil
}

// Decode parses a stored blob. On any error the returned blob is empty and
// usable; the error only says why the stored data was discarded.
// Unversioned legacy data is migrated rather than discarded.
func (c Codec) Decode(s string) (Blob, error) {
	if s == "" {
		return c.Empty(), nil
	}
	data := []byte(s)
	if strings.HasPrefix(s, snappyPrefix) {
		compressed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, snappyPrefix))
		if err != nil {
			return c.Empty(), fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if data, err = snappy.Decode(nil, compressed); err != nil {
			return c.Empty(), fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return c.Empty(), fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return c.Empty(), fmt.Errorf("%w: not an object", ErrMalformed)
	}

	rawVersion, versioned := fields["v"]
	if !versioned {
		return c.migrate(fields), nil
	}
	var v int
	if err := json.Unmarshal(rawVersion, &v); err != nil {
		return c.Empty(), fmt.Errorf("%w: version tag %s", ErrMalformed, rawVersion)
	}
	if v != c.Version {
		return c.Empty(), fmt.Errorf("%w: stored %d, current %d", ErrVersionMismatch, v, c.Version)
	}

	var b Blob
	if err := json.Unmarshal(data, &b); err != nil {
		return c.Empty(), fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return normalize(b), nil
}

// migrate converts the unversioned identity -> {data, timestamp} map.
// Values that do not have both fields are dropped.
func (c Codec) migrate(fields map[string]json.RawMessage) Blob {
	b := c.Empty()
	for id, raw := range fields {
		var le legacyEntry
		if err := json.Unmarshal(raw, &le); err != nil {
			continue
		}
		if le.Data == nil || le.Timestamp == nil {
			continue
		}
		b.Entries[id] = Entry{Payload: le.Data, StoredAt: *le.Timestamp}
	}
	b.Recency = byAge(b.Entries, nil)
	return b
}

// normalize makes recency hold exactly the entry identities, once each.
// Unknown and duplicate identities are dropped; entries missing from the
// recency list are put at its least recent end, oldest first.
func normalize(b Blob) Blob {
	if b.Entries == nil {
		b.Entries = map[string]Entry{}
	}
	seen := make(map[string]bool, len(b.Entries))
	recency := make([]string, 0, len(b.Entries))
	for _, id := range b.Recency {
		if _, ok := b.Entries[id]; !ok || seen[id] {
			continue
		}
		seen[id] = true
		recency = append(recency, id)
	}
	if len(recency) < len(b.Entries) {
		recency = append(byAge(b.Entries, seen), recency...)
	}
	b.Recency = recency
	return b
}

// byAge lists the identities not in skip, oldest first, ties by identity.
func byAge(entries map[string]Entry, skip map[string]bool) []string {
	ids := make([]string, 0, len(entries))
	for id := range entries {
		if !skip[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := entries[ids[i]], entries[ids[j]]
		if a.StoredAt != b.StoredAt {
			return a.StoredAt < b.StoredAt
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Valid reports whether the payload is a single JSON value.
func Valid(payload []byte) bool {
	return len(bytes.TrimSpace(payload)) > 0 && json.Valid(payload)
}
