package codec

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func sampleBlob() Blob {
	return Blob{
		Entries: map[string]Entry{
			"/ajax/discovery/artworks?mode=all":          {Payload: []byte(`{"body":{"ids":[1,2]}}`), StoredAt: 1000},
			"/ajax/discovery/artworks?mode=all&offset=2": {Payload: []byte(`{"body":{"ids":[3]}}`), StoredAt: 2000},
		},
		Recency: []string{"/ajax/discovery/artworks?mode=all", "/ajax/discovery/artworks?mode=all&offset=2"},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		c := New(0, compress)
		s, err := c.Encode(sampleBlob())
		if err != nil {
			t.Fatal(err)
		}
		if compress != strings.HasPrefix(s, snappyPrefix) {
			t.Fatalf("compress=%v but encoded as %q", compress, s)
		}
		b, err := c.Decode(s)
		if err != nil {
			t.Fatal(err)
		}
		if b.V != CurrentVersion {
			t.Fatalf("version is %d", b.V)
		}
		want := sampleBlob()
		if !reflect.DeepEqual(b.Recency, want.Recency) {
			t.Fatalf("recency is %v", b.Recency)
		}
		for id, e := range want.Entries {
			if got := b.Entries[id]; string(got.Payload) != string(e.Payload) || got.StoredAt != e.StoredAt {
				t.Fatalf("entry %s is %+v", id, got)
			}
		}
	}
}

func TestDecodeEmpty(t *testing.T) {
	b, err := New(0, false).Decode("")
	if err != nil || len(b.Entries) != 0 || len(b.Recency) != 0 || b.Entries == nil {
		t.Fatalf("empty input decoded to %+v, %v", b, err)
	}
}

func TestVersionBumpDiscards(t *testing.T) {
	s, err := New(2, false).Encode(sampleBlob())
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(3, false).Decode(s)
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("error is %v", err)
	}
	if len(b.Entries) != 0 || len(b.Recency) != 0 || b.V != 3 {
		t.Fatalf("blob is %+v", b)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, s := range []string{"{", "[1,2]", "null", `{"v":"two"}`, "snappy:***", "snappy:"} {
		b, err := New(0, false).Decode(s)
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("%q: error is %v", s, err)
		}
		if len(b.Entries) != 0 {
			t.Fatalf("%q: blob is %+v", s, b)
		}
	}
}

func TestMigrateLegacy(t *testing.T) {
	legacy := `{
		"/ajax/discovery/b": {"data": {"page": 2}, "timestamp": 200},
		"/ajax/discovery/a": {"data": {"page": 1}, "timestamp": 100},
		"/ajax/discovery/c": {"data": [3], "timestamp": 100},
		"broken": {"data": 1},
		"scalar": 5
	}`
	b, err := New(0, false).Decode(legacy)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"/ajax/discovery/a", "/ajax/discovery/c", "/ajax/discovery/b"}
	if !reflect.DeepEqual(b.Recency, want) {
		t.Fatalf("recency is %v", b.Recency)
	}
	if len(b.Entries) != 3 {
		t.Fatalf("entries are %+v", b.Entries)
	}
	if p := string(b.Entries["/ajax/discovery/b"].Payload); p != `{"page": 2}` {
		t.Fatalf("payload is %s", p)
	}
}

func TestNormalize(t *testing.T) {
	s := `{"v":2,"entries":{
		"a":{"payload":1,"storedAt":10},
		"b":{"payload":2,"storedAt":20},
		"c":{"payload":3,"storedAt":5}
	},"recency":["b","ghost","b","a"]}`
	b, err := New(0, false).Decode(s)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"c", "b", "a"}; !reflect.DeepEqual(b.Recency, want) {
		t.Fatalf("recency is %v", b.Recency)
	}
}

func TestValid(t *testing.T) {
	if !Valid([]byte(`{"a":1}`)) || !Valid([]byte(`[]`)) {
		t.Fatal("valid json rejected")
	}
	if Valid([]byte(``)) || Valid([]byte(`<html>`)) || Valid([]byte(`{"a":`)) {
		t.Fatal("invalid json accepted")
	}
}
