package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveLookup(t *testing.T) {
	before := testutil.ToFloat64(CacheLookups.WithLabelValues("hit"))
	ObserveLookup("hit")
	if after := testutil.ToFloat64(CacheLookups.WithLabelValues("hit")); after != before+1 {
		t.Fatalf("hit counter is %v, expected %v", after, before+1)
	}
}

func TestObserveEvictionsIgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(CacheEvictions.WithLabelValues("capacity"))
	ObserveEvictions("capacity", 0)
	ObserveEvictions("capacity", 3)
	if after := testutil.ToFloat64(CacheEvictions.WithLabelValues("capacity")); after != before+3 {
		t.Fatalf("eviction counter is %v, expected %v", after, before+3)
	}
}

func TestObserveCacheSize(t *testing.T) {
	ObserveCacheSize(7)
	if v := testutil.ToFloat64(CacheEntries); v != 7 {
		t.Fatalf("entries gauge is %v", v)
	}
}
