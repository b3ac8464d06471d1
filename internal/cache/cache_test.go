package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/pagebase/core/internal/model"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := New()
	c.Configure(model.ProjectSettings{
		CacheEnabled: true,
		CacheURL:     "redis://" + mr.Addr(),
		TTLData:      60,
		TTLCount:     300,
	})
	return c, mr
}

func TestSetGetMemoryHit(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	c.Set(ctx, "k1", map[string]any{"a": 1}, time.Minute)

	var out map[string]any
	if !c.Get(ctx, "k1", &out) {
		t.Fatalf("expected hit")
	}
	if out["a"].(float64) != 1 {
		t.Fatalf("unexpected value: %v", out)
	}
}

func TestGetMissReturnsFalse(t *testing.T) {
	c, _ := newTestCache(t)
	var out map[string]any
	if c.Get(context.Background(), "absent", &out) {
		t.Fatalf("expected miss")
	}
}

func TestPurgeRemovesMatchingKeys(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	c.Set(ctx, "ds1:institutions:abc", 1, time.Minute)
	c.Set(ctx, "ds1:institutions:def", 2, time.Minute)
	c.Set(ctx, "ds1:countries:xyz", 3, time.Minute)

	c.Purge(ctx, "ds1", "institutions")

	var out int
	if c.Get(ctx, "ds1:institutions:abc", &out) {
		t.Fatalf("expected institutions key purged")
	}
	if !c.Get(ctx, "ds1:countries:xyz", &out) {
		t.Fatalf("expected countries key untouched")
	}
}

func TestKeyIsDeterministic(t *testing.T) {
	a := Key("url", "t", 10, 0, []string{"x"}, []string{"c"}, "asc")
	b := Key("url", "t", 10, 0, []string{"x"}, []string{"c"}, "asc")
	if a != b {
		t.Fatalf("expected deterministic key, got %s vs %s", a, b)
	}
	c := Key("url", "t", 10, 0, []string{"y"}, []string{"c"}, "asc")
	if a == c {
		t.Fatalf("expected different where to change the key")
	}
}

func TestTestBackendDisabled(t *testing.T) {
	c := New()
	if got := c.TestBackend(context.Background(), model.ProjectSettings{CacheEnabled: false}); got != TestDisabled {
		t.Fatalf("expected disabled, got %s", got)
	}
}

func TestTestBackendOK(t *testing.T) {
	c, mr := newTestCache(t)
	got := c.TestBackend(context.Background(), model.ProjectSettings{
		CacheEnabled: true,
		CacheURL:     "redis://" + mr.Addr(),
		CacheType:    model.CacheSelfHosted,
	})
	if got != TestOK {
		t.Fatalf("expected ok, got %s", got)
	}
}
