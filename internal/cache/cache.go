// Package cache implements the two-tier hot-path cache of spec.md §4.H: an
// in-process memory tier backed by an external KV tier (Redis-compatible,
// via redis/go-redis/v9), used for adapter reads/counts and for the publish
// compiler's icon bodies. Cache failures always fail open.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pagebase/core/internal/metrics"
	"github.com/pagebase/core/internal/model"
)

const (
	DefaultDataTTL  = 60 * time.Second
	DefaultCountTTL = 300 * time.Second
	pingTimeout     = 10 * time.Second
)

// entry is one in-process memory-tier slot.
type entry struct {
	value   []byte
	expires time.Time
}

// Cache is the process-wide two-tier cache. The external tier is optional —
// when disabled or unreachable, the cache degrades to memory-only, and a
// memory miss simply means "do the work uncached".
type Cache struct {
	mu       sync.Mutex
	mem      map[string]entry
	rdb      *redis.Client
	enabled  bool
	dataTTL  time.Duration
	countTTL time.Duration
}

func New() *Cache {
	return &Cache{
		mem:      make(map[string]entry),
		dataTTL:  DefaultDataTTL,
		countTTL: DefaultCountTTL,
	}
}

// Configure (re)builds the external tier from ProjectSettings, per spec.md
// §4.H "persisted and loaded once at startup"; it is also called whenever
// settings are written, since the in-memory settings copy invalidates on
// write (spec.md §5).
func (c *Cache) Configure(s model.ProjectSettings) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rdb != nil {
		_ = c.rdb.Close()
		c.rdb = nil
	}
	c.enabled = s.CacheEnabled
	if s.TTLData > 0 {
		c.dataTTL = time.Duration(s.TTLData) * time.Second
	}
	if s.TTLCount > 0 {
		c.countTTL = time.Duration(s.TTLCount) * time.Second
	}
	if !s.CacheEnabled || s.CacheURL == "" {
		return
	}
	opts, err := redis.ParseURL(s.CacheURL)
	if err != nil {
		opts = &redis.Options{Addr: s.CacheURL}
	}
	if s.CacheToken != "" {
		opts.Password = s.CacheToken
	}
	c.rdb = redis.NewClient(opts)
}

// DataTTL and CountTTL expose the settings-driven TTLs for adapter/cache
// callers that need to decide which to apply.
func (c *Cache) DataTTL() time.Duration  { c.mu.Lock(); defer c.mu.Unlock(); return c.dataTTL }
func (c *Cache) CountTTL() time.Duration { c.mu.Lock(); defer c.mu.Unlock(); return c.countTTL }

// Key builds the md5 cache key described in spec.md §4.H.
func Key(datasourceURL, table string, limit, offset int, where, cols any, order string) string {
	whereJSON, _ := json.Marshal(where)
	colsJSON, _ := json.Marshal(cols)
	raw := fmt.Sprintf("%s:%s:%d:%d:%s:%s:%s", datasourceURL, table, limit, offset, whereJSON, colsJSON, order)
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Get reads key, checking memory first, then the external tier (populating
// memory on an external hit). A total miss or any error returns ok=false.
func (c *Cache) Get(ctx context.Context, key string, out any) bool {
	c.mu.Lock()
	e, ok := c.mem[key]
	c.mu.Unlock()
	if ok {
		if time.Now().Before(e.expires) {
			hit := json.Unmarshal(e.value, out) == nil
			metrics.CacheHits.WithLabelValues("memory", outcomeLabel(hit)).Inc()
			return hit
		}
		c.mu.Lock()
		delete(c.mem, key)
		c.mu.Unlock()
	}

	if !c.enabled || c.rdb == nil {
		metrics.CacheHits.WithLabelValues("memory", "miss").Inc()
		return false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		metrics.CacheHits.WithLabelValues("external", "miss").Inc()
		return false // CacheMiss / CacheFailure never surface, per spec.md §7
	}
	if json.Unmarshal(raw, out) != nil {
		metrics.CacheHits.WithLabelValues("external", "miss").Inc()
		return false
	}
	c.mu.Lock()
	c.mem[key] = entry{value: raw, expires: time.Now().Add(c.dataTTL)}
	c.mu.Unlock()
	metrics.CacheHits.WithLabelValues("external", "hit").Inc()
	return true
}

func outcomeLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

// Set writes key to both tiers with the given TTL. Errors from the external
// tier are swallowed; the memory write always succeeds.
func (c *Cache) Set(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.mem[key] = entry{value: raw, expires: time.Now().Add(ttl)}
	rdb := c.rdb
	enabled := c.enabled
	c.mu.Unlock()

	if enabled && rdb != nil {
		_ = rdb.Set(ctx, key, raw, ttl).Err()
	}
}

// Purge removes every key matching "{prefix}:{table}:*" in both tiers,
// called after upsert_record/delete_record per spec.md §4.H.
func (c *Cache) Purge(ctx context.Context, prefix, table string) {
	pattern := prefix + ":" + table + ":"

	c.mu.Lock()
	for k := range c.mem {
		if strings.HasPrefix(k, pattern) {
			delete(c.mem, k)
		}
	}
	rdb := c.rdb
	enabled := c.enabled
	c.mu.Unlock()

	if !enabled || rdb == nil {
		return
	}
	iter := rdb.Scan(ctx, 0, pattern+"*", 0).Iterator()
	for iter.Next(ctx) {
		_ = rdb.Del(ctx, iter.Val()).Err()
	}
}

// TestResultKind classifies the outcome of TestBackend.
type TestResultKind string

const (
	TestOK         TestResultKind = "ok"
	TestUnreachable TestResultKind = "unreachable"
	TestAuthFailed TestResultKind = "auth_failed"
	TestDisabled   TestResultKind = "disabled"
)

// TestBackend pings the configured external tier — over the Upstash REST
// API (POST ["PING"]) when s.CacheType is upstash, otherwise a plain TCP
// RESP PING — and returns a classified result, per spec.md §4.H.
func (c *Cache) TestBackend(ctx context.Context, s model.ProjectSettings) TestResultKind {
	if !s.CacheEnabled || s.CacheURL == "" {
		return TestDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if s.CacheType == model.CacheUpstash {
		return testUpstashREST(ctx, s.CacheURL, s.CacheToken)
	}

	opts, err := redis.ParseURL(s.CacheURL)
	if err != nil {
		opts = &redis.Options{Addr: s.CacheURL}
	}
	if s.CacheToken != "" {
		opts.Password = s.CacheToken
	}
	client := redis.NewClient(opts)
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "noauth") || strings.Contains(strings.ToLower(err.Error()), "auth") {
			return TestAuthFailed
		}
		return TestUnreachable
	}
	return TestOK
}
