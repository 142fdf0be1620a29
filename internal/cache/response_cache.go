// Package cache implements the response cache (spec.md §4.1): a SHA-256
// canonical-JSON fingerprint over deterministic request fields, backed by
// Redis, with metrics and a documented degrade-to-no-cache behavior.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
)

// KeyParams are the fields that participate in the cache fingerprint.
// Non-deterministic fields (timeout, max_retries, latency_ms, created_at)
// are deliberately absent, per spec.md §3.
type KeyParams struct {
	Prompt           string
	SystemPrompt     string
	Model            string
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	StopSequences    []string
}

// Key computes the deterministic SHA-256 fingerprint for p, prefixed with
// prefix. Sorted-key JSON serialization and a fixed field order on the
// struct make the hash stable under field reordering at call sites.
func Key(prefix string, p KeyParams) string {
	sorted := append([]string(nil), p.StopSequences...)
	sort.Strings(sorted)

	canonical := map[string]any{
		"prompt":            p.Prompt,
		"system_prompt":     p.SystemPrompt,
		"model":             p.Model,
		"temperature":       p.Temperature,
		"max_tokens":        p.MaxTokens,
		"top_p":             p.TopP,
		"frequency_penalty": p.FrequencyPenalty,
		"presence_penalty":  p.PresencePenalty,
		"stop_sequences":    sorted,
	}
	data, _ := json.Marshal(canonical) // map keys are marshaled in sorted order by encoding/json
	sum := sha256.Sum256(data)
	return prefix + hex.EncodeToString(sum[:])
}

// Metrics tracks cache hit/miss/error counters (spec.md §4.1).
type Metrics struct {
	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

func (m *Metrics) Snapshot() (hits, misses, errors int64, total int64, hitRate float64) {
	hits = m.hits.Load()
	misses = m.misses.Load()
	errors = m.errors.Load()
	total = hits + misses
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return
}

// ResponseCache wraps a Redis client. Per spec.md §9's open question, a
// connection failure at construction does NOT fail construction: the
// client field is left set to a client that will itself error on first use,
// and every method below degrades any cache I/O error to a miss rather than
// propagating. This mirrors the "falls through to self.redis = None... all
// methods guard on None" behavior observed in the original implementation.
type ResponseCache struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	logger  *slog.Logger
	metrics Metrics
}

// New constructs a ResponseCache. If pinging Redis fails, construction still
// succeeds (degraded): the returned cache is safe to call, every method
// treats failures as cache errors that degrade to a miss, and health()
// reports the outage.
func New(addr, password string, db int, prefix string, ttl time.Duration, logger *slog.Logger) *ResponseCache {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("response cache: redis ping failed, continuing in degraded mode", "error", err)
	}

	return &ResponseCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// Get returns a cached AIResponse, or (zero, false) on miss or any error.
// Errors are counted and never propagated (spec.md §4.1, §7 CacheError).
func (c *ResponseCache) Get(ctx context.Context, params KeyParams) (domain.AIResponse, bool) {
	if c == nil || c.client == nil {
		return domain.AIResponse{}, false
	}
	key := Key(c.prefix, params)

	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.metrics.errors.Add(1)
			c.logger.Warn("response cache get failed", "error", err)
		}
		c.metrics.misses.Add(1)
		return domain.AIResponse{}, false
	}

	var resp domain.AIResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		c.metrics.errors.Add(1)
		c.logger.Warn("response cache unmarshal failed", "error", err)
		c.metrics.misses.Add(1)
		return domain.AIResponse{}, false
	}

	c.metrics.hits.Add(1)
	return resp, true
}

// Set stores resp under the fingerprint for params. ttl of zero uses the
// cache's configured default. Errors degrade silently, counted as errors.
func (c *ResponseCache) Set(ctx context.Context, params KeyParams, resp domain.AIResponse, ttl time.Duration) bool {
	if c == nil || c.client == nil {
		return false
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	key := Key(c.prefix, params)

	data, err := json.Marshal(resp)
	if err != nil {
		c.metrics.errors.Add(1)
		return false
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.metrics.errors.Add(1)
		c.logger.Warn("response cache set failed", "error", err)
		return false
	}
	return true
}

// Invalidate deletes the single entry for params.
func (c *ResponseCache) Invalidate(ctx context.Context, params KeyParams) bool {
	if c == nil || c.client == nil {
		return false
	}
	key := Key(c.prefix, params)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.metrics.errors.Add(1)
		return false
	}
	return true
}

// ClearAll deletes every key under this cache's prefix and returns the
// count removed.
func (c *ResponseCache) ClearAll(ctx context.Context) int {
	if c == nil || c.client == nil {
		return 0
	}
	var removed int
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err == nil {
			removed++
		}
	}
	return removed
}

// HealthStatus is the shape returned by Health().
type HealthStatus struct {
	Status string
	RTTMS  int64
}

// Health pings Redis and reports round-trip time; never panics if the
// client is nil or disconnected.
func (c *ResponseCache) Health(ctx context.Context) HealthStatus {
	if c == nil || c.client == nil {
		return HealthStatus{Status: "unavailable"}
	}
	start := time.Now()
	if err := c.client.Ping(ctx).Err(); err != nil {
		return HealthStatus{Status: "unavailable"}
	}
	return HealthStatus{Status: "ok", RTTMS: time.Since(start).Milliseconds()}
}

// MetricsSnapshot returns a snapshot of hit/miss/error counters.
func (c *ResponseCache) MetricsSnapshot() (hits, misses, errors, total int64, hitRate float64) {
	if c == nil {
		return 0, 0, 0, 0, 0
	}
	return c.metrics.Snapshot()
}

// Close releases the underlying Redis connection.
func (c *ResponseCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
