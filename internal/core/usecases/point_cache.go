package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/pklocator/internal/core/domain"
	"github.com/samirrijal/pklocator/internal/core/ports"
	"github.com/samirrijal/pklocator/internal/pkg/metrics"
)

const (
	DefaultMaxCacheSize = 50
	DefaultCacheExpiry  = time.Hour
	DefaultRetryAfter   = 30 * time.Second
	DefaultLoadTimeout  = 10 * time.Second
)

var tracer = otel.Tracer("github.com/samirrijal/pklocator/internal/core/usecases")

// PointCacheConfig bounds the line point cache.
type PointCacheConfig struct {
	MaxSize int
	// Expiry is the age after which an entry is reloaded. Zero or less
	// disables age checks.
	Expiry time.Duration
	// RetryAfter suppresses reloads of a line whose last load failed.
	// Zero or less retries on every Get.
	RetryAfter  time.Duration
	LoadTimeout time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

type cacheEntry struct {
	points     []domain.PKPoint
	lastAccess time.Time
	loadedAt   time.Time
	touch      uint64
}

// PointCache is a size-bounded LRU cache of per-line point sets, loaded on
// demand. At most one load per line is in flight at any time.
type PointCache struct {
	source ports.LinePointSource
	cfg    PointCacheConfig

	group singleflight.Group

	mu       sync.Mutex
	entries  map[string]*cacheEntry
	failedAt map[string]time.Time
	clock    uint64
	stats    domain.CacheStats
}

// NewPointCache creates a cache loading through source.
func NewPointCache(source ports.LinePointSource, cfg PointCacheConfig) *PointCache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxCacheSize
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &PointCache{
		source:   source,
		cfg:      cfg,
		entries:  make(map[string]*cacheEntry),
		failedAt: make(map[string]time.Time),
	}
}

// Get returns the points of a line, loading them on a miss. It reports false
// when the line could not be loaded or ctx ended first; in the latter case the
// load keeps running and still fills the cache.
func (c *PointCache) Get(ctx context.Context, code string) ([]domain.PKPoint, bool) {
	now := c.cfg.Now()

	c.mu.Lock()
	if e, ok := c.entries[code]; ok {
		if c.cfg.Expiry <= 0 || now.Sub(e.loadedAt) < c.cfg.Expiry {
			c.clock++
			e.lastAccess = now
			e.touch = c.clock
			c.stats.Hits++
			c.mu.Unlock()
			metrics.CacheHits.WithLabelValues("memory").Inc()
			return e.points, true
		}
		delete(c.entries, code)
		c.stats.Evictions++
		metrics.CacheEvictions.Inc()
		metrics.CacheSize.Set(float64(len(c.entries)))
	}
	c.stats.Misses++
	if at, ok := c.failedAt[code]; ok && c.cfg.RetryAfter > 0 && now.Sub(at) < c.cfg.RetryAfter {
		c.mu.Unlock()
		metrics.CacheMisses.WithLabelValues("memory").Inc()
		return nil, false
	}
	c.mu.Unlock()
	metrics.CacheMisses.WithLabelValues("memory").Inc()

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(code, func() (interface{}, error) {
		return c.load(loadCtx, code)
	})

	select {
	case <-ctx.Done():
		return nil, false
	case res := <-ch:
		if res.Err != nil {
			return nil, false
		}
		return res.Val.([]domain.PKPoint), true
	}
}

func (c *PointCache) load(ctx context.Context, code string) ([]domain.PKPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.LoadTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "PointCache.load")
	span.SetAttributes(attribute.String("line", code))
	defer span.End()

	start := time.Now()
	points, err := c.source.LoadLinePoints(ctx, code)
	metrics.LineLoadDuration.Observe(time.Since(start).Seconds())

	now := c.cfg.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.failedAt[code] = now
		c.stats.Failures++
		metrics.LineLoads.WithLabelValues("failure").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("line points unavailable", "line", code, "error", err)
		return nil, fmt.Errorf("load line %s: %w", code, err)
	}

	delete(c.failedAt, code)
	c.stats.Loads++
	metrics.LineLoads.WithLabelValues("success").Inc()
	c.insertLocked(code, points, now)
	span.SetAttributes(attribute.Int("points", len(points)))
	return points, nil
}

// insertLocked stores points, evicting the least recently used entry first
// when the cache is full.
func (c *PointCache) insertLocked(code string, points []domain.PKPoint, now time.Time) {
	if _, exists := c.entries[code]; !exists && len(c.entries) >= c.cfg.MaxSize {
		c.evictLRULocked()
	}
	c.clock++
	c.entries[code] = &cacheEntry{
		points:     points,
		lastAccess: now,
		loadedAt:   now,
		touch:      c.clock,
	}
	metrics.CacheSize.Set(float64(len(c.entries)))
}

func (c *PointCache) evictLRULocked() {
	var (
		oldest string
		victim *cacheEntry
	)
	for code, e := range c.entries {
		if victim == nil || e.lastAccess.Before(victim.lastAccess) ||
			(e.lastAccess.Equal(victim.lastAccess) && e.touch < victim.touch) {
			oldest, victim = code, e
		}
	}
	if victim == nil {
		return
	}
	delete(c.entries, oldest)
	c.stats.Evictions++
	metrics.CacheEvictions.Inc()
	slog.Debug("line points evicted", "line", oldest)
}

// Contains reports whether code is cached, without touching its recency.
func (c *PointCache) Contains(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[code]
	return ok
}

// Evict drops one line and forgets any failed load for it.
func (c *PointCache) Evict(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.failedAt, code)
	if _, ok := c.entries[code]; !ok {
		return false
	}
	delete(c.entries, code)
	c.stats.Evictions++
	metrics.CacheEvictions.Inc()
	metrics.CacheSize.Set(float64(len(c.entries)))
	return true
}

// Purge empties the cache and returns how many lines were dropped.
func (c *PointCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]*cacheEntry)
	c.failedAt = make(map[string]time.Time)
	metrics.CacheSize.Set(0)
	return n
}

// Warm loads the given lines and returns those that failed. Lines beyond the
// cache capacity push earlier ones out as usual.
func (c *PointCache) Warm(ctx context.Context, codes ...string) []string {
	var failed []string
	for _, code := range codes {
		if ctx.Err() != nil {
			failed = append(failed, code)
			continue
		}
		if _, ok := c.Get(ctx, code); !ok {
			failed = append(failed, code)
		}
	}
	return failed
}

// Stats returns counters and the cached lines, most recently used first.
func (c *PointCache) Stats() domain.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	type aged struct {
		code  string
		touch uint64
	}
	lines := make([]aged, 0, len(c.entries))
	for code, e := range c.entries {
		lines = append(lines, aged{code, e.touch})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].touch > lines[j].touch })

	s := c.stats
	s.Size = len(c.entries)
	s.Capacity = c.cfg.MaxSize
	s.Lines = make([]string, len(lines))
	for i, l := range lines {
		s.Lines[i] = l.code
	}
	return s
}
