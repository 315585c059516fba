package usecases

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/samirrijal/pklocator/internal/core/domain"
	"github.com/samirrijal/pklocator/internal/core/ports"
	"github.com/samirrijal/pklocator/internal/pkg/dataset"
	"github.com/samirrijal/pklocator/internal/pkg/metrics"
)

// CachedPointSource puts a shared cache (Valkey) in front of a point source
// so that several locator processes fetch each line from the origin once.
type CachedPointSource struct {
	origin ports.LinePointSource
	cache  ports.CacheService
	ttl    time.Duration
}

// NewCachedPointSource wraps origin. A nil cache passes every call through.
func NewCachedPointSource(origin ports.LinePointSource, cache ports.CacheService, ttl time.Duration) *CachedPointSource {
	if ttl <= 0 {
		ttl = DefaultCacheExpiry
	}
	return &CachedPointSource{origin: origin, cache: cache, ttl: ttl}
}

// PointsKey is the shared cache key for a line.
func PointsKey(code string) string {
	return "pk:line:" + code
}

// LoadLinePoints implements ports.LinePointSource.
func (s *CachedPointSource) LoadLinePoints(ctx context.Context, code string) ([]domain.PKPoint, error) {
	key := PointsKey(code)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			points, err := dataset.DecodePoints(bytes.NewReader(data))
			if err == nil {
				metrics.CacheHits.WithLabelValues("shared").Inc()
				return points, nil
			}
			slog.Warn("discarding invalid shared cache entry", "line", code, "error", err)
		}
		metrics.CacheMisses.WithLabelValues("shared").Inc()
	}

	points, err := s.origin.LoadLinePoints(ctx, code)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(points); err == nil {
			if err := s.cache.Set(ctx, key, data, int(s.ttl.Seconds())); err != nil {
				slog.Debug("shared cache write failed", "line", code, "error", err)
			}
		}
	}
	return points, nil
}
