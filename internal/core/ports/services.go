package ports

import (
	"context"
	"time"

	"github.com/samirrijal/pklocator/internal/core/domain"
)

// SnapshotPublisher publishes engine snapshots to a message broker.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snap *domain.Snapshot) error
}

// LocationSink receives what a location source delivers.
type LocationSink interface {
	OnSample(ctx context.Context, sample domain.LocationSample)
	OnError(ctx context.Context, err *domain.LocationError)
}

// LocationSource delivers GPS fixes until stopped.
type LocationSource interface {
	Start(ctx context.Context, sink LocationSink) error
	Stop() error
}

// CadenceController is implemented by sources that can change how often
// they deliver samples.
type CadenceController interface {
	SetInterval(ctx context.Context, interval time.Duration) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
