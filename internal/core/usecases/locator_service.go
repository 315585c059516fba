package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/pklocator/internal/core/domain"
	"github.com/samirrijal/pklocator/internal/core/ports"
	"github.com/samirrijal/pklocator/internal/pkg/metrics"
)

// LocatorConfig tunes the engine.
type LocatorConfig struct {
	DeviceID        string
	MarginDeg       float64
	ProximityMeters float64
	Resolution      Resolution
	Cache           PointCacheConfig
	NormalInterval  time.Duration
	FastInterval    time.Duration
	HighSpeedKmh    float64
}

// LocatorService is the PK locator engine. It owns the line index, the point
// cache, the correction overlay, the matcher, the speed estimator and the
// sample rate controller, and exposes the latest snapshot.
type LocatorService struct {
	indexSrc       ports.LineIndexSource
	correctionsSrc ports.CorrectionSource
	publisher      ports.SnapshotPublisher
	cfg            LocatorConfig

	cache     *PointCache
	estimator *SpeedEstimator
	rate      *SampleRateController

	mu      sync.Mutex
	index   *LineIndex
	overlay *CorrectionOverlay
	matcher *Matcher
	seq     uint64
	cancel  context.CancelFunc
	snap    domain.Snapshot
}

// NewLocatorService creates the engine. publisher may be nil.
func NewLocatorService(
	indexSrc ports.LineIndexSource,
	points ports.LinePointSource,
	corrections ports.CorrectionSource,
	publisher ports.SnapshotPublisher,
	cfg LocatorConfig,
) *LocatorService {
	if cfg.Resolution == "" {
		cfg.Resolution = ResolutionNearest
	}
	rate := NewSampleRateController(cfg.NormalInterval, cfg.FastInterval, cfg.HighSpeedKmh)
	return &LocatorService{
		indexSrc:       indexSrc,
		correctionsSrc: corrections,
		publisher:      publisher,
		cfg:            cfg,
		cache:          NewPointCache(points, cfg.Cache),
		estimator:      NewSpeedEstimator(),
		rate:           rate,
		snap: domain.Snapshot{
			DeviceID:      cfg.DeviceID,
			AccuracyLevel: domain.AccuracyUnknown,
			Status:        domain.StatusStarting,
			IntervalMS:    rate.DesiredInterval(0).Milliseconds(),
		},
	}
}

// Bootstrap loads the line index and the corrections. A missing index is
// fatal; missing corrections leave the overlay empty.
func (s *LocatorService) Bootstrap(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "LocatorService.Bootstrap")
	defer span.End()

	entries, err := s.indexSrc.LoadIndex(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: load line index: %w", ErrBootstrap, err)
	}

	var rules []domain.CorrectionRule
	if s.correctionsSrc != nil {
		rules, err = s.correctionsSrc.LoadCorrections(ctx)
		if err != nil {
			slog.Warn("corrections unavailable, continuing without", "error", err)
			rules = nil
		}
	}

	index := NewLineIndex(entries, s.cfg.MarginDeg)
	overlay := NewCorrectionOverlay(rules)
	matcher := NewMatcher(index, s.cache, overlay, s.cfg.ProximityMeters, s.cfg.Resolution)

	s.mu.Lock()
	s.index, s.overlay, s.matcher = index, overlay, matcher
	s.mu.Unlock()

	span.SetAttributes(attribute.Int("lines", index.Len()), attribute.Int("corrections", overlay.Len()))
	slog.Info("locator bootstrapped", "lines", index.Len(), "corrections", overlay.Len())
	return nil
}

// Ready reports whether Bootstrap succeeded.
func (s *LocatorService) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matcher != nil
}

// Process runs one sample through the engine. Starting a sample cancels the
// one in flight; a sample that finishes after a newer one started returns
// ErrSuperseded and leaves the snapshot untouched.
func (s *LocatorService) Process(ctx context.Context, sample domain.LocationSample) (*domain.Snapshot, error) {
	s.mu.Lock()
	matcher := s.matcher
	if matcher == nil {
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	s.seq++
	seq := s.seq
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	ctx, span := tracer.Start(ctx, "LocatorService.Process")
	span.SetAttributes(attribute.Int64("sequence", int64(seq)))
	defer span.End()

	kmh, known := s.estimator.Estimate(sample)

	start := time.Now()
	located, err := matcher.Locate(ctx, sample.Latitude, sample.Longitude)
	metrics.LocateDuration.Observe(time.Since(start).Seconds())

	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		metrics.FixesSuperseded.Inc()
		return nil, ErrSuperseded
	}
	s.cancel = nil
	if err != nil {
		s.mu.Unlock()
		metrics.FixesProcessed.WithLabelValues("error").Inc()
		span.RecordError(err)
		return nil, fmt.Errorf("locate: %w", err)
	}

	deviceID := sample.DeviceID
	if deviceID == "" {
		deviceID = s.cfg.DeviceID
	}
	s.snap = domain.Snapshot{
		DeviceID:      deviceID,
		Sequence:      seq,
		Located:       located,
		SpeedKmh:      kmh,
		SpeedKnown:    known,
		Accuracy:      sample.Accuracy,
		AccuracyLevel: domain.ClassifyAccuracy(sample.Accuracy),
		Status:        domain.StatusActive,
		IntervalMS:    s.rate.DesiredInterval(kmh).Milliseconds(),
		UpdatedAt:     time.Now().UTC(),
	}
	snap := s.snap
	s.mu.Unlock()

	if located == nil {
		metrics.FixesProcessed.WithLabelValues("unlocated").Inc()
	} else {
		metrics.FixesProcessed.WithLabelValues("located").Inc()
		span.SetAttributes(attribute.String("line", located.Line), attribute.Float64("pk", located.PK))
	}

	s.publish(ctx, &snap)
	return &snap, nil
}

// Locate answers a one-off query without touching speed, sequence or snapshot.
func (s *LocatorService) Locate(ctx context.Context, lat, lon float64) (*domain.LocatedPK, error) {
	s.mu.Lock()
	matcher := s.matcher
	s.mu.Unlock()
	if matcher == nil {
		return nil, ErrNotReady
	}

	ctx, span := tracer.Start(ctx, "LocatorService.Locate")
	defer span.End()
	return matcher.Locate(ctx, lat, lon)
}

// SetStatus records the location feed status and publishes the snapshot.
func (s *LocatorService) SetStatus(ctx context.Context, status domain.FixStatus) {
	s.mu.Lock()
	if s.snap.Status == status {
		s.mu.Unlock()
		return
	}
	s.snap.Status = status
	s.snap.UpdatedAt = time.Now().UTC()
	snap := s.snap
	s.mu.Unlock()

	s.publish(ctx, &snap)
}

// Snapshot returns a copy of the latest state.
func (s *LocatorService) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// ResetMotion drops the speed baseline so the next fix after a gap in the
// feed does not produce a speed across the gap.
func (s *LocatorService) ResetMotion() {
	s.estimator.Reset()
}

// DesiredInterval returns the sampling interval for a speed.
func (s *LocatorService) DesiredInterval(kmh float64) time.Duration {
	return s.rate.DesiredInterval(kmh)
}

// Index returns the loaded line index, nil before Bootstrap.
func (s *LocatorService) Index() *LineIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Corrections returns the loaded overlay, nil before Bootstrap.
func (s *LocatorService) Corrections() *CorrectionOverlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlay
}

func (s *LocatorService) Cache() *PointCache { return s.cache }

func (s *LocatorService) publish(ctx context.Context, snap *domain.Snapshot) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSnapshot(context.WithoutCancel(ctx), snap); err != nil {
		slog.Warn("publish snapshot failed", "error", err)
	}
}
