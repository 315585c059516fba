package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/samirrijal/pklocator/internal/core/domain"
	"github.com/samirrijal/pklocator/internal/core/ports"
	"github.com/samirrijal/pklocator/internal/pkg/metrics"
)

const (
	DefaultMaxTimeoutRetries = 3
	DefaultRetryInitial      = time.Second
	DefaultRetryMax          = 30 * time.Second
)

// TrackingConfig tunes the tracking loop.
type TrackingConfig struct {
	MaxTimeoutRetries int
	RetryInitial      time.Duration
	RetryMax          time.Duration
}

// TrackingService feeds samples from a location source into the locator, one
// at a time, always the freshest. It turns source failures into snapshot
// status and restarts the source after timeouts.
type TrackingService struct {
	locator *LocatorService
	source  ports.LocationSource
	cfg     TrackingConfig

	mailbox chan domain.LocationSample
	errs    chan *domain.LocationError

	superseded atomic.Uint64
	interval   time.Duration
}

// NewTrackingService wires a source to the locator. A negative
// MaxTimeoutRetries is treated as zero.
func NewTrackingService(locator *LocatorService, source ports.LocationSource, cfg TrackingConfig) *TrackingService {
	if cfg.MaxTimeoutRetries < 0 {
		cfg.MaxTimeoutRetries = 0
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = DefaultRetryInitial
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = DefaultRetryMax
	}
	return &TrackingService{
		locator: locator,
		source:  source,
		cfg:     cfg,
		mailbox: make(chan domain.LocationSample, 1),
		errs:    make(chan *domain.LocationError, 16),
	}
}

// OnSample implements ports.LocationSink. A sample still waiting in the
// mailbox is replaced by the newer one.
func (t *TrackingService) OnSample(_ context.Context, sample domain.LocationSample) {
	for {
		select {
		case t.mailbox <- sample:
			return
		default:
		}
		select {
		case <-t.mailbox:
			t.superseded.Add(1)
			metrics.FixesSuperseded.Inc()
		default:
		}
	}
}

// OnError implements ports.LocationSink.
func (t *TrackingService) OnError(_ context.Context, err *domain.LocationError) {
	select {
	case t.errs <- err:
	default:
		slog.Warn("location error dropped, queue full", "code", err.Code)
	}
}

// Superseded returns how many samples were replaced before being processed.
func (t *TrackingService) Superseded() uint64 {
	return t.superseded.Load()
}

// Run drives the source until ctx is cancelled.
func (t *TrackingService) Run(ctx context.Context) error {
	t.locator.SetStatus(ctx, domain.StatusStarting)
	if err := t.source.Start(ctx, t); err != nil {
		t.locator.SetStatus(ctx, domain.StatusError)
		return fmt.Errorf("start location source: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.cfg.RetryInitial
	bo.MaxInterval = t.cfg.RetryMax
	bo.MaxElapsedTime = 0
	timeouts := 0

	for {
		select {
		case <-ctx.Done():
			if err := t.source.Stop(); err != nil {
				slog.Warn("stop location source", "error", err)
			}
			t.locator.SetStatus(context.WithoutCancel(ctx), domain.StatusStopped)
			return nil

		case sample := <-t.mailbox:
			timeouts = 0
			bo.Reset()
			t.handleSample(ctx, sample)

		case lerr := <-t.errs:
			metrics.LocationErrors.WithLabelValues(string(lerr.Code)).Inc()
			if lerr.Code != domain.ErrCodeTimeout {
				slog.Warn("location source failed", "code", lerr.Code, "message", lerr.Message)
				t.locator.SetStatus(ctx, lerr.Status())
				continue
			}

			timeouts++
			if timeouts > t.cfg.MaxTimeoutRetries {
				slog.Warn("location timeouts exhausted retries", "retries", t.cfg.MaxTimeoutRetries)
				t.locator.SetStatus(ctx, domain.StatusTimeout)
				continue
			}

			delay := bo.NextBackOff()
			slog.Info("location timeout, restarting source", "attempt", timeouts, "delay", delay)
			t.locator.SetStatus(ctx, domain.StatusRetrying)
			if err := t.restart(ctx, delay); err != nil {
				if ctx.Err() != nil {
					continue
				}
				slog.Error("restart location source", "error", err)
				t.locator.SetStatus(ctx, domain.StatusError)
			}
		}
	}
}

func (t *TrackingService) restart(ctx context.Context, delay time.Duration) error {
	if err := t.source.Stop(); err != nil {
		slog.Warn("stop location source", "error", err)
	}
	t.locator.ResetMotion()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	return t.source.Start(ctx, t)
}

func (t *TrackingService) handleSample(ctx context.Context, sample domain.LocationSample) {
	snap, err := t.locator.Process(ctx, sample)
	switch {
	case errors.Is(err, ErrSuperseded):
		return
	case err != nil:
		if ctx.Err() == nil {
			slog.Warn("process sample", "error", err)
		}
		return
	}

	interval := time.Duration(snap.IntervalMS) * time.Millisecond
	metrics.SampleInterval.Set(interval.Seconds())
	if interval == t.interval {
		return
	}
	cc, ok := t.source.(ports.CadenceController)
	if !ok {
		t.interval = interval
		return
	}
	if err := cc.SetInterval(ctx, interval); err != nil {
		slog.Warn("set sample interval", "interval", interval, "error", err)
		return
	}
	slog.Debug("sample interval changed", "interval", interval)
	t.interval = interval
}
