package usecases_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/pklocator/internal/core/domain"
	"github.com/samirrijal/pklocator/internal/core/usecases"
)

func startTracking(t *testing.T, cfg usecases.TrackingConfig) (*usecases.TrackingService, *usecases.LocatorService, *mockLocationSource, context.CancelFunc, <-chan error) {
	t.Helper()
	locator := newLocator(t, staticPoints(scenarioPoints), nil)
	src := &mockLocationSource{}
	svc := usecases.NewTrackingService(locator, src, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return src.Starts() == 1 }, time.Second, time.Millisecond)
	t.Cleanup(cancel)
	return svc, locator, src, cancel, done
}

func statusIs(locator *usecases.LocatorService, want domain.FixStatus) func() bool {
	return func() bool { return locator.Snapshot().Status == want }
}

func TestTrackingService_ProcessesSamples(t *testing.T) {
	svc, locator, src, _, _ := startTracking(t, usecases.TrackingConfig{})

	svc.OnSample(context.Background(), fix(48.1005, 2.1005, 0))

	require.Eventually(t, statusIs(locator, domain.StatusActive), time.Second, time.Millisecond)
	snap := locator.Snapshot()
	require.NotNil(t, snap.Located)
	assert.Equal(t, 10.0, snap.Located.PK)

	require.Eventually(t, func() bool { return len(src.Intervals()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, time.Second, src.Intervals()[0])
}

func TestTrackingService_CadenceFollowsSpeed(t *testing.T) {
	svc, locator, src, _, _ := startTracking(t, usecases.TrackingConfig{})

	slow := fix(48.1005, 2.1005, 0)
	slow.NativeSpeed = ptr(5)
	svc.OnSample(context.Background(), slow)
	require.Eventually(t, func() bool { return locator.Snapshot().Sequence == 1 }, time.Second, time.Millisecond)

	fast := fix(48.1005, 2.1005, time.Second)
	fast.NativeSpeed = ptr(30)
	svc.OnSample(context.Background(), fast)
	require.Eventually(t, func() bool { return len(src.Intervals()) == 2 }, time.Second, time.Millisecond)

	assert.Equal(t, []time.Duration{time.Second, 500 * time.Millisecond}, src.Intervals())
}

func TestTrackingService_MailboxKeepsNewest(t *testing.T) {
	locator := newLocator(t, staticPoints(scenarioPoints), nil)
	svc := usecases.NewTrackingService(locator, &mockLocationSource{}, usecases.TrackingConfig{})

	svc.OnSample(context.Background(), fix(1, 1, 0))
	svc.OnSample(context.Background(), fix(2, 2, time.Second))
	svc.OnSample(context.Background(), fix(48.1005, 2.1005, 2*time.Second))

	assert.Equal(t, uint64(2), svc.Superseded())
}

func TestTrackingService_TerminalErrorsSurfaceImmediately(t *testing.T) {
	svc, locator, src, _, _ := startTracking(t, usecases.TrackingConfig{})

	svc.OnError(context.Background(), &domain.LocationError{Code: domain.ErrCodePermissionDenied})
	require.Eventually(t, statusIs(locator, domain.StatusPermissionDenied), time.Second, time.Millisecond)

	svc.OnError(context.Background(), &domain.LocationError{Code: domain.ErrCodePositionUnavailable})
	require.Eventually(t, statusIs(locator, domain.StatusPositionUnavailable), time.Second, time.Millisecond)

	svc.OnError(context.Background(), &domain.LocationError{Code: domain.ErrCodeOther, Message: "boom"})
	require.Eventually(t, statusIs(locator, domain.StatusError), time.Second, time.Millisecond)

	assert.Equal(t, 1, src.Starts(), "non-timeout errors do not restart the source")
}

func TestTrackingService_TimeoutRetriesThenGivesUp(t *testing.T) {
	svc, locator, src, _, _ := startTracking(t, usecases.TrackingConfig{
		MaxTimeoutRetries: 2,
		RetryInitial:      time.Millisecond,
		RetryMax:          5 * time.Millisecond,
	})
	timeout := &domain.LocationError{Code: domain.ErrCodeTimeout}

	svc.OnError(context.Background(), timeout)
	require.Eventually(t, func() bool { return src.Starts() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, domain.StatusRetrying, locator.Snapshot().Status)

	svc.OnError(context.Background(), timeout)
	require.Eventually(t, func() bool { return src.Starts() == 3 }, time.Second, time.Millisecond)

	svc.OnError(context.Background(), timeout)
	require.Eventually(t, statusIs(locator, domain.StatusTimeout), time.Second, time.Millisecond)
	assert.Equal(t, 3, src.Starts())

	// A fresh fix clears the timeout state.
	svc.OnSample(context.Background(), fix(48.1005, 2.1005, 0))
	require.Eventually(t, statusIs(locator, domain.StatusActive), time.Second, time.Millisecond)

	svc.OnError(context.Background(), timeout)
	require.Eventually(t, func() bool { return src.Starts() == 4 }, time.Second, time.Millisecond)
}

func TestTrackingService_StopsOnCancel(t *testing.T) {
	_, locator, src, cancel, done := startTracking(t, usecases.TrackingConfig{})

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, domain.StatusStopped, locator.Snapshot().Status)
	assert.Equal(t, 1, src.Stops())
}

func TestTrackingService_StartFailure(t *testing.T) {
	locator := newLocator(t, staticPoints(scenarioPoints), nil)
	src := &mockLocationSource{startErr: errUnavailable}
	svc := usecases.NewTrackingService(locator, src, usecases.TrackingConfig{})

	err := svc.Run(context.Background())
	assert.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, domain.StatusError, locator.Snapshot().Status)
}

func TestTrackingService_RestartForgetsSpeedBaseline(t *testing.T) {
	svc, locator, src, _, _ := startTracking(t, usecases.TrackingConfig{
		MaxTimeoutRetries: 1,
		RetryInitial:      time.Millisecond,
		RetryMax:          time.Millisecond,
	})

	svc.OnSample(context.Background(), fix(48.10, 2.10, 0))
	require.Eventually(t, func() bool { return locator.Snapshot().Sequence == 1 }, time.Second, time.Millisecond)

	svc.OnError(context.Background(), &domain.LocationError{Code: domain.ErrCodeTimeout})
	require.Eventually(t, func() bool { return src.Starts() == 2 }, time.Second, time.Millisecond)

	// 1.1 km north ten seconds later would read as ~400 km/h across the gap.
	svc.OnSample(context.Background(), fix(48.11, 2.10, 10*time.Second))
	require.Eventually(t, func() bool { return locator.Snapshot().Sequence == 2 }, time.Second, time.Millisecond)

	snap := locator.Snapshot()
	assert.False(t, snap.SpeedKnown)
	assert.Zero(t, snap.SpeedKmh)
}
