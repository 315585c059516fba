package usecases_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/samirrijal/pklocator/internal/core/domain"
	"github.com/samirrijal/pklocator/internal/core/ports"
)

var errUnavailable = errors.New("unavailable")

// --- Mock dataset sources ---

type mockIndexSource struct {
	loadIndexFn func(ctx context.Context) ([]domain.LineIndexEntry, error)
}

func (m *mockIndexSource) LoadIndex(ctx context.Context) ([]domain.LineIndexEntry, error) {
	if m.loadIndexFn != nil {
		return m.loadIndexFn(ctx)
	}
	return nil, nil
}

type mockCorrectionSource struct {
	loadCorrectionsFn func(ctx context.Context) ([]domain.CorrectionRule, error)
}

func (m *mockCorrectionSource) LoadCorrections(ctx context.Context) ([]domain.CorrectionRule, error) {
	if m.loadCorrectionsFn != nil {
		return m.loadCorrectionsFn(ctx)
	}
	return nil, nil
}

type mockPointSource struct {
	mu    sync.Mutex
	calls map[string]int

	loadFn func(ctx context.Context, code string) ([]domain.PKPoint, error)
}

func (m *mockPointSource) LoadLinePoints(ctx context.Context, code string) ([]domain.PKPoint, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[code]++
	m.mu.Unlock()

	if m.loadFn != nil {
		return m.loadFn(ctx, code)
	}
	return nil, errUnavailable
}

func (m *mockPointSource) Calls(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[code]
}

// staticPoints serves fixed point sets and fails for unknown lines.
func staticPoints(lines map[string][]domain.PKPoint) *mockPointSource {
	return &mockPointSource{
		loadFn: func(ctx context.Context, code string) ([]domain.PKPoint, error) {
			pts, ok := lines[code]
			if !ok {
				return nil, errUnavailable
			}
			return pts, nil
		},
	}
}

// --- Mock publisher ---

type mockPublisher struct {
	mu        sync.Mutex
	snapshots []domain.Snapshot
	err       error
}

func (m *mockPublisher) PublishSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, *snap)
	return m.err
}

func (m *mockPublisher) Published() []domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Snapshot, len(m.snapshots))
	copy(out, m.snapshots)
	return out
}

// --- Mock cache service ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]int
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte), ttls: make(map[string]int)}
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, errors.New("cache miss")
	}
	return v, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttlSeconds
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// --- Mock location source ---

type mockLocationSource struct {
	mu        sync.Mutex
	sink      ports.LocationSink
	starts    int
	stops     int
	intervals []time.Duration
	startErr  error
}

func (m *mockLocationSource) Start(ctx context.Context, sink ports.LocationSink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	m.sink = sink
	return m.startErr
}

func (m *mockLocationSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	return nil
}

func (m *mockLocationSource) SetInterval(ctx context.Context, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intervals = append(m.intervals, d)
	return nil
}

func (m *mockLocationSource) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

func (m *mockLocationSource) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

func (m *mockLocationSource) Intervals() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.intervals...)
}

// --- Fake clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func ptr(v float64) *float64 { return &v }
