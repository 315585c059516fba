package usecases

import (
	"sync"
	"time"

	"github.com/samirrijal/pklocator/internal/core/domain"
	"github.com/samirrijal/pklocator/internal/pkg/geospatial"
)

// MinSpeedElapsed is the shortest gap between fixes used for a finite
// difference estimate; shorter gaps keep the previous estimate.
const MinSpeedElapsed = time.Second

// SpeedEstimator derives km/h from native sensor speed or, failing that,
// from the distance between consecutive fixes.
type SpeedEstimator struct {
	mu       sync.Mutex
	hasPrev  bool
	prev     domain.GeoPoint
	prevTime time.Time
	kmh      float64
	known    bool
}

func NewSpeedEstimator() *SpeedEstimator {
	return &SpeedEstimator{}
}

// Estimate returns the current speed in km/h and whether any estimate exists.
func (e *SpeedEstimator) Estimate(s domain.LocationSample) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s.NativeSpeed != nil && *s.NativeSpeed >= 0 {
		e.kmh, e.known = *s.NativeSpeed*3.6, true
		return e.kmh, e.known
	}

	if !e.hasPrev {
		e.prev, e.prevTime, e.hasPrev = s.Point(), s.Timestamp, true
		return e.kmh, e.known
	}

	elapsed := s.Timestamp.Sub(e.prevTime)
	if elapsed < MinSpeedElapsed {
		return e.kmh, e.known
	}

	meters := geospatial.Haversine(e.prev.Lat, e.prev.Lon, s.Latitude, s.Longitude)
	e.kmh, e.known = meters/elapsed.Seconds()*3.6, true
	e.prev, e.prevTime = s.Point(), s.Timestamp
	return e.kmh, e.known
}

// Reset forgets the baseline and the last estimate.
func (e *SpeedEstimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hasPrev, e.known, e.kmh = false, false, 0
	e.prev, e.prevTime = domain.GeoPoint{}, time.Time{}
}
