package usecases

import (
	"context"
	"fmt"

	"github.com/samirrijal/pklocator/internal/core/domain"
	"github.com/samirrijal/pklocator/internal/pkg/geospatial"
	"github.com/samirrijal/pklocator/internal/pkg/metrics"
)

// DefaultProximityMeters is the distance under which the nearest marker is
// taken without comparing PK values.
const DefaultProximityMeters = 5.0

// Resolution selects how results from several candidate lines combine.
type Resolution string

const (
	// ResolutionNearest keeps the closest selection across all candidate lines.
	ResolutionNearest Resolution = "nearest"
	// ResolutionFirstUsable stops at the first candidate line with points.
	ResolutionFirstUsable Resolution = "first_usable"
)

// ParseResolution maps a configuration value to a Resolution. Empty means
// ResolutionNearest.
func ParseResolution(s string) (Resolution, error) {
	switch Resolution(s) {
	case "", ResolutionNearest:
		return ResolutionNearest, nil
	case ResolutionFirstUsable:
		return ResolutionFirstUsable, nil
	default:
		return "", fmt.Errorf("unknown resolution %q", s)
	}
}

// PointGetter returns the points of a line, or false when they are unavailable.
type PointGetter interface {
	Get(ctx context.Context, code string) ([]domain.PKPoint, bool)
}

// Candidate is a PK point together with its distance to the fix.
type Candidate struct {
	Point          domain.PKPoint
	DistanceMeters float64
}

// NearestTwo returns the closest and second closest points to (lat, lon) and
// how many of them exist (0, 1 or 2). Equal distances keep storage order.
func NearestTwo(lat, lon float64, points []domain.PKPoint) (first, second Candidate, n int) {
	for _, p := range points {
		c := Candidate{Point: p, DistanceMeters: geospatial.Haversine(lat, lon, p.Lat, p.Lon)}
		switch {
		case n == 0:
			first, n = c, 1
		case c.DistanceMeters < first.DistanceMeters:
			second, first = first, c
			n = 2
		case n == 1 || c.DistanceMeters < second.DistanceMeters:
			second, n = c, 2
		}
	}
	return first, second, n
}

// SelectMarker picks between the two nearest points: first wins outright when
// it lies strictly within proximity meters, otherwise the lower PK wins, with
// first kept on equal PKs.
func SelectMarker(first, second Candidate, proximity float64) Candidate {
	if first.DistanceMeters < proximity {
		return first
	}
	if second.Point.PK < first.Point.PK {
		return second
	}
	return first
}

// ResolveNearest keeps whichever of best and next is closer; best wins ties.
func ResolveNearest(best, next *domain.LocatedPK) (winner *domain.LocatedPK, done bool) {
	if best == nil || next.DistanceMeters < best.DistanceMeters {
		return next, false
	}
	return best, false
}

// ResolveFirstUsable accepts the first line that produced a selection.
func ResolveFirstUsable(best, next *domain.LocatedPK) (winner *domain.LocatedPK, done bool) {
	if best != nil {
		return best, true
	}
	return next, true
}

// Matcher locates the nearest kilometer marker for a fix.
type Matcher struct {
	index     *LineIndex
	points    PointGetter
	overlay   *CorrectionOverlay
	proximity float64
	resolve   func(best, next *domain.LocatedPK) (*domain.LocatedPK, bool)
}

// NewMatcher wires a matcher. A non-positive proximity falls back to
// DefaultProximityMeters.
func NewMatcher(index *LineIndex, points PointGetter, overlay *CorrectionOverlay, proximity float64, resolution Resolution) *Matcher {
	if proximity <= 0 {
		proximity = DefaultProximityMeters
	}
	m := &Matcher{
		index:     index,
		points:    points,
		overlay:   overlay,
		proximity: proximity,
		resolve:   ResolveNearest,
	}
	if resolution == ResolutionFirstUsable {
		m.resolve = ResolveFirstUsable
	}
	return m
}

// Locate returns the located marker for (lat, lon), or nil when no candidate
// line has usable points. The only error is ctx's.
func (m *Matcher) Locate(ctx context.Context, lat, lon float64) (*domain.LocatedPK, error) {
	var best *domain.LocatedPK
	for _, line := range m.index.CandidatesNear(lat, lon) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		points, ok := m.points.Get(ctx, line.Code)
		if !ok {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			continue
		}

		located := m.selectOnLine(line.Code, lat, lon, points)
		if located == nil {
			continue
		}

		var done bool
		best, done = m.resolve(best, located)
		if done {
			break
		}
	}

	if best != nil && best.Corrected {
		metrics.CorrectionsApplied.WithLabelValues(best.Line).Inc()
	}
	return best, nil
}

func (m *Matcher) selectOnLine(code string, lat, lon float64, points []domain.PKPoint) *domain.LocatedPK {
	first, second, n := NearestTwo(lat, lon, points)
	if n == 0 {
		return nil
	}
	chosen := first
	if n == 2 {
		chosen = SelectMarker(first, second, m.proximity)
	}

	pk, delta, applied := m.overlay.Apply(code, chosen.Point.PK)
	return &domain.LocatedPK{
		PK:             pk,
		RawPK:          chosen.Point.PK,
		Line:           code,
		Lat:            chosen.Point.Lat,
		Lon:            chosen.Point.Lon,
		DistanceMeters: chosen.DistanceMeters,
		Corrected:      applied,
		Correction:     delta,
	}
}
