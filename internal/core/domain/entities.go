package domain

import (
	"time"
)

// LocationSample is a single GPS fix delivered by a location source.
type LocationSample struct {
	DeviceID    string    `json:"device_id,omitempty"`
	Latitude    float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude   float64   `json:"longitude" validate:"gte=-180,lte=180"`
	Accuracy    *float64  `json:"accuracy,omitempty" validate:"omitempty,gte=0"` // meters, nil when unknown
	NativeSpeed *float64  `json:"speed,omitempty"`    // m/s, nil when the sensor gives none
	Timestamp   time.Time `json:"timestamp"`
}

// Point returns the sample position.
func (s LocationSample) Point() GeoPoint {
	return GeoPoint{Lat: s.Latitude, Lon: s.Longitude}
}

// LineIndexEntry is the bounding box of one rail line's PK point set.
type LineIndexEntry struct {
	Code   string  `json:"code_ligne" validate:"required"`
	MinLat float64 `json:"minLat" validate:"gte=-90,lte=90"`
	MaxLat float64 `json:"maxLat" validate:"gte=-90,lte=90,gtefield=MinLat"`
	MinLon float64 `json:"minLon" validate:"gte=-180,lte=180"`
	MaxLon float64 `json:"maxLon" validate:"gte=-180,lte=180,gtefield=MinLon"`
}

// Bounds returns the entry's box.
func (e LineIndexEntry) Bounds() Bounds {
	return Bounds{MinLat: e.MinLat, MinLon: e.MinLon, MaxLat: e.MaxLat, MaxLon: e.MaxLon}
}

// PKPoint is a kilometer marker on a line.
type PKPoint struct {
	PK  float64 `json:"pk"`
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// CorrectionRule shifts PK values of a line within [PKStart, PKEnd] by Delta.
type CorrectionRule struct {
	Line        string  `json:"ligne" validate:"required"`
	PKStart     float64 `json:"pk_start"`
	PKEnd       float64 `json:"pk_end" validate:"gtefield=PKStart"`
	Delta       float64 `json:"correction"`
	Description string  `json:"description,omitempty"`
}

// Contains reports whether the rule covers pk on line, bounds inclusive.
func (r CorrectionRule) Contains(line string, pk float64) bool {
	return r.Line == line && pk >= r.PKStart && pk <= r.PKEnd
}

// LocatedPK is the result of locating one fix.
type LocatedPK struct {
	PK             float64 `json:"pk"`     // after correction
	RawPK          float64 `json:"raw_pk"` // as stored in the line file
	Line           string  `json:"line"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	DistanceMeters float64 `json:"distance_m"`
	Corrected      bool    `json:"corrected"`
	Correction     float64 `json:"correction"`
}

// FixStatus describes the state of the location feed.
type FixStatus string

const (
	StatusStarting            FixStatus = "starting"
	StatusActive              FixStatus = "active"
	StatusRetrying            FixStatus = "retrying"
	StatusPermissionDenied    FixStatus = "permission_denied"
	StatusPositionUnavailable FixStatus = "position_unavailable"
	StatusTimeout             FixStatus = "timeout"
	StatusError               FixStatus = "error"
	StatusStopped             FixStatus = "stopped"
)

// LocationErrorCode distinguishes location source failures.
type LocationErrorCode string

const (
	ErrCodePermissionDenied    LocationErrorCode = "permission_denied"
	ErrCodePositionUnavailable LocationErrorCode = "position_unavailable"
	ErrCodeTimeout             LocationErrorCode = "timeout"
	ErrCodeOther               LocationErrorCode = "other"
)

// LocationError is a failure reported by a location source.
type LocationError struct {
	DeviceID string            `json:"device_id,omitempty"`
	Code     LocationErrorCode `json:"code"`
	Message  string            `json:"message,omitempty"`
}

func (e *LocationError) Error() string {
	if e.Message == "" {
		return "location: " + string(e.Code)
	}
	return "location: " + string(e.Code) + ": " + e.Message
}

// Status maps the error to the terminal feed status it produces.
func (e *LocationError) Status() FixStatus {
	switch e.Code {
	case ErrCodePermissionDenied:
		return StatusPermissionDenied
	case ErrCodePositionUnavailable:
		return StatusPositionUnavailable
	case ErrCodeTimeout:
		return StatusTimeout
	default:
		return StatusError
	}
}

// AccuracyLevel buckets a GPS accuracy radius.
type AccuracyLevel string

const (
	AccuracyUnknown AccuracyLevel = "unknown"
	AccuracyHigh    AccuracyLevel = "high"   // <= 10 m
	AccuracyMedium  AccuracyLevel = "medium" // <= 50 m
	AccuracyLow     AccuracyLevel = "low"
)

// ClassifyAccuracy returns the level for an accuracy radius in meters.
func ClassifyAccuracy(accuracy *float64) AccuracyLevel {
	switch {
	case accuracy == nil:
		return AccuracyUnknown
	case *accuracy <= 10:
		return AccuracyHigh
	case *accuracy <= 50:
		return AccuracyMedium
	default:
		return AccuracyLow
	}
}

// Snapshot is the latest engine state exposed to display collaborators.
type Snapshot struct {
	DeviceID      string        `json:"device_id,omitempty"`
	Sequence      uint64        `json:"sequence"`
	Located       *LocatedPK    `json:"located"`
	SpeedKmh      float64       `json:"speed_kmh"`
	SpeedKnown    bool          `json:"speed_known"`
	Accuracy      *float64      `json:"accuracy"`
	AccuracyLevel AccuracyLevel `json:"accuracy_level"`
	Status        FixStatus     `json:"status"`
	IntervalMS    int64         `json:"interval_ms"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// CacheStats reports the state of the line point cache.
type CacheStats struct {
	Size      int      `json:"size"`
	Capacity  int      `json:"capacity"`
	Hits      uint64   `json:"hits"`
	Misses    uint64   `json:"misses"`
	Loads     uint64   `json:"loads"`
	Failures  uint64   `json:"failures"`
	Evictions uint64   `json:"evictions"`
	Lines     []string `json:"lines"`
}
