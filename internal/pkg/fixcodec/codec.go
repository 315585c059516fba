// Package fixcodec is the JSON wire format shared by every location source:
// fixes, source errors and cadence hints sent back to devices.
package fixcodec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/samirrijal/pklocator/internal/core/domain"
)

var validate = validator.New()

// Cadence tells a device how often to report.
type Cadence struct {
	DeviceID   string `json:"device_id,omitempty"`
	IntervalMS int64  `json:"interval_ms"`
}

// DecodeSample parses and validates a fix. A missing device falls back to
// device and a missing timestamp to now.
func DecodeSample(data []byte, device string, now time.Time) (domain.LocationSample, error) {
	var s domain.LocationSample
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("decode fix: %w", err)
	}
	if err := ValidateSample(s); err != nil {
		return s, err
	}
	if s.DeviceID == "" {
		s.DeviceID = device
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = now
	}
	return s, nil
}

// ValidateSample checks coordinate ranges and accuracy.
func ValidateSample(s domain.LocationSample) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid fix: %w", err)
	}
	return nil
}

// DecodeError parses a source failure. Unknown codes map to "other".
func DecodeError(data []byte, device string) (*domain.LocationError, error) {
	var e domain.LocationError
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode fix error: %w", err)
	}
	switch e.Code {
	case domain.ErrCodePermissionDenied, domain.ErrCodePositionUnavailable, domain.ErrCodeTimeout:
	default:
		e.Code = domain.ErrCodeOther
	}
	if e.DeviceID == "" {
		e.DeviceID = device
	}
	return &e, nil
}

// EncodeCadence renders a cadence hint.
func EncodeCadence(device string, interval time.Duration) ([]byte, error) {
	return json.Marshal(Cadence{DeviceID: device, IntervalMS: interval.Milliseconds()})
}
