package usecases

import "time"

const (
	DefaultNormalInterval = 1000 * time.Millisecond
	DefaultFastInterval   = 500 * time.Millisecond
	DefaultHighSpeedKmh   = 50.0
)

// SampleRateController picks the sampling interval for a speed.
type SampleRateController struct {
	normal    time.Duration
	fast      time.Duration
	threshold float64
}

// NewSampleRateController returns a controller; zero values take the defaults.
func NewSampleRateController(normal, fast time.Duration, thresholdKmh float64) *SampleRateController {
	if normal <= 0 {
		normal = DefaultNormalInterval
	}
	if fast <= 0 {
		fast = DefaultFastInterval
	}
	if thresholdKmh <= 0 {
		thresholdKmh = DefaultHighSpeedKmh
	}
	return &SampleRateController{normal: normal, fast: fast, threshold: thresholdKmh}
}

// DesiredInterval returns the fast interval above the threshold speed.
func (c *SampleRateController) DesiredInterval(kmh float64) time.Duration {
	if kmh > c.threshold {
		return c.fast
	}
	return c.normal
}
