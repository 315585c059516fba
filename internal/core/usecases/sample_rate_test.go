package usecases_test

import (
	"testing"
	"time"

	"github.com/samirrijal/pklocator/internal/core/usecases"
)

func TestSampleRateController_DesiredInterval(t *testing.T) {
	c := usecases.NewSampleRateController(0, 0, 0)

	tests := []struct {
		kmh  float64
		want time.Duration
	}{
		{0, 1000 * time.Millisecond},
		{49.9, 1000 * time.Millisecond},
		{50, 1000 * time.Millisecond},
		{50.1, 500 * time.Millisecond},
		{160, 500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := c.DesiredInterval(tt.kmh); got != tt.want {
			t.Errorf("DesiredInterval(%v) = %v, want %v", tt.kmh, got, tt.want)
		}
	}
}

func TestSampleRateController_Custom(t *testing.T) {
	c := usecases.NewSampleRateController(2*time.Second, 250*time.Millisecond, 100)

	if got := c.DesiredInterval(80); got != 2*time.Second {
		t.Errorf("expected 2s below threshold, got %v", got)
	}
	if got := c.DesiredInterval(120); got != 250*time.Millisecond {
		t.Errorf("expected 250ms above threshold, got %v", got)
	}
}
