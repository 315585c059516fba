package usecases_test

import (
	"math"
	"testing"

	"github.com/samirrijal/pklocator/internal/core/domain"
	"github.com/samirrijal/pklocator/internal/core/usecases"
)

func TestCorrectionOverlay_Apply(t *testing.T) {
	overlay := usecases.NewCorrectionOverlay([]domain.CorrectionRule{
		{Line: "750000", PKStart: 120.0, PKEnd: 121.0, Delta: 0.050},
	})

	tests := []struct {
		name        string
		line        string
		pk          float64
		wantPK      float64
		wantApplied bool
	}{
		{"inside range", "750000", 120.30, 120.35, true},
		{"range start inclusive", "750000", 120.0, 120.05, true},
		{"range end inclusive", "750000", 121.0, 121.05, true},
		{"past range", "750000", 121.50, 121.50, false},
		{"other line", "001000", 120.30, 120.30, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pk, delta, applied := overlay.Apply(tt.line, tt.pk)
			if applied != tt.wantApplied {
				t.Fatalf("applied = %v, want %v", applied, tt.wantApplied)
			}
			if math.Abs(pk-tt.wantPK) > 1e-9 {
				t.Errorf("pk = %v, want %v", pk, tt.wantPK)
			}
			if !applied && delta != 0 {
				t.Errorf("expected zero delta when not applied, got %v", delta)
			}
		})
	}
}

func TestCorrectionOverlay_FirstMatchWins(t *testing.T) {
	overlay := usecases.NewCorrectionOverlay([]domain.CorrectionRule{
		{Line: "750000", PKStart: 100, PKEnd: 200, Delta: 1.0},
		{Line: "750000", PKStart: 120, PKEnd: 121, Delta: 0.05},
	})

	pk, delta, applied := overlay.Apply("750000", 120.5)
	if !applied || delta != 1.0 || pk != 121.5 {
		t.Errorf("expected first rule (+1.0) only, got pk=%v delta=%v applied=%v", pk, delta, applied)
	}
}

func TestCorrectionOverlay_Empty(t *testing.T) {
	for _, overlay := range []*usecases.CorrectionOverlay{usecases.NewCorrectionOverlay(nil), nil} {
		pk, _, applied := overlay.Apply("750000", 120.3)
		if applied || pk != 120.3 {
			t.Errorf("expected unchanged pk from empty overlay, got %v applied=%v", pk, applied)
		}
		if overlay.Len() != 0 {
			t.Errorf("expected 0 rules, got %d", overlay.Len())
		}
	}
}
