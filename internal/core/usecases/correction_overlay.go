package usecases

import (
	"github.com/samirrijal/pklocator/internal/core/domain"
)

// CorrectionOverlay holds the static correction rules, in load order.
type CorrectionOverlay struct {
	rules []domain.CorrectionRule
}

// NewCorrectionOverlay returns an overlay over rules. A nil slice gives an
// empty overlay.
func NewCorrectionOverlay(rules []domain.CorrectionRule) *CorrectionOverlay {
	return &CorrectionOverlay{rules: rules}
}

// Apply shifts pk by the first rule matching line whose range contains pk.
// Later rules are never consulted once one matches.
func (o *CorrectionOverlay) Apply(line string, pk float64) (corrected, delta float64, applied bool) {
	if o == nil {
		return pk, 0, false
	}
	for _, r := range o.rules {
		if r.Contains(line, pk) {
			return pk + r.Delta, r.Delta, true
		}
	}
	return pk, 0, false
}

// Rules returns a copy of the rule set.
func (o *CorrectionOverlay) Rules() []domain.CorrectionRule {
	if o == nil {
		return nil
	}
	out := make([]domain.CorrectionRule, len(o.rules))
	copy(out, o.rules)
	return out
}

func (o *CorrectionOverlay) Len() int {
	if o == nil {
		return 0
	}
	return len(o.rules)
}
