package settlement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidateBands checks that bands start at zero, strictly increase and carry
// non-negative fees matching their kind.
func ValidateBands(bands []PenaltyBand) error {
	if len(bands) == 0 {
		return errors.New("at least one band is required")
	}
	if !bands[0].LowerBoundLiters.IsZero() {
		return errors.New("first band must start at 0 liters")
	}

	for i, b := range bands {
		if i > 0 && !b.LowerBoundLiters.GreaterThan(bands[i-1].LowerBoundLiters) {
			return fmt.Errorf("band %d: lower bounds must be strictly increasing", i)
		}
		if b.FlatFee.IsNegative() || b.RatePerLiter.IsNegative() {
			return fmt.Errorf("band %d: fees must be non-negative", i)
		}
		switch b.Kind {
		case BandKindNone:
			if !b.FlatFee.IsZero() || !b.RatePerLiter.IsZero() {
				return fmt.Errorf("band %d: kind none cannot carry fees", i)
			}
		case BandKindFlat:
			if !b.RatePerLiter.IsZero() {
				return fmt.Errorf("band %d: kind flat cannot carry a per-liter rate", i)
			}
		case BandKindProportional:
			if !b.RatePerLiter.IsPositive() {
				return fmt.Errorf("band %d: kind proportional requires a positive rate_per_liter", i)
			}
		default:
			return fmt.Errorf("band %d: unknown kind %q", i, b.Kind)
		}
	}
	return nil
}

// SelectBand returns the band whose lower bound is the greatest value not
// exceeding magnitude. Bands must already be validated.
func SelectBand(bands []PenaltyBand, magnitude decimal.Decimal) (PenaltyBand, bool) {
	var (
		selected PenaltyBand
		found    bool
	)
	for _, b := range bands {
		if b.LowerBoundLiters.GreaterThan(magnitude) {
			continue
		}
		if !found || b.LowerBoundLiters.GreaterThan(selected.LowerBoundLiters) {
			selected = b
			found = true
		}
	}
	return selected, found
}
