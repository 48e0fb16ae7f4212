// Package wage computes referee pay for a single assignment.
package wage

import (
	"github.com/arnavshah/referee-scheduler-api/pkg/apperr"
	"github.com/shopspring/decimal"
)

// Places is the number of decimal places a final wage is rounded to.
const Places = 2

// Breakdown records how a final wage was derived. It is frozen on the
// assignment at creation time.
type Breakdown struct {
	BaseWage   decimal.Decimal `json:"base_wage"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Reason     string          `json:"reason"`
	FinalWage  decimal.Decimal `json:"final_wage"`
}

// FinalWage returns base * multiplier rounded half-up to two places.
// Rounding happens once, on the product.
func FinalWage(base, multiplier decimal.Decimal) (decimal.Decimal, error) {
	if base.IsNegative() {
		return decimal.Zero, apperr.Validation("base wage must not be negative, got %s", base)
	}
	if multiplier.IsNegative() {
		return decimal.Zero, apperr.Validation("wage multiplier must not be negative, got %s", multiplier)
	}
	// Round is half away from zero, which is half-up for non-negative values.
	return base.Mul(multiplier).Round(Places), nil
}

// Calculate builds the breakdown for base and an optional multiplier.
// An absent multiplier counts as 1.0 with an empty reason.
func Calculate(base decimal.Decimal, multiplier decimal.NullDecimal, reason string) (Breakdown, error) {
	m := decimal.NewFromInt(1)
	if multiplier.Valid {
		m = multiplier.Decimal
	} else {
		reason = ""
	}

	final, err := FinalWage(base, m)
	if err != nil {
		return Breakdown{}, err
	}
	return Breakdown{
		BaseWage:   base,
		Multiplier: m,
		Reason:     reason,
		FinalWage:  final,
	}, nil
}
