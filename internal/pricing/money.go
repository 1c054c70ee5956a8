package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitPlaces is the rounding precision for every currency amount the
// engine returns.
const MinorUnitPlaces = 2

// Inputs outside these bounds are treated as unparsable. Rounding a decimal
// rescales its coefficient by 10^|exponent|, so the exponent is checked
// before any arithmetic touches the value.
const (
	maxScale        = 30
	maxExponent     = 15
	maxMagnitudeExp = 15
)

var (
	hundred      = decimal.NewFromInt(100)
	maxMagnitude = decimal.New(1, maxMagnitudeExp)
)

// InRange reports whether d is small enough, in both magnitude and scale,
// to be priced. Only the exponent is inspected until it is known to be sane.
func InRange(d decimal.Decimal) bool {
	exp := d.Exponent()
	if exp < -maxScale || exp > maxExponent {
		return false
	}
	return d.Abs().LessThan(maxMagnitude)
}

// Bounded returns d, or zero when d is out of range. The sign is kept.
func Bounded(d decimal.Decimal) decimal.Decimal {
	if !InRange(d) {
		return decimal.Zero
	}
	return d
}

// RoundMinor rounds an amount to the currency minor unit, half away from zero.
func RoundMinor(d decimal.Decimal) decimal.Decimal {
	return d.Round(MinorUnitPlaces)
}

// CoerceAmount maps negative and out-of-range amounts to zero.
func CoerceAmount(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() || !InRange(d) {
		return decimal.Zero
	}
	return d
}

// CoercePercent clamps a percentage into [0, 100]. Out-of-range input is
// invalid, not huge, and becomes zero.
func CoercePercent(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() || !InRange(d) {
		return decimal.Zero
	}
	if d.GreaterThan(hundred) {
		return hundred
	}
	return d
}

// ParseAmount parses raw form input. Anything that is not a number, or is
// negative, becomes zero; live recomputation must never fail on a keystroke.
func ParseAmount(raw string) decimal.Decimal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return CoerceAmount(d)
}

// ParsePercent is ParseAmount followed by the [0, 100] clamp.
func ParsePercent(raw string) decimal.Decimal {
	return CoercePercent(ParseAmount(raw))
}

// percentOf returns base × pct / 100 without rounding.
func percentOf(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred)
}
