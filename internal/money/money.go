package money

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Invalid-argument conditions. These indicate programming errors at the call
// site, not recoverable domain failures.
var (
	ErrInvalidCurrency  = errors.New("currency code must be exactly 3 letters")
	ErrCurrencyMismatch = errors.New("currency mismatch between money values")
	ErrDivideByZero     = errors.New("division by zero")
)

// RoundRule selects the rounding policy applied when a fractional amount is
// quantized to integer minor units.
type RoundRule int

// Rounding policies
const (
	// RoundHalfUp rounds half away from zero.
	RoundHalfUp RoundRule = iota
	// RoundBankers rounds half to even. The half-way test tolerates
	// floating-point imprecision within 1e-9; anything outside that band
	// falls back to RoundHalfUp. This is a known approximation for float
	// inputs, not exact decimal arithmetic.
	RoundBankers
)

// halfEpsilon is the tolerance used to decide whether a fractional part is
// exactly one half.
const halfEpsilon = 1e-9

// Money is an immutable currency amount held as integer minor units
// (e.g. cents). Floats are accepted only as conversion input and are
// quantized immediately; no float is ever authoritative storage.
type Money struct {
	amountMinor int64
	currency    string
}

// FromMinor constructs a Money directly from an integer minor-unit amount.
// The currency code is normalized to uppercase and must be 3 letters.
func FromMinor(amountMinor int64, currency string) (Money, error) {
	ccy, err := normalizeCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	return Money{amountMinor: amountMinor, currency: ccy}, nil
}

// FromDecimal converts a decimal amount to minor units by scaling by
// 10^minorUnitDigits and rounding per rule.
func FromDecimal(amount float64, currency string, minorUnitDigits int, rule RoundRule) (Money, error) {
	ccy, err := normalizeCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	scaled := amount * math.Pow10(minorUnitDigits)
	return Money{amountMinor: roundToMinor(scaled, rule), currency: ccy}, nil
}

// FromString converts a decimal string to minor units using exact decimal
// arithmetic, rounding half to even at the minor-unit boundary. Preferred
// over FromDecimal when the input did not originate as a float.
func FromString(amount string, currency string, minorUnitDigits int) (Money, error) {
	ccy, err := normalizeCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, errors.Wrap(err, "invalid decimal amount")
	}
	minor := d.Shift(int32(minorUnitDigits)).RoundBank(0)
	return Money{amountMinor: minor.IntPart(), currency: ccy}, nil
}

// AmountMinor returns the amount in integer minor units.
func (m Money) AmountMinor() int64 {
	return m.amountMinor
}

// Currency returns the normalized 3-letter currency code.
func (m Money) Currency() string {
	return m.currency
}

// Add returns the sum of two amounts of the same currency.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, errors.Wrapf(ErrCurrencyMismatch, "%s + %s", m.currency, other.currency)
	}
	return Money{amountMinor: m.amountMinor + other.amountMinor, currency: m.currency}, nil
}

// Subtract returns the difference of two amounts of the same currency.
func (m Money) Subtract(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, errors.Wrapf(ErrCurrencyMismatch, "%s - %s", m.currency, other.currency)
	}
	return Money{amountMinor: m.amountMinor - other.amountMinor, currency: m.currency}, nil
}

// Multiply scales the amount by a factor and re-quantizes per rule.
func (m Money) Multiply(factor float64, rule RoundRule) Money {
	scaled := float64(m.amountMinor) * factor
	return Money{amountMinor: roundToMinor(scaled, rule), currency: m.currency}
}

// Divide divides the amount by a scalar and re-quantizes per rule.
// A divisor of exactly zero is an invalid argument.
func (m Money) Divide(divisor float64, rule RoundRule) (Money, error) {
	if divisor == 0 {
		return Money{}, ErrDivideByZero
	}
	scaled := float64(m.amountMinor) / divisor
	return Money{amountMinor: roundToMinor(scaled, rule), currency: m.currency}, nil
}

// Round re-rounds the minor-unit amount per rule. The amount is already an
// integer, so this is a no-op unless combined with fractional intermediate
// state upstream; it exists to keep the rounding policy explicit at call
// sites that re-quantize.
func (m Money) Round(rule RoundRule) Money {
	return Money{amountMinor: roundToMinor(float64(m.amountMinor), rule), currency: m.currency}
}

// ToDecimal renders the amount as a float with the given number of minor
// digits. For display and interchange only, never persisted.
func (m Money) ToDecimal(minorUnitDigits int) float64 {
	return float64(m.amountMinor) / math.Pow10(minorUnitDigits)
}

// Format renders the amount as a fixed-point decimal string with exactly
// minorUnitDigits fractional digits and no thousands separators.
func (m Money) Format(minorUnitDigits int) string {
	scale := int64(math.Pow10(minorUnitDigits))
	abs := m.amountMinor
	sign := ""
	if abs < 0 {
		sign = "-"
		abs = -abs
	}
	if minorUnitDigits <= 0 {
		return fmt.Sprintf("%s%d", sign, abs)
	}
	return fmt.Sprintf("%s%d.%0*d", sign, abs/scale, minorUnitDigits, abs%scale)
}

// Equals reports whether both currency and minor amount are identical.
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amountMinor == other.amountMinor
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.amountMinor == 0
}

// String implements fmt.Stringer with two minor digits, the common case.
func (m Money) String() string {
	return m.Format(2) + " " + m.currency
}

func normalizeCurrency(currency string) (string, error) {
	ccy := strings.ToUpper(strings.TrimSpace(currency))
	if len(ccy) != 3 {
		return "", errors.Wrapf(ErrInvalidCurrency, "got %q", currency)
	}
	return ccy, nil
}

// roundToMinor quantizes a scaled amount to an integer minor-unit value.
func roundToMinor(value float64, rule RoundRule) int64 {
	switch rule {
	case RoundBankers:
		floor := math.Floor(value)
		frac := value - floor
		// Only the exact half-way case (within epsilon) gets the
		// to-even treatment; everything else is half-up.
		if math.Abs(frac-0.5) > halfEpsilon {
			return roundHalfUp(value)
		}
		lower := int64(floor)
		if lower%2 == 0 {
			return lower
		}
		return lower + 1
	default:
		return roundHalfUp(value)
	}
}

// roundHalfUp rounds half away from zero. The comparison tolerates the same
// epsilon as the bankers rule so that decimal inputs that land just under
// the half boundary after binary scaling still round the way their decimal
// representation reads.
func roundHalfUp(value float64) int64 {
	neg := value < 0
	abs := math.Abs(value)
	floor := math.Floor(abs)
	n := int64(floor)
	if abs-floor >= 0.5-halfEpsilon {
		n++
	}
	if neg {
		return -n
	}
	return n
}
