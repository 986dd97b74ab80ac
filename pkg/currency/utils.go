package currency

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a string-encoded provider number without going through
// strconv rounding. Blank input is reported as absent.
func ParseAmount(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

// ParseOptional is ParseAmount for nullable JSON fields.
func ParseOptional(raw *string) *float64 {
	if raw == nil {
		return nil
	}
	f, ok := ParseAmount(*raw)
	if !ok {
		return nil
	}
	return &f
}

// PercentChange returns (current - previous) / previous * 100, rounded to four places.
// A zero previous value yields zero.
func PercentChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	cur := decimal.NewFromFloat(current)
	prev := decimal.NewFromFloat(previous)
	f, _ := cur.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)).RoundBank(4).Float64()
	return f
}
