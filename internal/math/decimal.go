package math

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var maxInt64 = decimal.NewFromInt(1<<63 - 1)

// ParseScaled converts a decimal string such as "0.75" into its fixed-point
// integer form for cfg. Inputs with more fractional digits than the
// precision allows are rejected rather than rounded.
func ParseScaled(s string, cfg DecimalConfig) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return FromDecimal(d, cfg)
}

// FromDecimal scales d into cfg's fixed-point representation.
func FromDecimal(d decimal.Decimal, cfg DecimalConfig) (int64, error) {
	scaled := d.Shift(int32(cfg.DecimalPrecision))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("decimal %s exceeds %d fractional digits", d, cfg.DecimalPrecision)
	}
	if scaled.Abs().GreaterThan(maxInt64) {
		return 0, fmt.Errorf("decimal %s out of range", d)
	}
	return scaled.IntPart(), nil
}

// FormatScaled renders a fixed-point integer as a decimal string.
func FormatScaled(v int64, cfg DecimalConfig) string {
	return decimal.New(v, -int32(cfg.DecimalPrecision)).String()
}

// ToDecimal exposes a fixed-point integer as a decimal.Decimal.
func ToDecimal(v int64, cfg DecimalConfig) decimal.Decimal {
	return decimal.New(v, -int32(cfg.DecimalPrecision))
}
