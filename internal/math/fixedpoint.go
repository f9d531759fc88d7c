package math

import (
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

const (
	// FeeFractionFullUnit is 100% for fee fractions and the collateralization level.
	FeeFractionFullUnit int64 = 1_000_000_000_000_000_000

	// PercentageMultiplier is 1.0 for risk parameters and payout percentages.
	PercentageMultiplier int64 = 1_000_000_000
)

var (
	FeeFractionConfig = DecimalConfig{DecimalPrecision: 18, Scale: FeeFractionFullUnit}
	PercentageConfig  = DecimalConfig{DecimalPrecision: 9, Scale: PercentageMultiplier}
	AmountConfig      = DecimalConfig{DecimalPrecision: 0, Scale: 1}
)

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding
	RoundDown
	RoundUp
	RoundHalfUp
)

// DivideInt128 performs numerator / denominator with rounding.
// Operands are expected to be non-negative.
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := getInt128()
	denom.SetInt64(denominator)
	result := DivideBig(numerator, denom, roundingMode)
	putInt128(denom)
	return result
}

// DivideBig is DivideInt128 for denominators that do not fit in int64.
func DivideBig(numerator, denominator *big.Int, roundingMode RoundingMode) int64 {
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denominator, remainder)
	result := quotient.Int64()

	if remainder.Sign() != 0 {
		twice := getInt128()
		twice.Lsh(remainder, 1)
		cmp := twice.Cmp(denominator)
		putInt128(twice)

		switch roundingMode {
		case RoundUp:
			result++
		case RoundHalfUp:
			if cmp >= 0 {
				result++
			}
		case RoundHalfEven:
			if cmp > 0 || (cmp == 0 && result%2 != 0) {
				result++
			}
		}
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

// MulDiv computes a * b / denominator without intermediate overflow.
func MulDiv(a, b, denominator int64, roundingMode RoundingMode) int64 {
	product := MultiplyInt128(a, b)
	result := DivideInt128(product, denominator, roundingMode)
	putInt128(product)
	return result
}

// ApplyFraction returns floor(amount * fraction / fullUnit).
func ApplyFraction(amount, fraction, fullUnit int64) int64 {
	if amount == 0 || fraction == 0 {
		return 0
	}
	return MulDiv(amount, fraction, fullUnit, RoundDown)
}
