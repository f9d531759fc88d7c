package math

import "math/big"

// ComputePayoutPercentage converts an observed area yield into a payout
// percentage. All inputs and the result use the PercentageMultiplier scale.
//
//	aaay >= trigger*aph          -> 0
//	aaay <= exit*aph             -> tsi
//	otherwise                    -> tsi * (trigger*aph - aaay) / (trigger*aph - exit*aph)
//
// The interpolated value is truncated, matching integer division.
func ComputePayoutPercentage(tsi, trigger, exit, aph, aaay int64) int64 {
	// Thresholds carry two multiplier factors; lift aaay to the same scale.
	triggerYield := MultiplyInt128(trigger, aph)
	exitYield := MultiplyInt128(exit, aph)
	observed := MultiplyInt128(aaay, PercentageMultiplier)
	defer func() {
		putInt128(triggerYield)
		putInt128(exitYield)
		putInt128(observed)
	}()

	if observed.Cmp(triggerYield) >= 0 {
		return 0
	}
	if observed.Cmp(exitYield) <= 0 {
		return tsi
	}

	numerator := getInt128()
	numerator.Sub(triggerYield, observed)
	numerator.Mul(numerator, big.NewInt(tsi))

	denominator := getInt128()
	denominator.Sub(triggerYield, exitYield)

	result := DivideBig(numerator, denominator, RoundDown)

	putInt128(numerator)
	putInt128(denominator)

	return result
}

// ComputePayoutAmount returns floor(percentage * sumInsured / multiplier),
// capped at sumInsured.
func ComputePayoutAmount(percentage, sumInsured int64) int64 {
	if percentage <= 0 || sumInsured <= 0 {
		return 0
	}
	amount := MulDiv(percentage, sumInsured, PercentageMultiplier, RoundDown)
	if amount > sumInsured {
		return sumInsured
	}
	return amount
}
