package ledger

import (
	"fmt"
)

// BundleView is what the validator needs to know about a bundle.
type BundleView struct {
	ID            int64
	Balance       int64
	LockedCapital int64
	// Collateral is the sum of the allocations currently held by the bundle.
	Collateral int64
}

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateBundle checks the journal-derived balance against the bundle's own
// bookkeeping and its lock against its allocations.
func (v *InvariantValidator) ValidateBundle(b BundleView) error {
	key := NewBundleAccountKey(b.ID)
	if err := v.tracker.ValidateNonNegative(key); err != nil {
		return err
	}
	if got := v.tracker.GetBalance(key); got != b.Balance {
		return fmt.Errorf("bundle %d balance drift: journals=%d, bundle=%d", b.ID, got, b.Balance)
	}
	if b.LockedCapital != b.Collateral {
		return fmt.Errorf("bundle %d locked capital %d != allocated collateral %d", b.ID, b.LockedCapital, b.Collateral)
	}
	return nil
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	if total := v.tracker.ComputeGlobalBalance(); total != 0 {
		return fmt.Errorf("global balance is non-zero: %d", total)
	}
	return nil
}
