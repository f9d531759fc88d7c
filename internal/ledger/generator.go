package ledger

import (
	"fmt"
	"strconv"
)

// JournalGenerator appends the journals of fund movements to an operation's
// batch. Outflows from a bundle are pre-checked against the tracked balance
// plus whatever the batch has already moved.
type JournalGenerator struct {
	balanceTracker *BalanceTracker
}

func NewJournalGenerator(tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		balanceTracker: tracker,
	}
}

// GeneratePremium records a premium payment split into fee and net.
// Moves funds: wallet:payer → instance:fees, wallet:payer → bundle:balance
func (jg *JournalGenerator) GeneratePremium(batch *Batch, policyID, payer string, bundleID int64, fee, net int64) {
	payerKey := NewWalletAccountKey(payer)
	if fee > 0 {
		batch.Append(JournalTypePremiumFee, policyID, NewFeeAccountKey(), payerKey, fee)
	}
	if net > 0 {
		batch.Append(JournalTypePremium, policyID, NewBundleAccountKey(bundleID), payerKey, net)
	}
}

// GenerateCapital records a capital contribution split into fee and net.
func (jg *JournalGenerator) GenerateCapital(batch *Batch, bundleID int64, payer string, fee, net int64) {
	ref := strconv.FormatInt(bundleID, 10)
	payerKey := NewWalletAccountKey(payer)
	if fee > 0 {
		batch.Append(JournalTypeCapitalFee, ref, NewFeeAccountKey(), payerKey, fee)
	}
	if net > 0 {
		batch.Append(JournalTypeCapital, ref, NewBundleAccountKey(bundleID), payerKey, net)
	}
}

// GenerateWithdrawal records capital leaving a bundle to its owner.
// Pre-check: bundle must hold the amount.
func (jg *JournalGenerator) GenerateWithdrawal(batch *Batch, bundleID int64, recipient string, amount int64) error {
	if err := jg.checkBundleOutflow(batch, bundleID, amount); err != nil {
		return fmt.Errorf("withdrawal pre-check failed: %w", err)
	}
	batch.Append(JournalTypeWithdrawal, strconv.FormatInt(bundleID, 10),
		NewWalletAccountKey(recipient), NewBundleAccountKey(bundleID), amount)
	return nil
}

// GeneratePayout records a claim payout from the allocated bundle.
// Pre-check: bundle must hold the amount.
func (jg *JournalGenerator) GeneratePayout(batch *Batch, policyID string, bundleID int64, recipient string, amount int64) error {
	if err := jg.checkBundleOutflow(batch, bundleID, amount); err != nil {
		return fmt.Errorf("payout pre-check failed: %w", err)
	}
	batch.Append(JournalTypePayout, policyID,
		NewWalletAccountKey(recipient), NewBundleAccountKey(bundleID), amount)
	return nil
}

func (jg *JournalGenerator) checkBundleOutflow(batch *Batch, bundleID int64, amount int64) error {
	key := NewBundleAccountKey(bundleID)
	available := jg.balanceTracker.GetBalance(key) + pendingDelta(batch, key)
	if available < amount {
		return fmt.Errorf("insufficient balance on %s: have=%d, need=%d", key.AccountPath(), available, amount)
	}
	return nil
}

// pendingDelta is the net effect of not yet applied journals on key.
func pendingDelta(batch *Batch, key AccountKey) int64 {
	var delta int64
	for _, j := range batch.Journals {
		if j.DebitAccount == key {
			delta += j.Amount
		}
		if j.CreditAccount == key {
			delta -= j.Amount
		}
	}
	return delta
}
