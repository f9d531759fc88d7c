package ledger_test

import (
	"ParaLedger/internal/ledger"
	"testing"

	"github.com/google/uuid"
)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_WalletPath(t *testing.T) {
	key := ledger.NewWalletAccountKey("0xholder")
	if got := key.AccountPath(); got != "wallet:0xholder" {
		t.Errorf("got %q, want %q", got, "wallet:0xholder")
	}
}

func TestAccountKey_BundlePath(t *testing.T) {
	key := ledger.NewBundleAccountKey(7)
	if got := key.AccountPath(); got != "bundle:7:balance" {
		t.Errorf("got %q, want %q", got, "bundle:7:balance")
	}
}

func TestAccountKey_FeePath(t *testing.T) {
	if got := ledger.NewFeeAccountKey().AccountPath(); got != "instance:fees" {
		t.Errorf("got %q, want %q", got, "instance:fees")
	}
}

func TestParseAccountPath_RoundTrip(t *testing.T) {
	keys := []ledger.AccountKey{
		ledger.NewWalletAccountKey("0xholder"),
		ledger.NewWalletAccountKey("did:web:holder"),
		ledger.NewBundleAccountKey(12),
		ledger.NewFeeAccountKey(),
	}
	for _, want := range keys {
		got, err := ledger.ParseAccountPath(want.AccountPath())
		if err != nil {
			t.Fatalf("parse %q: %v", want.AccountPath(), err)
		}
		if got != want {
			t.Errorf("got %+v, want %+v", got, want)
		}
	}

	for _, bad := range []string{"", "wallet:", "bundle:x:balance", "bundle:1:fees", "instance:other", "pool:1"} {
		if _, err := ledger.ParseAccountPath(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_InitialBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	if got := bt.BundleBalance(1); got != 0 {
		t.Errorf("initial balance should be 0, got %d", got)
	}
}

func TestBalanceTracker_ApplyBatch(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)
	batch := ledger.NewBatch(1, 1_000)

	gen.GenerateCapital(batch, 1, "investor", 542, 9_458)

	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if got := bt.BundleBalance(1); got != 9_458 {
		t.Errorf("bundle balance: got %d, want 9458", got)
	}
	if got := bt.FeesCollected(); got != 542 {
		t.Errorf("fees: got %d, want 542", got)
	}
	if got := bt.WalletNet("investor"); got != -10_000 {
		t.Errorf("investor net: got %d, want -10000", got)
	}
}

func TestBalanceTracker_GlobalBalanceZeroSum(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)
	policyID := uuid.NewString()

	batch := ledger.NewBatch(1, 0)
	gen.GenerateCapital(batch, 1, "investor", 0, 10_000)
	gen.GeneratePremium(batch, policyID, "holder", 1, 10, 90)
	if err := gen.GeneratePayout(batch, policyID, 1, "holder", 692); err != nil {
		t.Fatalf("payout: %v", err)
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if total := bt.ComputeGlobalBalance(); total != 0 {
		t.Errorf("global balance should be zero, got %d", total)
	}
	if got := bt.BundleBalance(1); got != 10_000+90-692 {
		t.Errorf("bundle balance: got %d, want %d", got, 10_000+90-692)
	}
}

func TestBalanceTracker_CloneIsIndependent(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)
	batch := ledger.NewBatch(1, 0)
	gen.GenerateCapital(batch, 1, "investor", 0, 999)
	_ = bt.ApplyBatch(batch)

	clone := bt.Clone()
	more := ledger.NewBatch(2, 0)
	gen.GenerateCapital(more, 1, "investor", 0, 1)
	_ = clone.ApplyBatch(more)

	if bt.BundleBalance(1) != 999 {
		t.Error("original tracker should not see clone mutations")
	}
	if clone.BundleBalance(1) != 1_000 {
		t.Errorf("clone: got %d, want 1000", clone.BundleBalance(1))
	}
}

// ============================================================================
// Test: JournalGenerator pre-checks
// ============================================================================

func TestGenerator_WithdrawalPreCheck(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)

	batch := ledger.NewBatch(1, 0)
	if err := gen.GenerateWithdrawal(batch, 1, "investor", 100); err == nil {
		t.Error("expected error withdrawing from an empty bundle")
	}

	// Pending capital in the same batch counts.
	gen.GenerateCapital(batch, 1, "investor", 0, 100)
	if err := gen.GenerateWithdrawal(batch, 1, "investor", 100); err != nil {
		t.Errorf("withdrawal against pending capital should pass: %v", err)
	}
	if err := gen.GenerateWithdrawal(batch, 1, "investor", 1); err == nil {
		t.Error("expected error once pending capital is exhausted")
	}
}

func TestGenerator_ZeroFeeSkipsFeeLeg(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)
	batch := ledger.NewBatch(1, 0)

	gen.GeneratePremium(batch, uuid.NewString(), "holder", 1, 0, 100)

	if len(batch.Journals) != 1 {
		t.Fatalf("got %d journals, want 1", len(batch.Journals))
	}
	if batch.Journals[0].JournalType != ledger.JournalTypePremium {
		t.Errorf("got %s, want premium", batch.Journals[0].JournalType)
	}
}

// ============================================================================
// Test: Batch Validation
// ============================================================================

func TestBatchValidate_EmptyBatch_Passes(t *testing.T) {
	if err := ledger.NewBatch(1, 0).Validate(); err != nil {
		t.Errorf("operations without fund movement produce empty batches: %v", err)
	}
}

func TestBatchValidate_ZeroAmount_Fails(t *testing.T) {
	batch := ledger.NewBatch(1, 0)
	batch.Append(ledger.JournalTypeCapital, "1", ledger.NewBundleAccountKey(1), ledger.NewWalletAccountKey("a"), 0)

	if err := batch.Validate(); err == nil {
		t.Error("zero amount should fail validation")
	}
}

func TestBatchValidate_SelfTransfer_Fails(t *testing.T) {
	batch := ledger.NewBatch(1, 0)
	same := ledger.NewWalletAccountKey("a")
	batch.Append(ledger.JournalTypeCapital, "1", same, same, 100)

	if err := batch.Validate(); err == nil {
		t.Error("self-transfer should fail validation")
	}
}

func TestBatchValidate_MismatchedBatchID_Fails(t *testing.T) {
	batch := ledger.NewBatch(1, 0)
	batch.Append(ledger.JournalTypeCapital, "1", ledger.NewBundleAccountKey(1), ledger.NewWalletAccountKey("a"), 100)
	batch.Journals[0].BatchID = uuid.New()

	if err := batch.Validate(); err == nil {
		t.Error("mismatched batch ID should fail validation")
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestInvariantValidator_Bundle(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)
	batch := ledger.NewBatch(1, 0)
	ledger.NewJournalGenerator(bt).GenerateCapital(batch, 1, "investor", 0, 5_000)
	_ = bt.ApplyBatch(batch)

	ok := ledger.BundleView{ID: 1, Balance: 5_000, LockedCapital: 1_000, Collateral: 1_000}
	if err := v.ValidateBundle(ok); err != nil {
		t.Errorf("consistent bundle should pass: %v", err)
	}

	drift := ok
	drift.Balance = 4_999
	if err := v.ValidateBundle(drift); err == nil {
		t.Error("balance drift should fail")
	}

	lock := ok
	lock.Collateral = 900
	if err := v.ValidateBundle(lock); err == nil {
		t.Error("lock/allocation mismatch should fail")
	}

	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("balanced ledger should have zero global balance: %v", err)
	}
}
