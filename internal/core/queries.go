package core

import (
	"ParaLedger/internal/ledger"
	"ParaLedger/internal/policy"
	"ParaLedger/internal/pool"
	"ParaLedger/internal/risk"
	"ParaLedger/internal/token"
	"ParaLedger/internal/treasury"

	"github.com/google/uuid"
)

// Read-only views of the committed state. Every result is a copy.

// RiskpoolTotals aggregates the Active and Locked bundles.
type RiskpoolTotals struct {
	RiskpoolID     string        `json:"riskpoolId"`
	Wallet         token.Address `json:"wallet"`
	Capital        int64         `json:"capital"`
	LockedCapital  int64         `json:"lockedCapital"`
	Balance        int64         `json:"balance"`
	ActiveBundles  int           `json:"activeBundles"`
	MaxActive      int           `json:"maxActiveBundles"`
	FeesCollected  int64         `json:"feesCollected"`
	InstanceWallet token.Address `json:"instanceWallet"`
}

func (e *Engine) Bundle(id int64) (*pool.Bundle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Pool.Bundle(id)
}

func (e *Engine) Bundles() []*pool.Bundle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Pool.Bundles()
}

func (e *Engine) Riskpool() RiskpoolTotals {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state
	capital, locked, balance := st.Pool.Totals()
	return RiskpoolTotals{
		RiskpoolID:     e.cfg.RiskpoolID,
		Wallet:         st.Treasury.RiskpoolWallet(e.cfg.RiskpoolID),
		Capital:        capital,
		LockedCapital:  locked,
		Balance:        balance,
		ActiveBundles:  st.Pool.ActiveBundles(),
		MaxActive:      st.Pool.Config().MaxActiveBundles,
		FeesCollected:  st.Tracker.FeesCollected(),
		InstanceWallet: st.Treasury.InstanceWallet(),
	}
}

func (e *Engine) Risk(id uuid.UUID) (*risk.Risk, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Risks.Get(id)
}

func (e *Engine) Risks() []*risk.Risk {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Risks.List()
}

// RiskPolicyCount is the number of open policies still to be processed.
func (e *Engine) RiskPolicyCount(id uuid.UUID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Risks.PolicyCount(id)
}

func (e *Engine) Application(id uuid.UUID) (*policy.Application, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Book.Application(id)
}

func (e *Engine) Metadata(id uuid.UUID) (*policy.Metadata, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Book.Metadata(id)
}

func (e *Engine) Policy(id uuid.UUID) (*policy.Policy, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Book.Policy(id)
}

func (e *Engine) Claims(id uuid.UUID) []*policy.Claim {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Book.Claims(id)
}

func (e *Engine) Payouts(id uuid.UUID) []*policy.Payout {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Book.Payouts(id)
}

// Allocation returns the bundle and remaining collateral of a policy.
func (e *Engine) Allocation(id uuid.UUID) (pool.Allocation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Pool.AllocationOf(id)
}

func (e *Engine) FeeSpecification(componentID string) (treasury.FeeSpecification, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Treasury.FeeSpecification(componentID)
}

// QuoteFee splits gross into fee and net under the component's current rule.
func (e *Engine) QuoteFee(componentID string, gross int64) (fee, net int64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Treasury.QuoteFee(componentID, gross)
}

func (e *Engine) Suspended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Treasury.Suspended()
}

// Sequence is the sequence of the last committed operation.
func (e *Engine) Sequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

func (e *Engine) StateHash() [32]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasher.GetPrevHash()
}

// Balance returns the journal balance of an account path such as
// "bundle:1:balance" or "instance:fees".
func (e *Engine) Balance(path string) (int64, error) {
	key, err := ledger.ParseAccountPath(path)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Tracker.GetBalance(key), nil
}

// BundleOwner and PolicyHolder let access.Guard check ownership.
func (e *Engine) BundleOwner(bundleID int64) (token.Address, error) {
	b, err := e.Bundle(bundleID)
	if err != nil {
		return "", err
	}
	return b.Owner, nil
}

func (e *Engine) PolicyHolder(policyID uuid.UUID) (token.Address, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Book.Holder(policyID)
}
