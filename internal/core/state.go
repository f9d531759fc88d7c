package core

import (
	"ParaLedger/internal/ledger"
	"ParaLedger/internal/policy"
	"ParaLedger/internal/pool"
	"ParaLedger/internal/risk"
	"ParaLedger/internal/treasury"
	"fmt"
)

// State is everything an operation may touch. Operations run against a
// clone which replaces the live state only on commit.
type State struct {
	Treasury *treasury.Treasury
	Pool     *pool.Pool
	Book     *policy.Book
	Risks    *risk.Registry
	Tracker  *ledger.BalanceTracker
}

func (s *State) Clone() *State {
	return &State{
		Treasury: s.Treasury.Clone(),
		Pool:     s.Pool.Clone(),
		Book:     s.Book.Clone(),
		Risks:    s.Risks.Clone(),
		Tracker:  s.Tracker.Clone(),
	}
}

// validate checks the cross-component invariants: the journal is zero-sum,
// every bundle's balance matches its journal account and its lock matches
// the collateral of its allocations.
func (s *State) validate() error {
	v := ledger.NewInvariantValidator(s.Tracker)
	if err := v.ValidateGlobalBalance(); err != nil {
		return err
	}
	collateral := s.Pool.CollateralByBundle()
	for _, b := range s.Pool.Bundles() {
		view := ledger.BundleView{
			ID:            b.ID,
			Balance:       b.Balance,
			LockedCapital: b.LockedCapital,
			Collateral:    collateral[b.ID],
		}
		if err := v.ValidateBundle(view); err != nil {
			return err
		}
		if b.Capital < 0 || b.Balance < 0 {
			return fmt.Errorf("bundle %d negative: capital=%d balance=%d", b.ID, b.Capital, b.Balance)
		}
	}
	if fees := s.Tracker.FeesCollected(); fees < 0 {
		return fmt.Errorf("fee account negative: %d", fees)
	}
	return nil
}

// Snapshot is the serializable engine state.
type Snapshot struct {
	Sequence        int64            `json:"sequence"`
	StateHash       [32]byte         `json:"stateHash"`
	Treasury        treasury.State   `json:"treasury"`
	Pool            pool.State       `json:"pool"`
	Book            policy.State     `json:"book"`
	Risks           risk.State       `json:"risks"`
	Balances        map[string]int64 `json:"balances"`
	IdempotencyKeys []string         `json:"idempotencyKeys,omitempty"`
}

func (s *State) export() (treasury.State, pool.State, policy.State, risk.State, map[string]int64) {
	balances := make(map[string]int64)
	for key, v := range s.Tracker.Snapshot() {
		if v != 0 {
			balances[key.AccountPath()] = v
		}
	}
	return s.Treasury.Export(), s.Pool.Export(), s.Book.Export(), s.Risks.Export(), balances
}

// restore loads snap into s. The treasury keeps its account handle and
// the pool its matcher.
func (s *State) restore(snap *Snapshot) error {
	balances := make(map[ledger.AccountKey]int64, len(snap.Balances))
	for path, v := range snap.Balances {
		key, err := ledger.ParseAccountPath(path)
		if err != nil {
			return fmt.Errorf("restore balances: %w", err)
		}
		balances[key] = v
	}
	s.Treasury.Restore(snap.Treasury)
	s.Pool.Restore(snap.Pool)
	s.Book.Restore(snap.Book)
	s.Risks.Restore(snap.Risks)
	s.Tracker.Restore(balances)
	return nil
}
