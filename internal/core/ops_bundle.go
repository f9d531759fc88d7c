package core

import (
	"ParaLedger/internal/event"
	"ParaLedger/internal/pool"
	"ParaLedger/internal/token"
	"context"
	"strconv"
)

// FundResult reports how a capital contribution was split.
type FundResult struct {
	BundleID int64 `json:"bundleId"`
	Gross    int64 `json:"gross"`
	Fee      int64 `json:"fee"`
	Net      int64 `json:"net"`
}

// CreateBundle opens a bundle for owner funded with capital, net of the
// riskpool fee.
func (e *Engine) CreateBundle(ctx context.Context, owner token.Address, filter []byte, capital int64) (*pool.Bundle, error) {
	tx, err := e.run(ctx, event.OpCreateBundle, func(tx *Tx) error {
		st := tx.state
		if err := st.Pool.CheckCreate(); err != nil {
			return err
		}
		id := st.Pool.NextBundleID()
		fee, net, err := st.Treasury.TransferCapital(tx.ctx, tx.settlement, e.cfg.RiskpoolID, id, owner, capital)
		if err != nil {
			return err
		}
		b, err := st.Pool.CreateBundle(owner, filter, net, tx.now)
		if err != nil {
			return err
		}
		tx.feeCollected(e.cfg.RiskpoolID, fee)
		tx.ref = strconv.FormatInt(b.ID, 10)
		tx.result = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tx.result.(*pool.Bundle), nil
}

// FundBundle adds capital from the bundle owner.
func (e *Engine) FundBundle(ctx context.Context, bundleID int64, amount int64) (FundResult, error) {
	tx, err := e.run(ctx, event.OpFundBundle, func(tx *Tx) error {
		st := tx.state
		b, err := st.Pool.CheckFund(bundleID)
		if err != nil {
			return err
		}
		fee, net, err := st.Treasury.TransferCapital(tx.ctx, tx.settlement, e.cfg.RiskpoolID, bundleID, b.Owner, amount)
		if err != nil {
			return err
		}
		if err := st.Pool.Fund(bundleID, net, tx.now); err != nil {
			return err
		}
		tx.feeCollected(e.cfg.RiskpoolID, fee)
		tx.ref = strconv.FormatInt(bundleID, 10)
		tx.result = FundResult{BundleID: bundleID, Gross: amount, Fee: fee, Net: net}
		return nil
	})
	if err != nil {
		return FundResult{}, err
	}
	return tx.result.(FundResult), nil
}

// DefundBundle pays amount from the bundle back to its owner.
func (e *Engine) DefundBundle(ctx context.Context, bundleID int64, amount int64) error {
	_, err := e.run(ctx, event.OpDefundBundle, func(tx *Tx) error {
		st := tx.state
		b, err := st.Pool.Bundle(bundleID)
		if err != nil {
			return err
		}
		if err := st.Pool.Defund(bundleID, amount, tx.now); err != nil {
			return err
		}
		if err := st.Treasury.TransferWithdrawal(tx.ctx, tx.settlement, e.cfg.RiskpoolID, bundleID, b.Owner, amount); err != nil {
			return err
		}
		tx.ref = strconv.FormatInt(bundleID, 10)
		tx.result = FundResult{BundleID: bundleID, Gross: amount, Net: amount}
		return nil
	})
	return err
}

func (e *Engine) LockBundle(ctx context.Context, bundleID int64) error {
	return e.bundleTransition(ctx, event.OpLockBundle, bundleID, func(p *pool.Pool, tx *Tx) error {
		return p.Lock(bundleID, tx.now)
	})
}

func (e *Engine) UnlockBundle(ctx context.Context, bundleID int64) error {
	return e.bundleTransition(ctx, event.OpUnlockBundle, bundleID, func(p *pool.Pool, tx *Tx) error {
		return p.Unlock(bundleID, tx.now)
	})
}

// CloseBundle requires that no policy is collateralized by the bundle.
func (e *Engine) CloseBundle(ctx context.Context, bundleID int64) error {
	return e.bundleTransition(ctx, event.OpCloseBundle, bundleID, func(p *pool.Pool, tx *Tx) error {
		return p.Close(bundleID, tx.now)
	})
}

// BurnBundle retires a Closed bundle and pays its remaining balance to the
// owner. Returns the amount paid.
func (e *Engine) BurnBundle(ctx context.Context, bundleID int64) (int64, error) {
	tx, err := e.run(ctx, event.OpBurnBundle, func(tx *Tx) error {
		st := tx.state
		b, err := st.Pool.Bundle(bundleID)
		if err != nil {
			return err
		}
		residual, err := st.Pool.Burn(bundleID, tx.now)
		if err != nil {
			return err
		}
		if residual > 0 {
			if err := st.Treasury.TransferWithdrawal(tx.ctx, tx.settlement, e.cfg.RiskpoolID, bundleID, b.Owner, residual); err != nil {
				return err
			}
		}
		tx.ref = strconv.FormatInt(bundleID, 10)
		tx.result = FundResult{BundleID: bundleID, Gross: residual, Net: residual}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return tx.result.(FundResult).Net, nil
}

// SetMaximumNumberOfActiveBundles changes the cap on Active and Locked
// bundles.
func (e *Engine) SetMaximumNumberOfActiveBundles(ctx context.Context, n int) error {
	_, err := e.run(ctx, event.OpSetMaxActiveBundles, func(tx *Tx) error {
		tx.ref = e.cfg.RiskpoolID
		tx.result = n
		return tx.state.Pool.SetMaximumNumberOfActiveBundles(n)
	})
	return err
}

func (e *Engine) bundleTransition(ctx context.Context, op event.OpType, bundleID int64, fn func(*pool.Pool, *Tx) error) error {
	_, err := e.run(ctx, op, func(tx *Tx) error {
		if err := fn(tx.state.Pool, tx); err != nil {
			return err
		}
		tx.ref = strconv.FormatInt(bundleID, 10)
		return nil
	})
	return err
}
