package core

import (
	"ParaLedger/internal/event"
	"ParaLedger/internal/token"
	"ParaLedger/internal/treasury"
	"context"
)

// SetFeeSpecification creates or replaces the fee rule of the product or
// the riskpool.
func (e *Engine) SetFeeSpecification(ctx context.Context, componentID string, fixedFee, fractionalFee int64, data []byte) (treasury.FeeSpecification, error) {
	tx, err := e.run(ctx, event.OpSetFeeSpec, func(tx *Tx) error {
		spec, err := tx.state.Treasury.SetFeeSpecification(componentID, fixedFee, fractionalFee, data, tx.now)
		if err != nil {
			return err
		}
		tx.ref = componentID
		tx.result = spec
		return nil
	})
	if err != nil {
		return treasury.FeeSpecification{}, err
	}
	return tx.result.(treasury.FeeSpecification), nil
}

// SuspendTreasury blocks every fund-moving operation until resumed.
func (e *Engine) SuspendTreasury(ctx context.Context) error {
	_, err := e.run(ctx, event.OpSuspendTreasury, func(tx *Tx) error {
		if tx.state.Treasury.Suspended() {
			tx.noop = true
			return nil
		}
		tx.state.Treasury.Suspend()
		e.logger.Warn().Msg("treasury suspended")
		return nil
	})
	return err
}

func (e *Engine) ResumeTreasury(ctx context.Context) error {
	_, err := e.run(ctx, event.OpResumeTreasury, func(tx *Tx) error {
		if !tx.state.Treasury.Suspended() {
			tx.noop = true
			return nil
		}
		tx.state.Treasury.Resume()
		e.logger.Info().Msg("treasury resumed")
		return nil
	})
	return err
}

// SetInstanceWallet sets where protocol fees are paid to.
func (e *Engine) SetInstanceWallet(ctx context.Context, wallet token.Address) error {
	_, err := e.run(ctx, event.OpSetInstanceWallet, func(tx *Tx) error {
		tx.ref = string(wallet)
		return tx.state.Treasury.SetInstanceWallet(wallet)
	})
	return err
}

// SetRiskpoolWallet sets the wallet that holds the riskpool's funds. The
// wallet must approve the operator for withdrawals and payouts.
func (e *Engine) SetRiskpoolWallet(ctx context.Context, wallet token.Address) error {
	_, err := e.run(ctx, event.OpSetRiskpoolWallet, func(tx *Tx) error {
		tx.ref = string(wallet)
		return tx.state.Treasury.SetRiskpoolWallet(e.cfg.RiskpoolID, wallet)
	})
	return err
}
