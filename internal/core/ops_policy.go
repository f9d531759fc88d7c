package core

import (
	"ParaLedger/internal/apperr"
	"ParaLedger/internal/event"
	"ParaLedger/internal/policy"
	"ParaLedger/internal/token"
	"context"

	"github.com/google/uuid"
)

// ApplyResult reports an application and whether it was underwritten right
// away. An underwriting failure leaves the application Applied.
type ApplyResult struct {
	ApplicationID uuid.UUID      `json:"applicationId"`
	Underwritten  bool           `json:"underwritten"`
	Reason        apperr.Reason  `json:"reason,omitempty"`
	Policy        *policy.Policy `json:"policy,omitempty"`
}

// PremiumResult reports a premium collection.
type PremiumResult struct {
	PolicyID uuid.UUID `json:"policyId"`
	Amount   int64     `json:"amount"`
	Fee      int64     `json:"fee"`
	Net      int64     `json:"net"`
}

// ApplyForPolicy records an application for riskID and then tries to
// underwrite it in a separate transaction.
func (e *Engine) ApplyForPolicy(ctx context.Context, owner token.Address, premium, sumInsured int64, riskID uuid.UUID, data []byte) (ApplyResult, error) {
	tx, err := e.run(ctx, event.OpApply, func(tx *Tx) error {
		if _, err := tx.state.Risks.Get(riskID); err != nil {
			return err
		}
		app, err := tx.state.Book.CreateApplication(uuid.New(), owner, e.cfg.ProductID, riskID, premium, sumInsured, data, tx.now)
		if err != nil {
			return err
		}
		tx.ref = app.ID.String()
		tx.result = app
		return nil
	})
	if err != nil {
		return ApplyResult{}, err
	}
	app := tx.result.(*policy.Application)
	res := ApplyResult{ApplicationID: app.ID}

	p, err := e.Underwrite(WithIdempotencyKey(ctx, ""), app.ID)
	if err != nil {
		res.Reason = apperr.ReasonOf(err)
		e.logger.Warn().
			Err(err).
			Str("application", app.ID.String()).
			Str("reason", string(res.Reason)).
			Msg("underwriting failed, application stays applied")
		return res, nil
	}
	res.Underwritten = true
	res.Policy = p
	return res, nil
}

// Underwrite collateralizes the application, creates the policy and
// collects the full premium. Underwriting twice returns the policy.
func (e *Engine) Underwrite(ctx context.Context, id uuid.UUID) (*policy.Policy, error) {
	tx, err := e.run(ctx, event.OpUnderwrite, func(tx *Tx) error {
		st := tx.state
		app, done, err := st.Book.CheckUnderwrite(id)
		if err != nil {
			return err
		}
		if done {
			tx.noop = true
			tx.result, err = st.Book.Policy(id)
			return err
		}

		alloc, err := st.Pool.Collateralize(id, app.SumInsuredAmount, app.Data, tx.now)
		if err != nil {
			return err
		}
		if _, err := st.Book.Underwrite(id, tx.now); err != nil {
			return err
		}
		if err := st.Risks.AddPolicy(app.RiskID, id); err != nil {
			return err
		}
		if err := e.collect(tx, app.ProductID, id, alloc.BundleID, app.Owner, app.PremiumAmount); err != nil {
			return err
		}

		tx.ref = id.String()
		tx.result, err = st.Book.Policy(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !tx.noop && e.metrics != nil {
		e.metrics.PoliciesUnderwritten.Inc()
	}
	return tx.result.(*policy.Policy), nil
}

// collect charges amount of premium from payer and books it on the policy
// and its bundle.
func (e *Engine) collect(tx *Tx, productID string, id uuid.UUID, bundleID int64, payer token.Address, amount int64) error {
	st := tx.state
	fee, net, err := st.Treasury.TransferPremium(tx.ctx, tx.settlement, productID, id, bundleID, payer, amount)
	if err != nil {
		return err
	}
	if err := st.Pool.ProcessPremium(id, net, tx.now); err != nil {
		return err
	}
	if err := st.Book.AddPremium(id, amount, tx.now); err != nil {
		return err
	}
	tx.feeCollected(productID, fee)
	tx.premium += amount
	tx.result = PremiumResult{PolicyID: id, Amount: amount, Fee: fee, Net: net}
	return nil
}

// Decline rejects an Applied application.
func (e *Engine) Decline(ctx context.Context, id uuid.UUID) error {
	_, err := e.run(ctx, event.OpDecline, func(tx *Tx) error {
		tx.ref = id.String()
		return tx.state.Book.Decline(id, tx.now)
	})
	return err
}

// Revoke withdraws an Applied application.
func (e *Engine) Revoke(ctx context.Context, id uuid.UUID) error {
	_, err := e.run(ctx, event.OpRevoke, func(tx *Tx) error {
		tx.ref = id.String()
		return tx.state.Book.Revoke(id, tx.now)
	})
	return err
}

// AdjustPremiumSumInsured changes premium and sum insured of an Applied
// application or an Active policy. The sum insured can only go down and
// collateral already locked stays locked.
func (e *Engine) AdjustPremiumSumInsured(ctx context.Context, id uuid.UUID, premium, sumInsured int64) error {
	_, err := e.run(ctx, event.OpAdjustPolicy, func(tx *Tx) error {
		tx.ref = id.String()
		tx.result = map[string]int64{"premium": premium, "sumInsured": sumInsured}
		return tx.state.Book.Adjust(id, premium, sumInsured, tx.now)
	})
	return err
}

// CollectPremium charges the holder up to amount of the premium still
// expected; 0 collects the whole remainder. Nothing left to collect is a
// no-op.
func (e *Engine) CollectPremium(ctx context.Context, id uuid.UUID, amount int64) (PremiumResult, error) {
	tx, err := e.run(ctx, event.OpCollectPremium, func(tx *Tx) error {
		st := tx.state
		due, err := st.Book.PremiumDue(id, amount)
		if err != nil {
			return err
		}
		if due == 0 {
			tx.noop = true
			tx.result = PremiumResult{PolicyID: id}
			return nil
		}
		alloc, ok := st.Pool.AllocationOf(id)
		if !ok {
			return apperr.New(apperr.PolicyNotActive, "policy %s holds no collateral", id)
		}
		app, err := st.Book.Application(id)
		if err != nil {
			return err
		}
		tx.ref = id.String()
		return e.collect(tx, app.ProductID, id, alloc.BundleID, app.Owner, due)
	})
	if err != nil {
		return PremiumResult{}, err
	}
	return tx.result.(PremiumResult), nil
}

// Expire ends the coverage of an Active policy.
func (e *Engine) Expire(ctx context.Context, id uuid.UUID) error {
	_, err := e.run(ctx, event.OpExpire, func(tx *Tx) error {
		tx.ref = id.String()
		return expire(tx, id)
	})
	return err
}

// Close finishes an Expired policy without open claims and releases the
// collateral it still holds.
func (e *Engine) Close(ctx context.Context, id uuid.UUID) error {
	_, err := e.run(ctx, event.OpClose, func(tx *Tx) error {
		tx.ref = id.String()
		return closePolicy(tx, id)
	})
	return err
}

func expire(tx *Tx, id uuid.UUID) error {
	st := tx.state
	if err := st.Book.Expire(id, tx.now); err != nil {
		return err
	}
	app, err := st.Book.Application(id)
	if err != nil {
		return err
	}
	st.Risks.RemovePolicy(app.RiskID, id)
	return nil
}

func closePolicy(tx *Tx, id uuid.UUID) error {
	st := tx.state
	if err := st.Book.Close(id, tx.now); err != nil {
		return err
	}
	if _, ok := st.Pool.AllocationOf(id); ok {
		if _, err := st.Pool.ReleaseAll(id, tx.now); err != nil {
			return err
		}
	}
	return nil
}
