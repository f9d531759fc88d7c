package core

import (
	"ParaLedger/internal/apperr"
	"ParaLedger/internal/event"
	"ParaLedger/internal/policy"
	"ParaLedger/internal/risk"
	"context"

	"github.com/google/uuid"
)

// ClaimEvaluation is returned by SubmitClaimWithEvaluation. RequestID is
// meaningful unless the risk has already been evaluated.
type ClaimEvaluation struct {
	PolicyID  uuid.UUID `json:"policyId"`
	ClaimID   int       `json:"claimId"`
	RequestID uint64    `json:"requestId"`
	Responded bool      `json:"responded"`
}

// Settlement reports how one policy was settled against its risk's
// evaluation.
type Settlement struct {
	PolicyID uuid.UUID `json:"policyId"`
	ClaimID  int       `json:"claimId"`
	Amount   int64     `json:"amount"`
	PayoutID int       `json:"payoutId"`
}

func (e *Engine) SubmitClaim(ctx context.Context, id uuid.UUID, amount int64, data []byte) (*policy.Claim, error) {
	tx, err := e.run(ctx, event.OpSubmitClaim, func(tx *Tx) error {
		c, err := tx.state.Book.NewClaim(id, amount, data, tx.now)
		if err != nil {
			return err
		}
		tx.ref = id.String()
		tx.result = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tx.result.(*policy.Claim), nil
}

// SubmitClaimWithEvaluation opens a zero claim and makes sure the policy's
// risk has an oracle request in flight. The claim is settled when the risk
// is processed after the response.
func (e *Engine) SubmitClaimWithEvaluation(ctx context.Context, id uuid.UUID, data []byte) (ClaimEvaluation, error) {
	tx, err := e.run(ctx, event.OpSubmitClaim, func(tx *Tx) error {
		st := tx.state
		app, err := st.Book.Application(id)
		if err != nil {
			return err
		}
		c, err := st.Book.NewClaim(id, 0, data, tx.now)
		if err != nil {
			return err
		}
		r, err := st.Risks.Get(app.RiskID)
		if err != nil {
			return err
		}

		res := ClaimEvaluation{PolicyID: id, ClaimID: c.ID}
		switch {
		case r.Responded():
			res.Responded = true
		case r.RequestTriggered:
			res.RequestID = r.RequestID
		default:
			if res.RequestID, err = e.trigger(tx, r.ID); err != nil {
				return err
			}
		}
		tx.ref = id.String()
		tx.result = res
		return nil
	})
	if err != nil {
		return ClaimEvaluation{}, err
	}
	return tx.result.(ClaimEvaluation), nil
}

// ConfirmClaim fixes the amount to be paid on an Applied claim.
func (e *Engine) ConfirmClaim(ctx context.Context, id uuid.UUID, claimID int, amount int64) error {
	_, err := e.run(ctx, event.OpConfirmClaim, func(tx *Tx) error {
		tx.ref = id.String()
		tx.result = map[string]int64{"claimId": int64(claimID), "amount": amount}
		return tx.state.Book.ConfirmClaim(id, claimID, amount, tx.now)
	})
	return err
}

func (e *Engine) DeclineClaim(ctx context.Context, id uuid.UUID, claimID int) error {
	_, err := e.run(ctx, event.OpDeclineClaim, func(tx *Tx) error {
		tx.ref = id.String()
		tx.result = claimID
		return tx.state.Book.DeclineClaim(id, claimID, tx.now)
	})
	return err
}

// CloseClaim closes a Confirmed claim that needs no further payout.
func (e *Engine) CloseClaim(ctx context.Context, id uuid.UUID, claimID int) error {
	_, err := e.run(ctx, event.OpCloseClaim, func(tx *Tx) error {
		tx.ref = id.String()
		tx.result = claimID
		return tx.state.Book.CloseClaim(id, claimID, tx.now)
	})
	return err
}

// CreatePayout pays amount on a Confirmed claim from the policy's bundle to
// the holder.
func (e *Engine) CreatePayout(ctx context.Context, id uuid.UUID, claimID int, amount int64, data []byte) (*policy.Payout, error) {
	tx, err := e.run(ctx, event.OpCreatePayout, func(tx *Tx) error {
		po, err := e.payout(tx, id, claimID, amount, data)
		if err != nil {
			return err
		}
		tx.ref = id.String()
		tx.result = po
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tx.result.(*policy.Payout), nil
}

func (e *Engine) payout(tx *Tx, id uuid.UUID, claimID int, amount int64, data []byte) (*policy.Payout, error) {
	st := tx.state
	if err := st.Book.CheckPayout(id, claimID, amount); err != nil {
		return nil, err
	}
	alloc, err := st.Pool.CheckRelease(id, amount)
	if err != nil {
		return nil, err
	}
	app, err := st.Book.Application(id)
	if err != nil {
		return nil, err
	}
	if err := st.Treasury.TransferPayout(tx.ctx, tx.settlement, app.ProductID, id, alloc.BundleID, app.Owner, amount); err != nil {
		return nil, err
	}
	if _, err := st.Pool.Release(id, amount, tx.now); err != nil {
		return nil, err
	}
	po, err := st.Book.NewPayout(id, claimID, amount, data, tx.now)
	if err != nil {
		return nil, err
	}
	if err := st.Book.ProcessPayout(id, po.ID, tx.now); err != nil {
		return nil, err
	}
	tx.payouts++
	tx.paidOut += amount
	return st.Book.Payouts(id)[po.ID], nil
}

// ============================================================================
// Risk settlement
// ============================================================================

// ProcessPolicy settles one policy of an evaluated risk: the payout from the
// oracle's yield is claimed, confirmed and paid (or the zero claim closed),
// then the policy is expired and closed.
func (e *Engine) ProcessPolicy(ctx context.Context, id uuid.UUID) (Settlement, error) {
	tx, err := e.run(ctx, event.OpProcessPolicy, func(tx *Tx) error {
		app, err := tx.state.Book.Application(id)
		if err != nil {
			return err
		}
		r, err := tx.state.Risks.Get(app.RiskID)
		if err != nil {
			return err
		}
		if !r.Responded() {
			return apperr.New(apperr.OracleResponseMissing, "risk %s has no oracle response", r.ID)
		}
		s, err := e.settle(tx, id, r)
		if err != nil {
			return err
		}
		tx.ref = id.String()
		tx.result = s
		return nil
	})
	if err != nil {
		return Settlement{}, err
	}
	return tx.result.(Settlement), nil
}

// ProcessPoliciesForRisk settles up to n open policies of an evaluated
// risk, 0 meaning all. Repeated calls work through the risk's policies
// until none are left.
func (e *Engine) ProcessPoliciesForRisk(ctx context.Context, riskID uuid.UUID, n int) ([]Settlement, error) {
	tx, err := e.run(ctx, event.OpProcessRisk, func(tx *Tx) error {
		ids, err := tx.state.Risks.Batch(riskID, n)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			tx.noop = true
			tx.result = []Settlement{}
			return nil
		}
		r, _ := tx.state.Risks.Get(riskID)
		out := make([]Settlement, 0, len(ids))
		for _, id := range ids {
			s, err := e.settle(tx, id, r)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		tx.ref = riskID.String()
		tx.result = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tx.result.([]Settlement), nil
}

// settle pays the oracle's amount on the first Applied claim, or on a new
// one, and closes the policy. Other Applied claims are declined and
// Confirmed claims are paid what they are still owed first, so no open
// claim is left behind.
func (e *Engine) settle(tx *Tx, id uuid.UUID, r *risk.Risk) (Settlement, error) {
	st := tx.state
	claimID := -1
	for _, c := range st.Book.Claims(id) {
		switch c.State {
		case policy.ClaimApplied:
			if claimID < 0 {
				claimID = c.ID
				continue
			}
			if err := st.Book.DeclineClaim(id, c.ID, tx.now); err != nil {
				return Settlement{}, err
			}
		case policy.ClaimConfirmed:
			if owed := c.ClaimAmount - c.PaidAmount; owed > 0 {
				if _, err := e.payout(tx, id, c.ID, owed, nil); err != nil {
					return Settlement{}, err
				}
			} else if err := st.Book.CloseClaim(id, c.ID, tx.now); err != nil {
				return Settlement{}, err
			}
		}
	}

	p, err := st.Book.Policy(id)
	if err != nil {
		return Settlement{}, err
	}
	amount := max(0, min(r.PayoutAmount(p.PayoutMaxAmount), p.PayoutMaxAmount-p.PayoutAmount))

	if claimID < 0 {
		c, err := st.Book.NewClaim(id, amount, nil, tx.now)
		if err != nil {
			return Settlement{}, err
		}
		claimID = c.ID
	}
	if err := st.Book.ConfirmClaim(id, claimID, amount, tx.now); err != nil {
		return Settlement{}, err
	}

	s := Settlement{PolicyID: id, ClaimID: claimID, Amount: amount, PayoutID: -1}
	if amount > 0 {
		po, err := e.payout(tx, id, claimID, amount, nil)
		if err != nil {
			return Settlement{}, err
		}
		s.PayoutID = po.ID
	} else if err := st.Book.CloseClaim(id, claimID, tx.now); err != nil {
		return Settlement{}, err
	}

	if err := expire(tx, id); err != nil {
		return Settlement{}, err
	}
	if err := closePolicy(tx, id); err != nil {
		return Settlement{}, err
	}
	return s, nil
}
