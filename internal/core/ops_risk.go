package core

import (
	"ParaLedger/internal/apperr"
	"ParaLedger/internal/event"
	"ParaLedger/internal/risk"
	"context"

	"github.com/google/uuid"
)

func (e *Engine) CreateRisk(ctx context.Context, projectID, uaiID, cropID string, params risk.Params) (*risk.Risk, error) {
	tx, err := e.run(ctx, event.OpCreateRisk, func(tx *Tx) error {
		r, err := tx.state.Risks.Create(projectID, uaiID, cropID, params, tx.now)
		if err != nil {
			return err
		}
		tx.ref = r.ID.String()
		tx.result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tx.result.(*risk.Risk), nil
}

// AdjustRisk replaces the parameters of a risk no policy refers to yet.
func (e *Engine) AdjustRisk(ctx context.Context, riskID uuid.UUID, params risk.Params) error {
	_, err := e.run(ctx, event.OpAdjustRisk, func(tx *Tx) error {
		tx.ref = riskID.String()
		tx.result = params
		return tx.state.Risks.Adjust(riskID, params, tx.now)
	})
	return err
}

// TriggerEvaluation opens an oracle request for the risk and hands it to
// the oracle. Returns the request id.
func (e *Engine) TriggerEvaluation(ctx context.Context, riskID uuid.UUID) (uint64, error) {
	tx, err := e.run(ctx, event.OpTriggerOracle, func(tx *Tx) error {
		reqID, err := e.trigger(tx, riskID)
		if err != nil {
			return err
		}
		tx.ref = riskID.String()
		tx.result = reqID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return tx.result.(uint64), nil
}

func (e *Engine) trigger(tx *Tx, riskID uuid.UUID) (uint64, error) {
	reqID, err := tx.state.Risks.Trigger(riskID, tx.now)
	if err != nil {
		return 0, err
	}
	r, _ := tx.state.Risks.Get(riskID)
	req := OracleRequest{
		RequestID: reqID,
		RiskID:    riskID,
		ProjectID: r.ProjectID,
		UaiID:     r.UaiID,
		CropID:    r.CropID,
	}
	if err := e.oracle.Request(tx.ctx, req); err != nil {
		return 0, apperr.New(apperr.OracleUnavailable, "request %d for risk %s: %v", reqID, riskID, err)
	}
	tx.requests++
	return reqID, nil
}

// CancelEvaluation withdraws the outstanding request of a risk. A response
// arriving later is rejected as stale.
func (e *Engine) CancelEvaluation(ctx context.Context, riskID uuid.UUID) error {
	_, err := e.run(ctx, event.OpCancelOracle, func(tx *Tx) error {
		reqID, err := tx.state.Risks.Cancel(riskID, tx.now)
		if err != nil {
			return err
		}
		if err := e.oracle.Cancel(tx.ctx, reqID); err != nil {
			return apperr.New(apperr.OracleUnavailable, "cancel request %d: %v", reqID, err)
		}
		tx.ref = riskID.String()
		tx.result = reqID
		return nil
	})
	return err
}

// Respond delivers an oracle response. Rejected responses are reported in
// the outcome, not as an error, and change nothing.
func (e *Engine) Respond(ctx context.Context, requestID uint64, resp risk.Response) (risk.Outcome, error) {
	tx, err := e.run(ctx, event.OpOracleResponse, func(tx *Tx) error {
		out := tx.state.Risks.Respond(requestID, resp, tx.now)
		tx.result = out
		if !out.Accepted {
			tx.noop = true
			return nil
		}
		tx.ref = out.RiskID.String()
		return nil
	})
	if err != nil {
		return risk.Outcome{}, err
	}
	out := tx.result.(risk.Outcome)

	outcome := "accepted"
	if !out.Accepted {
		outcome = string(out.Reason)
		e.logger.Info().
			Uint64("request_id", requestID).
			Str("reason", string(out.Reason)).
			Str("project", resp.ProjectID).
			Str("uai", resp.UaiID).
			Str("crop", resp.CropID).
			Msg("oracle response rejected")
	}
	if e.metrics != nil {
		e.metrics.OracleResponses.WithLabelValues(outcome).Inc()
	}
	return out, nil
}
