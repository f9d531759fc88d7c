package server

import (
	"ParaLedger/internal/access"
	"ParaLedger/internal/core"
	"ParaLedger/internal/ingestion"
	fpmath "ParaLedger/internal/math"
	"ParaLedger/internal/query"
	"ParaLedger/internal/risk"
	"ParaLedger/internal/token"
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// Request bodies. Fractions are decimal strings, amounts integer token units.

type amountRequest struct {
	Amount int64 `json:"amount"`
}

type walletRequest struct {
	Wallet token.Address `json:"wallet"`
}

type feeRequest struct {
	Fixed    int64  `json:"fixed"`
	Fraction string `json:"fraction"`
	Data     string `json:"data,omitempty"`
}

type maxActiveRequest struct {
	MaxActiveBundles int `json:"max_active_bundles"`
}

type bundleRequest struct {
	Capital int64  `json:"capital"`
	Filter  string `json:"filter,omitempty"`
}

type riskParamsRequest struct {
	Trigger string `json:"trigger"`
	Exit    string `json:"exit"`
	TSI     string `json:"tsi"`
	APH     string `json:"aph"`
}

type riskRequest struct {
	ProjectID string `json:"project_id"`
	UaiID     string `json:"uai_id"`
	CropID    string `json:"crop_id"`
	riskParamsRequest
}

type applicationRequest struct {
	RiskID     uuid.UUID `json:"risk_id"`
	Premium    int64     `json:"premium"`
	SumInsured int64     `json:"sum_insured"`
	Data       string    `json:"data,omitempty"`
}

type adjustRequest struct {
	Premium    int64 `json:"premium"`
	SumInsured int64 `json:"sum_insured"`
}

type claimRequest struct {
	Amount int64  `json:"amount"`
	Data   string `json:"data,omitempty"`
}

type evaluateRequest struct {
	Data string `json:"data,omitempty"`
}

// Responses that are not a query view.

type fundResponse struct {
	BundleID int64 `json:"bundle_id"`
	Gross    int64 `json:"gross"`
	Fee      int64 `json:"fee"`
	Net      int64 `json:"net"`
}

type burnResponse struct {
	BundleID int64 `json:"bundle_id"`
	Paid     int64 `json:"paid"`
}

type triggerResponse struct {
	RiskID    uuid.UUID `json:"risk_id"`
	RequestID uint64    `json:"request_id"`
}

type outcomeResponse struct {
	RequestID uint64    `json:"request_id"`
	RiskID    uuid.UUID `json:"risk_id"`
	Accepted  bool      `json:"accepted"`
	Reason    string    `json:"reason,omitempty"`
}

type applyResponse struct {
	ApplicationID uuid.UUID `json:"application_id"`
	Underwritten  bool      `json:"underwritten"`
	Reason        string    `json:"reason,omitempty"`
}

type premiumResponse struct {
	PolicyID uuid.UUID `json:"policy_id"`
	Amount   int64     `json:"amount"`
	Fee      int64     `json:"fee"`
	Net      int64     `json:"net"`
}

type settlementResponse struct {
	PolicyID uuid.UUID `json:"policy_id"`
	ClaimID  int       `json:"claim_id"`
	Amount   int64     `json:"amount"`
	PayoutID int       `json:"payout_id"`
}

type evaluationResponse struct {
	PolicyID  uuid.UUID `json:"policy_id"`
	ClaimID   int       `json:"claim_id"`
	RequestID uint64    `json:"request_id,omitempty"`
	Responded bool      `json:"responded"`
}

func settlementView(s core.Settlement) settlementResponse {
	return settlementResponse{PolicyID: s.PolicyID, ClaimID: s.ClaimID, Amount: s.Amount, PayoutID: s.PayoutID}
}

func (p riskParamsRequest) riskParams() (risk.Params, error) {
	var out risk.Params
	fields := []struct {
		name string
		s    string
		dst  *int64
	}{
		{"trigger", p.Trigger, &out.Trigger},
		{"exit", p.Exit, &out.Exit},
		{"tsi", p.TSI, &out.TSI},
		{"aph", p.APH, &out.APH},
	}
	for _, f := range fields {
		v, err := fpmath.ParseScaled(f.s, fpmath.PercentageConfig)
		if err != nil {
			return risk.Params{}, invalid("%s: %v", f.name, err)
		}
		*f.dst = v
	}
	return out, nil
}

// ============================================================================
// Treasury
// ============================================================================

func (a *API) suspend(r *http.Request, _ params) (interface{}, error) {
	ctx := r.Context()
	if _, err := a.guard.RequireRole(ctx, access.RoleInstanceOperator); err != nil {
		return nil, err
	}
	if err := a.engine.SuspendTreasury(ctx); err != nil {
		return nil, err
	}
	return a.queries.GetRiskpool(), nil
}

func (a *API) resume(r *http.Request, _ params) (interface{}, error) {
	ctx := r.Context()
	if _, err := a.guard.RequireRole(ctx, access.RoleInstanceOperator); err != nil {
		return nil, err
	}
	if err := a.engine.ResumeTreasury(ctx); err != nil {
		return nil, err
	}
	return a.queries.GetRiskpool(), nil
}

func (a *API) setInstanceWallet(r *http.Request, _ params) (interface{}, error) {
	ctx := r.Context()
	if _, err := a.guard.RequireRole(ctx, access.RoleInstanceOperator); err != nil {
		return nil, err
	}
	var req walletRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if err := a.engine.SetInstanceWallet(ctx, req.Wallet); err != nil {
		return nil, err
	}
	return a.queries.GetRiskpool(), nil
}

func (a *API) setFee(r *http.Request, p params) (interface{}, error) {
	ctx := r.Context()
	if _, err := a.guard.RequireRole(ctx, access.RoleInstanceOperator); err != nil {
		return nil, err
	}
	var req feeRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	fraction := int64(0)
	if req.Fraction != "" {
		v, err := fpmath.ParseScaled(req.Fraction, fpmath.FeeFractionConfig)
		if err != nil {
			return nil, invalid("fraction: %v", err)
		}
		fraction = v
	}
	component := p["component"]
	if _, err := a.engine.SetFeeSpecification(ctx, component, req.Fixed, fraction, optionalBytes(req.Data)); err != nil {
		return nil, err
	}
	return a.queries.GetFeeSpecification(component)
}

func (a *API) getFee(_ *http.Request, p params) (interface{}, error) {
	return a.queries.GetFeeSpecification(p["component"])
}

func (a *API) quoteFee(r *http.Request, p params) (interface{}, error) {
	amount, err := queryInt(r, "amount", 0)
	if err != nil {
		return nil, err
	}
	return a.queries.QuoteFee(p["component"], amount)
}

// ============================================================================
// Riskpool and bundles
// ============================================================================

func (a *API) getRiskpool(_ *http.Request, _ params) (interface{}, error) {
	return a.queries.GetRiskpool(), nil
}

func (a *API) setRiskpoolWallet(r *http.Request, _ params) (interface{}, error) {
	ctx := r.Context()
	if _, err := a.guard.RequireRole(ctx, access.RoleInstanceOperator); err != nil {
		return nil, err
	}
	var req walletRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if err := a.engine.SetRiskpoolWallet(ctx, req.Wallet); err != nil {
		return nil, err
	}
	return a.queries.GetRiskpool(), nil
}

func (a *API) setMaxActiveBundles(r *http.Request, _ params) (interface{}, error) {
	ctx := r.Context()
	if _, err := a.guard.RequireRole(ctx, access.RoleProductOwner); err != nil {
		return nil, err
	}
	var req maxActiveRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if err := a.engine.SetMaximumNumberOfActiveBundles(ctx, req.MaxActiveBundles); err != nil {
		return nil, err
	}
	return a.queries.GetRiskpool(), nil
}

func (a *API) createBundle(r *http.Request, _ params) (interface{}, error) {
	ctx := r.Context()
	owner, err := a.guard.RequireRole(ctx, access.RoleInvestor)
	if err != nil {
		return nil, err
	}
	var req bundleRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	b, err := a.engine.CreateBundle(ctx, owner, optionalBytes(req.Filter), req.Capital)
	if err != nil {
		return nil, err
	}
	return a.queries.GetBundle(b.ID)
}

func (a *API) listBundles(_ *http.Request, _ params) (interface{}, error) {
	return a.queries.ListBundles(), nil
}

func (a *API) getBundle(_ *http.Request, p params) (interface{}, error) {
	id, err := p.Int64("id")
	if err != nil {
		return nil, err
	}
	return a.queries.GetBundle(id)
}

// ownedBundle resolves the bundle id and checks the caller owns it.
func (a *API) ownedBundle(r *http.Request, p params) (int64, error) {
	id, err := p.Int64("id")
	if err != nil {
		return 0, err
	}
	if _, err := a.guard.RequireBundleOwner(r.Context(), id); err != nil {
		return 0, err
	}
	return id, nil
}

func (a *API) fundBundle(r *http.Request, p params) (interface{}, error) {
	id, err := a.ownedBundle(r, p)
	if err != nil {
		return nil, err
	}
	var req amountRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	res, err := a.engine.FundBundle(r.Context(), id, req.Amount)
	if err != nil {
		return nil, err
	}
	return fundResponse{BundleID: res.BundleID, Gross: res.Gross, Fee: res.Fee, Net: res.Net}, nil
}

func (a *API) defundBundle(r *http.Request, p params) (interface{}, error) {
	id, err := a.ownedBundle(r, p)
	if err != nil {
		return nil, err
	}
	var req amountRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if err := a.engine.DefundBundle(r.Context(), id, req.Amount); err != nil {
		return nil, err
	}
	return a.queries.GetBundle(id)
}

func (a *API) bundleTransition(r *http.Request, p params, op func(ctx context.Context, id int64) error) (interface{}, error) {
	id, err := a.ownedBundle(r, p)
	if err != nil {
		return nil, err
	}
	if err := op(r.Context(), id); err != nil {
		return nil, err
	}
	return a.queries.GetBundle(id)
}

func (a *API) lockBundle(r *http.Request, p params) (interface{}, error) {
	return a.bundleTransition(r, p, a.engine.LockBundle)
}

func (a *API) unlockBundle(r *http.Request, p params) (interface{}, error) {
	return a.bundleTransition(r, p, a.engine.UnlockBundle)
}

func (a *API) closeBundle(r *http.Request, p params) (interface{}, error) {
	return a.bundleTransition(r, p, a.engine.CloseBundle)
}

func (a *API) burnBundle(r *http.Request, p params) (interface{}, error) {
	id, err := a.ownedBundle(r, p)
	if err != nil {
		return nil, err
	}
	paid, err := a.engine.BurnBundle(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return burnResponse{BundleID: id, Paid: paid}, nil
}

// ============================================================================
// Risks and the oracle
// ============================================================================

func (a *API) createRisk(r *http.Request, _ params) (interface{}, error) {
	ctx := r.Context()
	if _, err := a.guard.RequireRole(ctx, access.RoleProductOwner); err != nil {
		return nil, err
	}
	var req riskRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	rp, err := req.riskParams()
	if err != nil {
		return nil, err
	}
	created, err := a.engine.CreateRisk(ctx, req.ProjectID, req.UaiID, req.CropID, rp)
	if err != nil {
		return nil, err
	}
	return a.queries.GetRisk(created.ID)
}

func (a *API) listRisks(_ *http.Request, _ params) (interface{}, error) {
	return a.queries.ListRisks(), nil
}

func (a *API) getRisk(_ *http.Request, p params) (interface{}, error) {
	id, err := p.UUID("id")
	if err != nil {
		return nil, err
	}
	return a.queries.GetRisk(id)
}

func (a *API) adjustRisk(r *http.Request, p params) (interface{}, error) {
	ctx := r.Context()
	if _, err := a.guard.RequireRole(ctx, access.RoleProductOwner); err != nil {
		return nil, err
	}
	id, err := p.UUID("id")
	if err != nil {
		return nil, err
	}
	var req riskParamsRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	rp, err := req.riskParams()
	if err != nil {
		return nil, err
	}
	if err := a.engine.AdjustRisk(ctx, id, rp); err != nil {
		return nil, err
	}
	return a.queries.GetRisk(id)
}

func (a *API) triggerEvaluation(r *http.Request, p params) (interface{}, error) {
	ctx := r.Context()
	if _, err := a.guard.RequireRole(ctx, access.RoleProductOwner); err != nil {
		return nil, err
	}
	id, err := p.UUID("id")
	if err != nil {
		return nil, err
	}
	reqID, err := a.engine.TriggerEvaluation(ctx, id)
	if err != nil {
		return nil, err
	}
	return triggerResponse{RiskID: id, RequestID: reqID}, nil
}

func (a *API) cancelEvaluation(r *http.Request, p params) (interface{}, error) {
	ctx := r.Context()
	if _, err := a.guard.RequireRole(ctx, access.RoleProductOwner); err != nil {
		return nil, err
	}
	id, err := p.UUID("id")
	if err != nil {
		return nil, err
	}
	if err := a.engine.CancelEvaluation(ctx, id); err != nil {
		return nil, err
	}
	return a.queries.GetRisk(id)
}

func (a *API) processRisk(r *http.Request, p params) (interface{}, error) {
	ctx := r.Context()
	if _, err := a.guard.RequireRole(ctx, access.RoleInsurer); err != nil {
		return nil, err
	}
	id, err := p.UUID("id")
	if err != nil {
		return nil, err
	}
	batch, err := queryInt(r, "batch", 0)
	if err != nil {
		return nil, err
	}
	if batch < 0 {
		return nil, invalid("batch must not be negative")
	}
	settled, err := a.engine.ProcessPoliciesForRisk(ctx, id, int(batch))
	if err != nil {
		return nil, err
	}
	out := make([]settlementResponse, 0, len(settled))
	for _, s := range settled {
		out = append(out, settlementView(s))
	}
	return out, nil
}

// oracleResponse accepts the same JSON body the oracle adapter publishes on
// NATS, for providers that answer over HTTP.
func (a *API) oracleResponse(r *http.Request, p params) (interface{}, error) {
	ctx := r.Context()
	if _, err := a.guard.RequireRole(ctx, access.RoleOracleProvider); err != nil {
		return nil, err
	}
	pathID, err := strconv.ParseUint(p["requestId"], 10, 64)
	if err != nil {
		return nil, invalid("requestId must be an unsigned integer, got %q", p["requestId"])
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, invalid("read body: %v", err)
	}
	reqID, resp, err := ingestion.ParseOracleResponse(ingestion.ResponseSubject(pathID), body)
	if err != nil {
		return nil, invalid("%v", err)
	}
	out, err := a.engine.Respond(ctx, reqID, resp)
	if err != nil {
		return nil, err
	}
	return outcomeResponse{RequestID: out.RequestID, RiskID: out.RiskID, Accepted: out.Accepted, Reason: string(out.Reason)}, nil
}

// ============================================================================
// Applications and policies
// ============================================================================

func (a *API) apply(r *http.Request, _ params) (interface{}, error) {
	ctx := r.Context()
	owner, err := a.guard.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	var req applicationRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	res, err := a.engine.ApplyForPolicy(ctx, owner, req.Premium, req.SumInsured, req.RiskID, optionalBytes(req.Data))
	if err != nil {
		return nil, err
	}
	return applyResponse{ApplicationID: res.ApplicationID, Underwritten: res.Underwritten, Reason: string(res.Reason)}, nil
}

func (a *API) getApplication(_ *http.Request, p params) (interface{}, error) {
	id, err := p.UUID("id")
	if err != nil {
		return nil, err
	}
	return a.queries.GetApplication(id)
}

func (a *API) getPolicy(_ *http.Request, p params) (interface{}, error) {
	id, err := p.UUID("id")
	if err != nil {
		return nil, err
	}
	return a.queries.GetPolicy(id)
}

// withRole resolves the {id} path parameter after checking the caller's role.
func (a *API) withRole(r *http.Request, p params, role access.Role) (uuid.UUID, error) {
	if _, err := a.guard.RequireRole(r.Context(), role); err != nil {
		return uuid.Nil, err
	}
	return p.UUID("id")
}

// asHolder resolves the {id} path parameter and checks the caller holds it.
func (a *API) asHolder(r *http.Request, p params) (uuid.UUID, error) {
	id, err := p.UUID("id")
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := a.guard.RequirePolicyHolder(r.Context(), id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (a *API) underwrite(r *http.Request, p params) (interface{}, error) {
	id, err := a.withRole(r, p, access.RoleProductOwner)
	if err != nil {
		return nil, err
	}
	if _, err := a.engine.Underwrite(r.Context(), id); err != nil {
		return nil, err
	}
	return a.queries.GetPolicy(id)
}

func (a *API) decline(r *http.Request, p params) (interface{}, error) {
	id, err := a.withRole(r, p, access.RoleProductOwner)
	if err != nil {
		return nil, err
	}
	if err := a.engine.Decline(r.Context(), id); err != nil {
		return nil, err
	}
	return a.queries.GetApplication(id)
}

func (a *API) revoke(r *http.Request, p params) (interface{}, error) {
	id, err := a.asHolder(r, p)
	if err != nil {
		return nil, err
	}
	if err := a.engine.Revoke(r.Context(), id); err != nil {
		return nil, err
	}
	return a.queries.GetApplication(id)
}

func (a *API) adjust(r *http.Request, p params) (interface{}, error) {
	id, err := a.asHolder(r, p)
	if err != nil {
		return nil, err
	}
	var req adjustRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if err := a.engine.AdjustPremiumSumInsured(r.Context(), id, req.Premium, req.SumInsured); err != nil {
		return nil, err
	}
	return a.queries.GetApplication(id)
}

func (a *API) collectPremium(r *http.Request, p params) (interface{}, error) {
	id, err := a.asHolder(r, p)
	if err != nil {
		return nil, err
	}
	var req amountRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	res, err := a.engine.CollectPremium(r.Context(), id, req.Amount)
	if err != nil {
		return nil, err
	}
	return premiumResponse{PolicyID: res.PolicyID, Amount: res.Amount, Fee: res.Fee, Net: res.Net}, nil
}

func (a *API) expire(r *http.Request, p params) (interface{}, error) {
	id, err := a.withRole(r, p, access.RoleInsurer)
	if err != nil {
		return nil, err
	}
	if err := a.engine.Expire(r.Context(), id); err != nil {
		return nil, err
	}
	return a.queries.GetPolicy(id)
}

func (a *API) closePolicy(r *http.Request, p params) (interface{}, error) {
	id, err := a.withRole(r, p, access.RoleInsurer)
	if err != nil {
		return nil, err
	}
	if err := a.engine.Close(r.Context(), id); err != nil {
		return nil, err
	}
	return a.queries.GetPolicy(id)
}

func (a *API) processPolicy(r *http.Request, p params) (interface{}, error) {
	id, err := a.withRole(r, p, access.RoleInsurer)
	if err != nil {
		return nil, err
	}
	s, err := a.engine.ProcessPolicy(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return settlementView(s), nil
}

// ============================================================================
// Claims and payouts
// ============================================================================

func (a *API) submitClaim(r *http.Request, p params) (interface{}, error) {
	id, err := a.asHolder(r, p)
	if err != nil {
		return nil, err
	}
	var req claimRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	c, err := a.engine.SubmitClaim(r.Context(), id, req.Amount, optionalBytes(req.Data))
	if err != nil {
		return nil, err
	}
	return query.ClaimView{ID: c.ID, State: c.State.String(), ClaimAmount: c.ClaimAmount, PaidAmount: c.PaidAmount}, nil
}

func (a *API) submitClaimWithEvaluation(r *http.Request, p params) (interface{}, error) {
	id, err := a.asHolder(r, p)
	if err != nil {
		return nil, err
	}
	var req evaluateRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			return nil, err
		}
	}
	ev, err := a.engine.SubmitClaimWithEvaluation(r.Context(), id, optionalBytes(req.Data))
	if err != nil {
		return nil, err
	}
	return evaluationResponse{PolicyID: ev.PolicyID, ClaimID: ev.ClaimID, RequestID: ev.RequestID, Responded: ev.Responded}, nil
}

// claimAsInsurer resolves {id} and {cid} for the insurer-only claim routes.
func (a *API) claimAsInsurer(r *http.Request, p params) (uuid.UUID, int, error) {
	id, err := a.withRole(r, p, access.RoleInsurer)
	if err != nil {
		return uuid.Nil, 0, err
	}
	cid, err := p.Int("cid")
	if err != nil {
		return uuid.Nil, 0, err
	}
	return id, cid, nil
}

func (a *API) confirmClaim(r *http.Request, p params) (interface{}, error) {
	id, cid, err := a.claimAsInsurer(r, p)
	if err != nil {
		return nil, err
	}
	var req amountRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if err := a.engine.ConfirmClaim(r.Context(), id, cid, req.Amount); err != nil {
		return nil, err
	}
	return a.queries.GetPolicy(id)
}

func (a *API) declineClaim(r *http.Request, p params) (interface{}, error) {
	id, cid, err := a.claimAsInsurer(r, p)
	if err != nil {
		return nil, err
	}
	if err := a.engine.DeclineClaim(r.Context(), id, cid); err != nil {
		return nil, err
	}
	return a.queries.GetPolicy(id)
}

func (a *API) closeClaim(r *http.Request, p params) (interface{}, error) {
	id, cid, err := a.claimAsInsurer(r, p)
	if err != nil {
		return nil, err
	}
	if err := a.engine.CloseClaim(r.Context(), id, cid); err != nil {
		return nil, err
	}
	return a.queries.GetPolicy(id)
}

func (a *API) createPayout(r *http.Request, p params) (interface{}, error) {
	id, cid, err := a.claimAsInsurer(r, p)
	if err != nil {
		return nil, err
	}
	var req claimRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	po, err := a.engine.CreatePayout(r.Context(), id, cid, req.Amount, optionalBytes(req.Data))
	if err != nil {
		return nil, err
	}
	return query.PayoutView{ID: po.ID, ClaimID: po.ClaimID, State: po.State.String(), Amount: po.Amount}, nil
}

// ============================================================================
// History
// ============================================================================

func pageSize(r *http.Request) (int, error) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		return 0, err
	}
	if limit <= 0 || limit > maxPageSize {
		return 0, invalid("limit must be between 1 and %d", maxPageSize)
	}
	return int(limit), nil
}

func (a *API) listOperations(r *http.Request, _ params) (interface{}, error) {
	from, err := queryInt(r, "from", 1)
	if err != nil {
		return nil, err
	}
	limit, err := pageSize(r)
	if err != nil {
		return nil, err
	}
	return a.queries.ListOperations(r.Context(), from, limit)
}

func (a *API) journalHistory(r *http.Request, _ params) (interface{}, error) {
	limit, err := pageSize(r)
	if err != nil {
		return nil, err
	}
	return a.queries.GetJournalHistory(r.Context(), r.URL.Query().Get("account"), limit)
}

func (a *API) verifyIntegrity(r *http.Request, _ params) (interface{}, error) {
	if _, err := a.guard.RequireRole(r.Context(), access.RoleInstanceOperator); err != nil {
		return nil, err
	}
	return a.queries.VerifyIntegrity(r.Context())
}
