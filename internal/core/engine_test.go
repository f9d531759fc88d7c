package core_test

import (
	"ParaLedger/internal/apperr"
	"ParaLedger/internal/core"
	fpmath "ParaLedger/internal/math"
	"ParaLedger/internal/policy"
	"ParaLedger/internal/pool"
	"ParaLedger/internal/risk"
	"ParaLedger/internal/token"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	operator       token.Address = "treasury"
	instanceWallet token.Address = "instance"
	riskpoolWallet token.Address = "riskpool"
	investor       token.Address = "investor"
	holder         token.Address = "holder"
	productID                    = "ayii"
	riskpoolID                   = "ayii-pool"
)

var ayii = risk.Params{
	Trigger: 750_000_000,
	Exit:    100_000_000,
	TSI:     900_000_000,
	APH:     10 * risk.U,
}

type recordingOracle struct {
	mu        sync.Mutex
	requests  []core.OracleRequest
	cancelled []uint64
}

func (o *recordingOracle) Request(_ context.Context, req core.OracleRequest) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, req)
	return nil
}

func (o *recordingOracle) Cancel(_ context.Context, requestID uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancelled = append(o.cancelled, requestID)
	return nil
}

type fixture struct {
	ctx     context.Context
	mem     *token.Memory
	engine  *core.Engine
	oracle  *recordingOracle
	persist chan core.Output
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := token.NewMemory(operator)
	return newFixtureWith(t, mem, mem)
}

func newFixtureWith(t *testing.T, account token.Account, mem *token.Memory) *fixture {
	t.Helper()
	ctx := context.Background()
	oracle := &recordingOracle{}
	persist := make(chan core.Output, 1024)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	eng, err := core.New(config(), account,
		core.WithOracle(oracle),
		core.WithOutputs(persist, nil),
		core.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	require.NoError(t, eng.SetInstanceWallet(ctx, instanceWallet))
	require.NoError(t, eng.SetRiskpoolWallet(ctx, riskpoolWallet))
	_, err = eng.SetFeeSpecification(ctx, productID, 0, 0, nil)
	require.NoError(t, err)
	_, err = eng.SetFeeSpecification(ctx, riskpoolID, 0, 0, nil)
	require.NoError(t, err)
	require.NoError(t, mem.Approve(ctx, riskpoolWallet, operator, 1<<40))

	return &fixture{ctx: ctx, mem: mem, engine: eng, oracle: oracle, persist: persist}
}

func config() core.Config {
	return core.Config{
		ProductID:              productID,
		RiskpoolID:             riskpoolID,
		Operator:               operator,
		CollateralizationLevel: fpmath.FeeFractionFullUnit,
		MaxActiveBundles:       5,
	}
}

func (f *fixture) wallet(t *testing.T, who token.Address, amount int64) {
	t.Helper()
	f.mem.Mint(who, amount)
	require.NoError(t, f.mem.Approve(f.ctx, who, operator, 1<<40))
}

func (f *fixture) balance(who token.Address) int64 {
	b, _ := f.mem.BalanceOf(f.ctx, who)
	return b
}

func (f *fixture) bundle(t *testing.T, capital int64) *pool.Bundle {
	t.Helper()
	f.wallet(t, investor, capital)
	b, err := f.engine.CreateBundle(f.ctx, investor, nil, capital)
	require.NoError(t, err)
	return b
}

func (f *fixture) risk(t *testing.T, uai string) *risk.Risk {
	t.Helper()
	r, err := f.engine.CreateRisk(f.ctx, "project", uai, "maize", ayii)
	require.NoError(t, err)
	return r
}

func (f *fixture) policy(t *testing.T, riskID uuid.UUID, premium, sumInsured int64) uuid.UUID {
	t.Helper()
	f.wallet(t, holder, premium)
	res, err := f.engine.ApplyForPolicy(f.ctx, holder, premium, sumInsured, riskID, nil)
	require.NoError(t, err)
	require.True(t, res.Underwritten, "underwriting failed: %s", res.Reason)
	return res.ApplicationID
}

func (f *fixture) respond(t *testing.T, r *risk.Risk, aaay int64) {
	t.Helper()
	reqID, err := f.engine.TriggerEvaluation(f.ctx, r.ID)
	require.NoError(t, err)
	out, err := f.engine.Respond(f.ctx, reqID, risk.Response{
		ProjectID: r.ProjectID, UaiID: r.UaiID, CropID: r.CropID, AAAY: aaay,
	})
	require.NoError(t, err)
	require.True(t, out.Accepted, "response rejected: %s", out.Reason)
}

func drain(ch chan core.Output) []core.Output {
	var out []core.Output
	for {
		select {
		case o := <-ch:
			out = append(out, o)
		default:
			return out
		}
	}
}

// ============================================================================
// Test: Fees and funding
// ============================================================================

func TestCreateBundle_FixedFeeFunding(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.SetFeeSpecification(f.ctx, riskpoolID, 42, fpmath.FeeFractionFullUnit/20, nil)
	require.NoError(t, err)

	b := f.bundle(t, 10_000)
	assert.Equal(t, int64(9458), b.Capital)
	assert.Equal(t, int64(9458), b.Balance)
	assert.Equal(t, int64(542), f.balance(instanceWallet))
	assert.Equal(t, int64(9458), f.balance(riskpoolWallet))

	fees, err := f.engine.Balance("instance:fees")
	require.NoError(t, err)
	assert.Equal(t, int64(542), fees)

	f.wallet(t, investor, 1000)
	res, err := f.engine.FundBundle(f.ctx, b.ID, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(92), res.Fee)
	assert.Equal(t, int64(908), res.Net)

	got, err := f.engine.Bundle(b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10_366), got.Capital)
	assert.Equal(t, int64(10_366), got.Balance)
}

func TestQuoteFee_FeePlusNetEqualsGross(t *testing.T) {
	f := newFixture(t)
	fraction := fpmath.FeeFractionFullUnit / 20
	_, err := f.engine.SetFeeSpecification(f.ctx, productID, 42, fraction, nil)
	require.NoError(t, err)

	for _, amount := range []int64{45, 46, 99, 100, 1_001, 123_457, 9_999_999} {
		fee, net, err := f.engine.QuoteFee(productID, amount)
		require.NoError(t, err)
		assert.Equal(t, amount, fee+net, "amount %d", amount)
		assert.Equal(t, 42+amount*5/100, fee, "amount %d", amount)
	}

	_, _, err = f.engine.QuoteFee(productID, 44)
	assert.Equal(t, apperr.FeeExceedsAmount, apperr.ReasonOf(err))
}

// ============================================================================
// Test: Underwriting and allocation
// ============================================================================

func TestApplyForPolicy_FirstFitAllocation(t *testing.T) {
	f := newFixture(t)
	for _, capital := range []int64{6000, 2000, 1000} {
		f.bundle(t, capital)
	}
	r := f.risk(t, "uai-1")

	for i := 0; i < 9; i++ {
		f.policy(t, r.ID, 100, 1000)
	}

	bundles := f.engine.Bundles()
	require.Len(t, bundles, 3)
	for i, want := range []int64{6000, 2000, 1000} {
		assert.Equal(t, want, bundles[i].LockedCapital, "bundle %d", bundles[i].ID)
	}

	f.wallet(t, holder, 100)
	res, err := f.engine.ApplyForPolicy(f.ctx, holder, 100, 1000, r.ID, nil)
	require.NoError(t, err)
	assert.False(t, res.Underwritten)
	assert.Equal(t, apperr.InsufficientCapital, res.Reason)

	app, err := f.engine.Application(res.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, policy.ApplicationApplied, app.State)
	assert.Equal(t, 9, f.engine.RiskPolicyCount(r.ID))
}

func TestApplyForPolicy_UnknownRisk(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.ApplyForPolicy(f.ctx, holder, 100, 1000, uuid.New(), nil)
	assert.Equal(t, apperr.RiskDoesNotExist, apperr.ReasonOf(err))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestUnderwrite_SecondCallIsNoop(t *testing.T) {
	f := newFixture(t)
	f.bundle(t, 5000)
	r := f.risk(t, "uai-1")
	id := f.policy(t, r.ID, 100, 1000)
	seq := f.engine.Sequence()
	paid := f.balance(holder)

	p, err := f.engine.Underwrite(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, policy.PolicyActive, p.State)
	assert.Equal(t, int64(100), p.PremiumPaidAmount)
	assert.Equal(t, seq, f.engine.Sequence())
	assert.Equal(t, paid, f.balance(holder))
}

func TestCollectPremium_ClampsAndNoop(t *testing.T) {
	f := newFixture(t)
	f.bundle(t, 5000)
	r := f.risk(t, "uai-1")
	id := f.policy(t, r.ID, 100, 1000)

	require.NoError(t, f.engine.AdjustPremiumSumInsured(f.ctx, id, 150, 1000))
	f.wallet(t, holder, 50)

	res, err := f.engine.CollectPremium(f.ctx, id, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.Amount)

	seq := f.engine.Sequence()
	res, err = f.engine.CollectPremium(f.ctx, id, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Amount)
	assert.Equal(t, seq, f.engine.Sequence())

	b, err := f.engine.Bundle(1)
	require.NoError(t, err)
	assert.Equal(t, int64(5150), b.Balance)
	assert.Equal(t, int64(1000), b.LockedCapital)
}

// ============================================================================
// Test: Settlement against the oracle
// ============================================================================

func TestProcessPolicy_PaysOracleYield(t *testing.T) {
	f := newFixture(t)
	f.bundle(t, 20_000)
	r := f.risk(t, "uai-1")
	id := f.policy(t, r.ID, 500, 10_000)

	_, err := f.engine.ProcessPolicy(f.ctx, id)
	assert.Equal(t, apperr.OracleResponseMissing, apperr.ReasonOf(err))

	f.respond(t, r, 7*risk.U)
	require.Len(t, f.oracle.requests, 1)
	assert.Equal(t, uint64(0), f.oracle.requests[0].RequestID)

	s, err := f.engine.ProcessPolicy(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(692), s.Amount)

	p, err := f.engine.Policy(id)
	require.NoError(t, err)
	assert.Equal(t, policy.PolicyClosed, p.State)
	assert.Equal(t, int64(692), p.PayoutAmount)
	assert.Equal(t, 0, p.OpenClaimsCount)

	claims := f.engine.Claims(id)
	require.Len(t, claims, 1)
	assert.Equal(t, policy.ClaimClosed, claims[0].State)
	assert.Equal(t, int64(692), claims[0].PaidAmount)

	b, err := f.engine.Bundle(1)
	require.NoError(t, err)
	assert.Equal(t, int64(19_308), b.Capital)
	assert.Equal(t, int64(0), b.LockedCapital)
	assert.Equal(t, int64(19_808), b.Balance)
	assert.Equal(t, int64(692), f.balance(holder))
	assert.Equal(t, int64(19_808), f.balance(riskpoolWallet))
}

func TestProcessPoliciesForRisk_Batches(t *testing.T) {
	f := newFixture(t)
	f.bundle(t, 10_000)
	r := f.risk(t, "uai-1")
	ids := make(map[uuid.UUID]bool)
	for i := 0; i < 5; i++ {
		ids[f.policy(t, r.ID, 100, 1000)] = true
	}
	f.respond(t, r, 10*risk.U)

	settled := make(map[uuid.UUID]int)
	var sizes []int
	for i := 0; i < 4; i++ {
		batch, err := f.engine.ProcessPoliciesForRisk(f.ctx, r.ID, 2)
		require.NoError(t, err)
		sizes = append(sizes, len(batch))
		for _, s := range batch {
			settled[s.PolicyID]++
			assert.Equal(t, int64(0), s.Amount)
		}
	}

	assert.Equal(t, []int{2, 2, 1, 0}, sizes)
	require.Len(t, settled, 5)
	for id, n := range settled {
		assert.True(t, ids[id])
		assert.Equal(t, 1, n, "policy %s", id)
		p, err := f.engine.Policy(id)
		require.NoError(t, err)
		assert.Equal(t, policy.PolicyClosed, p.State)
	}

	b, err := f.engine.Bundle(1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.LockedCapital)
	assert.Equal(t, int64(10_000), b.Capital)
	assert.Equal(t, int64(10_500), b.Balance)
}

func TestProcessPoliciesForRisk_SettlesPoliciesWithOpenClaims(t *testing.T) {
	f := newFixture(t)
	f.bundle(t, 10_000)
	r := f.risk(t, "uai-1")
	plain := f.policy(t, r.ID, 100, 1000)
	confirmed := f.policy(t, r.ID, 100, 1000)
	f.policy(t, r.ID, 100, 1000)
	twice := f.policy(t, r.ID, 100, 1000)

	_, err := f.engine.SubmitClaim(f.ctx, twice, 10, nil)
	require.NoError(t, err)
	_, err = f.engine.SubmitClaim(f.ctx, twice, 10, nil)
	require.NoError(t, err)
	c, err := f.engine.SubmitClaim(f.ctx, confirmed, 50, nil)
	require.NoError(t, err)
	require.NoError(t, f.engine.ConfirmClaim(f.ctx, confirmed, c.ID, 50))

	f.respond(t, r, 5*risk.U)
	evaluated, err := f.engine.Risk(r.ID)
	require.NoError(t, err)
	want := evaluated.PayoutAmount(1000)
	require.Positive(t, want)

	batch, err := f.engine.ProcessPoliciesForRisk(f.ctx, r.ID, 0)
	require.NoError(t, err)
	require.Len(t, batch, 4)
	assert.Equal(t, twice, batch[0].PolicyID, "taken from the tail")
	for _, s := range batch {
		assert.Equal(t, want, s.Amount)
		p, err := f.engine.Policy(s.PolicyID)
		require.NoError(t, err)
		assert.Equal(t, policy.PolicyClosed, p.State)
		assert.Equal(t, 0, p.OpenClaimsCount)
	}

	claims := f.engine.Claims(twice)
	require.Len(t, claims, 2)
	assert.Equal(t, policy.ClaimClosed, claims[0].State)
	assert.Equal(t, want, claims[0].PaidAmount)
	assert.Equal(t, policy.ClaimDeclined, claims[1].State)

	claims = f.engine.Claims(confirmed)
	require.Len(t, claims, 2)
	assert.Equal(t, int64(50), claims[0].PaidAmount)
	assert.Equal(t, policy.ClaimClosed, claims[0].State)
	assert.Equal(t, want, claims[1].PaidAmount)
	p, err := f.engine.Policy(confirmed)
	require.NoError(t, err)
	assert.Equal(t, 50+want, p.PayoutAmount)

	p, err = f.engine.Policy(plain)
	require.NoError(t, err)
	assert.Equal(t, want, p.PayoutAmount)
	assert.Equal(t, 0, f.engine.RiskPolicyCount(r.ID))

	b, err := f.engine.Bundle(1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.LockedCapital)
	assert.Equal(t, 10_000-50-4*want, b.Capital)
}

func TestProcessPoliciesForRisk_SkipsProcessedPolicies(t *testing.T) {
	f := newFixture(t)
	f.bundle(t, 10_000)
	r := f.risk(t, "uai-1")
	first := f.policy(t, r.ID, 100, 1000)
	f.policy(t, r.ID, 100, 1000)
	f.policy(t, r.ID, 100, 1000)
	f.respond(t, r, 10*risk.U)

	_, err := f.engine.ProcessPolicy(f.ctx, first)
	require.NoError(t, err)

	batch, err := f.engine.ProcessPoliciesForRisk(f.ctx, r.ID, 0)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	for _, s := range batch {
		assert.NotEqual(t, first, s.PolicyID)
	}

	seq := f.engine.Sequence()
	batch, err = f.engine.ProcessPoliciesForRisk(f.ctx, r.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, batch)
	assert.Equal(t, seq, f.engine.Sequence(), "empty batch commits nothing")

	claims := f.engine.Claims(first)
	assert.Len(t, claims, 1, "settled once")
	_, err = f.engine.ProcessPolicy(f.ctx, first)
	assert.Equal(t, apperr.PolicyNotActive, apperr.ReasonOf(err))
}

func TestSubmitClaimWithEvaluation_TriggersOnce(t *testing.T) {
	f := newFixture(t)
	f.bundle(t, 10_000)
	r := f.risk(t, "uai-1")
	a := f.policy(t, r.ID, 100, 1000)
	b := f.policy(t, r.ID, 100, 1000)

	first, err := f.engine.SubmitClaimWithEvaluation(f.ctx, a, nil)
	require.NoError(t, err)
	second, err := f.engine.SubmitClaimWithEvaluation(f.ctx, b, nil)
	require.NoError(t, err)
	assert.Equal(t, first.RequestID, second.RequestID)
	assert.Len(t, f.oracle.requests, 1)

	_, err = f.engine.Respond(f.ctx, first.RequestID, risk.Response{
		ProjectID: r.ProjectID, UaiID: r.UaiID, CropID: r.CropID, AAAY: 0,
	})
	require.NoError(t, err)

	batch, err := f.engine.ProcessPoliciesForRisk(f.ctx, r.ID, 0)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	for _, s := range batch {
		// aaay of zero pays tsi of the sum insured
		assert.Equal(t, int64(900), s.Amount)
		assert.Equal(t, 0, s.ClaimID)
	}
}

func TestRespond_StaleAndInvalid(t *testing.T) {
	f := newFixture(t)
	r := f.risk(t, "uai-1")
	seq := f.engine.Sequence()

	out, err := f.engine.Respond(f.ctx, 42, risk.Response{})
	require.NoError(t, err)
	assert.False(t, out.Accepted)
	assert.Equal(t, apperr.OracleRequestStale, out.Reason)
	assert.Equal(t, seq, f.engine.Sequence())

	reqID, err := f.engine.TriggerEvaluation(f.ctx, r.ID)
	require.NoError(t, err)
	out, err = f.engine.Respond(f.ctx, reqID, risk.Response{
		ProjectID: r.ProjectID, UaiID: r.UaiID, CropID: "wheat", AAAY: risk.U,
	})
	require.NoError(t, err)
	assert.Equal(t, apperr.OracleResponseInvalid, out.Reason)
	assert.Equal(t, seq+1, f.engine.Sequence(), "rejected payload is not committed")
	got, err := f.engine.Risk(r.ID)
	require.NoError(t, err)
	assert.True(t, got.RequestTriggered)

	next, err := f.engine.TriggerEvaluation(f.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, reqID+1, next)
	out, err = f.engine.Respond(f.ctx, reqID, risk.Response{
		ProjectID: r.ProjectID, UaiID: r.UaiID, CropID: r.CropID, AAAY: risk.U,
	})
	require.NoError(t, err)
	assert.Equal(t, apperr.OracleRequestStale, out.Reason, "superseded by the new trigger")

	require.NoError(t, f.engine.CancelEvaluation(f.ctx, r.ID))
	assert.Equal(t, []uint64{next}, f.oracle.cancelled)
	out, err = f.engine.Respond(f.ctx, next, risk.Response{
		ProjectID: r.ProjectID, UaiID: r.UaiID, CropID: r.CropID, AAAY: risk.U,
	})
	require.NoError(t, err)
	assert.Equal(t, apperr.OracleRequestStale, out.Reason)
}

// ============================================================================
// Test: Capital bookkeeping
// ============================================================================

func TestClose_NonClaimReleasesCollateral(t *testing.T) {
	f := newFixture(t)
	f.bundle(t, 5000)
	r := f.risk(t, "uai-1")
	id := f.policy(t, r.ID, 100, 1000)

	b, _ := f.engine.Bundle(1)
	assert.Equal(t, int64(1000), b.LockedCapital)

	err := f.engine.Close(f.ctx, id)
	assert.Equal(t, apperr.PolicyNotExpired, apperr.ReasonOf(err))

	require.NoError(t, f.engine.Expire(f.ctx, id))
	assert.Equal(t, 0, f.engine.RiskPolicyCount(r.ID))
	require.NoError(t, f.engine.Close(f.ctx, id))

	b, _ = f.engine.Bundle(1)
	assert.Equal(t, int64(0), b.LockedCapital)
	assert.Equal(t, int64(5000), b.Capital)
	assert.Equal(t, int64(5100), b.Balance)

	require.NoError(t, f.engine.CloseBundle(f.ctx, 1))
	paid, err := f.engine.BurnBundle(f.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5100), paid)
	assert.Equal(t, int64(5100), f.balance(investor))
}

func TestBundle_ConservationAcrossFlows(t *testing.T) {
	f := newFixture(t)
	f.bundle(t, 10_000)
	r := f.risk(t, "uai-1")
	id := f.policy(t, r.ID, 200, 4000)

	c, err := f.engine.SubmitClaim(f.ctx, id, 1500, nil)
	require.NoError(t, err)
	require.NoError(t, f.engine.ConfirmClaim(f.ctx, id, c.ID, 1500))
	_, err = f.engine.CreatePayout(f.ctx, id, c.ID, 1500, nil)
	require.NoError(t, err)
	require.NoError(t, f.engine.DefundBundle(f.ctx, 1, 1000))

	b, err := f.engine.Bundle(1)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000-1500-1000), b.Capital)
	assert.Equal(t, int64(4000-1500), b.LockedCapital)
	assert.Equal(t, int64(10_000+200-1500-1000), b.Balance)

	journal, err := f.engine.Balance("bundle:1:balance")
	require.NoError(t, err)
	assert.Equal(t, b.Balance, journal)
	assert.Equal(t, b.Balance, f.balance(riskpoolWallet))

	err = f.engine.DefundBundle(f.ctx, 1, 5001)
	assert.Equal(t, apperr.CapitalTooLow, apperr.ReasonOf(err))
}

func TestMaxActiveBundles(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.SetMaximumNumberOfActiveBundles(f.ctx, 1))
	f.bundle(t, 1000)
	require.NoError(t, f.engine.LockBundle(f.ctx, 1))

	f.wallet(t, investor, 1000)
	_, err := f.engine.CreateBundle(f.ctx, investor, nil, 1000)
	assert.Equal(t, apperr.MaxActiveBundlesReached, apperr.ReasonOf(err))

	err = f.engine.SetMaximumNumberOfActiveBundles(f.ctx, 0)
	assert.Equal(t, apperr.MaxActiveBundlesInvalid, apperr.ReasonOf(err))
}

// ============================================================================
// Test: Atomicity
// ============================================================================

// flakyAccount fails transfers into one address once armed. It does not
// batch, so the treasury settles leg by leg.
type flakyAccount struct {
	mem    *token.Memory
	failTo token.Address
	armed  bool
}

func (a *flakyAccount) Transfer(ctx context.Context, from, to token.Address, amount int64) error {
	if a.armed && to == a.failTo {
		return errors.New("ledger unavailable")
	}
	return a.mem.Transfer(ctx, from, to, amount)
}

func (a *flakyAccount) Approve(ctx context.Context, owner, spender token.Address, amount int64) error {
	return a.mem.Approve(ctx, owner, spender, amount)
}

func (a *flakyAccount) Allowance(ctx context.Context, owner, spender token.Address) (int64, error) {
	return a.mem.Allowance(ctx, owner, spender)
}

func (a *flakyAccount) BalanceOf(ctx context.Context, account token.Address) (int64, error) {
	return a.mem.BalanceOf(ctx, account)
}

func TestUnderwrite_TransferFailureRollsBack(t *testing.T) {
	mem := token.NewMemory(operator)
	account := &flakyAccount{mem: mem, failTo: riskpoolWallet}
	f := newFixtureWith(t, account, mem)
	_, err := f.engine.SetFeeSpecification(f.ctx, productID, 10, 0, nil)
	require.NoError(t, err)
	require.NoError(t, mem.Approve(f.ctx, instanceWallet, operator, 1<<40))

	f.bundle(t, 5000)
	r := f.risk(t, "uai-1")
	f.wallet(t, holder, 100)

	account.armed = true
	res, err := f.engine.ApplyForPolicy(f.ctx, holder, 100, 1000, r.ID, nil)
	require.NoError(t, err)
	assert.False(t, res.Underwritten)
	assert.Equal(t, apperr.TransferFailed, res.Reason)

	app, err := f.engine.Application(res.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, policy.ApplicationApplied, app.State)
	_, allocated := f.engine.Allocation(res.ApplicationID)
	assert.False(t, allocated)
	assert.Equal(t, 0, f.engine.RiskPolicyCount(r.ID))

	b, _ := f.engine.Bundle(1)
	assert.Equal(t, int64(0), b.LockedCapital)
	assert.Equal(t, int64(5000), b.Balance)
	assert.Equal(t, int64(100), f.balance(holder))
	assert.Equal(t, int64(0), f.balance(instanceWallet))
	fees, _ := f.engine.Balance("instance:fees")
	assert.Equal(t, int64(0), fees)

	account.armed = false
	p, err := f.engine.Underwrite(f.ctx, res.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), p.PremiumPaidAmount)
	assert.Equal(t, int64(10), f.balance(instanceWallet))
}

func TestIdempotencyKey_RejectsDuplicate(t *testing.T) {
	f := newFixture(t)
	f.wallet(t, investor, 2000)
	ctx := core.WithIdempotencyKey(f.ctx, "create-1")

	_, err := f.engine.CreateBundle(ctx, investor, nil, 1000)
	require.NoError(t, err)
	_, err = f.engine.CreateBundle(ctx, investor, nil, 1000)
	assert.True(t, errors.Is(err, &apperr.Error{Reason: apperr.DuplicateOperation}))

	assert.Len(t, f.engine.Bundles(), 1)
	assert.Equal(t, int64(1000), f.balance(investor))
}

func TestSuspend_BlocksFundMovement(t *testing.T) {
	f := newFixture(t)
	b := f.bundle(t, 1000)
	require.NoError(t, f.engine.SuspendTreasury(f.ctx))
	assert.True(t, f.engine.Suspended())

	f.wallet(t, investor, 500)
	_, err := f.engine.FundBundle(f.ctx, b.ID, 500)
	assert.Equal(t, apperr.TreasurySuspended, apperr.ReasonOf(err))
	assert.True(t, apperr.Retryable(err))

	_, err = f.engine.SetFeeSpecification(f.ctx, productID, 1, 0, nil)
	assert.Equal(t, apperr.TreasurySuspended, apperr.ReasonOf(err))

	require.NoError(t, f.engine.ResumeTreasury(f.ctx))
	_, err = f.engine.FundBundle(f.ctx, b.ID, 500)
	require.NoError(t, err)
}

// ============================================================================
// Test: Operation log and snapshots
// ============================================================================

func TestOutputs_HashChain(t *testing.T) {
	f := newFixture(t)
	f.bundle(t, 5000)
	r := f.risk(t, "uai-1")
	f.policy(t, r.ID, 100, 1000)

	outputs := drain(f.persist)
	require.NotEmpty(t, outputs)
	prev := sha256.Sum256([]byte(core.GenesisHashSeed))
	for i, o := range outputs {
		assert.Equal(t, int64(i+1), o.Envelope.Sequence)
		assert.Equal(t, prev, o.Envelope.PrevHash, "seq %d", o.Envelope.Sequence)
		assert.Equal(t, o.Envelope.Sequence, o.Batch.Sequence)
		prev = o.Envelope.StateHash
	}
	assert.Equal(t, prev, f.engine.StateHash())
	assert.Equal(t, int64(len(outputs)), f.engine.Sequence())
}

func TestHalt_RejectsLaterOperations(t *testing.T) {
	f := newFixture(t)
	f.bundle(t, 5000)
	drain(f.persist)

	seq := f.engine.Halt()
	assert.Equal(t, f.engine.Sequence(), seq)

	_, err := f.engine.CreateRisk(f.ctx, "project", "uai-1", "maize", ayii)
	assert.ErrorIs(t, err, core.ErrHalted)
	assert.Empty(t, drain(f.persist))
	assert.Equal(t, seq, f.engine.Snapshot().Sequence)
}

func TestSnapshot_RestoreContinues(t *testing.T) {
	f := newFixture(t)
	f.bundle(t, 5000)
	r := f.risk(t, "uai-1")
	id := f.policy(t, r.ID, 100, 1000)
	_, err := f.engine.TriggerEvaluation(f.ctx, r.ID)
	require.NoError(t, err)

	raw, err := json.Marshal(f.engine.Snapshot())
	require.NoError(t, err)
	var snap core.Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))

	restored, err := core.New(config(), f.mem)
	require.NoError(t, err)
	require.NoError(t, restored.Restore(&snap))

	assert.Equal(t, f.engine.Sequence(), restored.Sequence())
	assert.Equal(t, f.engine.StateHash(), restored.StateHash())
	assert.Equal(t, f.engine.Bundles(), restored.Bundles())
	assert.Equal(t, 1, restored.RiskPolicyCount(r.ID))

	got, err := restored.Risk(r.ID)
	require.NoError(t, err)
	out, err := restored.Respond(f.ctx, got.RequestID, risk.Response{
		ProjectID: r.ProjectID, UaiID: r.UaiID, CropID: r.CropID, AAAY: 10 * risk.U,
	})
	require.NoError(t, err)
	assert.True(t, out.Accepted)

	s, err := restored.ProcessPolicy(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.Amount)
}
