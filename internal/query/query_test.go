package query_test

import (
	"ParaLedger/internal/apperr"
	"ParaLedger/internal/core"
	fpmath "ParaLedger/internal/math"
	"ParaLedger/internal/persistence"
	"ParaLedger/internal/query"
	"ParaLedger/internal/risk"
	"ParaLedger/internal/token"
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	operator token.Address = "treasury"
	investor token.Address = "investor"
	holder   token.Address = "holder"
)

// memoryLog serves the operation log from rows captured off the engine's
// persistence channel.
type memoryLog struct {
	ops      []persistence.OperationRow
	journals []persistence.JournalRow
}

func (m *memoryLog) capture(ch chan core.Output) {
	for {
		select {
		case out := <-ch:
			op, js := persistence.RowsFromOutput(out)
			m.ops = append(m.ops, op)
			m.journals = append(m.journals, js...)
		default:
			return
		}
	}
}

func (m *memoryLog) ListOperations(_ context.Context, from int64, limit int) ([]persistence.OperationRow, error) {
	var out []persistence.OperationRow
	for _, op := range m.ops {
		if op.Sequence >= from && len(out) < limit {
			out = append(out, op)
		}
	}
	return out, nil
}

func (m *memoryLog) ListJournal(_ context.Context, account string, limit int) ([]persistence.JournalRow, error) {
	var out []persistence.JournalRow
	for i := len(m.journals) - 1; i >= 0 && len(out) < limit; i-- {
		j := m.journals[i]
		if account == "" || j.DebitAccount == account || j.CreditAccount == account {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *memoryLog) JournalBalances(context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, j := range m.journals {
		out[j.DebitAccount] += j.Amount
		out[j.CreditAccount] -= j.Amount
	}
	return out, nil
}

type fixture struct {
	ctx     context.Context
	mem     *token.Memory
	engine  *core.Engine
	persist chan core.Output
	log     *memoryLog
	qs      *query.QueryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := token.NewMemory(operator)
	persist := make(chan core.Output, 1024)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	eng, err := core.New(core.Config{
		ProductID:              "ayii",
		RiskpoolID:             "ayii-pool",
		Operator:               operator,
		CollateralizationLevel: fpmath.FeeFractionFullUnit,
		MaxActiveBundles:       2,
	}, mem,
		core.WithOutputs(persist, nil),
		core.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	require.NoError(t, eng.SetInstanceWallet(ctx, "instance"))
	require.NoError(t, eng.SetRiskpoolWallet(ctx, "riskpool"))
	_, err = eng.SetFeeSpecification(ctx, "ayii", 0, 0, nil)
	require.NoError(t, err)
	_, err = eng.SetFeeSpecification(ctx, "ayii-pool", 0, fpmath.FeeFractionFullUnit/10, nil)
	require.NoError(t, err)
	require.NoError(t, mem.Approve(ctx, "riskpool", operator, 1<<40))

	log := &memoryLog{}
	return &fixture{
		ctx:     ctx,
		mem:     mem,
		engine:  eng,
		persist: persist,
		log:     log,
		qs:      query.NewQueryService(eng, log),
	}
}

func (f *fixture) fund(t *testing.T, who token.Address, amount int64) {
	t.Helper()
	f.mem.Mint(who, amount)
	require.NoError(t, f.mem.Approve(f.ctx, who, operator, 1<<40))
}

// insured sets up one bundle, one risk and one underwritten policy.
func (f *fixture) insured(t *testing.T) (bundleID int64, riskID, policyID uuid.UUID) {
	t.Helper()
	f.fund(t, investor, 10_000)
	b, err := f.engine.CreateBundle(f.ctx, investor, nil, 10_000)
	require.NoError(t, err)

	r, err := f.engine.CreateRisk(f.ctx, "project", "uai-7", "maize", risk.Params{
		Trigger: 750_000_000,
		Exit:    100_000_000,
		TSI:     900_000_000,
		APH:     10 * risk.U,
	})
	require.NoError(t, err)

	f.fund(t, holder, 100)
	res, err := f.engine.ApplyForPolicy(f.ctx, holder, 100, 1000, r.ID, nil)
	require.NoError(t, err)
	require.True(t, res.Underwritten)

	f.log.capture(f.persist)
	return b.ID, r.ID, res.ApplicationID
}

// ============================================================================
// Test: Engine-backed views
// ============================================================================

func TestGetBundle(t *testing.T) {
	f := newFixture(t)
	bundleID, _, _ := f.insured(t)

	v, err := f.qs.GetBundle(bundleID)
	require.NoError(t, err)
	assert.Equal(t, "Active", v.State)
	assert.Equal(t, "investor", v.Owner)
	assert.Equal(t, int64(9000), v.Capital)
	assert.Equal(t, int64(1000), v.LockedCapital)
	assert.Equal(t, v.Capital-v.LockedCapital, v.Available)
	assert.Equal(t, f.engine.Sequence(), v.AsOfSequence)

	_, err = f.qs.GetBundle(bundleID + 100)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	assert.Len(t, f.qs.ListBundles(), 1)
}

func TestGetRiskpool(t *testing.T) {
	f := newFixture(t)
	f.insured(t)

	v := f.qs.GetRiskpool()
	assert.Equal(t, "ayii-pool", v.RiskpoolID)
	assert.Equal(t, "riskpool", v.Wallet)
	assert.Equal(t, "instance", v.InstanceWallet)
	assert.Equal(t, 1, v.ActiveBundles)
	assert.Equal(t, 2, v.MaxActiveBundles)
	assert.Equal(t, int64(1000), v.FeesCollected)
	assert.False(t, v.Suspended)
}

func TestGetRisk_FormatsFractions(t *testing.T) {
	f := newFixture(t)
	_, riskID, _ := f.insured(t)

	v, err := f.qs.GetRisk(riskID)
	require.NoError(t, err)
	assert.Equal(t, "0.75", v.Trigger)
	assert.Equal(t, "0.1", v.Exit)
	assert.Equal(t, "0.9", v.TSI)
	assert.Equal(t, "10", v.APH)
	assert.Equal(t, 1, v.OpenPolicies)
	assert.False(t, v.RequestTriggered)
	assert.Nil(t, v.ResponseAt)
	assert.Empty(t, v.AAAY)

	assert.Len(t, f.qs.ListRisks(), 1)
}

func TestGetApplicationAndPolicy(t *testing.T) {
	f := newFixture(t)
	bundleID, riskID, policyID := f.insured(t)

	app, err := f.qs.GetApplication(policyID)
	require.NoError(t, err)
	assert.Equal(t, "Underwritten", app.State)
	assert.Equal(t, "Active", app.MetadataState)
	assert.Equal(t, riskID, app.RiskID)
	assert.Equal(t, int64(1000), app.SumInsuredAmount)

	p, err := f.qs.GetPolicy(policyID)
	require.NoError(t, err)
	assert.Equal(t, "holder", p.Owner)
	assert.Equal(t, "Active", p.State)
	assert.Equal(t, p.PremiumExpectedAmount-p.PremiumPaidAmount, p.PremiumDue)
	require.NotNil(t, p.BundleID)
	assert.Equal(t, bundleID, *p.BundleID)
	assert.Equal(t, int64(1000), p.Collateral)
	assert.Empty(t, p.Claims)
	assert.Empty(t, p.Payouts)

	_, err = f.qs.GetPolicy(uuid.New())
	assert.Error(t, err)
}

func TestQuoteFee(t *testing.T) {
	f := newFixture(t)

	q, err := f.qs.QuoteFee("ayii-pool", 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(500), q.Fee)
	assert.Equal(t, q.Gross, q.Fee+q.Net)

	_, err = f.qs.QuoteFee("unknown", 5000)
	assert.Error(t, err)

	spec, err := f.qs.GetFeeSpecification("ayii-pool")
	require.NoError(t, err)
	assert.Equal(t, "0.1", spec.Fraction)
	assert.Equal(t, int64(0), spec.Fixed)

	_, err = f.qs.GetFeeSpecification("unknown")
	assert.Equal(t, apperr.FeeSpecUndefined, apperr.ReasonOf(err))
}

// ============================================================================
// Test: Operation log queries
// ============================================================================

func TestListOperations_HexHashes(t *testing.T) {
	f := newFixture(t)
	f.insured(t)

	ops, err := f.qs.ListOperations(f.ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, int64(1), ops[0].Sequence)
	assert.Equal(t, ops[0].StateHash, ops[1].PrevHash)
	assert.Len(t, ops[0].StateHash, 64)
}

func TestGetJournalHistory_FiltersAccount(t *testing.T) {
	f := newFixture(t)
	f.insured(t)

	entries, err := f.qs.GetJournalHistory(f.ctx, "instance:fees", 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.True(t, e.DebitAccount == "instance:fees" || e.CreditAccount == "instance:fees")
	}
}

func TestLogQueries_WithoutLog(t *testing.T) {
	f := newFixture(t)
	qs := query.NewQueryService(f.engine, nil)

	_, err := qs.ListOperations(f.ctx, 1, 10)
	assert.ErrorIs(t, err, query.ErrNoOperationLog)
	_, err = qs.GetJournalHistory(f.ctx, "", 10)
	assert.ErrorIs(t, err, query.ErrNoOperationLog)
	_, err = qs.VerifyIntegrity(f.ctx)
	assert.ErrorIs(t, err, query.ErrNoOperationLog)
}

// ============================================================================
// Test: Integrity verification
// ============================================================================

func TestVerifyIntegrity_Healthy(t *testing.T) {
	f := newFixture(t)
	f.insured(t)

	report, err := f.qs.VerifyIntegrity(f.ctx)
	require.NoError(t, err)
	assert.True(t, report.IsHealthy)
	assert.True(t, report.BalancesCompared)
	assert.Equal(t, f.engine.Sequence(), report.LogSequence)
	assert.Equal(t, int(f.engine.Sequence()), report.CheckedOperations)
	assert.Empty(t, report.HashChainBreaks)
	assert.Empty(t, report.MismatchedAccounts)
}

func TestVerifyIntegrity_DetectsBrokenChain(t *testing.T) {
	f := newFixture(t)
	f.insured(t)

	f.log.ops[2].PrevHash = make([]byte, 32)

	report, err := f.qs.VerifyIntegrity(f.ctx)
	require.NoError(t, err)
	assert.False(t, report.IsHealthy)
	assert.Equal(t, []int64{3}, report.HashChainBreaks)
}

func TestVerifyIntegrity_DetectsBalanceDrift(t *testing.T) {
	f := newFixture(t)
	f.insured(t)

	for i := range f.log.journals {
		if j := f.log.journals[i]; j.DebitAccount == "instance:fees" || j.CreditAccount == "instance:fees" {
			f.log.journals[i].Amount++
			break
		}
	}

	report, err := f.qs.VerifyIntegrity(f.ctx)
	require.NoError(t, err)
	assert.False(t, report.IsHealthy)
	require.NotEmpty(t, report.MismatchedAccounts)
	accounts := make([]string, 0, len(report.MismatchedAccounts))
	for _, m := range report.MismatchedAccounts {
		accounts = append(accounts, m.Account)
	}
	assert.True(t, sort.StringsAreSorted(accounts))
	assert.Contains(t, accounts, "instance:fees")
}

func TestVerifyIntegrity_SkipsBalancesWhenLogBehind(t *testing.T) {
	f := newFixture(t)
	f.insured(t)

	f.log.ops = f.log.ops[:len(f.log.ops)-1]

	report, err := f.qs.VerifyIntegrity(f.ctx)
	require.NoError(t, err)
	assert.False(t, report.BalancesCompared)
	assert.True(t, report.IsHealthy)
	assert.Equal(t, f.engine.Sequence()-1, report.LogSequence)
}
