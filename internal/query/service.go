package query

import (
	"ParaLedger/internal/apperr"
	"ParaLedger/internal/core"
	fpmath "ParaLedger/internal/math"
	"ParaLedger/internal/persistence"
	"ParaLedger/internal/pool"
	"ParaLedger/internal/risk"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"

	"github.com/google/uuid"
)

// ErrNoOperationLog is returned by log-backed queries when the service runs
// without a persisted operation log.
var ErrNoOperationLog = errors.New("operation log not configured")

const integrityPageSize = 1000

// OperationLog is the persisted log the history queries read.
type OperationLog interface {
	ListOperations(ctx context.Context, from int64, limit int) ([]persistence.OperationRow, error)
	ListJournal(ctx context.Context, account string, limit int) ([]persistence.JournalRow, error)
	JournalBalances(ctx context.Context) (map[string]int64, error)
}

// QueryService provides read-only views. Live state comes from the engine;
// history comes from the operation log. Every view carries as_of_sequence,
// the engine sequence it was read at.
type QueryService struct {
	engine *core.Engine
	log    OperationLog
}

// NewQueryService builds the service; log may be nil.
func NewQueryService(engine *core.Engine, log OperationLog) *QueryService {
	return &QueryService{engine: engine, log: log}
}

func (qs *QueryService) GetBundle(id int64) (*BundleView, error) {
	b, err := qs.engine.Bundle(id)
	if err != nil {
		return nil, err
	}
	v := bundleView(b, qs.engine.Sequence())
	return &v, nil
}

func (qs *QueryService) ListBundles() []BundleView {
	seq := qs.engine.Sequence()
	bundles := qs.engine.Bundles()
	out := make([]BundleView, 0, len(bundles))
	for _, b := range bundles {
		out = append(out, bundleView(b, seq))
	}
	return out
}

func bundleView(b *pool.Bundle, seq int64) BundleView {
	return BundleView{
		ID:            b.ID,
		RiskpoolID:    b.RiskpoolID,
		Owner:         string(b.Owner),
		State:         b.State.String(),
		Filter:        b.Filter,
		Capital:       b.Capital,
		LockedCapital: b.LockedCapital,
		Available:     b.Available(),
		Balance:       b.Balance,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
		AsOfSequence:  seq,
	}
}

func (qs *QueryService) GetRiskpool() RiskpoolView {
	t := qs.engine.Riskpool()
	return RiskpoolView{
		RiskpoolID:       t.RiskpoolID,
		Wallet:           string(t.Wallet),
		InstanceWallet:   string(t.InstanceWallet),
		Capital:          t.Capital,
		LockedCapital:    t.LockedCapital,
		Balance:          t.Balance,
		ActiveBundles:    t.ActiveBundles,
		MaxActiveBundles: t.MaxActive,
		FeesCollected:    t.FeesCollected,
		Suspended:        qs.engine.Suspended(),
		AsOfSequence:     qs.engine.Sequence(),
	}
}

func (qs *QueryService) GetRisk(id uuid.UUID) (*RiskView, error) {
	r, err := qs.engine.Risk(id)
	if err != nil {
		return nil, err
	}
	v := riskView(r)
	v.OpenPolicies = qs.engine.RiskPolicyCount(id)
	v.AsOfSequence = qs.engine.Sequence()
	return &v, nil
}

func (qs *QueryService) ListRisks() []RiskView {
	seq := qs.engine.Sequence()
	risks := qs.engine.Risks()
	out := make([]RiskView, 0, len(risks))
	for _, r := range risks {
		v := riskView(r)
		v.OpenPolicies = qs.engine.RiskPolicyCount(r.ID)
		v.AsOfSequence = seq
		out = append(out, v)
	}
	return out
}

func riskView(r *risk.Risk) RiskView {
	pct := func(v int64) string { return fpmath.FormatScaled(v, fpmath.PercentageConfig) }
	v := RiskView{
		ID:               r.ID,
		ProjectID:        r.ProjectID,
		UaiID:            r.UaiID,
		CropID:           r.CropID,
		Trigger:          pct(r.Trigger),
		Exit:             pct(r.Exit),
		TSI:              pct(r.TSI),
		APH:              pct(r.APH),
		RequestTriggered: r.RequestTriggered,
		RequestID:        r.RequestID,
	}
	if r.Responded() {
		at := r.ResponseAt
		v.ResponseAt = &at
		v.AAAY = pct(r.AAAY)
		v.PayoutPercentage = pct(r.PayoutPercentage)
	}
	return v
}

func (qs *QueryService) GetApplication(id uuid.UUID) (*ApplicationView, error) {
	app, err := qs.engine.Application(id)
	if err != nil {
		return nil, err
	}
	meta, err := qs.engine.Metadata(id)
	if err != nil {
		return nil, err
	}
	return &ApplicationView{
		ID:               app.ID,
		Owner:            string(app.Owner),
		ProductID:        app.ProductID,
		RiskID:           app.RiskID,
		State:            app.State.String(),
		MetadataState:    meta.State.String(),
		PremiumAmount:    app.PremiumAmount,
		SumInsuredAmount: app.SumInsuredAmount,
		Data:             app.Data,
		CreatedAt:        app.CreatedAt,
		UpdatedAt:        app.UpdatedAt,
		AsOfSequence:     qs.engine.Sequence(),
	}, nil
}

func (qs *QueryService) GetPolicy(id uuid.UUID) (*PolicyView, error) {
	p, err := qs.engine.Policy(id)
	if err != nil {
		return nil, err
	}
	app, err := qs.engine.Application(id)
	if err != nil {
		return nil, err
	}

	v := &PolicyView{
		ID:                    p.ID,
		Owner:                 string(app.Owner),
		RiskID:                app.RiskID,
		State:                 p.State.String(),
		PremiumExpectedAmount: p.PremiumExpectedAmount,
		PremiumPaidAmount:     p.PremiumPaidAmount,
		PremiumDue:            p.PremiumExpectedAmount - p.PremiumPaidAmount,
		PayoutMaxAmount:       p.PayoutMaxAmount,
		PayoutAmount:          p.PayoutAmount,
		OpenClaimsCount:       p.OpenClaimsCount,
		Claims:                []ClaimView{},
		Payouts:               []PayoutView{},
		AsOfSequence:          qs.engine.Sequence(),
	}
	if alloc, ok := qs.engine.Allocation(id); ok {
		bundleID := alloc.BundleID
		v.BundleID = &bundleID
		v.Collateral = alloc.Collateral
	}
	for _, c := range qs.engine.Claims(id) {
		v.Claims = append(v.Claims, ClaimView{ID: c.ID, State: c.State.String(), ClaimAmount: c.ClaimAmount, PaidAmount: c.PaidAmount})
	}
	for _, po := range qs.engine.Payouts(id) {
		v.Payouts = append(v.Payouts, PayoutView{ID: po.ID, ClaimID: po.ClaimID, State: po.State.String(), Amount: po.Amount})
	}
	return v, nil
}

func (qs *QueryService) GetFeeSpecification(componentID string) (*FeeView, error) {
	spec, ok := qs.engine.FeeSpecification(componentID)
	if !ok {
		return nil, apperr.New(apperr.FeeSpecUndefined, "no fee specification for %q", componentID)
	}
	return &FeeView{
		ComponentID: spec.ComponentID,
		Fixed:       spec.FixedFee,
		Fraction:    fpmath.FormatScaled(spec.FractionalFee, fpmath.FeeFractionConfig),
		UpdatedAt:   spec.UpdatedAt,
	}, nil
}

func (qs *QueryService) QuoteFee(componentID string, gross int64) (FeeQuote, error) {
	fee, net, err := qs.engine.QuoteFee(componentID, gross)
	if err != nil {
		return FeeQuote{}, err
	}
	return FeeQuote{ComponentID: componentID, Gross: gross, Fee: fee, Net: net}, nil
}

// ListOperations pages through the operation log from sequence from.
func (qs *QueryService) ListOperations(ctx context.Context, from int64, limit int) ([]OperationView, error) {
	if qs.log == nil {
		return nil, ErrNoOperationLog
	}
	rows, err := qs.log.ListOperations(ctx, from, limit)
	if err != nil {
		return nil, err
	}
	out := make([]OperationView, 0, len(rows))
	for _, r := range rows {
		out = append(out, OperationView{
			Sequence:       r.Sequence,
			OpType:         r.OpType,
			IdempotencyKey: r.IdempotencyKey,
			Actor:          r.Actor,
			Ref:            r.Ref,
			Payload:        r.Payload,
			StateHash:      hex.EncodeToString(r.StateHash),
			PrevHash:       hex.EncodeToString(r.PrevHash),
			Timestamp:      r.Timestamp,
		})
	}
	return out, nil
}

// GetJournalHistory returns the newest journal entries of an account path.
func (qs *QueryService) GetJournalHistory(ctx context.Context, account string, limit int) ([]JournalHistoryEntry, error) {
	if qs.log == nil {
		return nil, ErrNoOperationLog
	}
	rows, err := qs.log.ListJournal(ctx, account, limit)
	if err != nil {
		return nil, err
	}
	out := make([]JournalHistoryEntry, 0, len(rows))
	for _, j := range rows {
		out = append(out, JournalHistoryEntry(j))
	}
	return out, nil
}

// VerifyIntegrity walks the operation log checking that every operation
// links to its predecessor's hash, starting from the genesis seed. When the
// log has caught up with the engine it also compares journal totals with
// the engine's balances.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	if qs.log == nil {
		return nil, ErrNoOperationLog
	}
	report := &IntegrityReport{EngineSequence: qs.engine.Sequence()}

	genesis := sha256.Sum256([]byte(core.GenesisHashSeed))
	prev := genesis[:]
	expect := int64(1)
	for {
		page, err := qs.log.ListOperations(ctx, expect, integrityPageSize)
		if err != nil {
			return nil, err
		}
		for _, op := range page {
			if op.Sequence != expect || !bytes.Equal(op.PrevHash, prev) {
				report.HashChainBreaks = append(report.HashChainBreaks, op.Sequence)
			}
			prev = op.StateHash
			expect = op.Sequence + 1
			report.LogSequence = op.Sequence
			report.CheckedOperations++
		}
		if len(page) < integrityPageSize {
			break
		}
	}

	if report.LogSequence == report.EngineSequence {
		report.BalancesCompared = true
		journal, err := qs.log.JournalBalances(ctx)
		if err != nil {
			return nil, err
		}
		engine := qs.engine.Snapshot().Balances
		accounts := make(map[string]struct{}, len(journal)+len(engine))
		for a := range journal {
			accounts[a] = struct{}{}
		}
		for a := range engine {
			accounts[a] = struct{}{}
		}
		for a := range accounts {
			if journal[a] != engine[a] {
				report.MismatchedAccounts = append(report.MismatchedAccounts, AccountMismatch{Account: a, Engine: engine[a], Journal: journal[a]})
			}
		}
		sort.Slice(report.MismatchedAccounts, func(i, j int) bool {
			return report.MismatchedAccounts[i].Account < report.MismatchedAccounts[j].Account
		})
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.MismatchedAccounts) == 0
	return report, nil
}
