package pool

import (
	"ParaLedger/internal/apperr"
	fpmath "ParaLedger/internal/math"
	"ParaLedger/internal/token"
	"time"

	"github.com/google/uuid"
)

// Config is the static setup of a riskpool.
type Config struct {
	RiskpoolID string `json:"riskpoolId"`
	// CollateralizationLevel is locked capital per unit of sum insured,
	// in FeeFractionFullUnit (FullUnit = 100%).
	CollateralizationLevel int64 `json:"collateralizationLevel"`
	// SumOfSumInsuredCap bounds total locked capital; 0 means unbounded.
	SumOfSumInsuredCap int64 `json:"sumOfSumInsuredCap"`
	MaxActiveBundles   int   `json:"maxActiveBundles"`
}

// Pool owns the bundles of one riskpool and the policy allocations.
// Bundles live in an arena indexed by creation order: bundle id n is
// bundles[n-1].
type Pool struct {
	cfg         Config
	matcher     Matcher
	bundles     []*Bundle
	allocations map[uuid.UUID]Allocation
}

func New(cfg Config, matcher Matcher) (*Pool, error) {
	if cfg.MaxActiveBundles < 1 {
		return nil, apperr.New(apperr.MaxActiveBundlesInvalid, "max active bundles %d < 1", cfg.MaxActiveBundles)
	}
	if cfg.CollateralizationLevel <= 0 {
		return nil, apperr.New(apperr.AmountInvalid, "collateralization level %d must be positive", cfg.CollateralizationLevel)
	}
	if matcher == nil {
		matcher = AcceptAll
	}
	return &Pool{
		cfg:         cfg,
		matcher:     matcher,
		allocations: make(map[uuid.UUID]Allocation),
	}, nil
}

func (p *Pool) Config() Config { return p.cfg }

// SetMaximumNumberOfActiveBundles changes the cap on Active+Locked bundles.
// Bundles above a lowered cap are left alone; only creation is blocked.
func (p *Pool) SetMaximumNumberOfActiveBundles(n int) error {
	if n < 1 {
		return apperr.New(apperr.MaxActiveBundlesInvalid, "max active bundles %d < 1", n)
	}
	p.cfg.MaxActiveBundles = n
	return nil
}

// ActiveBundles counts bundles in Active or Locked state.
func (p *Pool) ActiveBundles() int {
	n := 0
	for _, b := range p.bundles {
		if b.State == BundleActive || b.State == BundleLocked {
			n++
		}
	}
	return n
}

// RequiredCollateral is ceil(sumInsured * level / FullUnit).
func (p *Pool) RequiredCollateral(sumInsured int64) int64 {
	return fpmath.MulDiv(sumInsured, p.cfg.CollateralizationLevel, fpmath.FeeFractionFullUnit, fpmath.RoundUp)
}

// NextBundleID is the id CreateBundle will assign.
func (p *Pool) NextBundleID() int64 {
	return int64(len(p.bundles)) + 1
}

// CheckCreate fails when another bundle would exceed the active maximum.
func (p *Pool) CheckCreate() error {
	if active := p.ActiveBundles(); active >= p.cfg.MaxActiveBundles {
		return apperr.New(apperr.MaxActiveBundlesReached, "%d of %d bundles active", active, p.cfg.MaxActiveBundles)
	}
	return nil
}

// CreateBundle adds an Active bundle holding the net initial capital.
func (p *Pool) CreateBundle(owner token.Address, filter []byte, netCapital int64, now time.Time) (*Bundle, error) {
	if err := p.CheckCreate(); err != nil {
		return nil, err
	}
	if netCapital < 0 {
		return nil, apperr.New(apperr.AmountInvalid, "capital %d is negative", netCapital)
	}
	b := &Bundle{
		ID:         p.NextBundleID(),
		RiskpoolID: p.cfg.RiskpoolID,
		Owner:      owner,
		State:      BundleActive,
		Filter:     append([]byte(nil), filter...),
		Capital:    netCapital,
		Balance:    netCapital,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	p.bundles = append(p.bundles, b)
	return copyBundle(b), nil
}

func (p *Pool) get(id int64) (*Bundle, error) {
	if id < 1 || id > int64(len(p.bundles)) {
		return nil, apperr.New(apperr.BundleDoesNotExist, "bundle %d", id)
	}
	return p.bundles[id-1], nil
}

// Bundle returns a copy of bundle id.
func (p *Pool) Bundle(id int64) (*Bundle, error) {
	b, err := p.get(id)
	if err != nil {
		return nil, err
	}
	return copyBundle(b), nil
}

// Bundles returns copies of all bundles in id order.
func (p *Pool) Bundles() []*Bundle {
	out := make([]*Bundle, len(p.bundles))
	for i, b := range p.bundles {
		out[i] = copyBundle(b)
	}
	return out
}

// CheckFund fails unless the bundle can take more capital.
func (p *Pool) CheckFund(id int64) (*Bundle, error) {
	b, err := p.get(id)
	if err != nil {
		return nil, err
	}
	if b.State == BundleClosed || b.State == BundleBurned {
		return nil, apperr.New(apperr.BundleClosed, "bundle %d is %s", id, b.State)
	}
	return copyBundle(b), nil
}

// Fund adds net capital to an Active or Locked bundle.
func (p *Pool) Fund(id int64, net int64, now time.Time) error {
	if _, err := p.CheckFund(id); err != nil {
		return err
	}
	if net < 0 {
		return apperr.New(apperr.AmountInvalid, "amount %d is negative", net)
	}
	b, _ := p.get(id)
	b.Capital += net
	b.Balance += net
	b.UpdatedAt = now
	return nil
}

// Defund takes amount out of a bundle. Unlocked capital can always be
// withdrawn; once nothing is locked the whole balance can, which covers
// the net premium left after all policies closed. Capital shrinks by at
// most its own size.
func (p *Pool) Defund(id int64, amount int64, now time.Time) error {
	b, err := p.get(id)
	if err != nil {
		return err
	}
	if b.State == BundleBurned {
		return apperr.New(apperr.BundleStateInvalid, "bundle %d is burned", id)
	}
	if amount <= 0 {
		return apperr.New(apperr.AmountInvalid, "amount %d must be positive", amount)
	}

	unlocked := b.Available() >= amount && b.Balance >= amount
	residual := b.LockedCapital == 0 && b.Balance >= amount
	if !unlocked && !residual {
		return apperr.New(apperr.CapitalTooLow, "bundle %d: capital %d, locked %d, balance %d, requested %d",
			id, b.Capital, b.LockedCapital, b.Balance, amount)
	}

	b.Capital -= min(amount, b.Capital)
	b.Balance -= amount
	b.UpdatedAt = now
	return nil
}

func (p *Pool) Lock(id int64, now time.Time) error {
	b, err := p.get(id)
	if err != nil {
		return err
	}
	return b.transition(BundleLocked, now)
}

func (p *Pool) Unlock(id int64, now time.Time) error {
	b, err := p.get(id)
	if err != nil {
		return err
	}
	return b.transition(BundleActive, now)
}

// Close requires that no policy holds collateral in the bundle.
func (p *Pool) Close(id int64, now time.Time) error {
	b, err := p.get(id)
	if err != nil {
		return err
	}
	if b.LockedCapital > 0 {
		return apperr.New(apperr.BundleWithActivePolicies, "bundle %d has %d locked", id, b.LockedCapital)
	}
	return b.transition(BundleClosed, now)
}

// Burn marks a Closed bundle Burned and returns the residual balance,
// which the caller pays out to the owner.
func (p *Pool) Burn(id int64, now time.Time) (int64, error) {
	b, err := p.get(id)
	if err != nil {
		return 0, err
	}
	if b.LockedCapital > 0 {
		return 0, apperr.New(apperr.BundleWithActivePolicies, "bundle %d has %d locked", id, b.LockedCapital)
	}
	if err := b.transition(BundleBurned, now); err != nil {
		return 0, err
	}
	residual := b.Balance
	b.Capital = 0
	b.Balance = 0
	return residual, nil
}

// Collateralize locks the collateral for sumInsured in the first Active
// bundle, by ascending id, whose filter matches and whose unlocked capital
// covers it. A policy is never split across bundles. Collateralizing an
// already allocated policy returns the existing allocation.
func (p *Pool) Collateralize(policyID uuid.UUID, sumInsured int64, applicationData []byte, now time.Time) (Allocation, error) {
	if existing, ok := p.allocations[policyID]; ok {
		return existing, nil
	}
	if sumInsured <= 0 {
		return Allocation{}, apperr.New(apperr.AmountInvalid, "sum insured %d must be positive", sumInsured)
	}

	required := p.RequiredCollateral(sumInsured)
	if p.cfg.SumOfSumInsuredCap > 0 {
		if total := p.totalLocked(); total+required > p.cfg.SumOfSumInsuredCap {
			return Allocation{}, apperr.New(apperr.RiskpoolCapacityExceeded, "locked %d + %d exceeds cap %d",
				total, required, p.cfg.SumOfSumInsuredCap)
		}
	}

	active := 0
	for _, b := range p.bundles {
		if b.State != BundleActive {
			continue
		}
		active++
		if !p.matcher.Matches(b.Filter, applicationData) {
			continue
		}
		if b.Available() >= required {
			b.LockedCapital += required
			b.UpdatedAt = now
			alloc := Allocation{BundleID: b.ID, Collateral: required}
			p.allocations[policyID] = alloc
			return alloc, nil
		}
	}

	if active == 0 {
		return Allocation{}, apperr.New(apperr.NoActiveBundles, "riskpool %q has no active bundles", p.cfg.RiskpoolID)
	}
	return Allocation{}, apperr.New(apperr.InsufficientCapital, "no active bundle can lock %d", required)
}

// AllocationOf returns where policyID is collateralized.
func (p *Pool) AllocationOf(policyID uuid.UUID) (Allocation, bool) {
	a, ok := p.allocations[policyID]
	return a, ok
}

// ProcessPremium credits net premium to the bundle backing policyID.
func (p *Pool) ProcessPremium(policyID uuid.UUID, net int64, now time.Time) error {
	alloc, ok := p.allocations[policyID]
	if !ok {
		return apperr.New(apperr.PolicyDoesNotExist, "policy %s has no allocation", policyID)
	}
	b, _ := p.get(alloc.BundleID)
	if err := b.requireOpen(); err != nil {
		return err
	}
	b.Balance += net
	b.UpdatedAt = now
	return nil
}

// CheckRelease verifies the backing bundle can pay amount for policyID.
func (p *Pool) CheckRelease(policyID uuid.UUID, amount int64) (Allocation, error) {
	alloc, ok := p.allocations[policyID]
	if !ok {
		return Allocation{}, apperr.New(apperr.PolicyDoesNotExist, "policy %s has no allocation", policyID)
	}
	b, _ := p.get(alloc.BundleID)
	if err := b.requireOpen(); err != nil {
		return Allocation{}, err
	}
	if amount > b.Capital || amount > b.Balance {
		return Allocation{}, apperr.New(apperr.InsufficientCapital, "bundle %d cannot pay %d (capital %d, balance %d)",
			b.ID, amount, b.Capital, b.Balance)
	}
	return alloc, nil
}

// Release books a payout of amount against the bundle backing policyID:
// the lock shrinks by the paid portion of the collateral, capital and
// balance by the full amount.
func (p *Pool) Release(policyID uuid.UUID, amount int64, now time.Time) (int64, error) {
	alloc, err := p.CheckRelease(policyID, amount)
	if err != nil {
		return 0, err
	}
	b, _ := p.get(alloc.BundleID)
	unlocked := min(amount, alloc.Collateral)
	b.LockedCapital -= unlocked
	b.Capital -= amount
	b.Balance -= amount
	b.UpdatedAt = now
	alloc.Collateral -= unlocked
	p.allocations[policyID] = alloc
	return alloc.BundleID, nil
}

// ReleaseAll unlocks whatever collateral policyID still holds and drops
// the allocation. Capital and balance are unchanged.
func (p *Pool) ReleaseAll(policyID uuid.UUID, now time.Time) (int64, error) {
	alloc, ok := p.allocations[policyID]
	if !ok {
		return 0, apperr.New(apperr.PolicyDoesNotExist, "policy %s has no allocation", policyID)
	}
	b, _ := p.get(alloc.BundleID)
	b.LockedCapital -= alloc.Collateral
	b.UpdatedAt = now
	delete(p.allocations, policyID)
	return alloc.Collateral, nil
}

// CollateralByBundle sums the allocations per bundle.
func (p *Pool) CollateralByBundle() map[int64]int64 {
	out := make(map[int64]int64, len(p.bundles))
	for _, a := range p.allocations {
		out[a.BundleID] += a.Collateral
	}
	return out
}

// Totals aggregates capital, locked capital and balance over Active and
// Locked bundles.
func (p *Pool) Totals() (capital, locked, balance int64) {
	for _, b := range p.bundles {
		if b.State == BundleActive || b.State == BundleLocked {
			capital += b.Capital
			locked += b.LockedCapital
			balance += b.Balance
		}
	}
	return capital, locked, balance
}

func (p *Pool) totalLocked() int64 {
	var total int64
	for _, b := range p.bundles {
		total += b.LockedCapital
	}
	return total
}

// Clone returns an independent copy.
func (p *Pool) Clone() *Pool {
	c := &Pool{
		cfg:         p.cfg,
		matcher:     p.matcher,
		bundles:     make([]*Bundle, len(p.bundles)),
		allocations: make(map[uuid.UUID]Allocation, len(p.allocations)),
	}
	for i, b := range p.bundles {
		c.bundles[i] = copyBundle(b)
	}
	for k, v := range p.allocations {
		c.allocations[k] = v
	}
	return c
}

// State is the serializable form of a pool.
type State struct {
	Config      Config                   `json:"config"`
	Bundles     []*Bundle                `json:"bundles"`
	Allocations map[uuid.UUID]Allocation `json:"allocations"`
}

func (p *Pool) Export() State {
	c := p.Clone()
	return State{Config: c.cfg, Bundles: c.bundles, Allocations: c.allocations}
}

// Restore replaces the pool contents with s, keeping the matcher.
func (p *Pool) Restore(s State) {
	src := &Pool{cfg: s.Config, matcher: p.matcher, bundles: s.Bundles, allocations: s.Allocations}
	if src.allocations == nil {
		src.allocations = make(map[uuid.UUID]Allocation)
	}
	*p = *src.Clone()
}

func copyBundle(b *Bundle) *Bundle {
	c := *b
	c.Filter = append([]byte(nil), b.Filter...)
	return &c
}
