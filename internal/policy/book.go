package policy

import (
	"ParaLedger/internal/apperr"
	"ParaLedger/internal/token"
	"time"

	"github.com/google/uuid"
)

type Metadata struct {
	ID        uuid.UUID     `json:"id"`
	Owner     token.Address `json:"owner"`
	ProductID string        `json:"productId"`
	State     MetadataState `json:"state"`
	Data      []byte        `json:"data,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

type Application struct {
	ID               uuid.UUID        `json:"id"`
	Owner            token.Address    `json:"owner"`
	ProductID        string           `json:"productId"`
	RiskID           uuid.UUID        `json:"riskId"`
	PremiumAmount    int64            `json:"premiumAmount"`
	SumInsuredAmount int64            `json:"sumInsuredAmount"`
	State            ApplicationState `json:"state"`
	Data             []byte           `json:"data,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

type Policy struct {
	ID                    uuid.UUID   `json:"id"`
	State                 PolicyState `json:"state"`
	PremiumExpectedAmount int64       `json:"premiumExpectedAmount"`
	PremiumPaidAmount     int64       `json:"premiumPaidAmount"`
	PayoutMaxAmount       int64       `json:"payoutMaxAmount"`
	PayoutAmount          int64       `json:"payoutAmount"`
	ClaimsCount           int         `json:"claimsCount"`
	OpenClaimsCount       int         `json:"openClaimsCount"`
	CreatedAt             time.Time   `json:"createdAt"`
	UpdatedAt             time.Time   `json:"updatedAt"`
}

type Claim struct {
	ID          int        `json:"id"`
	PolicyID    uuid.UUID  `json:"policyId"`
	State       ClaimState `json:"state"`
	ClaimAmount int64      `json:"claimAmount"`
	PaidAmount  int64      `json:"paidAmount"`
	Data        []byte     `json:"data,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type Payout struct {
	ID        int         `json:"id"`
	PolicyID  uuid.UUID   `json:"policyId"`
	ClaimID   int         `json:"claimId"`
	State     PayoutState `json:"state"`
	Amount    int64       `json:"amount"`
	Data      []byte      `json:"data,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Book owns applications, policies and their claims and payouts.
// A policy shares its id with the application it was underwritten from.
type Book struct {
	metadata     map[uuid.UUID]*Metadata
	applications map[uuid.UUID]*Application
	policies     map[uuid.UUID]*Policy
	claims       map[uuid.UUID][]*Claim
	payouts      map[uuid.UUID][]*Payout
	order        []uuid.UUID
}

func NewBook() *Book {
	return &Book{
		metadata:     make(map[uuid.UUID]*Metadata),
		applications: make(map[uuid.UUID]*Application),
		policies:     make(map[uuid.UUID]*Policy),
		claims:       make(map[uuid.UUID][]*Claim),
		payouts:      make(map[uuid.UUID][]*Payout),
	}
}

// ============================================================================
// Applications
// ============================================================================

// CreateApplication records a new Applied application and its metadata.
func (bk *Book) CreateApplication(id uuid.UUID, owner token.Address, productID string, riskID uuid.UUID, premium, sumInsured int64, data []byte, now time.Time) (*Application, error) {
	if _, exists := bk.applications[id]; exists {
		return nil, apperr.New(apperr.ApplicationStateInvalid, "application %s already exists", id)
	}
	if premium <= 0 {
		return nil, apperr.New(apperr.PremiumAmountZero, "premium must be positive")
	}
	if sumInsured <= premium {
		return nil, apperr.New(apperr.SumInsuredTooSmall, "sum insured %d must exceed premium %d", sumInsured, premium)
	}

	bk.metadata[id] = &Metadata{
		ID:        id,
		Owner:     owner,
		ProductID: productID,
		State:     MetadataStarted,
		Data:      append([]byte(nil), data...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	app := &Application{
		ID:               id,
		Owner:            owner,
		ProductID:        productID,
		RiskID:           riskID,
		PremiumAmount:    premium,
		SumInsuredAmount: sumInsured,
		State:            ApplicationApplied,
		Data:             append([]byte(nil), data...),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	bk.applications[id] = app
	bk.order = append(bk.order, id)
	return copyApplication(app), nil
}

func (bk *Book) application(id uuid.UUID) (*Application, error) {
	app, ok := bk.applications[id]
	if !ok {
		return nil, apperr.New(apperr.ApplicationDoesNotExist, "application %s", id)
	}
	return app, nil
}

func (bk *Book) transitionApplication(app *Application, next ApplicationState, now time.Time) error {
	if !applicationTransitions.allows(app.State, next) {
		return apperr.New(apperr.ApplicationStateInvalid, "application %s: %s -> %s not allowed", app.ID, app.State, next)
	}
	app.State = next
	app.UpdatedAt = now
	return nil
}

func (bk *Book) transitionMetadata(id uuid.UUID, next MetadataState, now time.Time) {
	meta := bk.metadata[id]
	if !metadataTransitions.allows(meta.State, next) {
		panic("metadata transition " + meta.State.String() + " -> " + next.String())
	}
	meta.State = next
	meta.UpdatedAt = now
}

// Decline rejects an Applied application.
func (bk *Book) Decline(id uuid.UUID, now time.Time) error {
	app, err := bk.application(id)
	if err != nil {
		return err
	}
	if err := bk.transitionApplication(app, ApplicationDeclined, now); err != nil {
		return err
	}
	bk.transitionMetadata(id, MetadataFinished, now)
	return nil
}

// Revoke withdraws an Applied application on behalf of its holder.
func (bk *Book) Revoke(id uuid.UUID, now time.Time) error {
	app, err := bk.application(id)
	if err != nil {
		return err
	}
	if err := bk.transitionApplication(app, ApplicationRevoked, now); err != nil {
		return err
	}
	bk.transitionMetadata(id, MetadataFinished, now)
	return nil
}

// CheckUnderwrite reports whether id can be underwritten. done is true when
// it already was, which callers treat as success.
func (bk *Book) CheckUnderwrite(id uuid.UUID) (app *Application, done bool, err error) {
	a, err := bk.application(id)
	if err != nil {
		return nil, false, err
	}
	switch a.State {
	case ApplicationUnderwritten:
		return copyApplication(a), true, nil
	case ApplicationApplied:
		return copyApplication(a), false, nil
	default:
		return nil, false, apperr.New(apperr.ApplicationStateInvalid, "application %s is %s", id, a.State)
	}
}

// Underwrite turns an Applied application into an Active policy.
func (bk *Book) Underwrite(id uuid.UUID, now time.Time) (*Policy, error) {
	app, err := bk.application(id)
	if err != nil {
		return nil, err
	}
	if err := bk.transitionApplication(app, ApplicationUnderwritten, now); err != nil {
		return nil, err
	}
	bk.transitionMetadata(id, MetadataActive, now)

	p := &Policy{
		ID:                    id,
		State:                 PolicyActive,
		PremiumExpectedAmount: app.PremiumAmount,
		PayoutMaxAmount:       app.SumInsuredAmount,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	bk.policies[id] = p
	return copyPolicy(p), nil
}

// Adjust lowers the sum insured and/or changes the premium of an Applied
// application or of an Active policy. Locked collateral is not touched.
func (bk *Book) Adjust(id uuid.UUID, newPremium, newSumInsured int64, now time.Time) error {
	app, err := bk.application(id)
	if err != nil {
		return err
	}

	var p *Policy
	switch app.State {
	case ApplicationApplied:
	case ApplicationUnderwritten:
		p = bk.policies[id]
		if p.State != PolicyActive {
			return apperr.New(apperr.PolicyNotActive, "policy %s is %s", id, p.State)
		}
	default:
		return apperr.New(apperr.ApplicationStateInvalid, "application %s is %s", id, app.State)
	}

	if newSumInsured > app.SumInsuredAmount {
		return apperr.New(apperr.SumInsuredIncreaseInvalid, "sum insured %d exceeds current %d", newSumInsured, app.SumInsuredAmount)
	}
	var paid int64
	if p != nil {
		paid = p.PremiumPaidAmount
		if committed := bk.committed(p); newSumInsured < committed {
			return apperr.New(apperr.SumInsuredTooSmall, "sum insured %d below paid and confirmed claims %d", newSumInsured, committed)
		}
	}
	if newPremium <= 0 || newPremium < paid || newPremium > newSumInsured {
		return apperr.New(apperr.PremiumInvalid, "premium %d must be within [%d, %d]", newPremium, max(paid, 1), newSumInsured)
	}

	app.PremiumAmount = newPremium
	app.SumInsuredAmount = newSumInsured
	app.UpdatedAt = now
	if p != nil {
		p.PremiumExpectedAmount = newPremium
		p.PayoutMaxAmount = newSumInsured
		p.UpdatedAt = now
	}
	return nil
}

// ============================================================================
// Policies
// ============================================================================

func (bk *Book) policy(id uuid.UUID) (*Policy, error) {
	p, ok := bk.policies[id]
	if !ok {
		return nil, apperr.New(apperr.PolicyDoesNotExist, "policy %s", id)
	}
	return p, nil
}

// PremiumDue clamps a collection request to what is still expected.
// A zero request means the full remainder.
func (bk *Book) PremiumDue(id uuid.UUID, requested int64) (int64, error) {
	p, err := bk.policy(id)
	if err != nil {
		return 0, err
	}
	if requested < 0 {
		return 0, apperr.New(apperr.AmountInvalid, "premium amount %d is negative", requested)
	}
	if p.State == PolicyClosed {
		return 0, apperr.New(apperr.PolicyNotActive, "policy %s is closed", id)
	}
	remaining := p.PremiumExpectedAmount - p.PremiumPaidAmount
	if requested == 0 || requested > remaining {
		return remaining, nil
	}
	return requested, nil
}

// AddPremium books a collected premium amount.
func (bk *Book) AddPremium(id uuid.UUID, amount int64, now time.Time) error {
	p, err := bk.policy(id)
	if err != nil {
		return err
	}
	if p.PremiumPaidAmount+amount > p.PremiumExpectedAmount {
		return apperr.New(apperr.PremiumInvalid, "paid %d + %d exceeds expected %d", p.PremiumPaidAmount, amount, p.PremiumExpectedAmount)
	}
	p.PremiumPaidAmount += amount
	p.UpdatedAt = now
	return nil
}

func (bk *Book) Expire(id uuid.UUID, now time.Time) error {
	p, err := bk.policy(id)
	if err != nil {
		return err
	}
	if !policyTransitions.allows(p.State, PolicyExpired) {
		return apperr.New(apperr.PolicyNotActive, "policy %s is %s", id, p.State)
	}
	p.State = PolicyExpired
	p.UpdatedAt = now
	return nil
}

// Close finishes an Expired policy without open claims.
func (bk *Book) Close(id uuid.UUID, now time.Time) error {
	p, err := bk.policy(id)
	if err != nil {
		return err
	}
	if !policyTransitions.allows(p.State, PolicyClosed) {
		return apperr.New(apperr.PolicyNotExpired, "policy %s is %s", id, p.State)
	}
	if p.OpenClaimsCount > 0 {
		return apperr.New(apperr.PolicyHasOpenClaims, "policy %s has %d open claims", id, p.OpenClaimsCount)
	}
	p.State = PolicyClosed
	p.UpdatedAt = now
	bk.transitionMetadata(id, MetadataFinished, now)
	return nil
}

// ============================================================================
// Claims and payouts
// ============================================================================

// NewClaim opens an Applied claim on an Active policy.
func (bk *Book) NewClaim(id uuid.UUID, amount int64, data []byte, now time.Time) (*Claim, error) {
	p, err := bk.policy(id)
	if err != nil {
		return nil, err
	}
	if p.State != PolicyActive {
		return nil, apperr.New(apperr.PolicyNotActive, "policy %s is %s", id, p.State)
	}
	if amount < 0 {
		return nil, apperr.New(apperr.AmountInvalid, "claim amount %d is negative", amount)
	}

	c := &Claim{
		ID:          len(bk.claims[id]),
		PolicyID:    id,
		State:       ClaimApplied,
		ClaimAmount: amount,
		Data:        append([]byte(nil), data...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	bk.claims[id] = append(bk.claims[id], c)
	p.ClaimsCount++
	p.OpenClaimsCount++
	p.UpdatedAt = now
	return copyClaim(c), nil
}

func (bk *Book) claim(id uuid.UUID, claimID int) (*Policy, *Claim, error) {
	p, err := bk.policy(id)
	if err != nil {
		return nil, nil, err
	}
	list := bk.claims[id]
	if claimID < 0 || claimID >= len(list) {
		return nil, nil, apperr.New(apperr.ClaimDoesNotExist, "policy %s claim %d", id, claimID)
	}
	return p, list[claimID], nil
}

func transitionClaim(c *Claim, next ClaimState, now time.Time) error {
	if !claimTransitions.allows(c.State, next) {
		return apperr.New(apperr.ClaimStateInvalid, "claim %d: %s -> %s not allowed", c.ID, c.State, next)
	}
	c.State = next
	c.UpdatedAt = now
	return nil
}

// committed is what the policy has paid out plus what Confirmed claims
// still owe.
func (bk *Book) committed(p *Policy) int64 {
	total := p.PayoutAmount
	for _, c := range bk.claims[p.ID] {
		if c.State == ClaimConfirmed {
			total += c.ClaimAmount - c.PaidAmount
		}
	}
	return total
}

// ConfirmClaim fixes the claim amount, bounded by the policy's payout
// maximum less what is paid or already confirmed.
func (bk *Book) ConfirmClaim(id uuid.UUID, claimID int, amount int64, now time.Time) error {
	p, c, err := bk.claim(id, claimID)
	if err != nil {
		return err
	}
	if amount < 0 {
		return apperr.New(apperr.AmountInvalid, "claim amount %d is negative", amount)
	}
	if remaining := p.PayoutMaxAmount - bk.committed(p); amount > remaining {
		return apperr.New(apperr.PayoutMaxAmountExceeded, "claim %d exceeds remaining payout %d", amount, remaining)
	}
	if err := transitionClaim(c, ClaimConfirmed, now); err != nil {
		return err
	}
	c.ClaimAmount = amount
	return nil
}

func (bk *Book) DeclineClaim(id uuid.UUID, claimID int, now time.Time) error {
	p, c, err := bk.claim(id, claimID)
	if err != nil {
		return err
	}
	if err := transitionClaim(c, ClaimDeclined, now); err != nil {
		return err
	}
	p.OpenClaimsCount--
	p.UpdatedAt = now
	return nil
}

// CloseClaim closes a Confirmed claim that is fully paid, which for a
// zero claim is immediately.
func (bk *Book) CloseClaim(id uuid.UUID, claimID int, now time.Time) error {
	p, c, err := bk.claim(id, claimID)
	if err != nil {
		return err
	}
	if c.State == ClaimConfirmed && c.PaidAmount != c.ClaimAmount {
		return apperr.New(apperr.ClaimNotFullyPaid, "claim %d paid %d of %d", claimID, c.PaidAmount, c.ClaimAmount)
	}
	if err := transitionClaim(c, ClaimClosed, now); err != nil {
		return err
	}
	p.OpenClaimsCount--
	p.UpdatedAt = now
	return nil
}

// CheckPayout validates a payout before any funds move.
func (bk *Book) CheckPayout(id uuid.UUID, claimID int, amount int64) error {
	_, c, err := bk.claim(id, claimID)
	if err != nil {
		return err
	}
	if c.State != ClaimConfirmed {
		return apperr.New(apperr.ClaimNotConfirmed, "claim %d is %s", claimID, c.State)
	}
	if amount <= 0 || amount > c.ClaimAmount-c.PaidAmount {
		return apperr.New(apperr.PayoutAmountInvalid, "payout %d for claim of %d (paid %d)", amount, c.ClaimAmount, c.PaidAmount)
	}
	return nil
}

// NewPayout creates an Expected payout against a Confirmed claim.
func (bk *Book) NewPayout(id uuid.UUID, claimID int, amount int64, data []byte, now time.Time) (*Payout, error) {
	if err := bk.CheckPayout(id, claimID, amount); err != nil {
		return nil, err
	}
	po := &Payout{
		ID:        len(bk.payouts[id]),
		PolicyID:  id,
		ClaimID:   claimID,
		State:     PayoutExpected,
		Amount:    amount,
		Data:      append([]byte(nil), data...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	bk.payouts[id] = append(bk.payouts[id], po)
	return copyPayout(po), nil
}

// ProcessPayout marks a payout paid and closes its claim.
func (bk *Book) ProcessPayout(id uuid.UUID, payoutID int, now time.Time) error {
	p, err := bk.policy(id)
	if err != nil {
		return err
	}
	list := bk.payouts[id]
	if payoutID < 0 || payoutID >= len(list) {
		return apperr.New(apperr.PayoutDoesNotExist, "policy %s payout %d", id, payoutID)
	}
	po := list[payoutID]
	if !payoutTransitions.allows(po.State, PayoutPaidOut) {
		return apperr.New(apperr.PayoutStateInvalid, "payout %d is %s", payoutID, po.State)
	}
	c := bk.claims[id][po.ClaimID]
	if err := transitionClaim(c, ClaimClosed, now); err != nil {
		return err
	}

	po.State = PayoutPaidOut
	po.UpdatedAt = now
	c.PaidAmount += po.Amount
	p.PayoutAmount += po.Amount
	p.OpenClaimsCount--
	p.UpdatedAt = now
	return nil
}

// ============================================================================
// Queries
// ============================================================================

func (bk *Book) Application(id uuid.UUID) (*Application, error) {
	app, err := bk.application(id)
	if err != nil {
		return nil, err
	}
	return copyApplication(app), nil
}

func (bk *Book) Metadata(id uuid.UUID) (*Metadata, error) {
	meta, ok := bk.metadata[id]
	if !ok {
		return nil, apperr.New(apperr.ApplicationDoesNotExist, "application %s", id)
	}
	c := *meta
	c.Data = append([]byte(nil), meta.Data...)
	return &c, nil
}

func (bk *Book) Policy(id uuid.UUID) (*Policy, error) {
	p, err := bk.policy(id)
	if err != nil {
		return nil, err
	}
	return copyPolicy(p), nil
}

func (bk *Book) Claim(id uuid.UUID, claimID int) (*Claim, error) {
	_, c, err := bk.claim(id, claimID)
	if err != nil {
		return nil, err
	}
	return copyClaim(c), nil
}

func (bk *Book) Claims(id uuid.UUID) []*Claim {
	out := make([]*Claim, 0, len(bk.claims[id]))
	for _, c := range bk.claims[id] {
		out = append(out, copyClaim(c))
	}
	return out
}

func (bk *Book) Payouts(id uuid.UUID) []*Payout {
	out := make([]*Payout, 0, len(bk.payouts[id]))
	for _, po := range bk.payouts[id] {
		out = append(out, copyPayout(po))
	}
	return out
}

// Applications returns all applications in creation order.
func (bk *Book) Applications() []*Application {
	out := make([]*Application, 0, len(bk.order))
	for _, id := range bk.order {
		out = append(out, copyApplication(bk.applications[id]))
	}
	return out
}

// Holder returns the owner of an application or policy.
func (bk *Book) Holder(id uuid.UUID) (token.Address, error) {
	app, err := bk.application(id)
	if err != nil {
		return "", err
	}
	return app.Owner, nil
}

func copyApplication(a *Application) *Application {
	c := *a
	c.Data = append([]byte(nil), a.Data...)
	return &c
}

func copyPolicy(p *Policy) *Policy {
	c := *p
	return &c
}

func copyClaim(cl *Claim) *Claim {
	c := *cl
	c.Data = append([]byte(nil), cl.Data...)
	return &c
}

func copyPayout(po *Payout) *Payout {
	c := *po
	c.Data = append([]byte(nil), po.Data...)
	return &c
}
