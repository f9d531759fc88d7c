package treasury

import (
	"ParaLedger/internal/apperr"
	fpmath "ParaLedger/internal/math"
	"ParaLedger/internal/token"
	"time"
)

// MaxFractionalFee caps fractional fees at 25%.
const MaxFractionalFee = fpmath.FeeFractionFullUnit / 4

type ComponentKind uint8

const (
	ComponentProduct ComponentKind = iota + 1
	ComponentRiskpool
)

func (k ComponentKind) String() string {
	switch k {
	case ComponentProduct:
		return "product"
	case ComponentRiskpool:
		return "riskpool"
	default:
		return "unknown"
	}
}

// FeeSpecification is the single active fee rule of a component.
type FeeSpecification struct {
	ComponentID     string    `json:"componentId"`
	FixedFee        int64     `json:"fixedFee"`
	FractionalFee   int64     `json:"fractionalFee"`
	CalculationData []byte    `json:"calculationData,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Treasury computes protocol fees and moves funds through the token account.
// The account handle is shared between clones; everything else is copied.
type Treasury struct {
	account  token.Account
	operator token.Address

	suspended       bool
	instanceWallet  token.Address
	riskpoolWallets map[string]token.Address
	components      map[string]ComponentKind
	productRiskpool map[string]string
	fees            map[string]FeeSpecification
}

// New creates a treasury that moves funds as operator, the spender every
// payer must approve.
func New(account token.Account, operator token.Address) *Treasury {
	return &Treasury{
		account:         account,
		operator:        operator,
		riskpoolWallets: make(map[string]token.Address),
		components:      make(map[string]ComponentKind),
		productRiskpool: make(map[string]string),
		fees:            make(map[string]FeeSpecification),
	}
}

func (t *Treasury) Operator() token.Address { return t.operator }

func (t *Treasury) Account() token.Account { return t.account }

// RegisterComponent makes id known as a product or riskpool.
func (t *Treasury) RegisterComponent(id string, kind ComponentKind) error {
	if id == "" || (kind != ComponentProduct && kind != ComponentRiskpool) {
		return apperr.New(apperr.ComponentUnknown, "invalid component %q (%s)", id, kind)
	}
	t.components[id] = kind
	return nil
}

// LinkProduct routes the premiums and payouts of productID through riskpoolID.
func (t *Treasury) LinkProduct(productID, riskpoolID string) error {
	if t.components[productID] != ComponentProduct {
		return apperr.New(apperr.ComponentUnknown, "%q is not a product", productID)
	}
	if t.components[riskpoolID] != ComponentRiskpool {
		return apperr.New(apperr.ComponentUnknown, "%q is not a riskpool", riskpoolID)
	}
	t.productRiskpool[productID] = riskpoolID
	return nil
}

func (t *Treasury) Suspend() { t.suspended = true }

func (t *Treasury) Resume() { t.suspended = false }

func (t *Treasury) Suspended() bool { return t.suspended }

func (t *Treasury) checkActive() error {
	if t.suspended {
		return apperr.New(apperr.TreasurySuspended, "treasury is suspended")
	}
	return nil
}

// SetInstanceWallet sets the recipient of all fees.
func (t *Treasury) SetInstanceWallet(wallet token.Address) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if wallet == "" {
		return apperr.New(apperr.WalletUndefined, "instance wallet must not be empty")
	}
	t.instanceWallet = wallet
	return nil
}

// SetRiskpoolWallet sets the wallet holding a riskpool's capital and premiums.
func (t *Treasury) SetRiskpoolWallet(riskpoolID string, wallet token.Address) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if t.components[riskpoolID] != ComponentRiskpool {
		return apperr.New(apperr.ComponentUnknown, "%q is not a riskpool", riskpoolID)
	}
	if wallet == "" {
		return apperr.New(apperr.WalletUndefined, "riskpool wallet must not be empty")
	}
	t.riskpoolWallets[riskpoolID] = wallet
	return nil
}

func (t *Treasury) InstanceWallet() token.Address { return t.instanceWallet }

func (t *Treasury) RiskpoolWallet(riskpoolID string) token.Address {
	return t.riskpoolWallets[riskpoolID]
}

// SetFeeSpecification creates or replaces the fee rule of a component.
// Replacing keeps the original CreatedAt.
func (t *Treasury) SetFeeSpecification(componentID string, fixedFee, fractionalFee int64, data []byte, now time.Time) (FeeSpecification, error) {
	if err := t.checkActive(); err != nil {
		return FeeSpecification{}, err
	}
	if _, ok := t.components[componentID]; !ok {
		return FeeSpecification{}, apperr.New(apperr.ComponentUnknown, "component %q is neither product nor riskpool", componentID)
	}
	if fixedFee < 0 || fractionalFee < 0 {
		return FeeSpecification{}, apperr.New(apperr.FeeInvalid, "fees must not be negative")
	}
	if fractionalFee > MaxFractionalFee {
		return FeeSpecification{}, apperr.New(apperr.FractionalFeeTooBig, "fractional fee %d exceeds %d", fractionalFee, MaxFractionalFee)
	}

	spec := FeeSpecification{
		ComponentID:     componentID,
		FixedFee:        fixedFee,
		FractionalFee:   fractionalFee,
		CalculationData: append([]byte(nil), data...),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if prev, ok := t.fees[componentID]; ok {
		spec.CreatedAt = prev.CreatedAt
	}
	t.fees[componentID] = spec
	return spec, nil
}

func (t *Treasury) FeeSpecification(componentID string) (FeeSpecification, bool) {
	spec, ok := t.fees[componentID]
	return spec, ok
}

// QuoteFee splits gross into fee and net for componentID.
// fee = fixed + floor(gross * fractional / FullUnit)
func (t *Treasury) QuoteFee(componentID string, gross int64) (fee, net int64, err error) {
	if gross < 0 {
		return 0, 0, apperr.New(apperr.AmountInvalid, "amount %d is negative", gross)
	}
	spec, ok := t.fees[componentID]
	if !ok {
		return 0, 0, apperr.New(apperr.FeeSpecUndefined, "no fee specification for %q", componentID)
	}

	fee = spec.FixedFee + fpmath.ApplyFraction(gross, spec.FractionalFee, fpmath.FeeFractionFullUnit)
	if fee > gross {
		return 0, 0, apperr.New(apperr.FeeExceedsAmount, "fee %d exceeds amount %d", fee, gross)
	}
	return fee, gross - fee, nil
}

// Clone copies the configuration; the account handle is shared.
func (t *Treasury) Clone() *Treasury {
	c := New(t.account, t.operator)
	c.suspended = t.suspended
	c.instanceWallet = t.instanceWallet
	for k, v := range t.riskpoolWallets {
		c.riskpoolWallets[k] = v
	}
	for k, v := range t.components {
		c.components[k] = v
	}
	for k, v := range t.productRiskpool {
		c.productRiskpool[k] = v
	}
	for k, v := range t.fees {
		c.fees[k] = v
	}
	return c
}

// State is the serializable form of the treasury configuration.
type State struct {
	Suspended       bool                        `json:"suspended"`
	InstanceWallet  token.Address               `json:"instanceWallet"`
	RiskpoolWallets map[string]token.Address    `json:"riskpoolWallets"`
	Components      map[string]ComponentKind    `json:"components"`
	ProductRiskpool map[string]string           `json:"productRiskpool"`
	Fees            map[string]FeeSpecification `json:"fees"`
}

func (t *Treasury) Export() State {
	c := t.Clone()
	return State{
		Suspended:       c.suspended,
		InstanceWallet:  c.instanceWallet,
		RiskpoolWallets: c.riskpoolWallets,
		Components:      c.components,
		ProductRiskpool: c.productRiskpool,
		Fees:            c.fees,
	}
}

// Restore replaces the configuration with s.
func (t *Treasury) Restore(s State) {
	fresh := New(t.account, t.operator)
	fresh.suspended = s.Suspended
	fresh.instanceWallet = s.InstanceWallet
	for k, v := range s.RiskpoolWallets {
		fresh.riskpoolWallets[k] = v
	}
	for k, v := range s.Components {
		fresh.components[k] = v
	}
	for k, v := range s.ProductRiskpool {
		fresh.productRiskpool[k] = v
	}
	for k, v := range s.Fees {
		fresh.fees[k] = v
	}
	*t = *fresh
}
