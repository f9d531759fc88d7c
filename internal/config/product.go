// Package config loads the product file that describes one insurance
// product, its riskpool and the treasury setup around them.
package config

import (
	"ParaLedger/internal/access"
	"ParaLedger/internal/core"
	fpmath "ParaLedger/internal/math"
	"ParaLedger/internal/token"
	"ParaLedger/internal/treasury"
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Product is the YAML product file. Fractions are decimal strings
// ("0.05" is five percent) so they are exact in fixed point.
type Product struct {
	Product  ProductSection  `yaml:"product"`
	Riskpool RiskpoolSection `yaml:"riskpool"`
	Treasury TreasurySection `yaml:"treasury"`
	// Roles maps a role name (instance_operator, product_owner, insurer,
	// investor, oracle_provider) to the accounts holding it.
	Roles map[string][]token.Address `yaml:"roles"`
	// Accounts seeds the in-process token account: an opening balance and
	// the allowance granted to the treasury operator.
	Accounts map[token.Address]Wallet `yaml:"accounts"`
}

type Wallet struct {
	Balance   int64 `yaml:"balance"`
	Allowance int64 `yaml:"allowance"`
}

type ProductSection struct {
	ID string `yaml:"id"`
}

type RiskpoolSection struct {
	ID                     string          `yaml:"id"`
	Wallet                 token.Address   `yaml:"wallet"`
	CollateralizationLevel decimal.Decimal `yaml:"collateralization_level"`
	SumOfSumInsuredCap     int64           `yaml:"sum_of_sum_insured_cap"`
	MaxActiveBundles       int             `yaml:"max_active_bundles"`
}

type TreasurySection struct {
	Operator       token.Address  `yaml:"operator"`
	InstanceWallet token.Address  `yaml:"instance_wallet"`
	Fees           map[string]Fee `yaml:"fees"`
}

// Fee is the fee rule of one component, keyed by component id.
type Fee struct {
	Fixed    int64           `yaml:"fixed"`
	Fraction decimal.Decimal `yaml:"fraction"`
}

// Load reads and validates a product file.
func Load(path string) (*Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read product file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Product, error) {
	p := Product{
		Riskpool: RiskpoolSection{
			CollateralizationLevel: decimal.NewFromInt(1),
			MaxActiveBundles:       1,
		},
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse product file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Product) Validate() error {
	switch {
	case p.Product.ID == "":
		return fmt.Errorf("product.id is required")
	case p.Riskpool.ID == "":
		return fmt.Errorf("riskpool.id is required")
	case p.Riskpool.ID == p.Product.ID:
		return fmt.Errorf("product and riskpool ids must differ")
	case p.Treasury.Operator == "":
		return fmt.Errorf("treasury.operator is required")
	case p.Riskpool.MaxActiveBundles <= 0:
		return fmt.Errorf("riskpool.max_active_bundles must be positive")
	case p.Riskpool.SumOfSumInsuredCap < 0:
		return fmt.Errorf("riskpool.sum_of_sum_insured_cap must not be negative")
	}
	if _, err := p.collateralizationLevel(); err != nil {
		return err
	}
	for id, fee := range p.Treasury.Fees {
		if id != p.Product.ID && id != p.Riskpool.ID {
			return fmt.Errorf("fee for unknown component %q", id)
		}
		if _, err := fpmath.FromDecimal(fee.Fraction, fpmath.FeeFractionConfig); err != nil {
			return fmt.Errorf("fee %s: %w", id, err)
		}
	}
	for addr, w := range p.Accounts {
		if w.Balance < 0 || w.Allowance < 0 {
			return fmt.Errorf("accounts.%s: balance and allowance must not be negative", addr)
		}
	}
	for name := range p.Roles {
		if _, err := access.ParseRole(name); err != nil {
			return err
		}
	}
	return nil
}

func (p *Product) collateralizationLevel() (int64, error) {
	level, err := fpmath.FromDecimal(p.Riskpool.CollateralizationLevel, fpmath.FeeFractionConfig)
	if err != nil {
		return 0, fmt.Errorf("riskpool.collateralization_level: %w", err)
	}
	if level <= 0 {
		return 0, fmt.Errorf("riskpool.collateralization_level must be positive")
	}
	return level, nil
}

// EngineConfig is the static engine setup described by the file.
func (p *Product) EngineConfig() core.Config {
	level, _ := p.collateralizationLevel()
	return core.Config{
		ProductID:              p.Product.ID,
		RiskpoolID:             p.Riskpool.ID,
		Operator:               p.Treasury.Operator,
		CollateralizationLevel: level,
		SumOfSumInsuredCap:     p.Riskpool.SumOfSumInsuredCap,
		MaxActiveBundles:       p.Riskpool.MaxActiveBundles,
	}
}

// GrantRoles loads the role table into store.
func (p *Product) GrantRoles(store *access.Store) {
	for name, accounts := range p.Roles {
		role, err := access.ParseRole(name)
		if err != nil {
			continue
		}
		for _, a := range accounts {
			store.Grant(role, a)
		}
	}
}

// Bootstrapper is the part of the engine a fresh instance is set up with.
type Bootstrapper interface {
	SetInstanceWallet(ctx context.Context, wallet token.Address) error
	SetRiskpoolWallet(ctx context.Context, wallet token.Address) error
	SetFeeSpecification(ctx context.Context, componentID string, fixedFee, fractionalFee int64, data []byte) (treasury.FeeSpecification, error)
}

// Bootstrap sets wallets and fees on an engine without history. Each call
// is an ordinary engine operation and lands in the operation log.
func (p *Product) Bootstrap(ctx context.Context, eng Bootstrapper) error {
	if p.Treasury.InstanceWallet != "" {
		if err := eng.SetInstanceWallet(ctx, p.Treasury.InstanceWallet); err != nil {
			return fmt.Errorf("set instance wallet: %w", err)
		}
	}
	if p.Riskpool.Wallet != "" {
		if err := eng.SetRiskpoolWallet(ctx, p.Riskpool.Wallet); err != nil {
			return fmt.Errorf("set riskpool wallet: %w", err)
		}
	}
	for _, id := range []string{p.Product.ID, p.Riskpool.ID} {
		fee, ok := p.Treasury.Fees[id]
		if !ok {
			continue
		}
		frac, _ := fpmath.FromDecimal(fee.Fraction, fpmath.FeeFractionConfig)
		if _, err := eng.SetFeeSpecification(ctx, id, fee.Fixed, frac, nil); err != nil {
			return fmt.Errorf("set fee %s: %w", id, err)
		}
	}
	return nil
}

// Minter is an account that can be seeded with balances.
type Minter interface {
	Mint(account token.Address, amount int64)
	Approve(ctx context.Context, owner, spender token.Address, amount int64) error
}

// OpenAccounts mints the opening balances and approves the treasury
// operator for each configured wallet.
func (p *Product) OpenAccounts(ctx context.Context, m Minter) error {
	for addr, w := range p.Accounts {
		if w.Balance > 0 {
			m.Mint(addr, w.Balance)
		}
		if w.Allowance > 0 {
			if err := m.Approve(ctx, addr, p.Treasury.Operator, w.Allowance); err != nil {
				return fmt.Errorf("approve %s: %w", addr, err)
			}
		}
	}
	return nil
}
