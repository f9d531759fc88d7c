package config_test

import (
	"ParaLedger/internal/access"
	"ParaLedger/internal/config"
	fpmath "ParaLedger/internal/math"
	"ParaLedger/internal/token"
	"ParaLedger/internal/treasury"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productYAML = `
product:
  id: ayii
riskpool:
  id: ayii-pool
  wallet: riskpool-wallet
  collateralization_level: "0.5"
  sum_of_sum_insured_cap: 1000000
  max_active_bundles: 3
treasury:
  operator: treasury
  instance_wallet: instance-wallet
  fees:
    ayii:
      fixed: 0
      fraction: "0.1"
    ayii-pool:
      fixed: 42
      fraction: 0.05
accounts:
  investor: {balance: 5000, allowance: 5000}
  riskpool-wallet: {allowance: 1000000}
roles:
  instance_operator: [ops]
  product_owner: [owner]
  insurer: [owner, adjuster]
  oracle_provider: [oracle]
`

func TestParse_EngineConfig(t *testing.T) {
	p, err := config.Parse([]byte(productYAML))
	require.NoError(t, err)

	cfg := p.EngineConfig()
	assert.Equal(t, "ayii", cfg.ProductID)
	assert.Equal(t, "ayii-pool", cfg.RiskpoolID)
	assert.Equal(t, token.Address("treasury"), cfg.Operator)
	assert.Equal(t, fpmath.FeeFractionFullUnit/2, cfg.CollateralizationLevel)
	assert.Equal(t, int64(1_000_000), cfg.SumOfSumInsuredCap)
	assert.Equal(t, 3, cfg.MaxActiveBundles)
}

func TestParse_Defaults(t *testing.T) {
	p, err := config.Parse([]byte("product: {id: p}\nriskpool: {id: r}\ntreasury: {operator: op}\n"))
	require.NoError(t, err)

	cfg := p.EngineConfig()
	assert.Equal(t, fpmath.FeeFractionFullUnit, cfg.CollateralizationLevel)
	assert.Equal(t, 1, cfg.MaxActiveBundles)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing product", "riskpool: {id: r}\ntreasury: {operator: op}\n"},
		{"same ids", "product: {id: x}\nriskpool: {id: x}\ntreasury: {operator: op}\n"},
		{"missing operator", "product: {id: p}\nriskpool: {id: r}\n"},
		{"zero level", "product: {id: p}\nriskpool: {id: r, collateralization_level: 0}\ntreasury: {operator: op}\n"},
		{"too precise fee", "product: {id: p}\nriskpool: {id: r}\ntreasury: {operator: op, fees: {p: {fraction: \"0.0000000000000000001\"}}}\n"},
		{"unknown fee component", "product: {id: p}\nriskpool: {id: r}\ntreasury: {operator: op, fees: {other: {fixed: 1}}}\n"},
		{"negative balance", "product: {id: p}\nriskpool: {id: r}\ntreasury: {operator: op}\naccounts: {a: {balance: -1}}\n"},
		{"unknown role", "product: {id: p}\nriskpool: {id: r}\ntreasury: {operator: op}\nroles: {admin: [a]}\n"},
		{"bad yaml", "product: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "product.yaml")
	require.NoError(t, os.WriteFile(path, []byte(productYAML), 0o644))

	p, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ayii", p.Product.ID)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGrantRoles(t *testing.T) {
	p, err := config.Parse([]byte(productYAML))
	require.NoError(t, err)

	store := access.NewStore()
	p.GrantRoles(store)
	ctx := context.Background()

	ok, err := store.HasRole(ctx, access.RoleInsurer, "adjuster")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.HasRole(ctx, access.RoleInvestor, "owner")
	require.NoError(t, err)
	assert.False(t, ok)
}

type bootstrapCall struct {
	name     string
	arg      string
	fixed    int64
	fraction int64
}

type recordingEngine struct {
	calls []bootstrapCall
}

func (r *recordingEngine) SetInstanceWallet(_ context.Context, w token.Address) error {
	r.calls = append(r.calls, bootstrapCall{name: "instance", arg: string(w)})
	return nil
}

func (r *recordingEngine) SetRiskpoolWallet(_ context.Context, w token.Address) error {
	r.calls = append(r.calls, bootstrapCall{name: "riskpool", arg: string(w)})
	return nil
}

func (r *recordingEngine) SetFeeSpecification(_ context.Context, id string, fixed, fraction int64, _ []byte) (treasury.FeeSpecification, error) {
	r.calls = append(r.calls, bootstrapCall{name: "fee", arg: id, fixed: fixed, fraction: fraction})
	return treasury.FeeSpecification{}, nil
}

func TestBootstrap_WalletsThenFees(t *testing.T) {
	p, err := config.Parse([]byte(productYAML))
	require.NoError(t, err)

	eng := &recordingEngine{}
	require.NoError(t, p.Bootstrap(context.Background(), eng))

	assert.Equal(t, []bootstrapCall{
		{name: "instance", arg: "instance-wallet"},
		{name: "riskpool", arg: "riskpool-wallet"},
		{name: "fee", arg: "ayii", fraction: fpmath.FeeFractionFullUnit / 10},
		{name: "fee", arg: "ayii-pool", fixed: 42, fraction: fpmath.FeeFractionFullUnit / 20},
	}, eng.calls)
}

func TestOpenAccounts_MintsAndApprovesOperator(t *testing.T) {
	p, err := config.Parse([]byte(productYAML))
	require.NoError(t, err)

	ctx := context.Background()
	m := token.NewMemory("treasury")
	require.NoError(t, p.OpenAccounts(ctx, m))

	bal, err := m.BalanceOf(ctx, "investor")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), bal)

	allowance, err := m.Allowance(ctx, "investor", "treasury")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), allowance)

	allowance, err = m.Allowance(ctx, "riskpool-wallet", "treasury")
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), allowance)

	bal, err = m.BalanceOf(ctx, "riskpool-wallet")
	require.NoError(t, err)
	assert.Zero(t, bal)
}
