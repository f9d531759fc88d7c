package cli_test

import (
	"ParaLedger/internal/cli"
	"ParaLedger/internal/risk"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// ============================================================================
// Command tree
// ============================================================================

func TestCommandPresence(t *testing.T) {
	root := cli.NewRootCommand()
	for _, path := range [][]string{
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "status"},
		{"payout", "calc"},
		{"fee", "quote"},
		{"risk", "id"},
	} {
		sub, _, err := root.Find(path)
		require.NoError(t, err, "command %v", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}
}

func TestMigrateFlags(t *testing.T) {
	root := cli.NewRootCommand()
	migrate, _, err := root.Find([]string{"migrate"})
	require.NoError(t, err)

	assert.NotNil(t, migrate.PersistentFlags().Lookup("dsn"))
	dir := migrate.PersistentFlags().Lookup("dir")
	require.NotNil(t, dir)
	if os.Getenv("PARA_MIGRATIONS_DIR") == "" {
		assert.Equal(t, "migrations", dir.DefValue)
	}
}

// ============================================================================
// payout calc
// ============================================================================

func TestPayoutCalc(t *testing.T) {
	tests := []struct {
		name    string
		aaay    string
		wantPct string
		wantAmt string
	}{
		{"at or below exit pays tsi", "1", "0.9", "900"},
		{"at or above trigger pays nothing", "8", "0", "0"},
		{"interpolated", "4.25", "0.45", "450"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := execute(t, "payout", "calc",
				"--trigger", "0.75", "--exit", "0.1", "--tsi", "0.9", "--aph", "10",
				"--aaay", tc.aaay, "--sum-insured", "1000")
			require.NoError(t, err)
			assert.Contains(t, out, "payout percentage: "+tc.wantPct+"\n")
			assert.Contains(t, out, "payout amount:     "+tc.wantAmt+"\n")
		})
	}
}

func TestPayoutCalc_GroupsThousands(t *testing.T) {
	out, err := execute(t, "payout", "calc",
		"--trigger", "0.75", "--exit", "0.1", "--tsi", "1", "--aph", "10",
		"--aaay", "0", "--sum-insured", "2500000")
	require.NoError(t, err)
	assert.Contains(t, out, "payout amount:     2,500,000\n")
}

func TestPayoutCalc_Rejects(t *testing.T) {
	_, err := execute(t, "payout", "calc",
		"--trigger", "0.1", "--exit", "0.75", "--tsi", "0.9", "--aph", "10", "--aaay", "5")
	assert.Error(t, err)

	_, err = execute(t, "payout", "calc",
		"--trigger", "0.75", "--exit", "0.1", "--tsi", "0.9", "--aph", "ten", "--aaay", "5")
	assert.Error(t, err)

	_, err = execute(t, "payout", "calc", "--trigger", "0.75")
	assert.Error(t, err, "required flags missing")
}

// ============================================================================
// fee quote
// ============================================================================

const feeProduct = `
product: {id: ayii}
riskpool: {id: ayii-pool}
treasury:
  operator: treasury
  fees:
    ayii: {fixed: 0, fraction: "0.1"}
    ayii-pool: {fixed: 5, fraction: "0.05"}
`

func writeProduct(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "product.yaml")
	require.NoError(t, os.WriteFile(path, []byte(feeProduct), 0o644))
	return path
}

func TestFeeQuote(t *testing.T) {
	path := writeProduct(t)

	out, err := execute(t, "fee", "quote", "--product", path, "--component", "ayii", "--amount", "1000")
	require.NoError(t, err)
	assert.Contains(t, out, "gross:     1,000\n")
	assert.Contains(t, out, "fee:       100\n")
	assert.Contains(t, out, "net:       900\n")

	out, err = execute(t, "fee", "quote", "--product", path, "--component", "ayii-pool", "--amount", "20000")
	require.NoError(t, err)
	assert.Contains(t, out, "fee:       1,005\n")
	assert.Contains(t, out, "net:       18,995\n")
}

func TestFeeQuote_Rejects(t *testing.T) {
	path := writeProduct(t)

	_, err := execute(t, "fee", "quote", "--product", path, "--component", "unknown", "--amount", "1000")
	assert.Error(t, err)

	_, err = execute(t, "fee", "quote", "--product", path, "--component", "ayii", "--amount", "0")
	assert.Error(t, err)

	_, err = execute(t, "fee", "quote", "--product", filepath.Join(t.TempDir(), "missing.yaml"), "--component", "ayii", "--amount", "10")
	assert.Error(t, err)
}

// ============================================================================
// risk id
// ============================================================================

func TestRiskID(t *testing.T) {
	out, err := execute(t, "risk", "id", "--project", "p1", "--uai", "uai-7", "--crop", "maize")
	require.NoError(t, err)
	assert.Equal(t, risk.ID("p1", "uai-7", "maize").String()+"\n", out)
}
