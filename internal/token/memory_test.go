package token_test

import (
	"ParaLedger/internal/token"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const operator token.Address = "treasury"

func TestMemory_TransferConsumesAllowance(t *testing.T) {
	ctx := context.Background()
	m := token.NewMemory(operator)
	m.Mint("alice", 1000)
	require.NoError(t, m.Approve(ctx, "alice", operator, 600))

	require.NoError(t, m.Transfer(ctx, "alice", "bob", 400))

	bal, _ := m.BalanceOf(ctx, "alice")
	assert.Equal(t, int64(600), bal)
	bal, _ = m.BalanceOf(ctx, "bob")
	assert.Equal(t, int64(400), bal)
	allowance, _ := m.Allowance(ctx, "alice", operator)
	assert.Equal(t, int64(200), allowance)

	err := m.Transfer(ctx, "alice", "bob", 300)
	assert.True(t, errors.Is(err, token.ErrInsufficientAllowance))
}

func TestMemory_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	m := token.NewMemory(operator)
	m.Mint("alice", 100)
	require.NoError(t, m.Approve(ctx, "alice", operator, 1000))

	err := m.Transfer(ctx, "alice", "bob", 101)
	assert.True(t, errors.Is(err, token.ErrInsufficientBalance))

	bal, _ := m.BalanceOf(ctx, "alice")
	assert.Equal(t, int64(100), bal, "failed transfer must not move funds")
}

func TestMemory_TransferAllIsAtomic(t *testing.T) {
	ctx := context.Background()
	m := token.NewMemory(operator)
	m.Mint("alice", 100)
	require.NoError(t, m.Approve(ctx, "alice", operator, 1000))

	err := m.TransferAll(ctx, []token.Transfer{
		{From: "alice", To: "fees", Amount: 60},
		{From: "alice", To: "pool", Amount: 60},
	})
	require.Error(t, err)

	for _, addr := range []token.Address{"alice", "fees", "pool"} {
		bal, _ := m.BalanceOf(ctx, addr)
		want := int64(0)
		if addr == "alice" {
			want = 100
		}
		assert.Equal(t, want, bal, addr)
	}
	allowance, _ := m.Allowance(ctx, "alice", operator)
	assert.Equal(t, int64(1000), allowance)
}

func TestMemory_OperatorNeedsNoAllowance(t *testing.T) {
	ctx := context.Background()
	m := token.NewMemory(operator)
	m.Mint(operator, 50)

	require.NoError(t, m.Transfer(ctx, operator, "bob", 50))
	bal, _ := m.BalanceOf(ctx, "bob")
	assert.Equal(t, int64(50), bal)
}

func TestMemory_RejectsNonPositiveAmount(t *testing.T) {
	m := token.NewMemory(operator)
	err := m.Transfer(context.Background(), "a", "b", 0)
	assert.True(t, errors.Is(err, token.ErrInvalidAmount))
}
