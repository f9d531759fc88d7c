package token

import (
	"context"
	"fmt"
	"sync"
)

type allowanceKey struct {
	owner   Address
	spender Address
}

// Memory is an in-process Account used by tests and the dev profile.
// Every transfer is executed by a single operator address, which is the
// spender whose allowance gets consumed.
type Memory struct {
	mu         sync.Mutex
	operator   Address
	balances   map[Address]int64
	allowances map[allowanceKey]int64
}

var _ BatchTransferer = (*Memory)(nil)

func NewMemory(operator Address) *Memory {
	return &Memory{
		operator:   operator,
		balances:   make(map[Address]int64),
		allowances: make(map[allowanceKey]int64),
	}
}

// Operator returns the spender address that must be approved.
func (m *Memory) Operator() Address {
	return m.operator
}

// Mint credits amount to account out of thin air.
func (m *Memory) Mint(account Address, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] += amount
}

func (m *Memory) Transfer(ctx context.Context, from, to Address, amount int64) error {
	return m.TransferAll(ctx, []Transfer{{From: from, To: to, Amount: amount}})
}

// TransferAll validates every leg against running balances and allowances
// before touching state.
func (m *Memory) TransferAll(_ context.Context, legs []Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	balances := make(map[Address]int64)
	allowances := make(map[allowanceKey]int64)

	for _, leg := range legs {
		if leg.Amount <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidAmount, leg.Amount)
		}

		if _, ok := balances[leg.From]; !ok {
			balances[leg.From] = m.balances[leg.From]
		}
		if _, ok := balances[leg.To]; !ok {
			balances[leg.To] = m.balances[leg.To]
		}
		if balances[leg.From] < leg.Amount {
			return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientBalance, leg.From, balances[leg.From], leg.Amount)
		}

		if leg.From != m.operator {
			key := allowanceKey{owner: leg.From, spender: m.operator}
			if _, ok := allowances[key]; !ok {
				allowances[key] = m.allowances[key]
			}
			if allowances[key] < leg.Amount {
				return fmt.Errorf("%w: %s approved %d, needs %d", ErrInsufficientAllowance, leg.From, allowances[key], leg.Amount)
			}
			allowances[key] -= leg.Amount
		}

		balances[leg.From] -= leg.Amount
		balances[leg.To] += leg.Amount
	}

	for addr, bal := range balances {
		m.balances[addr] = bal
	}
	for key, allowance := range allowances {
		m.allowances[key] = allowance
	}

	return nil
}

func (m *Memory) Approve(_ context.Context, owner, spender Address, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[allowanceKey{owner: owner, spender: spender}] = amount
	return nil
}

func (m *Memory) Allowance(_ context.Context, owner, spender Address) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowances[allowanceKey{owner: owner, spender: spender}], nil
}

func (m *Memory) BalanceOf(_ context.Context, account Address) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account], nil
}
