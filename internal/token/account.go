package token

import (
	"context"
	"errors"
)

// Address identifies a wallet on the fungible account.
type Address string

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("invalid amount")
)

// Account is the fungible value-transfer collaborator. Transfer always moves
// the full amount or fails; partial transfers are not an outcome.
type Account interface {
	// Transfer moves amount from -> to on behalf of the operator the account
	// was configured with, consuming allowance(from, operator).
	Transfer(ctx context.Context, from, to Address, amount int64) error
	Approve(ctx context.Context, owner, spender Address, amount int64) error
	Allowance(ctx context.Context, owner, spender Address) (int64, error)
	BalanceOf(ctx context.Context, account Address) (int64, error)
}

// Transfer is one leg of a multi-leg movement.
type Transfer struct {
	From   Address
	To     Address
	Amount int64
}

// BatchTransferer is implemented by accounts that can apply several legs
// atomically.
type BatchTransferer interface {
	TransferAll(ctx context.Context, legs []Transfer) error
}
