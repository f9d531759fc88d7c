package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeWallet AccountScope = iota
	AccountScopeBundle
	AccountScopeInstance
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	SubTypeWalletFunds AccountSubType = iota

	// Bundle sub-types
	SubTypeBundleBalance

	// Instance sub-types
	SubTypeInstanceFees
)

// AccountKey is the in-memory key for balance tracking.
type AccountKey struct {
	Scope    AccountScope
	EntityID string // wallet address or bundle id
	SubType  AccountSubType
}

// NewWalletAccountKey creates a key for a participant wallet (payer or recipient).
func NewWalletAccountKey(address string) AccountKey {
	return AccountKey{
		Scope:    AccountScopeWallet,
		EntityID: address,
		SubType:  SubTypeWalletFunds,
	}
}

// NewBundleAccountKey creates the key holding a bundle's share of the riskpool wallet.
func NewBundleAccountKey(bundleID int64) AccountKey {
	return AccountKey{
		Scope:    AccountScopeBundle,
		EntityID: strconv.FormatInt(bundleID, 10),
		SubType:  SubTypeBundleBalance,
	}
}

// NewFeeAccountKey creates the instance fee income account.
func NewFeeAccountKey() AccountKey {
	return AccountKey{
		Scope:   AccountScopeInstance,
		SubType: SubTypeInstanceFees,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeWallet:
		return fmt.Sprintf("wallet:%s", k.EntityID)
	case AccountScopeBundle:
		return fmt.Sprintf("bundle:%s:%s", k.EntityID, k.subTypeName())
	case AccountScopeInstance:
		return fmt.Sprintf("instance:%s", k.subTypeName())
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeWalletFunds:
		return "funds"
	case SubTypeBundleBalance:
		return "balance"
	case SubTypeInstanceFees:
		return "fees"
	default:
		return "unknown"
	}
}

// ParseAccountPath is the inverse of AccountPath.
func ParseAccountPath(path string) (AccountKey, error) {
	scope, rest, ok := strings.Cut(path, ":")
	if !ok {
		return AccountKey{}, fmt.Errorf("malformed account path %q", path)
	}
	switch scope {
	case "wallet":
		if rest == "" {
			return AccountKey{}, fmt.Errorf("empty wallet address in %q", path)
		}
		return NewWalletAccountKey(rest), nil
	case "bundle":
		id, sub, ok := strings.Cut(rest, ":")
		if !ok || sub != "balance" {
			return AccountKey{}, fmt.Errorf("malformed bundle account %q", path)
		}
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return AccountKey{}, fmt.Errorf("bundle id in %q: %w", path, err)
		}
		return NewBundleAccountKey(n), nil
	case "instance":
		if rest != "fees" {
			return AccountKey{}, fmt.Errorf("unknown instance account %q", path)
		}
		return NewFeeAccountKey(), nil
	}
	return AccountKey{}, fmt.Errorf("unknown account scope in %q", path)
}
