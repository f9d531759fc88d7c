package pool

import (
	"ParaLedger/internal/apperr"
	"ParaLedger/internal/token"
	"time"
)

// BundleState is the lifecycle state of a bundle.
type BundleState uint8

const (
	BundleActive BundleState = iota
	BundleLocked
	BundleClosed
	BundleBurned
)

func (s BundleState) String() string {
	switch s {
	case BundleActive:
		return "Active"
	case BundleLocked:
		return "Locked"
	case BundleClosed:
		return "Closed"
	case BundleBurned:
		return "Burned"
	default:
		return "Unknown"
	}
}

// bundleTransitions lists every legal state change. Anything else is
// rejected with BUNDLE_STATE_INVALID.
var bundleTransitions = map[BundleState][]BundleState{
	BundleActive: {BundleLocked, BundleClosed},
	BundleLocked: {BundleActive, BundleClosed},
	BundleClosed: {BundleBurned},
}

func (s BundleState) canTransitionTo(next BundleState) bool {
	for _, allowed := range bundleTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Bundle is a discrete pool of capital from one investor.
type Bundle struct {
	ID            int64         `json:"id"`
	RiskpoolID    string        `json:"riskpoolId"`
	Owner         token.Address `json:"owner"`
	State         BundleState   `json:"state"`
	Filter        []byte        `json:"filter,omitempty"`
	Capital       int64         `json:"capital"`
	LockedCapital int64         `json:"lockedCapital"`
	Balance       int64         `json:"balance"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Available is the capital not yet locked by policies.
func (b *Bundle) Available() int64 {
	return b.Capital - b.LockedCapital
}

// requireOpen rejects capital movements on Closed and Burned bundles.
func (b *Bundle) requireOpen() error {
	if b.State != BundleActive && b.State != BundleLocked {
		return apperr.New(apperr.BundleStateInvalid, "bundle %d is %s", b.ID, b.State)
	}
	return nil
}

func (b *Bundle) transition(next BundleState, now time.Time) error {
	if !b.State.canTransitionTo(next) {
		return apperr.New(apperr.BundleStateInvalid, "bundle %d: %s -> %s not allowed", b.ID, b.State, next)
	}
	b.State = next
	b.UpdatedAt = now
	return nil
}

// Allocation records where a policy's collateral is locked.
type Allocation struct {
	BundleID   int64 `json:"bundleId"`
	Collateral int64 `json:"collateral"`
}

// Matcher decides whether a bundle's filter accepts an application.
type Matcher interface {
	Matches(filter, applicationData []byte) bool
}

// MatchFunc adapts a function to Matcher.
type MatchFunc func(filter, applicationData []byte) bool

func (f MatchFunc) Matches(filter, applicationData []byte) bool { return f(filter, applicationData) }

// AcceptAll is the default matcher.
var AcceptAll = MatchFunc(func([]byte, []byte) bool { return true })
