package access

import (
	"ParaLedger/internal/apperr"
	"ParaLedger/internal/token"
	"context"
	"net/http"

	"github.com/google/uuid"
)

// CallerHeader carries the calling account on every request.
const CallerHeader = "X-Account"

type callerKey struct{}

// WithCaller stores the calling account on ctx.
func WithCaller(ctx context.Context, caller token.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// Caller returns the account stored by WithCaller.
func Caller(ctx context.Context) (token.Address, bool) {
	caller, ok := ctx.Value(callerKey{}).(token.Address)
	return caller, ok && caller != ""
}

// OwnerResolver looks up who owns a bundle or an application/policy.
type OwnerResolver interface {
	BundleOwner(bundleID int64) (token.Address, error)
	PolicyHolder(policyID uuid.UUID) (token.Address, error)
}

// Guard performs the capability checks that the engine itself does not.
type Guard struct {
	checker Checker
	owners  OwnerResolver
}

func NewGuard(checker Checker, owners OwnerResolver) *Guard {
	return &Guard{checker: checker, owners: owners}
}

// Identify copies the caller header into the request context.
func (g *Guard) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if caller := r.Header.Get(CallerHeader); caller != "" {
			r = r.WithContext(WithCaller(r.Context(), token.Address(caller)))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCaller fails when the request carries no identity.
func (g *Guard) RequireCaller(ctx context.Context) (token.Address, error) {
	caller, ok := Caller(ctx)
	if !ok {
		return "", apperr.New(apperr.CallerUnknown, "missing %s header", CallerHeader)
	}
	return caller, nil
}

func (g *Guard) RequireRole(ctx context.Context, role Role) (token.Address, error) {
	caller, err := g.RequireCaller(ctx)
	if err != nil {
		return "", err
	}
	ok, err := g.checker.HasRole(ctx, role, caller)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.New(apperr.MissingRole, "%s lacks role %s", caller, role)
	}
	return caller, nil
}

// RequireBundleOwner passes only for the owner of bundleID.
func (g *Guard) RequireBundleOwner(ctx context.Context, bundleID int64) (token.Address, error) {
	caller, err := g.RequireCaller(ctx)
	if err != nil {
		return "", err
	}
	owner, err := g.owners.BundleOwner(bundleID)
	if err != nil {
		return "", err
	}
	if owner != caller {
		return "", apperr.New(apperr.NotBundleOwner, "%s does not own bundle %d", caller, bundleID)
	}
	return caller, nil
}

// RequirePolicyHolder passes only for the owner of the application/policy.
func (g *Guard) RequirePolicyHolder(ctx context.Context, policyID uuid.UUID) (token.Address, error) {
	caller, err := g.RequireCaller(ctx)
	if err != nil {
		return "", err
	}
	holder, err := g.owners.PolicyHolder(policyID)
	if err != nil {
		return "", err
	}
	if holder != caller {
		return "", apperr.New(apperr.NotPolicyHolder, "%s is not the holder of %s", caller, policyID)
	}
	return caller, nil
}
