package access

import (
	"ParaLedger/internal/token"
	"context"
	"fmt"
	"sync"
)

// Role is a capability an account may hold on the instance.
type Role uint8

const (
	RoleInstanceOperator Role = iota + 1
	RoleProductOwner
	RoleInsurer
	RoleInvestor
	RoleOracleProvider
)

func (r Role) String() string {
	switch r {
	case RoleInstanceOperator:
		return "instance_operator"
	case RoleProductOwner:
		return "product_owner"
	case RoleInsurer:
		return "insurer"
	case RoleInvestor:
		return "investor"
	case RoleOracleProvider:
		return "oracle_provider"
	default:
		return "unknown"
	}
}

// ParseRole is the inverse of Role.String.
func ParseRole(s string) (Role, error) {
	for r := RoleInstanceOperator; r <= RoleOracleProvider; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// Checker answers role queries. Role storage lives outside the engine.
type Checker interface {
	HasRole(ctx context.Context, role Role, account token.Address) (bool, error)
}

// Store is an in-memory Checker with grant/revoke.
type Store struct {
	mu     sync.RWMutex
	grants map[Role]map[token.Address]struct{}
}

var _ Checker = (*Store)(nil)

func NewStore() *Store {
	return &Store{grants: make(map[Role]map[token.Address]struct{})}
}

func (s *Store) Grant(role Role, account token.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	holders, ok := s.grants[role]
	if !ok {
		holders = make(map[token.Address]struct{})
		s.grants[role] = holders
	}
	holders[account] = struct{}{}
}

func (s *Store) Revoke(role Role, account token.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants[role], account)
}

func (s *Store) HasRole(_ context.Context, role Role, account token.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.grants[role][account]
	return ok, nil
}
