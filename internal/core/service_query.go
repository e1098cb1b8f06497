package core

import (
	"fmt"
	"sort"

	"github.com/JonMunkholm/registrysync/internal/registry"
)

// Members returns every member, credentials removed, sorted by name.
func (s *Service) Members() []registry.Member {
	members := s.reg.Members()
	for i := range members {
		members[i] = members[i].Redacted()
	}
	return members
}

// Member looks up one member by identity in any formatting.
func (s *Service) Member(identity string) (registry.Member, error) {
	m, ok := s.reg.Member(identity)
	if !ok {
		return registry.Member{}, fmt.Errorf("member %q: %w", identity, ErrMemberNotFound)
	}
	return m.Redacted(), nil
}

// Accounts returns every account sorted by code.
func (s *Service) Accounts() []registry.PropertyAccount {
	return s.reg.Accounts()
}

func (s *Service) Account(code string) (registry.PropertyAccount, error) {
	a, ok := s.reg.Account(code)
	if !ok {
		return registry.PropertyAccount{}, fmt.Errorf("account %q: %w", code, ErrAccountNotFound)
	}
	return a, nil
}

// MemberAccounts returns the accounts owned by the member, sorted by code.
func (s *Service) MemberAccounts(identity string) ([]registry.PropertyAccount, error) {
	snap := s.reg.Snapshot()
	if snap.MemberIndex(identity) < 0 {
		return nil, fmt.Errorf("member %q: %w", identity, ErrMemberNotFound)
	}

	accounts := snap.AccountsOwnedBy(identity)
	if accounts == nil {
		accounts = []registry.PropertyAccount{}
	}
	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].Code < accounts[j].Code
	})
	return accounts, nil
}
