// Package reconcile merges a freshly built import batch into live registry
// state. Every function here mutates the *registry.State it is given and is
// meant to run inside registry.Registry.Update, which makes the change
// all-or-nothing.
package reconcile

import (
	"fmt"

	"github.com/JonMunkholm/registrysync/internal/registry"
)

// Mode selects how an import is reconciled.
type Mode string

const (
	// ModeReplace swaps both collections for the imported ones.
	ModeReplace Mode = "replace"
	// ModeMerge overwrites matching keys and keeps everything else.
	ModeMerge Mode = "merge"
)

// ParseMode validates a mode name. Empty selects ModeMerge.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeMerge, nil
	case ModeReplace, ModeMerge:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Apply reconciles incoming into s using mode.
func Apply(s *registry.State, incoming registry.State, mode Mode) (Summary, error) {
	switch mode {
	case ModeReplace:
		return Replace(s, incoming), nil
	case ModeMerge:
		return Merge(s, incoming), nil
	default:
		return Summary{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// Replace makes the incoming collections the whole registry. Applying the same
// batch twice leaves the same state as applying it once.
func Replace(s *registry.State, incoming registry.State) Summary {
	sum := Diff(*s, incoming, ModeReplace)

	in := incoming.Clone()
	s.Members = in.Members
	s.Accounts = in.Accounts
	if s.Members == nil {
		s.Members = []registry.Member{}
	}
	if s.Accounts == nil {
		s.Accounts = []registry.PropertyAccount{}
	}
	return sum
}

// Merge overwrites each existing member or account whose key also appears in
// incoming, keeping its position, and appends keys seen for the first time.
// Entities absent from incoming are left as they are. The overwrite is of the
// whole entity, including an account's transaction history.
func Merge(s *registry.State, incoming registry.State) Summary {
	sum := Diff(*s, incoming, ModeMerge)
	in := incoming.Clone()

	memberAt := make(map[string]int, len(s.Members))
	for i, m := range s.Members {
		if key := registry.NormalizeIdentity(m.Identity); key != "" {
			memberAt[key] = i
		}
	}
	for _, m := range in.Members {
		key := registry.NormalizeIdentity(m.Identity)
		if i, ok := memberAt[key]; ok && key != "" {
			s.Members[i] = m
			continue
		}
		memberAt[key] = len(s.Members)
		s.Members = append(s.Members, m)
	}

	accountAt := make(map[string]int, len(s.Accounts))
	for i, a := range s.Accounts {
		accountAt[registry.NormalizeCode(a.Code)] = i
	}
	for _, a := range in.Accounts {
		key := registry.NormalizeCode(a.Code)
		if i, ok := accountAt[key]; ok {
			s.Accounts[i] = a
			continue
		}
		accountAt[key] = len(s.Accounts)
		s.Accounts = append(s.Accounts, a)
	}

	return sum
}
