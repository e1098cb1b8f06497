package registry

import (
	"sort"
	"sync"
)

// Registry is the single owner of the live State. Reads get copies; writes go
// through Update, which serializes mutators and applies each one atomically.
type Registry struct {
	mu    sync.RWMutex
	state State
	ready bool
}

// New returns an empty, not yet hydrated registry.
func New() *Registry {
	return &Registry{}
}

// Update runs fn against a private copy of the state and swaps it in only if
// fn returns nil. Concurrent callers are serialized.
func (r *Registry) Update(fn func(*State) error) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.state.Clone()
	if err := fn(&next); err != nil {
		return State{}, err
	}
	r.state = next
	return next.Clone(), nil
}

// Load replaces the whole state. Used by hydration and reset.
func (r *Registry) Load(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s.Clone()
	r.ready = true
}

// Snapshot returns a deep copy of the current state.
func (r *Registry) Snapshot() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone()
}

// Ready reports whether the registry has been hydrated.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// Member looks up a member by identity in any raw format.
func (r *Registry) Member(identity string) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.state.MemberIndex(identity)
	if i < 0 {
		return Member{}, false
	}
	return r.state.Members[i], true
}

// Account looks up an account by code.
func (r *Registry) Account(code string) (PropertyAccount, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.state.AccountIndex(code)
	if i < 0 {
		return PropertyAccount{}, false
	}
	a := r.state.Accounts[i]
	a.Transactions = append([]Transaction(nil), a.Transactions...)
	return a, true
}

// Members returns all members sorted by name, then identity.
func (r *Registry) Members() []Member {
	r.mu.RLock()
	out := make([]Member, len(r.state.Members))
	copy(out, r.state.Members)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Identity < out[j].Identity
	})
	return out
}

// Accounts returns all accounts sorted by code.
func (r *Registry) Accounts() []PropertyAccount {
	s := r.Snapshot()
	sort.SliceStable(s.Accounts, func(i, j int) bool {
		return s.Accounts[i].Code < s.Accounts[j].Code
	})
	return s.Accounts
}

// Counts returns the number of members and accounts.
func (r *Registry) Counts() (members, accounts int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.state.Members), len(r.state.Accounts)
}
