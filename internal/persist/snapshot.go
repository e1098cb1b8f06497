package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/JonMunkholm/registrysync/internal/metrics"
	"github.com/JonMunkholm/registrysync/internal/registry"
	"golang.org/x/sync/errgroup"
)

// readLocal loads both collection snapshots. found is false only when neither
// exists; a single missing collection reads as empty.
func (c *Coordinator) readLocal(ctx context.Context) (registry.State, bool, error) {
	var state registry.State

	membersRaw, haveMembers, err := c.local.Get(ctx, KeyMembers)
	if err != nil {
		return state, false, fmt.Errorf("read %s: %w", KeyMembers, err)
	}
	accountsRaw, haveAccounts, err := c.local.Get(ctx, KeyAccounts)
	if err != nil {
		return state, false, fmt.Errorf("read %s: %w", KeyAccounts, err)
	}
	if !haveMembers && !haveAccounts {
		return state, false, nil
	}

	if haveMembers {
		if err := json.Unmarshal(membersRaw, &state.Members); err != nil {
			return state, false, fmt.Errorf("decode %s snapshot: %w", KeyMembers, err)
		}
	}
	if haveAccounts {
		if err := json.Unmarshal(accountsRaw, &state.Accounts); err != nil {
			return state, false, fmt.Errorf("decode %s snapshot: %w", KeyAccounts, err)
		}
	}
	if state.Members == nil {
		state.Members = []registry.Member{}
	}
	if state.Accounts == nil {
		state.Accounts = []registry.PropertyAccount{}
	}
	return state, true, nil
}

// writeLocal stores both collection snapshots, atomically when the store
// supports it.
func (c *Coordinator) writeLocal(ctx context.Context, state registry.State) error {
	entries, err := encodeSnapshots(state)
	if err != nil {
		c.metrics.IncrementLocalWrites(metrics.OutcomeFailure)
		return err
	}

	if bp, ok := c.local.(BatchPutter); ok {
		err = bp.PutAll(ctx, entries)
	} else {
		for _, key := range []string{KeyMembers, KeyAccounts} {
			if err = c.local.Put(ctx, key, entries[key]); err != nil {
				err = fmt.Errorf("put %s: %w", key, err)
				break
			}
		}
	}

	if err != nil {
		c.metrics.IncrementLocalWrites(metrics.OutcomeFailure)
		return err
	}
	c.metrics.IncrementLocalWrites(metrics.OutcomeSuccess)
	return nil
}

func encodeSnapshots(state registry.State) (map[string][]byte, error) {
	members := state.Members
	if members == nil {
		members = []registry.Member{}
	}
	accounts := state.Accounts
	if accounts == nil {
		accounts = []registry.PropertyAccount{}
	}

	m, err := json.Marshal(members)
	if err != nil {
		return nil, fmt.Errorf("encode %s snapshot: %w", KeyMembers, err)
	}
	a, err := json.Marshal(accounts)
	if err != nil {
		return nil, fmt.Errorf("encode %s snapshot: %w", KeyAccounts, err)
	}
	return map[string][]byte{KeyMembers: m, KeyAccounts: a}, nil
}

// fetchRemote reads both collections from the mirror in parallel. ok is false
// when the mirror holds no members and no accounts.
func (c *Coordinator) fetchRemote(ctx context.Context) (registry.State, bool, error) {
	var membersRaw, accountsRaw []json.RawMessage

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := c.remote.SelectAll(gctx, KeyMembers)
		if err != nil {
			return fmt.Errorf("select %s: %w", KeyMembers, err)
		}
		membersRaw = rows
		return nil
	})
	g.Go(func() error {
		rows, err := c.remote.SelectAll(gctx, KeyAccounts)
		if err != nil {
			return fmt.Errorf("select %s: %w", KeyAccounts, err)
		}
		accountsRaw = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return registry.State{}, false, err
	}

	if len(membersRaw) == 0 && len(accountsRaw) == 0 {
		return registry.State{}, false, nil
	}

	state := registry.State{
		Members:  make([]registry.Member, 0, len(membersRaw)),
		Accounts: make([]registry.PropertyAccount, 0, len(accountsRaw)),
	}
	for _, raw := range membersRaw {
		var m registry.Member
		if err := json.Unmarshal(raw, &m); err != nil {
			return registry.State{}, false, fmt.Errorf("decode mirrored member: %w", err)
		}
		state.Members = append(state.Members, m)
	}
	for _, raw := range accountsRaw {
		var a registry.PropertyAccount
		if err := json.Unmarshal(raw, &a); err != nil {
			return registry.State{}, false, fmt.Errorf("decode mirrored account: %w", err)
		}
		state.Accounts = append(state.Accounts, a)
	}

	// Mirrors do not preserve insertion order.
	sort.SliceStable(state.Members, func(i, j int) bool {
		return state.Members[i].Identity < state.Members[j].Identity
	})
	sort.SliceStable(state.Accounts, func(i, j int) bool {
		return state.Accounts[i].Code < state.Accounts[j].Code
	})
	return state, true, nil
}

// pushState upserts both collections in parallel, then prunes stale keys when
// the mirror supports it.
func (c *Coordinator) pushState(ctx context.Context, state registry.State) error {
	memberRows, err := MemberRows(state.Members)
	if err != nil {
		return err
	}
	accountRows, err := AccountRows(state.Accounts)
	if err != nil {
		return err
	}

	collections := map[string][]Row{KeyMembers: memberRows, KeyAccounts: accountRows}

	g, gctx := errgroup.WithContext(ctx)
	for name, rows := range collections {
		g.Go(func() error {
			if err := c.remote.Upsert(gctx, name, rows); err != nil {
				return fmt.Errorf("upsert %s: %w", name, err)
			}
			if p, ok := c.remote.(Pruner); ok {
				if err := p.Prune(gctx, name, rowKeys(rows)); err != nil {
					return fmt.Errorf("prune %s: %w", name, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// MemberRows encodes members as mirror rows keyed by normalized identity.
func MemberRows(members []registry.Member) ([]Row, error) {
	rows := make([]Row, 0, len(members))
	for _, m := range members {
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encode member %s: %w", m.Identity, err)
		}
		rows = append(rows, Row{Key: registry.NormalizeIdentity(m.Identity), Data: data})
	}
	return rows, nil
}

// AccountRows encodes accounts as mirror rows keyed by account code.
func AccountRows(accounts []registry.PropertyAccount) ([]Row, error) {
	rows := make([]Row, 0, len(accounts))
	for _, a := range accounts {
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("encode account %s: %w", a.Code, err)
		}
		rows = append(rows, Row{Key: registry.NormalizeCode(a.Code), Data: data})
	}
	return rows, nil
}

func rowKeys(rows []Row) []string {
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.Key
	}
	return keys
}
