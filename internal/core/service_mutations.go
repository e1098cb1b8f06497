package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/registrysync/internal/logging"
	"github.com/JonMunkholm/registrysync/internal/persist"
	"github.com/JonMunkholm/registrysync/internal/reconcile"
	"github.com/JonMunkholm/registrysync/internal/registry"
)

// Claim registers a portal login for the member with req.Identity, creating
// the member when the identity is unknown. The returned member never carries
// the credential hash.
//
// As with imports, a failed local write still returns the result alongside
// an error wrapping persist.ErrLocalWrite.
func (s *Service) Claim(ctx context.Context, req reconcile.ClaimRequest) (reconcile.ClaimResult, error) {
	var res reconcile.ClaimResult
	_, err := s.coord.Apply(ctx, "claim", func(st *registry.State) error {
		var claimErr error
		res, claimErr = reconcile.Claim(st, req)
		return claimErr
	})
	if err != nil && !persist.IsLocalWriteError(err) {
		return reconcile.ClaimResult{}, err
	}

	res.Member = res.Member.Redacted()
	logging.FromContext(ctx).Info("member claimed",
		"identity", res.Member.Identity,
		"created", res.Created,
	)
	return res, err
}

// ResetResult describes where a reset reloaded the registry from.
type ResetResult struct {
	Source   string `json:"source"`
	Members  int    `json:"members"`
	Accounts int    `json:"accounts"`
}

// Reset purges the local store and reloads from the mirror, or from seed
// data when no mirror has any.
func (s *Service) Reset(ctx context.Context) (ResetResult, error) {
	source, err := s.coord.Reset(ctx)
	members, accounts := s.reg.Counts()
	res := ResetResult{Source: source, Members: members, Accounts: accounts}
	if err != nil {
		return res, fmt.Errorf("reset registry: %w", err)
	}

	logging.FromContext(ctx).Warn("registry reset",
		"source", source,
		"members", members,
		"accounts", accounts,
	)
	return res, nil
}

// Resync pushes the registry to the mirror and waits for the outcome. A clean
// mirror is only rewritten when force is set.
func (s *Service) Resync(ctx context.Context, force bool) (persist.MirrorStatus, error) {
	err := s.coord.Resync(ctx, force)
	status := s.coord.Status()
	if err != nil {
		if errors.Is(err, persist.ErrNoMirror) {
			return status, err
		}
		return status, fmt.Errorf("resync mirror: %w", err)
	}
	return status, nil
}

// SyncStatus returns the mirror status.
func (s *Service) SyncStatus() persist.MirrorStatus {
	return s.coord.Status()
}
