package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/registrysync/internal/reconcile"
	"github.com/go-chi/chi/v5"
)

// maxClaimBody bounds the claim request body.
const maxClaimBody = 1 << 20

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Members())
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	m, err := s.service.Member(chi.URLParam(r, "identity"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleMemberAccounts lists the accounts owned by one member.
func (s *Server) handleMemberAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.service.MemberAccounts(chi.URLParam(r, "identity"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Accounts())
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.service.Account(chi.URLParam(r, "code"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleClaim registers a portal login against an identity. A claim that
// created a new member answers 201.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxClaimBody)

	var req reconcile.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: decode body: %v", reconcile.ErrInvalidClaim, err))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.Claim(ctx, req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
