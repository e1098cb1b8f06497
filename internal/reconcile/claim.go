package reconcile

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/registrysync/internal/registry"
	"golang.org/x/crypto/bcrypt"
)

// ClaimRequest registers a portal login against an identity.
type ClaimRequest struct {
	Identity string `json:"identity" validate:"required,min=5,max=32"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Name     string `json:"name" validate:"omitempty,max=120"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
}

// ClaimResult reports which member the claim landed on.
type ClaimResult struct {
	Member  registry.Member `json:"member"`
	Created bool            `json:"created"`
}

// HashCost is the bcrypt cost used for credentials.
var HashCost = bcrypt.DefaultCost

// Claim attaches a credential to the member whose normalized identity matches
// req.Identity. Only portal fields change on an existing member: the
// credential, the status, and contact details the import left empty. When no
// member matches, a new active client is appended.
func Claim(s *registry.State, req ClaimRequest) (ClaimResult, error) {
	identity := registry.NormalizeIdentity(req.Identity)
	if identity == "" {
		return ClaimResult{}, fmt.Errorf("%w: identity has no digits", ErrInvalidClaim)
	}
	if req.Password == "" {
		return ClaimResult{}, fmt.Errorf("%w: password required", ErrInvalidClaim)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), HashCost)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("hash credential: %w", err)
	}

	if i := s.MemberIndex(identity); i >= 0 {
		m := &s.Members[i]
		switch {
		case m.Status == registry.StatusDisabled:
			return ClaimResult{}, ErrMemberDisabled
		case m.Claimed():
			return ClaimResult{}, ErrAlreadyClaimed
		}

		m.Credential = string(hash)
		m.Status = registry.StatusActive
		if m.Email == "" {
			m.Email = strings.TrimSpace(req.Email)
		}
		if phone := strings.TrimSpace(req.Phone); phone != "" && (m.Phone == "" || m.Phone == registry.PlaceholderPhone) {
			m.Phone = phone
		}
		return ClaimResult{Member: *m}, nil
	}

	m := registry.Member{
		ID:              registry.MemberID(identity),
		Identity:        identity,
		DisplayIdentity: strings.TrimSpace(req.Identity),
		Name:            orDefault(strings.TrimSpace(req.Name), registry.PlaceholderName),
		Phone:           orDefault(strings.TrimSpace(req.Phone), registry.PlaceholderPhone),
		Email:           strings.TrimSpace(req.Email),
		Role:            registry.RoleClient,
		Status:          registry.StatusActive,
		Credential:      string(hash),
	}
	s.Members = append(s.Members, m)
	return ClaimResult{Member: m, Created: true}, nil
}

// VerifyCredential reports whether password matches the member's credential.
func VerifyCredential(m registry.Member, password string) bool {
	if !m.Claimed() {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(m.Credential), []byte(password)) == nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
