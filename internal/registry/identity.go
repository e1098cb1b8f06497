package registry

import (
	"strings"

	"github.com/google/uuid"
)

// CheckChar is the only non-digit character an identity number may keep, and
// only in final position.
const CheckChar = 'X'

// memberNamespace scopes the UUIDv5 member identifiers.
var memberNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("registrysync/member"))

// NormalizeIdentity reduces a raw identity number to its canonical merge key:
// decimal digits in order, followed by the check character if the raw value
// ends with one. Dashes, spaces, dots, letters and any other symbols are
// dropped, so "12345-6789012-3" and "1234567890123" compare equal.
func NormalizeIdentity(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	if last := lastAlnum(raw); last == CheckChar || last == 'x' {
		b.WriteRune(CheckChar)
	}
	return b.String()
}

// lastAlnum returns the final letter or digit of s, or 0.
func lastAlnum(s string) rune {
	rs := []rune(s)
	for i := len(rs) - 1; i >= 0; i-- {
		r := rs[i]
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return r
		}
	}
	return 0
}

// NormalizeCode canonicalizes an account code. Codes are verbatim keys, so
// only surrounding whitespace is removed.
func NormalizeCode(code string) string {
	return strings.TrimSpace(code)
}

// MemberID derives the deterministic synthetic identifier for a normalized
// identity. The same identity always yields the same ID across imports.
func MemberID(identity string) string {
	return uuid.NewSHA1(memberNamespace, []byte(NormalizeIdentity(identity))).String()
}
