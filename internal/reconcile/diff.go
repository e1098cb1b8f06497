package reconcile

import (
	"github.com/JonMunkholm/registrysync/internal/registry"
)

// Counts tallies one collection's outcome.
type Counts struct {
	New       int `json:"new"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
}

// Summary describes what reconciling a batch changes.
type Summary struct {
	Mode     Mode   `json:"mode"`
	Members  Counts `json:"members"`
	Accounts Counts `json:"accounts"`
}

// Changed reports whether applying the batch alters anything.
func (s Summary) Changed() bool {
	return s.Members.New+s.Members.Updated+s.Members.Removed+
		s.Accounts.New+s.Accounts.Updated+s.Accounts.Removed > 0
}

// Diff compares incoming with current without modifying either. Removed is
// only non-zero in ModeReplace, where entities absent from incoming are
// dropped.
func Diff(current, incoming registry.State, mode Mode) Summary {
	sum := Summary{Mode: mode}

	members := make(map[string]registry.Member, len(current.Members))
	for _, m := range current.Members {
		members[registry.NormalizeIdentity(m.Identity)] = m
	}
	seenMembers := make(map[string]bool, len(incoming.Members))
	for _, m := range incoming.Members {
		key := registry.NormalizeIdentity(m.Identity)
		seenMembers[key] = true
		old, ok := members[key]
		switch {
		case !ok:
			sum.Members.New++
		case old == m:
			sum.Members.Unchanged++
		default:
			sum.Members.Updated++
		}
	}

	accounts := make(map[string]registry.PropertyAccount, len(current.Accounts))
	for _, a := range current.Accounts {
		accounts[registry.NormalizeCode(a.Code)] = a
	}
	seenAccounts := make(map[string]bool, len(incoming.Accounts))
	for _, a := range incoming.Accounts {
		key := registry.NormalizeCode(a.Code)
		seenAccounts[key] = true
		old, ok := accounts[key]
		switch {
		case !ok:
			sum.Accounts.New++
		case AccountsEqual(old, a):
			sum.Accounts.Unchanged++
		default:
			sum.Accounts.Updated++
		}
	}

	if mode == ModeReplace {
		for key := range members {
			if !seenMembers[key] {
				sum.Members.Removed++
			}
		}
		for key := range accounts {
			if !seenAccounts[key] {
				sum.Accounts.Removed++
			}
		}
	}
	return sum
}

// AccountsEqual compares two accounts by value. Amounts compare numerically,
// so 1500 equals 1500.00.
func AccountsEqual(a, b registry.PropertyAccount) bool {
	if a.Code != b.Code ||
		a.Description != b.Description ||
		a.Address != b.Address ||
		a.Plot != b.Plot ||
		a.Block != b.Block ||
		a.Park != b.Park ||
		a.Corner != b.Corner ||
		a.Boulevard != b.Boulevard ||
		!a.RegisteredOn.Equal(b.RegisteredOn) ||
		a.OwnerIdentity != b.OwnerIdentity ||
		a.OwnerName != b.OwnerName ||
		!a.Valuation.Equal(b.Valuation) ||
		!a.PaymentsReceived.Equal(b.PaymentsReceived) ||
		!a.Balance.Equal(b.Balance) ||
		len(a.Transactions) != len(b.Transactions) {
		return false
	}
	for i := range a.Transactions {
		if !transactionsEqual(a.Transactions[i], b.Transactions[i]) {
			return false
		}
	}
	return true
}

func transactionsEqual(a, b registry.Transaction) bool {
	return a.Seq == b.Seq &&
		a.DueDate.Equal(b.DueDate) &&
		a.ReceiptDate.Equal(b.ReceiptDate) &&
		a.Receivable.Equal(b.Receivable) &&
		a.Paid.Equal(b.Paid) &&
		a.Surcharge.Equal(b.Surcharge) &&
		a.Balance.Equal(b.Balance) &&
		a.PaymentMode == b.PaymentMode &&
		a.Kind == b.Kind
}
