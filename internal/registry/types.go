// Package registry holds the domain model of members and their property
// accounts, plus the process-wide state holder every mutation goes through.
package registry

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is a member's portal role.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

// Status is a member's activation status.
type Status string

const (
	StatusPending  Status = "pending" // imported, never claimed
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// Placeholders used when an export row leaves a display field empty.
const (
	PlaceholderName  = "Unknown Member"
	PlaceholderPhone = "N/A"
)

// Member is a registry member keyed by normalized identity number.
type Member struct {
	ID              string `json:"id"`
	Identity        string `json:"identity"`
	DisplayIdentity string `json:"displayIdentity,omitempty"`
	Name            string `json:"name"`
	FatherName      string `json:"fatherName,omitempty"`
	Phone           string `json:"phone,omitempty"`
	Mobile          string `json:"mobile,omitempty"`
	Email           string `json:"email,omitempty"`
	Address         string `json:"address,omitempty"`
	Role            Role   `json:"role"`
	Status          Status `json:"status"`
	Credential      string `json:"credential,omitempty"`
}

// Claimed reports whether a portal login has been registered for the member.
func (m Member) Claimed() bool {
	return m.Credential != ""
}

// Redacted returns a copy safe to serve: the credential hash is dropped.
func (m Member) Redacted() Member {
	m.Credential = ""
	return m
}

// PropertyAccount is a property file owned by a member. Code is the unique key.
type PropertyAccount struct {
	Code             string          `json:"code"`
	Description      string          `json:"description,omitempty"`
	Address          string          `json:"address,omitempty"`
	Plot             string          `json:"plot,omitempty"`
	Block            string          `json:"block,omitempty"`
	Park             string          `json:"park,omitempty"`
	Corner           string          `json:"corner,omitempty"`
	Boulevard        string          `json:"boulevard,omitempty"`
	RegisteredOn     time.Time       `json:"registeredOn,omitzero"`
	OwnerIdentity    string          `json:"ownerIdentity"`
	OwnerName        string          `json:"ownerName"`
	Valuation        decimal.Decimal `json:"valuation"`
	PaymentsReceived decimal.Decimal `json:"paymentsReceived"`
	Balance          decimal.Decimal `json:"balance"`
	Transactions     []Transaction   `json:"transactions"`
}

// Apply folds one transaction into the account: it is appended to the history
// and its paid and balance-due amounts are added to the running aggregates.
func (a *PropertyAccount) Apply(tx Transaction) {
	a.Transactions = append(a.Transactions, tx)
	a.PaymentsReceived = a.PaymentsReceived.Add(tx.Paid)
	a.Balance = a.Balance.Add(tx.Balance)
}

// Transaction is one ledger row of a property account.
type Transaction struct {
	Seq         int             `json:"seq"`
	DueDate     time.Time       `json:"dueDate,omitzero"`
	ReceiptDate time.Time       `json:"receiptDate,omitzero"`
	Receivable  decimal.Decimal `json:"receivable"`
	Paid        decimal.Decimal `json:"paid"`
	Surcharge   decimal.Decimal `json:"surcharge"`
	Balance     decimal.Decimal `json:"balance"`
	PaymentMode string          `json:"paymentMode,omitempty"`
	Kind        string          `json:"kind,omitempty"`
}

// State is the full registry content: every member and every account, in
// insertion order.
type State struct {
	Members  []Member          `json:"members"`
	Accounts []PropertyAccount `json:"accounts"`
}

// Clone returns a deep copy so a mutation can work without touching the
// original until it succeeds.
func (s State) Clone() State {
	out := State{
		Members:  make([]Member, len(s.Members)),
		Accounts: make([]PropertyAccount, len(s.Accounts)),
	}
	copy(out.Members, s.Members)
	for i, a := range s.Accounts {
		a.Transactions = append([]Transaction(nil), a.Transactions...)
		out.Accounts[i] = a
	}
	return out
}

// MemberIndex returns the position of the member with the given identity,
// comparing normalized forms, or -1.
func (s State) MemberIndex(identity string) int {
	key := NormalizeIdentity(identity)
	if key == "" {
		return -1
	}
	for i, m := range s.Members {
		if NormalizeIdentity(m.Identity) == key {
			return i
		}
	}
	return -1
}

// AccountIndex returns the position of the account with the given code, or -1.
func (s State) AccountIndex(code string) int {
	code = NormalizeCode(code)
	if code == "" {
		return -1
	}
	for i, a := range s.Accounts {
		if NormalizeCode(a.Code) == code {
			return i
		}
	}
	return -1
}

// AccountsOwnedBy returns the accounts whose owner normalizes to identity.
func (s State) AccountsOwnedBy(identity string) []PropertyAccount {
	key := NormalizeIdentity(identity)
	var out []PropertyAccount
	if key == "" {
		return out
	}
	for _, a := range s.Accounts {
		if NormalizeIdentity(a.OwnerIdentity) == key {
			out = append(out, a)
		}
	}
	return out
}
