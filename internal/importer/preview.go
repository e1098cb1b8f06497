package importer

import (
	"sort"
	"time"

	"github.com/JonMunkholm/registrysync/internal/registry"
)

// Sample limits
const (
	maxSkippedSamples  = 20
	maxAccountSamples  = 10
	maxIdentityVariant = 10
)

// PreviewSummary contains the counts for an analyzed export.
type PreviewSummary struct {
	DataRows     int `json:"dataRows"`
	Transactions int `json:"transactions"`
	Members      int `json:"members"`
	Accounts     int `json:"accounts"`
	SkippedRows  int `json:"skippedRows"`
}

// AccountPreview is one account as it would be built.
type AccountPreview struct {
	Code             string `json:"code"`
	OwnerIdentity    string `json:"ownerIdentity"`
	OwnerName        string `json:"ownerName"`
	Transactions     int    `json:"transactions"`
	PaymentsReceived string `json:"paymentsReceived"`
	Balance          string `json:"balance"`
}

// IdentityVariants lists the different spellings that collapsed into one
// member.
type IdentityVariants struct {
	Identity string   `json:"identity"`
	Spelling []string `json:"spellings"`
}

// FilePreview is the read-only analysis of an export.
type FilePreview struct {
	Summary          PreviewSummary     `json:"summary"`
	Delimiter        string             `json:"delimiter"`
	Columns          map[Field]string   `json:"columns"`
	Unresolved       []Field            `json:"unresolved"`
	AccountSamples   []AccountPreview   `json:"accountSamples"`
	SkippedSamples   []SkippedRow       `json:"skippedSamples"`
	IdentityVariants []IdentityVariants `json:"identityVariants,omitempty"`
	ProcessingTimeMs int64              `json:"processingTimeMs"`
}

// Analyze builds the export without applying it and reports what it contains.
// The built Batch is returned alongside so callers can diff it against live
// state.
func Analyze(data []byte, opts Options) (*FilePreview, *Batch, error) {
	start := time.Now()

	text, err := Decode(data, opts.FallbackCharset)
	if err != nil {
		return nil, nil, err
	}
	batch, err := BuildText(text, opts)
	if err != nil {
		return nil, nil, err
	}

	p := &FilePreview{
		Summary: PreviewSummary{
			DataRows:     batch.DataRows,
			Transactions: batch.TransactionCount(),
			Members:      len(batch.Members),
			Accounts:     len(batch.Accounts),
			SkippedRows:  len(batch.Skipped),
		},
		Delimiter:        string(batch.Delimiter),
		Columns:          batch.Schema.Matched(),
		Unresolved:       batch.Schema.Unresolved(opts.aliases()),
		AccountSamples:   make([]AccountPreview, 0, maxAccountSamples),
		SkippedSamples:   SampleSkipped(batch.Skipped, maxSkippedSamples),
		IdentityVariants: identityVariants(text, batch),
	}

	for _, a := range batch.Accounts {
		if len(p.AccountSamples) == maxAccountSamples {
			break
		}
		p.AccountSamples = append(p.AccountSamples, AccountPreview{
			Code:             a.Code,
			OwnerIdentity:    a.OwnerIdentity,
			OwnerName:        a.OwnerName,
			Transactions:     len(a.Transactions),
			PaymentsReceived: a.PaymentsReceived.StringFixed(2),
			Balance:          a.Balance.StringFixed(2),
		})
	}

	p.ProcessingTimeMs = time.Since(start).Milliseconds()
	return p, batch, nil
}

// SampleSkipped returns at most n skipped rows. n <= 0 returns none.
func SampleSkipped(rows []SkippedRow, n int) []SkippedRow {
	if n <= 0 || len(rows) == 0 {
		return []SkippedRow{}
	}
	if len(rows) > n {
		rows = rows[:n]
	}
	out := make([]SkippedRow, len(rows))
	copy(out, rows)
	return out
}

// identityVariants rescans the identity column to report members whose
// identity appeared in more than one spelling.
func identityVariants(text string, batch *Batch) []IdentityVariants {
	delim := batch.Delimiter
	seen := make(map[string]map[string]bool)

	lines := SplitLines(text)
	header := true
	for _, l := range lines {
		if isBlank(l, delim) {
			continue
		}
		if header {
			header = false
			continue
		}
		raw := batch.Schema.Cell(ParseLine(l, delim), FieldIdentity)
		key := registry.NormalizeIdentity(raw)
		if key == "" {
			continue
		}
		if seen[key] == nil {
			seen[key] = make(map[string]bool)
		}
		seen[key][raw] = true
	}

	var out []IdentityVariants
	for _, m := range batch.Members {
		spellings := seen[m.Identity]
		if len(spellings) < 2 {
			continue
		}
		v := IdentityVariants{Identity: m.Identity}
		for s := range spellings {
			v.Spelling = append(v.Spelling, s)
		}
		sort.Strings(v.Spelling)
		out = append(out, v)
		if len(out) == maxIdentityVariant {
			break
		}
	}
	return out
}
