package importer

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/registrysync/internal/registry"
	"github.com/shopspring/decimal"
)

// Options tunes a build. The zero value uses DefaultAliases and accepts only
// UTF-8 input.
type Options struct {
	// Aliases overrides DefaultAliases when non-nil.
	Aliases map[Field][]string

	// Delimiter forces a separator. Zero means detect from the header.
	Delimiter rune

	// FallbackCharset decodes non-UTF-8 input (see Decode).
	FallbackCharset string

	// MaxRows rejects exports with more data lines. Zero means unlimited.
	MaxRows int
}

func (o Options) aliases() map[Field][]string {
	if o.Aliases != nil {
		return o.Aliases
	}
	return DefaultAliases
}

// Batch is the entity set built from one export, ordered by first appearance.
type Batch struct {
	Members  []registry.Member
	Accounts []registry.PropertyAccount
	Skipped  []SkippedRow

	Schema    Schema
	Delimiter rune
	DataRows  int // non-blank rows after the header
}

// State returns the batch as a registry state.
func (b *Batch) State() registry.State {
	return registry.State{Members: b.Members, Accounts: b.Accounts}
}

// TransactionCount is the number of rows that produced a transaction.
func (b *Batch) TransactionCount() int {
	n := 0
	for _, a := range b.Accounts {
		n += len(a.Transactions)
	}
	return n
}

// Build decodes and folds an export into a Batch.
func Build(data []byte, opts Options) (*Batch, error) {
	text, err := Decode(data, opts.FallbackCharset)
	if err != nil {
		return nil, err
	}
	return BuildText(text, opts)
}

// BuildText folds already decoded export text into a Batch.
//
// The first non-empty line is the header. A file without a data row, or whose
// header lacks a required field, is rejected with a FormatError before any
// entity is built. Data rows are counted with the same rule the fold uses, so
// delimiter-only lines never count as data.
func BuildText(text string, opts Options) (*Batch, error) {
	lines := SplitLines(strings.TrimPrefix(text, "\ufeff"))

	headerAt := -1
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, &FormatError{Reason: "file has no header line", Err: ErrTooFewLines}
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = DetectDelimiter(lines[headerAt])
	}

	dataLines := 0
	for _, l := range lines[headerAt+1:] {
		if !isBlank(l, delim) {
			dataLines++
		}
	}
	if dataLines == 0 {
		return nil, &FormatError{
			Reason: "need a header and at least one data row, found no data rows",
			Err:    ErrTooFewLines,
		}
	}
	if opts.MaxRows > 0 && dataLines > opts.MaxRows {
		return nil, &FormatError{
			Reason: fmt.Sprintf("%d data rows exceeds limit of %d", dataLines, opts.MaxRows),
			Err:    ErrTooManyRows,
		}
	}

	aliases := opts.aliases()
	schema := Resolve(ParseLine(lines[headerAt], delim), aliases)
	if missing := schema.Missing(RequiredFields...); len(missing) > 0 {
		return nil, &FormatError{Reason: describeMissing(missing, aliases), Err: ErrHeaderUnresolved}
	}

	b := newBuilder(schema)
	for i := headerAt + 1; i < len(lines); i++ {
		if isBlank(lines[i], delim) {
			continue
		}
		b.addRow(i+1, ParseLine(lines[i], delim))
	}

	batch := b.batch()
	batch.Delimiter = delim
	return batch, nil
}

func describeMissing(missing []Field, aliases map[Field][]string) string {
	parts := make([]string, len(missing))
	for i, f := range missing {
		parts[i] = fmt.Sprintf("%s (tried %s)", f, strings.Join(aliases[f], ", "))
	}
	return "missing required column " + strings.Join(parts, "; ")
}

// builder holds the keyed collections for one pass.
type builder struct {
	schema Schema

	members    []registry.Member
	memberIdx  map[string]int
	accounts   []registry.PropertyAccount
	accountIdx map[string]int
	skipped    []SkippedRow
	dataRows   int
}

func newBuilder(schema Schema) *builder {
	return &builder{
		schema:     schema,
		memberIdx:  make(map[string]int),
		accountIdx: make(map[string]int),
	}
}

// addRow folds one data row. line is the 1-based line number in the file and
// becomes the transaction sequence number.
func (b *builder) addRow(line int, row []string) {
	b.dataRows++
	s := b.schema

	rawIdentity := s.Cell(row, FieldIdentity)
	identity := registry.NormalizeIdentity(rawIdentity)
	if identity == "" {
		b.skipped = append(b.skipped, SkippedRow{Line: line, Reason: SkipMissingIdentity, Data: row})
		return
	}
	code := registry.NormalizeCode(ParseText(s.Cell(row, FieldAccountCode)))
	if code == "" {
		b.skipped = append(b.skipped, SkippedRow{Line: line, Reason: SkipMissingAccountCode, Data: row})
		return
	}

	member := b.member(identity, rawIdentity, row)
	acc := b.account(code, member, row)

	due, _ := ParseDate(s.Cell(row, FieldDueDate))
	receipt, _ := ParseDate(s.Cell(row, FieldReceiptDate))
	acc.Apply(registry.Transaction{
		Seq:         line,
		DueDate:     due,
		ReceiptDate: receipt,
		Receivable:  ParseAmount(s.Cell(row, FieldReceivable)),
		Paid:        ParseAmount(s.Cell(row, FieldPaid)),
		Surcharge:   ParseAmount(s.Cell(row, FieldSurcharge)),
		Balance:     ParseAmount(s.Cell(row, FieldBalanceDue)),
		PaymentMode: ParseText(s.Cell(row, FieldPaymentMode)),
		Kind:        ParseText(s.Cell(row, FieldKind)),
	})
}

// member returns the member for identity, creating it on first sight.
func (b *builder) member(identity, raw string, row []string) *registry.Member {
	if i, ok := b.memberIdx[identity]; ok {
		return &b.members[i]
	}

	s := b.schema
	m := registry.Member{
		ID:              registry.MemberID(identity),
		Identity:        identity,
		DisplayIdentity: strings.TrimSpace(raw),
		Name:            orPlaceholder(ParseText(s.Cell(row, FieldOwnerName)), registry.PlaceholderName),
		FatherName:      ParseText(s.Cell(row, FieldFatherName)),
		Phone:           orPlaceholder(ParseText(s.Cell(row, FieldPhone)), registry.PlaceholderPhone),
		Mobile:          ParseText(s.Cell(row, FieldMobile)),
		Address:         ParseText(s.Cell(row, FieldAddress)),
		Role:            registry.RoleClient,
		Status:          registry.StatusPending,
	}
	b.memberIdx[identity] = len(b.members)
	b.members = append(b.members, m)
	return &b.members[len(b.members)-1]
}

// account returns the account for code, creating it on first sight with
// zeroed aggregates and the owner's display fields.
func (b *builder) account(code string, owner *registry.Member, row []string) *registry.PropertyAccount {
	if i, ok := b.accountIdx[code]; ok {
		return &b.accounts[i]
	}

	s := b.schema
	registered, _ := ParseDate(s.Cell(row, FieldRegisteredOn))
	a := registry.PropertyAccount{
		Code:             code,
		Description:      ParseText(s.Cell(row, FieldDescription)),
		Address:          ParseText(s.Cell(row, FieldAddress)),
		Plot:             ParseText(s.Cell(row, FieldPlot)),
		Block:            ParseText(s.Cell(row, FieldBlock)),
		Park:             ParseText(s.Cell(row, FieldPark)),
		Corner:           ParseText(s.Cell(row, FieldCorner)),
		Boulevard:        ParseText(s.Cell(row, FieldBoulevard)),
		RegisteredOn:     registered,
		OwnerIdentity:    owner.Identity,
		OwnerName:        owner.Name,
		Valuation:        ParseAmount(s.Cell(row, FieldValuation)),
		PaymentsReceived: decimal.Zero,
		Balance:          decimal.Zero,
	}
	b.accountIdx[code] = len(b.accounts)
	b.accounts = append(b.accounts, a)
	return &b.accounts[len(b.accounts)-1]
}

func (b *builder) batch() *Batch {
	return &Batch{
		Members:  b.members,
		Accounts: b.accounts,
		Skipped:  b.skipped,
		Schema:   b.schema,
		DataRows: b.dataRows,
	}
}

func orPlaceholder(v, placeholder string) string {
	if v == "" {
		return placeholder
	}
	return v
}
