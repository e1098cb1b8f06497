package importer

import (
	"sort"
	"strings"
)

// Field is a logical column of the ledger export.
type Field string

const (
	FieldIdentity     Field = "identity"
	FieldAccountCode  Field = "account_code"
	FieldOwnerName    Field = "owner_name"
	FieldFatherName   Field = "father_name"
	FieldPhone        Field = "phone"
	FieldMobile       Field = "mobile"
	FieldAddress      Field = "address"
	FieldDescription  Field = "description"
	FieldValuation    Field = "valuation"
	FieldPaid         Field = "paid"
	FieldBalanceDue   Field = "balance_due"
	FieldDueDate      Field = "due_date"
	FieldReceivable   Field = "receivable"
	FieldSurcharge    Field = "surcharge"
	FieldPaymentMode  Field = "payment_mode"
	FieldReceiptDate  Field = "receipt_date"
	FieldRegisteredOn Field = "registered_on"
	FieldPlot         Field = "plot"
	FieldBlock        Field = "block"
	FieldPark         Field = "park"
	FieldCorner       Field = "corner"
	FieldBoulevard    Field = "boulevard"
	FieldKind         Field = "kind"
)

// RequiredFields must resolve for an export to be importable.
var RequiredFields = []Field{FieldIdentity, FieldAccountCode}

// DefaultAliases lists the accepted header names per field, highest priority
// first. Phone and mobile both accept "Cellular": exports that carry a single
// cell column feed both.
var DefaultAliases = map[Field][]string{
	FieldIdentity:     {"OCNIC", "CNIC", "CNIC No", "U_CNIC", "NIC", "Identity", "Identity No"},
	FieldAccountCode:  {"ItemCode", "Item Code", "File No", "FileNo", "U_FileNo", "Plot Code", "Account Code"},
	FieldOwnerName:    {"OName", "CardName", "Owner Name", "Customer Name", "Name"},
	FieldFatherName:   {"FName", "U_FatherName", "Father Name", "Father/Husband Name", "Guardian"},
	FieldPhone:        {"Phone1", "Phone", "Tel1", "Cellular"},
	FieldMobile:       {"Cellular", "Mobile", "Cell", "Mobile No"},
	FieldAddress:      {"Address", "Owner Address", "Street", "MailAddres"},
	FieldDescription:  {"ItemName", "Dscription", "Description", "Size", "Plot Size"},
	FieldValuation:    {"DocTotal", "Doc Total", "Total", "Price", "Valuation"},
	FieldPaid:         {"ReconSum", "PaidToDate", "Paid", "Amount Paid", "Received"},
	FieldBalanceDue:   {"BalDueDeb", "Balance Due", "BalanceDue", "Outstanding", "Balance"},
	FieldDueDate:      {"DueDate", "Due Date", "DocDueDate", "Installment Date"},
	FieldReceivable:   {"InsTotal", "Installment Amount", "Receivable", "Amount"},
	FieldSurcharge:    {"Surcharge", "U_Surcharge", "Late Fee", "Penalty"},
	FieldPaymentMode:  {"PayMode", "Payment Mode", "PaymentMethod", "Mode"},
	FieldReceiptDate:  {"ReceiptDate", "Receipt Date", "RefDate", "Payment Date"},
	FieldRegisteredOn: {"RegDate", "Registration Date", "DocDate", "Booking Date"},
	FieldPlot:         {"PlotNo", "Plot No", "Plot"},
	FieldBlock:        {"Block", "Block No", "Sector"},
	FieldPark:         {"Park", "Park Facing"},
	FieldCorner:       {"Corner"},
	FieldBoulevard:    {"Boulevard", "Main Boulevard"},
	FieldKind:         {"InstlType", "Installment Type", "Type", "Remarks"},
}

// Schema is the fixed field → column mapping resolved from one header row.
type Schema struct {
	index    map[Field]int
	matched  map[Field]string
	colCount int
}

// Resolve maps every field in aliases to the column of its first matching
// alias. Matching is case-insensitive on cleaned, trimmed header cells.
// Fields may share a column. Unmatched fields are simply absent.
func Resolve(header []string, aliases map[Field][]string) Schema {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		key := headerKey(h)
		if _, dup := pos[key]; !dup && key != "" {
			pos[key] = i
		}
	}

	s := Schema{
		index:    make(map[Field]int, len(aliases)),
		matched:  make(map[Field]string, len(aliases)),
		colCount: len(header),
	}
	for field, names := range aliases {
		for _, name := range names {
			if i, ok := pos[headerKey(name)]; ok {
				s.index[field] = i
				s.matched[field] = header[i]
				break
			}
		}
	}
	return s
}

func headerKey(s string) string {
	return strings.ToLower(CleanCell(s))
}

// Index returns the column of a field and whether it resolved.
func (s Schema) Index(f Field) (int, bool) {
	i, ok := s.index[f]
	return i, ok
}

// Has reports whether the field resolved.
func (s Schema) Has(f Field) bool {
	_, ok := s.index[f]
	return ok
}

// Cell returns the cleaned value of a field in row, or "" when the field did
// not resolve or the row is short.
func (s Schema) Cell(row []string, f Field) string {
	i, ok := s.index[f]
	if !ok || i >= len(row) {
		return ""
	}
	return CleanCell(row[i])
}

// Missing lists the given fields that did not resolve, in argument order.
func (s Schema) Missing(fields ...Field) []Field {
	var out []Field
	for _, f := range fields {
		if !s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Matched returns the header text each resolved field matched, for display.
func (s Schema) Matched() map[Field]string {
	out := make(map[Field]string, len(s.matched))
	for k, v := range s.matched {
		out[k] = v
	}
	return out
}

// Unresolved returns the fields of aliases that found no column, sorted.
func (s Schema) Unresolved(aliases map[Field][]string) []Field {
	var out []Field
	for f := range aliases {
		if !s.Has(f) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
