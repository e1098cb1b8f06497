package importer

import (
	"errors"
	"strings"
	"testing"

	"github.com/JonMunkholm/registrysync/internal/registry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func csv(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n"))
}

func TestBuild_SingleAccountTwoRows(t *testing.T) {
	data := csv(
		"OCNIC,OName,ItemCode,DocTotal,ReconSum,BalDueDeb",
		"12345-6789012-3,Ali Khan,P-001,5000,1000,200",
		"12345-6789012-3,Ali Khan,P-001,5000,500,100",
	)

	b, err := Build(data, Options{})
	require.NoError(t, err)

	require.Len(t, b.Members, 1)
	m := b.Members[0]
	assert.Equal(t, "1234567890123", m.Identity)
	assert.Equal(t, "12345-6789012-3", m.DisplayIdentity)
	assert.Equal(t, "Ali Khan", m.Name)
	assert.Equal(t, registry.MemberID("1234567890123"), m.ID)
	assert.Equal(t, registry.RoleClient, m.Role)
	assert.Equal(t, registry.StatusPending, m.Status)
	assert.Equal(t, registry.PlaceholderPhone, m.Phone)

	require.Len(t, b.Accounts, 1)
	a := b.Accounts[0]
	assert.Equal(t, "P-001", a.Code)
	assert.Equal(t, m.Identity, a.OwnerIdentity)
	assert.Equal(t, "Ali Khan", a.OwnerName)
	assert.True(t, a.Valuation.Equal(decimal.NewFromInt(5000)))
	assert.True(t, a.PaymentsReceived.Equal(decimal.NewFromInt(1500)), "paid = %s", a.PaymentsReceived)
	assert.True(t, a.Balance.Equal(decimal.NewFromInt(300)), "balance = %s", a.Balance)

	require.Len(t, a.Transactions, 2)
	assert.Equal(t, 2, a.Transactions[0].Seq)
	assert.Equal(t, 3, a.Transactions[1].Seq)
	assert.True(t, a.Transactions[0].Paid.Equal(decimal.NewFromInt(1000)))
	assert.True(t, a.Transactions[1].Paid.Equal(decimal.NewFromInt(500)))

	assert.Empty(t, b.Skipped)
	assert.Equal(t, 2, b.DataRows)
	assert.Equal(t, ',', b.Delimiter)
}

func TestBuild_IdentityFormattingCollapses(t *testing.T) {
	data := csv(
		"CNIC;Item Code;Name",
		"35202-1234567-9;A-1;First",
		"3520212345679;A-2;Second",
		"35202 1234567 9;A-3;Third",
	)

	b, err := Build(data, Options{})
	require.NoError(t, err)
	require.Len(t, b.Members, 1)
	assert.Equal(t, "First", b.Members[0].Name, "first appearance wins")
	require.Len(t, b.Accounts, 3)
	for _, a := range b.Accounts {
		assert.Equal(t, "3520212345679", a.OwnerIdentity)
	}
}

func TestBuild_SkipsRowsMissingKeys(t *testing.T) {
	data := csv(
		"OCNIC,ItemCode,ReconSum",
		"11111-1111111-1,P-1,10",
		"22222-2222222-2,,20",
		",P-3,30",
		"NULL,P-4,40",
		"33333-3333333-3,P-5,50",
	)

	b, err := Build(data, Options{})
	require.NoError(t, err)

	require.Len(t, b.Accounts, 2)
	assert.Equal(t, "P-1", b.Accounts[0].Code)
	assert.Equal(t, "P-5", b.Accounts[1].Code)

	require.Len(t, b.Skipped, 3)
	assert.Equal(t, 3, b.Skipped[0].Line)
	assert.Equal(t, SkipMissingAccountCode, b.Skipped[0].Reason)
	assert.Equal(t, SkipMissingIdentity, b.Skipped[1].Reason)
	assert.Equal(t, SkipMissingIdentity, b.Skipped[2].Reason)
	assert.Equal(t, 5, b.DataRows)
}

func TestBuild_BlankLinesIgnored(t *testing.T) {
	data := csv(
		"",
		"OCNIC,ItemCode,ReconSum",
		",,",
		"11111-1111111-1,P-1,10",
		"",
		"11111-1111111-1,P-1,5",
	)

	b, err := Build(data, Options{})
	require.NoError(t, err)
	require.Len(t, b.Accounts, 1)

	txs := b.Accounts[0].Transactions
	require.Len(t, txs, 2)
	assert.Equal(t, 4, txs[0].Seq)
	assert.Equal(t, 6, txs[1].Seq)
	assert.Empty(t, b.Skipped)
}

func TestBuild_FormatErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		opts Options
		want error
	}{
		{"empty", nil, Options{}, ErrTooFewLines},
		{"header only", csv("OCNIC,ItemCode", "", "  "), Options{}, ErrTooFewLines},
		{"delimiter-only rows", csv("OCNIC,OName,ItemCode,DocTotal,ReconSum,BalDueDeb\r", ",,,,,\r", ",,,,,\r", ""), Options{}, ErrTooFewLines},
		{"delimiter-only rows semicolon", csv("OCNIC;ItemCode", ";", " ; "), Options{}, ErrTooFewLines},
		{"missing account column", csv("OCNIC,Name", "1,a"), Options{}, ErrHeaderUnresolved},
		{"missing identity column", csv("ItemCode,Name", "P-1,a"), Options{}, ErrHeaderUnresolved},
		{"too many rows", csv("OCNIC,ItemCode", "1,a", "2,b", "3,c"), Options{MaxRows: 2}, ErrTooManyRows},
		{"not utf8", []byte("OCNIC,ItemCode\n1,caf\xe9"), Options{}, ErrEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Build(tt.data, tt.opts)
			require.Error(t, err)
			assert.Nil(t, b)
			assert.True(t, IsFormatError(err), "got %T", err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestBuild_BlankRowsNotCountedAgainstMaxRows(t *testing.T) {
	b, err := Build(csv("OCNIC,ItemCode", "1,a", ",", "", "2,b"), Options{MaxRows: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, b.DataRows)
	assert.Len(t, b.Accounts, 2)
}

func TestBuild_HeaderErrorNamesAliases(t *testing.T) {
	_, err := Build(csv("Foo,Bar", "1,2"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identity")
	assert.Contains(t, err.Error(), "OCNIC")
	assert.Contains(t, err.Error(), "ItemCode")
}

func TestBuild_FallbackCharset(t *testing.T) {
	data := []byte("OCNIC,ItemCode,OName\n11111-1111111-1,P-1,Jos\xe9\n")

	b, err := Build(data, Options{FallbackCharset: CharsetWindows1252})
	require.NoError(t, err)
	require.Len(t, b.Members, 1)
	assert.Equal(t, "José", b.Members[0].Name)
}

func TestBuild_CustomAliases(t *testing.T) {
	aliases := map[Field][]string{
		FieldIdentity:    {"Owner ID"},
		FieldAccountCode: {"Unit"},
	}
	b, err := Build(csv("Owner ID|Unit", "12345|U-9"), Options{Aliases: aliases})
	require.NoError(t, err)
	require.Len(t, b.Accounts, 1)
	assert.Equal(t, "U-9", b.Accounts[0].Code)
	assert.Equal(t, registry.PlaceholderName, b.Members[0].Name)
}

func TestAnalyze(t *testing.T) {
	data := csv(
		"OCNIC,ItemCode,ReconSum,BalDueDeb",
		"12345-6789012-3,P-1,100,10",
		"1234567890123,P-2,50,5",
		"12345-6789012-3,,1,1",
	)

	p, b, err := Analyze(data, Options{})
	require.NoError(t, err)
	require.NotNil(t, b)

	assert.Equal(t, 3, p.Summary.DataRows)
	assert.Equal(t, 2, p.Summary.Transactions)
	assert.Equal(t, 1, p.Summary.Members)
	assert.Equal(t, 2, p.Summary.Accounts)
	assert.Equal(t, 1, p.Summary.SkippedRows)
	assert.Equal(t, ",", p.Delimiter)
	assert.Equal(t, "OCNIC", p.Columns[FieldIdentity])
	assert.Contains(t, p.Unresolved, FieldSurcharge)
	require.Len(t, p.AccountSamples, 2)
	assert.Equal(t, "100.00", p.AccountSamples[0].PaymentsReceived)

	require.Len(t, p.IdentityVariants, 1)
	assert.Equal(t, []string{"12345-6789012-3", "1234567890123"}, p.IdentityVariants[0].Spelling)
}

func TestSampleSkipped(t *testing.T) {
	rows := []SkippedRow{{Line: 2}, {Line: 3}, {Line: 4}}
	assert.Len(t, SampleSkipped(rows, 2), 2)
	assert.Len(t, SampleSkipped(rows, 10), 3)
	assert.Empty(t, SampleSkipped(rows, 0))
}
