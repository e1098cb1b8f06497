package registry

import (
	"time"

	"github.com/shopspring/decimal"
)

// Seed returns the built-in demo registry used when neither the local store
// nor the remote mirror has any data.
func Seed() State {
	adminID := NormalizeIdentity("00000-0000000-1")
	clientID := NormalizeIdentity("35202-1234567-9")

	txs := []Transaction{
		{
			Seq:         2,
			DueDate:     time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC),
			ReceiptDate: time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC),
			Receivable:  decimal.NewFromInt(250000),
			Paid:        decimal.NewFromInt(250000),
			PaymentMode: "Cheque",
			Kind:        "Down Payment",
		},
		{
			Seq:        3,
			DueDate:    time.Date(2024, time.April, 10, 0, 0, 0, 0, time.UTC),
			Receivable: decimal.NewFromInt(75000),
			Balance:    decimal.NewFromInt(75000),
			Kind:       "Installment",
		},
	}

	account := PropertyAccount{
		Code:          "DEMO-001",
		Description:   "5 Marla",
		Plot:          "12",
		Block:         "A",
		OwnerIdentity: clientID,
		OwnerName:     "Demo Client",
		Valuation:     decimal.NewFromInt(1500000),
		RegisteredOn:  time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, tx := range txs {
		account.Apply(tx)
	}

	return State{
		Members: []Member{
			{
				ID:       MemberID(adminID),
				Identity: adminID,
				Name:     "Registry Administrator",
				Phone:    PlaceholderPhone,
				Role:     RoleAdmin,
				Status:   StatusActive,
			},
			{
				ID:              MemberID(clientID),
				Identity:        clientID,
				DisplayIdentity: "35202-1234567-9",
				Name:            "Demo Client",
				Phone:           "0300-0000000",
				Role:            RoleClient,
				Status:          StatusPending,
			},
		},
		Accounts: []PropertyAccount{account},
	}
}
