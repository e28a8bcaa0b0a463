package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the storage and wire format for calendar dates.
const DateLayout = "2006-01-02"

// Loan defaults applied when the operator leaves the field empty.
var (
	DefaultInterestRate = decimal.RequireFromString("0.23") // percent
	DefaultAdminFee     = decimal.RequireFromString("500.00")
)

// DueDateOffset is the number of days between loan date and due date.
const DueDateOffset = 45

type Customer struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	Email               string    `json:"email,omitempty"`
	Address             string    `json:"address,omitempty"`
	CompanyRegistration string    `json:"company_registration,omitempty"` // yyyy/######/##
	CreatedAt           time.Time `json:"created_at"`
}

type LoanStatus string

const (
	LoanStatusActive LoanStatus = "Active"
	LoanStatusClosed LoanStatus = "Closed"
)

type Loan struct {
	ID                 uuid.UUID       `json:"id"`
	CustomerID         uuid.UUID       `json:"customer_id"`
	AccountNumber      string          `json:"account_number"`
	LoanAmount         decimal.Decimal `json:"loan_amount"`
	LoanDate           time.Time       `json:"loan_date"`
	DueDate            time.Time       `json:"due_date"`
	InterestRate       decimal.Decimal `json:"interest_rate"` // Percentage, 0.23 means 0.23%
	AdminFee           decimal.Decimal `json:"admin_fee"`
	Status             LoanStatus      `json:"status"`
	PaymentFrequency   string          `json:"payment_frequency,omitempty"`
	Collateral         string          `json:"collateral,omitempty"`
	DisbursementMethod string          `json:"disbursement_method,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// FinanceCharge is the once-off charge raised at disbursal.
func (l *Loan) FinanceCharge() decimal.Decimal {
	return l.LoanAmount.Mul(l.InterestRate).Div(decimal.NewFromInt(100))
}

type TransactionType string

const (
	TransactionTypeDisbursal     TransactionType = "disbursal"
	TransactionTypeFinanceCharge TransactionType = "finance charge"
	TransactionTypeFee           TransactionType = "fee"
	TransactionTypeRepayment     TransactionType = "repayment"
	TransactionTypeInterest      TransactionType = "interest"
	TransactionTypePenalty       TransactionType = "penalty"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDisbursal, TransactionTypeFinanceCharge, TransactionTypeFee,
		TransactionTypeRepayment, TransactionTypeInterest, TransactionTypePenalty:
		return true
	}
	return false
}

const (
	PaymentMethodBankTransfer = "Bank Transfer"
	PaymentMethodCash         = "Cash"
	PaymentMethodCheque       = "Cheque"
)

// Transaction is a canonical ledger line. Amount is signed: positive values
// increase the balance owed, negative values are credits.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	LoanID        uuid.UUID       `json:"loan_id"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Type          TransactionType `json:"transaction_type,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
}

// TruncateDate drops the time of day, keeping the calendar date in UTC.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
