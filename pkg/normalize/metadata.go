package normalize

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const loanAmountMarker = "loan amount"

var hundred = decimal.NewFromInt(100)

// LoanMetadata is what an upload says about the loan when no loan record exists.
type LoanMetadata struct {
	LoanAmount   decimal.Decimal
	LoanDate     time.Time
	InterestRate decimal.Decimal // percent
	Fees         decimal.Decimal
	// LoanLine is the source line of the "Loan Amount" row, 0 if there is none.
	LoanLine int
}

// LoanMetadata derives loan amount, date, rate and fees from the rows.
// The first row mentioning "Loan Amount" gives amount and date; without one
// the date is the earliest in the ledger and the amount is zero. The rate
// is taken from the first row that has one, fees are summed.
func (l *Ledger) LoanMetadata() LoanMetadata {
	var m LoanMetadata
	m.LoanDate, _ = l.Span()
	rateSeen := false
	for _, r := range l.Rows {
		if m.LoanLine == 0 && strings.Contains(strings.ToLower(r.Transaction.Description), loanAmountMarker) {
			m.LoanAmount = r.Transaction.Amount
			m.LoanDate = r.Transaction.Date
			m.LoanLine = r.Line
		}
		if !rateSeen && r.Rate.Valid {
			m.InterestRate = r.Rate.Decimal
			rateSeen = true
		}
		if r.Fees.Valid {
			m.Fees = m.Fees.Add(r.Fees.Decimal)
		}
	}
	return m
}

// FinanceCharge is loan amount × rate / 100.
func (m LoanMetadata) FinanceCharge() decimal.Decimal {
	return m.LoanAmount.Mul(m.InterestRate).Div(hundred)
}

// OpeningBalance is loan amount plus finance charge plus fees.
func (m LoanMetadata) OpeningBalance() decimal.Decimal {
	return m.LoanAmount.Add(m.FinanceCharge()).Add(m.Fees)
}
