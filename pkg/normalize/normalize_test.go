package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/mcclellann/loanStatement/pkg/ingest"
	"github.com/shopspring/decimal"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func table(header []string, rows ...[]string) *ingest.Table {
	return &ingest.Table{Header: header, Rows: rows}
}

func TestNormalize_DebitCreditMatchesCombinedAmount(t *testing.T) {
	pair := table([]string{"Company", "Date", "Description", "Debit", "Credit"},
		[]string{"Acme", "2024-01-05", "Loan Amount", "10000", ""},
		[]string{"Acme", "2024-01-05", "Admin Fee", "500", ""},
		[]string{"Acme", "2024-02-01", "Repayment", "", "2000"},
	)
	combined := table([]string{"Company", "Date", "Description", "Amount"},
		[]string{"Acme", "2024-01-05", "Loan Amount", "10000"},
		[]string{"Acme", "2024-01-05", "Admin Fee", "500.00"},
		[]string{"Acme", "2024-02-01", "Repayment", "-2000"},
	)

	a, err := Normalize(pair, SchemaDebitCredit)
	if err != nil {
		t.Fatalf("Normalize pair: %v", err)
	}
	b, err := Normalize(combined, SchemaStrict)
	if err != nil {
		t.Fatalf("Normalize combined: %v", err)
	}

	ta, tb := a.Transactions(), b.Transactions()
	if len(ta) != len(tb) {
		t.Fatalf("Length mismatch: %d vs %d", len(ta), len(tb))
	}
	for i := range ta {
		if !ta[i].Date.Equal(tb[i].Date) || ta[i].Description != tb[i].Description || !ta[i].Amount.Equal(tb[i].Amount) {
			t.Errorf("Row %d differs: %+v vs %+v", i, ta[i], tb[i])
		}
	}
	if !ta[2].Amount.Equal(decimal.NewFromInt(-2000)) {
		t.Errorf("Expected credit to be negative, got %s", ta[2].Amount)
	}
}

func TestNormalize_SingleSidedColumns(t *testing.T) {
	debitOnly := table([]string{"Company", "Date", "Description", "Debit"},
		[]string{"Acme", "2024-01-05", "Fee", "75.50"},
		[]string{"Acme", "2024-01-06", "Nothing", ""},
	)
	l, err := Normalize(debitOnly, SchemaDebitCredit)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !l.Rows[0].Transaction.Amount.Equal(decimal.RequireFromString("75.5")) || !l.Rows[1].Transaction.Amount.IsZero() {
		t.Errorf("Unexpected amounts: %s, %s", l.Rows[0].Transaction.Amount, l.Rows[1].Transaction.Amount)
	}

	creditOnly := table([]string{"Company", "Date", "Description", "Credit"},
		[]string{"Acme", "2024-01-05", "Payment", "300"},
	)
	l, err = Normalize(creditOnly, SchemaDebitCredit)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !l.Rows[0].Transaction.Amount.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Credit-only column is used as given, got %s", l.Rows[0].Transaction.Amount)
	}
}

func TestNormalize_SchemaErrors(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		schema Schema
		want   error
	}{
		{"strict without amount", []string{"Company", "Date", "Description", "Debit"}, SchemaStrict, ErrSchema},
		{"no company", []string{"Date", "Description", "Amount"}, SchemaDebitCredit, ErrSchema},
		{"lowercase date", []string{"Company", "date", "Description", "Amount"}, SchemaDebitCredit, ErrSchema},
		{"no amount columns", []string{"Company", "Date", "Description", "Notes"}, SchemaDebitCredit, ErrMissingAmountColumn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The data row is broken too; the column check must come first.
			tbl := table(tt.header, []string{"Acme", "not a date", "x", "y"})
			_, err := Normalize(tbl, tt.schema)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestNormalize_InvalidDateVoidsBatch(t *testing.T) {
	tbl := table([]string{"Company", "Date", "Description", "Amount"},
		[]string{"Acme", "2024-01-05", "Loan Amount", "10000"},
		[]string{"Acme", "2024-13-45", "Broken", "1"},
		[]string{"Acme", "2024-02-01", "Repayment", "-2000"},
	)
	l, err := Normalize(tbl, SchemaStrict)
	if l != nil {
		t.Errorf("Expected no ledger, got %d rows", len(l.Rows))
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("Expected ErrInvalidDate, got %v", err)
	}
	if verr.Line != 3 || verr.Value != "2024-13-45" {
		t.Errorf("Unexpected error detail: %+v", verr)
	}
}

func TestNormalize_InvalidAmount(t *testing.T) {
	tbl := table([]string{"Company", "Date", "Description", "Amount"},
		[]string{"Acme", "2024-01-05", "Loan Amount", "ten"},
	)
	if _, err := Normalize(tbl, SchemaStrict); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got %v", err)
	}

	tbl = table([]string{"Company", "Date", "Description", "Debit", "Credit"},
		[]string{"Acme", "2024-01-05", "Loan Amount", "10000", ""},
		[]string{"Acme", "2024-01-06", "Repayment", "", "1,2345"},
	)
	if _, err := Normalize(tbl, SchemaDebitCredit); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount for an ambiguous comma, got %v", err)
	}
}

func TestNormalize_DropsRowsWithoutDateOrCompany(t *testing.T) {
	tbl := table([]string{"Company", "Date", "Description", "Amount"},
		[]string{"", "garbage", "No company", "1"},
		[]string{"Acme", "", "No date", "1"},
		[]string{"Acme", "2024-01-05", "Kept", "1"},
	)
	l, err := Normalize(tbl, SchemaStrict)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(l.Rows) != 1 || l.Rows[0].Transaction.Description != "Kept" || l.Rows[0].Line != 4 {
		t.Errorf("Unexpected rows: %+v", l.Rows)
	}

	empty := table([]string{"Company", "Date", "Description", "Amount"},
		[]string{"", "2024-01-05", "x", "1"},
	)
	if _, err := Normalize(empty, SchemaStrict); !errors.Is(err, ErrNoRows) {
		t.Errorf("Expected ErrNoRows, got %v", err)
	}
}

func TestNormalize_StableDateSort(t *testing.T) {
	tbl := table([]string{"Company", "Date", "Description", "Amount"},
		[]string{"Acme", "2024-02-01", "Repayment", "-2000"},
		[]string{"Acme", "2024/01/05", "Loan Disbursed", "10000"},
		[]string{"Acme", "45296", "Admin Fee", "500"},
		[]string{"Acme", "1/5/2024", "Finance Charge", "23"},
	)
	l, err := Normalize(tbl, SchemaStrict)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := []string{"Loan Disbursed", "Admin Fee", "Finance Charge", "Repayment"}
	for i, w := range want {
		if got := l.Rows[i].Transaction.Description; got != w {
			t.Errorf("Row %d: expected %s, got %s", i, w, got)
		}
	}
	if !l.Rows[1].Transaction.Date.Equal(day("2024-01-05")) {
		t.Errorf("Excel serial parsed as %s", l.Rows[1].Transaction.Date)
	}
}

func TestFilter(t *testing.T) {
	tbl := table([]string{"Company", "Date", "Description", "Amount"},
		[]string{"Acme", "2024-01-05", "Loan Amount", "10000"},
		[]string{"acme", "2024-01-06", "Other customer", "1"},
		[]string{"Beta", "2024-01-06", "Other customer", "1"},
		[]string{"Acme", "2024-02-01", "Repayment", "-2000"},
		[]string{"Acme", "2024-03-01", "Repayment", "-2000"},
	)
	l, err := Normalize(tbl, SchemaStrict)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	got, err := l.Filter("Acme", day("2024-01-05"), day("2024-02-01"))
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(got.Rows) != 2 {
		t.Errorf("Expected 2 rows in range, got %d", len(got.Rows))
	}

	single, err := l.Filter("Acme", day("2024-02-01"), day("2024-02-01"))
	if err != nil {
		t.Fatalf("Equal dates must be accepted: %v", err)
	}
	if len(single.Rows) != 1 {
		t.Errorf("Expected 1 row on a single day, got %d", len(single.Rows))
	}

	none, err := l.Filter("Acme", day("2024-01-10"), day("2024-01-10"))
	if err != nil || len(none.Rows) != 0 {
		t.Errorf("Expected an empty single-day result, got %v, %v", none, err)
	}

	if _, err := l.Filter("Acme", day("2024-02-02"), day("2024-02-01")); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("Expected ErrInvalidRange, got %v", err)
	}
}

func TestLoanMetadata(t *testing.T) {
	tbl := table([]string{"Company", "Date", "Description", "Amount", "rate", "fees"},
		[]string{"Acme", "2024-01-03", "Opening fee", "0", "", "250"},
		[]string{"Acme", "2024-01-05", "LOAN AMOUNT paid out", "10000", "5", "250"},
		[]string{"Acme", "2024-01-06", "Rate changed", "0", "9", ""},
	)
	l, err := Normalize(tbl, SchemaStrict)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	m := l.LoanMetadata()
	if !m.LoanAmount.Equal(decimal.NewFromInt(10000)) || !m.LoanDate.Equal(day("2024-01-05")) || m.LoanLine != 3 {
		t.Errorf("Unexpected loan row: %+v", m)
	}
	if !m.InterestRate.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Expected first rate 5, got %s", m.InterestRate)
	}
	if !m.Fees.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Expected fees 500, got %s", m.Fees)
	}
	// 10000 + 10000*5/100 + 500
	if !m.OpeningBalance().Equal(decimal.NewFromInt(11000)) {
		t.Errorf("Expected opening balance 11000, got %s", m.OpeningBalance())
	}
}

func TestLoanMetadata_NoLoanRow(t *testing.T) {
	tbl := table([]string{"Company", "Date", "Description", "Amount"},
		[]string{"Acme", "2024-03-01", "Repayment", "-100"},
		[]string{"Acme", "2024-02-01", "Repayment", "-100"},
	)
	l, err := Normalize(tbl, SchemaStrict)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	m := l.LoanMetadata()
	if !m.LoanAmount.IsZero() || !m.LoanDate.Equal(day("2024-02-01")) || m.LoanLine != 0 {
		t.Errorf("Unexpected defaults: %+v", m)
	}
	if !m.OpeningBalance().IsZero() {
		t.Errorf("Expected zero opening balance, got %s", m.OpeningBalance())
	}
}

func TestParseAmount(t *testing.T) {
	tests := map[string]string{
		"":           "0",
		"-":          "0",
		"1,234.50":   "1234.5",
		"R 99.99":    "99.99",
		"(500)":      "-500",
		"-2000":      "-2000",
		"12 345.60R": "12345.6",
		"12 345,60R": "12345.6",
		"1,5":        "1.5",
		"1,234":      "1234",
		"(1 000,50)": "-1000.5",
	}
	for in, want := range tests {
		got, err := ParseAmount(in)
		if err != nil {
			t.Errorf("ParseAmount(%q): %v", in, err)
			continue
		}
		if !got.Equal(decimal.RequireFromString(want)) {
			t.Errorf("ParseAmount(%q) = %s, want %s", in, got, want)
		}
	}
	for _, in := range []string{"abc", "1,2345", "1,23,4", "1.234,56"} {
		if _, err := ParseAmount(in); err == nil {
			t.Errorf("Expected an error for %q", in)
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := map[string]string{
		"2024-01-13":          "2024-01-13",
		"2024-01-13 09:30:00": "2024-01-13",
		"1/13/2024":           "2024-01-13",
		"13/01/2024":          "2024-01-13",
		"13-1-2024":           "2024-01-13",
		"13 Jan 2024":         "2024-01-13",
		"45304":               "2024-01-13",
	}
	for in, want := range tests {
		got, ok := ParseDate(in)
		if !ok {
			t.Errorf("ParseDate(%q) failed", in)
			continue
		}
		if got.Format("2006-01-02") != want {
			t.Errorf("ParseDate(%q) = %s, want %s", in, got.Format("2006-01-02"), want)
		}
	}
	for _, in := range []string{"", "soon", "32/13/2024"} {
		if _, ok := ParseDate(in); ok {
			t.Errorf("Expected ParseDate(%q) to fail", in)
		}
	}
}

func TestParseSchema(t *testing.T) {
	if s, err := ParseSchema(""); err != nil || s != SchemaDebitCredit {
		t.Errorf("Default schema: %v %v", s, err)
	}
	if s, err := ParseSchema("Strict"); err != nil || s != SchemaStrict {
		t.Errorf("Strict schema: %v %v", s, err)
	}
	if _, err := ParseSchema("loose"); err == nil {
		t.Error("Expected an error for an unknown schema")
	}
}
