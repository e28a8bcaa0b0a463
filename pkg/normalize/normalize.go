// Package normalize turns uploaded ledger tables into canonical, date-ordered
// transactions with a single signed amount.
package normalize

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mcclellann/loanStatement/pkg/ingest"
	"github.com/mcclellann/loanStatement/pkg/models"
	"github.com/shopspring/decimal"
)

// Column names recognised in uploads. Matching is exact.
const (
	ColumnCompany     = "Company"
	ColumnDate        = "Date"
	ColumnDescription = "Description"
	ColumnAmount      = "Amount"
	ColumnDebit       = "Debit"
	ColumnCredit      = "Credit"
	ColumnRate        = "rate"
	ColumnFees        = "fees"
)

// Schema selects which columns an upload must carry.
type Schema int

const (
	// SchemaDebitCredit requires Company, Date and Description. The amount
	// comes from Debit/Credit, or from Amount when neither is present.
	SchemaDebitCredit Schema = iota
	// SchemaStrict additionally requires a combined Amount column.
	SchemaStrict
)

// ParseSchema maps "strict" and "debit-credit" (the default) to a Schema.
func ParseSchema(s string) (Schema, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "debit-credit", "debitcredit":
		return SchemaDebitCredit, nil
	case "strict":
		return SchemaStrict, nil
	}
	return 0, fmt.Errorf("unknown schema %q", s)
}

func (s Schema) required() []string {
	if s == SchemaStrict {
		return []string{ColumnCompany, ColumnDate, ColumnAmount, ColumnDescription}
	}
	return []string{ColumnCompany, ColumnDate, ColumnDescription}
}

// Row is one accepted upload line.
type Row struct {
	Line        int
	Company     string
	Transaction models.Transaction
	Rate        decimal.NullDecimal
	Fees        decimal.NullDecimal
	Cells       []string // verbatim, in Ledger.Columns order
}

// Ledger is a normalized upload, sorted by date with ties in file order.
type Ledger struct {
	Columns []string
	Rows    []Row
}

// amountSource says how the signed amount of a row is built.
type amountSource int

const (
	amountDebitMinusCredit amountSource = iota
	amountDebitOnly
	amountCreditOnly
	amountCombined
)

// columns holds resolved positions; optional ones are -1 when absent.
type columns struct {
	company, date, description int
	amount, debit, credit      int
	rate, fees                 int
	source                     amountSource
}

func resolveColumns(t *ingest.Table, schema Schema) (columns, error) {
	var missing []string
	for _, name := range schema.required() {
		if t.Index(name) < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return columns{}, &ValidationError{Kind: ErrSchema, Column: strings.Join(missing, ", ")}
	}

	c := columns{
		company:     t.Index(ColumnCompany),
		date:        t.Index(ColumnDate),
		description: t.Index(ColumnDescription),
		amount:      t.Index(ColumnAmount),
		debit:       t.Index(ColumnDebit),
		credit:      t.Index(ColumnCredit),
		rate:        t.Index(ColumnRate),
		fees:        t.Index(ColumnFees),
	}
	switch {
	case c.debit >= 0 && c.credit >= 0:
		c.source = amountDebitMinusCredit
	case c.debit >= 0:
		c.source = amountDebitOnly
	case c.credit >= 0:
		c.source = amountCreditOnly
	case c.amount >= 0:
		c.source = amountCombined
	default:
		return columns{}, &ValidationError{Kind: ErrMissingAmountColumn}
	}
	return c, nil
}

// Normalize validates an uploaded table and converts it to canonical rows.
// Any bad date or amount rejects the whole table.
func Normalize(t *ingest.Table, schema Schema) (*Ledger, error) {
	cols, err := resolveColumns(t, schema)
	if err != nil {
		return nil, err
	}

	ledger := &Ledger{Columns: append([]string(nil), t.Header...)}
	for i, cells := range t.Rows {
		line := i + 2
		company := cells[cols.company]
		rawDate := cells[cols.date]
		if company == "" || rawDate == "" {
			continue
		}

		date, ok := ParseDate(rawDate)
		if !ok {
			return nil, &ValidationError{Kind: ErrInvalidDate, Line: line, Column: ColumnDate, Value: rawDate}
		}
		amount, err := cols.amountOf(cells, line)
		if err != nil {
			return nil, err
		}

		row := Row{
			Line:    line,
			Company: company,
			Transaction: models.Transaction{
				Date:        date,
				Description: cells[cols.description],
				Amount:      amount,
			},
			Cells: cells,
		}
		if row.Rate, err = optionalDecimal(cells, cols.rate, ColumnRate, line); err != nil {
			return nil, err
		}
		if row.Fees, err = optionalDecimal(cells, cols.fees, ColumnFees, line); err != nil {
			return nil, err
		}
		ledger.Rows = append(ledger.Rows, row)
	}
	if len(ledger.Rows) == 0 {
		return nil, &ValidationError{Kind: ErrNoRows}
	}

	sort.SliceStable(ledger.Rows, func(i, j int) bool {
		return ledger.Rows[i].Transaction.Date.Before(ledger.Rows[j].Transaction.Date)
	})
	return ledger, nil
}

func (c columns) amountOf(cells []string, line int) (decimal.Decimal, error) {
	cell := func(idx int, name string) (decimal.Decimal, error) {
		d, err := ParseAmount(cells[idx])
		if err != nil {
			return decimal.Zero, &ValidationError{Kind: ErrInvalidAmount, Line: line, Column: name, Value: cells[idx]}
		}
		return d, nil
	}

	switch c.source {
	case amountDebitMinusCredit:
		debit, err := cell(c.debit, ColumnDebit)
		if err != nil {
			return decimal.Zero, err
		}
		credit, err := cell(c.credit, ColumnCredit)
		if err != nil {
			return decimal.Zero, err
		}
		return debit.Sub(credit), nil
	case amountDebitOnly:
		return cell(c.debit, ColumnDebit)
	case amountCreditOnly:
		return cell(c.credit, ColumnCredit)
	default:
		return cell(c.amount, ColumnAmount)
	}
}

func optionalDecimal(cells []string, idx int, name string, line int) (decimal.NullDecimal, error) {
	if idx < 0 || cells[idx] == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := ParseAmount(cells[idx])
	if err != nil {
		return decimal.NullDecimal{}, &ValidationError{Kind: ErrInvalidAmount, Line: line, Column: name, Value: cells[idx]}
	}
	return decimal.NewNullDecimal(d), nil
}

// ForCompany keeps the rows whose company equals name exactly.
func (l *Ledger) ForCompany(name string) *Ledger {
	out := &Ledger{Columns: l.Columns}
	for _, r := range l.Rows {
		if r.Company == name {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Between keeps rows dated within [start, end], both inclusive.
func (l *Ledger) Between(start, end time.Time) (*Ledger, error) {
	start, end = models.TruncateDate(start), models.TruncateDate(end)
	if err := CheckRange(start, end); err != nil {
		return nil, err
	}
	out := &Ledger{Columns: l.Columns}
	for _, r := range l.Rows {
		d := r.Transaction.Date
		if !d.Before(start) && !d.After(end) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out, nil
}

// Filter selects one customer's rows within [start, end]. The range is
// checked before anything is filtered.
func (l *Ledger) Filter(customer string, start, end time.Time) (*Ledger, error) {
	if err := CheckRange(start, end); err != nil {
		return nil, err
	}
	return l.ForCompany(customer).Between(start, end)
}

// CheckRange fails with ErrInvalidRange when start is after end. Equal dates are fine.
func CheckRange(start, end time.Time) error {
	if models.TruncateDate(start).After(models.TruncateDate(end)) {
		return &ValidationError{Kind: ErrInvalidRange, Value: start.Format(models.DateLayout) + " > " + end.Format(models.DateLayout)}
	}
	return nil
}

// Span returns the first and last dates. Both are zero for an empty ledger.
func (l *Ledger) Span() (first, last time.Time) {
	if len(l.Rows) == 0 {
		return
	}
	return l.Rows[0].Transaction.Date, l.Rows[len(l.Rows)-1].Transaction.Date
}

// Transactions returns the canonical sequence in ledger order.
func (l *Ledger) Transactions() []models.Transaction {
	out := make([]models.Transaction, len(l.Rows))
	for i, r := range l.Rows {
		out[i] = r.Transaction
	}
	return out
}

// Cells returns the verbatim rows for export.
func (l *Ledger) Cells() [][]string {
	out := make([][]string, len(l.Rows))
	for i, r := range l.Rows {
		out[i] = r.Cells
	}
	return out
}
