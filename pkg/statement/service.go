package statement

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanStatement/pkg/ingest"
	"github.com/mcclellann/loanStatement/pkg/models"
	"github.com/mcclellann/loanStatement/pkg/normalize"
	"github.com/mcclellann/loanStatement/pkg/store"
	"github.com/shopspring/decimal"
)

// Column names of the spreadsheet export for stored loans.
var storedColumns = []string{"transaction_id", "loan_id", "date", "description", "amount", "transaction_type", "payment_method"}

// Period bounds a statement. A zero From or To leaves that side open.
type Period struct {
	From time.Time
	To   time.Time
}

// Artifacts are the two files produced for one statement.
type Artifacts struct {
	Statement       *Document
	SpreadsheetName string
	Spreadsheet     []byte
}

// Upload is an uploaded ledger plus the operator's selection.
type Upload struct {
	Filename      string
	Data          []byte
	Schema        normalize.Schema
	Customer      string
	AccountNumber string
	Period        Period // zero sides default to the ledger's first and last date
}

// Service builds statements from stored loans or uploaded ledgers.
type Service struct {
	storage   store.Storage
	renderer  *Renderer
	outputDir string
	Logger    *log.Logger
}

func NewService(s store.Storage, r *Renderer, outputDir string) *Service {
	return &Service{storage: s, renderer: r, outputDir: outputDir, Logger: log.Default()}
}

// ForLoan renders the statement of a stored loan. Transactions before
// p.From are carried into the opening balance.
func (s *Service) ForLoan(loanID uuid.UUID, p Period) (*Artifacts, error) {
	if !p.From.IsZero() && !p.To.IsZero() {
		if err := normalize.CheckRange(p.From, p.To); err != nil {
			return nil, err
		}
	}
	loan, err := s.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	customer, err := s.storage.GetCustomer(loan.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load owner of loan %s: %w", loanID, err)
	}
	stored, err := s.storage.GetTransactionsForLoan(loanID)
	if err != nil {
		return nil, err
	}

	opening := decimal.Zero
	var window []models.Transaction
	for _, t := range stored {
		switch {
		case !p.From.IsZero() && t.Date.Before(models.TruncateDate(p.From)):
			opening = opening.Add(t.Amount)
		case !p.To.IsZero() && t.Date.After(models.TruncateDate(p.To)):
		default:
			window = append(window, *t)
		}
	}

	doc, err := s.renderer.Render(Request{
		CustomerName:   customer.Name,
		AccountNumber:  loan.AccountNumber,
		Transactions:   window,
		OpeningBalance: opening,
		Loan:           LoanDetails{LoanAmount: loan.LoanAmount, LoanDate: loan.LoanDate, DueDate: loan.DueDate},
	})
	if err != nil {
		return nil, err
	}

	sheet := Sheet{Columns: storedColumns}
	for _, line := range doc.Lines {
		t := line.Transaction
		sheet.Rows = append(sheet.Rows, []any{
			t.ID.String(), t.LoanID.String(), t.Date, t.Description,
			t.Amount.InexactFloat64(), string(t.Type), t.PaymentMethod,
		})
	}
	return s.finish(customer.Name, doc, sheet)
}

// FromUpload validates an uploaded ledger and renders one customer's
// statement from it. Any data error rejects the upload before rendering.
func (s *Service) FromUpload(u Upload) (*Artifacts, error) {
	table, err := ingest.Read(u.Filename, u.Data)
	if err != nil {
		return nil, err
	}
	ledger, err := normalize.Normalize(table, u.Schema)
	if err != nil {
		return nil, err
	}

	from, to := u.Period.From, u.Period.To
	first, last := ledger.Span()
	if from.IsZero() {
		from = first
	}
	if to.IsZero() {
		to = last
	}
	if err := normalize.CheckRange(from, to); err != nil {
		return nil, err
	}

	rows := ledger.ForCompany(u.Customer)
	if len(rows.Rows) == 0 {
		return nil, &normalize.ValidationError{Kind: normalize.ErrUnknownCustomer, Column: normalize.ColumnCompany, Value: u.Customer}
	}
	window, err := rows.Between(from, to)
	if err != nil {
		return nil, err
	}
	meta := rows.LoanMetadata()

	doc, err := s.renderer.Render(Request{
		CustomerName:   u.Customer,
		AccountNumber:  u.AccountNumber,
		Transactions:   window.Transactions(),
		OpeningBalance: uploadOpening(rows, meta, from),
		Loan:           LoanDetails{LoanAmount: meta.LoanAmount, LoanDate: meta.LoanDate},
	})
	if err != nil {
		return nil, err
	}

	sheet := Sheet{Columns: window.Columns}
	for _, r := range window.Rows {
		cells := make([]any, len(r.Cells))
		for j, cell := range r.Cells {
			cells[j] = exportCell(window.Columns[j], cell, r.Transaction.Date)
		}
		sheet.Rows = append(sheet.Rows, cells)
	}
	return s.finish(u.Customer, doc, sheet)
}

// exportCell keeps upload cells as text except dates and money columns,
// which are written as typed values so they sort and sum in the workbook.
func exportCell(column, cell string, date time.Time) any {
	switch column {
	case normalize.ColumnDate:
		return date
	case normalize.ColumnAmount, normalize.ColumnDebit, normalize.ColumnCredit,
		normalize.ColumnRate, normalize.ColumnFees:
		if strings.TrimSpace(cell) == "" {
			return cell
		}
		if d, err := normalize.ParseAmount(cell); err == nil {
			return d.InexactFloat64()
		}
	}
	return cell
}

// uploadOpening is the balance carried into the first row. Rows before the
// window are carried forward. Unless the "Loan Amount" row itself is shown,
// the loan's derived starting amount is added as well.
func uploadOpening(rows *normalize.Ledger, meta normalize.LoanMetadata, from time.Time) decimal.Decimal {
	opening := decimal.Zero
	loanShown := false
	for _, r := range rows.Rows {
		if r.Line == meta.LoanLine && meta.LoanLine != 0 {
			loanShown = !r.Transaction.Date.Before(from)
			continue
		}
		if r.Transaction.Date.Before(from) {
			opening = opening.Add(r.Transaction.Amount)
		}
	}
	if !loanShown {
		opening = opening.Add(meta.OpeningBalance())
	}
	return opening
}

func (s *Service) finish(customer string, doc *Document, sheet Sheet) (*Artifacts, error) {
	xlsx, err := WriteSpreadsheet(sheet)
	if err != nil {
		return nil, err
	}
	s.Logger.Printf("Generated %s: %d rows over %d page(s), outstanding %s",
		doc.Filename, len(doc.Lines), doc.Pages, FormatCurrency(doc.Closing))
	return &Artifacts{
		Statement:       doc,
		SpreadsheetName: SpreadsheetFilename(customer),
		Spreadsheet:     xlsx,
	}, nil
}

// Save writes both files to the output directory. Each file is written to a
// temporary name first so a failure never leaves a partial statement behind.
func (s *Service) Save(a *Artifacts) ([]string, error) {
	if s.outputDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	var paths []string
	for _, f := range []struct {
		name string
		data []byte
	}{
		{a.Statement.Filename, a.Statement.PDF},
		{a.SpreadsheetName, a.Spreadsheet},
	} {
		path, err := writeFileAtomic(s.outputDir, f.name, f.data)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFileAtomic(dir, name string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return path, nil
}
