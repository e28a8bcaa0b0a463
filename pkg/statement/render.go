// Package statement computes running balances for a loan's transactions and
// lays them out as a paginated PDF statement with a spreadsheet companion.
package statement

import (
	"bytes"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/mcclellann/loanStatement/pkg/models"
	"github.com/shopspring/decimal"
)

const (
	statementDateLayout = "2006/01/02"
	watermarkAlpha      = 0.15
)

// Branding is the static text printed on every statement.
type Branding struct {
	CompanyName string
	Address     string
	Phone       string
	Email       string
	PageTitle   string
	Disclaimer  string
	BankName    string
	BankAccount string
	BranchCode  string
}

// Assets are optional image files. Empty paths are skipped.
type Assets struct {
	Logo        string
	Watermark   string
	AddressIcon string
	PhoneIcon   string
	EmailIcon   string
}

// ImageLoadError reports an image that could not be embedded. Rendering
// carries on without it.
type ImageLoadError struct {
	Role string
	Path string
	Err  error
}

func (e *ImageLoadError) Error() string {
	return fmt.Sprintf("%s image %s could not be loaded: %v", e.Role, e.Path, e.Err)
}

func (e *ImageLoadError) Unwrap() error { return e.Err }

// LoanDetails is the loan information printed in the statement header.
// Zero dates are left out.
type LoanDetails struct {
	LoanAmount decimal.Decimal
	LoanDate   time.Time
	DueDate    time.Time
}

// Request is everything one statement needs.
type Request struct {
	CustomerName   string
	AccountNumber  string
	Transactions   []models.Transaction
	OpeningBalance decimal.Decimal
	Loan           LoanDetails
}

// Line is one table row with its display buckets.
type Line struct {
	Transaction models.Transaction
	Charge      decimal.Decimal
	Credit      decimal.Decimal
	Balance     decimal.Decimal
}

// Document is a rendered statement held in memory.
type Document struct {
	Filename string
	Lines    []Line
	Closing  decimal.Decimal
	Pages    int
	Warnings []string
	PDF      []byte
}

// Compute sorts a copy of txs by date, keeping input order for equal dates,
// and returns each row's running balance starting from opening.
func Compute(opening decimal.Decimal, txs []models.Transaction) ([]Line, decimal.Decimal) {
	sorted := append([]models.Transaction(nil), txs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	lines := make([]Line, len(sorted))
	balance := opening
	for i, t := range sorted {
		line := Line{Transaction: t, Charge: decimal.Zero, Credit: decimal.Zero}
		if t.Amount.IsPositive() {
			line.Charge = t.Amount
		} else if t.Amount.IsNegative() {
			line.Credit = t.Amount.Neg()
		}
		balance = balance.Add(t.Amount)
		line.Balance = balance
		lines[i] = line
	}
	return lines, balance
}

// Renderer lays statements out on a Canvas.
type Renderer struct {
	Branding  Branding
	Assets    Assets
	Logger    *log.Logger
	Now       func() time.Time
	NewCanvas func() Canvas
}

// NewRenderer returns a Renderer that draws PDFs with fpdf.
func NewRenderer(b Branding, a Assets) *Renderer {
	return &Renderer{
		Branding:  b,
		Assets:    a,
		Logger:    log.Default(),
		Now:       time.Now,
		NewCanvas: func() Canvas { return NewPDFCanvas() },
	}
}

// Table column widths in mm; the summary label spans the first four.
var (
	colWidths    = [5]float64{30, 65, 30, 30, 35}
	summaryLabel = colWidths[0] + colWidths[1] + colWidths[2] + colWidths[3]
)

// Render draws the whole statement and returns it buffered in memory.
func (r *Renderer) Render(req Request) (*Document, error) {
	lines, closing := Compute(req.OpeningBalance, req.Transactions)
	doc := &Document{
		Filename: PDFFilename(req.CustomerName, req.AccountNumber),
		Lines:    lines,
		Closing:  closing,
	}

	c := r.NewCanvas()
	c.SetDocumentInfo("Statement of Account - "+req.CustomerName, r.Branding.CompanyName)
	c.SetHeaderFunc(func() {
		c.SetFont("Helvetica", "B", 12)
		c.Cell(200, 10, r.Branding.PageTitle, CellOptions{Align: AlignCenter, NewLine: true})
	})
	c.SetFooterFunc(func() {
		c.SetY(-15)
		c.SetFont("Helvetica", "I", 8)
		c.Cell(0, 10, fmt.Sprintf("Page %d", c.PageNo()), CellOptions{Align: AlignCenter})
	})
	c.AddPage()

	r.drawHeader(c, doc, req)
	r.drawContactBlock(c)
	r.drawWatermark(c, doc)
	r.drawTitle(c, req)
	drawTableHeader(c)
	for _, line := range lines {
		drawRow(c, line)
	}
	drawSummary(c, closing)
	r.drawNotes(c)
	r.drawPaymentInstructions(c)

	var buf bytes.Buffer
	if err := c.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write statement for %s: %w", req.CustomerName, err)
	}
	doc.PDF = buf.Bytes()
	doc.Pages = c.PageCount()
	return doc, nil
}

func (r *Renderer) placeImage(c Canvas, doc *Document, role, path string, x, y, w, h float64) {
	if path == "" {
		return
	}
	if err := c.Image(path, x, y, w, h); err != nil {
		imgErr := &ImageLoadError{Role: role, Path: path, Err: err}
		r.Logger.Printf("Warning: %v", imgErr)
		doc.Warnings = append(doc.Warnings, imgErr.Error())
	}
}

func (r *Renderer) drawHeader(c Canvas, doc *Document, req Request) {
	r.placeImage(c, doc, "logo", r.Assets.Logo, 10, 8, 50, 15)

	c.SetFont("Helvetica", "", 10)
	c.Cell(0, 5, "Account Number: "+req.AccountNumber, CellOptions{Align: AlignRight, NewLine: true})
	c.Cell(0, 5, "Statement Date: "+r.Now().Format(statementDateLayout), CellOptions{Align: AlignRight, NewLine: true})
	if !req.Loan.LoanDate.IsZero() {
		c.Cell(0, 5, "Loan Date: "+req.Loan.LoanDate.Format(statementDateLayout), CellOptions{Align: AlignRight, NewLine: true})
	}
	if !req.Loan.DueDate.IsZero() {
		c.Cell(0, 5, "Due Date: "+req.Loan.DueDate.Format(statementDateLayout), CellOptions{Align: AlignRight, NewLine: true})
	}
	c.Ln(12)
}

func (r *Renderer) drawContactBlock(c Canvas) {
	const (
		iconX  = 10.0
		iconW  = 5.0
		labelX = 20.0
		lineH  = 6.0
	)
	contacts := []struct{ role, icon, text string }{
		{"address", r.Assets.AddressIcon, r.Branding.Address},
		{"phone", r.Assets.PhoneIcon, r.Branding.Phone},
		{"email", r.Assets.EmailIcon, r.Branding.Email},
	}
	c.SetFont("Helvetica", "", 10)
	for _, contact := range contacts {
		if contact.text == "" {
			continue
		}
		y := c.GetY()
		// Icons are decoration: logged, but not reported as statement warnings.
		if contact.icon != "" {
			if err := c.Image(contact.icon, iconX, y, iconW, 0); err != nil {
				r.Logger.Printf("Skipping %s icon: %v", contact.role, err)
			}
		}
		c.SetXY(labelX, y)
		c.Cell(0, lineH, contact.text, CellOptions{NewLine: true})
	}
	c.Ln(10)
}

func (r *Renderer) drawWatermark(c Canvas, doc *Document) {
	if r.Assets.Watermark == "" {
		return
	}
	c.SetAlpha(watermarkAlpha)
	r.placeImage(c, doc, "watermark", r.Assets.Watermark, 30, 60, 150, 150)
	c.SetAlpha(1)
}

func (r *Renderer) drawTitle(c Canvas, req Request) {
	c.SetFont("Helvetica", "B", 16)
	c.Cell(200, 12, "STATEMENT OF ACCOUNT", CellOptions{Align: AlignCenter, NewLine: true})

	// Orange separator
	c.SetDrawColor(204, 85, 0)
	c.SetLineWidth(1.0)
	y := c.GetY()
	c.Line(10, y, 200, y)

	c.SetFont("Helvetica", "", 12)
	c.Cell(200, 10, req.CustomerName, CellOptions{Align: AlignCenter, NewLine: true})
	if !req.OpeningBalance.IsZero() {
		c.SetFont("Helvetica", "B", 10)
		text := "Opening Balance: " + FormatCurrency(req.OpeningBalance)
		if !req.Loan.LoanDate.IsZero() {
			text += " (loan of " + FormatCurrency(req.Loan.LoanAmount) + " on " + req.Loan.LoanDate.Format(statementDateLayout) + ")"
		}
		c.Cell(0, 8, text, CellOptions{NewLine: true})
	}
	c.Ln(10)
}

func drawTableHeader(c Canvas) {
	c.SetFont("Helvetica", "B", 11)
	c.SetFillColor(220, 220, 220)
	c.SetDrawColor(0, 0, 0)
	c.SetLineWidth(0.25)
	for i, title := range []string{"Date", "Description", "Charges", "Credits", "Balance"} {
		c.Cell(colWidths[i], 10, title, CellOptions{Border: true, Fill: true, Align: AlignCenter})
	}
	c.Ln(-1)
	c.SetFont("Helvetica", "", 10)
}

func drawRow(c Canvas, line Line) {
	c.Cell(colWidths[0], 8, line.Transaction.Date.Format(statementDateLayout), CellOptions{Border: true})
	c.Cell(colWidths[1], 8, truncate(line.Transaction.Description, descriptionWidth), CellOptions{Border: true})
	c.Cell(colWidths[2], 8, blankIfZero(line.Charge), CellOptions{Border: true, Align: AlignRight})
	c.Cell(colWidths[3], 8, blankIfZero(line.Credit), CellOptions{Border: true, Align: AlignRight})
	c.Cell(colWidths[4], 8, FormatCurrency(line.Balance), CellOptions{Border: true, Align: AlignRight})
	c.Ln(-1)
}

func blankIfZero(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return FormatCurrency(d)
}

func drawSummary(c Canvas, closing decimal.Decimal) {
	c.SetFont("Helvetica", "B", 10)
	c.SetFillColor(220, 220, 220)
	c.Cell(summaryLabel, 8, "Outstanding Balance", CellOptions{Border: true, Fill: true, Align: AlignRight})
	c.Cell(colWidths[4], 8, FormatCurrency(closing), CellOptions{Border: true, Fill: true, Align: AlignRight})
	c.Ln(10)
}

func (r *Renderer) drawNotes(c Canvas) {
	if r.Branding.Disclaimer == "" {
		return
	}
	c.SetFont("Helvetica", "I", 9)
	c.MultiCell(0, 5, r.Branding.Disclaimer)
}

func (r *Renderer) drawPaymentInstructions(c Canvas) {
	c.Ln(5)
	c.SetFont("Helvetica", "B", 10)
	c.Cell(0, 8, "Payment Instruction", CellOptions{NewLine: true})

	c.SetFont("Helvetica", "", 10)
	for _, text := range []string{
		"Bank: " + r.Branding.BankName,
		"Account number: " + r.Branding.BankAccount,
		"Branch number: " + r.Branding.BranchCode,
	} {
		c.SetX(15)
		c.Cell(0, 8, text, CellOptions{NewLine: true})
	}
}
