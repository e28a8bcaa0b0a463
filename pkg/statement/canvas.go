package statement

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
)

type Align string

const (
	AlignLeft   Align = "L"
	AlignCenter Align = "C"
	AlignRight  Align = "R"
)

type CellOptions struct {
	Border  bool
	Fill    bool
	Align   Align
	NewLine bool // move to the start of the next line after the cell
}

// Canvas is the page layout backend the renderer drives. Positions are in
// millimetres from the top-left corner; pages break automatically.
type Canvas interface {
	SetDocumentInfo(title, author string)
	SetHeaderFunc(fn func())
	SetFooterFunc(fn func())
	AddPage()
	PageNo() int
	PageCount() int

	SetFont(family, style string, size float64)
	SetFillColor(r, g, b int)
	SetDrawColor(r, g, b int)
	SetLineWidth(w float64)
	SetAlpha(alpha float64)

	Cell(w, h float64, text string, opts CellOptions)
	MultiCell(w, h float64, text string)
	Ln(h float64)
	GetY() float64
	SetX(x float64)
	SetY(y float64)
	SetXY(x, y float64)
	Line(x1, y1, x2, y2 float64)
	Image(path string, x, y, w, h float64) error

	Output(w io.Writer) error
}

// PDFCanvas is the Canvas backed by fpdf, A4 portrait with core fonts.
type PDFCanvas struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

// NewPDFCanvas returns an A4 canvas with a 15mm automatic page break margin.
func NewPDFCanvas() *PDFCanvas {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	return &PDFCanvas{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
}

func (c *PDFCanvas) SetDocumentInfo(title, author string) {
	c.pdf.SetTitle(title, true)
	c.pdf.SetAuthor(author, true)
	c.pdf.SetCreator(author, true)
}

func (c *PDFCanvas) SetHeaderFunc(fn func()) { c.pdf.SetHeaderFunc(fn) }
func (c *PDFCanvas) SetFooterFunc(fn func()) { c.pdf.SetFooterFunc(fn) }
func (c *PDFCanvas) AddPage()                { c.pdf.AddPage() }
func (c *PDFCanvas) PageNo() int             { return c.pdf.PageNo() }
func (c *PDFCanvas) PageCount() int          { return c.pdf.PageCount() }

func (c *PDFCanvas) SetFont(family, style string, size float64) { c.pdf.SetFont(family, style, size) }
func (c *PDFCanvas) SetFillColor(r, g, b int)                   { c.pdf.SetFillColor(r, g, b) }
func (c *PDFCanvas) SetDrawColor(r, g, b int)                   { c.pdf.SetDrawColor(r, g, b) }
func (c *PDFCanvas) SetLineWidth(w float64)                     { c.pdf.SetLineWidth(w) }
func (c *PDFCanvas) SetAlpha(alpha float64)                     { c.pdf.SetAlpha(alpha, "Normal") }

func (c *PDFCanvas) Cell(w, h float64, text string, opts CellOptions) {
	border := ""
	if opts.Border {
		border = "1"
	}
	ln := 0
	if opts.NewLine {
		ln = 1
	}
	c.pdf.CellFormat(w, h, c.tr(text), border, ln, string(opts.Align), opts.Fill, 0, "")
}

func (c *PDFCanvas) MultiCell(w, h float64, text string) {
	c.pdf.MultiCell(w, h, c.tr(text), "", "L", false)
}

func (c *PDFCanvas) Ln(h float64)                { c.pdf.Ln(h) }
func (c *PDFCanvas) GetY() float64               { return c.pdf.GetY() }
func (c *PDFCanvas) SetX(x float64)              { c.pdf.SetX(x) }
func (c *PDFCanvas) SetY(y float64)              { c.pdf.SetY(y) }
func (c *PDFCanvas) SetXY(x, y float64)          { c.pdf.SetXY(x, y) }
func (c *PDFCanvas) Line(x1, y1, x2, y2 float64) { c.pdf.Line(x1, y1, x2, y2) }

// Image places a PNG, JPEG or GIF file. A failure leaves the document usable.
func (c *PDFCanvas) Image(path string, x, y, w, h float64) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	opts := fpdf.ImageOptions{ImageType: imageType(path, data)}
	c.pdf.RegisterImageOptionsReader(path, opts, bytes.NewReader(data))
	if err := c.takeError(); err != nil {
		return err
	}
	c.pdf.ImageOptions(path, x, y, w, h, false, opts, 0, "")
	return c.takeError()
}

// takeError returns and clears the fpdf error so later drawing still works.
func (c *PDFCanvas) takeError() error {
	if !c.pdf.Err() {
		return nil
	}
	err := c.pdf.Error()
	c.pdf.ClearError()
	return err
}

func (c *PDFCanvas) Output(w io.Writer) error {
	return c.pdf.Output(w)
}

func imageType(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "PNG"
	case ".jpg", ".jpeg":
		return "JPG"
	case ".gif":
		return "GIF"
	}
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return "JPG"
	case "image/gif":
		return "GIF"
	}
	return "PNG"
}
