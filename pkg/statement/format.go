package statement

import (
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	currencySuffix   = "R"
	descriptionWidth = 32 // characters shown in the Description column
)

// Grouped output uses "," and "." and is then rewritten to " " and ",".
var currencyReplacer = strings.NewReplacer(",", " ", ".", ",")

// FormatCurrency renders an amount as "12 345,60R".
func FormatCurrency(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	return currencyReplacer.Replace(sign+groupThousands(intPart)+"."+frac) + currencySuffix
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// truncate cuts s to n characters.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var unsafeName = strings.NewReplacer("/", "_", `\`, "_")

// PDFFilename is Statement_<customer, spaces as underscores>[_<account>].pdf.
func PDFFilename(customer, accountNumber string) string {
	name := "Statement_" + strings.ReplaceAll(customer, " ", "_")
	if accountNumber != "" {
		name += "_" + accountNumber
	}
	return filepath.Base(unsafeName.Replace(name + ".pdf"))
}

// SpreadsheetFilename is Statement_<customer>.xlsx; the name is kept as typed.
func SpreadsheetFilename(customer string) string {
	return filepath.Base(unsafeName.Replace("Statement_" + customer + ".xlsx"))
}
