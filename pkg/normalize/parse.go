package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mcclellann/loanStatement/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02 15:04:05",
	"1/2/2006", // month first
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"2/1/2006", // day first, reached when the first part exceeds 12
	"2/1/2006 15:04:05",
	"2-1-2006",
	"2 Jan 2006",
	"2-Jan-2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// Excel serials accepted as dates: 1900-01-01 to 9999-12-31.
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465
)

// ParseDate reads a calendar date from a spreadsheet cell. Spreadsheet
// serial numbers are accepted too. The time of day is dropped.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.TruncateDate(t), true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= minExcelSerial && f <= maxExcelSerial {
		// Noon of the serial's day keeps float error away from midnight.
		t, err := excelize.ExcelDateToTime(math.Floor(f)+0.5, false)
		if err == nil {
			return models.TruncateDate(t), true
		}
	}
	return time.Time{}, false
}

// Comma forms: grouped thousands ("1,234.50") or a decimal comma with at
// most two decimals ("12345,60").
var (
	groupedAmount = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)
	decimalComma  = regexp.MustCompile(`^[+-]?\d+,\d{1,2}$`)
)

// ParseAmount reads a money cell. Blank and "-" are zero; thousands
// separators, decimal commas, currency marks and accounting parentheses are
// accepted. Any other use of a comma is ambiguous and rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return decimal.Zero, nil
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer(" ", "", "\u00a0", "", "R", "", "$", "", "%", "").Replace(s)
	if strings.Contains(s, ",") {
		switch {
		case decimalComma.MatchString(s):
			s = strings.Replace(s, ",", ".", 1)
		case groupedAmount.MatchString(s):
			s = strings.ReplaceAll(s, ",", "")
		default:
			return decimal.Zero, fmt.Errorf("ambiguous separators in %q", s)
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}
