package normalize

import (
	"errors"
	"fmt"
	"strings"
)

// Batch errors. Any of them rejects the whole upload.
var (
	ErrSchema              = errors.New("required columns missing")
	ErrMissingAmountColumn = errors.New("no Debit, Credit or Amount column")
	ErrNoRows              = errors.New("no rows with both Date and Company")
	ErrUnknownCustomer     = errors.New("no rows for customer")
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidRange        = errors.New("start date is after end date")
)

// ValidationError describes why a batch was rejected. Kind is one of the
// sentinels above and is what errors.Is matches.
type ValidationError struct {
	Kind   error
	Line   int // source line, header is line 1
	Column string
	Value  string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d", e.Line)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " in column %s", e.Column)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, ": %q", e.Value)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}
