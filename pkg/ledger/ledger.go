package ledger

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mcclellann/loanStatement/pkg/models"
	"github.com/mcclellann/loanStatement/pkg/store"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalid is wrapped by every rejected input.
	ErrInvalid = errors.New("invalid input")
	// ErrLoanClosed is returned when a transaction is recorded against a closed loan.
	ErrLoanClosed = errors.New("loan is closed")
)

// Company registration numbers look like 2019/123456/07.
var registrationPattern = regexp.MustCompile(`^\d{4}/\d{6}/\d{2}$`)

// Ledger handles the business logic for customers, loans and transactions.
type Ledger struct {
	storage  store.Storage
	validate *validator.Validate
	now      func() time.Time
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage) *Ledger {
	return &Ledger{
		storage:  s,
		validate: validator.New(),
		now:      time.Now,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// CreateCustomer registers a customer. Email and registration are optional
// but must be well formed when given.
func (l *Ledger) CreateCustomer(name, email, address, registration string) (*models.Customer, error) {
	customer := &models.Customer{
		ID:                  uuid.New(),
		Name:                strings.TrimSpace(name),
		Email:               strings.TrimSpace(email),
		Address:             strings.TrimSpace(address),
		CompanyRegistration: strings.TrimSpace(registration),
		CreatedAt:           l.now(),
	}
	if customer.Name == "" {
		return nil, invalid("customer name is required")
	}
	if err := l.validate.Var(customer.Email, "omitempty,email"); err != nil {
		return nil, invalid("email %q is not valid", customer.Email)
	}
	if customer.CompanyRegistration != "" && !registrationPattern.MatchString(customer.CompanyRegistration) {
		return nil, invalid("company registration %q must be yyyy/######/##", customer.CompanyRegistration)
	}

	if err := l.storage.CreateCustomer(customer); err != nil {
		return nil, fmt.Errorf("failed to store customer: %w", err)
	}
	return customer, nil
}

// GetCustomer retrieves a customer by its ID.
func (l *Ledger) GetCustomer(id uuid.UUID) (*models.Customer, error) {
	return l.storage.GetCustomer(id)
}

// ListCustomers retrieves all customers.
func (l *Ledger) ListCustomers() ([]*models.Customer, error) {
	return l.storage.GetAllCustomers()
}

// LoanRequest holds the operator's input for a new loan. Null rate and fee
// fall back to the defaults; a zero loan date means today.
type LoanRequest struct {
	CustomerID         uuid.UUID
	AccountNumber      string
	LoanAmount         decimal.Decimal
	LoanDate           time.Time
	InterestRate       decimal.NullDecimal
	AdminFee           decimal.NullDecimal
	PaymentFrequency   string
	Collateral         string
	DisbursementMethod string
}

// CreateLoan stores a loan together with its three standard transactions:
// the disbursal, the finance charge and the admin fee, all dated at the loan date.
func (l *Ledger) CreateLoan(req LoanRequest) (*models.Loan, error) {
	if _, err := l.storage.GetCustomer(req.CustomerID); err != nil {
		return nil, err
	}

	now := l.now()
	loan := &models.Loan{
		ID:                 uuid.New(),
		CustomerID:         req.CustomerID,
		AccountNumber:      strings.TrimSpace(req.AccountNumber),
		LoanAmount:         req.LoanAmount,
		LoanDate:           models.TruncateDate(req.LoanDate),
		InterestRate:       models.DefaultInterestRate,
		AdminFee:           models.DefaultAdminFee,
		Status:             models.LoanStatusActive,
		PaymentFrequency:   req.PaymentFrequency,
		Collateral:         req.Collateral,
		DisbursementMethod: req.DisbursementMethod,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.LoanDate.IsZero() {
		loan.LoanDate = models.TruncateDate(now)
	}
	if req.InterestRate.Valid {
		loan.InterestRate = req.InterestRate.Decimal
	}
	if req.AdminFee.Valid {
		loan.AdminFee = req.AdminFee.Decimal
	}
	if loan.DisbursementMethod == "" {
		loan.DisbursementMethod = models.PaymentMethodBankTransfer
	}
	loan.DueDate = loan.LoanDate.AddDate(0, 0, models.DueDateOffset)
	if err := checkLoan(loan); err != nil {
		return nil, err
	}

	if err := l.storage.CreateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	standard := []struct {
		description string
		amount      decimal.Decimal
		kind        models.TransactionType
	}{
		{"Loan Disbursed", loan.LoanAmount, models.TransactionTypeDisbursal},
		{"Finance Charge", loan.FinanceCharge(), models.TransactionTypeFinanceCharge},
		{"Admin Fee", loan.AdminFee, models.TransactionTypeFee},
	}
	transactions := make([]*models.Transaction, len(standard))
	for i, s := range standard {
		transactions[i] = &models.Transaction{
			ID:            uuid.New(),
			LoanID:        loan.ID,
			Date:          loan.LoanDate,
			Description:   s.description,
			Amount:        s.amount,
			Type:          s.kind,
			PaymentMethod: models.PaymentMethodBankTransfer,
		}
	}
	if err := l.storage.CreateTransactions(transactions); err != nil {
		if delErr := l.storage.DeleteLoan(loan.ID); delErr != nil {
			log.Printf("Error removing loan %s after failed standard transactions: %v", loan.ID, delErr)
		}
		return nil, fmt.Errorf("failed to store standard transactions: %w", err)
	}

	log.Printf("Created loan %s (%s) for customer %s: amount %s, due %s",
		loan.ID, loan.AccountNumber, loan.CustomerID, loan.LoanAmount.StringFixed(2), loan.DueDate.Format(models.DateLayout))
	return loan, nil
}

func checkLoan(loan *models.Loan) error {
	switch {
	case loan.AccountNumber == "":
		return invalid("account number is required")
	case !loan.LoanAmount.IsPositive():
		return invalid("loan amount must be positive, got %s", loan.LoanAmount)
	case loan.InterestRate.IsNegative():
		return invalid("interest rate must not be negative, got %s", loan.InterestRate)
	case loan.AdminFee.IsNegative():
		return invalid("admin fee must not be negative, got %s", loan.AdminFee)
	case !validPaymentMethod(loan.DisbursementMethod):
		return invalid("unknown disbursement method %q", loan.DisbursementMethod)
	case loan.Status != models.LoanStatusActive && loan.Status != models.LoanStatusClosed:
		return invalid("unknown loan status %q", loan.Status)
	}
	return nil
}

func validPaymentMethod(m string) bool {
	switch m {
	case models.PaymentMethodBankTransfer, models.PaymentMethodCash, models.PaymentMethodCheque:
		return true
	}
	return false
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(id uuid.UUID) (*models.Loan, error) {
	return l.storage.GetLoan(id)
}

// ListLoans retrieves the loans of one customer.
func (l *Ledger) ListLoans(customerID uuid.UUID) ([]*models.Loan, error) {
	if _, err := l.storage.GetCustomer(customerID); err != nil {
		return nil, err
	}
	return l.storage.GetLoansForCustomer(customerID)
}

// UpdateLoan updates an existing loan. A zero due date is derived again
// from the loan date.
func (l *Ledger) UpdateLoan(loan *models.Loan) error {
	loan.LoanDate = models.TruncateDate(loan.LoanDate)
	if loan.DueDate.IsZero() {
		loan.DueDate = loan.LoanDate.AddDate(0, 0, models.DueDateOffset)
	}
	if err := checkLoan(loan); err != nil {
		return err
	}
	loan.UpdatedAt = l.now()
	return l.storage.UpdateLoan(loan)
}

// DeleteLoan deletes a loan and its transactions.
func (l *Ledger) DeleteLoan(id uuid.UUID) error {
	return l.storage.DeleteLoan(id)
}

// TransactionRequest is a transaction entered by the operator. Amount is
// signed: negative for payments. A zero date means today.
type TransactionRequest struct {
	Date          time.Time
	Description   string
	Amount        decimal.Decimal
	Type          models.TransactionType
	PaymentMethod string
}

func checkTransaction(t *models.Transaction) error {
	if !t.Type.Valid() {
		return invalid("unknown transaction type %q", t.Type)
	}
	if t.PaymentMethod != "" && !validPaymentMethod(t.PaymentMethod) {
		return invalid("unknown payment method %q", t.PaymentMethod)
	}
	return nil
}

// RecordTransaction adds a transaction to an active loan and closes the loan
// once nothing is outstanding.
func (l *Ledger) RecordTransaction(loanID uuid.UUID, req TransactionRequest) (*models.Transaction, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status == models.LoanStatusClosed {
		return nil, fmt.Errorf("cannot record transaction on loan %s: %w", loanID, ErrLoanClosed)
	}

	t := &models.Transaction{
		ID:            uuid.New(),
		LoanID:        loanID,
		Date:          models.TruncateDate(req.Date),
		Description:   strings.TrimSpace(req.Description),
		Amount:        req.Amount,
		Type:          req.Type,
		PaymentMethod: req.PaymentMethod,
	}
	if req.Date.IsZero() {
		t.Date = models.TruncateDate(l.now())
	}
	if err := checkTransaction(t); err != nil {
		return nil, err
	}

	if err := l.storage.CreateTransaction(t); err != nil {
		return nil, fmt.Errorf("failed to store transaction: %w", err)
	}
	if err := l.refreshStatus(loan); err != nil {
		return nil, err
	}
	return t, nil
}

// Transactions returns a loan's transactions in insertion order.
func (l *Ledger) Transactions(loanID uuid.UUID) ([]*models.Transaction, error) {
	if _, err := l.storage.GetLoan(loanID); err != nil {
		return nil, err
	}
	return l.storage.GetTransactionsForLoan(loanID)
}

// GetTransaction retrieves a transaction by its ID.
func (l *Ledger) GetTransaction(id uuid.UUID) (*models.Transaction, error) {
	return l.storage.GetTransaction(id)
}

// UpdateTransaction rewrites a transaction. The loan it belongs to cannot change.
func (l *Ledger) UpdateTransaction(t *models.Transaction) error {
	existing, err := l.storage.GetTransaction(t.ID)
	if err != nil {
		return err
	}
	t.LoanID = existing.LoanID
	t.Date = models.TruncateDate(t.Date)
	if err := checkTransaction(t); err != nil {
		return err
	}
	if err := l.storage.UpdateTransaction(t); err != nil {
		return err
	}
	return l.refreshLoan(t.LoanID)
}

// DeleteTransaction removes a transaction.
func (l *Ledger) DeleteTransaction(id uuid.UUID) error {
	existing, err := l.storage.GetTransaction(id)
	if err != nil {
		return err
	}
	if err := l.storage.DeleteTransaction(id); err != nil {
		return err
	}
	return l.refreshLoan(existing.LoanID)
}

// SearchTransactions finds a loan's transactions whose description contains
// term, ignoring case.
func (l *Ledger) SearchTransactions(loanID uuid.UUID, term string) ([]*models.Transaction, error) {
	if _, err := l.storage.GetLoan(loanID); err != nil {
		return nil, err
	}
	return l.storage.SearchTransactions(loanID, strings.TrimSpace(term))
}

// Outstanding is the sum of every transaction on the loan.
func (l *Ledger) Outstanding(loanID uuid.UUID) (decimal.Decimal, error) {
	transactions, err := l.storage.GetTransactionsForLoan(loanID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, t := range transactions {
		total = total.Add(t.Amount)
	}
	return total, nil
}

func (l *Ledger) refreshLoan(loanID uuid.UUID) error {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return err
	}
	return l.refreshStatus(loan)
}

// refreshStatus closes a loan with nothing outstanding and reopens a closed
// loan whose balance became positive again after an edit.
func (l *Ledger) refreshStatus(loan *models.Loan) error {
	outstanding, err := l.Outstanding(loan.ID)
	if err != nil {
		return err
	}
	status := models.LoanStatusActive
	if outstanding.LessThanOrEqual(decimal.Zero) {
		status = models.LoanStatusClosed
	}
	if status == loan.Status {
		return nil
	}

	loan.Status = status
	loan.UpdatedAt = l.now()
	if err := l.storage.UpdateLoan(loan); err != nil {
		return fmt.Errorf("failed to update loan status: %w", err)
	}
	log.Printf("Loan %s is now %s (outstanding %s)", loan.ID, status, outstanding.StringFixed(2))
	return nil
}
