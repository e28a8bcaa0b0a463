package ledger

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanStatement/pkg/models"
	"github.com/mcclellann/loanStatement/pkg/store"
	"github.com/shopspring/decimal"
)

// MockStore is a simple in-memory implementation of the Storage interface for testing.
type MockStore struct {
	customers    map[uuid.UUID]*models.Customer
	loans        map[uuid.UUID]*models.Loan
	transactions []*models.Transaction
	failInserts  bool
}

func NewMockStore() *MockStore {
	return &MockStore{
		customers:    make(map[uuid.UUID]*models.Customer),
		loans:        make(map[uuid.UUID]*models.Loan),
		transactions: []*models.Transaction{},
	}
}

func (m *MockStore) CreateCustomer(c *models.Customer) error {
	m.customers[c.ID] = c
	return nil
}

func (m *MockStore) GetCustomer(id uuid.UUID) (*models.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer %w", store.ErrNotFound)
	}
	return c, nil
}

func (m *MockStore) GetAllCustomers() ([]*models.Customer, error) {
	customers := []*models.Customer{}
	for _, c := range m.customers {
		customers = append(customers, c)
	}
	return customers, nil
}

func (m *MockStore) CreateLoan(loan *models.Loan) error {
	m.loans[loan.ID] = loan
	return nil
}

func (m *MockStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	loan, ok := m.loans[id]
	if !ok {
		return nil, fmt.Errorf("loan %w", store.ErrNotFound)
	}
	return loan, nil
}

func (m *MockStore) GetLoansForCustomer(customerID uuid.UUID) ([]*models.Loan, error) {
	loans := []*models.Loan{}
	for _, l := range m.loans {
		if l.CustomerID == customerID {
			loans = append(loans, l)
		}
	}
	return loans, nil
}

func (m *MockStore) UpdateLoan(loan *models.Loan) error {
	if _, ok := m.loans[loan.ID]; !ok {
		return fmt.Errorf("loan %w", store.ErrNotFound)
	}
	m.loans[loan.ID] = loan
	return nil
}

func (m *MockStore) DeleteLoan(id uuid.UUID) error {
	if _, ok := m.loans[id]; !ok {
		return fmt.Errorf("loan %w", store.ErrNotFound)
	}
	delete(m.loans, id)
	kept := m.transactions[:0]
	for _, t := range m.transactions {
		if t.LoanID != id {
			kept = append(kept, t)
		}
	}
	m.transactions = kept
	return nil
}

func (m *MockStore) CreateTransactions(txs []*models.Transaction) error {
	if m.failInserts {
		return errors.New("disk full")
	}
	m.transactions = append(m.transactions, txs...)
	return nil
}

func (m *MockStore) CreateTransaction(tx *models.Transaction) error {
	return m.CreateTransactions([]*models.Transaction{tx})
}

func (m *MockStore) GetTransaction(id uuid.UUID) (*models.Transaction, error) {
	for _, t := range m.transactions {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("transaction %w", store.ErrNotFound)
}

func (m *MockStore) UpdateTransaction(tx *models.Transaction) error {
	for i, t := range m.transactions {
		if t.ID == tx.ID {
			m.transactions[i] = tx
			return nil
		}
	}
	return fmt.Errorf("transaction %w", store.ErrNotFound)
}

func (m *MockStore) DeleteTransaction(id uuid.UUID) error {
	for i, t := range m.transactions {
		if t.ID == id {
			m.transactions = append(m.transactions[:i], m.transactions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("transaction %w", store.ErrNotFound)
}

func (m *MockStore) GetTransactionsForLoan(loanID uuid.UUID) ([]*models.Transaction, error) {
	txs := []*models.Transaction{}
	for _, tx := range m.transactions {
		if tx.LoanID == loanID {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

func (m *MockStore) SearchTransactions(loanID uuid.UUID, term string) ([]*models.Transaction, error) {
	txs := []*models.Transaction{}
	for _, tx := range m.transactions {
		if tx.LoanID == loanID && strings.Contains(strings.ToLower(tx.Description), strings.ToLower(term)) {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

func (m *MockStore) Close() error {
	return nil
}

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func newTestLedger() (*Ledger, *MockStore) {
	s := NewMockStore()
	l := NewLedger(s)
	l.now = func() time.Time { return fixedNow }
	return l, s
}

func createLoan(t *testing.T, l *Ledger, amount string) *models.Loan {
	t.Helper()
	customer, err := l.CreateCustomer("Acme Trading", "", "", "")
	if err != nil {
		t.Fatalf("Failed to create customer: %v", err)
	}
	loan, err := l.CreateLoan(LoanRequest{
		CustomerID:    customer.ID,
		AccountNumber: "843222126",
		LoanAmount:    decimal.RequireFromString(amount),
		LoanDate:      time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}
	return loan
}

func TestCreateCustomer(t *testing.T) {
	l, s := newTestLedger()

	c, err := l.CreateCustomer(" Acme Trading ", "accounts@acme.test", "1 Main Road", "2019/123456/07")
	if err != nil {
		t.Fatalf("Failed to create customer: %v", err)
	}
	if c.Name != "Acme Trading" {
		t.Errorf("Expected trimmed name, got %q", c.Name)
	}
	if _, ok := s.customers[c.ID]; !ok {
		t.Error("Customer was not stored")
	}

	tests := []struct {
		name, email, registration string
	}{
		{"", "", ""},
		{"Acme", "not-an-email", ""},
		{"Acme", "", "2019-123456-07"},
		{"Acme", "", "19/123456/07"},
	}
	for _, tt := range tests {
		if _, err := l.CreateCustomer(tt.name, tt.email, "", tt.registration); !errors.Is(err, ErrInvalid) {
			t.Errorf("CreateCustomer(%q, %q, %q): expected ErrInvalid, got %v", tt.name, tt.email, tt.registration, err)
		}
	}
}

func TestCreateLoan(t *testing.T) {
	l, s := newTestLedger()
	loan := createLoan(t, l, "10000")

	if !loan.InterestRate.Equal(models.DefaultInterestRate) || !loan.AdminFee.Equal(models.DefaultAdminFee) {
		t.Errorf("Expected default rate and fee, got %s and %s", loan.InterestRate, loan.AdminFee)
	}
	if got := loan.DueDate.Format(models.DateLayout); got != "2024-02-19" {
		t.Errorf("Expected due date 2024-02-19, got %s", got)
	}
	if loan.Status != models.LoanStatusActive {
		t.Errorf("Expected status Active, got %s", loan.Status)
	}

	if len(s.transactions) != 3 {
		t.Fatalf("Expected 3 standard transactions, got %d", len(s.transactions))
	}
	want := []struct {
		description string
		amount      string
		kind        models.TransactionType
	}{
		{"Loan Disbursed", "10000", models.TransactionTypeDisbursal},
		{"Finance Charge", "23", models.TransactionTypeFinanceCharge},
		{"Admin Fee", "500", models.TransactionTypeFee},
	}
	for i, w := range want {
		tx := s.transactions[i]
		if tx.Description != w.description || tx.Type != w.kind {
			t.Errorf("Transaction %d: expected %s/%s, got %s/%s", i, w.description, w.kind, tx.Description, tx.Type)
		}
		if !tx.Amount.Equal(decimal.RequireFromString(w.amount)) {
			t.Errorf("Transaction %d: expected amount %s, got %s", i, w.amount, tx.Amount)
		}
		if !tx.Date.Equal(loan.LoanDate) {
			t.Errorf("Transaction %d: expected loan date, got %s", i, tx.Date)
		}
	}

	outstanding, err := l.Outstanding(loan.ID)
	if err != nil {
		t.Fatalf("Outstanding failed: %v", err)
	}
	if !outstanding.Equal(decimal.NewFromInt(10523)) {
		t.Errorf("Expected outstanding 10523, got %s", outstanding)
	}
}

func TestCreateLoanOverrides(t *testing.T) {
	l, _ := newTestLedger()
	customer, _ := l.CreateCustomer("Acme", "", "", "")

	loan, err := l.CreateLoan(LoanRequest{
		CustomerID:         customer.ID,
		AccountNumber:      "1",
		LoanAmount:         decimal.NewFromInt(2000),
		InterestRate:       decimal.NewNullDecimal(decimal.NewFromInt(5)),
		AdminFee:           decimal.NewNullDecimal(decimal.Zero),
		DisbursementMethod: models.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}
	if !loan.LoanDate.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected today as loan date, got %s", loan.LoanDate)
	}
	if !loan.FinanceCharge().Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected finance charge 100, got %s", loan.FinanceCharge())
	}
	if !loan.AdminFee.IsZero() {
		t.Errorf("Expected explicit zero fee to be kept, got %s", loan.AdminFee)
	}
}

func TestCreateLoanValidation(t *testing.T) {
	l, _ := newTestLedger()
	customer, _ := l.CreateCustomer("Acme", "", "", "")

	tests := []struct {
		name string
		req  LoanRequest
		want error
	}{
		{"unknown customer", LoanRequest{CustomerID: uuid.New(), AccountNumber: "1", LoanAmount: decimal.NewFromInt(1)}, store.ErrNotFound},
		{"no account", LoanRequest{CustomerID: customer.ID, LoanAmount: decimal.NewFromInt(1)}, ErrInvalid},
		{"zero amount", LoanRequest{CustomerID: customer.ID, AccountNumber: "1"}, ErrInvalid},
		{"negative rate", LoanRequest{CustomerID: customer.ID, AccountNumber: "1", LoanAmount: decimal.NewFromInt(1), InterestRate: decimal.NewNullDecimal(decimal.NewFromInt(-1))}, ErrInvalid},
		{"bad method", LoanRequest{CustomerID: customer.ID, AccountNumber: "1", LoanAmount: decimal.NewFromInt(1), DisbursementMethod: "Bitcoin"}, ErrInvalid},
	}
	for _, tt := range tests {
		if _, err := l.CreateLoan(tt.req); !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
}

func TestCreateLoanRollsBack(t *testing.T) {
	l, s := newTestLedger()
	customer, _ := l.CreateCustomer("Acme", "", "", "")
	s.failInserts = true

	_, err := l.CreateLoan(LoanRequest{CustomerID: customer.ID, AccountNumber: "1", LoanAmount: decimal.NewFromInt(1000)})
	if err == nil {
		t.Fatal("Expected an error when standard transactions fail")
	}
	if len(s.loans) != 0 {
		t.Errorf("Expected the loan to be removed, found %d", len(s.loans))
	}
}

func TestRecordTransaction(t *testing.T) {
	l, _ := newTestLedger()
	loan := createLoan(t, l, "1000")

	payment, err := l.RecordTransaction(loan.ID, TransactionRequest{
		Description:   "Repayment",
		Amount:        decimal.NewFromInt(-400),
		Type:          models.TransactionTypeRepayment,
		PaymentMethod: models.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("Failed to record payment: %v", err)
	}
	if !payment.Date.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected today's date, got %s", payment.Date)
	}

	expected := decimal.RequireFromString("1102.3") // 1000 + 2.3 + 500 - 400
	outstanding, _ := l.Outstanding(loan.ID)
	if !outstanding.Equal(expected) {
		t.Errorf("Expected outstanding %s, got %s", expected, outstanding)
	}
	if loan.Status != models.LoanStatusActive {
		t.Errorf("Expected status Active, got %s", loan.Status)
	}

	// Pay off the loan
	if _, err := l.RecordTransaction(loan.ID, TransactionRequest{Description: "Settlement", Amount: expected.Neg(), Type: models.TransactionTypeRepayment}); err != nil {
		t.Fatalf("Failed to record settlement: %v", err)
	}
	if loan.Status != models.LoanStatusClosed {
		t.Errorf("Expected status Closed, got %s", loan.Status)
	}

	_, err = l.RecordTransaction(loan.ID, TransactionRequest{Amount: decimal.NewFromInt(10), Type: models.TransactionTypePenalty})
	if !errors.Is(err, ErrLoanClosed) {
		t.Errorf("Expected ErrLoanClosed, got %v", err)
	}
}

func TestRecordTransactionValidation(t *testing.T) {
	l, _ := newTestLedger()
	loan := createLoan(t, l, "1000")

	if _, err := l.RecordTransaction(loan.ID, TransactionRequest{Type: "gift"}); !errors.Is(err, ErrInvalid) {
		t.Errorf("Expected ErrInvalid for unknown type, got %v", err)
	}
	if _, err := l.RecordTransaction(loan.ID, TransactionRequest{Type: models.TransactionTypeRepayment, PaymentMethod: "IOU"}); !errors.Is(err, ErrInvalid) {
		t.Errorf("Expected ErrInvalid for unknown method, got %v", err)
	}
	if _, err := l.RecordTransaction(uuid.New(), TransactionRequest{Type: models.TransactionTypeRepayment}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestEditTransactionsReopensLoan(t *testing.T) {
	l, s := newTestLedger()
	loan := createLoan(t, l, "1000")

	settlement, err := l.RecordTransaction(loan.ID, TransactionRequest{Description: "Settlement", Amount: decimal.RequireFromString("-1502.3"), Type: models.TransactionTypeRepayment})
	if err != nil {
		t.Fatalf("Failed to record settlement: %v", err)
	}
	if loan.Status != models.LoanStatusClosed {
		t.Fatalf("Expected status Closed, got %s", loan.Status)
	}

	edited := *settlement
	edited.Amount = decimal.NewFromInt(-1000)
	edited.LoanID = uuid.New()
	if err := l.UpdateTransaction(&edited); err != nil {
		t.Fatalf("UpdateTransaction failed: %v", err)
	}
	if edited.LoanID != loan.ID {
		t.Error("UpdateTransaction must not move a transaction to another loan")
	}
	if s.loans[loan.ID].Status != models.LoanStatusActive {
		t.Errorf("Expected loan reopened after edit, got %s", s.loans[loan.ID].Status)
	}

	if err := l.DeleteTransaction(edited.ID); err != nil {
		t.Fatalf("DeleteTransaction failed: %v", err)
	}
	if txs, _ := l.Transactions(loan.ID); len(txs) != 3 {
		t.Errorf("Expected 3 transactions after delete, got %d", len(txs))
	}
	if err := l.DeleteTransaction(edited.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSearchTransactions(t *testing.T) {
	l, _ := newTestLedger()
	loan := createLoan(t, l, "1000")

	found, err := l.SearchTransactions(loan.ID, "  charge ")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(found) != 1 || found[0].Description != "Finance Charge" {
		t.Errorf("Expected the finance charge, got %v", found)
	}
	if _, err := l.SearchTransactions(uuid.New(), "fee"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUpdateAndDeleteLoan(t *testing.T) {
	l, s := newTestLedger()
	loan := createLoan(t, l, "1000")

	loan.LoanDate = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	loan.DueDate = time.Time{}
	if err := l.UpdateLoan(loan); err != nil {
		t.Fatalf("UpdateLoan failed: %v", err)
	}
	if got := loan.DueDate.Format(models.DateLayout); got != "2024-03-17" {
		t.Errorf("Expected due date re-derived as 2024-03-17, got %s", got)
	}

	loan.Status = "Written off"
	if err := l.UpdateLoan(loan); !errors.Is(err, ErrInvalid) {
		t.Errorf("Expected ErrInvalid for an unknown status, got %v", err)
	}
	loan.Status = models.LoanStatusActive

	loan.LoanAmount = decimal.Zero
	if err := l.UpdateLoan(loan); !errors.Is(err, ErrInvalid) {
		t.Errorf("Expected ErrInvalid, got %v", err)
	}

	loans, err := l.ListLoans(loan.CustomerID)
	if err != nil || len(loans) != 1 {
		t.Fatalf("Expected 1 loan, got %d (%v)", len(loans), err)
	}
	if err := l.DeleteLoan(loan.ID); err != nil {
		t.Fatalf("DeleteLoan failed: %v", err)
	}
	if len(s.transactions) != 0 {
		t.Errorf("Expected transactions removed with the loan, got %d", len(s.transactions))
	}
	if _, err := l.GetLoan(loan.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
