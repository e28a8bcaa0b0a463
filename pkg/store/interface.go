package store

import (
	"errors"

	"github.com/google/uuid"
	"github.com/mcclellann/loanStatement/pkg/models"
)

// ErrNotFound is wrapped by every lookup that matches no row, e.g. "loan not found".
var ErrNotFound = errors.New("not found")

// Storage defines the interface for database operations related to customers, loans and transactions.
type Storage interface {
	CreateCustomer(customer *models.Customer) error
	GetCustomer(id uuid.UUID) (*models.Customer, error)
	GetAllCustomers() ([]*models.Customer, error)

	CreateLoan(loan *models.Loan) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	GetLoansForCustomer(customerID uuid.UUID) ([]*models.Loan, error)
	UpdateLoan(loan *models.Loan) error
	DeleteLoan(id uuid.UUID) error

	// CreateTransactions inserts all rows or none. Rows keep the order given.
	CreateTransactions(transactions []*models.Transaction) error
	CreateTransaction(transaction *models.Transaction) error
	GetTransaction(id uuid.UUID) (*models.Transaction, error)
	UpdateTransaction(transaction *models.Transaction) error
	DeleteTransaction(id uuid.UUID) error
	// GetTransactionsForLoan returns the loan's rows in insertion order.
	GetTransactionsForLoan(loanID uuid.UUID) ([]*models.Transaction, error)
	SearchTransactions(loanID uuid.UUID, term string) ([]*models.Transaction, error)

	Close() error
}
