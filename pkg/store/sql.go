package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanStatement/pkg/models"
)

// dialect captures what differs between the supported SQL engines.
type dialect struct {
	name          string
	timestampType string
	// addColumn returns the statement that adds col to table if it is missing.
	addColumn func(table, col string) string
	// ignoreAddColumnErr reports whether an ALTER failure means the column exists.
	ignoreAddColumnErr func(err error) bool
	numbered           bool // $1, $2 ... instead of ?
}

// SQLStore implements Storage on top of database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the named driver ("sqlite3" or "postgres").
func Open(driver, dataSourceName string) (*SQLStore, error) {
	switch driver {
	case "sqlite3", "sqlite", "":
		return NewSQLiteStore(dataSourceName)
	case "postgres", "postgresql":
		return NewPostgresStore(dataSourceName)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	s := &SQLStore{db: db, dialect: d}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// rebind rewrites ? placeholders for engines that use numbered parameters.
func (s *SQLStore) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// initSchema creates the tables if they don't already exist and adds columns introduced later.
// Decimal fields are TEXT so no precision is lost; dates are TEXT in models.DateLayout.
func (s *SQLStore) initSchema() error {
	ts := s.dialect.timestampType
	schema := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		customer_name TEXT NOT NULL,
		created_at %s NOT NULL
	)`, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		account_number TEXT NOT NULL,
		loan_amount TEXT NOT NULL,
		loan_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		loan_status TEXT NOT NULL DEFAULT 'Active',
		interest_rate TEXT NOT NULL DEFAULT '0.23',
		admin_fee TEXT NOT NULL DEFAULT '500.00',
		payment_frequency TEXT NOT NULL DEFAULT '',
		collateral TEXT NOT NULL DEFAULT '',
		disbursement_method TEXT NOT NULL DEFAULT '',
		created_at %s NOT NULL,
		updated_at %s NOT NULL
	)`, ts, ts),
		`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL REFERENCES loans(id),
		seq BIGINT NOT NULL,
		date TEXT NOT NULL,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		payment_method TEXT NOT NULL
	)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_loan ON transactions(loan_id, seq)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}

	// Customer contact fields were added after the first release.
	columns := []string{
		"email TEXT NOT NULL DEFAULT ''",
		"address TEXT NOT NULL DEFAULT ''",
		"company_registration TEXT NOT NULL DEFAULT ''",
	}
	for _, col := range columns {
		_, err := s.db.Exec(s.dialect.addColumn("customers", col))
		if err != nil && !s.dialect.ignoreAddColumnErr(err) {
			return fmt.Errorf("failed to add column %s: %w", col, err)
		}
	}
	return nil
}

const customerColumns = `id, customer_name, email, address, company_registration, created_at`

// CreateCustomer inserts a new customer into the database.
func (s *SQLStore) CreateCustomer(c *models.Customer) error {
	_, err := s.db.Exec(s.rebind(`INSERT INTO customers (`+customerColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		c.ID.String(), c.Name, c.Email, c.Address, c.CompanyRegistration, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// GetCustomer retrieves a customer by its ID.
func (s *SQLStore) GetCustomer(id uuid.UUID) (*models.Customer, error) {
	row := s.db.QueryRow(s.rebind(`SELECT `+customerColumns+` FROM customers WHERE id = ?`), id.String())
	c, err := scanCustomer(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("customer %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// GetAllCustomers retrieves all customers ordered by name.
func (s *SQLStore) GetAllCustomers() ([]*models.Customer, error) {
	rows, err := s.db.Query(`SELECT ` + customerColumns + ` FROM customers ORDER BY customer_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all customers: %w", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return customers, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row scanner) (*models.Customer, error) {
	var c models.Customer
	var idStr string
	var created time.Time
	if err := row.Scan(&idStr, &c.Name, &c.Email, &c.Address, &c.CompanyRegistration, &created); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("bad customer id %q: %w", idStr, err)
	}
	c.ID = id
	c.CreatedAt = created
	return &c, nil
}

const loanColumns = `id, customer_id, account_number, loan_amount, loan_date, due_date, loan_status, interest_rate, admin_fee, payment_frequency, collateral, disbursement_method, created_at, updated_at`

// CreateLoan inserts a new loan into the database.
func (s *SQLStore) CreateLoan(loan *models.Loan) error {
	_, err := s.db.Exec(s.rebind(`INSERT INTO loans (`+loanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		loan.ID.String(), loan.CustomerID.String(), loan.AccountNumber, loan.LoanAmount,
		loan.LoanDate.Format(models.DateLayout), loan.DueDate.Format(models.DateLayout),
		string(loan.Status), loan.InterestRate, loan.AdminFee, loan.PaymentFrequency,
		loan.Collateral, loan.DisbursementMethod, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(s.rebind(`SELECT `+loanColumns+` FROM loans WHERE id = ?`), id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("loan %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// GetLoansForCustomer retrieves every loan owned by a customer, oldest first.
func (s *SQLStore) GetLoansForCustomer(customerID uuid.UUID) ([]*models.Loan, error) {
	rows, err := s.db.Query(s.rebind(`SELECT `+loanColumns+` FROM loans WHERE customer_id = ? ORDER BY loan_date, created_at`), customerID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get loans for customer %s: %w", customerID, err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

func scanLoan(row scanner) (*models.Loan, error) {
	var loan models.Loan
	var idStr, customerIDStr, loanDate, dueDate, status string
	var created, updated time.Time
	err := row.Scan(&idStr, &customerIDStr, &loan.AccountNumber, &loan.LoanAmount, &loanDate, &dueDate,
		&status, &loan.InterestRate, &loan.AdminFee, &loan.PaymentFrequency, &loan.Collateral,
		&loan.DisbursementMethod, &created, &updated)
	if err != nil {
		return nil, err
	}
	if loan.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("bad loan id %q: %w", idStr, err)
	}
	if loan.CustomerID, err = uuid.Parse(customerIDStr); err != nil {
		return nil, fmt.Errorf("bad customer id %q: %w", customerIDStr, err)
	}
	if loan.LoanDate, err = time.Parse(models.DateLayout, loanDate); err != nil {
		return nil, fmt.Errorf("bad loan date %q: %w", loanDate, err)
	}
	if loan.DueDate, err = time.Parse(models.DateLayout, dueDate); err != nil {
		return nil, fmt.Errorf("bad due date %q: %w", dueDate, err)
	}
	loan.Status = models.LoanStatus(status)
	loan.CreatedAt = created
	loan.UpdatedAt = updated
	return &loan, nil
}

// UpdateLoan updates an existing loan in the database.
func (s *SQLStore) UpdateLoan(loan *models.Loan) error {
	result, err := s.db.Exec(s.rebind(`UPDATE loans SET customer_id = ?, account_number = ?, loan_amount = ?, loan_date = ?, due_date = ?, loan_status = ?, interest_rate = ?, admin_fee = ?, payment_frequency = ?, collateral = ?, disbursement_method = ?, updated_at = ? WHERE id = ?`),
		loan.CustomerID.String(), loan.AccountNumber, loan.LoanAmount,
		loan.LoanDate.Format(models.DateLayout), loan.DueDate.Format(models.DateLayout),
		string(loan.Status), loan.InterestRate, loan.AdminFee, loan.PaymentFrequency,
		loan.Collateral, loan.DisbursementMethod, loan.UpdatedAt, loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	return checkAffected(result, "loan")
}

// DeleteLoan removes a loan and its transactions from the database within a transaction.
func (s *SQLStore) DeleteLoan(id uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(s.rebind(`DELETE FROM transactions WHERE loan_id = ?`), id.String())
	if err != nil {
		return fmt.Errorf("failed to delete associated transactions: %w", err)
	}

	result, err := tx.Exec(s.rebind(`DELETE FROM loans WHERE id = ?`), id.String())
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	if err := checkAffected(result, "loan"); err != nil {
		return err
	}

	return tx.Commit()
}

func checkAffected(result sql.Result, what string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return nil
}

const transactionColumns = `id, loan_id, date, description, amount, transaction_type, payment_method`

// CreateTransaction inserts a single transaction.
func (s *SQLStore) CreateTransaction(transaction *models.Transaction) error {
	return s.CreateTransactions([]*models.Transaction{transaction})
}

// CreateTransactions inserts the rows in one database transaction, numbering
// them after the loan's existing rows so insertion order survives.
func (s *SQLStore) CreateTransactions(transactions []*models.Transaction) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	next := make(map[uuid.UUID]int64)
	for _, t := range transactions {
		seq, ok := next[t.LoanID]
		if !ok {
			err := tx.QueryRow(s.rebind(`SELECT COALESCE(MAX(seq), 0) FROM transactions WHERE loan_id = ?`), t.LoanID.String()).Scan(&seq)
			if err != nil {
				return fmt.Errorf("failed to read sequence for loan %s: %w", t.LoanID, err)
			}
		}
		seq++
		next[t.LoanID] = seq

		_, err = tx.Exec(s.rebind(`INSERT INTO transactions (id, loan_id, seq, date, description, amount, transaction_type, payment_method)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			t.ID.String(), t.LoanID.String(), seq, t.Date.Format(models.DateLayout),
			t.Description, t.Amount, string(t.Type), t.PaymentMethod,
		)
		if err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}
	}
	return tx.Commit()
}

// GetTransaction retrieves a transaction by its ID.
func (s *SQLStore) GetTransaction(id uuid.UUID) (*models.Transaction, error) {
	row := s.db.QueryRow(s.rebind(`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`), id.String())
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("transaction %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// UpdateTransaction rewrites a transaction in place; its position in the loan is kept.
func (s *SQLStore) UpdateTransaction(t *models.Transaction) error {
	result, err := s.db.Exec(s.rebind(`UPDATE transactions SET date = ?, description = ?, amount = ?, transaction_type = ?, payment_method = ? WHERE id = ?`),
		t.Date.Format(models.DateLayout), t.Description, t.Amount, string(t.Type), t.PaymentMethod, t.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return checkAffected(result, "transaction")
}

// DeleteTransaction removes a single transaction.
func (s *SQLStore) DeleteTransaction(id uuid.UUID) error {
	result, err := s.db.Exec(s.rebind(`DELETE FROM transactions WHERE id = ?`), id.String())
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return checkAffected(result, "transaction")
}

// GetTransactionsForLoan retrieves all transactions for a given loan ID in insertion order.
func (s *SQLStore) GetTransactionsForLoan(loanID uuid.UUID) ([]*models.Transaction, error) {
	rows, err := s.db.Query(s.rebind(`SELECT `+transactionColumns+` FROM transactions WHERE loan_id = ? ORDER BY seq ASC`), loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions for loan %s: %w", loanID, err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// SearchTransactions matches the term against descriptions, ignoring case.
// An empty term returns every transaction of the loan.
func (s *SQLStore) SearchTransactions(loanID uuid.UUID, term string) ([]*models.Transaction, error) {
	if term == "" {
		return s.GetTransactionsForLoan(loanID)
	}
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	rows, err := s.db.Query(s.rebind(`SELECT `+transactionColumns+` FROM transactions
		WHERE loan_id = ? AND LOWER(description) LIKE ? ESCAPE '\' ORDER BY date, seq`), loanID.String(), pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search transactions for loan %s: %w", loanID, err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func collectTransactions(rows *sql.Rows) ([]*models.Transaction, error) {
	var transactions []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for loan transactions: %w", err)
	}
	return transactions, nil
}

func scanTransaction(row scanner) (*models.Transaction, error) {
	var t models.Transaction
	var idStr, loanIDStr, date, typ string
	if err := row.Scan(&idStr, &loanIDStr, &date, &t.Description, &t.Amount, &typ, &t.PaymentMethod); err != nil {
		return nil, err
	}
	var err error
	if t.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("bad transaction id %q: %w", idStr, err)
	}
	if t.LoanID, err = uuid.Parse(loanIDStr); err != nil {
		return nil, fmt.Errorf("bad loan id %q: %w", loanIDStr, err)
	}
	if t.Date, err = time.Parse(models.DateLayout, date); err != nil {
		return nil, fmt.Errorf("bad transaction date %q: %w", date, err)
	}
	t.Type = models.TransactionType(typ)
	return &t, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
