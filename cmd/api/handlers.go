package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/loanStatement/pkg/ingest"
	"github.com/mcclellann/loanStatement/pkg/ledger"
	"github.com/mcclellann/loanStatement/pkg/models"
	"github.com/mcclellann/loanStatement/pkg/normalize"
	"github.com/mcclellann/loanStatement/pkg/store"
	"github.com/shopspring/decimal"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		dataErr  *normalize.ValidationError
		fieldErr validator.ValidationErrors
	)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrLoanClosed):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrInvalid),
		errors.As(err, &dataErr),
		errors.As(err, &fieldErr),
		errors.Is(err, ingest.ErrEmpty),
		errors.Is(err, ingest.ErrUnreadable):
		status = http.StatusBadRequest
	default:
		log.Printf("Internal error: %v", err)
	}
	http.Error(w, err.Error(), status)
}

// pathID parses the {id} route variable.
func pathID(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid "+what+" ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// decode reads a JSON body into v and checks its validate tags.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, err)
		return false
	}
	return true
}

// parseDate reads an optional yyyy-mm-dd value.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, &normalize.ValidationError{Kind: normalize.ErrInvalidDate, Value: s}
	}
	return d, nil
}

type createCustomerRequest struct {
	Name                string `json:"name" validate:"required,max=200"`
	Email               string `json:"email" validate:"omitempty,email"`
	Address             string `json:"address" validate:"max=500"`
	CompanyRegistration string `json:"company_registration"`
}

func (s *Server) createCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if !s.decode(w, r, &req) {
		return
	}
	customer, err := s.ledger.CreateCustomer(req.Name, req.Email, req.Address, req.CompanyRegistration)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, customer)
}

func (s *Server) listCustomersHandler(w http.ResponseWriter, r *http.Request) {
	customers, err := s.ledger.ListCustomers()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

func (s *Server) getCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "customer")
	if !ok {
		return
	}
	customer, err := s.ledger.GetCustomer(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "customer")
	if !ok {
		return
	}
	loans, err := s.ledger.ListLoans(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

type createLoanRequest struct {
	CustomerID         uuid.UUID           `json:"customer_id" validate:"required"`
	AccountNumber      string              `json:"account_number" validate:"required,max=50"`
	LoanAmount         decimal.Decimal     `json:"loan_amount"`
	LoanDate           string              `json:"loan_date" validate:"omitempty,datetime=2006-01-02"`
	InterestRate       decimal.NullDecimal `json:"interest_rate"`
	AdminFee           decimal.NullDecimal `json:"admin_fee"`
	PaymentFrequency   string              `json:"payment_frequency" validate:"omitempty,oneof=Monthly Quarterly Annually"`
	Collateral         string              `json:"collateral"`
	DisbursementMethod string              `json:"disbursement_method"`
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if !s.decode(w, r, &req) {
		return
	}
	loanDate, err := parseDate(req.LoanDate)
	if err != nil {
		writeError(w, err)
		return
	}

	loan, err := s.ledger.CreateLoan(ledger.LoanRequest{
		CustomerID:         req.CustomerID,
		AccountNumber:      req.AccountNumber,
		LoanAmount:         req.LoanAmount,
		LoanDate:           loanDate,
		InterestRate:       req.InterestRate,
		AdminFee:           req.AdminFee,
		PaymentFrequency:   req.PaymentFrequency,
		Collateral:         req.Collateral,
		DisbursementMethod: req.DisbursementMethod,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	loan, err := s.ledger.GetLoan(loanID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// updateLoanRequest lists the loan fields an operator may edit. Omitted
// fields keep their stored values. Status follows the balance and the
// owner is fixed, so neither can be set here.
type updateLoanRequest struct {
	AccountNumber      *string          `json:"account_number" validate:"omitempty,min=1,max=50"`
	LoanAmount         *decimal.Decimal `json:"loan_amount"`
	LoanDate           *string          `json:"loan_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate            *string          `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	InterestRate       *decimal.Decimal `json:"interest_rate"`
	AdminFee           *decimal.Decimal `json:"admin_fee"`
	PaymentFrequency   *string          `json:"payment_frequency" validate:"omitempty,oneof=Monthly Quarterly Annually"`
	Collateral         *string          `json:"collateral"`
	DisbursementMethod *string          `json:"disbursement_method"`
}

func (req *updateLoanRequest) apply(loan *models.Loan) error {
	if req.AccountNumber != nil {
		loan.AccountNumber = *req.AccountNumber
	}
	if req.LoanAmount != nil {
		loan.LoanAmount = *req.LoanAmount
	}
	if req.LoanDate != nil {
		d, err := parseDate(*req.LoanDate)
		if err != nil {
			return err
		}
		loan.LoanDate = d
	}
	if req.DueDate != nil {
		d, err := parseDate(*req.DueDate)
		if err != nil {
			return err
		}
		loan.DueDate = d
	}
	if req.InterestRate != nil {
		loan.InterestRate = *req.InterestRate
	}
	if req.AdminFee != nil {
		loan.AdminFee = *req.AdminFee
	}
	if req.PaymentFrequency != nil {
		loan.PaymentFrequency = *req.PaymentFrequency
	}
	if req.Collateral != nil {
		loan.Collateral = *req.Collateral
	}
	if req.DisbursementMethod != nil {
		loan.DisbursementMethod = *req.DisbursementMethod
	}
	return nil
}

func (s *Server) updateLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	var req updateLoanRequest
	if !s.decode(w, r, &req) {
		return
	}
	loan, err := s.ledger.GetLoan(loanID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := req.apply(loan); err != nil {
		writeError(w, err)
		return
	}

	if err := s.ledger.UpdateLoan(loan); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	if err := s.ledger.DeleteLoan(loanID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) balanceHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	loan, err := s.ledger.GetLoan(loanID)
	if err != nil {
		writeError(w, err)
		return
	}
	outstanding, err := s.ledger.Outstanding(loanID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loan_id":     loan.ID,
		"status":      loan.Status,
		"outstanding": outstanding,
	})
}

// listTransactionsHandler returns the loan's transactions, filtered by the
// optional q description search.
func (s *Server) listTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	var (
		transactions []*models.Transaction
		err          error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		transactions, err = s.ledger.SearchTransactions(loanID, q)
	} else {
		transactions, err = s.ledger.Transactions(loanID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transactions)
}

type transactionRequest struct {
	Date          string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Description   string          `json:"description" validate:"max=255"`
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"transaction_type" validate:"required"`
	PaymentMethod string          `json:"payment_method"`
}

func (s *Server) recordTransactionHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	var req transactionRequest
	if !s.decode(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, err)
		return
	}

	tx, err := s.ledger.RecordTransaction(loanID, ledger.TransactionRequest{
		Date:          date,
		Description:   req.Description,
		Amount:        req.Amount,
		Type:          models.TransactionType(strings.ToLower(req.Type)),
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) updateTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "transaction")
	if !ok {
		return
	}
	tx, err := s.ledger.GetTransaction(id)
	if err != nil {
		writeError(w, err)
		return
	}
	req := transactionRequest{
		Date:          tx.Date.Format(models.DateLayout),
		Description:   tx.Description,
		Amount:        tx.Amount,
		Type:          string(tx.Type),
		PaymentMethod: tx.PaymentMethod,
	}
	if !s.decode(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, err)
		return
	}
	if !date.IsZero() {
		tx.Date = date
	}
	tx.Description = req.Description
	tx.Amount = req.Amount
	tx.Type = models.TransactionType(strings.ToLower(req.Type))
	tx.PaymentMethod = req.PaymentMethod

	if err := s.ledger.UpdateTransaction(tx); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) deleteTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "transaction")
	if !ok {
		return
	}
	if err := s.ledger.DeleteTransaction(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
