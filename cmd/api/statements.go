package main

import (
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"

	"github.com/mcclellann/loanStatement/pkg/normalize"
	"github.com/mcclellann/loanStatement/pkg/statement"
)

const maxUploadSize = 32 << 20

const (
	formatPDF  = "pdf"
	formatXLSX = "xlsx"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func statementFormat(w http.ResponseWriter, r *http.Request) (string, bool) {
	switch f := r.FormValue("format"); f {
	case "", formatPDF:
		return formatPDF, true
	case formatXLSX:
		return formatXLSX, true
	default:
		http.Error(w, fmt.Sprintf("Unknown format %q, expected pdf or xlsx", f), http.StatusBadRequest)
		return "", false
	}
}

func statementPeriod(r *http.Request) (statement.Period, error) {
	from, err := parseDate(r.FormValue("start"))
	if err != nil {
		return statement.Period{}, err
	}
	to, err := parseDate(r.FormValue("end"))
	if err != nil {
		return statement.Period{}, err
	}
	return statement.Period{From: from, To: to}, nil
}

// loanStatementHandler renders the statement of a stored loan.
func (s *Server) loanStatementHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	format, ok := statementFormat(w, r)
	if !ok {
		return
	}
	period, err := statementPeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}

	artifacts, err := s.statements.ForLoan(loanID, period)
	if err != nil {
		writeError(w, err)
		return
	}
	s.sendStatement(w, format, artifacts)
}

// uploadStatementHandler renders a statement from an uploaded CSV, XLSX or
// XLS ledger sent as multipart field "file".
func (s *Server) uploadStatementHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "Invalid upload: "+err.Error(), http.StatusBadRequest)
		return
	}
	format, ok := statementFormat(w, r)
	if !ok {
		return
	}
	customer := r.FormValue("customer")
	if customer == "" {
		http.Error(w, "customer is required", http.StatusBadRequest)
		return
	}
	schema, err := normalize.ParseSchema(r.FormValue("schema"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	period, err := statementPeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	artifacts, err := s.statements.FromUpload(statement.Upload{
		Filename:      header.Filename,
		Data:          data,
		Schema:        schema,
		Customer:      customer,
		AccountNumber: r.FormValue("account_number"),
		Period:        period,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	s.sendStatement(w, format, artifacts)
}

// sendStatement saves both files and streams the requested one back.
// Image warnings travel in X-Statement-Warning headers.
func (s *Server) sendStatement(w http.ResponseWriter, format string, a *statement.Artifacts) {
	if _, err := s.statements.Save(a); err != nil {
		writeError(w, err)
		return
	}
	for _, warning := range a.Statement.Warnings {
		w.Header().Add("X-Statement-Warning", warning)
	}

	name, contentType, body := a.Statement.Filename, "application/pdf", a.Statement.PDF
	if format == formatXLSX {
		name, contentType, body = a.SpreadsheetName, xlsxContentType, a.Spreadsheet
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Printf("Error sending %s: %v", name, err)
	}
}
