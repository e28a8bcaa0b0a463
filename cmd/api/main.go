package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/mcclellann/loanStatement/pkg/config"
	"github.com/mcclellann/loanStatement/pkg/ledger"
	"github.com/mcclellann/loanStatement/pkg/statement"
	"github.com/mcclellann/loanStatement/pkg/store"
)

// Server holds the ledger and statement services.
type Server struct {
	ledger     *ledger.Ledger
	statements *statement.Service
	storage    store.Storage // Keep a reference to the storage to close it
	validate   *validator.Validate
}

func NewServer(s store.Storage, statements *statement.Service) *Server {
	return &Server{
		ledger:     ledger.NewLedger(s),
		statements: statements,
		storage:    s,
		validate:   validator.New(),
	}
}

// Routes registers every handler on a new router.
func (s *Server) Routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(loggingMiddleware)

	router.HandleFunc("/customers", s.listCustomersHandler).Methods("GET")
	router.HandleFunc("/customers", s.createCustomerHandler).Methods("POST")
	router.HandleFunc("/customers/{id}", s.getCustomerHandler).Methods("GET")
	router.HandleFunc("/customers/{id}/loans", s.listLoansHandler).Methods("GET")

	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.updateLoanHandler).Methods("PUT")
	router.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods("DELETE")
	router.HandleFunc("/loans/{id}/balance", s.balanceHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/transactions", s.listTransactionsHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/transactions", s.recordTransactionHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/statement", s.loanStatementHandler).Methods("GET")

	router.HandleFunc("/transactions/{id}", s.updateTransactionHandler).Methods("PUT")
	router.HandleFunc("/transactions/{id}", s.deleteTransactionHandler).Methods("DELETE")

	router.HandleFunc("/statements/upload", s.uploadStatementHandler).Methods("POST")
	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	// Load .env for local dev; a missing file is fine
	_ = godotenv.Load(*envFile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	storage, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize %s store: %v", cfg.Database.Driver, err)
	}
	defer storage.Close()

	renderer := statement.NewRenderer(cfg.Branding(), cfg.StatementAssets())
	server := NewServer(storage, statement.NewService(storage, renderer, cfg.OutputDir))

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	log.Printf("Server starting on %s (%s, statements in %q)", cfg.ListenAddr, cfg.Database.Driver, cfg.OutputDir)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Server stopped: %v", err)
	}
	log.Println("Server stopped, closing store")
}
