// Command server runs the custodial wallet ledger service.
//
// Storage is Postgres when DATABASE_URL is set, otherwise in-memory.
// Anomaly events flow over Kafka when KAFKA_BROKERS is set, otherwise
// through an in-process dispatcher. The authenticated caller identity is
// supplied by the upstream gateway in the X-Account-ID header.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/custodianpay/wallet-ledger/internal/anomaly"
	"github.com/custodianpay/wallet-ledger/internal/config"
	"github.com/custodianpay/wallet-ledger/internal/events/inproc"
	eventskafka "github.com/custodianpay/wallet-ledger/internal/events/kafka"
	"github.com/custodianpay/wallet-ledger/internal/interfaces"
	"github.com/custodianpay/wallet-ledger/internal/models"
	walletevents "github.com/custodianpay/wallet-ledger/internal/models/events"
	"github.com/custodianpay/wallet-ledger/internal/reporting"
	"github.com/custodianpay/wallet-ledger/internal/storage/memory"
	"github.com/custodianpay/wallet-ledger/internal/storage/postgres"
	"github.com/custodianpay/wallet-ledger/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}

	detector := anomaly.NewDetector(store, anomaly.Config{
		RateLimitMax:             cfg.RateLimitMax,
		RateLimitWindow:          cfg.RateLimitWindow,
		LargeWithdrawalCurrency:  models.Currency(cfg.LargeWithdrawalCurrency),
		LargeWithdrawalThreshold: cfg.LargeWithdrawalThreshold,
	}, logger)

	publisher := startEvents(ctx, cfg, detector, logger)

	engine := wallet.NewEngine(store, publisher, logger)
	reports := reporting.NewService(store)

	mux := http.NewServeMux()
	registerRoutes(mux, engine, reports)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting server", zap.String("addr", cfg.HTTPAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (interfaces.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("no DATABASE_URL set, using in-memory store")
		return memory.NewStore(), nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := postgres.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	logger.Info("using postgres store")
	return store, nil
}

// startEvents wires the post-commit notification path: Kafka when brokers
// are configured, the in-process dispatcher otherwise.
func startEvents(ctx context.Context, cfg config.Config, detector *anomaly.Detector, logger *zap.Logger) interfaces.EventPublisher {
	if len(cfg.KafkaBrokers) == 0 {
		dispatcher := inproc.NewDispatcher(detector, 256, logger)
		go dispatcher.Run(ctx)
		logger.Info("anomaly events dispatched in-process")
		return dispatcher
	}

	consumer := eventskafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, walletevents.TopicOperations, detector, logger)
	go func() {
		if err := consumer.Run(ctx); err != nil {
			logger.Error("anomaly consumer stopped", zap.Error(err))
		}
	}()
	logger.Info("anomaly events over kafka", zap.Strings("brokers", cfg.KafkaBrokers))
	return eventskafka.NewPublisher(cfg.KafkaBrokers, walletevents.TopicOperations)
}

func registerRoutes(mux *http.ServeMux, engine *wallet.Engine, reports *reporting.Service) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/accounts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		account, err := engine.CreateAccount(r.Context(), req.Email, req.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, account)
	})

	mux.HandleFunc("/wallet/deposit", func(w http.ResponseWriter, r *http.Request) {
		handleMutation(w, r, func(accountID string, amount decimal.Decimal, currency models.Currency, _ string) (map[models.Currency]decimal.Decimal, error) {
			return engine.Deposit(r.Context(), accountID, amount, currency)
		})
	})

	mux.HandleFunc("/wallet/withdraw", func(w http.ResponseWriter, r *http.Request) {
		handleMutation(w, r, func(accountID string, amount decimal.Decimal, currency models.Currency, _ string) (map[models.Currency]decimal.Decimal, error) {
			return engine.Withdraw(r.Context(), accountID, amount, currency)
		})
	})

	mux.HandleFunc("/wallet/transfer", func(w http.ResponseWriter, r *http.Request) {
		handleMutation(w, r, func(accountID string, amount decimal.Decimal, currency models.Currency, to string) (map[models.Currency]decimal.Decimal, error) {
			if to == "" {
				return nil, wallet.ErrRecipientNotFound
			}
			return engine.Transfer(r.Context(), accountID, to, amount, currency)
		})
	})

	mux.HandleFunc("/wallet/history", func(w http.ResponseWriter, r *http.Request) {
		accountID := callerID(w, r)
		if accountID == "" {
			return
		}
		entries, err := engine.History(r.Context(), accountID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})

	mux.HandleFunc("/admin/flagged", func(w http.ResponseWriter, r *http.Request) {
		flagged, err := reports.FlaggedTransactions(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, flagged)
	})

	mux.HandleFunc("/admin/totals", func(w http.ResponseWriter, r *http.Request) {
		totals, err := reports.TotalBalances(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, totals)
	})

	mux.HandleFunc("/admin/top-balances", func(w http.ResponseWriter, r *http.Request) {
		top, err := reports.TopAccountsByBalance(r.Context(), limitParam(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, top)
	})

	mux.HandleFunc("/admin/top-senders", func(w http.ResponseWriter, r *http.Request) {
		top, err := reports.TopSenders(r.Context(), limitParam(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, top)
	})
}

// handleMutation decodes a deposit/withdraw/transfer request and writes the
// resulting balance map.
func handleMutation(w http.ResponseWriter, r *http.Request, op func(accountID string, amount decimal.Decimal, currency models.Currency, to string) (map[models.Currency]decimal.Decimal, error)) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	accountID := callerID(w, r)
	if accountID == "" {
		return
	}

	var req struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
		To       string          `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	currency, err := models.ParseCurrency(req.Currency)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	balances, err := op(accountID, req.Amount, currency, req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balances": balances})
}

// callerID extracts the authenticated account id supplied by the upstream
// gateway. Writes a 401 and returns "" when absent.
func callerID(w http.ResponseWriter, r *http.Request) string {
	accountID := r.Header.Get("X-Account-ID")
	if accountID == "" {
		http.Error(w, "missing account identity", http.StatusUnauthorized)
	}
	return accountID
}

func limitParam(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 10
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps domain errors to distinguishable statuses. Anything
// already sanitized to ErrInternal carries no storage detail.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, wallet.ErrSelfTransfer),
		errors.Is(err, wallet.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, wallet.ErrRecipientNotFound),
		errors.Is(err, wallet.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, wallet.ErrInsufficientBalance),
		errors.Is(err, wallet.ErrEmailTaken):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		http.Error(w, wallet.ErrInternal.Error(), status)
		return
	}
	http.Error(w, err.Error(), status)
}
