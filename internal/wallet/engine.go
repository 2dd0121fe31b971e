package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/custodianpay/wallet-ledger/internal/interfaces"
	"github.com/custodianpay/wallet-ledger/internal/models"
	walletevents "github.com/custodianpay/wallet-ledger/internal/models/events"
)

// defaultConflictRetries bounds how many times one operation is re-run
// after a transient write conflict before it surfaces as ErrInternal.
const defaultConflictRetries = 3

// Engine orchestrates deposits, withdrawals and transfers. It is the sole
// writer of account balances and ledger entries: each operation reads
// current state, validates, mutates and appends inside one atomic scope,
// then notifies the anomaly detector best-effort after commit.
type Engine struct {
	store      interfaces.Store
	publisher  interfaces.EventPublisher
	log        *zap.Logger
	maxRetries int
}

// NewEngine creates an engine on top of a store. The publisher may be nil,
// in which case no anomaly notifications are emitted.
func NewEngine(store interfaces.Store, publisher interfaces.EventPublisher, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:      store,
		publisher:  publisher,
		log:        logger,
		maxRetries: defaultConflictRetries,
	}
}

// CreateAccount registers a new account with empty balances.
func (e *Engine) CreateAccount(ctx context.Context, email, name string) (*models.Account, error) {
	account := &models.Account{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      name,
		Balances:  make(map[models.Currency]decimal.Decimal),
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.CreateAccount(ctx, account); err != nil {
		return nil, e.sanitize("create_account", err)
	}
	return account, nil
}

// Deposit credits amount to the account's balance for the currency and
// appends a deposit entry, atomically. It returns the updated balance map.
func (e *Engine) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, currency models.Currency) (map[models.Currency]decimal.Decimal, error) {
	if err := validateInput(amount, currency); err != nil {
		return nil, err
	}

	var (
		balances map[models.Currency]decimal.Decimal
		entry    models.LedgerEntry
	)
	err := e.atomically(ctx, func(tx interfaces.TxStore) error {
		account, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		account.EnsureCurrency(currency)
		account.Credit(currency, amount)
		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}
		entry = newEntry(accountID, accountID, models.EntryDeposit, amount, currency)
		if err := tx.AppendEntry(ctx, entry); err != nil {
			return err
		}
		balances = account.BalancesCopy()
		return nil
	})
	if err != nil {
		return nil, e.sanitize("deposit", err)
	}

	e.notify(ctx, entry)
	return balances, nil
}

// Withdraw debits amount from the account's balance for the currency and
// appends a withdraw entry, atomically. The debit is rejected, not clamped,
// when funds are insufficient. The large-withdrawal check runs downstream
// of the post-commit notification and can never block the debit.
func (e *Engine) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, currency models.Currency) (map[models.Currency]decimal.Decimal, error) {
	if err := validateInput(amount, currency); err != nil {
		return nil, err
	}

	var (
		balances map[models.Currency]decimal.Decimal
		entry    models.LedgerEntry
	)
	err := e.atomically(ctx, func(tx interfaces.TxStore) error {
		account, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		account.EnsureCurrency(currency)
		if account.Balance(currency).LessThan(amount) {
			return ErrInsufficientBalance
		}
		account.Debit(currency, amount)
		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}
		entry = newEntry(accountID, accountID, models.EntryWithdraw, amount, currency)
		if err := tx.AppendEntry(ctx, entry); err != nil {
			return err
		}
		balances = account.BalancesCopy()
		return nil
	})
	if err != nil {
		return nil, e.sanitize("withdraw", err)
	}

	e.notify(ctx, entry)
	return balances, nil
}

// Transfer moves amount from the sender to the recipient, resolvable by
// account id or email. Debit, credit and the single transfer entry commit
// together or not at all. It returns the sender's updated balance map.
func (e *Engine) Transfer(ctx context.Context, senderID, recipient string, amount decimal.Decimal, currency models.Currency) (map[models.Currency]decimal.Decimal, error) {
	if err := validateInput(amount, currency); err != nil {
		return nil, err
	}

	recipientID, err := e.resolveRecipient(ctx, recipient)
	if err != nil {
		return nil, e.sanitize("transfer", err)
	}
	if recipientID == senderID {
		return nil, ErrSelfTransfer
	}

	// Lock accounts in ascending id order so two transfers moving money in
	// opposite directions between the same pair cannot deadlock.
	first, second := senderID, recipientID
	if second < first {
		first, second = second, first
	}

	var (
		balances map[models.Currency]decimal.Decimal
		entry    models.LedgerEntry
	)
	err = e.atomically(ctx, func(tx interfaces.TxStore) error {
		locked := make(map[string]*models.Account, 2)
		for _, id := range []string{first, second} {
			account, err := tx.AccountForUpdate(ctx, id)
			if err != nil {
				return err
			}
			locked[id] = account
		}
		sender, receiver := locked[senderID], locked[recipientID]

		sender.EnsureCurrency(currency)
		if sender.Balance(currency).LessThan(amount) {
			return ErrInsufficientBalance
		}
		sender.Debit(currency, amount)
		receiver.Credit(currency, amount)

		if err := tx.SaveAccount(ctx, sender); err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, receiver); err != nil {
			return err
		}
		entry = newEntry(senderID, recipientID, models.EntryTransfer, amount, currency)
		if err := tx.AppendEntry(ctx, entry); err != nil {
			return err
		}
		balances = sender.BalancesCopy()
		return nil
	})
	if err != nil {
		return nil, e.sanitize("transfer", err)
	}

	e.notify(ctx, entry)
	return balances, nil
}

// History returns the account's ledger entries, newest first.
func (e *Engine) History(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	entries, err := e.store.History(ctx, accountID)
	if err != nil {
		return nil, e.sanitize("history", err)
	}
	return entries, nil
}

// resolveRecipient tries the identifier as an account id first, then as an
// email address.
func (e *Engine) resolveRecipient(ctx context.Context, identifier string) (string, error) {
	account, err := e.store.Account(ctx, identifier)
	if err == nil {
		return account.ID, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return "", err
	}
	account, err = e.store.AccountByEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return "", ErrRecipientNotFound
		}
		return "", err
	}
	return account.ID, nil
}

// atomically runs fn in one atomic scope, retrying the whole scope on
// transient write conflicts up to maxRetries times.
func (e *Engine) atomically(ctx context.Context, fn func(tx interfaces.TxStore) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = e.store.Atomically(ctx, fn)
		if err == nil || !errors.Is(err, ErrConflictRetryable) || attempt >= e.maxRetries {
			return err
		}
		e.log.Warn("retrying atomic scope after write conflict",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
}

// notify publishes an OperationCompleted event for the committed entry.
// Publish failures are logged and swallowed: anomaly detection is advisory
// and must never fail the monetary operation it observes.
func (e *Engine) notify(ctx context.Context, entry models.LedgerEntry) {
	if e.publisher == nil {
		return
	}
	event := walletevents.OperationCompleted{
		EntryID:    entry.ID,
		From:       entry.From,
		To:         entry.To,
		Type:       entry.Type,
		Amount:     entry.Amount,
		Currency:   entry.Currency,
		OccurredAt: entry.CreatedAt,
	}
	if err := e.publisher.Publish(ctx, walletevents.TopicOperations, event); err != nil {
		e.log.Warn("anomaly notification failed",
			zap.String("entry_id", entry.ID),
			zap.Error(err))
	}
}

// sanitize keeps business errors intact and collapses everything else into
// ErrInternal so storage details never leak to callers.
func (e *Engine) sanitize(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, domain := range []error{
		ErrInvalidAmount,
		ErrInsufficientBalance,
		ErrRecipientNotFound,
		ErrSelfTransfer,
		ErrAccountNotFound,
		ErrEmailTaken,
		ErrValidation,
	} {
		if errors.Is(err, domain) {
			return err
		}
	}
	e.log.Error("operation failed", zap.String("op", op), zap.Error(err))
	return ErrInternal
}

func validateInput(amount decimal.Decimal, currency models.Currency) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !currency.Valid() {
		return ErrValidation
	}
	return nil
}

func newEntry(from, to string, entryType models.EntryType, amount decimal.Decimal, currency models.Currency) models.LedgerEntry {
	return models.LedgerEntry{
		ID:        uuid.New().String(),
		From:      from,
		To:        to,
		Type:      entryType,
		Amount:    amount,
		Currency:  currency,
		CreatedAt: time.Now().UTC(),
	}
}
