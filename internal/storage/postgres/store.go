// Package postgres is the durable implementation of interfaces.Store.
// Atomic scopes map to SQL transactions; account rows are locked with
// SELECT ... FOR UPDATE so concurrent scopes touching the same account
// serialize their read-modify-write cycle.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/custodianpay/wallet-ledger/internal/interfaces"
	"github.com/custodianpay/wallet-ledger/internal/models"
	"github.com/custodianpay/wallet-ledger/internal/wallet"
)

// Store persists accounts, ledger entries and anomaly flags in Postgres.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id         UUID PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS account_balances (
	account_id UUID NOT NULL REFERENCES accounts(id),
	currency   TEXT NOT NULL,
	amount     NUMERIC(30,10) NOT NULL CHECK (amount >= 0),
	PRIMARY KEY (account_id, currency)
);
CREATE TABLE IF NOT EXISTS ledger_entries (
	id           UUID PRIMARY KEY,
	from_account UUID NOT NULL REFERENCES accounts(id),
	to_account   UUID NOT NULL REFERENCES accounts(id),
	type         TEXT NOT NULL,
	amount       NUMERIC(30,10) NOT NULL CHECK (amount > 0),
	currency     TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_from ON ledger_entries (from_account, type, created_at);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_to ON ledger_entries (to_account, created_at);
CREATE TABLE IF NOT EXISTS flagged_transactions (
	id         UUID PRIMARY KEY,
	account_id UUID NOT NULL REFERENCES accounts(id),
	entry_id   UUID REFERENCES ledger_entries(id),
	reason     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`
	_, err := s.db.ExecContext(ctx, schema)
	return pkgerrors.Wrap(err, "migrate schema")
}

// Atomically runs fn inside one SQL transaction, rolling back on any error.
// Serialization failures and deadlocks surface as ErrConflictRetryable so
// the engine can retry the whole scope.
func (s *Store) Atomically(ctx context.Context, fn func(tx interfaces.TxStore) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.Wrap(err, "begin atomic scope")
	}

	if err := fn(&txStore{tx: dbTx}); err != nil {
		_ = dbTx.Rollback()
		return mapConflict(err)
	}

	if err := dbTx.Commit(); err != nil {
		return mapConflict(pkgerrors.Wrap(err, "commit atomic scope"))
	}
	return nil
}

// mapConflict converts transient contention SQLSTATEs (serialization
// failure, deadlock detected) into the retryable sentinel.
func mapConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return pkgerrors.Wrap(wallet.ErrConflictRetryable, err.Error())
		}
	}
	return err
}

// querier is satisfied by *sql.DB and *sql.Tx so balance loading can be
// shared between committed reads and atomic scopes.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) AccountForUpdate(ctx context.Context, id string) (*models.Account, error) {
	const query = `SELECT id, email, name, created_at FROM accounts WHERE id = $1 FOR UPDATE`

	account, err := scanAccount(t.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	account.Balances, err = loadBalances(ctx, t.tx, id, true)
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (t *txStore) SaveAccount(ctx context.Context, account *models.Account) error {
	const query = `INSERT INTO account_balances (account_id, currency, amount)
	VALUES ($1, $2, $3)
	ON CONFLICT (account_id, currency) DO UPDATE SET amount = EXCLUDED.amount`

	for currency, amount := range account.Balances {
		if _, err := t.tx.ExecContext(ctx, query, account.ID, currency.String(), amount); err != nil {
			return pkgerrors.Wrapf(err, "save balance %s/%s", account.ID, currency)
		}
	}
	return nil
}

func (t *txStore) AppendEntry(ctx context.Context, entry models.LedgerEntry) error {
	if err := entry.Validate(); err != nil {
		return pkgerrors.Wrap(wallet.ErrValidation, err.Error())
	}

	const query = `INSERT INTO ledger_entries (id, from_account, to_account, type, amount, currency, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := t.tx.ExecContext(ctx, query,
		entry.ID, entry.From, entry.To, string(entry.Type), entry.Amount, entry.Currency.String(), entry.CreatedAt)
	return pkgerrors.Wrap(err, "append ledger entry")
}

func (s *Store) CreateAccount(ctx context.Context, account *models.Account) error {
	const query = `INSERT INTO accounts (id, email, name, created_at) VALUES ($1, $2, $3, $4)`

	_, err := s.db.ExecContext(ctx, query, account.ID, account.Email, account.Name, account.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return wallet.ErrEmailTaken
	}
	return pkgerrors.Wrap(err, "create account")
}

func (s *Store) Account(ctx context.Context, id string) (*models.Account, error) {
	const query = `SELECT id, email, name, created_at FROM accounts WHERE id = $1`
	return s.loadAccount(ctx, query, id)
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	const query = `SELECT id, email, name, created_at FROM accounts WHERE email = $1`
	return s.loadAccount(ctx, query, email)
}

func (s *Store) loadAccount(ctx context.Context, query string, arg any) (*models.Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	account.Balances, err = loadBalances(ctx, s.db, account.ID, false)
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	const query = `SELECT id, email, name, created_at FROM accounts`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list accounts")
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Email, &a.Name, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range accounts {
		accounts[i].Balances, err = loadBalances(ctx, s.db, accounts[i].ID, false)
		if err != nil {
			return nil, err
		}
	}
	return accounts, nil
}

func (s *Store) Entry(ctx context.Context, id string) (*models.LedgerEntry, error) {
	const query = `SELECT id, from_account, to_account, type, amount, currency, created_at
	FROM ledger_entries WHERE id = $1`

	var e models.LedgerEntry
	err := s.db.QueryRowContext(ctx, query, id).
		Scan(&e.ID, &e.From, &e.To, &e.Type, &e.Amount, &e.Currency, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.Errorf("ledger entry %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) History(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	const query = `SELECT id, from_account, to_account, type, amount, currency, created_at
	FROM ledger_entries
	WHERE from_account = $1 OR to_account = $1
	ORDER BY created_at DESC`

	return s.queryEntries(ctx, query, accountID)
}

func (s *Store) ListEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	const query = `SELECT id, from_account, to_account, type, amount, currency, created_at
	FROM ledger_entries ORDER BY created_at`

	return s.queryEntries(ctx, query)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "query ledger entries")
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.From, &e.To, &e.Type, &e.Amount, &e.Currency, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) CountEntriesSince(ctx context.Context, accountID string, entryType models.EntryType, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM ledger_entries
	WHERE from_account = $1 AND type = $2 AND created_at >= $3`

	var count int
	err := s.db.QueryRowContext(ctx, query, accountID, string(entryType), since).Scan(&count)
	return count, pkgerrors.Wrap(err, "count ledger entries")
}

func (s *Store) SaveFlag(ctx context.Context, flag models.FlaggedTransaction) error {
	const query = `INSERT INTO flagged_transactions (id, account_id, entry_id, reason, created_at)
	VALUES ($1, $2, $3, $4, $5)`

	entryID := sql.NullString{String: flag.EntryID, Valid: flag.EntryID != ""}
	_, err := s.db.ExecContext(ctx, query, flag.ID, flag.AccountID, entryID, flag.Reason, flag.CreatedAt)
	return pkgerrors.Wrap(err, "save flag")
}

func (s *Store) ListFlags(ctx context.Context) ([]models.FlaggedTransaction, error) {
	const query = `SELECT id, account_id, COALESCE(entry_id::text, ''), reason, created_at
	FROM flagged_transactions ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list flags")
	}
	defer rows.Close()

	var flags []models.FlaggedTransaction
	for rows.Next() {
		var f models.FlaggedTransaction
		if err := rows.Scan(&f.ID, &f.AccountID, &f.EntryID, &f.Reason, &f.CreatedAt); err != nil {
			return nil, err
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wallet.ErrAccountNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "scan account")
	}
	return &a, nil
}

func loadBalances(ctx context.Context, q querier, accountID string, forUpdate bool) (map[models.Currency]decimal.Decimal, error) {
	query := `SELECT currency, amount FROM account_balances WHERE account_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rows, err := q.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load balances")
	}
	defer rows.Close()

	balances := make(map[models.Currency]decimal.Decimal)
	for rows.Next() {
		var (
			currency string
			amount   decimal.Decimal
		)
		if err := rows.Scan(&currency, &amount); err != nil {
			return nil, err
		}
		balances[models.Currency(currency)] = amount
	}
	return balances, rows.Err()
}

// Compile-time checks: Store and txStore satisfy the storage contracts.
var (
	_ interfaces.Store   = (*Store)(nil)
	_ interfaces.TxStore = (*txStore)(nil)
)
