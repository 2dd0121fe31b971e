package interfaces

import (
	"context"
	"time"

	"github.com/custodianpay/wallet-ledger/internal/models"
)

// TxStore is the view of the store available inside an atomic scope.
// Accounts loaded through it are locked against concurrent scopes until
// the scope commits or aborts.
type TxStore interface {
	// AccountForUpdate loads an account and locks it for the duration of
	// the scope. Callers locking more than one account must do so in
	// ascending id order.
	AccountForUpdate(ctx context.Context, id string) (*models.Account, error)
	SaveAccount(ctx context.Context, account *models.Account) error
	AppendEntry(ctx context.Context, entry models.LedgerEntry) error
}

// Store is the durable backing for accounts, ledger entries and anomaly
// flags. Balance mutations go through Atomically; everything else is a
// plain committed read or an advisory write.
type Store interface {
	// Atomically runs fn inside one atomic scope. All writes made through
	// the TxStore become visible together when fn returns nil, or not at
	// all when it returns an error. A transient write-write conflict is
	// reported as wallet.ErrConflictRetryable.
	Atomically(ctx context.Context, fn func(tx TxStore) error) error

	CreateAccount(ctx context.Context, account *models.Account) error
	Account(ctx context.Context, id string) (*models.Account, error)
	AccountByEmail(ctx context.Context, email string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)

	Entry(ctx context.Context, id string) (*models.LedgerEntry, error)
	History(ctx context.Context, accountID string) ([]models.LedgerEntry, error)
	ListEntries(ctx context.Context) ([]models.LedgerEntry, error)
	// CountEntriesSince counts committed entries with the account as
	// sender, of the given type, created at or after since.
	CountEntriesSince(ctx context.Context, accountID string, entryType models.EntryType, since time.Time) (int, error)

	SaveFlag(ctx context.Context, flag models.FlaggedTransaction) error
	ListFlags(ctx context.Context) ([]models.FlaggedTransaction, error)
}
