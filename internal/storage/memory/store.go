// Package memory is an in-memory implementation of interfaces.Store, used
// by tests and broker-less local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/custodianpay/wallet-ledger/internal/interfaces"
	"github.com/custodianpay/wallet-ledger/internal/models"
	"github.com/custodianpay/wallet-ledger/internal/wallet"
)

// Store keeps all state behind a single mutex. Atomic scopes stage their
// writes and apply them only when the scope callback succeeds, so an
// aborted operation leaves the store exactly as it was.
type Store struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	emailIdx map[string]string
	entries  []models.LedgerEntry
	flags    []models.FlaggedTransaction
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[string]*models.Account),
		emailIdx: make(map[string]string),
	}
}

// Atomically runs fn while holding the store mutex. Writes made through the
// TxStore are staged and committed together when fn returns nil.
func (s *Store) Atomically(ctx context.Context, fn func(tx interfaces.TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txStore{store: s, staged: make(map[string]*models.Account)}
	if err := fn(tx); err != nil {
		return err
	}

	for id, account := range tx.staged {
		s.accounts[id] = account.Clone()
	}
	s.entries = append(s.entries, tx.entries...)
	return nil
}

// txStore is the staged view handed to atomic scope callbacks.
type txStore struct {
	store   *Store
	staged  map[string]*models.Account
	entries []models.LedgerEntry
}

func (t *txStore) AccountForUpdate(ctx context.Context, id string) (*models.Account, error) {
	if account, ok := t.staged[id]; ok {
		return account, nil
	}
	account, ok := t.store.accounts[id]
	if !ok {
		return nil, wallet.ErrAccountNotFound
	}
	cp := account.Clone()
	t.staged[id] = cp
	return cp, nil
}

func (t *txStore) SaveAccount(ctx context.Context, account *models.Account) error {
	t.staged[account.ID] = account
	return nil
}

func (t *txStore) AppendEntry(ctx context.Context, entry models.LedgerEntry) error {
	if err := entry.Validate(); err != nil {
		return errors.Wrap(wallet.ErrValidation, err.Error())
	}
	t.entries = append(t.entries, entry)
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.emailIdx[account.Email]; taken {
		return wallet.ErrEmailTaken
	}
	s.accounts[account.ID] = account.Clone()
	s.emailIdx[account.Email] = account.ID
	return nil
}

func (s *Store) Account(ctx context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, wallet.ErrAccountNotFound
	}
	return account.Clone(), nil
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.emailIdx[email]
	if !ok {
		return nil, wallet.ErrAccountNotFound
	}
	return s.accounts[id].Clone(), nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		out = append(out, *account.Clone())
	}
	return out, nil
}

func (s *Store) Entry(ctx context.Context, id string) (*models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].ID == id {
			cp := s.entries[i]
			return &cp, nil
		}
	}
	return nil, errors.Errorf("ledger entry %s not found", id)
}

func (s *Store) History(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.LedgerEntry
	for _, e := range s.entries {
		if e.From == accountID || e.To == accountID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) ListEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.LedgerEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *Store) CountEntriesSince(ctx context.Context, accountID string, entryType models.EntryType, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, e := range s.entries {
		if e.From == accountID && e.Type == entryType && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *Store) SaveFlag(ctx context.Context, flag models.FlaggedTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flags = append(s.flags, flag)
	return nil
}

func (s *Store) ListFlags(ctx context.Context) ([]models.FlaggedTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.FlaggedTransaction, len(s.flags))
	copy(out, s.flags)
	return out, nil
}

// Compile-time checks: Store and txStore satisfy the storage contracts.
var (
	_ interfaces.Store   = (*Store)(nil)
	_ interfaces.TxStore = (*txStore)(nil)
)
