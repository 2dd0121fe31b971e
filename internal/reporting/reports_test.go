package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodianpay/wallet-ledger/internal/interfaces"
	"github.com/custodianpay/wallet-ledger/internal/models"
	"github.com/custodianpay/wallet-ledger/internal/storage/memory"
)

func seed(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()

	accounts := []struct {
		id       string
		balances map[models.Currency]decimal.Decimal
	}{
		{"alice", map[models.Currency]decimal.Decimal{models.USD: decimal.NewFromInt(100), models.EUR: decimal.NewFromInt(50)}},
		{"bob", map[models.Currency]decimal.Decimal{models.USD: decimal.NewFromInt(300)}},
		{"carol", map[models.Currency]decimal.Decimal{models.EUR: decimal.NewFromInt(20)}},
	}
	for _, a := range accounts {
		require.NoError(t, store.CreateAccount(ctx, &models.Account{
			ID:        a.id,
			Email:     a.id + "@example.com",
			Name:      a.id,
			Balances:  a.balances,
			CreatedAt: time.Now().UTC(),
		}))
	}

	now := time.Now().UTC()
	err := store.Atomically(ctx, func(tx interfaces.TxStore) error {
		entries := []models.LedgerEntry{
			{ID: "e1", From: "alice", To: "bob", Type: models.EntryTransfer, Amount: decimal.NewFromInt(10), Currency: models.USD, CreatedAt: now},
			{ID: "e2", From: "alice", To: "carol", Type: models.EntryTransfer, Amount: decimal.NewFromInt(5), Currency: models.EUR, CreatedAt: now.Add(time.Second)},
			{ID: "e3", From: "bob", To: "bob", Type: models.EntryWithdraw, Amount: decimal.NewFromInt(20), Currency: models.USD, CreatedAt: now.Add(2 * time.Second)},
		}
		for _, e := range entries {
			if err := tx.AppendEntry(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return store
}

func TestTotalBalances(t *testing.T) {
	svc := NewService(seed(t))

	totals, err := svc.TotalBalances(context.Background())
	require.NoError(t, err)
	assert.True(t, totals[models.USD].Equal(decimal.NewFromInt(400)))
	assert.True(t, totals[models.EUR].Equal(decimal.NewFromInt(70)))
}

func TestTopAccountsByBalance(t *testing.T) {
	svc := NewService(seed(t))

	top, err := svc.TopAccountsByBalance(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "bob", top[0].AccountID)
	assert.True(t, top[0].Total.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, "alice", top[1].AccountID)
	assert.True(t, top[1].Total.Equal(decimal.NewFromInt(150)))
}

func TestTopSenders(t *testing.T) {
	svc := NewService(seed(t))

	top, err := svc.TopSenders(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "alice", top[0].AccountID)
	assert.Equal(t, 2, top[0].Count)
	assert.Equal(t, "alice@example.com", top[0].Email)
	assert.Equal(t, "bob", top[1].AccountID)
	assert.Equal(t, 1, top[1].Count)
}

func TestFlaggedTransactions(t *testing.T) {
	store := seed(t)
	ctx := context.Background()

	require.NoError(t, store.SaveFlag(ctx, models.FlaggedTransaction{
		ID:        "f1",
		AccountID: "bob",
		EntryID:   "e3",
		Reason:    "Large withdrawal of 20 USD",
		CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.SaveFlag(ctx, models.FlaggedTransaction{
		ID:        "f2",
		AccountID: "alice",
		Reason:    "High frequency transfers",
		CreatedAt: time.Now().UTC(),
	}))

	svc := NewService(store)
	reports, err := svc.FlaggedTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	byID := map[string]FlagReport{}
	for _, r := range reports {
		byID[r.Flag.ID] = r
	}

	withEntry := byID["f1"]
	require.NotNil(t, withEntry.Account)
	assert.Equal(t, "bob", withEntry.Account.ID)
	require.NotNil(t, withEntry.Entry)
	assert.Equal(t, "e3", withEntry.Entry.ID)

	withoutEntry := byID["f2"]
	require.NotNil(t, withoutEntry.Account)
	assert.Nil(t, withoutEntry.Entry, "flags without a triggering entry resolve to no entry")
}
