package anomaly

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/custodianpay/wallet-ledger/internal/interfaces"
	"github.com/custodianpay/wallet-ledger/internal/models"
	walletevents "github.com/custodianpay/wallet-ledger/internal/models/events"
	"github.com/custodianpay/wallet-ledger/internal/storage/memory"
)

func appendTransfer(t *testing.T, store *memory.Store, from string, at time.Time) models.LedgerEntry {
	t.Helper()
	entry := models.LedgerEntry{
		ID:        uuid.New().String(),
		From:      from,
		To:        "peer",
		Type:      models.EntryTransfer,
		Amount:    decimal.NewFromInt(1),
		Currency:  models.USD,
		CreatedAt: at,
	}
	err := store.Atomically(context.Background(), func(tx interfaces.TxStore) error {
		return tx.AppendEntry(context.Background(), entry)
	})
	require.NoError(t, err)
	return entry
}

func transferEvent(entry models.LedgerEntry) walletevents.OperationCompleted {
	return walletevents.OperationCompleted{
		EntryID:    entry.ID,
		From:       entry.From,
		To:         entry.To,
		Type:       entry.Type,
		Amount:     entry.Amount,
		Currency:   entry.Currency,
		OccurredAt: entry.CreatedAt,
	}
}

func TestCheckTransferRate(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("below threshold", func(t *testing.T) {
		store := memory.NewStore()
		detector := NewDetector(store, DefaultConfig(), zap.NewNop())

		var last models.LedgerEntry
		for i := 0; i < 4; i++ {
			last = appendTransfer(t, store, "sender", now.Add(time.Duration(i)*time.Second))
		}
		detector.Inspect(ctx, transferEvent(last))

		flags, err := store.ListFlags(ctx)
		require.NoError(t, err)
		assert.Empty(t, flags)
	})

	t.Run("fifth transfer in window is flagged", func(t *testing.T) {
		store := memory.NewStore()
		detector := NewDetector(store, DefaultConfig(), zap.NewNop())

		var last models.LedgerEntry
		for i := 0; i < 5; i++ {
			last = appendTransfer(t, store, "sender", now.Add(time.Duration(i)*time.Second))
		}
		detector.Inspect(ctx, transferEvent(last))

		flags, err := store.ListFlags(ctx)
		require.NoError(t, err)
		require.Len(t, flags, 1)
		assert.Equal(t, "sender", flags[0].AccountID)
		assert.Equal(t, last.ID, flags[0].EntryID)
		assert.Equal(t, "High frequency transfers", flags[0].Reason)
	})

	t.Run("entries outside the trailing window do not count", func(t *testing.T) {
		store := memory.NewStore()
		detector := NewDetector(store, DefaultConfig(), zap.NewNop())

		for i := 0; i < 4; i++ {
			appendTransfer(t, store, "sender", now.Add(-2*time.Minute))
		}
		last := appendTransfer(t, store, "sender", now)
		detector.Inspect(ctx, transferEvent(last))

		flags, err := store.ListFlags(ctx)
		require.NoError(t, err)
		assert.Empty(t, flags)
	})

	t.Run("only sender entries count", func(t *testing.T) {
		store := memory.NewStore()
		detector := NewDetector(store, DefaultConfig(), zap.NewNop())

		for i := 0; i < 5; i++ {
			appendTransfer(t, store, "someone-else", now)
		}
		last := appendTransfer(t, store, "sender", now)
		detector.Inspect(ctx, transferEvent(last))

		flags, err := store.ListFlags(ctx)
		require.NoError(t, err)
		assert.Empty(t, flags)
	})
}

func TestCheckLargeWithdrawal(t *testing.T) {
	detector := NewDetector(memory.NewStore(), DefaultConfig(), zap.NewNop())

	cases := []struct {
		name     string
		amount   decimal.Decimal
		currency models.Currency
		flagged  bool
	}{
		{"over threshold in USD", decimal.NewFromInt(1500), models.USD, true},
		{"exactly threshold", decimal.NewFromInt(1000), models.USD, false},
		{"under threshold", decimal.NewFromInt(999), models.USD, false},
		{"other currency never flagged", decimal.NewFromInt(100000), models.EUR, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := detector.checkLargeWithdrawal(walletevents.OperationCompleted{
				EntryID:  uuid.New().String(),
				From:     "alice",
				To:       "alice",
				Type:     models.EntryWithdraw,
				Amount:   tc.amount,
				Currency: tc.currency,
			})
			assert.Equal(t, tc.flagged, v.flagged)
			if tc.flagged {
				assert.Contains(t, v.reason, "Large withdrawal")
			}
		})
	}
}

func TestInspect_DepositsAreNeverFlagged(t *testing.T) {
	store := memory.NewStore()
	detector := NewDetector(store, DefaultConfig(), zap.NewNop())

	detector.Inspect(context.Background(), walletevents.OperationCompleted{
		EntryID:    uuid.New().String(),
		From:       "alice",
		To:         "alice",
		Type:       models.EntryDeposit,
		Amount:     decimal.NewFromInt(1000000),
		Currency:   models.USD,
		OccurredAt: time.Now().UTC(),
	})

	flags, err := store.ListFlags(context.Background())
	require.NoError(t, err)
	assert.Empty(t, flags)
}
