// Package anomaly evaluates fraud heuristics against committed ledger
// history and records advisory flags. It never mutates accounts or ledger
// entries and never blocks the operation it inspects.
package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/custodianpay/wallet-ledger/internal/interfaces"
	"github.com/custodianpay/wallet-ledger/internal/models"
	walletevents "github.com/custodianpay/wallet-ledger/internal/models/events"
)

// Config tunes the detector's heuristics.
type Config struct {
	// RateLimitMax flags a sender once their transfer count within the
	// trailing window reaches this value, the in-flight transfer included.
	RateLimitMax int
	// RateLimitWindow is the trailing period inspected by the rate check.
	RateLimitWindow time.Duration
	// LargeWithdrawalCurrency is the single reference currency the
	// large-withdrawal rule applies to. Other currencies are never flagged
	// by this rule.
	LargeWithdrawalCurrency models.Currency
	// LargeWithdrawalThreshold is the amount above which a withdrawal in
	// the reference currency is flagged.
	LargeWithdrawalThreshold decimal.Decimal
}

// DefaultConfig matches the production heuristics: five transfers per
// trailing minute, withdrawals above 1000 USD.
func DefaultConfig() Config {
	return Config{
		RateLimitMax:             5,
		RateLimitWindow:          time.Minute,
		LargeWithdrawalCurrency:  models.USD,
		LargeWithdrawalThreshold: decimal.NewFromInt(1000),
	}
}

// Detector inspects completed operations. Verdicts are recomputed from
// ledger history on every call rather than kept in in-process counters, so
// they stay exact across multiple service instances.
type Detector struct {
	store interfaces.Store
	cfg   Config
	log   *zap.Logger
}

// NewDetector creates a detector reading from store.
func NewDetector(store interfaces.Store, cfg Config, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = DefaultConfig().RateLimitMax
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = DefaultConfig().RateLimitWindow
	}
	return &Detector{store: store, cfg: cfg, log: logger}
}

// Inspect evaluates every applicable check for the event and records one
// flag per positive verdict. Failures are logged and swallowed: a flag that
// could not be written must not disturb the committed operation.
func (d *Detector) Inspect(ctx context.Context, event walletevents.OperationCompleted) {
	var verdicts []verdict
	switch event.Type {
	case models.EntryTransfer:
		v, err := d.checkTransferRate(ctx, event)
		if err != nil {
			d.log.Warn("rate-limit check failed", zap.String("entry_id", event.EntryID), zap.Error(err))
		} else if v.flagged {
			verdicts = append(verdicts, v)
		}
	case models.EntryWithdraw:
		if v := d.checkLargeWithdrawal(event); v.flagged {
			verdicts = append(verdicts, v)
		}
	}

	for _, v := range verdicts {
		flag := models.FlaggedTransaction{
			ID:        uuid.New().String(),
			AccountID: event.From,
			EntryID:   event.EntryID,
			Reason:    v.reason,
			CreatedAt: time.Now().UTC(),
		}
		if err := d.store.SaveFlag(ctx, flag); err != nil {
			d.log.Warn("failed to record anomaly flag",
				zap.String("account_id", event.From),
				zap.String("reason", v.reason),
				zap.Error(err))
			continue
		}
		d.log.Info("fraud alert",
			zap.String("account_id", event.From),
			zap.String("entry_id", event.EntryID),
			zap.String("reason", v.reason))
	}
}

type verdict struct {
	flagged bool
	reason  string
}

// checkTransferRate counts the sender's committed transfer entries inside
// the trailing window. The count includes the entry that triggered this
// inspection, so a sender whose fifth transfer lands within one minute of
// the first is flagged on that fifth transfer and on every one after it.
func (d *Detector) checkTransferRate(ctx context.Context, event walletevents.OperationCompleted) (verdict, error) {
	since := event.OccurredAt.Add(-d.cfg.RateLimitWindow)
	count, err := d.store.CountEntriesSince(ctx, event.From, models.EntryTransfer, since)
	if err != nil {
		return verdict{}, err
	}
	if count >= d.cfg.RateLimitMax {
		return verdict{flagged: true, reason: "High frequency transfers"}, nil
	}
	return verdict{}, nil
}

// checkLargeWithdrawal flags withdrawals above the threshold in the
// reference currency only. No cross-currency normalization is attempted.
func (d *Detector) checkLargeWithdrawal(event walletevents.OperationCompleted) verdict {
	if event.Currency != d.cfg.LargeWithdrawalCurrency {
		return verdict{}
	}
	if event.Amount.GreaterThan(d.cfg.LargeWithdrawalThreshold) {
		return verdict{
			flagged: true,
			reason:  fmt.Sprintf("Large withdrawal of %s %s", event.Amount, event.Currency),
		}
	}
	return verdict{}
}
