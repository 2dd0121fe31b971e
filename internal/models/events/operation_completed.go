package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/custodianpay/wallet-ledger/internal/models"
)

// TopicOperations carries OperationCompleted events.
const TopicOperations = "wallet.operations"

// OperationCompleted is published after a balance mutation commits.
// The anomaly detector consumes it to evaluate its checks outside the
// atomic scope of the mutation.
type OperationCompleted struct {
	EntryID    string           `json:"entry_id"`
	From       string           `json:"from"`
	To         string           `json:"to"`
	Type       models.EntryType `json:"type"`
	Amount     decimal.Decimal  `json:"amount"`
	Currency   models.Currency  `json:"currency"`
	OccurredAt time.Time        `json:"occurred_at"`
}
