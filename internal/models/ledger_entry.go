package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EntryType classifies a ledger entry.
type EntryType string

const (
	EntryDeposit  EntryType = "deposit"
	EntryWithdraw EntryType = "withdraw"
	EntryTransfer EntryType = "transfer"
)

// Valid reports whether the type is one of the recognized entry types.
func (t EntryType) Valid() bool {
	switch t {
	case EntryDeposit, EntryWithdraw, EntryTransfer:
		return true
	}
	return false
}

// LedgerEntry is an immutable record of a completed money movement.
// For deposits and withdrawals From equals To.
type LedgerEntry struct {
	ID        string          `json:"id"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Type      EntryType       `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  Currency        `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
}

// Validate checks the append invariants: positive amount, recognized type,
// supported currency, both account references present.
func (e LedgerEntry) Validate() error {
	if !e.Amount.IsPositive() {
		return fmt.Errorf("ledger entry amount must be positive, got %s", e.Amount)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("unknown ledger entry type %q", e.Type)
	}
	if !e.Currency.Valid() {
		return fmt.Errorf("unsupported currency %q", e.Currency)
	}
	if e.From == "" || e.To == "" {
		return fmt.Errorf("ledger entry must reference both accounts")
	}
	return nil
}
