package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a custodial wallet owner with one balance per currency.
// Balance keys are created lazily; a missing key means a zero balance.
type Account struct {
	ID        string                       `json:"id"`
	Email     string                       `json:"email"`
	Name      string                       `json:"name"`
	Balances  map[Currency]decimal.Decimal `json:"balances"`
	CreatedAt time.Time                    `json:"created_at"`
}

// EnsureCurrency inserts a zero balance for the currency if absent.
// Calling it again for an existing key is a no-op, so it never resets
// a nonzero balance.
func (a *Account) EnsureCurrency(c Currency) {
	if a.Balances == nil {
		a.Balances = make(map[Currency]decimal.Decimal)
	}
	if _, ok := a.Balances[c]; !ok {
		a.Balances[c] = decimal.Zero
	}
}

// Balance returns the current balance for the currency, zero if the key
// was never created.
func (a *Account) Balance(c Currency) decimal.Decimal {
	if a.Balances == nil {
		return decimal.Zero
	}
	return a.Balances[c]
}

// Credit adds amount to the currency balance of the loaded account.
// The change is in-memory only; it becomes durable when the enclosing
// atomic scope persists the account.
func (a *Account) Credit(c Currency, amount decimal.Decimal) {
	a.EnsureCurrency(c)
	a.Balances[c] = a.Balances[c].Add(amount)
}

// Debit subtracts amount from the currency balance. The caller must have
// verified sufficient funds; balances never go negative on a committed read.
func (a *Account) Debit(c Currency, amount decimal.Decimal) {
	a.EnsureCurrency(c)
	a.Balances[c] = a.Balances[c].Sub(amount)
}

// BalancesCopy returns a defensive copy of the balance map so callers
// cannot mutate engine-owned state.
func (a *Account) BalancesCopy() map[Currency]decimal.Decimal {
	out := make(map[Currency]decimal.Decimal, len(a.Balances))
	for c, v := range a.Balances {
		out[c] = v
	}
	return out
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	cp := *a
	cp.Balances = a.BalancesCopy()
	return &cp
}
