// Package wallet implements the balance mutation engine: deposits,
// withdrawals and transfers executed as atomic units of work against a
// shared store.
package wallet

import "errors"

// Domain errors returned by the engine. The HTTP layer maps each one to a
// distinguishable status code; everything else surfaces as ErrInternal with
// no storage detail attached.
var (
	// ErrInvalidAmount means the requested amount was zero or negative.
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrInsufficientBalance means the balance for the currency is smaller
	// than the requested debit.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrRecipientNotFound means the transfer recipient could not be
	// resolved to an existing account by id or email.
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrSelfTransfer means sender and recipient are the same account.
	ErrSelfTransfer = errors.New("cannot transfer to self")

	// ErrAccountNotFound means the referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrEmailTaken means an account with the email already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrValidation means a malformed ledger entry or an unsupported
	// currency was rejected at the boundary.
	ErrValidation = errors.New("validation failed")

	// ErrConflictRetryable is returned by stores on transient write-write
	// contention. The engine retries the whole atomic scope a bounded
	// number of times before giving up.
	ErrConflictRetryable = errors.New("transient write conflict")

	// ErrInternal is the generic failure surfaced to callers when an
	// unexpected storage or infrastructure error occurs.
	ErrInternal = errors.New("internal error")
)
