package models

import "time"

// FlaggedTransaction is an advisory record created by the anomaly detector
// when a heuristic suspects an operation. It never blocks the operation it
// refers to, and its absence carries no guarantee of innocence.
type FlaggedTransaction struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	EntryID   string    `json:"entry_id,omitempty"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
