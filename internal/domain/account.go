package domain

import (
	"errors"
	"time"
)

var (
	// ErrAccountNotFound indicates that the account is not found.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountAlreadyExists indicates that the owner already has a credits account.
	ErrAccountAlreadyExists = errors.New("account already exists")
	// ErrOwnerNotFound indicates that the owner for the account is not found.
	ErrOwnerNotFound = errors.New("owner not found")
	// ErrReasonTooShort indicates an admin adjustment without a meaningful reason.
	ErrReasonTooShort = errors.New("adjustment reason too short")
)

// Account is the read-optimized balance projection for one owner.
// It is derived from the entry log and rebuildable from it; the ledger
// is the single source of truth.
type Account struct {
	ID             int64     `json:"id"`
	Owner          string    `json:"owner"`
	Balance        int64     `json:"balance"`
	TotalPurchased int64     `json:"total_purchased"`
	TotalUsed      int64     `json:"total_used"`
	CreatedAt      time.Time `json:"created_at"`
}
