// Package domain provides defenitions of all entities.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// EntryType classifies the cause of a balance change.
type EntryType string

// Supported ledger entry types.
const (
	EntryPurchase    EntryType = "purchase"
	EntryDeduction   EntryType = "deduction"
	EntryRefund      EntryType = "refund"
	EntryAdminAdd    EntryType = "admin_add"
	EntryAdminDeduct EntryType = "admin_deduct"
	EntryExpiry      EntryType = "expiry"
	EntrySignupBonus EntryType = "signup_bonus"
)

// EntryTypes lists every supported entry type.
var EntryTypes = []EntryType{
	EntryPurchase,
	EntryDeduction,
	EntryRefund,
	EntryAdminAdd,
	EntryAdminDeduct,
	EntryExpiry,
	EntrySignupBonus,
}

// ValidEntryType reports whether t is a supported entry type.
func ValidEntryType(t EntryType) bool {
	for _, known := range EntryTypes {
		if t == known {
			return true
		}
	}

	return false
}

var (
	// ErrZeroAmount indicates an entry with a zero delta.
	ErrZeroAmount = errors.New("entry amount must not be zero")
	// ErrNegativeAmount indicates a negative amount where a positive one is required.
	ErrNegativeAmount = errors.New("amount must be positive")
	// ErrUnknownEntryType indicates an unsupported entry type.
	ErrUnknownEntryType = errors.New("unknown entry type")
	// ErrBalanceCeiling indicates that the operation would push the balance over the maximum.
	ErrBalanceCeiling = errors.New("balance ceiling exceeded")
	// ErrEntryNotFound indicates that the entry is not found.
	ErrEntryNotFound = errors.New("ledger entry not found")
	// ErrInvariantViolation indicates internal ledger inconsistency.
	// It is never retried and always logged loudly.
	ErrInvariantViolation = errors.New("ledger invariant violation")
)

// InsufficientCreditsError indicates a debit larger than the available balance.
type InsufficientCreditsError struct {
	Required  int64 `json:"required"`
	Available int64 `json:"available"`
	Shortfall int64 `json:"shortfall"`
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d, shortfall %d",
		e.Required, e.Available, e.Shortfall)
}

// LedgerEntry is one immutable balance change. Entries are append-only:
// corrections are made with compensating entries, never updates.
type LedgerEntry struct {
	ID           int64     `json:"id"`
	AccountID    int64     `json:"account_id"`
	Type         EntryType `json:"type"`
	Amount       int64     `json:"amount"` // signed, positive = credit
	BalanceAfter int64     `json:"balance_after"`
	Reference    string    `json:"reference,omitempty"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AppendEntryParams is the input data for appending a ledger entry.
type AppendEntryParams struct {
	AccountID int64
	Type      EntryType
	Amount    int64
	Reference string
	Note      string
}

// AppendResult is the outcome of an atomic entry append: the new entry and
// the account projection updated in the same transaction.
type AppendResult struct {
	Entry   LedgerEntry `json:"entry"`
	Account Account     `json:"account"`
}

// ListEntriesParams is the input data to page through an account's history.
// Type, From and To are optional filters; zero values disable them.
type ListEntriesParams struct {
	AccountID int64
	Limit     int32
	Offset    int32
	Type      EntryType
	From      time.Time
	To        time.Time
}
