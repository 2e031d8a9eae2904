package domain

import (
	"errors"
	"time"
)

// PurchaseStatus is the lifecycle state of a pending purchase.
type PurchaseStatus string

// Purchase lifecycle states. Confirmed, failed and expired are terminal.
const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseConfirmed PurchaseStatus = "confirmed"
	PurchaseFailed    PurchaseStatus = "failed"
	PurchaseExpired   PurchaseStatus = "expired"
)

var (
	// ErrPurchaseNotFound indicates that the order reference is unknown.
	ErrPurchaseNotFound = errors.New("purchase not found")
	// ErrPurchaseExpired indicates that the confirmation window has closed.
	ErrPurchaseExpired = errors.New("purchase expired")
	// ErrPurchaseFailed indicates that the purchase already failed.
	ErrPurchaseFailed = errors.New("purchase failed")
	// ErrAlreadyConfirmed indicates a repeated confirmation with a different proof.
	ErrAlreadyConfirmed = errors.New("purchase already confirmed")
	// ErrSignatureMismatch indicates an invalid payment completion proof.
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	// ErrPackageNotFound indicates an unknown credit package.
	ErrPackageNotFound = errors.New("credit package not found")
	// ErrPurchaseTooSmall indicates a custom amount below the minimum purchase.
	ErrPurchaseTooSmall = errors.New("purchase amount below minimum")
	// ErrPurchaseTooLarge indicates a custom amount above the single purchase maximum.
	ErrPurchaseTooLarge = errors.New("purchase amount above maximum")
)

// PendingPurchase is a reserved, not-yet-confirmed credit purchase awaiting
// the gateway's payment confirmation. Rows are kept after reaching a
// terminal state for audit.
type PendingPurchase struct {
	OrderRef         string         `json:"order_ref"`
	AccountID        int64          `json:"account_id"`
	CreditsRequested int64          `json:"credits_requested"`
	AmountCharged    string         `json:"amount_charged"` // decimal string
	Status           PurchaseStatus `json:"status"`
	PaymentID        string         `json:"payment_id,omitempty"`
	ConfirmedEntryID int64          `json:"confirmed_entry_id,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	ExpiresAt        time.Time      `json:"expires_at"`
}

// CreditPackage is a fixed credits-for-price bundle.
type CreditPackage struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Credits   int64     `json:"credits"`
	Price     string    `json:"price"` // decimal string
	CreatedAt time.Time `json:"created_at"`
}

// InitiatePurchaseParams is the input data for reserving a purchase.
// Either PackageID or Credits must be set, not both.
type InitiatePurchaseParams struct {
	AccountID int64
	PackageID int64
	Credits   int64
}

// CreatePurchaseParams is the input data for persisting a reserved purchase.
type CreatePurchaseParams struct {
	OrderRef      string
	AccountID     int64
	Credits       int64
	AmountCharged string
	ExpiresAt     time.Time
}

// ConfirmPurchaseResult is the outcome of a successful or replayed confirmation.
type ConfirmPurchaseResult struct {
	Purchase PendingPurchase `json:"purchase"`
	Entry    LedgerEntry     `json:"entry"`
	Account  Account         `json:"account"`
}
