package domain

import "fmt"

// Refund ineligibility reasons.
const (
	RefundReasonWindowExpired = "window expired"
	RefundReasonFullyUsed     = "credits fully used"
	RefundReasonNotPurchase   = "entry is not a purchase"
	RefundReasonAlreadyDone   = "already refunded"
)

// RefundWindow names the policy tier a refund falls into.
type RefundWindow string

// Refund policy tiers.
const (
	RefundWindowFull    RefundWindow = "full"
	RefundWindowPartial RefundWindow = "partial"
	RefundWindowClosed  RefundWindow = "closed"
)

// RefundEligibility is the outcome of evaluating the refund policy for a
// purchase entry at a point in time.
type RefundEligibility struct {
	Eligible          bool         `json:"eligible"`
	Window            RefundWindow `json:"window"`
	Percent           int64        `json:"percent"`
	UnusedCredits     int64        `json:"unused_credits"`
	RefundableCredits int64        `json:"refundable_credits"`
	Reason            string       `json:"reason,omitempty"`
}

// RefundIneligibleError indicates that a refund cannot be applied and why.
type RefundIneligibleError struct {
	Reason string `json:"reason"`
}

func (e *RefundIneligibleError) Error() string {
	return fmt.Sprintf("refund ineligible: %s", e.Reason)
}
