// Package refundservice manages business logic layer of credit refunds.
package refundservice

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/gigdesk/credits/internal/domain"
	"github.com/gigdesk/credits/pkg/configpkg"
)

// Ledger provides the read access needed to evaluate refund policy.
//
//go:generate mockgen -source service.go -destination service_mock.go -package refundservice
type Ledger interface {
	GetEntry(ctx context.Context, id int64) (domain.LedgerEntry, error)
	DebitedSince(ctx context.Context, accountID, entryID int64) (int64, error)
	HasRefundFor(ctx context.Context, reference string) (bool, error)
}

// Balance provides the balance mutations needed to apply a refund.
type Balance interface {
	Credit(ctx context.Context, accountID, amount int64, entryType domain.EntryType, reference string) (domain.Account, error)
}

// Service facilitates refund service layer logic.
type Service struct {
	ledger         Ledger
	balance        Balance
	fullWindow     time.Duration
	partialWindow  time.Duration
	partialPercent int64
}

// New returns refund service struct to manage refund bussines logic.
func New(lr Ledger, bs Balance, config configpkg.Config) *Service {
	return &Service{
		ledger:         lr,
		balance:        bs,
		fullWindow:     config.FullRefundWindow,
		partialWindow:  config.PartialRefundWindow,
		partialPercent: config.PartialRefundPercent,
	}
}

// RefundReference is the reference recorded on a refund entry for the given
// source purchase entry. One refund per source entry is enforced on it.
func RefundReference(entryID int64) string {
	return strconv.FormatInt(entryID, 10)
}

// Evaluate is the pure refund policy: given the source purchase entry, the
// credits debited since it, and the current time, it computes the
// eligibility tier and the refundable amount.
//
// The tier percentage applies to the purchase amount, rounded down, and the
// result is capped at the unused portion of the purchase.
func (s *Service) Evaluate(entry domain.LedgerEntry, usedSince int64, now time.Time) domain.RefundEligibility {
	if entry.Type != domain.EntryPurchase {
		return domain.RefundEligibility{
			Window: domain.RefundWindowClosed,
			Reason: domain.RefundReasonNotPurchase,
		}
	}

	unused := entry.Amount - usedSince
	if unused < 0 {
		unused = 0
	}

	elapsed := now.Sub(entry.CreatedAt)

	var (
		window  domain.RefundWindow
		percent int64
	)

	switch {
	case elapsed <= s.fullWindow:
		window, percent = domain.RefundWindowFull, 100
	case elapsed <= s.partialWindow:
		window, percent = domain.RefundWindowPartial, s.partialPercent
	default:
		return domain.RefundEligibility{
			Window:        domain.RefundWindowClosed,
			UnusedCredits: unused,
			Reason:        domain.RefundReasonWindowExpired,
		}
	}

	refundable := decimal.NewFromInt(entry.Amount).
		Mul(decimal.NewFromInt(percent)).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()
	if refundable > unused {
		refundable = unused
	}

	if refundable == 0 {
		return domain.RefundEligibility{
			Window:        window,
			Percent:       percent,
			UnusedCredits: unused,
			Reason:        domain.RefundReasonFullyUsed,
		}
	}

	return domain.RefundEligibility{
		Eligible:          true,
		Window:            window,
		Percent:           percent,
		UnusedCredits:     unused,
		RefundableCredits: refundable,
	}
}

// Eligibility evaluates the refund policy for the account's purchase entry.
func (s *Service) Eligibility(ctx context.Context, accountID, entryID int64) (domain.RefundEligibility, error) {
	eligibility, _, err := s.eligibility(ctx, accountID, entryID)
	return eligibility, err
}

func (s *Service) eligibility(ctx context.Context, accountID, entryID int64) (domain.RefundEligibility, domain.LedgerEntry, error) {
	entry, err := s.ledger.GetEntry(ctx, entryID)
	if err != nil {
		return domain.RefundEligibility{}, entry, err
	}

	if entry.AccountID != accountID {
		return domain.RefundEligibility{}, entry, domain.ErrEntryNotFound
	}

	refunded, err := s.ledger.HasRefundFor(ctx, RefundReference(entry.ID))
	if err != nil {
		return domain.RefundEligibility{}, entry, err
	}

	if refunded {
		return domain.RefundEligibility{
			Window: domain.RefundWindowClosed,
			Reason: domain.RefundReasonAlreadyDone,
		}, entry, nil
	}

	usedSince, err := s.ledger.DebitedSince(ctx, entry.AccountID, entry.ID)
	if err != nil {
		return domain.RefundEligibility{}, entry, err
	}

	return s.Evaluate(entry, usedSince, time.Now()), entry, nil
}

// Apply re-checks eligibility and credits the refundable amount back,
// referencing the source purchase entry. The source entry is never touched.
func (s *Service) Apply(ctx context.Context, accountID, entryID int64) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	eligibility, entry, err := s.eligibility(ctx, accountID, entryID)
	if err != nil {
		return domain.Account{}, err
	}

	if !eligibility.Eligible {
		return domain.Account{}, &domain.RefundIneligibleError{Reason: eligibility.Reason}
	}

	account, err := s.balance.Credit(ctx, entry.AccountID, eligibility.RefundableCredits,
		domain.EntryRefund, RefundReference(entry.ID))
	if err != nil {
		return domain.Account{}, err
	}

	l.Info().
		Int64("account_id", entry.AccountID).
		Int64("source_entry_id", entry.ID).
		Int64("refunded", eligibility.RefundableCredits).
		Str("window", string(eligibility.Window)).
		Msg("refund applied")

	return account, nil
}
