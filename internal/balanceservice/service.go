// Package balanceservice manages business logic layer of the credits balance.
//
// Every balance mutation goes through the ledger append: the balance is
// never written independently of an entry.
package balanceservice

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gigdesk/credits/internal/domain"
	"github.com/gigdesk/credits/pkg/configpkg"
)

// Repo provides data access layer interface needed by balance service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package balanceservice
type Repo interface {
	OpenAccount(ctx context.Context, owner string, bonus int64, reference string) (domain.Account, error)
	Get(ctx context.Context, id int64) (domain.Account, error)
	GetByOwner(ctx context.Context, owner string) (domain.Account, error)
	Append(ctx context.Context, arg domain.AppendEntryParams) (domain.AppendResult, error)
	ListEntries(ctx context.Context, arg domain.ListEntriesParams) ([]domain.LedgerEntry, error)
	SumEntries(ctx context.Context, accountID int64) (sum, lastBalanceAfter int64, err error)
}

// Service facilitates balance service layer logic.
type Service struct {
	repo        Repo
	signupBonus int64
	reasonMin   int
}

// New returns balance service struct to manage balance bussines logic.
func New(lr Repo, config configpkg.Config) *Service {
	return &Service{
		repo:        lr,
		signupBonus: config.SignupBonus,
		reasonMin:   config.AdjustReasonMin,
	}
}

// Open creates a credits account for the owner with the configured signup
// bonus. Account creation and the bonus entry commit together, so a
// rejected bonus never leaves a bonusless account behind.
func (s *Service) Open(ctx context.Context, owner string) (domain.Account, error) {
	return s.repo.OpenAccount(ctx, owner, s.signupBonus, "signup")
}

// Credit appends a positive entry and returns the updated account.
func (s *Service) Credit(ctx context.Context, accountID, amount int64, entryType domain.EntryType, reference string) (domain.Account, error) {
	if amount <= 0 {
		return domain.Account{}, domain.ErrNegativeAmount
	}

	if !domain.ValidEntryType(entryType) {
		return domain.Account{}, domain.ErrUnknownEntryType
	}

	result, err := s.repo.Append(ctx, domain.AppendEntryParams{
		AccountID: accountID,
		Type:      entryType,
		Amount:    amount,
		Reference: reference,
	})
	if err != nil {
		return domain.Account{}, err
	}

	return result.Account, nil
}

// Debit appends a negative entry and returns the updated account.
// The repository rejects the append with InsufficientCreditsError when the
// balance cannot cover the amount; no partial state is left behind.
func (s *Service) Debit(ctx context.Context, accountID, amount int64, entryType domain.EntryType, reference string) (domain.Account, error) {
	if amount <= 0 {
		return domain.Account{}, domain.ErrNegativeAmount
	}

	if !domain.ValidEntryType(entryType) {
		return domain.Account{}, domain.ErrUnknownEntryType
	}

	result, err := s.repo.Append(ctx, domain.AppendEntryParams{
		AccountID: accountID,
		Type:      entryType,
		Amount:    -amount,
		Reference: reference,
	})
	if err != nil {
		return domain.Account{}, err
	}

	return result.Account, nil
}

// AdminAdjust applies a signed adjustment on behalf of an administrator.
// The floor of zero and the configured ceiling still apply. The reason is
// mandatory and recorded on the entry together with the admin id.
func (s *Service) AdminAdjust(ctx context.Context, accountID, delta int64, reason, adminID string) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	if delta == 0 {
		return domain.Account{}, domain.ErrZeroAmount
	}

	if len(strings.TrimSpace(reason)) < s.reasonMin {
		return domain.Account{}, domain.ErrReasonTooShort
	}

	entryType := domain.EntryAdminAdd
	if delta < 0 {
		entryType = domain.EntryAdminDeduct
	}

	result, err := s.repo.Append(ctx, domain.AppendEntryParams{
		AccountID: accountID,
		Type:      entryType,
		Amount:    delta,
		Reference: adminID,
		Note:      reason,
	})
	if err != nil {
		return domain.Account{}, err
	}

	l.Info().
		Str("admin_id", adminID).
		Int64("account_id", accountID).
		Int64("delta", delta).
		Str("reason", reason).
		Msg("admin balance adjustment")

	return result.Account, nil
}

// Get returns the account with the given id.
func (s *Service) Get(ctx context.Context, accountID int64) (domain.Account, error) {
	return s.repo.Get(ctx, accountID)
}

// GetByOwner returns the account owned by the given user.
func (s *Service) GetByOwner(ctx context.Context, owner string) (domain.Account, error) {
	return s.repo.GetByOwner(ctx, owner)
}

// History returns the account's ledger entries, most recent first.
func (s *Service) History(ctx context.Context, arg domain.ListEntriesParams) ([]domain.LedgerEntry, error) {
	if arg.Type != "" && !domain.ValidEntryType(arg.Type) {
		return nil, domain.ErrUnknownEntryType
	}

	if arg.Limit <= 0 {
		arg.Limit = 50
	}

	return s.repo.ListEntries(ctx, arg)
}

// Audit replays the account's entry log and compares it against the
// projection. A mismatch is a data corruption bug and is surfaced loudly.
func (s *Service) Audit(ctx context.Context, accountID int64) error {
	l := zerolog.Ctx(ctx)

	account, err := s.repo.Get(ctx, accountID)
	if err != nil {
		return err
	}

	sum, last, err := s.repo.SumEntries(ctx, accountID)
	if err != nil {
		return err
	}

	if account.Balance != sum || account.Balance != last {
		l.Error().
			Int64("account_id", accountID).
			Int64("projected", account.Balance).
			Int64("replayed_sum", sum).
			Int64("last_balance_after", last).
			Msg("balance projection diverged from entry log")

		return domain.ErrInvariantViolation
	}

	return nil
}
