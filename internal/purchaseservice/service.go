// Package purchaseservice manages business logic layer of credit purchases.
package purchaseservice

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/gigdesk/credits/internal/domain"
	"github.com/gigdesk/credits/pkg/configpkg"
	"github.com/gigdesk/credits/pkg/signpkg"
)

// Repo provides data access layer interface needed by purchase service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package purchaseservice
type Repo interface {
	Create(ctx context.Context, arg domain.CreatePurchaseParams) (domain.PendingPurchase, error)
	Get(ctx context.Context, orderRef string) (domain.PendingPurchase, error)
	Confirm(ctx context.Context, orderRef, paymentID string) (domain.ConfirmPurchaseResult, error)
	Fail(ctx context.Context, orderRef string) error
	ExpireStale(ctx context.Context) (int64, error)
	GetPackage(ctx context.Context, id int64) (domain.CreditPackage, error)
	ListPackages(ctx context.Context) ([]domain.CreditPackage, error)
}

// Service facilitates purchase service layer logic.
type Service struct {
	repo           Repo
	verifier       *signpkg.Verifier
	minPurchase    int64
	maxPurchase    int64
	pricePerCredit decimal.Decimal
	ttl            time.Duration
}

// New returns purchase service struct to manage purchase bussines logic.
func New(pr Repo, config configpkg.Config) (*Service, error) {
	verifier, err := signpkg.NewVerifier(config.GatewaySecret)
	if err != nil {
		return nil, err
	}

	price, err := decimal.NewFromString(config.PricePerCredit)
	if err != nil {
		return nil, err
	}

	return &Service{
		repo:           pr,
		verifier:       verifier,
		minPurchase:    config.MinPurchase,
		maxPurchase:    config.MaxSinglePurchase,
		pricePerCredit: price,
		ttl:            config.PurchaseTTL,
	}, nil
}

// Initiate reserves a purchase for the account. A package id resolves to
// its fixed credits and price; a custom amount is validated against the
// configured bounds and priced at credits * price per credit.
func (s *Service) Initiate(ctx context.Context, arg domain.InitiatePurchaseParams) (domain.PendingPurchase, error) {
	var (
		credits int64
		price   string
	)

	if arg.PackageID != 0 {
		pkg, err := s.repo.GetPackage(ctx, arg.PackageID)
		if err != nil {
			return domain.PendingPurchase{}, err
		}

		credits = pkg.Credits
		price = pkg.Price
	} else {
		if arg.Credits < s.minPurchase {
			return domain.PendingPurchase{}, domain.ErrPurchaseTooSmall
		}

		if arg.Credits > s.maxPurchase {
			return domain.PendingPurchase{}, domain.ErrPurchaseTooLarge
		}

		credits = arg.Credits
		price = decimal.NewFromInt(credits).Mul(s.pricePerCredit).String()
	}

	purchase, err := s.repo.Create(ctx, domain.CreatePurchaseParams{
		OrderRef:      uuid.NewString(),
		AccountID:     arg.AccountID,
		Credits:       credits,
		AmountCharged: price,
		ExpiresAt:     time.Now().Add(s.ttl),
	})
	if err != nil {
		return domain.PendingPurchase{}, err
	}

	return purchase, nil
}

// Confirm verifies the gateway's payment completion proof and credits the
// purchase. Confirmation is idempotent: repeating a successful confirmation
// with the same proof returns the recorded result without a second credit.
func (s *Service) Confirm(ctx context.Context, orderRef, paymentID, signature string) (domain.ConfirmPurchaseResult, error) {
	l := zerolog.Ctx(ctx)

	if err := s.verifier.Verify(orderRef, paymentID, signature); err != nil {
		l.Warn().Str("order_ref", orderRef).Msg("rejected payment proof")
		return domain.ConfirmPurchaseResult{}, domain.ErrSignatureMismatch
	}

	result, err := s.repo.Confirm(ctx, orderRef, paymentID)
	if err != nil {
		return domain.ConfirmPurchaseResult{}, err
	}

	return result, nil
}

// Fail marks a pending purchase failed on a gateway decline.
func (s *Service) Fail(ctx context.Context, orderRef string) error {
	return s.repo.Fail(ctx, orderRef)
}

// Get returns the purchase with the given order reference.
func (s *Service) Get(ctx context.Context, orderRef string) (domain.PendingPurchase, error) {
	return s.repo.Get(ctx, orderRef)
}

// ListPackages returns all purchasable credit packages.
func (s *Service) ListPackages(ctx context.Context) ([]domain.CreditPackage, error) {
	return s.repo.ListPackages(ctx)
}

// RunExpirySweeper periodically terminalizes stale pending purchases until
// the context is cancelled.
func (s *Service) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	l := zerolog.Ctx(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.repo.ExpireStale(ctx)
			if err != nil {
				l.Error().Err(err).Msg("expiry sweep failed")
				continue
			}

			if n > 0 {
				l.Info().Int64("expired", n).Msg("expired stale purchases")
			}
		}
	}
}
