// Package purchaserepo manages repository layer of pending purchases.
package purchaserepo

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/gigdesk/credits/internal/domain"
	"github.com/gigdesk/credits/internal/ledgerrepo"
	"github.com/gigdesk/credits/pkg/dbpkg"
	"github.com/gigdesk/credits/pkg/errorspkg"
)

// RepoPGS facilitates purchase repository layer logic.
type RepoPGS struct {
	db         dbpkg.SQLInterface
	conn       *sql.DB
	maxBalance int64
}

// NewRepoPGS returns purchase RepoPGS with a connection to start transactions.
func NewRepoPGS(db *sql.DB, maxBalance int64) *RepoPGS {
	return &RepoPGS{
		db:         db,
		conn:       db,
		maxBalance: maxBalance,
	}
}

const createQuery = `
INSERT INTO
    pending_purchases (order_ref, account_id, credits_requested, amount_charged, expires_at)
VALUES
    ($1, $2, $3, $4, $5)
RETURNING order_ref, account_id, credits_requested, amount_charged, status, payment_id, confirmed_entry_id, created_at, expires_at
`

// Create reserves the purchase and then returns it.
func (r *RepoPGS) Create(ctx context.Context, arg domain.CreatePurchaseParams) (domain.PendingPurchase, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, createQuery,
		arg.OrderRef,
		arg.AccountID,
		arg.Credits,
		arg.AmountCharged,
		arg.ExpiresAt,
	)

	var p domain.PendingPurchase

	err := scanPurchase(row, &p)
	if err != nil {
		l.Error().Err(err).Msgf("Create(ctx, %+v)", arg)

		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Constraint {
			case "pending_purchases_account_id_fkey":
				return p, domain.ErrAccountNotFound
			case "pending_purchases_credits_requested_check":
				return p, domain.ErrNegativeAmount
			}
		}

		return p, errorspkg.ErrInternal
	}

	return p, nil
}

const getQuery = `
SELECT
	order_ref, account_id, credits_requested, amount_charged, status, payment_id, confirmed_entry_id, created_at, expires_at
FROM pending_purchases
WHERE order_ref = $1
`

// Get returns the purchase with the given order reference.
func (r *RepoPGS) Get(ctx context.Context, orderRef string) (domain.PendingPurchase, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, getQuery, orderRef)

	var p domain.PendingPurchase

	err := scanPurchase(row, &p)
	if err != nil {
		if err == sql.ErrNoRows {
			return p, domain.ErrPurchaseNotFound
		}

		l.Error().Err(err).Send()

		return p, errorspkg.ErrInternal
	}

	return p, nil
}

const getForUpdateQuery = getQuery + `
FOR UPDATE
`

// maxConfirmAttempts bounds retries on transient lock contention.
const maxConfirmAttempts = 3

// Confirm finishes the purchase state machine and credits the ledger.
//
// It locks the purchase row, appends the purchase ledger entry, and flips
// the status to confirmed within a single transaction. A purchase that was
// already confirmed with the same payment id is replayed idempotently: the
// recorded result is returned and no second entry is appended. Transient
// lock failures are retried a bounded number of times, then surfaced as
// errorspkg.ErrContention.
func (r *RepoPGS) Confirm(ctx context.Context, orderRef, paymentID string) (domain.ConfirmPurchaseResult, error) {
	l := zerolog.Ctx(ctx)

	var (
		result domain.ConfirmPurchaseResult
		err    error
	)

	for attempt := 0; attempt < maxConfirmAttempts; attempt++ {
		result, err = r.confirmTx(ctx, orderRef, paymentID)
		if !ledgerrepo.IsTransient(err) {
			return result, err
		}

		l.Warn().Err(err).Int("attempt", attempt+1).Msg("confirm lost lock race, retrying")
	}

	l.Error().Err(err).Send()

	return result, errorspkg.ErrContention
}

func (r *RepoPGS) confirmTx(ctx context.Context, orderRef, paymentID string) (domain.ConfirmPurchaseResult, error) {
	l := zerolog.Ctx(ctx)

	var result domain.ConfirmPurchaseResult

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		l.Error().Err(err).Send()
		return result, errorspkg.ErrInternal
	}

	defer func() {
		_ = tx.Rollback()
	}()

	var p domain.PendingPurchase

	err = scanPurchase(tx.QueryRowContext(ctx, getForUpdateQuery, orderRef), &p)
	if err != nil {
		if err == sql.ErrNoRows {
			return result, domain.ErrPurchaseNotFound
		}

		if ledgerrepo.IsTransient(err) {
			return result, err
		}

		l.Error().Err(err).Send()

		return result, errorspkg.ErrInternal
	}

	ledger := ledgerrepo.NewTxRepoPGS(tx, r.maxBalance)

	switch p.Status {
	case domain.PurchaseConfirmed:
		if p.PaymentID != paymentID {
			return result, domain.ErrAlreadyConfirmed
		}

		return r.replay(ctx, ledger, p)

	case domain.PurchaseFailed:
		return result, domain.ErrPurchaseFailed

	case domain.PurchaseExpired:
		return result, domain.ErrPurchaseExpired
	}

	if time.Now().After(p.ExpiresAt) {
		// Confirmation raced the sweeper; terminalize here.
		if _, err := tx.ExecContext(ctx, setStatusQuery, domain.PurchaseExpired, orderRef); err != nil {
			l.Error().Err(err).Send()
			return result, errorspkg.ErrInternal
		}

		if err := tx.Commit(); err != nil {
			if ledgerrepo.IsTransient(err) {
				return result, err
			}

			l.Error().Err(err).Send()

			return result, errorspkg.ErrInternal
		}

		return result, domain.ErrPurchaseExpired
	}

	appendResult, err := ledger.Append(ctx, domain.AppendEntryParams{
		AccountID: p.AccountID,
		Type:      domain.EntryPurchase,
		Amount:    p.CreditsRequested,
		Reference: p.OrderRef,
	})
	if err != nil {
		return result, err
	}

	row := tx.QueryRowContext(ctx, confirmQuery, paymentID, appendResult.Entry.ID, orderRef)

	err = scanPurchase(row, &result.Purchase)
	if err != nil {
		l.Error().Err(err).Send()
		return result, errorspkg.ErrInternal
	}

	if err := tx.Commit(); err != nil {
		if ledgerrepo.IsTransient(err) {
			return result, err
		}

		l.Error().Err(err).Send()

		return result, errorspkg.ErrInternal
	}

	result.Entry = appendResult.Entry
	result.Account = appendResult.Account

	return result, nil
}

const confirmQuery = `
UPDATE pending_purchases
SET status = 'confirmed', payment_id = $1, confirmed_entry_id = $2
WHERE order_ref = $3
RETURNING order_ref, account_id, credits_requested, amount_charged, status, payment_id, confirmed_entry_id, created_at, expires_at
`

// replay returns the already-recorded confirmation result.
func (r *RepoPGS) replay(ctx context.Context, ledger *ledgerrepo.RepoPGS, p domain.PendingPurchase) (domain.ConfirmPurchaseResult, error) {
	var result domain.ConfirmPurchaseResult

	entry, err := ledger.GetEntry(ctx, p.ConfirmedEntryID)
	if err != nil {
		return result, err
	}

	account, err := ledger.Get(ctx, p.AccountID)
	if err != nil {
		return result, err
	}

	result.Purchase = p
	result.Entry = entry
	result.Account = account

	return result, nil
}

const setStatusQuery = `
UPDATE pending_purchases
SET status = $1
WHERE order_ref = $2
`

const failQuery = `
UPDATE pending_purchases
SET status = 'failed'
WHERE order_ref = $1 AND status = 'pending'
`

// Fail marks a pending purchase failed. Terminal states are left untouched.
func (r *RepoPGS) Fail(ctx context.Context, orderRef string) error {
	l := zerolog.Ctx(ctx)

	res, err := r.db.ExecContext(ctx, failQuery, orderRef)
	if err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	n, err := res.RowsAffected()
	if err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	if n == 0 {
		p, err := r.Get(ctx, orderRef)
		if err != nil {
			return err
		}

		switch p.Status {
		case domain.PurchaseConfirmed:
			return domain.ErrAlreadyConfirmed
		case domain.PurchaseExpired:
			return domain.ErrPurchaseExpired
		case domain.PurchaseFailed:
			return nil
		}
	}

	return nil
}

const expireStaleQuery = `
UPDATE pending_purchases
SET status = 'expired'
WHERE status = 'pending' AND expires_at < now()
`

// ExpireStale terminalizes pending purchases whose confirmation window has
// closed and returns how many were expired.
func (r *RepoPGS) ExpireStale(ctx context.Context) (int64, error) {
	l := zerolog.Ctx(ctx)

	res, err := r.db.ExecContext(ctx, expireStaleQuery)
	if err != nil {
		l.Error().Err(err).Send()
		return 0, errorspkg.ErrInternal
	}

	n, err := res.RowsAffected()
	if err != nil {
		l.Error().Err(err).Send()
		return 0, errorspkg.ErrInternal
	}

	return n, nil
}

const getPackageQuery = `
SELECT id, name, credits, price, created_at
FROM credit_packages
WHERE id = $1
`

// GetPackage returns the credit package with the given id.
func (r *RepoPGS) GetPackage(ctx context.Context, id int64) (domain.CreditPackage, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, getPackageQuery, id)

	var pkg domain.CreditPackage

	err := row.Scan(&pkg.ID, &pkg.Name, &pkg.Credits, &pkg.Price, &pkg.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return pkg, domain.ErrPackageNotFound
		}

		l.Error().Err(err).Send()

		return pkg, errorspkg.ErrInternal
	}

	return pkg, nil
}

const listPackagesQuery = `
SELECT id, name, credits, price, created_at
FROM credit_packages
ORDER BY credits
`

// ListPackages returns all purchasable credit packages.
func (r *RepoPGS) ListPackages(ctx context.Context) ([]domain.CreditPackage, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listPackagesQuery)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}
	defer rows.Close()

	items := []domain.CreditPackage{}

	for rows.Next() {
		var pkg domain.CreditPackage
		if err := rows.Scan(&pkg.ID, &pkg.Name, &pkg.Credits, &pkg.Price, &pkg.CreatedAt); err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		items = append(items, pkg)
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}

	return items, nil
}

func scanPurchase(row *sql.Row, p *domain.PendingPurchase) error {
	return row.Scan(
		&p.OrderRef,
		&p.AccountID,
		&p.CreditsRequested,
		&p.AmountCharged,
		&p.Status,
		&p.PaymentID,
		&p.ConfirmedEntryID,
		&p.CreatedAt,
		&p.ExpiresAt,
	)
}
