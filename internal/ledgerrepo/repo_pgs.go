// Package ledgerrepo manages repository layer of the credits ledger.
//
// The entries table is append-only: the only write it ever sees is an
// INSERT, and every insert carries the balance snapshot taken under the
// account row lock. The accounts table is the derived projection and is
// updated in the same transaction as the entry insert.
package ledgerrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/gigdesk/credits/internal/domain"
	"github.com/gigdesk/credits/pkg/dbpkg"
	"github.com/gigdesk/credits/pkg/errorspkg"
)

// maxAppendAttempts bounds retries on transient lock contention.
const maxAppendAttempts = 3

// RepoPGS facilitates ledger repository layer logic.
type RepoPGS struct {
	db         dbpkg.SQLInterface
	conn       *sql.DB
	maxBalance int64
}

// NewRepoPGS returns a ledger RepoPGS with a connection to start transactions.
func NewRepoPGS(db *sql.DB, maxBalance int64) *RepoPGS {
	return &RepoPGS{
		db:         db,
		conn:       db,
		maxBalance: maxBalance,
	}
}

// NewTxRepoPGS returns a ledger RepoPGS bound to an already open transaction.
// Append then relies on the caller for atomicity and commit.
func NewTxRepoPGS(db dbpkg.SQLInterface, maxBalance int64) *RepoPGS {
	return &RepoPGS{
		db:         db,
		maxBalance: maxBalance,
	}
}

const createAccountQuery = `
INSERT INTO
    accounts (owner)
VALUES
    ($1)
RETURNING id, owner, balance, total_purchased, total_used, created_at
`

// CreateAccount creates an empty credits account for the owner and returns it.
func (r *RepoPGS) CreateAccount(ctx context.Context, owner string) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, createAccountQuery, owner)

	var a domain.Account

	err := scanAccount(row, &a)
	if err != nil {
		l.Error().Err(err).Send()

		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Constraint {
			case "accounts_owner_fkey":
				return a, domain.ErrOwnerNotFound
			case "accounts_owner_key":
				return a, domain.ErrAccountAlreadyExists
			}
		}

		return a, errorspkg.ErrInternal
	}

	return a, nil
}

// OpenAccount creates the owner's account and appends its opening bonus
// entry in one transaction, so a rejected bonus leaves no account behind.
// A zero bonus just creates the account.
func (r *RepoPGS) OpenAccount(ctx context.Context, owner string, bonus int64, reference string) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		l.Error().Err(err).Send()
		return domain.Account{}, errorspkg.ErrInternal
	}

	defer func() {
		_ = tx.Rollback()
	}()

	txRepo := NewTxRepoPGS(tx, r.maxBalance)

	account, err := txRepo.CreateAccount(ctx, owner)
	if err != nil {
		return domain.Account{}, err
	}

	if bonus != 0 {
		result, err := txRepo.Append(ctx, domain.AppendEntryParams{
			AccountID: account.ID,
			Type:      domain.EntrySignupBonus,
			Amount:    bonus,
			Reference: reference,
		})
		if err != nil {
			return domain.Account{}, err
		}

		account = result.Account
	}

	if err := tx.Commit(); err != nil {
		l.Error().Err(err).Send()
		return domain.Account{}, errorspkg.ErrInternal
	}

	return account, nil
}

const getAccountQuery = `
SELECT
	id, owner, balance, total_purchased, total_used, created_at
FROM accounts
WHERE id = $1
`

// Get returns the account with the given id.
func (r *RepoPGS) Get(ctx context.Context, id int64) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, getAccountQuery, id)

	var a domain.Account

	err := scanAccount(row, &a)
	if err != nil {
		if err == sql.ErrNoRows {
			return a, domain.ErrAccountNotFound
		}

		l.Error().Err(err).Send()

		return a, errorspkg.ErrInternal
	}

	return a, nil
}

const getAccountByOwnerQuery = `
SELECT
	id, owner, balance, total_purchased, total_used, created_at
FROM accounts
WHERE owner = $1
`

// GetByOwner returns the account owned by the given user.
func (r *RepoPGS) GetByOwner(ctx context.Context, owner string) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, getAccountByOwnerQuery, owner)

	var a domain.Account

	err := scanAccount(row, &a)
	if err != nil {
		if err == sql.ErrNoRows {
			return a, domain.ErrAccountNotFound
		}

		l.Error().Err(err).Send()

		return a, errorspkg.ErrInternal
	}

	return a, nil
}

// Append atomically appends a ledger entry and updates the balance
// projection. The account row is locked for the duration of the
// transaction so concurrent appends on one account are strictly
// serialized. Transient lock failures are retried a bounded number of
// times, then surfaced as errorspkg.ErrContention.
func (r *RepoPGS) Append(ctx context.Context, arg domain.AppendEntryParams) (domain.AppendResult, error) {
	l := zerolog.Ctx(ctx)

	if r.conn == nil {
		// Caller owns the transaction.
		return r.apply(ctx, r.db, arg)
	}

	var (
		result domain.AppendResult
		err    error
	)

	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		result, err = r.appendTx(ctx, arg)
		if !IsTransient(err) {
			return result, err
		}

		l.Warn().Err(err).Int("attempt", attempt+1).Msg("append lost lock race, retrying")
	}

	l.Error().Err(err).Send()

	return result, errorspkg.ErrContention
}

func (r *RepoPGS) appendTx(ctx context.Context, arg domain.AppendEntryParams) (domain.AppendResult, error) {
	l := zerolog.Ctx(ctx)

	var result domain.AppendResult

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		l.Error().Err(err).Send()
		return result, errorspkg.ErrInternal
	}

	defer func() {
		_ = tx.Rollback()
	}()

	result, err = r.apply(ctx, tx, arg)
	if err != nil {
		return result, err
	}

	if err := tx.Commit(); err != nil {
		l.Error().Err(err).Send()
		return result, errorspkg.ErrInternal
	}

	return result, nil
}

const lockAccountQuery = `
SELECT
	id, owner, balance, total_purchased, total_used, created_at
FROM accounts
WHERE id = $1
FOR UPDATE
`

const insertEntryQuery = `
INSERT INTO
    entries (account_id, type, amount, balance_after, reference, note)
VALUES
    ($1, $2, $3, $4, $5, $6)
RETURNING id, account_id, type, amount, balance_after, reference, note, created_at
`

const updateProjectionQuery = `
UPDATE accounts
SET balance = $1, total_purchased = $2, total_used = $3
WHERE id = $4
RETURNING id, owner, balance, total_purchased, total_used, created_at
`

// apply performs the append against q, which must provide per-account
// mutual exclusion via the row lock taken here.
func (r *RepoPGS) apply(ctx context.Context, q dbpkg.SQLInterface, arg domain.AppendEntryParams) (domain.AppendResult, error) {
	l := zerolog.Ctx(ctx)

	var result domain.AppendResult

	if arg.Amount == 0 {
		return result, domain.ErrZeroAmount
	}

	if !domain.ValidEntryType(arg.Type) {
		return result, domain.ErrUnknownEntryType
	}

	var a domain.Account

	err := scanAccount(q.QueryRowContext(ctx, lockAccountQuery, arg.AccountID), &a)
	if err != nil {
		if err == sql.ErrNoRows {
			return result, domain.ErrAccountNotFound
		}

		l.Error().Err(err).Send()

		return result, mapPQError(err)
	}

	balanceAfter := a.Balance + arg.Amount

	if balanceAfter < 0 {
		return result, &domain.InsufficientCreditsError{
			Required:  -arg.Amount,
			Available: a.Balance,
			Shortfall: -balanceAfter,
		}
	}

	if r.maxBalance > 0 && balanceAfter > r.maxBalance {
		return result, domain.ErrBalanceCeiling
	}

	row := q.QueryRowContext(ctx, insertEntryQuery,
		arg.AccountID,
		arg.Type,
		arg.Amount,
		balanceAfter,
		arg.Reference,
		arg.Note,
	)

	err = scanEntry(row, &result.Entry)
	if err != nil {
		l.Error().Err(err).Msgf("apply(ctx, q, %+v)", arg)
		return result, mapPQError(err)
	}

	totalPurchased := a.TotalPurchased
	if arg.Type == domain.EntryPurchase {
		totalPurchased += arg.Amount
	}

	totalUsed := a.TotalUsed
	if arg.Amount < 0 {
		totalUsed += -arg.Amount
	}

	row = q.QueryRowContext(ctx, updateProjectionQuery,
		balanceAfter,
		totalPurchased,
		totalUsed,
		arg.AccountID,
	)

	err = scanAccount(row, &result.Account)
	if err != nil {
		l.Error().Err(err).Send()
		return result, mapPQError(err)
	}

	if result.Account.Balance != result.Entry.BalanceAfter {
		l.Error().
			Int64("account_balance", result.Account.Balance).
			Int64("balance_after", result.Entry.BalanceAfter).
			Msg("projection diverged from entry snapshot")

		return result, domain.ErrInvariantViolation
	}

	return result, nil
}

const getEntryQuery = `
SELECT
	id, account_id, type, amount, balance_after, reference, note, created_at
FROM entries
WHERE id = $1
`

// GetEntry returns the ledger entry with the given id.
func (r *RepoPGS) GetEntry(ctx context.Context, id int64) (domain.LedgerEntry, error) {
	l := zerolog.Ctx(ctx)

	var e domain.LedgerEntry

	err := scanEntry(r.db.QueryRowContext(ctx, getEntryQuery, id), &e)
	if err != nil {
		if err == sql.ErrNoRows {
			return e, domain.ErrEntryNotFound
		}

		l.Error().Err(err).Send()

		return e, errorspkg.ErrInternal
	}

	return e, nil
}

const listEntriesQuery = `
SELECT
	id, account_id, type, amount, balance_after, reference, note, created_at
FROM entries
WHERE account_id = $1
  AND ($2 = '' OR type = $2)
  AND (CAST($3 AS timestamptz) IS NULL OR created_at >= $3)
  AND (CAST($4 AS timestamptz) IS NULL OR created_at <= $4)
ORDER BY id DESC
LIMIT $5 OFFSET $6
`

// ListEntries returns the account's history, most recent first.
func (r *RepoPGS) ListEntries(ctx context.Context, arg domain.ListEntriesParams) ([]domain.LedgerEntry, error) {
	l := zerolog.Ctx(ctx)

	var from, to interface{}
	if !arg.From.IsZero() {
		from = arg.From
	}

	if !arg.To.IsZero() {
		to = arg.To
	}

	rows, err := r.db.QueryContext(ctx, listEntriesQuery,
		arg.AccountID,
		string(arg.Type),
		from,
		to,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}
	defer rows.Close()

	items := []domain.LedgerEntry{}

	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(
			&e.ID,
			&e.AccountID,
			&e.Type,
			&e.Amount,
			&e.BalanceAfter,
			&e.Reference,
			&e.Note,
			&e.CreatedAt,
		); err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		items = append(items, e)
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}

	return items, nil
}

const debitedSinceQuery = `
SELECT COALESCE(SUM(-amount), 0)
FROM entries
WHERE account_id = $1 AND id > $2 AND amount < 0
`

// DebitedSince returns the total credits debited from the account after the
// given entry. Used to compute the unused portion of a purchase.
func (r *RepoPGS) DebitedSince(ctx context.Context, accountID, entryID int64) (int64, error) {
	l := zerolog.Ctx(ctx)

	var used int64

	err := r.db.QueryRowContext(ctx, debitedSinceQuery, accountID, entryID).Scan(&used)
	if err != nil {
		l.Error().Err(err).Send()
		return 0, errorspkg.ErrInternal
	}

	return used, nil
}

const hasRefundForQuery = `
SELECT EXISTS (
	SELECT 1 FROM entries WHERE type = 'refund' AND reference = $1
)
`

// HasRefundFor reports whether a refund entry referencing the given
// purchase entry already exists.
func (r *RepoPGS) HasRefundFor(ctx context.Context, reference string) (bool, error) {
	l := zerolog.Ctx(ctx)

	var exists bool

	err := r.db.QueryRowContext(ctx, hasRefundForQuery, reference).Scan(&exists)
	if err != nil {
		l.Error().Err(err).Send()
		return false, errorspkg.ErrInternal
	}

	return exists, nil
}

const sumEntriesQuery = `
SELECT
	COALESCE(SUM(amount), 0),
	COALESCE((SELECT balance_after FROM entries WHERE account_id = $1 ORDER BY id DESC LIMIT 1), 0)
FROM entries
WHERE account_id = $1
`

// SumEntries replays the account's entry log and returns the summed deltas
// together with the latest balance_after snapshot. Both must equal the
// projection's balance.
func (r *RepoPGS) SumEntries(ctx context.Context, accountID int64) (sum, lastBalanceAfter int64, err error) {
	l := zerolog.Ctx(ctx)

	err = r.db.QueryRowContext(ctx, sumEntriesQuery, accountID).Scan(&sum, &lastBalanceAfter)
	if err != nil {
		l.Error().Err(err).Send()
		return 0, 0, errorspkg.ErrInternal
	}

	return sum, lastBalanceAfter, nil
}

func scanAccount(row *sql.Row, a *domain.Account) error {
	return row.Scan(
		&a.ID,
		&a.Owner,
		&a.Balance,
		&a.TotalPurchased,
		&a.TotalUsed,
		&a.CreatedAt,
	)
}

func scanEntry(row *sql.Row, e *domain.LedgerEntry) error {
	return row.Scan(
		&e.ID,
		&e.AccountID,
		&e.Type,
		&e.Amount,
		&e.BalanceAfter,
		&e.Reference,
		&e.Note,
		&e.CreatedAt,
	)
}

func mapPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if IsTransient(err) {
			// Preserved for the retry loop in Append.
			return err
		}

		switch pqErr.Constraint {
		case "entries_amount_check":
			return domain.ErrZeroAmount
		case "entries_account_id_fkey":
			return domain.ErrAccountNotFound
		case "entries_refund_reference_key":
			return &domain.RefundIneligibleError{Reason: domain.RefundReasonAlreadyDone}
		case "accounts_balance_check":
			// The row lock should have made this unreachable.
			return domain.ErrInvariantViolation
		}
	}

	return errorspkg.ErrInternal
}

// IsTransient reports whether err is a transient lock failure worth
// retrying. Repos composing ledger appends into their own transactions
// use it to run the same bounded-retry loop as Append.
func IsTransient(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	// serialization_failure, deadlock_detected
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}
