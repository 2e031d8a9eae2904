// Package helpers provides seeded fixtures shared across integration tests.
package helpers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gigdesk/credits/internal/domain"
	"github.com/gigdesk/credits/pkg/passpkg"
	"github.com/gigdesk/credits/pkg/randompkg"
)

// SeedUser inserts a random user and returns it with the plaintext password.
func SeedUser(t *testing.T, db *sql.DB) (domain.User, string) {
	t.Helper()

	password := randompkg.String(10)

	hashed, err := passpkg.Hash(password)
	require.NoError(t, err)

	user := domain.User{
		Username:       randompkg.Owner(),
		HashedPassword: hashed,
		FullName:       randompkg.Owner(),
		Email:          randompkg.Email(),
		Role:           domain.RoleUser,
	}

	const query = `
	INSERT INTO users (username, hashed_password, full_name, email, role)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING created_at`

	err = db.QueryRowContext(context.Background(), query,
		user.Username, user.HashedPassword, user.FullName, user.Email, user.Role).
		Scan(&user.CreatedAt)
	require.NoError(t, err)

	return user, password
}

// SeedAdmin inserts a random user with the admin role.
func SeedAdmin(t *testing.T, db *sql.DB) (domain.User, string) {
	t.Helper()

	user, password := SeedUser(t, db)

	_, err := db.ExecContext(context.Background(),
		`UPDATE users SET role = $1 WHERE username = $2`, domain.RoleAdmin, user.Username)
	require.NoError(t, err)

	user.Role = domain.RoleAdmin

	return user, password
}

// SeedAccount inserts an account for the given owner with the given balance.
// The opening balance is backed by a matching ledger entry so the
// balance_after chain stays consistent.
func SeedAccount(t *testing.T, db *sql.DB, owner string, balance int64) domain.Account {
	t.Helper()

	acc := domain.Account{Owner: owner, Balance: balance}

	const insertAccount = `
	INSERT INTO accounts (owner, balance, total_purchased)
	VALUES ($1, $2, $2)
	RETURNING id, total_purchased, total_used, created_at`

	err := db.QueryRowContext(context.Background(), insertAccount, owner, balance).
		Scan(&acc.ID, &acc.TotalPurchased, &acc.TotalUsed, &acc.CreatedAt)
	require.NoError(t, err)

	if balance != 0 {
		const insertEntry = `
		INSERT INTO entries (account_id, type, amount, balance_after)
		VALUES ($1, $2, $3, $3)`

		_, err = db.ExecContext(context.Background(), insertEntry,
			acc.ID, domain.EntryPurchase, balance)
		require.NoError(t, err)
	}

	return acc
}

// SeedPackage inserts a credit package.
func SeedPackage(t *testing.T, db *sql.DB, credits int64, price string) domain.CreditPackage {
	t.Helper()

	pkg := domain.CreditPackage{
		Name:    randompkg.Owner(),
		Credits: credits,
		Price:   price,
	}

	const query = `
	INSERT INTO credit_packages (name, credits, price)
	VALUES ($1, $2, $3)
	RETURNING id, created_at`

	err := db.QueryRowContext(context.Background(), query, pkg.Name, pkg.Credits, pkg.Price).
		Scan(&pkg.ID, &pkg.CreatedAt)
	require.NoError(t, err)

	return pkg
}

// SeedPendingPurchase inserts a pending purchase expiring at the given time.
func SeedPendingPurchase(t *testing.T, db *sql.DB, accountID, credits int64, expiresAt time.Time) domain.PendingPurchase {
	t.Helper()

	purchase := domain.PendingPurchase{
		OrderRef:         uuid.NewString(),
		AccountID:        accountID,
		CreditsRequested: credits,
		AmountCharged:    "100.00",
		Status:           domain.PurchasePending,
		ExpiresAt:        expiresAt,
	}

	const query = `
	INSERT INTO pending_purchases (order_ref, account_id, credits_requested, amount_charged, expires_at)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING created_at`

	err := db.QueryRowContext(context.Background(), query,
		purchase.OrderRef, purchase.AccountID, purchase.CreditsRequested,
		purchase.AmountCharged, purchase.ExpiresAt).
		Scan(&purchase.CreatedAt)
	require.NoError(t, err)

	return purchase
}
