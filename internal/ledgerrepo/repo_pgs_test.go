package ledgerrepo

import (
	"context"
	"database/sql"
	"log"
	"os"
	"strconv"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/gigdesk/credits/internal/domain"
	"github.com/gigdesk/credits/internal/userrepo"
	"github.com/gigdesk/credits/pkg/configpkg"
	"github.com/gigdesk/credits/pkg/passpkg"
	"github.com/gigdesk/credits/pkg/randompkg"
)

var (
	testConfig   configpkg.Config
	testRepo     *RepoPGS
	testUserRepo *userrepo.RepoPGS
)

func TestMain(m *testing.M) {
	var err error

	testConfig, err = configpkg.Load("../../configs")
	if err != nil {
		log.Fatal("cannot load config:", err)
	}

	testDB, err := sql.Open(testConfig.DBDriver, testConfig.DBSource)
	if err != nil {
		log.Fatal("cannot connect to db:", err)
	}

	testRepo = NewRepoPGS(testDB, testConfig.MaxBalance)
	testUserRepo = userrepo.NewRepoPGS(testDB)

	os.Exit(m.Run())
}

func createRandomUser(t *testing.T) domain.User {
	t.Helper()

	hashedPassword, err := passpkg.Hash(randompkg.String(10))
	require.NoError(t, err)

	arg := domain.CreateUserParams{
		Username:       randompkg.Owner(),
		HashedPassword: hashedPassword,
		FullName:       randompkg.Owner(),
		Email:          randompkg.Email(),
	}

	testUser, err := testUserRepo.Create(context.Background(), arg)
	require.NoError(t, err)
	require.NotEmpty(t, testUser)

	return testUser
}

func createRandomAccount(t *testing.T) domain.Account {
	t.Helper()

	testUser := createRandomUser(t)

	account, err := testRepo.CreateAccount(context.Background(), testUser.Username)
	require.NoError(t, err)

	require.Equal(t, testUser.Username, account.Owner)
	require.Zero(t, account.Balance)
	require.Zero(t, account.TotalPurchased)
	require.Zero(t, account.TotalUsed)
	require.NotZero(t, account.ID)
	require.NotZero(t, account.CreatedAt)

	return account
}

func appendEntry(t *testing.T, accountID, amount int64, entryType domain.EntryType) domain.AppendResult {
	t.Helper()

	result, err := testRepo.Append(context.Background(), domain.AppendEntryParams{
		AccountID: accountID,
		Type:      entryType,
		Amount:    amount,
	})
	require.NoError(t, err)

	return result
}

func TestCreateAccount(t *testing.T) {
	createRandomAccount(t)
}

func TestCreateAccountConstraintViolations(t *testing.T) {
	account := createRandomAccount(t)

	_, err := testRepo.CreateAccount(context.Background(), account.Owner)
	require.ErrorIs(t, err, domain.ErrAccountAlreadyExists)

	_, err = testRepo.CreateAccount(context.Background(), randompkg.Owner())
	require.ErrorIs(t, err, domain.ErrOwnerNotFound)
}

func TestOpenAccount(t *testing.T) {
	testUser := createRandomUser(t)

	account, err := testRepo.OpenAccount(context.Background(), testUser.Username, 5, "signup")
	require.NoError(t, err)
	require.Equal(t, testUser.Username, account.Owner)
	require.Equal(t, int64(5), account.Balance)

	entries, err := testRepo.ListEntries(context.Background(), domain.ListEntriesParams{
		AccountID: account.ID,
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, domain.EntrySignupBonus, entries[0].Type)
	require.Equal(t, int64(5), entries[0].Amount)
	require.Equal(t, "signup", entries[0].Reference)
}

func TestOpenAccountBonusRollback(t *testing.T) {
	testUser := createRandomUser(t)

	// A bonus the ceiling rejects must roll the account creation back too.
	_, err := testRepo.OpenAccount(context.Background(), testUser.Username, testConfig.MaxBalance+1, "signup")
	require.ErrorIs(t, err, domain.ErrBalanceCeiling)

	_, err = testRepo.GetByOwner(context.Background(), testUser.Username)
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestGet(t *testing.T) {
	account := createRandomAccount(t)

	got, err := testRepo.Get(context.Background(), account.ID)
	require.NoError(t, err)
	require.Equal(t, account.ID, got.ID)
	require.Equal(t, account.Owner, got.Owner)

	_, err = testRepo.Get(context.Background(), account.ID+10_000)
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestGetByOwner(t *testing.T) {
	account := createRandomAccount(t)

	got, err := testRepo.GetByOwner(context.Background(), account.Owner)
	require.NoError(t, err)
	require.Equal(t, account.ID, got.ID)

	_, err = testRepo.GetByOwner(context.Background(), randompkg.Owner())
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestAppend(t *testing.T) {
	account := createRandomAccount(t)

	credited := appendEntry(t, account.ID, 10, domain.EntryPurchase)
	require.Equal(t, int64(10), credited.Entry.Amount)
	require.Equal(t, int64(10), credited.Entry.BalanceAfter)
	require.Equal(t, int64(10), credited.Account.Balance)
	require.Equal(t, int64(10), credited.Account.TotalPurchased)
	require.Zero(t, credited.Account.TotalUsed)

	debited := appendEntry(t, account.ID, -3, domain.EntryDeduction)
	require.Equal(t, int64(-3), debited.Entry.Amount)
	require.Equal(t, int64(7), debited.Entry.BalanceAfter)
	require.Equal(t, int64(7), debited.Account.Balance)
	require.Equal(t, int64(10), debited.Account.TotalPurchased)
	require.Equal(t, int64(3), debited.Account.TotalUsed)
}

func TestAppendInsufficientCredits(t *testing.T) {
	account := createRandomAccount(t)
	appendEntry(t, account.ID, 5, domain.EntryPurchase)

	_, err := testRepo.Append(context.Background(), domain.AppendEntryParams{
		AccountID: account.ID,
		Type:      domain.EntryDeduction,
		Amount:    -8,
	})

	var ice *domain.InsufficientCreditsError
	require.ErrorAs(t, err, &ice)
	require.Equal(t, int64(8), ice.Required)
	require.Equal(t, int64(5), ice.Available)
	require.Equal(t, int64(3), ice.Shortfall)

	// The rejected append must leave no trace.
	got, err := testRepo.Get(context.Background(), account.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5), got.Balance)
}

func TestAppendBalanceCeiling(t *testing.T) {
	account := createRandomAccount(t)

	_, err := testRepo.Append(context.Background(), domain.AppendEntryParams{
		AccountID: account.ID,
		Type:      domain.EntryPurchase,
		Amount:    testConfig.MaxBalance + 1,
	})
	require.ErrorIs(t, err, domain.ErrBalanceCeiling)
}

func TestAppendValidation(t *testing.T) {
	account := createRandomAccount(t)

	_, err := testRepo.Append(context.Background(), domain.AppendEntryParams{
		AccountID: account.ID,
		Type:      domain.EntryPurchase,
		Amount:    0,
	})
	require.ErrorIs(t, err, domain.ErrZeroAmount)

	_, err = testRepo.Append(context.Background(), domain.AppendEntryParams{
		AccountID: account.ID,
		Type:      domain.EntryType("withdrawal"),
		Amount:    5,
	})
	require.ErrorIs(t, err, domain.ErrUnknownEntryType)

	_, err = testRepo.Append(context.Background(), domain.AppendEntryParams{
		AccountID: account.ID + 10_000,
		Type:      domain.EntryPurchase,
		Amount:    5,
	})
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestAppendBalanceAfterChain(t *testing.T) {
	account := createRandomAccount(t)

	amounts := []int64{10, -2, 30, -8, -5}
	balance := int64(0)

	for _, amount := range amounts {
		entryType := domain.EntryPurchase
		if amount < 0 {
			entryType = domain.EntryDeduction
		}

		result := appendEntry(t, account.ID, amount, entryType)
		balance += amount
		require.Equal(t, balance, result.Entry.BalanceAfter)
	}

	sum, lastBalanceAfter, err := testRepo.SumEntries(context.Background(), account.ID)
	require.NoError(t, err)
	require.Equal(t, balance, sum)
	require.Equal(t, balance, lastBalanceAfter)

	got, err := testRepo.Get(context.Background(), account.ID)
	require.NoError(t, err)
	require.Equal(t, balance, got.Balance)
}

func TestListEntries(t *testing.T) {
	account := createRandomAccount(t)

	appendEntry(t, account.ID, 10, domain.EntryPurchase)
	appendEntry(t, account.ID, -2, domain.EntryDeduction)
	appendEntry(t, account.ID, 20, domain.EntryPurchase)

	all, err := testRepo.ListEntries(context.Background(), domain.ListEntriesParams{
		AccountID: account.ID,
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	require.Equal(t, int64(20), all[0].Amount)

	purchases, err := testRepo.ListEntries(context.Background(), domain.ListEntriesParams{
		AccountID: account.ID,
		Limit:     10,
		Type:      domain.EntryPurchase,
	})
	require.NoError(t, err)
	require.Len(t, purchases, 2)

	paged, err := testRepo.ListEntries(context.Background(), domain.ListEntriesParams{
		AccountID: account.ID,
		Limit:     1,
		Offset:    1,
	})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	require.Equal(t, int64(-2), paged[0].Amount)

	future, err := testRepo.ListEntries(context.Background(), domain.ListEntriesParams{
		AccountID: account.ID,
		Limit:     10,
		From:      time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.Empty(t, future)
}

func TestDebitedSince(t *testing.T) {
	account := createRandomAccount(t)

	purchase := appendEntry(t, account.ID, 10, domain.EntryPurchase)
	appendEntry(t, account.ID, -3, domain.EntryDeduction)
	appendEntry(t, account.ID, -1, domain.EntryDeduction)

	used, err := testRepo.DebitedSince(context.Background(), account.ID, purchase.Entry.ID)
	require.NoError(t, err)
	require.Equal(t, int64(4), used)
}

func TestRefundUniqueness(t *testing.T) {
	account := createRandomAccount(t)

	purchase := appendEntry(t, account.ID, 10, domain.EntryPurchase)
	reference := strconv.FormatInt(purchase.Entry.ID, 10)

	exists, err := testRepo.HasRefundFor(context.Background(), reference)
	require.NoError(t, err)
	require.False(t, exists)

	_, err = testRepo.Append(context.Background(), domain.AppendEntryParams{
		AccountID: account.ID,
		Type:      domain.EntryRefund,
		Amount:    5,
		Reference: reference,
	})
	require.NoError(t, err)

	exists, err = testRepo.HasRefundFor(context.Background(), reference)
	require.NoError(t, err)
	require.True(t, exists)

	// The partial unique index backstops the service-level check.
	_, err = testRepo.Append(context.Background(), domain.AppendEntryParams{
		AccountID: account.ID,
		Type:      domain.EntryRefund,
		Amount:    5,
		Reference: reference,
	})

	var ineligible *domain.RefundIneligibleError
	require.ErrorAs(t, err, &ineligible)
	require.Equal(t, domain.RefundReasonAlreadyDone, ineligible.Reason)
}

func TestGetEntry(t *testing.T) {
	account := createRandomAccount(t)
	result := appendEntry(t, account.ID, 10, domain.EntryPurchase)

	got, err := testRepo.GetEntry(context.Background(), result.Entry.ID)
	require.NoError(t, err)
	require.Equal(t, result.Entry.ID, got.ID)
	require.Equal(t, result.Entry.Amount, got.Amount)

	_, err = testRepo.GetEntry(context.Background(), result.Entry.ID+10_000)
	require.ErrorIs(t, err, domain.ErrEntryNotFound)
}

func TestAppendConcurrent(t *testing.T) {
	account := createRandomAccount(t)
	appendEntry(t, account.ID, 100, domain.EntryPurchase)

	const workers = 10

	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		go func() {
			_, err := testRepo.Append(context.Background(), domain.AppendEntryParams{
				AccountID: account.ID,
				Type:      domain.EntryDeduction,
				Amount:    -1,
			})
			errs <- err
		}()
	}

	for i := 0; i < workers; i++ {
		require.NoError(t, <-errs)
	}

	got, err := testRepo.Get(context.Background(), account.ID)
	require.NoError(t, err)
	require.Equal(t, int64(100-workers), got.Balance)
	require.Equal(t, int64(workers), got.TotalUsed)

	sum, lastBalanceAfter, err := testRepo.SumEntries(context.Background(), account.ID)
	require.NoError(t, err)
	require.Equal(t, got.Balance, sum)
	require.Equal(t, got.Balance, lastBalanceAfter)

	// Entries are stamped under the row lock, so created_at must be
	// non-decreasing in id order even for appends that raced for the lock.
	entries, err := testRepo.ListEntries(context.Background(), domain.ListEntriesParams{
		AccountID: account.ID,
		Limit:     workers + 1,
	})
	require.NoError(t, err)
	require.Len(t, entries, workers+1)

	for i := 1; i < len(entries); i++ {
		require.True(t, entries[i].ID < entries[i-1].ID)
		require.False(t, entries[i].CreatedAt.After(entries[i-1].CreatedAt),
			"entry %d created after entry %d", entries[i].ID, entries[i-1].ID)
	}
}
