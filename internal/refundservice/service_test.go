package refundservice

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/gigdesk/credits/internal/domain"
	"github.com/gigdesk/credits/pkg/configpkg"
)

func testConfig() configpkg.Config {
	return configpkg.Config{
		FullRefundWindow:     30 * time.Minute,
		PartialRefundWindow:  24 * time.Hour,
		PartialRefundPercent: 50,
	}
}

func purchaseEntry(id, accountID, amount int64, age time.Duration) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:        id,
		AccountID: accountID,
		Type:      domain.EntryPurchase,
		Amount:    amount,
		CreatedAt: time.Now().Add(-age),
	}
}

func TestEvaluate(t *testing.T) {
	now := time.Now()

	service := New(nil, nil, testConfig())

	testCases := []struct {
		name      string
		entry     domain.LedgerEntry
		usedSince int64
		want      domain.RefundEligibility
	}{
		{
			name:      "FullWindowNothingUsed",
			entry:     purchaseEntry(1, 1, 10, 10*time.Minute),
			usedSince: 0,
			want: domain.RefundEligibility{
				Eligible:          true,
				Window:            domain.RefundWindowFull,
				Percent:           100,
				UnusedCredits:     10,
				RefundableCredits: 10,
			},
		},
		{
			name:      "FullWindowCappedAtUnused",
			entry:     purchaseEntry(1, 1, 10, 20*time.Minute),
			usedSince: 3,
			want: domain.RefundEligibility{
				Eligible:          true,
				Window:            domain.RefundWindowFull,
				Percent:           100,
				UnusedCredits:     7,
				RefundableCredits: 7,
			},
		},
		{
			name:      "PartialWindowHalf",
			entry:     purchaseEntry(1, 1, 10, 5*time.Hour),
			usedSince: 0,
			want: domain.RefundEligibility{
				Eligible:          true,
				Window:            domain.RefundWindowPartial,
				Percent:           50,
				UnusedCredits:     10,
				RefundableCredits: 5,
			},
		},
		{
			// Half of the 10-credit purchase is refundable and the unused 7
			// credits do not bind.
			name:      "PartialWindowPercentOfPurchase",
			entry:     purchaseEntry(1, 1, 10, 5*time.Hour),
			usedSince: 3,
			want: domain.RefundEligibility{
				Eligible:          true,
				Window:            domain.RefundWindowPartial,
				Percent:           50,
				UnusedCredits:     7,
				RefundableCredits: 5,
			},
		},
		{
			name:      "PartialWindowCappedAtUnused",
			entry:     purchaseEntry(1, 1, 10, 5*time.Hour),
			usedSince: 8,
			want: domain.RefundEligibility{
				Eligible:          true,
				Window:            domain.RefundWindowPartial,
				Percent:           50,
				UnusedCredits:     2,
				RefundableCredits: 2,
			},
		},
		{
			name:      "PartialWindowRoundsDown",
			entry:     purchaseEntry(1, 1, 5, 5*time.Hour),
			usedSince: 0,
			want: domain.RefundEligibility{
				Eligible:          true,
				Window:            domain.RefundWindowPartial,
				Percent:           50,
				UnusedCredits:     5,
				RefundableCredits: 2,
			},
		},
		{
			name:  "WindowExpired",
			entry: purchaseEntry(1, 1, 10, 48*time.Hour),
			want: domain.RefundEligibility{
				Window:        domain.RefundWindowClosed,
				UnusedCredits: 10,
				Reason:        domain.RefundReasonWindowExpired,
			},
		},
		{
			name:      "FullyUsed",
			entry:     purchaseEntry(1, 1, 10, 10*time.Minute),
			usedSince: 10,
			want: domain.RefundEligibility{
				Window:  domain.RefundWindowFull,
				Percent: 100,
				Reason:  domain.RefundReasonFullyUsed,
			},
		},
		{
			name:      "OverUsedClampsToZero",
			entry:     purchaseEntry(1, 1, 10, 10*time.Minute),
			usedSince: 15,
			want: domain.RefundEligibility{
				Window:  domain.RefundWindowFull,
				Percent: 100,
				Reason:  domain.RefundReasonFullyUsed,
			},
		},
		{
			name:  "NotAPurchase",
			entry: domain.LedgerEntry{ID: 1, AccountID: 1, Type: domain.EntryDeduction, Amount: -3, CreatedAt: now},
			want: domain.RefundEligibility{
				Window: domain.RefundWindowClosed,
				Reason: domain.RefundReasonNotPurchase,
			},
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := service.Evaluate(tc.entry, tc.usedSince, now)

			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Evaluate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApply(t *testing.T) {
	// Worked scenario: purchase 10 credits, spend 3, refund within the full
	// window. Unused attributable is 7, so 7 credits come back and the
	// balance moves from 7 to 14.
	entry := purchaseEntry(17, 1, 10, 20*time.Minute)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger := NewMockLedger(ctrl)
	balance := NewMockBalance(ctrl)

	ledger.EXPECT().
		GetEntry(gomock.Any(), gomock.Eq(int64(17))).
		Times(1).
		Return(entry, nil)

	ledger.EXPECT().
		HasRefundFor(gomock.Any(), gomock.Eq("17")).
		Times(1).
		Return(false, nil)

	ledger.EXPECT().
		DebitedSince(gomock.Any(), gomock.Eq(int64(1)), gomock.Eq(int64(17))).
		Times(1).
		Return(int64(3), nil)

	balance.EXPECT().
		Credit(gomock.Any(), gomock.Eq(int64(1)), gomock.Eq(int64(7)), gomock.Eq(domain.EntryRefund), gomock.Eq("17")).
		Times(1).
		Return(domain.Account{ID: 1, Balance: 14}, nil)

	service := New(ledger, balance, testConfig())

	account, err := service.Apply(context.Background(), 1, 17)
	require.NoError(t, err)
	require.Equal(t, int64(14), account.Balance)
}

func TestApplyIneligible(t *testing.T) {
	entry := purchaseEntry(17, 1, 10, 48*time.Hour)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger := NewMockLedger(ctrl)
	balance := NewMockBalance(ctrl)

	ledger.EXPECT().GetEntry(gomock.Any(), gomock.Any()).Times(1).Return(entry, nil)
	ledger.EXPECT().HasRefundFor(gomock.Any(), gomock.Any()).Times(1).Return(false, nil)
	ledger.EXPECT().DebitedSince(gomock.Any(), gomock.Any(), gomock.Any()).Times(1).Return(int64(0), nil)

	balance.EXPECT().Credit(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	service := New(ledger, balance, testConfig())

	_, err := service.Apply(context.Background(), 1, 17)

	var ineligibleErr *domain.RefundIneligibleError
	require.ErrorAs(t, err, &ineligibleErr)
	require.Equal(t, domain.RefundReasonWindowExpired, ineligibleErr.Reason)
}

func TestApplyAlreadyRefunded(t *testing.T) {
	entry := purchaseEntry(17, 1, 10, 10*time.Minute)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger := NewMockLedger(ctrl)
	balance := NewMockBalance(ctrl)

	ledger.EXPECT().GetEntry(gomock.Any(), gomock.Any()).Times(1).Return(entry, nil)
	ledger.EXPECT().HasRefundFor(gomock.Any(), gomock.Eq("17")).Times(1).Return(true, nil)

	balance.EXPECT().Credit(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	service := New(ledger, balance, testConfig())

	_, err := service.Apply(context.Background(), 1, 17)

	var ineligibleErr *domain.RefundIneligibleError
	require.ErrorAs(t, err, &ineligibleErr)
	require.Equal(t, domain.RefundReasonAlreadyDone, ineligibleErr.Reason)
}

func TestEligibilityWrongAccount(t *testing.T) {
	entry := purchaseEntry(17, 1, 10, 10*time.Minute)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger := NewMockLedger(ctrl)

	ledger.EXPECT().GetEntry(gomock.Any(), gomock.Any()).Times(1).Return(entry, nil)

	service := New(ledger, nil, testConfig())

	_, err := service.Eligibility(context.Background(), 2, 17)
	require.ErrorIs(t, err, domain.ErrEntryNotFound)
}
