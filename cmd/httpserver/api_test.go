package httpserver_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/gigdesk/credits/cmd/httpserver"
	"github.com/gigdesk/credits/internal/domain"
	"github.com/gigdesk/credits/internal/integrationtest"
	"github.com/gigdesk/credits/internal/integrationtest/helpers"
	"github.com/gigdesk/credits/pkg/randompkg"
	"github.com/gigdesk/credits/pkg/signpkg"
)

func do(t *testing.T, server *httpserver.Server, method, url, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(method, url, bytes.NewReader(data))
	require.NoError(t, err)

	if token != "" {
		req.Header.Set("authorization", "bearer "+token)
	}

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)

	return recorder
}

func decode(t *testing.T, recorder *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), out))
}

func signup(t *testing.T, server *httpserver.Server) (username, token string) {
	t.Helper()

	username = randompkg.Owner()

	recorder := do(t, server, http.MethodPost, "/users", "", gin.H{
		"username": username,
		"password": randompkg.String(10),
		"fullname": randompkg.Owner(),
		"email":    randompkg.Email(),
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var res struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, recorder, &res)
	require.NotEmpty(t, res.AccessToken)

	return username, res.AccessToken
}

func getBalance(t *testing.T, server *httpserver.Server, token string) domain.Account {
	t.Helper()

	recorder := do(t, server, http.MethodGet, "/balance", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var res struct {
		Data struct {
			Account domain.Account `json:"account"`
		} `json:"data"`
	}
	decode(t, recorder, &res)

	return res.Data.Account
}

// TestPurchaseJourney walks the whole credit lifecycle through the public
// API: signup bonus, purchase, spend, refund.
func TestPurchaseJourney(t *testing.T) {
	server := integrationtest.SetupServer(t)

	verifier, err := signpkg.NewVerifier(server.Config.GatewaySecret)
	require.NoError(t, err)

	_, token := signup(t, server)

	account := getBalance(t, server, token)
	require.Equal(t, server.Config.SignupBonus, account.Balance)

	// Reserve a purchase of 10 credits.
	recorder := do(t, server, http.MethodPost, "/purchases", token, gin.H{"credits": 10})
	require.Equal(t, http.StatusOK, recorder.Code)

	var initiated struct {
		Data struct {
			Purchase domain.PendingPurchase `json:"purchase"`
		} `json:"data"`
	}
	decode(t, recorder, &initiated)

	orderRef := initiated.Data.Purchase.OrderRef
	require.NotEmpty(t, orderRef)
	require.Equal(t, domain.PurchasePending, initiated.Data.Purchase.Status)

	// A forged proof is rejected and grants nothing.
	recorder = do(t, server, http.MethodPost, fmt.Sprintf("/purchases/%s/confirm", orderRef), token,
		gin.H{"payment_id": "pay_1", "signature": "deadbeef"})
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.Equal(t, server.Config.SignupBonus, getBalance(t, server, token).Balance)

	// The gateway's real proof confirms the purchase.
	signature := verifier.Sign(orderRef, "pay_1")
	confirmURL := fmt.Sprintf("/purchases/%s/confirm", orderRef)

	recorder = do(t, server, http.MethodPost, confirmURL, token,
		gin.H{"payment_id": "pay_1", "signature": signature})
	require.Equal(t, http.StatusOK, recorder.Code)

	var confirmed struct {
		Data domain.ConfirmPurchaseResult `json:"data"`
	}
	decode(t, recorder, &confirmed)
	require.Equal(t, domain.PurchaseConfirmed, confirmed.Data.Purchase.Status)
	require.Equal(t, int64(10), confirmed.Data.Entry.Amount)

	wantBalance := server.Config.SignupBonus + 10
	require.Equal(t, wantBalance, getBalance(t, server, token).Balance)

	// Replaying the gateway callback changes nothing.
	recorder = do(t, server, http.MethodPost, confirmURL, token,
		gin.H{"payment_id": "pay_1", "signature": signature})
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, wantBalance, getBalance(t, server, token).Balance)

	// Spend three credits.
	recorder = do(t, server, http.MethodPost, "/balance/deduct", token,
		gin.H{"amount": 3, "reference": "task-1"})
	require.Equal(t, http.StatusOK, recorder.Code)

	wantBalance -= 3
	require.Equal(t, wantBalance, getBalance(t, server, token).Balance)

	// Within the full window the unused seven credits are refundable.
	recorder = do(t, server, http.MethodGet,
		fmt.Sprintf("/purchases/%s/refund-eligibility", orderRef), token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var eligibility struct {
		Data struct {
			Eligibility domain.RefundEligibility `json:"eligibility"`
		} `json:"data"`
	}
	decode(t, recorder, &eligibility)
	require.True(t, eligibility.Data.Eligibility.Eligible)
	require.Equal(t, domain.RefundWindowFull, eligibility.Data.Eligibility.Window)
	require.Equal(t, int64(7), eligibility.Data.Eligibility.RefundableCredits)

	refundURL := fmt.Sprintf("/purchases/%s/refund", orderRef)

	recorder = do(t, server, http.MethodPost, refundURL, token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	wantBalance += 7
	require.Equal(t, wantBalance, getBalance(t, server, token).Balance)

	// A purchase can be refunded once.
	recorder = do(t, server, http.MethodPost, refundURL, token, nil)
	require.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	require.Equal(t, wantBalance, getBalance(t, server, token).Balance)

	// History shows the full chain, newest first.
	recorder = do(t, server, http.MethodGet, "/balance/history", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var history struct {
		Data struct {
			Entries []domain.LedgerEntry `json:"entries"`
		} `json:"data"`
	}
	decode(t, recorder, &history)
	require.Len(t, history.Data.Entries, 4)
	require.Equal(t, domain.EntryRefund, history.Data.Entries[0].Type)
	require.Equal(t, wantBalance, history.Data.Entries[0].BalanceAfter)
	require.Equal(t, domain.EntrySignupBonus, history.Data.Entries[3].Type)
}

func TestAdminAdjustJourney(t *testing.T) {
	server := integrationtest.SetupServer(t)

	_, userToken := signup(t, server)
	account := getBalance(t, server, userToken)

	admin, adminPassword := helpers.SeedAdmin(t, server.DB)

	recorder := do(t, server, http.MethodPost, "/users/login", "", gin.H{
		"username": admin.Username,
		"password": adminPassword,
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var login struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, recorder, &login)

	url := fmt.Sprintf("/admin/accounts/%d/adjust", account.ID)
	body := gin.H{"delta": 25, "reason": "goodwill for outage on 2026-08-20"}

	// A regular user is rejected.
	recorder = do(t, server, http.MethodPost, url, userToken, body)
	require.Equal(t, http.StatusForbidden, recorder.Code)

	// The admin adjustment lands in the user's ledger.
	recorder = do(t, server, http.MethodPost, url, login.AccessToken, body)
	require.Equal(t, http.StatusOK, recorder.Code)

	got := getBalance(t, server, userToken)
	require.Equal(t, account.Balance+25, got.Balance)

	recorder = do(t, server, http.MethodGet, "/balance/history?type=admin_add", userToken, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var history struct {
		Data struct {
			Entries []domain.LedgerEntry `json:"entries"`
		} `json:"data"`
	}
	decode(t, recorder, &history)
	require.Len(t, history.Data.Entries, 1)
	require.Equal(t, admin.Username, history.Data.Entries[0].Reference)
}
