package cardrail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionpay/payout-service/internal/domain/payout"
	"github.com/optionpay/payout-service/internal/infrastructure/config"
	"github.com/optionpay/payout-service/pkg/logger"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.CardProviderConfig{
		BaseURL:   baseURL,
		SecretKey: "sk_test_123",
		Currency:  "usd",
	}, 5*time.Second, logger.NewNop())
}

func payoutRequestFixture() payout.Request {
	return payout.Request{
		RequestID:          uuid.New(),
		AmountMinor:        5000,
		Currency:           "USD",
		Recipient:          "acct_recipient1",
		ExternalAccountRef: "card_ext_1",
	}
}

func TestInitiateSuccess(t *testing.T) {
	var transferAuth, payoutOnBehalfOf string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/transfers":
			transferAuth = r.Header.Get("Authorization")
			var body transferRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, int64(5000), body.AmountMinor)
			assert.Equal(t, "usd", body.Currency)
			assert.Equal(t, "acct_recipient1", body.Destination)
			json.NewEncoder(w).Encode(transferResponse{ID: "tr_1"})
		case "/v1/payouts":
			payoutOnBehalfOf = r.Header.Get("X-On-Behalf-Of")
			var body payoutRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "card_ext_1", body.ExternalAccount)
			json.NewEncoder(w).Encode(payoutResponse{ID: "po_1"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	id, err := newTestClient(server.URL).Initiate(context.Background(), payoutRequestFixture())

	require.NoError(t, err)
	assert.Equal(t, "po_1", id)
	assert.Equal(t, "Bearer sk_test_123", transferAuth)
	assert.Equal(t, "acct_recipient1", payoutOnBehalfOf)
}

func TestInitiateTransferFailureIsNotPartial(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/transfers", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(apiError{Code: "insufficient_platform_funds", Message: "insufficient funds"})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Initiate(context.Background(), payoutRequestFixture())

	require.Error(t, err)
	assert.True(t, payout.IsPermanent(err))
	assert.False(t, payout.IsPartial(err), "first-leg failures leave no funds in flight")
}

func TestInitiatePayoutFailureAfterTransferIsPartial(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/transfers":
			json.NewEncoder(w).Encode(transferResponse{ID: "tr_99"})
		case "/v1/payouts":
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(apiError{Code: "card_declined", Message: "card declined"})
		}
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Initiate(context.Background(), payoutRequestFixture())

	require.Error(t, err)
	assert.True(t, payout.IsPartial(err))
	assert.Equal(t, "tr_99", payout.ReferenceOf(err), "partial errors must carry the transfer leg id")
}

func TestInitiateServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Initiate(context.Background(), payoutRequestFixture())

	require.Error(t, err)
	assert.True(t, payout.IsTransient(err))
}

func TestInitiateRateLimitIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Initiate(context.Background(), payoutRequestFixture())

	require.Error(t, err)
	assert.True(t, payout.IsTransient(err))
}

func TestVerifyTransfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/transfers/tr_42", r.URL.Path)
		require.Equal(t, http.MethodGet, r.Method)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     "pending",
			"reversible": true,
		})
	}))
	defer server.Close()

	reversible, err := newTestClient(server.URL).VerifyTransfer(context.Background(), "tr_42")

	require.NoError(t, err)
	assert.True(t, reversible)
}

func TestVerifyTransferSettled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     "settled",
			"reversible": false,
		})
	}))
	defer server.Close()

	reversible, err := newTestClient(server.URL).VerifyTransfer(context.Background(), "tr_43")

	require.NoError(t, err)
	assert.False(t, reversible)
}

func TestValidateIdentifier(t *testing.T) {
	c := newTestClient("http://unused")
	assert.True(t, c.ValidateIdentifier("acct_1abc"))
	assert.False(t, c.ValidateIdentifier("acct_"))
	assert.False(t, c.ValidateIdentifier("user@example.com"))
}
