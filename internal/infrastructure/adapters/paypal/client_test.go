package paypal

import (
	"context"
	"encoding/json"
	"io"
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
	return NewClient(config.PayPalConfig{
		BaseURL:      baseURL,
		ClientID:     "client_1",
		ClientSecret: "secret_1",
		Currency:     "USD",
	}, 5*time.Second, logger.NewNop())
}

func TestInitiateSuccess(t *testing.T) {
	requestID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/oauth2/token":
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "client_1", user)
			assert.Equal(t, "secret_1", pass)
			io.WriteString(w, `{"access_token":"A21.token","token_type":"Bearer","expires_in":32400}`)
		case "/v1/payments/payouts":
			assert.Equal(t, "Bearer A21.token", r.Header.Get("Authorization"))
			var batch payoutBatchRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
			assert.Equal(t, requestID.String(), batch.SenderBatchHeader.SenderBatchID)
			require.Len(t, batch.Items, 1)
			assert.Equal(t, "50.00", batch.Items[0].Amount.Value)
			assert.Equal(t, "USD", batch.Items[0].Amount.Currency)
			assert.Equal(t, "payee@example.com", batch.Items[0].Receiver)
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{"batch_header":{"payout_batch_id":"BATCH-7","batch_status":"PENDING"}}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	id, err := newTestClient(server.URL).Initiate(context.Background(), payout.Request{
		RequestID:   requestID,
		AmountMinor: 5000,
		Recipient:   "payee@example.com",
	})

	require.NoError(t, err)
	assert.Equal(t, "BATCH-7", id)
}

func TestInitiateRejectedCredentialsArePermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/oauth2/token", r.URL.Path)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Initiate(context.Background(), payout.Request{
		RequestID: uuid.New(), AmountMinor: 5000, Recipient: "payee@example.com",
	})

	require.Error(t, err)
	assert.True(t, payout.IsPermanent(err), "bad credentials never recover on retry")
	assert.Contains(t, err.Error(), "invalid_client")
}

func TestInitiatePayoutRejectionIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			io.WriteString(w, `{"access_token":"tok"}`)
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"name":"RECEIVER_UNREGISTERED","message":"Receiver is unregistered"}`)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Initiate(context.Background(), payout.Request{
		RequestID: uuid.New(), AmountMinor: 5000, Recipient: "payee@example.com",
	})

	require.Error(t, err)
	assert.True(t, payout.IsPermanent(err))
	assert.Contains(t, err.Error(), "RECEIVER_UNREGISTERED")
}

func TestInitiateServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			io.WriteString(w, `{"access_token":"tok"}`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Initiate(context.Background(), payout.Request{
		RequestID: uuid.New(), AmountMinor: 5000, Recipient: "payee@example.com",
	})

	require.Error(t, err)
	assert.True(t, payout.IsTransient(err))
}

func TestMinorToMajor(t *testing.T) {
	assert.Equal(t, "50.00", minorToMajor(5000))
	assert.Equal(t, "0.01", minorToMajor(1))
	assert.Equal(t, "1234.56", minorToMajor(123456))
}

func TestValidateIdentifier(t *testing.T) {
	c := newTestClient("http://unused")
	assert.True(t, c.ValidateIdentifier("user@example.com"))
	assert.False(t, c.ValidateIdentifier("user@localhost"))
	assert.False(t, c.ValidateIdentifier("@example.com"))
	assert.False(t, c.ValidateIdentifier("plain"))
}
