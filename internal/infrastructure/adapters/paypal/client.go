// Package paypal implements the PayPal Payouts rail: a client-credentials
// OAuth token acquisition followed by a batch payout creation. The batch
// id is the gateway transaction id.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optionpay/payout-service/internal/domain/payout"
	"github.com/optionpay/payout-service/internal/infrastructure/config"
	"github.com/optionpay/payout-service/pkg/logger"
)

const providerName = "paypal"

// Client calls the PayPal REST API.
type Client struct {
	cfg        config.PayPalConfig
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a PayPal client with the given per-call timeout.
func NewClient(cfg config.PayPalConfig, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// DisplayName implements payout.Provider.
func (c *Client) DisplayName() string {
	return "PayPal"
}

// ValidateIdentifier checks the receiver email shape.
func (c *Client) ValidateIdentifier(identifier string) bool {
	at := strings.Index(identifier, "@")
	return at > 0 && strings.Contains(identifier[at+1:], ".")
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type payoutItem struct {
	RecipientType string       `json:"recipient_type"`
	Amount        payoutAmount `json:"amount"`
	Receiver      string       `json:"receiver"`
	SenderItemID  string       `json:"sender_item_id"`
	Note          string       `json:"note,omitempty"`
}

type payoutAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type senderBatchHeader struct {
	SenderBatchID string `json:"sender_batch_id"`
	EmailSubject  string `json:"email_subject,omitempty"`
}

type payoutBatchRequest struct {
	SenderBatchHeader senderBatchHeader `json:"sender_batch_header"`
	Items             []payoutItem      `json:"items"`
}

type payoutBatchResponse struct {
	BatchHeader struct {
		PayoutBatchID string `json:"payout_batch_id"`
		BatchStatus   string `json:"batch_status"`
	} `json:"batch_header"`
}

type errorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Initiate implements payout.Provider. A fresh access token is acquired
// per call; no cross-call persistence is required.
func (c *Client) Initiate(ctx context.Context, req payout.Request) (string, error) {
	token, err := c.fetchToken(ctx)
	if err != nil {
		return "", err
	}

	batch := payoutBatchRequest{
		SenderBatchHeader: senderBatchHeader{
			SenderBatchID: req.RequestID.String(),
			EmailSubject:  "You have a payout",
		},
		Items: []payoutItem{{
			RecipientType: "EMAIL",
			Amount: payoutAmount{
				Value:    minorToMajor(req.AmountMinor),
				Currency: c.cfg.Currency,
			},
			Receiver:     req.Recipient,
			SenderItemID: req.RequestID.String(),
			Note:         req.Description,
		}},
	}

	payloadBytes, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("encode payout batch: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/payments/payouts", bytes.NewReader(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("build payout request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", payout.NewTransient(providerName, "", "payout request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", c.classifyStatus(resp)
	}

	var body payoutBatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", payout.NewTransient(providerName, "", "decode payout response failed", err)
	}
	if body.BatchHeader.PayoutBatchID == "" {
		return "", payout.NewTransient(providerName, "", "payout response missing batch id", nil)
	}
	return body.BatchHeader.PayoutBatchID, nil
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	httpReq.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", payout.NewTransient(providerName, "", "token request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", payout.NewPermanent(providerName, "invalid_client", "client credentials rejected", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return "", c.classifyStatus(resp)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", payout.NewTransient(providerName, "", "decode token response failed", err)
	}
	if body.AccessToken == "" {
		return "", payout.NewTransient(providerName, "", "token response missing access token", nil)
	}
	return body.AccessToken, nil
}

func (c *Client) classifyStatus(resp *http.Response) error {
	var apiErr errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&apiErr)
	msg := apiErr.Message
	if msg == "" {
		msg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return payout.NewTransient(providerName, apiErr.Name, msg, nil)
	}
	return payout.NewPermanent(providerName, apiErr.Name, msg, nil)
}

// minorToMajor renders minor units as the decimal string PayPal expects.
func minorToMajor(amountMinor int64) string {
	return decimal.NewFromInt(amountMinor).Shift(-2).StringFixed(2)
}
