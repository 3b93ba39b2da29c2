// Package cardrail implements the card payout rail. Card payouts are two
// hops: platform funds are first transferred into the recipient's
// connected sub-account, then a payout is created from that sub-account
// to its linked external card. A failure on the second hop after the
// first succeeded is reported as a partial failure so the orchestrator
// never blindly compensates the platform ledger.
package cardrail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/optionpay/payout-service/internal/domain/payout"
	"github.com/optionpay/payout-service/internal/infrastructure/config"
	"github.com/optionpay/payout-service/pkg/logger"
)

const providerName = "card"

// Client calls the card rail API.
type Client struct {
	cfg        config.CardProviderConfig
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a card rail client with the given per-call timeout.
func NewClient(cfg config.CardProviderConfig, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// DisplayName implements payout.Provider.
func (c *Client) DisplayName() string {
	return "Card payout"
}

// ValidateIdentifier checks the connected sub-account reference shape.
func (c *Client) ValidateIdentifier(identifier string) bool {
	return strings.HasPrefix(identifier, "acct_") && len(identifier) > len("acct_")
}

type transferRequest struct {
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Destination string `json:"destination"`
	Reference   string `json:"reference"`
}

type transferResponse struct {
	ID string `json:"id"`
}

type payoutRequest struct {
	AmountMinor     int64  `json:"amount"`
	Currency        string `json:"currency"`
	ExternalAccount string `json:"destination"`
	Reference       string `json:"reference"`
}

type payoutResponse struct {
	ID string `json:"id"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Initiate implements payout.Provider. The transfer id is surfaced inside
// partial-failure errors so the reconciliation sweep can verify the
// sub-account before any compensating credit.
func (c *Client) Initiate(ctx context.Context, req payout.Request) (string, error) {
	transferID, err := c.createTransfer(ctx, req)
	if err != nil {
		return "", err
	}

	payoutID, err := c.createPayout(ctx, req, transferID)
	if err != nil {
		c.logger.Error("card payout failed after transfer succeeded",
			"request_id", req.RequestID,
			"transfer_id", transferID,
			"error", err)
		perr := payout.NewPartial(providerName, "payout_after_transfer",
			fmt.Sprintf("transfer %s succeeded but payout failed: %v", transferID, err), err)
		perr.Reference = transferID
		return "", perr
	}

	return payoutID, nil
}

// VerifyTransfer reports whether the platform-to-subaccount transfer is
// still reversible. Used by reconciliation for partial failures.
func (c *Client) VerifyTransfer(ctx context.Context, transferID string) (reversible bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/v1/transfers/"+transferID, nil)
	if err != nil {
		return false, fmt.Errorf("build transfer lookup: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, payout.NewTransient(providerName, "", "transfer lookup failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, c.classifyStatus(resp)
	}

	var body struct {
		Status     string `json:"status"`
		Reversible bool   `json:"reversible"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode transfer lookup: %w", err)
	}
	return body.Reversible, nil
}

func (c *Client) createTransfer(ctx context.Context, req payout.Request) (string, error) {
	body := transferRequest{
		AmountMinor: req.AmountMinor,
		Currency:    c.cfg.Currency,
		Destination: req.Recipient,
		Reference:   req.RequestID.String(),
	}

	var resp transferResponse
	if err := c.post(ctx, "/v1/transfers", "", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) createPayout(ctx context.Context, req payout.Request, transferID string) (string, error) {
	body := payoutRequest{
		AmountMinor:     req.AmountMinor,
		Currency:        c.cfg.Currency,
		ExternalAccount: req.ExternalAccountRef,
		Reference:       req.RequestID.String(),
	}

	var resp payoutResponse
	if err := c.post(ctx, "/v1/payouts", req.Recipient, body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// post sends a JSON request. onBehalfOf, when set, scopes the call to the
// recipient's connected sub-account.
func (c *Client) post(ctx context.Context, path, onBehalfOf string, body, out interface{}) error {
	payloadBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+path, bytes.NewReader(payloadBytes))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	if onBehalfOf != "" {
		httpReq.Header.Set("X-On-Behalf-Of", onBehalfOf)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return payout.NewTransient(providerName, "", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.classifyStatus(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return payout.NewTransient(providerName, "", "decode response failed", err)
	}
	return nil
}

// classifyStatus maps HTTP failures onto the payout error taxonomy:
// 429 and 5xx are retryable, everything else 4xx is not.
func (c *Client) classifyStatus(resp *http.Response) error {
	var apiErr apiError
	_ = json.NewDecoder(resp.Body).Decode(&apiErr)
	msg := apiErr.Message
	if msg == "" {
		msg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return payout.NewTransient(providerName, apiErr.Code, msg, nil)
	}
	return payout.NewPermanent(providerName, apiErr.Code, msg, nil)
}
