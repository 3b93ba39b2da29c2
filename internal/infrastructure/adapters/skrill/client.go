// Package skrill implements the Skrill rail through the automated payment
// interface: a prepare call obtains a session id, an execute call submits
// it, and both return XML.
package skrill

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optionpay/payout-service/internal/domain/payout"
	"github.com/optionpay/payout-service/internal/infrastructure/config"
	"github.com/optionpay/payout-service/pkg/logger"
)

const providerName = "skrill"

// Client calls the Skrill automated payment interface.
type Client struct {
	cfg        config.SkrillConfig
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a Skrill client with the given per-call timeout.
func NewClient(cfg config.SkrillConfig, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// DisplayName implements payout.Provider.
func (c *Client) DisplayName() string {
	return "Skrill"
}

// ValidateIdentifier checks the beneficiary email shape.
func (c *Client) ValidateIdentifier(identifier string) bool {
	at := strings.Index(identifier, "@")
	return at > 0 && strings.Contains(identifier[at+1:], ".")
}

type prepareResponse struct {
	XMLName xml.Name  `xml:"response"`
	SID     string    `xml:"sid"`
	Error   *apiError `xml:"error"`
}

type executeResponse struct {
	XMLName     xml.Name  `xml:"response"`
	Transaction *struct {
		ID        string `xml:"id"`
		Status    int    `xml:"status"`
		StatusMsg string `xml:"status_msg"`
	} `xml:"transaction"`
	Error *apiError `xml:"error"`
}

type apiError struct {
	Message string `xml:"error_msg"`
}

// Initiate implements payout.Provider.
func (c *Client) Initiate(ctx context.Context, req payout.Request) (string, error) {
	sid, err := c.prepare(ctx, req)
	if err != nil {
		return "", err
	}
	return c.execute(ctx, sid)
}

func (c *Client) prepare(ctx context.Context, req payout.Request) (string, error) {
	form := url.Values{
		"action":     {"prepare"},
		"email":      {c.cfg.Email},
		"password":   {c.cfg.Password},
		"amount":     {decimal.NewFromInt(req.AmountMinor).Shift(-2).StringFixed(2)},
		"currency":   {c.cfg.Currency},
		"bnf_email":  {req.Recipient},
		"subject":    {"Withdrawal payout"},
		"note":       {req.Description},
		"frn_trn_id": {req.RequestID.String()},
	}

	var resp prepareResponse
	if err := c.call(ctx, form, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", c.classifyMessage(resp.Error.Message)
	}
	if resp.SID == "" {
		return "", payout.NewTransient(providerName, "", "prepare response missing session id", nil)
	}
	return resp.SID, nil
}

func (c *Client) execute(ctx context.Context, sid string) (string, error) {
	form := url.Values{
		"action": {"transfer"},
		"sid":    {sid},
	}

	var resp executeResponse
	if err := c.call(ctx, form, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", c.classifyMessage(resp.Error.Message)
	}
	if resp.Transaction == nil || resp.Transaction.ID == "" {
		return "", payout.NewTransient(providerName, "", "execute response missing transaction", nil)
	}
	if resp.Transaction.Status < 0 {
		return "", payout.NewPermanent(providerName, fmt.Sprint(resp.Transaction.Status),
			resp.Transaction.StatusMsg, nil)
	}
	return resp.Transaction.ID, nil
}

func (c *Client) call(ctx context.Context, form url.Values, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return payout.NewTransient(providerName, "", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return payout.NewTransient(providerName, "", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
		}
		return payout.NewPermanent(providerName, "", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return payout.NewTransient(providerName, "", "read response failed", err)
	}
	if err := xml.Unmarshal(raw, out); err != nil {
		return payout.NewTransient(providerName, "", "parse XML response failed", err)
	}
	return nil
}

// classifyMessage maps Skrill error strings. The interface reports
// business rejections (wrong beneficiary, limits, balance) as error
// messages rather than status codes; only explicit service outage
// messages are retryable.
func (c *Client) classifyMessage(msg string) error {
	if msg == "" {
		msg = "transfer rejected"
	}
	upper := strings.ToUpper(msg)
	if strings.Contains(upper, "TEMPORARILY UNAVAILABLE") || strings.Contains(upper, "TRY AGAIN") {
		return payout.NewTransient(providerName, "", msg, nil)
	}
	return payout.NewPermanent(providerName, "", msg, nil)
}
