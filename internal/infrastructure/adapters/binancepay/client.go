// Package binancepay implements the Binance Pay rail: a synchronous
// transfer call signed with an HMAC over timestamp, nonce and body.
package binancepay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optionpay/payout-service/internal/domain/payout"
	"github.com/optionpay/payout-service/internal/infrastructure/config"
	"github.com/optionpay/payout-service/pkg/logger"
)

const providerName = "binance_pay"

// Client calls the Binance Pay merchant API.
type Client struct {
	cfg        config.BinancePayConfig
	httpClient *http.Client
	logger     *logger.Logger
	now        func() time.Time
	nonce      func() string
}

// NewClient creates a Binance Pay client with the given per-call timeout.
func NewClient(cfg config.BinancePayConfig, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
		now:        time.Now,
		nonce:      randomNonce,
	}
}

// DisplayName implements payout.Provider.
func (c *Client) DisplayName() string {
	return "Binance Pay"
}

// ValidateIdentifier accepts a numeric Binance Pay id or a registered
// email address.
func (c *Client) ValidateIdentifier(identifier string) bool {
	if identifier == "" {
		return false
	}
	if strings.Contains(identifier, "@") {
		at := strings.Index(identifier, "@")
		return at > 0 && strings.Contains(identifier[at+1:], ".")
	}
	_, err := strconv.ParseUint(identifier, 10, 64)
	return err == nil
}

type transferBody struct {
	RequestID       string `json:"requestId"`
	MerchantID      string `json:"merchantId"`
	Currency        string `json:"currency"`
	Amount          string `json:"amount"`
	ReceiveType     string `json:"receiveType"`
	Receiver        string `json:"receiver"`
	TransferPurpose string `json:"remark,omitempty"`
}

type apiResponse struct {
	Status       string          `json:"status"`
	Code         string          `json:"code"`
	ErrorMessage string          `json:"errorMessage"`
	Data         json.RawMessage `json:"data"`
}

type transferData struct {
	TranID json.Number `json:"tranId"`
	Status string      `json:"status"`
}

// Initiate implements payout.Provider.
func (c *Client) Initiate(ctx context.Context, req payout.Request) (string, error) {
	receiveType := "PAY_ID"
	if strings.Contains(req.Recipient, "@") {
		receiveType = "EMAIL"
	}

	body := transferBody{
		RequestID:       req.RequestID.String(),
		MerchantID:      c.cfg.MerchantID,
		Currency:        c.cfg.TransferAsset,
		Amount:          decimal.NewFromInt(req.AmountMinor).Shift(-2).String(),
		ReceiveType:     receiveType,
		Receiver:        req.Recipient,
		TransferPurpose: req.Description,
	}

	payloadBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode transfer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/binancepay/openapi/payout/transfer", bytes.NewReader(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("build transfer request: %w", err)
	}

	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	nonce := c.nonce()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("BinancePay-Timestamp", timestamp)
	httpReq.Header.Set("BinancePay-Nonce", nonce)
	httpReq.Header.Set("BinancePay-Certificate-SN", c.cfg.APIKey)
	httpReq.Header.Set("BinancePay-Signature", c.Sign(timestamp, nonce, payloadBytes))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", payout.NewTransient(providerName, "", "transfer request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", payout.NewTransient(providerName, "", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", payout.NewTransient(providerName, "", "decode transfer response failed", err)
	}

	if apiResp.Status != "SUCCESS" {
		return "", c.classifyCode(apiResp.Code, apiResp.ErrorMessage)
	}

	var data transferData
	if err := json.Unmarshal(apiResp.Data, &data); err != nil {
		return "", payout.NewTransient(providerName, "", "decode transfer data failed", err)
	}
	if data.TranID.String() == "" {
		return "", payout.NewTransient(providerName, "", "transfer response missing tranId", nil)
	}
	return data.TranID.String(), nil
}

// Sign computes the request signature: an uppercase hex HMAC-SHA512 over
// timestamp, nonce and body joined with newlines.
func (c *Client) Sign(timestamp, nonce string, body []byte) string {
	payload := timestamp + "\n" + nonce + "\n" + string(body) + "\n"
	mac := hmac.New(sha512.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(payload))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// classifyCode maps Binance business error codes: internal errors and
// unknown statuses retry, everything else is a business rejection.
func (c *Client) classifyCode(code, message string) error {
	if message == "" {
		message = "transfer rejected"
	}
	switch code {
	case "400000", "500000", "500001", "500002":
		return payout.NewTransient(providerName, code, message, nil)
	default:
		return payout.NewPermanent(providerName, code, message, nil)
	}
}

func randomNonce() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken;
		// a timestamp-derived nonce still satisfies uniqueness here.
		ts := strconv.FormatInt(time.Now().UnixNano(), 10)
		return (ts + strings.Repeat("0", 32))[:32]
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf)
}
