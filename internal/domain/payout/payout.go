// Package payout defines the provider abstraction used to move funds out
// of the platform: the closed set of payout methods, the provider
// interface each rail implements, and the error taxonomy the retry policy
// and orchestrator make decisions on.
package payout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Method identifies a payout rail. The set is closed: selection is done by
// switching on these values, never on free-form strings.
type Method string

const (
	MethodCard       Method = "card"
	MethodPayPal     Method = "paypal"
	MethodBinancePay Method = "binance_pay"
	MethodSkrill     Method = "skrill"
)

// Methods returns every supported payout method.
func Methods() []Method {
	return []Method{MethodCard, MethodPayPal, MethodBinancePay, MethodSkrill}
}

// IsValid reports whether m is a known payout method.
func (m Method) IsValid() bool {
	switch m {
	case MethodCard, MethodPayPal, MethodBinancePay, MethodSkrill:
		return true
	default:
		return false
	}
}

// ParseMethod converts a wire string into a Method.
func ParseMethod(s string) (Method, error) {
	m := Method(s)
	if !m.IsValid() {
		return "", fmt.Errorf("unknown payout method %q", s)
	}
	return m, nil
}

// Request carries everything a provider needs to initiate a payout. The
// withdrawal request id is embedded so asynchronous provider callbacks can
// be correlated back to the originating request.
type Request struct {
	RequestID          uuid.UUID
	AmountMinor        int64
	Currency           string
	Recipient          string
	ExternalAccountRef string
	Description        string
}

// Provider is implemented once per payout rail. Initiate returns the
// provider-assigned gateway transaction id on success and a *payout.Error
// on failure so callers can classify without string matching.
type Provider interface {
	Initiate(ctx context.Context, req Request) (gatewayTxID string, err error)
	ValidateIdentifier(identifier string) bool
	DisplayName() string
}

// Classification tags a payout failure for retry decisions.
type Classification string

const (
	// ClassPermanent failures (bad recipient, auth failure, business-rule
	// rejection) must not be retried.
	ClassPermanent Classification = "permanent"
	// ClassTransient failures (network errors, 5xx, ambiguous timeouts)
	// may be retried.
	ClassTransient Classification = "transient"
	// ClassPartial marks a card-rail payout where the platform-to-subaccount
	// transfer succeeded but the subaccount-to-card payout failed. Funds may
	// already have left the platform balance, so compensation is unsafe
	// until the sub-account is verified.
	ClassPartial Classification = "partial"
)

// Error is the classified failure returned by provider adapters.
// Reference carries the provider-side id of any step that completed
// before the failure (the transfer leg of a partial card payout), so
// reconciliation can locate the funds.
type Error struct {
	Class     Classification
	Provider  string
	Code      string
	Message   string
	Reference string
	Err       error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s payout %s error [%s]: %s", e.Provider, e.Class, e.Code, e.Message)
	}
	return fmt.Sprintf("%s payout %s error: %s", e.Provider, e.Class, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewPermanent builds a permanent provider error.
func NewPermanent(provider, code, message string, err error) *Error {
	return &Error{Class: ClassPermanent, Provider: provider, Code: code, Message: message, Err: err}
}

// NewTransient builds a transient provider error.
func NewTransient(provider, code, message string, err error) *Error {
	return &Error{Class: ClassTransient, Provider: provider, Code: code, Message: message, Err: err}
}

// NewPartial builds a partial-failure error for the two-step card rail.
func NewPartial(provider, code, message string, err error) *Error {
	return &Error{Class: ClassPartial, Provider: provider, Code: code, Message: message, Err: err}
}

// Classify returns the classification of err, defaulting to transient for
// errors that did not originate from an adapter (breaker trips, timeouts).
func Classify(err error) Classification {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Class
	}
	return ClassTransient
}

// IsPermanent reports whether err is a permanent provider failure.
func IsPermanent(err error) bool {
	return Classify(err) == ClassPermanent
}

// IsTransient reports whether err is a transient provider failure.
func IsTransient(err error) bool {
	return Classify(err) == ClassTransient
}

// IsPartial reports whether err is a partial card-rail failure.
func IsPartial(err error) bool {
	return Classify(err) == ClassPartial
}

// ReferenceOf returns the provider-side reference of the completed step
// embedded in err, or "" when there is none.
func ReferenceOf(err error) string {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Reference
	}
	return ""
}

// ConfigError reports a provider that is unknown or missing credentials.
// It is deliberately a separate type from Error so configuration problems
// are never mistaken for payout failures.
type ConfigError struct {
	Method Method
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("payout method %s not available: %s", e.Method, e.Reason)
}

// IsConfigError reports whether err is a provider configuration error.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
