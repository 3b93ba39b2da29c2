package entities

import (
	"time"

	"github.com/google/uuid"
)

// LedgerStatus mirrors the terminal status of the withdrawal request a
// ledger entry was written for.
type LedgerStatus string

const (
	LedgerStatusCompleted LedgerStatus = "completed"
	LedgerStatusFailed    LedgerStatus = "failed"
	LedgerStatusReversed  LedgerStatus = "reversed"
)

// TransactionLedgerEntry is an append-only audit record written alongside
// each withdrawal status transition. Entries are never updated once
// written except for the status field mirroring the request's terminal
// status.
type TransactionLedgerEntry struct {
	ID                uuid.UUID    `json:"id" db:"id"`
	RequestID         uuid.UUID    `json:"request_id" db:"request_id"`
	WalletID          uuid.UUID    `json:"wallet_id" db:"wallet_id"`
	AmountMinor       int64        `json:"amount_minor" db:"amount_minor"`
	BalanceAfterMinor int64        `json:"balance_after_minor" db:"balance_after_minor"`
	Status            LedgerStatus `json:"status" db:"status"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
}

// WebhookOutcome records how a webhook delivery attempt was handled.
type WebhookOutcome string

const (
	WebhookOutcomeSuccess WebhookOutcome = "success"
	WebhookOutcomeHandled WebhookOutcome = "handled"
	WebhookOutcomeError   WebhookOutcome = "error"
)

// WebhookEvent is the audit record written for every inbound provider
// callback, independent of whether it mutated anything.
type WebhookEvent struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	Provider   string         `json:"provider" db:"provider"`
	EventType  string         `json:"event_type" db:"event_type"`
	EventID    string         `json:"event_id" db:"event_id"`
	RequestID  *uuid.UUID     `json:"request_id,omitempty" db:"request_id"`
	Outcome    WebhookOutcome `json:"outcome" db:"outcome"`
	Detail     string         `json:"detail" db:"detail"`
	ReceivedAt time.Time      `json:"received_at" db:"received_at"`
}

// ErrorResponse is the standard error payload returned by the API.
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
