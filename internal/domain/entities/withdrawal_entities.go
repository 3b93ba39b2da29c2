package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/optionpay/payout-service/internal/domain/payout"
)

// WithdrawalStatus represents the status of a withdrawal request.
// PENDING is the only non-terminal state: a request is PENDING either
// briefly while the synchronous path runs, or indefinitely while parked
// for manual review.
type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "pending"
	WithdrawalStatusApproved WithdrawalStatus = "approved"
	WithdrawalStatusRejected WithdrawalStatus = "rejected"
	WithdrawalStatusFailed   WithdrawalStatus = "failed"
)

// ValidWithdrawalStatuses contains all valid withdrawal statuses.
var ValidWithdrawalStatuses = map[WithdrawalStatus]bool{
	WithdrawalStatusPending:  true,
	WithdrawalStatusApproved: true,
	WithdrawalStatusRejected: true,
	WithdrawalStatusFailed:   true,
}

// ValidWithdrawalTransitions defines allowed status transitions. The
// APPROVED → FAILED edge exists only for the webhook-driven reversal
// where the provider's asynchronous settlement fails after the
// synchronous call reported success; it must be accompanied by a
// compensating ledger credit.
var ValidWithdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalStatusPending:  {WithdrawalStatusApproved, WithdrawalStatusRejected, WithdrawalStatusFailed},
	WithdrawalStatusApproved: {WithdrawalStatusFailed},
	WithdrawalStatusRejected: {},
	WithdrawalStatusFailed:   {},
}

// IsValid checks if the status is valid.
func (s WithdrawalStatus) IsValid() bool {
	return ValidWithdrawalStatuses[s]
}

// IsTerminal returns true if this is a terminal state.
func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalStatusApproved || s == WithdrawalStatusRejected || s == WithdrawalStatusFailed
}

// CanTransitionTo checks if transition to new status is allowed.
func (s WithdrawalStatus) CanTransitionTo(newStatus WithdrawalStatus) bool {
	allowed, exists := ValidWithdrawalTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}
	return false
}

// ValidateTransition validates and returns an error if the transition is
// invalid.
func (s WithdrawalStatus) ValidateTransition(newStatus WithdrawalStatus) error {
	if !newStatus.IsValid() {
		return fmt.Errorf("invalid withdrawal status: %s", newStatus)
	}
	if !s.CanTransitionTo(newStatus) {
		return fmt.Errorf("invalid status transition from %s to %s", s, newStatus)
	}
	return nil
}

// WithdrawalRequest is the aggregate root of the payout subsystem.
type WithdrawalRequest struct {
	ID                   uuid.UUID        `json:"id" db:"id"`
	UserID               uuid.UUID        `json:"user_id" db:"user_id"`
	WalletID             uuid.UUID        `json:"wallet_id" db:"wallet_id"`
	PayoutMethodID       uuid.UUID        `json:"payout_method_id" db:"payout_method_id"`
	Method               payout.Method    `json:"method" db:"method"`
	Recipient            string           `json:"recipient" db:"recipient"`
	AmountMinor          int64            `json:"amount_minor" db:"amount_minor"`
	Status               WithdrawalStatus `json:"status" db:"status"`
	ReviewRequired       bool             `json:"review_required" db:"review_required"`
	GatewayTransactionID *string          `json:"gateway_transaction_id,omitempty" db:"gateway_transaction_id"`
	GatewayStatus        *string          `json:"gateway_status,omitempty" db:"gateway_status"`
	FailureReason        *string          `json:"failure_reason,omitempty" db:"failure_reason"`
	AdminNotes           *string          `json:"admin_notes,omitempty" db:"admin_notes"`
	NeedsReconciliation  bool             `json:"needs_reconciliation" db:"needs_reconciliation"`
	BalanceSnapshotMinor int64            `json:"balance_snapshot_minor" db:"balance_snapshot_minor"`
	CreatedAt            time.Time        `json:"created_at" db:"created_at"`
	ProcessedAt          *time.Time       `json:"processed_at,omitempty" db:"processed_at"`
}

// SubmitWithdrawalRequest is the inbound payload for a withdrawal
// submission. Amount is expressed in minor units.
type SubmitWithdrawalRequest struct {
	UserID         uuid.UUID `json:"-"`
	PayoutMethodID uuid.UUID `json:"payout_method_id" binding:"required"`
	AmountMinor    int64     `json:"amount_minor" binding:"required"`
}

// WithdrawalOutcomeStatus is the caller-visible result of a submission.
type WithdrawalOutcomeStatus string

const (
	OutcomePendingReview WithdrawalOutcomeStatus = "pending_review"
	OutcomeApproved      WithdrawalOutcomeStatus = "approved"
	OutcomeRejected      WithdrawalOutcomeStatus = "rejected"
	OutcomeFailed        WithdrawalOutcomeStatus = "failed"
)

// WithdrawalOutcome is returned to callers of SubmitWithdrawal.
type WithdrawalOutcome struct {
	RequestID            uuid.UUID               `json:"request_id"`
	Status               WithdrawalOutcomeStatus `json:"status"`
	AmountMinor          int64                   `json:"amount_minor"`
	GatewayTransactionID string                  `json:"gateway_transaction_id,omitempty"`
	Reason               string                  `json:"reason,omitempty"`
}

// AdminDecision is the inbound payload for an admin review decision.
type AdminDecision struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes"`
}
