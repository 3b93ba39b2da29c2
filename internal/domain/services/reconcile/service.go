// Package reconcile keeps withdrawal requests consistent with what the
// payout providers eventually report: webhook-driven reversals of
// approved requests and the sweep that settles stranded card transfers.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/optionpay/payout-service/internal/domain/entities"
	"github.com/optionpay/payout-service/internal/infrastructure/database"
	apperrors "github.com/optionpay/payout-service/pkg/errors"
	"github.com/optionpay/payout-service/pkg/logger"
	"github.com/optionpay/payout-service/pkg/metrics"
)

// Event is a normalized provider webhook notification. Reference is the
// withdrawal request id we handed the provider at initiation time;
// GatewayTxID is the provider's own transaction id. Either suffices to
// resolve the request.
type Event struct {
	Provider    string
	Type        string
	EventID     string
	Reference   string
	GatewayTxID string
	Detail      string
}

// Webhook event types.
const (
	EventTransferCreated = "transfer_created"
	EventTransferFailed  = "transfer_failed"
	EventPayoutPaid      = "payout_paid"
	EventPayoutFailed    = "payout_failed"
)

// RequestStore interface for withdrawal request persistence
type RequestStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error)
	GetByGatewayTransactionID(ctx context.Context, gatewayTxID string) (*entities.WithdrawalRequest, error)
	LockTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*entities.WithdrawalRequest, error)
	UpdateGatewayStatus(ctx context.Context, id uuid.UUID, gatewayStatus string, failureReason *string) error
	MarkReversedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, reason string) error
	MarkReconciledTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, gatewayStatus string) error
	ListNeedingReconciliation(ctx context.Context, olderThan time.Duration) ([]*entities.WithdrawalRequest, error)
}

// WalletStore interface for the compensating credit
type WalletStore interface {
	CreditTx(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID, amountMinor int64) (int64, error)
}

// LedgerStore interface for the append-only transaction ledger
type LedgerStore interface {
	AppendTx(ctx context.Context, tx *sqlx.Tx, e *entities.TransactionLedgerEntry) error
}

// EventStore interface for the webhook audit trail
type EventStore interface {
	Record(ctx context.Context, e *entities.WebhookEvent) error
}

// TransferVerifier checks the provider-side state of a card transfer
// leg before any recovery credit is issued.
type TransferVerifier interface {
	VerifyTransfer(ctx context.Context, transferID string) (reversible bool, err error)
}

// TxRunner interface for running a function inside a database transaction
type TxRunner interface {
	WithinTx(ctx context.Context, fn database.TxFunc) error
}

// NotificationService interface for reversal notifications
type NotificationService interface {
	NotifyWithdrawalReversed(ctx context.Context, userID uuid.UUID, amountMinor int64, reason string) error
}

// Auditor interface for the compliance audit trail
type Auditor interface {
	LogWebhook(ctx context.Context, requestID uuid.UUID, provider, eventType string, outcome entities.WebhookOutcome) error
}

// Service applies provider webhook events and the reconciliation sweep.
type Service struct {
	requests            RequestStore
	wallets             WalletStore
	ledger              LedgerStore
	events              EventStore
	verifier            TransferVerifier
	txRunner            TxRunner
	notificationService NotificationService
	auditService        Auditor
	logger              *logger.Logger
	sweepSLA            time.Duration
}

// NewService creates a new reconcile service. verifier may be nil when
// the card rail is not configured; the sweep then skips card requests.
func NewService(
	requests RequestStore,
	wallets WalletStore,
	ledger LedgerStore,
	events EventStore,
	verifier TransferVerifier,
	txRunner TxRunner,
	log *logger.Logger,
	sweepSLA time.Duration,
) *Service {
	return &Service{
		requests: requests,
		wallets:  wallets,
		ledger:   ledger,
		events:   events,
		verifier: verifier,
		txRunner: txRunner,
		logger:   log,
		sweepSLA: sweepSLA,
	}
}

// SetNotificationService sets the notification service (optional)
func (s *Service) SetNotificationService(ns NotificationService) {
	s.notificationService = ns
}

// SetAuditService sets the audit service (optional)
func (s *Service) SetAuditService(a Auditor) {
	s.auditService = a
}

// HandleEvent applies a provider webhook event and records the attempt.
// Events that target a request already in the state the event implies
// are recorded as handled and otherwise ignored, so providers may
// redeliver freely.
func (s *Service) HandleEvent(ctx context.Context, ev *Event) error {
	outcome, err := s.apply(ctx, ev)
	metrics.WebhookEventsTotal.WithLabelValues(ev.Provider, ev.Type, string(outcome)).Inc()

	record := &entities.WebhookEvent{
		ID:         uuid.New(),
		Provider:   ev.Provider,
		EventType:  ev.Type,
		EventID:    ev.EventID,
		Outcome:    outcome,
		ReceivedAt: time.Now().UTC(),
	}
	if err != nil {
		record.Detail = err.Error()
	} else {
		record.Detail = ev.Detail
	}
	if id, resolveErr := s.resolveID(ctx, ev); resolveErr == nil {
		record.RequestID = &id
	}
	if recErr := s.events.Record(ctx, record); recErr != nil {
		s.logger.Error("Failed to record webhook event",
			"provider", ev.Provider, "event_type", ev.Type, "error", recErr)
	}
	if s.auditService != nil && record.RequestID != nil {
		if auditErr := s.auditService.LogWebhook(ctx, *record.RequestID, ev.Provider, ev.Type, outcome); auditErr != nil {
			s.logger.Error("Failed to audit webhook event",
				"provider", ev.Provider, "event_type", ev.Type, "error", auditErr)
		}
	}
	return err
}

func (s *Service) apply(ctx context.Context, ev *Event) (entities.WebhookOutcome, error) {
	request, err := s.resolve(ctx, ev)
	if err != nil {
		s.logger.Warn("Webhook references unknown withdrawal",
			"provider", ev.Provider, "event_type", ev.Type,
			"reference", ev.Reference, "gateway_tx_id", ev.GatewayTxID)
		return entities.WebhookOutcomeError, err
	}

	switch ev.Type {
	case EventTransferCreated:
		return s.annotate(ctx, request, "transfer_created", nil)
	case EventPayoutPaid:
		return s.annotate(ctx, request, "payout_paid", nil)
	case EventPayoutFailed:
		reason := ev.Detail
		if reason == "" {
			reason = "provider reported payout failure"
		}
		return s.annotate(ctx, request, "payout_failed", &reason)
	case EventTransferFailed:
		return s.reverse(ctx, request, ev)
	default:
		return entities.WebhookOutcomeError,
			apperrors.New(apperrors.KindValidation, "unknown_event", fmt.Sprintf("unknown webhook event type %q", ev.Type))
	}
}

func (s *Service) annotate(ctx context.Context, request *entities.WithdrawalRequest, gatewayStatus string, reason *string) (entities.WebhookOutcome, error) {
	if err := s.requests.UpdateGatewayStatus(ctx, request.ID, gatewayStatus, reason); err != nil {
		return entities.WebhookOutcomeError, err
	}
	s.logger.Info("Webhook annotation applied",
		"request_id", request.ID.String(), "gateway_status", gatewayStatus)
	return entities.WebhookOutcomeSuccess, nil
}

// reverse undoes an APPROVED withdrawal whose provider-side transfer
// later failed: the wallet is credited back and the request moves to
// FAILED in the same transaction. Requests in any other state were
// never successfully debited (or were already reversed), so the event
// is a no-op.
func (s *Service) reverse(ctx context.Context, request *entities.WithdrawalRequest, ev *Event) (entities.WebhookOutcome, error) {
	outcome := entities.WebhookOutcomeHandled

	err := s.txRunner.WithinTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		locked, err := s.requests.LockTx(ctx, tx, request.ID)
		if err != nil {
			return err
		}
		if locked.Status != entities.WithdrawalStatusApproved {
			s.logger.Info("Transfer-failed event on non-approved request ignored",
				"request_id", locked.ID.String(), "status", string(locked.Status))
			return nil
		}

		reason := ev.Detail
		if reason == "" {
			reason = "provider reversed transfer"
		}

		balanceAfter, err := s.wallets.CreditTx(ctx, tx, locked.WalletID, locked.AmountMinor)
		if err != nil {
			return err
		}
		if err := s.requests.MarkReversedTx(ctx, tx, locked.ID, reason); err != nil {
			return err
		}
		if err := s.ledger.AppendTx(ctx, tx, &entities.TransactionLedgerEntry{
			ID:                uuid.New(),
			RequestID:         locked.ID,
			WalletID:          locked.WalletID,
			AmountMinor:       locked.AmountMinor,
			BalanceAfterMinor: balanceAfter,
			Status:            entities.LedgerStatusReversed,
			CreatedAt:         time.Now().UTC(),
		}); err != nil {
			return err
		}
		outcome = entities.WebhookOutcomeSuccess
		return nil
	})
	if err != nil {
		return entities.WebhookOutcomeError, err
	}

	if outcome == entities.WebhookOutcomeSuccess {
		metrics.ReversalsTotal.WithLabelValues(ev.Provider).Inc()
		s.logger.Warn("Approved withdrawal reversed by provider",
			"request_id", request.ID.String(), "amount_minor", request.AmountMinor, "provider", ev.Provider)
		if s.notificationService != nil {
			_ = s.notificationService.NotifyWithdrawalReversed(ctx, request.UserID, request.AmountMinor, ev.Detail)
		}
	}
	return outcome, nil
}

func (s *Service) resolve(ctx context.Context, ev *Event) (*entities.WithdrawalRequest, error) {
	if ev.Reference != "" {
		if id, err := uuid.Parse(ev.Reference); err == nil {
			if request, err := s.requests.GetByID(ctx, id); err == nil {
				return request, nil
			}
		}
	}
	if ev.GatewayTxID != "" {
		return s.requests.GetByGatewayTransactionID(ctx, ev.GatewayTxID)
	}
	return nil, apperrors.NewNotFound("withdrawal request")
}

func (s *Service) resolveID(ctx context.Context, ev *Event) (uuid.UUID, error) {
	request, err := s.resolve(ctx, ev)
	if err != nil {
		return uuid.Nil, err
	}
	return request.ID, nil
}

// SweepPartialFailures settles card withdrawals that failed after the
// transfer leg completed. For each flagged request older than the SLA
// the provider is asked whether the transfer is still reversible; only
// then is the wallet credited back.
func (s *Service) SweepPartialFailures(ctx context.Context) error {
	if s.verifier == nil {
		return nil
	}

	metrics.ReconciliationSweepsTotal.Inc()
	stale, err := s.requests.ListNeedingReconciliation(ctx, s.sweepSLA)
	if err != nil {
		return fmt.Errorf("list unreconciled withdrawals: %w", err)
	}
	metrics.UnreconciledGauge.Set(float64(len(stale)))
	if len(stale) == 0 {
		return nil
	}
	s.logger.Info("Reconciliation sweep started", "candidates", len(stale))

	for _, request := range stale {
		if err := s.settleStranded(ctx, request); err != nil {
			s.logger.Error("Failed to reconcile withdrawal",
				"request_id", request.ID.String(), "error", err)
		}
	}
	return nil
}

func (s *Service) settleStranded(ctx context.Context, request *entities.WithdrawalRequest) error {
	if request.GatewayTransactionID == nil || *request.GatewayTransactionID == "" {
		s.logger.Warn("Unreconciled withdrawal has no transfer reference, needs manual review",
			"request_id", request.ID.String())
		return nil
	}
	transferID := *request.GatewayTransactionID

	reversible, err := s.verifier.VerifyTransfer(ctx, transferID)
	if err != nil {
		return fmt.Errorf("verify transfer %s: %w", transferID, err)
	}
	if !reversible {
		// Funds already left the sub-account. Clearing the flag here
		// would hide the discrepancy, so leave it for an operator.
		s.logger.Warn("Transfer no longer reversible, leaving flagged for manual review",
			"request_id", request.ID.String(), "transfer_id", transferID)
		return nil
	}

	err = s.txRunner.WithinTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		locked, err := s.requests.LockTx(ctx, tx, request.ID)
		if err != nil {
			return err
		}
		if !locked.NeedsReconciliation {
			return nil
		}

		balanceAfter, err := s.wallets.CreditTx(ctx, tx, locked.WalletID, locked.AmountMinor)
		if err != nil {
			return err
		}
		if err := s.requests.MarkReconciledTx(ctx, tx, locked.ID, "transfer_recovered"); err != nil {
			return err
		}
		return s.ledger.AppendTx(ctx, tx, &entities.TransactionLedgerEntry{
			ID:                uuid.New(),
			RequestID:         locked.ID,
			WalletID:          locked.WalletID,
			AmountMinor:       locked.AmountMinor,
			BalanceAfterMinor: balanceAfter,
			Status:            entities.LedgerStatusReversed,
			CreatedAt:         time.Now().UTC(),
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("Stranded transfer recovered", "request_id", request.ID.String(), "transfer_id", transferID)
	if s.notificationService != nil {
		_ = s.notificationService.NotifyWithdrawalReversed(ctx, request.UserID, request.AmountMinor, "stranded transfer recovered")
	}
	return nil
}
