package withdrawal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/optionpay/payout-service/internal/domain/entities"
	"github.com/optionpay/payout-service/internal/domain/payout"
	"github.com/optionpay/payout-service/internal/infrastructure/database"
	"github.com/optionpay/payout-service/internal/pkg/util"
	"github.com/optionpay/payout-service/pkg/circuitbreaker"
	apperrors "github.com/optionpay/payout-service/pkg/errors"
	"github.com/optionpay/payout-service/pkg/logger"
	"github.com/optionpay/payout-service/pkg/metrics"
)

// WalletStore interface for wallet persistence
type WalletStore interface {
	GetByUserAndMode(ctx context.Context, userID uuid.UUID, mode entities.WalletMode) (*entities.Wallet, error)
	LockTx(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID) (*entities.Wallet, error)
	DebitTx(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID, amountMinor int64) (int64, error)
	CreditTx(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID, amountMinor int64) (int64, error)
}

// RequestStore interface for withdrawal request persistence
type RequestStore interface {
	Create(ctx context.Context, w *entities.WithdrawalRequest) error
	CreateTx(ctx context.Context, tx *sqlx.Tx, w *entities.WithdrawalRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error)
	LockTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*entities.WithdrawalRequest, error)
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.WithdrawalRequest, error)
	ListPendingReview(ctx context.Context, limit, offset int) ([]*entities.WithdrawalRequest, error)
	MarkApprovedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, gatewayTxID string) error
	MarkFailedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, reason string, needsReconciliation bool) error
	SetGatewayTransactionIDTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, gatewayTxID string) error
	MarkRejected(ctx context.Context, id uuid.UUID, notes string) error
	SetAdminNotesTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, notes string) error
}

// MethodStore interface for saved payout method lookups
type MethodStore interface {
	GetForUser(ctx context.Context, methodID, userID uuid.UUID) (*entities.PayoutMethod, error)
}

// LedgerStore interface for the append-only transaction ledger
type LedgerStore interface {
	AppendTx(ctx context.Context, tx *sqlx.Tx, e *entities.TransactionLedgerEntry) error
}

// ProviderSelector interface for resolving a payout method to a rail
type ProviderSelector interface {
	Select(m payout.Method) (payout.Provider, error)
	IsConfigured(m payout.Method) bool
	ValidateRecipient(m payout.Method, identifier string) (bool, error)
}

// TxRunner interface for running a function inside a database transaction
type TxRunner interface {
	WithinTx(ctx context.Context, fn database.TxFunc) error
}

// NotificationService interface for sending withdrawal-related notifications
type NotificationService interface {
	NotifyWithdrawalApproved(ctx context.Context, userID uuid.UUID, amountMinor int64, method string) error
	NotifyWithdrawalFailed(ctx context.Context, userID uuid.UUID, amountMinor int64, reason string) error
	NotifyWithdrawalPendingReview(ctx context.Context, userID uuid.UUID, amountMinor int64) error
}

// AuditService interface for compliance audit logging
type AuditService interface {
	LogTransition(ctx context.Context, requestID, userID uuid.UUID, from, to entities.WithdrawalStatus, detail string) error
}

// Config holds the policy knobs for withdrawal processing.
type Config struct {
	MinimumAmountMinor  int64
	AutoApproveMaxMinor int64
	Retry               payout.RetryPolicy
	ProviderTimeout     time.Duration
}

// Service orchestrates the full withdrawal lifecycle: validation,
// balance debit, provider payout and compensation on failure.
type Service struct {
	cfg                 Config
	wallets             WalletStore
	requests            RequestStore
	methods             MethodStore
	ledger              LedgerStore
	selector            ProviderSelector
	txRunner            TxRunner
	notificationService NotificationService
	auditService        AuditService
	logger              *logger.Logger
	breakers            map[payout.Method]*circuitbreaker.CircuitBreaker
}

// NewService creates a new withdrawal service with one circuit breaker
// per payout rail.
func NewService(
	cfg Config,
	wallets WalletStore,
	requests RequestStore,
	methods MethodStore,
	ledger LedgerStore,
	selector ProviderSelector,
	txRunner TxRunner,
	log *logger.Logger,
) *Service {
	breakers := make(map[payout.Method]*circuitbreaker.CircuitBreaker, len(payout.Methods()))
	for _, m := range payout.Methods() {
		method := m
		breakers[method] = circuitbreaker.New(circuitbreaker.Config{
			Name:             string(method),
			MaxRequests:      5,
			Interval:         60 * time.Second,
			Timeout:          60 * time.Second,
			FailureThreshold: 5,
			// A permanent rejection of one payout is not a rail outage.
			IsFailure: func(err error) bool {
				return !payout.IsPermanent(err)
			},
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				log.Warn("Payout rail circuit state changed",
					"rail", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return &Service{
		cfg:      cfg,
		wallets:  wallets,
		requests: requests,
		methods:  methods,
		ledger:   ledger,
		selector: selector,
		txRunner: txRunner,
		logger:   log,
		breakers: breakers,
	}
}

// SetNotificationService sets the notification service (optional)
func (s *Service) SetNotificationService(ns NotificationService) {
	s.notificationService = ns
}

// SetAuditService sets the audit service for compliance logging (optional)
func (s *Service) SetAuditService(as AuditService) {
	s.auditService = as
}

// SubmitWithdrawal validates and processes a user withdrawal. Requests
// at or below the auto-approve ceiling are processed synchronously;
// larger ones are parked for admin review without touching the wallet.
func (s *Service) SubmitWithdrawal(ctx context.Context, req *entities.SubmitWithdrawalRequest) (*entities.WithdrawalOutcome, error) {
	s.logger.Info("Submitting withdrawal",
		"user_id", req.UserID.String(),
		"payout_method_id", req.PayoutMethodID.String(),
		"amount_minor", req.AmountMinor)

	// Step 1: Validate the amount against the configured floor.
	if req.AmountMinor < s.cfg.MinimumAmountMinor {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("withdrawal amount %d is below the minimum of %d", req.AmountMinor, s.cfg.MinimumAmountMinor))
	}

	// Step 2: Resolve the saved payout method; ownership is enforced by
	// the lookup itself.
	method, err := s.methods.GetForUser(ctx, req.PayoutMethodID, req.UserID)
	if err != nil {
		return nil, err
	}

	// Step 3: Pre-flight recipient validation. Skipped when the rail is
	// not configured so the configuration error surfaces on the payout
	// path instead of masquerading as a bad recipient.
	if s.selector.IsConfigured(method.Method) {
		ok, err := s.selector.ValidateRecipient(method.Method, method.Recipient)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.logger.Warn("Recipient failed pre-flight validation",
				"user_id", req.UserID.String(), "method", string(method.Method),
				"recipient_hash", util.RedactPII(method.Recipient))
			return nil, apperrors.NewValidationError(
				fmt.Sprintf("recipient %q is not valid for %s payouts", util.MaskRecipient(method.Recipient), method.Method))
		}
	}

	// Step 4: Withdrawals only ever leave the real-money wallet.
	wallet, err := s.wallets.GetByUserAndMode(ctx, req.UserID, entities.WalletModeReal)
	if err != nil {
		return nil, err
	}
	if wallet.BalanceMinor < req.AmountMinor {
		return nil, apperrors.NewInsufficientFunds(
			fmt.Sprintf("balance %d is below requested amount %d", wallet.BalanceMinor, req.AmountMinor))
	}

	request := &entities.WithdrawalRequest{
		ID:                   uuid.New(),
		UserID:               req.UserID,
		WalletID:             wallet.ID,
		PayoutMethodID:       method.ID,
		Method:               method.Method,
		Recipient:            method.Recipient,
		AmountMinor:          req.AmountMinor,
		Status:               entities.WithdrawalStatusPending,
		BalanceSnapshotMinor: wallet.BalanceMinor,
		CreatedAt:            time.Now().UTC(),
	}

	// Step 5: Route on the auto-approve ceiling. Above it the request is
	// parked PENDING for manual review and the wallet stays untouched.
	if req.AmountMinor > s.cfg.AutoApproveMaxMinor {
		request.ReviewRequired = true
		if err := s.requests.Create(ctx, request); err != nil {
			s.logger.Error("Failed to park withdrawal for review", "error", err, "user_id", req.UserID.String())
			return nil, err
		}
		s.logger.Info("Withdrawal parked for admin review",
			"request_id", request.ID.String(), "amount_minor", request.AmountMinor)
		metrics.WithdrawalsTotal.WithLabelValues("pending_review", string(request.Method)).Inc()
		metrics.WithdrawalAmountMinor.WithLabelValues(string(request.Method)).Observe(float64(request.AmountMinor))
		if s.notificationService != nil {
			_ = s.notificationService.NotifyWithdrawalPendingReview(ctx, req.UserID, req.AmountMinor)
		}
		return &entities.WithdrawalOutcome{
			RequestID:   request.ID,
			Status:      entities.OutcomePendingReview,
			AmountMinor: request.AmountMinor,
		}, nil
	}

	// Step 6: Auto-approve path. Debit, payout and the terminal status
	// land in one transaction.
	outcome, err := s.processRequest(ctx, request, method.ExternalAccountRef, false)
	if err != nil {
		return nil, err
	}
	s.notifyOutcome(ctx, request, outcome)
	return outcome, nil
}

// Decide resolves a parked withdrawal request. Approval re-validates
// the balance and runs the same debit-payout-compensate path as the
// synchronous flow; rejection flips the status without any ledger
// mutation.
func (s *Service) Decide(ctx context.Context, requestID uuid.UUID, decision *entities.AdminDecision) (*entities.WithdrawalOutcome, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != entities.WithdrawalStatusPending {
		return nil, apperrors.New(apperrors.KindConflict, "already_decided",
			fmt.Sprintf("withdrawal %s is already %s", requestID, request.Status))
	}

	if !decision.Approve {
		if err := s.requests.MarkRejected(ctx, requestID, decision.Notes); err != nil {
			return nil, err
		}
		s.logger.Info("Withdrawal rejected by admin", "request_id", requestID.String())
		s.audit(ctx, request, entities.WithdrawalStatusRejected, decision.Notes)
		if s.notificationService != nil {
			_ = s.notificationService.NotifyWithdrawalFailed(ctx, request.UserID, request.AmountMinor, "rejected by review")
		}
		return &entities.WithdrawalOutcome{
			RequestID:   requestID,
			Status:      entities.OutcomeRejected,
			AmountMinor: request.AmountMinor,
			Reason:      decision.Notes,
		}, nil
	}

	var extRef string
	if method, err := s.methods.GetForUser(ctx, request.PayoutMethodID, request.UserID); err == nil && method.ExternalAccountRef != nil {
		extRef = *method.ExternalAccountRef
	}

	request.AdminNotes = &decision.Notes
	outcome, err := s.processRequest(ctx, request, strPtrOrNil(extRef), true)
	if err != nil {
		return nil, err
	}
	s.notifyOutcome(ctx, request, outcome)
	return outcome, nil
}

// processRequest runs the balance debit, provider payout and terminal
// status transition inside a single transaction. The wallet row lock is
// held for the duration of the provider call so that concurrent
// withdrawals against the same wallet serialize and can never
// double-spend the balance.
//
// A payout failure is not an error for the caller: the transaction
// still commits, recording the FAILED status together with the
// compensating credit. Only infrastructure errors roll back.
func (s *Service) processRequest(ctx context.Context, request *entities.WithdrawalRequest, extRef *string, existing bool) (*entities.WithdrawalOutcome, error) {
	outcome := &entities.WithdrawalOutcome{
		RequestID:   request.ID,
		AmountMinor: request.AmountMinor,
	}

	err := s.txRunner.WithinTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if existing {
			locked, err := s.requests.LockTx(ctx, tx, request.ID)
			if err != nil {
				return err
			}
			if locked.Status != entities.WithdrawalStatusPending {
				return apperrors.New(apperrors.KindConflict, "already_decided",
					fmt.Sprintf("withdrawal %s is already %s", request.ID, locked.Status))
			}
		}

		wallet, err := s.wallets.LockTx(ctx, tx, request.WalletID)
		if err != nil {
			return err
		}

		balanceAfterDebit, err := s.wallets.DebitTx(ctx, tx, wallet.ID, request.AmountMinor)
		if err != nil {
			// On the admin path an insufficient balance surfaces as an
			// error and the request stays parked, so the user can top up
			// and the admin can re-review.
			return err
		}

		if !existing {
			if err := s.requests.CreateTx(ctx, tx, request); err != nil {
				return err
			}
		} else if request.AdminNotes != nil {
			if err := s.requests.SetAdminNotesTx(ctx, tx, request.ID, *request.AdminNotes); err != nil {
				return err
			}
		}

		gatewayTxID, payErr := s.initiatePayout(ctx, request, wallet.Currency, extRef)
		if payErr == nil {
			if err := s.requests.MarkApprovedTx(ctx, tx, request.ID, gatewayTxID); err != nil {
				return err
			}
			if err := s.ledger.AppendTx(ctx, tx, &entities.TransactionLedgerEntry{
				ID:                uuid.New(),
				RequestID:         request.ID,
				WalletID:          wallet.ID,
				AmountMinor:       -request.AmountMinor,
				BalanceAfterMinor: balanceAfterDebit,
				Status:            entities.LedgerStatusCompleted,
				CreatedAt:         time.Now().UTC(),
			}); err != nil {
				return err
			}
			outcome.Status = entities.OutcomeApproved
			outcome.GatewayTransactionID = gatewayTxID
			return nil
		}

		// Partial card failures keep the debit in place: the money left
		// the platform sub-account, so crediting the wallet here would
		// double-spend. Reconciliation settles it once the transfer leg
		// is verified.
		if payout.IsPartial(payErr) {
			if err := s.requests.MarkFailedTx(ctx, tx, request.ID, payErr.Error(), true); err != nil {
				return err
			}
			if ref := payout.ReferenceOf(payErr); ref != "" {
				if err := s.requests.SetGatewayTransactionIDTx(ctx, tx, request.ID, ref); err != nil {
					return err
				}
			}
			if err := s.ledger.AppendTx(ctx, tx, &entities.TransactionLedgerEntry{
				ID:                uuid.New(),
				RequestID:         request.ID,
				WalletID:          wallet.ID,
				AmountMinor:       -request.AmountMinor,
				BalanceAfterMinor: balanceAfterDebit,
				Status:            entities.LedgerStatusFailed,
				CreatedAt:         time.Now().UTC(),
			}); err != nil {
				return err
			}
			s.logger.Error("Card payout failed after transfer leg, flagged for reconciliation",
				"request_id", request.ID.String(), "error", payErr)
			outcome.Status = entities.OutcomeFailed
			outcome.Reason = payErr.Error()
			return nil
		}

		balanceAfterCredit, err := s.wallets.CreditTx(ctx, tx, wallet.ID, request.AmountMinor)
		if err != nil {
			return err
		}
		if err := s.requests.MarkFailedTx(ctx, tx, request.ID, payErr.Error(), false); err != nil {
			return err
		}
		if err := s.ledger.AppendTx(ctx, tx, &entities.TransactionLedgerEntry{
			ID:                uuid.New(),
			RequestID:         request.ID,
			WalletID:          wallet.ID,
			AmountMinor:       0,
			BalanceAfterMinor: balanceAfterCredit,
			Status:            entities.LedgerStatusFailed,
			CreatedAt:         time.Now().UTC(),
		}); err != nil {
			return err
		}
		s.logger.Warn("Payout failed, wallet compensated",
			"request_id", request.ID.String(), "method", string(request.Method), "error", payErr)
		outcome.Status = entities.OutcomeFailed
		outcome.Reason = payErr.Error()
		return nil
	})
	if err != nil {
		s.logger.Error("Withdrawal processing aborted", "request_id", request.ID.String(), "error", err)
		return nil, err
	}
	return outcome, nil
}

// initiatePayout resolves the rail and runs the retried provider call
// behind that rail's circuit breaker.
func (s *Service) initiatePayout(ctx context.Context, request *entities.WithdrawalRequest, currency string, extRef *string) (string, error) {
	provider, err := s.selector.Select(request.Method)
	if err != nil {
		return "", err
	}

	payoutReq := payout.Request{
		RequestID:   request.ID,
		AmountMinor: request.AmountMinor,
		Currency:    currency,
		Recipient:   request.Recipient,
		Description: fmt.Sprintf("withdrawal %s", request.ID),
	}
	if extRef != nil {
		payoutReq.ExternalAccountRef = *extRef
	}
	s.logger.Info("Initiating provider payout",
		"request_id", request.ID.String(), "method", string(request.Method),
		"recipient", util.MaskRecipient(request.Recipient), "amount_minor", request.AmountMinor)

	callCtx := ctx
	if s.cfg.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.ProviderTimeout)
		defer cancel()
	}

	retry := s.cfg.Retry
	retry.OnRetry = func(err error, delay time.Duration) {
		metrics.ProviderRetriesTotal.WithLabelValues(string(request.Method)).Inc()
		s.logger.Warn("Retrying provider payout",
			"request_id", request.ID.String(), "method", string(request.Method),
			"delay", delay.String(), "error", err)
	}

	start := time.Now()
	var gatewayTxID string
	var initErr error
	err = s.breakers[request.Method].Execute(callCtx, func() error {
		gatewayTxID, initErr = retry.Initiate(callCtx, provider, payoutReq)
		return initErr
	})
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.ProviderCallDuration.WithLabelValues(string(request.Method), result).Observe(time.Since(start).Seconds())
	if err != nil {
		if circuitbreaker.IsOpen(err) {
			return "", payout.NewTransient(string(request.Method), "circuit_open",
				"payout rail temporarily unavailable", err)
		}
		return "", err
	}
	return gatewayTxID, nil
}

func (s *Service) notifyOutcome(ctx context.Context, request *entities.WithdrawalRequest, outcome *entities.WithdrawalOutcome) {
	metrics.WithdrawalsTotal.WithLabelValues(string(outcome.Status), string(request.Method)).Inc()
	metrics.WithdrawalAmountMinor.WithLabelValues(string(request.Method)).Observe(float64(request.AmountMinor))

	switch outcome.Status {
	case entities.OutcomeApproved:
		s.audit(ctx, request, entities.WithdrawalStatusApproved, outcome.GatewayTransactionID)
		if s.notificationService != nil {
			_ = s.notificationService.NotifyWithdrawalApproved(ctx, request.UserID, request.AmountMinor, string(request.Method))
		}
	case entities.OutcomeFailed:
		s.audit(ctx, request, entities.WithdrawalStatusFailed, outcome.Reason)
		if s.notificationService != nil {
			_ = s.notificationService.NotifyWithdrawalFailed(ctx, request.UserID, request.AmountMinor, outcome.Reason)
		}
	}
}

func (s *Service) audit(ctx context.Context, request *entities.WithdrawalRequest, to entities.WithdrawalStatus, detail string) {
	if s.auditService == nil {
		return
	}
	if err := s.auditService.LogTransition(ctx, request.ID, request.UserID, entities.WithdrawalStatusPending, to, detail); err != nil {
		s.logger.Warn("Failed to write audit log", "error", err, "request_id", request.ID.String())
	}
}

// GetWithdrawal fetches a single withdrawal, scoped to its owner.
func (s *Service) GetWithdrawal(ctx context.Context, id, userID uuid.UUID) (*entities.WithdrawalRequest, error) {
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.UserID != userID {
		return nil, apperrors.NewNotFound("withdrawal")
	}
	return request, nil
}

// GetUserWithdrawals lists a user's withdrawal history.
func (s *Service) GetUserWithdrawals(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.WithdrawalRequest, error) {
	return s.requests.GetByUserID(ctx, userID, limit, offset)
}

// ListPendingReview lists requests parked for admin review.
func (s *Service) ListPendingReview(ctx context.Context, limit, offset int) ([]*entities.WithdrawalRequest, error) {
	return s.requests.ListPendingReview(ctx, limit, offset)
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
