package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/optionpay/payout-service/internal/domain/entities"
	apperrors "github.com/optionpay/payout-service/pkg/errors"
)

const withdrawalColumns = `id, user_id, wallet_id, payout_method_id, method, recipient,
	amount_minor, status, review_required, gateway_transaction_id, gateway_status,
	failure_reason, admin_notes, needs_reconciliation, balance_snapshot_minor,
	created_at, processed_at`

// WithdrawalRepository persists withdrawal requests.
type WithdrawalRepository struct {
	db *sqlx.DB
}

// NewWithdrawalRepository creates a new withdrawal repository.
func NewWithdrawalRepository(db *sqlx.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func scanWithdrawal(row interface{ Scan(...interface{}) error }) (*entities.WithdrawalRequest, error) {
	w := &entities.WithdrawalRequest{}
	err := row.Scan(
		&w.ID, &w.UserID, &w.WalletID, &w.PayoutMethodID, &w.Method, &w.Recipient,
		&w.AmountMinor, &w.Status, &w.ReviewRequired, &w.GatewayTransactionID, &w.GatewayStatus,
		&w.FailureReason, &w.AdminNotes, &w.NeedsReconciliation, &w.BalanceSnapshotMinor,
		&w.CreatedAt, &w.ProcessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("withdrawal request")
	}
	if err != nil {
		return nil, fmt.Errorf("scan withdrawal request: %w", err)
	}
	return w, nil
}

// CreateTx inserts a new withdrawal request within the transaction.
func (r *WithdrawalRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, w *entities.WithdrawalRequest) error {
	query := `
		INSERT INTO withdrawal_requests (
			id, user_id, wallet_id, payout_method_id, method, recipient,
			amount_minor, status, review_required, balance_snapshot_minor, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.ExecContext(ctx, query,
		w.ID, w.UserID, w.WalletID, w.PayoutMethodID, w.Method, w.Recipient,
		w.AmountMinor, w.Status, w.ReviewRequired, w.BalanceSnapshotMinor, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("create withdrawal request: %w", err)
	}
	return nil
}

// Create inserts a new withdrawal request outside any transaction. Used
// for the manual-review path where no ledger mutation accompanies the row.
func (r *WithdrawalRepository) Create(ctx context.Context, w *entities.WithdrawalRequest) error {
	query := `
		INSERT INTO withdrawal_requests (
			id, user_id, wallet_id, payout_method_id, method, recipient,
			amount_minor, status, review_required, balance_snapshot_minor, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		w.ID, w.UserID, w.WalletID, w.PayoutMethodID, w.Method, w.Recipient,
		w.AmountMinor, w.Status, w.ReviewRequired, w.BalanceSnapshotMinor, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("create withdrawal request: %w", err)
	}
	return nil
}

// GetByID returns the request without locking.
func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1`
	return scanWithdrawal(r.db.QueryRowContext(ctx, query, id))
}

// LockTx reads the request under an exclusive row lock so admin decisions
// and webhook reversals against the same request serialize.
func (r *WithdrawalRepository) LockTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`
	return scanWithdrawal(tx.QueryRowContext(ctx, query, id))
}

// GetByGatewayTransactionID resolves a request from the provider-side
// transaction id carried by webhook events.
func (r *WithdrawalRepository) GetByGatewayTransactionID(ctx context.Context, gatewayTxID string) (*entities.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE gateway_transaction_id = $1`
	return scanWithdrawal(r.db.QueryRowContext(ctx, query, gatewayTxID))
}

// GetByUserID lists a user's withdrawal requests, newest first.
func (r *WithdrawalRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + `
		FROM withdrawal_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list withdrawal requests: %w", err)
	}
	defer rows.Close()

	var result []*entities.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// ListPendingReview lists requests parked for manual review, oldest first.
func (r *WithdrawalRepository) ListPendingReview(ctx context.Context, limit, offset int) ([]*entities.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + `
		FROM withdrawal_requests
		WHERE status = $1 AND review_required = TRUE
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, entities.WithdrawalStatusPending, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list pending review: %w", err)
	}
	defer rows.Close()

	var result []*entities.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// MarkApprovedTx finalizes the request as APPROVED with its gateway
// transaction id, within the same transaction as the ledger debit.
func (r *WithdrawalRepository) MarkApprovedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, gatewayTxID string) error {
	query := `
		UPDATE withdrawal_requests
		SET status = $1, gateway_transaction_id = $2, processed_at = $3
		WHERE id = $4`

	res, err := tx.ExecContext(ctx, query, entities.WithdrawalStatusApproved, gatewayTxID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark approved: %w", err)
	}
	return requireOneRow(res, "withdrawal request")
}

// MarkFailedTx finalizes the request as FAILED with the captured reason,
// within the same transaction as the compensating credit.
func (r *WithdrawalRepository) MarkFailedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, reason string, needsReconciliation bool) error {
	query := `
		UPDATE withdrawal_requests
		SET status = $1, failure_reason = $2, needs_reconciliation = $3, processed_at = $4
		WHERE id = $5`

	res, err := tx.ExecContext(ctx, query, entities.WithdrawalStatusFailed, reason, needsReconciliation, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireOneRow(res, "withdrawal request")
}

// SetGatewayTransactionIDTx stores a provider-side reference on a
// non-APPROVED request, such as the completed transfer leg of a partial
// card failure.
func (r *WithdrawalRepository) SetGatewayTransactionIDTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, gatewayTxID string) error {
	query := `UPDATE withdrawal_requests SET gateway_transaction_id = $1 WHERE id = $2`
	if _, err := tx.ExecContext(ctx, query, gatewayTxID, id); err != nil {
		return fmt.Errorf("set gateway transaction id: %w", err)
	}
	return nil
}

// MarkReconciledTx clears the reconciliation flag once the stranded
// transfer leg has been settled, within the transaction carrying the
// recovery credit.
func (r *WithdrawalRepository) MarkReconciledTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, gatewayStatus string) error {
	query := `
		UPDATE withdrawal_requests
		SET needs_reconciliation = FALSE, gateway_status = $1
		WHERE id = $2 AND needs_reconciliation = TRUE`

	res, err := tx.ExecContext(ctx, query, gatewayStatus, id)
	if err != nil {
		return fmt.Errorf("mark reconciled: %w", err)
	}
	return requireOneRow(res, "unreconciled withdrawal request")
}

// MarkRejected finalizes a review-path request as REJECTED. No ledger
// mutation accompanies rejection: review-path requests were never debited.
func (r *WithdrawalRepository) MarkRejected(ctx context.Context, id uuid.UUID, notes string) error {
	query := `
		UPDATE withdrawal_requests
		SET status = $1, admin_notes = $2, processed_at = $3
		WHERE id = $4 AND status = $5`

	res, err := r.db.ExecContext(ctx, query,
		entities.WithdrawalStatusRejected, notes, time.Now().UTC(), id, entities.WithdrawalStatusPending)
	if err != nil {
		return fmt.Errorf("mark rejected: %w", err)
	}
	return requireOneRow(res, "pending withdrawal request")
}

// SetAdminNotesTx records reviewer notes within the transaction.
func (r *WithdrawalRepository) SetAdminNotesTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, notes string) error {
	query := `UPDATE withdrawal_requests SET admin_notes = $1 WHERE id = $2`
	if _, err := tx.ExecContext(ctx, query, notes, id); err != nil {
		return fmt.Errorf("set admin notes: %w", err)
	}
	return nil
}

// UpdateGatewayStatus annotates the provider-side status string. Webhook
// annotations never change the request status.
func (r *WithdrawalRepository) UpdateGatewayStatus(ctx context.Context, id uuid.UUID, gatewayStatus string, failureReason *string) error {
	query := `
		UPDATE withdrawal_requests
		SET gateway_status = $1,
			failure_reason = COALESCE($2, failure_reason)
		WHERE id = $3`

	res, err := r.db.ExecContext(ctx, query, gatewayStatus, failureReason, id)
	if err != nil {
		return fmt.Errorf("update gateway status: %w", err)
	}
	return requireOneRow(res, "withdrawal request")
}

// MarkReversedTx moves a previously APPROVED request to FAILED within the
// transaction carrying the compensating credit, and clears the
// reconciliation flag.
func (r *WithdrawalRepository) MarkReversedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, reason string) error {
	query := `
		UPDATE withdrawal_requests
		SET status = $1, failure_reason = $2, gateway_status = $3, needs_reconciliation = FALSE
		WHERE id = $4 AND status = $5`

	res, err := tx.ExecContext(ctx, query,
		entities.WithdrawalStatusFailed, reason, "reversed", id, entities.WithdrawalStatusApproved)
	if err != nil {
		return fmt.Errorf("mark reversed: %w", err)
	}
	return requireOneRow(res, "approved withdrawal request")
}

// ListNeedingReconciliation returns requests flagged for provider-side
// verification that have been waiting longer than the SLA threshold.
func (r *WithdrawalRepository) ListNeedingReconciliation(ctx context.Context, olderThan time.Duration) ([]*entities.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + `
		FROM withdrawal_requests
		WHERE needs_reconciliation = TRUE AND processed_at < $1
		ORDER BY processed_at ASC`

	rows, err := r.db.QueryContext(ctx, query, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("list needing reconciliation: %w", err)
	}
	defer rows.Close()

	var result []*entities.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

func requireOneRow(res sql.Result, resource string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.NewNotFound(resource)
	}
	return nil
}
