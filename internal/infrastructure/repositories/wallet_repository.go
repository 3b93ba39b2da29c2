package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/optionpay/payout-service/internal/domain/entities"
	apperrors "github.com/optionpay/payout-service/pkg/errors"
)

// WalletRepository persists wallet ledger rows. Debits and credits run
// against a caller-supplied transaction so the wallet mutation, the
// request row and the audit entry commit or roll back together.
type WalletRepository struct {
	db *sqlx.DB
}

// NewWalletRepository creates a new wallet repository.
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetByID returns the wallet without locking. Used by read-only surfaces.
func (r *WalletRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Wallet, error) {
	query := `
		SELECT id, user_id, mode, currency, balance_minor, created_at, updated_at
		FROM wallets
		WHERE id = $1`

	w := &entities.Wallet{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&w.ID, &w.UserID, &w.Mode, &w.Currency, &w.BalanceMinor, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("wallet")
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// GetByUserAndMode returns the user's wallet for the given mode.
func (r *WalletRepository) GetByUserAndMode(ctx context.Context, userID uuid.UUID, mode entities.WalletMode) (*entities.Wallet, error) {
	query := `
		SELECT id, user_id, mode, currency, balance_minor, created_at, updated_at
		FROM wallets
		WHERE user_id = $1 AND mode = $2`

	w := &entities.Wallet{}
	err := r.db.QueryRowContext(ctx, query, userID, mode).Scan(
		&w.ID, &w.UserID, &w.Mode, &w.Currency, &w.BalanceMinor, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("wallet")
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// LockTx reads the wallet under an exclusive row lock. Concurrent
// withdrawals against the same wallet serialize here, so two submissions
// can never both observe a sufficient balance.
func (r *WalletRepository) LockTx(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID) (*entities.Wallet, error) {
	query := `
		SELECT id, user_id, mode, currency, balance_minor, created_at, updated_at
		FROM wallets
		WHERE id = $1
		FOR UPDATE`

	w := &entities.Wallet{}
	err := tx.QueryRowContext(ctx, query, walletID).Scan(
		&w.ID, &w.UserID, &w.Mode, &w.Currency, &w.BalanceMinor, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("wallet")
	}
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	return w, nil
}

// DebitTx subtracts amount from the wallet balance. It fails without
// mutating when the balance is insufficient. The caller must hold the
// row lock via LockTx in the same transaction.
func (r *WalletRepository) DebitTx(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID, amountMinor int64) (int64, error) {
	if amountMinor <= 0 {
		return 0, apperrors.NewValidationError("debit amount must be positive")
	}

	query := `
		UPDATE wallets
		SET balance_minor = balance_minor - $1, updated_at = NOW()
		WHERE id = $2 AND balance_minor >= $1
		RETURNING balance_minor`

	var newBalance int64
	err := tx.QueryRowContext(ctx, query, amountMinor, walletID).Scan(&newBalance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperrors.NewInsufficientFunds("wallet balance is insufficient")
	}
	if err != nil {
		return 0, fmt.Errorf("debit wallet: %w", err)
	}
	return newBalance, nil
}

// CreditTx adds amount to the wallet balance with a saturating guard
// against int64 overflow. Used only for refunds and compensation.
func (r *WalletRepository) CreditTx(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID, amountMinor int64) (int64, error) {
	if amountMinor <= 0 {
		return 0, apperrors.NewValidationError("credit amount must be positive")
	}

	query := `
		UPDATE wallets
		SET balance_minor = CASE
			WHEN balance_minor > $3 - $1 THEN $3
			ELSE balance_minor + $1
		END,
		updated_at = NOW()
		WHERE id = $2
		RETURNING balance_minor`

	var newBalance int64
	err := tx.QueryRowContext(ctx, query, amountMinor, walletID, int64(math.MaxInt64)).Scan(&newBalance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperrors.NewNotFound("wallet")
	}
	if err != nil {
		return 0, fmt.Errorf("credit wallet: %w", err)
	}
	return newBalance, nil
}
