package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/optionpay/payout-service/internal/domain/entities"
)

// LedgerRepository appends transaction ledger audit entries. Entries are
// written in the same transaction as the wallet mutation they mirror and
// are never updated afterwards.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository creates a new ledger repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// AppendTx writes a ledger entry within the transaction.
func (r *LedgerRepository) AppendTx(ctx context.Context, tx *sqlx.Tx, e *entities.TransactionLedgerEntry) error {
	query := `
		INSERT INTO transaction_ledger (
			id, request_id, wallet_id, amount_minor, balance_after_minor, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.ExecContext(ctx, query,
		e.ID, e.RequestID, e.WalletID, e.AmountMinor, e.BalanceAfterMinor, e.Status, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// ListByRequest returns the ledger trail for a withdrawal request.
func (r *LedgerRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*entities.TransactionLedgerEntry, error) {
	query := `
		SELECT id, request_id, wallet_id, amount_minor, balance_after_minor, status, created_at
		FROM transaction_ledger
		WHERE request_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var result []*entities.TransactionLedgerEntry
	for rows.Next() {
		e := &entities.TransactionLedgerEntry{}
		if err := rows.Scan(&e.ID, &e.RequestID, &e.WalletID, &e.AmountMinor, &e.BalanceAfterMinor, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
