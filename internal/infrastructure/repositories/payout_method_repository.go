package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/optionpay/payout-service/internal/domain/entities"
	apperrors "github.com/optionpay/payout-service/pkg/errors"
)

// PayoutMethodRepository is the read-only lookup for user payout methods.
// Methods are created by a separate onboarding flow.
type PayoutMethodRepository struct {
	db *sqlx.DB
}

// NewPayoutMethodRepository creates a new payout method repository.
func NewPayoutMethodRepository(db *sqlx.DB) *PayoutMethodRepository {
	return &PayoutMethodRepository{db: db}
}

// GetForUser returns the payout method only if it belongs to the user.
// Ownership mismatches are indistinguishable from absence.
func (r *PayoutMethodRepository) GetForUser(ctx context.Context, methodID, userID uuid.UUID) (*entities.PayoutMethod, error) {
	query := `
		SELECT id, user_id, method, recipient, external_account_ref, label, created_at
		FROM payout_methods
		WHERE id = $1 AND user_id = $2`

	m := &entities.PayoutMethod{}
	err := r.db.QueryRowContext(ctx, query, methodID, userID).Scan(
		&m.ID, &m.UserID, &m.Method, &m.Recipient, &m.ExternalAccountRef, &m.Label, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("payout method")
	}
	if err != nil {
		return nil, fmt.Errorf("get payout method: %w", err)
	}
	return m, nil
}

// ListForUser returns all payout methods owned by the user.
func (r *PayoutMethodRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*entities.PayoutMethod, error) {
	query := `
		SELECT id, user_id, method, recipient, external_account_ref, label, created_at
		FROM payout_methods
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list payout methods: %w", err)
	}
	defer rows.Close()

	var result []*entities.PayoutMethod
	for rows.Next() {
		m := &entities.PayoutMethod{}
		if err := rows.Scan(&m.ID, &m.UserID, &m.Method, &m.Recipient, &m.ExternalAccountRef, &m.Label, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payout method: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
