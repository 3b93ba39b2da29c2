package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	apperrors "github.com/optionpay/payout-service/pkg/errors"
)

// UserRepository reads the minimal user data the payout service needs.
// Account management lives in the platform's identity service; this
// table is a replicated projection.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetEmail returns the user's notification address.
func (r *UserRepository) GetEmail(ctx context.Context, userID uuid.UUID) (string, error) {
	var email string
	err := r.db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.NewNotFound("user")
	}
	if err != nil {
		return "", fmt.Errorf("get user email: %w", err)
	}
	return email, nil
}

// IsAdmin reports whether the user can act on parked withdrawals.
func (r *UserRepository) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	var isAdmin bool
	err := r.db.QueryRowContext(ctx, `SELECT is_admin FROM users WHERE id = $1`, userID).Scan(&isAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return false, apperrors.NewNotFound("user")
	}
	if err != nil {
		return false, fmt.Errorf("get user role: %w", err)
	}
	return isAdmin, nil
}
