package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionpay/payout-service/internal/domain/entities"
	apperrors "github.com/optionpay/payout-service/pkg/errors"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

func beginTx(t *testing.T, db *sqlx.DB, mock sqlmock.Sqlmock) *sqlx.Tx {
	t.Helper()
	mock.ExpectBegin()
	tx, err := db.Beginx()
	require.NoError(t, err)
	return tx
}

func walletRow(walletID, userID uuid.UUID, balance int64) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "user_id", "mode", "currency", "balance_minor", "created_at", "updated_at"}).
		AddRow(walletID, userID, "real", "USD", balance, now, now)
}

func TestWalletGetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)
	walletID, userID := uuid.New(), uuid.New()

	mock.ExpectQuery(`FROM wallets\s+WHERE id = \$1`).
		WithArgs(walletID).
		WillReturnRows(walletRow(walletID, userID, 100000))

	w, err := repo.GetByID(context.Background(), walletID)
	require.NoError(t, err)
	assert.Equal(t, userID, w.UserID)
	assert.Equal(t, "USD", w.Currency)
}

func TestWalletGetByUserAndMode(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)
	walletID, userID := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT id, user_id, mode, currency, balance_minor, created_at, updated_at\s+FROM wallets\s+WHERE user_id = \$1 AND mode = \$2`).
		WithArgs(userID, entities.WalletModeReal).
		WillReturnRows(walletRow(walletID, userID, 100000))

	w, err := repo.GetByUserAndMode(context.Background(), userID, entities.WalletModeReal)
	require.NoError(t, err)
	assert.Equal(t, walletID, w.ID)
	assert.Equal(t, int64(100000), w.BalanceMinor)
	assert.Equal(t, entities.WalletModeReal, w.Mode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletGetByUserAndModeNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)

	mock.ExpectQuery(`FROM wallets`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByUserAndMode(context.Background(), uuid.New(), entities.WalletModeReal)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestWalletLockTxUsesRowLock(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)
	walletID, userID := uuid.New(), uuid.New()
	tx := beginTx(t, db, mock)

	mock.ExpectQuery(`FROM wallets\s+WHERE id = \$1\s+FOR UPDATE`).
		WithArgs(walletID).
		WillReturnRows(walletRow(walletID, userID, 50000))

	w, err := repo.LockTx(context.Background(), tx, walletID)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), w.BalanceMinor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletDebitTxConditionalOnBalance(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)
	walletID := uuid.New()
	tx := beginTx(t, db, mock)

	mock.ExpectQuery(`UPDATE wallets\s+SET balance_minor = balance_minor - \$1, updated_at = NOW\(\)\s+WHERE id = \$2 AND balance_minor >= \$1\s+RETURNING balance_minor`).
		WithArgs(int64(5000), walletID).
		WillReturnRows(sqlmock.NewRows([]string{"balance_minor"}).AddRow(int64(95000)))

	newBalance, err := repo.DebitTx(context.Background(), tx, walletID, 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(95000), newBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletDebitTxInsufficientFunds(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)
	tx := beginTx(t, db, mock)

	// The guarded UPDATE matches no row when the balance is short.
	mock.ExpectQuery(`UPDATE wallets`).
		WillReturnRows(sqlmock.NewRows([]string{"balance_minor"}))

	_, err := repo.DebitTx(context.Background(), tx, uuid.New(), 5000)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInsufficientFunds))
}

func TestWalletDebitTxRejectsNonPositiveAmount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)
	tx := beginTx(t, db, mock)

	_, err := repo.DebitTx(context.Background(), tx, uuid.New(), 0)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = repo.DebitTx(context.Background(), tx, uuid.New(), -10)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestWalletCreditTx(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)
	walletID := uuid.New()
	tx := beginTx(t, db, mock)

	mock.ExpectQuery(`UPDATE wallets`).
		WithArgs(int64(5000), walletID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"balance_minor"}).AddRow(int64(105000)))

	newBalance, err := repo.CreditTx(context.Background(), tx, walletID, 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(105000), newBalance)
}

func TestWalletCreditTxUnknownWallet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)
	tx := beginTx(t, db, mock)

	mock.ExpectQuery(`UPDATE wallets`).
		WillReturnRows(sqlmock.NewRows([]string{"balance_minor"}))

	_, err := repo.CreditTx(context.Background(), tx, uuid.New(), 5000)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}
