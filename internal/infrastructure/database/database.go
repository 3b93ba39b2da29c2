// Package database owns the Postgres connection, boot-time migrations and
// the transaction scope every orchestration call runs inside.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/optionpay/payout-service/internal/infrastructure/config"
)

// NewConnection opens a Postgres connection pool with the configured
// limits and verifies it with a ping.
func NewConnection(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// RunMigrations applies pending migrations from the configured path.
func RunMigrations(cfg config.DatabaseConfig) error {
	m, err := migrate.New("file://"+cfg.MigrationsPath, cfg.URL)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// TxFunc is the body of a transactional unit of work.
type TxFunc func(ctx context.Context, tx *sqlx.Tx) error

// TxRunner runs a function inside a single database transaction and
// guarantees release on every exit path, including panics during
// provider calls made while the wallet row lock is held.
type TxRunner struct {
	db *sqlx.DB
}

// NewTxRunner creates a TxRunner over the given pool.
func NewTxRunner(db *sqlx.DB) *TxRunner {
	return &TxRunner{db: db}
}

// WithinTx begins a transaction, runs fn, and commits if fn returned nil.
// Any error or panic rolls the transaction back.
func (r *TxRunner) WithinTx(ctx context.Context, fn TxFunc) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
