package entities

import (
	"time"

	"github.com/google/uuid"
)

// WalletMode distinguishes real-money wallets from demo wallets. Payouts
// are only ever made from real wallets.
type WalletMode string

const (
	WalletModeReal WalletMode = "real"
	WalletModeDemo WalletMode = "demo"
)

// IsValid reports whether the mode is a known wallet mode.
func (m WalletMode) IsValid() bool {
	return m == WalletModeReal || m == WalletModeDemo
}

// Wallet is a per-user, per-mode ledger row. Balances are integer minor
// units and never go negative; every mutation runs under a row lock.
type Wallet struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	UserID       uuid.UUID  `json:"user_id" db:"user_id"`
	Mode         WalletMode `json:"mode" db:"mode"`
	Currency     string     `json:"currency" db:"currency"`
	BalanceMinor int64      `json:"balance_minor" db:"balance_minor"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}
