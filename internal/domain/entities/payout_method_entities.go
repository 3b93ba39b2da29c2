package entities

import (
	"time"

	"github.com/google/uuid"

	"github.com/optionpay/payout-service/internal/domain/payout"
)

// PayoutMethod binds a user to a payout rail and recipient identifier.
// Card methods additionally carry the provider-side external account
// reference created during onboarding. Read-only to this subsystem.
type PayoutMethod struct {
	ID                 uuid.UUID     `json:"id" db:"id"`
	UserID             uuid.UUID     `json:"user_id" db:"user_id"`
	Method             payout.Method `json:"method" db:"method"`
	Recipient          string        `json:"recipient" db:"recipient"`
	ExternalAccountRef *string       `json:"external_account_ref,omitempty" db:"external_account_ref"`
	Label              string        `json:"label" db:"label"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
}
