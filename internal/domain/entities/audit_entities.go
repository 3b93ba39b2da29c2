package entities

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction identifies the kind of event an audit log records.
type AuditAction string

const (
	AuditActionWithdrawal       AuditAction = "withdrawal"
	AuditActionStatusTransition AuditAction = "status_transition"
	AuditActionAdminDecision    AuditAction = "admin_decision"
	AuditActionWebhook          AuditAction = "webhook"
)

// AuditLog is an append-only compliance record. Entries form a hash
// chain: CurrentHash covers the entry's own fields plus the previous
// entry's hash, so any tampering breaks the chain.
type AuditLog struct {
	ID           uuid.UUID              `json:"id" db:"id"`
	UserID       uuid.UUID              `json:"user_id" db:"user_id"`
	Action       AuditAction            `json:"action" db:"action"`
	Resource     string                 `json:"resource" db:"resource"`
	ResourceID   *uuid.UUID             `json:"resource_id,omitempty" db:"resource_id"`
	IPAddress    string                 `json:"ip_address" db:"ip_address"`
	UserAgent    string                 `json:"user_agent" db:"user_agent"`
	Metadata     map[string]interface{} `json:"metadata" db:"metadata"`
	PreviousHash string                 `json:"previous_hash" db:"previous_hash"`
	CurrentHash  string                 `json:"current_hash" db:"current_hash"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
}

// CalculateHash computes the integrity hash over the entry's immutable
// fields and the previous entry's hash.
func (a *AuditLog) CalculateHash() string {
	metadata, _ := json.Marshal(a.Metadata)
	payload := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d",
		a.ID, a.UserID, a.Action, a.Resource, metadata, a.PreviousHash, a.CreatedAt.UnixNano())
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// SetIntegrityFields links the entry into the hash chain.
func (a *AuditLog) SetIntegrityFields(previousHash string) {
	a.PreviousHash = previousHash
	a.CurrentHash = a.CalculateHash()
}
