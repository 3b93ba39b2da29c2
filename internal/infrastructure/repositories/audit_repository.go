package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/optionpay/payout-service/internal/domain/entities"
)

// AuditLogFilter narrows audit log queries.
type AuditLogFilter struct {
	UserID    *uuid.UUID
	Action    *entities.AuditAction
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// AuditRepository persists the append-only audit trail.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends an audit log entry. Entries are never updated.
func (r *AuditRepository) Create(ctx context.Context, log *entities.AuditLog) error {
	metadata, err := json.Marshal(log.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit_logs (
			id, user_id, action, resource, resource_id, ip_address, user_agent,
			metadata, previous_hash, current_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.ExecContext(ctx, query,
		log.ID, log.UserID, log.Action, log.Resource, log.ResourceID,
		log.IPAddress, log.UserAgent, metadata, log.PreviousHash, log.CurrentHash, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// List returns audit log entries matching the filter, oldest first so
// the hash chain can be verified in insertion order.
func (r *AuditRepository) List(ctx context.Context, filter AuditLogFilter) ([]*entities.AuditLog, error) {
	query := `
		SELECT id, user_id, action, resource, resource_id, ip_address, user_agent,
			metadata, previous_hash, current_hash, created_at
		FROM audit_logs
		WHERE 1=1`
	args := []interface{}{}
	n := 0

	if filter.UserID != nil {
		n++
		query += fmt.Sprintf(" AND user_id = $%d", n)
		args = append(args, *filter.UserID)
	}
	if filter.Action != nil {
		n++
		query += fmt.Sprintf(" AND action = $%d", n)
		args = append(args, *filter.Action)
	}
	if filter.StartDate != nil {
		n++
		query += fmt.Sprintf(" AND created_at >= $%d", n)
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		n++
		query += fmt.Sprintf(" AND created_at <= $%d", n)
		args = append(args, *filter.EndDate)
	}

	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		n++
		query += fmt.Sprintf(" LIMIT $%d", n)
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		n++
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var result []*entities.AuditLog
	for rows.Next() {
		log := &entities.AuditLog{}
		var metadata []byte
		err := rows.Scan(
			&log.ID, &log.UserID, &log.Action, &log.Resource, &log.ResourceID,
			&log.IPAddress, &log.UserAgent, &metadata, &log.PreviousHash, &log.CurrentHash, &log.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &log.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		result = append(result, log)
	}
	return result, rows.Err()
}

// Count returns the number of entries matching the filter.
func (r *AuditRepository) Count(ctx context.Context, filter AuditLogFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM audit_logs WHERE 1=1`
	args := []interface{}{}
	n := 0

	if filter.UserID != nil {
		n++
		query += fmt.Sprintf(" AND user_id = $%d", n)
		args = append(args, *filter.UserID)
	}
	if filter.Action != nil {
		n++
		query += fmt.Sprintf(" AND action = $%d", n)
		args = append(args, *filter.Action)
	}
	if filter.StartDate != nil {
		n++
		query += fmt.Sprintf(" AND created_at >= $%d", n)
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		n++
		query += fmt.Sprintf(" AND created_at <= $%d", n)
		args = append(args, *filter.EndDate)
	}

	var count int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit logs: %w", err)
	}
	return count, nil
}
