package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/optionpay/payout-service/internal/domain/entities"
	"github.com/optionpay/payout-service/internal/infrastructure/repositories"
)

type contextKey string

const (
	ContextKeyIPAddress contextKey = "audit_ip_address"
	ContextKeyUserAgent contextKey = "audit_user_agent"
)

// AuditStore interface for audit log persistence
type AuditStore interface {
	Create(ctx context.Context, log *entities.AuditLog) error
	List(ctx context.Context, filter repositories.AuditLogFilter) ([]*entities.AuditLog, error)
	Count(ctx context.Context, filter repositories.AuditLogFilter) (int64, error)
}

// Service writes the WORM audit trail for withdrawal processing.
type Service struct {
	repo          AuditStore
	logger        *zap.Logger
	wormEnabled   bool
	lastHash      string
	lastHashMutex sync.Mutex
}

// NewService creates a new audit service with hash chaining enabled.
func NewService(repo AuditStore, logger *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		logger:      logger,
		wormEnabled: true,
	}
}

// EnableWORM toggles hash chaining, for tests.
func (s *Service) EnableWORM(enabled bool) {
	s.wormEnabled = enabled
}

func (s *Service) getLastHash() string {
	s.lastHashMutex.Lock()
	defer s.lastHashMutex.Unlock()
	return s.lastHash
}

func (s *Service) setLastHash(hash string) {
	s.lastHashMutex.Lock()
	defer s.lastHashMutex.Unlock()
	s.lastHash = hash
}

// Log writes a single audit entry, linked into the hash chain.
func (s *Service) Log(ctx context.Context, userID uuid.UUID, action entities.AuditAction, resource string, resourceID *uuid.UUID, metadata map[string]interface{}) error {
	log := &entities.AuditLog{
		ID:         uuid.New(),
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IPAddress:  getStringFromContext(ctx, ContextKeyIPAddress),
		UserAgent:  getStringFromContext(ctx, ContextKeyUserAgent),
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}

	if s.wormEnabled {
		log.SetIntegrityFields(s.getLastHash())
	}

	if err := s.repo.Create(ctx, log); err != nil {
		s.logger.Error("failed to create audit log",
			zap.Error(err),
			zap.String("action", string(action)),
			zap.String("user_id", userID.String()),
		)
		return err
	}

	if s.wormEnabled {
		s.setLastHash(log.CurrentHash)
	}
	return nil
}

// LogTransition records a withdrawal status transition.
func (s *Service) LogTransition(ctx context.Context, requestID, userID uuid.UUID, from, to entities.WithdrawalStatus, detail string) error {
	return s.Log(ctx, userID, entities.AuditActionStatusTransition, "withdrawal", &requestID, map[string]interface{}{
		"from_status": string(from),
		"to_status":   string(to),
		"detail":      detail,
	})
}

// LogAdminDecision records an approve/reject decision on a parked request.
func (s *Service) LogAdminDecision(ctx context.Context, adminID, requestID uuid.UUID, approved bool, notes string) error {
	return s.Log(ctx, adminID, entities.AuditActionAdminDecision, "withdrawal", &requestID, map[string]interface{}{
		"approved": approved,
		"notes":    notes,
	})
}

// LogWebhook records an inbound provider callback and its effect.
func (s *Service) LogWebhook(ctx context.Context, requestID uuid.UUID, provider, eventType string, outcome entities.WebhookOutcome) error {
	return s.Log(ctx, uuid.Nil, entities.AuditActionWebhook, "withdrawal", &requestID, map[string]interface{}{
		"provider":   provider,
		"event_type": eventType,
		"outcome":    string(outcome),
	})
}

// GetUserAuditLogs lists a user's audit trail with the total count.
func (s *Service) GetUserAuditLogs(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.AuditLog, int64, error) {
	filter := repositories.AuditLogFilter{
		UserID: &userID,
		Limit:  limit,
		Offset: offset,
	}

	logs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return logs, count, nil
}

// IntegrityVerificationResult summarizes a hash chain verification run.
type IntegrityVerificationResult struct {
	PeriodStart     time.Time
	PeriodEnd       time.Time
	TotalLogs       int64
	VerifiedAt      time.Time
	IntegrityStatus string
	BrokenLinks     []string
	TamperedLogs    []string
}

// VerifyIntegrity walks the hash chain over the given period and
// reports tampered entries and broken links.
func (s *Service) VerifyIntegrity(ctx context.Context, startTime, endTime time.Time) (*IntegrityVerificationResult, error) {
	logs, err := s.repo.List(ctx, repositories.AuditLogFilter{
		StartDate: &startTime,
		EndDate:   &endTime,
		Limit:     10000,
	})
	if err != nil {
		return nil, err
	}

	result := &IntegrityVerificationResult{
		PeriodStart:  startTime,
		PeriodEnd:    endTime,
		TotalLogs:    int64(len(logs)),
		VerifiedAt:   time.Now().UTC(),
		BrokenLinks:  []string{},
		TamperedLogs: []string{},
	}

	var previousHash string
	for i, log := range logs {
		if log.CurrentHash != log.CalculateHash() {
			result.TamperedLogs = append(result.TamperedLogs, log.ID.String())
		}
		if i > 0 && log.PreviousHash != previousHash {
			result.BrokenLinks = append(result.BrokenLinks, log.ID.String())
		}
		previousHash = log.CurrentHash
	}

	switch {
	case len(result.TamperedLogs) > 0:
		result.IntegrityStatus = "compromised"
	case len(result.BrokenLinks) > 0:
		result.IntegrityStatus = "chain_broken"
	default:
		result.IntegrityStatus = "verified"
	}

	s.logger.Info("Integrity verification completed",
		zap.String("status", result.IntegrityStatus),
		zap.Int64("total_logs", result.TotalLogs),
		zap.Int("tampered_count", len(result.TamperedLogs)),
		zap.Int("broken_links", len(result.BrokenLinks)),
	)
	return result, nil
}

// WithAuditContext stamps request metadata used by Log.
func WithAuditContext(ctx context.Context, ipAddress, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyIPAddress, ipAddress)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

func getStringFromContext(ctx context.Context, key contextKey) string {
	if val, ok := ctx.Value(key).(string); ok {
		return val
	}
	return ""
}
