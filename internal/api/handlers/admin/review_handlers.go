// Package admin exposes the manual review endpoints.
package admin

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/optionpay/payout-service/internal/api/handlers/common"
	"github.com/optionpay/payout-service/internal/domain/entities"
	"github.com/optionpay/payout-service/internal/domain/services/audit"
	"github.com/optionpay/payout-service/pkg/logger"
)

// ReviewServiceInterface defines the interface for review operations
type ReviewServiceInterface interface {
	ListPendingReview(ctx context.Context, limit, offset int) ([]*entities.WithdrawalRequest, error)
	Decide(ctx context.Context, requestID uuid.UUID, decision *entities.AdminDecision) (*entities.WithdrawalOutcome, error)
}

// DecisionAuditor records who decided what.
type DecisionAuditor interface {
	LogAdminDecision(ctx context.Context, adminID, requestID uuid.UUID, approved bool, notes string) error
}

// AuditReader surfaces the compliance trail to the admin console.
type AuditReader interface {
	GetUserAuditLogs(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.AuditLog, int64, error)
	VerifyIntegrity(ctx context.Context, startTime, endTime time.Time) (*audit.IntegrityVerificationResult, error)
}

// Handlers handles admin review requests.
type Handlers struct {
	service ReviewServiceInterface
	auditor DecisionAuditor
	audits  AuditReader
	logger  *logger.Logger
}

// NewHandlers creates a new admin review handlers instance.
func NewHandlers(service ReviewServiceInterface, auditor DecisionAuditor, audits AuditReader, log *logger.Logger) *Handlers {
	return &Handlers{service: service, auditor: auditor, audits: audits, logger: log}
}

// ListPending handles GET /api/v1/admin/withdrawals/pending
func (h *Handlers) ListPending(c *gin.Context) {
	limit := common.ParseIntParam(c, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := common.ParseIntParam(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	requests, err := h.service.ListPendingReview(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list pending withdrawals", "error", err)
		common.RespondInternalError(c, "Failed to retrieve pending withdrawals")
		return
	}
	if requests == nil {
		requests = []*entities.WithdrawalRequest{}
	}
	common.RespondSuccess(c, gin.H{
		"withdrawals": requests,
		"limit":       limit,
		"offset":      offset,
	})
}

// Decide handles POST /api/v1/admin/withdrawals/:withdrawalId/decision
func (h *Handlers) Decide(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "withdrawalId")
	if !ok {
		return
	}

	var decision entities.AdminDecision
	if err := c.ShouldBindJSON(&decision); err != nil {
		common.RespondBadRequest(c, "Invalid request format")
		return
	}
	if !decision.Approve && decision.Notes == "" {
		common.RespondBadRequest(c, "Rejection requires notes")
		return
	}

	adminID, err := common.GetUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "User not authenticated")
		return
	}

	outcome, err := h.service.Decide(c.Request.Context(), id, &decision)
	if err != nil {
		h.logger.Warn("Admin decision rejected",
			"request_id", id.String(), "admin_id", adminID.String(), "error", err)
		common.RespondAppError(c, err)
		return
	}

	if h.auditor != nil {
		_ = h.auditor.LogAdminDecision(c.Request.Context(), adminID, id, decision.Approve, decision.Notes)
	}

	h.logger.Info("Admin decision applied",
		"request_id", id.String(), "admin_id", adminID.String(),
		"approved", decision.Approve, "outcome", string(outcome.Status))
	common.RespondSuccess(c, outcome)
}

// UserAuditLogs handles GET /api/v1/admin/users/:userId/audit-logs
func (h *Handlers) UserAuditLogs(c *gin.Context) {
	userID, ok := common.ParseUUIDParam(c, "userId")
	if !ok {
		return
	}

	limit := common.ParseIntParam(c, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := common.ParseIntParam(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	logs, total, err := h.audits.GetUserAuditLogs(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list audit logs", "user_id", userID.String(), "error", err)
		common.RespondInternalError(c, "Failed to retrieve audit logs")
		return
	}
	if logs == nil {
		logs = []*entities.AuditLog{}
	}
	common.RespondSuccess(c, gin.H{
		"audit_logs": logs,
		"total":      total,
		"limit":      limit,
		"offset":     offset,
	})
}

// AuditIntegrity handles GET /api/v1/admin/audit/integrity
func (h *Handlers) AuditIntegrity(c *gin.Context) {
	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)
	if v := c.Query("start"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			common.RespondBadRequest(c, "Invalid start time, expected RFC3339")
			return
		}
		start = parsed
	}
	if v := c.Query("end"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			common.RespondBadRequest(c, "Invalid end time, expected RFC3339")
			return
		}
		end = parsed
	}

	result, err := h.audits.VerifyIntegrity(c.Request.Context(), start, end)
	if err != nil {
		h.logger.Error("Audit integrity verification failed", "error", err)
		common.RespondInternalError(c, "Failed to verify audit integrity")
		return
	}
	common.RespondSuccess(c, result)
}
