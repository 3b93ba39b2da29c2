// Package withdrawal exposes the user-facing withdrawal endpoints.
package withdrawal

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/optionpay/payout-service/internal/api/handlers/common"
	"github.com/optionpay/payout-service/internal/domain/entities"
	"github.com/optionpay/payout-service/pkg/logger"
)

// WithdrawalServiceInterface defines the interface for withdrawal operations
type WithdrawalServiceInterface interface {
	SubmitWithdrawal(ctx context.Context, req *entities.SubmitWithdrawalRequest) (*entities.WithdrawalOutcome, error)
	GetWithdrawal(ctx context.Context, id, userID uuid.UUID) (*entities.WithdrawalRequest, error)
	GetUserWithdrawals(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.WithdrawalRequest, error)
}

// MethodLister lists a user's saved payout methods.
type MethodLister interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*entities.PayoutMethod, error)
}

// WalletReader reads wallet balances.
type WalletReader interface {
	GetByUserAndMode(ctx context.Context, userID uuid.UUID, mode entities.WalletMode) (*entities.Wallet, error)
}

// Handlers handles withdrawal-related requests.
type Handlers struct {
	service   WithdrawalServiceInterface
	methods   MethodLister
	wallets   WalletReader
	validator *validator.Validate
	logger    *logger.Logger
}

// NewHandlers creates a new withdrawal handlers instance.
func NewHandlers(service WithdrawalServiceInterface, methods MethodLister, wallets WalletReader, log *logger.Logger) *Handlers {
	return &Handlers{
		service:   service,
		methods:   methods,
		wallets:   wallets,
		validator: validator.New(),
		logger:    log,
	}
}

// Submit handles POST /api/v1/withdrawals
func (h *Handlers) Submit(c *gin.Context) {
	var req entities.SubmitWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "Invalid request format")
		return
	}

	userID, err := common.GetUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "User not authenticated")
		return
	}
	req.UserID = userID

	if req.AmountMinor <= 0 {
		common.RespondBadRequest(c, "Amount must be positive")
		return
	}

	outcome, err := h.service.SubmitWithdrawal(c.Request.Context(), &req)
	if err != nil {
		h.logger.Warn("Withdrawal submission rejected",
			"user_id", userID.String(), "amount_minor", req.AmountMinor, "error", err)
		common.RespondAppError(c, err)
		return
	}

	common.RespondCreated(c, outcome)
}

// Get handles GET /api/v1/withdrawals/:withdrawalId
func (h *Handlers) Get(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "withdrawalId")
	if !ok {
		return
	}
	userID, err := common.GetUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "User not authenticated")
		return
	}

	request, err := h.service.GetWithdrawal(c.Request.Context(), id, userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	common.RespondSuccess(c, request)
}

// List handles GET /api/v1/withdrawals
func (h *Handlers) List(c *gin.Context) {
	userID, err := common.GetUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "User not authenticated")
		return
	}

	limit := common.ParseIntParam(c, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := common.ParseIntParam(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	requests, err := h.service.GetUserWithdrawals(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list withdrawals", "user_id", userID.String(), "error", err)
		common.RespondInternalError(c, "Failed to retrieve withdrawals")
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

// GetWallet handles GET /api/v1/wallet
func (h *Handlers) GetWallet(c *gin.Context) {
	userID, err := common.GetUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "User not authenticated")
		return
	}

	mode := entities.WalletMode(c.DefaultQuery("mode", string(entities.WalletModeReal)))
	if !mode.IsValid() {
		common.RespondBadRequest(c, "Invalid wallet mode")
		return
	}

	wallet, err := h.wallets.GetByUserAndMode(c.Request.Context(), userID, mode)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	common.RespondSuccess(c, gin.H{
		"wallet_id":     wallet.ID,
		"mode":          wallet.Mode,
		"currency":      wallet.Currency,
		"balance_minor": wallet.BalanceMinor,
	})
}

// ListPayoutMethods handles GET /api/v1/payout-methods
func (h *Handlers) ListPayoutMethods(c *gin.Context) {
	userID, err := common.GetUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "User not authenticated")
		return
	}

	methods, err := h.methods.ListForUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list payout methods", "user_id", userID.String(), "error", err)
		common.RespondInternalError(c, "Failed to retrieve payout methods")
		return
	}
	if methods == nil {
		methods = []*entities.PayoutMethod{}
	}
	common.RespondSuccess(c, gin.H{"payout_methods": methods})
}
