// Package common holds shared HTTP helpers for the API handlers.
package common

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/optionpay/payout-service/internal/domain/entities"
	apperrors "github.com/optionpay/payout-service/pkg/errors"
)

// GetUserID extracts and validates the authenticated user id from context.
func GetUserID(c *gin.Context) (uuid.UUID, error) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, fmt.Errorf("user ID not found in context")
	}

	switch v := userIDVal.(type) {
	case uuid.UUID:
		return v, nil
	case string:
		return uuid.Parse(v)
	default:
		return uuid.Nil, fmt.Errorf("invalid user ID type in context")
	}
}

// RespondError sends a standardized error response.
func RespondError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.JSON(status, entities.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// RespondUnauthorized sends an unauthorized error.
func RespondUnauthorized(c *gin.Context, message string) {
	RespondError(c, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

// RespondForbidden sends a forbidden error.
func RespondForbidden(c *gin.Context, message string) {
	RespondError(c, http.StatusForbidden, "FORBIDDEN", message, nil)
}

// RespondBadRequest sends a bad request error.
func RespondBadRequest(c *gin.Context, message string, details ...map[string]interface{}) {
	var det map[string]interface{}
	if len(details) > 0 {
		det = details[0]
	}
	RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", message, det)
}

// RespondNotFound sends a not found error.
func RespondNotFound(c *gin.Context, message string) {
	RespondError(c, http.StatusNotFound, "NOT_FOUND", message, nil)
}

// RespondConflict sends a conflict error.
func RespondConflict(c *gin.Context, message string) {
	RespondError(c, http.StatusConflict, "CONFLICT", message, nil)
}

// RespondInternalError sends an internal server error.
func RespondInternalError(c *gin.Context, message string) {
	RespondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, nil)
}

// RespondSuccess sends a success response with data.
func RespondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// RespondCreated sends a created response with data.
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// RespondAppError maps a service-layer error onto the HTTP surface.
func RespondAppError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		RespondError(c, http.StatusBadRequest, code, err.Error(), nil)
	case apperrors.KindInsufficientFunds:
		RespondError(c, http.StatusUnprocessableEntity, code, err.Error(), nil)
	case apperrors.KindNotFound:
		RespondError(c, http.StatusNotFound, code, err.Error(), nil)
	case apperrors.KindUnauthorized:
		RespondUnauthorized(c, err.Error())
	case apperrors.KindForbidden:
		RespondForbidden(c, err.Error())
	case apperrors.KindConflict:
		RespondError(c, http.StatusConflict, code, err.Error(), nil)
	case apperrors.KindConfiguration:
		RespondError(c, http.StatusServiceUnavailable, code, err.Error(), nil)
	default:
		RespondInternalError(c, "Something went wrong")
	}
}

// ParseUUIDParam parses a path parameter as a UUID.
func ParseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		RespondBadRequest(c, fmt.Sprintf("Invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

// ParseIntParam parses a query parameter to int with a default.
func ParseIntParam(c *gin.Context, param string, defaultVal int) int {
	if val := c.Query(param); val != "" {
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err == nil {
			return i
		}
	}
	return defaultVal
}
