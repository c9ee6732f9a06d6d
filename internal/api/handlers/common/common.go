package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/antidetect/dashboard_service/internal/domain/repositories"
	"github.com/antidetect/dashboard_service/internal/domain/services/audit"
	"github.com/antidetect/dashboard_service/internal/infrastructure/adapters/accountapi"
	"github.com/antidetect/dashboard_service/internal/pkg/requestctx"
	"github.com/antidetect/dashboard_service/pkg/validation"
)

// Gin context keys set by the authentication and request id middleware
const (
	ContextKeyUserID    = "user_id"
	ContextKeySession   = "session"
	ContextKeyRequestID = "request_id"
)

// SessionCookie holds the browser session id
const SessionCookie = "dashboard_session"

// GetUserID extracts the signed-in user id from context
func GetUserID(c *gin.Context) (string, error) {
	userID := c.GetString(ContextKeyUserID)
	if userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// GetSession returns the authenticated session
func GetSession(c *gin.Context) (*repositories.StoredSession, bool) {
	v, ok := c.Get(ContextKeySession)
	if !ok {
		return nil, false
	}
	session, ok := v.(*repositories.StoredSession)
	return session, ok
}

// RequireSession returns the session or sends unauthorized
func RequireSession(c *gin.Context) *repositories.StoredSession {
	session, ok := GetSession(c)
	if !ok {
		RespondUnauthorized(c, "User not authenticated")
		return nil
	}
	return session
}

// GetRequestID extracts request ID from context
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// RequestContext builds the context handed to services: it carries the
// upstream token, user, request id and client details for the audit trail.
func RequestContext(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if session, ok := GetSession(c); ok {
		ctx = requestctx.WithAccessToken(ctx, session.Tokens.AccessToken)
		ctx = requestctx.WithUserID(ctx, session.User.ID)
	}
	if id := GetRequestID(c); id != "" {
		ctx = requestctx.WithRequestID(ctx, id)
	}
	return audit.WithAuditContext(ctx, c.ClientIP(), c.Request.UserAgent())
}

// RespondError sends a standardized error response
func RespondError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.JSON(status, entities.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// RespondUnauthorized sends an unauthorized error
func RespondUnauthorized(c *gin.Context, message string) {
	RespondError(c, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

// RespondBadRequest sends a bad request error
func RespondBadRequest(c *gin.Context, message string, details ...map[string]interface{}) {
	var det map[string]interface{}
	if len(details) > 0 {
		det = details[0]
	}
	RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", message, det)
}

// RespondValidationError reports per-field problems
func RespondValidationError(c *gin.Context, errs validation.FieldErrors) {
	details := make(map[string]interface{}, len(errs))
	for field, msg := range errs {
		details[field] = msg
	}
	RespondError(c, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "Please correct the highlighted fields", details)
}

// RespondInternalError sends an internal server error
func RespondInternalError(c *gin.Context, message string) {
	RespondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, nil)
}

// RespondNotFound sends a not found error
func RespondNotFound(c *gin.Context, message string) {
	RespondError(c, http.StatusNotFound, "NOT_FOUND", message, nil)
}

// RespondConflict sends a conflict error
func RespondConflict(c *gin.Context, message string) {
	RespondError(c, http.StatusConflict, "CONFLICT", message, nil)
}

// RespondSuccess sends a success response with data
func RespondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// RespondAccepted acknowledges work that continues in the background
func RespondAccepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, data)
}

// RespondNoContent sends a no content response
func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BindAndValidate binds JSON to a struct
// Returns true if successful, false if error was sent
func BindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		RespondBadRequest(c, "Invalid request format", map[string]interface{}{"error": err.Error()})
		return false
	}
	return true
}

// PaginationParams holds pagination parameters
type PaginationParams struct {
	Limit  int
	Offset int
}

// ExtractPagination extracts pagination parameters from query
func ExtractPagination(c *gin.Context, defaultLimit, maxLimit int) PaginationParams {
	var req validation.PaginationRequest
	_ = c.ShouldBindQuery(&req)

	limit := req.Limit
	if limit > maxLimit {
		limit = maxLimit
	}
	if limit < 1 {
		limit = defaultLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	return PaginationParams{Limit: limit, Offset: offset}
}

// HandleServiceError maps errors shared by every handler: form validation,
// upstream API failures and timeouts. Returns true if a response was sent.
func HandleServiceError(c *gin.Context, err error, resourceName string) bool {
	if err == nil {
		return false
	}

	var fieldErrs validation.FieldErrors
	if errors.As(err, &fieldErrs) {
		RespondValidationError(c, fieldErrs)
		return true
	}

	if errors.Is(err, accountapi.ErrUnavailable) {
		RespondError(c, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Account service is temporarily unavailable", nil)
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		RespondError(c, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "Account service did not respond in time", nil)
		return true
	}

	if apiErr, ok := accountapi.AsAPIError(err); ok {
		switch {
		case apiErr.IsUnauthorized():
			RespondUnauthorized(c, "Your session has expired, please sign in again")
		case apiErr.IsNotFound():
			RespondNotFound(c, fmt.Sprintf("%s not found", resourceName))
		case apiErr.IsRateLimited():
			RespondError(c, http.StatusTooManyRequests, "RATE_LIMITED", apiErr.Message, nil)
		case apiErr.IsClientError():
			RespondError(c, http.StatusBadRequest, "UPSTREAM_REJECTED", apiErr.Message, apiErr.Details)
		default:
			RespondError(c, http.StatusBadGateway, "UPSTREAM_ERROR", "Account service returned an error", nil)
		}
		return true
	}

	RespondInternalError(c, "An unexpected error occurred")
	return true
}
