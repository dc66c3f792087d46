package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	incidentapp "github.com/tsafe/backend/internal/application/incident"
	touristapp "github.com/tsafe/backend/internal/application/tourist"
	"github.com/tsafe/backend/internal/domain/shared"
	"github.com/tsafe/backend/internal/infrastructure/logger"
	"github.com/tsafe/backend/internal/interfaces/http/dto"
	"github.com/tsafe/backend/internal/interfaces/http/middleware"
)

// RequestIDKey is the context key for request ID
const RequestIDKey = middleware.RequestIDKey

// IdempotencyKeyHeader carries the client's retry key on mutating requests
const IdempotencyKeyHeader = middleware.IdempotencyKeyHeader

// errNoCaller is returned when a handler runs without authenticated claims.
var errNoCaller = errors.New("user ID not found in context")

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	if id := c.GetHeader(middleware.RequestIDHeader); id != "" {
		return id
	}
	return ""
}

// getUserID extracts the caller's user ID from JWT claims
func getUserID(c *gin.Context) (uuid.UUID, error) {
	userIDStr := middleware.GetJWTUserID(c)
	if userIDStr == "" {
		return uuid.Nil, errNoCaller
	}
	return uuid.Parse(userIDStr)
}

// caller is the authenticated identity behind a request
type caller struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// getCaller extracts user ID and admin flag, answering 401 itself on failure
func (h *BaseHandler) getCaller(c *gin.Context) (caller, bool) {
	userID, err := getUserID(c)
	if err != nil {
		h.Fail(c, dto.ErrCodeUnauthorized, "Authentication required")
		return caller{}, false
	}
	return caller{UserID: userID, IsAdmin: middleware.GetJWTIsAdmin(c)}, true
}

func (cl caller) touristActor() touristapp.Actor {
	return touristapp.Actor{UserID: cl.UserID, IsAdmin: cl.IsAdmin}
}

func (cl caller) incidentActor() incidentapp.Actor {
	return incidentapp.Actor{UserID: cl.UserID, IsAdmin: cl.IsAdmin}
}

// idempotencyKey returns the Idempotency-Key header, empty when absent
func idempotencyKey(c *gin.Context) string {
	return c.GetHeader(IdempotencyKeyHeader)
}

// parseUUIDParam parses a path parameter as a UUID, answering 400 itself on failure
func (h *BaseHandler) parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.Fail(c, dto.ErrCodeBadRequest, "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

// queryBool reads an optional boolean query parameter
func queryBool(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.Query(name))
	return err == nil && v
}

// bindJSON binds the request body, answering 400 with field details on failure
func (h *BaseHandler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.handleBindError(c, err)
		return false
	}
	return true
}

// bindQuery binds query parameters, answering 400 with field details on failure
func (h *BaseHandler) bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		h.handleBindError(c, err)
		return false
	}
	return true
}

func (h *BaseHandler) handleBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		middleware.HandleValidationError(c, verrs)
		return
	}
	if middleware.IsBodyTooLarge(err) {
		h.Fail(c, dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size")
		return
	}
	h.Fail(c, dto.ErrCodeBadRequest, "Malformed request body")
}

// Success answers 200 with data.
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta answers 200 with one page of a list.
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Accepted answers 202 for work queued for the ledger.
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Fail answers with the status registered for code.
func (h *BaseHandler) Fail(c *gin.Context, code, message string) {
	code = dto.CanonicalCode(code)
	c.JSON(dto.StatusFor(code), dto.NewErrorResponse(code, message, getRequestID(c)))
}

// HandleError answers err. Domain errors carry their own code, deadline
// overruns become 504, and anything else is logged and hidden behind a 500.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	var domainErr *shared.DomainError
	switch {
	case err == nil:
	case errors.As(err, &domainErr):
		h.Fail(c, domainErr.Code, domainErr.Message)
	case errors.Is(err, context.DeadlineExceeded):
		h.Fail(c, dto.ErrCodeTimeout, "Request timed out")
	default:
		logger.GetGinLogger(c).Error("Unhandled error", zap.Error(err))
		h.Fail(c, dto.ErrCodeInternal, "An unexpected error occurred")
	}
}
