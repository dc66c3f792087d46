package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	touristapp "github.com/tsafe/backend/internal/application/tourist"
)

// KYCService is the OTP verification flow of the tourist service.
type KYCService interface {
	InitiateKYC(ctx context.Context, userID uuid.UUID, req touristapp.InitiateKYCRequest) (*touristapp.InitiateKYCResponse, error)
	VerifyKYC(ctx context.Context, userID uuid.UUID, req touristapp.VerifyKYCRequest, idempotencyKey string) (*touristapp.VerifyKYCResponse, error)
	KYCStatus(ctx context.Context, userID uuid.UUID) (*touristapp.KYCStatusResponse, error)
	CancelKYC(ctx context.Context, userID uuid.UUID) error
}

// KYCHandler handles identity verification endpoints
type KYCHandler struct {
	BaseHandler
	service KYCService
}

// NewKYCHandler creates a new KYCHandler
func NewKYCHandler(service KYCService) *KYCHandler {
	return &KYCHandler{service: service}
}

// Initiate godoc
// @ID           initiateKYC
// @Summary      Start KYC verification
// @Description  Validates identity details and issues a one-time password valid for 10 minutes
// @Tags         kyc
// @Accept       json
// @Produce      json
// @Param        request body touristapp.InitiateKYCRequest true "Identity details"
// @Success      200 {object} APIResponse[touristapp.InitiateKYCResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      429 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /kyc/initiate [post]
func (h *KYCHandler) Initiate(c *gin.Context) {
	who, ok := h.getCaller(c)
	if !ok {
		return
	}
	var req touristapp.InitiateKYCRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.service.InitiateKYC(c.Request.Context(), who.UserID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Verify godoc
// @ID           verifyKYC
// @Summary      Complete KYC verification
// @Description  Checks the one-time password, seals the verified document and queues a verify_kyc work item
// @Tags         kyc
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Client retry key"
// @Param        request body touristapp.VerifyKYCRequest true "One-time password"
// @Success      200 {object} APIResponse[touristapp.VerifyKYCResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      429 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /kyc/verify [post]
func (h *KYCHandler) Verify(c *gin.Context) {
	who, ok := h.getCaller(c)
	if !ok {
		return
	}
	var req touristapp.VerifyKYCRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.service.VerifyKYC(c.Request.Context(), who.UserID, req, idempotencyKey(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Status godoc
// @ID           getKYCStatus
// @Summary      Get KYC status
// @Tags         kyc
// @Produce      json
// @Success      200 {object} APIResponse[touristapp.KYCStatusResponse]
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /kyc/status [get]
func (h *KYCHandler) Status(c *gin.Context) {
	who, ok := h.getCaller(c)
	if !ok {
		return
	}
	resp, err := h.service.KYCStatus(c.Request.Context(), who.UserID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Cancel godoc
// @ID           cancelKYC
// @Summary      Cancel a pending KYC challenge
// @Tags         kyc
// @Success      204
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /kyc [delete]
func (h *KYCHandler) Cancel(c *gin.Context) {
	who, ok := h.getCaller(c)
	if !ok {
		return
	}
	if err := h.service.CancelKYC(c.Request.Context(), who.UserID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
