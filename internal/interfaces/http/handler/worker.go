package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/tsafe/backend/internal/infrastructure/onchain"
)

// WorkerControl exposes the reconciliation worker to operators.
type WorkerControl interface {
	WorkerStatus() (onchain.Status, error)
	StartWorker(ctx context.Context) (onchain.Status, error)
	StopWorker(ctx context.Context) (onchain.Status, error)
	RunWorkerPass(ctx context.Context) (onchain.PassResult, error)
	Diagnose(ctx context.Context) (onchain.Diagnostics, error)
}

// WorkerHandler handles the admin endpoints for the onchain worker
type WorkerHandler struct {
	BaseHandler
	control WorkerControl
}

// NewWorkerHandler creates a new WorkerHandler
func NewWorkerHandler(control WorkerControl) *WorkerHandler {
	return &WorkerHandler{control: control}
}

// Status godoc
// @ID           getWorkerStatus
// @Summary      Get worker status
// @Description  Running flag, in-flight pass, operator and contract addresses, last pass summary
// @Tags         admin
// @Produce      json
// @Success      200 {object} APIResponse[onchain.Status]
// @Failure      403 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/worker/status [get]
func (h *WorkerHandler) Status(c *gin.Context) {
	status, err := h.control.WorkerStatus()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// Start godoc
// @ID           startWorker
// @Summary      Start the worker
// @Description  Idempotent. Starting a running worker returns its current status.
// @Tags         admin
// @Produce      json
// @Success      200 {object} APIResponse[onchain.Status]
// @Failure      403 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/worker/start [post]
func (h *WorkerHandler) Start(c *gin.Context) {
	status, err := h.control.StartWorker(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// Stop godoc
// @ID           stopWorker
// @Summary      Stop the worker
// @Description  Waits for the in-flight pass to finish.
// @Tags         admin
// @Produce      json
// @Success      200 {object} APIResponse[onchain.Status]
// @Failure      403 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Failure      504 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/worker/stop [post]
func (h *WorkerHandler) Stop(c *gin.Context) {
	status, err := h.control.StopWorker(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// RunPass godoc
// @ID           runWorkerPass
// @Summary      Run one reconciliation pass
// @Description  Runs a pass now. Reports skipped when another pass is in flight.
// @Tags         admin
// @Produce      json
// @Success      200 {object} APIResponse[onchain.PassResult]
// @Failure      403 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/worker/pass [post]
func (h *WorkerHandler) RunPass(c *gin.Context) {
	result, err := h.control.RunWorkerPass(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Diagnostics godoc
// @ID           getWorkerDiagnostics
// @Summary      Run ledger diagnostics
// @Description  Network identity, operator balance and role, fee headroom. Problems are reported as warnings.
// @Tags         admin
// @Produce      json
// @Success      200 {object} APIResponse[onchain.Diagnostics]
// @Failure      403 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/worker/diagnostics [get]
func (h *WorkerHandler) Diagnostics(c *gin.Context) {
	diag, err := h.control.Diagnose(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, diag)
}
