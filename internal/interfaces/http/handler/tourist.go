package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	touristapp "github.com/tsafe/backend/internal/application/tourist"
	"github.com/tsafe/backend/internal/domain/shared"
	"github.com/tsafe/backend/internal/interfaces/http/dto"
)

// TouristService is the slice of the tourist application service the HTTP
// layer drives.
type TouristService interface {
	Register(ctx context.Context, userID uuid.UUID, req touristapp.RegisterRequest, idempotencyKey string) (*touristapp.RegisterResponse, error)
	UpdateProfile(ctx context.Context, userID, touristID uuid.UUID, req touristapp.UpdateProfileRequest, idempotencyKey string) (*touristapp.WorkItemResponse, error)
	RaisePanic(ctx context.Context, userID, touristID uuid.UUID, req touristapp.RaisePanicRequest, idempotencyKey string) (*touristapp.PanicResponse, error)
	PushScore(ctx context.Context, actor touristapp.Actor, touristID uuid.UUID, req touristapp.PushScoreRequest, idempotencyKey string) (*touristapp.ScorePushResponse, error)
	RetryFailed(ctx context.Context, actor touristapp.Actor, touristID, itemID uuid.UUID) (*touristapp.WorkItemResponse, error)
	Get(ctx context.Context, actor touristapp.Actor, id uuid.UUID, decrypt bool) (*touristapp.TouristResponse, error)
	GetMine(ctx context.Context, userID uuid.UUID, decrypt bool) (*touristapp.TouristResponse, error)
	Dashboard(ctx context.Context, userID uuid.UUID) (*touristapp.DashboardResponse, error)
	List(ctx context.Context, actor touristapp.Actor, filter shared.Filter) (*touristapp.ListResponse, error)
}

// TouristHandler handles tourist profile endpoints
type TouristHandler struct {
	BaseHandler
	service TouristService
}

// NewTouristHandler creates a new TouristHandler
func NewTouristHandler(service TouristService) *TouristHandler {
	return &TouristHandler{service: service}
}

// Register godoc
// @ID           registerTourist
// @Summary      Register a tourist profile
// @Description  Creates the caller's tourist profile and queues its ledger registration
// @Tags         tourists
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Client retry key"
// @Param        request body touristapp.RegisterRequest true "Registration"
// @Success      201 {object} APIResponse[touristapp.RegisterResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /tourists [post]
func (h *TouristHandler) Register(c *gin.Context) {
	who, ok := h.getCaller(c)
	if !ok {
		return
	}
	var req touristapp.RegisterRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.service.Register(c.Request.Context(), who.UserID, req, idempotencyKey(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// GetMine godoc
// @ID           getMyTourist
// @Summary      Get the caller's profile
// @Description  Returns the caller's tourist profile. Pass decrypt=true to open sealed KYC and contact data.
// @Tags         tourists
// @Produce      json
// @Param        decrypt query bool false "Open sealed payloads"
// @Success      200 {object} APIResponse[touristapp.TouristResponse]
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /tourists/me [get]
func (h *TouristHandler) GetMine(c *gin.Context) {
	who, ok := h.getCaller(c)
	if !ok {
		return
	}
	resp, err := h.service.GetMine(c.Request.Context(), who.UserID, queryBool(c, "decrypt"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Dashboard godoc
// @ID           getTouristDashboard
// @Summary      Get the caller's dashboard
// @Description  Profile summary, ledger status and work item counts
// @Tags         tourists
// @Produce      json
// @Success      200 {object} APIResponse[touristapp.DashboardResponse]
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /tourists/me/dashboard [get]
func (h *TouristHandler) Dashboard(c *gin.Context) {
	who, ok := h.getCaller(c)
	if !ok {
		return
	}
	resp, err := h.service.Dashboard(c.Request.Context(), who.UserID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// List godoc
// @ID           listTourists
// @Summary      List tourists
// @Description  Paginated tourist listing with status summary (admin only)
// @Tags         tourists
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Param        order_by query string false "Order by field"
// @Param        order_dir query string false "Order direction" Enums(asc, desc)
// @Param        search query string false "Search by name or tourist code"
// @Success      200 {object} APIResponse[touristapp.ListResponse]
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /tourists [get]
func (h *TouristHandler) List(c *gin.Context) {
	who, ok := h.getCaller(c)
	if !ok {
		return
	}
	query := dto.NewListQuery()
	if !h.bindQuery(c, &query) {
		return
	}

	resp, err := h.service.List(c.Request.Context(), who.touristActor(), query.Filter())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, resp, resp.Total, resp.Page, resp.PageSize)
}

// Get godoc
// @ID           getTourist
// @Summary      Get a tourist by ID
// @Description  Owner or admin. Pass decrypt=true to open sealed KYC and contact data.
// @Tags         tourists
// @Produce      json
// @Param        id path string true "Tourist ID" format(uuid)
// @Param        decrypt query bool false "Open sealed payloads"
// @Success      200 {object} APIResponse[touristapp.TouristResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /tourists/{id} [get]
func (h *TouristHandler) Get(c *gin.Context) {
	who, ok := h.getCaller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	resp, err := h.service.Get(c.Request.Context(), who.touristActor(), id, queryBool(c, "decrypt"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// UpdateProfile godoc
// @ID           updateTourist
// @Summary      Update emergency contacts or tracking consent
// @Description  Owner only. Queues an update work item.
// @Tags         tourists
// @Accept       json
// @Produce      json
// @Param        id path string true "Tourist ID" format(uuid)
// @Param        Idempotency-Key header string false "Client retry key"
// @Param        request body touristapp.UpdateProfileRequest true "Profile changes"
// @Success      202 {object} APIResponse[touristapp.WorkItemResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /tourists/{id} [put]
func (h *TouristHandler) UpdateProfile(c *gin.Context) {
	who, ok := h.getCaller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req touristapp.UpdateProfileRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.service.UpdateProfile(c.Request.Context(), who.UserID, id, req, idempotencyKey(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, resp)
}

// RaisePanic godoc
// @ID           raiseTouristPanic
// @Summary      Raise an SOS
// @Description  Owner only. Records the panic and queues it for the ledger.
// @Tags         tourists
// @Accept       json
// @Produce      json
// @Param        id path string true "Tourist ID" format(uuid)
// @Param        Idempotency-Key header string false "Client retry key"
// @Param        request body touristapp.RaisePanicRequest true "Panic details"
// @Success      201 {object} APIResponse[touristapp.PanicResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /tourists/{id}/panic [post]
func (h *TouristHandler) RaisePanic(c *gin.Context) {
	who, ok := h.getCaller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req touristapp.RaisePanicRequest
	if !h.bindJSON(c, &req) {
		return
	}
	req.UserAgent = c.Request.UserAgent()

	resp, err := h.service.RaisePanic(c.Request.Context(), who.UserID, id, req, idempotencyKey(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// PushScore godoc
// @ID           pushTouristScore
// @Summary      Push a safety score
// @Description  Admin only. Seals the score and queues it for the ledger.
// @Tags         tourists
// @Accept       json
// @Produce      json
// @Param        id path string true "Tourist ID" format(uuid)
// @Param        Idempotency-Key header string false "Client retry key"
// @Param        request body touristapp.PushScoreRequest true "Score"
// @Success      202 {object} APIResponse[touristapp.ScorePushResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /tourists/{id}/score [post]
func (h *TouristHandler) PushScore(c *gin.Context) {
	who, ok := h.getCaller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req touristapp.PushScoreRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.service.PushScore(c.Request.Context(), who.touristActor(), id, req, idempotencyKey(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, resp)
}

// RetryFailed godoc
// @ID           retryTouristWorkItem
// @Summary      Retry a failed work item
// @Description  Admin only. Appends a fresh item with the failed item's action and payload.
// @Tags         tourists
// @Produce      json
// @Param        id path string true "Tourist ID" format(uuid)
// @Param        itemId path string true "Work item ID" format(uuid)
// @Success      202 {object} APIResponse[touristapp.WorkItemResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /tourists/{id}/work-items/{itemId}/retry [post]
func (h *TouristHandler) RetryFailed(c *gin.Context) {
	who, ok := h.getCaller(c)
	if !ok {
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := h.parseUUIDParam(c, "itemId")
	if !ok {
		return
	}

	resp, err := h.service.RetryFailed(c.Request.Context(), who.touristActor(), id, itemID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, resp)
}
