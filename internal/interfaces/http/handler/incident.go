package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	incidentapp "github.com/tsafe/backend/internal/application/incident"
	"github.com/tsafe/backend/internal/domain/shared"
	"github.com/tsafe/backend/internal/interfaces/http/dto"
	"github.com/tsafe/backend/internal/interfaces/http/middleware"
)

// IncidentService is the incident ticketing application service.
type IncidentService interface {
	Report(ctx context.Context, actor incidentapp.Actor, req incidentapp.ReportRequest) (*incidentapp.ReportResponse, error)
	Get(ctx context.Context, actor incidentapp.Actor, code string) (*incidentapp.Response, error)
	OpenReport(ctx context.Context, actor incidentapp.Actor, code string) (*incidentapp.Report, error)
	ListByTourist(ctx context.Context, actor incidentapp.Actor, touristID uuid.UUID, filter shared.Filter) (shared.Paginated[incidentapp.Response], error)
	UpdateStatus(ctx context.Context, actor incidentapp.Actor, code string, req incidentapp.UpdateStatusRequest) (*incidentapp.Response, error)
}

// IncidentHandler handles incident ticket endpoints
type IncidentHandler struct {
	BaseHandler
	service IncidentService
}

// NewIncidentHandler creates a new IncidentHandler
func NewIncidentHandler(service IncidentService) *IncidentHandler {
	return &IncidentHandler{service: service}
}

// Report godoc
// @ID           reportIncident
// @Summary      Report an incident
// @Description  Opens a FIR ticket for a tourist. Emergency types also raise a panic.
// @Tags         incidents
// @Accept       json
// @Produce      json
// @Param        request body incidentapp.ReportRequest true "Incident report"
// @Success      201 {object} APIResponse[incidentapp.ReportResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /incidents [post]
func (h *IncidentHandler) Report(c *gin.Context) {
	who, ok := h.getCaller(c)
	if !ok {
		return
	}
	var req incidentapp.ReportRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.service.Report(c.Request.Context(), who.incidentActor(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// Get godoc
// @ID           getIncident
// @Summary      Get an incident by code
// @Tags         incidents
// @Produce      json
// @Param        code path string true "Incident code" example(FIR-2026-000001)
// @Success      200 {object} APIResponse[incidentapp.Response]
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /incidents/{code} [get]
func (h *IncidentHandler) Get(c *gin.Context) {
	who, ok := h.getCaller(c)
	if !ok {
		return
	}
	resp, err := h.service.Get(c.Request.Context(), who.incidentActor(), c.Param("code"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// OpenReport godoc
// @ID           openIncidentReport
// @Summary      Open the sealed incident report
// @Description  Admin only. Decrypts the full report stored behind the evidence reference.
// @Tags         incidents
// @Produce      json
// @Param        code path string true "Incident code"
// @Success      200 {object} APIResponse[incidentapp.Report]
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /incidents/{code}/report [get]
func (h *IncidentHandler) OpenReport(c *gin.Context) {
	who, ok := h.getCaller(c)
	if !ok {
		return
	}
	resp, err := h.service.OpenReport(c.Request.Context(), who.incidentActor(), c.Param("code"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// UpdateStatus godoc
// @ID           updateIncidentStatus
// @Summary      Update incident status
// @Description  Admin only. Records status, FIR details or officer assignment and appends an action log entry.
// @Tags         incidents
// @Accept       json
// @Produce      json
// @Param        code path string true "Incident code"
// @Param        request body incidentapp.UpdateStatusRequest true "Status changes"
// @Success      200 {object} APIResponse[incidentapp.Response]
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /incidents/{code}/status [patch]
func (h *IncidentHandler) UpdateStatus(c *gin.Context) {
	who, ok := h.getCaller(c)
	if !ok {
		return
	}
	var req incidentapp.UpdateStatusRequest
	if !h.bindJSON(c, &req) {
		return
	}
	req.OfficerName = officerName(c, who)

	resp, err := h.service.UpdateStatus(c.Request.Context(), who.incidentActor(), c.Param("code"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// ListByTourist godoc
// @ID           listTouristIncidents
// @Summary      List a tourist's incidents
// @Tags         incidents
// @Produce      json
// @Param        id path string true "Tourist ID" format(uuid)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} APIResponse[[]incidentapp.Response]
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /tourists/{id}/incidents [get]
func (h *IncidentHandler) ListByTourist(c *gin.Context) {
	who, ok := h.getCaller(c)
	if !ok {
		return
	}
	touristID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	query := dto.NewListQuery()
	if !h.bindQuery(c, &query) {
		return
	}

	page, err := h.service.ListByTourist(c.Request.Context(), who.incidentActor(), touristID, query.Filter())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// officerName labels action log entries with the acting admin.
func officerName(c *gin.Context, who caller) string {
	if claims := middleware.GetJWTClaims(c); claims != nil && claims.Email != "" {
		return claims.Email
	}
	return who.UserID.String()
}
