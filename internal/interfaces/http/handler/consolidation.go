package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	consolidationapp "github.com/rollup/backend/internal/application/consolidation"
	"github.com/rollup/backend/internal/interfaces/http/middleware"
)

// ConsolidationHandler handles consolidation run and fact API endpoints
type ConsolidationHandler struct {
	BaseHandler
	consolidationService *consolidationapp.ConsolidationService
}

// NewConsolidationHandler creates a new ConsolidationHandler
func NewConsolidationHandler(consolidationService *consolidationapp.ConsolidationService) *ConsolidationHandler {
	return &ConsolidationHandler{
		consolidationService: consolidationService,
	}
}

// TriggerRun starts a consolidation run for a period
func (h *ConsolidationHandler) TriggerRun(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	var req consolidationapp.RunConsolidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	if userID, err := getUserID(c); err == nil {
		req.TriggeredBy = &userID
	}

	resp, err := h.consolidationService.Run(c.Request.Context(), orgID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, resp)
}

// GetRun returns a run with its step results and stats
func (h *ConsolidationHandler) GetRun(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid run ID")
		return
	}

	resp, err := h.consolidationService.GetRun(c.Request.Context(), orgID, runID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// ListRuns returns runs matching the filter
func (h *ConsolidationHandler) ListRuns(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	var filter consolidationapp.RunListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	resp, err := h.consolidationService.ListRuns(c.Request.Context(), orgID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// CancelRun cancels a pending or running consolidation run
func (h *ConsolidationHandler) CancelRun(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid run ID")
		return
	}

	resp, err := h.consolidationService.CancelRun(c.Request.Context(), orgID, runID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// GetRunFacts returns the facts committed by a specific run
func (h *ConsolidationHandler) GetRunFacts(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid run ID")
		return
	}

	resp, err := h.consolidationService.GetRunFacts(c.Request.Context(), orgID, runID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// GetRunOutput returns a time-limited download URL for a run's archived output
func (h *ConsolidationHandler) GetRunOutput(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid run ID")
		return
	}

	resp, err := h.consolidationService.GetRunOutputURL(c.Request.Context(), orgID, runID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// ListFacts returns consolidated facts matching the filter
func (h *ConsolidationHandler) ListFacts(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	var filter consolidationapp.FactListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	resp, err := h.consolidationService.ListFacts(c.Request.Context(), orgID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// RegisterRoutes registers consolidation run and fact routes
func (h *ConsolidationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	runs := rg.Group("/consolidation/runs")
	{
		runs.GET("", h.ListRuns)
		runs.POST("", middleware.RequirePermission("consolidation:run"), h.TriggerRun)
		runs.GET("/:id", h.GetRun)
		runs.POST("/:id/cancel", middleware.RequirePermission("consolidation:run"), h.CancelRun)
		runs.GET("/:id/facts", h.GetRunFacts)
		runs.GET("/:id/output", h.GetRunOutput)
	}

	facts := rg.Group("/consolidation/facts")
	{
		facts.GET("", h.ListFacts)
	}
}
