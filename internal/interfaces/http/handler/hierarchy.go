package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	consolidationapp "github.com/rollup/backend/internal/application/consolidation"
)

// HierarchyHandler handles org unit and membership API endpoints
type HierarchyHandler struct {
	BaseHandler
	hierarchyService *consolidationapp.HierarchyService
}

// NewHierarchyHandler creates a new HierarchyHandler
func NewHierarchyHandler(hierarchyService *consolidationapp.HierarchyService) *HierarchyHandler {
	return &HierarchyHandler{
		hierarchyService: hierarchyService,
	}
}

// CreateOrgUnit creates a new org unit in the reporting hierarchy
func (h *HierarchyHandler) CreateOrgUnit(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	var req consolidationapp.CreateOrgUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	resp, err := h.hierarchyService.CreateOrgUnit(c.Request.Context(), orgID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, resp)
}

// UpdateOrgUnit updates an org unit's name, parent or currency
func (h *HierarchyHandler) UpdateOrgUnit(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	unitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid org unit ID")
		return
	}

	var req consolidationapp.UpdateOrgUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	resp, err := h.hierarchyService.UpdateOrgUnit(c.Request.Context(), orgID, unitID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// DeactivateOrgUnit removes an org unit from future consolidation scopes
func (h *HierarchyHandler) DeactivateOrgUnit(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	unitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid org unit ID")
		return
	}

	if err := h.hierarchyService.DeactivateOrgUnit(c.Request.Context(), orgID, unitID); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// GetOrgUnit returns a single org unit
func (h *HierarchyHandler) GetOrgUnit(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	unitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid org unit ID")
		return
	}

	resp, err := h.hierarchyService.GetOrgUnit(c.Request.Context(), orgID, unitID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// ListOrgUnits returns all org units for the org
func (h *HierarchyHandler) ListOrgUnits(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	resp, err := h.hierarchyService.ListOrgUnits(c.Request.Context(), orgID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// ValidateHierarchy checks the org unit tree for cycles, orphans and
// membership problems in a given period
func (h *HierarchyHandler) ValidateHierarchy(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	period := c.Query("period")
	if period == "" {
		h.BadRequest(c, "period query parameter is required")
		return
	}

	resp, err := h.hierarchyService.ValidateHierarchy(c.Request.Context(), orgID, period)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// AddMember attaches a tenant to an org unit with a percent share
func (h *HierarchyHandler) AddMember(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	unitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid org unit ID")
		return
	}

	var req consolidationapp.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	resp, err := h.hierarchyService.AddMember(c.Request.Context(), orgID, unitID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, resp)
}

// ListMembers returns the memberships of an org unit
func (h *HierarchyHandler) ListMembers(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	unitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid org unit ID")
		return
	}

	resp, err := h.hierarchyService.ListMembers(c.Request.Context(), orgID, unitID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// CloseMember ends a membership as of a given date
func (h *HierarchyHandler) CloseMember(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	memberID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid member ID")
		return
	}

	var req consolidationapp.CloseMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	resp, err := h.hierarchyService.CloseMember(c.Request.Context(), orgID, memberID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// RegisterRoutes registers hierarchy routes
func (h *HierarchyHandler) RegisterRoutes(rg *gin.RouterGroup) {
	units := rg.Group("/org-units")
	{
		units.GET("", h.ListOrgUnits)
		units.POST("", h.CreateOrgUnit)
		units.GET("/validate", h.ValidateHierarchy)
		units.GET("/:id", h.GetOrgUnit)
		units.PUT("/:id", h.UpdateOrgUnit)
		units.DELETE("/:id", h.DeactivateOrgUnit)
		units.GET("/:id/members", h.ListMembers)
		units.POST("/:id/members", h.AddMember)
	}

	members := rg.Group("/members")
	{
		members.POST("/:id/close", h.CloseMember)
	}
}
