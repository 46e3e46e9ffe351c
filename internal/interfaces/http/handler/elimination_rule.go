package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	consolidationapp "github.com/rollup/backend/internal/application/consolidation"
)

// EliminationRuleHandler handles elimination rule API endpoints
type EliminationRuleHandler struct {
	BaseHandler
	ruleService *consolidationapp.EliminationRuleService
}

// NewEliminationRuleHandler creates a new EliminationRuleHandler
func NewEliminationRuleHandler(ruleService *consolidationapp.EliminationRuleService) *EliminationRuleHandler {
	return &EliminationRuleHandler{
		ruleService: ruleService,
	}
}

// Create registers a new elimination rule of one of the typed variants
func (h *EliminationRuleHandler) Create(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	var req consolidationapp.CreateEliminationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	resp, err := h.ruleService.Create(c.Request.Context(), orgID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, resp)
}

// Get returns a single elimination rule
func (h *EliminationRuleHandler) Get(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	ruleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid rule ID")
		return
	}

	resp, err := h.ruleService.Get(c.Request.Context(), orgID, ruleID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// List returns elimination rules, optionally active ones only
func (h *EliminationRuleHandler) List(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	activeOnly := c.Query("active") == "true"

	resp, err := h.ruleService.List(c.Request.Context(), orgID, activeOnly)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// Deactivate disables a rule for future runs
func (h *EliminationRuleHandler) Deactivate(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	ruleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid rule ID")
		return
	}

	if err := h.ruleService.Deactivate(c.Request.Context(), orgID, ruleID); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// RegisterRoutes registers elimination rule routes
func (h *EliminationRuleHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rules := rg.Group("/elimination-rules")
	{
		rules.GET("", h.List)
		rules.POST("", h.Create)
		rules.GET("/:id", h.Get)
		rules.DELETE("/:id", h.Deactivate)
	}
}
