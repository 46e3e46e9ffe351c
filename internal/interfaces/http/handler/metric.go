package handler

import (
	"github.com/gin-gonic/gin"
	consolidationapp "github.com/rollup/backend/internal/application/consolidation"
)

// MetricHandler handles metric definition API endpoints
type MetricHandler struct {
	BaseHandler
	metricService *consolidationapp.MetricService
}

// NewMetricHandler creates a new MetricHandler
func NewMetricHandler(metricService *consolidationapp.MetricService) *MetricHandler {
	return &MetricHandler{
		metricService: metricService,
	}
}

// Save creates or replaces a metric definition keyed by its metric key
func (h *MetricHandler) Save(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	var req consolidationapp.SaveMetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	resp, err := h.metricService.Save(c.Request.Context(), orgID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// Get returns a metric definition by key
func (h *MetricHandler) Get(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	resp, err := h.metricService.Get(c.Request.Context(), orgID, c.Param("key"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// List returns all metric definitions for the org
func (h *MetricHandler) List(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	resp, err := h.metricService.List(c.Request.Context(), orgID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// Delete removes a metric definition by key
func (h *MetricHandler) Delete(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid org ID")
		return
	}

	if err := h.metricService.Delete(c.Request.Context(), orgID, c.Param("key")); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// RegisterRoutes registers metric definition routes
func (h *MetricHandler) RegisterRoutes(rg *gin.RouterGroup) {
	metrics := rg.Group("/metric-definitions")
	{
		metrics.GET("", h.List)
		metrics.POST("", h.Save)
		metrics.GET("/:key", h.Get)
		metrics.DELETE("/:key", h.Delete)
	}
}
