package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	consolidationapp "github.com/rollup/backend/internal/application/consolidation"
)

// FxRateHandler handles FX rate API endpoints
type FxRateHandler struct {
	BaseHandler
	fxRateService *consolidationapp.FxRateService
}

// NewFxRateHandler creates a new FxRateHandler
func NewFxRateHandler(fxRateService *consolidationapp.FxRateService) *FxRateHandler {
	return &FxRateHandler{
		fxRateService: fxRateService,
	}
}

// Record stores a daily rate for a currency pair
func (h *FxRateHandler) Record(c *gin.Context) {
	var req consolidationapp.RecordFxRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	resp, err := h.fxRateService.Record(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, resp)
}

// ListForPair returns the most recent rates for a currency pair
func (h *FxRateHandler) ListForPair(c *gin.Context) {
	base := c.Query("base")
	quote := c.Query("quote")
	if base == "" || quote == "" {
		h.BadRequest(c, "base and quote query parameters are required")
		return
	}

	limit := 30
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	resp, err := h.fxRateService.ListForPair(c.Request.Context(), base, quote, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// RegisterRoutes registers FX rate routes
func (h *FxRateHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rates := rg.Group("/fx-rates")
	{
		rates.GET("", h.ListForPair)
		rates.POST("", h.Record)
	}
}
