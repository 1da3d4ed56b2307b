package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"

	v1 "github.com/groanlab/groanboard/internal/api/v1"
	httperr "github.com/groanlab/groanboard/internal/core/errors"
	"github.com/groanlab/groanboard/internal/summarycache"
)

// Handler exposes the dashboard read layer over HTTP.
type Handler struct {
	service *Service
	summary *summarycache.Cache
}

// NewHandler creates a dashboard handler.
// Panics if any dependency is nil, as this indicates a programming error.
func NewHandler(service *Service, summary *summarycache.Cache) *Handler {
	if service == nil {
		panic("dashboard: service cannot be nil")
	}
	if summary == nil {
		panic("dashboard: summary cache cannot be nil")
	}
	return &Handler{service: service, summary: summary}
}

// RegisterRoutes registers all dashboard read routes on the given router.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/dashboard", h.HandleDashboard)
	r.GET("/v1/stats/:item_id", h.HandleItemStats)
	r.GET("/v1/summary", h.HandleSummary)
}

// HandleDashboard handles GET /v1/dashboard.
func (h *Handler) HandleDashboard(c *gin.Context) {
	doc, err := h.service.Dashboard(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to build dashboard",
			Details:   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, doc)
}

// HandleItemStats handles GET /v1/stats/:item_id
// Query parameters: mode (live|daily, default live), date (YYYY-MM-DD,
// required for daily).
func (h *Handler) HandleItemStats(c *gin.Context) {
	var uri struct {
		ItemID string `uri:"item_id" binding:"required"`
	}
	var query struct {
		Mode string `form:"mode"`
		Date string `form:"date"`
	}

	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpValidationError,
			Message:   "Invalid path parameters",
			Details:   err.Error(),
		})
		return
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpValidationError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	mode := v1.NormalizedMode(query.Mode)
	if mode == v1.ModeDaily && !v1.ValidDateKey(query.Date) {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpValidationError,
			Message:   "Daily stats require a date query parameter (YYYY-MM-DD)",
		})
		return
	}

	statsDoc, err := h.service.ItemStats(c.Request.Context(), mode, uri.ItemID, query.Date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to fetch item stats",
			Details:   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, statsDoc)
}

// HandleSummary handles GET /v1/summary. ?refresh=1 forces regeneration;
// otherwise the cached payload is served while fresh.
func (h *Handler) HandleSummary(c *gin.Context) {
	ctx := c.Request.Context()

	var result summarycache.Result
	var err error
	if c.Query("refresh") == "1" {
		result, err = h.summary.Refresh(ctx)
	} else {
		result, err = h.summary.Load(ctx)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to build summary",
			Details:   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}
