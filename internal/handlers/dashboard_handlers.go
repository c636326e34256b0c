package handlers

import (
	"net/http"

	"salmontrack/internal/analytics"
	"salmontrack/internal/common"

	"github.com/labstack/echo/v4"
)

type DashboardHandlers struct {
	analyticsService *analytics.AnalyticsService
}

func NewDashboardHandlers(analyticsService *analytics.AnalyticsService) *DashboardHandlers {
	return &DashboardHandlers{analyticsService: analyticsService}
}

// GetDashboard returns the cached KPIs; ?refresh=true recalculates them
func (h *DashboardHandlers) GetDashboard(c echo.Context) error {
	ctx := c.Request().Context()
	fetch := h.analyticsService.Dashboard
	if c.QueryParam("refresh") == "true" {
		fetch = h.analyticsService.Refresh
	}
	dashboard, err := fetch(ctx)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, dashboard)
}
