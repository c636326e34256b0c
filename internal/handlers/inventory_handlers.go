package handlers

import (
	"net/http"

	"salmontrack/internal/common"
	"salmontrack/internal/models"
	"salmontrack/internal/services"

	"github.com/labstack/echo/v4"
)

// InventoryHandlers handles lot intake, status changes and the tracking worklist
type InventoryHandlers struct {
	inventoryService services.InventoryService
	pipelineService  services.PipelineService
}

// NewInventoryHandlers creates a new inventory handlers instance
func NewInventoryHandlers(inventoryService services.InventoryService, pipelineService services.PipelineService) *InventoryHandlers {
	return &InventoryHandlers{
		inventoryService: inventoryService,
		pipelineService:  pipelineService,
	}
}

// LotResponse is a lot plus its public tracking link
type LotResponse struct {
	*models.InventoryLot
	TrackingLink string `json:"trackingLink"`
}

// SetStatusRequest represents the status change payload
type SetStatusRequest struct {
	Status models.TrackingStatus `json:"status" validate:"required"`
}

func (h *InventoryHandlers) respond(lot *models.InventoryLot) LotResponse {
	return LotResponse{InventoryLot: lot, TrackingLink: h.inventoryService.TrackingLink(lot)}
}

// ListLots handles getting lots with optional search filters
func (h *InventoryHandlers) ListLots(c echo.Context) error {
	var filter models.InventorySearchFilter
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &filter); err != nil {
		return common.SendClientError(c, "Invalid query parameters")
	}

	lots, err := h.inventoryService.ListLots(c.Request().Context(), &filter)
	if err != nil {
		return common.SendError(c, err)
	}
	out := make([]LotResponse, 0, len(lots))
	for _, lot := range lots {
		out = append(out, h.respond(lot))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"lots":  out,
		"count": len(out),
	})
}

// CreateLot handles lot intake
func (h *InventoryHandlers) CreateLot(c echo.Context) error {
	var req services.LotInput
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if err := c.Validate(&req); err != nil {
		return common.SendError(c, err)
	}

	lot, err := h.inventoryService.CreateLot(c.Request().Context(), &req)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusCreated, h.respond(lot))
}

// GetLot handles getting a lot by ID
func (h *InventoryHandlers) GetLot(c echo.Context) error {
	lot, err := h.inventoryService.GetLot(c.Request().Context(), c.Param("id"))
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, h.respond(lot))
}

// UpdateLot handles updating lot descriptors
func (h *InventoryHandlers) UpdateLot(c echo.Context) error {
	var req services.LotInput
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if err := c.Validate(&req); err != nil {
		return common.SendError(c, err)
	}

	lot, err := h.inventoryService.UpdateLot(c.Request().Context(), c.Param("id"), &req)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, h.respond(lot))
}

// DeleteLot handles deleting a lot that no active assignment holds
func (h *InventoryHandlers) DeleteLot(c echo.Context) error {
	if err := h.inventoryService.DeleteLot(c.Request().Context(), c.Param("id")); err != nil {
		return common.SendError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SetStatus handles moving a lot through the delivery pipeline
func (h *InventoryHandlers) SetStatus(c echo.Context) error {
	var req SetStatusRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if err := c.Validate(&req); err != nil {
		return common.SendError(c, err)
	}

	lot, err := h.pipelineService.SetStatus(c.Request().Context(), c.Param("id"), req.Status)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, h.respond(lot))
}

// ArchiveTracking handles taking a delivered lot off the worklist
func (h *InventoryHandlers) ArchiveTracking(c echo.Context) error {
	if err := h.inventoryService.ArchiveTracking(c.Request().Context(), c.Param("id")); err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"archived": true})
}

// TrackingWorklist handles listing lots still being tracked
func (h *InventoryHandlers) TrackingWorklist(c echo.Context) error {
	lots, err := h.inventoryService.TrackingWorklist(c.Request().Context())
	if err != nil {
		return common.SendError(c, err)
	}
	out := make([]LotResponse, 0, len(lots))
	for _, lot := range lots {
		out = append(out, h.respond(lot))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"lots":  out,
		"count": len(out),
	})
}

// OpsInbox handles the assignment board grouped by pipeline stage
func (h *InventoryHandlers) OpsInbox(c echo.Context) error {
	groups, err := h.pipelineService.OpsInbox(c.Request().Context())
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"stages": groups})
}

// ActivityFeed lists lots by their latest status change for the live AWB panel
func (h *InventoryHandlers) ActivityFeed(c echo.Context) error {
	feed, err := h.pipelineService.ActivityFeed(c.Request().Context(), c.QueryParam("warehouse"))
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"activity": feed, "count": len(feed)})
}
