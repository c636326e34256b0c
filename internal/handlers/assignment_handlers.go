package handlers

import (
	"net/http"

	"salmontrack/internal/common"
	"salmontrack/internal/models"
	"salmontrack/internal/services"

	"github.com/labstack/echo/v4"
)

// AssignmentHandlers exposes the allocation ledger
type AssignmentHandlers struct {
	ledgerService services.LedgerService
}

func NewAssignmentHandlers(ledgerService services.LedgerService) *AssignmentHandlers {
	return &AssignmentHandlers{ledgerService: ledgerService}
}

func (h *AssignmentHandlers) ListAssignments(c echo.Context) error {
	var filter models.AssignmentFilter
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &filter); err != nil {
		return common.SendClientError(c, "Invalid query parameters")
	}

	assignments, err := h.ledgerService.ListAssignments(c.Request().Context(), &filter)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"assignments": assignments,
		"count":       len(assignments),
	})
}

func (h *AssignmentHandlers) GetAssignment(c echo.Context) error {
	a, err := h.ledgerService.GetAssignment(c.Request().Context(), c.Param("id"))
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *AssignmentHandlers) CreateAssignment(c echo.Context) error {
	var req services.CreateAssignmentInput
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if err := c.Validate(&req); err != nil {
		return common.SendError(c, err)
	}

	a, err := h.ledgerService.CreateAssignment(c.Request().Context(), &req)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

// QuickAssign books cases of one lot against one order line
func (h *AssignmentHandlers) QuickAssign(c echo.Context) error {
	var req services.QuickAssignInput
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if err := c.Validate(&req); err != nil {
		return common.SendError(c, err)
	}

	result, err := h.ledgerService.QuickAssign(c.Request().Context(), &req)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *AssignmentHandlers) VoidAssignment(c echo.Context) error {
	a, err := h.ledgerService.VoidAssignment(c.Request().Context(), c.Param("id"))
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *AssignmentHandlers) ReactivateAssignment(c echo.Context) error {
	a, err := h.ledgerService.ReactivateAssignment(c.Request().Context(), c.Param("id"))
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *AssignmentHandlers) DeleteAssignment(c echo.Context) error {
	if err := h.ledgerService.DeleteAssignment(c.Request().Context(), c.Param("id")); err != nil {
		return common.SendError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// LineRemaining reports what one order line still needs
func (h *AssignmentHandlers) LineRemaining(c echo.Context) error {
	remaining, err := h.ledgerService.RemainingForLine(c.Request().Context(), c.Param("id"), c.Param("lineId"))
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"salesOrderId": c.Param("id"),
		"lineId":       c.Param("lineId"),
		"remaining":    remaining,
	})
}

// SuggestLot proposes a lot and case count for an order line
func (h *AssignmentHandlers) SuggestLot(c echo.Context) error {
	suggestion, err := h.ledgerService.SuggestLot(c.Request().Context(), c.Param("id"), c.Param("lineId"))
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, suggestion)
}
