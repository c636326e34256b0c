package handlers

import (
	"net/http"

	"salmontrack/internal/common"
	"salmontrack/internal/models"
	"salmontrack/internal/services"

	"github.com/labstack/echo/v4"
)

// OrderHandlers handles sales order HTTP requests
type OrderHandlers struct {
	orderService services.OrderService
}

// NewOrderHandlers creates a new order handlers instance
func NewOrderHandlers(orderService services.OrderService) *OrderHandlers {
	return &OrderHandlers{orderService: orderService}
}

// ListOrders handles listing sales orders
func (h *OrderHandlers) ListOrders(c echo.Context) error {
	var filter models.OrderSearchFilter
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &filter); err != nil {
		return common.SendClientError(c, "Invalid query parameters")
	}

	orders, err := h.orderService.ListOrders(c.Request().Context(), &filter)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"orders": orders,
		"count":  len(orders),
	})
}

// CreateOrder handles creating a sales order with its lines
func (h *OrderHandlers) CreateOrder(c echo.Context) error {
	var req services.OrderInput
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if err := c.Validate(&req); err != nil {
		return common.SendError(c, err)
	}

	order, err := h.orderService.CreateOrder(c.Request().Context(), &req)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusCreated, order)
}

// GetOrder handles getting a sales order by ID
func (h *OrderHandlers) GetOrder(c echo.Context) error {
	order, err := h.orderService.GetOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// UpdateOrder handles replacing a sales order header and lines
func (h *OrderHandlers) UpdateOrder(c echo.Context) error {
	var req services.OrderInput
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if err := c.Validate(&req); err != nil {
		return common.SendError(c, err)
	}

	order, err := h.orderService.UpdateOrder(c.Request().Context(), c.Param("id"), &req)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// DeleteOrder handles deleting a sales order
func (h *OrderHandlers) DeleteOrder(c echo.Context) error {
	if err := h.orderService.DeleteOrder(c.Request().Context(), c.Param("id")); err != nil {
		return common.SendError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetLineRemaining handles the per line allocation summary of an order
func (h *OrderHandlers) GetLineRemaining(c echo.Context) error {
	lines, err := h.orderService.OrderLineRemaining(c.Request().Context(), c.Param("id"))
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"lines": lines})
}
