package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"salmontrack/internal/common"
	"salmontrack/internal/models"
	"salmontrack/internal/services"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// TrackingHandlers serves the token keyed tracking table and the public tracking page
type TrackingHandlers struct {
	snapshots services.SnapshotService
	tracking  services.TrackingService
	logger    logrus.FieldLogger
}

func NewTrackingHandlers(snapshots services.SnapshotService, tracking services.TrackingService, logger logrus.FieldLogger) *TrackingHandlers {
	return &TrackingHandlers{snapshots: snapshots, tracking: tracking, logger: logger}
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}

func setTrackingCORS(c echo.Context) {
	h := c.Response().Header()
	h.Set(echo.HeaderAccessControlAllowOrigin, "*")
	h.Set(echo.HeaderAccessControlAllowMethods, "GET,POST,OPTIONS")
	h.Set(echo.HeaderAccessControlAllowHeaders, "Content-Type")
}

// CreateTracking handles /create-tracking for every method
func (h *TrackingHandlers) CreateTracking(c echo.Context) error {
	setTrackingCORS(c)
	switch c.Request().Method {
	case http.MethodOptions:
		return c.NoContent(http.StatusOK)
	case http.MethodPost:
	default:
		return c.JSON(http.StatusMethodNotAllowed, errorBody("method not allowed"))
	}

	var req models.CreateTrackingRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid JSON body"))
	}
	snapshot, err := models.NewRawSnapshot(req.Inventory, req.SalesOrders, req.Assignments)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid JSON body"))
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return c.JSON(http.StatusBadRequest, errorBody("token is required"))
	}

	if err := h.snapshots.Publish(c.Request().Context(), token, snapshot); err != nil {
		h.logger.WithField("token", token).WithError(err).Error("failed to save tracking")
		return c.JSON(http.StatusInternalServerError, errorBody("failed to save tracking"))
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// GetTracking handles /get-tracking for every method
func (h *TrackingHandlers) GetTracking(c echo.Context) error {
	setTrackingCORS(c)
	switch c.Request().Method {
	case http.MethodOptions:
		return c.NoContent(http.StatusOK)
	case http.MethodGet:
	default:
		return c.JSON(http.StatusMethodNotAllowed, errorBody("method not allowed"))
	}

	token := strings.TrimSpace(c.QueryParam("token"))
	if token == "" {
		return c.JSON(http.StatusBadRequest, errorBody("token is required"))
	}
	snapshot, err := h.snapshots.Fetch(c.Request().Context(), token)
	if err != nil {
		if common.IsNotFoundError(err) {
			return c.JSON(http.StatusNotFound, errorBody("not found"))
		}
		h.logger.WithField("token", token).WithError(err).Error("failed to fetch tracking")
		return c.JSON(http.StatusInternalServerError, errorBody("failed to fetch tracking"))
	}
	return c.JSON(http.StatusOK, snapshot)
}

// TrackPage resolves a public tracking link. Every failure reads as an invalid link.
func (h *TrackingHandlers) TrackPage(c echo.Context) error {
	view, err := h.tracking.ResolveTracking(c.Request().Context(), c.Param("token"))
	if err != nil {
		if !common.IsNotFoundError(err) {
			h.logger.WithError(err).Warn("tracking page resolution failed")
		}
		return c.JSON(http.StatusNotFound, errorBody("invalid link"))
	}
	return c.JSON(http.StatusOK, view)
}

// RegisterRoutes mounts the tracking API at the root and under /api
func (h *TrackingHandlers) RegisterRoutes(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	for _, prefix := range []string{"", "/api"} {
		e.Any(prefix+"/create-tracking", h.CreateTracking, mw...)
		e.Any(prefix+"/get-tracking", h.GetTracking, mw...)
	}
	e.GET("/track/:token", h.TrackPage, mw...)
}
