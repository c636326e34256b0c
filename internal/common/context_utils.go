package common

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	} `json:"error"`
}

// CreateErrorResponse creates a standardized error response
func CreateErrorResponse(code string, message string, details map[string]string) *ErrorResponse {
	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	resp.Error.Details = details
	return &resp
}

// SendValidationError sends a validation error response
func SendValidationError(c echo.Context, field, message string) error {
	details := map[string]string{
		field: message,
	}
	return c.JSON(http.StatusBadRequest, CreateErrorResponse("VALIDATION_ERROR", "Validation failed", details))
}

// SendClientError sends a client error response
func SendClientError(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, CreateErrorResponse("CLIENT_ERROR", message, nil))
}

// SendServerError sends a server error response
func SendServerError(c echo.Context, message string) error {
	return c.JSON(http.StatusInternalServerError, CreateErrorResponse("SERVER_ERROR", message, nil))
}

// SendNotFoundError sends a not found error response
func SendNotFoundError(c echo.Context, resource string) error {
	return c.JSON(http.StatusNotFound, CreateErrorResponse("NOT_FOUND", fmt.Sprintf("%s not found", resource), nil))
}

// SendConflictError sends a conflict response for stock and state violations
func SendConflictError(c echo.Context, code, message string, details map[string]string) error {
	return c.JSON(http.StatusConflict, CreateErrorResponse(code, message, details))
}

// SendError maps a service error onto the standardized response
func SendError(c echo.Context, err error) error {
	var (
		validationErr *ValidationError
		stockErr      *InsufficientStockError
		stateErr      *InvalidStateError
		notFoundErr   *NotFoundError
	)
	switch {
	case errors.As(err, &validationErr):
		field := validationErr.Field
		if field == "" {
			field = "request"
		}
		return SendValidationError(c, field, validationErr.Message)
	case errors.As(err, &stockErr):
		return SendConflictError(c, "INSUFFICIENT_STOCK", stockErr.Error(), map[string]string{
			"lot_id":    stockErr.LotID,
			"po":        stockErr.PO,
			"requested": fmt.Sprintf("%d", stockErr.Requested),
			"available": fmt.Sprintf("%d", stockErr.Available),
		})
	case errors.As(err, &stateErr):
		return SendConflictError(c, "INVALID_STATE", stateErr.Error(), map[string]string{
			"entity": stateErr.Entity,
			"id":     stateErr.ID,
			"state":  stateErr.State,
		})
	case errors.As(err, &notFoundErr):
		return SendNotFoundError(c, notFoundErr.Resource)
	default:
		return SendServerError(c, "operation could not be completed")
	}
}

// ValidatePositiveInteger validates positive integer values with upper bounds
func ValidatePositiveInteger(value int, fieldName string, maxValue int) error {
	if value <= 0 {
		return NewValidationError(fieldName, "must be positive")
	}
	if value > maxValue {
		return NewValidationError(fieldName, "cannot exceed %d", maxValue)
	}
	return nil
}

// ValidateRequiredString validates required string fields
func ValidateRequiredString(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return NewValidationError(fieldName, "is required")
	}
	return nil
}

// ValidateDateFormat validates date strings
func ValidateDateFormat(dateStr, fieldName string) error {
	if strings.TrimSpace(dateStr) == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", dateStr); err != nil {
		return NewValidationError(fieldName, "must be in YYYY-MM-DD format")
	}
	return nil
}

// StringPtr returns nil for blank strings
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
