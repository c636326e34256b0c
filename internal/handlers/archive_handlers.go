package handlers

import (
	"net/http"

	"salmontrack/internal/common"
	"salmontrack/internal/services"

	"github.com/labstack/echo/v4"
)

// ArchiveHandlers stores and lists the snapshot copies kept in object storage
type ArchiveHandlers struct {
	archive services.ArchiveService
}

func NewArchiveHandlers(archive services.ArchiveService) *ArchiveHandlers {
	return &ArchiveHandlers{archive: archive}
}

func (h *ArchiveHandlers) ListArchives(c echo.Context) error {
	entries, err := h.archive.ListArchives(c.Request().Context(), c.Param("token"))
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"archives": entries,
		"count":    len(entries),
	})
}

func (h *ArchiveHandlers) ArchiveSnapshot(c echo.Context) error {
	name, err := h.archive.ArchiveSnapshot(c.Request().Context(), c.Param("token"))
	if err != nil {
		return common.SendError(c, err)
	}
	url, err := h.archive.ArchiveURL(c.Request().Context(), name)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusCreated, services.ArchiveEntry{ArchiveObject: services.ArchiveObject{Name: name}, URL: url})
}
