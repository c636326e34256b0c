package handlers

import (
	"net/http"

	"salmontrack/internal/common"
	"salmontrack/internal/jobs/background"

	"github.com/labstack/echo/v4"
)

type JobHandlers struct {
	scheduler *background.JobScheduler
}

func NewJobHandlers(scheduler *background.JobScheduler) *JobHandlers {
	return &JobHandlers{scheduler: scheduler}
}

// ListJobs returns the registered jobs and their next runs
func (h *JobHandlers) ListJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"jobs": h.scheduler.GetJobStatus(),
	})
}

// RunJob runs a registered job immediately and waits for it
func (h *JobHandlers) RunJob(c echo.Context) error {
	name := c.Param("name")
	if err := h.scheduler.RunNow(c.Request().Context(), name); err != nil {
		if common.IsNotFoundError(err) {
			return common.SendNotFoundError(c, "job")
		}
		return common.SendServerError(c, "job "+name+" failed")
	}
	return c.JSON(http.StatusOK, map[string]string{"job": name, "status": "completed"})
}
