package handlers

import (
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"salmontrack/internal/middleware"
)

// Router collects the handler groups served by the API
type Router struct {
	Tracking    *TrackingHandlers
	Inventory   *InventoryHandlers
	Orders      *OrderHandlers
	Assignments *AssignmentHandlers
	Dashboard   *DashboardHandlers
	Jobs        *JobHandlers
	Archives    *ArchiveHandlers
	Health      *HealthHandlers

	// PublicMiddleware wraps the tracking API and the public tracking page
	PublicMiddleware []echo.MiddlewareFunc
}

// Register mounts every route on e
func (r *Router) Register(e *echo.Echo) {
	if r.Health != nil {
		e.GET("/health", r.Health.HealthCheck)
		e.GET("/health/ready", r.Health.ReadinessCheck)
		e.GET("/health/live", r.Health.LivenessCheck)
	}
	if r.Tracking != nil {
		r.Tracking.RegisterRoutes(e, r.PublicMiddleware...)
	}

	versionMiddleware := middleware.NewVersionMiddleware()
	e.Use(versionMiddleware.APIVersionResolver())
	v1 := versionMiddleware.VersionRoute(e, "v1", echoMiddleware.CORS())

	if r.Inventory != nil {
		lots := v1.Group("/lots")
		lots.GET("", r.Inventory.ListLots)
		lots.POST("", r.Inventory.CreateLot)
		lots.GET("/:id", r.Inventory.GetLot)
		lots.PUT("/:id", r.Inventory.UpdateLot)
		lots.DELETE("/:id", r.Inventory.DeleteLot)
		lots.POST("/:id/status", r.Inventory.SetStatus)
		lots.POST("/:id/archive", r.Inventory.ArchiveTracking)

		v1.GET("/tracking/worklist", r.Inventory.TrackingWorklist)
		v1.GET("/ops/inbox", r.Inventory.OpsInbox)
		v1.GET("/ops/activity", r.Inventory.ActivityFeed)
	}

	if r.Orders != nil {
		orders := v1.Group("/orders")
		orders.GET("", r.Orders.ListOrders)
		orders.POST("", r.Orders.CreateOrder)
		orders.GET("/:id", r.Orders.GetOrder)
		orders.PUT("/:id", r.Orders.UpdateOrder)
		orders.DELETE("/:id", r.Orders.DeleteOrder)
		orders.GET("/:id/remaining", r.Orders.GetLineRemaining)
		if r.Assignments != nil {
			orders.GET("/:id/lines/:lineId/remaining", r.Assignments.LineRemaining)
			orders.GET("/:id/lines/:lineId/suggestion", r.Assignments.SuggestLot)
		}
	}

	if r.Assignments != nil {
		assignments := v1.Group("/assignments")
		assignments.GET("", r.Assignments.ListAssignments)
		assignments.POST("", r.Assignments.CreateAssignment)
		assignments.POST("/quick", r.Assignments.QuickAssign)
		assignments.GET("/:id", r.Assignments.GetAssignment)
		assignments.POST("/:id/void", r.Assignments.VoidAssignment)
		assignments.POST("/:id/reactivate", r.Assignments.ReactivateAssignment)
		assignments.DELETE("/:id", r.Assignments.DeleteAssignment)
	}

	if r.Dashboard != nil {
		v1.GET("/dashboard", r.Dashboard.GetDashboard)
	}

	if r.Archives != nil {
		v1.GET("/archives/:token", r.Archives.ListArchives)
		v1.POST("/archives/:token", r.Archives.ArchiveSnapshot)
	}

	if r.Jobs != nil {
		v1.GET("/jobs", r.Jobs.ListJobs)
		v1.POST("/jobs/:name/run", r.Jobs.RunJob)
	}
}
