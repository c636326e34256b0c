package jobs

import (
	"context"
	"time"

	"salmontrack/internal/analytics"

	"github.com/sirupsen/logrus"
)

type AnalyticsRefreshService struct {
	analyticsService *analytics.AnalyticsService
	logger           logrus.FieldLogger
}

type AnalyticsRefreshResult struct {
	ActiveLots    int
	PendingOrders int
	LastRefreshAt time.Time
}

func NewAnalyticsRefreshService(analyticsService *analytics.AnalyticsService, logger logrus.FieldLogger) *AnalyticsRefreshService {
	return &AnalyticsRefreshService{
		analyticsService: analyticsService,
		logger:           logger,
	}
}

// RefreshDashboard recalculates the dashboard and replaces the cached copy
func (a *AnalyticsRefreshService) RefreshDashboard(ctx context.Context) (*AnalyticsRefreshResult, error) {
	dashboard, err := a.analyticsService.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return &AnalyticsRefreshResult{
		ActiveLots:    dashboard.ActiveLots,
		PendingOrders: dashboard.PendingOrders,
		LastRefreshAt: dashboard.GeneratedAt,
	}, nil
}

// ScheduledAnalyticsRefresh is the scheduler entry point
func (a *AnalyticsRefreshService) ScheduledAnalyticsRefresh(ctx context.Context) error {
	start := time.Now()
	result, err := a.RefreshDashboard(ctx)
	if err != nil {
		return err
	}
	a.logger.WithFields(logrus.Fields{
		"active_lots":    result.ActiveLots,
		"pending_orders": result.PendingOrders,
		"duration":       time.Since(start).String(),
	}).Info("dashboard refreshed")
	return nil
}
