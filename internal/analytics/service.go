package analytics

import (
	"context"
	"sort"
	"strings"
	"time"

	"salmontrack/internal/caching"
	"salmontrack/internal/models"
	"salmontrack/internal/repositories"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const dashboardTTL = 5 * time.Minute

// AnalyticsService calculates and caches the operator dashboard
type AnalyticsService struct {
	store        repositories.StateStore
	cacheService caching.CacheService
	logger       logrus.FieldLogger
	now          func() time.Time
}

func NewAnalyticsService(store repositories.StateStore, cacheService caching.CacheService, logger logrus.FieldLogger) *AnalyticsService {
	if cacheService == nil {
		cacheService = caching.NewNoopCacheService()
	}
	return &AnalyticsService{
		store:        store,
		cacheService: cacheService,
		logger:       logger,
		now:          time.Now,
	}
}

// Dashboard returns the cached dashboard, calculating it on a miss
func (a *AnalyticsService) Dashboard(ctx context.Context) (*models.Dashboard, error) {
	cached, err := a.cacheService.GetDashboard(ctx)
	if err != nil {
		a.logger.WithError(err).Warn("dashboard cache read failed")
	} else if cached != nil {
		return cached, nil
	}
	return a.Refresh(ctx)
}

// Refresh recalculates the dashboard and stores it in the cache
func (a *AnalyticsService) Refresh(ctx context.Context) (*models.Dashboard, error) {
	var dashboard *models.Dashboard
	err := a.store.View(ctx, func(state *models.State) error {
		dashboard = a.calculate(state)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if cacheErr := a.cacheService.SetDashboard(ctx, dashboard, dashboardTTL); cacheErr != nil {
		a.logger.WithError(cacheErr).Warn("failed to cache dashboard")
	}
	return dashboard, nil
}

// InvalidateDashboardCache drops the cached dashboard
func (a *AnalyticsService) InvalidateDashboardCache(ctx context.Context) error {
	return a.cacheService.DeleteDashboard(ctx)
}

// OnChange is a store listener that drops the cached dashboard after every committed update
func (a *AnalyticsService) OnChange(change repositories.Change) {
	if err := a.InvalidateDashboardCache(context.Background()); err != nil {
		a.logger.WithError(err).Warn("failed to invalidate dashboard cache")
	}
}

func (a *AnalyticsService) calculate(state *models.State) *models.Dashboard {
	d := &models.Dashboard{
		TotalPoundsAvailable: decimal.Zero,
		AssignmentsByState: map[string]int{
			string(models.AssignmentStateActive): 0,
			string(models.AssignmentStateVoid):   0,
		},
		GeneratedAt: a.now(),
	}

	warehouses := make(map[string]*models.WarehouseSummary)
	statuses := make(map[models.TrackingStatus]*models.StatusSummary)
	categories := make(map[string]*models.CategorySummary)

	for _, lot := range state.Inventory {
		if !lot.Active {
			continue
		}
		pounds := lot.AvailablePounds()
		d.ActiveLots++
		d.TotalCasesAvailable += lot.CasesAvailable
		d.TotalPoundsAvailable = d.TotalPoundsAvailable.Add(pounds)

		warehouse := strings.TrimSpace(lot.Warehouse)
		if warehouse == "" {
			warehouse = "Unassigned"
		}
		ws, ok := warehouses[warehouse]
		if !ok {
			ws = &models.WarehouseSummary{Warehouse: warehouse, Pounds: decimal.Zero}
			warehouses[warehouse] = ws
		}
		ws.Lots++
		ws.Cases += lot.CasesAvailable
		ws.Pounds = ws.Pounds.Add(pounds)

		ss, ok := statuses[lot.Status]
		if !ok {
			ss = &models.StatusSummary{Status: lot.Status, Label: models.StatusLabel(lot.Status)}
			statuses[lot.Status] = ss
		}
		ss.Lots++
		ss.Cases += lot.CasesAvailable

		key := strings.Join([]string{lot.Sector, lot.Trim, lot.Size}, "-")
		cs, ok := categories[key]
		if !ok {
			cs = &models.CategorySummary{Key: key, Sector: lot.Sector, Trim: lot.Trim, Size: lot.Size, Pounds: decimal.Zero}
			categories[key] = cs
		}
		cs.Cases += lot.CasesAvailable
		cs.Pounds = cs.Pounds.Add(pounds)
	}

	for _, assignment := range state.Assignments {
		d.AssignmentsByState[string(assignment.State)]++
	}
	d.AssignmentCount = len(state.Assignments)
	for _, order := range state.SalesOrders {
		if order.IsPending() {
			d.PendingOrders++
		}
	}

	d.ByWarehouse = make([]models.WarehouseSummary, 0, len(warehouses))
	for _, ws := range warehouses {
		d.ByWarehouse = append(d.ByWarehouse, *ws)
	}
	sort.Slice(d.ByWarehouse, func(i, j int) bool { return d.ByWarehouse[i].Warehouse < d.ByWarehouse[j].Warehouse })

	d.ByStatus = make([]models.StatusSummary, 0, len(statuses))
	for _, ss := range statuses {
		d.ByStatus = append(d.ByStatus, *ss)
	}
	sort.Slice(d.ByStatus, func(i, j int) bool {
		pi := models.PipelineIndex(d.ByStatus[i].Status, nil)
		pj := models.PipelineIndex(d.ByStatus[j].Status, nil)
		if pi != pj {
			return pi < pj
		}
		return d.ByStatus[i].Status < d.ByStatus[j].Status
	})

	d.Categories = make([]models.CategorySummary, 0, len(categories))
	for _, cs := range categories {
		d.Categories = append(d.Categories, *cs)
	}
	sort.Slice(d.Categories, func(i, j int) bool {
		a, b := d.Categories[i], d.Categories[j]
		if a.Sector != b.Sector {
			return a.Sector < b.Sector
		}
		if a.Trim != b.Trim {
			return a.Trim < b.Trim
		}
		return a.Size < b.Size
	})

	return d
}
