package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/repository"
)

// DashboardService serves read-only history and forecasts to the API.
// Forecast reads try the cache first and fall back to the store, refilling the
// cache on a miss.
type DashboardService struct {
	metrics   repository.DailyMetricStore
	forecasts repository.ForecastStore
	cache     repository.ForecastCache // optional
	log       *zap.Logger
}

func NewDashboardService(metrics repository.DailyMetricStore, forecasts repository.ForecastStore, cache repository.ForecastCache, log *zap.Logger) *DashboardService {
	return &DashboardService{
		metrics:   metrics,
		forecasts: forecasts,
		cache:     cache,
		log:       log.Named("dashboard"),
	}
}

// History returns a metric's daily values for a region with promo days flagged.
func (s *DashboardService) History(ctx context.Context, region model.Region, metric model.Metric) ([]model.HistoryPoint, error) {
	rows, err := s.metrics.ListDailyMetrics(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("list daily metrics: %w", err)
	}
	out := make([]model.HistoryPoint, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.HistoryPoint{
			Date:       r.Date,
			Value:      metric.Value(r),
			IsPromoDay: r.IsPromoDay,
		})
	}
	return out, nil
}

// Forecasts returns the latest stored forecasts for a pair. Average order value
// is derived from the revenue and order-count forecasts.
func (s *DashboardService) Forecasts(ctx context.Context, region model.Region, metric model.Metric) ([]*model.ForecastPoint, error) {
	if !metric.Derived() {
		return s.forecastsFor(ctx, region, metric)
	}

	revenue, err := s.forecastsFor(ctx, region, model.MetricRevenue)
	if err != nil {
		return nil, err
	}
	orders, err := s.forecastsFor(ctx, region, model.MetricOrderCount)
	if err != nil {
		return nil, err
	}
	return model.DeriveAverageOrderValue(revenue, orders), nil
}

func (s *DashboardService) forecastsFor(ctx context.Context, region model.Region, metric model.Metric) ([]*model.ForecastPoint, error) {
	if s.cache != nil {
		cached, err := s.cache.GetForecasts(ctx, region, metric)
		if err != nil {
			s.log.Warn("forecast cache read failed",
				zap.String("region", string(region)),
				zap.String("metric", metric.String()),
				zap.Error(err),
			)
		} else if len(cached) > 0 {
			return cached, nil
		}
	}

	points, err := s.forecasts.ListForecasts(ctx, region, metric)
	if err != nil {
		return nil, fmt.Errorf("list forecasts: %w", err)
	}

	if s.cache != nil && len(points) > 0 {
		if err := s.cache.SaveForecasts(ctx, region, metric, points); err != nil {
			s.log.Warn("forecast cache refill failed", zap.Error(err))
		}
	}
	return points, nil
}
