// Package repository defines all the repository interfaces used by domain services
// Following the dependency inversion principle, domain logic depends on these interfaces,
// and infrastructure implementations provide concrete implementations
package repository

import (
	"context"
	"time"

	"demandForecastApp/internal/domain/model"
)

// OrderStore defines access to the raw orders table.
type OrderStore interface {
	// InsertOrders stores new orders. Orders whose id already exists are ignored,
	// so re-delivered events are harmless. It returns the number of rows inserted.
	InsertOrders(ctx context.Context, orders []*model.Order) (int64, error)

	// ScanOrders streams orders with from <= timestamp < to in batches.
	// A nil bound is open.
	ScanOrders(ctx context.Context, from, to *time.Time, fn func(batch []*model.Order) error) error
}

// DailyMetricStore defines access to the daily rollup table.
type DailyMetricStore interface {
	// UpsertDailyMetrics inserts or overwrites rows keyed by (date, region).
	// All rows are written in one transaction.
	UpsertDailyMetrics(ctx context.Context, metrics []*model.DailyMetric) error

	// ReadSeries returns the metric's history for a region ordered by date ascending.
	ReadSeries(ctx context.Context, region model.Region, metric model.Metric) ([]model.SeriesPoint, error)

	// ListDailyMetrics returns full rollup rows for a region ordered by date ascending.
	ListDailyMetrics(ctx context.Context, region model.Region) ([]*model.DailyMetric, error)
}

// ForecastStore defines access to the forecast table.
type ForecastStore interface {
	// UpsertForecasts inserts or overwrites rows keyed by (region, metric, forecast_date).
	// Either every point is written or none is.
	UpsertForecasts(ctx context.Context, points []*model.ForecastPoint) error

	// ListForecasts returns the forecasts of the pair's most recent run ordered
	// by date ascending. Older dates no later run rewrote are not returned.
	ListForecasts(ctx context.Context, region model.Region, metric model.Metric) ([]*model.ForecastPoint, error)
}

// ForecastCache defines the interface for caching the latest forecasts
// This is used by the dashboard API for fast reads
// Implementations should prioritize speed over durability
type ForecastCache interface {
	SaveForecasts(ctx context.Context, region model.Region, metric model.Metric, points []*model.ForecastPoint) error

	// GetForecasts returns nil, nil when nothing is cached for the pair.
	GetForecasts(ctx context.Context, region model.Region, metric model.Metric) ([]*model.ForecastPoint, error)
}

// MetricsArchive defines an append-only analytical copy of rollups and forecasts,
// kept for historical analysis of how forecasts evolved between runs.
type MetricsArchive interface {
	ArchiveDailyMetrics(ctx context.Context, metrics []*model.DailyMetric) error
	ArchiveForecasts(ctx context.Context, points []*model.ForecastPoint) error
}
