package useCases

import (
	"context"
	"net/http"
	"time"

	"demandForecastApp/internal/domain/model"
)

// RollupService aggregates orders into daily metrics.
type RollupService interface {
	// Rollup recomputes daily metrics for the given UTC date, or for the whole order
	// history when day is nil. It returns the number of rows upserted.
	Rollup(ctx context.Context, day *time.Time) (int, error)
}

// ForecastService produces and stores forecasts for one (region, metric) pair.
type ForecastService interface {
	ForecastPair(ctx context.Context, region model.Region, metric model.Metric, runAt time.Time) model.PairOutcome
}

// OrderIngestor validates and stores incoming orders.
type OrderIngestor interface {
	IngestOrders(ctx context.Context, orders []*model.Order) (int64, error)
}

// Notifier delivers operator notifications.
type Notifier interface {
	Send(ctx context.Context, n model.Notification) error
}

// Forecaster fits a univariate time-series model.
type Forecaster interface {
	Fit(ctx context.Context, series []model.SeriesPoint) (FittedModel, error)
}

// FittedModel predicts future values of the series it was fit on.
type FittedModel interface {
	// Predict returns one prediction per calendar day after the last observed date.
	Predict(horizon int) []model.Prediction
}

// Broadcaster defines an interface for pushing run reports to WebSocket/API layers.
type Broadcaster interface {
	BroadcastRun(report *model.RunReport)
	Handler() http.HandlerFunc
}

// OrderPublisher pushes orders onto the order stream.
type OrderPublisher interface {
	PublishOrders(ctx context.Context, orders []*model.Order) error
}
