// Package service provides implementations of domain services that implement core business logic
// This package depends only on domain models and repository interfaces (not implementations)
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/repository"
	"demandForecastApp/internal/domain/useCases"
)

// DailyRollupService recomputes daily metrics from the raw orders. Every run
// recomputes totals from scratch and overwrites the stored rows, so running it twice
// over the same orders yields the same rows.
type DailyRollupService struct {
	orders  repository.OrderStore
	metrics repository.DailyMetricStore
	archive repository.MetricsArchive // optional
	log     *zap.Logger
}

// NewDailyRollupService creates the rollup stage. archive may be nil.
func NewDailyRollupService(orders repository.OrderStore, metrics repository.DailyMetricStore, archive repository.MetricsArchive, log *zap.Logger) *DailyRollupService {
	return &DailyRollupService{
		orders:  orders,
		metrics: metrics,
		archive: archive,
		log:     log.Named("rollup"),
	}
}

var _ useCases.RollupService = (*DailyRollupService)(nil)

func (s *DailyRollupService) Rollup(ctx context.Context, day *time.Time) (int, error) {
	var from, to *time.Time
	if day != nil {
		start := model.DateOf(*day)
		end := start.AddDate(0, 0, 1)
		from, to = &start, &end
	}

	acc := newDailyAccumulator()
	err := s.orders.ScanOrders(ctx, from, to, func(batch []*model.Order) error {
		for _, o := range batch {
			acc.add(o)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan orders: %w", err)
	}

	rows := acc.metrics()
	if len(rows) == 0 {
		s.log.Info("no orders to aggregate", zap.Bool("full_history", day == nil))
		return 0, nil
	}

	if err := s.metrics.UpsertDailyMetrics(ctx, rows); err != nil {
		return 0, fmt.Errorf("upsert daily metrics: %w", err)
	}
	s.log.Info("daily metrics aggregated",
		zap.Int("rows", len(rows)),
		zap.Int64("orders", acc.orders),
		zap.Bool("full_history", day == nil),
	)

	if s.archive != nil {
		if err := s.archive.ArchiveDailyMetrics(ctx, rows); err != nil {
			s.log.Warn("failed to archive daily metrics", zap.Error(err))
		}
	}
	return len(rows), nil
}

type dailyKey struct {
	date   time.Time
	region model.Region
}

type dailyTotals struct {
	count   int64
	revenue decimal.Decimal
}

// dailyAccumulator groups orders by (UTC date, region).
type dailyAccumulator struct {
	totals map[dailyKey]*dailyTotals
	orders int64
}

func newDailyAccumulator() *dailyAccumulator {
	return &dailyAccumulator{totals: make(map[dailyKey]*dailyTotals)}
}

func (a *dailyAccumulator) add(o *model.Order) {
	if o == nil {
		return
	}
	key := dailyKey{date: model.DateOf(o.Timestamp), region: o.Region}
	t, ok := a.totals[key]
	if !ok {
		t = &dailyTotals{revenue: decimal.Zero}
		a.totals[key] = t
	}
	t.count++
	t.revenue = t.revenue.Add(o.TotalPrice)
	a.orders++
}

// metrics returns one row per (date, region) with at least one order, ordered by
// date then region.
func (a *dailyAccumulator) metrics() []*model.DailyMetric {
	rows := make([]*model.DailyMetric, 0, len(a.totals))
	for key, t := range a.totals {
		rows = append(rows, model.NewDailyMetric(key.date, key.region, t.count, t.revenue))
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].Region < rows[j].Region
	})
	return rows
}
