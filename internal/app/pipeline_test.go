package app_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"demandForecastApp/internal/app"
	"demandForecastApp/internal/domain/forecasting"
	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/service"
	"demandForecastApp/internal/infrastructure/storage"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (n *recordingNotifier) Send(_ context.Context, msg model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) count(kind model.NotificationKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.Kind == kind {
			c++
		}
	}
	return c
}

type stubRollup struct {
	err   error
	calls int
}

func (r *stubRollup) Rollup(context.Context, *time.Time) (int, error) {
	r.calls++
	return 3, r.err
}

// scriptedForecasts returns a preset status per region.
type scriptedForecasts struct {
	status map[model.Region]model.PairStatus
	pairs  []string
}

func (f *scriptedForecasts) ForecastPair(_ context.Context, region model.Region, metric model.Metric, _ time.Time) model.PairOutcome {
	f.pairs = append(f.pairs, fmt.Sprintf("%s/%s", region, metric))
	status, ok := f.status[region]
	if !ok {
		status = model.PairSucceeded
	}
	out := model.PairOutcome{Region: region, Metric: metric, Status: status}
	if status != model.PairSucceeded && status != model.PairSkipped {
		out.Err = model.ErrStoreWrite
		out.Notifications = []model.Notification{{Kind: model.NotificationFailure, Subject: "failed"}}
	}
	return out
}

func newNotices(n *recordingNotifier, band model.PlausibilityBand) *service.NotificationService {
	return service.NewNotificationService(n, band, zap.NewNop())
}

func TestPipeline_StageSequence(t *testing.T) {
	notifier := &recordingNotifier{}
	forecasts := &scriptedForecasts{}
	p := app.NewPipeline(&stubRollup{}, forecasts, newNotices(notifier, model.PlausibilityBand{Min: 10, Max: 5000}),
		[]model.Region{model.RegionNortheast, model.RegionWest},
		model.ForecastableMetrics, zap.NewNop())

	report := p.Run(context.Background(), app.RunOptions{})

	want := []model.RunStage{model.StageRollingUp, model.StageForecasting, model.StageNotifying, model.StageDone}
	if !reflect.DeepEqual(report.Stages, want) {
		t.Errorf("expected stages %v, got %v", want, report.Stages)
	}
	wantPairs := []string{
		"Northeast/total_orders", "Northeast/total_revenue",
		"West/total_orders", "West/total_revenue",
	}
	if !reflect.DeepEqual(forecasts.pairs, wantPairs) {
		t.Errorf("expected region-major iteration %v, got %v", wantPairs, forecasts.pairs)
	}
	if report.RolledUp != 3 {
		t.Errorf("expected rolled up count 3, got %d", report.RolledUp)
	}
	if notifier.count(model.NotificationSummary) != 1 {
		t.Errorf("expected exactly one summary, got %d", notifier.count(model.NotificationSummary))
	}
	if report.Failed() {
		t.Error("clean run must not fail")
	}
}

func TestPipeline_RollupFailureAborts(t *testing.T) {
	notifier := &recordingNotifier{}
	forecasts := &scriptedForecasts{}
	p := app.NewPipeline(&stubRollup{err: model.ErrStoreWrite}, forecasts, newNotices(notifier, model.PlausibilityBand{}),
		model.AllRegions, model.ForecastableMetrics, zap.NewNop())

	report := p.Run(context.Background(), app.RunOptions{})
	if report.Stage() != model.StageFailed {
		t.Fatalf("expected failed, got %s", report.Stage())
	}
	if !errors.Is(report.Err, model.ErrStoreWrite) {
		t.Errorf("expected ErrStoreWrite, got %v", report.Err)
	}
	if len(forecasts.pairs) != 0 {
		t.Error("no pair may be forecast after a failed rollup")
	}
	if len(notifier.sent) != 0 {
		t.Error("an aborted run sends no notifications")
	}
	if !report.Failed() {
		t.Error("aborted run must report failure")
	}
}

func TestPipeline_PairIsolation(t *testing.T) {
	notifier := &recordingNotifier{}
	forecasts := &scriptedForecasts{status: map[model.Region]model.PairStatus{
		model.RegionMidwest: model.PairStoreFailed,
		model.RegionSouth:   model.PairSkipped,
	}}
	p := app.NewPipeline(&stubRollup{}, forecasts, newNotices(notifier, model.PlausibilityBand{}),
		model.AllRegions, model.ForecastableMetrics, zap.NewNop())

	report := p.Run(context.Background(), app.RunOptions{})
	if report.Stage() != model.StageDone {
		t.Fatalf("a pair failure must not abort the run, got %s", report.Stage())
	}
	if len(report.Outcomes) != 8 {
		t.Fatalf("expected 8 outcomes, got %d", len(report.Outcomes))
	}
	if got := report.Count(model.PairSucceeded); got != 4 {
		t.Errorf("expected Northeast and West to succeed (4 pairs), got %d", got)
	}
	if notifier.count(model.NotificationFailure) != 2 {
		t.Errorf("expected 2 failure notifications, got %d", notifier.count(model.NotificationFailure))
	}
	if !report.Failed() {
		t.Error("a store failure must make the run exit non-zero")
	}
}

func TestPipeline_ForecastOnly(t *testing.T) {
	rollup := &stubRollup{}
	p := app.NewPipeline(rollup, &scriptedForecasts{}, newNotices(&recordingNotifier{}, model.PlausibilityBand{}),
		[]model.Region{model.RegionWest}, model.ForecastableMetrics, zap.NewNop())

	report := p.Run(context.Background(), app.RunOptions{SkipRollup: true})
	if rollup.calls != 0 {
		t.Error("rollup must be skipped")
	}
	if report.Stages[0] != model.StageForecasting {
		t.Errorf("expected to start at forecasting, got %v", report.Stages)
	}
}

// seedWestOrders writes one 10.00 order per unit of the daily count.
func seedWestOrders(t *testing.T, repo *storage.PostgresRepository, start time.Time, counts []int) {
	t.Helper()
	var orders []*model.Order
	for d, n := range counts {
		day := start.AddDate(0, 0, d)
		for i := 0; i < n; i++ {
			price := decimal.RequireFromString("10.00")
			orders = append(orders, &model.Order{
				ID:         fmt.Sprintf("ORD-%s-%03d", day.Format("20060102"), i),
				Timestamp:  day.Add(time.Duration(i) * time.Minute),
				ProductID:  "SKU-001",
				Category:   "Electronics",
				UserID:     "USER-1",
				Region:     model.RegionWest,
				DeviceType: "mobile",
				Quantity:   1,
				UnitPrice:  price,
				TotalPrice: price,
			})
		}
	}
	if _, err := repo.InsertOrders(context.Background(), orders); err != nil {
		t.Fatalf("seed orders: %v", err)
	}
}

func TestPipeline_EndToEndWestExample(t *testing.T) {
	ctx := context.Background()
	db, err := storage.OpenDatabase(storage.DatabaseConfig{
		Driver: storage.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "e2e.db"),
	}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	repo := storage.NewPostgresRepository(db)
	defer repo.Close()
	if err := repo.Migrate(ctx); err != nil {
		t.Fatal(err)
	}

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	seedWestOrders(t, repo, start, []int{50, 52, 49, 51, 53, 50, 48, 55, 52, 50, 51, 53})

	log := zap.NewNop()
	notifier := &recordingNotifier{}
	// A band that excludes ~51 daily orders flags every forecast date.
	notices := service.NewNotificationService(notifier, model.PlausibilityBand{Min: 60, Max: 5000}, log)
	forecaster := service.NewPairForecastService(service.ForecastDeps{
		Series:     repo,
		Store:      repo,
		Forecaster: forecasting.NewAdditiveForecaster(),
		Notices:    notices,
	}, service.ForecastSettings{}, log)
	rollup := service.NewDailyRollupService(repo, repo, nil, log)

	runAt := time.Date(2025, 3, 13, 2, 0, 0, 0, time.UTC)
	p := app.NewPipeline(rollup, forecaster, notices, model.AllRegions, model.ForecastableMetrics, log).
		WithClock(func() time.Time { return runAt })

	for run := 0; run < 2; run++ {
		report := p.Run(ctx, app.RunOptions{})
		if report.Stage() != model.StageDone {
			t.Fatalf("run %d: expected done, got %s (%v)", run, report.Stage(), report.Err)
		}
		if report.RolledUp != 12 {
			t.Errorf("run %d: expected 12 rollup rows, got %d", run, report.RolledUp)
		}
		// West has 12 days of history; every other region has none.
		if got := report.Count(model.PairSucceeded); got != 2 {
			t.Errorf("run %d: expected 2 succeeded pairs, got %d", run, got)
		}
		if got := report.Count(model.PairSkipped); got != 6 {
			t.Errorf("run %d: expected 6 skipped pairs, got %d", run, got)
		}
	}

	points, err := repo.ListForecasts(ctx, model.RegionWest, model.MetricOrderCount)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 7 {
		t.Fatalf("expected exactly 7 rows after two runs, got %d", len(points))
	}
	for i, pt := range points {
		want := time.Date(2025, 3, 13+i, 0, 0, 0, 0, time.UTC)
		if !pt.Date.Equal(want) {
			t.Errorf("row %d: expected %s, got %s", i, want.Format(time.DateOnly), pt.Date.Format(time.DateOnly))
		}
		if pt.Lower.GreaterThan(pt.Value) || pt.Value.GreaterThan(pt.Upper) {
			t.Errorf("row %d: bounds out of order %s <= %s <= %s", i, pt.Lower, pt.Value, pt.Upper)
		}
	}

	// 7 anomalies per run, revenue carries no band.
	if got := notifier.count(model.NotificationAnomaly); got != 14 {
		t.Errorf("expected 14 anomaly notifications over two runs, got %d", got)
	}
	if got := notifier.count(model.NotificationSummary); got != 2 {
		t.Errorf("expected one summary per run, got %d", got)
	}
	if got := notifier.count(model.NotificationFailure); got != 0 {
		t.Errorf("expected no failures, got %d", got)
	}
}
