package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/useCases"
)

// memOrderStore is an in-memory OrderStore.
type memOrderStore struct {
	mu     sync.Mutex
	orders map[string]*model.Order
	ids    []string
}

func newMemOrderStore(orders ...*model.Order) *memOrderStore {
	s := &memOrderStore{orders: make(map[string]*model.Order)}
	_, _ = s.InsertOrders(context.Background(), orders)
	return s
}

func (s *memOrderStore) InsertOrders(_ context.Context, orders []*model.Order) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, o := range orders {
		if _, ok := s.orders[o.ID]; ok {
			continue
		}
		s.orders[o.ID] = o
		s.ids = append(s.ids, o.ID)
		n++
	}
	return n, nil
}

func (s *memOrderStore) ScanOrders(_ context.Context, from, to *time.Time, fn func([]*model.Order) error) error {
	s.mu.Lock()
	batch := make([]*model.Order, 0, len(s.ids))
	for _, id := range s.ids {
		o := s.orders[id]
		if from != nil && o.Timestamp.Before(*from) {
			continue
		}
		if to != nil && !o.Timestamp.Before(*to) {
			continue
		}
		batch = append(batch, o)
	}
	s.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	return fn(batch)
}

// memMetricStore is an in-memory DailyMetricStore.
type memMetricStore struct {
	mu        sync.Mutex
	rows      map[string]*model.DailyMetric
	series    map[model.Region][]model.SeriesPoint
	upsertErr error
	readErr   error
	upserts   int
}

func newMemMetricStore() *memMetricStore {
	return &memMetricStore{
		rows:   make(map[string]*model.DailyMetric),
		series: make(map[model.Region][]model.SeriesPoint),
	}
}

func metricKey(date time.Time, region model.Region) string {
	return date.Format(time.DateOnly) + "/" + string(region)
}

func (s *memMetricStore) UpsertDailyMetrics(_ context.Context, metrics []*model.DailyMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts++
	for _, m := range metrics {
		s.rows[metricKey(m.Date, m.Region)] = m
	}
	return nil
}

func (s *memMetricStore) ReadSeries(_ context.Context, region model.Region, metric model.Metric) ([]model.SeriesPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	if pts, ok := s.series[region]; ok {
		return pts, nil
	}
	var out []model.SeriesPoint
	for _, m := range s.sortedRows(region) {
		v, _ := metric.Value(m).Float64()
		out = append(out, model.SeriesPoint{Date: m.Date, Value: v})
	}
	return out, nil
}

func (s *memMetricStore) ListDailyMetrics(_ context.Context, region model.Region) ([]*model.DailyMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedRows(region), nil
}

func (s *memMetricStore) sortedRows(region model.Region) []*model.DailyMetric {
	var out []*model.DailyMetric
	for _, m := range s.rows {
		if m.Region == region {
			out = append(out, m)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Date.Before(out[j-1].Date); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func (s *memMetricStore) get(date time.Time, region model.Region) *model.DailyMetric {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[metricKey(date, region)]
}

// memForecastStore is an in-memory ForecastStore keyed by (region, metric, date).
type memForecastStore struct {
	mu        sync.Mutex
	rows      map[string]*model.ForecastPoint
	failFor   map[model.Region]error
	listCalls int
}

func newMemForecastStore() *memForecastStore {
	return &memForecastStore{
		rows:    make(map[string]*model.ForecastPoint),
		failFor: make(map[model.Region]error),
	}
}

func forecastKey(p *model.ForecastPoint) string {
	return string(p.Region) + "/" + p.Metric.String() + "/" + p.Date.Format(time.DateOnly)
}

func (s *memForecastStore) UpsertForecasts(_ context.Context, points []*model.ForecastPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(points) > 0 {
		if err := s.failFor[points[0].Region]; err != nil {
			return err
		}
	}
	for _, p := range points {
		s.rows[forecastKey(p)] = p
	}
	return nil
}

func (s *memForecastStore) ListForecasts(_ context.Context, region model.Region, metric model.Metric) ([]*model.ForecastPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	var latest time.Time
	for _, p := range s.rows {
		if p.Region == region && p.Metric == metric && p.CreatedAt.After(latest) {
			latest = p.CreatedAt
		}
	}
	var out []*model.ForecastPoint
	for _, p := range s.rows {
		if p.Region == region && p.Metric == metric && p.CreatedAt.Equal(latest) {
			out = append(out, p)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Date.Before(out[j-1].Date); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (s *memForecastStore) count(region model.Region, metric model.Metric) int {
	pts, _ := s.ListForecasts(context.Background(), region, metric)
	return len(pts)
}

// memCache is an in-memory ForecastCache.
type memCache struct {
	mu     sync.Mutex
	points map[string][]*model.ForecastPoint
	err    error
}

func newMemCache() *memCache {
	return &memCache{points: make(map[string][]*model.ForecastPoint)}
}

func (c *memCache) SaveForecasts(_ context.Context, region model.Region, metric model.Metric, points []*model.ForecastPoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.points[string(region)+"/"+metric.String()] = points
	return nil
}

func (c *memCache) GetForecasts(_ context.Context, region model.Region, metric model.Metric) ([]*model.ForecastPoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.points[string(region)+"/"+metric.String()], nil
}

// memArchive records archived rows and can be told to fail.
type memArchive struct {
	mu        sync.Mutex
	metrics   []*model.DailyMetric
	forecasts []*model.ForecastPoint
	err       error
}

func (a *memArchive) ArchiveDailyMetrics(_ context.Context, metrics []*model.DailyMetric) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.metrics = append(a.metrics, metrics...)
	return nil
}

func (a *memArchive) ArchiveForecasts(_ context.Context, points []*model.ForecastPoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.forecasts = append(a.forecasts, points...)
	return nil
}

// recordingNotifier keeps every notification it was asked to send.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, msg model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) kinds() []model.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.NotificationKind, len(n.sent))
	for i, s := range n.sent {
		out[i] = s.Kind
	}
	return out
}

// stubForecaster returns a fixed prediction path, an error, or blocks until the
// context is done.
type stubForecaster struct {
	values []float64
	spread float64
	err    error
	block  bool
}

func (f *stubForecaster) Fit(ctx context.Context, series []model.SeriesPoint) (useCases.FittedModel, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &stubModel{last: series[len(series)-1].Date, values: f.values, spread: f.spread}, nil
}

type stubModel struct {
	last   time.Time
	values []float64
	spread float64
}

func (m *stubModel) Predict(horizon int) []model.Prediction {
	out := make([]model.Prediction, horizon)
	for i := range out {
		v := m.values[i%len(m.values)]
		out[i] = model.Prediction{
			Date:  m.last.AddDate(0, 0, i+1),
			Point: v,
			Lower: v - m.spread,
			Upper: v + m.spread,
		}
	}
	return out
}

var errBoom = errors.New("boom")

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func flatSeries(start time.Time, n int, v float64) []model.SeriesPoint {
	out := make([]model.SeriesPoint, n)
	for i := range out {
		out[i] = model.SeriesPoint{Date: start.AddDate(0, 0, i), Value: v}
	}
	return out
}
