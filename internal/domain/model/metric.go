package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Metric enumerates the daily metrics the system tracks. Each variant carries its
// own storage column and tells whether it is fit directly or derived.
type Metric int

const (
	MetricOrderCount Metric = iota + 1
	MetricRevenue
	MetricAverageOrderValue
)

type metricDef struct {
	name         string
	forecastable bool
	bounded      bool
}

var metricDefs = map[Metric]metricDef{
	MetricOrderCount:        {name: "total_orders", forecastable: true, bounded: true},
	MetricRevenue:           {name: "total_revenue", forecastable: true},
	MetricAverageOrderValue: {name: "avg_order_value"},
}

// ForecastableMetrics are the metrics a model is fit against, in iteration order.
var ForecastableMetrics = []Metric{MetricOrderCount, MetricRevenue}

// String returns the metric's wire name, which is also its daily_metrics column.
func (m Metric) String() string {
	if def, ok := metricDefs[m]; ok {
		return def.name
	}
	return fmt.Sprintf("metric(%d)", int(m))
}

// Column is the daily_metrics column holding the metric's history.
func (m Metric) Column() string {
	return m.String()
}

// Forecastable reports whether a model is fit to this metric directly.
func (m Metric) Forecastable() bool {
	return metricDefs[m].forecastable
}

// Derived reports whether the metric is computed from other forecasts.
func (m Metric) Derived() bool {
	return m == MetricAverageOrderValue
}

// Bounded reports whether forecasts of the metric are checked against the
// plausibility band.
func (m Metric) Bounded() bool {
	return metricDefs[m].bounded
}

// Valid reports whether m is a known variant.
func (m Metric) Valid() bool {
	_, ok := metricDefs[m]
	return ok
}

// Value extracts the metric from a daily rollup row.
func (m Metric) Value(d *DailyMetric) decimal.Decimal {
	switch m {
	case MetricOrderCount:
		return decimal.NewFromInt(d.TotalOrders)
	case MetricRevenue:
		return d.TotalRevenue
	case MetricAverageOrderValue:
		return d.AvgOrderValue
	}
	return decimal.Zero
}

// ParseMetric resolves a wire name into a Metric.
func ParseMetric(s string) (Metric, error) {
	for m, def := range metricDefs {
		if def.name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown metric %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Metric) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid metric %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Metric) UnmarshalText(b []byte) error {
	parsed, err := ParseMetric(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// DailyMetric is the rollup of all orders sharing a UTC date and region.
type DailyMetric struct {
	Date          time.Time
	Region        Region
	TotalOrders   int64
	TotalRevenue  decimal.Decimal
	AvgOrderValue decimal.Decimal
	IsPromoDay    bool
}

// NewDailyMetric builds a rollup row from raw totals. The average is rounded to cents.
func NewDailyMetric(date time.Time, region Region, orders int64, revenue decimal.Decimal) *DailyMetric {
	day := DateOf(date)
	avg := decimal.Zero
	if orders > 0 {
		avg = revenue.Div(decimal.NewFromInt(orders)).Round(2)
	}
	return &DailyMetric{
		Date:          day,
		Region:        region,
		TotalOrders:   orders,
		TotalRevenue:  revenue.Round(2),
		AvgOrderValue: avg,
		IsPromoDay:    IsPromoDay(day),
	}
}

// IsPromoDay applies the fixed calendar rule: the 10th of every month is a sale day.
func IsPromoDay(date time.Time) bool {
	return date.Day() == 10
}

// DateOf truncates t to midnight of its UTC calendar date.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// SeriesPoint is one observation of a metric's daily history.
type SeriesPoint struct {
	Date  time.Time
	Value float64
}

// HistoryPoint is one day of a metric's history as shown on the dashboard.
type HistoryPoint struct {
	Date       time.Time       `json:"date"`
	Value      decimal.Decimal `json:"value"`
	IsPromoDay bool            `json:"is_promo_day"`
}
