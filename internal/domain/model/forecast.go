package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Prediction is a raw model output for one future date.
type Prediction struct {
	Date  time.Time
	Point float64
	Lower float64
	Upper float64
}

// ForecastPoint is a stored forecast keyed by (region, metric, date).
type ForecastPoint struct {
	Region    Region          `json:"region"`
	Metric    Metric          `json:"metric"`
	Date      time.Time       `json:"forecast_date"`
	Value     decimal.Decimal `json:"forecast_value"`
	Lower     decimal.Decimal `json:"lower_bound"`
	Upper     decimal.Decimal `json:"upper_bound"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewForecastPoint rounds a prediction to cents and keeps lower <= value <= upper
// after rounding.
func NewForecastPoint(region Region, metric Metric, p Prediction, createdAt time.Time) *ForecastPoint {
	value := decimal.NewFromFloat(p.Point).Round(2)
	lower := decimal.Min(decimal.NewFromFloat(p.Lower).Round(2), value)
	upper := decimal.Max(decimal.NewFromFloat(p.Upper).Round(2), value)
	return &ForecastPoint{
		Region:    region,
		Metric:    metric,
		Date:      DateOf(p.Date),
		Value:     value,
		Lower:     lower,
		Upper:     upper,
		CreatedAt: createdAt,
	}
}

// DeriveAverageOrderValue divides revenue forecasts by order-count forecasts for
// dates present in both. Dates missing on either side, or with a non-positive
// order forecast, are dropped.
func DeriveAverageOrderValue(revenue, orders []*ForecastPoint) []*ForecastPoint {
	byDate := make(map[time.Time]*ForecastPoint, len(orders))
	for _, o := range orders {
		byDate[DateOf(o.Date)] = o
	}

	out := make([]*ForecastPoint, 0, len(revenue))
	for _, r := range revenue {
		o, ok := byDate[DateOf(r.Date)]
		if !ok || !o.Value.IsPositive() {
			continue
		}
		value := r.Value.Div(o.Value).Round(2)
		lower, upper := value, value
		if o.Upper.IsPositive() {
			lower = decimal.Min(r.Lower.Div(o.Upper).Round(2), value)
		}
		if o.Lower.IsPositive() {
			upper = decimal.Max(r.Upper.Div(o.Lower).Round(2), value)
		}
		createdAt := r.CreatedAt
		if o.CreatedAt.After(createdAt) {
			createdAt = o.CreatedAt
		}
		out = append(out, &ForecastPoint{
			Region:    r.Region,
			Metric:    MetricAverageOrderValue,
			Date:      DateOf(r.Date),
			Value:     value,
			Lower:     lower,
			Upper:     upper,
			CreatedAt: createdAt,
		})
	}
	return out
}

// PlausibilityBand is the static range a bounded metric's forecasts are expected
// to fall in. Values strictly below Min or strictly above Max are anomalies.
type PlausibilityBand struct {
	Min float64
	Max float64
}

// Contains reports whether v lies within the band.
func (b PlausibilityBand) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}
