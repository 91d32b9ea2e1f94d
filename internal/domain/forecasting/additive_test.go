package forecasting_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"demandForecastApp/internal/domain/forecasting"
	"demandForecastApp/internal/domain/model"
)

func dailySeries(start time.Time, values ...float64) []model.SeriesPoint {
	series := make([]model.SeriesPoint, len(values))
	for i, v := range values {
		series[i] = model.SeriesPoint{Date: start.AddDate(0, 0, i), Value: v}
	}
	return series
}

func TestAdditiveForecaster_WestExample(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	series := dailySeries(start, 50, 52, 49, 51, 53, 50, 48, 55, 52, 50, 51, 53)

	fitted, err := forecasting.NewAdditiveForecaster().Fit(context.Background(), series)
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}

	preds := fitted.Predict(7)
	if len(preds) != 7 {
		t.Fatalf("expected 7 predictions, got %d", len(preds))
	}

	last := series[len(series)-1].Date
	for i, p := range preds {
		want := last.AddDate(0, 0, i+1)
		if !p.Date.Equal(want) {
			t.Errorf("prediction %d: expected date %s, got %s", i, want.Format(time.DateOnly), p.Date.Format(time.DateOnly))
		}
		if !(p.Lower <= p.Point && p.Point <= p.Upper) {
			t.Errorf("prediction %d: bounds out of order: %f <= %f <= %f", i, p.Lower, p.Point, p.Upper)
		}
		if p.Point < 40 || p.Point > 65 {
			t.Errorf("prediction %d: implausible point %f for a flat series around 51", i, p.Point)
		}
	}

	// Intervals widen as the horizon grows.
	if preds[6].Upper-preds[6].Lower < preds[0].Upper-preds[0].Lower {
		t.Errorf("expected interval to widen with horizon")
	}
}

func TestAdditiveForecaster_LinearTrend(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 10)
	for i := range values {
		values[i] = 100 + 10*float64(i)
	}

	fitted, err := forecasting.NewAdditiveForecaster().Fit(context.Background(), dailySeries(start, values...))
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	preds := fitted.Predict(3)
	for i, p := range preds {
		want := 100 + 10*float64(10+i)
		if math.Abs(p.Point-want) > 1e-6 {
			t.Errorf("prediction %d: expected %f, got %f", i, want, p.Point)
		}
		// A perfect fit has no residual spread.
		if math.Abs(p.Upper-p.Lower) > 1e-6 {
			t.Errorf("prediction %d: expected zero-width interval, got [%f, %f]", i, p.Lower, p.Upper)
		}
	}
}

func TestAdditiveForecaster_WeeklySeasonality(t *testing.T) {
	// Weekends run at 300, weekdays at 500, for four weeks.
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC) // Monday
	series := make([]model.SeriesPoint, 28)
	for i := range series {
		d := start.AddDate(0, 0, i)
		v := 500.0
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			v = 300
		}
		series[i] = model.SeriesPoint{Date: d, Value: v}
	}

	fitted, err := forecasting.NewAdditiveForecaster().Fit(context.Background(), series)
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	for _, p := range fitted.Predict(7) {
		want := 500.0
		if p.Date.Weekday() == time.Saturday || p.Date.Weekday() == time.Sunday {
			want = 300
		}
		if math.Abs(p.Point-want) > 1e-6 {
			t.Errorf("%s: expected %f, got %f", p.Date.Weekday(), want, p.Point)
		}
	}
}

func TestAdditiveForecaster_InvalidSeries(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := forecasting.NewAdditiveForecaster()

	cases := []struct {
		name   string
		series []model.SeriesPoint
		want   error
	}{
		{name: "single point", series: dailySeries(start, 1), want: forecasting.ErrTooFewPoints},
		{name: "nan value", series: dailySeries(start, 1, math.NaN(), 3), want: forecasting.ErrNonFinite},
		{name: "duplicate day", series: []model.SeriesPoint{
			{Date: start, Value: 1},
			{Date: start, Value: 2},
		}, want: forecasting.ErrUnorderedDays},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.Fit(context.Background(), tc.series)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAdditiveForecaster_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := forecasting.NewAdditiveForecaster().Fit(ctx, dailySeries(start, 1, 2, 3)); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
