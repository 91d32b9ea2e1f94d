// Package forecasting fits additive trend + weekly seasonality models to daily series.
package forecasting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/useCases"
)

const (
	day = 24 * time.Hour

	// z-score of an 80% two-sided interval.
	defaultIntervalZ = 1.2816

	// Weekly seasonality needs every weekday observed at least twice.
	minWeeklyPoints = 14
)

var (
	ErrTooFewPoints  = errors.New("at least two observations are required")
	ErrNonFinite     = errors.New("series contains a non-finite value")
	ErrUnorderedDays = errors.New("series dates must be strictly increasing")
)

// AdditiveForecaster fits y(t) = a + b*t + s(weekday) + e by least squares.
type AdditiveForecaster struct {
	intervalZ float64
	weekly    bool
}

// NewAdditiveForecaster returns a forecaster with an 80% prediction interval and
// weekly seasonality enabled when the series is long enough.
func NewAdditiveForecaster() *AdditiveForecaster {
	return &AdditiveForecaster{intervalZ: defaultIntervalZ, weekly: true}
}

// WithIntervalZ overrides the z-score used for the interval half-width.
func (f *AdditiveForecaster) WithIntervalZ(z float64) *AdditiveForecaster {
	f.intervalZ = z
	return f
}

// WithoutSeasonality disables the weekday terms.
func (f *AdditiveForecaster) WithoutSeasonality() *AdditiveForecaster {
	f.weekly = false
	return f
}

var _ useCases.Forecaster = (*AdditiveForecaster)(nil)

// Fit estimates the model. Any validation or numerical problem is returned as an error.
func (f *AdditiveForecaster) Fit(ctx context.Context, series []model.SeriesPoint) (useCases.FittedModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(series)
	if n < 2 {
		return nil, ErrTooFewPoints
	}

	origin := model.DateOf(series[0].Date)
	t := make([]float64, n)
	y := make([]float64, n)
	for i, p := range series {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return nil, fmt.Errorf("%w at %s", ErrNonFinite, p.Date.Format(time.DateOnly))
		}
		t[i] = model.DateOf(p.Date).Sub(origin).Hours() / 24
		if i > 0 && t[i] <= t[i-1] {
			return nil, fmt.Errorf("%w: %s after %s", ErrUnorderedDays,
				p.Date.Format(time.DateOnly), series[i-1].Date.Format(time.DateOnly))
		}
		y[i] = p.Value
	}

	m := &additiveModel{
		origin:    origin,
		last:      model.DateOf(series[n-1].Date),
		n:         n,
		tMean:     stat.Mean(t, nil),
		intervalZ: f.intervalZ,
	}
	for _, ti := range t {
		d := ti - m.tMean
		m.sxx += d * d
	}

	fitted := false
	if f.weekly && n >= minWeeklyPoints && coversAllWeekdays(series) {
		fitted = m.fitWeekly(t, y, series) == nil
	}
	if !fitted {
		m.intercept, m.slope = stat.LinearRegression(t, y, nil, false)
		m.seasonal = [7]float64{}
		m.params = 2
	}

	residuals := make([]float64, n)
	for i := range t {
		residuals[i] = y[i] - m.at(t[i], model.DateOf(series[i].Date).Weekday())
	}
	m.sigma = residualSigma(residuals, m.params)

	if math.IsNaN(m.intercept) || math.IsNaN(m.slope) || math.IsNaN(m.sigma) {
		return nil, errors.New("model coefficients are not finite")
	}
	return m, nil
}

type additiveModel struct {
	origin    time.Time
	last      time.Time
	n         int
	params    int
	intercept float64
	slope     float64
	seasonal  [7]float64
	sigma     float64
	tMean     float64
	sxx       float64
	intervalZ float64
}

// fitWeekly solves the dummy-coded regression [1, t, mon..sat] with Sunday as baseline.
func (m *additiveModel) fitWeekly(t, y []float64, series []model.SeriesPoint) error {
	const cols = 8
	n := len(t)
	x := mat.NewDense(n, cols, nil)
	for i := range t {
		x.Set(i, 0, 1)
		x.Set(i, 1, t[i])
		if wd := model.DateOf(series[i].Date).Weekday(); wd != time.Sunday {
			x.Set(i, 1+int(wd), 1)
		}
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, mat.NewVecDense(n, y)); err != nil {
		return err
	}
	coef := beta.RawVector().Data
	if floats.HasNaN(coef) {
		return errors.New("weekly regression produced NaN coefficients")
	}

	m.intercept = coef[0]
	m.slope = coef[1]
	m.seasonal = [7]float64{}
	for wd := time.Monday; wd <= time.Saturday; wd++ {
		m.seasonal[wd] = coef[1+int(wd)]
	}
	m.params = cols
	return nil
}

func (m *additiveModel) at(t float64, wd time.Weekday) float64 {
	return m.intercept + m.slope*t + m.seasonal[wd]
}

// Predict extends the model one calendar day at a time past the last observation.
// The interval widens with distance from the centre of the training window.
func (m *additiveModel) Predict(horizon int) []model.Prediction {
	out := make([]model.Prediction, 0, horizon)
	lastT := m.last.Sub(m.origin).Hours() / 24
	for k := 1; k <= horizon; k++ {
		date := m.last.Add(time.Duration(k) * day)
		t := lastT + float64(k)
		point := m.at(t, date.Weekday())

		leverage := 1.0 / float64(m.n)
		if m.sxx > 0 {
			d := t - m.tMean
			leverage += d * d / m.sxx
		}
		half := m.intervalZ * m.sigma * math.Sqrt(1+leverage)

		out = append(out, model.Prediction{
			Date:  date,
			Point: point,
			Lower: point - half,
			Upper: point + half,
		})
	}
	return out
}

func residualSigma(residuals []float64, params int) float64 {
	dof := len(residuals) - params
	if dof <= 0 {
		return stat.PopStdDev(residuals, nil)
	}
	return math.Sqrt(floats.Dot(residuals, residuals) / float64(dof))
}

func coversAllWeekdays(series []model.SeriesPoint) bool {
	var seen [7]int
	for _, p := range series {
		seen[model.DateOf(p.Date).Weekday()]++
	}
	for _, c := range seen {
		if c < 2 {
			return false
		}
	}
	return true
}
