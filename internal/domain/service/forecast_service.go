package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/repository"
	"demandForecastApp/internal/domain/useCases"
)

const (
	DefaultMinHistory = 10
	DefaultHorizon    = 7
	DefaultFitTimeout = 30 * time.Second
)

// ForecastSettings tunes the forecast stage.
type ForecastSettings struct {
	MinHistory int
	Horizon    int
	FitTimeout time.Duration
}

func (s ForecastSettings) withDefaults() ForecastSettings {
	if s.MinHistory <= 0 {
		s.MinHistory = DefaultMinHistory
	}
	if s.Horizon <= 0 {
		s.Horizon = DefaultHorizon
	}
	if s.FitTimeout <= 0 {
		s.FitTimeout = DefaultFitTimeout
	}
	return s
}

// ForecastDeps groups the collaborators of the forecast stage. Cache and Archive
// are optional.
type ForecastDeps struct {
	Series     repository.DailyMetricStore
	Store      repository.ForecastStore
	Cache      repository.ForecastCache
	Archive    repository.MetricsArchive
	Forecaster useCases.Forecaster
	Notices    *NotificationService
}

// PairForecastService fits, stores and checks forecasts one (region, metric) pair
// at a time. A pair never affects another: every problem ends up in its outcome.
type PairForecastService struct {
	deps     ForecastDeps
	settings ForecastSettings
	log      *zap.Logger
}

func NewPairForecastService(deps ForecastDeps, settings ForecastSettings, log *zap.Logger) *PairForecastService {
	return &PairForecastService{
		deps:     deps,
		settings: settings.withDefaults(),
		log:      log.Named("forecast"),
	}
}

var _ useCases.ForecastService = (*PairForecastService)(nil)

// Settings returns the effective settings.
func (s *PairForecastService) Settings() ForecastSettings {
	return s.settings
}

func (s *PairForecastService) ForecastPair(ctx context.Context, region model.Region, metric model.Metric, runAt time.Time) model.PairOutcome {
	ctx, span := otel.Tracer("demandForecastApp/forecast").Start(ctx, "forecast.pair")
	defer span.End()
	span.SetAttributes(
		attribute.String("region", string(region)),
		attribute.String("metric", metric.String()),
	)

	out := s.forecastPair(ctx, region, metric, runAt)
	span.SetAttributes(
		attribute.String("status", string(out.Status)),
		attribute.Int("history", out.HistoryLen),
	)
	if out.Err != nil && out.Status != model.PairSkipped {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
	}
	return out
}

func (s *PairForecastService) forecastPair(ctx context.Context, region model.Region, metric model.Metric, runAt time.Time) model.PairOutcome {
	out := model.PairOutcome{Region: region, Metric: metric}
	log := s.log.With(zap.String("region", string(region)), zap.String("metric", metric.String()))

	if !metric.Forecastable() {
		return s.fail(out, model.PairFitFailed,
			fmt.Errorf("%w: metric %s is derived and cannot be fit", model.ErrFitFailure, metric), log)
	}

	series, err := s.deps.Series.ReadSeries(ctx, region, metric)
	if err != nil {
		return s.fail(out, model.PairReadFailed, fmt.Errorf("%w: read series: %w", model.ErrStoreRead, err), log)
	}
	out.HistoryLen = len(series)

	if len(series) < s.settings.MinHistory {
		out.Status = model.PairSkipped
		out.Err = fmt.Errorf("%w: %d points, need %d", model.ErrInsufficientHistory, len(series), s.settings.MinHistory)
		log.Info("skipping pair", zap.Int("history", len(series)), zap.Int("min_history", s.settings.MinHistory))
		return out
	}

	fitted, err := s.fit(ctx, series)
	if err != nil {
		status := model.PairFitFailed
		if errors.Is(err, model.ErrFitTimeout) {
			status = model.PairFitTimedOut
		}
		return s.fail(out, status, err, log)
	}

	predictions := fitted.Predict(s.settings.Horizon)
	points := make([]*model.ForecastPoint, 0, len(predictions))
	for _, p := range predictions {
		points = append(points, model.NewForecastPoint(region, metric, p, runAt))
	}

	if err := s.deps.Store.UpsertForecasts(ctx, points); err != nil {
		return s.fail(out, model.PairStoreFailed, fmt.Errorf("upsert forecasts: %w", err), log)
	}

	out.Status = model.PairSucceeded
	out.Points = points
	if s.deps.Notices != nil {
		out.Notifications = s.deps.Notices.Anomalies(region, metric, predictions)
	}
	log.Info("forecast stored",
		zap.Int("history", len(series)),
		zap.Int("points", len(points)),
		zap.Int("anomalies", len(out.Notifications)),
	)

	s.mirror(ctx, region, metric, points, log)
	return out
}

// fit runs the forecaster under the configured timeout. A fit that overruns is
// abandoned; its goroutine is left to observe the cancelled context.
func (s *PairForecastService) fit(ctx context.Context, series []model.SeriesPoint) (useCases.FittedModel, error) {
	fitCtx, cancel := context.WithTimeout(ctx, s.settings.FitTimeout)
	defer cancel()

	type result struct {
		m   useCases.FittedModel
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		m, err := s.deps.Forecaster.Fit(fitCtx, series)
		done <- result{m: m, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, fmt.Errorf("%w after %s", model.ErrFitTimeout, s.settings.FitTimeout)
			}
			return nil, fmt.Errorf("%w: %v", model.ErrFitFailure, res.err)
		}
		if res.m == nil {
			return nil, fmt.Errorf("%w: forecaster returned no model", model.ErrFitFailure)
		}
		return res.m, nil
	case <-fitCtx.Done():
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrFitFailure, ctx.Err())
		}
		return nil, fmt.Errorf("%w after %s", model.ErrFitTimeout, s.settings.FitTimeout)
	}
}

// fail records a failed pair together with its failure notification.
func (s *PairForecastService) fail(out model.PairOutcome, status model.PairStatus, err error, log *zap.Logger) model.PairOutcome {
	out.Status = status
	out.Err = err
	if s.deps.Notices != nil {
		out.Notifications = append(out.Notifications, s.deps.Notices.Failure(out.Region, out.Metric, err))
	}
	log.Error("forecast failed", zap.String("status", string(status)), zap.Error(err))
	return out
}

// mirror pushes stored points to the cache and archive. Both are best effort.
func (s *PairForecastService) mirror(ctx context.Context, region model.Region, metric model.Metric, points []*model.ForecastPoint, log *zap.Logger) {
	if s.deps.Cache != nil {
		if err := s.deps.Cache.SaveForecasts(ctx, region, metric, points); err != nil {
			log.Warn("failed to cache forecasts", zap.Error(err))
		}
	}
	if s.deps.Archive != nil {
		if err := s.deps.Archive.ArchiveForecasts(ctx, points); err != nil {
			log.Warn("failed to archive forecasts", zap.Error(err))
		}
	}
}
