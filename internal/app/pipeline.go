package app

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/service"
	"demandForecastApp/internal/domain/useCases"
)

// RunOptions selects which stages a pipeline run executes.
type RunOptions struct {
	// Day limits the rollup to one UTC date. Nil re-aggregates the whole history.
	Day          *time.Time
	SkipRollup   bool
	SkipForecast bool
}

// Pipeline runs rollup, forecasting and notification strictly in sequence.
// A rollup failure aborts the run; every other problem is confined to the pair
// it happened in.
type Pipeline struct {
	rollup    useCases.RollupService
	forecasts useCases.ForecastService
	notices   *service.NotificationService
	regions   []model.Region
	metrics   []model.Metric
	now       func() time.Time
	log       *zap.Logger
}

func NewPipeline(
	rollup useCases.RollupService,
	forecasts useCases.ForecastService,
	notices *service.NotificationService,
	regions []model.Region,
	metrics []model.Metric,
	log *zap.Logger,
) *Pipeline {
	return &Pipeline{
		rollup:    rollup,
		forecasts: forecasts,
		notices:   notices,
		regions:   regions,
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.Named("pipeline"),
	}
}

// WithClock overrides the run clock.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Run executes one refresh. The returned report is never nil.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) *model.RunReport {
	ctx, span := otel.Tracer("demandForecastApp/pipeline").Start(ctx, "pipeline.run")
	defer span.End()

	runAt := p.now()
	report := &model.RunReport{StartedAt: runAt}
	defer func() {
		report.FinishedAt = p.now()
		span.SetAttributes(
			attribute.String("stage", string(report.Stage())),
			attribute.Int("pairs", len(report.Outcomes)),
		)
		if report.Err != nil {
			span.RecordError(report.Err)
			span.SetStatus(codes.Error, report.Err.Error())
		}
	}()

	if !opts.SkipRollup {
		report.Stages = append(report.Stages, model.StageRollingUp)
		n, err := p.rollup.Rollup(ctx, opts.Day)
		if err != nil {
			report.Err = fmt.Errorf("rollup: %w", err)
			report.Stages = append(report.Stages, model.StageFailed)
			p.log.Error("run aborted", zap.Error(report.Err))
			return report
		}
		report.RolledUp = n
	}

	if !opts.SkipForecast {
		report.Stages = append(report.Stages, model.StageForecasting)
		for _, region := range p.regions {
			for _, metric := range p.metrics {
				if err := ctx.Err(); err != nil {
					report.Err = fmt.Errorf("run cancelled: %w", err)
					report.Stages = append(report.Stages, model.StageFailed)
					return report
				}
				out := p.forecasts.ForecastPair(ctx, region, metric, runAt)
				report.Outcomes = append(report.Outcomes, out)
				p.notices.Dispatch(ctx, out.Notifications...)
			}
		}

		report.Stages = append(report.Stages, model.StageNotifying)
		p.notices.Dispatch(ctx, p.notices.Summary(runAt, report.Outcomes))
	}

	report.Stages = append(report.Stages, model.StageDone)
	p.log.Info("run finished",
		zap.Int("rolled_up", report.RolledUp),
		zap.Int("succeeded", report.Count(model.PairSucceeded)),
		zap.Int("skipped", report.Count(model.PairSkipped)),
		zap.Int("fit_failed", report.Count(model.PairFitFailed)+report.Count(model.PairFitTimedOut)),
		zap.Int("store_failed", report.Count(model.PairStoreFailed)),
		zap.Int("read_failed", report.Count(model.PairReadFailed)),
	)
	return report
}
