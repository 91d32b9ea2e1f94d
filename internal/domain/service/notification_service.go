package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/useCases"
)

// NotificationService builds operator notifications and hands them to a Notifier.
// Delivery is fire-and-forget: failures are logged and never retried.
type NotificationService struct {
	notifier useCases.Notifier
	band     model.PlausibilityBand
	log      *zap.Logger
}

func NewNotificationService(notifier useCases.Notifier, band model.PlausibilityBand, log *zap.Logger) *NotificationService {
	return &NotificationService{
		notifier: notifier,
		band:     band,
		log:      log.Named("notify"),
	}
}

// Band is the plausibility band used for anomaly checks.
func (s *NotificationService) Band() model.PlausibilityBand {
	return s.band
}

// Anomalies returns one anomaly notification per prediction outside the band.
// The check runs on the unrounded point estimate, before it is stored to cents.
// Metrics without a band never produce anomalies.
func (s *NotificationService) Anomalies(region model.Region, metric model.Metric, predictions []model.Prediction) []model.Notification {
	if !metric.Bounded() {
		return nil
	}
	var out []model.Notification
	for _, p := range predictions {
		if s.band.Contains(p.Point) {
			continue
		}
		out = append(out, model.Notification{
			Kind:    model.NotificationAnomaly,
			Subject: fmt.Sprintf("Anomaly Detected: %s forecast for %s", metric, region),
			Body: fmt.Sprintf("%s predicted on %s",
				decimal.NewFromFloat(p.Point).StringFixed(2), p.Date.Format(time.DateOnly)),
		})
	}
	return out
}

// Failure builds the notification sent when a pair could not be forecast or stored.
func (s *NotificationService) Failure(region model.Region, metric model.Metric, err error) model.Notification {
	return model.Notification{
		Kind:    model.NotificationFailure,
		Subject: fmt.Sprintf("Forecast Failed for %s - %s", region, metric),
		Body:    fmt.Sprintf("Exception:\n%v", err),
	}
}

// Summary lists every point produced by the run's succeeded pairs, grouped by
// region then metric in outcome order.
func (s *NotificationService) Summary(runAt time.Time, outcomes []model.PairOutcome) model.Notification {
	var b strings.Builder

	var succeeded, skipped, failed int
	for _, o := range outcomes {
		switch o.Status {
		case model.PairSucceeded:
			succeeded++
		case model.PairSkipped:
			skipped++
		default:
			failed++
		}
	}
	fmt.Fprintf(&b, "Pairs: %d succeeded, %d skipped, %d failed\n", succeeded, skipped, failed)

	for _, o := range outcomes {
		if o.Status != model.PairSucceeded {
			continue
		}
		fmt.Fprintf(&b, "\n%s - %s:\n", o.Region, o.Metric)
		for _, p := range o.Points {
			fmt.Fprintf(&b, "%s -> %s (CI: %s - %s)\n",
				p.Date.Format(time.DateOnly),
				p.Value.StringFixed(2),
				p.Lower.StringFixed(2),
				p.Upper.StringFixed(2),
			)
		}
	}
	if succeeded == 0 {
		b.WriteString("\nNo forecasts were produced in this run.\n")
	}

	return model.Notification{
		Kind:    model.NotificationSummary,
		Subject: fmt.Sprintf("Forecast Complete - %s", runAt.UTC().Format(time.DateOnly)),
		Body:    b.String(),
	}
}

// Dispatch sends notifications in order and returns how many were delivered.
func (s *NotificationService) Dispatch(ctx context.Context, notifications ...model.Notification) int {
	delivered := 0
	for _, n := range notifications {
		if s.notifier == nil {
			s.log.Info("notification (no notifier configured)",
				zap.String("kind", string(n.Kind)),
				zap.String("subject", n.Subject),
			)
			continue
		}
		if err := s.notifier.Send(ctx, n); err != nil {
			s.log.Warn("notification not delivered",
				zap.String("kind", string(n.Kind)),
				zap.String("subject", n.Subject),
				zap.Error(fmt.Errorf("%w: %v", model.ErrNotificationDelivery, err)),
			)
			continue
		}
		delivered++
	}
	return delivered
}
