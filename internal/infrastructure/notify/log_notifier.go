package notify

import (
	"context"

	"go.uber.org/zap"

	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/useCases"
)

// LogNotifier writes notifications to the log. Used when email is not configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notifier")}
}

var _ useCases.Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) Send(_ context.Context, msg model.Notification) error {
	level := zap.InfoLevel
	if msg.Kind != model.NotificationSummary {
		level = zap.WarnLevel
	}
	n.log.Log(level, msg.Subject,
		zap.String("kind", string(msg.Kind)),
		zap.String("body", msg.Body),
	)
	return nil
}
