package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/useCases"
	"demandForecastApp/internal/infrastructure/queue"
)

// KafkaEventProcessor stores orders consumed from Kafka and acknowledges each one
// after it has been written, so a crash re-delivers instead of losing orders.
// Run stops at the first order the store rejects: the order stays unacknowledged
// and its partition's committed offset never moves past it.
type KafkaEventProcessor struct {
	Consumer queue.OrderConsumer
	Ingestor useCases.OrderIngestor
	Dedup    Deduplicator
	log      *zap.Logger
}

func NewKafkaEventProcessor(consumer queue.OrderConsumer, ingestor useCases.OrderIngestor, dedup Deduplicator, log *zap.Logger) *KafkaEventProcessor {
	return &KafkaEventProcessor{
		Consumer: consumer,
		Ingestor: ingestor,
		Dedup:    dedup,
		log:      log.Named("kafka-processor"),
	}
}

func (p *KafkaEventProcessor) Run(ctx context.Context) error {
	orderCh, err := p.Consumer.Subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case order, ok := <-orderCh:
			if !ok {
				return ctx.Err()
			}
			if order == nil {
				continue
			}
			if err := p.processOrder(ctx, order); err != nil {
				if errors.Is(err, ErrContextCancelled) {
					return ctx.Err()
				}
				p.log.Error("failed to store order", zap.String("order_id", order.ID), zap.Error(err))
				return fmt.Errorf("store order %s: %w", order.ID, err)
			}
			if err := p.Consumer.Commit(ctx, order); err != nil && ctx.Err() == nil {
				p.log.Warn("failed to commit order", zap.String("order_id", order.ID), zap.Error(err))
			}
		}
	}
}

func (p *KafkaEventProcessor) processOrder(ctx context.Context, order *model.Order) error {
	if ctx.Err() != nil {
		return ErrContextCancelled
	}
	return ingestOnce(ctx, p.Dedup, p.Ingestor, order)
}
