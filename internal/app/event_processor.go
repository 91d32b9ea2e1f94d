package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"demandForecastApp/internal/app/dto"
	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/useCases"
)

// ErrContextCancelled is returned when the context is cancelled during processing
var ErrContextCancelled = errors.New("context cancelled during processing")

// EventProcessor stores orders arriving on a channel. It is used when no broker is
// configured, e.g. the simulator feeding orders in-process.
type EventProcessor struct {
	OrderCh  chan *dto.OrderDTO
	Ingestor useCases.OrderIngestor
	Dedup    Deduplicator
	log      *zap.Logger
}

func NewEventProcessor(orderCh chan *dto.OrderDTO, ingestor useCases.OrderIngestor, dedup Deduplicator, log *zap.Logger) *EventProcessor {
	return &EventProcessor{
		OrderCh:  orderCh,
		Ingestor: ingestor,
		Dedup:    dedup,
		log:      log.Named("events"),
	}
}

func (p *EventProcessor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case orderDto, ok := <-p.OrderCh:
			if !ok {
				return nil
			}
			if err := p.processOrder(ctx, orderDto); err != nil {
				if errors.Is(err, ErrContextCancelled) {
					p.log.Info("context cancelled, stopping event processor")
					return ctx.Err()
				}
				p.log.Warn("error processing order", zap.Error(err))
			}
		}
	}
}

func (p *EventProcessor) processOrder(ctx context.Context, orderDto *dto.OrderDTO) error {
	if ctx.Err() != nil {
		return ErrContextCancelled
	}
	if orderDto == nil {
		return nil
	}
	return ingestOnce(ctx, p.Dedup, p.Ingestor, orderDto.ToModel())
}

// ingestOnce stores an order unless the deduplicator has seen its id already.
func ingestOnce(ctx context.Context, dedup Deduplicator, ingestor useCases.OrderIngestor, order *model.Order) error {
	if dedup != nil {
		fresh, err := dedup.MarkSeen(ctx, order.ID)
		if err != nil {
			// The store ignores duplicates anyway.
			fresh = true
		}
		if !fresh {
			return nil
		}
	}
	if _, err := ingestor.IngestOrders(ctx, []*model.Order{order}); err != nil {
		if dedup != nil {
			_ = dedup.Forget(context.WithoutCancel(ctx), order.ID)
		}
		return err
	}
	return nil
}
