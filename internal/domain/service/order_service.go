package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/repository"
	"demandForecastApp/internal/domain/useCases"
)

// OrderService validates incoming orders and stores them. Duplicate order ids are
// ignored by the store, so re-delivered events are harmless.
type OrderService struct {
	store repository.OrderStore
	log   *zap.Logger
}

func NewOrderService(store repository.OrderStore, log *zap.Logger) *OrderService {
	return &OrderService{store: store, log: log.Named("orders")}
}

var _ useCases.OrderIngestor = (*OrderService)(nil)

// IngestOrders stores the valid orders of a batch and returns how many rows were
// inserted. Invalid orders are logged and dropped.
func (s *OrderService) IngestOrders(ctx context.Context, orders []*model.Order) (int64, error) {
	valid := make([]*model.Order, 0, len(orders))
	for _, o := range orders {
		if err := o.Validate(); err != nil {
			s.log.Warn("dropping invalid order", zap.Error(err))
			continue
		}
		valid = append(valid, o)
	}
	if len(valid) == 0 {
		return 0, nil
	}

	inserted, err := s.store.InsertOrders(ctx, valid)
	if err != nil {
		return 0, fmt.Errorf("insert orders: %w", err)
	}
	if dup := int64(len(valid)) - inserted; dup > 0 {
		s.log.Debug("ignored duplicate orders", zap.Int64("duplicates", dup))
	}
	return inserted, nil
}

// OrderProducerUseCase publishes orders onto the order stream.
type OrderProducerUseCase struct {
	publisher useCases.OrderPublisher
	log       *zap.Logger
}

func NewOrderProducerUseCase(publisher useCases.OrderPublisher, log *zap.Logger) *OrderProducerUseCase {
	return &OrderProducerUseCase{publisher: publisher, log: log.Named("producer")}
}

// Execute publishes orders after validating them.
func (uc *OrderProducerUseCase) Execute(ctx context.Context, orders ...*model.Order) error {
	for _, o := range orders {
		if err := o.Validate(); err != nil {
			return err
		}
	}
	if err := uc.publisher.PublishOrders(ctx, orders); err != nil {
		uc.log.Error("failed to publish orders", zap.Int("count", len(orders)), zap.Error(err))
		return err
	}
	return nil
}
