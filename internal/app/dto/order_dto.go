package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"demandForecastApp/internal/domain/model"
)

// OrderDTO is the wire format of an order on the stream.
type OrderDTO struct {
	OrderID      string          `json:"order_id"`
	Timestamp    time.Time       `json:"timestamp"`
	ProductID    string          `json:"product_id"`
	Category     string          `json:"category"`
	UserID       string          `json:"user_id"`
	UserSegment  string          `json:"user_segment"`
	Region       string          `json:"region"`
	DeviceType   string          `json:"device_type"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	PromoApplied bool            `json:"promo_applied"`
	Hour         int             `json:"hour"`
}

// ToModel converts an OrderDTO to a domain model. A missing total is computed from
// quantity and unit price.
func (dto *OrderDTO) ToModel() *model.Order {
	total := dto.TotalPrice
	if total.IsZero() {
		total = model.OrderTotal(dto.Quantity, dto.UnitPrice)
	}
	return &model.Order{
		ID:           dto.OrderID,
		Timestamp:    dto.Timestamp.UTC(),
		ProductID:    dto.ProductID,
		Category:     dto.Category,
		UserID:       dto.UserID,
		UserSegment:  dto.UserSegment,
		Region:       model.Region(dto.Region),
		DeviceType:   dto.DeviceType,
		Quantity:     dto.Quantity,
		UnitPrice:    dto.UnitPrice,
		TotalPrice:   total,
		PromoApplied: dto.PromoApplied,
	}
}

// FromModel creates an OrderDTO from a domain model
func FromModel(o *model.Order) *OrderDTO {
	return &OrderDTO{
		OrderID:      o.ID,
		Timestamp:    o.Timestamp.UTC(),
		ProductID:    o.ProductID,
		Category:     o.Category,
		UserID:       o.UserID,
		UserSegment:  o.UserSegment,
		Region:       string(o.Region),
		DeviceType:   o.DeviceType,
		Quantity:     o.Quantity,
		UnitPrice:    o.UnitPrice,
		TotalPrice:   o.TotalPrice,
		PromoApplied: o.PromoApplied,
		Hour:         o.Hour(),
	}
}

func FromModels(orders []*model.Order) []*OrderDTO {
	dtos := make([]*OrderDTO, len(orders))
	for i, o := range orders {
		dtos[i] = FromModel(o)
	}
	return dtos
}
