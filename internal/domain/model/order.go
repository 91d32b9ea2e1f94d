package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Region is a sales region orders are attributed to.
type Region string

const (
	RegionNortheast Region = "Northeast"
	RegionMidwest   Region = "Midwest"
	RegionSouth     Region = "South"
	RegionWest      Region = "West"
)

// AllRegions lists the regions in their canonical iteration order.
var AllRegions = []Region{RegionNortheast, RegionMidwest, RegionSouth, RegionWest}

// ParseRegion validates a region name.
func ParseRegion(s string) (Region, error) {
	for _, r := range AllRegions {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown region %q", s)
}

// Order represents a single e-commerce transaction in the domain.
// Orders are immutable once ingested.
type Order struct {
	ID           string
	Timestamp    time.Time
	ProductID    string
	Category     string
	UserID       string
	UserSegment  string
	Region       Region
	DeviceType   string
	Quantity     int
	UnitPrice    decimal.Decimal
	TotalPrice   decimal.Decimal
	PromoApplied bool
}

// Hour is the UTC hour-of-day the order was placed.
func (o *Order) Hour() int {
	return o.Timestamp.UTC().Hour()
}

// Validate checks the invariants an order must satisfy before it is stored.
func (o *Order) Validate() error {
	if o == nil {
		return fmt.Errorf("order is nil")
	}
	if o.ID == "" {
		return fmt.Errorf("order id is empty")
	}
	if o.Timestamp.IsZero() {
		return fmt.Errorf("order %s: timestamp is zero", o.ID)
	}
	if _, err := ParseRegion(string(o.Region)); err != nil {
		return fmt.Errorf("order %s: %w", o.ID, err)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("order %s: quantity must be positive, got %d", o.ID, o.Quantity)
	}
	if !o.UnitPrice.IsPositive() {
		return fmt.Errorf("order %s: unit price must be positive", o.ID)
	}
	if !o.TotalPrice.IsPositive() {
		return fmt.Errorf("order %s: total price must be positive", o.ID)
	}
	if want := OrderTotal(o.Quantity, o.UnitPrice); !o.TotalPrice.Equal(want) {
		return fmt.Errorf("order %s: total price %s does not match %d x %s = %s",
			o.ID, o.TotalPrice, o.Quantity, o.UnitPrice, want)
	}
	return nil
}

// OrderTotal computes quantity x unit price rounded to cents.
func OrderTotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}
