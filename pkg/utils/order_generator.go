package utils

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"demandForecastApp/internal/domain/model"
)

// Daily volumes used by the simulator.
const (
	HolidayVolume = 100
	PromoVolume   = 1000
	WeekendVolume = 300
	WeekdayVolume = 500
)

var (
	productIDs  = []string{"SKU-001", "SKU-002", "SKU-003"}
	deviceTypes = []string{"mobile", "desktop", "tablet"}
)

// OrderGenerator produces synthetic orders for demos and backfills.
type OrderGenerator struct {
	rng     *rand.Rand
	regions []model.Region
}

// NewOrderGenerator creates a generator. A zero seed draws one at random.
func NewOrderGenerator(seed uint64) *OrderGenerator {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &OrderGenerator{
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		regions: model.AllRegions,
	}
}

// IsHoliday reports whether the date is New Year's Day, Independence Day or Christmas.
func IsHoliday(date time.Time) bool {
	_, m, d := date.UTC().Date()
	return (m == time.January && d == 1) || (m == time.July && d == 4) || (m == time.December && d == 25)
}

// DailyVolume is how many orders the simulator places on a date. Holidays win
// over promo days, which win over weekends.
func DailyVolume(date time.Time) int {
	switch {
	case IsHoliday(date):
		return HolidayVolume
	case model.IsPromoDay(date):
		return PromoVolume
	case date.UTC().Weekday() == time.Saturday || date.UTC().Weekday() == time.Sunday:
		return WeekendVolume
	default:
		return WeekdayVolume
	}
}

// SimulateDay generates one day's orders with the calendar-driven volume. Promo
// is applied to every order on a promo day.
func (g *OrderGenerator) SimulateDay(date time.Time) []*model.Order {
	promo := model.IsPromoDay(date)
	count := DailyVolume(date)
	orders := make([]*model.Order, count)
	for i := range orders {
		orders[i] = g.order(date, promo)
	}
	return orders
}

// Backfill generates perDay orders for each of the days ending at end, with the
// promo flag drawn at random.
func (g *OrderGenerator) Backfill(end time.Time, days, perDay int) []*model.Order {
	orders := make([]*model.Order, 0, days*perDay)
	for offset := 0; offset < days; offset++ {
		date := end.AddDate(0, 0, -offset)
		for i := 0; i < perDay; i++ {
			orders = append(orders, g.order(date, g.rng.IntN(2) == 1))
		}
	}
	return orders
}

// Random generates count orders placed at now.
func (g *OrderGenerator) Random(now time.Time, count int) []*model.Order {
	orders := make([]*model.Order, count)
	for i := range orders {
		o := g.order(now, model.IsPromoDay(now))
		o.Timestamp = now.UTC()
		orders[i] = o
	}
	return orders
}

func (g *OrderGenerator) order(date time.Time, promo bool) *model.Order {
	day := model.DateOf(date)
	ts := day.Add(time.Duration(g.rng.IntN(24*60*60)) * time.Second)

	quantity := 1 + g.rng.IntN(5)
	// 10.00 to 100.00 in cents.
	unitPrice := decimal.New(int64(1000+g.rng.IntN(9001)), -2)

	return &model.Order{
		ID:           "ORD-" + hexID(10),
		Timestamp:    ts,
		ProductID:    productIDs[g.rng.IntN(len(productIDs))],
		UserID:       "USER-" + hexID(8),
		Region:       g.regions[g.rng.IntN(len(g.regions))],
		DeviceType:   deviceTypes[g.rng.IntN(len(deviceTypes))],
		Quantity:     quantity,
		UnitPrice:    unitPrice,
		TotalPrice:   model.OrderTotal(quantity, unitPrice),
		PromoApplied: promo,
	}
}

func hexID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
