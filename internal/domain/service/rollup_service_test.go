package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/service"
)

func order(id string, ts time.Time, region model.Region, total string) *model.Order {
	price := decimal.RequireFromString(total)
	return &model.Order{
		ID:         id,
		Timestamp:  ts,
		ProductID:  "SKU-001",
		Category:   "Electronics",
		UserID:     "USER-0001",
		Region:     region,
		DeviceType: "mobile",
		Quantity:   1,
		UnitPrice:  price,
		TotalPrice: price,
	}
}

func TestDailyRollupService_AggregatesPerDateAndRegion(t *testing.T) {
	ctx := context.Background()
	d := day(2025, 3, 9)
	orders := newMemOrderStore(
		order("ORD-1", d.Add(1*time.Hour), model.RegionWest, "20.00"),
		order("ORD-2", d.Add(2*time.Hour), model.RegionWest, "30.00"),
		order("ORD-3", d.Add(3*time.Hour), model.RegionWest, "50.00"),
		order("ORD-4", d.Add(4*time.Hour), model.RegionSouth, "10.00"),
	)
	metrics := newMemMetricStore()
	archive := &memArchive{}

	svc := service.NewDailyRollupService(orders, metrics, archive, zap.NewNop())
	n, err := svc.Rollup(ctx, nil)
	if err != nil {
		t.Fatalf("rollup failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}

	west := metrics.get(d, model.RegionWest)
	if west == nil {
		t.Fatal("west row missing")
	}
	if west.TotalOrders != 3 {
		t.Errorf("expected 3 orders, got %d", west.TotalOrders)
	}
	if !west.TotalRevenue.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("expected revenue 100.00, got %s", west.TotalRevenue)
	}
	if !west.AvgOrderValue.Equal(decimal.RequireFromString("33.33")) {
		t.Errorf("expected avg 33.33, got %s", west.AvgOrderValue)
	}
	if west.IsPromoDay {
		t.Error("the 9th is not a promo day")
	}

	// Zero-order regions produce no row.
	if metrics.get(d, model.RegionNortheast) != nil {
		t.Error("unexpected row for a region without orders")
	}
	if len(archive.metrics) != 2 {
		t.Errorf("expected 2 archived rows, got %d", len(archive.metrics))
	}
}

func TestDailyRollupService_PromoDayIgnoresOrderFlags(t *testing.T) {
	ctx := context.Background()
	tenth := day(2025, 3, 10)
	eleventh := day(2025, 3, 11)

	plain := order("ORD-1", tenth.Add(time.Hour), model.RegionMidwest, "12.50")
	plain.PromoApplied = false
	flagged := order("ORD-2", eleventh.Add(time.Hour), model.RegionMidwest, "12.50")
	flagged.PromoApplied = true

	metrics := newMemMetricStore()
	svc := service.NewDailyRollupService(newMemOrderStore(plain, flagged), metrics, nil, zap.NewNop())
	if _, err := svc.Rollup(ctx, nil); err != nil {
		t.Fatalf("rollup failed: %v", err)
	}

	if !metrics.get(tenth, model.RegionMidwest).IsPromoDay {
		t.Error("the 10th must be a promo day")
	}
	if metrics.get(eleventh, model.RegionMidwest).IsPromoDay {
		t.Error("the 11th must not be a promo day even with promo orders")
	}
}

func TestDailyRollupService_Idempotent(t *testing.T) {
	ctx := context.Background()
	d := day(2025, 4, 2)
	orders := newMemOrderStore(
		order("ORD-1", d.Add(time.Hour), model.RegionSouth, "10.00"),
		order("ORD-2", d.Add(2*time.Hour), model.RegionSouth, "15.00"),
	)
	metrics := newMemMetricStore()
	svc := service.NewDailyRollupService(orders, metrics, nil, zap.NewNop())

	for i := 0; i < 2; i++ {
		if _, err := svc.Rollup(ctx, nil); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
	}

	row := metrics.get(d, model.RegionSouth)
	if row.TotalOrders != 2 || !row.TotalRevenue.Equal(decimal.RequireFromString("25")) {
		t.Errorf("second run must overwrite, not accumulate: got %d orders, %s revenue", row.TotalOrders, row.TotalRevenue)
	}
	if len(metrics.rows) != 1 {
		t.Errorf("expected 1 row, got %d", len(metrics.rows))
	}
}

func TestDailyRollupService_SingleDate(t *testing.T) {
	ctx := context.Background()
	d1 := day(2025, 5, 1)
	d2 := day(2025, 5, 2)
	orders := newMemOrderStore(
		order("ORD-1", d1.Add(23*time.Hour), model.RegionWest, "10.00"),
		order("ORD-2", d2.Add(time.Hour), model.RegionWest, "20.00"),
	)
	metrics := newMemMetricStore()
	svc := service.NewDailyRollupService(orders, metrics, nil, zap.NewNop())

	// Any time on the day selects the whole UTC date.
	at := d2.Add(15 * time.Hour)
	n, err := svc.Rollup(ctx, &at)
	if err != nil {
		t.Fatalf("rollup failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
	if metrics.get(d1, model.RegionWest) != nil {
		t.Error("rows outside the requested date must not be written")
	}
	if metrics.get(d2, model.RegionWest).TotalOrders != 1 {
		t.Error("expected one order on the requested date")
	}
}

func TestDailyRollupService_Errors(t *testing.T) {
	ctx := context.Background()
	d := day(2025, 6, 1)

	t.Run("store write failure is returned", func(t *testing.T) {
		metrics := newMemMetricStore()
		metrics.upsertErr = model.ErrStoreWrite
		svc := service.NewDailyRollupService(
			newMemOrderStore(order("ORD-1", d, model.RegionWest, "1.00")), metrics, nil, zap.NewNop())
		if _, err := svc.Rollup(ctx, nil); !errors.Is(err, model.ErrStoreWrite) {
			t.Fatalf("expected ErrStoreWrite, got %v", err)
		}
	})

	t.Run("archive failure is ignored", func(t *testing.T) {
		metrics := newMemMetricStore()
		svc := service.NewDailyRollupService(
			newMemOrderStore(order("ORD-1", d, model.RegionWest, "1.00")), metrics, &memArchive{err: errBoom}, zap.NewNop())
		if _, err := svc.Rollup(ctx, nil); err != nil {
			t.Fatalf("archive failure must not fail the rollup: %v", err)
		}
	})

	t.Run("no orders writes nothing", func(t *testing.T) {
		metrics := newMemMetricStore()
		svc := service.NewDailyRollupService(newMemOrderStore(), metrics, nil, zap.NewNop())
		n, err := svc.Rollup(ctx, nil)
		if err != nil || n != 0 {
			t.Fatalf("expected 0 rows and no error, got %d, %v", n, err)
		}
		if metrics.upserts != 0 {
			t.Error("expected no upsert for an empty order table")
		}
	})
}
