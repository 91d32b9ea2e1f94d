package storage_test

import (
	"context"
	"os"
	"testing"
	"time"

	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/infrastructure/storage"
)

func TestClickHouseRepository(t *testing.T) {
	addr := os.Getenv("CLICKHOUSE_ADDR")
	if addr == "" {
		t.Skip("Skipping ClickHouse test - requires live ClickHouse instance (set CLICKHOUSE_ADDR)")
	}

	repo, err := storage.NewClickHouseRepository(storage.ClickHouseConfig{
		Addr:     addr,
		Username: os.Getenv("CLICKHOUSE_USERNAME"),
		Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		Timeout:  10,
	})
	if err != nil {
		t.Fatalf("Failed to connect to ClickHouse: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	date := time.Date(2031, 1, 2, 0, 0, 0, 0, time.UTC)
	created := time.Now().UTC().Truncate(time.Second)
	point := model.NewForecastPoint(model.RegionWest, model.MetricOrderCount, model.Prediction{
		Date:  date,
		Point: 51.2,
		Lower: 48,
		Upper: 54.4,
	}, created)

	if err := repo.ArchiveForecasts(ctx, []*model.ForecastPoint{point}); err != nil {
		t.Fatalf("Failed to archive forecast: %v", err)
	}

	revisions, err := repo.ForecastRevisions(ctx, model.RegionWest, model.MetricOrderCount, date)
	if err != nil {
		t.Fatalf("Failed to read revisions: %v", err)
	}

	found := false
	for _, r := range revisions {
		if r.CreatedAt.Equal(created) && r.Value.Equal(point.Value) {
			found = true
			break
		}
	}
	if !found {
		t.Error("Archived forecast not found in revisions")
	}
}
