package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/repository"
)

// ClickHouseRepository implements MetricsArchive using ClickHouse as an append-only
// analytical copy. Every rollup and forecast run appends rows stamped with the time
// they were archived, so the history of how forecasts moved between runs is kept.
type ClickHouseRepository struct {
	conn driver.Conn
}

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Timeout  int
}

func NewClickHouseRepository(cfg ClickHouseConfig) (*ClickHouseRepository, error) {
	database := cfg.Database
	if database == "" {
		database = "default"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: time.Duration(cfg.Timeout) * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Timeout)*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	if err := createTablesIfNotExist(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &ClickHouseRepository{conn: conn}, nil
}

var _ repository.MetricsArchive = (*ClickHouseRepository)(nil)

func createTablesIfNotExist(ctx context.Context, conn driver.Conn) error {
	err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS daily_metrics_history (
			date Date,
			region LowCardinality(String),
			total_orders UInt64,
			total_revenue Decimal(14, 2),
			avg_order_value Decimal(12, 2),
			is_promo_day Bool,
			archived_at DateTime DEFAULT now()
		) ENGINE = MergeTree()
		ORDER BY (region, date, archived_at)
	`)
	if err != nil {
		return err
	}

	return conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS forecast_history (
			region LowCardinality(String),
			metric LowCardinality(String),
			forecast_date Date,
			forecast_value Decimal(14, 2),
			lower_bound Decimal(14, 2),
			upper_bound Decimal(14, 2),
			created_at DateTime
		) ENGINE = MergeTree()
		ORDER BY (region, metric, forecast_date, created_at)
	`)
}

// ArchiveDailyMetrics appends a snapshot of rollup rows.
func (r *ClickHouseRepository) ArchiveDailyMetrics(ctx context.Context, metrics []*model.DailyMetric) error {
	if len(metrics) == 0 {
		return nil
	}
	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO daily_metrics_history (
			date, region, total_orders, total_revenue, avg_order_value, is_promo_day
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare daily metrics batch: %w", err)
	}
	for _, m := range metrics {
		if err := batch.Append(
			m.Date,
			string(m.Region),
			uint64(m.TotalOrders),
			m.TotalRevenue,
			m.AvgOrderValue,
			m.IsPromoDay,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append daily metric: %w", err)
		}
	}
	return batch.Send()
}

// ArchiveForecasts appends the points produced by one pair.
func (r *ClickHouseRepository) ArchiveForecasts(ctx context.Context, points []*model.ForecastPoint) error {
	if len(points) == 0 {
		return nil
	}
	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO forecast_history (
			region, metric, forecast_date, forecast_value, lower_bound, upper_bound, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare forecast batch: %w", err)
	}
	for _, p := range points {
		if err := batch.Append(
			string(p.Region),
			p.Metric.String(),
			p.Date,
			p.Value,
			p.Lower,
			p.Upper,
			p.CreatedAt,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append forecast: %w", err)
		}
	}
	return batch.Send()
}

// ForecastRevisions returns every archived value of one forecast date, oldest run
// first.
func (r *ClickHouseRepository) ForecastRevisions(ctx context.Context, region model.Region, metric model.Metric, date time.Time) ([]*model.ForecastPoint, error) {
	query := `
		SELECT forecast_value, lower_bound, upper_bound, created_at
		FROM forecast_history
		WHERE region = ? AND metric = ? AND forecast_date = ?
		ORDER BY created_at
	`

	rows, err := r.conn.Query(ctx, query, string(region), metric.String(), model.DateOf(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*model.ForecastPoint
	for rows.Next() {
		p := &model.ForecastPoint{Region: region, Metric: metric, Date: model.DateOf(date)}
		if err := rows.Scan(&p.Value, &p.Lower, &p.Upper, &p.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// Ping checks the connection.
func (r *ClickHouseRepository) Ping(ctx context.Context) error {
	return r.conn.Ping(ctx)
}

func (r *ClickHouseRepository) Close() error {
	return r.conn.Close()
}
