package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/repository"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultBatchSize = 500
)

// DatabaseConfig selects and addresses the relational store.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	// Path is the database file for the sqlite driver.
	Path string
}

// DSN builds the connection string for the configured driver.
func (c DatabaseConfig) DSN() string {
	if c.Driver == DriverSQLite {
		return c.Path
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, sslMode)
}

// OpenDatabase connects to Postgres, or to a sqlite file for local runs.
func OpenDatabase(cfg DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres, "":
		dialector = postgres.Open(cfg.DSN())
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	gormLog := gormLogger.New(
		zap.NewStdLog(log.Named("gorm")),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormLog,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}
	return db, nil
}

type orderRow struct {
	OrderID      string          `gorm:"column:order_id;primaryKey"`
	Timestamp    time.Time       `gorm:"column:timestamp;not null;index"`
	ProductID    string          `gorm:"column:product_id"`
	Category     string          `gorm:"column:category"`
	UserID       string          `gorm:"column:user_id"`
	UserSegment  string          `gorm:"column:user_segment"`
	Region       string          `gorm:"column:region;not null;index"`
	DeviceType   string          `gorm:"column:device_type"`
	Quantity     int             `gorm:"column:quantity;not null"`
	UnitPrice    decimal.Decimal `gorm:"column:unit_price;type:decimal(10,2);not null"`
	TotalPrice   decimal.Decimal `gorm:"column:total_price;type:decimal(12,2);not null"`
	PromoApplied bool            `gorm:"column:promo_applied"`
	Hour         int             `gorm:"column:hour"`
}

func (orderRow) TableName() string { return "orders" }

func toOrderRow(o *model.Order) orderRow {
	return orderRow{
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

func (r orderRow) toModel() *model.Order {
	return &model.Order{
		ID:           r.OrderID,
		Timestamp:    r.Timestamp.UTC(),
		ProductID:    r.ProductID,
		Category:     r.Category,
		UserID:       r.UserID,
		UserSegment:  r.UserSegment,
		Region:       model.Region(r.Region),
		DeviceType:   r.DeviceType,
		Quantity:     r.Quantity,
		UnitPrice:    r.UnitPrice,
		TotalPrice:   r.TotalPrice,
		PromoApplied: r.PromoApplied,
	}
}

type dailyMetricRow struct {
	Date          time.Time       `gorm:"column:date;type:date;primaryKey"`
	Region        string          `gorm:"column:region;primaryKey"`
	TotalOrders   int64           `gorm:"column:total_orders;not null"`
	TotalRevenue  decimal.Decimal `gorm:"column:total_revenue;type:decimal(14,2);not null"`
	AvgOrderValue decimal.Decimal `gorm:"column:avg_order_value;type:decimal(12,2);not null"`
	IsPromoDay    bool            `gorm:"column:is_promo_day"`
}

func (dailyMetricRow) TableName() string { return "daily_metrics" }

func toDailyMetricRow(m *model.DailyMetric) dailyMetricRow {
	return dailyMetricRow{
		Date:          model.DateOf(m.Date),
		Region:        string(m.Region),
		TotalOrders:   m.TotalOrders,
		TotalRevenue:  m.TotalRevenue,
		AvgOrderValue: m.AvgOrderValue,
		IsPromoDay:    m.IsPromoDay,
	}
}

func (r dailyMetricRow) toModel() *model.DailyMetric {
	return &model.DailyMetric{
		Date:          model.DateOf(r.Date),
		Region:        model.Region(r.Region),
		TotalOrders:   r.TotalOrders,
		TotalRevenue:  r.TotalRevenue,
		AvgOrderValue: r.AvgOrderValue,
		IsPromoDay:    r.IsPromoDay,
	}
}

type forecastRow struct {
	Region        string          `gorm:"column:region;primaryKey"`
	Metric        string          `gorm:"column:metric;primaryKey"`
	ForecastDate  time.Time       `gorm:"column:forecast_date;type:date;primaryKey"`
	ForecastValue decimal.Decimal `gorm:"column:forecast_value;type:decimal(14,2);not null"`
	LowerBound    decimal.Decimal `gorm:"column:lower_bound;type:decimal(14,2);not null"`
	UpperBound    decimal.Decimal `gorm:"column:upper_bound;type:decimal(14,2);not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime:false"`
}

func (forecastRow) TableName() string { return "forecast_metrics" }

func toForecastRow(p *model.ForecastPoint) forecastRow {
	return forecastRow{
		Region:        string(p.Region),
		Metric:        p.Metric.String(),
		ForecastDate:  model.DateOf(p.Date),
		ForecastValue: p.Value,
		LowerBound:    p.Lower,
		UpperBound:    p.Upper,
		CreatedAt:     p.CreatedAt.UTC(),
	}
}

func (r forecastRow) toModel() (*model.ForecastPoint, error) {
	metric, err := model.ParseMetric(r.Metric)
	if err != nil {
		return nil, err
	}
	return &model.ForecastPoint{
		Region:    model.Region(r.Region),
		Metric:    metric,
		Date:      model.DateOf(r.ForecastDate),
		Value:     r.ForecastValue,
		Lower:     r.LowerBound,
		Upper:     r.UpperBound,
		CreatedAt: r.CreatedAt.UTC(),
	}, nil
}

// PostgresRepository implements the relational stores on top of gorm.
type PostgresRepository struct {
	db        *gorm.DB
	batchSize int
}

func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db, batchSize: defaultBatchSize}
}

var (
	_ repository.OrderStore       = (*PostgresRepository)(nil)
	_ repository.DailyMetricStore = (*PostgresRepository)(nil)
	_ repository.ForecastStore    = (*PostgresRepository)(nil)
)

// Migrate creates or updates the orders, daily_metrics and forecast_metrics tables.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&orderRow{}, &dailyMetricRow{}, &forecastRow{})
}

// Ping checks the connection.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (r *PostgresRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *PostgresRepository) InsertOrders(ctx context.Context, orders []*model.Order) (int64, error) {
	if len(orders) == 0 {
		return 0, nil
	}
	rows := make([]orderRow, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, toOrderRow(o))
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		CreateInBatches(&rows, r.batchSize)
	if res.Error != nil {
		return 0, writeError("insert orders", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *PostgresRepository) ScanOrders(ctx context.Context, from, to *time.Time, fn func(batch []*model.Order) error) error {
	q := r.db.WithContext(ctx).Model(&orderRow{})
	if from != nil {
		q = q.Where(`"timestamp" >= ?`, from.UTC())
	}
	if to != nil {
		q = q.Where(`"timestamp" < ?`, to.UTC())
	}

	var rows []orderRow
	res := q.FindInBatches(&rows, r.batchSize, func(_ *gorm.DB, _ int) error {
		batch := make([]*model.Order, 0, len(rows))
		for _, row := range rows {
			batch = append(batch, row.toModel())
		}
		return fn(batch)
	})
	if res.Error != nil {
		return fmt.Errorf("scan orders: %w", res.Error)
	}
	return nil
}

func (r *PostgresRepository) UpsertDailyMetrics(ctx context.Context, metrics []*model.DailyMetric) error {
	if len(metrics) == 0 {
		return nil
	}
	rows := make([]dailyMetricRow, 0, len(metrics))
	for _, m := range metrics {
		rows = append(rows, toDailyMetricRow(m))
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}, {Name: "region"}},
			DoUpdates: clause.AssignmentColumns([]string{"total_orders", "total_revenue", "avg_order_value", "is_promo_day"}),
		}).CreateInBatches(&rows, r.batchSize).Error
	})
	if err != nil {
		return writeError("upsert daily metrics", err)
	}
	return nil
}

func (r *PostgresRepository) ReadSeries(ctx context.Context, region model.Region, metric model.Metric) ([]model.SeriesPoint, error) {
	rows, err := r.listDailyRows(ctx, region)
	if err != nil {
		return nil, err
	}
	out := make([]model.SeriesPoint, 0, len(rows))
	for _, row := range rows {
		v, _ := metric.Value(row.toModel()).Float64()
		out = append(out, model.SeriesPoint{Date: model.DateOf(row.Date), Value: v})
	}
	return out, nil
}

func (r *PostgresRepository) ListDailyMetrics(ctx context.Context, region model.Region) ([]*model.DailyMetric, error) {
	rows, err := r.listDailyRows(ctx, region)
	if err != nil {
		return nil, err
	}
	out := make([]*model.DailyMetric, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (r *PostgresRepository) listDailyRows(ctx context.Context, region model.Region) ([]dailyMetricRow, error) {
	var rows []dailyMetricRow
	if err := r.db.WithContext(ctx).
		Where("region = ?", string(region)).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}}).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read daily metrics for %s: %w", region, err)
	}
	return rows, nil
}

func (r *PostgresRepository) UpsertForecasts(ctx context.Context, points []*model.ForecastPoint) error {
	if len(points) == 0 {
		return nil
	}
	rows := make([]forecastRow, 0, len(points))
	for _, p := range points {
		rows = append(rows, toForecastRow(p))
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "region"}, {Name: "metric"}, {Name: "forecast_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"forecast_value", "lower_bound", "upper_bound", "created_at"}),
		}).Create(&rows).Error
	})
	if err != nil {
		return writeError("upsert forecasts", err)
	}
	return nil
}

// ListForecasts returns the rows written by the pair's most recent run. Dates
// an earlier run forecast and the latest run no longer covers are left out, so
// the result matches what that run cached.
func (r *PostgresRepository) ListForecasts(ctx context.Context, region model.Region, metric model.Metric) ([]*model.ForecastPoint, error) {
	db := r.db.WithContext(ctx)
	latest := db.Model(&forecastRow{}).
		Select("MAX(created_at)").
		Where("region = ? AND metric = ?", string(region), metric.String())

	var rows []forecastRow
	if err := db.
		Where("region = ? AND metric = ? AND created_at = (?)", string(region), metric.String(), latest).
		Order("forecast_date ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list forecasts for %s/%s: %w", region, metric, err)
	}
	out := make([]*model.ForecastPoint, 0, len(rows))
	for _, row := range rows {
		p, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// writeError marks err as a store write failure and attaches the Postgres
// SQLSTATE when there is one.
func writeError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%w: %s: sqlstate %s: %v", model.ErrStoreWrite, op, pgErr.Code, err)
	}
	return fmt.Errorf("%w: %s: %v", model.ErrStoreWrite, op, err)
}
