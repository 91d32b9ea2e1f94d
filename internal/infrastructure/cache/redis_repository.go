package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"demandForecastApp/internal/domain/model"
	"demandForecastApp/internal/domain/repository"
)

// RedisRepository implements the ForecastCache interface using Redis as the backend.
// It also backs order de-duplication for the stream consumer.
type RedisRepository struct {
	client      *redis.Client
	forecastTTL time.Duration
	dedupTTL    time.Duration
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	ForecastTTL time.Duration
	DedupTTL    time.Duration
}

func NewRedisRepository(cfg RedisConfig) *RedisRepository {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisRepository{
		client:      client,
		forecastTTL: cfg.ForecastTTL,
		dedupTTL:    cfg.DedupTTL,
	}
}

var _ repository.ForecastCache = (*RedisRepository)(nil)

func forecastKey(region model.Region, metric model.Metric) string {
	return fmt.Sprintf("forecast:%s:%s", region, metric)
}

func (r *RedisRepository) SaveForecasts(ctx context.Context, region model.Region, metric model.Metric, points []*model.ForecastPoint) error {
	data, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("failed to marshal forecasts: %w", err)
	}
	return r.client.Set(ctx, forecastKey(region, metric), data, r.forecastTTL).Err()
}

func (r *RedisRepository) GetForecasts(ctx context.Context, region model.Region, metric model.Metric) ([]*model.ForecastPoint, error) {
	data, err := r.client.Get(ctx, forecastKey(region, metric)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var points []*model.ForecastPoint
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("failed to unmarshal forecasts: %w", err)
	}
	return points, nil
}

// MarkSeen records an order id and reports whether it was new. Entries expire
// after the dedup TTL.
func (r *RedisRepository) MarkSeen(ctx context.Context, orderID string) (bool, error) {
	return r.client.SetNX(ctx, "order:seen:"+orderID, 1, r.dedupTTL).Result()
}

// Forget removes an order id so a later delivery is processed again.
func (r *RedisRepository) Forget(ctx context.Context, orderID string) error {
	return r.client.Del(ctx, "order:seen:"+orderID).Err()
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}
