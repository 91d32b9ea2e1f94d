package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all app configuration
type Config struct {
	Env string

	// Server
	HTTPPort        string
	AllowedOrigins  []string
	RefreshInterval time.Duration // 0 disables periodic runs in serve

	// Relational store
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBPath     string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ForecastTTL   time.Duration
	DedupTTL      time.Duration

	// ClickHouse
	ClickhouseAddr     string
	ClickhouseDatabase string
	ClickhouseUsername string
	ClickhousePassword string
	ClickhouseTimeout  int

	// Kafka
	KafkaBrokers       []string
	KafkaTopic         string
	KafkaConsumerGroup string
	KafkaBatchSize     int
	KafkaBatchTimeout  int // milliseconds

	// Forecasting
	Regions            []string
	Metrics            []string
	MinHistory         int
	Horizon            int
	FitTimeout         time.Duration
	AnomalyMin         float64
	AnomalyMax         float64
	DisableSeasonality bool

	// Email
	EmailHost     string
	EmailPort     int
	EmailUser     string
	EmailPass     string
	EmailFrom     string
	EmailReceiver []string

	// Tracing
	TracingEnabled  bool
	TracingEndpoint string
	TracingInsecure bool
	TracingRatio    float64

	// App settings
	EventBufferSize int
}

// LoadConfig loads configuration from environment variables, with an optional
// .env file. Variables already set in the environment win over the file.
func LoadConfig() *Config {
	loadDotEnv()

	return &Config{
		Env: getEnv("ENV", "local"),

		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		AllowedOrigins:  getEnvAsSlice("ALLOWED_ORIGINS", []string{"*"}, ","),
		RefreshInterval: getEnvAsDuration("REFRESH_INTERVAL", 0),

		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "ecommerce"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		DBPath:     getEnv("DB_PATH", "forecast.db"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		ForecastTTL:   getEnvAsDuration("FORECAST_CACHE_TTL", 24*time.Hour),
		DedupTTL:      getEnvAsDuration("DEDUP_TTL", 24*time.Hour),

		ClickhouseAddr:     getEnv("CLICKHOUSE_ADDR", ""),
		ClickhouseDatabase: getEnv("CLICKHOUSE_DATABASE", "default"),
		ClickhouseUsername: getEnv("CLICKHOUSE_USERNAME", ""),
		ClickhousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),
		ClickhouseTimeout:  getEnvAsInt("CLICKHOUSE_TIMEOUT", 10),

		KafkaBrokers:       getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}, ","),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "orders"),
		KafkaConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "order-group"),
		KafkaBatchSize:     getEnvAsInt("KAFKA_BATCH_SIZE", 100),
		KafkaBatchTimeout:  getEnvAsInt("KAFKA_BATCH_TIMEOUT", 3000),

		Regions:            getEnvAsSlice("FORECAST_REGIONS", []string{"Northeast", "Midwest", "South", "West"}, ","),
		Metrics:            getEnvAsSlice("FORECAST_METRICS", []string{"total_orders", "total_revenue"}, ","),
		MinHistory:         getEnvAsInt("FORECAST_MIN_HISTORY", 10),
		Horizon:            getEnvAsInt("FORECAST_HORIZON", 7),
		FitTimeout:         getEnvAsDuration("FORECAST_FIT_TIMEOUT", 30*time.Second),
		AnomalyMin:         getEnvAsFloat("ANOMALY_MIN", 10),
		AnomalyMax:         getEnvAsFloat("ANOMALY_MAX", 5000),
		DisableSeasonality: getEnvAsBool("FORECAST_DISABLE_SEASONALITY", false),

		EmailHost:     getEnv("EMAIL_HOST", ""),
		EmailPort:     getEnvAsInt("EMAIL_PORT", 587),
		EmailUser:     getEnv("EMAIL_USER", ""),
		EmailPass:     getEnv("EMAIL_PASS", ""),
		EmailFrom:     getEnv("EMAIL_FROM", ""),
		EmailReceiver: getEnvAsSlice("EMAIL_RECEIVER", nil, ","),

		TracingEnabled:  getEnvAsBool("TRACING_ENABLED", false),
		TracingEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TracingInsecure: getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		TracingRatio:    getEnvAsFloat("OTEL_SAMPLER_RATIO", 1),

		EventBufferSize: getEnvAsInt("EVENT_BUFFER_SIZE", 10000),
	}
}

// Validate checks the values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.MinHistory < 2 {
		return fmt.Errorf("FORECAST_MIN_HISTORY must be at least 2, got %d", c.MinHistory)
	}
	if c.Horizon < 1 {
		return fmt.Errorf("FORECAST_HORIZON must be positive, got %d", c.Horizon)
	}
	if c.FitTimeout <= 0 {
		return fmt.Errorf("FORECAST_FIT_TIMEOUT must be positive, got %s", c.FitTimeout)
	}
	if c.AnomalyMin > c.AnomalyMax {
		return fmt.Errorf("ANOMALY_MIN (%v) is above ANOMALY_MAX (%v)", c.AnomalyMin, c.AnomalyMax)
	}
	if len(c.Regions) == 0 || len(c.Metrics) == 0 {
		return fmt.Errorf("at least one region and one metric must be configured")
	}
	return nil
}

// EmailEnabled reports whether enough settings are present to send mail.
func (c *Config) EmailEnabled() bool {
	return c.EmailHost != "" && len(c.EmailReceiver) > 0
}

// loadDotEnv reads .env from the working directory or, when running from
// cmd/<app>, from the repository root. A missing file is not an error.
func loadDotEnv() {
	for _, p := range []string{".env", filepath.Join("..", "..", ".env")} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// Helper functions for parsing environment variables
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := getEnv(key, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}
	return defaultVal
}

// getEnvAsDuration accepts Go durations ("30s") or plain seconds ("30").
func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	valStr := strings.TrimSpace(getEnv(key, ""))
	if valStr == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(valStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}

func getEnvAsSlice(key string, defaultVal []string, sep string) []string {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultVal
	}
	parts := strings.Split(valStr, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
