package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	LocalStore LocalStoreConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	MarketData MarketDataConfig
	Drift      DriftConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds PostgreSQL configuration for the durable store
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// LocalStoreConfig holds the SQLite mirror configuration
type LocalStoreConfig struct {
	Path string
}

// RedisConfig holds the snapshot cache configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig holds Kafka configuration. Event publishing is optional: with
// no brokers configured the service runs without it.
type KafkaConfig struct {
	Brokers          []string
	EventsTopic      string
	GroundTruthTopic string
	ConsumerGroup    string
}

// Enabled reports whether any broker is configured
func (k *KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// MarketDataConfig holds market data acquisition configuration
type MarketDataConfig struct {
	Symbol          string
	PrimaryBaseURL  string
	FallbackBaseURL string
	AttemptTimeout  time.Duration
	WindowDays      int
	SnapshotMaxAge  time.Duration
}

// DriftConfig holds drift detection configuration
type DriftConfig struct {
	SignificanceLevel float64
	ReferencePath     string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "forecastmonitor"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		LocalStore: LocalStoreConfig{
			Path: getEnv("LOCAL_STORE_PATH", "data/predictions.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:          getEnvList("KAFKA_BROKERS"),
			EventsTopic:      getEnv("KAFKA_EVENTS_TOPIC", "forecast-events"),
			GroundTruthTopic: getEnv("KAFKA_GROUND_TRUTH_TOPIC", "market-close"),
			ConsumerGroup:    getEnv("KAFKA_CONSUMER_GROUP", "forecast-monitor"),
		},
		MarketData: MarketDataConfig{
			Symbol:          getEnv("MARKET_SYMBOL", "B3SA3.SA"),
			PrimaryBaseURL:  getEnv("MARKET_PRIMARY_URL", "https://query2.finance.yahoo.com"),
			FallbackBaseURL: getEnv("MARKET_FALLBACK_URL", "https://query1.finance.yahoo.com"),
			AttemptTimeout:  getEnvDuration("MARKET_ATTEMPT_TIMEOUT", 10*time.Second),
			WindowDays:      getEnvInt("MARKET_WINDOW_DAYS", 60),
			SnapshotMaxAge:  getEnvDuration("SNAPSHOT_MAX_AGE", 24*time.Hour),
		},
		Drift: DriftConfig{
			SignificanceLevel: getEnvFloat("DRIFT_SIGNIFICANCE_LEVEL", 0.05),
			ReferencePath:     getEnv("DRIFT_REFERENCE_PATH", "data/reference_statistics.json"),
		},
	}
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
