package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env             string
	LogLevel        string
	HTTPPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	Mongo           MongoConfig
	Redis           RedisConfig
	Kafka           KafkaConfig
	Cart            CartConfig
	Checkout        CheckoutConfig
}

type MongoConfig struct {
	URI    string
	DBName string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig holds event broker settings. An empty broker list disables
// checkout-completed events and the cart poller.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type CartConfig struct {
	MaxItems           int
	MaxQuantityPerItem int
	CacheTTL           time.Duration
}

type CheckoutConfig struct {
	SessionTTL time.Duration
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		dir, _ := os.Getwd()
		found := false
		for i := 0; i < 2; i++ {
			dir = filepath.Join(dir, "..")
			if err := godotenv.Load(filepath.Join(dir, ".env")); err == nil {
				found = true
				break
			}
		}
		if !found {
			slog.Default().Debug(".env file not found, using environment variables and defaults")
		}
	}

	cfg := &Config{
		Env:             getEnv("ENV", "dev"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Mongo: MongoConfig{
			URI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
			DBName: getEnv("MONGO_DB_NAME", "shopcart"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_CHECKOUT_TOPIC", "checkout-completed"),
			GroupID: getEnv("KAFKA_GROUP_ID", "cart-service-consumer"),
		},
		Cart: CartConfig{
			MaxItems:           getEnvInt("CART_MAX_ITEMS", 50),
			MaxQuantityPerItem: getEnvInt("CART_MAX_QUANTITY_PER_ITEM", 100),
			CacheTTL:           getEnvDuration("CART_CACHE_TTL", 15*time.Minute),
		},
		Checkout: CheckoutConfig{
			SessionTTL: getEnvDuration("CHECKOUT_SESSION_TTL", 20*time.Minute),
		},
	}

	if cfg.Env != "dev" && cfg.Env != "prod" {
		slog.Default().Warn("invalid environment, using default: prod", slog.String("env", cfg.Env))
		cfg.Env = "prod"
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		slog.Default().Warn("invalid log level, using default: info", slog.String("value", cfg.LogLevel))
		cfg.LogLevel = "info"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects limits that would make the cart or checkout unusable.
func (c *Config) Validate() error {
	var errs []error
	if c.Cart.MaxItems <= 0 {
		errs = append(errs, fmt.Errorf("CART_MAX_ITEMS must be positive, got %d", c.Cart.MaxItems))
	}
	if c.Cart.MaxQuantityPerItem <= 0 {
		errs = append(errs, fmt.Errorf("CART_MAX_QUANTITY_PER_ITEM must be positive, got %d", c.Cart.MaxQuantityPerItem))
	}
	if c.Checkout.SessionTTL < time.Second {
		errs = append(errs, fmt.Errorf("CHECKOUT_SESSION_TTL must be at least 1s, got %s", c.Checkout.SessionTTL))
	}
	if c.Mongo.URI == "" {
		errs = append(errs, errors.New("MONGO_URI is required"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
		slog.Default().Warn("invalid integer, using default", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Default().Warn("invalid duration, using default", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
