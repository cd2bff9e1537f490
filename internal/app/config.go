package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

// StorageDriver выбирает реляционное хранилище заказов и остатков.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// CartDriver выбирает хранилище корзины.
type CartDriver string

const (
	CartDriverMemory CartDriver = "memory"
	CartDriverRedis  CartDriver = "redis"
)

// ConfigPathEnv содержит путь к YAML-файлу конфигурации.
const ConfigPathEnv = "CHECKOUT_CONFIG"

// Config описывает настройки запуска checkout-service.
type Config struct {
	HTTPAddr        string        `yaml:"http_addr"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	LogLevel        string        `yaml:"log_level"`
	ServiceName     string        `yaml:"service_name"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	StorageDriver       StorageDriver `yaml:"storage_driver"`
	PostgresDSN         string        `yaml:"postgres_dsn"`
	PostgresAutoMigrate bool          `yaml:"postgres_auto_migrate"`

	CartDriver    CartDriver `yaml:"cart_driver"`
	RedisAddr     string     `yaml:"redis_addr"`
	RedisPassword string     `yaml:"redis_password"`
	RedisDB       int        `yaml:"redis_db"`

	KafkaBrokers  []string `yaml:"kafka_brokers"`
	KafkaTopic    string   `yaml:"kafka_topic"`
	KafkaDLQTopic string   `yaml:"kafka_dlq_topic"`

	OutboxPollInterval time.Duration `yaml:"outbox_poll_interval"`
	OutboxBatchSize    int           `yaml:"outbox_batch_size"`
	OutboxMaxAttempts  int           `yaml:"outbox_max_attempts"`
	OutboxRetryDelay   time.Duration `yaml:"outbox_retry_delay"`

	// ConflictMaxAttempts ограничивает повторы при конфликте остатков; 0 — без ограничения.
	ConflictMaxAttempts int `yaml:"conflict_max_attempts"`

	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		LogLevel:            "info",
		ServiceName:         "checkout-service",
		ShutdownTimeout:     5 * time.Second,
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		CartDriver:          CartDriverMemory,
		RedisAddr:           "localhost:6379",
		KafkaTopic:          kafka.TopicOrderEvents,
		KafkaDLQTopic:       kafka.TopicDeadLetterQueue,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		ConflictMaxAttempts: 50,
	}
}

// LoadConfig читает конфигурацию: значения по умолчанию, затем YAML-файл (если задан),
// затем переменные окружения.
func LoadConfig(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()

	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFromEnv — LoadConfig с путём из CHECKOUT_CONFIG и окружением процесса.
func LoadConfigFromEnv() (Config, error) {
	return LoadConfig(os.Getenv(ConfigPathEnv), os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("CHECKOUT_HTTP_ADDR", &c.HTTPAddr)
	str("CHECKOUT_METRICS_ADDR", &c.MetricsAddr)
	str("CHECKOUT_LOG_LEVEL", &c.LogLevel)
	str("CHECKOUT_POSTGRES_DSN", &c.PostgresDSN)
	str("CHECKOUT_REDIS_ADDR", &c.RedisAddr)
	str("CHECKOUT_REDIS_PASSWORD", &c.RedisPassword)
	str("CHECKOUT_KAFKA_TOPIC", &c.KafkaTopic)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.OTLPEndpoint)

	var driver string
	str("CHECKOUT_STORAGE_DRIVER", &driver)
	if driver != "" {
		c.StorageDriver = StorageDriver(strings.ToLower(driver))
	}
	var cartDriver string
	str("CHECKOUT_CART_DRIVER", &cartDriver)
	if cartDriver != "" {
		c.CartDriver = CartDriver(strings.ToLower(cartDriver))
	}

	var brokers string
	str("KAFKA_BROKERS", &brokers)
	if brokers != "" {
		c.KafkaBrokers = splitList(brokers)
	}

	return errors.Join(
		num("CHECKOUT_REDIS_DB", &c.RedisDB),
		num("CHECKOUT_CONFLICT_MAX_ATTEMPTS", &c.ConflictMaxAttempts),
	)
}

// Validate отклоняет несогласованные комбинации настроек.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be > 0"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres_dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	switch c.CartDriver {
	case CartDriverMemory:
	case CartDriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("redis_addr is required for redis cart"))
		}
		if c.RedisDB < 0 {
			errs = append(errs, errors.New("redis_db must be >= 0"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported cart driver %q", c.CartDriver))
	}

	if len(c.KafkaBrokers) > 0 && strings.TrimSpace(c.KafkaTopic) == "" {
		errs = append(errs, errors.New("kafka_topic is required when kafka_brokers are set"))
	}
	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("outbox_poll_interval must be > 0"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("outbox_batch_size must be > 0"))
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox_max_attempts must be > 0"))
	}
	if c.OutboxRetryDelay < 0 {
		errs = append(errs, errors.New("outbox_retry_delay must be >= 0"))
	}
	if c.ConflictMaxAttempts < 0 {
		errs = append(errs, errors.New("conflict_max_attempts must be >= 0"))
	}

	return errors.Join(errs...)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
