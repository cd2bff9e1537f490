package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/health"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/service/outbox"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
	"github.com/vladislavdragonenkov/checkout/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/checkout/internal/storage/redis"
)

// runtimeDependencies — открытые хранилища и брокер; закрываются в обратном порядке.
type runtimeDependencies struct {
	checkout  checkout.Dependencies
	outbox    domain.OutboxRepository
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	checkers  map[string]health.Checker
	closers   []func() error
}

func (d *runtimeDependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (_ *runtimeDependencies, err error) {
	deps := &runtimeDependencies{checkers: make(map[string]health.Checker)}
	defer func() {
		if err != nil {
			_ = deps.Close()
		}
	}()

	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		deps.closers = append(deps.closers, store.Close)
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("ensure postgres schema: %w", err)
			}
		}
		deps.checkout.Tx = store
		deps.checkout.Catalog = postgres.NewCatalogReader(store)
		deps.checkout.Orders = postgres.NewOrderReader(store)
		deps.outbox = postgres.NewOutboxRepository(store)
		deps.checkers["postgres"] = health.NewPingChecker("postgres", store)
		logger.Info("postgres storage initialized")
	default:
		mem := memory.NewStore()
		deps.checkout.Tx = mem
		deps.checkout.Catalog = mem
		deps.checkout.Orders = mem
		deps.outbox = memory.NewOutboxRepository(mem)
		logger.Info("in-memory storage initialized")
	}

	switch cfg.CartDriver {
	case CartDriverRedis:
		client, err := redisstore.Open(ctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("open redis: %w", err)
		}
		deps.closers = append(deps.closers, client.Close)
		cart := redisstore.NewCartStore(client)
		deps.checkout.Cart = cart
		deps.checkers["redis"] = health.NewPingChecker("redis", cart)
		logger.WithField("addr", cfg.RedisAddr).Info("redis cart initialized")
	default:
		deps.checkout.Cart = memory.NewCartStore()
	}

	if len(cfg.KafkaBrokers) == 0 {
		deps.publisher = outbox.NewLogPublisher(logger.WithField("publisher", "log"))
		return deps, nil
	}

	// Недоступный брокер останавливает запуск: без producer outbox не публикуется.
	producer, err := kafka.NewProducer(cfg.KafkaBrokers, logger.WithField("component", "kafka"))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer for %v: %w", cfg.KafkaBrokers, err)
	}
	deps.closers = append(deps.closers, producer.Close)
	deps.publisher = kafka.NewOutboxPublisher(producer, cfg.KafkaTopic)
	deps.dlq = kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)
	logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
	return deps, nil
}
