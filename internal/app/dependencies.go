package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartstore/internal/catalog"
	"github.com/vladislavdragonenkov/cartstore/internal/domain"
	"github.com/vladislavdragonenkov/cartstore/internal/storage/file"
	"github.com/vladislavdragonenkov/cartstore/internal/storage/memory"
	"github.com/vladislavdragonenkov/cartstore/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/cartstore/internal/storage/redis"
)

// runtimeDependencies — хранилища, выбранные конфигурацией.
type runtimeDependencies struct {
	slot       domain.Slot
	catalog    domain.Catalog
	outboxRepo domain.OutboxRepository
	closers    []func() error
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close dependency")
		}
	}
	d.closers = nil
}

// initRuntimeDependencies открывает хранилище корзины, каталог и outbox.
func initRuntimeDependencies(ctx context.Context, cfg Config, sessionID string, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{}
	key := domain.SlotKey(sessionID)

	var pgStore *postgres.Store
	openPostgres := func() (*postgres.Store, error) {
		if pgStore != nil {
			return pgStore, nil
		}
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres dsn is required")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, store.Close)
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		pgStore = store
		return store, nil
	}

	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		deps.slot = memory.NewSlot()
		deps.outboxRepo = memory.NewOutboxRepository()
	case StorageDriverFile:
		slot, err := file.NewSlot(cfg.FilePath, key)
		if err != nil {
			return nil, fmt.Errorf("init file storage: %w", err)
		}
		deps.slot = slot
		deps.outboxRepo = memory.NewOutboxRepository()
		logger.WithField("path", slot.Path()).Info("file storage initialized")
	case StorageDriverRedis:
		client, err := redisstore.NewClient(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("init redis storage: %w", err)
		}
		deps.closers = append(deps.closers, client.Close)
		deps.slot = redisstore.NewSlot(client, key, logger.WithField("layer", "redis"))
		deps.outboxRepo = memory.NewOutboxRepository()
		logger.WithField("addr", cfg.RedisAddr).Info("redis storage initialized")
	case StorageDriverPostgres:
		store, err := openPostgres()
		if err != nil {
			deps.close(logger)
			return nil, fmt.Errorf("init postgres storage: %w", err)
		}
		deps.slot = postgres.NewSlotRepository(store, key)
		deps.outboxRepo = postgres.NewOutboxRepository(store)
		logger.Info("postgres storage initialized")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	products, err := initCatalog(ctx, cfg, openPostgres, logger)
	if err != nil {
		deps.close(logger)
		return nil, err
	}
	deps.catalog = products

	return deps, nil
}

func initCatalog(ctx context.Context, cfg Config, openPostgres func() (*postgres.Store, error), logger *log.Entry) (domain.Catalog, error) {
	var seed []domain.Product
	if cfg.CatalogFile != "" {
		products, err := catalog.LoadFile(cfg.CatalogFile)
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		seed = products
	}

	switch cfg.CatalogSource {
	case "", CatalogSourceFile:
		if cfg.CatalogFile == "" {
			logger.Warn("catalog file is not configured, catalog is empty")
		}
		logger.WithField("products", len(seed)).Info("in-memory catalog initialized")
		return catalog.NewMemory(seed...), nil
	case CatalogSourcePostgres:
		store, err := openPostgres()
		if err != nil {
			return nil, fmt.Errorf("init postgres catalog: %w", err)
		}
		repo := postgres.NewCatalogRepository(store)
		if len(seed) > 0 {
			if err := repo.Upsert(ctx, seed...); err != nil {
				return nil, fmt.Errorf("seed postgres catalog: %w", err)
			}
			logger.WithField("products", len(seed)).Info("postgres catalog seeded")
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported catalog source %q", cfg.CatalogSource)
	}
}
