package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartstore/internal/app"
	"github.com/vladislavdragonenkov/cartstore/internal/version"
)

const (
	envHTTPAddr            = "CART_HTTP_ADDR"
	envGRPCAddr            = "CART_GRPC_ADDR"
	envMetricsAddr         = "CART_METRICS_ADDR"
	envSessionID           = "CART_SESSION_ID"
	envCurrencySymbol      = "CART_CURRENCY_SYMBOL"
	envStorageDriver       = "CART_STORAGE_DRIVER"
	envFilePath            = "CART_FILE_PATH"
	envRedisAddr           = "CART_REDIS_ADDR"
	envRedisPassword       = "CART_REDIS_PASSWORD"
	envRedisDB             = "CART_REDIS_DB"
	envPostgresDSN         = "CART_POSTGRES_DSN"
	envPostgresAutoMigrate = "CART_POSTGRES_AUTO_MIGRATE"
	envCatalogSource       = "CART_CATALOG_SOURCE"
	envCatalogFile         = "CART_CATALOG_FILE"
	envKafkaBrokers        = "CART_KAFKA_BROKERS"
	envKafkaTopic          = "CART_KAFKA_TOPIC"
	envKafkaCommandTopic   = "CART_KAFKA_COMMAND_TOPIC"
	envKafkaGroupID        = "CART_KAFKA_GROUP_ID"
	envOutboxPollInterval  = "CART_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "CART_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "CART_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "CART_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending    = "CART_OUTBOX_MAX_PENDING"
	envOutboxRetention     = "CART_OUTBOX_RETENTION"
	envOutboxCleanup       = "CART_OUTBOX_CLEANUP_INTERVAL"
	envLogLevel            = "CART_LOG_LEVEL"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	raw, ok := lookup(envLogLevel)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	level, err := log.ParseLevel(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", envLogLevel, err)
	}
	log.SetLevel(level)
	return nil
}

// readConfigFromEnv собирает конфигурацию из переменных окружения.
// Некорректные значения не прерывают запуск: остаётся значение по умолчанию и пишется предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	warn := func(key string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: %v, using default", key, err))
	}

	setString := func(key string, target *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}

	setString(envHTTPAddr, &cfg.HTTPAddr)
	setString(envGRPCAddr, &cfg.GRPCAddr)
	setString(envMetricsAddr, &cfg.MetricsAddr)
	setString(envSessionID, &cfg.SessionID)
	setString(envCurrencySymbol, &cfg.CurrencySymbol)
	setString(envFilePath, &cfg.FilePath)
	setString(envRedisAddr, &cfg.RedisAddr)
	setString(envPostgresDSN, &cfg.PostgresDSN)
	setString(envCatalogFile, &cfg.CatalogFile)
	setString(envKafkaTopic, &cfg.KafkaTopic)
	setString(envKafkaCommandTopic, &cfg.KafkaCommandTopic)
	setString(envKafkaGroupID, &cfg.KafkaGroupID)

	if v, ok := lookup(envRedisPassword); ok {
		cfg.RedisPassword = v
	}

	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		driver := strings.ToLower(strings.TrimSpace(v))
		switch driver {
		case app.StorageDriverMemory, app.StorageDriverFile, app.StorageDriverRedis, app.StorageDriverPostgres:
			cfg.StorageDriver = driver
		default:
			warn(envStorageDriver, fmt.Errorf("unsupported driver %q", driver))
		}
	}
	if v, ok := lookup(envCatalogSource); ok && strings.TrimSpace(v) != "" {
		source := strings.ToLower(strings.TrimSpace(v))
		switch source {
		case app.CatalogSourceFile, app.CatalogSourcePostgres:
			cfg.CatalogSource = source
		default:
			warn(envCatalogSource, fmt.Errorf("unsupported source %q", source))
		}
	}

	if v, ok := lookup(envKafkaBrokers); ok {
		var brokers []string
		for _, broker := range strings.Split(v, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				brokers = append(brokers, broker)
			}
		}
		cfg.KafkaBrokers = brokers
	}

	if v, ok := lookup(envPostgresAutoMigrate); ok {
		if parsed, err := parseBool(v); err != nil {
			warn(envPostgresAutoMigrate, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	nonNegative := func(v int) bool { return v >= 0 }
	positive := func(v int) bool { return v > 0 }

	intVars := []struct {
		key    string
		target *int
		valid  func(int) bool
		rule   string
	}{
		{envRedisDB, &cfg.RedisDB, nonNegative, "must be >= 0"},
		{envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0"},
		{envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0"},
		{envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0"},
	}
	for _, iv := range intVars {
		v, ok := lookup(iv.key)
		if !ok {
			continue
		}
		parsed, err := parseInt(v, iv.valid, iv.rule)
		if err != nil {
			warn(iv.key, err)
			continue
		}
		*iv.target = parsed
	}

	if v, ok := lookup(envOutboxPollInterval); ok {
		if parsed, err := parseDuration(v, func(d time.Duration) bool { return d > 0 }, "must be > 0"); err != nil {
			warn(envOutboxPollInterval, err)
		} else {
			cfg.OutboxPollInterval = parsed
		}
	}
	if v, ok := lookup(envOutboxRetryDelay); ok {
		if parsed, err := parseDuration(v, func(d time.Duration) bool { return d >= 0 }, "must be >= 0"); err != nil {
			warn(envOutboxRetryDelay, err)
		} else {
			cfg.OutboxRetryDelay = parsed
		}
	}
	if v, ok := lookup(envOutboxRetention); ok {
		if parsed, err := parseDuration(v, func(d time.Duration) bool { return d >= 0 }, "must be >= 0"); err != nil {
			warn(envOutboxRetention, err)
		} else {
			cfg.OutboxRetention = parsed
		}
	}
	if v, ok := lookup(envOutboxCleanup); ok {
		if parsed, err := parseDuration(v, func(d time.Duration) bool { return d > 0 }, "must be > 0"); err != nil {
			warn(envOutboxCleanup, err)
		} else {
			cfg.OutboxCleanupInterval = parsed
		}
	}

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q", raw)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q", raw)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-version" || os.Args[1] == "--version") {
		fmt.Println(version.String())
		return
	}

	if err := setupLogger(os.LookupEnv); err != nil {
		log.WithError(err).Warn("invalid log level, using info")
	}

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":        version.GetVersion(),
		"commit":         version.GetCommit(),
		"build_date":     version.GetDate(),
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"catalog_source": cfg.CatalogSource,
		"kafka_enabled":  len(cfg.KafkaBrokers) > 0,
	}).Info("запускаем корзину")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("корзина остановлена")
}
