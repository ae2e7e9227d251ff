package app

import (
	"time"

	"github.com/vladislavdragonenkov/cartstore/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/cartstore/internal/view"
)

const (
	// StorageDriverMemory хранит корзину только в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverFile хранит корзину в JSON-файле.
	StorageDriverFile = "file"
	// StorageDriverRedis хранит корзину в Redis и слушает чужие записи.
	StorageDriverRedis = "redis"
	// StorageDriverPostgres хранит корзину и outbox в PostgreSQL.
	StorageDriverPostgres = "postgres"

	// CatalogSourceFile читает каталог из YAML/JSON/TOML файла.
	CatalogSourceFile = "file"
	// CatalogSourcePostgres читает каталог из таблицы products.
	CatalogSourcePostgres = "postgres"
)

// Config описывает настройки запуска сервиса корзины.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	// SessionID пустой — генерируется новый идентификатор.
	SessionID      string
	CurrencySymbol string

	StorageDriver       string
	FilePath            string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	PostgresDSN         string
	PostgresAutoMigrate bool

	CatalogSource string
	CatalogFile   string

	KafkaBrokers      []string
	KafkaTopic        string
	KafkaCommandTopic string
	KafkaGroupID      string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int
	// OutboxRetention — сколько хранить отправленные сообщения до очистки.
	OutboxRetention       time.Duration
	OutboxCleanupInterval time.Duration
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:              ":8080",
		GRPCAddr:              ":50051",
		MetricsAddr:           ":9090",
		CurrencySymbol:        view.DefaultCurrencySymbol,
		StorageDriver:         StorageDriverMemory,
		FilePath:              "./data",
		RedisAddr:             "localhost:6379",
		PostgresAutoMigrate:   true,
		CatalogSource:         CatalogSourceFile,
		KafkaTopic:            kafka.TopicCartEvents,
		KafkaCommandTopic:     kafka.TopicCartCommands,
		KafkaGroupID:          "cartd",
		OutboxPollInterval:    time.Second,
		OutboxBatchSize:       100,
		OutboxMaxAttempts:     3,
		OutboxRetryDelay:      100 * time.Millisecond,
		OutboxMaxPending:      1000,
		OutboxRetention:       24 * time.Hour,
		OutboxCleanupInterval: 10 * time.Minute,
	}
}
