// Package config предоставляет структуры и функции для загрузки конфигурации сервиса.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/magabrotheeeer/ea-access/internal/lib/credential"
	"github.com/magabrotheeeer/ea-access/internal/lib/password"
)

// Типы хранилища.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config общая структура для хранения настроек.
type Config struct {
	Env             string `yaml:"env" env:"ENV" env-default:"local"`
	Storage         `yaml:"storage"`
	RedisConnection `yaml:"redis_connection"`
	HTTPServer      `yaml:"http_server"`
	JWTToken        `yaml:"jwttoken"`
	RabbitMQ        `yaml:"rabbitmq"`
	Token           TokenPolicy   `yaml:"token"`
	Quota           QuotaPolicy   `yaml:"quota"`
	Sweeper         SweeperConfig `yaml:"sweeper"`
	Clients         []Client      `yaml:"clients"`
}

// Storage настройки подключения к хранилищу.
type Storage struct {
	StorageType             string `yaml:"type" env:"STORAGE_TYPE" env-default:"postgres"`
	StorageConnectionString string `yaml:"connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	// RateLimit допустимое число запросов в секунду на клиента.
	RateLimit float64 `yaml:"rate_limit" env-default:"5"`
	RateBurst int     `yaml:"rate_burst" env-default:"10"`
}

// RedisConnection структура для настройки подключения к redis.
// Пустой адрес отключает кеш.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env-default:"1h"`
}

// JWTToken структура для работы с jwt-токеном клиентов API.
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// RabbitMQ настройки подключения к брокеру уведомлений.
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env-default:"3s"`
}

// TokenPolicy настройки выпуска EA-токенов.
type TokenPolicy struct {
	Length              int `yaml:"length" env-default:"8"`
	MaxGenerateAttempts int `yaml:"max_generate_attempts" env-default:"5"`
	DefaultDurationDays int `yaml:"default_duration_days" env-default:"30"`
}

// QuotaPolicy дневные лимиты тарифов.
type QuotaPolicy struct {
	FreeDailySignals int `yaml:"free_daily_signals" env-default:"5"`
}

// SweeperConfig настройки периодической очистки.
type SweeperConfig struct {
	Interval time.Duration `yaml:"interval" env-default:"1h"`
	// Embedded запускает очистку внутри HTTP-сервиса (обязательно для storage.type = memory).
	Embedded bool `yaml:"embedded" env:"SWEEPER_EMBEDDED"`
	// DBWaitAttempts число попыток дождаться миграций перед стартом отдельного процесса очистки.
	DBWaitAttempts int           `yaml:"db_wait_attempts" env-default:"10"`
	DBWaitDelay    time.Duration `yaml:"db_wait_delay" env-default:"3s"`
	// MetricsAddress адрес /metrics отдельного процесса очистки, пустая строка отключает метрики.
	MetricsAddress string `yaml:"metrics_address" env:"SWEEPER_METRICS_ADDRESS"`
}

// Client учётные данные вызывающей стороны API (бот, админка).
// PasswordHash печатает cmd/hash-password. Клиент с пустым хешем войти не может.
type Client struct {
	Name         string `yaml:"name"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

// Load читает конфиг из файла path и переменных окружения.
func Load(path string) (*Config, error) {
	const op = "config.Load"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, path)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad загружает конфиг по пути из CONFIG_PATH и завершает процесс при ошибке.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.StorageType {
	case StoragePostgres:
		if c.StorageConnectionString == "" {
			return fmt.Errorf("storage connection_string is required for postgres storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage type %q", c.StorageType)
	}
	if c.Token.Length < credential.MinLength || c.Token.Length > credential.MaxLength {
		return fmt.Errorf("token length must be between %d and %d, got %d",
			credential.MinLength, credential.MaxLength, c.Token.Length)
	}
	if c.Token.MaxGenerateAttempts < 1 {
		return fmt.Errorf("token max_generate_attempts must be positive")
	}
	if c.Quota.FreeDailySignals < 0 {
		return fmt.Errorf("quota free_daily_signals must not be negative")
	}
	seen := make(map[string]struct{}, len(c.Clients))
	for i, client := range c.Clients {
		if client.Name == "" || client.Role == "" {
			return fmt.Errorf("client #%d: name and role are required", i)
		}
		if _, ok := seen[client.Name]; ok {
			return fmt.Errorf("client %q is declared twice", client.Name)
		}
		seen[client.Name] = struct{}{}
		// пустой хеш отключает вход клиента
		if client.PasswordHash == "" {
			continue
		}
		if err := password.CheckHash(client.PasswordHash); err != nil {
			return fmt.Errorf("client %q: invalid password_hash: %w", client.Name, err)
		}
	}
	return nil
}

// String возвращает конфиг без секретов.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"Storage: %s\n"+
			"Redis: %s db=%d\n"+
			"HTTPServer: %s timeout=%s idle=%s\n"+
			"RabbitMQ: configured=%t\n"+
			"Token: length=%d attempts=%d default_days=%d\n"+
			"Quota: free_daily_signals=%d\n"+
			"Sweeper: interval=%s embedded=%t metrics=%q\n"+
			"Clients: %d\n",
		c.Env,
		c.StorageType,
		c.AddressRedis, c.DB,
		c.AddressHTTP, c.TimeoutHTTP, c.IdleTimeout,
		c.RabbitMQURL != "",
		c.Token.Length, c.Token.MaxGenerateAttempts, c.Token.DefaultDurationDays,
		c.Quota.FreeDailySignals,
		c.Sweeper.Interval, c.Sweeper.Embedded, c.Sweeper.MetricsAddress,
		len(c.Clients),
	)
}
