package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config структура конфигурации приложения
type Config struct {
	Server    ServerConfig
	GRPC      GRPCConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Stripe    StripeConfig
	Discord   DiscordConfig
	Auth      AuthConfig
	Reconcile ReconcileConfig
	Logging   LoggingConfig
}

// ServerConfig конфигурация HTTP сервера
type ServerConfig struct {
	Port            string
	Env             string
	ReadTimeout     int
	WriteTimeout    int
	ShutdownTimeout int
}

// GRPCConfig конфигурация gRPC сервера (health-check)
type GRPCConfig struct {
	Port    string
	Enabled bool
}

// DatabaseConfig конфигурация базы данных
type DatabaseConfig struct {
	Driver   string // postgres | memory
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Migrate  bool
}

// RedisConfig конфигурация кеша корреляции
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// KafkaConfig конфигурация публикации событий
type KafkaConfig struct {
	Driver  string // kafka-go | sarama
	Brokers []string
	Topic   string
}

// StripeConfig конфигурация Stripe
type StripeConfig struct {
	WebhookSecret string
	Tolerance     time.Duration
}

// DiscordConfig конфигурация внешнего каталога пользователей
type DiscordConfig struct {
	BotToken  string
	CacheTTL  time.Duration
	StaticIDs []string
}

// AuthConfig конфигурация административного API
type AuthConfig struct {
	JWTSecret string
}

// ReconcileConfig параметры движка сверки
type ReconcileConfig struct {
	Timeout          time.Duration
	BillingCycleDays int
	FreeAllowance    int
	PremiumAllowance int
}

// LoggingConfig конфигурация логгера
type LoggingConfig struct {
	Level string
}

// UsagePolicy лимиты использования по уровням
func (c ReconcileConfig) UsagePolicy() domain.UsagePolicy {
	return domain.UsagePolicy{
		FreeAllowance:    c.FreeAllowance,
		PremiumAllowance: c.PremiumAllowance,
	}
}

// BillingCycle длительность одного платежного цикла
func (c ReconcileConfig) BillingCycle() time.Duration {
	return time.Duration(c.BillingCycleDays) * 24 * time.Hour
}

// GetDSN возвращает строку подключения к базе данных
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// setDefaults значения по умолчанию для всех ключей
func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "4242")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SERVER_READ_TIMEOUT", 15)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 15)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 30)

	v.SetDefault("GRPC_ENABLED", true)
	v.SetDefault("GRPC_PORT", "50051")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "billing")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MIGRATE", true)

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_TTL", "15m")

	v.SetDefault("KAFKA_DRIVER", "kafka-go")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "entitlement_changed")

	v.SetDefault("STRIPE_WEBHOOK_SECRET", "")
	v.SetDefault("STRIPE_WEBHOOK_TOLERANCE", "5m")

	v.SetDefault("DISCORD_BOT_TOKEN", "")
	v.SetDefault("DISCORD_CACHE_TTL", "10m")
	v.SetDefault("DIRECTORY_STATIC_IDS", "")

	v.SetDefault("JWT_SECRET", "")

	v.SetDefault("RECONCILE_TIMEOUT", "10s")
	v.SetDefault("RECONCILE_BILLING_CYCLE_DAYS", 30)
	v.SetDefault("USAGE_FREE_ALLOWANCE", 20)
	v.SetDefault("USAGE_PREMIUM_ALLOWANCE", 500)

	v.SetDefault("LOG_LEVEL", "info")
}

// Load загружает конфигурацию из переменных окружения (и .env, если он есть)
func Load() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("PORT"),
			Env:             v.GetString("APP_ENV"),
			ReadTimeout:     v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetInt("SERVER_WRITE_TIMEOUT"),
			ShutdownTimeout: v.GetInt("SERVER_SHUTDOWN_TIMEOUT"),
		},
		GRPC: GRPCConfig{
			Port:    v.GetString("GRPC_PORT"),
			Enabled: v.GetBool("GRPC_ENABLED"),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(v.GetString("DB_DRIVER")),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Database: v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
			Migrate:  v.GetBool("DB_MIGRATE"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			TTL:      v.GetDuration("REDIS_TTL"),
		},
		Kafka: KafkaConfig{
			Driver:  strings.ToLower(v.GetString("KAFKA_DRIVER")),
			Brokers: splitList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		Stripe: StripeConfig{
			WebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
			Tolerance:     v.GetDuration("STRIPE_WEBHOOK_TOLERANCE"),
		},
		Discord: DiscordConfig{
			BotToken:  v.GetString("DISCORD_BOT_TOKEN"),
			CacheTTL:  v.GetDuration("DISCORD_CACHE_TTL"),
			StaticIDs: splitList(v.GetString("DIRECTORY_STATIC_IDS")),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
		},
		Reconcile: ReconcileConfig{
			Timeout:          v.GetDuration("RECONCILE_TIMEOUT"),
			BillingCycleDays: v.GetInt("RECONCILE_BILLING_CYCLE_DAYS"),
			FreeAllowance:    v.GetInt("USAGE_FREE_ALLOWANCE"),
			PremiumAllowance: v.GetInt("USAGE_PREMIUM_ALLOWANCE"),
		},
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	var errs []error
	if c.Stripe.WebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}
	switch c.Kafka.Driver {
	case "kafka-go", "sarama":
	default:
		errs = append(errs, fmt.Errorf("unsupported KAFKA_DRIVER %q", c.Kafka.Driver))
	}
	if c.Reconcile.Timeout <= 0 {
		errs = append(errs, errors.New("RECONCILE_TIMEOUT must be positive"))
	}
	if c.Reconcile.BillingCycleDays <= 0 {
		errs = append(errs, errors.New("RECONCILE_BILLING_CYCLE_DAYS must be positive"))
	}
	if c.Reconcile.FreeAllowance < 0 || c.Reconcile.PremiumAllowance < 0 {
		errs = append(errs, errors.New("usage allowances must not be negative"))
	}
	return errors.Join(errs...)
}

// splitList разбирает список через запятую
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
