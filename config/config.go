package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"goflare.io/ember"
	emberConfig "goflare.io/ember/config"
	"goflare.io/ignite"

	"goflare.io/chargeprocessor/driver"
)

const (
	ServerStartPort = ":8080"

	envPrefix = "CHARGEPROCESSOR"
)

type Config struct {
	Environment  string `mapstructure:"environment"`
	AdminActorID string `mapstructure:"admin_actor_id"`

	Stripe   StripeConfig   `mapstructure:"stripe"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Backtax  BacktaxConfig  `mapstructure:"backtax"`
	Events   EventsConfig   `mapstructure:"events"`
}

type StripeConfig struct {
	SecretKey                 string   `mapstructure:"secret_key"`
	WebhookSecret             string   `mapstructure:"webhook_secret"`
	PlatformAccountID         string   `mapstructure:"platform_account_id"`
	Currency                  string   `mapstructure:"currency"`
	StatementDescriptorPrefix string   `mapstructure:"statement_descriptor_prefix"`
	MandateCountries          []string `mapstructure:"mandate_countries"`
}

type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type WorkerConfig struct {
	MaxWorkers int `mapstructure:"max_workers"`
	QueueSize  int `mapstructure:"queue_size"`
}

type BacktaxConfig struct {
	Schedule string `mapstructure:"schedule"`
}

// EventsConfig drives the sweep that re-runs stored events whose handling
// failed or never finished.
type EventsConfig struct {
	RetrySchedule string        `mapstructure:"retry_schedule"`
	RetryAfter    time.Duration `mapstructure:"retry_after"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryBatch    int           `mapstructure:"retry_batch"`
}

// IsProductionLike reports whether data inconsistencies must fail loudly.
func (c *Config) IsProductionLike() bool {
	switch strings.ToLower(c.Environment) {
	case "production", "staging":
		return true
	}
	return false
}

func ProvideApplicationConfig() (*Config, error) {
	return LoadConfig("./config.yaml")
}

// LoadConfig reads the yaml file at path and applies CHARGEPROCESSOR_* environment
// overrides, e.g. CHARGEPROCESSOR_STRIPE_SECRET_KEY.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Stripe.SecretKey == "" {
		return nil, fmt.Errorf("stripe.secret_key is required")
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("admin_actor_id", "")
	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.webhook_secret", "")
	v.SetDefault("stripe.platform_account_id", "")
	v.SetDefault("stripe.currency", "usd")
	v.SetDefault("stripe.statement_descriptor_prefix", "")
	v.SetDefault("stripe.mandate_countries", []string{"IN"})
	v.SetDefault("postgres.url", "postgres://localhost:5432/chargeprocessor?sslmode=disable")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("nats.url", nats.DefaultURL)
	v.SetDefault("worker.max_workers", 10)
	v.SetDefault("worker.queue_size", 1000)
	v.SetDefault("backtax.schedule", "0 */6 * * *")
	v.SetDefault("events.retry_schedule", "*/5 * * * *")
	v.SetDefault("events.retry_after", "5m")
	v.SetDefault("events.max_attempts", 10)
	v.SetDefault("events.retry_batch", 100)
}

func ProvidePostgresConn(appConfig *Config) (driver.PostgresPool, error) {

	conn, err := driver.ConnectSQL(appConfig.Postgres.URL)
	if err != nil {
		return nil, err
	}

	return conn.Pool, nil
}

func ProvideRedis(appConfig *Config) (*redis.Client, error) {
	return driver.ConnectRedis(appConfig.Redis.Addr, appConfig.Redis.Password, appConfig.Redis.DB)
}

func ProvideEmber(conn *redis.Client) (*ember.MultiCache, error) {
	config := emberConfig.NewConfig()
	cache, err := ember.NewMultiCache(context.Background(), &config, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return cache, nil
}

func ProvideIgnite() ignite.Manager {
	return ignite.NewManager()
}

func ProvideNATS(appConfig *Config, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(appConfig.NATS.URL,
		nats.Name("chargeprocessor"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("error connecting to nats: %w", err)
	}
	return nc, nil
}

// NewLogger builds a production logger in production-like environments and a
// development logger everywhere else.
func NewLogger(appConfig *Config) *zap.Logger {

	var (
		logger *zap.Logger
		err    error
	)
	if appConfig.IsProductionLike() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger.With(zap.String("environment", appConfig.Environment))
}
