// Package config loads the router configuration from env files and the
// process environment.
package config

import (
	"fmt"

	"github.com/wb-go/wbf/config"
)

type Config struct {
	Env           string         `yaml:"env" env:"ENV"`
	Database      PostgresConfig `yaml:"database"`
	Redis         RedisConfig    `yaml:"redis"`
	RabbitMQ      RabbitMQConfig `yaml:"rabbitmq"`
	Blob          BlobConfig     `yaml:"blob"`
	Router        RouterConfig   `yaml:"router"`
	PostgresRetry RetryConfig    `yaml:"postgres_retry"`
	RabbitMQRetry RetryConfig    `yaml:"rabbitmq_retry"`
	RedisRetry    RetryConfig    `yaml:"redis_retry"`
}

func NewConfig(envFilePath string, configFilePath string) (*Config, error) {
	myConfig := &Config{}

	cfg := config.New()

	if envFilePath != "" {
		if err := cfg.LoadEnvFiles(envFilePath); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}
	cfg.EnableEnv("")

	if configFilePath != "" {
		if err := cfg.LoadConfigFiles(configFilePath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	myConfig.Env = cfg.GetString("ENV")

	// Postgres
	myConfig.Database.Host = cfg.GetString("POSTGRES_HOST")
	myConfig.Database.Port = cfg.GetInt("POSTGRES_PORT")
	myConfig.Database.Name = cfg.GetString("POSTGRES_DB")
	myConfig.Database.User = cfg.GetString("POSTGRES_USER")
	myConfig.Database.Password = cfg.GetString("POSTGRES_PASSWORD")
	myConfig.Database.SSLMode = cfg.GetString("POSTGRES_SSLMODE")
	myConfig.Database.MaxOpenConnections = cfg.GetInt("POSTGRES_MAX_OPEN_CONNS")
	myConfig.Database.MaxIdleConnections = cfg.GetInt("POSTGRES_MAX_IDLE_CONNS")
	myConfig.Database.ConnectionMaxLifetimeSeconds = cfg.GetInt("POSTGRES_CONN_MAX_LIFETIME_S")

	// Redis
	myConfig.Redis.Addr = cfg.GetString("REDIS_ADDR")
	myConfig.Redis.Password = cfg.GetString("REDIS_PASSWORD")
	myConfig.Redis.DB = cfg.GetInt("REDIS_DB")

	// RabbitMQ
	myConfig.RabbitMQ.User = cfg.GetString("RABBITMQ_USER")
	myConfig.RabbitMQ.Password = cfg.GetString("RABBITMQ_PASSWORD")
	myConfig.RabbitMQ.Host = cfg.GetString("RABBITMQ_HOST")
	myConfig.RabbitMQ.Port = cfg.GetInt("RABBITMQ_PORT")
	myConfig.RabbitMQ.VHost = cfg.GetString("RABBITMQ_VHOST")
	myConfig.RabbitMQ.Exchange = cfg.GetString("RABBITMQ_EXCHANGE")
	myConfig.RabbitMQ.Queue = cfg.GetString("RABBITMQ_QUEUE")
	myConfig.RabbitMQ.RetryQueue = cfg.GetString("RABBITMQ_RETRY_QUEUE")
	myConfig.RabbitMQ.DeadLetterQueue = cfg.GetString("RABBITMQ_DLQ")
	myConfig.RabbitMQ.Prefetch = cfg.GetInt("RABBITMQ_PREFETCH")

	// Blob store
	myConfig.Blob.Region = cfg.GetString("BLOB_REGION")
	myConfig.Blob.Bucket = cfg.GetString("BLOB_BUCKET")
	myConfig.Blob.Endpoint = cfg.GetString("BLOB_ENDPOINT")

	// Router
	myConfig.Router.MaxRetries = cfg.GetInt("ROUTER_MAX_RETRIES")
	myConfig.Router.RetryDelayMS = cfg.GetInt("ROUTER_RETRY_DELAY_MS")
	myConfig.Router.Concurrency = cfg.GetInt("ROUTER_CONCURRENCY")
	myConfig.Router.TrackingBaseURL = cfg.GetString("ROUTER_TRACKING_BASE_URL")
	myConfig.Router.OpsAddr = cfg.GetString("ROUTER_OPS_ADDR")
	myConfig.Router.MetricsAddr = cfg.GetString("ROUTER_METRICS_ADDR")
	myConfig.Router.TokenTTLMinutes = cfg.GetInt("ROUTER_TOKEN_TTL_MINUTES")

	// Retry strategies
	myConfig.PostgresRetry.Attempts = cfg.GetInt("POSTGRES_RETRY_ATTEMPTS")
	myConfig.PostgresRetry.DelayMilliseconds = cfg.GetInt("POSTGRES_RETRY_DELAY_MS")
	myConfig.PostgresRetry.Backoff = cfg.GetFloat64("POSTGRES_RETRY_BACKOFF")

	myConfig.RabbitMQRetry.Attempts = cfg.GetInt("RABBITMQ_RETRY_ATTEMPTS")
	myConfig.RabbitMQRetry.DelayMilliseconds = cfg.GetInt("RABBITMQ_RETRY_DELAY_MS")
	myConfig.RabbitMQRetry.Backoff = cfg.GetFloat64("RABBITMQ_RETRY_BACKOFF")

	myConfig.RedisRetry.Attempts = cfg.GetInt("REDIS_RETRY_ATTEMPTS")
	myConfig.RedisRetry.DelayMilliseconds = cfg.GetInt("REDIS_RETRY_DELAY_MS")
	myConfig.RedisRetry.Backoff = cfg.GetFloat64("REDIS_RETRY_BACKOFF")

	return myConfig, nil
}
