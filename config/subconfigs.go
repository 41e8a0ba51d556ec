package config

import (
	"fmt"
	"time"

	"github.com/wb-go/wbf/retry"
)

type PostgresConfig struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST"`
	Port     int    `yaml:"port" env:"POSTGRES_PORT"`
	Name     string `yaml:"name" env:"POSTGRES_DB"`
	User     string `yaml:"user" env:"POSTGRES_USER"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD"`
	SSLMode  string `yaml:"sslmode" env:"POSTGRES_SSLMODE"`

	MaxOpenConnections           int `yaml:"max_open_connections" env:"POSTGRES_MAX_OPEN_CONNS"`
	MaxIdleConnections           int `yaml:"max_idle_connections" env:"POSTGRES_MAX_IDLE_CONNS"`
	ConnectionMaxLifetimeSeconds int `yaml:"connection_max_lifetime_seconds" env:"POSTGRES_CONN_MAX_LIFETIME_S"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type RabbitMQConfig struct {
	User            string `yaml:"user" env:"RABBITMQ_USER"`
	Password        string `yaml:"password" env:"RABBITMQ_PASSWORD"`
	Host            string `yaml:"host" env:"RABBITMQ_HOST"`
	Port            int    `yaml:"port" env:"RABBITMQ_PORT"`
	VHost           string `yaml:"vhost" env:"RABBITMQ_VHOST"`
	Exchange        string `yaml:"exchange" env:"RABBITMQ_EXCHANGE"`
	Queue           string `yaml:"queue" env:"RABBITMQ_QUEUE"`
	RetryQueue      string `yaml:"retry_queue" env:"RABBITMQ_RETRY_QUEUE"`
	DeadLetterQueue string `yaml:"dead_letter_queue" env:"RABBITMQ_DLQ"`
	Prefetch        int    `yaml:"prefetch" env:"RABBITMQ_PREFETCH"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.VHost)
}

type BlobConfig struct {
	Region   string `yaml:"region" env:"BLOB_REGION"`
	Bucket   string `yaml:"bucket" env:"BLOB_BUCKET"`
	Endpoint string `yaml:"endpoint" env:"BLOB_ENDPOINT"`
}

type RouterConfig struct {
	MaxRetries      int    `yaml:"max_retries" env:"ROUTER_MAX_RETRIES"`
	RetryDelayMS    int    `yaml:"retry_delay_ms" env:"ROUTER_RETRY_DELAY_MS"`
	Concurrency     int    `yaml:"concurrency" env:"ROUTER_CONCURRENCY"`
	TrackingBaseURL string `yaml:"tracking_base_url" env:"ROUTER_TRACKING_BASE_URL"`
	OpsAddr         string `yaml:"ops_addr" env:"ROUTER_OPS_ADDR"`
	MetricsAddr     string `yaml:"metrics_addr" env:"ROUTER_METRICS_ADDR"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes" env:"ROUTER_TOKEN_TTL_MINUTES"`
}

type RetryConfig struct {
	Attempts          int     `yaml:"attempts" env:"ATTEMPTS"`
	DelayMilliseconds int     `yaml:"delay_milliseconds" env:"DELAY_MS"`
	Backoff           float64 `yaml:"backoff" env:"BACKOFF"`
}

func (c RetryConfig) MakeStrategy() retry.Strategy {
	return retry.Strategy{
		Attempts: c.Attempts,
		Delay:    time.Duration(c.DelayMilliseconds) * time.Millisecond,
		Backoff:  c.Backoff,
	}
}
