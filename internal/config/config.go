package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN  string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL  string `env:"RABBITMQ_URL,required=true"`
	RedisURL     string `env:"REDIS_URL,required=true"`
	PushAPIURL   string `env:"PUSH_API_URL,required=true"`
	ImageBaseURL string `env:"IMAGE_BASE_URL,default=https://cdn.richcast.io/rich"`

	RateLimitPerSec   int `env:"RATE_LIMIT_PER_SEC,default=100"`
	WorkerConcurrency int `env:"WORKER_CONCURRENCY,default=16"`
	DeliveryBatchSize int `env:"DELIVERY_BATCH_SIZE,default=50"`

	RetryMax             int `env:"RETRY_MAX,default=3"`
	RetryInitialSeconds  int `env:"RETRY_INITIAL_SECONDS,default=30"`
	RetryMaxDelaySeconds int `env:"RETRY_MAX_DELAY_SECONDS,default=3600"`

	SchedulerIntervalSeconds int `env:"SCHEDULER_INTERVAL_SECONDS,default=60"`
	RetryScanIntervalSeconds int `env:"RETRY_SCAN_INTERVAL_SECONDS,default=15"`
	DefaultDeliveryHour      int `env:"DEFAULT_DELIVERY_HOUR,default=9"`
	RecordRetentionDays      int `env:"RECORD_RETENTION_DAYS,default=30"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) SchedulerInterval() time.Duration {
	return time.Duration(c.SchedulerIntervalSeconds) * time.Second
}

func (c *Config) RetryScanInterval() time.Duration {
	return time.Duration(c.RetryScanIntervalSeconds) * time.Second
}

func (c *Config) RetryInitialDelay() time.Duration {
	return time.Duration(c.RetryInitialSeconds) * time.Second
}

func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelaySeconds) * time.Second
}
