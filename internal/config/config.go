package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN       string `env:"DATABASE_DSN,required=true"`
	RedisURL          string `env:"REDIS_URL,required=true"`
	NotifierURL       string `env:"NOTIFIER_WEBHOOK_URL,required=true"`
	APIPort           int    `env:"API_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
	DispatchCron      string `env:"DISPATCH_CRON,default=*/10 * * * *"`
	RecoveryCron      string `env:"RECOVERY_CRON,default=*/15 * * * *"`
	PurgeCron         string `env:"PURGE_CRON,default=30 3 * * *"`
	ToleranceMinutes  int    `env:"DISPATCH_TOLERANCE_MIN,default=60"`
	DedupWindowHours  int    `env:"DEDUP_WINDOW_HOURS,default=20"`
	MaxSendAttempts   int    `env:"MAX_SEND_ATTEMPTS,default=5"`
	RetentionDays     int    `env:"DELIVERY_RETENTION_DAYS,default=90"`
	LeaseTTLSeconds   int    `env:"DISPATCH_LEASE_TTL_SEC,default=300"`
	SendConcurrency   int    `env:"SEND_CONCURRENCY,default=8"`
	RateLimitPerSec   int    `env:"RATE_LIMIT_PER_SEC,default=50"`
	DispatchBatchSize int    `env:"DISPATCH_BATCH_SIZE,default=500"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
