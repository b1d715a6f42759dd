package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	App
	Stores
	Admission
	Queue
	Kafka
	Nats
}

type App struct {
	Port           string `env:"PORT" envDefault:"8082"`
	GRPCPort       string `env:"GRPC_PORT" envDefault:"9082"`
	JaegerEndpoint string `env:"JAEGER_ENDPOINT" envDefault:"jaeger:4318"`
}

type Stores struct {
	// Backend selects memory or redis for nonce, rate window and history state.
	Backend     string `env:"STATE_BACKEND" envDefault:"memory"`
	RedisURL    string `env:"REDIS_URL" envDefault:"localhost:6379"`
	DatabaseURL string `env:"DATABASE_URL"`
}

type Admission struct {
	NonceTTL         time.Duration `env:"NONCE_TTL" envDefault:"5m"`
	NonceCapacity    int           `env:"NONCE_CAPACITY" envDefault:"1000"`
	RateWindow       time.Duration `env:"RATE_WINDOW" envDefault:"60s"`
	IdentityLimit    int           `env:"RATE_IDENTITY_LIMIT" envDefault:"10"`
	OriginLimit      int           `env:"RATE_ORIGIN_LIMIT" envDefault:"50"`
	MinAmount        string        `env:"MIN_AMOUNT" envDefault:"0.01"`
	MaxAmount        string        `env:"MAX_AMOUNT" envDefault:"1000"`
	MaxClockSkew     time.Duration `env:"MAX_CLOCK_SKEW" envDefault:"5m"`
	AllowedTokens    []string      `env:"ALLOWED_TOKENS" envSeparator:"," envDefault:"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"`
	BlockedAddresses []string      `env:"BLOCKED_ADDRESSES" envSeparator:"," envDefault:"0x0000000000000000000000000000000000000000,0x0000000000000000000000000000000000000001"`
}

type Queue struct {
	MaxSize        int           `env:"QUEUE_MAX_SIZE" envDefault:"100"`
	TickInterval   time.Duration `env:"QUEUE_TICK_INTERVAL" envDefault:"3s"`
	FulfillTimeout time.Duration `env:"QUEUE_FULFILL_TIMEOUT" envDefault:"2m"`
	Retention      time.Duration `env:"QUEUE_RETENTION" envDefault:"1h"`
}

type Kafka struct {
	Brokers          string        `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	EventsTopic      string        `env:"KAFKA_EVENTS_TOPIC" envDefault:"mint.queue.events"`
	EventBuffer      int           `env:"KAFKA_EVENT_BUFFER" envDefault:"256"`
	RetryMaxAttempts int           `env:"KAFKA_RETRY_MAX_ATTEMPTS" envDefault:"5"`
	RetryBaseDelay   time.Duration `env:"KAFKA_RETRY_BASE_DELAY" envDefault:"100ms"`
	RetryMaxDelay    time.Duration `env:"KAFKA_RETRY_MAX_DELAY" envDefault:"10s"`
	RetryJitter      bool          `env:"KAFKA_RETRY_JITTER" envDefault:"true"`
}

type Nats struct {
	URL            string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	FulfillSubject string `env:"NATS_FULFILL_SUBJECT" envDefault:"mint.fulfill"`
}

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

func (k Kafka) GetRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: k.RetryMaxAttempts,
		BaseDelay:   k.RetryBaseDelay,
		MaxDelay:    k.RetryMaxDelay,
		Jitter:      k.RetryJitter,
	}
}

func (k Kafka) BrokerList() []string {
	return strings.Split(k.Brokers, ",")
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(".env")

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Stores.Backend != "memory" && cfg.Stores.Backend != "redis" {
		return nil, fmt.Errorf("unknown STATE_BACKEND %q", cfg.Stores.Backend)
	}
	for name, d := range map[string]time.Duration{
		"NONCE_TTL":             cfg.NonceTTL,
		"RATE_WINDOW":           cfg.RateWindow,
		"QUEUE_TICK_INTERVAL":   cfg.TickInterval,
		"QUEUE_FULFILL_TIMEOUT": cfg.FulfillTimeout,
		"QUEUE_RETENTION":       cfg.Retention,
	} {
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	for name, n := range map[string]int{
		"NONCE_CAPACITY":      cfg.NonceCapacity,
		"RATE_IDENTITY_LIMIT": cfg.IdentityLimit,
		"RATE_ORIGIN_LIMIT":   cfg.OriginLimit,
		"QUEUE_MAX_SIZE":      cfg.Queue.MaxSize,
	} {
		if n <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %d", name, n)
		}
	}
	for name, v := range map[string]string{"MIN_AMOUNT": cfg.MinAmount, "MAX_AMOUNT": cfg.MaxAmount} {
		if _, err := decimal.NewFromString(v); err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
	}
	return &cfg, nil
}
