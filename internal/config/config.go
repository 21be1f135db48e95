package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
	DriverMemory   = "memory"
)

type Config struct {
	Port          string `env:"PORT" envDefault:"8085"`
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`
	BoltPath      string `env:"BOLT_PATH" envDefault:"refunds.db"`

	RedisURL string `env:"REDIS_URL"`

	KafkaBrokers      string `env:"KAFKA_BROKERS"`
	KafkaTopic        string `env:"KAFKA_TOPIC" envDefault:"refund.state.changed"`
	KafkaRequestTopic string `env:"KAFKA_REQUEST_TOPIC" envDefault:"refund.requested"`
	IntakeEnabled     bool   `env:"INTAKE_ENABLED" envDefault:"false"`

	NatsURL       string        `env:"NATS_URL"`
	LedgerSubject string        `env:"LEDGER_SUBJECT" envDefault:"ledger.transaction.get"`
	LedgerTimeout time.Duration `env:"LEDGER_TIMEOUT" envDefault:"5s"`

	PaymentGatewayURL string        `env:"PAYMENT_GATEWAY_URL"`
	GatewayTimeout    time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`

	JWTSecret      string `env:"JWT_SECRET"`
	JaegerEndpoint string `env:"JAEGER_ENDPOINT"`

	DispatchWorkers     int           `env:"DISPATCH_WORKERS" envDefault:"4"`
	DispatchMaxAttempts int           `env:"DISPATCH_MAX_ATTEMPTS" envDefault:"5"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case DriverBolt:
		if c.BoltPath == "" {
			errs = append(errs, errors.New("BOLT_PATH is required for the bolt driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IntakeEnabled && c.KafkaBrokers == "" {
		errs = append(errs, errors.New("INTAKE_ENABLED requires KAFKA_BROKERS"))
	}
	if c.DispatchWorkers < 1 {
		errs = append(errs, errors.New("DISPATCH_WORKERS must be at least 1"))
	}
	if c.DispatchMaxAttempts < 1 {
		errs = append(errs, errors.New("DISPATCH_MAX_ATTEMPTS must be at least 1"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}
