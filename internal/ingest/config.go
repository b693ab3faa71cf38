package ingest

import (
	"errors"
	"time"

	"github.com/variant-labs/variant-go/internal/platform/env"
)

type Config struct {
	Enabled bool

	URL          string
	Stream       string
	Subject      string
	Durable      string
	BatchSize    int
	FetchTimeout time.Duration
	AckWait      time.Duration
}

func ConfigFromEnv() (Config, error) {
	enabled, err := env.Bool("EVENT_INGEST_ENABLED", false)
	if err != nil {
		return Config{}, err
	}
	batchSize, err := env.Int("EVENT_INGEST_BATCH_SIZE", 64)
	if err != nil {
		return Config{}, err
	}
	fetchTimeout, err := env.Duration("EVENT_INGEST_FETCH_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	ackWait, err := env.Duration("EVENT_INGEST_ACK_WAIT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Enabled:      enabled,
		URL:          env.String("NATS_URL", "nats://localhost:4222"),
		Stream:       env.String("EVENT_INGEST_STREAM", "VARIANT_EVENTS"),
		Subject:      env.String("EVENT_INGEST_SUBJECT", "variant.events.recorded"),
		Durable:      env.String("EVENT_INGEST_DURABLE", "variant-experiments"),
		BatchSize:    batchSize,
		FetchTimeout: fetchTimeout,
		AckWait:      ackWait,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.URL == "" {
		return errors.New("NATS_URL is required")
	}
	if c.Stream == "" {
		return errors.New("EVENT_INGEST_STREAM is required")
	}
	if c.Subject == "" {
		return errors.New("EVENT_INGEST_SUBJECT is required")
	}
	if c.Durable == "" {
		return errors.New("EVENT_INGEST_DURABLE is required")
	}
	if c.BatchSize < 1 {
		return errors.New("EVENT_INGEST_BATCH_SIZE must be >= 1")
	}
	if c.FetchTimeout <= 0 {
		return errors.New("EVENT_INGEST_FETCH_TIMEOUT must be positive")
	}
	if c.AckWait <= 0 {
		return errors.New("EVENT_INGEST_ACK_WAIT must be positive")
	}
	return nil
}
