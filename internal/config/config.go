// Package config loads and validates the bus server's configuration: tagged
// struct fields parsed by caarlos0/env, an optional .env file for local
// development, and range/enum validation before anything else starts.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all server configuration.
//
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Config struct {
	// Identity and transport
	Addr          string `env:"MCCI_ADDR" envDefault:":7070"`
	MyNodeAddress uint32 `env:"MCCI_NODE_ADDRESS" envDefault:"1"`

	// Bank sizing (§6 "six bank_size_* prime-table hints")
	BankSizeHost       uint32 `env:"MCCI_BANK_SIZE_HOST" envDefault:"1024"`
	BankSizeVar        uint32 `env:"MCCI_BANK_SIZE_VAR" envDefault:"1024"`
	BankSizeHostVar    uint32 `env:"MCCI_BANK_SIZE_HOST_VAR" envDefault:"1024"`
	BankSizeVarRev     uint32 `env:"MCCI_BANK_SIZE_VAR_REV" envDefault:"1024"`
	BankSizeHostVarRev uint32 `env:"MCCI_BANK_SIZE_HOST_VAR_REV" envDefault:"1024"`

	// Per-client quota caps (§4.F)
	MaxLocalRequests  int32 `env:"MCCI_MAX_LOCAL_REQUESTS" envDefault:"64"`
	MaxRemoteRequests int32 `env:"MCCI_MAX_REMOTE_REQUESTS" envDefault:"64"`
	MaxClients        int   `env:"MCCI_MAX_CLIENTS" envDefault:"10000"`

	// Timeout sweep cadence (§6 `enforce_timeouts`)
	TimeoutSweepInterval time.Duration `env:"MCCI_TIMEOUT_SWEEP_INTERVAL" envDefault:"1s"`

	// Peer forwarding (§3.2)
	NATSURL string `env:"MCCI_NATS_URL" envDefault:"nats://localhost:4222"`

	// Production ingestion (§3.3)
	KafkaBrokers      string `env:"MCCI_KAFKA_BROKERS" envDefault:"localhost:19092"`
	KafkaTopic        string `env:"MCCI_KAFKA_TOPIC" envDefault:"mcci-production"`
	KafkaConsumerGroup string `env:"MCCI_KAFKA_CONSUMER_GROUP" envDefault:"mcci-bus-group"`

	// Admission control (§3.4)
	MaxRequestsPerSec  int     `env:"MCCI_MAX_REQUESTS_PER_SEC" envDefault:"2000"`
	MaxGoroutines      int     `env:"MCCI_MAX_GOROUTINES" envDefault:"2000"`
	CPURejectThreshold float64 `env:"MCCI_CPU_REJECT_THRESHOLD" envDefault:"75.0"`

	// Monitoring
	MetricsInterval time.Duration `env:"MCCI_METRICS_INTERVAL" envDefault:"15s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from a .env file (if present) and the process
// environment, in that priority order (env vars win), then validates it.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for out-of-range or nonsensical values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("MCCI_ADDR is required")
	}
	if c.MyNodeAddress == 0 {
		return fmt.Errorf("MCCI_NODE_ADDRESS must be nonzero (0 means \"any\" in request patterns)")
	}
	if c.MaxLocalRequests < 1 {
		return fmt.Errorf("MCCI_MAX_LOCAL_REQUESTS must be > 0, got %d", c.MaxLocalRequests)
	}
	if c.MaxRemoteRequests < 1 {
		return fmt.Errorf("MCCI_MAX_REMOTE_REQUESTS must be > 0, got %d", c.MaxRemoteRequests)
	}
	if c.MaxClients < 1 {
		return fmt.Errorf("MCCI_MAX_CLIENTS must be > 0, got %d", c.MaxClients)
	}
	if c.CPURejectThreshold < 0 || c.CPURejectThreshold > 100 {
		return fmt.Errorf("MCCI_CPU_REJECT_THRESHOLD must be 0-100, got %.1f", c.CPURejectThreshold)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}
	return nil
}

// LogConfig emits the loaded configuration via structured logging, the
// way an operator would want it in Loki/Grafana.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("addr", c.Addr).
		Uint32("my_node_address", c.MyNodeAddress).
		Int32("max_local_requests", c.MaxLocalRequests).
		Int32("max_remote_requests", c.MaxRemoteRequests).
		Int("max_clients", c.MaxClients).
		Dur("timeout_sweep_interval", c.TimeoutSweepInterval).
		Str("nats_url", c.NATSURL).
		Str("kafka_brokers", c.KafkaBrokers).
		Str("kafka_topic", c.KafkaTopic).
		Int("max_requests_per_sec", c.MaxRequestsPerSec).
		Int("max_goroutines", c.MaxGoroutines).
		Float64("cpu_reject_threshold", c.CPURejectThreshold).
		Dur("metrics_interval", c.MetricsInterval).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("configuration loaded")
}
