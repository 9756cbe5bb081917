package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Vault      VaultConfig      `yaml:"vault"`
	Events     EventsConfig     `yaml:"events"`
	Redis      RedisConfig      `yaml:"redis"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port" validate:"min=1,max=65535"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" validate:"gt=0"`
	RateLimitBurst  int     `yaml:"rate_limit_burst" validate:"gt=0"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds" validate:"gte=0"`
	JWTSecret       string  `yaml:"jwt_secret" validate:"required,min=16"`
	AllowRemoteInit bool    `yaml:"allow_remote_init"`
	IdempotencyTTL  int     `yaml:"idempotency_ttl_seconds" validate:"gt=0"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver" validate:"oneof=postgres sqlite"`
	DSN                    string `yaml:"dsn" validate:"required"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level" validate:"omitempty,oneof=silent error warn info"`
}

// VaultConfig holds the escrow vault settings. Bootstrap identities, when all
// three are set, initialize the vault on first start.
type VaultConfig struct {
	Custody   string          `yaml:"custody_account" validate:"required"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// BootstrapConfig carries the identities used for first-start initialization.
type BootstrapConfig struct {
	Admin  string `yaml:"admin"`
	Token  string `yaml:"token"`
	Oracle string `yaml:"oracle"`
}

// Enabled reports whether all bootstrap identities are present.
func (b BootstrapConfig) Enabled() bool {
	return b.Admin != "" && b.Token != "" && b.Oracle != ""
}

// EventsConfig selects where domain events are published besides the log.
type EventsConfig struct {
	Source string      `yaml:"source"`
	Kafka  KafkaConfig `yaml:"kafka"`
	AMQP   AMQPConfig  `yaml:"amqp"`
}

// KafkaConfig holds the Kafka producer settings.
type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic" validate:"required_with=Brokers"`
	Compression  string   `yaml:"compression" validate:"omitempty,oneof=none gzip snappy lz4 zstd"`
	RequiredAcks int      `yaml:"required_acks" validate:"oneof=-1 0 1"`
	MaxAttempts  int      `yaml:"max_attempts"`
}

// AMQPConfig holds the RabbitMQ publisher settings.
type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange" validate:"required_with=URL"`
}

// RedisConfig points at the optional Redis used for idempotency keys.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether web push can be sent.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// OracleConfig holds the oracle relay settings.
type OracleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Identity        string        `yaml:"identity" validate:"required_if=Enabled true"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
	HTTPProxy       string        `yaml:"http_proxy"`
	Request         OracleRequest `yaml:"request"`
}

// OracleRequest defines the HTTP request for the upstream metering API.
type OracleRequest struct {
	URL      string            `yaml:"url" validate:"omitempty,url"`
	Headers  map[string]string `yaml:"headers"`
	PageSize int               `yaml:"pageSize"`
	Payload  map[string]any    `yaml:"payload"`
}

// LogConfig controls the application logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct tags of the configuration.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Oracle.Enabled && cfg.Oracle.Request.URL == "" {
		return fmt.Errorf("invalid configuration: oracle.request.url is required when the relay is enabled")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.IdempotencyTTL <= 0 {
		cfg.Server.IdempotencyTTL = 86400
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Vault.Custody == "" {
		cfg.Vault.Custody = "vault"
	}

	if cfg.Events.Source == "" {
		cfg.Events.Source = "session-escrow"
	}
	if cfg.Events.Kafka.RequiredAcks == 0 && len(cfg.Events.Kafka.Brokers) > 0 {
		cfg.Events.Kafka.RequiredAcks = -1
	}
	if cfg.Events.Kafka.MaxAttempts <= 0 {
		cfg.Events.Kafka.MaxAttempts = 3
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}

	if cfg.Oracle.IntervalSeconds <= 0 {
		cfg.Oracle.IntervalSeconds = 60
	}
	cfg.Oracle.Interval = time.Duration(cfg.Oracle.IntervalSeconds) * time.Second
	if cfg.Oracle.Request.PageSize <= 0 {
		cfg.Oracle.Request.PageSize = 100
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
