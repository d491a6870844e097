package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":50051"`

	ProductBackend     string `envconfig:"PRODUCT_BACKEND" default:"memory"`
	ReviewBackend      string `envconfig:"REVIEW_BACKEND" default:"memory"`
	InventoryBackend   string `envconfig:"INVENTORY_BACKEND" default:"memory"`
	IdempotencyBackend string `envconfig:"IDEMPOTENCY_BACKEND" default:"memory"`
	JournalBackend     string `envconfig:"JOURNAL_BACKEND" default:"memory"`

	SQLDriver     string `envconfig:"SQL_DRIVER" default:"mysql"`
	SQLDSN        string `envconfig:"SQL_DSN" default:"root:root@tcp(localhost:3306)/catalog?parseTime=true"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPoolSize int    `envconfig:"REDIS_POOL_SIZE" default:"100"`
	MongoURI      string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"catalog"`

	WorkerCount     int           `envconfig:"WORKER_COUNT" default:"10"`
	QueueSize       int           `envconfig:"QUEUE_SIZE" default:"10000"`
	IdempotencyTTL  time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse env")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	checks := []struct {
		name    string
		value   string
		allowed []string
	}{
		{"PRODUCT_BACKEND", c.ProductBackend, []string{BackendMemory, BackendSQL, BackendRedis}},
		{"REVIEW_BACKEND", c.ReviewBackend, []string{BackendMemory, BackendSQL, BackendMongo}},
		{"INVENTORY_BACKEND", c.InventoryBackend, []string{BackendMemory, BackendSQL, BackendRedis}},
		{"IDEMPOTENCY_BACKEND", c.IdempotencyBackend, []string{BackendMemory, BackendRedis}},
		{"JOURNAL_BACKEND", c.JournalBackend, []string{BackendMemory, BackendSQL}},
		{"SQL_DRIVER", c.SQLDriver, []string{"mysql", "sqlite"}},
		{"LOG_FORMAT", c.LogFormat, []string{"json", "text"}},
	}
	for _, check := range checks {
		if !oneOf(check.value, check.allowed) {
			return errors.Errorf("%s must be one of %s, got %q", check.name, strings.Join(check.allowed, ", "), check.value)
		}
	}

	if c.WorkerCount <= 0 {
		return errors.New("WORKER_COUNT must be positive")
	}
	if c.QueueSize <= 0 {
		return errors.New("QUEUE_SIZE must be positive")
	}
	if c.Uses(BackendSQL) && c.SQLDSN == "" {
		return errors.New("SQL_DSN is required for the sql backend")
	}
	return nil
}

// Uses reports whether any resource is configured with backend.
func (c *Config) Uses(backend string) bool {
	for _, b := range []string{c.ProductBackend, c.ReviewBackend, c.InventoryBackend, c.IdempotencyBackend, c.JournalBackend} {
		if b == backend {
			return true
		}
	}
	return false
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
