package main

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is read from the environment at startup.
type Config struct {
	Addr     string `env:"HUMANIZERD_ADDR" envDefault:":8080"`
	LogLevel string `env:"HUMANIZERD_LOG_LEVEL" envDefault:"info"`

	// Store selection: memory, sqlite, redis, or mongo.
	Store      string `env:"HUMANIZERD_STORE" envDefault:"memory"`
	SQLitePath string `env:"HUMANIZERD_SQLITE_PATH" envDefault:"humanizer.db"`

	RedisAddr     string `env:"HUMANIZERD_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"HUMANIZERD_REDIS_PASSWORD"`
	RedisDB       int    `env:"HUMANIZERD_REDIS_DB" envDefault:"0"`

	MongoURI      string `env:"HUMANIZERD_MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"HUMANIZERD_MONGO_DATABASE" envDefault:"humanizer"`

	// Engine tuning
	ReservationTTL  time.Duration `env:"HUMANIZERD_RESERVATION_TTL" envDefault:"2m"`
	SweepInterval   time.Duration `env:"HUMANIZERD_SWEEP_INTERVAL" envDefault:"30s"`
	UsageBatchSize  int           `env:"HUMANIZERD_USAGE_BATCH_SIZE" envDefault:"64"`
	UsageFlushEvery time.Duration `env:"HUMANIZERD_USAGE_FLUSH_INTERVAL" envDefault:"5s"`
	ProcessingDelay time.Duration `env:"HUMANIZERD_PROCESSING_DELAY" envDefault:"0"`

	// Optional YAML rule set overriding the built-in rules.
	RulesPath string `env:"HUMANIZERD_RULES_PATH"`

	// Per-client rate limit (requests per second, with burst).
	RateLimit float64 `env:"HUMANIZERD_RATE_LIMIT" envDefault:"10"`
	RateBurst int     `env:"HUMANIZERD_RATE_BURST" envDefault:"20"`

	ShutdownTimeout time.Duration `env:"HUMANIZERD_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LoadConfig parses the configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
