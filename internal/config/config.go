package config

import (
	"fmt"
	"github.com/caarlos0/env/v11"
	"github.com/go-sql-driver/mysql"
	"time"
)

// DBConfig is one MySQL connection, read from env vars under a prefix such as DB1_.
type DBConfig struct {
	Host string `env:"HOST" envDefault:"127.0.0.1"`
	Port string `env:"PORT" envDefault:"3306"`
	User string `env:"USER" envDefault:"root"`
	Pass string `env:"PASS"`
	Name string `env:"NAME" envDefault:"allocation-db"`
}

// DSN builds the go-sql-driver connection string.
func (d DBConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Pass
	cfg.Net = "tcp"
	cfg.Addr = d.Host + ":" + d.Port
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

type Config struct {
	Port string `env:"PORT" envDefault:"8084"`
	Env  string `env:"ENV" envDefault:"development"`

	// Main database: rules, master data, settings, reservation ledger.
	MainDB     DBConfig `envPrefix:"DB1_"`
	ShardCount int      `env:"ORDER_SHARDS" envDefault:"3"`

	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RuleCacheTTL  time.Duration `env:"RULE_CACHE_TTL" envDefault:"5m"`
	IdempotentTTL time.Duration `env:"IDEMPOTENT_KEY_TTL" envDefault:"24h"`

	KafkaBrokers    []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092,localhost:9093,localhost:9094"`
	AllocationTopic string   `env:"ALLOCATION_TOPIC" envDefault:"allocation-topic"`
	OrderLineTopic  string   `env:"ORDER_LINE_TOPIC" envDefault:"order-line-topic"`
	ConsumerGroupID string   `env:"CONSUMER_GROUP_ID" envDefault:"allocation-service-group"`

	StockServiceURL string        `env:"STOCK_SERVICE_URL" envDefault:"http://localhost:8081"`
	StockTimeout    time.Duration `env:"STOCK_TIMEOUT" envDefault:"5s"`

	JWTSecret      string  `env:"JWT_SECRET" envDefault:"secret"`
	RateLimit      float64 `env:"RATE_LIMIT" envDefault:"10"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"30"`

	orderShards []DBConfig
}

// Load parses the environment. Order shards are read from DB1_..DBn_ where n is
// ORDER_SHARDS.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.ShardCount < 1 {
		cfg.ShardCount = 1
	}
	for i := 1; i <= cfg.ShardCount; i++ {
		shard := DBConfig{}
		opts := env.Options{Prefix: fmt.Sprintf("DB%d_", i)}
		if err := env.ParseWithOptions(&shard, opts); err != nil {
			return nil, fmt.Errorf("parse shard %d env: %w", i, err)
		}
		cfg.orderShards = append(cfg.orderShards, shard)
	}

	return cfg, nil
}

// OrderShards returns the order databases; the first one is the main database.
func (c *Config) OrderShards() []DBConfig {
	return c.orderShards
}

// IsTest mirrors the ENV=test switch used to run without external services.
func (c *Config) IsTest() bool {
	return c.Env == "test"
}
