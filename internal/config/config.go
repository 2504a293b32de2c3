// Package config defines all configuration for the trading engine runtime.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via MARKETCORE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/koshedu/marketcore/internal/streams/reconnect"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Exchanges     []ExchangeConfig     `mapstructure:"exchanges"`
	Subscriptions []SubscriptionConfig `mapstructure:"subscriptions"`
	Reconnect     ReconnectConfig      `mapstructure:"reconnect"`
	Execution     ExecutionConfig      `mapstructure:"execution"`
	Indexer       IndexerConfig        `mapstructure:"indexer"`
	Logging       LoggingConfig        `mapstructure:"logging"`
	Postgres      PostgresConfig       `mapstructure:"postgres"`
	Redis         RedisConfig          `mapstructure:"redis"`
}

// SubscriptionConfig is one market data subscription the engine requests at
// startup, naming its exchange/instrument/kind in plain strings.
type SubscriptionConfig struct {
	Exchange string `mapstructure:"exchange"`
	Base     string `mapstructure:"base"`
	Quote    string `mapstructure:"quote"`
	Kind     string `mapstructure:"kind"`
}

// ExchangeConfig names one exchange the engine connects to and the
// credentials its ExecutionClient signs requests with.
type ExchangeConfig struct {
	Name      string `mapstructure:"name"`
	ApiKey    string `mapstructure:"api_key"`
	ApiSecret string `mapstructure:"api_secret"`
	Testnet   bool   `mapstructure:"testnet"`
}

// ReconnectConfig tunes the exponential backoff shared by every
// ReconnectingStream and ExecutionManager account stream (spec §5).
type ReconnectConfig struct {
	Base        time.Duration `mapstructure:"base"`
	Factor      float64       `mapstructure:"factor"`
	Max         time.Duration `mapstructure:"max"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// ToPolicy converts the loaded configuration into a reconnect.Policy.
func (r ReconnectConfig) ToPolicy() reconnect.Policy {
	return reconnect.Policy{
		Base:        r.Base,
		Factor:      r.Factor,
		Max:         r.Max,
		MaxAttempts: r.MaxAttempts,
	}
}

// ExecutionConfig tunes the ExecutionManager's per-request behaviour.
type ExecutionConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// IndexerConfig points at the seed data used to build the NameIndexer.
type IndexerConfig struct {
	AssetsPath      string `mapstructure:"assets_path"`
	InstrumentsPath string `mapstructure:"instruments_path"`
}

// LoggingConfig selects zerolog's level and output format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PostgresConfig configures the pgx-backed position/balance repository.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig configures the optional sequence/snapshot cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load reads config from a YAML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MARKETCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("reconnect.base", time.Second)
	v.SetDefault("reconnect.factor", 2.0)
	v.SetDefault("reconnect.max", 64*time.Second)
	v.SetDefault("reconnect.max_attempts", 0)
	v.SetDefault("execution.request_timeout", 10*time.Second)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	for i := range cfg.Exchanges {
		envKey := strings.ToUpper(cfg.Exchanges[i].Name) + "_API_SECRET"
		if secret := os.Getenv("MARKETCORE_" + envKey); secret != "" {
			cfg.Exchanges[i].ApiSecret = secret
		}
	}
	if dsn := os.Getenv("MARKETCORE_POSTGRES_DSN"); dsn != "" {
		cfg.Postgres.DSN = dsn
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if len(c.Exchanges) == 0 {
		return fmt.Errorf("at least one entry under exchanges is required")
	}
	for _, ex := range c.Exchanges {
		if ex.Name == "" {
			return fmt.Errorf("exchanges[].name is required")
		}
	}
	if c.Reconnect.Base <= 0 {
		return fmt.Errorf("reconnect.base must be > 0")
	}
	if c.Reconnect.Factor <= 1.0 {
		return fmt.Errorf("reconnect.factor must be > 1.0")
	}
	if c.Reconnect.Max < c.Reconnect.Base {
		return fmt.Errorf("reconnect.max must be >= reconnect.base")
	}
	if c.Indexer.InstrumentsPath == "" {
		return fmt.Errorf("indexer.instruments_path is required")
	}
	return nil
}
