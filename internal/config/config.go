package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	App        AppSettings        `mapstructure:"app"`
	Redis      RedisSettings      `mapstructure:"redis"`
	Token      TokenSettings      `mapstructure:"token"`
	Cache      CacheSettings      `mapstructure:"cache"`
	Validation ValidationSettings `mapstructure:"validation"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Addr string `mapstructure:"addr"`
}

// RedisSettings configures the authority store and event stream connection.
type RedisSettings struct {
	URL string `mapstructure:"url"`
}

// TokenSettings configures token issuance.
type TokenSettings struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// CacheSettings configures the local revocation cache.
type CacheSettings struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// ValidationSettings configures validation policy.
type ValidationSettings struct {
	// FailOpen accepts tokens when the authority store is down. Leave off
	// unless availability outweighs revocation latency; every acceptance
	// under an outage is logged.
	FailOpen bool `mapstructure:"fail_open"`
}

// Load reads configuration from config.yaml (optional) and RANGDA_-prefixed
// environment variables, applying defaults for anything unset.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("app.name", "rangda")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.addr", ":9000")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("token.ttl", 5*time.Minute)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("validation.fail_open", false)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RANGDA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
