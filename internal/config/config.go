package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env               string        `mapstructure:"ENV"`
	Port              string        `mapstructure:"PORT"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	CORSAllowed       string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RemoteURL         string        `mapstructure:"REMOTE_URL"`
	RemoteTimeout     time.Duration `mapstructure:"REMOTE_TIMEOUT"`
	RemoteRatePerSec  float64       `mapstructure:"REMOTE_RATE_PER_SEC"`
	PageLimit         int           `mapstructure:"PAGE_LIMIT"`
	PullConcurrency   int           `mapstructure:"PULL_CONCURRENCY"`
	PullInterval      time.Duration `mapstructure:"PULL_INTERVAL"`
	CacheBackend      string        `mapstructure:"CACHE_BACKEND"`
	CachePath         string        `mapstructure:"CACHE_PATH"`
	CacheURL          string        `mapstructure:"CACHE_URL"`
	CacheWriteTimeout time.Duration `mapstructure:"CACHE_WRITE_TIMEOUT"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8090")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("REMOTE_URL", "")
	v.SetDefault("REMOTE_TIMEOUT", "15s")
	v.SetDefault("REMOTE_RATE_PER_SEC", 10)
	v.SetDefault("PAGE_LIMIT", 100)
	v.SetDefault("PULL_CONCURRENCY", 4)
	v.SetDefault("PULL_INTERVAL", "0s")
	v.SetDefault("CACHE_BACKEND", "badger")
	v.SetDefault("CACHE_PATH", "./data/cache")
	v.SetDefault("CACHE_URL", "")
	v.SetDefault("CACHE_WRITE_TIMEOUT", "2s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
