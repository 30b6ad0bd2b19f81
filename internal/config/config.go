// Package config loads service configuration from a YAML file and
// SSE_-prefixed environment variables.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Redis   RedisConfig   `mapstructure:"redis"`
	DB      DBConfig      `mapstructure:"db"`
	Jupiter JupiterConfig `mapstructure:"jupiter"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Events  EventsConfig  `mapstructure:"events"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

type JupiterConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type AgentConfig struct {
	MaxSlippageBps     int     `mapstructure:"max_slippage_bps"`
	PriceImpactWarnPct float64 `mapstructure:"price_impact_warn_pct"`
	DryRun             bool    `mapstructure:"dry_run"`
}

type WorkerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	QueueKey    string        `mapstructure:"queue_key"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	Concurrency int           `mapstructure:"concurrency"`
}

type EventsConfig struct {
	MaxPerStrategy int `mapstructure:"max_per_strategy"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("db.dsn", "")
	v.SetDefault("jupiter.base_url", "https://quote-api.jup.ag/v6")
	v.SetDefault("jupiter.timeout", "15s")
	v.SetDefault("jupiter.max_retries", 3)
	v.SetDefault("agent.max_slippage_bps", 500)
	v.SetDefault("agent.price_impact_warn_pct", 0.05)
	v.SetDefault("agent.dry_run", false)
	v.SetDefault("worker.enabled", true)
	v.SetDefault("worker.queue_key", "executions:queue")
	v.SetDefault("worker.poll_timeout", "5s")
	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("events.max_per_strategy", 1000)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
