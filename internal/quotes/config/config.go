package config

import (
	"errors"
	"fmt"
	"time"

	"tickerstream.com/internal/quotes/backoff"
	"tickerstream.com/internal/quotes/health"
	"tickerstream.com/internal/quotes/plan"
	"tickerstream.com/internal/quotes/telemetry"
	pkgconfig "tickerstream.com/pkg/config"
	"tickerstream.com/pkg/xerr"
)

// Service 配置文件名和环境变量前缀（TICKERSTREAM_*）
const Service = "tickerstream"

// 总配置
type Config struct {
	Symbols   string          `mapstructure:"symbols" yaml:"symbols"` // 逗号分隔
	TimeUnit  string          `mapstructure:"time_unit" yaml:"time_unit"`
	Plan      PlanConfig      `mapstructure:"plan" yaml:"plan"`
	Health    HealthConfig    `mapstructure:"health" yaml:"health"`
	Backoff   BackoffConfig   `mapstructure:"backoff" yaml:"backoff"`
	Budget    BudgetConfig    `mapstructure:"budget" yaml:"budget"`
	Reset     ResetConfig     `mapstructure:"reset" yaml:"reset"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	WS        WSConfig        `mapstructure:"ws" yaml:"ws"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
	Nats      NatsConfig      `mapstructure:"nats" yaml:"nats"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type PlanConfig struct {
	BaseURL            string `mapstructure:"base_url" yaml:"base_url"`
	Cap                int    `mapstructure:"cap" yaml:"cap"`
	AggregateThreshold int    `mapstructure:"aggregate_threshold" yaml:"aggregate_threshold"`
}

type HealthConfig struct {
	Tick           time.Duration `mapstructure:"tick" yaml:"tick"`
	HeartbeatAfter time.Duration `mapstructure:"heartbeat_after" yaml:"heartbeat_after"`
	Grace          time.Duration `mapstructure:"grace" yaml:"grace"`
}

type BackoffConfig struct {
	Base        time.Duration `mapstructure:"base" yaml:"base"`
	Max         time.Duration `mapstructure:"max" yaml:"max"`
	Jitter      time.Duration `mapstructure:"jitter" yaml:"jitter"`
	MaxExponent int           `mapstructure:"max_exponent" yaml:"max_exponent"`
}

type BudgetConfig struct {
	MaxDisconnects int `mapstructure:"max_disconnects" yaml:"max_disconnects"`
}

type ResetConfig struct {
	After time.Duration `mapstructure:"after" yaml:"after"`
}

type TelemetryConfig struct {
	Every time.Duration `mapstructure:"every" yaml:"every"`
	Table bool          `mapstructure:"table" yaml:"table"`
}

type WSConfig struct {
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	WriteWait    time.Duration `mapstructure:"write_wait" yaml:"write_wait"`
	ReadLimit    int64         `mapstructure:"read_limit" yaml:"read_limit"`
	OutboundRate float64       `mapstructure:"outbound_rate" yaml:"outbound_rate"`
}

type HTTPConfig struct {
	Addr      string  `mapstructure:"addr" yaml:"addr"` // 空表示不开 HTTP
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int     `mapstructure:"burst" yaml:"burst"`
	Metrics   bool    `mapstructure:"metrics" yaml:"metrics"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db" yaml:"db"`
	Key      string        `mapstructure:"key" yaml:"key"`
	Flush    time.Duration `mapstructure:"flush" yaml:"flush"`
}

type NatsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// Defaults 所有 key 的默认值
func Defaults() map[string]interface{} {
	bo := backoff.Default()
	return map[string]interface{}{
		"symbols":                  "BTCUSDT,ETHUSDT",
		"time_unit":                "",
		"plan.base_url":            plan.DefaultBaseURL,
		"plan.cap":                 plan.DefaultCap,
		"plan.aggregate_threshold": plan.DefaultAggregateThreshold,
		"health.tick":              health.DefaultTick,
		"health.heartbeat_after":   health.DefaultHeartbeatAfter,
		"health.grace":             health.DefaultGrace,
		"backoff.base":             bo.Base,
		"backoff.max":              bo.Max,
		"backoff.jitter":           bo.Jitter,
		"backoff.max_exponent":     bo.MaxExponent,
		"budget.max_disconnects":   bo.MaxDisconnects,
		"reset.after":              12 * time.Hour,
		"telemetry.every":          telemetry.DefaultEvery,
		"telemetry.table":          false,
		"ws.dial_timeout":          10 * time.Second,
		"ws.write_wait":            2 * time.Second,
		"ws.read_limit":            int64(1 << 22),
		"ws.outbound_rate":         5.0,
		"http.addr":                ":8090",
		"http.rate_limit":          20.0,
		"http.burst":               40,
		"http.metrics":             true,
		"redis.enabled":            false,
		"redis.addr":               "127.0.0.1:6379",
		"redis.password":           "",
		"redis.db":                 0,
		"redis.key":                "tickers:latest",
		"redis.flush":              time.Second,
		"nats.enabled":             false,
		"nats.url":                 "nats://127.0.0.1:4222",
		"log.level":                "info",
		"log.file":                 "",
	}
}

// Load 读配置并校验，失败统一返回 xerr.ExitConfig
func Load() (*Config, error) {
	var c Config
	if _, err := pkgconfig.Load(Service, &c, Defaults()); err != nil {
		return nil, xerr.Wrap(err, xerr.ExitConfig, "load config")
	}
	if err := c.Validate(); err != nil {
		return nil, xerr.Wrap(err, xerr.ExitConfig, "invalid config")
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if len(plan.ParseSymbols(c.Symbols)) == 0 {
		return errors.New("symbols is empty")
	}
	if err := c.PlanOptions().Validate(); err != nil {
		return err
	}
	if c.Health.HeartbeatAfter >= c.Health.Grace {
		return fmt.Errorf("health.heartbeat_after (%s) must be < health.grace (%s)", c.Health.HeartbeatAfter, c.Health.Grace)
	}
	if c.Budget.MaxDisconnects <= 0 {
		return fmt.Errorf("budget.max_disconnects must be > 0, got %d", c.Budget.MaxDisconnects)
	}
	if err := c.Policy().Validate(); err != nil {
		return err
	}
	if c.Reset.After <= 0 {
		return fmt.Errorf("reset.after must be > 0, got %s", c.Reset.After)
	}
	return nil
}

func (c *Config) PlanOptions() plan.Options {
	return plan.Options{
		BaseURL:            c.Plan.BaseURL,
		Cap:                c.Plan.Cap,
		AggregateThreshold: c.Plan.AggregateThreshold,
		TimeUnit:           c.TimeUnit,
	}
}

func (c *Config) Policy() backoff.Policy {
	return backoff.Policy{
		Base:           c.Backoff.Base,
		Max:            c.Backoff.Max,
		Jitter:         c.Backoff.Jitter,
		MaxExponent:    c.Backoff.MaxExponent,
		MaxDisconnects: c.Budget.MaxDisconnects,
	}
}

func (c *Config) HealthOptions() health.Options {
	return health.Options{
		Tick:           c.Health.Tick,
		HeartbeatAfter: c.Health.HeartbeatAfter,
		Grace:          c.Health.Grace,
	}
}
