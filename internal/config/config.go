package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the notification engine,
// loaded from an optional YAML file, overridden by environment variables,
// and validated before use. Only Database.URL has no usable default.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Worker    WorkerConfig    `mapstructure:"worker" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Socket    SocketConfig    `mapstructure:"socket"`
	Email     EmailConfig     `mapstructure:"email"`
	Push      PushConfig      `mapstructure:"push"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

type HTTPConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	DrainDeadline   time.Duration `mapstructure:"drain_deadline"`
}

type DatabaseConfig struct {
	URL        string `mapstructure:"url" validate:"required"`
	MaxConns   int32  `mapstructure:"max_conns"`
	MinConns   int32  `mapstructure:"min_conns"`
	Migrations string `mapstructure:"migrations"` // e.g. "file://migrations"
}

// WorkerConfig sizes the processor's bounded worker pool and its retry
// and scheduling side loops.
type WorkerConfig struct {
	PoolSize           int             `mapstructure:"pool_size" validate:"min=1"`
	QueueCapacity      int             `mapstructure:"queue_capacity" validate:"min=1"`
	MaxAttempts        int             `mapstructure:"max_attempts" validate:"min=1"`
	RetryBackoff       []time.Duration `mapstructure:"retry_backoff"`
	SchedulerInterval  time.Duration   `mapstructure:"scheduler_interval"`
	BatchCheckInterval time.Duration   `mapstructure:"batch_check_interval"`
}

// RateLimitConfig gives the defaults applied when a type's ProcessingRule
// doesn't specify its own caps (per-rule with global fallback).
type RateLimitConfig struct {
	DefaultPerHour int `mapstructure:"default_per_hour"`
	DefaultPerDay  int `mapstructure:"default_per_day"`
	Shards         int `mapstructure:"shards"`
}

type DedupConfig struct {
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	Shards     int           `mapstructure:"shards"`
	SweepEvery time.Duration `mapstructure:"sweep_every"`
}

type BatchConfig struct {
	DefaultWindow   time.Duration `mapstructure:"default_window"`
	DefaultMaxSize  int           `mapstructure:"default_max_size"`
	FlushCheckEvery time.Duration `mapstructure:"flush_check_every"`
}

type SocketConfig struct {
	MaxConnections int           `mapstructure:"max_connections"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongTimeout    time.Duration `mapstructure:"pong_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

type EmailConfig struct {
	SMTPHost    string        `mapstructure:"smtp_host"`
	SMTPPort    int           `mapstructure:"smtp_port"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	From        string        `mapstructure:"from"`
	PerMinute   int           `mapstructure:"per_minute"`
	PerHour     int           `mapstructure:"per_hour"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type PushConfig struct {
	GatewayURL string        `mapstructure:"gateway_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	PerMinute  int           `mapstructure:"per_minute"`
	PerHour    int           `mapstructure:"per_hour"`
	// TokenExpiry is the horizon past which a device token is treated as
	// expired regardless of its active flag; zero disables the check.
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// DeviceTTL bounds how long a cached device list survives before a
	// repository re-read, matching the read-through cache in
	// internal/devicecache.
	DeviceTTL time.Duration `mapstructure:"device_ttl"`
}

// Load reads configs/config.yaml if present, layers in NOTIFYHUB_-prefixed
// environment variables over it, applies defaults, and validates the
// result. Only Database.URL has no safe default.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile("configs/config.yaml")
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("notifyhub")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.read_timeout", 5*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.shutdown_timeout", 30*time.Second)
	v.SetDefault("http.drain_deadline", 20*time.Second)

	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.migrations", "file://migrations")

	v.SetDefault("worker.pool_size", 10)
	v.SetDefault("worker.queue_capacity", 10000)
	v.SetDefault("worker.max_attempts", 5)
	v.SetDefault("worker.retry_backoff", []time.Duration{5 * time.Second, 30 * time.Second, 2 * time.Minute, 10 * time.Minute, 30 * time.Minute})
	v.SetDefault("worker.scheduler_interval", 5*time.Second)
	v.SetDefault("worker.batch_check_interval", 10*time.Second)

	v.SetDefault("rate_limit.default_per_hour", 100)
	v.SetDefault("rate_limit.default_per_day", 500)
	v.SetDefault("rate_limit.shards", 32)

	v.SetDefault("dedup.default_ttl", 5*time.Minute)
	v.SetDefault("dedup.shards", 32)
	v.SetDefault("dedup.sweep_every", time.Minute)

	v.SetDefault("batch.default_window", 10*time.Minute)
	v.SetDefault("batch.default_max_size", 50)
	v.SetDefault("batch.flush_check_every", 10*time.Second)

	v.SetDefault("socket.max_connections", 50000)
	v.SetDefault("socket.ping_interval", 30*time.Second)
	v.SetDefault("socket.pong_timeout", 60*time.Second)
	v.SetDefault("socket.idle_timeout", 10*time.Minute)
	v.SetDefault("socket.write_timeout", 5*time.Second)

	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.per_minute", 30)
	v.SetDefault("email.per_hour", 500)
	v.SetDefault("email.send_timeout", 10*time.Second)

	v.SetDefault("push.timeout", 10*time.Second)
	v.SetDefault("push.per_minute", 120)
	v.SetDefault("push.per_hour", 2000)
	v.SetDefault("push.token_expiry", 180*24*time.Hour)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.device_ttl", 5*time.Minute)
}
