// Package config loads process configuration from defaults, an optional YAML file and
// CHAPERONE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	Connection ConnectionConfig `mapstructure:"connection"`
	Policy     PolicyConfig     `mapstructure:"policy"`
	Approval   ApprovalConfig   `mapstructure:"approval"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// PostgresConfig selects the durable store. An empty DSN selects the in-memory store.
type PostgresConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// RedisConfig backs rate windows, budgets and moderation counters. Empty URL selects memory.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig configures notification egress. No brokers selects the log publisher.
type KafkaConfig struct {
	Brokers           []string `mapstructure:"brokers"`
	NotificationTopic string   `mapstructure:"notification_topic"`
	Partitions        int32    `mapstructure:"partitions"`
	ReplicationFactor int16    `mapstructure:"replication_factor"`
}

type IdentityConfig struct {
	SigningKey string `mapstructure:"signing_key"`
	Issuer     string `mapstructure:"issuer"`
}

type ModerationConfig struct {
	OracleURL        string        `mapstructure:"oracle_url"`
	LexiconPath      string        `mapstructure:"lexicon_path"`
	Timeout          time.Duration `mapstructure:"timeout"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	CacheSize        int           `mapstructure:"cache_size"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

type ConnectionConfig struct {
	QueueCapacity  int           `mapstructure:"queue_capacity"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	ProbeInterval  time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	TypingLiveness time.Duration `mapstructure:"typing_liveness"`
}

type PolicyConfig struct {
	RateLimit       int           `mapstructure:"rate_limit"`
	RateWindow      time.Duration `mapstructure:"rate_window"`
	Cooldown        time.Duration `mapstructure:"cooldown"`
	DefaultTimezone string        `mapstructure:"default_timezone"`
}

type ApprovalConfig struct {
	Reviewers  []string `mapstructure:"reviewers"`
	CASRetries int      `mapstructure:"cas_retries"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("postgres.max_open_conns", 20)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("kafka.notification_topic", "chaperone.notifications")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.replication_factor", 1)
	v.SetDefault("identity.signing_key", "dev-signing-key-change-me")
	v.SetDefault("moderation.timeout", 800*time.Millisecond)
	v.SetDefault("moderation.cache_ttl", 30*time.Second)
	v.SetDefault("moderation.cache_size", 4096)
	v.SetDefault("moderation.failure_threshold", 5)
	v.SetDefault("moderation.breaker_cooldown", 10*time.Second)
	v.SetDefault("connection.queue_capacity", 256)
	v.SetDefault("connection.send_buffer", 64)
	v.SetDefault("connection.probe_interval", 20*time.Second)
	v.SetDefault("connection.probe_timeout", 45*time.Second)
	v.SetDefault("connection.write_timeout", 10*time.Second)
	v.SetDefault("connection.typing_liveness", 5*time.Second)
	v.SetDefault("policy.rate_limit", 20)
	v.SetDefault("policy.rate_window", time.Minute)
	v.SetDefault("policy.cooldown", 2*time.Minute)
	v.SetDefault("policy.default_timezone", "UTC")
	v.SetDefault("approval.cas_retries", 5)
}

// Load reads configuration. path may be empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHAPERONE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Connection.QueueCapacity <= 0 {
		errs = append(errs, errors.New("connection.queue_capacity must be positive"))
	}
	if c.Connection.ProbeTimeout <= c.Connection.ProbeInterval {
		errs = append(errs, errors.New("connection.probe_timeout must exceed connection.probe_interval"))
	}
	if c.Moderation.Timeout <= 0 {
		errs = append(errs, errors.New("moderation.timeout must be positive"))
	}
	if c.Policy.RateLimit <= 0 || c.Policy.RateWindow <= 0 {
		errs = append(errs, errors.New("policy.rate_limit and policy.rate_window must be positive"))
	}
	if _, err := time.LoadLocation(c.Policy.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("policy.default_timezone: %w", err))
	}
	if c.Identity.SigningKey == "" {
		errs = append(errs, errors.New("identity.signing_key is required"))
	}
	return errors.Join(errs...)
}
