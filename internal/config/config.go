// Package config loads service configuration from an optional config file
// and HOMESAPP_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. HOMESAPP_SERVER_PORT.
const EnvPrefix = "HOMESAPP"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Log      LogConfig
	Calendar CalendarConfig
	Billing  BillingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// AllowedOrigins are the websocket origin patterns; empty means same-origin.
	AllowedOrigins []string
	EventBuffer    int
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds the SQLite settings. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	DSN string
	// URL is the atlas form of the same database, used by the migrate command.
	URL    string
	DevURL string
}

// RedisConfig holds Redis settings. An empty Addr selects the in-process
// cache.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
	CacheTTL  time.Duration
}

// KafkaConfig holds the event forwarding settings. Forwarding is off when no
// brokers are set.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// Enabled reports whether events are forwarded to Kafka.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type LogConfig struct {
	Level       string
	Development bool
}

// CalendarConfig sizes the calendar views.
type CalendarConfig struct {
	PageSize   int
	AgendaDays int
}

// BillingConfig drives the payment record materializer.
type BillingConfig struct {
	Enabled     bool
	HorizonDays int
	Interval    time.Duration
}

// Load reads configuration from path (optional) and the environment.
// Environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	cfg := bind(v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", "")
	v.SetDefault("server.event_buffer", 256)

	v.SetDefault("database.dsn", "file:homesapp.db?_pragma=foreign_keys(1)")
	v.SetDefault("database.url", "sqlite://homesapp.db")
	v.SetDefault("database.dev_url", "sqlite://dev?mode=memory")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.namespace", "homesapp")
	v.SetDefault("redis.cache_ttl", "1m")

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "homesapp.domain-events")
	v.SetDefault("kafka.client_id", "homesapp-rentals")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("calendar.page_size", 5)
	v.SetDefault("calendar.agenda_days", 7)

	v.SetDefault("billing.enabled", true)
	v.SetDefault("billing.horizon_days", 31)
	v.SetDefault("billing.interval", "1h")
}

func bind(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Server.Host = v.GetString("server.host")
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	cfg.Server.IdleTimeout = v.GetDuration("server.idle_timeout")
	cfg.Server.ShutdownTimeout = v.GetDuration("server.shutdown_timeout")
	cfg.Server.AllowedOrigins = list(v, "server.allowed_origins")
	cfg.Server.EventBuffer = v.GetInt("server.event_buffer")

	cfg.Database.DSN = v.GetString("database.dsn")
	cfg.Database.URL = v.GetString("database.url")
	cfg.Database.DevURL = v.GetString("database.dev_url")

	cfg.Redis.Addr = v.GetString("redis.addr")
	cfg.Redis.Password = v.GetString("redis.password")
	cfg.Redis.DB = v.GetInt("redis.db")
	cfg.Redis.Namespace = v.GetString("redis.namespace")
	cfg.Redis.CacheTTL = v.GetDuration("redis.cache_ttl")

	cfg.Kafka.Brokers = list(v, "kafka.brokers")
	cfg.Kafka.Topic = v.GetString("kafka.topic")
	cfg.Kafka.ClientID = v.GetString("kafka.client_id")

	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Development = v.GetBool("log.development")

	cfg.Calendar.PageSize = v.GetInt("calendar.page_size")
	cfg.Calendar.AgendaDays = v.GetInt("calendar.agenda_days")

	cfg.Billing.Enabled = v.GetBool("billing.enabled")
	cfg.Billing.HorizonDays = v.GetInt("billing.horizon_days")
	cfg.Billing.Interval = v.GetDuration("billing.interval")

	return cfg
}

// list reads a comma-separated string from the environment or a YAML list
// from a config file.
func list(v *viper.Viper, key string) []string {
	var raw []string
	switch val := v.Get(key).(type) {
	case []any:
		for _, item := range val {
			raw = append(raw, fmt.Sprint(item))
		}
	case []string:
		raw = val
	default:
		raw = strings.Split(v.GetString(key), ",")
	}
	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks the values that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d", c.Server.Port))
	}
	if c.Calendar.PageSize < 1 {
		errs = append(errs, fmt.Errorf("calendar page size must be positive, got %d", c.Calendar.PageSize))
	}
	if c.Calendar.AgendaDays < 1 {
		errs = append(errs, fmt.Errorf("calendar agenda days must be positive, got %d", c.Calendar.AgendaDays))
	}
	if c.Billing.Enabled {
		if c.Billing.HorizonDays < 0 {
			errs = append(errs, fmt.Errorf("billing horizon must not be negative, got %d", c.Billing.HorizonDays))
		}
		if c.Billing.Interval <= 0 {
			errs = append(errs, fmt.Errorf("billing interval must be positive, got %s", c.Billing.Interval))
		}
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka topic is required when brokers are set"))
	}
	return errors.Join(errs...)
}
