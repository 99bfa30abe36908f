package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/tash-comp/rain-app/internal/models"
	"github.com/tash-comp/rain-app/internal/validation"
)

// Config holds service configuration. Values come from defaults, then config/{ENV_NAME}.yaml,
// then environment variables (a .env file in the project root is loaded first).
type Config struct {
	Env string `yaml:"-" ignored:"true"`

	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	RainAPI  RainAPIConfig  `yaml:"rain_api"`
	Location LocationConfig `yaml:"location"`
	Provider ProviderConfig `yaml:"provider"`
	Cache    CacheConfig    `yaml:"cache"`
	Notify   NotifyConfig   `yaml:"notify"`
}

type ServerConfig struct {
	Port            string        `yaml:"port" envconfig:"SERVER_PORT" validate:"required,numeric"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" validate:"gt=0"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST" validate:"gt=0"`
}

type LogConfig struct {
	Level string `yaml:"level" envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`
}

type MonitorConfig struct {
	Interval    time.Duration `yaml:"interval" envconfig:"MONITOR_INTERVAL" validate:"gt=0"`
	AutoStart   bool          `yaml:"auto_start" envconfig:"MONITOR_AUTO_START"`
	EventBuffer int           `yaml:"event_buffer" envconfig:"MONITOR_EVENT_BUFFER" validate:"gte=0"`
}

// RainAPIConfig points the monitor at the rain endpoint.
type RainAPIConfig struct {
	URL     string        `yaml:"url" envconfig:"RAIN_API_URL" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" envconfig:"RAIN_API_TIMEOUT" validate:"gt=0"`
}

// LocationConfig selects where the monitor gets its position from. "tracker" uses fixes pushed
// to POST /location; "static" always reports Latitude/Longitude.
type LocationConfig struct {
	Source    string        `yaml:"source" envconfig:"LOCATION_SOURCE" validate:"oneof=tracker static"`
	Latitude  float64       `yaml:"latitude" envconfig:"LOCATION_LATITUDE"`
	Longitude float64       `yaml:"longitude" envconfig:"LOCATION_LONGITUDE"`
	MaxAge    time.Duration `yaml:"max_age" envconfig:"LOCATION_MAX_AGE" validate:"gte=0"`
}

// ProviderConfig controls the built-in Open-Meteo endpoint served at GET /weather.
type ProviderConfig struct {
	Enabled            bool          `yaml:"enabled" envconfig:"PROVIDER_ENABLED"`
	URL                string        `yaml:"url" envconfig:"PROVIDER_URL" validate:"required,url"`
	Timeout            time.Duration `yaml:"timeout" envconfig:"PROVIDER_TIMEOUT" validate:"gt=0"`
	CacheTTL           time.Duration `yaml:"cache_ttl" envconfig:"PROVIDER_CACHE_TTL" validate:"gte=0"`
	BreakerFailures    uint32        `yaml:"breaker_failures" envconfig:"PROVIDER_BREAKER_FAILURES" validate:"gt=0"`
	BreakerOpenTimeout time.Duration `yaml:"breaker_open_timeout" envconfig:"PROVIDER_BREAKER_OPEN_TIMEOUT" validate:"gt=0"`
}

type CacheConfig struct {
	Backend               string        `yaml:"backend" envconfig:"CACHE_BACKEND" validate:"oneof=in_memory memcached redis"`
	Timeout               time.Duration `yaml:"timeout" envconfig:"CACHE_TIMEOUT" validate:"gt=0"`
	MemcachedAddrs        string        `yaml:"memcached_addrs" envconfig:"MEMCACHED_ADDRS"`
	MemcachedMaxIdleConns int           `yaml:"memcached_max_idle_conns" envconfig:"MEMCACHED_MAX_IDLE_CONNS" validate:"gt=0"`
	RedisAddr             string        `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	RedisPassword         string        `yaml:"-" envconfig:"REDIS_PASSWORD"`
	RedisDB               int           `yaml:"redis_db" envconfig:"REDIS_DB" validate:"gte=0"`
}

// NotifyConfig lists the alert sinks. The log sink is on by default; webhook and SQS are on when
// their URL is set.
type NotifyConfig struct {
	Log         bool          `yaml:"log" envconfig:"NOTIFY_LOG"`
	WebhookURL  string        `yaml:"webhook_url" envconfig:"NOTIFY_WEBHOOK_URL" validate:"omitempty,url"`
	SQSQueueURL string        `yaml:"sqs_queue_url" envconfig:"NOTIFY_SQS_QUEUE_URL" validate:"omitempty,url"`
	AWSRegion   string        `yaml:"aws_region" envconfig:"AWS_REGION"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"NOTIFY_TIMEOUT" validate:"gt=0"`
}

// Defaults returns the configuration used when neither a file nor the environment sets a value.
func Defaults() Config {
	return Config{
		Env: "dev",
		Server: ServerConfig{
			Port:            "8080",
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimitRPS:    100,
			RateLimitBurst:  250,
		},
		Log: LogConfig{Level: "info"},
		Monitor: MonitorConfig{
			Interval:    900 * time.Second,
			EventBuffer: 16,
		},
		RainAPI: RainAPIConfig{
			URL:     "http://localhost:8080/weather",
			Timeout: 10 * time.Second,
		},
		Location: LocationConfig{
			Source: "tracker",
			MaxAge: 30 * time.Minute,
		},
		Provider: ProviderConfig{
			Enabled:            true,
			URL:                "https://api.open-meteo.com/v1/forecast",
			Timeout:            3 * time.Second,
			CacheTTL:           5 * time.Minute,
			BreakerFailures:    5,
			BreakerOpenTimeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Backend:               "in_memory",
			Timeout:               500 * time.Millisecond,
			MemcachedAddrs:        "localhost:11211",
			MemcachedMaxIdleConns: 2,
			RedisAddr:             "localhost:6379",
		},
		Notify: NotifyConfig{
			Log:     true,
			Timeout: 5 * time.Second,
		},
	}
}

// Load reads configuration relative to the working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom reads dir/.env (optional), dir/config/{ENV_NAME}.yaml (optional), applies environment
// overrides and validates the result.
func LoadFrom(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if env := strings.TrimSpace(os.Getenv("ENV_NAME")); env != "" {
		cfg.Env = env
	}

	configPath := filepath.Join(dir, "config", cfg.Env+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	cfg.Location.Source = strings.ToLower(strings.TrimSpace(cfg.Location.Source))

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var structValidator = validator.New()

// validate checks field constraints and the cross-field rules tags cannot express.
// RequestTimeout is raised above the provider timeout when needed.
func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("config: %w", err)
	}

	if cfg.Location.Source == "static" {
		coord := models.Coordinate{Latitude: cfg.Location.Latitude, Longitude: cfg.Location.Longitude}
		if err := validation.ValidateCoordinate(coord); err != nil {
			return fmt.Errorf("config: static location: %w", err)
		}
	}
	switch cfg.Cache.Backend {
	case "memcached":
		if strings.TrimSpace(cfg.Cache.MemcachedAddrs) == "" {
			return fmt.Errorf("config: cache.memcached_addrs required for memcached backend")
		}
	case "redis":
		if strings.TrimSpace(cfg.Cache.RedisAddr) == "" {
			return fmt.Errorf("config: cache.redis_addr required for redis backend")
		}
	}
	if cfg.Server.RequestTimeout <= cfg.Provider.Timeout {
		cfg.Server.RequestTimeout = cfg.Provider.Timeout + time.Second
	}
	return nil
}
