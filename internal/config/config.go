package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" env:"PORT"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"log"`
	Local struct {
		// Driver selects the device store: memory, sqlite or redis.
		Driver string `yaml:"driver" env:"LOCAL_DRIVER"`
	} `yaml:"local"`
	SQLite struct {
		Path string `yaml:"path" env:"SQLITE_PATH"`
	} `yaml:"sqlite"`
	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
		TTL      string `yaml:"ttl" env:"REDIS_TTL"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" env:"POSTGRES_URL"`
	} `yaml:"postgres"`
	Remote struct {
		BaseURL string `yaml:"base_url" env:"REMOTE_BASE_URL"`
		Timeout string `yaml:"timeout" env:"REMOTE_TIMEOUT"`
		Retries int    `yaml:"retries" env:"REMOTE_RETRIES"`
	} `yaml:"remote"`
	Quiz struct {
		TTL                  string `yaml:"ttl" env:"QUIZ_TTL"`
		FallbackTimeout      string `yaml:"fallback_timeout" env:"QUIZ_FALLBACK_TIMEOUT"`
		NoticeDuration       string `yaml:"notice_duration" env:"QUIZ_NOTICE_DURATION"`
		FirstCompletionBonus int    `yaml:"first_completion_bonus" env:"QUIZ_FIRST_COMPLETION_BONUS"`
	} `yaml:"quiz"`
	Account struct {
		Port      string `yaml:"port" env:"ACCOUNT_PORT"`
		JWTSecret string `yaml:"jwt_secret" env:"ACCOUNT_JWT_SECRET"`
		TokenTTL  string `yaml:"token_ttl" env:"ACCOUNT_TOKEN_TTL"`
	} `yaml:"account"`
}

// Load reads YAML config from path, overlays environment variables and
// validates the result. A missing file leaves the defaults in place.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Local.Driver == "" {
		c.Local.Driver = "memory"
	}
	if c.Account.Port == "" {
		c.Account.Port = "8081"
	}
}

// Validate reports every problem in the config at once.
func (c Config) Validate() error {
	var result *multierror.Error

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		result = multierror.Append(result, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "text", "json", "logfmt":
	default:
		result = multierror.Append(result, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	switch c.Local.Driver {
	case "memory":
	case "sqlite":
		if c.SQLite.Path == "" {
			result = multierror.Append(result, errors.New("sqlite.path: required by local.driver sqlite"))
		}
	case "redis":
		if c.Redis.Addr == "" {
			result = multierror.Append(result, errors.New("redis.addr: required by local.driver redis"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("local.driver: unknown driver %q", c.Local.Driver))
	}

	durations := []struct{ name, raw string }{
		{"redis.ttl", c.Redis.TTL},
		{"remote.timeout", c.Remote.Timeout},
		{"quiz.ttl", c.Quiz.TTL},
		{"quiz.fallback_timeout", c.Quiz.FallbackTimeout},
		{"quiz.notice_duration", c.Quiz.NoticeDuration},
		{"account.token_ttl", c.Account.TokenTTL},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		if _, err := time.ParseDuration(d.raw); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", d.name, err))
		}
	}

	if c.Quiz.FirstCompletionBonus < 0 {
		result = multierror.Append(result, errors.New("quiz.first_completion_bonus: must not be negative"))
	}
	if c.Remote.Retries < 0 {
		result = multierror.Append(result, errors.New("remote.retries: must not be negative"))
	}
	return result.ErrorOrNil()
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
