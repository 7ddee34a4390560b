package infra

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"
	_ "time/tzdata" // Asia/Kathmandu must resolve on minimal images

	"nepse_watch/internal/domain"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	DefaultNepseURL       = "https://nepalstock.onrender.com/securityDailyTradeStat/58"
	DefaultDiscordAPIURL  = "https://discord.com/api/v10"
	DefaultGatewayURL     = "wss://gateway.discord.gg/?v=10&encoding=json"
	DefaultSchedule       = "0 15 * * SUN-THU"
	DefaultTimezone       = "Asia/Kathmandu"
	DefaultWatchlistPath  = "watchlist.json"
	DefaultSQLitePath     = "data/watchlist.db"
	DefaultRedisKeyPrefix = "nepse_watch"
	DefaultPort           = 10000
)

// Storage drivers
const (
	StorageJSON   = "json"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

// Config holds every setting of the bot. The YAML file is loaded first,
// then environment variables (and a .env file, if present) override it.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	API struct {
		Nepse struct {
			URL        string `yaml:"url" env:"NEPSE_API_URL"`
			TimeoutSec int    `yaml:"timeout_sec"`
			UserAgent  string `yaml:"user_agent"`
		} `yaml:"nepse"`
	} `yaml:"api"`

	Discord struct {
		Token         string `yaml:"token" env:"DISCORD_BOT_TOKEN"`
		APIURL        string `yaml:"api_url"`
		GatewayURL    string `yaml:"gateway_url"`
		CommandPrefix string `yaml:"command_prefix"`
	} `yaml:"discord"`

	Schedule struct {
		Cron     string `yaml:"cron" env:"SCHEDULE_CRON"`
		Timezone string `yaml:"timezone" env:"SCHEDULE_TZ"`
	} `yaml:"schedule"`

	Storage struct {
		Driver string `yaml:"driver" env:"STORAGE_DRIVER"`
		Path   string `yaml:"path" env:"WATCHLIST_PATH"`
		SQLite struct {
			Path string `yaml:"path" env:"SQLITE_PATH"`
		} `yaml:"sqlite"`
		Redis struct {
			Addr      string `yaml:"addr" env:"REDIS_ADDR"`
			Password  string `yaml:"password" env:"REDIS_PASSWORD"`
			DB        int    `yaml:"db"`
			KeyPrefix string `yaml:"key_prefix"`
		} `yaml:"redis"`
	} `yaml:"storage"`

	Server struct {
		Port int `yaml:"port" env:"PORT"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level" env:"LOG_LEVEL"`
		Dir   string `yaml:"dir" env:"LOG_DIR"`
	} `yaml:"logging"`
}

// LoadConfig reads the YAML file at path, applies environment overrides,
// fills defaults and validates. A missing file is not an error: the bot can
// run from environment variables alone.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, &domain.ConfigError{Field: path, Err: err}
		}
	case errors.Is(err, os.ErrNotExist):
		// env-only deployment
	default:
		return nil, &domain.ConfigError{Field: path, Err: err}
	}

	// .env never overrides variables already set by the host. A missing file
	// is fine; a broken one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &domain.ConfigError{Field: ".env", Err: err}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, &domain.ConfigError{Field: "env", Err: err}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "nepse-watch"
	}
	if c.API.Nepse.URL == "" {
		c.API.Nepse.URL = DefaultNepseURL
	}
	if c.API.Nepse.TimeoutSec <= 0 {
		c.API.Nepse.TimeoutSec = 20
	}
	if c.API.Nepse.UserAgent == "" {
		c.API.Nepse.UserAgent = DefaultUserAgent
	}
	if c.Discord.APIURL == "" {
		c.Discord.APIURL = DefaultDiscordAPIURL
	}
	if c.Discord.GatewayURL == "" {
		c.Discord.GatewayURL = DefaultGatewayURL
	}
	if c.Discord.CommandPrefix == "" {
		c.Discord.CommandPrefix = "!"
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = DefaultSchedule
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = DefaultTimezone
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageJSON
	}
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultWatchlistPath
	}
	if c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = DefaultSQLitePath
	}
	if c.Storage.Redis.KeyPrefix == "" {
		c.Storage.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if err := checkURL(c.API.Nepse.URL, "http", "https"); err != nil {
		return &domain.ConfigError{Field: "api.nepse.url", Err: err}
	}
	if err := checkURL(c.Discord.APIURL, "http", "https"); err != nil {
		return &domain.ConfigError{Field: "discord.api_url", Err: err}
	}
	if err := checkURL(c.Discord.GatewayURL, "ws", "wss"); err != nil {
		return &domain.ConfigError{Field: "discord.gateway_url", Err: err}
	}

	if _, err := c.Location(); err != nil {
		return &domain.ConfigError{Field: "schedule.timezone", Err: err}
	}
	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		return &domain.ConfigError{Field: "schedule.cron", Err: err}
	}

	switch c.Storage.Driver {
	case StorageJSON, StorageSQLite:
	case StorageRedis:
		if c.Storage.Redis.Addr == "" {
			return &domain.ConfigError{Field: "storage.redis.addr", Err: errors.New("required for redis driver")}
		}
	default:
		return &domain.ConfigError{Field: "storage.driver", Err: fmt.Errorf("unknown driver %q", c.Storage.Driver)}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &domain.ConfigError{Field: "server.port", Err: fmt.Errorf("out of range: %d", c.Server.Port)}
	}

	return nil
}

// Location returns the schedule's time zone
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Schedule.Timezone)
}

// FetchTimeout is the upper bound applied to a single quote fetch.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.API.Nepse.TimeoutSec) * time.Second
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("invalid URL %q (want %v)", raw, schemes)
}
