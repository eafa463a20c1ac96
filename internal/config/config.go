package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the dashboard service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Polling  PollingConfig  `yaml:"polling"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port    int    `yaml:"port"`
	Host    string `yaml:"host"`
	BaseURL string `yaml:"base_url"`
}

// GetHost returns the server host. Containers listen on all interfaces.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the redis connection settings for broadcast and presence.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig holds session and Google OAuth configuration.
type AuthConfig struct {
	Enabled            bool   `yaml:"enabled"`
	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`
	AllowedDomain      string `yaml:"allowed_domain"`
	SessionSecret      string `yaml:"session_secret"`
	CookieName         string `yaml:"cookie_name"`
	CookieMaxAge       int    `yaml:"cookie_max_age"`
}

// PollingConfig holds the live-refresh cadence and presence window.
type PollingConfig struct {
	IntervalSeconds       int `yaml:"interval_seconds"`
	PresenceWindowMinutes int `yaml:"presence_window_minutes"`
	FetchTimeoutSeconds   int `yaml:"fetch_timeout_seconds"`
}

// Interval returns the polling interval as a duration.
func (c PollingConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// PresenceWindow returns the viewer-presence window as a duration.
func (c PollingConfig) PresenceWindow() time.Duration {
	return time.Duration(c.PresenceWindowMinutes) * time.Minute
}

// FetchTimeout returns the per-fetch timeout as a duration.
func (c PollingConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "dashboard_session"
	}
	if cfg.Auth.CookieMaxAge == 0 {
		cfg.Auth.CookieMaxAge = 86400
	}
	if cfg.Polling.IntervalSeconds == 0 {
		cfg.Polling.IntervalSeconds = 15
	}
	if cfg.Polling.PresenceWindowMinutes == 0 {
		cfg.Polling.PresenceWindowMinutes = 10
	}
	if cfg.Polling.FetchTimeoutSeconds == 0 {
		cfg.Polling.FetchTimeoutSeconds = 10
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Auth.GoogleClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Auth.GoogleClientSecret = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.Auth.SessionSecret = v
	}
	if v := os.Getenv("AUTH_ALLOWED_DOMAIN"); v != "" {
		cfg.Auth.AllowedDomain = v
	}

	return cfg, nil
}
