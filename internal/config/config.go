package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	Redis      RedisConfig      `yaml:"redis"`
	Moderation ModerationConfig `yaml:"moderation"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test

	// AllowOrigins restricts CORS; empty allows any origin.
	AllowOrigins []string        `yaml:"allow_origins"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig bounds analysis requests per client.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type LogConfig struct {
	Level         string `yaml:"level"` // debug, info, warn, error
	RetentionDays int    `yaml:"retention_days"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

// JWTConfig holds the shared secret used to verify tokens issued by the
// platform's auth service.
type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

// RedisConfig for optional async task queue
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ModerationConfig struct {
	// ProviderTimeout bounds a single provider call, TotalTimeout the whole analysis.
	ProviderTimeout time.Duration    `yaml:"provider_timeout"`
	TotalTimeout    time.Duration    `yaml:"total_timeout"`
	MaxRetries      int              `yaml:"max_retries"`
	Breaker         BreakerConfig    `yaml:"breaker"`
	Providers       []ProviderConfig `yaml:"providers"`
	Notify          NotifyConfig     `yaml:"notify"`
}

type BreakerConfig struct {
	Enabled             bool          `yaml:"enabled"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
}

// ProviderConfig describes one AI classifier. Providers are consulted in the
// order they are listed.
type ProviderConfig struct {
	Name        string  `yaml:"name"`
	Provider    string  `yaml:"provider"` // openai, azure, anthropic, ollama, gemini
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	Enabled     *bool   `yaml:"enabled"`
}

// IsEnabled treats a missing flag as enabled.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// NotifyConfig configures the moderator alert webhook.
type NotifyConfig struct {
	Type    string `yaml:"type"` // generic, slack, discord, teams
	Webhook string `yaml:"webhook"`
}

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.overrideFromEnv()
	cfg.applyModerationDefaults()
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
			RateLimit: RateLimitConfig{
				RPS:   2,
				Burst: 10,
			},
		},
		Log: LogConfig{
			Level:         "info",
			RetentionDays: 30,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "debatehub.db",
		},
		JWT: JWTConfig{
			Secret:     "debatehub-secret-key-change-in-production",
			ExpireHour: 24,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Moderation: ModerationConfig{
			ProviderTimeout: 20 * time.Second,
			TotalTimeout:    30 * time.Second,
			MaxRetries:      1,
			Breaker: BreakerConfig{
				Enabled:             true,
				ConsecutiveFailures: 5,
				OpenTimeout:         30 * time.Second,
			},
			Notify: NotifyConfig{Type: "generic"},
		},
	}
}

// applyModerationDefaults fills zero values left by a partial config file.
func (c *Config) applyModerationDefaults() {
	m := &c.Moderation
	if m.ProviderTimeout <= 0 {
		m.ProviderTimeout = 20 * time.Second
	}
	if m.TotalTimeout <= 0 {
		m.TotalTimeout = 30 * time.Second
	}
	if m.TotalTimeout < m.ProviderTimeout {
		m.TotalTimeout = m.ProviderTimeout
	}
	if m.MaxRetries < 0 {
		m.MaxRetries = 0
	}
	if m.Breaker.ConsecutiveFailures == 0 {
		m.Breaker.ConsecutiveFailures = 5
	}
	if m.Breaker.OpenTimeout <= 0 {
		m.Breaker.OpenTimeout = 30 * time.Second
	}
	for i := range m.Providers {
		p := &m.Providers[i]
		if p.Provider == "" {
			p.Provider = "openai"
		}
		if p.Name == "" {
			p.Name = p.Provider
		}
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if timeout := os.Getenv("MODERATION_PROVIDER_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			c.Moderation.ProviderTimeout = d
		}
	}
	if webhook := os.Getenv("MODERATION_NOTIFY_WEBHOOK"); webhook != "" {
		c.Moderation.Notify.Webhook = webhook
	}
	// Well-known provider keys register a provider when none is configured for it.
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		c.upsertProviderKey("openai", apiKey, os.Getenv("OPENAI_BASE_URL"), os.Getenv("OPENAI_MODEL"))
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		c.upsertProviderKey("gemini", apiKey, "", os.Getenv("GEMINI_MODEL"))
	}
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		c.upsertProviderKey("anthropic", apiKey, "", os.Getenv("ANTHROPIC_MODEL"))
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

func (c *Config) upsertProviderKey(provider, apiKey, baseURL, model string) {
	for i := range c.Moderation.Providers {
		p := &c.Moderation.Providers[i]
		if p.Provider == provider {
			p.APIKey = apiKey
			if baseURL != "" {
				p.BaseURL = baseURL
			}
			if model != "" {
				p.Model = model
			}
			return
		}
	}
	c.Moderation.Providers = append(c.Moderation.Providers, ProviderConfig{
		Name:     provider,
		Provider: provider,
		APIKey:   apiKey,
		BaseURL:  baseURL,
		Model:    model,
	})
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		// Password format: :password or user:password
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
