package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Webhook     WebhookConfig
	Queue       QueueConfig
	Marketplace MarketplaceConfig
	Storefront  StorefrontConfig
	Mapping     MappingConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
}

// WebhookConfig holds webhook intake settings. The two secrets verify the
// HMAC signature of each platform; the admin token guards the operational
// endpoints.
type WebhookConfig struct {
	StorefrontSecret  string
	MarketplaceSecret string
	AdminToken        string
	MaxPayloadBytes   int64
	StatusRecentLimit int
}

// QueueConfig holds sync job queue and worker settings
type QueueConfig struct {
	WorkersEnabled bool
	BatchSize      int
	Concurrency    int
	PollInterval   time.Duration
	Lease          time.Duration
	MaxAttempts    int
	BaseBackoff    time.Duration
	TrimEnabled    bool
	TrimKeep       int
	TrimInterval   time.Duration
}

// MarketplaceConfig holds marketplace API client settings
type MarketplaceConfig struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
	RateLimit      float64
	Burst          int
}

// StorefrontConfig holds storefront API client settings
type StorefrontConfig struct {
	BaseURL        string
	AccessToken    string
	TimeoutSeconds int
	RateLimit      float64
	Burst          int
}

// MappingConfig holds mapping resolver cache settings
type MappingConfig struct {
	CacheTTL    time.Duration
	NegativeTTL time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with SYNC_ prefix (e.g., SYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Enable environment variable override
	v.SetEnvPrefix("SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Build config struct
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Webhook: WebhookConfig{
			StorefrontSecret:  v.GetString("webhook.storefront_secret"),
			MarketplaceSecret: v.GetString("webhook.marketplace_secret"),
			AdminToken:        v.GetString("webhook.admin_token"),
			MaxPayloadBytes:   v.GetInt64("webhook.max_payload_bytes"),
			StatusRecentLimit: v.GetInt("webhook.status_recent_limit"),
		},
		Queue: QueueConfig{
			WorkersEnabled: v.GetBool("queue.workers_enabled"),
			BatchSize:      v.GetInt("queue.batch_size"),
			Concurrency:    v.GetInt("queue.concurrency"),
			PollInterval:   v.GetDuration("queue.poll_interval"),
			Lease:          v.GetDuration("queue.lease"),
			MaxAttempts:    v.GetInt("queue.max_attempts"),
			BaseBackoff:    v.GetDuration("queue.base_backoff"),
			TrimEnabled:    v.GetBool("queue.trim_enabled"),
			TrimKeep:       v.GetInt("queue.trim_keep"),
			TrimInterval:   v.GetDuration("queue.trim_interval"),
		},
		Marketplace: MarketplaceConfig{
			BaseURL:        v.GetString("marketplace.base_url"),
			APIKey:         v.GetString("marketplace.api_key"),
			TimeoutSeconds: v.GetInt("marketplace.timeout_seconds"),
			RateLimit:      v.GetFloat64("marketplace.rate_limit"),
			Burst:          v.GetInt("marketplace.burst"),
		},
		Storefront: StorefrontConfig{
			BaseURL:        v.GetString("storefront.base_url"),
			AccessToken:    v.GetString("storefront.access_token"),
			TimeoutSeconds: v.GetInt("storefront.timeout_seconds"),
			RateLimit:      v.GetFloat64("storefront.rate_limit"),
			Burst:          v.GetInt("storefront.burst"),
		},
		Mapping: MappingConfig{
			CacheTTL:    v.GetDuration("mapping.cache_ttl"),
			NegativeTTL: v.GetDuration("mapping.negative_ttl"),
		},
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "syncbridge"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "syncbridge"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.Webhook.MaxPayloadBytes == 0 {
		cfg.Webhook.MaxPayloadBytes = 1 << 20 // 1MB
	}
	if cfg.Webhook.StatusRecentLimit == 0 {
		cfg.Webhook.StatusRecentLimit = 20
	}
	if cfg.Queue.BatchSize == 0 {
		cfg.Queue.BatchSize = 20
	}
	if cfg.Queue.Concurrency == 0 {
		cfg.Queue.Concurrency = 4
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = 2 * time.Second
	}
	if cfg.Queue.Lease == 0 {
		cfg.Queue.Lease = 2 * time.Minute
	}
	if cfg.Queue.MaxAttempts == 0 {
		cfg.Queue.MaxAttempts = 3
	}
	if cfg.Queue.BaseBackoff == 0 {
		cfg.Queue.BaseBackoff = time.Second
	}
	if cfg.Queue.TrimKeep == 0 {
		cfg.Queue.TrimKeep = 1000
	}
	if cfg.Queue.TrimInterval == 0 {
		cfg.Queue.TrimInterval = time.Hour
	}
	if cfg.Marketplace.TimeoutSeconds == 0 {
		cfg.Marketplace.TimeoutSeconds = 10
	}
	if cfg.Marketplace.RateLimit == 0 {
		cfg.Marketplace.RateLimit = 5
	}
	if cfg.Marketplace.Burst == 0 {
		cfg.Marketplace.Burst = 10
	}
	if cfg.Storefront.TimeoutSeconds == 0 {
		cfg.Storefront.TimeoutSeconds = 10
	}
	if cfg.Storefront.RateLimit == 0 {
		cfg.Storefront.RateLimit = 2
	}
	if cfg.Storefront.Burst == 0 {
		cfg.Storefront.Burst = 4
	}
	if cfg.Mapping.CacheTTL == 0 {
		cfg.Mapping.CacheTTL = time.Hour
	}
	if cfg.Mapping.NegativeTTL == 0 {
		cfg.Mapping.NegativeTTL = 5 * time.Minute
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	// Validate connection pool settings
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("queue.max_attempts must be positive")
	}
	if c.Webhook.MaxPayloadBytes <= 0 {
		return fmt.Errorf("webhook.max_payload_bytes must be positive")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Webhook.StorefrontSecret == "" {
			return fmt.Errorf("webhook.storefront_secret is required in production")
		}
		if c.Webhook.MarketplaceSecret == "" {
			return fmt.Errorf("webhook.marketplace_secret is required in production")
		}
		if len(c.Webhook.AdminToken) < 32 {
			return fmt.Errorf("webhook.admin_token must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
