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
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Analytics AnalyticsConfig
	Cache     CacheConfig
	Sync      SyncConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
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
	Enabled  bool
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

// AnalyticsConfig holds marketplace analytics API client settings
type AnalyticsConfig struct {
	BaseURL  string
	ClientID string
	APIKey   string

	TimeoutSeconds     int
	PageLimit          int
	RequestsPerMinute  int
	MinRequestInterval time.Duration

	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration

	ReportPollInterval time.Duration
	ReportPollTimeout  time.Duration
}

// CacheConfig holds response cache settings
type CacheConfig struct {
	TTL   time.Duration // durable tier entry lifetime
	L1TTL time.Duration // in-process tier entry lifetime
}

// SyncConfig holds pipeline scheduling and gating settings
type SyncConfig struct {
	SchedulerEnabled bool
	Interval         time.Duration
	FreshnessWindow  time.Duration
	Warehouses       []string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with STOCKLENS_ prefix (e.g., STOCKLENS_ANALYTICS_API_KEY)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("STOCKLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
			Enabled:  v.GetBool("redis.enabled"),
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
		Analytics: AnalyticsConfig{
			BaseURL:            v.GetString("analytics.base_url"),
			ClientID:           v.GetString("analytics.client_id"),
			APIKey:             v.GetString("analytics.api_key"),
			TimeoutSeconds:     v.GetInt("analytics.timeout_seconds"),
			PageLimit:          v.GetInt("analytics.page_limit"),
			RequestsPerMinute:  v.GetInt("analytics.requests_per_minute"),
			MinRequestInterval: v.GetDuration("analytics.min_request_interval"),
			RetryMaxAttempts:   v.GetInt("analytics.retry_max_attempts"),
			RetryInitialDelay:  v.GetDuration("analytics.retry_initial_delay"),
			RetryMaxDelay:      v.GetDuration("analytics.retry_max_delay"),
			ReportPollInterval: v.GetDuration("analytics.report_poll_interval"),
			ReportPollTimeout:  v.GetDuration("analytics.report_poll_timeout"),
		},
		Cache: CacheConfig{
			TTL:   v.GetDuration("cache.ttl"),
			L1TTL: v.GetDuration("cache.l1_ttl"),
		},
		Sync: SyncConfig{
			SchedulerEnabled: v.GetBool("sync.scheduler_enabled"),
			Interval:         v.GetDuration("sync.interval"),
			FreshnessWindow:  v.GetDuration("sync.freshness_window"),
			Warehouses:       v.GetStringSlice("sync.warehouses"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "stocklens-backend"
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
		cfg.Database.DBName = "stocklens"
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
		cfg.HTTP.WriteTimeout = 60 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.Analytics.TimeoutSeconds == 0 {
		cfg.Analytics.TimeoutSeconds = 30
	}
	if cfg.Analytics.PageLimit == 0 {
		cfg.Analytics.PageLimit = 1000
	}
	if cfg.Analytics.RequestsPerMinute == 0 {
		cfg.Analytics.RequestsPerMinute = 30
	}
	if cfg.Analytics.MinRequestInterval == 0 {
		cfg.Analytics.MinRequestInterval = 2 * time.Second
	}
	if cfg.Analytics.RetryMaxAttempts == 0 {
		cfg.Analytics.RetryMaxAttempts = 3
	}
	if cfg.Analytics.RetryInitialDelay == 0 {
		cfg.Analytics.RetryInitialDelay = time.Second
	}
	if cfg.Analytics.RetryMaxDelay == 0 {
		cfg.Analytics.RetryMaxDelay = 30 * time.Second
	}
	if cfg.Analytics.ReportPollInterval == 0 {
		cfg.Analytics.ReportPollInterval = 5 * time.Second
	}
	if cfg.Analytics.ReportPollTimeout == 0 {
		cfg.Analytics.ReportPollTimeout = 5 * time.Minute
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 2 * time.Hour
	}
	if cfg.Cache.L1TTL == 0 {
		cfg.Cache.L1TTL = 15 * time.Minute
	}
	if cfg.Sync.Interval == 0 {
		cfg.Sync.Interval = time.Hour
	}
	if cfg.Sync.FreshnessWindow == 0 {
		cfg.Sync.FreshnessWindow = 24 * time.Hour
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
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

	if c.Analytics.PageLimit < 0 || c.Analytics.PageLimit > 1000 {
		return fmt.Errorf("analytics.page_limit must be in (0, 1000]")
	}
	if c.Analytics.RequestsPerMinute <= 0 {
		return fmt.Errorf("analytics.requests_per_minute must be positive")
	}

	if c.App.Env == "production" {
		if c.Analytics.ClientID == "" {
			return fmt.Errorf("analytics.client_id is required in production")
		}
		if c.Analytics.APIKey == "" {
			return fmt.Errorf("analytics.api_key is required in production")
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

// Addr returns the host:port address for the Redis client.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
