package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Account   AccountConfig   `mapstructure:"account"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Guard     GuardConfig     `mapstructure:"guard"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	EventKeepAlive time.Duration `mapstructure:"event_keep_alive"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres or memory
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// SchedulerConfig holds generation daemon configuration
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	StoreTimeout  time.Duration `mapstructure:"store_timeout"`
	HorizonMonths int           `mapstructure:"horizon_months"`
	RunOnStart    bool          `mapstructure:"run_on_start"`
	Timezone      string        `mapstructure:"timezone"`
}

// AccountConfig holds account-level billing defaults
type AccountConfig struct {
	Name               string `mapstructure:"name"`
	Email              string `mapstructure:"email"`
	NetDays            int    `mapstructure:"net_days"`
	DefaultDescription string `mapstructure:"default_description"`
	InvoicePrefix      string `mapstructure:"invoice_prefix"`
}

// SMTPConfig holds outgoing mail configuration. An empty host selects the
// log-only notifier.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// GuardConfig selects the occurrence guard backend
type GuardConfig struct {
	Backend       string        `mapstructure:"backend"` // memory or redis
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// Load loads configuration from file and environment variables.
// A .env file next to the working directory is applied first when present.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	err := gotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.event_keep_alive", 30*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/invoices.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("scheduler.interval", 24*time.Hour)
	v.SetDefault("scheduler.store_timeout", 5*time.Second)
	v.SetDefault("scheduler.horizon_months", 12)
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("scheduler.timezone", "Local")

	v.SetDefault("account.net_days", 14)
	v.SetDefault("account.default_description", "Professional services")
	v.SetDefault("account.invoice_prefix", "INV-")

	v.SetDefault("smtp.port", 587)

	v.SetDefault("guard.backend", "memory")
	v.SetDefault("guard.redis_addr", "localhost:6379")
	v.SetDefault("guard.key_prefix", "invoice-scheduler:claim")
	v.SetDefault("guard.ttl", 48*time.Hour)
}

// bindEnvVars binds sensitive values to environment variables
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"smtp.password":        "SMTP_PASSWORD",
		"smtp.username":        "SMTP_USERNAME",
		"guard.redis_password": "REDIS_PASSWORD",
		"database.dsn":         "DATABASE_DSN",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}

	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}
	if c.Scheduler.StoreTimeout <= 0 {
		return fmt.Errorf("scheduler.store_timeout must be positive")
	}
	if c.Scheduler.HorizonMonths <= 0 {
		return fmt.Errorf("scheduler.horizon_months must be positive")
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}

	if c.Account.NetDays < 0 {
		return fmt.Errorf("account.net_days must not be negative")
	}

	switch c.Guard.Backend {
	case "memory":
	case "redis":
		if c.Guard.RedisAddr == "" {
			return fmt.Errorf("guard.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("guard.backend %q is not supported", c.Guard.Backend)
	}

	if c.SMTP.Host != "" && c.SMTP.Port <= 0 {
		return fmt.Errorf("smtp.port must be positive")
	}

	return nil
}
