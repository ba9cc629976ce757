// Package container provides dependency wiring and lifecycle management for
// the invoice scheduler.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
)

// Config holds all configuration for the Container.
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Scheduler SchedulerConfig
	Account   entity.AccountConfig
	SMTP      SMTPConfig
	Guard     GuardConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is sqlite, postgres or memory
	Driver string

	// Path to the SQLite database file
	Path string

	// DSN is the postgres connection string
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	EventKeepAlive time.Duration
}

// SchedulerConfig holds generation daemon settings.
type SchedulerConfig struct {
	// Interval between ticks; production runs once a day
	Interval time.Duration

	// StoreTimeout bounds every store call made by a tick
	StoreTimeout time.Duration

	// HorizonMonths is how far ahead series are materialized
	HorizonMonths int

	// RunOnStart runs a tick as soon as the worker starts
	RunOnStart bool

	// Timezone names the location whose calendar date is "today"
	Timezone string
}

// SMTPConfig holds mail relay settings. An empty Host selects log-only delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// GuardConfig holds occurrence guard settings.
type GuardConfig struct {
	// Backend is memory or redis
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
	TTL           time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Path:            "data/invoices.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			EventKeepAlive: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Interval:      24 * time.Hour,
			StoreTimeout:  5 * time.Second,
			HorizonMonths: 12,
			RunOnStart:    true,
			Timezone:      "Local",
		},
		Account: entity.AccountConfig{
			NetDays:            14,
			DefaultDescription: "Professional services",
			InvoicePrefix:      "INV-",
		},
		Guard: GuardConfig{
			Backend:   "memory",
			KeyPrefix: "invoice-scheduler:claim",
			TTL:       48 * time.Hour,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory":
	case "sqlite", "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
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
	if c.Account.NetDays < 0 {
		return fmt.Errorf("account.net_days must not be negative")
	}

	if c.Guard.Backend == "redis" && c.Guard.RedisAddr == "" {
		return fmt.Errorf("guard.redis_addr is required")
	}

	return nil
}
