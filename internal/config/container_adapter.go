package config

import (
	"github.com/garyjia/invoice-scheduler/internal/container"
	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
)

// ToContainerConfig converts the application Config to a container.Config.
// This bridges the file-based config loaded by viper and the container's
// configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			DSN:             c.Database.DSN,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Server: container.ServerConfig{
			Host:           c.Server.Host,
			Port:           c.Server.Port,
			ReadTimeout:    c.Server.ReadTimeout,
			WriteTimeout:   c.Server.WriteTimeout,
			EventKeepAlive: c.Server.EventKeepAlive,
		},
		Scheduler: container.SchedulerConfig{
			Interval:      c.Scheduler.Interval,
			StoreTimeout:  c.Scheduler.StoreTimeout,
			HorizonMonths: c.Scheduler.HorizonMonths,
			RunOnStart:    c.Scheduler.RunOnStart,
			Timezone:      c.Scheduler.Timezone,
		},
		Account: entity.AccountConfig{
			Name:               c.Account.Name,
			Email:              c.Account.Email,
			NetDays:            c.Account.NetDays,
			DefaultDescription: c.Account.DefaultDescription,
			InvoicePrefix:      c.Account.InvoicePrefix,
		},
		SMTP: container.SMTPConfig{
			Host:     c.SMTP.Host,
			Port:     c.SMTP.Port,
			Username: c.SMTP.Username,
			Password: c.SMTP.Password,
			From:     c.SMTP.From,
		},
		Guard: container.GuardConfig{
			Backend:       c.Guard.Backend,
			RedisAddr:     c.Guard.RedisAddr,
			RedisPassword: c.Guard.RedisPassword,
			RedisDB:       c.Guard.RedisDB,
			KeyPrefix:     c.Guard.KeyPrefix,
			TTL:           c.Guard.TTL,
		},
	}
}
