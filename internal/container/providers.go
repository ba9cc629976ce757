package container

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-scheduler/internal/application/dispatcher"
	"github.com/garyjia/invoice-scheduler/internal/application/port"
	"github.com/garyjia/invoice-scheduler/internal/application/service"
	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
	"github.com/garyjia/invoice-scheduler/internal/domain/event"
	"github.com/garyjia/invoice-scheduler/internal/infrastructure/clock"
	"github.com/garyjia/invoice-scheduler/internal/infrastructure/guard"
	"github.com/garyjia/invoice-scheduler/internal/infrastructure/notify"
	"github.com/garyjia/invoice-scheduler/internal/infrastructure/persistence/memory"
	"github.com/garyjia/invoice-scheduler/internal/infrastructure/persistence/repository"
	"github.com/garyjia/invoice-scheduler/internal/infrastructure/persistence/sqltx"
	"github.com/garyjia/invoice-scheduler/internal/infrastructure/worker"
	"github.com/garyjia/invoice-scheduler/pkg/database"
)

// StoreBundle holds the persistence ports. DB is nil for the memory driver.
type StoreBundle struct {
	DB        *database.DB
	Invoices  port.InvoiceStore
	Clients   port.ClientStore
	Numberer  port.InvoiceNumberer
	TxManager port.TransactionManager
}

// GuardBundle holds the occurrence guard. Redis is nil for the memory backend.
type GuardBundle struct {
	Guard port.OccurrenceGuard
	Redis *redis.Client
}

// ProvideStores opens the configured database, runs migrations and builds
// the repositories on top of it.
func ProvideStores(ctx context.Context, cfg *DatabaseConfig, account entity.AccountConfig, logger *zap.Logger) (*StoreBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if cfg.Driver == "memory" {
		logger.Info("Using in-memory stores")
		return &StoreBundle{
			Invoices:  memory.NewInvoiceStore(),
			Clients:   memory.NewClientStore(),
			Numberer:  memory.NewNumberer(account.InvoicePrefix),
			TxManager: memory.NewTxManager(),
		}, nil
	}

	driver := database.DriverSQLite
	if cfg.Driver == "postgres" {
		driver = database.DriverPostgres
	}
	db, err := database.New(database.Config{
		Driver:          driver,
		Path:            cfg.Path,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Run(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	txDB := sqltx.NewDB(db.DB, logger)
	return &StoreBundle{
		DB:        db,
		Invoices:  repository.NewInvoiceRepository(txDB, logger),
		Clients:   repository.NewClientRepository(txDB, logger),
		Numberer:  repository.NewSequenceNumberer(txDB, account.InvoicePrefix, logger),
		TxManager: txDB,
	}, nil
}

// ProvideGuard creates the occurrence guard for the configured backend
func ProvideGuard(cfg *GuardConfig, logger *zap.Logger) (*GuardBundle, error) {
	if cfg == nil || cfg.Backend == "" || cfg.Backend == "memory" {
		return &GuardBundle{Guard: guard.NewMemoryGuard()}, nil
	}
	if cfg.Backend != "redis" {
		return nil, fmt.Errorf("unsupported guard backend %q", cfg.Backend)
	}

	redisCfg := guard.RedisConfig{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		KeyPrefix: cfg.KeyPrefix,
		TTL:       cfg.TTL,
	}
	client, err := guard.NewRedisClient(redisCfg)
	if err != nil {
		return nil, err
	}
	logger.Info("Using redis occurrence guard", zap.String("addr", cfg.RedisAddr))
	return &GuardBundle{
		Guard: guard.NewRedisGuard(client, redisCfg, logger),
		Redis: client,
	}, nil
}

// ProvideNotifier returns an SMTP notifier when a relay is configured and a
// log-only notifier otherwise
func ProvideNotifier(cfg *SMTPConfig, logger *zap.Logger) port.Notifier {
	if cfg == nil || cfg.Host == "" {
		logger.Info("SMTP not configured, client notifications are logged only")
		return notify.NewLogNotifier(logger)
	}
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	}, logger)
}

// ProvideClock returns a system clock in the scheduler's timezone
func ProvideClock(cfg *SchedulerConfig) (port.Clock, error) {
	name := cfg.Timezone
	if name == "" {
		name = "Local"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", name, err)
	}
	return clock.NewSystemClock(loc), nil
}

// ProvideDispatcher creates the event dispatcher and registers the event log
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	d := dispatcher.NewDispatcher(dispatcher.WithLogger(&zapLoggerAdapter{logger: logger}))
	d.SubscribeNamed(dispatcher.AllEvents, "event-log", func(ctx context.Context, evt *event.Event) error {
		logger.Info("Domain event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)),
			zap.String("client_id", evt.ClientID),
			zap.String("series_id", evt.SeriesID))
		return nil
	})
	return d
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Stores     *StoreBundle
	Guard      port.OccurrenceGuard
	Notifier   port.Notifier
	Clock      port.Clock
	Dispatcher dispatcher.Dispatcher
	Scheduler  *SchedulerConfig
	Account    entity.AccountConfig
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Stores == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}

	cfg := service.SchedulerConfig{
		HorizonMonths: deps.Scheduler.HorizonMonths,
		StoreTimeout:  deps.Scheduler.StoreTimeout,
		Account:       deps.Account,
	}
	logger := &zapLoggerAdapter{logger: deps.Logger}
	s := deps.Stores

	planner := service.NewSeriesPlanner(s.Invoices, s.Clients, deps.Clock, deps.Dispatcher, cfg, logger)
	return &ServiceBundle{
		Planner: planner,
		Editor:  service.NewSeriesEditor(s.Invoices, s.Clients, s.TxManager, deps.Notifier, deps.Clock, deps.Dispatcher, cfg, logger),
		Generation: service.NewGenerationService(
			s.Invoices, s.Clients, s.Numberer, deps.Guard, deps.Notifier, planner,
			deps.Clock, deps.Dispatcher, cfg, logger,
		),
		Invoices: service.NewInvoiceService(s.Invoices, s.Clients, s.Numberer, deps.Notifier, planner, deps.Clock, deps.Dispatcher, cfg, logger),
		Clients:  service.NewClientService(s.Clients, s.Invoices, s.TxManager, deps.Clock, deps.Dispatcher, cfg, logger),
	}, nil
}

// ProvideWorkers creates the worker manager with the generation daemon registered
func ProvideWorkers(cfg *SchedulerConfig, generation service.GenerationService, logger *zap.Logger) (*worker.WorkerManager, *worker.GenerationWorker, error) {
	manager := worker.NewWorkerManager(logger)
	daemon := worker.NewGenerationWorker(worker.GenerationWorkerConfig{
		Interval:   cfg.Interval,
		RunOnStart: cfg.RunOnStart,
	}, generation, logger)
	if err := manager.Register(daemon); err != nil {
		return nil, nil, err
	}
	return manager, daemon, nil
}
