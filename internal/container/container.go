package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-scheduler/internal/application/dispatcher"
	"github.com/garyjia/invoice-scheduler/internal/application/port"
	"github.com/garyjia/invoice-scheduler/internal/application/service"
	"github.com/garyjia/invoice-scheduler/internal/infrastructure/worker"
	httpAdapter "github.com/garyjia/invoice-scheduler/internal/interfaces/http"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and stop in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure
	stores   *StoreBundle
	guard    *GuardBundle
	notifier port.Notifier
	clock    port.Clock

	// Application
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	// Workers
	workers *worker.WorkerManager
	daemon  *worker.GenerationWorker

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// Option customises a container before Start
type Option func(*Container)

// WithClock replaces the system clock
func WithClock(clk port.Clock) Option {
	return func(c *Container) {
		c.clock = clk
	}
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Planner    service.SeriesPlanner
	Editor     service.SeriesEditor
	Generation service.GenerationService
	Invoices   service.InvoiceService
	Clients    service.ClientService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Container{
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Stores (database, migrations, repositories)
// 2. Occurrence guard, notifier and clock
// 3. Event dispatcher
// 4. Application services
// 5. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if err := c.initStores(); err != nil {
		return fmt.Errorf("failed to initialize stores: %w", err)
	}
	c.logger.Info("Stores initialized", zap.String("driver", c.config.Database.Driver))

	if err := c.initInfrastructure(); err != nil {
		c.closeStores()
		return fmt.Errorf("failed to initialize infrastructure: %w", err)
	}
	c.logger.Info("Guard, notifier and clock initialized", zap.String("guard", c.config.Guard.Backend))

	c.dispatcher = ProvideDispatcher(c.logger)
	c.logger.Info("Dispatcher initialized")

	if err := c.initServices(); err != nil {
		c.closeStores()
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	if err := c.initWorkers(); err != nil {
		c.closeStores()
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	// Workers first so the in-flight tick can still reach the stores
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	if c.cancel != nil {
		c.cancel()
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	if c.guard != nil && c.guard.Redis != nil {
		if err := c.guard.Redis.Close(); err != nil {
			c.logger.Error("Failed to close redis client", zap.Error(err))
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		} else {
			c.logger.Info("Redis client closed")
		}
	}

	if err := c.closeStores(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) closeStores() error {
	if c.stores == nil || c.stores.DB == nil {
		return nil
	}
	if err := c.stores.DB.Close(); err != nil {
		c.logger.Error("Failed to close database", zap.Error(err))
		return err
	}
	c.stores.DB = nil
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	switch {
	case c.stores == nil:
		set("database", false, "not initialized")
	case c.stores.DB == nil:
		set("database", true, "in-memory")
	default:
		if err := c.stores.DB.PingContext(pingCtx); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("database", true, c.stores.DB.DriverName())
		}
	}

	switch {
	case c.guard == nil:
		set("guard", false, "not initialized")
	case c.guard.Redis != nil:
		if err := c.guard.Redis.Ping(pingCtx).Err(); err != nil {
			set("guard", false, fmt.Sprintf("redis ping failed: %v", err))
		} else {
			set("guard", true, "redis")
		}
	default:
		set("guard", true, "memory")
	}

	if c.workers != nil {
		for _, w := range c.workers.Status() {
			msg := "running"
			if !w.Running {
				msg = "stopped"
			}
			set("worker:"+w.Name, w.Running, msg)
		}
	} else {
		set("workers", false, "not initialized")
	}

	if c.dispatcher != nil {
		set("dispatcher", true, fmt.Sprintf("wildcard subscribers: %d", len(c.dispatcher.ListHandlers(dispatcher.AllEvents))))
	} else {
		set("dispatcher", false, "not initialized")
	}

	return status
}

// Ping reports the first unhealthy component as an error
func (c *Container) Ping(ctx context.Context) error {
	status := c.Health(ctx)
	if status.Overall {
		return nil
	}
	for name, component := range status.Components {
		if !component.Healthy {
			return fmt.Errorf("%s unhealthy: %s", name, component.Message)
		}
	}
	return fmt.Errorf("unhealthy")
}

func (c *Container) initStores() error {
	stores, err := ProvideStores(c.ctx, &c.config.Database, c.config.Account, c.logger)
	if err != nil {
		return err
	}
	c.stores = stores
	return nil
}

func (c *Container) initInfrastructure() error {
	g, err := ProvideGuard(&c.config.Guard, c.logger)
	if err != nil {
		return err
	}
	c.guard = g

	c.notifier = ProvideNotifier(&c.config.SMTP, c.logger)

	if c.clock == nil {
		clk, err := ProvideClock(&c.config.Scheduler)
		if err != nil {
			return err
		}
		c.clock = clk
	}
	return nil
}

func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		Stores:     c.stores,
		Guard:      c.guard.Guard,
		Notifier:   c.notifier,
		Clock:      c.clock,
		Dispatcher: c.dispatcher,
		Scheduler:  &c.config.Scheduler,
		Account:    c.config.Account,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

func (c *Container) initWorkers() error {
	workers, daemon, err := ProvideWorkers(&c.config.Scheduler, c.services.Generation, c.logger)
	if err != nil {
		return err
	}
	c.workers, c.daemon = workers, daemon

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	return nil
}

// HTTPServer builds the admin HTTP adapter over the container's services
func (c *Container) HTTPServer() *httpAdapter.Server {
	return httpAdapter.NewServer(httpAdapter.ServerConfig{
		Host:           c.config.Server.Host,
		Port:           c.config.Server.Port,
		ReadTimeout:    c.config.Server.ReadTimeout,
		WriteTimeout:   c.config.Server.WriteTimeout,
		EventKeepAlive: c.config.Server.EventKeepAlive,
	}, httpAdapter.Services{
		Invoices:   c.services.Invoices,
		Clients:    c.services.Clients,
		Editor:     c.services.Editor,
		Generation: c.services.Generation,
		Dispatcher: c.dispatcher,
		Health:     c,
	}, &zapLoggerAdapter{logger: c.logger})
}

// Getters for accessing container components

// TransactionManager returns the transaction manager.
func (c *Container) TransactionManager() port.TransactionManager {
	return c.stores.TxManager
}

// Stores returns the persistence ports.
func (c *Container) Stores() *StoreBundle {
	return c.stores
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// GenerationWorker returns the generation daemon.
func (c *Container) GenerationWorker() *worker.GenerationWorker {
	return c.daemon
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the service, dispatcher and http
// Logger interfaces.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
