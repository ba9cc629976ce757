package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-scheduler/internal/application/service"
)

// GenerationWorkerConfig holds configuration for the generation daemon
type GenerationWorkerConfig struct {
	Interval   time.Duration
	RunOnStart bool
}

// DefaultGenerationWorkerConfig returns one tick per day without an initial run
func DefaultGenerationWorkerConfig() GenerationWorkerConfig {
	return GenerationWorkerConfig{
		Interval:   24 * time.Hour,
		RunOnStart: false,
	}
}

// GenerationStats summarises the daemon's activity since start
type GenerationStats struct {
	IsRunning  bool                `json:"is_running"`
	StartedAt  time.Time           `json:"started_at"`
	Ticks      int                 `json:"ticks"`
	Generated  int                 `json:"generated"`
	Promoted   int                 `json:"promoted"`
	Failed     int                 `json:"failed"`
	LastReport *service.TickReport `json:"last_report,omitempty"`
}

// GenerationWorker drives GenerationService.Tick on a fixed interval.
// Stop lets an in-flight tick finish before returning.
type GenerationWorker struct {
	config    GenerationWorkerConfig
	generator service.GenerationService
	logger    *zap.Logger

	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	stats     GenerationStats
}

// NewGenerationWorker creates a new generation worker
func NewGenerationWorker(
	config GenerationWorkerConfig,
	generator service.GenerationService,
	logger *zap.Logger,
) *GenerationWorker {
	if config.Interval <= 0 {
		config.Interval = DefaultGenerationWorkerConfig().Interval
	}
	return &GenerationWorker{
		config:    config,
		generator: generator,
		logger:    logger,
	}
}

// Start begins the tick loop
func (w *GenerationWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("generation worker already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true
	w.stats = GenerationStats{IsRunning: true, StartedAt: time.Now()}
	w.mu.Unlock()

	w.logger.Info("GenerationWorker started",
		zap.Duration("interval", w.config.Interval),
		zap.Bool("run_on_start", w.config.RunOnStart))

	go w.loop(loopCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for the current tick
func (w *GenerationWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	w.stats.IsRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	stats := w.Stats()
	w.logger.Info("GenerationWorker stopped",
		zap.Int("ticks", stats.Ticks),
		zap.Int("generated", stats.Generated),
		zap.Int("failed", stats.Failed))
	return nil
}

// Name returns the worker name for identification
func (w *GenerationWorker) Name() string {
	return "GenerationWorker"
}

// Stats returns a snapshot of the worker's counters
func (w *GenerationWorker) Stats() GenerationStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *GenerationWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	if w.config.RunOnStart {
		w.runTick(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runTick(ctx)
		}
	}
}

// runTick detaches the tick from loop cancellation so shutdown never cuts a
// tick short.
func (w *GenerationWorker) runTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Generation tick panicked", zap.Any("panic", r))
		}
	}()

	report := w.generator.Tick(context.WithoutCancel(ctx))

	w.mu.Lock()
	w.stats.Ticks++
	w.stats.Generated += report.Generated
	w.stats.Promoted += report.Promoted
	w.stats.Failed += report.Failed
	w.stats.LastReport = report
	w.mu.Unlock()
}
