// Package worker runs background loops under a shared lifecycle.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Worker defines the interface for background workers
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// WorkerStatus reports one registered worker
type WorkerStatus struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

// WorkerManager starts workers in registration order and stops them in
// reverse. Start is all-or-nothing: if one worker fails, the ones already
// started are stopped again.
type WorkerManager struct {
	logger *zap.Logger

	mu      sync.Mutex
	workers []Worker
	names   map[string]bool
	started []Worker
}

// NewWorkerManager creates a new worker manager
func NewWorkerManager(logger *zap.Logger) *WorkerManager {
	return &WorkerManager{
		logger: logger,
		names:  make(map[string]bool),
	}
}

// Register adds a worker. Names must be unique and registration is closed
// once the manager is running.
func (m *WorkerManager) Register(w Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.started) > 0 {
		return fmt.Errorf("cannot register %s while workers are running", w.Name())
	}
	if m.names[w.Name()] {
		return fmt.Errorf("worker %s already registered", w.Name())
	}
	m.names[w.Name()] = true
	m.workers = append(m.workers, w)
	m.logger.Info("Worker registered", zap.String("worker_name", w.Name()))
	return nil
}

// StartAll starts every registered worker
func (m *WorkerManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.started) > 0 {
		return fmt.Errorf("workers already running")
	}

	for _, w := range m.workers {
		if err := w.Start(ctx); err != nil {
			m.logger.Error("Worker failed to start, rolling back",
				zap.String("worker_name", w.Name()),
				zap.Error(err))
			rollbackErr := m.stopStarted()
			return errors.Join(fmt.Errorf("start %s: %w", w.Name(), err), rollbackErr)
		}
		m.started = append(m.started, w)
		m.logger.Info("Worker started", zap.String("worker_name", w.Name()))
	}
	return nil
}

// StopAll stops running workers in reverse start order. It is a no-op when
// nothing is running.
func (m *WorkerManager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopStarted()
}

func (m *WorkerManager) stopStarted() error {
	var errs []error
	for i := len(m.started) - 1; i >= 0; i-- {
		w := m.started[i]
		if err := w.Stop(); err != nil {
			m.logger.Error("Worker failed to stop", zap.String("worker_name", w.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("stop %s: %w", w.Name(), err))
			continue
		}
		m.logger.Info("Worker stopped", zap.String("worker_name", w.Name()))
	}
	m.started = nil
	return errors.Join(errs...)
}

// Status lists registered workers in registration order
func (m *WorkerManager) Status() []WorkerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	running := make(map[string]bool, len(m.started))
	for _, w := range m.started {
		running[w.Name()] = true
	}
	out := make([]WorkerStatus, len(m.workers))
	for i, w := range m.workers {
		out[i] = WorkerStatus{Name: w.Name(), Running: running[w.Name()]}
	}
	return out
}

// IsRunning reports whether the workers have been started
func (m *WorkerManager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.started) > 0
}
