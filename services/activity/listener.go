package activity

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/upb/activity-pipeline/internal/actionbus"
	"github.com/upb/activity-pipeline/internal/observability"
	"github.com/upb/activity-pipeline/models"
	"go.uber.org/zap"
)

// ListenerID identifies the activity listener on the action bus
const ListenerID = "ACTIVITY_MANAGER"

// Registrar is the part of the action bus the listener needs
type Registrar interface {
	Register(l actionbus.Listener) actionbus.Handle
}

// ListenerConfig sizes the worker pool
type ListenerConfig struct {
	BufferSize  int // Size of the action buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultListenerConfig returns the default configuration
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		BufferSize:  10000,
		WorkerCount: 5,
	}
}

// Status is the lifecycle report of the listener
type Status struct {
	ID      string `json:"id"`
	Enable  bool   `json:"enable"`
	Running bool   `json:"running"`
}

// Stats represents listener statistics
type Stats struct {
	BufferSize     int    `json:"buffer_size"`
	PendingActions int    `json:"pending"`
	WorkerCount    int    `json:"workers"`
	Started        bool   `json:"started"`
	Processed      uint64 `json:"processed"`
	Published      uint64 `json:"published"`
	Overflowed     uint64 `json:"overflowed"`
	Panics         uint64 `json:"panics"`
}

type job struct {
	ctx    context.Context
	action *models.UserAction
}

// Listener feeds bus actions to the pipeline through a bounded worker pool.
// Next never blocks: when the buffer is full the action runs on its own goroutine.
type Listener struct {
	pipeline    *Pipeline
	bus         Registrar
	metrics     *observability.Metrics
	logger      *zap.Logger
	workerCount int
	bufferSize  int

	mu      sync.RWMutex
	jobs    chan job
	handle  actionbus.Handle
	running bool
	wg      sync.WaitGroup

	processed  atomic.Uint64
	published  atomic.Uint64
	overflowed atomic.Uint64
	panics     atomic.Uint64
}

// NewListener creates a stopped Listener
func NewListener(pipeline *Pipeline, bus Registrar, cfg ListenerConfig, metrics *observability.Metrics, logger *zap.Logger) *Listener {
	def := DefaultListenerConfig()
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.BufferSize < 0 {
		cfg.BufferSize = def.BufferSize
	}
	return &Listener{
		pipeline:    pipeline,
		bus:         bus,
		metrics:     metrics,
		logger:      logger,
		workerCount: cfg.WorkerCount,
		bufferSize:  cfg.BufferSize,
	}
}

// ID implements actionbus.Listener
func (l *Listener) ID() string {
	return ListenerID
}

// Start launches the workers and registers on the action bus
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return fmt.Errorf("activity listener already started")
	}

	l.jobs = make(chan job, l.bufferSize)
	for i := 0; i < l.workerCount; i++ {
		l.wg.Add(1)
		go l.worker(i, l.jobs)
	}
	l.running = true
	l.handle = l.bus.Register(l)

	l.logger.Info("started activity listener",
		zap.Int("worker_count", l.workerCount),
		zap.Int("buffer_size", l.bufferSize))

	return nil
}

// Next queues the action for processing. It returns immediately.
func (l *Listener) Next(ctx context.Context, action *models.UserAction) {
	if action == nil {
		return
	}
	l.metrics.ActionReceived()

	// The request that triggered the action may finish before processing.
	j := job{ctx: context.WithoutCancel(ctx), action: action}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.running {
		l.logger.Debug("activity listener stopped, ignoring action", zap.String("action", action.Key()))
		return
	}

	select {
	case l.jobs <- j:
	default:
		l.overflowed.Add(1)
		l.metrics.OverflowAction()
		l.logger.Warn("activity buffer full, processing action outside the pool",
			zap.String("action", action.Key()),
			zap.Int("buffer_size", l.bufferSize))
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.run(j)
		}()
	}
}

// Status reports the lifecycle flags of the listener
func (l *Listener) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Status{ID: ListenerID, Enable: true, Running: l.running}
}

// Shutdown unregisters from the bus and drains queued actions.
// It is a no-op when the listener is not running.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	if l.handle != nil {
		l.handle.Unregister()
		l.handle = nil
	}
	l.running = false
	pending := len(l.jobs)
	close(l.jobs)
	l.mu.Unlock()

	l.logger.Info("stopping activity listener", zap.Int("pending_actions", pending))

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Info("activity listener stopped gracefully")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("activity listener stop: %w", ctx.Err())
	}
}

// Stats returns statistics about the listener
func (l *Listener) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pending := 0
	if l.running {
		pending = len(l.jobs)
	}
	return Stats{
		BufferSize:     l.bufferSize,
		PendingActions: pending,
		WorkerCount:    l.workerCount,
		Started:        l.running,
		Processed:      l.processed.Load(),
		Published:      l.published.Load(),
		Overflowed:     l.overflowed.Load(),
		Panics:         l.panics.Load(),
	}
}

func (l *Listener) worker(id int, jobs <-chan job) {
	defer l.wg.Done()

	l.logger.Debug("activity worker started", zap.Int("worker_id", id))
	for j := range jobs {
		l.run(j)
	}
	l.logger.Debug("activity worker stopped", zap.Int("worker_id", id))
}

// run executes one pipeline invocation; a panic is logged and counted, never propagated
func (l *Listener) run(j job) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			l.metrics.PipelinePanic()
			l.logger.Error("activity pipeline panicked",
				zap.Any("panic", r),
				zap.String("action", j.action.Key()),
				zap.String("user_id", j.action.User.ID))
		}
	}()

	l.processed.Add(1)
	if l.pipeline.Process(j.ctx, j.action) {
		l.published.Add(1)
	}
}
