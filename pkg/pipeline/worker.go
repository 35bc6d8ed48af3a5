package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ErrWorkerAlreadyRunning is returned when starting a worker twice
var ErrWorkerAlreadyRunning = errors.New("matching worker already running")

// ErrRunInProgress is returned when a run is triggered while another run is
// still in flight
var ErrRunInProgress = errors.New("matching run already in progress")

// DefaultInterval is the default delay between scheduled matching runs
const DefaultInterval = 5 * time.Minute

// Worker runs the matching pipeline on a fixed interval. Scheduled and
// manually triggered runs are serialized so at most one run is in flight
// per instance.
type Worker struct {
	runner   *Runner
	interval time.Duration
	logger   ectologger.Logger

	// Coordination
	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex

	runMu sync.Mutex
}

// NewWorker creates a worker that triggers a matching run every interval
func NewWorker(runner *Runner, interval time.Duration, logger ectologger.Logger) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Worker{
		runner:   runner,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// Start starts the worker loop
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrWorkerAlreadyRunning
	}
	w.running = true
	w.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "pipeline.Worker.Start")
	defer span.End()

	w.logger.WithContext(ctx).Infof("Starting matching worker: interval=%s", w.interval)

	go w.pollLoop(ctx)

	return nil
}

// Stop stops the worker gracefully, waiting for an in-flight run to finish
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.logger.WithContext(ctx).Info("Stopping matching worker...")

	close(w.stopCh)

	select {
	case <-w.stoppedC:
		w.logger.WithContext(ctx).Info("Matching worker stopped gracefully")
	case <-ctx.Done():
		w.logger.WithContext(ctx).Warn("Matching worker shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the worker loop is active
func (w *Worker) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// RunNow executes one matching run immediately, serialized against
// scheduled runs
func (w *Worker) RunNow(ctx context.Context) (*Result, error) {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	return w.runner.Run(ctx)
}

// TriggerRun starts a matching run in the background. Returns
// ErrRunInProgress when a scheduled or manual run already holds the slot,
// rather than queueing a second run behind it.
func (w *Worker) TriggerRun(ctx context.Context) error {
	if !w.runMu.TryLock() {
		return ErrRunInProgress
	}

	// The trigger outlives its HTTP request
	runCtx := context.WithoutCancel(ctx)

	go func() {
		defer w.runMu.Unlock()
		if _, err := w.runner.Run(runCtx); err != nil {
			w.logger.WithContext(runCtx).WithError(err).Error("Triggered matching run failed")
		}
	}()

	return nil
}

func (w *Worker) pollLoop(ctx context.Context) {
	defer close(w.stoppedC)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run immediately on start
	w.cycle(ctx)

	for {
		select {
		case <-w.stopCh:
			w.logger.WithContext(ctx).Debug("Matching worker loop stopping")
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

func (w *Worker) cycle(ctx context.Context) {
	if _, err := w.RunNow(ctx); err != nil {
		w.logger.WithContext(ctx).WithError(err).Error("Scheduled matching run failed")
	}
}
