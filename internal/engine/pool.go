package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/auraos/orchestrator/pkg/schema"
)

// PoolMetrics tracks run pool operational metrics.
type PoolMetrics struct {
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Rejected  int64 `json:"rejected"`
	Panics    int64 `json:"panics"`
}

// ErrPoolShutdown is returned when a run is submitted to a shut-down pool.
var ErrPoolShutdown = errors.New("run pool is shut down")

// RunPool runs each workflow execution on its own goroutine and allows at
// most one in-flight run per workflow ID. A slow or retrying run of one
// workflow never delays the others.
type RunPool struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	inflight map[string]struct{}
	closed   bool
	metrics  PoolMetrics
	logger   *slog.Logger
}

// NewRunPool creates an empty pool.
func NewRunPool(logger *slog.Logger) *RunPool {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunPool{inflight: make(map[string]struct{}), logger: logger}
}

// Submit starts fn for workflowID in the background. It returns CONFLICT
// when a run for the same workflow is still in flight and ErrPoolShutdown
// after Shutdown.
func (p *RunPool) Submit(ctx context.Context, workflowID string, fn func(ctx context.Context)) error {
	if err := p.acquire(workflowID); err != nil {
		return err
	}
	go func() {
		defer p.release(workflowID)
		p.run(ctx, workflowID, fn)
	}()
	return nil
}

// Run executes fn for workflowID on the calling goroutine under the same
// exclusion as Submit.
func (p *RunPool) Run(ctx context.Context, workflowID string, fn func(ctx context.Context)) error {
	if err := p.acquire(workflowID); err != nil {
		return err
	}
	defer p.release(workflowID)
	p.run(ctx, workflowID, fn)
	return nil
}

func (p *RunPool) acquire(workflowID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolShutdown
	}
	if _, busy := p.inflight[workflowID]; busy {
		atomic.AddInt64(&p.metrics.Rejected, 1)
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow %q already has a run in progress", workflowID).
			WithWorkflow(workflowID)
	}
	p.inflight[workflowID] = struct{}{}
	// wg.Add must happen under the lock so Shutdown's Wait cannot miss it.
	p.wg.Add(1)
	atomic.AddInt64(&p.metrics.Active, 1)
	return nil
}

func (p *RunPool) release(workflowID string) {
	p.mu.Lock()
	delete(p.inflight, workflowID)
	p.mu.Unlock()
	atomic.AddInt64(&p.metrics.Active, -1)
	p.wg.Done()
}

func (p *RunPool) run(ctx context.Context, workflowID string, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&p.metrics.Panics, 1)
			p.logger.ErrorContext(ctx, "workflow run panicked",
				slog.String("workflow_id", workflowID),
				slog.String("panic", fmt.Sprint(r)))
			return
		}
		atomic.AddInt64(&p.metrics.Completed, 1)
	}()
	fn(ctx)
}

// InFlight reports whether workflowID has a run in progress.
func (p *RunPool) InFlight(workflowID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inflight[workflowID]
	return ok
}

// Wait blocks until all in-flight runs complete.
func (p *RunPool) Wait() {
	p.wg.Wait()
}

// Shutdown rejects new runs and waits for in-flight ones.
func (p *RunPool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

// Metrics returns a snapshot of the pool metrics.
func (p *RunPool) Metrics() PoolMetrics {
	return PoolMetrics{
		Active:    atomic.LoadInt64(&p.metrics.Active),
		Completed: atomic.LoadInt64(&p.metrics.Completed),
		Rejected:  atomic.LoadInt64(&p.metrics.Rejected),
		Panics:    atomic.LoadInt64(&p.metrics.Panics),
	}
}
