package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Loop runs a function on a fixed interval in a background goroutine until
// stopped. Each engine timer (orchestration, optimization, broadcast) is one Loop.
type Loop struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop creates a stopped loop.
func NewLoop(name string, interval time.Duration, fn func(ctx context.Context), logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{name: name, interval: interval, fn: fn, logger: logger}
}

// Start launches the loop. The first tick happens after one interval.
func (l *Loop) Start(ctx context.Context) error {
	if l.interval <= 0 {
		return fmt.Errorf("loop %s: interval must be positive, got %s", l.name, l.interval)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return fmt.Errorf("loop %s already started", l.name)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(loopCtx, l.done)

	l.logger.Info("loop started", slog.String("loop", l.name), slog.Duration("interval", l.interval))
	return nil
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick runs fn once, containing panics so one bad cycle does not kill the loop.
func (l *Loop) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop tick panicked", slog.String("loop", l.name), slog.Any("panic", r))
		}
	}()
	l.fn(ctx)
}

// Stop cancels the loop and waits for an in-progress tick to return.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.cancel = nil
	l.done = nil
	l.logger.Info("loop stopped", slog.String("loop", l.name))
}

// Running reports whether the loop is started.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done != nil
}
