package jobs

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Task is a unit of work executed on the pool.
type Task func(ctx context.Context) error

// PoolConfig configures worker behaviour.
type PoolConfig struct {
	Workers int
	Logger  *zap.Logger
}

// Pool is a bounded in-process worker pool for batch evaluation. Run blocks until
// every task of the batch has completed, which keeps batch boundaries deterministic
// for callers that key work by index.
type Pool struct {
	workers int
	logger  *zap.Logger
}

// NewPool builds a pool with the provided configuration.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Pool{workers: cfg.Workers, logger: cfg.Logger}
}

// Workers reports the configured concurrency.
func (p *Pool) Workers() int {
	return p.workers
}

// Run executes all tasks across the pool and waits for the batch to drain.
// The first error observed is returned; remaining tasks still run so a batch
// always finishes in a consistent state. A cancelled context skips unstarted tasks.
func (p *Pool) Run(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}

	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, t Task) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := t(ctx); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				p.logger.Warn("pool task failed", zap.Int("task", idx), zap.Error(err))
			}
		}(i, task)
	}

	wg.Wait()
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
