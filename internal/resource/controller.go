package resource

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when memory limit would be exceeded.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes caps memory pinned by loaded exclusion sets.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxWorkers is the number of analysis worker slots.
	// If 0, defaults to GOMAXPROCS.
	MaxWorkers int64

	// IOLimitBytesPerSec is the maximum read throughput for row sources.
	// If 0, unlimited.
	IOLimitBytesPerSec int64

	// RowsPerSec throttles rows scanned per second across all workers.
	// If 0, unlimited.
	RowsPerSec int64
}

// Controller manages shared resources: worker slots, memory and throughput.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Concurrency
	workerSem *semaphore.Weighted
	workers   atomic.Int64

	// Throughput
	ioLimiter  *rate.Limiter
	rowLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = int64(runtime.GOMAXPROCS(0))
	}

	c := &Controller{
		cfg:       cfg,
		workerSem: semaphore.NewWeighted(cfg.MaxWorkers),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}
	if cfg.RowsPerSec > 0 {
		c.rowLimiter = rate.NewLimiter(rate.Limit(cfg.RowsPerSec), int(cfg.RowsPerSec))
	}

	return c
}

// TryAcquireMemory reserves memory without blocking. It reports false,
// reserving nothing, when the reservation would exceed the limit.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}
	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return false
	}
	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// MaxWorkers returns the total number of worker slots.
func (c *Controller) MaxWorkers() int {
	if c == nil {
		return runtime.GOMAXPROCS(0)
	}
	return int(c.cfg.MaxWorkers)
}

// ActiveWorkers returns the number of slots currently held.
func (c *Controller) ActiveWorkers() int {
	if c == nil {
		return 0
	}
	return int(c.workers.Load())
}

// AcquireWorkers reserves between 1 and want worker slots. It blocks for
// the first slot and takes the rest only if they are free right now, so a
// busy controller shrinks a job instead of stalling it. The caller must
// ReleaseWorkers the returned count.
func (c *Controller) AcquireWorkers(ctx context.Context, want int) (int, error) {
	if want < 1 {
		want = 1
	}
	if c == nil {
		return want, nil
	}
	if err := c.workerSem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	got := 1
	for got < want && c.workerSem.TryAcquire(1) {
		got++
	}
	c.workers.Add(int64(got))
	return got, nil
}

// ReleaseWorkers returns n worker slots.
func (c *Controller) ReleaseWorkers(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.workers.Add(-int64(n))
	c.workerSem.Release(int64(n))
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, min(bytes, c.ioLimiter.Burst()))
}

// WaitRows blocks until n more rows may be scanned.
func (c *Controller) WaitRows(ctx context.Context, n int) error {
	if c == nil || c.rowLimiter == nil {
		return nil
	}
	return c.rowLimiter.WaitN(ctx, min(n, c.rowLimiter.Burst()))
}
