package workerpool

import (
	"context"
	"runtime"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/utils"
)

// Pool is the bounded set of execution units every pipeline stage fans out
// over. It wraps a pond pool: submissions beyond capacity queue, a task's
// panic or error stays inside that task (pond recovers panics into task
// errors), and Close drains in-flight work before releasing the units.
type Pool struct {
	logger *zap.Logger
	inner  pond.Pool
	size   int
}

// New sizes the pool from POOL_MIN_WORKERS / POOL_MAX_WORKERS. One task is
// one adapter call against an unreliable third-party source, so the default
// stays small (4) rather than scaling with CPUs.
func New(logger *zap.Logger) *Pool {
	minWorkers := utils.EnvInt("POOL_MIN_WORKERS", 1)
	maxWorkers := utils.EnvInt("POOL_MAX_WORKERS", 4)
	return NewSized(logger, minWorkers, maxWorkers)
}

// NewSized builds a pool bounded by max workers; min only clamps obviously
// bad configuration.
func NewSized(logger *zap.Logger, minWorkers, maxWorkers int) *Pool {
	size := Parallelism(minWorkers, maxWorkers)
	queue := QueueSize(size)
	logger.Debug("Starting worker pool",
		zap.Int("workers", size),
		zap.Int("queue", queue))
	return &Pool{
		logger: logger,
		inner:  pond.NewPool(size, pond.WithQueueSize(queue)),
		size:   size,
	}
}

// Group returns a task group bound to ctx for one stage's fan-out. Tasks
// submitted as plain funcs capture their own results, so one task's failure
// never stops its siblings.
func (p *Pool) Group(ctx context.Context) pond.TaskGroup {
	return p.inner.NewGroupContext(ctx)
}

// Execute runs a single task to completion and returns its isolated outcome.
func (p *Pool) Execute(fn func() error) error {
	return p.inner.SubmitErr(fn).Wait()
}

// Size exposes the configured worker count for logging.
func (p *Pool) Size() int { return p.size }

// Close drains in-flight tasks, then releases all units. Safe once all
// outstanding submissions have resolved.
func (p *Pool) Close() {
	p.inner.StopAndWait()
}

// Parallelism clamps the configured bounds into a usable worker count.
func Parallelism(minWorkers, maxWorkers int) int {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	if maxWorkers > 512 {
		maxWorkers = 512
	}
	if limit := runtime.NumCPU() * 32; maxWorkers > limit {
		maxWorkers = limit
	}
	if minWorkers > 0 && maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}
	return maxWorkers
}

// QueueSize keeps large fan-outs enqueueing without blocking submission.
func QueueSize(workers int) int {
	if workers < 1 {
		workers = 1
	}
	queue := workers * 256
	if queue < 1024 {
		queue = 1024
	}
	if queue > 262144 {
		queue = 262144
	}
	return queue
}
