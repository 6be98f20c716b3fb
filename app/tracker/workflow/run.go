package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/alerting"
	"github.com/backingwatch/backingx/pkg/utils"
	"github.com/backingwatch/backingx/pkg/workerpool"
)

// Task is one unit of stage work, owned by exactly one identifier.
type Task struct {
	ID  string
	Run func(ctx context.Context) error
}

// Stage names a transform and enumerates the identifiers it fans out over.
// Enumeration happens at admission time, after every earlier tier's barrier,
// so a stage sees what upstream stages produced.
type Stage struct {
	Name  string
	Tasks func(ctx context.Context) ([]Task, error)
}

// Tier groups stages with no inter-dependency; all their tasks share one
// barrier. Tiers execute strictly in order: no task of tier N+1 is admitted
// until every task of tier N finished or failed in isolation.
type Tier []Stage

// StageResult counts one stage's outcome for the run summary.
type StageResult struct {
	Name     string `json:"name"`
	Tasks    int    `json:"tasks"`
	Failures int    `json:"failures"`
}

// Summary describes one pipeline run.
type Summary struct {
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Stages   []StageResult `json:"stages"`
	Tasks    int           `json:"tasks"`
	Failures int           `json:"failures"`
}

// Runner drives an ordered tier list over the worker pool. Per-identifier
// failures are alerted and recorded, never propagated: the only error Run
// returns is a whole-run fatal (a stage that cannot enumerate its
// identifiers, or a cancelled run context).
type Runner struct {
	Logger      *zap.Logger
	Pool        *workerpool.Pool
	Alerter     alerting.Alerter
	TaskTimeout time.Duration
}

func NewRunner(logger *zap.Logger, pool *workerpool.Pool, alerter alerting.Alerter) *Runner {
	return &Runner{
		Logger:      logger,
		Pool:        pool,
		Alerter:     alerter,
		TaskTimeout: utils.EnvDuration("TASK_TIMEOUT", 5*time.Minute),
	}
}

func (r *Runner) Run(ctx context.Context, tiers []Tier) (*Summary, error) {
	summary := &Summary{Start: time.Now().UTC()}

	for _, tier := range tiers {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := r.runTier(ctx, tier, summary); err != nil {
			return summary, err
		}
	}

	summary.End = time.Now().UTC()
	r.Logger.Info("Pipeline run finished",
		zap.Duration("took", summary.End.Sub(summary.Start)),
		zap.Int("tasks", summary.Tasks),
		zap.Int("failures", summary.Failures))
	return summary, nil
}

func (r *Runner) runTier(ctx context.Context, tier Tier, summary *Summary) error {
	group := r.Pool.Group(ctx)

	var mu sync.Mutex
	results := make([]*StageResult, len(tier))

	for i, stage := range tier {
		tasks, err := stage.Tasks(ctx)
		if err != nil {
			// Cannot enumerate: nothing to isolate, the run aborts.
			return fmt.Errorf("enumerate stage %s: %w", stage.Name, err)
		}
		result := &StageResult{Name: stage.Name, Tasks: len(tasks)}
		results[i] = result

		stageName := stage.Name
		for _, task := range tasks {
			task := task
			group.Submit(func() {
				if err := r.runTask(ctx, task); err != nil {
					subject := fmt.Sprintf("%s: %s", stageName, task.ID)
					r.Alerter.ReportFailure(ctx, subject, err)
					mu.Lock()
					result.Failures++
					mu.Unlock()
				}
			})
		}
	}

	// Barrier: all tasks of the tier resolve before the next tier is
	// admitted. Task errors were captured above; anything surfacing here is
	// pool-level noise.
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		r.Logger.Warn("Stage barrier reported error", zap.Error(err))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, result := range results {
		summary.Stages = append(summary.Stages, *result)
		summary.Tasks += result.Tasks
		summary.Failures += result.Failures
		r.Logger.Info("Stage complete",
			zap.String("stage", result.Name),
			zap.Int("tasks", result.Tasks),
			zap.Int("failures", result.Failures))
	}
	return nil
}

// runTask executes one task with a timeout and full isolation: a panic or a
// task that outlives its deadline becomes an error result for this
// identifier only. The barrier never waits on a tardy task beyond the
// timeout.
func (r *Runner) runTask(ctx context.Context, task Task) error {
	tctx, cancel := context.WithTimeout(ctx, r.TaskTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("task panic: %v", p)
			}
		}()
		done <- task.Run(tctx)
	}()

	select {
	case err := <-done:
		return err
	case <-tctx.Done():
		return fmt.Errorf("task %s: %w", task.ID, tctx.Err())
	}
}
