package workflow_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/backingwatch/backingx/app/tracker/workflow"
	"github.com/backingwatch/backingx/pkg/workerpool"
)

type captureAlerter struct {
	mu       sync.Mutex
	subjects []string
}

func (a *captureAlerter) ReportFailure(_ context.Context, subject string, _ error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subjects = append(a.subjects, subject)
}

func newRunner(t *testing.T, alerter *captureAlerter) (*workflow.Runner, *workerpool.Pool) {
	t.Helper()
	pool := workerpool.NewSized(zaptest.NewLogger(t), 1, 4)
	t.Cleanup(pool.Close)
	runner := workflow.NewRunner(zaptest.NewLogger(t), pool, alerter)
	runner.TaskTimeout = 5 * time.Second
	return runner, pool
}

func fixedTasks(tasks ...workflow.Task) func(context.Context) ([]workflow.Task, error) {
	return func(context.Context) ([]workflow.Task, error) { return tasks, nil }
}

func TestRunOrdersTiers(t *testing.T) {
	alerter := &captureAlerter{}
	runner, _ := newRunner(t, alerter)

	var mu sync.Mutex
	var order []string
	record := func(name string, delay time.Duration) workflow.Task {
		return workflow.Task{ID: name, Run: func(context.Context) error {
			time.Sleep(delay)
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}}
	}

	// The slow upstream task must still finish before anything downstream
	// starts, their tiers share no barrier.
	tiers := []workflow.Tier{
		{workflow.Stage{Name: "upstream", Tasks: fixedTasks(
			record("slow", 150*time.Millisecond),
			record("quick", 0),
		)}},
		{workflow.Stage{Name: "downstream", Tasks: fixedTasks(record("after", 0))}},
	}

	summary, err := runner.Run(context.Background(), tiers)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Tasks)
	assert.Equal(t, 0, summary.Failures)
	require.Len(t, order, 3)
	assert.Equal(t, "after", order[2])
}

func TestRunIsolatesTaskFailures(t *testing.T) {
	alerter := &captureAlerter{}
	runner, _ := newRunner(t, alerter)

	var siblingRan, nextTierRan atomic.Bool
	tiers := []workflow.Tier{
		{workflow.Stage{Name: "first", Tasks: fixedTasks(
			workflow.Task{ID: "bad", Run: func(context.Context) error {
				return errors.New("source unreachable")
			}},
			workflow.Task{ID: "good", Run: func(context.Context) error {
				siblingRan.Store(true)
				return nil
			}},
		)}},
		{workflow.Stage{Name: "second", Tasks: fixedTasks(
			workflow.Task{ID: "later", Run: func(context.Context) error {
				nextTierRan.Store(true)
				return nil
			}},
		)}},
	}

	summary, err := runner.Run(context.Background(), tiers)
	require.NoError(t, err)
	assert.True(t, siblingRan.Load())
	assert.True(t, nextTierRan.Load())
	assert.Equal(t, 1, summary.Failures)
	require.Len(t, summary.Stages, 2)
	assert.Equal(t, 1, summary.Stages[0].Failures)
	assert.Equal(t, 0, summary.Stages[1].Failures)
	assert.Equal(t, []string{"first: bad"}, alerter.subjects)
}

func TestRunIsolatesPanics(t *testing.T) {
	alerter := &captureAlerter{}
	runner, _ := newRunner(t, alerter)

	tiers := []workflow.Tier{
		{workflow.Stage{Name: "first", Tasks: fixedTasks(
			workflow.Task{ID: "boom", Run: func(context.Context) error {
				panic("nil adapter")
			}},
		)}},
	}

	summary, err := runner.Run(context.Background(), tiers)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failures)
	require.Len(t, alerter.subjects, 1)
	assert.Equal(t, "first: boom", alerter.subjects[0])
}

func TestRunTaskTimeoutBoundsBarrier(t *testing.T) {
	alerter := &captureAlerter{}
	runner, _ := newRunner(t, alerter)
	runner.TaskTimeout = 50 * time.Millisecond

	release := make(chan struct{})
	defer close(release)
	tiers := []workflow.Tier{
		{workflow.Stage{Name: "first", Tasks: fixedTasks(
			workflow.Task{ID: "stuck", Run: func(context.Context) error {
				<-release
				return nil
			}},
		)}},
	}

	start := time.Now()
	summary, err := runner.Run(context.Background(), tiers)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, summary.Failures)
}

func TestRunAbortsOnEnumerationFailure(t *testing.T) {
	alerter := &captureAlerter{}
	runner, _ := newRunner(t, alerter)

	var ran atomic.Bool
	tiers := []workflow.Tier{
		{workflow.Stage{Name: "broken", Tasks: func(context.Context) ([]workflow.Task, error) {
			return nil, errors.New("registry unavailable")
		}}},
		{workflow.Stage{Name: "unreached", Tasks: fixedTasks(
			workflow.Task{ID: "x", Run: func(context.Context) error {
				ran.Store(true)
				return nil
			}},
		)}},
	}

	_, err := runner.Run(context.Background(), tiers)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enumerate stage broken")
	assert.False(t, ran.Load())
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	alerter := &captureAlerter{}
	runner, _ := newRunner(t, alerter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, []workflow.Tier{
		{workflow.Stage{Name: "any", Tasks: fixedTasks()}},
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunStagesInTierShareBarrier(t *testing.T) {
	alerter := &captureAlerter{}
	runner, _ := newRunner(t, alerter)

	var concurrent, peak atomic.Int32
	task := func(id string) workflow.Task {
		return workflow.Task{ID: id, Run: func(context.Context) error {
			n := concurrent.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(50 * time.Millisecond)
			concurrent.Add(-1)
			return nil
		}}
	}

	// Two stages in one tier run their tasks concurrently.
	tiers := []workflow.Tier{{
		workflow.Stage{Name: "left", Tasks: fixedTasks(task("l"))},
		workflow.Stage{Name: "right", Tasks: fixedTasks(task("r"))},
	}}

	summary, err := runner.Run(context.Background(), tiers)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Tasks)
	assert.GreaterOrEqual(t, peak.Load(), int32(2))
}
