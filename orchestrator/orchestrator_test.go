package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/pdfrag/core"
	"github.com/poiesic/pdfrag/ratelimit"
	"github.com/poiesic/pdfrag/storage"
	badgerstore "github.com/poiesic/pdfrag/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPipeline = "test/double"

func newRuns(t *testing.T) storage.RunRepository {
	t.Helper()
	_, runs, backend, err := badgerstore.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return runs
}

func fastConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
		StepTimeout: time.Second,
		PoolSize:    4,
		MaxDeferred: 10,
	}
}

func newOrchestrator(t *testing.T, runs storage.RunRepository, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithConfig(fastConfig())}, opts...)
	o, err := New(runs, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { o.Close() })
	return o
}

// doublePipeline doubles an int, then formats it. The hooks run inside each step.
func doublePipeline(first, second func(ctx context.Context, n int) error) *Pipeline {
	return &Pipeline{
		Name: testPipeline,
		Steps: []Step{
			NewStep("double", varint.Int, varint.Int, func(ctx context.Context, n int) (int, error) {
				if first != nil {
					if err := first(ctx, n); err != nil {
						return 0, err
					}
				}
				return n * 2, nil
			}),
			NewStep("format", varint.Int, ord.String, func(ctx context.Context, n int) (string, error) {
				if second != nil {
					if err := second(ctx, n); err != nil {
						return "", err
					}
				}
				return fmt.Sprintf("result=%d", n), nil
			}),
		},
	}
}

func submitInt(t *testing.T, o *Orchestrator, pipeline string, n int, opts ...SubmitOption) *core.Run {
	t.Helper()
	run, err := o.Submit(context.Background(), pipeline, core.Encode(varint.Int, n), opts...)
	require.NoError(t, err)
	return run
}

func waitRun(t *testing.T, o *Orchestrator, id string) *core.Run {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run, err := o.Wait(ctx, id)
	require.NoError(t, err)
	return run
}

func outputString(t *testing.T, run *core.Run) string {
	t.Helper()
	s, err := core.Decode(ord.String, run.Output)
	require.NoError(t, err)
	return s
}

func TestNew_RequiresRepository(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrRunRepositoryRequired)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(newRuns(t), WithConfig(Config{MaxAttempts: -1}))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}

func TestRegister(t *testing.T) {
	o := newOrchestrator(t, newRuns(t))

	require.NoError(t, o.Register(doublePipeline(nil, nil)))
	assert.ErrorIs(t, o.Register(doublePipeline(nil, nil)), ErrDuplicatePipeline)
	assert.ErrorIs(t, o.Register(&Pipeline{Name: "empty"}), ErrEmptyPipeline)

	same := NewStep("same", varint.Int, varint.Int, func(ctx context.Context, n int) (int, error) { return n, nil })
	assert.ErrorIs(t, o.Register(&Pipeline{Name: "dup-steps", Steps: []Step{same, same}}), ErrEmptyPipeline)

	p, ok := o.Pipeline(testPipeline)
	require.True(t, ok)
	assert.Equal(t, "double", p.Steps[0].Name())
}

func TestSubmit_Completes(t *testing.T) {
	o := newOrchestrator(t, newRuns(t), WithPipeline(doublePipeline(nil, nil)))

	submitted := submitInt(t, o, testPipeline, 21, WithEventID("evt-1"))
	assert.NotEmpty(t, submitted.ID)
	assert.Equal(t, "evt-1", submitted.EventID)

	run := waitRun(t, o, submitted.ID)
	assert.Equal(t, core.RunCompleted, run.Status)
	assert.Equal(t, core.FailureNone, run.Failure)
	assert.Equal(t, "result=42", outputString(t, run))

	require.Len(t, run.Steps, 2)
	assert.Equal(t, "double", run.Steps[0].Name)
	assert.Equal(t, 1, run.Steps[0].Attempts)
	assert.False(t, run.Steps[0].CompletedAt.IsZero())
	doubled, err := core.Decode(varint.Int, run.Steps[0].Output)
	require.NoError(t, err)
	assert.Equal(t, 42, doubled)

	byEvent, err := o.RunsForEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	require.Len(t, byEvent, 1)
	assert.Equal(t, submitted.ID, byEvent[0].ID)

	p, _ := o.Pipeline(testPipeline)
	out, err := p.DecodeOutput(run.Output)
	require.NoError(t, err)
	assert.Equal(t, "result=42", out)
	in, err := p.DecodeInput(run.Input)
	require.NoError(t, err)
	assert.Equal(t, 21, in)
}

func TestSubmit_UnknownPipeline(t *testing.T) {
	o := newOrchestrator(t, newRuns(t))

	_, err := o.Submit(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownPipeline)
	assert.ErrorIs(t, err, core.ErrInput)
}

func TestStep_TransientFailureRetried(t *testing.T) {
	var calls atomic.Int32
	flaky := func(ctx context.Context, n int) error {
		if calls.Add(1) < 3 {
			return core.Transient(errors.New("connection reset"))
		}
		return nil
	}
	o := newOrchestrator(t, newRuns(t), WithPipeline(doublePipeline(flaky, nil)))

	run := waitRun(t, o, submitInt(t, o, testPipeline, 1).ID)

	assert.Equal(t, core.RunCompleted, run.Status)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, run.Steps[0].Attempts)
	assert.Contains(t, run.Steps[0].LastError, "connection reset")
}

func TestStep_TransientFailureExhausted(t *testing.T) {
	var calls atomic.Int32
	down := func(ctx context.Context, n int) error {
		calls.Add(1)
		return core.Transient(errors.New("embedder unavailable"))
	}
	o := newOrchestrator(t, newRuns(t), WithPipeline(doublePipeline(down, nil)))

	run := waitRun(t, o, submitInt(t, o, testPipeline, 1).ID)

	assert.Equal(t, core.RunFailed, run.Status)
	assert.Equal(t, core.FailureError, run.Failure)
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, run.Reason, "transient")
	assert.Contains(t, run.Reason, "embedder unavailable")
	assert.Contains(t, run.Reason, "3 attempt(s)")
	assert.Empty(t, run.Steps)
}

func TestStep_FatalFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	missing := func(ctx context.Context, n int) error {
		calls.Add(1)
		return core.Input(errors.New("file not found"))
	}
	o := newOrchestrator(t, newRuns(t), WithPipeline(doublePipeline(missing, nil)))

	run := waitRun(t, o, submitInt(t, o, testPipeline, 1).ID)

	assert.Equal(t, core.RunFailed, run.Status)
	assert.Equal(t, core.FailureError, run.Failure)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, run.Reason, "input")
	assert.Contains(t, run.Reason, "file not found")
}

func TestStep_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	var calls atomic.Int32
	stuck := func(ctx context.Context, n int) error {
		calls.Add(1)
		<-release // ignores ctx on purpose
		return nil
	}

	cfg := fastConfig()
	cfg.MaxAttempts = 2
	cfg.StepTimeout = 20 * time.Millisecond
	o := newOrchestrator(t, newRuns(t), WithConfig(cfg), WithPipeline(doublePipeline(stuck, nil)))

	run := waitRun(t, o, submitInt(t, o, testPipeline, 1).ID)

	assert.Equal(t, core.RunFailed, run.Status)
	assert.Equal(t, int32(2), calls.Load())
	assert.Contains(t, run.Reason, "timed out")
	assert.Contains(t, run.Reason, "transient")
}

func TestStep_PanicFailsRun(t *testing.T) {
	boom := func(ctx context.Context, n int) error {
		panic("boom")
	}
	o := newOrchestrator(t, newRuns(t), WithPipeline(doublePipeline(boom, nil)))

	run := waitRun(t, o, submitInt(t, o, testPipeline, 1).ID)

	assert.Equal(t, core.RunFailed, run.Status)
	assert.Contains(t, run.Reason, "panicked")
}

func TestRetry_SkipsMemoizedSteps(t *testing.T) {
	var firstCalls, secondCalls atomic.Int32
	first := func(ctx context.Context, n int) error {
		firstCalls.Add(1)
		return nil
	}
	second := func(ctx context.Context, n int) error {
		if secondCalls.Add(1) == 1 {
			return core.Input(errors.New("answerer rejected the key"))
		}
		return nil
	}
	o := newOrchestrator(t, newRuns(t), WithPipeline(doublePipeline(first, second)))

	id := submitInt(t, o, testPipeline, 5).ID
	run := waitRun(t, o, id)
	require.Equal(t, core.RunFailed, run.Status)
	require.Len(t, run.Steps, 1)

	retried, err := o.Retry(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, retried.ID)

	run = waitRun(t, o, id)
	assert.Equal(t, core.RunCompleted, run.Status)
	assert.Equal(t, "result=10", outputString(t, run))
	assert.Equal(t, int32(1), firstCalls.Load(), "memoized step must not run again")
	assert.Equal(t, int32(2), secondCalls.Load())
	assert.Empty(t, run.Reason)
}

func TestRetry_RequiresFailedRun(t *testing.T) {
	o := newOrchestrator(t, newRuns(t), WithPipeline(doublePipeline(nil, nil)))

	id := submitInt(t, o, testPipeline, 1).ID
	waitRun(t, o, id)

	_, err := o.Retry(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotRetryable)

	_, err = o.Retry(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestCancel_BetweenSteps(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var secondCalls atomic.Int32

	first := func(ctx context.Context, n int) error {
		close(started)
		<-release
		return nil
	}
	second := func(ctx context.Context, n int) error {
		secondCalls.Add(1)
		return nil
	}
	o := newOrchestrator(t, newRuns(t), WithPipeline(doublePipeline(first, second)))

	id := submitInt(t, o, testPipeline, 3).ID
	<-started

	require.NoError(t, o.Cancel(context.Background(), id))
	status, err := o.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, core.RunRunning, status.Status, "the running step is not interrupted")

	close(release)
	run := waitRun(t, o, id)

	assert.Equal(t, core.RunFailed, run.Status)
	assert.Equal(t, core.FailureCancelled, run.Failure)
	assert.Contains(t, run.Reason, "cancelled")
	assert.Len(t, run.Steps, 1, "the step that was running still completes")
	assert.Equal(t, int32(0), secondCalls.Load())

	// A cancelled run can be retried and picks up after its last step.
	_, err = o.Retry(context.Background(), id)
	require.NoError(t, err)
	run = waitRun(t, o, id)
	assert.Equal(t, core.RunCompleted, run.Status)
	assert.Equal(t, "result=6", outputString(t, run))
}

func TestCancel_TerminalRun(t *testing.T) {
	o := newOrchestrator(t, newRuns(t), WithPipeline(doublePipeline(nil, nil)))

	id := submitInt(t, o, testPipeline, 1).ID
	waitRun(t, o, id)

	assert.ErrorIs(t, o.Cancel(context.Background(), id), ErrRunTerminal)
	assert.ErrorIs(t, o.Cancel(context.Background(), "missing"), ErrRunNotFound)
}

// stallingRuns blocks the first GetRun made after arm until resume is closed,
// returning what it read before blocking.
type stallingRuns struct {
	storage.RunRepository
	armed  atomic.Bool
	paused chan struct{}
	resume chan struct{}
}

func (r *stallingRuns) arm() {
	r.paused = make(chan struct{})
	r.resume = make(chan struct{})
	r.armed.Store(true)
}

func (r *stallingRuns) GetRun(ctx context.Context, id string) (*core.Run, error) {
	run, err := r.RunRepository.GetRun(ctx, id)
	if r.armed.CompareAndSwap(true, false) {
		close(r.paused)
		<-r.resume
	}
	return run, err
}

func TestCancel_RunCompletesDuringCancel(t *testing.T) {
	inner := newRuns(t)
	runs := &stallingRuns{RunRepository: inner}

	started := make(chan struct{})
	release := make(chan struct{})
	first := func(ctx context.Context, n int) error {
		close(started)
		<-release
		return nil
	}
	o := newOrchestrator(t, runs, WithPipeline(doublePipeline(first, nil)))

	id := submitInt(t, o, testPipeline, 4).ID
	<-started

	// Cancel reads the run while it is still running, then stalls.
	runs.arm()
	cancelErr := make(chan error, 1)
	go func() { cancelErr <- o.Cancel(context.Background(), id) }()
	<-runs.paused

	// The run completes and is released before Cancel takes the lock.
	close(release)
	require.Eventually(t, func() bool {
		run, err := inner.GetRun(context.Background(), id)
		if err != nil || run.Status != core.RunCompleted {
			return false
		}
		o.mu.Lock()
		defer o.mu.Unlock()
		_, tracked := o.active[id]
		return !tracked
	}, 5*time.Second, time.Millisecond)

	close(runs.resume)
	assert.ErrorIs(t, <-cancelErr, ErrRunTerminal)

	run, err := inner.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, core.RunCompleted, run.Status)
	assert.Equal(t, core.FailureNone, run.Failure)
	assert.Equal(t, "result=8", outputString(t, run))
}

func gatedPipeline(name string) *Pipeline {
	p := doublePipeline(nil, nil)
	p.Name = name
	p.GateKey = func(input []byte) (string, error) {
		n, err := core.Decode(varint.Int, input)
		return fmt.Sprintf("source-%d", n), err
	}
	return p
}

func TestGate_DefersBeyondThrottle(t *testing.T) {
	gate, err := ratelimit.NewGate(ratelimit.Config{ThrottleLimit: 2, ThrottleWindow: time.Hour})
	require.NoError(t, err)
	o := newOrchestrator(t, newRuns(t), WithGate(gate), WithPipeline(gatedPipeline("gated")))

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, submitInt(t, o, "gated", i).ID)
	}

	for _, id := range ids[:2] {
		run := waitRun(t, o, id)
		assert.Equal(t, core.RunCompleted, run.Status)
		assert.False(t, run.AdmittedAt.IsZero())
	}
	for _, id := range ids[2:] {
		run, err := o.Status(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, core.RunPending, run.Status)
		assert.Equal(t, 1, run.Deferrals)
		assert.Contains(t, run.Reason, ratelimit.ReasonThrottled)
		assert.True(t, run.NotBefore.After(time.Now()))
		assert.True(t, run.AdmittedAt.IsZero())
	}

	// Deferred runs can be cancelled and end immediately.
	require.NoError(t, o.Cancel(context.Background(), ids[2]))
	run := waitRun(t, o, ids[2])
	assert.Equal(t, core.RunFailed, run.Status)
	assert.Equal(t, core.FailureCancelled, run.Failure)
}

func TestGate_DeferredRunsEventuallyComplete(t *testing.T) {
	gate, err := ratelimit.NewGate(ratelimit.Config{ThrottleLimit: 1, ThrottleWindow: 50 * time.Millisecond})
	require.NoError(t, err)
	o := newOrchestrator(t, newRuns(t), WithGate(gate), WithPipeline(gatedPipeline("gated")))

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, submitInt(t, o, "gated", i).ID)
	}

	deferred := 0
	for _, id := range ids {
		run := waitRun(t, o, id)
		assert.Equal(t, core.RunCompleted, run.Status)
		if run.Deferrals > 0 {
			deferred++
		}
	}
	assert.Equal(t, 2, deferred)
}

func TestGate_SameKeyDeferred(t *testing.T) {
	gate, err := ratelimit.NewGate(ratelimit.Config{KeyWindow: 2 * time.Hour})
	require.NoError(t, err)
	o := newOrchestrator(t, newRuns(t), WithGate(gate), WithPipeline(gatedPipeline("gated")))

	first := submitInt(t, o, "gated", 7)
	second := submitInt(t, o, "gated", 7)

	assert.Equal(t, core.RunCompleted, waitRun(t, o, first.ID).Status)
	assert.Equal(t, core.RunPending, second.Status)
	assert.Contains(t, second.Reason, ratelimit.ReasonRateLimited)
	assert.Greater(t, second.NotBefore.Sub(time.Now()), time.Hour)
}

func TestGate_QueryPipelinesBypassGate(t *testing.T) {
	gate, err := ratelimit.NewGate(ratelimit.Config{ThrottleLimit: 1, ThrottleWindow: time.Hour})
	require.NoError(t, err)
	o := newOrchestrator(t, newRuns(t), WithGate(gate), WithPipeline(doublePipeline(nil, nil)))

	for i := 0; i < 3; i++ {
		run := waitRun(t, o, submitInt(t, o, testPipeline, i).ID)
		assert.Equal(t, core.RunCompleted, run.Status)
		assert.Zero(t, run.Deferrals)
	}
}

func TestGate_QueueFull(t *testing.T) {
	gate, err := ratelimit.NewGate(ratelimit.Config{ThrottleLimit: 1, ThrottleWindow: time.Hour})
	require.NoError(t, err)
	cfg := fastConfig()
	cfg.MaxDeferred = 1
	o := newOrchestrator(t, newRuns(t), WithConfig(cfg), WithGate(gate), WithPipeline(gatedPipeline("gated")))

	submitInt(t, o, "gated", 1)
	submitInt(t, o, "gated", 2)

	_, err = o.Submit(context.Background(), "gated", core.Encode(varint.Int, 3), WithEventID("evt-overflow"))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.ErrorIs(t, err, core.ErrCapacity)

	runs, err := o.RunsForEvent(context.Background(), "evt-overflow")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, core.RunFailed, runs[0].Status)
	assert.Contains(t, runs[0].Reason, "capacity")
}

func TestGate_BadKeyFailsRun(t *testing.T) {
	gate, err := ratelimit.NewGate(ratelimit.DefaultConfig())
	require.NoError(t, err)
	p := gatedPipeline("gated")
	p.GateKey = func([]byte) (string, error) { return "", errors.New("undecodable event") }
	o := newOrchestrator(t, newRuns(t), WithGate(gate), WithPipeline(p))

	run := submitInt(t, o, "gated", 1)
	assert.Equal(t, core.RunFailed, run.Status)
	assert.Contains(t, run.Reason, "undecodable event")
}

func TestResume_ContinuesInterruptedRun(t *testing.T) {
	runs := newRuns(t)

	started := make(chan struct{})
	blocked := func(ctx context.Context, n int) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
	o1, err := New(runs, WithConfig(fastConfig()), WithPipeline(doublePipeline(nil, blocked)))
	require.NoError(t, err)

	id := submitInt(t, o1, testPipeline, 4).ID
	<-started
	require.NoError(t, o1.Close())

	interrupted, err := runs.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, core.RunRunning, interrupted.Status)
	require.Len(t, interrupted.Steps, 1)

	var firstCalls atomic.Int32
	counting := func(ctx context.Context, n int) error {
		firstCalls.Add(1)
		return nil
	}
	o2 := newOrchestrator(t, runs, WithPipeline(doublePipeline(counting, nil)))

	n, err := o2.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	run := waitRun(t, o2, id)
	assert.Equal(t, core.RunCompleted, run.Status)
	assert.Equal(t, "result=8", outputString(t, run))
	assert.Equal(t, int32(0), firstCalls.Load())
}

func TestWait_ContextExpires(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	o := newOrchestrator(t, newRuns(t), WithPipeline(doublePipeline(func(ctx context.Context, n int) error {
		<-release
		return nil
	}, nil)))

	id := submitInt(t, o, testPipeline, 1).ID
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := o.Wait(ctx, id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClose(t *testing.T) {
	o := newOrchestrator(t, newRuns(t), WithPipeline(doublePipeline(nil, nil)))

	require.NoError(t, o.Close())
	require.NoError(t, o.Close())

	_, err := o.Submit(context.Background(), testPipeline, core.Encode(varint.Int, 1))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConcurrentRuns(t *testing.T) {
	var running, peak atomic.Int32
	track := func(ctx context.Context, n int) error {
		cur := running.Add(1)
		defer running.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return nil
	}
	o := newOrchestrator(t, newRuns(t), WithPoolSize(4), WithPipeline(doublePipeline(track, nil)))

	ids := make([]string, 20)
	for i := range ids {
		ids[i] = submitInt(t, o, testPipeline, i).ID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			run, err := o.Wait(ctx, id)
			if assert.NoError(t, err) {
				assert.Equal(t, core.RunCompleted, run.Status)
				out, err := core.Decode(ord.String, run.Output)
				assert.NoError(t, err)
				assert.Equal(t, fmt.Sprintf("result=%d", i*2), out)
			}
		}(i, id)
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(4))
}
