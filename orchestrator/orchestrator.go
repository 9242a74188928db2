// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/pdfrag/core"
	"github.com/poiesic/pdfrag/ratelimit"
	"github.com/poiesic/pdfrag/storage"
)

// pollInterval is how often Wait re-reads runs this process does not own.
const pollInterval = 100 * time.Millisecond

var errAlreadyTracked = errors.New("run already scheduled")

// Orchestrator executes pipelines as durable runs. Each run moves
// Pending -> Running -> Completed|Failed exactly once. Completed steps are
// persisted before the next step starts, so a retried or resumed run skips
// them.
type Orchestrator struct {
	runs   storage.RunRepository
	gate   *ratelimit.Gate
	pool   *ants.Pool
	config Config
	logger *slog.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	pipelines map[string]*Pipeline
	active    map[string]*runState
	deferred  int
	closed    bool
}

// runState tracks a run owned by this process until it finishes.
type runState struct {
	cancelRequested bool
	timer           *time.Timer // set while deferred
	done            chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithConfig replaces the retry, timeout and queue settings.
// Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		o.config = cfg.withDefaults()
		return nil
	}
}

// WithPoolSize sets the number of runs executing concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(o *Orchestrator) error {
		if size < 1 {
			size = 1
		}
		o.config.PoolSize = size
		return nil
	}
}

// WithGate sets the admission gate consulted by pipelines that define a GateKey.
// Without a gate no run is ever deferred.
func WithGate(gate *ratelimit.Gate) Option {
	return func(o *Orchestrator) error {
		o.gate = gate
		return nil
	}
}

// WithClock sets the time source used for admission decisions.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) error {
		if now != nil {
			o.now = now
		}
		return nil
	}
}

// WithPipeline registers a pipeline at construction.
func WithPipeline(p *Pipeline) Option {
	return func(o *Orchestrator) error {
		return o.Register(p)
	}
}

// New creates an orchestrator that persists runs in runs.
func New(runs storage.RunRepository, opts ...Option) (*Orchestrator, error) {
	if runs == nil {
		return nil, ErrRunRepositoryRequired
	}

	o := &Orchestrator{
		runs:      runs,
		config:    DefaultConfig(),
		logger:    slog.Default(),
		now:       time.Now,
		pipelines: make(map[string]*Pipeline),
		active:    make(map[string]*runState),
	}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	o.logger = o.logger.With("component", "orchestrator")

	pool, err := ants.NewPool(o.config.PoolSize,
		ants.WithLogger(&antsLoggerAdapter{logger: o.logger}),
		ants.WithPanicHandler(func(r any) {
			o.logger.Error("run worker panicked", "panic", r)
		}),
	)
	if err != nil {
		return nil, err
	}
	o.pool = pool
	o.ctx, o.cancel = context.WithCancel(context.Background())

	return o, nil
}

// Register adds a pipeline. Names must be unique.
func (o *Orchestrator) Register(p *Pipeline) error {
	if err := p.validate(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.pipelines[p.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePipeline, p.Name)
	}
	o.pipelines[p.Name] = p
	return nil
}

// Pipeline returns the registered pipeline with the given name.
func (o *Orchestrator) Pipeline(name string) (*Pipeline, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.pipelines[name]
	return p, ok
}

// SubmitOption adjusts a run before it is first persisted.
type SubmitOption func(*core.Run)

// WithEventID ties the run to an existing event identifier.
func WithEventID(id string) SubmitOption {
	return func(r *core.Run) {
		if id != "" {
			r.EventID = id
		}
	}
}

// Submit creates a Pending run of the named pipeline and schedules it.
// Gated pipelines may be deferred; the returned run reflects the admission
// decision. ErrQueueFull is returned when the run cannot even be deferred.
func (o *Orchestrator) Submit(ctx context.Context, pipeline string, input []byte, opts ...SubmitOption) (*core.Run, error) {
	if _, ok := o.Pipeline(pipeline); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPipeline, pipeline)
	}

	run := &core.Run{
		ID:       core.NewRunID(),
		EventID:  core.NewEventID(),
		Pipeline: pipeline,
		Status:   core.RunPending,
		Input:    input,
	}
	for _, opt := range opts {
		opt(run)
	}

	if err := o.track(run.ID); err != nil {
		return nil, err
	}
	if err := o.runs.SaveRun(ctx, run); err != nil {
		o.finish(run.ID)
		return nil, err
	}
	o.logger.Info("run submitted", "run_id", run.ID, "event_id", run.EventID, "pipeline", pipeline)

	if err := o.dispatch(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Status returns the current state of a run.
func (o *Orchestrator) Status(ctx context.Context, id string) (*core.Run, error) {
	return o.runs.GetRun(ctx, id)
}

// RunsForEvent returns every run triggered by an event, oldest first.
func (o *Orchestrator) RunsForEvent(ctx context.Context, eventID string) ([]*core.Run, error) {
	return o.runs.GetRunsByEvent(ctx, eventID)
}

// Wait blocks until the run reaches a terminal state or ctx is done.
// If the orchestrator shuts down first, the last persisted state is returned
// with ErrClosed.
func (o *Orchestrator) Wait(ctx context.Context, id string) (*core.Run, error) {
	for {
		o.mu.Lock()
		st := o.active[id]
		o.mu.Unlock()

		if st != nil {
			select {
			case <-st.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		run, err := o.runs.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		if run.Status.Terminal() {
			return run, nil
		}
		if o.isClosed() {
			return run, ErrClosed
		}

		if st == nil {
			timer := time.NewTimer(pollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// Cancel stops a run at its next step boundary. A deferred or unscheduled
// run is failed immediately. Cancelled runs end Failed with FailureCancelled.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	run, err := o.runs.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrRunTerminal, id, run.Status)
	}

	o.mu.Lock()
	st, tracked := o.active[id]
	finalize := !tracked
	if tracked {
		st.cancelRequested = true
		if st.timer != nil && st.timer.Stop() {
			st.timer = nil
			o.deferred--
			finalize = true
		}
	}
	o.mu.Unlock()

	o.logger.Info("cancel requested", "run_id", id, "immediate", finalize)
	if !finalize {
		return nil
	}

	// Reload: a deferral may have been persisted after the first read, or the
	// run may have finished and been released in between.
	run, err = o.runs.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrRunTerminal, id, run.Status)
	}
	return o.cancelRun(ctx, run, "cancelled")
}

// Retry re-schedules a failed run. Memoized steps are not executed again,
// so the run resumes at the step that failed.
func (o *Orchestrator) Retry(ctx context.Context, id string) (*core.Run, error) {
	run, err := o.runs.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status != core.RunFailed {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotRetryable, id, run.Status)
	}
	if err := o.track(id); err != nil {
		if errors.Is(err, errAlreadyTracked) {
			return nil, fmt.Errorf("%w: %s is still finishing", ErrNotRetryable, id)
		}
		return nil, err
	}

	run.Status = core.RunPending
	run.Failure = core.FailureNone
	run.Reason = ""
	run.Output = nil
	if err := o.runs.SaveRun(ctx, run); err != nil {
		o.finish(id)
		return nil, err
	}
	o.logger.Info("run retried", "run_id", id, "memoized_steps", len(run.Steps))

	if err := o.dispatch(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Resume schedules every Pending or Running run found in storage, typically
// after a restart. It returns the number of runs scheduled.
func (o *Orchestrator) Resume(ctx context.Context) (int, error) {
	runs, err := o.runs.GetRunsByStatus(ctx, core.RunPending, core.RunRunning)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, run := range runs {
		if err := o.track(run.ID); err != nil {
			if errors.Is(err, ErrClosed) {
				return resumed, err
			}
			continue
		}
		if err := o.dispatch(ctx, run); err != nil {
			o.logger.Error("failed to resume run", "run_id", run.ID, "err", err)
			continue
		}
		resumed++
	}
	if resumed > 0 {
		o.logger.Info("resumed runs", "count", resumed)
	}
	return resumed, nil
}

// Close stops accepting work, cancels in-flight steps and waits for workers
// to exit. Interrupted and deferred runs stay non-terminal in storage and
// are picked up by Resume.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	for _, st := range o.active {
		if st.timer != nil && st.timer.Stop() {
			st.timer = nil
			o.deferred--
		}
	}
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()

	o.mu.Lock()
	for id, st := range o.active {
		delete(o.active, id)
		close(st.done)
	}
	o.mu.Unlock()

	o.pool.Release()
	o.logger.Debug("orchestrator closed")
	return nil
}

// dispatch admits a run through the gate and hands it to the pool, or defers it.
func (o *Orchestrator) dispatch(ctx context.Context, run *core.Run) error {
	if o.cancelRequested(run.ID) {
		return o.cancelRun(ctx, run, "cancelled before start")
	}

	p, ok := o.Pipeline(run.Pipeline)
	if !ok {
		return o.failRun(ctx, run, fmt.Errorf("%w: %s", ErrUnknownPipeline, run.Pipeline))
	}

	if o.gate != nil && p.GateKey != nil && run.AdmittedAt.IsZero() {
		key, err := p.GateKey(run.Input)
		if err != nil {
			return o.failRun(ctx, run, core.Input(err))
		}

		now := o.now()
		decision := o.gate.Admit(key, now)
		if !decision.Admitted {
			return o.deferRun(ctx, run, key, decision)
		}

		run.AdmittedAt = now.UTC()
		run.NotBefore = time.Time{}
		run.Reason = ""
		if err := o.runs.SaveRun(ctx, run); err != nil {
			o.finish(run.ID)
			return err
		}
		o.logger.Debug("run admitted", "run_id", run.ID, "key", key, "deferrals", run.Deferrals)
	}

	o.enqueue(run.ID)
	return nil
}

// deferRun records the deferral and arms a timer that re-dispatches the run.
func (o *Orchestrator) deferRun(ctx context.Context, run *core.Run, key string, d ratelimit.Decision) error {
	o.mu.Lock()
	if o.deferred >= o.config.MaxDeferred {
		o.mu.Unlock()
		err := fmt.Errorf("%w: %d runs waiting", ErrQueueFull, o.config.MaxDeferred)
		if ferr := o.failRun(ctx, run, err); ferr != nil {
			return ferr
		}
		return err
	}
	o.deferred++
	o.mu.Unlock()

	run.Deferrals++
	run.NotBefore = o.now().Add(d.RetryAfter).UTC()
	run.Reason = fmt.Sprintf("deferred (%s), retry after %s", d.Reason, d.RetryAfter.Round(time.Millisecond))
	if err := o.runs.SaveRun(ctx, run); err != nil {
		o.mu.Lock()
		o.deferred--
		o.mu.Unlock()
		o.finish(run.ID)
		return err
	}

	o.mu.Lock()
	st := o.active[run.ID]
	if st == nil || st.cancelRequested || o.closed {
		o.deferred--
		cancelled := st != nil && st.cancelRequested
		o.mu.Unlock()
		if cancelled {
			return o.cancelRun(ctx, run, "cancelled while deferred")
		}
		o.finish(run.ID)
		return nil
	}
	id := run.ID
	st.timer = time.AfterFunc(d.RetryAfter, func() { o.wake(id) })
	o.mu.Unlock()

	o.logger.Info("run deferred",
		"run_id", run.ID, "key", key, "reason", d.Reason, "retry_after", d.RetryAfter, "deferrals", run.Deferrals)
	return nil
}

// wake re-dispatches a deferred run once its timer fires.
func (o *Orchestrator) wake(id string) {
	o.mu.Lock()
	st := o.active[id]
	if st == nil || st.timer == nil || o.closed {
		o.mu.Unlock()
		return
	}
	st.timer = nil
	o.deferred--
	o.mu.Unlock()

	run, err := o.runs.GetRun(o.ctx, id)
	if err != nil {
		o.logger.Error("failed to load deferred run", "run_id", id, "err", err)
		o.finish(id)
		return
	}
	if err := o.dispatch(o.ctx, run); err != nil {
		o.logger.Error("failed to dispatch deferred run", "run_id", id, "err", err)
	}
}

// enqueue hands a run to the worker pool without blocking the caller.
func (o *Orchestrator) enqueue(id string) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		o.finish(id)
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		err := o.pool.Submit(func() {
			defer o.wg.Done()
			o.execute(id)
		})
		if err != nil {
			o.wg.Done()
			o.logger.Error("failed to schedule run", "run_id", id, "err", err)
			o.finish(id)
		}
	}()
}

// execute runs the pipeline steps in order, skipping memoized ones.
func (o *Orchestrator) execute(id string) {
	defer o.finish(id)
	ctx := o.ctx

	run, err := o.runs.GetRun(ctx, id)
	if err != nil {
		o.logger.Error("failed to load run", "run_id", id, "err", err)
		return
	}
	if run.Status.Terminal() {
		return
	}

	p, ok := o.Pipeline(run.Pipeline)
	if !ok {
		_ = o.failRun(ctx, run, fmt.Errorf("%w: %s", ErrUnknownPipeline, run.Pipeline))
		return
	}
	logger := o.logger.With("run_id", id, "pipeline", run.Pipeline)

	run.Status = core.RunRunning
	run.Reason = ""
	if err := o.runs.SaveRun(ctx, run); err != nil {
		logger.Error("failed to mark run running", "err", err)
		return
	}
	logger.Info("run started", "memoized_steps", len(run.Steps))

	input := run.Input
	for _, step := range p.Steps {
		if o.cancelRequested(id) {
			_ = o.cancelRun(ctx, run, fmt.Sprintf("cancelled before step %s", step.name))
			return
		}

		if rec, ok := run.Step(step.name); ok {
			logger.Debug("step memoized, skipping", "step", step.name)
			input = rec.Output
			continue
		}

		rec, err := o.runStep(ctx, logger, step, input)
		if err != nil {
			if ctx.Err() != nil {
				logger.Warn("run interrupted by shutdown", "step", step.name)
				return
			}
			_ = o.failRun(ctx, run, fmt.Errorf("step %s failed after %d attempt(s): %w", step.name, rec.Attempts, err))
			return
		}

		run.Steps = append(run.Steps, rec)
		if err := o.runs.SaveRun(ctx, run); err != nil {
			logger.Error("failed to persist step result", "step", step.name, "err", err)
			return
		}
		logger.Debug("step completed", "step", step.name, "attempts", rec.Attempts)
		input = rec.Output
	}

	if o.cancelRequested(id) {
		_ = o.cancelRun(ctx, run, "cancelled before completion")
		return
	}

	run.Status = core.RunCompleted
	run.Output = input
	run.Reason = ""
	if err := o.runs.SaveRun(ctx, run); err != nil {
		logger.Error("failed to mark run completed", "err", err)
		return
	}
	logger.Info("run completed")
}

// runStep executes one step with a per-attempt timeout, retrying transient failures.
func (o *Orchestrator) runStep(ctx context.Context, logger *slog.Logger, step Step, input []byte) (core.StepRecord, error) {
	rec := core.StepRecord{Name: step.name}

	var out []byte
	attempts, err := RetryWithBackoff(ctx, func(attempt int) error {
		stepCtx, cancel := context.WithTimeout(ctx, o.config.StepTimeout)
		defer cancel()

		var err error
		out, err = step.call(stepCtx, input)
		if err != nil && ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %s exceeded %s", ErrStepTimeout, step.name, o.config.StepTimeout)
		}
		if err != nil {
			rec.LastError = err.Error()
			logger.Warn("step attempt failed",
				"step", step.name, "attempt", attempt, "kind", core.Classify(err).String(), "err", err)
		}
		return err
	}, core.IsTransient, o.config.MaxAttempts, o.config.BaseBackoff, o.config.MaxBackoff)

	rec.Attempts = attempts
	if err != nil {
		return rec, err
	}
	rec.Output = out
	rec.CompletedAt = o.now().UTC()
	return rec, nil
}

func (o *Orchestrator) failRun(ctx context.Context, run *core.Run, cause error) error {
	defer o.finish(run.ID)

	run.Status = core.RunFailed
	run.Failure = core.FailureError
	run.Reason = fmt.Sprintf("%s: %v", core.Classify(cause), cause)
	o.logger.Error("run failed", "run_id", run.ID, "pipeline", run.Pipeline, "reason", run.Reason)
	return o.runs.SaveRun(ctx, run)
}

func (o *Orchestrator) cancelRun(ctx context.Context, run *core.Run, reason string) error {
	defer o.finish(run.ID)

	run.Status = core.RunFailed
	run.Failure = core.FailureCancelled
	run.Reason = reason
	o.logger.Info("run cancelled", "run_id", run.ID, "reason", reason)
	return o.runs.SaveRun(ctx, run)
}

func (o *Orchestrator) track(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if _, exists := o.active[id]; exists {
		return errAlreadyTracked
	}
	o.active[id] = &runState{done: make(chan struct{})}
	return nil
}

// finish releases a run's state and wakes its waiters. Safe to call twice.
func (o *Orchestrator) finish(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.active[id]
	if !ok {
		return
	}
	if st.timer != nil && st.timer.Stop() {
		o.deferred--
	}
	delete(o.active, id)
	close(st.done)
}

func (o *Orchestrator) cancelRequested(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.active[id]
	return ok && st.cancelRequested
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
