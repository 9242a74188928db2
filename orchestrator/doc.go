// Package orchestrator runs pipelines as durable, memoized runs.
//
// A Pipeline is an ordered list of Steps. Each step's input and output are
// MUS-encoded, and every completed step is persisted in the run record
// before the next one starts. Retrying or resuming a run therefore skips
// the steps that already succeeded.
//
// Step failures are classified with core.Classify. Transient errors
// (including a step exceeding Config.StepTimeout) are retried with
// exponential backoff up to Config.MaxAttempts; anything else fails the
// run immediately.
//
// Pipelines with a GateKey pass through a ratelimit.Gate before their first
// step. Runs the gate refuses are deferred and re-evaluated after the
// suggested delay. At most Config.MaxDeferred runs wait at once; beyond that
// Submit fails with ErrQueueFull.
//
// Cancellation takes effect between steps. A cancelled run ends Failed with
// core.FailureCancelled so pollers can tell it apart from an execution error.
//
// Basic usage:
//
//	o, err := orchestrator.New(runs,
//	    orchestrator.WithGate(gate),
//	    orchestrator.WithPipeline(ingest),
//	)
//	run, err := o.Submit(ctx, "rag/ingest_pdf", input)
//	run, err = o.Wait(ctx, run.ID)
package orchestrator
