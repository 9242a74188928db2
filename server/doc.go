// Package server exposes the orchestrator over HTTP.
//
// Routes:
//
//	POST /v1/events              submit {"name": "<pipeline>", "data": {...}}
//	GET  /v1/events/:id/runs     runs triggered by an event
//	GET  /v1/runs/:id            poll one run
//	POST /v1/runs/:id/cancel     cancel a run between steps
//	POST /v1/runs/:id/retry      retry a failed run from its first unfinished step
//	GET  /healthz                liveness
//
// A polled run reports its status, its decoded output once Completed and
// the failure reason once Failed. Client wraps the same routes for the CLI.
package server
