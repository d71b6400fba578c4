// Package engine executes fired playbook runs on a bounded worker pool.
//
// Tasks are queued without blocking (Enqueue) or with backpressure (Submit),
// run with a per-task timeout, and retried with exponential backoff and
// jitter unless the error is wrapped with NoRetry. SkipIfRunning tasks are
// gated per name so a slow playbook is never stacked behind itself.
package engine
