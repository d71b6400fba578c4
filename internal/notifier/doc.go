// Package notifier delivers short operator messages, such as "playbook fired",
// to a chat target without blocking the caller.
//
// Notify enqueues; a small worker pool sends through a transport.Sender under
// a token-bucket rate limit with exponential retry. Identical messages to the
// same target are suppressed for DedupWindow, optionally across restarts via
// the storage dedup table.
package notifier
