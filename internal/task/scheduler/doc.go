// Package scheduler registers playbook triggers and housekeeping intervals
// with robfig/cron and enqueues a task into the engine on every tick.
//
// The scheduler only computes trigger times. Execution, retries and overlap
// gating belong to the task engine. Each cron entry is evaluated in its own
// IANA location so triggers in different timezones share one cron instance.
package scheduler
