package storage

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("not found")
)

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Trigger is a named, persisted cron schedule for a playbook.
// Cron is the system of record; the UI state is always re-derived from it.
type Trigger struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Cron      string    `json:"cron"`
	Timezone  string    `json:"timezone,omitempty"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key is the case-insensitive lookup key of the trigger.
func (t Trigger) Key() string { return TriggerKey(t.Name) }

// TriggerKey normalizes a trigger name for lookups.
func TriggerKey(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// RunRecord is one firing of a trigger.
type RunRecord struct {
	TriggerID   string        `json:"trigger_id"`
	TriggerName string        `json:"trigger_name"`
	FiredAt     time.Time     `json:"fired_at"`
	Duration    time.Duration `json:"duration_ns"`
	Attempts    int           `json:"attempts"`
	Error       string        `json:"error,omitempty"`
}

// OK reports whether the run finished without error.
func (r RunRecord) OK() bool { return r.Error == "" }
