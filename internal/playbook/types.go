package playbook

import (
	"context"
	"errors"
	"time"

	"playbookd/internal/storage"
	kit "playbookd/internal/transport"
	"playbookd/pkg/schedcodec"
)

var (
	ErrNotFound        = errors.New("trigger not found")
	ErrNameRequired    = errors.New("trigger name required")
	ErrInvalidSchedule = errors.New("invalid schedule")
)

// Config controls how triggers fire.
type Config struct {
	// DefaultTimezone is used for triggers created without one.
	DefaultTimezone string
	// RunTimeout bounds one firing, including the Runner.
	RunTimeout time.Duration
	// HistoryKeep is the number of runs kept per trigger by PruneHistory.
	HistoryKeep int
	// NotifyTarget receives fire notifications; zero disables them.
	NotifyTarget kit.ChatTarget
}

// View is a trigger together with its editor state and description.
type View struct {
	Trigger     storage.Trigger
	State       schedcodec.ScheduleState
	Description string
}

// Seed declares a trigger in config. Stored triggers win over seeds.
type Seed struct {
	Name     string
	Cron     string
	Timezone string
	Enabled  bool
}

// Runner performs the playbook work of one firing. The daemon itself only
// announces firings; a Runner lets an embedding program do more.
type Runner func(ctx context.Context, t storage.Trigger) error

// Notifier is the subset of the notifier service used for fire messages.
type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}

// TriggerEvent is published on the event bus for trigger lifecycle events.
type TriggerEvent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Cron        string    `json:"cron"`
	Timezone    string    `json:"timezone,omitempty"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description"`
	At          time.Time `json:"at"`
}
