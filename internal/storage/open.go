package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "playbookd/pkg/logx"
)

// Store is the persistence API used by the playbook service and notifier.
type Store interface {
	// PutTrigger inserts or replaces the trigger keyed by its name.
	PutTrigger(ctx context.Context, t Trigger) error
	// GetTrigger returns ErrNotFound when no trigger has that name.
	GetTrigger(ctx context.Context, name string) (Trigger, error)
	// ListTriggers returns all triggers sorted by key.
	ListTriggers(ctx context.Context) ([]Trigger, error)
	// DeleteTrigger returns ErrNotFound when no trigger has that name.
	DeleteTrigger(ctx context.Context, name string) error

	AppendRun(ctx context.Context, r RunRecord) error
	// ListRuns returns at most limit runs of the trigger, newest first.
	ListRuns(ctx context.Context, triggerID string, limit int) ([]RunRecord, error)
	// PruneRuns keeps the newest keep runs per trigger and returns how many were removed.
	PruneRuns(ctx context.Context, keep int) (int, error)

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "", "none", "memory":
		return newMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
