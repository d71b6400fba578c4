package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "time/tzdata"

	"playbookd/internal/config"
)

const testConfig = `
telegram:
  token: ""
  owner_user_ids: [1001]
  notify_chat: "-100200"
logging:
  level: warn
  console: false
scheduler:
  enabled: true
  timezone: America/New_York
  run_timeout: 30s
  history_keep: 5
storage:
  driver: file
  path: %PATH%
playbooks:
  - name: weekly digest
    schedule: {frequency: weekly, dayOfWeek: 5, monthDay: 1, hour: 5, minute: "00", ampm: pm}
    timezone: America/Los_Angeles
  - name: restock
    cron: "30 9 15 * *"
    enabled: false
`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := []byte(strings.ReplaceAll(testConfig, "%PATH%", filepath.Join(dir, "playbookd")))
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAppLifecycle(t *testing.T) {
	path := writeConfig(t)
	a, err := NewApp(path)
	if err != nil {
		t.Fatalf("NewApp error: %v", err)
	}
	if a.adapter != nil || a.editor != nil {
		t.Fatal("chat surface must stay off without a token")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	v, err := a.Playbooks().Get(ctx, "Weekly Digest")
	if err != nil {
		t.Fatal(err)
	}
	if v.Trigger.Cron != "0 17 * * 5" || v.Description != "Every Friday at 5:00 PM Pacific" {
		t.Fatalf("seeded view = %+v", v)
	}
	r, err := a.Playbooks().Get(ctx, "restock")
	if err != nil || r.Trigger.Enabled || r.Trigger.Timezone != "America/New_York" {
		t.Fatalf("restock = %+v, %v", r.Trigger, err)
	}
	if !a.sched.Has("playbook:weekly digest") || a.sched.Has("playbook:restock") {
		t.Fatalf("schedules = %+v", a.sched.Snapshot().Schedules)
	}
	if !a.sched.Has(pruneEntry) {
		t.Fatal("prune housekeeping not scheduled")
	}
	st := a.status()
	if !st.Scheduler.Running || len(st.Scheduler.Schedules) != 2 || st.Scheduler.Workers == 0 {
		t.Fatalf("status = %+v", st.Scheduler)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("Stop error: %v", err)
	}

	// Triggers survive a restart through the file store.
	b, err := NewApp(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = b.Stop(stopCtx, StopAppStop) }()
	views, err := b.Playbooks().List(context.Background())
	if err != nil || len(views) != 2 {
		t.Fatalf("views after restart = %+v, %v", views, err)
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		st      *config.StorageConfig
		driver  string
		wantErr bool
	}{
		{name: "omitted", st: nil, driver: "memory"},
		{name: "none", st: &config.StorageConfig{Driver: "none"}, driver: "memory"},
		{name: "sqlite", st: &config.StorageConfig{Driver: "SQLite", Path: "x.db"}, driver: "sqlite"},
		{name: "file without path", st: &config.StorageConfig{Driver: "file"}, wantErr: true},
		{name: "unknown", st: &config.StorageConfig{Driver: "redis", Path: "x"}, wantErr: true},
	}
	for _, tt := range tests {
		got, err := mapStorageConfig(&config.Config{Storage: tt.st})
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: err = %v", tt.name, err)
		}
		if err == nil && got.Driver != tt.driver {
			t.Fatalf("%s: driver = %q, want %q", tt.name, got.Driver, tt.driver)
		}
	}
}

func TestMapPlaybookConfig(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Telegram.NotifyChat = "-100200"
	cfg.Telegram.NotifyThreadID = 7
	cfg.Scheduler.Timezone = " America/Denver "
	pc, err := mapPlaybookConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if pc.DefaultTimezone != "America/Denver" || pc.HistoryKeep != defaultHistoryKeep {
		t.Fatalf("config = %+v", pc)
	}
	if pc.NotifyTarget.ChatID != -100200 || pc.NotifyTarget.ThreadID != 7 {
		t.Fatalf("target = %+v", pc.NotifyTarget)
	}

	cfg.Scheduler.RunTimeout = "soon"
	if _, err := mapPlaybookConfig(cfg); err == nil {
		t.Fatal("expected duration error")
	}
}

func TestValidateRejectsBadPruneEvery(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Scheduler.PruneEvery = "whenever"
	if err := validate(cfg); err == nil {
		t.Fatal("expected prune_every error")
	}
	cfg.Scheduler.PruneEvery = "30m"
	if err := validate(cfg); err != nil {
		t.Fatalf("validate error: %v", err)
	}
}
