package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	logx "playbookd/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, pruneEvery: 500}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) PutTrigger(ctx context.Context, t Trigger) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO triggers(key, id, name, cron, timezone, enabled, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(key) DO UPDATE SET
		   id=excluded.id, name=excluded.name, cron=excluded.cron, timezone=excluded.timezone,
		   enabled=excluded.enabled, created_at=excluded.created_at, updated_at=excluded.updated_at`,
		t.Key(), t.ID, t.Name, t.Cron, nullStr(t.Timezone), boolInt(t.Enabled),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	return err
}

const triggerCols = `id, name, cron, timezone, enabled, created_at, updated_at`

func (s *sqliteStore) GetTrigger(ctx context.Context, name string) (Trigger, error) {
	if s == nil || s.db == nil {
		return Trigger{}, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+triggerCols+` FROM triggers WHERE key = ?`, TriggerKey(name))
	t, err := scanTrigger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Trigger{}, ErrNotFound
	}
	return t, err
}

func (s *sqliteStore) ListTriggers(ctx context.Context) ([]Trigger, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+triggerCols+` FROM triggers ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteTrigger(ctx context.Context, name string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM triggers WHERE key = ?`, TriggerKey(name))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrigger(r rowScanner) (Trigger, error) {
	var (
		t                Trigger
		tz               sql.NullString
		enabled          int
		created, updated string
	)
	if err := r.Scan(&t.ID, &t.Name, &t.Cron, &tz, &enabled, &created, &updated); err != nil {
		return Trigger{}, err
	}
	t.Timezone = tz.String
	t.Enabled = enabled != 0
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return t, nil
}

func (s *sqliteStore) AppendRun(ctx context.Context, r RunRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.FiredAt.IsZero() {
		r.FiredAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(trigger_id, trigger_name, fired_at, duration_ns, attempts, err) VALUES(?,?,?,?,?,?)`,
		r.TriggerID, r.TriggerName, formatTime(r.FiredAt), int64(r.Duration), r.Attempts, nullStr(r.Error),
	)
	return err
}

func (s *sqliteStore) ListRuns(ctx context.Context, triggerID string, limit int) ([]RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT trigger_id, trigger_name, fired_at, duration_ns, attempts, err
		 FROM runs WHERE trigger_id = ? ORDER BY seq DESC LIMIT ?`, triggerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]RunRecord, 0, 8)
	for rows.Next() {
		var (
			r     RunRecord
			fired string
			dur   int64
			msg   sql.NullString
		)
		if err := rows.Scan(&r.TriggerID, &r.TriggerName, &fired, &dur, &r.Attempts, &msg); err != nil {
			return nil, err
		}
		r.FiredAt = parseTime(fired)
		r.Duration = time.Duration(dur)
		r.Error = msg.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneRuns(ctx context.Context, keep int) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE seq IN (
		   SELECT seq FROM (
		     SELECT seq, ROW_NUMBER() OVER (PARTITION BY trigger_id ORDER BY seq DESC) AS rn FROM runs
		   ) WHERE rn > ?
		 )`, keep)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until=excluded.until`,
		key, ms,
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_ = s.pruneExpired(pctx)
		cancel()
	}
	return err
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, ErrDisabled
	}
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM dedup WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (s *sqliteStore) pruneExpired(ctx context.Context) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `DELETE FROM dedup WHERE until < ?`, now)
	return err
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
