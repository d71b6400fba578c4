package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "playbookd/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.triggers.json       (snapshot, rewritten on every change)
//   - <prefix>.runs.jsonl          (append-only JSON Lines, rewritten on prune)
//   - <prefix>.dedup.snapshot.json (periodic snapshot)
//   - <prefix>.dedup.journal.jsonl (append-only journal)
//
// The dedup journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	triggersPath string
	triggers     map[string]Trigger

	runsPath string
	runsFile *os.File
	runs     []RunRecord

	dedupSnapshotPath string
	dedupJournalFile  *os.File
	dedup             map[string]int64 // unix milli

	dedupWrites int
}

type dedupRecord struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	triggersPath := prefix + ".triggers.json"
	runsPath := prefix + ".runs.jsonl"
	snapPath := prefix + ".dedup.snapshot.json"
	journalPath := prefix + ".dedup.journal.jsonl"

	triggers := map[string]Trigger{}
	if err := loadTriggers(triggersPath, triggers); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	runs, err := loadRuns(runsPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	rf, err := os.OpenFile(runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	// Load dedup from snapshot + journal.
	dedup := map[string]int64{}
	_ = loadDedupSnapshot(snapPath, dedup)
	_ = replayDedupJournal(journalPath, dedup)
	pruneExpiredDedup(dedup)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = rf.Close()
		return nil, err
	}

	log.Debug("file store opened",
		logx.String("prefix", prefix),
		logx.Int("triggers", len(triggers)),
		logx.Int("runs", len(runs)),
	)

	return &fileStore{
		log:               log,
		triggersPath:      triggersPath,
		triggers:          triggers,
		runsPath:          runsPath,
		runsFile:          rf,
		runs:              runs,
		dedupSnapshotPath: snapPath,
		dedupJournalFile:  jf,
		dedup:             dedup,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.runsFile != nil {
		err1 = s.runsFile.Close()
		s.runsFile = nil
	}
	if s.dedupJournalFile != nil {
		err2 = s.dedupJournalFile.Close()
		s.dedupJournalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) PutTrigger(_ context.Context, t Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return ErrDisabled
	}
	prev, had := s.triggers[t.Key()]
	s.triggers[t.Key()] = t
	if err := s.writeTriggersLocked(); err != nil {
		if had {
			s.triggers[t.Key()] = prev
		} else {
			delete(s.triggers, t.Key())
		}
		return err
	}
	return nil
}

func (s *fileStore) GetTrigger(_ context.Context, name string) (Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[TriggerKey(name)]
	if !ok {
		return Trigger{}, ErrNotFound
	}
	return t, nil
}

func (s *fileStore) ListTriggers(_ context.Context) ([]Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedTriggers(s.triggers), nil
}

func (s *fileStore) DeleteTrigger(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := TriggerKey(name)
	prev, ok := s.triggers[k]
	if !ok {
		return ErrNotFound
	}
	delete(s.triggers, k)
	if err := s.writeTriggersLocked(); err != nil {
		s.triggers[k] = prev
		return err
	}
	return nil
}

func (s *fileStore) writeTriggersLocked() error {
	return writeJSONAtomic(s.triggersPath, sortedTriggers(s.triggers))
}

func (s *fileStore) AppendRun(_ context.Context, r RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return errors.New("runs file closed")
	}
	if err := json.NewEncoder(s.runsFile).Encode(r); err != nil {
		return err
	}
	s.runs = append(s.runs, r)
	return nil
}

func (s *fileStore) ListRuns(_ context.Context, triggerID string, limit int) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestRuns(s.runs, triggerID, limit), nil
}

func (s *fileStore) PruneRuns(_ context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return 0, errors.New("runs file closed")
	}
	kept, removed := pruneRuns(s.runs, keep)
	if removed == 0 {
		return 0, nil
	}

	tmp := s.runsPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range kept {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			return 0, err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}

	_ = s.runsFile.Close()
	s.runsFile = nil
	if err := os.Rename(tmp, s.runsPath); err != nil {
		return 0, err
	}
	rf, err := os.OpenFile(s.runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	s.runsFile = rf
	s.runs = kept
	return removed, nil
}

func (s *fileStore) PutDedup(_ context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dedupJournalFile == nil {
		return errors.New("dedup journal closed")
	}
	s.dedup[key] = ms

	if err := json.NewEncoder(s.dedupJournalFile).Encode(dedupRecord{Key: key, Until: ms}); err != nil {
		return err
	}
	s.dedupWrites++
	if s.dedupWrites%1000 == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("dedup compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.dedup[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (s *fileStore) compactLocked() error {
	pruneExpiredDedup(s.dedup)
	if err := writeJSONAtomic(s.dedupSnapshotPath, s.dedup); err != nil {
		return err
	}
	if err := s.dedupJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err := s.dedupJournalFile.Seek(0, io.SeekEnd)
	return err
}

func writeJSONAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadTriggers(path string, out map[string]Trigger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var list []Trigger
	if err := json.NewDecoder(f).Decode(&list); err != nil {
		return err
	}
	for _, t := range list {
		if t.Key() == "" {
			continue
		}
		out[t.Key()] = t
	}
	return nil
}

// loadRuns skips malformed lines so that a torn final write does not block startup.
func loadRuns(path string) ([]RunRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []RunRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var r RunRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.TriggerID == "" {
			continue
		}
		out = append(out, r)
	}
	return out, sc.Err()
}

func loadDedupSnapshot(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]int64
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayDedupJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		var r dedupRecord
		if err := json.Unmarshal(s.Bytes(), &r); err != nil {
			continue
		}
		if r.Key == "" {
			continue
		}
		out[r.Key] = r.Until
	}
	return s.Err()
}

func pruneExpiredDedup(m map[string]int64) {
	now := time.Now().UnixMilli()
	for k, v := range m {
		if v < now {
			delete(m, k)
		}
	}
}
