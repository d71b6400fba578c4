package notifier

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	kit "playbookd/internal/transport"
)

type dedupWrite struct {
	key   string
	until time.Time
}

func dedupKey(n kit.Notification) string {
	if n.Channel == "" {
		return ""
	}
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s|%d:%d:%d|", n.Channel, n.Target.ChatID, n.Target.ThreadID, n.Priority)
	_, _ = h.Write([]byte(n.Text))
	return fmt.Sprintf("%x", h.Sum64())
}

// dedupAllow reports whether key may be sent now and, if so, opens a new
// suppression window for it.
func (s *Service) dedupAllow(ctx context.Context, key string, cfg Config, pch chan dedupWrite) bool {
	now := time.Now()

	s.dmu.Lock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		s.dmu.Unlock()
		return false
	}
	s.dmu.Unlock()

	// Cross-restart check, best-effort.
	if cfg.PersistDedup && s.store != nil {
		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		until, ok, err := s.store.GetDedup(cctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			s.dmu.Lock()
			s.dedup[key] = until
			s.dmu.Unlock()
			return false
		}
	}

	until := now.Add(cfg.DedupWindow)
	s.dmu.Lock()
	s.dedup[key] = until
	for k, u := range s.dedup {
		if !now.Before(u) {
			delete(s.dedup, k)
		}
	}
	// Evict earliest expiries until within the cap.
	for len(s.dedup) > cfg.DedupMaxEntries {
		var (
			minKey string
			minT   time.Time
		)
		for k, t := range s.dedup {
			if minKey == "" || t.Before(minT) {
				minKey, minT = k, t
			}
		}
		delete(s.dedup, minKey)
	}
	s.dmu.Unlock()

	if pch != nil {
		select {
		case pch <- dedupWrite{key: key, until: until}:
		default:
		}
	}
	return true
}
