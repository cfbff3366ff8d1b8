package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lesson-library/internal/logx"
)

// FilesystemStore never deletes session files on its own, so expired ones
// are swept here.

// StartSweeper removes expired session files every interval until ctx is
// cancelled. It blocks; run it in a goroutine.
func (a *Authority) StartSweeper(ctx context.Context, interval time.Duration) {
	logx.Info("session sweeper starting", logx.Fields{"interval": interval.String(), "max_age": a.ttl.String()})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.Sweep(time.Now())
	for {
		select {
		case <-ctx.Done():
			logx.Info("session sweeper stopping", nil)
			return
		case now := <-ticker.C:
			a.Sweep(now)
		}
	}
}

// Sweep deletes session files last written more than one TTL before now and
// returns how many it removed.
func (a *Authority) Sweep(now time.Time) int {
	start := time.Now()
	cutoff := now.Add(-a.ttl)

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		logx.Warn("session sweep: read dir failed", logx.Fields{"error": err.Error()})
		return 0
	}

	deleted := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasPrefix(e.Name(), "session_") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(a.dir, e.Name())); err != nil {
			logx.Warn("session sweep: remove failed", logx.Fields{"file": e.Name(), "error": err.Error()})
			continue
		}
		deleted++
	}

	if deleted > 0 {
		logx.Info("session sweep complete", logx.Fields{"deleted": deleted, "duration_ms": time.Since(start).Milliseconds()})
	}
	return deleted
}
