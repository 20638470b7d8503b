package workspace

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// SweepStale removes abandoned workspaces older than the configured max age every interval until ctx is done.
func (m *Manager) SweepStale(ctx context.Context, interval time.Duration) {
	if interval <= 0 || m.maxAge <= 0 {
		m.log.InfoContext(ctx, "stale workspace sweeper disabled")

		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := m.log.With(slog.String("action", "sweep_stale"), slog.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			m.Sweep(ctx)
		case <-ctx.Done():
			log.Info("stale workspace sweeper stopped")

			return
		}
	}
}

// Sweep removes workspaces last modified more than max age ago and returns how many were removed.
// Only real directories directly under the root are considered.
func (m *Manager) Sweep(ctx context.Context) int {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		m.log.ErrorContext(ctx, "read downloads root", slog.Any("error", err))

		return 0
	}

	cutoff := time.Now().Add(-m.maxAge)
	removed, remaining := 0, 0

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if !info.ModTime().Before(cutoff) {
			remaining++

			continue
		}

		dir := filepath.Join(m.root, entry.Name())

		if err := os.RemoveAll(dir); err != nil {
			m.log.ErrorContext(ctx, "remove stale workspace", slog.String("dir", dir), slog.Any("error", err))

			remaining++

			continue
		}

		removed++

		m.log.DebugContext(ctx, "stale workspace removed",
			slog.String("download_id", entry.Name()),
			slog.Time("modified", info.ModTime()))
	}

	m.metrics.RecordSweep(removed, remaining)

	if removed > 0 {
		m.log.InfoContext(ctx, "stale workspaces removed", slog.Int("count", removed), slog.Int("remaining", remaining))
	}

	return removed
}
