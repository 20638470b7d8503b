// Package workspace manages per-download directories under the downloads root.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vidfetch/internal/config"
	"vidfetch/internal/errs"
	"vidfetch/internal/observability"

	"github.com/google/uuid"
)

const dirPerm = 0o755

// Cleanup outcomes, used as metric labels.
const (
	cleanupSuccess = "success"
	cleanupSkipped = "skipped"
	cleanupError   = "error"
)

// Manager allocates and removes workspace directories. Every workspace is a direct child of root.
type Manager struct {
	log     *slog.Logger
	root    string
	maxAge  time.Duration
	metrics *observability.Metrics
}

// New creates the downloads root if needed and returns a Manager for it. metrics may be nil.
func New(log *slog.Logger, cfg *config.Config, metrics *observability.Metrics) (*Manager, error) {
	root, err := filepath.Abs(cfg.Dir.Downloads)
	if err != nil {
		return nil, fmt.Errorf("abs downloads root: %w", err)
	}

	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("%w: create downloads root: %w", errs.ErrWorkspaceIO, err)
	}

	// compare against the resolved root so symlinked parents cannot escape it
	if root, err = filepath.EvalSymlinks(root); err != nil {
		return nil, fmt.Errorf("resolve downloads root: %w", err)
	}

	return &Manager{
		log:     log.With(slog.String("package", "workspace")),
		root:    root,
		maxAge:  cfg.Workspace.MaxAge,
		metrics: metrics,
	}, nil
}

// Root returns the resolved downloads root.
func (m *Manager) Root() string {
	return m.root
}

// ValidateID rejects identifiers that could address anything but a direct child of the root.
func ValidateID(id string) error {
	switch {
	case strings.TrimSpace(id) == "", id == ".":
		return errs.ErrInvalidDownloadID
	case strings.Contains(id, ".."), strings.ContainsAny(id, `/\`+"\x00"):
		return errs.ErrInvalidDownloadID
	default:
		return nil
	}
}

// Allocate creates a fresh workspace and returns its identifier and path.
func (m *Manager) Allocate(ctx context.Context) (string, string, error) {
	id := uuid.NewString()
	dir := m.DirFor(id)

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		m.log.ErrorContext(ctx, "allocate workspace", slog.String("download_id", id), slog.Any("error", err))

		return "", "", fmt.Errorf("%w: %w", errs.ErrWorkspaceIO, err)
	}

	m.metrics.RecordWorkspaceAllocated()

	m.log.DebugContext(ctx, "workspace allocated", slog.String("download_id", id), slog.String("dir", dir))

	return id, dir, nil
}

// DirFor returns the workspace path for id without touching the filesystem.
func (m *Manager) DirFor(id string) string {
	return filepath.Join(m.root, id)
}

// Ensure reuses or recreates the workspace for id.
func (m *Manager) Ensure(ctx context.Context, id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}

	dir := m.DirFor(id)

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		m.log.ErrorContext(ctx, "ensure workspace", slog.String("download_id", id), slog.Any("error", err))

		return "", fmt.Errorf("%w: %w", errs.ErrWorkspaceIO, err)
	}

	return dir, nil
}

// Remove deletes the workspace for id. Failures are logged only.
func (m *Manager) Remove(ctx context.Context, id string) {
	if err := ValidateID(id); err != nil {
		m.log.WarnContext(ctx, "refusing to remove workspace", slog.String("download_id", id), slog.Any("error", err))

		return
	}

	if err := os.RemoveAll(m.DirFor(id)); err != nil {
		m.log.ErrorContext(ctx, "remove workspace", slog.String("download_id", id), slog.Any("error", err))

		return
	}

	m.log.DebugContext(ctx, "workspace removed", slog.String("download_id", id))
}

// Cleanup removes filePath and then its parent directory if that parent is a direct child of the root.
// Paths resolving outside the root are left untouched. Failures are logged only.
func (m *Manager) Cleanup(ctx context.Context, filePath string) {
	log := m.log.With(slog.String("func", "Cleanup"), slog.String("path", filePath))

	abs, err := filepath.Abs(filePath)
	if err != nil {
		log.ErrorContext(ctx, "abs path", slog.Any("error", err))
		m.metrics.RecordCleanup(cleanupError)

		return
	}

	parent, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.DebugContext(ctx, "workspace already gone")
			m.metrics.RecordCleanup(cleanupSkipped)

			return
		}

		log.ErrorContext(ctx, "resolve parent", slog.Any("error", err))
		m.metrics.RecordCleanup(cleanupError)

		return
	}

	if !m.isDirectChild(parent) {
		log.WarnContext(ctx, "parent is not a workspace under downloads root, skipping",
			slog.String("parent", parent), slog.String("root", m.root))
		m.metrics.RecordCleanup(cleanupSkipped)

		return
	}

	file := filepath.Join(parent, filepath.Base(abs))
	if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.ErrorContext(ctx, "remove file", slog.Any("error", err))
	}

	if err := os.RemoveAll(parent); err != nil {
		log.ErrorContext(ctx, "remove workspace", slog.Any("error", err))
		m.metrics.RecordCleanup(cleanupError)

		return
	}

	m.metrics.RecordCleanup(cleanupSuccess)

	log.DebugContext(ctx, "workspace cleaned up", slog.String("download_id", filepath.Base(parent)))
}

// isDirectChild reports whether the clean, resolved dir sits exactly one level below the root.
func (m *Manager) isDirectChild(dir string) bool {
	dir = filepath.Clean(dir)

	return dir != m.root && filepath.Dir(dir) == m.root
}
