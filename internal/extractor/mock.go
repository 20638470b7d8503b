package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"vidfetch/internal/consts"
	"vidfetch/internal/entity"
	"vidfetch/internal/errs"
	"vidfetch/pkg/ptr"
)

// Mock is a deterministic extractor for tests and local development.
// Exported fields may be changed before use.
type Mock struct {
	log *slog.Logger

	Video       entity.Video
	Filename    string
	Content     []byte
	MetadataErr error
	DownloadErr error

	mu            sync.Mutex
	metadataCalls int
	downloadCalls int
	lastFormatID  string
}

// NewMock returns a mock extractor reporting a single 720p mp4 format.
func NewMock(log *slog.Logger) *Mock {
	return &Mock{
		log: log.With(slog.String("package", "extractor"), slog.String("extractor", consts.ExtractorMock)),
		Video: entity.Video{
			Title:        "Test Clip",
			Duration:     ptr.Of(42),
			ThumbnailURL: ptr.Of("https://example.com/thumb.jpg"),
			Formats: []entity.Format{
				{FormatID: "hd", Resolution: "1280x720", Ext: "mp4", Filesize: ptr.Of[int64](1024)},
			},
		},
		Filename: "clip.mp4",
		Content:  []byte("mock video content"),
	}
}

// ExtractMetadata returns a copy of m.Video or m.MetadataErr.
func (m *Mock) ExtractMetadata(ctx context.Context, url string) (*entity.Video, error) {
	m.mu.Lock()
	m.metadataCalls++
	m.mu.Unlock()

	m.log.DebugContext(ctx, "extract metadata", slog.String("url", url))

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrExtractionFailed, err)
	}

	if m.MetadataErr != nil {
		return nil, m.MetadataErr
	}

	video := m.Video
	video.Formats = append([]entity.Format(nil), m.Video.Formats...)

	return &video, nil
}

// Download writes m.Content to dir/m.Filename or returns m.DownloadErr.
func (m *Mock) Download(ctx context.Context, url, dir, formatID string) (string, error) {
	m.mu.Lock()
	m.downloadCalls++
	m.lastFormatID = formatID
	m.mu.Unlock()

	m.log.DebugContext(ctx, "download", slog.String("url", url), slog.String("dir", dir), slog.String("format_id", formatID))

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrDownloadFailed, err)
	}

	if m.DownloadErr != nil {
		return "", m.DownloadErr
	}

	path := filepath.Join(dir, m.Filename)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		return "", fmt.Errorf("%w: create dir: %w", errs.ErrDownloadFailed, err)
	}

	if err := os.WriteFile(path, m.Content, 0o644); err != nil { //nolint:gosec
		return "", fmt.Errorf("%w: write file: %w", errs.ErrDownloadFailed, err)
	}

	return path, nil
}

// MetadataCalls returns how many times ExtractMetadata was called.
func (m *Mock) MetadataCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.metadataCalls
}

// DownloadCalls returns how many times Download was called.
func (m *Mock) DownloadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.downloadCalls
}

// LastFormatID returns the format id passed to the last Download call.
func (m *Mock) LastFormatID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastFormatID
}
