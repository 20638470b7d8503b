// Package extractor wraps the external video extraction tool behind a metadata/download contract.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"vidfetch/internal/config"
	"vidfetch/internal/consts"
	"vidfetch/internal/entity"
	"vidfetch/internal/errs"
	"vidfetch/internal/observability"
	"vidfetch/internal/proxymgr"
)

const (
	defaultProgressFreq = 500 * time.Millisecond

	// stderr marker yt-dlp prints when it rejects the input itself.
	ytdlpErrorMarker = "ERROR:"
)

// Extractor extracts video metadata and downloads a chosen format.
type Extractor interface {
	// ExtractMetadata returns metadata for url without downloading the asset.
	ExtractMetadata(ctx context.Context, url string) (*entity.Video, error)
	// Download stores formatID of url inside dir and returns the produced file path.
	Download(ctx context.Context, url, dir, formatID string) (string, error)
}

// New returns the extractor selected by cfg.Extractor.Kind.
func New(
	log *slog.Logger,
	cfg *config.Config,
	proxies *proxymgr.Manager,
	metrics *observability.Metrics,
) (Extractor, error) {
	switch cfg.Extractor.Kind {
	case consts.ExtractorYTdlp, "":
		return NewYTdlp(log, cfg, proxies, metrics), nil
	case consts.ExtractorMock:
		return NewMock(log), nil
	default:
		return nil, fmt.Errorf("%w: %q", errs.ErrExtractorNotFound, cfg.Extractor.Kind)
	}
}

// classifyError returns a short label for metrics.
func classifyError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, errs.ErrUnprocessableVideo):
		return "unprocessable"
	case errors.Is(err, errs.ErrBinaryNotFound):
		return "binary"
	default:
		return "process"
	}
}

// wrapRunError maps a failed yt-dlp run to the error taxonomy.
// kind is errs.ErrExtractionFailed or errs.ErrDownloadFailed.
func wrapRunError(ctx context.Context, kind, err error, stderr string) error {
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", kind, ctx.Err())
	case errors.Is(err, exec.ErrNotFound):
		return fmt.Errorf("%w: %w: %w", kind, errs.ErrBinaryNotFound, err)
	case strings.Contains(stderr, ytdlpErrorMarker):
		return fmt.Errorf("%w: %w: %s", kind, errs.ErrUnprocessableVideo, lastErrorLine(stderr))
	default:
		return fmt.Errorf("%w: %w", kind, err)
	}
}

// lastErrorLine returns the last "ERROR:" line of stderr, without the marker.
func lastErrorLine(stderr string) string {
	var last string

	for line := range strings.Lines(stderr) {
		line = strings.TrimSpace(line)
		if idx := strings.Index(line, ytdlpErrorMarker); idx >= 0 {
			last = strings.TrimSpace(line[idx+len(ytdlpErrorMarker):])
		}
	}

	return last
}
