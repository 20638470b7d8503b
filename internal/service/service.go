// Package service orchestrates metadata extraction, downloads and workspace cleanup.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"vidfetch/internal/config"
	"vidfetch/internal/entity"
	"vidfetch/internal/errs"
	"vidfetch/internal/extractor"
	"vidfetch/internal/observability"
	"vidfetch/internal/session"
	"vidfetch/internal/workspace"
	"vidfetch/pkg/ptr"
	"vidfetch/pkg/urls"
)

// Request outcomes, used as metric labels.
const (
	outcomeSuccess = "success"
	outcomeInvalid = "invalid"
	outcomeError   = "error"
)

type video struct {
	log        *slog.Logger
	cfg        *config.Config
	extractor  extractor.Extractor
	workspaces *workspace.Manager
	sessions   *session.Registry
	metrics    *observability.Metrics

	wg sync.WaitGroup
}

// Video is the use-case layer behind the HTTP handlers and the CLI.
type Video interface {
	// Process validates url, extracts its metadata and issues a download id.
	Process(ctx context.Context, url string) (*entity.Video, error)
	// Download fetches formatID for the download id and returns the produced file path.
	// url may be empty when the id was issued by Process and its session is still alive.
	Download(ctx context.Context, id, url, formatID string) (string, error)
	// Thumbnail returns the thumbnail URL recorded for the download id.
	Thumbnail(ctx context.Context, id string) (string, error)

	// ScheduleCleanup removes the served file and its workspace in the background.
	ScheduleCleanup(ctx context.Context, id, path string)
	// Wait blocks until every scheduled cleanup has finished.
	Wait()
}

var _ Video = (*video)(nil)

// New creates the video service. metrics may be nil.
func New(
	log *slog.Logger,
	cfg *config.Config,
	ex extractor.Extractor,
	workspaces *workspace.Manager,
	sessions *session.Registry,
	metrics *observability.Metrics,
) Video {
	return &video{
		log:        log.With(slog.String("package", "service")),
		cfg:        cfg,
		extractor:  ex,
		workspaces: workspaces,
		sessions:   sessions,
		metrics:    metrics,
	}
}

func (svc *video) Process(ctx context.Context, rawURL string) (_ *entity.Video, err error) {
	url := urls.Normalize(rawURL)
	log := svc.log.With(slog.String("func", "Process"), slog.String("url", url))

	defer func() { svc.metrics.RecordVideoProcessed(outcome(err)) }()

	if err := svc.validateURL(url); err != nil {
		log.InfoContext(ctx, "url rejected", slog.Any("error", err))

		return nil, err
	}

	id, _, err := svc.workspaces.Allocate(ctx)
	if err != nil {
		log.ErrorContext(ctx, "allocate workspace", slog.Any("error", err))

		return nil, fmt.Errorf("allocate workspace: %w", err)
	}

	log = log.With(slog.String("download_id", id))

	meta, err := svc.extractor.ExtractMetadata(ctx, url)
	if err != nil {
		svc.workspaces.Remove(ctx, id)
		log.ErrorContext(ctx, "extract metadata", slog.Any("error", err))

		return nil, fmt.Errorf("extract metadata: %w", err)
	}

	meta.DownloadID = id

	err = svc.sessions.Put(ctx, &entity.Session{
		DownloadID:   id,
		URL:          url,
		Title:        meta.Title,
		ThumbnailURL: ptr.Deref(meta.ThumbnailURL),
		FormatIDs:    meta.FormatIDs(),
	})
	if err != nil {
		log.ErrorContext(ctx, "store session", slog.Any("error", err))
	}

	log.InfoContext(ctx, "video processed", slog.Any("video", meta))

	return meta, nil
}

func (svc *video) Download(ctx context.Context, id, rawURL, formatID string) (_ string, err error) {
	log := svc.log.With(slog.String("func", "Download"), slog.String("download_id", id))

	defer func() { svc.metrics.RecordVideoDownloaded(outcome(err)) }()

	if err := workspace.ValidateID(id); err != nil {
		log.InfoContext(ctx, "download id rejected", slog.Any("error", err))

		return "", err
	}

	url, err := svc.resolveURL(ctx, id, rawURL)
	if err != nil {
		log.InfoContext(ctx, "url rejected", slog.String("url", rawURL), slog.Any("error", err))

		return "", err
	}

	if formatID = strings.TrimSpace(formatID); formatID == "" {
		formatID = svc.cfg.Extractor.DefaultFormat
	}

	log = log.With(slog.String("url", url), slog.String("format_id", formatID))

	dir, err := svc.workspaces.Ensure(ctx, id)
	if err != nil {
		log.ErrorContext(ctx, "ensure workspace", slog.Any("error", err))

		return "", fmt.Errorf("ensure workspace: %w", err)
	}

	path, err := svc.extractor.Download(ctx, url, dir, formatID)
	if err != nil {
		svc.workspaces.Remove(ctx, id)
		log.ErrorContext(ctx, "download", slog.Any("error", err))

		return "", fmt.Errorf("download: %w", err)
	}

	log.InfoContext(ctx, "video downloaded", slog.String("path", path))

	return path, nil
}

func (svc *video) Thumbnail(ctx context.Context, id string) (string, error) {
	if err := workspace.ValidateID(id); err != nil {
		return "", err
	}

	sess, ok := svc.sessions.Get(ctx, id)
	if !ok {
		return "", errs.ErrSessionNotFound
	}

	return sess.ThumbnailURL, nil
}

func (svc *video) ScheduleCleanup(ctx context.Context, id, path string) {
	ctx = context.WithoutCancel(ctx)

	svc.wg.Go(func() {
		svc.workspaces.Cleanup(ctx, path)
		// a filename template with subdirectories leaves the file below a nested dir
		svc.workspaces.Remove(ctx, id)
		svc.sessions.Delete(ctx, id)
	})
}

func (svc *video) Wait() {
	svc.wg.Wait()
}

// resolveURL picks the URL to download. A live session is authoritative; without one the
// client-supplied URL is required.
func (svc *video) resolveURL(ctx context.Context, id, rawURL string) (string, error) {
	client := strings.TrimSpace(rawURL)

	if sess, ok := svc.sessions.Get(ctx, id); ok {
		if client != "" && urls.Normalize(client) != sess.URL {
			return "", errs.ErrURLMismatch
		}

		return sess.URL, nil
	}

	url := urls.Normalize(client)
	if err := svc.validateURL(url); err != nil {
		return "", err
	}

	return url, nil
}

func (svc *video) validateURL(url string) error {
	if !urls.IsURLValid(url) {
		return errs.ErrInvalidURL
	}

	if !urls.ContainsAny(url, svc.cfg.Extractor.AllowedDomains) {
		return errs.ErrUnsupportedHost
	}

	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errs.IsValidation(err):
		return outcomeInvalid
	default:
		return outcomeError
	}
}
