package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vidfetch/internal/config"
	"vidfetch/internal/errs"
	"vidfetch/internal/extractor"
	"vidfetch/internal/service"
	"vidfetch/internal/session"
	"vidfetch/internal/workspace"
)

const testURL = "https://facebook.com/video/123"

type fixture struct {
	svc        service.Video
	mock       *extractor.Mock
	workspaces *workspace.Manager
	sessions   *session.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &config.Config{}
	cfg.Dir.Downloads = filepath.Join(t.TempDir(), "downloads")
	cfg.Extractor.AllowedDomains = []string{"facebook.com", "fb.com", "fb.watch"}
	cfg.Extractor.DefaultFormat = "best"
	cfg.Session.TTL = time.Hour
	cfg.Workspace.MaxAge = time.Hour

	workspaces, err := workspace.New(log, cfg, nil)
	if err != nil {
		t.Fatalf("workspace.New() failed: %v", err)
	}

	sessions := session.New(log, cfg, nil)
	mock := extractor.NewMock(log)

	return &fixture{
		svc:        service.New(log, cfg, mock, workspaces, sessions, nil),
		mock:       mock,
		workspaces: workspaces,
		sessions:   sessions,
	}
}

func entries(t *testing.T, dir string) []string {
	t.Helper()

	list, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}

	names := make([]string, 0, len(list))
	for _, e := range list {
		names = append(names, e.Name())
	}

	return names
}

func TestProcess(t *testing.T) {
	f := newFixture(t)

	video, err := f.svc.Process(context.Background(), testURL)
	if err != nil {
		t.Fatalf("Process() failed: %v", err)
	}

	if video.DownloadID == "" {
		t.Fatal("Process() returned empty download id")
	}

	if video.Title != "Test Clip" || video.Duration == nil || *video.Duration != 42 {
		t.Errorf("unexpected video: %+v", video)
	}

	if len(video.Formats) != 1 || video.Formats[0].FormatID != "hd" {
		t.Errorf("formats = %+v", video.Formats)
	}

	if _, err := os.Stat(f.workspaces.DirFor(video.DownloadID)); err != nil {
		t.Errorf("workspace not allocated: %v", err)
	}

	sess, ok := f.sessions.Get(context.Background(), video.DownloadID)
	if !ok || sess.URL != testURL {
		t.Errorf("session = %+v, %v", sess, ok)
	}

	other, err := f.svc.Process(context.Background(), testURL)
	if err != nil {
		t.Fatalf("second Process() failed: %v", err)
	}

	if other.DownloadID == video.DownloadID {
		t.Error("download ids must never be reused")
	}
}

func TestProcessRejects(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{name: "unsupported host", url: "https://example.com/video", wantErr: errs.ErrUnsupportedHost},
		{name: "not a url", url: "facebook video", wantErr: errs.ErrInvalidURL},
		{name: "relative", url: "facebook.com/video/123", wantErr: errs.ErrInvalidURL},
		{name: "empty", url: "", wantErr: errs.ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.Process(context.Background(), tt.url)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Process() error = %v, want %v", err, tt.wantErr)
			}

			if f.mock.MetadataCalls() != 0 {
				t.Error("extractor must not be called for rejected urls")
			}

			if got := entries(t, f.workspaces.Root()); len(got) != 0 {
				t.Errorf("workspaces allocated for rejected url: %v", got)
			}
		})
	}
}

func TestProcessExtractorFailureRemovesWorkspace(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		wantValidation bool
	}{
		{name: "rejected by extractor", err: errs.ErrUnprocessableVideo, wantValidation: true},
		{name: "unexpected failure", err: errs.ErrExtractionFailed, wantValidation: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.mock.MetadataErr = tt.err

			_, err := f.svc.Process(context.Background(), testURL)
			if !errors.Is(err, tt.err) {
				t.Fatalf("Process() error = %v, want %v", err, tt.err)
			}

			if errs.IsValidation(err) != tt.wantValidation {
				t.Errorf("IsValidation() = %v, want %v", errs.IsValidation(err), tt.wantValidation)
			}

			if got := entries(t, f.workspaces.Root()); len(got) != 0 {
				t.Errorf("workspace left behind: %v", got)
			}

			if f.sessions.Len() != 0 {
				t.Error("session stored for failed extraction")
			}
		})
	}
}

func TestDownloadWithoutSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	path, err := f.svc.Download(ctx, "abc", testURL, "")
	if err != nil {
		t.Fatalf("Download() failed: %v", err)
	}

	if filepath.Base(path) != "clip.mp4" || filepath.Dir(path) != f.workspaces.DirFor("abc") {
		t.Errorf("Download() path = %q", path)
	}

	if f.mock.LastFormatID() != "best" {
		t.Errorf("format id = %q, want default best", f.mock.LastFormatID())
	}

	f.svc.ScheduleCleanup(ctx, "abc", path)
	f.svc.Wait()

	if _, err := os.Stat(f.workspaces.DirFor("abc")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("workspace still present after cleanup: %v", err)
	}
}

func TestDownloadWithSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	video, err := f.svc.Process(ctx, testURL)
	if err != nil {
		t.Fatalf("Process() failed: %v", err)
	}

	id := video.DownloadID

	if _, err := f.svc.Download(ctx, id, "https://facebook.com/video/999", "hd"); !errors.Is(err, errs.ErrURLMismatch) {
		t.Fatalf("Download() with mismatched url error = %v, want %v", err, errs.ErrURLMismatch)
	}

	if f.mock.DownloadCalls() != 0 {
		t.Fatal("extractor called despite url mismatch")
	}

	thumb, err := f.svc.Thumbnail(ctx, id)
	if err != nil || thumb != "https://example.com/thumb.jpg" {
		t.Errorf("Thumbnail() = %q, %v", thumb, err)
	}

	// the stored url is used when the client omits it
	path, err := f.svc.Download(ctx, id, "", "hd")
	if err != nil {
		t.Fatalf("Download() failed: %v", err)
	}

	f.svc.ScheduleCleanup(ctx, id, path)
	f.svc.Wait()

	if _, ok := f.sessions.Get(ctx, id); ok {
		t.Error("session survived cleanup")
	}

	if _, err := f.svc.Thumbnail(ctx, id); !errors.Is(err, errs.ErrSessionNotFound) {
		t.Errorf("Thumbnail() after cleanup error = %v", err)
	}

	if got := entries(t, f.workspaces.Root()); len(got) != 0 {
		t.Errorf("workspaces left behind: %v", got)
	}
}

func TestDownloadRejects(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		url     string
		wantErr error
	}{
		{name: "traversal id", id: "../etc", url: testURL, wantErr: errs.ErrInvalidDownloadID},
		{name: "dotdot id", id: "..", url: testURL, wantErr: errs.ErrInvalidDownloadID},
		{name: "slash id", id: "a/b", url: testURL, wantErr: errs.ErrInvalidDownloadID},
		{name: "empty id", id: "", url: testURL, wantErr: errs.ErrInvalidDownloadID},
		{name: "missing url without session", id: "abc", url: "", wantErr: errs.ErrInvalidURL},
		{name: "invalid url", id: "abc", url: "nope", wantErr: errs.ErrInvalidURL},
		{name: "unsupported host", id: "abc", url: "https://example.com/v", wantErr: errs.ErrUnsupportedHost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.Download(context.Background(), tt.id, tt.url, "best")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Download() error = %v, want %v", err, tt.wantErr)
			}

			if f.mock.DownloadCalls() != 0 {
				t.Error("extractor must not be called")
			}

			if got := entries(t, f.workspaces.Root()); len(got) != 0 {
				t.Errorf("filesystem touched: %v", got)
			}
		})
	}
}

func TestDownloadFailureRemovesWorkspace(t *testing.T) {
	f := newFixture(t)
	f.mock.DownloadErr = errs.ErrDownloadFailed

	_, err := f.svc.Download(context.Background(), "abc", testURL, "best")
	if !errors.Is(err, errs.ErrDownloadFailed) || errs.IsValidation(err) {
		t.Fatalf("Download() error = %v, want non-validation %v", err, errs.ErrDownloadFailed)
	}

	if got := entries(t, f.workspaces.Root()); len(got) != 0 {
		t.Errorf("workspace left behind: %v", got)
	}
}

func TestThumbnailRejectsBadID(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Thumbnail(context.Background(), "../x"); !errors.Is(err, errs.ErrInvalidDownloadID) {
		t.Errorf("Thumbnail() error = %v", err)
	}

	if _, err := f.svc.Thumbnail(context.Background(), "unknown"); !errors.Is(err, errs.ErrSessionNotFound) {
		t.Errorf("Thumbnail() error = %v", err)
	}
}

func TestScheduleCleanupNestedOutput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// as produced by a template like %(uploader)s/%(title)s.%(ext)s
	f.mock.Filename = filepath.Join("Some Uploader", "clip.mp4")

	video, err := f.svc.Process(ctx, testURL)
	if err != nil {
		t.Fatalf("Process() failed: %v", err)
	}

	path, err := f.svc.Download(ctx, video.DownloadID, "", "hd")
	if err != nil {
		t.Fatalf("Download() failed: %v", err)
	}

	if filepath.Dir(filepath.Dir(path)) != f.workspaces.DirFor(video.DownloadID) {
		t.Fatalf("path = %q, want nested below the workspace", path)
	}

	f.svc.ScheduleCleanup(ctx, video.DownloadID, path)
	f.svc.Wait()

	if got := entries(t, f.workspaces.Root()); len(got) != 0 {
		t.Errorf("workspaces left behind: %v", got)
	}
}
