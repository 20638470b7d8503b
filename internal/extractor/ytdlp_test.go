package extractor_test

import (
	"context"
	_ "embed"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"vidfetch/internal/config"
	"vidfetch/internal/errs"
	"vidfetch/internal/extractor"
	"vidfetch/pkg/ptr"
)

//go:embed testdata/ytdlp_stdout_metadata.json
var ytdlpStdoutMetadata string

//go:embed testdata/ytdlp_stdout_untitled.json
var ytdlpStdoutUntitled string

//go:embed testdata/ytdlp_stdout_download.txt
var ytdlpStdoutDownload string

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseYtdlpStdout(t *testing.T) {
	tests := []struct {
		name          string
		stdout        string
		wantIDs       []string
		wantFilenames []string
	}{
		{
			name:          "single metadata line",
			stdout:        ytdlpStdoutMetadata,
			wantIDs:       []string{"123"},
			wantFilenames: []string{""},
		},
		{
			name:          "json then filepath, then stray lines and a lone filepath",
			stdout:        ytdlpStdoutDownload,
			wantIDs:       []string{"123", ""},
			wantFilenames: []string{"/downloads/0b9f/Test Clip.mp4", "/downloads/0b9f/second.webm"},
		},
		{
			name:          "only log lines",
			stdout:        "[facebook] Extracting URL\n[download] Destination: x\n",
			wantIDs:       nil,
			wantFilenames: nil,
		},
		{
			name:          "empty",
			stdout:        "",
			wantIDs:       nil,
			wantFilenames: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := extractor.ParseYtdlpStdout(tc.stdout)
			if err != nil {
				t.Fatalf("ParseYtdlpStdout() failed: %v", err)
			}

			if len(got) != len(tc.wantIDs) {
				t.Fatalf("got %d results, want %d", len(got), len(tc.wantIDs))
			}

			for idx, result := range got {
				if result.ID != tc.wantIDs[idx] {
					t.Errorf("got ID = %q, want %q", result.ID, tc.wantIDs[idx])
				}

				if result.Filename != tc.wantFilenames[idx] {
					t.Errorf("got Filename = %q, want %q", result.Filename, tc.wantFilenames[idx])
				}
			}
		})
	}
}

func TestInfoJSONVideo(t *testing.T) {
	infos, err := extractor.ParseYtdlpStdout(ytdlpStdoutMetadata)
	if err != nil || len(infos) != 1 {
		t.Fatalf("ParseYtdlpStdout() = %v, %v", infos, err)
	}

	video := infos[0].Video("")

	if video.Title != "Test Clip" {
		t.Errorf("Title = %q, want Test Clip", video.Title)
	}

	if ptr.Deref(video.Duration) != 42 {
		t.Errorf("Duration = %v, want 42", video.Duration)
	}

	if ptr.Deref(video.ThumbnailURL) != "https://scontent.example/thumb.jpg" {
		t.Errorf("ThumbnailURL = %v", video.ThumbnailURL)
	}

	wantIDs := []string{"hd", "sd", "audio"}
	if len(video.Formats) != len(wantIDs) {
		t.Fatalf("got %d formats, want %d: %+v", len(video.Formats), len(wantIDs), video.Formats)
	}

	for idx, f := range video.Formats {
		if f.FormatID != wantIDs[idx] {
			t.Errorf("format[%d] = %q, want %q", idx, f.FormatID, wantIDs[idx])
		}

		if f.Resolution == "" || f.Ext == "" {
			t.Errorf("format %q kept without resolution or ext", f.FormatID)
		}
	}

	if got := ptr.Deref(video.Formats[0].Filesize); got != 1048576 {
		t.Errorf("hd filesize = %d, want 1048576", got)
	}

	if got := ptr.Deref(video.Formats[1].Filesize); got != 524288 {
		t.Errorf("sd filesize falls back to approx: got %d, want 524288", got)
	}

	if video.Formats[2].Filesize != nil {
		t.Errorf("audio filesize = %d, want nil", *video.Formats[2].Filesize)
	}

	if video.Formats[0].FormatNote != "HD" || video.Formats[1].FormatNote != "" {
		t.Errorf("format notes = %q, %q", video.Formats[0].FormatNote, video.Formats[1].FormatNote)
	}
}

func TestInfoJSONVideoDefaults(t *testing.T) {
	infos, err := extractor.ParseYtdlpStdout(ytdlpStdoutUntitled)
	if err != nil || len(infos) != 1 {
		t.Fatalf("ParseYtdlpStdout() = %v, %v", infos, err)
	}

	video := infos[0].Video("")

	if video.Title != "Facebook Video" {
		t.Errorf("Title = %q, want default", video.Title)
	}

	if got := infos[0].Video("Untitled clip").Title; got != "Untitled clip" {
		t.Errorf("Title with configured default = %q, want %q", got, "Untitled clip")
	}

	if video.Duration != nil || video.ThumbnailURL != nil {
		t.Errorf("expected nil duration and thumbnail, got %v %v", video.Duration, video.ThumbnailURL)
	}

	if video.Formats == nil || len(video.Formats) != 0 {
		t.Errorf("Formats = %#v, want empty non-nil slice", video.Formats)
	}
}

func TestYTdlpRejectsUnsupportedHost(t *testing.T) {
	cfg := &config.Config{}
	cfg.Extractor.AllowedDomains = []string{"facebook.com"}

	ytdlp := extractor.NewYTdlp(discardLogger(), cfg, nil, nil)

	_, err := ytdlp.ExtractMetadata(context.Background(), "https://example.com/video")
	if !errors.Is(err, errs.ErrUnsupportedHost) {
		t.Errorf("ExtractMetadata() error = %v, want %v", err, errs.ErrUnsupportedHost)
	}

	_, err = ytdlp.Download(context.Background(), "https://example.com/video", t.TempDir(), "best")
	if !errors.Is(err, errs.ErrUnsupportedHost) {
		t.Errorf("Download() error = %v, want %v", err, errs.ErrUnsupportedHost)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		kind    string
		wantErr error
	}{
		{kind: "ytdlp"},
		{kind: ""},
		{kind: "mock"},
		{kind: "gallery-dl", wantErr: errs.ErrExtractorNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.kind, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Extractor.Kind = tc.kind

			got, err := extractor.New(discardLogger(), cfg, nil, nil)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("New() error = %v, want %v", err, tc.wantErr)
			}

			if tc.wantErr == nil && got == nil {
				t.Fatal("New() returned nil extractor")
			}
		})
	}
}

// fakeEnvYTdlp prints an info JSON whose title carries VIDFETCH_TEST_ENV_MARK.
const fakeEnvYTdlp = `#!/bin/sh
printf '{"id": "1", "title": "mark=%s", "formats": []}\n' "${VIDFETCH_TEST_ENV_MARK:-unset}"
`

func TestYTdlpPassesEnvironment(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake yt-dlp is a shell script")
	}

	binDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(binDir, "yt-dlp"), []byte(fakeEnvYTdlp), 0o755); err != nil { //nolint:gosec
		t.Fatalf("write fake yt-dlp: %v", err)
	}

	// keep binaries installed by go-ytdlp out of the lookup
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	t.Setenv("VIDFETCH_TEST_ENV_MARK", "present")

	cfg := &config.Config{}
	cfg.Dir.Cache = t.TempDir()
	cfg.Extractor.AllowedDomains = []string{"facebook.com"}
	cfg.Extractor.Timeout = 10 * time.Second

	video, err := extractor.NewYTdlp(discardLogger(), cfg, nil, nil).
		ExtractMetadata(t.Context(), "https://facebook.com/video/123")
	if err != nil {
		t.Fatalf("ExtractMetadata() failed: %v", err)
	}

	if video.Title != "mark=present" {
		t.Errorf("Title = %q, want the parent environment to reach yt-dlp", video.Title)
	}
}
