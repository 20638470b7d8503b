//go:build integration

package integration_test

import (
	_ "embed"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"vidfetch/internal/config"
	"vidfetch/internal/depmanager"
	"vidfetch/internal/extractor"
	"vidfetch/internal/session"
	"vidfetch/internal/workspace"
)

//go:embed testdata/fake-ytdlp.sh
var fakeYTDLPScript string

const testURL = "https://facebook.com/video/123"

type ytdlpIntegrationFixture struct {
	cfg        *config.Config
	log        *slog.Logger
	extractor  extractor.Extractor
	workspaces *workspace.Manager
	sessions   *session.Registry
	argsFile   string
}

// newYTdlpIntegrationFixture installs the fake yt-dlp into a bins dir put first in PATH.
func newYTdlpIntegrationFixture(t *testing.T, mode string) *ytdlpIntegrationFixture {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("integration fake yt-dlp helper uses shell script")
	}

	baseDir := t.TempDir()
	binsDir := filepath.Join(baseDir, "bins")

	if err := os.MkdirAll(binsDir, 0o755); err != nil {
		t.Fatalf("mkdir bins dir: %v", err)
	}

	cfg, err := config.New()
	if err != nil {
		t.Fatalf("config new: %v", err)
	}

	cfg.DepManager.BinsDir = binsDir
	cfg.DepManager.UseSystemBinaries = false
	cfg.Dir.Downloads = filepath.Join(baseDir, "downloads")
	cfg.Dir.Cache = filepath.Join(baseDir, "cache")
	cfg.Dir.CookieFile = ""
	cfg.Extractor.Kind = "ytdlp"
	cfg.Extractor.Timeout = 5 * time.Second
	cfg.Proxy.Proxies = nil

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	depMgr := depmanager.New(log, cfg)

	if err := os.WriteFile(depMgr.GetBinaryPath(depmanager.BinaryYTdlp), []byte(fakeYTDLPScript), 0o755); err != nil {
		t.Fatalf("write fake yt-dlp: %v", err)
	}

	// restored by t.Setenv once the test ends
	t.Setenv("PATH", os.Getenv("PATH"))
	// keep binaries installed by go-ytdlp out of the lookup
	t.Setenv("XDG_CACHE_HOME", filepath.Join(baseDir, "xdg-cache"))

	if err := depMgr.PrependPath(); err != nil {
		t.Fatalf("prepend PATH: %v", err)
	}

	// reaches the script only because the extractor forwards the parent environment
	argsFile := filepath.Join(baseDir, "args.txt")
	t.Setenv("VIDFETCH_FAKE_MODE", mode)
	t.Setenv("VIDFETCH_FAKE_ARGS_FILE", argsFile)

	ex, err := extractor.New(log, cfg, nil, nil)
	if err != nil {
		t.Fatalf("extractor new: %v", err)
	}

	workspaces, err := workspace.New(log, cfg, nil)
	if err != nil {
		t.Fatalf("workspace new: %v", err)
	}

	return &ytdlpIntegrationFixture{
		cfg:        cfg,
		log:        log,
		extractor:  ex,
		workspaces: workspaces,
		sessions:   session.New(log, cfg, nil),
		argsFile:   argsFile,
	}
}

// args returns every argument the fake yt-dlp received, one per element.
func (fx *ytdlpIntegrationFixture) args(t *testing.T) []string {
	t.Helper()

	data, err := os.ReadFile(fx.argsFile)
	if err != nil {
		t.Fatalf("read args file: %v", err)
	}

	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func (fx *ytdlpIntegrationFixture) workspaceEntries(t *testing.T) []string {
	t.Helper()

	entries, err := os.ReadDir(fx.workspaces.Root())
	if err != nil {
		t.Fatalf("read downloads root: %v", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	return names
}
