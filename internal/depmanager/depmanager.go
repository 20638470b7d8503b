// Package depmanager provisions the yt-dlp and ffmpeg binaries the extractor shells out to.
// Checksums are used only to detect when new versions are available, not to verify downloads.
package depmanager

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"vidfetch/internal/config"
	"vidfetch/internal/errs"

	"github.com/ulikunitz/xz"
)

// BinaryName represents the name of a binary dependency.
type BinaryName string

// Binary dependency names.
const (
	BinaryYTdlp   BinaryName = "yt-dlp"
	BinaryFFmpeg  BinaryName = "ffmpeg"
	BinaryFFprobe BinaryName = "ffprobe"
)

// Only linux builds are downloaded; other platforms use system binaries.
const (
	platformLinux = "linux"
	archARM64     = "arm64"
	archAMD64     = "amd64"
)

const (
	downloadTimeout    = 10 * time.Minute
	filePermExecutable = 0o755
	filePermReadWrite  = 0o644
	sha256HexLength    = 64

	// savedSumsFilename sits in the bins dir and holds the checksums of the installed builds.
	savedSumsFilename = ".sha256sums.json"
)

// installOrder lists the binaries to provision. ffmpeg brings ffprobe along.
var installOrder = []BinaryName{BinaryFFmpeg, BinaryYTdlp}

// Platform represents the OS and architecture combination.
type Platform struct {
	OS   string
	Arch string
}

// String returns the platform string in format "os/arch".
func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// Manager manages binary dependencies.
type Manager struct {
	log      *slog.Logger
	cfg      *config.Config
	platform Platform
	client   *http.Client

	mu        sync.RWMutex
	shaSums   map[string]string     // filename -> sha256 hash (fetched from remote)
	savedSums map[string]string     // filename -> sha256 hash (saved from previous run)
	binPaths  map[BinaryName]string // binary name -> installed path

	updating atomic.Bool
}

// New creates a new dependency manager.
func New(log *slog.Logger, cfg *config.Config) *Manager {
	return &Manager{
		log: log.With(slog.String("package", "depmanager")),
		cfg: cfg,
		platform: Platform{
			OS:   runtime.GOOS,
			Arch: runtime.GOARCH,
		},
		client: &http.Client{
			Timeout: downloadTimeout,
		},
		shaSums:   make(map[string]string),
		savedSums: make(map[string]string),
		binPaths:  make(map[BinaryName]string),
	}
}

// Start makes yt-dlp and ffmpeg resolvable through PATH, either from the system
// or by downloading them into the bins directory.
func (m *Manager) Start(ctx context.Context) error {
	if m.cfg.DepManager.UseSystemBinaries {
		return m.SetSystemBinaries()
	}

	if err := m.InstallAll(ctx); err != nil {
		return err
	}

	return m.PrependPath()
}

// SetSystemBinaries looks the binaries up in the system PATH.
func (m *Manager) SetSystemBinaries() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, binary := range installOrder {
		path, err := exec.LookPath(string(binary))
		if err != nil {
			return fmt.Errorf("%w: %s: %w", errs.ErrBinaryNotFound, binary, err)
		}

		m.binPaths[binary] = path
	}

	return nil
}

// InstallAll downloads the binaries missing from the bins directory.
func (m *Manager) InstallAll(ctx context.Context) error {
	log := m.log

	if !m.isPlatformSupported() {
		return fmt.Errorf("%w: %s", errs.ErrUnsupportedPlatform, m.platform)
	}

	err := os.MkdirAll(m.cfg.DepManager.BinsDir, filePermExecutable)
	if err != nil {
		return fmt.Errorf("create bins directory: %w", err)
	}

	err = m.loadSavedSums()
	if err != nil {
		log.DebugContext(ctx, "no saved checksums found, first run", slog.Any("error", err))
	}

	for _, binary := range installOrder {
		if m.isBinaryExists(binary) {
			m.setBinaryPath(binary)
			log.DebugContext(ctx, "binary already exists", slog.String("binary", string(binary)))

			continue
		}

		err = m.downloadAndInstall(ctx, binary)
		if err != nil {
			return fmt.Errorf("download and install %s: %w", binary, err)
		}
	}

	log.InfoContext(ctx, "all binaries are installed", slog.Any("binaries", m.InstalledPaths()))

	// checksums only drive update checks, so failing to fetch them is not fatal
	err = m.FetchSHASums(ctx)
	if err != nil {
		log.WarnContext(ctx, "failed to fetch checksums", slog.Any("error", err))

		return nil
	}

	err = m.saveSums()
	if err != nil {
		log.WarnContext(ctx, "failed to save checksums", slog.Any("error", err))
	}

	return nil
}

// PrependPath puts the bins directory first in PATH so exec lookups find the managed binaries.
func (m *Manager) PrependPath() error {
	binsDir := m.cfg.DepManager.BinsDir
	current := os.Getenv("PATH")

	if slices.Contains(filepath.SplitList(current), binsDir) {
		return nil
	}

	if current != "" {
		binsDir += string(os.PathListSeparator) + current
	}

	if err := os.Setenv("PATH", binsDir); err != nil {
		return fmt.Errorf("set PATH: %w", err)
	}

	return nil
}

// GetBinaryPath returns where name lives inside the bins directory.
func (m *Manager) GetBinaryPath(name BinaryName) string {
	return filepath.Join(m.cfg.DepManager.BinsDir, string(name))
}

// InstalledPaths returns a copy of the installed binary paths.
func (m *Manager) InstalledPaths() map[BinaryName]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return maps.Clone(m.binPaths)
}

// StartUpdateChecker periodically compares remote checksums with saved ones and
// redownloads binaries that changed. It blocks until ctx is done.
func (m *Manager) StartUpdateChecker(ctx context.Context) {
	if m.cfg.DepManager.UseSystemBinaries || m.cfg.DepManager.UpdateInterval <= 0 {
		return
	}

	ticker := time.NewTicker(m.cfg.DepManager.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkAndUpdate(ctx)
		case <-ctx.Done():
			m.log.Info("update checker stopped")

			return
		}
	}
}

// FetchSHASums fetches and parses SHA256 sums from configured URLs.
func (m *Manager) FetchSHASums(ctx context.Context) error {
	sumsURLs, err := m.CollectSHASumsURLs()
	if err != nil {
		return fmt.Errorf("collect SHA sums URLs: %w", err)
	}

	for _, url := range sumsURLs {
		body, err := m.fetch(ctx, url)
		if err != nil {
			return fmt.Errorf("fetch SHA sums: %w", err)
		}

		m.ParseSHASums(string(body))
	}

	return nil
}

// get issues a GET and fails on anything but 200. The caller closes the body.
func (m *Manager) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()

		return nil, fmt.Errorf("GET %s: unexpected status: %d", url, resp.StatusCode)
	}

	return resp, nil
}

func (m *Manager) fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := m.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return body, nil
}

// CollectSHASumsURLs collects SHA256 sums URLs from the configuration.
// Each setting may hold several comma-separated URLs.
func (m *Manager) CollectSHASumsURLs() ([]string, error) {
	var sumsURLs []string

	sources := []string{
		m.cfg.DepManager.YTdlpSHA256SumsURL,
		m.cfg.DepManager.FFmpegSHA256SumsURL,
	}

	for _, raw := range sources {
		for part := range strings.SplitSeq(raw, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				sumsURLs = append(sumsURLs, part)
			}
		}
	}

	if len(sumsURLs) == 0 {
		return nil, errors.New("no SHA256 sums URLs configured")
	}

	return sumsURLs, nil
}

// ParseSHASums parses SHA256 sums from content in the format "hash  filename".
// Malformed lines are skipped.
func (m *Manager) ParseSHASums(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for line := range strings.Lines(content) {
		parts := strings.Fields(line)
		if len(parts) != 2 {
			continue
		}

		hash, filename := parts[0], parts[1]
		if len(hash) != sha256HexLength {
			continue
		}

		m.shaSums[filename] = hash
	}

	m.log.Debug("parsed SHA256 sums", slog.Int("count", len(m.shaSums)))
}

// checkAndUpdate checks for updates and downloads new versions if available.
func (m *Manager) checkAndUpdate(ctx context.Context) {
	if !m.updating.CompareAndSwap(false, true) {
		return
	}
	defer m.updating.Store(false)

	log := m.log

	err := m.FetchSHASums(ctx)
	if err != nil {
		log.WarnContext(ctx, "update check: failed to fetch checksums", slog.Any("error", err))

		return
	}

	updates := m.findUpdates()
	if len(updates) == 0 {
		log.DebugContext(ctx, "update check: no updates available")

		return
	}

	log.InfoContext(ctx, "update check: updates available", slog.Any("binaries", updates))

	for _, binary := range updates {
		if err := m.downloadAndInstall(ctx, binary); err != nil {
			log.ErrorContext(ctx, "update check: failed to update binary",
				slog.String("binary", string(binary)),
				slog.Any("error", err))

			continue
		}

		log.InfoContext(ctx, "update check: binary updated", slog.String("binary", string(binary)))
	}

	if err := m.saveSums(); err != nil {
		log.WarnContext(ctx, "update check: failed to save checksums", slog.Any("error", err))
	}
}

// findUpdates returns binaries whose fetched checksum differs from the saved one.
func (m *Manager) findUpdates() []BinaryName {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var updates []BinaryName

	for _, binary := range installOrder {
		filename := m.getDownloadFilename(binary)

		newHash, hasNew := m.shaSums[filename]
		oldHash, hasOld := m.savedSums[filename]

		if hasNew && (!hasOld || newHash != oldHash) {
			updates = append(updates, binary)
		}
	}

	return updates
}

// isBinaryExists checks if a binary file exists and has non-zero size.
func (m *Manager) isBinaryExists(name BinaryName) bool {
	info, err := os.Stat(m.GetBinaryPath(name))

	return err == nil && info.Size() > 0
}

func (m *Manager) isPlatformSupported() bool {
	return m.platform.OS == platformLinux && (m.platform.Arch == archAMD64 || m.platform.Arch == archARM64)
}

func (m *Manager) setBinaryPath(name BinaryName) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.binPaths[name] = m.GetBinaryPath(name)
}

// downloadAndInstall downloads and installs a dependency binary.
func (m *Manager) downloadAndInstall(ctx context.Context, name BinaryName) error {
	log := m.log.With(slog.String("binary", string(name)))

	url := m.getBinaryURL(name)
	if url == "" {
		return fmt.Errorf("%w: no download URL for %s on %s", errs.ErrUnsupportedPlatform, name, m.platform)
	}

	log.InfoContext(ctx, "downloading binary", slog.String("url", url))

	installed, err := m.downloadDependency(ctx, url, name)
	if err != nil {
		return fmt.Errorf("download dependency: %w", err)
	}

	for _, binary := range installed {
		m.setBinaryPath(binary)
	}

	log.InfoContext(ctx, "binary installed successfully", slog.Any("installed", installed))

	return nil
}

// loadSavedSums loads saved checksums from file.
func (m *Manager) loadSavedSums() error {
	filePath := filepath.Join(m.cfg.DepManager.BinsDir, savedSumsFilename)

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read checksums file: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := json.Unmarshal(data, &m.savedSums); err != nil {
		return fmt.Errorf("unmarshal checksums: %w", err)
	}

	return nil
}

// saveSums saves current checksums to file for future comparison.
func (m *Manager) saveSums() error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m.shaSums, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("marshal checksums: %w", err)
	}

	filePath := filepath.Join(m.cfg.DepManager.BinsDir, savedSumsFilename)

	if err := os.WriteFile(filePath, data, filePermReadWrite); err != nil {
		return fmt.Errorf("write checksums file: %w", err)
	}

	m.mu.Lock()
	m.savedSums = maps.Clone(m.shaSums)
	m.mu.Unlock()

	return nil
}

// getDownloadFilename returns the filename as it appears in SHA256SUMS for a binary.
func (m *Manager) getDownloadFilename(name BinaryName) string {
	arm := m.platform.Arch == archARM64

	switch name {
	case BinaryYTdlp:
		if arm {
			return "yt-dlp_linux_aarch64"
		}

		return "yt-dlp_linux"
	case BinaryFFmpeg:
		if arm {
			return "ffmpeg-master-latest-linuxarm64-gpl.tar.xz"
		}

		return "ffmpeg-master-latest-linux64-gpl.tar.xz"
	}

	return string(name)
}

func (m *Manager) getBinaryURL(name BinaryName) string {
	cfg := m.cfg.DepManager

	switch name {
	case BinaryYTdlp:
		return m.selectURL(cfg.YTdlpLinuxARM64, cfg.YTdlpLinuxAMD64)
	case BinaryFFmpeg, BinaryFFprobe:
		return m.selectURL(cfg.FFmpegLinuxARM64, cfg.FFmpegLinuxAMD64)
	}

	return ""
}

// selectURL picks the URL for the current platform, or "" when there is none.
func (m *Manager) selectURL(linuxARM64, linuxAMD64 string) string {
	switch m.platform.String() {
	case "linux/arm64":
		return linuxARM64
	case "linux/amd64":
		return linuxAMD64
	}

	return ""
}

// downloadDependency installs url as name, or unpacks the wanted binaries when url is a .tar.xz
// (the ffmpeg builds). It returns what got installed.
func (m *Manager) downloadDependency(ctx context.Context, url string, name BinaryName) ([]BinaryName, error) {
	resp, err := m.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if !strings.HasSuffix(url, ".tar.xz") {
		if err := installFile(resp.Body, m.GetBinaryPath(name)); err != nil {
			return nil, err
		}

		return []BinaryName{name}, nil
	}

	xzReader, err := xz.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("create xz reader: %w", err)
	}

	return m.extractTarSelected(xzReader, m.cfg.DepManager.BinsDir, getFilesNeeded(name))
}

// getFilesNeeded returns the binaries to pick out of an archive for name.
func getFilesNeeded(name BinaryName) []BinaryName {
	if name == BinaryFFmpeg {
		return []BinaryName{BinaryFFmpeg, BinaryFFprobe}
	}

	return []BinaryName{name}
}

// extractTarSelected installs the regular files of the tar stream whose base name is in targets.
func (m *Manager) extractTarSelected(reader io.Reader, destDir string, targets []BinaryName) ([]BinaryName, error) {
	tarReader := tar.NewReader(reader)

	var extracted []BinaryName

	for len(extracted) < len(targets) {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("read tar header: %w", err)
		}

		if header.Typeflag != tar.TypeReg {
			continue
		}

		name := BinaryName(filepath.Base(header.Name))
		if !slices.Contains(targets, name) || slices.Contains(extracted, name) {
			continue
		}

		if err := installFile(tarReader, filepath.Join(destDir, string(name))); err != nil {
			return nil, err
		}

		extracted = append(extracted, name)
	}

	if len(extracted) == 0 {
		return nil, errors.New("no target files found in tar archive")
	}

	return extracted, nil
}

// installFile writes r next to dest and renames it into place, so a running binary is never truncated.
func installFile(r io.Reader, dest string) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(dest), "download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpPath := tmpFile.Name()

	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}()

	if _, err := io.Copy(tmpFile, r); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, filePermExecutable); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	return nil
}
