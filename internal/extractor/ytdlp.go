package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"vidfetch/internal/config"
	"vidfetch/internal/consts"
	"vidfetch/internal/entity"
	"vidfetch/internal/errs"
	"vidfetch/internal/observability"
	"vidfetch/internal/proxymgr"
	"vidfetch/pkg/urls"

	"github.com/lrstanley/go-ytdlp"
)

// changing this may break ParseYtdlpStdout().
const defaultPrintAfterMove = "after_move:filepath"

// YTdlp extracts and downloads through the yt-dlp binary.
type YTdlp struct {
	log     *slog.Logger
	cfg     *config.Config
	proxies *proxymgr.Manager
	metrics *observability.Metrics
}

// NewYTdlp creates a new YTdlp extractor instance. proxies and metrics may be nil.
func NewYTdlp(
	log *slog.Logger,
	cfg *config.Config,
	proxies *proxymgr.Manager,
	metrics *observability.Metrics,
) *YTdlp {
	return &YTdlp{
		log:     log.With(slog.String("package", "extractor"), slog.String("extractor", consts.ExtractorYTdlp)),
		cfg:     cfg,
		proxies: proxies,
		metrics: metrics,
	}
}

// ExtractMetadata runs yt-dlp in simulate mode and converts its info JSON.
func (y *YTdlp) ExtractMetadata(ctx context.Context, url string) (*entity.Video, error) {
	log := y.log.With(slog.String("func", "ExtractMetadata"), slog.String("url", url))

	if !urls.ContainsAny(url, y.cfg.Extractor.AllowedDomains) {
		return nil, errs.ErrUnsupportedHost
	}

	ctx, cancel := y.withTimeout(ctx)
	defer cancel()

	defer y.metrics.ExtractorTimer(consts.OperationMetadata)()

	command := y.baseCommand().
		SkipDownload().
		PrintJSON()

	res, err := y.run(ctx, command, url)
	if err != nil {
		err = wrapRunError(ctx, errs.ErrExtractionFailed, err, stderrOf(res))
		y.metrics.RecordExtractorError(consts.OperationMetadata, classifyError(err))
		log.ErrorContext(ctx, "ytdlp run", slog.Any("error", err), slog.Any("result", Result{res}))

		return nil, err
	}

	infos, err := ParseYtdlpStdout(res.Stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrExtractionFailed, err)
	}

	if len(infos) == 0 {
		log.ErrorContext(ctx, "no info json in ytdlp output", slog.Any("result", Result{res}))

		return nil, fmt.Errorf("%w: no info json in output", errs.ErrExtractionFailed)
	}

	video := infos[0].Video(y.cfg.Extractor.DefaultTitle)

	log.DebugContext(ctx, "metadata extracted", slog.Any("video", video))

	return video, nil
}

// Download runs yt-dlp for formatID with output inside dir and returns the file it produced.
func (y *YTdlp) Download(ctx context.Context, url, dir, formatID string) (string, error) {
	log := y.log.With(slog.String("func", "Download"), slog.String("url", url), slog.String("format_id", formatID))

	if !urls.ContainsAny(url, y.cfg.Extractor.AllowedDomains) {
		return "", errs.ErrUnsupportedHost
	}

	if formatID == "" {
		formatID = y.cfg.Extractor.DefaultFormat
	}

	ctx, cancel := y.withTimeout(ctx)
	defer cancel()

	defer y.metrics.ExtractorTimer(consts.OperationDownload)()

	progressFn := func(prog ytdlp.ProgressUpdate) {
		log.DebugContext(ctx, "ytdlp progress", slog.Any("progress_update", ProgressUpdate{&prog}))
	}

	command := y.baseCommand().
		Format(formatID).
		ForceOverwrites().
		Output(filepath.Join(dir, y.cfg.Dir.FilenameTemplate)).
		Print(defaultPrintAfterMove).
		ProgressFunc(defaultProgressFreq, progressFn)

	res, err := y.run(ctx, command, url)
	if err != nil {
		err = wrapRunError(ctx, errs.ErrDownloadFailed, err, stderrOf(res))
		y.metrics.RecordExtractorError(consts.OperationDownload, classifyError(err))
		log.ErrorContext(ctx, "ytdlp run", slog.Any("error", err), slog.Any("result", Result{res}))

		return "", err
	}

	path, err := producedFile(res.Stdout, dir)
	if err != nil {
		log.ErrorContext(ctx, "resolve produced file", slog.Any("error", err), slog.Any("result", Result{res}))

		return "", fmt.Errorf("%w: %w", errs.ErrDownloadFailed, err)
	}

	log.InfoContext(ctx, "downloaded", slog.String("path", path))

	return path, nil
}

func (y *YTdlp) baseCommand() *ytdlp.Command {
	command := ytdlp.New().
		NoPlaylist().
		CacheDir(y.cfg.Dir.Cache)

	if y.cfg.Dir.CookieFile != "" {
		command = command.Cookies(y.cfg.Dir.CookieFile)
	}

	return withEnviron(command, os.Environ())
}

// withEnviron passes environ to the child process. go-ytdlp starts yt-dlp with only the
// variables set on the command, which would drop HOME, proxy and certificate settings.
func withEnviron(command *ytdlp.Command, environ []string) *ytdlp.Command {
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}

		command = command.SetEnvVar(key, value)
	}

	return command
}

// run executes command, routing it through a proxy when any is available.
func (y *YTdlp) run(ctx context.Context, command *ytdlp.Command, url string) (*ytdlp.Result, error) {
	var proxyURL string
	if y.proxies != nil {
		proxyURL = y.proxies.GetRandomProxy()
	}

	if proxyURL != "" {
		y.log.DebugContext(ctx, "using proxy", slog.String("proxy", proxyURL))
		y.metrics.RecordProxyRequest(proxyURL)
		command = command.Proxy(proxyURL)
	}

	res, err := command.Run(ctx, url)

	if proxyURL != "" {
		switch {
		case err == nil:
			y.proxies.MarkSuccess(proxyURL)
		case ctx.Err() == nil:
			y.proxies.MarkFailed(proxyURL)
			y.metrics.RecordProxyFailure(proxyURL)
		}

		y.metrics.SetProxiesAvailable(y.proxies.AvailableCount())
	}

	return res, err
}

func (y *YTdlp) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if y.cfg.Extractor.Timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, y.cfg.Extractor.Timeout)
}

func stderrOf(res *ytdlp.Result) string {
	if res == nil {
		return ""
	}

	return res.Stderr
}

// producedFile returns the last file path printed by yt-dlp, checked to exist inside dir.
func producedFile(stdout, dir string) (string, error) {
	infos, err := ParseYtdlpStdout(stdout)
	if err != nil {
		return "", err
	}

	var path string

	for _, info := range infos {
		if info.Filename != "" {
			path = info.Filename
		}
	}

	if path == "" {
		return "", fmt.Errorf("no file path in output")
	}

	return verifyInside(path, dir)
}

// verifyInside resolves path and ensures it is an existing regular file under dir.
func verifyInside(path, dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs dir: %w", err)
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(absDir, path)
	}

	path = filepath.Clean(path)

	rel, err := filepath.Rel(absDir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", errs.ErrOutsideRoot, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat produced file: %w", err)
	}

	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("produced path is not a regular file: %s", path)
	}

	return path, nil
}
