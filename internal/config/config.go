// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration.
type Config struct {
	HTTP       HTTP
	App        App
	CORS       CORS
	Dir        Dir
	Workspace  Workspace
	Session    Session
	Extractor  Extractor
	DepManager DepManager
	Proxy      Proxy
}

// App holds application-wide configuration.
type App struct {
	Name     string `env:"VIDFETCH_APP_NAME"      envDefault:"vidfetch"`
	Version  string `env:"VIDFETCH_APP_VERSION"   envDefault:"1.0.0"`
	LogLevel string `env:"VIDFETCH_APP_LOG_LEVEL" envDefault:"info"`
}

// HTTP holds HTTP server configuration.
type HTTP struct {
	Host            string        `env:"VIDFETCH_HTTP_HOST"             envDefault:"0.0.0.0"`
	Port            string        `env:"VIDFETCH_HTTP_PORT"             envDefault:"8000"`
	APIPrefix       string        `env:"VIDFETCH_HTTP_API_PREFIX"       envDefault:"/api"`
	ReadTimeout     time.Duration `env:"VIDFETCH_HTTP_READ_TIMEOUT"     envDefault:"15s"`
	WriteTimeout    time.Duration `env:"VIDFETCH_HTTP_WRITE_TIMEOUT"    envDefault:"30m"`
	ShutdownTimeout time.Duration `env:"VIDFETCH_HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Addr returns the host:port pair the server listens on.
func (h HTTP) Addr() string {
	return h.Host + ":" + h.Port
}

// CORS holds cross-origin policy settings. Every list accepts "*".
type CORS struct {
	AllowedOrigins   []string `env:"VIDFETCH_CORS_ALLOWED_ORIGINS"   envDefault:"http://localhost:3000,http://localhost:8000" envSeparator:","` //nolint:lll
	AllowedMethods   []string `env:"VIDFETCH_CORS_ALLOWED_METHODS"   envDefault:"*"                                           envSeparator:","` //nolint:lll
	AllowedHeaders   []string `env:"VIDFETCH_CORS_ALLOWED_HEADERS"   envDefault:"*"                                           envSeparator:","` //nolint:lll
	AllowCredentials bool     `env:"VIDFETCH_CORS_ALLOW_CREDENTIALS" envDefault:"true"`
}

// Dir holds directory paths for downloads, cache, and cookie file.
type Dir struct {
	Downloads string `env:"VIDFETCH_DIR_DOWNLOAD" envDefault:"./downloads"`  // one workspace per download id
	Cache     string `env:"VIDFETCH_DIR_CACHE"    envDefault:"./data/cache"` // yt-dlp cache (meta, sigs)

	// must contain cookies.txt file
	// see: https://github.com/yt-dlp/yt-dlp/wiki/FAQ#how-do-i-pass-cookies-to-yt-dlp
	CookieFile string `env:"VIDFETCH_DIR_COOKIE_FILE" envDefault:""`

	// relative to the workspace directory, see:
	// https://github.com/yt-dlp/yt-dlp/blob/2025.09.05/README.md#output-template
	FilenameTemplate string `env:"VIDFETCH_DIR_FILENAME_TEMPLATE" envDefault:"%(title)s.%(ext)s"`
}

// SetAbsPaths converts all directory paths to absolute paths.
func (c *Dir) SetAbsPaths() error {
	var err error
	if c.Downloads, err = filepath.Abs(c.Downloads); err != nil {
		return fmt.Errorf("downloads: %w", err)
	}

	if c.Cache, err = filepath.Abs(c.Cache); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	if c.CookieFile != "" {
		if c.CookieFile, err = filepath.Abs(c.CookieFile); err != nil {
			return fmt.Errorf("cookie file: %w", err)
		}
	}

	return nil
}

// Workspace holds download workspace lifecycle settings.
type Workspace struct {
	// MaxAge is how long an abandoned workspace survives before the sweeper removes it.
	MaxAge        time.Duration `env:"VIDFETCH_WORKSPACE_MAX_AGE"        envDefault:"1h"`
	SweepInterval time.Duration `env:"VIDFETCH_WORKSPACE_SWEEP_INTERVAL" envDefault:"10m"`
}

// Session holds settings of the download id -> source URL registry.
type Session struct {
	TTL             time.Duration `env:"VIDFETCH_SESSION_TTL"              envDefault:"1h"`
	CleanupInterval time.Duration `env:"VIDFETCH_SESSION_CLEANUP_INTERVAL" envDefault:"5m"`
}

// Extractor holds video extractor settings.
type Extractor struct {
	// Kind selects the extractor implementation: "ytdlp" or "mock".
	Kind    string        `env:"VIDFETCH_EXTRACTOR_KIND"    envDefault:"ytdlp"`
	Timeout time.Duration `env:"VIDFETCH_EXTRACTOR_TIMEOUT" envDefault:"10m"`
	// AllowedDomains are substrings a source URL must contain to be accepted.
	AllowedDomains []string `env:"VIDFETCH_EXTRACTOR_ALLOWED_DOMAINS" envDefault:"facebook.com,fb.com,fb.watch" envSeparator:","` //nolint:lll
	// DefaultFormat is used when the client does not pick a format.
	DefaultFormat string `env:"VIDFETCH_EXTRACTOR_DEFAULT_FORMAT" envDefault:"best"`
	// DefaultTitle is reported when the extractor finds no title.
	DefaultTitle string `env:"VIDFETCH_EXTRACTOR_DEFAULT_TITLE" envDefault:"Facebook Video"`
}

// New loads configuration from environment variables.
func New() (*Config, error) {
	cfg := &Config{}

	err := env.Parse(cfg)
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	err = cfg.Dir.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set absolute paths: %w", err)
	}

	err = cfg.DepManager.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set dep manager absolute paths: %w", err)
	}

	cfg.HTTP.APIPrefix = normalizePrefix(cfg.HTTP.APIPrefix)
	cfg.Extractor.AllowedDomains = trimList(cfg.Extractor.AllowedDomains)
	cfg.CORS.AllowedOrigins = trimList(cfg.CORS.AllowedOrigins)
	cfg.CORS.AllowedMethods = trimList(cfg.CORS.AllowedMethods)
	cfg.CORS.AllowedHeaders = trimList(cfg.CORS.AllowedHeaders)
	cfg.Proxy.parseList()

	return cfg, nil
}

// DepManager holds binary dependency management configuration.
type DepManager struct {
	// BinsDir is the directory where binaries are stored
	BinsDir string `env:"VIDFETCH_DEPMANAGER_BINS_DIR" envDefault:"./bins"`
	// UseSystemBinaries indicates whether to use system-installed binaries or download them.
	UseSystemBinaries bool `env:"VIDFETCH_DEPMANAGER_USE_SYSTEM_BINARIES" envDefault:"false"`
	// UpdateInterval is how often to check for binary updates
	UpdateInterval time.Duration `env:"VIDFETCH_DEPMANAGER_UPDATE_INTERVAL" envDefault:"24h"`

	// ffmpeg binary URLs per platform.
	FFmpegSHA256SumsURL string `env:"VIDFETCH_DEPMANAGER_FFMPEG_SHA256SUMS_URL" envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/checksums.sha256"`                        //nolint:lll
	FFmpegLinuxARM64    string `env:"VIDFETCH_DEPMANAGER_FFMPEG_LINUX_ARM64" envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-linuxarm64-gpl.tar.xz"` //nolint:lll
	FFmpegLinuxAMD64    string `env:"VIDFETCH_DEPMANAGER_FFMPEG_LINUX_AMD64" envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-linux64-gpl.tar.xz"`    //nolint:lll

	// yt-dlp binary URLs per platform.
	YTdlpSHA256SumsURL string `env:"VIDFETCH_DEPMANAGER_YTDLP_SHA256SUMS_URL" envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/SHA2-256SUMS"`      //nolint:lll
	YTdlpLinuxARM64    string `env:"VIDFETCH_DEPMANAGER_YTDLP_LINUX_ARM64" envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux_aarch64"` //nolint:lll
	YTdlpLinuxAMD64    string `env:"VIDFETCH_DEPMANAGER_YTDLP_LINUX_AMD64" envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux"`         //nolint:lll
}

// SetAbsPaths converts the BinsDir path to an absolute path.
func (d *DepManager) SetAbsPaths() error {
	var err error
	if d.BinsDir, err = filepath.Abs(d.BinsDir); err != nil {
		return fmt.Errorf("bins dir: %w", err)
	}

	return nil
}

// Proxy holds proxy configuration for extractor requests.
type Proxy struct {
	// List is a comma-separated list of proxy URLs in socks5h format
	List string `env:"VIDFETCH_PROXY_LIST" envDefault:""`
	// HealthCheckInterval is how often to check proxy health
	HealthCheckInterval time.Duration `env:"VIDFETCH_PROXY_HEALTH_CHECK_INTERVAL" envDefault:"5m"`
	// FailureBackoff is the initial backoff duration for failed proxies
	FailureBackoff time.Duration `env:"VIDFETCH_PROXY_FAILURE_BACKOFF" envDefault:"1m"`
	// MaxFailures is the maximum number of failures before a proxy is temporarily removed
	MaxFailures int `env:"VIDFETCH_PROXY_MAX_FAILURES" envDefault:"3"`

	// Proxies is the parsed list of proxy URLs
	Proxies []string `env:"-"`
}

// parseList parses the comma-separated proxy list.
func (p *Proxy) parseList() {
	if p.List == "" {
		return
	}

	for proxy := range strings.SplitSeq(p.List, ",") {
		proxy = strings.TrimSpace(proxy)
		if proxy != "" {
			p.Proxies = append(p.Proxies, proxy)
		}
	}
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))

	for _, item := range in {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}

	return out
}

// normalizePrefix turns "api", "/api/" and "/api" into "/api". Empty stays empty.
func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}

	return "/" + prefix
}
