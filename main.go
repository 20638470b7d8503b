// entry point of the application
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"vidfetch/internal/config"
	"vidfetch/internal/consts"
	"vidfetch/internal/depmanager"
	"vidfetch/internal/errs"
	"vidfetch/internal/extractor"
	httprouter "vidfetch/internal/infrastructure/delivery/http"
	"vidfetch/internal/observability"
	"vidfetch/internal/proxymgr"
	"vidfetch/internal/service"
	"vidfetch/internal/session"
	"vidfetch/internal/workspace"
	httpserver "vidfetch/pkg/http/server"
	"vidfetch/pkg/logger"
	"vidfetch/pkg/urls"

	"github.com/urfave/cli/v3"
)

const flagLogLevel = "log-level"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "vidfetch",
		Usage: "extract social-media video metadata and stream the chosen format over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "log level (debug, info, warn, error); overrides VIDFETCH_APP_LOG_LEVEL",
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API (default)",
				Action: serve,
			},
			{
				Name:      "probe",
				Usage:     "print the metadata extracted for a video URL as JSON",
				ArgsUsage: "<url>",
				Action:    probe,
			},
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("vidfetch failed", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

// setup loads configuration and installs the default logger.
func setup(ctx context.Context, cmd *cli.Command, opt logger.Options) (*config.Config, *slog.Logger, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, fmt.Errorf("config new: %w", err)
	}

	if level := cmd.String(flagLogLevel); level != "" {
		cfg.App.LogLevel = level
	}

	opt.AddSource = true
	opt.Level = cfg.App.LogLevel

	log, err := logger.New(&opt)
	if err != nil {
		slog.WarnContext(ctx, "logger level invalid; defaulting to info", slog.Any("error", err))
	}

	return cfg, log, nil
}

// provision makes yt-dlp and ffmpeg available unless the mock extractor is selected.
func provision(ctx context.Context, log *slog.Logger, cfg *config.Config) (*depmanager.Manager, error) {
	if cfg.Extractor.Kind == consts.ExtractorMock {
		return nil, nil
	}

	depMgr := depmanager.New(log, cfg)

	log.InfoContext(ctx, "checking if yt-dlp and ffmpeg are installed. it may take some time...")

	if err := depMgr.Start(ctx); err != nil {
		return nil, fmt.Errorf("provision binaries: %w", err)
	}

	return depMgr, nil
}

func newProxyManager(ctx context.Context, log *slog.Logger, cfg *config.Config, metrics *observability.Metrics) *proxymgr.Manager {
	if len(cfg.Proxy.Proxies) == 0 {
		return nil
	}

	proxyMgr := proxymgr.New(log, cfg.Proxy, metrics)
	proxyMgr.StartHealthChecker(ctx)

	log.InfoContext(ctx, "proxy manager initialized", slog.Int("proxy_count", proxyMgr.Count()))

	return proxyMgr
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := setup(ctx, cmd, logger.Options{})
	if err != nil {
		return err
	}

	metrics := observability.New(nil)

	depMgr, err := provision(ctx, log, cfg)
	if err != nil {
		return err
	}

	if depMgr != nil {
		go depMgr.StartUpdateChecker(ctx)
	}

	proxyMgr := newProxyManager(ctx, log, cfg, metrics)

	ex, err := extractor.New(log, cfg, proxyMgr, metrics)
	if err != nil {
		return fmt.Errorf("extractor new: %w", err)
	}

	workspaces, err := workspace.New(log, cfg, metrics)
	if err != nil {
		return fmt.Errorf("workspace new: %w", err)
	}

	sessions := session.New(log, cfg, metrics)

	go workspaces.SweepStale(ctx, cfg.Workspace.SweepInterval)
	go sessions.CleanupExpired(ctx, cfg.Session.CleanupInterval)

	// Service
	svc := service.New(log, cfg, ex, workspaces, sessions, metrics)

	// HTTP Server
	router := httprouter.New(log, cfg, svc, metrics)

	httpSrv := httpserver.New(router, httpserver.Options{
		Addr:            cfg.HTTP.Addr(),
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	})

	log.InfoContext(ctx, "vidfetch started",
		slog.String("addr", httpSrv.Addr()),
		slog.String("api_prefix", cfg.HTTP.APIPrefix),
		slog.String("extractor", cfg.Extractor.Kind),
		slog.String("version", cfg.App.Version))

	// Waiting for shutdown signal or listener failure
	var serveErr error

	select {
	case <-ctx.Done():
	case serveErr = <-httpSrv.Notify():
		log.ErrorContext(ctx, "http server stopped", slog.Any("error", serveErr))
	}

	if err := httpSrv.Shutdown(); err != nil {
		log.ErrorContext(ctx, "http server shutdown", slog.Any("error", err))
	}

	svc.Wait()

	log.InfoContext(ctx, "vidfetch shut down gracefully")

	return serveErr
}

func probe(ctx context.Context, cmd *cli.Command) error {
	url := cmd.Args().First()
	if !urls.IsURLValid(url) {
		return fmt.Errorf("%w: %q", errs.ErrInvalidURL, url)
	}

	// stdout carries the JSON document only
	cfg, log, err := setup(ctx, cmd, logger.Options{Output: os.Stderr})
	if err != nil {
		return err
	}

	if _, err := provision(ctx, log, cfg); err != nil {
		return err
	}

	ex, err := extractor.New(log, cfg, newProxyManager(ctx, log, cfg, nil), nil)
	if err != nil {
		return fmt.Errorf("extractor new: %w", err)
	}

	video, err := ex.ExtractMetadata(ctx, url)
	if err != nil {
		return fmt.Errorf("extract metadata: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(video); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	return nil
}
