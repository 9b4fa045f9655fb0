package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"mediagrab/internal/config"
	"mediagrab/internal/download"
	"mediagrab/internal/extractor"
	"mediagrab/internal/extractor/direct"
	"mediagrab/internal/extractor/youtube"
	"mediagrab/internal/extractor/ytdlp"
	"mediagrab/internal/handler"
	"mediagrab/internal/metrics"
	"mediagrab/internal/storage"
	"mediagrab/internal/websocket"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	SetupLogger(cfg.LogLevel)

	if err := run(cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server exited")
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ext, err := newExtractor(ctx, cfg)
	if err != nil {
		return err
	}

	// Runners get their own context so that in-flight jobs outlive the
	// signal until the shutdown timeout expires.
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	store := storage.New()
	hub := websocket.NewHub()
	m := metrics.New()
	downloader := download.New(runCtx, store, ext, download.Config{
		TempDir:  cfg.TempDir,
		Notifier: hub,
		Metrics:  m,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handler.RequestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/info", handler.InfoHandler(ext, m))
	r.Post("/start_download", handler.StartDownloadHandler(store, downloader))
	r.Get("/progress", handler.ProgressHandler(store))
	r.Get("/download_file", handler.DownloadFileHandler(store))
	r.Get("/jobs", handler.ListJobsHandler(store))
	r.Get("/ws", hub.WsHandler)
	r.Handle("/metrics", m.Handler())
	r.Get("/healthz", handler.HealthHandler)

	server := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server starting", "port", cfg.Port, "extractor", cfg.Extractor)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		downloader.RunSweeper(gctx, cfg.SweepInterval, cfg.JobTTL)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
		}
		if err := downloader.Wait(shutdownCtx); err != nil {
			slog.Warn("Aborting in-flight downloads", "active", downloader.Active())
			cancelRuns()
			_ = downloader.Wait(context.Background())
		}
		return nil
	})

	return g.Wait()
}

func newExtractor(ctx context.Context, cfg config.Config) (extractor.Extractor, error) {
	switch cfg.Extractor {
	case config.ExtractorYoutube:
		return youtube.New(nil), nil
	case config.ExtractorDirect:
		return direct.New(nil), nil
	default:
		if cfg.YtdlpInstall {
			installCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()
			slog.Info("Installing yt-dlp")
			if err := ytdlp.Install(installCtx); err != nil {
				return nil, fmt.Errorf("install yt-dlp: %w", err)
			}
		}
		return ytdlp.New(cfg.MergeFormat), nil
	}
}

func SetupLogger(level slog.Level) {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02 15:04:05",
		AddSource:  true,
	})

	slog.SetDefault(slog.New(handler))
}
