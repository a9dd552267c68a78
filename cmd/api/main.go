package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"podcastgen/internal/app"
	"podcastgen/internal/config"
	"podcastgen/internal/logger"
)

func main() {
	_ = godotenv.Load() // loads .env

	configPath := flag.String("config", os.Getenv("PODCAST_CONFIG"), "path to a TOML config file")
	flag.Parse()

	log := logger.New()
	log.WithField("service", "podcastgen").Info("starting service")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	for _, dir := range []string{cfg.Server.UploadsDir, cfg.Server.PublicDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.WithError(err).WithField("dir", dir).Fatal("failed to create directory")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log.Entry)
	if err != nil {
		log.WithError(err).Fatal("failed to build pipeline")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.WithError(err).Warn("close failed")
		}
	}()

	srv := &server{
		proc:       a.Processor,
		artifacts:  a.Store,
		log:        log,
		uploadsDir: cfg.Server.UploadsDir,
		publicDir:  cfg.Server.PublicDir,
		maxUpload:  cfg.MaxUploadBytes(),
	}
	if a.Registry != nil {
		srv.runs = a.Registry
	}

	addr := ":" + cfg.Server.Port
	httpSrv := &http.Server{
		Addr:        addr,
		Handler:     srv.routes(),
		ReadTimeout: 30 * time.Second,
		// conversations synthesize turn by turn, so responses can take minutes
		WriteTimeout: cfg.RequestTimeout() + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutdown incomplete")
		}
	}()

	log.WithField("addr", addr).Info("listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server terminated")
	}
}
