// Command mailverify-api serves single and bulk email validation over HTTP.
//
// Usage:
//
//	mailverify-api --config ./config
//
// A .env file in the working directory is loaded first; MAILVERIFY_*
// variables override config.yaml.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/studiocloud/mailverify/internal/api"
	"github.com/studiocloud/mailverify/internal/app"
	"github.com/studiocloud/mailverify/internal/config"
	"github.com/studiocloud/mailverify/internal/logger"
)

func main() {
	configDir := flag.String("config", "config", "directory containing config.yaml")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Output:    cfg.Logging.Output,
		Format:    cfg.Logging.Format,
		FilePath:  cfg.Logging.FilePath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	log.Info().Str("environment", cfg.Environment).Msg("starting API server")

	svc, err := app.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure validator")
	}
	defer svc.Close()

	router := api.NewRouter(svc.Validator, svc.Runner, log, api.Options{
		Production:        cfg.IsProduction(),
		MaxUploadBytes:    cfg.Server.MaxUploadMB << 20,
		KeepaliveInterval: cfg.Server.KeepaliveInterval,
	})

	// No WriteTimeout: bulk responses stream for as long as the run lasts.
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
		return
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server stopped")
}
