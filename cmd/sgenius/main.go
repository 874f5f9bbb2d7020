// Package main is the entry point for the sgenius backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/howard-nolan/sgenius/internal/config"
	"github.com/howard-nolan/sgenius/internal/provider"
	"github.com/howard-nolan/sgenius/internal/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

// run builds the generator and server, serves until SIGINT/SIGTERM, then
// drains in-flight requests.
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen, closeGen, err := buildGenerator(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGen()

	if cfg.Model.APIKey == "" {
		logger.Warn("no API key configured; generation requests will fail until one is set")
	}
	logger.Info("generator ready", "backend", gen.Name(), "model", cfg.Model.Name, "timeout", cfg.Model.Timeout.String())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.New(cfg, gen, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sgenius listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// buildGenerator picks the backend named in config and bounds it with the
// configured timeout. The returned func releases backend resources.
func buildGenerator(ctx context.Context, cfg *config.Config) (provider.Generator, func(), error) {
	sampling := provider.SamplingSet{
		Text: provider.Sampling(cfg.Generation.Text),
		JSON: provider.Sampling(cfg.Generation.JSON),
	}

	switch cfg.Model.Backend {
	case config.BackendGenAI:
		p, err := provider.NewGenAIProvider(ctx, cfg.Model.APIKey, cfg.Model.Name, sampling)
		if err != nil {
			return nil, nil, err
		}
		return provider.WithTimeout(p, cfg.Model.Timeout), func() { p.Close() }, nil
	default:
		p := provider.NewGoogleProvider(cfg.Model.APIKey, cfg.Model.BaseURL, cfg.Model.Name, sampling, &http.Client{})
		return provider.WithTimeout(p, cfg.Model.Timeout), func() {}, nil
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
