package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/minus-twelve/geoquest"
	"github.com/minus-twelve/geoquest/token"
)

func main() {
	configPath := flag.String("config", os.Getenv("GEOQUEST_CONFIG"), "path to a YAML config file")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	if err := run(*configPath, *envFile); err != nil {
		slog.Error("geoquest failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg, err := geoquest.LoadConfig(configPath, nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Logger
	level, _ := cfg.Server.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	if level > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Store
	store, err := geoquest.CreateStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}

	tokens, err := token.NewService(cfg.Challenge.JWTSecret, cfg.SessionTimeout())
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("token service: %w", err)
	}

	challenge, err := geoquest.NewChallenge(store, cfg.Catalog(), tokens, cfg.Rules(), geoquest.WithLogger(logger))
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("challenge: %w", err)
	}
	defer func() {
		if err := challenge.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()

	server := geoquest.NewServer(challenge, cfg.Security, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Challenge.SessionRetention > 0 {
		go challenge.RunCleanup(ctx, cfg.Challenge.SessionRetention, cfg.Challenge.CleanupInterval)
	}
	go server.RunLimiterCleanup(ctx)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("geoquest server starting",
			"addr", addr,
			"store", cfg.Store.StoreType,
			"riddles", cfg.Catalog().Total(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped")
	return nil
}
