package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/storymill/storymill-render/internal/api"
	"github.com/storymill/storymill-render/internal/config"
	"github.com/storymill/storymill-render/internal/delivery"
	"github.com/storymill/storymill-render/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the render HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
}

func runServe(parent context.Context, out io.Writer, cfg *config.FileConfig) error {
	startTime := time.Now()

	logger := logging.NewLogger(cfg.LogLevel(), cfg.LogFormat())
	logger.Info("starting storymill", "version", config.Version, "data_dir", logging.SanitizePath(cfg.DataDir()))

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// only the server owns running jobs; one-shot commands must not touch them
	if n, err := a.jobRepo.RecoverInterrupted(parent); err != nil {
		logger.Warn("failed to mark interrupted jobs", "error", err)
	} else if n > 0 {
		logger.Info("marked interrupted jobs as failed", "count", n)
	}

	authToken := ""
	if cfg.AuthEnabled() {
		authToken, err = ensureAuthToken(parent, a.db)
		if err != nil {
			return fmt.Errorf("failed to ensure auth token: %w", err)
		}
		logger.Info("auth enabled", "token", logging.SanitizeToken(authToken))
	}

	printBanner(out, a.baseURL, authToken, string(a.selector.Mode()))

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checkCtx, checkCancel := context.WithTimeout(ctx, 10*time.Second)
	caps := a.doctor.Get(checkCtx)
	checkCancel()
	if caps.Available {
		logger.Info("encoder detected", "binary", caps.Binary, "version", caps.Version)
	} else {
		logger.Warn("encoder unavailable, jobs will produce slide packages", "binary", caps.Binary, "error", caps.Error)
	}

	if n, err := a.workspaces.Sweep(ctx); err != nil {
		logger.Warn("startup sweep failed", "error", err)
	} else if n > 0 {
		logger.Info("startup sweep removed stale workspaces", "removed", n)
	}
	go a.workspaces.Run(ctx, cfg.SweepInterval())

	apiServer := api.NewServer(api.ServerConfig{
		Addr:          cfg.Addr(),
		Jobs:          a.jobs,
		Artifacts:     a.artifacts,
		Resolver:      a.resolver,
		Delivery:      delivery.NewServer(logger),
		Doctor:        a.doctor,
		Settings:      a.db,
		AuthEnabled:   cfg.AuthEnabled(),
		PublicBaseURL: a.baseURL,
		Logger:        logger,
		StartTime:     startTime,
		Version:       config.Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

type tokenStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

func ensureAuthToken(ctx context.Context, store tokenStore) (string, error) {
	existing, err := store.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := store.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}
	return token, nil
}

func printBanner(out io.Writer, baseURL, token, mode string) {
	if token == "" {
		token = "(auth disabled)"
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "╔════════════════════════════════════════════════════════════════════════════════╗")
	fmt.Fprintf(out, "║  STORYMILL %-67s ║\n", "v"+config.Version)
	fmt.Fprintln(out, "╠════════════════════════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(out, "║  API URL:    %-65s ║\n", baseURL)
	fmt.Fprintf(out, "║  Auth Token: %-65s ║\n", token)
	fmt.Fprintf(out, "║  Output:     %-65s ║\n", mode)
	fmt.Fprintln(out, "╚════════════════════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out)
}
