package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scheott/safe/check"
	"github.com/scheott/safe/config"
	"github.com/scheott/safe/fetcher"
	"github.com/scheott/safe/reputation"
	"github.com/scheott/safe/tier1"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, cfgErr := config.Load()
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if cfgErr != nil {
		logger.WithError(cfgErr).Warn("Some settings were invalid, using defaults")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := reputation.Load(ctx, reputation.DirSource{Dir: cfg.DataDir}, logger)
	if err != nil {
		logger.WithError(err).WithField("data_dir", cfg.DataDir).Fatal("Cannot start without reputation data")
	}
	go store.Run(ctx, cfg.ReloadInterval)

	f := fetcher.New(cfg.Fetch, logger)

	var reviewer tier1.Reviewer
	if cfg.Tier1Enabled() {
		reviewer = tier1.NewGeminiReviewer(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.Tier1Timeout, logger)
		logger.WithField("model", cfg.GeminiModel).Info("Tier-1 review enabled")
	} else {
		logger.Info("GEMINI_API_KEY not set, Tier-1 review disabled")
	}

	svc := check.NewService(store, f, reviewer, check.Config{
		Concurrency:  cfg.BatchConcurrency,
		Tier1Timeout: cfg.Tier1Timeout,
	}, logger)

	handler := check.NewHandler(svc, store, check.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		MaxBatchURLs:   cfg.BatchMaxURLs,
		APIRateLimit:   cfg.APIRateLimit,
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	logger.WithFields(logrus.Fields{
		"port":     cfg.Port,
		"data_dir": cfg.DataDir,
	}).Info("safesignal listening")
	logger.Info("Endpoints: POST /check, POST /check/batch, GET /stats, POST /admin/reload, GET /healthz")

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Graceful shutdown failed")
	}
}
