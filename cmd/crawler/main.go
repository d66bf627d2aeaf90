package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/user/cryptocrawl/internal/api"
	"github.com/user/cryptocrawl/internal/config"
	"github.com/user/cryptocrawl/internal/crawler"
	"github.com/user/cryptocrawl/internal/monitoring"
	"github.com/user/cryptocrawl/internal/render"
	"github.com/user/cryptocrawl/internal/robots"
	"github.com/user/cryptocrawl/internal/service"
	"github.com/user/cryptocrawl/internal/storage"
	"github.com/user/cryptocrawl/pkg/logger"
)

func main() {
	// Initialize structured logger
	logger, err := logger.New(os.Getenv("DEBUG") != "")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("could not load config", zap.Error(err))
	}

	// Initialize Storage Layer
	ctx := context.Background()
	pgStore, err := storage.NewPostgresStore(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pgStore.Close()
	redisStore := storage.NewRedisStore(cfg.RedisAddr)
	defer redisStore.Close()

	// Initialize Monitoring
	metrics := monitoring.NewMetrics()

	// Initialize the crawl engine and its collaborators
	fetcher := crawler.NewFetcher(cfg.UserAgent, cfg.RequestTimeoutDuration())
	robotsManager := robots.NewManager(fetcher.Client(), cfg.UserAgent, logger)

	var renderer render.Renderer
	if cfg.RenderEnabled {
		browser := render.NewBrowser(cfg.UserAgent, logger)
		if err := browser.Start(); err != nil {
			logger.Warn("headless browser unavailable, rendering disabled", zap.Error(err))
		} else {
			renderer = browser
			defer browser.Stop()
		}
	}

	engine := crawler.NewEngine(cfg, fetcher, robotsManager, renderer, pgStore, metrics, logger)

	// Initialize API Server
	server := api.NewServer(cfg, engine, pgStore, redisStore, logger)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not start server", zap.Error(err))
		}
	}()
	logger.Info("server started", zap.String("port", cfg.ServerPort))

	// Start the manager service loop when a manager is configured
	svcCtx, svcCancel := context.WithCancel(ctx)
	defer svcCancel()
	if cfg.ManagerURL != "" {
		dedupTTL := time.Duration(cfg.DeduplicationDays) * 24 * time.Hour
		svc := service.New(cfg.ClientID, cfg.ManagerURL, cfg.PollIntervalDuration(), engine, pgStore, redisStore, dedupTTL, logger)
		go func() {
			if err := svc.Run(svcCtx); err != nil && err != context.Canceled {
				logger.Error("service loop stopped", zap.Error(err))
			}
		}()
	}

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	svcCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
