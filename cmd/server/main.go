package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/proshano/kcru-mailer/internal/api"
	"github.com/proshano/kcru-mailer/internal/config"
	"github.com/proshano/kcru-mailer/internal/content"
	"github.com/proshano/kcru-mailer/internal/domain"
	"github.com/proshano/kcru-mailer/internal/pkg/distlock"
	"github.com/proshano/kcru-mailer/internal/pkg/logger"
	"github.com/proshano/kcru-mailer/internal/repository/postgres"
	"github.com/proshano/kcru-mailer/internal/service/dispatch"
	"github.com/proshano/kcru-mailer/internal/transport"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxOpenConns / 2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		log.Fatalf("Database unreachable: %v", err)
	}
	cancelPing()
	logger.Info("database connected")

	// Redis is optional: without it, run locks fall back to Postgres
	// advisory locks.
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid Redis URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, using advisory-lock fallback", "error", err.Error())
			redisClient = nil
		} else {
			logger.Info("redis connected")
		}
	}

	subscribers := postgres.NewSubscriberRepo(db)
	settings := postgres.NewSettingsRepo(db)
	contentRepo := postgres.NewContentRepo(db)
	runs := postgres.NewRunsRepo(db)

	sender := transport.NewSESSender(cfg.SES)
	if !cfg.SES.Configured() {
		logger.Warn("email provider not configured, all sends will be skipped")
	}

	lockFactory := func(campaign domain.CampaignType) dispatch.RunLock {
		return distlock.New(redisClient, db, "dispatch:run:"+string(campaign), cfg.Dispatch.LockTTL())
	}

	engine := dispatch.NewEngine(
		subscribers, settings, contentRepo, sender, runs, lockFactory,
		cfg.Site.BaseURL, cfg.Site.OrganizationName,
	)

	// The publication cache refreshes in the background; dispatch runs
	// read whatever the cache holds.
	if cfg.Feeds.PublicationsURL != "" {
		refresher := content.NewFeedRefresher(contentRepo, cfg.Feeds.PublicationsURL, cfg.Feeds.RefreshInterval())
		if err := refresher.Start(); err != nil {
			log.Fatalf("Failed to start feed refresher: %v", err)
		}
		defer refresher.Stop()
	} else {
		logger.Warn("no publications feed configured, newsletter content will not refresh")
	}

	server := api.NewServer(cfg, engine, api.Deps{
		Subscribers: subscribers,
		Settings:    settings,
		Runs:        runs,
		DB:          db,
		Redis:       redisClient,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		errCh <- server.ListenAndServe(addr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		log.Fatalf("Server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err.Error())
	}
}
