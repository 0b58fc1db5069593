package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"focusguard-backend/config"
	"focusguard-backend/internal/api"
	"focusguard-backend/internal/auth"
	"focusguard-backend/internal/db"
	"focusguard-backend/internal/detector"
	"focusguard-backend/internal/model"
	"focusguard-backend/internal/monitor"
	"focusguard-backend/internal/mw"
	"focusguard-backend/internal/notification"
	"focusguard-backend/internal/persist"
	"focusguard-backend/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the monitoring server",
	Long:  `Start the HTTP and WebSocket server together with the detector pool, event writer and retention cleanup.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger
	logger.Info().Str("version", version).Str("config", path).Msg("Starting focusd")

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must be configured")
	}
	if cfg.Detector.URL == "" {
		return fmt.Errorf("detector.url must be configured")
	}

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
	}()
	appStore := store.NewGormStore(gormDB)

	// Background workers stop when ctx is cancelled, after the registry and writer have drained.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := mw.NewResponseCache(cfg.Server.CacheTTL)

	writer := persist.NewWriter(appStore, cfg.Persist, logger)
	writer.OnPersisted(func(ev *model.DistractionEvent) { cache.InvalidateSession(ev.SessionID) })
	writer.Start()

	janitor := persist.NewJanitor(appStore, cfg.Retention, logger)
	go janitor.Run(ctx)

	httpDetector := detector.NewHTTPDetector(cfg.Detector, logger)
	pool := detector.NewPool(cfg.Detector.Workers, cfg.Detector.QueueSize, cfg.Detector.Timeout, httpDetector, logger)
	pool.Start(ctx)

	webpushOptions := &webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}
	deps := monitor.Deps{Pool: pool, Events: writer, Logger: logger}
	if cfg.Push.Enabled() {
		workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, gormDB, webpushOptions, logger)
		workerPool.Start(ctx)
		deps.Notifier = workerPool
	} else {
		logger.Warn().Msg("VAPID keys not configured, push notifications disabled")
	}

	var presence monitor.Presence
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, presence, err = setupPresence(ctx, cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	registry := monitor.NewRegistry(monitor.SettingsFromConfig(cfg.Monitor, cfg.Push), deps, presence)
	if redisClient != nil {
		go registry.KeepAlive(ctx, cfg.Redis.PresenceTTL/3)
	}

	limiter := mw.NewIPRateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)
	go sweepLimiter(ctx, limiter)

	handler := api.NewHandler(appStore, registry, cache, webpushOptions, api.Options{
		MaxFPS:          cfg.Monitor.MaxFPS,
		MaxFrameBytes:   cfg.Server.MaxFrameBytes,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		PushMinSeverity: cfg.Push.MinSeverity,
	}, logger)
	router := api.NewRouter(handler, auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL), limiter, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received, stopping services")
	case err := <-serverErr:
		logger.Error().Err(err).Msg("HTTP server failed")
	}

	shutdown(cfg, logger, server, registry, writer, pool)
	cancel()
	logger.Info().Msg("Server gracefully stopped")
	return nil
}

// shutdown stops accepting connections, lets every monitor flush its open windows, then drains the
// event writer. Each stage gets its own shutdown timeout.
func shutdown(cfg *config.Config, logger zerolog.Logger, server *http.Server, registry *monitor.Registry, writer *persist.Writer, pool *detector.Pool) {
	stage := func(name string, fn func(ctx context.Context) error) {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			logger.Error().Err(err).Str("stage", name).Msg("shutdown stage did not complete")
		}
	}

	stage("http", server.Shutdown)
	stage("monitors", registry.Shutdown)
	stage("events", writer.Close)
	pool.Stop()
}

func setupPresence(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (*redis.Client, monitor.Presence, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	host, _ := os.Hostname()
	owner := fmt.Sprintf("%s-%s", host, uuid.NewString())
	logger.Info().Str("addr", cfg.Addr).Str("owner", owner).Dur("ttl", cfg.PresenceTTL).Msg("session presence backed by redis")
	return client, monitor.NewRedisPresence(client, cfg.PresenceTTL, owner), nil
}

func sweepLimiter(ctx context.Context, limiter *mw.IPRateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep(10 * time.Minute)
		}
	}
}
