package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/kephaschat"
	"github.com/luciancaetano/kephaschat/internal/auth"
	"github.com/luciancaetano/kephaschat/internal/config"
	"github.com/luciancaetano/kephaschat/internal/logging"
	"github.com/luciancaetano/kephaschat/internal/metrics"
	"github.com/luciancaetano/kephaschat/internal/presence"
	"github.com/luciancaetano/kephaschat/internal/relay"
	"github.com/luciancaetano/kephaschat/internal/store"
	"github.com/luciancaetano/kephaschat/ws"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	cfg := config.FromEnv()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat relay",
		Long: `Run the WebSocket relay.

Without --database-url messages are kept in memory; without --redis-addr
presence markers are kept in memory. Both are meant for development only.

Examples:
  KEPHASCHAT_JWT_SECRET=dev kephaschat serve
  kephaschat serve --addr :9000 --database-url postgres://localhost/chat --redis-addr localhost:6379`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	f.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", cfg.AllowedOrigins, "Allowed WebSocket origins (* for any)")
	f.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "HS256 secret for auth tokens")
	f.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL connection string")
	f.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for presence markers")
	f.StringVar(&cfg.RedisPassword, "redis-password", cfg.RedisPassword, "Redis password")
	f.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "Redis database number")
	f.DurationVar(&cfg.OnlineTTL, "online-ttl", cfg.OnlineTTL, "Expiry of online markers")
	f.DurationVar(&cfg.TypingTTL, "typing-ttl", cfg.TypingTTL, "Expiry of typing markers")
	f.DurationVar(&cfg.PingInterval, "ping-interval", cfg.PingInterval, "Application heartbeat period")
	f.Float64Var(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "Inbound frames per second per connection (0 disables)")
	f.IntVar(&cfg.RateBurst, "rate-burst", cfg.RateBurst, "Rate limiter burst")
	f.Int64Var(&cfg.MaxFrameBytes, "max-frame-bytes", cfg.MaxFrameBytes, "Largest accepted inbound frame")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (json, console)")

	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	messages, directory, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	marks, closePresence, err := openPresence(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closePresence()

	engine, err := relay.New(relay.Options{
		Auth:         auth.NewJWTAuthenticator(cfg.JWTSecret, directory),
		Messages:     messages,
		Presence:     marks,
		OnlineTTL:    cfg.OnlineTTL,
		TypingTTL:    cfg.TypingTTL,
		PingInterval: cfg.PingInterval,
		Logger:       logger.Named("relay"),
		Metrics:      m,
	})
	if err != nil {
		return err
	}

	serverCfg := ws.NewConfig(cfg.Addr, rateLimit(cfg), ws.AllowedOrigins(cfg.AllowedOrigins), engine)
	serverCfg.MaxFrameBytes = cfg.MaxFrameBytes
	serverCfg.Logger = logger.Named("ws")
	serverCfg.Metrics = m
	serverCfg = ws.WithRoutes(serverCfg, routes(engine, reg, logger.Named("http")))
	server := ws.New(serverCfg)

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		_ = engine.Run(ctx)
	}()

	if err := server.Start(ctx); err != nil {
		return err
	}
	logger.Info("kephaschat started",
		zap.String("addr", cfg.Addr),
		zap.String("version", version),
		zap.Bool("postgres", cfg.DatabaseURL != ""),
		zap.Bool("redis", cfg.RedisAddr != ""))

	<-ctx.Done()
	logger.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Stop(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("server shutdown", zap.Error(err))
	}
	<-heartbeatDone

	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (kephaschat.MessageStore, auth.UserDirectory, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("no database configured, messages are kept in memory")
		return store.NewMemory(), nil, func() {}, nil
	}

	pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}

	return pg, pg, func() {
		if err := pg.Close(); err != nil {
			logger.Warn("close database", zap.Error(err))
		}
	}, nil
}

func openPresence(ctx context.Context, cfg config.Config, logger *zap.Logger) (kephaschat.PresenceStore, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Warn("no redis configured, presence markers are kept in memory")
		return presence.NewMemory(), func() {}, nil
	}

	r, err := presence.NewRedis(ctx, presence.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Prefix:   cfg.RedisPrefix,
	})
	if err != nil {
		return nil, nil, err
	}

	return r, func() {
		if err := r.Close(); err != nil {
			logger.Warn("close redis", zap.Error(err))
		}
	}, nil
}

func rateLimit(cfg config.Config) *ws.RateLimitConfig {
	if cfg.RateLimit <= 0 {
		return ws.NoRateLimit()
	}
	return &ws.RateLimitConfig{
		MessagesPerSecond: rate.Limit(cfg.RateLimit),
		Burst:             cfg.RateBurst,
		Enabled:           true,
	}
}
