package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"refledger.app/bot/common/id"
	"refledger.app/bot/common/logger"
	"refledger.app/bot/common/otel"
	"refledger.app/bot/core/config"
	"refledger.app/bot/internal/http/middleware"
	httprouter "refledger.app/bot/internal/http/router"
	"refledger.app/bot/internal/ledger"
	"refledger.app/bot/internal/metrics"
	"refledger.app/bot/internal/queue"
	"refledger.app/bot/internal/service"
	"refledger.app/bot/internal/store"
	"refledger.app/bot/internal/telegram"
	"refledger.app/bot/internal/worker"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "referral bot starting",
		"env", cfg.Env,
		"ledger_backend", cfg.Ledger.Backend,
		"threshold", cfg.Referral.Threshold,
		"missions", cfg.Mission.Enabled)

	if err := id.Init(id.NodeIDFor(cfg.Pipeline.RedisConsumer)); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	ledgerStore, err := store.Open(ctx, store.Config{
		Backend: cfg.Ledger.Backend,
		Path:    cfg.Ledger.Path,
		DB:      cfg.DB,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to open ledger store", "error", err)
		os.Exit(1)
	}
	defer ledgerStore.Close()

	book := ledger.New(store.WithRetry(ledgerStore, cfg.Ledger.SaveAttempts, cfg.Ledger.SaveBackoff))
	if err := book.Load(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to load ledger", "error", err)
		os.Exit(1)
	}

	tg, err := telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.ChannelID, cfg.IsDevelopment())
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to telegram", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "telegram connected", "bot", tg.Username(), "channel_id", cfg.Telegram.ChannelID)

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	producer := queue.NewRedisProducer(redisClient, cfg.Pipeline.RedisStream, slog.Default())
	defer producer.Close()

	consumer, err := queue.NewRedisConsumer(ctx, redisClient, queue.ConsumerConfig{
		Stream:       cfg.Pipeline.RedisStream,
		Group:        cfg.Pipeline.RedisGroup,
		Consumer:     cfg.Pipeline.RedisConsumer,
		DLQStream:    cfg.Pipeline.RedisDLQStream,
		BatchSize:    10,
		Block:        5 * time.Second,
		MaxAttempts:  cfg.Pipeline.MaxAttempts,
		RequeueDelay: 500 * time.Millisecond,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create redis consumer", "error", err)
		os.Exit(1)
	}

	m := metrics.Default()

	adminKey := ""
	if cfg.Telegram.AdminConfigured() {
		adminKey = strconv.FormatInt(cfg.Telegram.AdminID, 10)
	}

	services := service.NewServices(service.Deps{
		Ledger:   book,
		Platform: tg,
		Producer: producer,
		Deduper:  queue.NewRedisDeduper(redisClient, "refbot:update", cfg.Pipeline.DedupeTTL),
		Limiter:  rate.NewLimiter(rate.Limit(cfg.Telegram.SendRate), max(1, int(cfg.Telegram.SendRate))),
		Metrics:  m,
		Logger:   slog.Default(),
	}, service.Config{
		AdminKey:        adminKey,
		Language:        cfg.Language,
		Threshold:       cfg.Referral.Threshold,
		MissionsEnabled: cfg.Mission.Enabled,
		Window:          cfg.Mission.Window,
		Extension:       cfg.Mission.Extension,
	})

	w := worker.New(consumer, services.Membership(), worker.Config{MaxAttempts: cfg.Pipeline.MaxAttempts}, m)
	go func() {
		if err := w.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "worker exited", "error", err)
		}
	}()

	reclaimer := worker.NewReclaimer(redisClient, worker.ReclaimerConfig{
		Stream:    cfg.Pipeline.RedisStream,
		Group:     cfg.Pipeline.RedisGroup,
		Consumer:  cfg.Pipeline.RedisConsumer,
		MinIdle:   time.Minute,
		Interval:  30 * time.Second,
		BatchSize: 10,
	}, consumer, w.Handle, m)
	go reclaimer.Run(ctx)

	var scheduler *worker.MissionScheduler
	if cfg.Mission.Enabled {
		scheduler = worker.NewMissionScheduler(services.Missions(), cfg.Mission.TickInterval)
		go scheduler.Run(ctx)
	}

	var poller *telegram.Poller
	if cfg.Telegram.UseWebhook() {
		hookURL := strings.TrimRight(cfg.Telegram.WebhookURL, "/") + "/telegram/webhook/" + cfg.Telegram.WebhookSecret
		if err := tg.SetWebhook(ctx, hookURL); err != nil {
			slog.ErrorContext(ctx, "failed to register telegram webhook", "error", err)
			os.Exit(1)
		}
	} else {
		poller = telegram.NewPoller(tg, services.UpdateIngest().Handle, 30)
		go poller.Run(ctx)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	// Intake first, then processing, so nothing is accepted that cannot be handled.
	if poller != nil {
		poller.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	reclaimer.Stop()
	w.Stop()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, services *service.Services) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, httprouter.RouterConfig{
		AdminAPIKey:    cfg.AdminAPIKey,
		WebhookSecret:  cfg.Telegram.WebhookSecret,
		ChannelID:      cfg.Telegram.ChannelID,
		Threshold:      cfg.Referral.Threshold,
		WebhookEnabled: cfg.Telegram.UseWebhook(),
	})

	return router
}

const banner = `
 ____  _____ _____ ____   ___ _____
|  _ \| ____|  ___| __ ) / _ \_   _|
| |_) |  _| | |_  |  _ \| | | || |
|  _ <| |___|  _| | |_) | |_| || |
|_| \_\_____|_|   |____/ \___/ |_|
`
