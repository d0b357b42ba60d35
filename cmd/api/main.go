package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/leadline/leadline/internal/alerts"
	"github.com/leadline/leadline/internal/api/router"
	"github.com/leadline/leadline/internal/cache"
	appconfig "github.com/leadline/leadline/internal/config"
	"github.com/leadline/leadline/internal/consent"
	"github.com/leadline/leadline/internal/http/handlers"
	"github.com/leadline/leadline/internal/jobs"
	"github.com/leadline/leadline/internal/leads"
	"github.com/leadline/leadline/internal/nudge"
	"github.com/leadline/leadline/internal/observability/metrics"
	"github.com/leadline/leadline/internal/outbound"
	"github.com/leadline/leadline/internal/ratelimit"
	"github.com/leadline/leadline/internal/telephony"
	"github.com/leadline/leadline/internal/tenants"
	"github.com/leadline/leadline/internal/webhook"
	"github.com/leadline/leadline/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting leadline API server", "env", cfg.Env, "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	cacheClient := cache.New(rdb, cfg.WebhookReplayTTL)

	reg := prometheus.NewRegistry()
	engineMetrics := metrics.NewEngineMetrics(reg)

	tenantStore := tenants.NewStore(pool)
	leadStore := leads.NewStore(pool)
	consentStore := consent.NewStore(pool).
		WithImpliedTTL(time.Duration(cfg.ImpliedConsentDays) * 24 * time.Hour)
	queueStore := outbound.NewStore(pool).
		WithStuckTimeout(cfg.StuckClaimTimeout).
		WithOptOutCheck(consentStore.IsRevoked)
	alertStore := alerts.NewStore(pool).WithDebounce(cfg.AlertDebounceWindow)
	guard := webhook.NewGuard(pool).WithReplayCache(cacheClient)
	limiter := ratelimit.NewLimiter(pool, cfg.RateLimitWindow, cfg.RateLimitMaxInbound, logger)
	nudger := nudge.NewScheduler(queueStore, logger).
		WithDelay(cfg.NudgeDelay).
		WithMetrics(engineMetrics)
	replayQueue := webhook.NewReplayQueue(cfg.ReplayCapacity, logger)
	gateway := telephony.NewTwilioGateway(cfg.TwilioAccountSID, cfg.TwilioAuthToken, logger)

	transcriptionPool := jobs.NewPool(nil, leadStore, logger).
		WithWorkers(cfg.TranscriberWorkers)

	voiceHandler := handlers.NewVoiceHandler(handlers.VoiceConfig{
		Tenants:       tenantStore,
		Guard:         guard,
		Leads:         leadStore,
		Consent:       consentStore,
		Queue:         queueStore,
		Nudges:        nudger,
		Alerts:        alertStore,
		Jobs:          transcriptionPool,
		Lookup:        gateway,
		Replay:        replayQueue,
		Logger:        logger,
		Metrics:       engineMetrics,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	smsHandler := handlers.NewSMSHandler(handlers.SMSConfig{
		Tenants:    tenantStore,
		Guard:      guard,
		Leads:      leadStore,
		Consent:    consentStore,
		Queue:      queueStore,
		Nudges:     nudger,
		Alerts:     alertStore,
		OptOuts:    cacheClient,
		Limiter:    limiter,
		Replay:     replayQueue,
		Logger:     logger,
		Metrics:    engineMetrics,
		StopReply:  cfg.StopReply,
		HelpReply:  cfg.HelpReply,
		StartReply: cfg.StartReply,
	})
	unsubscribeHandler := handlers.NewUnsubscribeHandler(handlers.UnsubscribeConfig{
		Consent: consentStore,
		Queue:   queueStore,
		Leads:   leadStore,
		OptOuts: cacheClient,
		Logger:  logger,
		Secret:  cfg.UnsubscribeSecret,
	})
	dashboardHandler := handlers.NewDashboardHandler(handlers.DashboardConfig{
		Leads:   leadStore,
		Queue:   queueStore,
		Tenants: tenantStore,
		Logger:  logger,
	})

	healthHandler := handlers.NewHealthHandler(pool, cacheClient).
		WithFlags(cfg.KillSwitch, cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "")

	r := router.New(&router.Config{
		Logger:             logger,
		Voice:              voiceHandler,
		SMS:                smsHandler,
		Unsubscribe:        unsubscribeHandler,
		Health:             healthHandler,
		Dashboard:          dashboardHandler,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		TwilioAuthToken:    cfg.TwilioAuthToken,
		PublicBaseURL:      cfg.PublicBaseURL,
		SkipSignatureCheck: cfg.SkipSignatureCheck && cfg.IsDevelopment(),
		DashboardJWTSecret: cfg.DashboardJWTSecret,
		RateLimitPerSec:    cfg.HTTPRateLimitPerSec,
		RateLimitBurst:     cfg.HTTPRateLimitBurst,
		KillSwitch:         cfg.KillSwitch,
	})
	if cfg.KillSwitch {
		logger.Warn("kill switch on, all inbound webhooks will be dropped")
	}

	sweeper := alerts.NewSweeper(alertStore, queueStore, tenantStore, logger).
		WithInterval(cfg.AlertSweepInterval).
		WithMetrics(engineMetrics)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		transcriptionPool.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		replayQueue.Run(ctx)
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	wg.Wait()
	logger.Info("server stopped")
}
