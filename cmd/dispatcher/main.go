// The dispatcher drains the outbound message queue: it claims pending
// rows, runs the safety gate, and hands messages to the SMS provider.
// Run it alongside the API server; multiple instances are safe because
// claims use row locks.
package main

import (
	"context"
	"crypto/tls"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/leadline/leadline/internal/cache"
	appconfig "github.com/leadline/leadline/internal/config"
	"github.com/leadline/leadline/internal/consent"
	"github.com/leadline/leadline/internal/leads"
	"github.com/leadline/leadline/internal/observability/metrics"
	"github.com/leadline/leadline/internal/outbound"
	"github.com/leadline/leadline/internal/safety"
	"github.com/leadline/leadline/internal/telephony"
	"github.com/leadline/leadline/internal/tenants"
	"github.com/leadline/leadline/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting leadline dispatcher", "env", cfg.Env)

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

	engineMetrics := metrics.NewEngineMetrics(nil)

	tenantStore := tenants.NewStore(pool)
	leadStore := leads.NewStore(pool)
	consentStore := consent.NewStore(pool).
		WithImpliedTTL(time.Duration(cfg.ImpliedConsentDays) * 24 * time.Hour)
	queueStore := outbound.NewStore(pool).
		WithStuckTimeout(cfg.StuckClaimTimeout).
		WithOptOutCheck(consentStore.IsRevoked)

	window, err := safety.ParseWindow(cfg.QuietHoursStart, cfg.QuietHoursEnd)
	if err != nil {
		logger.Error("invalid quiet hours", "error", err)
		os.Exit(1)
	}
	gate := safety.NewGate(consentStore, queueStore, logger).
		WithOptOutCache(cache.New(rdb, cfg.WebhookReplayTTL)).
		WithWindow(window).
		WithDuplicateWindow(cfg.DuplicateSendWindow)

	gateway := telephony.NewTwilioGateway(cfg.TwilioAccountSID, cfg.TwilioAuthToken, logger)

	dispatcher := outbound.NewDispatcher(queueStore, gateway, gate, tenantStore, logger).
		WithBatchSize(cfg.DispatchBatchSize).
		WithPollInterval(cfg.DispatchPollInterval, cfg.DispatchMaxInterval).
		WithPermanentChecker(telephony.IsPermanent).
		WithLeadStore(leadStore).
		WithSafeMode(cfg.SafeMode).
		WithMetrics(engineMetrics)
	if cfg.SafeMode {
		logger.Warn("safe mode on, queued sends will be held")
	}

	dispatcher.Run(ctx)
	logger.Info("dispatcher stopped")
}
