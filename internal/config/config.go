package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	// SkipSignatureCheck disables webhook signature validation. Only
	// honored when Env is development.
	SkipSignatureCheck bool

	StopReply  string
	HelpReply  string
	StartReply string

	// SafeMode holds every queued send unsent; KillSwitch drops all
	// inbound webhook processing.
	SafeMode   bool
	KillSwitch bool

	DispatchBatchSize    int
	DispatchPollInterval time.Duration
	DispatchMaxInterval  time.Duration
	StuckClaimTimeout    time.Duration
	MaxSendAttempts      int

	AlertDebounceWindow time.Duration
	AlertSweepInterval  time.Duration

	NudgeDelay time.Duration

	QuietHoursStart string
	QuietHoursEnd   string

	RateLimitWindow     time.Duration
	RateLimitMaxInbound int
	HTTPRateLimitPerSec float64
	HTTPRateLimitBurst  int
	DuplicateSendWindow time.Duration
	ImpliedConsentDays  int
	WebhookReplayTTL    time.Duration
	ReplayCapacity      int
	DashboardJWTSecret  string
	UnsubscribeSecret   string
	TranscriberWorkers  int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           strings.ToLower(strings.TrimSpace(getEnv("ENV", "development"))),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		TwilioAccountSID:   getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:    getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:   getEnv("TWILIO_FROM_NUMBER", ""),
		SkipSignatureCheck: getEnvAsBool("SKIP_SIGNATURE_CHECK", false),

		StopReply:  getEnv("STOP_REPLY", "You have been unsubscribed and will receive no further messages."),
		HelpReply:  getEnv("HELP_REPLY", "Reply STOP to unsubscribe. Msg & data rates may apply."),
		StartReply: getEnv("START_REPLY", "You are resubscribed and will receive messages again. Reply STOP to opt out."),

		SafeMode:   getEnvAsBool("SAFE_MODE", false),
		KillSwitch: getEnvAsBool("KILL_SWITCH", false),

		DispatchBatchSize:    getEnvAsInt("DISPATCH_BATCH_SIZE", 10),
		DispatchPollInterval: getEnvAsDuration("DISPATCH_POLL_INTERVAL", 100*time.Millisecond),
		DispatchMaxInterval:  getEnvAsDuration("DISPATCH_MAX_INTERVAL", 2*time.Second),
		StuckClaimTimeout:    getEnvAsDuration("STUCK_CLAIM_TIMEOUT", 5*time.Minute),
		MaxSendAttempts:      getEnvAsInt("MAX_SEND_ATTEMPTS", 5),

		AlertDebounceWindow: getEnvAsDuration("ALERT_DEBOUNCE_WINDOW", 30*time.Second),
		AlertSweepInterval:  getEnvAsDuration("ALERT_SWEEP_INTERVAL", 5*time.Second),

		NudgeDelay: getEnvAsDuration("NUDGE_DELAY", 15*time.Minute),

		QuietHoursStart: getEnv("QUIET_HOURS_START", "08:00"),
		QuietHoursEnd:   getEnv("QUIET_HOURS_END", "21:00"),

		RateLimitWindow:     getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitMaxInbound: getEnvAsInt("RATE_LIMIT_MAX_INBOUND", 10),
		HTTPRateLimitPerSec: getEnvAsFloat("HTTP_RATE_LIMIT_PER_SEC", 20),
		HTTPRateLimitBurst:  getEnvAsInt("HTTP_RATE_LIMIT_BURST", 40),
		DuplicateSendWindow: getEnvAsDuration("DUPLICATE_SEND_WINDOW", time.Hour),
		ImpliedConsentDays:  getEnvAsInt("IMPLIED_CONSENT_DAYS", 730),
		WebhookReplayTTL:    getEnvAsDuration("WEBHOOK_REPLAY_TTL", 10*time.Minute),
		ReplayCapacity:      getEnvAsInt("WEBHOOK_REPLAY_CAPACITY", 1000),
		DashboardJWTSecret:  getEnv("DASHBOARD_JWT_SECRET", ""),
		UnsubscribeSecret:   getEnv("UNSUBSCRIBE_SECRET", ""),
		TranscriberWorkers:  getEnvAsInt("TRANSCRIBER_WORKERS", 2),
	}
}

// IsDevelopment reports whether the app runs in a development environment.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev" || c.Env == "local"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
