package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Voice        VoiceConfig
	Conversation ConversationConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	BodyLimitMB           int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines how callers are identified. An empty JWTSecret trusts
// the gateway-provided X-User-Id header.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// VoiceConfig points at the speech and intent backends.
type VoiceConfig struct {
	ServiceURL             string
	IntentServiceURL       string
	TimeoutMS              int
	TurnTimeoutMS          int
	BreakerFailures        int
	BreakerWindowSeconds   int
	BreakerCoolDownSeconds int
}

// ConversationConfig selects and tunes the conversation store.
type ConversationConfig struct {
	Store                string
	TTLMinutes           int
	SweepIntervalSeconds int
}

// NotificationConfig controls emergency notifications.
type NotificationConfig struct {
	SNSTopicARN string
	AWSRegion   string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	voiceURL := getEnv("VOICE_SERVICE_URL", "http://localhost:8000")
	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "maintenance-voice-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 120),
			BodyLimitMB:           getEnvAsInt("HTTP_BODY_LIMIT_MB", 16),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
			Issuer:    os.Getenv("AUTH_JWT_ISSUER"),
		},
		Voice: VoiceConfig{
			ServiceURL:             voiceURL,
			IntentServiceURL:       getEnv("INTENT_SERVICE_URL", voiceURL),
			TimeoutMS:              getEnvAsInt("VOICE_TIMEOUT_MS", 30000),
			TurnTimeoutMS:          getEnvAsInt("VOICE_TURN_TIMEOUT_MS", 0),
			BreakerFailures:        getEnvAsInt("VOICE_BREAKER_FAILURE_THRESHOLD", 5),
			BreakerWindowSeconds:   getEnvAsInt("VOICE_BREAKER_WINDOW_SECONDS", 60),
			BreakerCoolDownSeconds: getEnvAsInt("VOICE_BREAKER_COOLDOWN_SECONDS", 30),
		},
		Conversation: ConversationConfig{
			Store:                strings.ToLower(getEnv("CONVERSATION_STORE", "memory")),
			TTLMinutes:           getEnvAsInt("CONVERSATION_TTL_MINUTES", 60),
			SweepIntervalSeconds: getEnvAsInt("CONVERSATION_SWEEP_INTERVAL_SECONDS", 300),
		},
		Notification: NotificationConfig{
			SNSTopicARN: os.Getenv("NOTIFY_SNS_TOPIC_ARN"),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Conversation.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid CONVERSATION_STORE %q: want memory or redis", c.Conversation.Store)
	}
	if c.Voice.TimeoutMS <= 0 {
		return fmt.Errorf("invalid VOICE_TIMEOUT_MS: %d", c.Voice.TimeoutMS)
	}
	if c.Voice.TurnTimeoutMS < 0 {
		return fmt.Errorf("invalid VOICE_TURN_TIMEOUT_MS: %d", c.Voice.TurnTimeoutMS)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout is the per-call bound of each backend call.
func (v VoiceConfig) Timeout() time.Duration {
	return time.Duration(v.TimeoutMS) * time.Millisecond
}

// TurnTimeout is the end-to-end bound of a dialogue turn; zero means derived.
func (v VoiceConfig) TurnTimeout() time.Duration {
	return time.Duration(v.TurnTimeoutMS) * time.Millisecond
}

// BreakerWindow is the rolling window for consecutive failures.
func (v VoiceConfig) BreakerWindow() time.Duration {
	return time.Duration(v.BreakerWindowSeconds) * time.Second
}

// BreakerCoolDown is how long an open breaker rejects calls.
func (v VoiceConfig) BreakerCoolDown() time.Duration {
	return time.Duration(v.BreakerCoolDownSeconds) * time.Second
}

// TTL is the conversation retention window.
func (c ConversationConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// SweepInterval is the period of the retention sweep.
func (c ConversationConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
