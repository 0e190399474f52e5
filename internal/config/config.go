package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/approval-service/internal/domain"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Approval     ApprovalConfig
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
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
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

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// ApprovalConfig externalizes the approval-routing and escalation policy
// knobs. Threshold values and fallback order are deployment configuration,
// not code constants.
type ApprovalConfig struct {
	DefaultEscalationTimeoutHours int
	EscalatedStepDueHours         int
	SweepSchedule                 string
	SweepLockTTLSeconds           int
	FinanceCostThreshold          float64
	ExecutiveCostThreshold        float64
	FinanceApproverID             string
	ExecutiveApproverID           string
	SpecialistApproverID          string
	PrivilegedTicketTypes         []domain.TicketType
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	financeThreshold, err := strconv.ParseFloat(getEnv("APPROVAL_FINANCE_COST_THRESHOLD", "1000"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid APPROVAL_FINANCE_COST_THRESHOLD: %w", err)
	}
	executiveThreshold, err := strconv.ParseFloat(getEnv("APPROVAL_EXECUTIVE_COST_THRESHOLD", "10000"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid APPROVAL_EXECUTIVE_COST_THRESHOLD: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "approval-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
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
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Approval: ApprovalConfig{
			DefaultEscalationTimeoutHours: getEnvAsInt("APPROVAL_ESCALATION_TIMEOUT_HOURS", 24),
			EscalatedStepDueHours:         getEnvAsInt("APPROVAL_ESCALATED_DUE_HOURS", 12),
			SweepSchedule:                 getEnv("APPROVAL_SWEEP_SCHEDULE", "@every 5m"),
			SweepLockTTLSeconds:           getEnvAsInt("APPROVAL_SWEEP_LOCK_TTL_SECONDS", 240),
			FinanceCostThreshold:          financeThreshold,
			ExecutiveCostThreshold:        executiveThreshold,
			FinanceApproverID:             os.Getenv("APPROVAL_FINANCE_APPROVER_ID"),
			ExecutiveApproverID:           os.Getenv("APPROVAL_EXECUTIVE_APPROVER_ID"),
			SpecialistApproverID:          os.Getenv("APPROVAL_SPECIALIST_APPROVER_ID"),
			PrivilegedTicketTypes:         parseTicketTypes(getEnv("APPROVAL_PRIVILEGED_TICKET_TYPES", "PROCUREMENT,LEGAL")),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
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

// SweepLockTTL returns the sweep leader-lock expiry.
func (a ApprovalConfig) SweepLockTTL() time.Duration {
	if a.SweepLockTTLSeconds <= 0 {
		return 4 * time.Minute
	}
	return time.Duration(a.SweepLockTTLSeconds) * time.Second
}

func parseTicketTypes(raw string) []domain.TicketType {
	parts := strings.Split(raw, ",")
	types := make([]domain.TicketType, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(strings.ToUpper(part))
		if trimmed == "" {
			continue
		}
		types = append(types, domain.TicketType(trimmed))
	}
	return types
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
