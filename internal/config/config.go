package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service. It is
// constructed once at startup and treated as immutable afterwards;
// no component reads the environment past this point.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Outbox   OutboxConfig
	Evidence EvidenceConfig
	Sms      SmsConfig
	Intake   IntakeConfig
	Policy   PolicyConfig
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

// AuthConfig defines token verification parameters and the operator
// override secret for force-close.
type AuthConfig struct {
	JWTSecret            string
	JWTIssuer            string
	JWTAudience          string
	ForceCloseCodeBcrypt string
}

// OutboxConfig tunes the side-effect delivery worker.
type OutboxConfig struct {
	PollInterval time.Duration
	BatchLimit   int
	MaxAttempts  int
	BaseRetry    time.Duration
	MaxRetry     time.Duration
	SendTimeout  time.Duration
}

// EvidenceConfig controls strict-integrity evidence verification.
type EvidenceConfig struct {
	StrictMode      bool
	RequireChecksum bool
	AllowedSchemes  []string
	ProbeTimeout    time.Duration
}

// SmsConfig controls the notification channel adapter.
type SmsConfig struct {
	Enabled bool
	DryRun  bool
}

// IntakeConfig holds blind-intake confidence policy minima.
type IntakeConfig struct {
	MinIdentityConfidence       float64
	MinClassificationConfidence float64
}

// PolicyConfig points at externally configured rule data.
type PolicyConfig struct {
	IncidentTemplateFile string
	RiskRuleFile         string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	// Evidence enforcement fails closed in production: unset flags
	// mean "required" there and "relaxed" everywhere else.
	appEnv := getEnv("APP_ENV", "development")
	enforceByDefault := appEnv == "production"

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "dispatch-service"),
			Env:                   appEnv,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("DISPATCH_DATABASE_URL"),
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
			JWTSecret:            getEnv("DISPATCH_AUTH_JWT_SECRET", "dev-secret"),
			JWTIssuer:            os.Getenv("DISPATCH_AUTH_JWT_ISSUER"),
			JWTAudience:          os.Getenv("DISPATCH_AUTH_JWT_AUDIENCE"),
			ForceCloseCodeBcrypt: os.Getenv("DISPATCH_FORCE_CLOSE_CODE_BCRYPT"),
		},
		Outbox: OutboxConfig{
			PollInterval: getEnvAsDuration("DISPATCH_OUTBOX_POLL_MS", 2000*time.Millisecond),
			BatchLimit:   getEnvAsInt("DISPATCH_OUTBOX_BATCH_LIMIT", 20),
			MaxAttempts:  getEnvAsInt("DISPATCH_OUTBOX_MAX_ATTEMPTS", 6),
			BaseRetry:    getEnvAsDuration("DISPATCH_OUTBOX_RETRY_BASE_MS", 5*time.Second),
			MaxRetry:     getEnvAsDuration("DISPATCH_OUTBOX_RETRY_MAX_MS", 5*time.Minute),
			SendTimeout:  getEnvAsDuration("DISPATCH_OUTBOX_SEND_TIMEOUT_MS", 10*time.Second),
		},
		Evidence: EvidenceConfig{
			StrictMode:      getEnvAsBool("DISPATCH_EVIDENCE_REQUIRE_HEAD", enforceByDefault),
			RequireChecksum: getEnvAsBool("REQUIRE_EVIDENCE_CHECKSUM", enforceByDefault),
			AllowedSchemes:  getEnvAsList("DISPATCH_EVIDENCE_ALLOWED_SCHEMES", []string{"s3"}),
			ProbeTimeout:    getEnvAsDuration("DISPATCH_EVIDENCE_PROBE_TIMEOUT_MS", 5*time.Second),
		},
		Sms: SmsConfig{
			Enabled: getEnvAsBool("DISPATCH_SMS_ENABLED", false),
			DryRun:  getEnvAsBool("DISPATCH_SMS_DRY_RUN", true),
		},
		Intake: IntakeConfig{
			MinIdentityConfidence:       getEnvAsFloat("DISPATCH_INTAKE_MIN_IDENTITY_CONFIDENCE", 80),
			MinClassificationConfidence: getEnvAsFloat("DISPATCH_INTAKE_MIN_CLASSIFICATION_CONFIDENCE", 80),
		},
		Policy: PolicyConfig{
			IncidentTemplateFile: getEnv("DISPATCH_INCIDENT_TEMPLATE_FILE", "policy/incident_type_templates.v1.json"),
			RiskRuleFile:         getEnv("DISPATCH_RISK_RULE_FILE", "policy/risk_rules.v1.json"),
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

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
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

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	ms := getEnvAsInt(key, 0)
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
