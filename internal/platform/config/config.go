package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	pstrings "biblioteca/pkg/platform/strings"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	LogLevel      string
	JWTSigningKey string
	TokenTTL      time.Duration
	DatabaseURL   string
	Redis         RedisConfig
	Kafka         KafkaConfig
	Lending       LendingConfig
	LoginRate     RateConfig
	MetricsToken  string
}

// RedisConfig configures the optional dashboard cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DashboardTTL time.Duration
}

// KafkaConfig configures the optional audit event stream.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// LendingConfig holds the knobs of the loan lifecycle. Amounts are in
// currency subunits.
type LendingConfig struct {
	FinePerDay      int64
	DefaultLoanDays int
	MaxLoanDays     int
	Location        *time.Location
}

// RateConfig bounds requests per client on throttled routes.
type RateConfig struct {
	PerMinute int
	Burst     int
}

const (
	DefaultFinePerDay      = 1000
	DefaultLoanDays        = 14
	MaxLoanDays            = 60
	defaultTimezone        = "America/Santiago"
	defaultTokenTTL        = 8 * time.Hour
	defaultDashboardTTL    = 30 * time.Second
	defaultAuditTopic      = "biblioteca.audit"
	defaultLoginsPerMinute = 10
)

// FromEnv builds a Server config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present; real
// environment variables win over it.
func FromEnv() Server {
	_ = godotenv.Load()

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          envString("BIBLIOTECA_ADDR", ":8080"),
		LogLevel:      envString("LOG_LEVEL", "info"),
		JWTSigningKey: jwtSigningKey,
		TokenTTL:      envDuration("TOKEN_TTL", defaultTokenTTL),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			DashboardTTL: envDuration("DASHBOARD_CACHE_TTL", defaultDashboardTTL),
		},
		Kafka: KafkaConfig{
			Brokers:    envList("KAFKA_BROKERS"),
			AuditTopic: envString("KAFKA_AUDIT_TOPIC", defaultAuditTopic),
		},
		Lending: LendingConfig{
			FinePerDay:      int64(envInt("FINE_PER_DAY", DefaultFinePerDay)),
			DefaultLoanDays: envInt("DEFAULT_LOAN_DAYS", DefaultLoanDays),
			MaxLoanDays:     envInt("MAX_LOAN_DAYS", MaxLoanDays),
			Location:        envLocation("LIBRARY_TIMEZONE", defaultTimezone),
		},
		LoginRate: RateConfig{
			PerMinute: envInt("LOGIN_RATE_PER_MINUTE", defaultLoginsPerMinute),
			Burst:     envInt("LOGIN_RATE_BURST", defaultLoginsPerMinute),
		},
		MetricsToken: os.Getenv("METRICS_TOKEN"),
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envList(key string) []string {
	return pstrings.SplitList(os.Getenv(key))
}

func envLocation(key, fallback string) *time.Location {
	if loc, err := time.LoadLocation(envString(key, fallback)); err == nil {
		return loc
	}
	return time.UTC
}
