package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AlibekovAA/safecheck/internal/common/constants"
)

var (
	ErrMissingRequiredEnv = errors.New("missing required environment variable")
	ErrInvalidJWTSecret   = errors.New("JWT_SECRET must be at least 32 bytes")
	ErrInvalidThreshold   = errors.New("invalid timeout threshold configuration")
)

type ServerConfig struct {
	HTTPPort                string
	DatabaseURL             string
	JWTSecret               string
	AccessTokenTTL          time.Duration
	RefreshTokenTTL         time.Duration
	MaxRefreshTokensPerUser int
	RequestTimeout          time.Duration

	DefaultTimeoutThreshold int
	MaxTimeoutThreshold     int
	FreshAccountGrace       time.Duration

	WebSocketWriteWait  time.Duration
	WebSocketPongWait   time.Duration
	WebSocketPingPeriod time.Duration
	WebSocketMaxSubs    int

	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
	CircuitBreakerReset     time.Duration

	RunMigrations     bool
	SeedDemoUser      bool
	DemoPassword      string
	PublicBaseURL     string
	AllowedOrigins    []string
	TrustProxyHeaders bool

	LogDir   string
	LogLevel string
}

func LoadServerConfig() (ServerConfig, error) {
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return ServerConfig{}, err
	}

	if err := validateJWTSecret(jwtSecret); err != nil {
		return ServerConfig{}, err
	}

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return ServerConfig{}, err
	}

	cfg := ServerConfig{
		HTTPPort:                getEnv("HTTP_PORT", constants.DefaultHTTPPort),
		DatabaseURL:             databaseURL,
		JWTSecret:               jwtSecret,
		AccessTokenTTL:          getDurationEnv("ACCESS_TOKEN_TTL", constants.DefaultAccessTokenTTL),
		RefreshTokenTTL:         getDurationEnv("REFRESH_TOKEN_TTL", constants.DefaultRefreshTokenTTL),
		MaxRefreshTokensPerUser: getIntEnv("MAX_REFRESH_TOKENS_PER_USER", constants.DefaultMaxRefreshTokensPerUser),
		RequestTimeout:          getDurationEnv("REQUEST_TIMEOUT", constants.DefaultRequestTimeout),

		DefaultTimeoutThreshold: getIntEnv("DEFAULT_TIMEOUT_THRESHOLD", constants.DefaultTimeoutThreshold),
		MaxTimeoutThreshold:     getIntEnv("MAX_TIMEOUT_THRESHOLD", constants.MaxTimeoutThreshold),
		FreshAccountGrace:       getDurationEnv("FRESH_ACCOUNT_GRACE", constants.DefaultFreshAccountGrace),

		WebSocketWriteWait:  getDurationEnv("WS_WRITE_WAIT", constants.DefaultWebSocketWriteWait),
		WebSocketPongWait:   getDurationEnv("WS_PONG_WAIT", constants.DefaultWebSocketPongWait),
		WebSocketPingPeriod: getDurationEnv("WS_PING_PERIOD", constants.DefaultWebSocketPingPeriod),
		WebSocketMaxSubs:    getIntEnv("WS_MAX_SUBSCRIPTIONS", constants.DefaultWebSocketMaxSubs),

		CircuitBreakerThreshold: getIntEnv("CIRCUIT_BREAKER_THRESHOLD", constants.DefaultCircuitBreakerThreshold),
		CircuitBreakerTimeout:   getDurationEnv("CIRCUIT_BREAKER_TIMEOUT", constants.DefaultCircuitBreakerTimeout),
		CircuitBreakerReset:     getDurationEnv("CIRCUIT_BREAKER_RESET", constants.DefaultCircuitBreakerReset),

		RunMigrations:     getBoolEnv("RUN_MIGRATIONS", true),
		SeedDemoUser:      getBoolEnv("SEED_DEMO_USER", false),
		DemoPassword:      getEnv("DEMO_PASSWORD", ""),
		PublicBaseURL:     strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+constants.DefaultHTTPPort), "/"),
		AllowedOrigins:    getListEnv("WS_ALLOWED_ORIGINS"),
		TrustProxyHeaders: getBoolEnv("TRUST_PROXY_HEADERS", false),

		LogDir:   getEnv("LOG_DIR", ""),
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}

	if err := validateThresholds(cfg.DefaultTimeoutThreshold, cfg.MaxTimeoutThreshold); err != nil {
		return ServerConfig{}, err
	}

	if cfg.SeedDemoUser && cfg.DemoPassword == "" {
		return ServerConfig{}, fmt.Errorf("%w: DEMO_PASSWORD (required with SEED_DEMO_USER)", ErrMissingRequiredEnv)
	}

	if cfg.WebSocketPingPeriod >= cfg.WebSocketPongWait {
		cfg.WebSocketPingPeriod = cfg.WebSocketPongWait * 9 / 10
	}

	return cfg, nil
}

func validateJWTSecret(secret string) error {
	if len(secret) < constants.JWTSecretMinLength {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidJWTSecret, len(secret))
	}
	return nil
}

func validateThresholds(def, max int) error {
	if def <= 0 || max <= 0 {
		return fmt.Errorf("%w: thresholds must be positive", ErrInvalidThreshold)
	}
	if def > max {
		return fmt.Errorf("%w: default %d exceeds max %d", ErrInvalidThreshold, def, max)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func mustEnv(key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingRequiredEnv, key)
	}
	return v, nil
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getIntEnv(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBoolEnv(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getListEnv(key string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
