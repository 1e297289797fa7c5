package constants

import "time"

const (
	UsernameMinLength    = 3
	UsernameMaxLength    = 32
	PasswordMinLength    = 8
	PasswordMaxLength    = 72
	DisplayNameMaxLength = 64
	ContactNameMaxLength = 64
	PhoneMinLength       = 5
	PhoneMaxLength       = 32
	JWTSecretMinLength   = 32
	RefreshTokenSize     = 32

	DefaultMaxRequestSize = 64 * 1024

	DefaultTimeoutThreshold  = 86400
	MaxTimeoutThreshold      = 30 * 86400
	DefaultFreshAccountGrace = 5 * time.Second

	RefreshTokenCleanupInterval = 1 * time.Hour

	ChangeFeedChannel          = "checkin_changes"
	ChangeFeedLoadTimeout      = 5 * time.Second
	ChangeFeedReconnectBase    = 500 * time.Millisecond
	ChangeFeedReconnectMax     = 30 * time.Second
	StatusStreamMaxMessageSize = 4096

	ViewTickInterval        = 1 * time.Second
	ViewPollInterval        = 5 * time.Second
	ViewMaxPollInterval     = 60 * time.Second
	ViewResubscribeDelay    = 1 * time.Second
	ViewMaxResubscribeDelay = 60 * time.Second

	ClientHTTPTimeout     = 15 * time.Second
	ClientDefaultServer   = "http://localhost:8080"
	ClientDefaultSession  = "default"
	ClientDataDir         = ".safecheck"
	ClientDatabaseFile    = "safecheck.db"
	ClientShutdownTimeout = 3 * time.Second

	DBPoolMaxOpenConns    = 25
	DBPoolMinOpenConns    = 5
	DBPoolConnMaxLifetime = 5 * time.Minute
	DBPoolConnMaxIdleTime = 10 * time.Minute
	DBPoolHealthCheck     = 1 * time.Minute
	DBPoolConnectTimeout  = 15 * time.Second
	DBPoolMaxAttempts     = 10
	DBPoolRetryDelay      = 1 * time.Second
	DBPoolMetricsInterval = 30 * time.Second
	DBQueryTimeout        = 30 * time.Second

	ServerReadHeaderTimeout = 10 * time.Second
	ServerReadTimeout       = 30 * time.Second
	ServerWriteTimeout      = 30 * time.Second
	ServerIdleTimeout       = 120 * time.Second

	ShutdownTimeout = 30 * time.Second
	DrainTimeout    = 10 * time.Second

	DefaultHTTPPort = "8080"

	DefaultCircuitBreakerThreshold = 50
	DefaultCircuitBreakerTimeout   = 15 * time.Second
	DefaultCircuitBreakerReset     = 10 * time.Second

	DefaultRequestTimeout          = 5 * time.Second
	DefaultAccessTokenTTL          = 15 * time.Minute
	DefaultRefreshTokenTTL         = 30 * 24 * time.Hour
	DefaultMaxRefreshTokensPerUser = 5

	DefaultWebSocketWriteWait  = 10 * time.Second
	DefaultWebSocketPongWait   = 60 * time.Second
	DefaultWebSocketPingPeriod = 54 * time.Second
	DefaultWebSocketMaxSubs    = 10000
	WebSocketReadBufferSize    = 1024
	WebSocketWriteBufferSize   = 1024

	RateLimitCleanupInterval = 5 * time.Minute

	RateLimitLoginRequestsPerSecond    = 0.2
	RateLimitLoginBurst                = 5
	RateLimitRegisterRequestsPerSecond = 0.05
	RateLimitRegisterBurst             = 3
	RateLimitRefreshRequestsPerSecond  = 0.5
	RateLimitRefreshBurst              = 10
	RateLimitLogoutRequestsPerSecond   = 1
	RateLimitLogoutBurst               = 10
	RateLimitCheckInRequestsPerSecond  = 1
	RateLimitCheckInBurst              = 5
	RateLimitStatusRequestsPerSecond   = 5
	RateLimitStatusBurst               = 20
	RateLimitGeneralRequestsPerSecond  = 10
	RateLimitGeneralBurst              = 30

	LoggerMaxSize    = 100
	LoggerMaxBackups = 3
	LoggerMaxAge     = 28
)
