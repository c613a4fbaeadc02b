package constants

import "time"

const (
	ServiceName = "bridge-service"
)

const (
	HeaderSignatureTimestamp = "X-Signature-Timestamp"
	HeaderSignature          = "X-Signature"
	HeaderRequestID          = "X-Request-ID"
	HeaderAdminToken         = "X-Admin-Token"
)

const (
	SignatureVersion          = "v0"
	DefaultTimestampTolerance = 300 * time.Second
	DefaultAckDeadline        = 3 * time.Second
	DefaultMaxBodyBytes       = 1 << 20
)

const (
	CacheKeyPrefixDedup      = "dedup:"
	CacheKeyPrefixCredential = "credential:"
	CacheKeyPrefixOAuthState = "oauth_state:"
)

const (
	DefaultDedupTTLSeconds     = 3600
	DefaultDedupSweepInterval  = time.Minute
	DedupCacheMetricsInterval  = 30 * time.Second
	DefaultQueueCapacity       = 1000
	DefaultQueueWorkers        = 4
	DefaultHandlerTimeout      = 30 * time.Second
	DefaultOAuthStateTTL       = 10 * time.Minute
	DefaultHTTPTimeout         = 10 * time.Second
	DefaultPlannerEventsPath   = "/v1/events"
	DefaultMongoDBName         = "hookbridge"
	DefaultUserMappingCollName = "user_mappings"
)

const (
	DefaultAuthorizeURL = "https://slack.com/oauth/v2/authorize"
	DefaultTokenURL     = "https://slack.com/api/oauth.v2.access"
	DefaultRevokeURL    = "https://slack.com/api/auth.revoke"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultOutcomeTopic   = "processing_outcomes"
	DefaultOutcomeSubject = "hookbridge.outcomes"
)

const (
	ShutdownTimeout = 10 * time.Second
)

const (
	FailModeLenient = "lenient"
	FailModeStrict  = "strict"
)

const (
	StoreTypeMemory   = "memory"
	StoreTypeRedis    = "redis"
	StoreTypePostgres = "postgres"
	StoreTypeMongoDB  = "mongodb"
)

const (
	KeyDerivationHKDF = "hkdf"
	KeyDerivationRaw  = "raw"
)

const (
	SinkTypeLog   = "log"
	SinkTypeKafka = "kafka"
	SinkTypeNATS  = "nats"
)
