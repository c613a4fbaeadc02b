package config

import (
	"fmt"
	"net/url"
	"time"

	"hookbridge/pkg/circuitbreaker"
	"hookbridge/pkg/ratelimit"
	"hookbridge/pkg/retry"
	"hookbridge/pkg/tracing"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Webhook        WebhookConfig        `mapstructure:"webhook"`
	Deduplication  DeduplicationConfig  `mapstructure:"deduplication"`
	Queue          QueueConfig          `mapstructure:"queue"`
	Security       SecurityConfig       `mapstructure:"security"`
	OAuth          OAuthConfig          `mapstructure:"oauth"`
	Credentials    CredentialsConfig    `mapstructure:"credentials"`
	UserMapping    UserMappingConfig    `mapstructure:"user_mapping"`
	Planner        PlannerConfig        `mapstructure:"planner"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AdminToken   string        `mapstructure:"admin_token"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WebhookConfig struct {
	SigningSecret      string        `mapstructure:"signing_secret"`
	TimestampTolerance time.Duration `mapstructure:"timestamp_tolerance"`
	AckDeadline        time.Duration `mapstructure:"ack_deadline"`
	MaxBodyBytes       int64         `mapstructure:"max_body_bytes"`
}

type DeduplicationConfig struct {
	Store         string        `mapstructure:"store"`
	TTLSeconds    int           `mapstructure:"ttl_seconds"`
	FailMode      string        `mapstructure:"fail_mode"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

func (c DeduplicationConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type QueueConfig struct {
	Capacity       int           `mapstructure:"capacity"`
	Workers        int           `mapstructure:"workers"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
	DropFilters    []string      `mapstructure:"drop_filters"`
	Sinks          []string      `mapstructure:"sinks"`
}

type SecurityConfig struct {
	EncryptionSecret string `mapstructure:"encryption_secret"`
	KeyDerivation    string `mapstructure:"key_derivation"`
}

type OAuthConfig struct {
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	RedirectURI  string        `mapstructure:"redirect_uri"`
	Scopes       []string      `mapstructure:"scopes"`
	AuthorizeURL string        `mapstructure:"authorize_url"`
	TokenURL     string        `mapstructure:"token_url"`
	RevokeURL    string        `mapstructure:"revoke_url"`
	StateSecret  string        `mapstructure:"state_secret"`
	StateTTL     time.Duration `mapstructure:"state_ttl"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
	SuccessURL   string        `mapstructure:"success_url"`
	Retry        RetryConfig   `mapstructure:"retry"`
}

type CredentialsConfig struct {
	Store string `mapstructure:"store"`
}

type UserMappingConfig struct {
	Store      string `mapstructure:"store"`
	Collection string `mapstructure:"collection"`
}

type PlannerConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retry   RetryConfig   `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

func (c RetryConfig) Policy() retry.Policy {
	policy := retry.DefaultPolicy()
	if c.MaxAttempts > 0 {
		policy.MaxAttempts = c.MaxAttempts
	}
	if c.InitialInterval > 0 {
		policy.InitialInterval = c.InitialInterval
	}
	if c.MaxInterval > 0 {
		policy.MaxInterval = c.MaxInterval
	}
	if c.Multiplier > 0 {
		policy.Multiplier = c.Multiplier
	}
	if c.MaxElapsedTime > 0 {
		policy.MaxElapsedTime = c.MaxElapsedTime
	}
	return policy
}

type DatabaseConfig struct {
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
	MongoDB       MongoDBConfig  `mapstructure:"mongodb"`
	RunMigrations bool           `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
	NATS  NATSConfig  `mapstructure:"nats"`
}

type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	OutcomeTopic string   `mapstructure:"outcome_topic"`
}

type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	OutcomeSubject string        `mapstructure:"outcome_subject"`
	Token          string        `mapstructure:"token"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

func (c CircuitBreakerConfig) Overrides() circuitbreaker.Overrides {
	return circuitbreaker.Overrides{
		Enabled:      c.Enabled,
		MaxRequests:  c.MaxRequests,
		Interval:     c.Interval,
		Timeout:      c.Timeout,
		FailureRatio: c.FailureRatio,
		MinRequests:  c.MinRequests,
	}
}

type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RPS             float64       `mapstructure:"rps"`
	Burst           int           `mapstructure:"burst"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxAge          time.Duration `mapstructure:"max_age"`
}

func (c RateLimitConfig) Limiter() ratelimit.RateLimitConfig {
	return ratelimit.RateLimitConfig{
		RPS:             c.RPS,
		Burst:           c.Burst,
		CleanupInterval: c.CleanupInterval,
		MaxAge:          c.MaxAge,
	}
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func (c TracingConfig) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:      c.Enabled,
		ServiceName:  c.ServiceName,
		Endpoint:     c.OTLP.Endpoint,
		Insecure:     c.OTLP.Insecure,
		SamplerType:  c.Sampler.Type,
		SamplerParam: c.Sampler.Param,
	}
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
