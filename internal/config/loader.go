package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"hookbridge/internal/constants"
)

// LoadConfig reads configFile (YAML) with environment overrides. An empty
// configFile loads defaults plus environment only.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVariables(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(v, &cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("webhook.timestamp_tolerance", constants.DefaultTimestampTolerance)
	v.SetDefault("webhook.ack_deadline", constants.DefaultAckDeadline)
	v.SetDefault("webhook.max_body_bytes", constants.DefaultMaxBodyBytes)

	v.SetDefault("deduplication.store", constants.StoreTypeMemory)
	v.SetDefault("deduplication.ttl_seconds", constants.DefaultDedupTTLSeconds)
	v.SetDefault("deduplication.fail_mode", constants.FailModeLenient)
	v.SetDefault("deduplication.sweep_interval", constants.DefaultDedupSweepInterval)

	v.SetDefault("queue.capacity", constants.DefaultQueueCapacity)
	v.SetDefault("queue.workers", constants.DefaultQueueWorkers)
	v.SetDefault("queue.handler_timeout", constants.DefaultHandlerTimeout)
	v.SetDefault("queue.sinks", []string{constants.SinkTypeLog})

	v.SetDefault("security.key_derivation", constants.KeyDerivationHKDF)

	v.SetDefault("oauth.authorize_url", constants.DefaultAuthorizeURL)
	v.SetDefault("oauth.token_url", constants.DefaultTokenURL)
	v.SetDefault("oauth.revoke_url", constants.DefaultRevokeURL)
	v.SetDefault("oauth.state_ttl", constants.DefaultOAuthStateTTL)
	v.SetDefault("oauth.http_timeout", constants.DefaultHTTPTimeout)

	v.SetDefault("credentials.store", constants.StoreTypeMemory)
	v.SetDefault("user_mapping.store", constants.StoreTypeMemory)
	v.SetDefault("user_mapping.collection", constants.DefaultUserMappingCollName)

	v.SetDefault("planner.timeout", constants.DefaultHTTPTimeout)

	v.SetDefault("database.redis.host", "localhost")
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.mongodb.database", constants.DefaultMongoDBName)

	v.SetDefault("broker.kafka.outcome_topic", constants.DefaultOutcomeTopic)
	v.SetDefault("broker.nats.outcome_subject", constants.DefaultOutcomeSubject)
	v.SetDefault("broker.nats.reconnect_wait", "2s")

	v.SetDefault("rate_limit.rps", 5.0)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("rate_limit.cleanup_interval", "5m")
	v.SetDefault("rate_limit.max_age", "10m")

	v.SetDefault("tracing.service_name", constants.ServiceName)
}

// Secrets are bound explicitly so they can be supplied through the
// environment without appearing in the YAML file.
func bindEnvVariables(v *viper.Viper) {
	_ = v.BindEnv("webhook.signing_secret", "WEBHOOK_SIGNING_SECRET")
	_ = v.BindEnv("security.encryption_secret", "SECURITY_ENCRYPTION_SECRET")
	_ = v.BindEnv("oauth.client_id", "OAUTH_CLIENT_ID")
	_ = v.BindEnv("oauth.client_secret", "OAUTH_CLIENT_SECRET")
	_ = v.BindEnv("oauth.state_secret", "OAUTH_STATE_SECRET")
	_ = v.BindEnv("oauth.redirect_uri", "OAUTH_REDIRECT_URI")
	_ = v.BindEnv("server.admin_token", "SERVER_ADMIN_TOKEN")
	_ = v.BindEnv("planner.base_url", "PLANNER_BASE_URL")
	_ = v.BindEnv("planner.api_key", "PLANNER_API_KEY")

	_ = v.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")

	_ = v.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")

	_ = v.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")

	_ = v.BindEnv("broker.nats.url", "BROKER_NATS_URL")
	_ = v.BindEnv("broker.nats.token", "BROKER_NATS_TOKEN")

	_ = v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	_ = v.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
}

func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if brokersEnv := v.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		cfg.Broker.Kafka.Brokers = splitList(brokersEnv)
	}
	if scopesEnv := v.GetString("OAUTH_SCOPES"); scopesEnv != "" {
		cfg.OAuth.Scopes = splitList(scopesEnv)
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
