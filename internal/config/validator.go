package config

import (
	"errors"
	"fmt"
	"net/url"

	"hookbridge/internal/constants"
)

const minSecretLength = 32

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateStatic checks the configuration without touching any external
// system. All violations are reported together.
func ValidateStatic(cfg *Config) error {
	var errs []error

	validators := []func(*Config) error{
		validateServer,
		validateWebhook,
		validateDeduplication,
		validateQueue,
		validateSecurity,
		validateOAuth,
		validateStores,
		validatePlanner,
		validateSinks,
	}
	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

func validateServer(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Server.Port),
		}
	}
	if cfg.Server.ReadTimeout <= 0 || cfg.Server.WriteTimeout <= 0 {
		return &ValidationError{Field: "server.read_timeout", Message: "read and write timeouts must be positive"}
	}
	return nil
}

func validateWebhook(cfg *Config) error {
	w := cfg.Webhook
	if w.SigningSecret == "" {
		return &ValidationError{Field: "webhook.signing_secret", Message: "signing secret is required"}
	}
	if w.TimestampTolerance <= 0 {
		return &ValidationError{Field: "webhook.timestamp_tolerance", Message: "tolerance must be positive"}
	}
	if w.AckDeadline <= 0 {
		return &ValidationError{Field: "webhook.ack_deadline", Message: "ack deadline must be positive"}
	}
	if w.MaxBodyBytes <= 0 {
		return &ValidationError{Field: "webhook.max_body_bytes", Message: "max body size must be positive"}
	}
	return nil
}

func validateDeduplication(cfg *Config) error {
	d := cfg.Deduplication
	if d.TTLSeconds <= 0 {
		return &ValidationError{Field: "deduplication.ttl_seconds", Message: "ttl must be positive"}
	}
	switch d.FailMode {
	case constants.FailModeLenient, constants.FailModeStrict:
	default:
		return &ValidationError{
			Field:   "deduplication.fail_mode",
			Message: fmt.Sprintf("unknown fail mode %q (supported: lenient, strict)", d.FailMode),
		}
	}
	return validateStoreType("deduplication.store", d.Store, constants.StoreTypeMemory, constants.StoreTypeRedis)
}

func validateQueue(cfg *Config) error {
	q := cfg.Queue
	if q.Capacity <= 0 {
		return &ValidationError{Field: "queue.capacity", Message: "capacity must be positive"}
	}
	if q.Workers <= 0 {
		return &ValidationError{Field: "queue.workers", Message: "workers must be positive"}
	}
	if q.HandlerTimeout < 0 {
		return &ValidationError{Field: "queue.handler_timeout", Message: "handler timeout must be non-negative"}
	}
	return nil
}

func validateSecurity(cfg *Config) error {
	s := cfg.Security
	if len(s.EncryptionSecret) < minSecretLength {
		return &ValidationError{
			Field:   "security.encryption_secret",
			Message: fmt.Sprintf("encryption secret must be at least %d bytes", minSecretLength),
		}
	}
	switch s.KeyDerivation {
	case constants.KeyDerivationHKDF, constants.KeyDerivationRaw:
		return nil
	default:
		return &ValidationError{
			Field:   "security.key_derivation",
			Message: fmt.Sprintf("unknown key derivation %q (supported: hkdf, raw)", s.KeyDerivation),
		}
	}
}

func validateOAuth(cfg *Config) error {
	o := cfg.OAuth
	if o.ClientID == "" || o.ClientSecret == "" {
		return &ValidationError{Field: "oauth.client_id", Message: "client id and client secret are required"}
	}
	if len(o.StateSecret) < minSecretLength {
		return &ValidationError{
			Field:   "oauth.state_secret",
			Message: fmt.Sprintf("state secret must be at least %d bytes", minSecretLength),
		}
	}
	for field, raw := range map[string]string{
		"oauth.authorize_url": o.AuthorizeURL,
		"oauth.token_url":     o.TokenURL,
		"oauth.revoke_url":    o.RevokeURL,
	} {
		if err := validateURL(field, raw); err != nil {
			return err
		}
	}
	if o.RedirectURI != "" {
		return validateURL("oauth.redirect_uri", o.RedirectURI)
	}
	return nil
}

func validateStores(cfg *Config) error {
	if err := validateStoreType("credentials.store", cfg.Credentials.Store,
		constants.StoreTypeMemory, constants.StoreTypeRedis, constants.StoreTypePostgres); err != nil {
		return err
	}
	if cfg.Credentials.Store == constants.StoreTypePostgres && cfg.Database.Postgres.Host == "" {
		return &ValidationError{Field: "database.postgres.host", Message: "postgres host is required for the postgres credential store"}
	}
	if err := validateStoreType("user_mapping.store", cfg.UserMapping.Store,
		constants.StoreTypeMemory, constants.StoreTypeMongoDB); err != nil {
		return err
	}
	if cfg.UserMapping.Store == constants.StoreTypeMongoDB && cfg.Database.MongoDB.URI == "" {
		return &ValidationError{Field: "database.mongodb.uri", Message: "mongodb uri is required for the mongodb user mapping store"}
	}
	return nil
}

func validatePlanner(cfg *Config) error {
	if cfg.Planner.BaseURL == "" {
		return nil
	}
	return validateURL("planner.base_url", cfg.Planner.BaseURL)
}

func validateSinks(cfg *Config) error {
	for _, sink := range cfg.Queue.Sinks {
		switch sink {
		case constants.SinkTypeLog:
		case constants.SinkTypeKafka:
			if len(cfg.Broker.Kafka.Brokers) == 0 {
				return &ValidationError{Field: "broker.kafka.brokers", Message: "at least one Kafka broker is required for the kafka sink"}
			}
		case constants.SinkTypeNATS:
			if cfg.Broker.NATS.URL == "" {
				return &ValidationError{Field: "broker.nats.url", Message: "nats url is required for the nats sink"}
			}
		default:
			return &ValidationError{
				Field:   "queue.sinks",
				Message: fmt.Sprintf("unknown sink %q (supported: log, kafka, nats)", sink),
			}
		}
	}
	return nil
}

func validateStoreType(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("unknown store %q (supported: %v)", value, allowed),
	}
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ValidationError{Field: field, Message: fmt.Sprintf("invalid absolute URL %q", raw)}
	}
	return nil
}
