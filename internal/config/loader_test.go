package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookbridge/internal/constants"
)

const validYAML = `
server:
  port: 9090
webhook:
  signing_secret: "ssssssssssssssssssssssssssssssss"
security:
  encryption_secret: "0123456789abcdef0123456789abcdef"
oauth:
  client_id: "cid"
  client_secret: "csecret"
  state_secret: "state-secret-state-secret-state-secret"
  scopes: ["chat:write", "app_mentions:read"]
queue:
  workers: 8
  drop_filters:
    - 'has(payload.bot_id)'
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 300*time.Second, cfg.Webhook.TimestampTolerance)
	assert.Equal(t, 3*time.Second, cfg.Webhook.AckDeadline)
	assert.Equal(t, constants.FailModeLenient, cfg.Deduplication.FailMode)
	assert.Equal(t, 3600, cfg.Deduplication.TTLSeconds)
	assert.Equal(t, time.Hour, cfg.Deduplication.TTL())
	assert.Equal(t, 8, cfg.Queue.Workers)
	assert.Equal(t, constants.DefaultQueueCapacity, cfg.Queue.Capacity)
	assert.Equal(t, []string{"has(payload.bot_id)"}, cfg.Queue.DropFilters)
	assert.Equal(t, constants.KeyDerivationHKDF, cfg.Security.KeyDerivation)
	assert.Equal(t, constants.DefaultAuthorizeURL, cfg.OAuth.AuthorizeURL)
	assert.Equal(t, []string{"chat:write", "app_mentions:read"}, cfg.OAuth.Scopes)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("WEBHOOK_SIGNING_SECRET", "from-env-from-env-from-env-from-env")
	t.Setenv("DEDUPLICATION_FAIL_MODE", "strict")
	t.Setenv("OAUTH_SCOPES", "chat:write, commands")

	cfg, err := LoadConfig(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "from-env-from-env-from-env-from-env", cfg.Webhook.SigningSecret)
	assert.Equal(t, constants.FailModeStrict, cfg.Deduplication.FailMode)
	assert.Equal(t, []string{"chat:write", "commands"}, cfg.OAuth.Scopes)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateStatic(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "short encryption secret",
			mutate:    func(c *Config) { c.Security.EncryptionSecret = "short" },
			wantField: "security.encryption_secret",
		},
		{
			name:      "unknown fail mode",
			mutate:    func(c *Config) { c.Deduplication.FailMode = "maybe" },
			wantField: "deduplication.fail_mode",
		},
		{
			name:      "missing signing secret",
			mutate:    func(c *Config) { c.Webhook.SigningSecret = "" },
			wantField: "webhook.signing_secret",
		},
		{
			name:      "postgres store without host",
			mutate:    func(c *Config) { c.Credentials.Store = constants.StoreTypePostgres },
			wantField: "database.postgres.host",
		},
		{
			name:      "kafka sink without brokers",
			mutate:    func(c *Config) { c.Queue.Sinks = []string{constants.SinkTypeKafka} },
			wantField: "broker.kafka.brokers",
		},
		{
			name:      "relative token url",
			mutate:    func(c *Config) { c.OAuth.TokenURL = "/oauth" },
			wantField: "oauth.token_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, validYAML))
			require.NoError(t, err)

			tt.mutate(cfg)
			err = ValidateStatic(cfg)
			require.Error(t, err)

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.True(t, strings.Contains(err.Error(), tt.wantField), err.Error())
		})
	}
}
