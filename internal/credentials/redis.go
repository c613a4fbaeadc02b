package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"hookbridge/internal/constants"
)

// RedisStore keeps each credential as a JSON string under
// credential:<tenant_id>, with no expiry.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func credentialKey(tenantID string) string {
	return constants.CacheKeyPrefixCredential + tenantID
}

func (s *RedisStore) Put(ctx context.Context, cred WorkspaceCredential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	if err := s.client.Set(ctx, credentialKey(cred.TenantID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, tenantID string) (*WorkspaceCredential, error) {
	data, err := s.client.Get(ctx, credentialKey(tenantID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	var cred WorkspaceCredential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &cred, nil
}

func (s *RedisStore) Delete(ctx context.Context, tenantID string) (bool, error) {
	n, err := s.client.Del(ctx, credentialKey(tenantID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete credential: %w", err)
	}
	return n > 0, nil
}
