package usermapping

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("user mapping not found")

// UserMapping links a chat-platform user in one tenant to an account in
// the planning backend.
type UserMapping struct {
	TenantID   string    `json:"tenant_id" bson:"tenant_id"`
	UserID     string    `json:"user_id" bson:"user_id"`
	ExternalID string    `json:"external_id" bson:"external_id"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" bson:"updated_at"`
}

type Store interface {
	Put(ctx context.Context, mapping UserMapping) error
	Get(ctx context.Context, tenantID, userID string) (*UserMapping, error)
	List(ctx context.Context, tenantID string) ([]UserMapping, error)
	// DeleteTenantMappings removes every mapping of the tenant and returns
	// how many were removed.
	DeleteTenantMappings(ctx context.Context, tenantID string) (int, error)
}
