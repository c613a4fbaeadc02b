package credentials

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("credential not found")

// WorkspaceCredential is one tenant's installation. EncryptedSecret holds
// ciphertext only; the plaintext token is never stored.
type WorkspaceCredential struct {
	TenantID        string    `json:"tenant_id"`
	TenantName      string    `json:"tenant_name,omitempty"`
	EncryptedSecret string    `json:"encrypted_secret"`
	BotIdentity     string    `json:"bot_identity"`
	GrantedScope    string    `json:"granted_scope"`
	InstalledAt     time.Time `json:"installed_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Store persists credentials keyed by tenant id. Each call touches exactly
// one tenant's record.
type Store interface {
	Put(ctx context.Context, cred WorkspaceCredential) error
	Get(ctx context.Context, tenantID string) (*WorkspaceCredential, error)
	// Delete reports whether a record existed.
	Delete(ctx context.Context, tenantID string) (bool, error)
}
