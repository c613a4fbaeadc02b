package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, cred WorkspaceCredential) error {
	query := `
		INSERT INTO workspace_credentials
			(tenant_id, tenant_name, encrypted_secret, bot_identity, granted_scope, installed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id) DO UPDATE SET
			tenant_name = EXCLUDED.tenant_name,
			encrypted_secret = EXCLUDED.encrypted_secret,
			bot_identity = EXCLUDED.bot_identity,
			granted_scope = EXCLUDED.granted_scope,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		cred.TenantID,
		cred.TenantName,
		cred.EncryptedSecret,
		cred.BotIdentity,
		cred.GrantedScope,
		cred.InstalledAt,
		cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID string) (*WorkspaceCredential, error) {
	query := `
		SELECT tenant_id, tenant_name, encrypted_secret, bot_identity, granted_scope, installed_at, updated_at
		FROM workspace_credentials
		WHERE tenant_id = $1
	`

	var cred WorkspaceCredential
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&cred.TenantID,
		&cred.TenantName,
		&cred.EncryptedSecret,
		&cred.BotIdentity,
		&cred.GrantedScope,
		&cred.InstalledAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query credential: %w", err)
	}
	return &cred, nil
}

func (s *PostgresStore) Delete(ctx context.Context, tenantID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workspace_credentials WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return false, fmt.Errorf("failed to delete credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}
