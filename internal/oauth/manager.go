package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"hookbridge/internal/config"
	"hookbridge/internal/constants"
	"hookbridge/internal/credentials"
	"hookbridge/internal/logger"
	"hookbridge/internal/security"
	"hookbridge/internal/usermapping"
	"hookbridge/pkg/logging"
	"hookbridge/pkg/metrics"
	"hookbridge/pkg/tracing"
)

// ActiveCredential is a stored credential with its token decrypted. It is
// never persisted or serialized with the token.
type ActiveCredential struct {
	credentials.WorkspaceCredential
	AccessToken string `json:"-"`
}

// TokenRevoker is the provider-side half of revocation.
type TokenRevoker interface {
	Revoke(ctx context.Context, token string) error
}

// CodeExchanger trades an authorization code for a token grant.
type CodeExchanger interface {
	Exchange(ctx context.Context, code string) (*TokenGrant, error)
}

type Provider interface {
	CodeExchanger
	TokenRevoker
}

type Manager struct {
	clientID     string
	scopes       []string
	redirectURI  string
	authorizeURL string

	cipher   *security.TokenCipher
	creds    credentials.Store
	mappings usermapping.Store
	provider Provider
	states   *StateIssuer
	logger   logger.Logger
	now      func() time.Time
}

func NewManager(
	cfg config.OAuthConfig,
	cipher *security.TokenCipher,
	creds credentials.Store,
	mappings usermapping.Store,
	provider Provider,
	log logger.Logger,
) (*Manager, error) {
	if cipher == nil || creds == nil || mappings == nil || provider == nil {
		return nil, errors.New("oauth manager requires a cipher, credential store, user-mapping store and provider")
	}

	stateSecret := cfg.StateSecret
	if stateSecret == "" {
		stateSecret = cfg.ClientSecret
	}
	states, err := NewStateIssuer(stateSecret, cfg.StateTTL)
	if err != nil {
		return nil, err
	}

	authorizeURL := cfg.AuthorizeURL
	if authorizeURL == "" {
		authorizeURL = constants.DefaultAuthorizeURL
	}

	return &Manager{
		clientID:     cfg.ClientID,
		scopes:       cfg.Scopes,
		redirectURI:  cfg.RedirectURI,
		authorizeURL: authorizeURL,
		cipher:       cipher,
		creds:        creds,
		mappings:     mappings,
		provider:     provider,
		states:       states,
		logger:       log,
		now:          time.Now,
	}, nil
}

// GenerateInstallURL builds the authorization URL. An empty state is
// replaced by a freshly issued one.
func (m *Manager) GenerateInstallURL(state string) (string, error) {
	if state == "" {
		issued, err := m.states.Issue()
		if err != nil {
			return "", fmt.Errorf("failed to issue oauth state: %w", err)
		}
		state = issued
	}

	u, err := url.Parse(m.authorizeURL)
	if err != nil {
		return "", fmt.Errorf("invalid authorize url: %w", err)
	}

	q := u.Query()
	q.Set("client_id", m.clientID)
	q.Set("scope", strings.Join(m.scopes, ","))
	q.Set("redirect_uri", m.redirectURI)
	q.Set("state", state)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// VerifyState accepts only unexpired states issued by GenerateInstallURL.
func (m *Manager) VerifyState(state string) error {
	return m.states.Verify(state)
}

// UseStateStore shares consumed-state bookkeeping with other replicas.
func (m *Manager) UseStateStore(store StateStore) {
	if store != nil {
		m.states.used = store
	}
}

// ConsumeState verifies state like VerifyState and then burns it, so a
// captured callback URL cannot be replayed.
func (m *Manager) ConsumeState(ctx context.Context, state string) error {
	return m.states.Consume(ctx, state)
}

// HandleCallback exchanges code for a token, encrypts it and stores the
// resulting credential. The returned credential carries ciphertext only.
// CSRF verification of state is the caller's job (see ConsumeState).
func (m *Manager) HandleCallback(ctx context.Context, code, state string) (*credentials.WorkspaceCredential, error) {
	ctx, span := tracing.GetTracer(constants.ServiceName).Start(ctx, "oauth.handle_callback")
	defer span.End()

	if code == "" {
		metrics.IncOAuthOperation("callback", "invalid")
		return nil, &OAuthExchangeError{Code: "missing_code"}
	}

	grant, err := m.provider.Exchange(ctx, code)
	if err != nil {
		metrics.IncOAuthOperation("callback", "error")
		return nil, err
	}

	encrypted, err := m.cipher.Encrypt(grant.AccessToken)
	if err != nil {
		metrics.IncOAuthOperation("callback", "error")
		return nil, fmt.Errorf("failed to encrypt token: %w", err)
	}

	now := m.now().UTC()
	cred := credentials.WorkspaceCredential{
		TenantID:        grant.TenantID,
		TenantName:      grant.TenantName,
		EncryptedSecret: encrypted,
		BotIdentity:     grant.BotUserID,
		GrantedScope:    grant.Scope,
		InstalledAt:     now,
		UpdatedAt:       now,
	}
	if existing, err := m.creds.Get(ctx, grant.TenantID); err == nil {
		cred.InstalledAt = existing.InstalledAt
	}

	if err := m.StoreCredential(ctx, cred); err != nil {
		metrics.IncOAuthOperation("callback", "error")
		return nil, err
	}

	metrics.IncOAuthOperation("callback", "ok")
	m.logger.InfowCtx(logging.WithTenantID(ctx, cred.TenantID), "Workspace installed",
		"bot_identity", cred.BotIdentity,
		"scope", cred.GrantedScope,
	)
	return &cred, nil
}

func (m *Manager) StoreCredential(ctx context.Context, cred credentials.WorkspaceCredential) error {
	if cred.TenantID == "" {
		return errors.New("credential tenant id is required")
	}
	if cred.UpdatedAt.IsZero() {
		cred.UpdatedAt = m.now().UTC()
	}
	if cred.InstalledAt.IsZero() {
		cred.InstalledAt = cred.UpdatedAt
	}
	if err := m.creds.Put(ctx, cred); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// GetCredential returns the tenant's credential with its token decrypted.
// A credential that cannot be decrypted is reported as not found.
func (m *Manager) GetCredential(ctx context.Context, tenantID string) (*ActiveCredential, error) {
	cred, err := m.creds.Get(ctx, tenantID)
	if errors.Is(err, credentials.ErrNotFound) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	token, err := m.cipher.Decrypt(cred.EncryptedSecret)
	if err != nil {
		metrics.CredentialDecryptFailuresTotal.Inc()
		m.logger.ErrorwCtx(logging.WithTenantID(ctx, tenantID), "Stored credential could not be decrypted",
			"error", err,
		)
		return nil, ErrCredentialNotFound
	}

	return &ActiveCredential{WorkspaceCredential: *cred, AccessToken: token}, nil
}

// RevokeCredential revokes the token at the provider when it can, then
// deletes the local record regardless. The bool reports whether a local
// record existed.
func (m *Manager) RevokeCredential(ctx context.Context, tenantID string) (bool, error) {
	ctx = logging.WithTenantID(ctx, tenantID)

	active, err := m.GetCredential(ctx, tenantID)
	switch {
	case err == nil:
		if rerr := m.provider.Revoke(ctx, active.AccessToken); rerr != nil {
			metrics.IncOAuthOperation("revoke_remote", "error")
			m.logger.WarnwCtx(ctx, "Remote token revocation failed, deleting local credential anyway", "error", rerr)
		} else {
			metrics.IncOAuthOperation("revoke_remote", "ok")
		}
	case errors.Is(err, ErrCredentialNotFound):
	default:
		m.logger.WarnwCtx(ctx, "Could not load credential for remote revocation", "error", err)
	}

	existed, err := m.creds.Delete(ctx, tenantID)
	if err != nil {
		metrics.IncOAuthOperation("revoke", "error")
		return false, fmt.Errorf("failed to delete credential: %w", err)
	}

	metrics.IncOAuthOperation("revoke", "ok")
	return existed, nil
}

// HandleUninstall revokes the tenant's credential and deletes its user
// mappings. Both steps run even when the first fails; the returned error
// is report.Err().
func (m *Manager) HandleUninstall(ctx context.Context, tenantID string) (UninstallReport, error) {
	ctx, span := tracing.GetTracer(constants.ServiceName).Start(ctx, "oauth.handle_uninstall")
	defer span.End()
	ctx = logging.WithTenantID(ctx, tenantID)

	report := UninstallReport{TenantID: tenantID}
	if tenantID == "" {
		report.CredentialErr = errors.New("tenant id is required")
		return report, report.Err()
	}

	report.CredentialRevoked, report.CredentialErr = m.RevokeCredential(ctx, tenantID)
	report.MappingsDeleted, report.MappingsErr = m.mappings.DeleteTenantMappings(ctx, tenantID)

	if !report.OK() {
		metrics.IncOAuthOperation("uninstall", "partial")
		m.logger.ErrorwCtx(ctx, "Tenant uninstall incomplete",
			"failed_steps", report.FailedSteps(),
			"error", report.Err(),
		)
		return report, report.Err()
	}

	metrics.IncOAuthOperation("uninstall", "ok")
	m.logger.InfowCtx(ctx, "Tenant uninstalled",
		"credential_revoked", report.CredentialRevoked,
		"mappings_deleted", report.MappingsDeleted,
	)
	return report, nil
}

// RefreshToken returns the current credential unchanged. Bot tokens issued
// by the provider do not expire.
func (m *Manager) RefreshToken(ctx context.Context, tenantID string) (*ActiveCredential, error) {
	return m.GetCredential(ctx, tenantID)
}
