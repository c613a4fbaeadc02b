package oauth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidState       = errors.New("invalid oauth state")
	ErrCredentialNotFound = errors.New("credential not found")
)

// OAuthExchangeError is a rejection reported by the provider. Code is the
// provider's own error string, e.g. "invalid_code".
type OAuthExchangeError struct {
	Code string
}

func (e *OAuthExchangeError) Error() string {
	return fmt.Sprintf("oauth provider rejected request: %s", e.Code)
}

// UninstallReport names which uninstall steps failed. Both steps are always
// attempted.
type UninstallReport struct {
	TenantID          string `json:"tenant_id"`
	CredentialRevoked bool   `json:"credential_revoked"`
	MappingsDeleted   int    `json:"mappings_deleted"`
	CredentialErr     error  `json:"-"`
	MappingsErr       error  `json:"-"`
}

func (r UninstallReport) OK() bool {
	return r.CredentialErr == nil && r.MappingsErr == nil
}

func (r UninstallReport) Err() error {
	var errs []error
	if r.CredentialErr != nil {
		errs = append(errs, fmt.Errorf("revoke credential: %w", r.CredentialErr))
	}
	if r.MappingsErr != nil {
		errs = append(errs, fmt.Errorf("delete user mappings: %w", r.MappingsErr))
	}
	return errors.Join(errs...)
}

// FailedSteps lists the names of the steps that failed.
func (r UninstallReport) FailedSteps() []string {
	var steps []string
	if r.CredentialErr != nil {
		steps = append(steps, "revoke_credential")
	}
	if r.MappingsErr != nil {
		steps = append(steps, "delete_user_mappings")
	}
	return steps
}
