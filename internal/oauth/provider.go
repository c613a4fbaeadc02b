package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hookbridge/internal/config"
	"hookbridge/internal/constants"
	"hookbridge/internal/logger"
	"hookbridge/pkg/circuitbreaker"
	"hookbridge/pkg/metrics"
	"hookbridge/pkg/retry"
	"hookbridge/pkg/tracing"
)

const maxProviderResponseBytes = 1 << 20

// TokenGrant is the plaintext result of a successful code exchange. It
// must be encrypted before it leaves the manager.
type TokenGrant struct {
	AccessToken string
	Scope       string
	BotUserID   string
	TenantID    string
	TenantName  string
}

type tokenResponse struct {
	OK          bool   `json:"ok"`
	Error       string `json:"error"`
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
	BotUserID   string `json:"bot_user_id"`
	Team        struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"team"`
}

type revokeResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Revoked bool   `json:"revoked"`
}

// ProviderClient talks to the chat platform's OAuth endpoints.
type ProviderClient struct {
	httpClient   *http.Client
	tokenURL     string
	revokeURL    string
	clientID     string
	clientSecret string
	redirectURI  string
	breaker      *circuitbreaker.Wrapper
	revokePolicy retry.Policy
	logger       logger.Logger
}

func NewProviderClient(cfg config.OAuthConfig, breaker circuitbreaker.Overrides, log logger.Logger) *ProviderClient {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = constants.DefaultTokenURL
	}
	revokeURL := cfg.RevokeURL
	if revokeURL == "" {
		revokeURL = constants.DefaultRevokeURL
	}

	return &ProviderClient{
		httpClient:   &http.Client{Timeout: timeout},
		tokenURL:     tokenURL,
		revokeURL:    revokeURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		breaker:      circuitbreaker.NewOptional("oauth-provider", breaker),
		revokePolicy: cfg.Retry.Policy(),
		logger:       log,
	}
}

// Exchange trades an authorization code for a bot token. Codes are single
// use, so the exchange is never retried.
func (p *ProviderClient) Exchange(ctx context.Context, code string) (*TokenGrant, error) {
	form := url.Values{
		"client_id":     {p.clientID},
		"client_secret": {p.clientSecret},
		"code":          {code},
	}
	if p.redirectURI != "" {
		form.Set("redirect_uri", p.redirectURI)
	}

	var resp tokenResponse
	_, err := p.breaker.Execute(ctx, func() (interface{}, error) {
		return nil, p.postForm(ctx, p.tokenURL, form, "", &resp)
	})
	if err != nil {
		var statusErr *providerStatusError
		if errors.As(err, &statusErr) {
			return nil, &OAuthExchangeError{Code: statusErr.code()}
		}
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	if !resp.OK {
		code := resp.Error
		if code == "" {
			code = "unknown_error"
		}
		return nil, &OAuthExchangeError{Code: code}
	}
	if resp.AccessToken == "" || resp.Team.ID == "" {
		return nil, &OAuthExchangeError{Code: "incomplete_response"}
	}

	return &TokenGrant{
		AccessToken: resp.AccessToken,
		Scope:       resp.Scope,
		BotUserID:   resp.BotUserID,
		TenantID:    resp.Team.ID,
		TenantName:  resp.Team.Name,
	}, nil
}

// Revoke invalidates token at the provider. Transport failures and 5xx
// responses are retried; provider rejections are not.
func (p *ProviderClient) Revoke(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}

	return retry.RetryWithCallback(ctx, p.revokePolicy, func() error {
		var resp revokeResponse
		_, err := p.breaker.Execute(ctx, func() (interface{}, error) {
			return nil, p.postForm(ctx, p.revokeURL, form, token, &resp)
		})
		if err != nil {
			var statusErr *providerStatusError
			if errors.Is(err, circuitbreaker.ErrOpen) || (errors.As(err, &statusErr) && !statusErr.retryable()) {
				return retry.Permanent(err)
			}
			return err
		}
		if !resp.OK {
			return retry.Permanent(&OAuthExchangeError{Code: resp.Error})
		}
		return nil
	}, func(attempt int, err error, next time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues("oauth_revoke").Inc()
		p.logger.WarnwCtx(ctx, "Retrying token revocation",
			"attempt", attempt,
			"next_delay", next,
			"error", err,
		)
	})
}

// providerStatusError is a non-200 reply. ProviderCode is the "error"
// field of the body when the provider sent one.
type providerStatusError struct {
	Status       int
	ProviderCode string
}

func (e *providerStatusError) Error() string {
	if e.ProviderCode != "" {
		return fmt.Sprintf("provider returned status %d: %s", e.Status, e.ProviderCode)
	}
	return fmt.Sprintf("provider returned status %d", e.Status)
}

func (e *providerStatusError) retryable() bool {
	return e.Status >= http.StatusInternalServerError
}

func (e *providerStatusError) code() string {
	if e.ProviderCode != "" {
		return e.ProviderCode
	}
	return fmt.Sprintf("http_%d", e.Status)
}

func (p *ProviderClient) postForm(ctx context.Context, endpoint string, form url.Values, bearer string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	tracing.InjectHTTPHeaders(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to provider failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read provider response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var rejected struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &rejected)
		return &providerStatusError{Status: resp.StatusCode, ProviderCode: rejected.Error}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}
	return nil
}
