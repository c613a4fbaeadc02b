package oauth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"hookbridge/internal/config"
	"hookbridge/internal/credentials"
	"hookbridge/internal/logger"
	"hookbridge/internal/security"
	"hookbridge/internal/usermapping"
	"hookbridge/pkg/circuitbreaker"
)

var oauthBreakerDisabled = circuitbreaker.Overrides{}

func init() {
	gin.SetMode(gin.TestMode)
}

type grantFixture struct {
	token  string
	tenant string
	name   string
}

// providerStub serves the token and revoke endpoints of the chat platform.
type providerStub struct {
	server *httptest.Server

	mu           sync.Mutex
	grants       map[string]grantFixture
	accessStatus int
	accessBody   string
	revokeStatus int
	revokeCalls  int
	revoked      []string
}

func newProviderStub(t *testing.T) *providerStub {
	t.Helper()
	p := &providerStub{grants: make(map[string]grantFixture)}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth.v2.access", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		p.mu.Lock()
		g, ok := p.grants[r.PostForm.Get("code")]
		status, body := p.accessStatus, p.accessBody
		p.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if status != 0 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
			return
		}
		if !ok || r.PostForm.Get("client_secret") != "client-secret" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": false, "error": "invalid_code"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":           true,
			"access_token": g.token,
			"scope":        "chat:write,app_mentions:read",
			"bot_user_id":  "B" + g.tenant,
			"team":         map[string]string{"id": g.tenant, "name": g.name},
		})
	})
	mux.HandleFunc("/auth.revoke", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		p.mu.Lock()
		defer p.mu.Unlock()
		p.revokeCalls++
		if p.revokeStatus != 0 {
			w.WriteHeader(p.revokeStatus)
			return
		}
		p.revoked = append(p.revoked, r.PostForm.Get("token"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "revoked": true})
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *providerStub) addGrant(code string, g grantFixture) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grants[code] = g
}

// setAccessReply makes the token endpoint answer every request with status
// and a raw body.
func (p *providerStub) setAccessReply(status int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessStatus, p.accessBody = status, body
}

func (p *providerStub) setRevokeStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revokeStatus = status
}

func (p *providerStub) stats() (calls int, revoked []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.revokeCalls, append([]string(nil), p.revoked...)
}

func oauthConfig(p *providerStub) config.OAuthConfig {
	return config.OAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://bridge.example.com/oauth/callback",
		Scopes:       []string{"chat:write", "app_mentions:read"},
		AuthorizeURL: "https://provider.example.com/oauth/v2/authorize",
		TokenURL:     p.server.URL + "/oauth.v2.access",
		RevokeURL:    p.server.URL + "/auth.revoke",
		StateSecret:  "state-secret",
		StateTTL:     time.Minute,
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		},
	}
}

func testCipher(t *testing.T, secret string) *security.TokenCipher {
	t.Helper()
	c, err := security.NewTokenCipher(secret, "hkdf")
	require.NoError(t, err)
	return c
}

type managerFixture struct {
	manager  *Manager
	provider *providerStub
	creds    *credentials.MemoryStore
	mappings *usermapping.MemoryStore
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	p := newProviderStub(t)
	cfg := oauthConfig(p)
	creds := credentials.NewMemoryStore()
	mappings := usermapping.NewMemoryStore()

	m, err := NewManager(cfg,
		testCipher(t, strings.Repeat("k", 32)),
		creds,
		mappings,
		NewProviderClient(cfg, oauthBreakerDisabled, logger.NopLogger()),
		logger.NopLogger(),
	)
	require.NoError(t, err)

	return &managerFixture{manager: m, provider: p, creds: creds, mappings: mappings}
}
