package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/subtracker/internal/config"
	"github.com/example/subtracker/internal/core"
	"github.com/example/subtracker/internal/db"
	"github.com/example/subtracker/internal/middleware"
	"github.com/example/subtracker/pkg/cache"
)

var testNow = time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

type account struct {
	uid      string
	password string
	verified bool
	disabled bool
}

// stubProvider is an in-memory identity provider. ID tokens are "token-{uid}".
type stubProvider struct {
	mu       sync.Mutex
	accounts map[string]*account
	revoked  []string
	sent     []string
	idpErr   error
	signErr  error
}

func newStubProvider() *stubProvider {
	return &stubProvider{accounts: map[string]*account{
		"ana@example.com":    {uid: "u-ana", password: "secret1", verified: true},
		"new@example.com":    {uid: "u-new", password: "secret1"},
		"locked@example.com": {uid: "u-locked", password: "secret1", verified: true, disabled: true},
	}}
}

func (p *stubProvider) result(email string, acc *account) *core.AuthResult {
	return &core.AuthResult{
		Identity:  core.Identity{UID: acc.uid, Email: email, EmailVerified: acc.verified},
		IDToken:   "token-" + acc.uid,
		ExpiresIn: time.Hour,
	}
}

func (p *stubProvider) SignInWithPassword(_ context.Context, email, password string) (*core.AuthResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.signErr != nil {
		return nil, p.signErr
	}
	acc, ok := p.accounts[email]
	if !ok || acc.password != password {
		return nil, core.NewAuthError(core.AuthInvalidCredential, errors.New("INVALID_LOGIN_CREDENTIALS"))
	}
	if acc.disabled {
		return nil, core.NewAuthError(core.AuthUserDisabled, errors.New("USER_DISABLED"))
	}
	return p.result(email, acc), nil
}

func (p *stubProvider) SignUp(_ context.Context, email, password, _ string) (*core.AuthResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[email]; ok {
		return nil, core.NewAuthError(core.AuthEmailAlreadyInUse, errors.New("EMAIL_EXISTS"))
	}
	acc := &account{uid: "u-" + email, password: password}
	p.accounts[email] = acc
	return p.result(email, acc), nil
}

func (p *stubProvider) SignInWithIDP(_ context.Context, providerID, _ string) (*core.AuthResult, error) {
	if p.idpErr != nil {
		return nil, p.idpErr
	}
	return &core.AuthResult{
		Identity: core.Identity{UID: "u-ana", Email: "ana@example.com", ProviderID: providerID},
		IDToken:  "token-u-ana",
	}, nil
}

func (p *stubProvider) SendVerificationEmail(_ context.Context, idToken string) error {
	p.mu.Lock()
	p.sent = append(p.sent, idToken)
	p.mu.Unlock()
	return nil
}

func (p *stubProvider) SendPasswordResetEmail(context.Context, string) error {
	return core.NewAuthError(core.AuthUserNotFound, nil)
}

func (p *stubProvider) VerifyIDToken(_ context.Context, idToken string) (*core.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for email, acc := range p.accounts {
		if "token-"+acc.uid == idToken {
			return &core.Identity{UID: acc.uid, Email: email, EmailVerified: acc.verified}, nil
		}
	}
	return nil, errors.New("invalid token")
}

func (p *stubProvider) RevokeRefreshTokens(_ context.Context, uid string) error {
	p.mu.Lock()
	p.revoked = append(p.revoked, uid)
	p.mu.Unlock()
	return nil
}

type testApp struct {
	router   *gin.Engine
	provider *stubProvider
	store    *db.MemoryStore
	sessions *core.SessionManager
	service  *core.SubscriptionService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := core.NewFixedClock(testNow)
	store := db.NewMemoryStore(clock.Now)
	sessions := core.NewSessionManager(store, clock, 0, zap.NewNop())
	t.Cleanup(sessions.CloseAll)
	provider := newStubProvider()
	throttle := core.NewThrottle(cache.NewMemoryCache(clock.Now), 3, time.Minute, zap.NewNop())
	service := core.NewSubscriptionService(store, clock, time.UTC, zap.NewNop())

	cfg := &config.Config{GinMode: gin.TestMode, ProjectionWait: time.Second, StaticDir: t.TempDir()}
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.RecoveryMiddleware(zap.NewNop()))
	SetupRoutes(r, cfg, zap.NewNop(), Services{
		Auth:          core.NewAuthService(provider, sessions, throttle, zap.NewNop()),
		Subscriptions: service,
		Sessions:      sessions,
	})
	return &testApp{router: r, provider: provider, store: store, sessions: sessions, service: service}
}

// do sends body as JSON. token, when set, is sent as a bearer token.
func (a *testApp) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	decode(t, w, &resp)
	return resp.Error
}
