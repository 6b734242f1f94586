package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/subtracker/internal/core"
	"github.com/example/subtracker/internal/middleware"
)

func TestLogin(t *testing.T) {
	cases := []struct {
		name     string
		email    string
		password string
		code     int
		message  string
	}{
		{"empty fields", "", "", http.StatusBadRequest, "Please enter valid data."},
		{"bad email", "ana@", "secret1", http.StatusBadRequest, "Please enter a valid email address."},
		{"short password", "ana@example.com", "123", http.StatusBadRequest, "Password must be at least 6 characters."},
		{"wrong password", "ana@example.com", "wrong-pass", http.StatusUnauthorized, "Invalid email or password."},
		{"disabled", "locked@example.com", "secret1", http.StatusForbidden, "This account has been disabled."},
		{"unverified", "new@example.com", "secret1", http.StatusForbidden, "Please verify your email."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t)
			w := app.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": tc.email, "password": tc.password})
			assert.Equal(t, tc.code, w.Code)
			assert.Equal(t, tc.message, errorOf(t, w))
		})
	}
}

func TestLoginSetsSessionCookieAndOpensSession(t *testing.T) {
	app := newTestApp(t)

	w := app.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "ana@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Message string          `json:"message"`
		Data    SessionResponse `json:"data"`
	}
	decode(t, w, &resp)
	assert.Equal(t, "Login successful!", resp.Message)
	assert.Equal(t, "u-ana", resp.Data.User.UID)
	assert.Equal(t, "token-u-ana", resp.Data.IDToken)
	assert.Equal(t, int64(3600), resp.Data.ExpiresIn)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.SessionCookie, cookies[0].Name)
	assert.Equal(t, "token-u-ana", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	_, err := app.sessions.Get("u-ana")
	assert.NoError(t, err)
}

func TestLoginThrottled(t *testing.T) {
	app := newTestApp(t)
	body := map[string]string{"email": "ana@example.com", "password": "wrong-pass"}
	for i := 0; i < 3; i++ {
		w := app.do(http.MethodPost, "/api/v1/auth/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := app.do(http.MethodPost, "/api/v1/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Too many login attempts. Please try again later.", errorOf(t, w))
}

func TestLoginNetworkFailure(t *testing.T) {
	app := newTestApp(t)
	app.provider.signErr = core.NewAuthError(core.AuthNetworkRequestFailed, nil)

	w := app.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "ana@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Network error. Please check your internet connection and try again.", errorOf(t, w))
}

func TestSignUp(t *testing.T) {
	app := newTestApp(t)

	body := map[string]string{
		"username": "Bo", "email": "bo@example.com", "password": "secret1", "confirmPassword": "secret1",
	}
	w := app.do(http.MethodPost, "/api/v1/auth/signup", "", body)
	require.Equal(t, http.StatusCreated, w.Code)
	var resp SuccessResponse
	decode(t, w, &resp)
	assert.Equal(t, "Signup successful! Verification email sent. If you don't see it, check your spam folder.", resp.Message)
	assert.Equal(t, []string{"token-u-bo@example.com"}, app.provider.sent)
	assert.Empty(t, w.Result().Cookies())

	w = app.do(http.MethodPost, "/api/v1/auth/signup", "", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "This email is already in use.", errorOf(t, w))

	body["confirmPassword"] = "other12"
	w = app.do(http.MethodPost, "/api/v1/auth/signup", "", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Passwords do not match.", errorOf(t, w))
}

func TestFederatedSignIn(t *testing.T) {
	app := newTestApp(t)

	w := app.do(http.MethodPost, "/api/v1/auth/federated", "", map[string]string{"idToken": "google-token"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data SessionResponse `json:"data"`
	}
	decode(t, w, &resp)
	assert.True(t, resp.Data.User.EmailVerified)
	assert.Equal(t, "google.com", resp.Data.User.ProviderID)

	app.provider.idpErr = core.NewAuthError(core.AuthAccountExists, nil)
	w = app.do(http.MethodPost, "/api/v1/auth/federated", "", map[string]string{"idToken": "google-token"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "An account already exists with the same email address but different sign-in credentials.", errorOf(t, w))

	app.provider.idpErr = core.NewAuthError(core.AuthInternalError, nil)
	w = app.do(http.MethodPost, "/api/v1/auth/federated", "", map[string]string{"idToken": "google-token"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "An error occurred during Google sign-in. Please try again.", errorOf(t, w))

	w = app.do(http.MethodPost, "/api/v1/auth/federated", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPasswordResetNeverRevealsAccounts(t *testing.T) {
	app := newTestApp(t)

	w := app.do(http.MethodPost, "/api/v1/auth/password-reset", "", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = app.do(http.MethodPost, "/api/v1/auth/password-reset", "", map[string]string{"email": " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Please enter your email address.", errorOf(t, w))
}

func TestVerificationEmail(t *testing.T) {
	app := newTestApp(t)

	w := app.do(http.MethodPost, "/api/v1/auth/verification-email", "", map[string]string{"email": "new@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"token-u-new"}, app.provider.sent)

	w = app.do(http.MethodPost, "/api/v1/auth/verification-email", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No user found. Please sign up first.", errorOf(t, w))
}

func TestMeAndLogout(t *testing.T) {
	app := newTestApp(t)

	w := app.do(http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = app.do(http.MethodGet, "/api/v1/auth/me", "token-u-ana", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var identity core.Identity
	decode(t, w, &identity)
	assert.Equal(t, "ana@example.com", identity.Email)

	_, err := app.sessions.Open(t.Context(), "u-ana")
	require.NoError(t, err)

	w = app.do(http.MethodPost, "/api/v1/auth/logout", "token-u-ana", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"u-ana"}, app.provider.revoked)
	_, err = app.sessions.Get("u-ana")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)
}
