package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/subtracker/internal/core"
)

// SessionCookie carries the ID token for page navigations, where browsers send
// no Authorization header.
const SessionCookie = "__session"

// Context keys set by AuthMiddleware.
const (
	ContextUserID    = "userID"
	ContextUserEmail = "userEmail"
	ContextIDToken   = "idToken"
)

// ErrorResponse mirrors api.ErrorResponse to avoid an import cycle.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// IdentityVerifier resolves an ID token to a verified identity. *core.AuthService satisfies it.
type IdentityVerifier interface {
	CurrentUser(ctx context.Context, idToken string) (*core.Identity, error)
}

// AuthMiddleware authenticates requests with a Firebase ID token.
type AuthMiddleware struct {
	verifier IdentityVerifier
	logger   *zap.Logger
}

func NewAuthMiddleware(verifier IdentityVerifier, logger *zap.Logger) *AuthMiddleware {
	if verifier == nil {
		panic("AuthMiddleware requires an IdentityVerifier")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{verifier: verifier, logger: logger}
}

// VerifyToken rejects unauthenticated API requests with 401. The token is read
// from "Authorization: Bearer {token}" or, failing that, the session cookie.
func (m *AuthMiddleware) VerifyToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		idToken, problem := tokenFromRequest(c)
		if idToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: problem})
			return
		}
		if !m.authenticate(c, idToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid or expired authentication token"})
			return
		}
		c.Next()
	}
}

// RequireSession redirects page navigations without a valid session cookie to loginPath.
func (m *AuthMiddleware) RequireSession(loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		idToken, err := c.Cookie(SessionCookie)
		if err != nil || idToken == "" || !m.authenticate(c, idToken) {
			c.Redirect(http.StatusFound, loginPath)
			c.Abort()
			return
		}
		c.Next()
	}
}

// OptionalSession authenticates when a valid session cookie is present and
// continues either way.
func (m *AuthMiddleware) OptionalSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if idToken, err := c.Cookie(SessionCookie); err == nil && idToken != "" {
			m.authenticate(c, idToken)
		}
		c.Next()
	}
}

func (m *AuthMiddleware) authenticate(c *gin.Context, idToken string) bool {
	identity, err := m.verifier.CurrentUser(c.Request.Context(), idToken)
	if err != nil {
		m.logger.Debug("ID token rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
		return false
	}
	c.Set(ContextUserID, identity.UID)
	c.Set(ContextUserEmail, identity.Email)
	c.Set(ContextIDToken, idToken)
	return true
}

func tokenFromRequest(c *gin.Context) (string, string) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", "Authorization header format must be 'Bearer {token}'"
		}
		return parts[1], ""
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie, ""
	}
	return "", "Authorization header is required"
}

// UserID returns the authenticated user id, or "".
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
