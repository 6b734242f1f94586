package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/subtracker/internal/core"
	"github.com/example/subtracker/internal/middleware"
	"github.com/example/subtracker/internal/models"
)

// authFlow holds the user-facing fallbacks of one authentication flow.
type authFlow struct {
	name      string
	fallback  string
	throttled string
}

var (
	loginFlow = authFlow{
		name:      "login",
		fallback:  "An error occurred during login. Please try again.",
		throttled: "Too many login attempts. Please try again later.",
	}
	signupFlow = authFlow{
		name:      "signup",
		fallback:  "An error occurred during signup. Please try again.",
		throttled: "Too many signup attempts. Please try again later.",
	}
	federatedFlow = authFlow{
		name:      "federated",
		fallback:  "An error occurred during Google sign-in. Please try again.",
		throttled: "Too many login attempts. Please try again later.",
	}
	verificationFlow = authFlow{
		name:      "verification-email",
		fallback:  "Failed to send verification email. Please try again.",
		throttled: "Too many requests. Please try again later.",
	}
)

// AuthHandler handles authentication related API endpoints.
type AuthHandler struct {
	auth          *core.AuthService
	secureCookies bool
	logger        *zap.Logger
}

// NewAuthHandler creates a new AuthHandler. secureCookies marks the session
// cookie Secure, which browsers only honour over HTTPS.
func NewAuthHandler(auth *core.AuthService, secureCookies bool, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{auth: auth, secureCookies: secureCookies, logger: logger}
}

// mapAuthErrorToStatus maps errors from core.AuthService to HTTP status codes
// and the message the flow shows for them.
func (h *AuthHandler) mapAuthErrorToStatus(c *gin.Context, flow authFlow, err error) {
	var validationErr *core.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: validationErr.Message})
		return
	}
	if errors.Is(err, core.ErrTooManyRequests) {
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: flow.throttled})
		return
	}
	if errors.Is(err, core.ErrEmailNotVerified) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "Please verify your email."})
		return
	}

	switch core.AuthCodeOf(err) {
	case core.AuthInvalidCredential, core.AuthUserNotFound:
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid email or password."})
	case core.AuthUserDisabled:
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "This account has been disabled."})
	case core.AuthEmailAlreadyInUse:
		c.JSON(http.StatusConflict, ErrorResponse{Error: "This email is already in use."})
	case core.AuthWeakPassword:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Password must be at least 6 characters."})
	case core.AuthAccountExists:
		c.JSON(http.StatusConflict, ErrorResponse{Error: "An account already exists with the same email address but different sign-in credentials."})
	case core.AuthTooManyRequests:
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: flow.throttled})
	case core.AuthNetworkRequestFailed:
		h.logger.Warn("Identity provider unreachable", zap.String("flow", flow.name), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Network error. Please check your internet connection and try again."})
	default:
		h.logger.Error("Authentication request failed", zap.String("flow", flow.name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: flow.fallback})
	}
}

// SignUp handles POST /auth/signup
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req models.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}
	result, err := h.auth.SignUp(c.Request.Context(), req.Username, req.Email, req.Password, req.ConfirmPassword)
	if err != nil {
		h.mapAuthErrorToStatus(c, signupFlow, err)
		return
	}
	c.JSON(http.StatusCreated, SuccessResponse{
		Message: "Signup successful! Verification email sent. If you don't see it, check your spam folder.",
		Data:    result.Identity,
	})
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}
	result, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.mapAuthErrorToStatus(c, loginFlow, err)
		return
	}
	h.startSession(c, result)
}

// Federated handles POST /auth/federated
func (h *AuthHandler) Federated(c *gin.Context) {
	var req models.FederatedSignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}
	result, err := h.auth.SignInWithFederatedProvider(c.Request.Context(), req.ProviderID, req.IDToken)
	if err != nil {
		h.mapAuthErrorToStatus(c, federatedFlow, err)
		return
	}
	h.startSession(c, result)
}

// PasswordReset handles POST /auth/password-reset. The answer does not reveal
// whether an account exists for the address.
func (h *AuthHandler) PasswordReset(c *gin.Context) {
	var req models.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}
	if err := h.auth.SendPasswordReset(c.Request.Context(), req.Email); err != nil {
		h.mapAuthErrorToStatus(c, authFlow{name: "password-reset", fallback: "Please enter your email address."}, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Message: "If an account exists with this email, a password reset link has been sent. If you don't see it, check your spam folder.",
	})
}

// VerificationEmail handles POST /auth/verification-email
func (h *AuthHandler) VerificationEmail(c *gin.Context) {
	var req models.VerificationEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}
	if err := h.auth.ResendVerificationEmail(c.Request.Context(), req.Email, req.Password); err != nil {
		h.mapAuthErrorToStatus(c, verificationFlow, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Verification email sent! Check your inbox."})
}

// Logout handles POST /auth/logout. The session cookie is cleared even when
// token revocation fails.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
	if err := h.auth.SignOut(c.Request.Context(), middleware.UserID(c)); err != nil {
		h.logger.Error("Sign out failed", zap.String("userID", middleware.UserID(c)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Error logging out. Please try again."})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Logged out successfully!"})
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	identity, err := h.auth.CurrentUser(c.Request.Context(), c.GetString(middleware.ContextIDToken))
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid or expired authentication token"})
		return
	}
	c.JSON(http.StatusOK, identity)
}

func (h *AuthHandler) startSession(c *gin.Context, result *core.AuthResult) {
	h.setSessionCookie(c, result.IDToken, int(result.ExpiresIn.Seconds()))
	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Login successful!",
		Data: SessionResponse{
			User:         result.Identity,
			IDToken:      result.IDToken,
			RefreshToken: result.RefreshToken,
			ExpiresIn:    int64(result.ExpiresIn.Seconds()),
		},
	})
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, value, maxAge, "/", "", h.secureCookies, true)
}
