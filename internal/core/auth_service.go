package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

const (
	minPasswordLength = 6
	defaultProviderID = "google.com"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// AuthService runs the sign-in, sign-up and account recovery flows and ties
// sessions to them.
type AuthService struct {
	provider IdentityProvider
	sessions *SessionManager
	throttle *Throttle
	logger   *zap.Logger
}

func NewAuthService(provider IdentityProvider, sessions *SessionManager, throttle *Throttle, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{provider: provider, sessions: sessions, throttle: throttle, logger: logger}
}

// SignIn authenticates with email and password. Unverified accounts are
// rejected with ErrEmailNotVerified. On success the user's session is opened.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	switch {
	case email == "" || password == "":
		return nil, newValidationError("email", "Please enter valid data.")
	case !emailPattern.MatchString(email):
		return nil, newValidationError("email", "Please enter a valid email address.")
	case len(password) < minPasswordLength:
		return nil, newValidationError("password", "Password must be at least 6 characters.")
	}
	if err := s.throttle.Allow(ctx, "login", email); err != nil {
		return nil, err
	}

	result, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("sign in failed: %w", err)
	}
	if !result.Identity.EmailVerified {
		return nil, ErrEmailNotVerified
	}
	s.openSession(ctx, result.Identity.UID)
	return result, nil
}

// SignUp creates an account and sends the verification email. No session is
// opened; the user signs in after verifying.
func (s *AuthService) SignUp(ctx context.Context, username, email, password, confirmPassword string) (*AuthResult, error) {
	switch {
	case username == "" || email == "" || password == "" || confirmPassword == "":
		return nil, newValidationError("email", "Please fill out all fields.")
	case !emailPattern.MatchString(email):
		return nil, newValidationError("email", "Enter a valid email address.")
	case len(password) < minPasswordLength:
		return nil, newValidationError("password", "Password must be at least 6 characters.")
	case password != confirmPassword:
		return nil, newValidationError("confirmPassword", "Passwords do not match.")
	}
	if err := s.throttle.Allow(ctx, "signup", email); err != nil {
		return nil, err
	}

	result, err := s.provider.SignUp(ctx, email, password, username)
	if err != nil {
		return nil, fmt.Errorf("sign up failed: %w", err)
	}
	if err := s.provider.SendVerificationEmail(ctx, result.IDToken); err != nil {
		return nil, fmt.Errorf("failed to send verification email: %w", err)
	}
	s.logger.Info("Account created", zap.String("userID", result.Identity.UID))
	return result, nil
}

// SignInWithFederatedProvider signs in with a token from an external provider.
// Federated accounts count as verified.
func (s *AuthService) SignInWithFederatedProvider(ctx context.Context, providerID, providerIDToken string) (*AuthResult, error) {
	if providerID == "" {
		providerID = defaultProviderID
	}
	if providerIDToken == "" {
		return nil, newValidationError("idToken", "Provider token is required.")
	}
	result, err := s.provider.SignInWithIDP(ctx, providerID, providerIDToken)
	if err != nil {
		return nil, fmt.Errorf("federated sign in failed: %w", err)
	}
	result.Identity.EmailVerified = true
	s.openSession(ctx, result.Identity.UID)
	return result, nil
}

// SignOut closes the user's session and revokes their refresh tokens.
func (s *AuthService) SignOut(ctx context.Context, uid string) error {
	if uid == "" {
		return ErrUnauthenticated
	}
	s.sessions.Close(uid)
	if err := s.provider.RevokeRefreshTokens(ctx, uid); err != nil {
		return fmt.Errorf("failed to revoke tokens for user '%s': %w", uid, err)
	}
	return nil
}

// SendPasswordReset requests a reset email. It reports success whether or not
// the account exists or the request went through.
func (s *AuthService) SendPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return newValidationError("email", "Please enter your email address.")
	}
	if err := s.throttle.Allow(ctx, "password-reset", email); err != nil {
		s.logger.Warn("Password reset throttled", zap.Error(err))
		return nil
	}
	if err := s.provider.SendPasswordResetEmail(ctx, email); err != nil {
		s.logger.Warn("Password reset email was not sent", zap.String("code", string(AuthCodeOf(err))), zap.Error(err))
	}
	return nil
}

// ResendVerificationEmail re-authenticates the user and sends a new verification email.
func (s *AuthService) ResendVerificationEmail(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return newValidationError("email", "No user found. Please sign up first.")
	}
	if err := s.throttle.Allow(ctx, "verification-email", email); err != nil {
		return err
	}
	result, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return fmt.Errorf("re-authentication failed: %w", err)
	}
	if result.Identity.EmailVerified {
		return nil
	}
	if err := s.provider.SendVerificationEmail(ctx, result.IDToken); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

// CurrentUser resolves an ID token to its identity.
func (s *AuthService) CurrentUser(ctx context.Context, idToken string) (*Identity, error) {
	if idToken == "" {
		return nil, ErrUnauthenticated
	}
	identity, err := s.provider.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return identity, nil
}

func (s *AuthService) openSession(ctx context.Context, uid string) {
	if s.sessions == nil {
		return
	}
	if _, err := s.sessions.Open(ctx, uid); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("Failed to open session at sign in", zap.String("userID", uid), zap.Error(err))
	}
}
