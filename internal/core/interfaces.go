package core

import (
	"context"
	"time"
)

// Identity is the authenticated user as reported by the identity provider.
type Identity struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	DisplayName   string `json:"displayName,omitempty"`
	ProviderID    string `json:"providerId,omitempty"`
}

// AuthResult is a successful sign-in or sign-up.
type AuthResult struct {
	Identity     Identity
	IDToken      string
	RefreshToken string
	ExpiresIn    time.Duration
}

// IdentityProvider is the hosted authentication service. Failures carry an
// *AuthError with the provider code.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*AuthResult, error)
	SignUp(ctx context.Context, email, password, displayName string) (*AuthResult, error)
	// SignInWithIDP exchanges an ID token issued by providerID (e.g. google.com).
	SignInWithIDP(ctx context.Context, providerID, providerIDToken string) (*AuthResult, error)
	SendVerificationEmail(ctx context.Context, idToken string) error
	SendPasswordResetEmail(ctx context.Context, email string) error
	VerifyIDToken(ctx context.Context, idToken string) (*Identity, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

// UserDirectory resolves a user id to a contact address.
type UserDirectory interface {
	EmailOf(ctx context.Context, uid string) (string, error)
}

// Mailer sends a plain-text email.
type Mailer interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// Publisher puts a message on a named queue.
type Publisher interface {
	Publish(ctx context.Context, queueName string, body []byte) error
}
