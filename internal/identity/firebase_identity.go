// Package identity adapts Firebase Authentication to core.IdentityProvider.
//
// Password, federated and out-of-band email flows go through the Identity
// Toolkit REST API with the project's web API key. Token verification,
// revocation and user lookup use the Admin SDK.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"

	"github.com/example/subtracker/internal/core"
)

// AdminClient is the part of the Admin SDK auth client used here. *auth.Client satisfies it.
type AdminClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
}

// FirebaseIdentity implements core.IdentityProvider and core.UserDirectory.
type FirebaseIdentity struct {
	toolkit   *identitytoolkit.RelyingpartyService
	admin     AdminClient
	clientURL string
	logger    *zap.Logger
}

// NewFirebaseIdentity creates the adapter. clientURL is used as the continue URL of
// emailed links and as the request URI of federated sign-ins.
func NewFirebaseIdentity(ctx context.Context, webAPIKey, clientURL string, admin AdminClient, logger *zap.Logger) (*FirebaseIdentity, error) {
	if webAPIKey == "" {
		return nil, errors.New("a Firebase web API key is required")
	}
	if admin == nil {
		return nil, errors.New("Firebase Auth client is not initialized")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc, err := identitytoolkit.NewService(ctx, option.WithAPIKey(webAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create identity toolkit client: %w", err)
	}
	return &FirebaseIdentity{
		toolkit:   svc.Relyingparty,
		admin:     admin,
		clientURL: strings.TrimRight(clientURL, "/"),
		logger:    logger,
	}, nil
}

func (f *FirebaseIdentity) SignInWithPassword(ctx context.Context, email, password string) (*core.AuthResult, error) {
	resp, err := f.toolkit.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, mapError(err)
	}
	return f.resultFromToken(ctx, resp.IdToken, resp.RefreshToken, resp.ExpiresIn)
}

// SignUp creates the account, then signs in to obtain a session token for it.
func (f *FirebaseIdentity) SignUp(ctx context.Context, email, password, displayName string) (*core.AuthResult, error) {
	_, err := f.toolkit.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	}).Context(ctx).Do()
	if err != nil {
		return nil, mapError(err)
	}
	return f.SignInWithPassword(ctx, email, password)
}

func (f *FirebaseIdentity) SignInWithIDP(ctx context.Context, providerID, providerIDToken string) (*core.AuthResult, error) {
	postBody := url.Values{"id_token": {providerIDToken}, "providerId": {providerID}}.Encode()
	resp, err := f.toolkit.VerifyAssertion(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyAssertionRequest{
		PostBody:          postBody,
		RequestUri:        f.requestURI(),
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, mapError(err)
	}
	if resp.NeedConfirmation {
		return nil, core.NewAuthError(core.AuthAccountExists, errors.New(resp.Email))
	}
	return &core.AuthResult{
		Identity: core.Identity{
			UID:           resp.LocalId,
			Email:         resp.Email,
			EmailVerified: resp.EmailVerified,
			DisplayName:   resp.DisplayName,
			ProviderID:    resp.ProviderId,
		},
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    time.Duration(resp.ExpiresIn) * time.Second,
	}, nil
}

func (f *FirebaseIdentity) SendVerificationEmail(ctx context.Context, idToken string) error {
	return f.sendOob(ctx, &identitytoolkit.Relyingparty{
		Kind:        "identitytoolkit#relyingparty",
		RequestType: "VERIFY_EMAIL",
		IdToken:     idToken,
		ContinueUrl: f.continueURL(),
	})
}

func (f *FirebaseIdentity) SendPasswordResetEmail(ctx context.Context, email string) error {
	return f.sendOob(ctx, &identitytoolkit.Relyingparty{
		Kind:        "identitytoolkit#relyingparty",
		RequestType: "PASSWORD_RESET",
		Email:       email,
		ContinueUrl: f.continueURL(),
	})
}

func (f *FirebaseIdentity) sendOob(ctx context.Context, req *identitytoolkit.Relyingparty) error {
	if _, err := f.toolkit.GetOobConfirmationCode(req).Context(ctx).Do(); err != nil {
		return mapError(err)
	}
	return nil
}

func (f *FirebaseIdentity) VerifyIDToken(ctx context.Context, idToken string) (*core.Identity, error) {
	token, err := f.admin.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	identity := IdentityFromToken(token)
	return &identity, nil
}

func (f *FirebaseIdentity) RevokeRefreshTokens(ctx context.Context, uid string) error {
	if err := f.admin.RevokeRefreshTokens(ctx, uid); err != nil {
		return core.NewAuthError(core.AuthInternalError, err)
	}
	return nil
}

// EmailOf implements core.UserDirectory.
func (f *FirebaseIdentity) EmailOf(ctx context.Context, uid string) (string, error) {
	return NewAdminDirectory(f.admin).EmailOf(ctx, uid)
}

func (f *FirebaseIdentity) resultFromToken(ctx context.Context, idToken, refreshToken string, expiresIn int64) (*core.AuthResult, error) {
	identity, err := f.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, core.NewAuthError(core.AuthInternalError, fmt.Errorf("provider returned an unverifiable token: %w", err))
	}
	return &core.AuthResult{
		Identity:     *identity,
		IDToken:      idToken,
		RefreshToken: refreshToken,
		ExpiresIn:    time.Duration(expiresIn) * time.Second,
	}, nil
}

func (f *FirebaseIdentity) continueURL() string {
	if f.clientURL == "" {
		return ""
	}
	return f.clientURL + "/login"
}

func (f *FirebaseIdentity) requestURI() string {
	if f.clientURL == "" {
		return "http://localhost"
	}
	return f.clientURL
}

// IdentityFromToken reads the identity claims of a verified ID token.
func IdentityFromToken(token *auth.Token) core.Identity {
	identity := core.Identity{UID: token.UID, ProviderID: token.Firebase.SignInProvider}
	if email, ok := token.Claims["email"].(string); ok {
		identity.Email = email
	}
	if verified, ok := token.Claims["email_verified"].(bool); ok {
		identity.EmailVerified = verified
	}
	if name, ok := token.Claims["name"].(string); ok {
		identity.DisplayName = name
	}
	return identity
}

// mapError converts an Identity Toolkit failure to a *core.AuthError.
func mapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		reason := strings.TrimSpace(strings.SplitN(apiErr.Message, ":", 2)[0])
		return core.NewAuthError(codeForReason(reason), err)
	}
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) ||
		errors.Is(err, context.DeadlineExceeded) {
		return core.NewAuthError(core.AuthNetworkRequestFailed, err)
	}
	return core.NewAuthError(core.AuthInternalError, err)
}

func codeForReason(reason string) core.AuthCode {
	switch reason {
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "INVALID_EMAIL", "INVALID_IDP_RESPONSE":
		return core.AuthInvalidCredential
	case "USER_DISABLED":
		return core.AuthUserDisabled
	case "EMAIL_EXISTS":
		return core.AuthEmailAlreadyInUse
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return core.AuthTooManyRequests
	case "WEAK_PASSWORD":
		return core.AuthWeakPassword
	case "FEDERATED_USER_ID_ALREADY_LINKED":
		return core.AuthAccountExists
	case "USER_NOT_FOUND":
		return core.AuthUserNotFound
	default:
		return core.AuthInternalError
	}
}
