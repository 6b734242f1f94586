package core

import (
	"errors"
	"fmt"
)

// Errors shared by the subscription and auth services.
var (
	ErrUnauthenticated      = errors.New("user is not authenticated")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrValidation           = errors.New("validation failed")
	ErrEmailNotVerified     = errors.New("email address is not verified")
	ErrTooManyRequests      = errors.New("too many requests")
	ErrSessionNotFound      = errors.New("no open session for user")
)

// ValidationError carries the message shown to the user. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// AuthCode is an identity-provider error code such as "auth/invalid-credential".
type AuthCode string

const (
	AuthInvalidCredential    AuthCode = "auth/invalid-credential"
	AuthUserDisabled         AuthCode = "auth/user-disabled"
	AuthEmailAlreadyInUse    AuthCode = "auth/email-already-in-use"
	AuthNetworkRequestFailed AuthCode = "auth/network-request-failed"
	AuthTooManyRequests      AuthCode = "auth/too-many-requests"
	AuthWeakPassword         AuthCode = "auth/weak-password"
	AuthAccountExists        AuthCode = "auth/account-exists-with-different-credential"
	AuthUserNotFound         AuthCode = "auth/user-not-found"
	AuthInternalError        AuthCode = "auth/internal-error"
)

// AuthError is a failure reported by the identity provider.
type AuthError struct {
	Code AuthCode
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError wraps err with a provider code.
func NewAuthError(code AuthCode, err error) error {
	return &AuthError{Code: code, Err: err}
}

// AuthCodeOf extracts the provider code from err, or "" when err is not an AuthError.
func AuthCodeOf(err error) AuthCode {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return ""
}
