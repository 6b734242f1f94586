package api

import "github.com/example/subtracker/internal/core"

// ErrorResponse is a generic structure for returning errors via API.
type ErrorResponse struct {
	Error   string `json:"error"`             // Message shown to the user
	Details string `json:"details,omitempty"` // More specific details about the error, if available
}

// SuccessResponse is a generic structure for simple success messages.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// CreatedResponse is returned by POST /subscriptions.
type CreatedResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// SessionResponse is returned by the sign-in endpoints.
type SessionResponse struct {
	User         core.Identity `json:"user"`
	IDToken      string        `json:"idToken"`
	RefreshToken string        `json:"refreshToken,omitempty"`
	ExpiresIn    int64         `json:"expiresIn"`
}
