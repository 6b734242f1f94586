package models

// SubscriptionInput is the request body for adding or updating a subscription.
// Validation tags are evaluated by the core package after trimming.
type SubscriptionInput struct {
	ServiceName   string         `json:"serviceName" validate:"required"`
	Category      Category       `json:"category" validate:"required,category"`
	Price         Price          `json:"price" validate:"gt=0"`
	BillingCycle  BillingCycle   `json:"billingCycle" validate:"required,billingcycle"`
	RenewalDate   OptionalMillis `json:"renewalDate"`                    // optional; defaults from billingCycle
	PaymentMethod PaymentMethod  `json:"paymentMethod" validate:"required,paymentmethod"`
	Notes         string         `json:"notes,omitempty"`
	IsActive      *bool          `json:"isActive,omitempty"` // nil means true
}

// SetActiveRequest represents the request body for toggling a subscription's status.
type SetActiveRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

// SignInRequest represents the request body for email/password login.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUpRequest represents the request body for account creation.
type SignUpRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// FederatedSignInRequest carries an ID token issued by an external identity provider.
type FederatedSignInRequest struct {
	ProviderID string `json:"providerId"` // defaults to google.com
	IDToken    string `json:"idToken" binding:"required"`
}

// PasswordResetRequest represents the request body for the forgot-password flow.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// VerificationEmailRequest re-authenticates the user before resending the verification email.
type VerificationEmailRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
