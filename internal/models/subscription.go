package models

// Category groups subscriptions on the dashboard.
type Category string

const (
	CategoryEntertainment Category = "Entertainment"
	CategoryProductivity  Category = "Productivity / Software"
	CategoryFitness       Category = "Fitness & Health"
	CategoryEducation     Category = "Education / Learning"
	CategoryGaming        Category = "Gaming"
	CategoryUtilities     Category = "Utilities / Services"
	CategoryOther         Category = "Other"
)

// Categories lists every recognized category in display order.
var Categories = []Category{
	CategoryEntertainment,
	CategoryProductivity,
	CategoryFitness,
	CategoryEducation,
	CategoryGaming,
	CategoryUtilities,
	CategoryOther,
}

// Valid reports whether c is one of the recognized categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// BillingCycle is the renewal cadence of a subscription.
type BillingCycle string

const (
	BillingMonthly BillingCycle = "Monthly"
	BillingYearly  BillingCycle = "Yearly"
)

func (b BillingCycle) Valid() bool {
	return b == BillingMonthly || b == BillingYearly
}

// PaymentMethod is how the user pays for a subscription.
type PaymentMethod string

const (
	PaymentCard         PaymentMethod = "Card"
	PaymentCash         PaymentMethod = "Cash"
	PaymentBankTransfer PaymentMethod = "Bank Transfer"
)

func (p PaymentMethod) Valid() bool {
	return p == PaymentCard || p == PaymentCash || p == PaymentBankTransfer
}

// SubscriptionFields holds every mutable field of a subscription.
// An update replaces all of them at once.
type SubscriptionFields struct {
	ServiceName   string        `json:"serviceName"`
	Category      Category      `json:"category"`
	Price         float64       `json:"price"`
	BillingCycle  BillingCycle  `json:"billingCycle"`
	RenewalDate   int64         `json:"renewalDate"` // epoch milliseconds
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	Notes         string        `json:"notes"`
	IsActive      bool          `json:"isActive"`
}

// Subscription is a stored subscription as seen by its owner.
type Subscription struct {
	ID string `json:"id"`
	SubscriptionFields
	CreatedAt int64 `json:"createdAt"` // epoch milliseconds assigned by the store, 0 if missing
}

// DueRenewal pairs a subscription with its owner. It is produced by the
// cross-user renewal scan and never returned to API clients.
type DueRenewal struct {
	UserID       string
	Subscription Subscription
}
