package core

import (
	"sync"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/example/subtracker/internal/models"
)

// Status filters on isActive.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Filters narrows the dashboard list. Empty fields are unconstrained; set
// fields are combined with AND.
type Filters struct {
	Category      models.Category      `form:"category" json:"category,omitempty"`
	BillingCycle  models.BillingCycle  `form:"billingCycle" json:"billingCycle,omitempty"`
	PaymentMethod models.PaymentMethod `form:"paymentMethod" json:"paymentMethod,omitempty"`
	Status        Status               `form:"status" json:"status,omitempty"`
}

// Validate rejects filter values that can never match a valid record.
func (f Filters) Validate() error {
	switch {
	case f.Category != "" && !f.Category.Valid():
		return newValidationError("category", "Unknown category filter.")
	case f.BillingCycle != "" && !f.BillingCycle.Valid():
		return newValidationError("billingCycle", "Unknown billing cycle filter.")
	case f.PaymentMethod != "" && !f.PaymentMethod.Valid():
		return newValidationError("paymentMethod", "Unknown payment method filter.")
	case f.Status != "" && f.Status != StatusActive && f.Status != StatusInactive:
		return newValidationError("status", "Unknown status filter.")
	}
	return nil
}

// Match reports whether sub passes every set filter. An unknown status matches nothing.
func (f Filters) Match(sub models.Subscription) bool {
	if f.Category != "" && sub.Category != f.Category {
		return false
	}
	if f.BillingCycle != "" && sub.BillingCycle != f.BillingCycle {
		return false
	}
	if f.PaymentMethod != "" && sub.PaymentMethod != f.PaymentMethod {
		return false
	}
	switch f.Status {
	case "":
		return true
	case StatusActive:
		return sub.IsActive
	case StatusInactive:
		return !sub.IsActive
	default:
		return false
	}
}

// ApplyFilters returns the matching records in their input order.
func ApplyFilters(list []models.Subscription, f Filters) []models.Subscription {
	return lo.Filter(list, func(sub models.Subscription, _ int) bool {
		return f.Match(sub)
	})
}

func activeMatches(list []models.Subscription, f Filters) []models.Subscription {
	return lo.Filter(list, func(sub models.Subscription, _ int) bool {
		return sub.IsActive && f.Match(sub)
	})
}

// MonthlyCost sums the monthly-equivalent price of active filtered records.
func MonthlyCost(list []models.Subscription, f Filters) float64 {
	return lo.SumBy(activeMatches(list, f), func(sub models.Subscription) float64 {
		if sub.BillingCycle == models.BillingYearly {
			return sub.Price / 12
		}
		return sub.Price
	})
}

// YearlyCost sums the yearly-equivalent price of active filtered records.
func YearlyCost(list []models.Subscription, f Filters) float64 {
	return lo.SumBy(activeMatches(list, f), func(sub models.Subscription) float64 {
		if sub.BillingCycle == models.BillingYearly {
			return sub.Price
		}
		return sub.Price * 12
	})
}

// Summary holds the totals shown above the dashboard list.
type Summary struct {
	MonthlyTotal   float64 `json:"monthlyTotal"`
	YearlyTotal    float64 `json:"yearlyTotal"`
	MonthlyDisplay string  `json:"monthlyDisplay"`
	YearlyDisplay  string  `json:"yearlyDisplay"`
	Count          int     `json:"count"`
	ActiveCount    int     `json:"activeCount"`
}

// Summarize computes the totals in one fresh pass over list.
func Summarize(list []models.Subscription, f Filters) Summary {
	filtered := ApplyFilters(list, f)
	monthly := MonthlyCost(filtered, Filters{})
	yearly := YearlyCost(filtered, Filters{})
	return Summary{
		MonthlyTotal:   monthly,
		YearlyTotal:    yearly,
		MonthlyDisplay: decimal.NewFromFloat(monthly).StringFixed(2),
		YearlyDisplay:  decimal.NewFromFloat(yearly).StringFixed(2),
		Count:          len(filtered),
		ActiveCount:    lo.CountBy(filtered, func(sub models.Subscription) bool { return sub.IsActive }),
	}
}

// SummaryMemo caches the last Summary per (projection version, filters).
type SummaryMemo struct {
	mu      sync.Mutex
	valid   bool
	version uint64
	filters Filters
	summary Summary
}

// Get returns the cached summary when version and f match the last call, else
// recomputes it from list.
func (m *SummaryMemo) Get(version uint64, list []models.Subscription, f Filters) Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.valid && m.version == version && m.filters == f {
		return m.summary
	}
	m.summary = Summarize(list, f)
	m.version, m.filters, m.valid = version, f, true
	return m.summary
}
