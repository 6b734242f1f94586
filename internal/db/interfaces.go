package db

import (
	"context"
	"errors"
	"time"

	"github.com/example/subtracker/internal/models"
)

// ErrNotFound is returned when a document does not exist in the store.
var ErrNotFound = errors.New("document not found")

// Unsubscribe tears down a standing subscription. Once it returns, no further
// callbacks are delivered for that subscription. It must not be called from
// inside one of the subscription's own callbacks.
type Unsubscribe func()

// SubscriptionStore is the per-user subscription collection. Every method is
// scoped to userID, so one user can never address another user's documents.
type SubscriptionStore interface {
	// Create persists a new document and returns its generated key.
	// createdAt is assigned by the store from its own write time.
	Create(ctx context.Context, userID string, fields models.SubscriptionFields) (string, error)
	// Write replaces every mutable field of the document at id. createdAt is left untouched.
	Write(ctx context.Context, userID, id string, fields models.SubscriptionFields) error
	// WriteActive writes only the isActive field. Returns ErrNotFound if the document is missing.
	WriteActive(ctx context.Context, userID, id string, isActive bool) error
	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, userID, id string) error
	// ReadOnce returns the document at id or ErrNotFound.
	ReadOnce(ctx context.Context, userID, id string) (*models.Subscription, error)
	// Subscribe delivers the full collection on registration and after every change.
	// Callbacks for one subscription are never delivered concurrently.
	Subscribe(ctx context.Context, userID string, onChange func([]models.Subscription), onError func(error)) (Unsubscribe, error)
}

// RenewalFinder searches active subscriptions of all users by renewal date.
type RenewalFinder interface {
	// FindRenewals returns active subscriptions with from <= renewalDate < to.
	FindRenewals(ctx context.Context, from, to time.Time) ([]models.DueRenewal, error)
}
