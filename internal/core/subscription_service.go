package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/subtracker/internal/db"
	"github.com/example/subtracker/internal/models"
)

// SubscriptionService validates and persists a user's subscriptions.
// Reads of the whole list go through Projection instead.
type SubscriptionService struct {
	store     db.SubscriptionStore
	validator *InputValidator
	clock     Clock
	location  *time.Location
	logger    *zap.Logger
}

// NewSubscriptionService creates a SubscriptionService. Default renewal dates
// are computed on the calendar of location.
func NewSubscriptionService(store db.SubscriptionStore, clock Clock, location *time.Location, logger *zap.Logger) *SubscriptionService {
	if clock == nil {
		clock = NewSystemClock()
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionService{
		store:     store,
		validator: NewInputValidator(),
		clock:     clock,
		location:  location,
		logger:    logger,
	}
}

// Add validates input and stores it as a new subscription, returning its id.
func (s *SubscriptionService) Add(ctx context.Context, userID string, in models.SubscriptionInput) (string, error) {
	if userID == "" {
		return "", ErrUnauthenticated
	}
	fields, err := s.normalize(in)
	if err != nil {
		return "", err
	}
	id, err := s.store.Create(ctx, userID, fields)
	if err != nil {
		return "", fmt.Errorf("failed to add subscription: %w", err)
	}
	s.logger.Debug("Subscription added", zap.String("userID", userID), zap.String("subscriptionID", id))
	return id, nil
}

// Update overwrites every mutable field of the subscription at id.
func (s *SubscriptionService) Update(ctx context.Context, userID, id string, in models.SubscriptionInput) error {
	if err := requireIdentity(userID, id); err != nil {
		return err
	}
	fields, err := s.normalize(in)
	if err != nil {
		return err
	}
	if err := s.store.Write(ctx, userID, id, fields); err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return nil
}

// Delete removes the subscription at id. A missing id is not an error.
func (s *SubscriptionService) Delete(ctx context.Context, userID, id string) error {
	if err := requireIdentity(userID, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, userID, id); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionService) Get(ctx context.Context, userID, id string) (*models.Subscription, error) {
	if err := requireIdentity(userID, id); err != nil {
		return nil, err
	}
	sub, err := s.store.ReadOnce(ctx, userID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// SetActive writes only the isActive flag of the subscription at id.
func (s *SubscriptionService) SetActive(ctx context.Context, userID, id string, isActive bool) error {
	if err := requireIdentity(userID, id); err != nil {
		return err
	}
	if err := s.store.WriteActive(ctx, userID, id, isActive); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
		}
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	return nil
}

func requireIdentity(userID, id string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	if strings.TrimSpace(id) == "" {
		return newValidationError("id", "Subscription ID is required.")
	}
	return nil
}

func (s *SubscriptionService) normalize(in models.SubscriptionInput) (models.SubscriptionFields, error) {
	in.ServiceName = strings.TrimSpace(in.ServiceName)
	if err := s.validator.ValidateSubscription(in); err != nil {
		return models.SubscriptionFields{}, err
	}

	isActive := true
	if in.IsActive != nil {
		isActive = *in.IsActive
	}
	return models.SubscriptionFields{
		ServiceName:   in.ServiceName,
		Category:      in.Category,
		Price:         float64(in.Price),
		BillingCycle:  in.BillingCycle,
		RenewalDate:   s.renewalDate(in),
		PaymentMethod: in.PaymentMethod,
		Notes:         strings.TrimSpace(in.Notes),
		IsActive:      isActive,
	}, nil
}

// renewalDate returns the explicit date when given, else one billing period
// from now. A zero date counts as not given.
func (s *SubscriptionService) renewalDate(in models.SubscriptionInput) int64 {
	if in.RenewalDate.Valid && in.RenewalDate.Millis != 0 {
		return in.RenewalDate.Millis
	}
	now := s.clock.Now().In(s.location)
	if in.BillingCycle == models.BillingYearly {
		return now.AddDate(1, 0, 0).UnixMilli()
	}
	return now.AddDate(0, 1, 0).UnixMilli()
}
