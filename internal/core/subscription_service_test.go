package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/subtracker/internal/db"
	"github.com/example/subtracker/internal/models"
)

var testNow = time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*SubscriptionService, *db.MemoryStore, *FixedClock) {
	t.Helper()
	clock := NewFixedClock(testNow)
	store := db.NewMemoryStore(clock.Now)
	return NewSubscriptionService(store, clock, time.UTC, nil), store, clock
}

func netflixInput() models.SubscriptionInput {
	return models.SubscriptionInput{
		ServiceName:   "  Netflix ",
		Category:      models.CategoryEntertainment,
		Price:         80,
		BillingCycle:  models.BillingMonthly,
		PaymentMethod: models.PaymentCard,
		Notes:         " family plan ",
	}
}

func TestSubscriptionService_AddDefaultsRenewalAndActive(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	id, err := svc.Add(ctx, "u1", netflixInput())
	require.NoError(t, err)

	sub, err := svc.Get(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, "Netflix", sub.ServiceName)
	assert.Equal(t, "family plan", sub.Notes)
	assert.Equal(t, 80.0, sub.Price)
	assert.True(t, sub.IsActive)
	assert.Equal(t, testNow.UnixMilli(), sub.CreatedAt)
	assert.Equal(t, testNow.AddDate(0, 1, 0).UnixMilli(), sub.RenewalDate)

	list := []models.Subscription{*sub}
	assert.Equal(t, 80.0, MonthlyCost(list, Filters{}))
	assert.Equal(t, 960.0, YearlyCost(list, Filters{}))
}

func TestSubscriptionService_AddYearlyAndExplicitRenewal(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	in := netflixInput()
	in.BillingCycle = models.BillingYearly
	id, err := svc.Add(ctx, "u1", in)
	require.NoError(t, err)
	sub, err := svc.Get(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, testNow.AddDate(1, 0, 0).UnixMilli(), sub.RenewalDate)

	explicit := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	in.RenewalDate = models.MillisOf(explicit)
	inactive := false
	in.IsActive = &inactive
	id, err = svc.Add(ctx, "u1", in)
	require.NoError(t, err)
	sub, err = svc.Get(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, explicit.UnixMilli(), sub.RenewalDate)
	assert.False(t, sub.IsActive)
}

func TestSubscriptionService_ZeroRenewalDateFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	var in models.SubscriptionInput
	require.NoError(t, json.Unmarshal([]byte(`{"serviceName":"Netflix","category":"Entertainment",
		"price":80,"billingCycle":"Monthly","paymentMethod":"Card","renewalDate":0}`), &in))
	require.True(t, in.RenewalDate.Valid)

	id, err := svc.Add(ctx, "u1", in)
	require.NoError(t, err)
	sub, err := svc.Get(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, testNow.AddDate(0, 1, 0).UnixMilli(), sub.RenewalDate)

	in.BillingCycle = models.BillingYearly
	require.NoError(t, svc.Update(ctx, "u1", id, in))
	sub, err = svc.Get(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, testNow.AddDate(1, 0, 0).UnixMilli(), sub.RenewalDate)
}

func TestSubscriptionService_RenewalUsesConfiguredZone(t *testing.T) {
	ctx := context.Background()
	clock := NewFixedClock(time.Date(2025, time.January, 31, 12, 0, 0, 0, time.UTC))
	store := db.NewMemoryStore(clock.Now)
	zone := time.FixedZone("UTC+14", 14*3600)

	id, err := NewSubscriptionService(store, clock, zone, nil).Add(ctx, "u1", netflixInput())
	require.NoError(t, err)
	sub, err := store.ReadOnce(ctx, "u1", id)
	require.NoError(t, err)
	// Feb 1 in UTC+14 plus one month is Mar 1 local.
	assert.Equal(t, time.Date(2025, time.March, 1, 2, 0, 0, 0, zone).UnixMilli(), sub.RenewalDate)

	id, err = NewSubscriptionService(store, clock, time.UTC, nil).Add(ctx, "u1", netflixInput())
	require.NoError(t, err)
	sub, err = store.ReadOnce(ctx, "u1", id)
	require.NoError(t, err)
	// Jan 31 plus one month overflows into March.
	assert.Equal(t, time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC).UnixMilli(), sub.RenewalDate)
}

func TestSubscriptionService_ValidationMessages(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	cases := []struct {
		name   string
		mutate func(*models.SubscriptionInput)
		want   string
	}{
		{"blank name", func(in *models.SubscriptionInput) { in.ServiceName = "   " }, "Service name is required."},
		{"everything missing", func(in *models.SubscriptionInput) { *in = models.SubscriptionInput{} }, "Service name is required."},
		{"missing category", func(in *models.SubscriptionInput) { in.Category = "" }, "Category is required."},
		{"unknown category", func(in *models.SubscriptionInput) { in.Category = "Music" }, "Category is not recognized."},
		{"zero price", func(in *models.SubscriptionInput) { in.Price = 0 }, "Price must be greater than 0."},
		{"negative price", func(in *models.SubscriptionInput) { in.Price = -5 }, "Price must be greater than 0."},
		{"missing cycle", func(in *models.SubscriptionInput) { in.BillingCycle = "" }, "Billing cycle is required."},
		{"unknown cycle", func(in *models.SubscriptionInput) { in.BillingCycle = "Weekly" }, "Billing cycle is not recognized."},
		{"missing payment", func(in *models.SubscriptionInput) { in.PaymentMethod = "" }, "Payment method is required."},
		{"price before cycle", func(in *models.SubscriptionInput) { in.Price = 0; in.BillingCycle = "" }, "Price must be greater than 0."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := netflixInput()
			tc.mutate(&in)
			_, err := svc.Add(ctx, "u1", in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tc.want, vErr.Message)
		})
	}
	assert.Equal(t, 0, store.Len("u1"))
}

func TestSubscriptionService_InvalidUpdateDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	id, err := svc.Add(ctx, "u1", netflixInput())
	require.NoError(t, err)

	in := netflixInput()
	in.Price = 0
	err = svc.Update(ctx, "u1", id, in)
	assert.ErrorIs(t, err, ErrValidation)

	sub, err := svc.Get(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, 80.0, sub.Price)
}

func TestSubscriptionService_UpdateKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)
	id, err := svc.Add(ctx, "u1", netflixInput())
	require.NoError(t, err)

	clock.Advance(48 * time.Hour)
	in := netflixInput()
	in.ServiceName = "Netflix 4K"
	in.Price = 120
	require.NoError(t, svc.Update(ctx, "u1", id, in))

	sub, err := svc.Get(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, "Netflix 4K", sub.ServiceName)
	assert.Equal(t, 120.0, sub.Price)
	assert.Equal(t, testNow.UnixMilli(), sub.CreatedAt)
	assert.Equal(t, clock.Now().AddDate(0, 1, 0).UnixMilli(), sub.RenewalDate)
}

func TestSubscriptionService_SetActiveTouchesOnlyStatus(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	id, err := svc.Add(ctx, "u1", netflixInput())
	require.NoError(t, err)
	before, err := svc.Get(ctx, "u1", id)
	require.NoError(t, err)

	require.NoError(t, svc.SetActive(ctx, "u1", id, false))
	after, err := svc.Get(ctx, "u1", id)
	require.NoError(t, err)

	assert.False(t, after.IsActive)
	after.IsActive = true
	assert.Equal(t, before, after)

	err = svc.SetActive(ctx, "u1", "missing", true)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestSubscriptionService_DeleteAndGetMissing(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	id, err := svc.Add(ctx, "u1", netflixInput())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "u1", id))
	require.NoError(t, svc.Delete(ctx, "u1", id))

	_, err = svc.Get(ctx, "u1", id)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestSubscriptionService_RequiresUserAndID(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Add(ctx, "", netflixInput())
	assert.ErrorIs(t, err, ErrUnauthenticated)

	err = svc.Delete(ctx, "u1", "")
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Subscription ID is required.", err.Error())

	_, err = svc.Get(ctx, "", "abc")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSubscriptionService_StoreFailure(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	boom := errors.New("unavailable")
	store.SetFailure(boom)

	_, err := svc.Add(ctx, "u1", netflixInput())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrValidation)
}
