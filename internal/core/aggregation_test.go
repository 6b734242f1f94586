package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/subtracker/internal/models"
)

func sub(id string, price float64, cycle models.BillingCycle, active bool) models.Subscription {
	return models.Subscription{
		ID: id,
		SubscriptionFields: models.SubscriptionFields{
			ServiceName:   id,
			Category:      models.CategoryEntertainment,
			Price:         price,
			BillingCycle:  cycle,
			PaymentMethod: models.PaymentCard,
			IsActive:      active,
		},
	}
}

func TestCosts_InactiveExcluded(t *testing.T) {
	list := []models.Subscription{
		sub("a", 100, models.BillingMonthly, true),
		sub("b", 1200, models.BillingYearly, false),
	}
	assert.Equal(t, 100.0, MonthlyCost(list, Filters{}))
	assert.Equal(t, 1200.0, YearlyCost(list, Filters{}))
}

func TestCosts_YearlyContribution(t *testing.T) {
	list := []models.Subscription{
		sub("a", 100, models.BillingMonthly, true),
		sub("b", 1200, models.BillingYearly, true),
	}
	assert.Equal(t, 200.0, MonthlyCost(list, Filters{}))
	assert.Equal(t, 2400.0, YearlyCost(list, Filters{}))
	assert.Equal(t, 0.0, MonthlyCost(nil, Filters{}))
}

func TestApplyFilters_StatusKeepsOrder(t *testing.T) {
	list := []models.Subscription{
		sub("1", 1, models.BillingMonthly, true),
		sub("2", 1, models.BillingMonthly, false),
		sub("3", 1, models.BillingMonthly, true),
		sub("4", 1, models.BillingMonthly, false),
		sub("5", 1, models.BillingMonthly, true),
	}
	active := ApplyFilters(list, Filters{Status: StatusActive})
	assert.Equal(t, []string{"1", "3", "5"}, names(active))

	inactive := ApplyFilters(list, Filters{Status: StatusInactive})
	assert.Equal(t, []string{"2", "4"}, names(inactive))

	assert.Len(t, ApplyFilters(list, Filters{}), 5)
	assert.Empty(t, ApplyFilters(list, Filters{Status: "paused"}))
}

func TestApplyFilters_CombinedWithAnd(t *testing.T) {
	gym := sub("gym", 30, models.BillingMonthly, true)
	gym.Category = models.CategoryFitness
	gym.PaymentMethod = models.PaymentCash
	list := []models.Subscription{
		sub("netflix", 15, models.BillingMonthly, true),
		gym,
		sub("cloud", 120, models.BillingYearly, true),
	}

	got := ApplyFilters(list, Filters{Category: models.CategoryFitness, PaymentMethod: models.PaymentCash})
	assert.Equal(t, []string{"gym"}, names(got))
	assert.Empty(t, ApplyFilters(list, Filters{Category: models.CategoryFitness, PaymentMethod: models.PaymentCard}))
	assert.Equal(t, []string{"cloud"}, names(ApplyFilters(list, Filters{BillingCycle: models.BillingYearly})))

	assert.Equal(t, 30.0, MonthlyCost(list, Filters{Category: models.CategoryFitness}))
}

func TestFilters_Validate(t *testing.T) {
	assert.NoError(t, Filters{}.Validate())
	assert.NoError(t, Filters{Category: models.CategoryGaming, Status: StatusInactive}.Validate())
	assert.ErrorIs(t, Filters{Status: "paused"}.Validate(), ErrValidation)
	assert.ErrorIs(t, Filters{Category: "Music"}.Validate(), ErrValidation)
	assert.ErrorIs(t, Filters{PaymentMethod: "Crypto"}.Validate(), ErrValidation)
}

func TestSummarize(t *testing.T) {
	list := []models.Subscription{
		sub("a", 9.99, models.BillingMonthly, true),
		sub("b", 100, models.BillingYearly, true),
		sub("c", 50, models.BillingMonthly, false),
	}
	s := Summarize(list, Filters{})
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 2, s.ActiveCount)
	assert.InDelta(t, 9.99+100.0/12, s.MonthlyTotal, 1e-9)
	assert.Equal(t, "18.32", s.MonthlyDisplay)
	assert.Equal(t, "219.88", s.YearlyDisplay)
}

func TestSummaryMemo(t *testing.T) {
	list := []models.Subscription{sub("a", 10, models.BillingMonthly, true)}
	var memo SummaryMemo

	first := memo.Get(1, list, Filters{})
	assert.Equal(t, 10.0, first.MonthlyTotal)

	// Same version and filters reuse the cached value even if handed a different slice.
	list = append(list, sub("b", 5, models.BillingMonthly, true))
	assert.Equal(t, first, memo.Get(1, list, Filters{}))

	second := memo.Get(2, list, Filters{})
	require.Equal(t, 15.0, second.MonthlyTotal)
	assert.Equal(t, 0, memo.Get(2, list, Filters{Status: StatusInactive}).Count)
}

func TestCosts_SingleCycleRelation(t *testing.T) {
	cases := []struct {
		name  string
		cycle models.BillingCycle
		list  []models.Subscription
	}{
		{"monthly", models.BillingMonthly, []models.Subscription{
			sub("a", 9.99, models.BillingMonthly, true),
			sub("b", 15.49, models.BillingMonthly, true),
			sub("c", 0.1, models.BillingMonthly, true),
			sub("d", 80, models.BillingMonthly, false),
		}},
		{"monthly with yearly inactive", models.BillingMonthly, []models.Subscription{
			sub("a", 12.34, models.BillingMonthly, true),
			sub("b", 999, models.BillingYearly, false),
			sub("c", 7.77, models.BillingMonthly, true),
		}},
		{"yearly", models.BillingYearly, []models.Subscription{
			sub("a", 119.88, models.BillingYearly, true),
			sub("b", 0.3, models.BillingYearly, true),
			sub("c", 49, models.BillingYearly, true),
		}},
		{"yearly with monthly inactive", models.BillingYearly, []models.Subscription{
			sub("a", 1200, models.BillingYearly, true),
			sub("b", 5, models.BillingMonthly, false),
			sub("c", 33.33, models.BillingYearly, true),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			monthly := MonthlyCost(tc.list, Filters{})
			yearly := YearlyCost(tc.list, Filters{})
			require.Greater(t, monthly, 0.0)
			assert.InDelta(t, monthly*12, yearly, 1e-9)

			// The cycle filter leaves the same active set, so the totals hold.
			f := Filters{BillingCycle: tc.cycle}
			assert.InDelta(t, monthly, MonthlyCost(tc.list, f), 1e-9)
			assert.InDelta(t, yearly, YearlyCost(tc.list, f), 1e-9)
		})
	}
}

func TestApplyFilters_SameInputSameResult(t *testing.T) {
	list := []models.Subscription{
		sub("1", 10, models.BillingMonthly, true),
		sub("2", 120, models.BillingYearly, false),
		sub("3", 20, models.BillingMonthly, true),
		sub("4", 240, models.BillingYearly, true),
	}
	before := append([]models.Subscription(nil), list...)

	for _, f := range []Filters{{}, {Status: StatusActive}, {BillingCycle: models.BillingYearly}, {Status: StatusInactive, BillingCycle: models.BillingYearly}} {
		assert.Equal(t, ApplyFilters(list, f), ApplyFilters(list, f))
		assert.Equal(t, Summarize(list, f), Summarize(list, f))
	}
	assert.Equal(t, before, list)
}
