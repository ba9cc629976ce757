package service

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
)

func (f *fixture) seed(t *testing.T, clientID string, issue civil.Date, freq entity.Frequency) *entity.Invoice {
	t.Helper()
	inv := &entity.Invoice{
		ClientID:         clientID,
		ClientName:       "Acme",
		Amount:           decimal.NewFromInt(100),
		Description:      "Retainer",
		IssueDate:        issue,
		DueDate:          issue.AddDays(14),
		BillingFrequency: freq,
		Status:           entity.StatusPending,
	}
	require.NoError(t, f.invoices.Put(context.Background(), inv))
	return inv
}

func TestPlan_FrequenciesStayOrderedAndUnique(t *testing.T) {
	tests := []struct {
		freq entity.Frequency
		want int
	}{
		{entity.FrequencyWeekly, 52},
		{entity.FrequencyBiweekly, 26},
		{entity.FrequencyMonthly, 11},
		{entity.FrequencyQuarterly, 3},
		{entity.FrequencyBiannually, 1},
		{entity.FrequencyAnnually, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			f := newFixture(t, date(2024, time.January, 15))
			client := f.monthlyClient(t, civil.Date{})
			seed := f.seed(t, client.ID, date(2024, time.January, 15), tt.freq)

			planned, err := f.planner.Plan(context.Background(), seed)
			require.NoError(t, err)
			assert.Len(t, planned, tt.want)

			seen := map[civil.Date]bool{seed.IssueDate: true}
			prev := seed.IssueDate
			for _, inv := range planned {
				assert.True(t, inv.IssueDate.After(prev), "%s not after %s", inv.IssueDate, prev)
				assert.False(t, seen[inv.IssueDate])
				assert.Equal(t, entity.StatusScheduled, inv.Status)
				assert.Equal(t, seed.SeriesID, inv.SeriesID)
				seen[inv.IssueDate] = true
				prev = inv.IssueDate
			}
		})
	}
}

func TestPlan_AssignsSeriesID(t *testing.T) {
	f := newFixture(t, date(2024, time.January, 15))
	client := f.monthlyClient(t, civil.Date{})
	seed := f.seed(t, client.ID, date(2024, time.January, 15), entity.FrequencyQuarterly)
	require.Empty(t, seed.SeriesID)

	planned, err := f.planner.Plan(context.Background(), seed)
	require.NoError(t, err)
	require.NotEmpty(t, seed.SeriesID)

	stored, err := f.invoices.Get(context.Background(), seed.ID)
	require.NoError(t, err)
	assert.Equal(t, seed.SeriesID, stored.SeriesID)
	for _, inv := range planned {
		assert.Equal(t, seed.SeriesID, inv.SeriesID)
	}
}

func TestPlan_UsesClientNetDays(t *testing.T) {
	f := newFixture(t, date(2024, time.January, 15))
	client := f.addClient(t, &entity.Client{Name: "Net0", BillingFrequency: entity.FrequencyMonthly, NetDays: intPtr(0)})
	seed := f.seed(t, client.ID, date(2024, time.January, 15), entity.FrequencyMonthly)

	planned, err := f.planner.Plan(context.Background(), seed)
	require.NoError(t, err)
	for _, inv := range planned {
		assert.Equal(t, inv.IssueDate, inv.DueDate)
	}
}

func TestPlan_RejectsInvalidSeeds(t *testing.T) {
	f := newFixture(t, date(2024, time.January, 15))
	client := f.monthlyClient(t, civil.Date{})

	oneTime := f.seed(t, client.ID, date(2024, time.January, 15), entity.FrequencyOneTime)
	_, err := f.planner.Plan(context.Background(), oneTime)
	assert.ErrorIs(t, err, entity.ErrValidation)

	_, err = f.planner.Plan(context.Background(), &entity.Invoice{BillingFrequency: entity.FrequencyMonthly})
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestExtend_UnknownSeries(t *testing.T) {
	f := newFixture(t, date(2024, time.January, 15))
	_, err := f.planner.Extend(context.Background(), "nope")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestExtend_IsNoopWhenHorizonCovered(t *testing.T) {
	f := newFixture(t, date(2024, time.January, 15))
	client := f.monthlyClient(t, civil.Date{})
	seed := f.seed(t, client.ID, date(2024, time.January, 15), entity.FrequencyMonthly)
	_, err := f.planner.Plan(context.Background(), seed)
	require.NoError(t, err)

	added, err := f.planner.Extend(context.Background(), seed.SeriesID)
	require.NoError(t, err)
	assert.Empty(t, added)
}

func TestPlan_SkipsOccurrencesBeforeToday(t *testing.T) {
	f := newFixture(t, date(2024, time.January, 15))
	client := f.monthlyClient(t, civil.Date{})
	seed := f.seed(t, client.ID, date(2023, time.June, 1), entity.FrequencyMonthly)

	planned, err := f.planner.Plan(context.Background(), seed)
	require.NoError(t, err)
	require.Len(t, planned, 12)
	assert.Equal(t, date(2024, time.February, 1), planned[0].IssueDate)
	assert.Equal(t, date(2025, time.January, 1), planned[len(planned)-1].IssueDate)

	added, err := f.planner.Extend(context.Background(), seed.SeriesID)
	require.NoError(t, err)
	assert.Empty(t, added)
}

func TestPlan_NetDaysLookup(t *testing.T) {
	t.Run("missing client uses account default", func(t *testing.T) {
		f := newFixture(t, date(2024, time.January, 15))
		seed := f.seed(t, "gone", date(2024, time.January, 15), entity.FrequencyQuarterly)

		planned, err := f.planner.Plan(context.Background(), seed)
		require.NoError(t, err)
		for _, inv := range planned {
			assert.Equal(t, inv.IssueDate.AddDays(14), inv.DueDate)
		}
	})

	t.Run("store failure aborts planning", func(t *testing.T) {
		f := newFixture(t, date(2024, time.January, 15))
		client := f.addClient(t, &entity.Client{Name: "Net0", BillingFrequency: entity.FrequencyMonthly, NetDays: intPtr(0)})
		seed := f.seed(t, client.ID, date(2024, time.January, 15), entity.FrequencyMonthly)

		clients := &flakyClients{ClientStore: f.clients, down: true}
		planner := NewSeriesPlanner(f.invoices, clients, f.clock, nil, DefaultSchedulerConfig(), nopLogger{})

		planned, err := planner.Plan(context.Background(), seed)
		assert.ErrorIs(t, err, errConnReset)
		assert.Empty(t, planned)
		assert.Empty(t, f.query(t, entity.InvoiceFilter{Statuses: []entity.InvoiceStatus{entity.StatusScheduled}}))
	})
}
