package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
	"github.com/garyjia/invoice-scheduler/internal/domain/event"
)

func TestTick_MonthlyClientScenario(t *testing.T) {
	f := newFixture(t, date(2024, time.January, 15))
	client := f.monthlyClient(t, date(2024, time.January, 15))

	report := f.generator.Tick(context.Background())

	assert.Equal(t, 1, report.Due)
	assert.Equal(t, 1, report.Generated)
	assert.Zero(t, report.Failed)

	all := f.query(t, entity.InvoiceFilter{ClientID: client.ID})
	pending := statuses(all, entity.StatusPending)
	scheduled := statuses(all, entity.StatusScheduled)

	require.Len(t, pending, 1)
	assert.Equal(t, date(2024, time.January, 15), pending[0].IssueDate)
	assert.Equal(t, date(2024, time.January, 29), pending[0].DueDate)
	assert.True(t, decimal.NewFromInt(100).Equal(pending[0].Amount))
	assert.Equal(t, "Monthly retainer", pending[0].Description)
	assert.NotEmpty(t, pending[0].InvoiceNumber)
	assert.NotEmpty(t, pending[0].SeriesID)

	require.Len(t, scheduled, 11)
	for i, inv := range scheduled {
		assert.Equal(t, date(2024, time.Month(i+2), 15), inv.IssueDate)
		assert.Equal(t, inv.IssueDate.AddDays(14), inv.DueDate)
		assert.Equal(t, pending[0].SeriesID, inv.SeriesID)
		assert.Empty(t, inv.InvoiceNumber)
	}

	updated := f.reloadClient(t, client.ID)
	assert.Equal(t, date(2024, time.February, 15), updated.NextInvoiceDate)
	assert.Equal(t, date(2024, time.January, 15), updated.LastInvoiced)

	f.notifier.AssertNumberOfCalls(t, "SendInvoiceEmail", 1)

	generated := f.events.ofType(event.TypeInvoiceGenerated)
	require.Len(t, generated, 1)
	assert.Equal(t, pending[0].ID, generated[0].Invoice().ID)
	assert.Equal(t, client.ID, generated[0].Client().ID)
}

func TestTick_SecondRunIsNoop(t *testing.T) {
	f := newFixture(t, date(2024, time.January, 15))
	f.monthlyClient(t, date(2024, time.January, 15))

	first := f.generator.Tick(context.Background())
	before := f.query(t, entity.InvoiceFilter{})

	second := f.generator.Tick(context.Background())
	after := f.query(t, entity.InvoiceFilter{})

	assert.Equal(t, 1, first.Generated)
	assert.Zero(t, second.Due)
	assert.Zero(t, second.Generated)
	assert.Len(t, after, len(before))
}

func TestTick_ConcurrentTicksGenerateOnce(t *testing.T) {
	f := newFixture(t, date(2024, time.January, 15))
	client := f.monthlyClient(t, date(2024, time.January, 15))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.generator.Tick(context.Background())
		}()
	}
	wg.Wait()

	today := f.query(t, entity.InvoiceFilter{ClientID: client.ID, IssueDate: date(2024, time.January, 15)})
	assert.Len(t, today, 1)
}

func TestTick_OneTimeClientClearsPointer(t *testing.T) {
	f := newFixture(t, date(2024, time.March, 1))
	client := f.addClient(t, &entity.Client{
		Name:             "Solo",
		BillingFrequency: entity.FrequencyOneTime,
		Fee:              money(250),
		NextInvoiceDate:  date(2024, time.March, 1),
	})

	report := f.generator.Tick(context.Background())
	require.Equal(t, 1, report.Generated)

	all := f.query(t, entity.InvoiceFilter{ClientID: client.ID})
	require.Len(t, all, 1)
	assert.Empty(t, all[0].SeriesID)
	assert.Equal(t, date(2024, time.March, 15), all[0].DueDate, "account default net days")
	assert.Equal(t, "Professional services", all[0].Description)

	updated := f.reloadClient(t, client.ID)
	assert.True(t, updated.NextInvoiceDate.IsZero())
	assert.Equal(t, date(2024, time.March, 1), updated.LastInvoiced)
	assert.Empty(t, f.events.ofType(event.TypeSeriesPlanned))
}

func TestTick_FallsBackToLatestInvoice(t *testing.T) {
	f := newFixture(t, date(2024, time.June, 1))
	client := f.addClient(t, &entity.Client{
		Name:             "Legacy",
		BillingFrequency: entity.FrequencyOneTime,
		NextInvoiceDate:  date(2024, time.June, 1),
	})
	for _, inv := range []*entity.Invoice{
		{Amount: decimal.NewFromInt(80), Description: "Old", IssueDate: date(2024, time.January, 1)},
		{Amount: decimal.NewFromInt(90), Description: "Newer", IssueDate: date(2024, time.April, 1)},
	} {
		inv.ClientID = client.ID
		inv.DueDate = inv.IssueDate
		inv.BillingFrequency = entity.FrequencyOneTime
		inv.Status = entity.StatusPaid
		require.NoError(t, f.invoices.Put(context.Background(), inv))
	}

	report := f.generator.Tick(context.Background())
	require.Equal(t, 1, report.Generated)

	created := f.query(t, entity.InvoiceFilter{ClientID: client.ID, IssueDate: date(2024, time.June, 1)})
	require.Len(t, created, 1)
	assert.True(t, decimal.NewFromInt(90).Equal(created[0].Amount))
	assert.Equal(t, "Newer", created[0].Description)
}

func TestTick_ClientFailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t, date(2024, time.January, 15))
	broken := f.addClient(t, &entity.Client{
		Name:             "Aaa no terms",
		BillingFrequency: entity.FrequencyMonthly,
		NextInvoiceDate:  date(2024, time.January, 15),
	})
	healthy := f.monthlyClient(t, date(2024, time.January, 15))

	report := f.generator.Tick(context.Background())

	assert.Equal(t, 2, report.Due)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Generated)
	assert.Contains(t, report.Errors, broken.ID)
	assert.Equal(t, date(2024, time.January, 15), f.reloadClient(t, broken.ID).NextInvoiceDate)
	assert.Equal(t, date(2024, time.February, 15), f.reloadClient(t, healthy.ID).NextInvoiceDate)

	// the claim was released, so fixing the client lets the next tick bill it
	_, err := f.clients.Update(context.Background(), broken.ID, entity.ClientPatch{Fee: money(40)})
	require.NoError(t, err)

	retry := f.generator.Tick(context.Background())
	assert.Equal(t, 1, retry.Generated)
	assert.Zero(t, retry.Failed)
}

func TestTick_SkipsInactiveClients(t *testing.T) {
	f := newFixture(t, date(2024, time.January, 15))
	f.addClient(t, &entity.Client{
		Name:             "Gone",
		BillingFrequency: entity.FrequencyMonthly,
		Fee:              money(10),
		NextInvoiceDate:  date(2024, time.January, 15),
		Status:           entity.ClientCancelled,
	})
	f.addClient(t, &entity.Client{
		Name:             "Paused",
		BillingFrequency: entity.FrequencyMonthly,
		Fee:              money(10),
		NextInvoiceDate:  date(2024, time.January, 15),
		OnHold:           true,
	})

	report := f.generator.Tick(context.Background())

	assert.Equal(t, 1, report.Due, "held clients are not even loaded")
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, f.query(t, entity.InvoiceFilter{}))
}

func TestTick_PromotesScheduledOccurrence(t *testing.T) {
	f := newFixture(t, date(2024, time.January, 15))
	client := f.monthlyClient(t, date(2024, time.January, 15))
	f.generator.Tick(context.Background())

	f.clock.Set(date(2024, time.February, 15))
	report := f.generator.Tick(context.Background())

	assert.Equal(t, 1, report.Promoted)
	assert.Zero(t, report.Generated)

	feb := f.query(t, entity.InvoiceFilter{ClientID: client.ID, IssueDate: date(2024, time.February, 15)})
	require.Len(t, feb, 1)
	assert.Equal(t, entity.StatusPending, feb[0].Status)
	assert.NotEmpty(t, feb[0].InvoiceNumber)

	// the horizon is topped up by one occurrence
	scheduled := f.query(t, entity.InvoiceFilter{ClientID: client.ID, Statuses: []entity.InvoiceStatus{entity.StatusScheduled}})
	require.Len(t, scheduled, 11)
	assert.Equal(t, date(2025, time.January, 15), scheduled[len(scheduled)-1].IssueDate)

	assert.Equal(t, date(2024, time.March, 15), f.reloadClient(t, client.ID).NextInvoiceDate)
}

func TestTick_MonthEndSeriesDoesNotDrift(t *testing.T) {
	f := newFixture(t, date(2024, time.January, 31))
	client := f.monthlyClient(t, date(2024, time.January, 31))
	f.generator.Tick(context.Background())
	assert.Equal(t, date(2024, time.February, 29), f.reloadClient(t, client.ID).NextInvoiceDate)

	f.clock.Set(date(2024, time.February, 29))
	f.generator.Tick(context.Background())

	assert.Equal(t, date(2024, time.March, 31), f.reloadClient(t, client.ID).NextInvoiceDate)
	scheduled := f.query(t, entity.InvoiceFilter{ClientID: client.ID, Statuses: []entity.InvoiceStatus{entity.StatusScheduled}})
	assert.Equal(t, date(2025, time.January, 31), scheduled[len(scheduled)-1].IssueDate)
}

func TestTick_AlreadyIssuedTodayAdvancesPointer(t *testing.T) {
	f := newFixture(t, date(2024, time.January, 15))
	client := f.monthlyClient(t, date(2024, time.January, 15))
	require.NoError(t, f.invoices.Put(context.Background(), &entity.Invoice{
		ClientID:         client.ID,
		Amount:           decimal.NewFromInt(100),
		IssueDate:        date(2024, time.January, 15),
		DueDate:          date(2024, time.January, 29),
		BillingFrequency: entity.FrequencyOneTime,
		Status:           entity.StatusPending,
		InvoiceNumber:    "MANUAL-1",
	}))

	report := f.generator.Tick(context.Background())

	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Generated)
	assert.Len(t, f.query(t, entity.InvoiceFilter{ClientID: client.ID}), 1)
	assert.Equal(t, date(2024, time.February, 15), f.reloadClient(t, client.ID).NextInvoiceDate)
}

func TestTick_NotifierFailureKeepsInvoice(t *testing.T) {
	notifier := new(MockNotifier)
	notifier.On("SendInvoiceEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("smtp down"))
	f := newFixtureWith(t, date(2024, time.January, 15), notifier)
	client := f.monthlyClient(t, date(2024, time.January, 15))

	report := f.generator.Tick(context.Background())

	assert.Equal(t, 1, report.Generated)
	assert.Zero(t, report.Failed)
	assert.Equal(t, date(2024, time.February, 15), f.reloadClient(t, client.ID).NextInvoiceDate)
	notifier.AssertExpectations(t)
}

func TestTick_StoreTimeoutSkipsClient(t *testing.T) {
	f := newFixture(t, date(2024, time.January, 15))
	slow := f.monthlyClient(t, date(2024, time.January, 15))
	fast := f.addClient(t, &entity.Client{
		Name:             "Zed",
		BillingFrequency: entity.FrequencyOneTime,
		Fee:              money(5),
		NextInvoiceDate:  date(2024, time.January, 15),
	})

	cfg := DefaultSchedulerConfig()
	cfg.StoreTimeout = 20 * time.Millisecond
	store := &blockingStore{InvoiceStore: f.invoices, blockClient: slow.ID}
	gen := NewGenerationService(store, f.clients, newTestNumberer(), newTestGuard(), f.notifier, f.planner, f.clock, nil, cfg, nopLogger{})

	report := gen.Tick(context.Background())

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Generated)
	assert.Contains(t, report.Errors[slow.ID], "timed out")
	assert.Equal(t, date(2024, time.January, 15), f.reloadClient(t, slow.ID).NextInvoiceDate)
	assert.True(t, f.reloadClient(t, fast.ID).NextInvoiceDate.IsZero())
}

func TestTick_PointerUpdateFailureIsRepairedSameDay(t *testing.T) {
	f := newFixture(t, date(2024, time.January, 15))
	client := f.monthlyClient(t, date(2024, time.January, 15))

	clients := &flakyClients{ClientStore: f.clients, failUpdates: 1}
	gen := NewGenerationService(f.invoices, clients, newTestNumberer(), newTestGuard(), f.notifier, f.planner, f.clock, nil, DefaultSchedulerConfig(), nopLogger{})

	first := gen.Tick(context.Background())
	require.Equal(t, 1, first.Generated)
	assert.Equal(t, date(2024, time.January, 15), f.reloadClient(t, client.ID).NextInvoiceDate)

	retry := gen.Tick(context.Background())
	assert.Equal(t, 1, retry.Due)
	assert.Equal(t, 1, retry.Skipped)
	assert.Zero(t, retry.Generated)
	assert.Zero(t, retry.Failed)

	issued := f.query(t, entity.InvoiceFilter{ClientID: client.ID, IssueDate: date(2024, time.January, 15)})
	assert.Len(t, issued, 1)
	updated := f.reloadClient(t, client.ID)
	assert.Equal(t, date(2024, time.February, 15), updated.NextInvoiceDate)
	assert.Equal(t, date(2024, time.January, 15), updated.LastInvoiced)
}
