package memory

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

func day(m time.Month, d int) civil.Date {
	return civil.Date{Year: 2024, Month: m, Day: d}
}

func seriesInvoice(series string, issue civil.Date) *entity.Invoice {
	return &entity.Invoice{
		SeriesID:         series,
		ClientID:         "client-1",
		Amount:           decimal.NewFromInt(100),
		Description:      "Retainer",
		IssueDate:        issue,
		DueDate:          issue.AddDays(14),
		BillingFrequency: entity.FrequencyMonthly,
		Status:           entity.StatusScheduled,
	}
}

func TestInvoiceStore_PutAssignsIDAndVersion(t *testing.T) {
	ctx := context.Background()
	s := NewInvoiceStore()

	inv := seriesInvoice("s1", day(time.February, 15))
	require.NoError(t, s.Put(ctx, inv))
	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, int64(1), inv.Version)

	inv.Amount = decimal.NewFromInt(150)
	require.NoError(t, s.Put(ctx, inv))
	assert.Equal(t, int64(2), inv.Version)

	got, err := s.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(150).Equal(got.Amount))
}

func TestInvoiceStore_VersionConflict(t *testing.T) {
	ctx := context.Background()
	s := NewInvoiceStore()

	inv := seriesInvoice("s1", day(time.February, 15))
	require.NoError(t, s.Put(ctx, inv))

	stale := inv.Clone()
	require.NoError(t, s.Put(ctx, inv))

	err := s.Put(ctx, stale)
	assert.ErrorIs(t, err, entity.ErrVersionConflict)
}

func TestInvoiceStore_DuplicateOccurrence(t *testing.T) {
	ctx := context.Background()
	s := NewInvoiceStore()

	require.NoError(t, s.Put(ctx, seriesInvoice("s1", day(time.March, 15))))
	err := s.Put(ctx, seriesInvoice("s1", day(time.March, 15)))
	assert.ErrorIs(t, err, entity.ErrDuplicateOccurrence)

	// a different series may share the date
	require.NoError(t, s.Put(ctx, seriesInvoice("s2", day(time.March, 15))))
}

func TestInvoiceStore_DeleteFreesOccurrence(t *testing.T) {
	ctx := context.Background()
	s := NewInvoiceStore()

	inv := seriesInvoice("s1", day(time.March, 15))
	require.NoError(t, s.Put(ctx, inv))
	require.NoError(t, s.Delete(ctx, inv.ID))

	_, err := s.Get(ctx, inv.ID)
	assert.ErrorIs(t, err, entity.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, inv.ID), entity.ErrNotFound)

	require.NoError(t, s.Put(ctx, seriesInvoice("s1", day(time.March, 15))))
}

func TestInvoiceStore_QueryOrdersByIssueDate(t *testing.T) {
	ctx := context.Background()
	s := NewInvoiceStore()

	for _, d := range []civil.Date{day(time.May, 15), day(time.March, 15), day(time.April, 15)} {
		require.NoError(t, s.Put(ctx, seriesInvoice("s1", d)))
	}

	got, err := s.Query(ctx, entity.InvoiceFilter{SeriesID: "s1", IssueFrom: day(time.April, 1)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, day(time.April, 15), got[0].IssueDate)
	assert.Equal(t, day(time.May, 15), got[1].IssueDate)
}

func TestInvoiceStore_RejectsInvalid(t *testing.T) {
	inv := seriesInvoice("s1", day(time.March, 15))
	inv.DueDate = day(time.March, 1)

	err := NewInvoiceStore().Put(context.Background(), inv)
	assert.ErrorIs(t, err, entity.ErrValidation)
	assert.Empty(t, inv.ID)
}

func TestClientStore_UpdateAppliesPatch(t *testing.T) {
	ctx := context.Background()
	s := NewClientStore()

	c := &entity.Client{Name: "Acme", BillingFrequency: entity.FrequencyMonthly, NextInvoiceDate: day(time.January, 15)}
	require.NoError(t, s.Create(ctx, c))
	assert.Equal(t, entity.ClientActive, c.Status)

	held := true
	updated, err := s.Update(ctx, c.ID, entity.ClientPatch{OnHold: &held, ClearNextInvoiceDate: true})
	require.NoError(t, err)
	assert.True(t, updated.OnHold)
	assert.True(t, updated.NextInvoiceDate.IsZero())

	notHeld := false
	due, err := s.Query(ctx, entity.ClientFilter{OnHold: &notHeld})
	require.NoError(t, err)
	assert.Empty(t, due)

	_, err = s.Update(ctx, "missing", entity.ClientPatch{})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestNumberer_Sequential(t *testing.T) {
	n := NewNumberer("INV-")
	first, err := n.Next(context.Background())
	require.NoError(t, err)
	second, err := n.Next(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "INV-00001", first)
	assert.Equal(t, "INV-00002", second)
}
