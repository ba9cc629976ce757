package repository

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
	"github.com/garyjia/invoice-scheduler/internal/infrastructure/persistence/sqltx"
	"github.com/garyjia/invoice-scheduler/pkg/database"
)

func newTestDB(t *testing.T) *sqltx.DB {
	t.Helper()
	logger := zap.NewNop()
	db, err := database.New(database.Config{Driver: database.DriverSQLite, Path: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).Run(context.Background()))
	return sqltx.NewDB(db.DB, logger)
}

func day(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func scheduled(clientID, seriesID string, issue civil.Date) *entity.Invoice {
	return &entity.Invoice{
		SeriesID:         seriesID,
		ClientID:         clientID,
		ClientName:       "Acme",
		Amount:           decimal.RequireFromString("120.50"),
		Description:      "Retainer",
		IssueDate:        issue,
		DueDate:          issue.AddDays(14),
		BillingFrequency: entity.FrequencyMonthly,
		Status:           entity.StatusScheduled,
	}
}

func TestInvoiceRepository_PutAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewInvoiceRepository(newTestDB(t), zap.NewNop())

	inv := scheduled("c1", "s1", day("2025-02-01"))
	inv.Record(entity.ActivityCreated, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC), "")
	require.NoError(t, repo.Put(ctx, inv))
	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, int64(1), inv.Version)

	got, err := repo.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, day("2025-02-01"), got.IssueDate)
	assert.Equal(t, day("2025-02-15"), got.DueDate)
	assert.True(t, decimal.RequireFromString("120.50").Equal(got.Amount))
	assert.Equal(t, entity.StatusScheduled, got.Status)
	assert.Nil(t, got.PaidAt)
	require.Len(t, got.Activity, 1)
	assert.Equal(t, entity.ActivityCreated, got.Activity[0].Type)
}

func TestInvoiceRepository_GetMissing(t *testing.T) {
	repo := NewInvoiceRepository(newTestDB(t), zap.NewNop())

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestInvoiceRepository_VersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewInvoiceRepository(newTestDB(t), zap.NewNop())

	inv := scheduled("c1", "s1", day("2025-02-01"))
	require.NoError(t, repo.Put(ctx, inv))

	first, err := repo.Get(ctx, inv.ID)
	require.NoError(t, err)
	second, err := repo.Get(ctx, inv.ID)
	require.NoError(t, err)

	first.Status = entity.StatusPending
	first.InvoiceNumber = "INV-00001"
	require.NoError(t, repo.Put(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Description = "stale"
	err = repo.Put(ctx, second)
	assert.ErrorIs(t, err, entity.ErrVersionConflict)

	got, err := repo.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, got.Status)
	assert.Equal(t, "Retainer", got.Description)
}

func TestInvoiceRepository_DuplicateOccurrence(t *testing.T) {
	ctx := context.Background()
	repo := NewInvoiceRepository(newTestDB(t), zap.NewNop())

	require.NoError(t, repo.Put(ctx, scheduled("c1", "s1", day("2025-02-01"))))

	err := repo.Put(ctx, scheduled("c1", "s1", day("2025-02-01")))
	assert.ErrorIs(t, err, entity.ErrDuplicateOccurrence)

	// one-time invoices are not part of the occurrence index
	oneOff := scheduled("c1", "", day("2025-02-01"))
	oneOff.BillingFrequency = entity.FrequencyOneTime
	require.NoError(t, repo.Put(ctx, oneOff))
}

func TestInvoiceRepository_DuplicateNumber(t *testing.T) {
	ctx := context.Background()
	repo := NewInvoiceRepository(newTestDB(t), zap.NewNop())

	a := scheduled("c1", "s1", day("2025-02-01"))
	a.Status, a.InvoiceNumber = entity.StatusPending, "INV-00001"
	require.NoError(t, repo.Put(ctx, a))

	b := scheduled("c1", "s1", day("2025-03-01"))
	b.Status, b.InvoiceNumber = entity.StatusPending, "INV-00001"
	err := repo.Put(ctx, b)
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestInvoiceRepository_DeleteAndReinsertKeepsID(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewInvoiceRepository(db, zap.NewNop())

	inv := scheduled("c1", "s1", day("2025-02-01"))
	require.NoError(t, repo.Put(ctx, inv))
	id := inv.ID

	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		if err := repo.Delete(ctx, id); err != nil {
			return err
		}
		inv.IssueDate = day("2025-02-03")
		inv.DueDate = day("2025-02-17")
		return repo.Put(ctx, inv)
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, day("2025-02-03"), got.IssueDate)
	assert.Equal(t, int64(2), got.Version)
}

func TestInvoiceRepository_DeleteMissing(t *testing.T) {
	repo := NewInvoiceRepository(newTestDB(t), zap.NewNop())

	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestInvoiceRepository_Query(t *testing.T) {
	ctx := context.Background()
	repo := NewInvoiceRepository(newTestDB(t), zap.NewNop())

	for _, d := range []string{"2025-04-01", "2025-02-01", "2025-03-01"} {
		require.NoError(t, repo.Put(ctx, scheduled("c1", "s1", day(d))))
	}
	paid := scheduled("c2", "s2", day("2025-02-01"))
	paid.Status = entity.StatusPaid
	paidAt := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
	paid.PaidAt = &paidAt
	require.NoError(t, repo.Put(ctx, paid))

	all, err := repo.Query(ctx, entity.InvoiceFilter{ClientID: "c1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, day("2025-02-01"), all[0].IssueDate)
	assert.Equal(t, day("2025-04-01"), all[2].IssueDate)

	ranged, err := repo.Query(ctx, entity.InvoiceFilter{
		SeriesID:  "s1",
		IssueFrom: day("2025-03-01"),
		IssueTo:   day("2025-03-31"),
		Statuses:  []entity.InvoiceStatus{entity.StatusScheduled},
	})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, day("2025-03-01"), ranged[0].IssueDate)

	onDay, err := repo.Query(ctx, entity.InvoiceFilter{IssueDate: day("2025-02-01"), Statuses: []entity.InvoiceStatus{entity.StatusPaid}})
	require.NoError(t, err)
	require.Len(t, onDay, 1)
	require.NotNil(t, onDay[0].PaidAt)
	assert.True(t, paidAt.Equal(*onDay[0].PaidAt))

	overdue, err := repo.Query(ctx, entity.InvoiceFilter{DueBefore: day("2025-03-01")})
	require.NoError(t, err)
	assert.Len(t, overdue, 2)
}

func TestClientRepository_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewClientRepository(newTestDB(t), zap.NewNop())

	fee := decimal.RequireFromString("99.00")
	client := &entity.Client{
		Name:             "Acme",
		Email:            "billing@acme.test",
		BillingFrequency: entity.FrequencyMonthly,
		Fee:              &fee,
		NextInvoiceDate:  day("2025-02-01"),
	}
	require.NoError(t, repo.Create(ctx, client))
	assert.NotEmpty(t, client.ID)
	assert.Equal(t, entity.ClientActive, client.Status)

	got, err := repo.Get(ctx, client.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Fee)
	assert.True(t, fee.Equal(*got.Fee))
	assert.Nil(t, got.NetDays)
	assert.Equal(t, day("2025-02-01"), got.NextInvoiceDate)
	assert.True(t, got.LastInvoiced.IsZero())

	netDays := 30
	hold := true
	updated, err := repo.Update(ctx, client.ID, entity.ClientPatch{
		NetDays:              &netDays,
		ClearFee:             true,
		ClearNextInvoiceDate: true,
		OnHold:               &hold,
	})
	require.NoError(t, err)
	assert.Nil(t, updated.Fee)
	assert.True(t, updated.NextInvoiceDate.IsZero())

	got, err = repo.Get(ctx, client.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NetDays)
	assert.Equal(t, 30, *got.NetDays)
	assert.True(t, got.OnHold)
	assert.Nil(t, got.Fee)
}

func TestClientRepository_UpdateValidates(t *testing.T) {
	ctx := context.Background()
	repo := NewClientRepository(newTestDB(t), zap.NewNop())

	client := &entity.Client{Name: "Acme", BillingFrequency: entity.FrequencyMonthly}
	require.NoError(t, repo.Create(ctx, client))

	bad := entity.Frequency("fortnightly-ish")
	_, err := repo.Update(ctx, client.ID, entity.ClientPatch{BillingFrequency: &bad})
	assert.ErrorIs(t, err, entity.ErrValidation)

	_, err = repo.Update(ctx, "missing", entity.ClientPatch{})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestClientRepository_Query(t *testing.T) {
	ctx := context.Background()
	repo := NewClientRepository(newTestDB(t), zap.NewNop())

	due := day("2025-02-01")
	for _, c := range []*entity.Client{
		{Name: "Zeta", BillingFrequency: entity.FrequencyMonthly, NextInvoiceDate: due},
		{Name: "Alpha", BillingFrequency: entity.FrequencyWeekly, NextInvoiceDate: due},
		{Name: "Held", BillingFrequency: entity.FrequencyMonthly, NextInvoiceDate: due, OnHold: true},
		{Name: "Later", BillingFrequency: entity.FrequencyMonthly, NextInvoiceDate: day("2025-03-01")},
	} {
		require.NoError(t, repo.Create(ctx, c))
	}

	notHeld := false
	got, err := repo.Query(ctx, entity.ClientFilter{NextInvoiceDate: due, OnHold: &notHeld})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Alpha", got[0].Name)
	assert.Equal(t, "Zeta", got[1].Name)

	active, err := repo.Query(ctx, entity.ClientFilter{Statuses: []entity.ClientStatus{entity.ClientActive}})
	require.NoError(t, err)
	assert.Len(t, active, 4)
}

func TestSequenceNumberer_Next(t *testing.T) {
	ctx := context.Background()
	numberer := NewSequenceNumberer(newTestDB(t), "INV-", zap.NewNop())

	first, err := numberer.Next(ctx)
	require.NoError(t, err)
	second, err := numberer.Next(ctx)
	require.NoError(t, err)

	assert.Equal(t, "INV-00001", first)
	assert.Equal(t, "INV-00002", second)
}
