package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/garyjia/invoice-scheduler/internal/application/dispatcher"
	"github.com/garyjia/invoice-scheduler/internal/application/port"
	"github.com/garyjia/invoice-scheduler/internal/domain/daterule"
	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
	"github.com/garyjia/invoice-scheduler/internal/domain/event"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// SchedulerConfig holds the knobs shared by the planner, editor and daemon
type SchedulerConfig struct {
	HorizonMonths int
	StoreTimeout  time.Duration
	Account       entity.AccountConfig
}

// DefaultSchedulerConfig returns a 12 month horizon, 5s store timeout and net 14
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		HorizonMonths: 12,
		StoreTimeout:  5 * time.Second,
		Account:       entity.AccountConfig{NetDays: 14},
	}
}

// withStoreTimeout bounds a store call and reports deadline hits as StoreTimeoutError
func withStoreTimeout(ctx context.Context, timeout time.Duration, op string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(callCtx)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded)) {
		return &entity.StoreTimeoutError{Op: op, Err: err}
	}
	return err
}

// withStoreResult is withStoreTimeout for calls that return a value
func withStoreResult[T any](ctx context.Context, timeout time.Duration, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := withStoreTimeout(ctx, timeout, op, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// publish sends evt to subscribers; subscriber failures never fail the caller
func publish(ctx context.Context, d dispatcher.Dispatcher, logger Logger, evt *event.Event) {
	if d == nil {
		return
	}
	if err := d.Dispatch(ctx, evt); err != nil {
		logger.Error("Event subscriber failed", "event_type", evt.Type, "event_id", evt.ID, "error", err)
	}
}

// netDaysFor resolves the effective net days of a client. A client that no
// longer exists falls back to the account default; other failures propagate.
func netDaysFor(ctx context.Context, clients port.ClientStore, clientID string, cfg SchedulerConfig) (int, error) {
	client, err := withStoreResult(ctx, cfg.StoreTimeout, "get client", func(ctx context.Context) (*entity.Client, error) {
		return clients.Get(ctx, clientID)
	})
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return cfg.Account.NetDays, nil
	case err != nil:
		return 0, fmt.Errorf("resolve net days: %w", err)
	}
	return client.EffectiveNetDays(cfg.Account), nil
}

// nextBillingDate computes the client's pointer after billing on today: the
// earliest scheduled occurrence still ahead, else the next date on the
// client's cadence. One-time clients without scheduled rows get a zero date.
func nextBillingDate(ctx context.Context, invoices port.InvoiceStore, client *entity.Client, today civil.Date) (civil.Date, error) {
	upcoming, err := invoices.Query(ctx, entity.InvoiceFilter{
		ClientID:  client.ID,
		Statuses:  []entity.InvoiceStatus{entity.StatusScheduled},
		IssueFrom: today.AddDays(1),
	})
	if err != nil {
		return civil.Date{}, err
	}
	if len(upcoming) > 0 {
		return upcoming[0].IssueDate, nil
	}
	if !client.BillingFrequency.IsRecurring() {
		return civil.Date{}, nil
	}
	return daterule.NextOccurrence(today, client.BillingFrequency)
}

// pointerPatch builds the patch that moves a client's pointer to next
func pointerPatch(next civil.Date) entity.ClientPatch {
	if next.IsZero() {
		return entity.ClientPatch{ClearNextInvoiceDate: true}
	}
	return entity.ClientPatch{NextInvoiceDate: &next}
}

func invoiceIDs(list []*entity.Invoice) []string {
	ids := make([]string, len(list))
	for i, inv := range list {
		ids[i] = inv.ID
	}
	return ids
}
