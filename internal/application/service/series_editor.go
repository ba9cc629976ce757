package service

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/garyjia/invoice-scheduler/internal/application/dispatcher"
	"github.com/garyjia/invoice-scheduler/internal/application/port"
	"github.com/garyjia/invoice-scheduler/internal/domain/daterule"
	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
	"github.com/garyjia/invoice-scheduler/internal/domain/event"
	"github.com/garyjia/invoice-scheduler/internal/domain/workflow"
)

// InvoiceChanges lists the editable fields; nil fields are left untouched.
// A new IssueDate without a DueDate recomputes the due date from net days.
type InvoiceChanges struct {
	Amount           *decimal.Decimal
	Description      *string
	IssueDate        *civil.Date
	DueDate          *civil.Date
	BillingFrequency *entity.Frequency
}

// IsEmpty reports whether no field is set
func (c InvoiceChanges) IsEmpty() bool {
	return c.Amount == nil && c.Description == nil && c.IssueDate == nil &&
		c.DueDate == nil && c.BillingFrequency == nil
}

// EditOptions carries caller-level choices. Edits never cascade or notify
// unless asked to.
type EditOptions struct {
	NotifyClient bool
}

// SeriesEditor applies edits and deletions to one occurrence or to an
// occurrence and the rest of its series.
type SeriesEditor interface {
	UpdateInvoice(ctx context.Context, id string, changes InvoiceChanges, scope entity.Scope, opts EditOptions) ([]*entity.Invoice, error)
	DeleteInvoice(ctx context.Context, id string, scope entity.Scope, opts EditOptions) ([]string, error)
}

type seriesEditorImpl struct {
	invoices   port.InvoiceStore
	clients    port.ClientStore
	txManager  port.TransactionManager
	notifier   port.Notifier
	clock      port.Clock
	dispatcher dispatcher.Dispatcher
	cfg        SchedulerConfig
	logger     Logger
}

// NewSeriesEditor creates a new SeriesEditor
func NewSeriesEditor(
	invoices port.InvoiceStore,
	clients port.ClientStore,
	txManager port.TransactionManager,
	notifier port.Notifier,
	clock port.Clock,
	d dispatcher.Dispatcher,
	cfg SchedulerConfig,
	logger Logger,
) SeriesEditor {
	return &seriesEditorImpl{
		invoices:   invoices,
		clients:    clients,
		txManager:  txManager,
		notifier:   notifier,
		clock:      clock,
		dispatcher: d,
		cfg:        cfg,
		logger:     logger,
	}
}

func (e *seriesEditorImpl) UpdateInvoice(ctx context.Context, id string, changes InvoiceChanges, scope entity.Scope, opts EditOptions) ([]*entity.Invoice, error) {
	if !scope.IsValid() {
		return nil, &entity.ValidationError{Field: "scope", Reason: "unknown scope " + string(scope)}
	}
	if changes.IsEmpty() {
		return nil, &entity.ValidationError{Reason: "no changes supplied"}
	}

	original, err := withStoreResult(ctx, e.cfg.StoreTimeout, "get invoice", func(ctx context.Context) (*entity.Invoice, error) {
		return e.invoices.Get(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("load invoice: %w", err)
	}

	target := original.Clone()
	if err := workflow.Transition(ctx, target, workflow.TriggerEdit); err != nil {
		return nil, err
	}
	netDays, err := netDaysFor(ctx, e.clients, target.ClientID, e.cfg)
	if err != nil {
		return nil, err
	}
	applyChanges(target, changes, netDays)
	target.Record(entity.ActivityUpdated, e.clock.Now(), string(scope))

	var updated []*entity.Invoice
	moved := map[civil.Date]civil.Date{original.IssueDate: target.IssueDate}

	if scope == entity.ScopeSeriesForward && target.InSeries() {
		if !target.BillingFrequency.IsRecurring() {
			return nil, &entity.ValidationError{Field: "billing_frequency", Reason: "a series cannot become one-time"}
		}
		updated, err = e.rewriteForward(ctx, original, target, netDays, moved)
	} else {
		err = withStoreTimeout(ctx, e.cfg.StoreTimeout, "put invoice", func(ctx context.Context) error {
			return e.invoices.Put(ctx, target)
		})
		updated = []*entity.Invoice{target}
	}
	if err != nil {
		e.logger.Error("Invoice update failed", "invoice_id", id, "scope", scope, "error", err)
		return nil, err
	}

	e.realignPointer(ctx, target.ClientID, moved)

	e.logger.Info("Invoice updated", "invoice_id", id, "scope", scope, "affected", len(updated))
	if opts.NotifyClient {
		e.notifyUpdate(ctx, target.ClientID, updated)
	}
	publish(ctx, e.dispatcher, e.logger, event.SeriesUpdated(target.SeriesID, target.ClientID, updated))
	return updated, nil
}

// rewriteForward re-dates every scheduled member after the original target
// from the new anchor and copies the edited terms onto them.
func (e *seriesEditorImpl) rewriteForward(ctx context.Context, original, target *entity.Invoice, netDays int, moved map[civil.Date]civil.Date) ([]*entity.Invoice, error) {
	members, err := withStoreResult(ctx, e.cfg.StoreTimeout, "query series", func(ctx context.Context) ([]*entity.Invoice, error) {
		return e.invoices.Query(ctx, entity.InvoiceFilter{SeriesID: target.SeriesID})
	})
	if err != nil {
		return nil, fmt.Errorf("load series: %w", err)
	}

	updated := []*entity.Invoice{target}
	untouched := make(map[civil.Date]string)
	k := 0
	for _, m := range members {
		if m.ID == target.ID {
			continue
		}
		if m.Status != entity.StatusScheduled || !m.IssueDate.After(original.IssueDate) {
			untouched[m.IssueDate] = m.ID
			continue
		}
		k++
		issue, err := daterule.Occurrence(target.IssueDate, target.BillingFrequency, k)
		if err != nil {
			return nil, err
		}
		moved[m.IssueDate] = issue
		m.IssueDate = issue
		m.DueDate = daterule.DueDate(issue, netDays)
		m.Amount = target.Amount
		m.Description = target.Description
		m.BillingFrequency = target.BillingFrequency
		m.Record(entity.ActivityUpdated, e.clock.Now(), "series-forward from "+target.ID)
		updated = append(updated, m)
	}

	for _, inv := range updated {
		if err := inv.Validate(); err != nil {
			return nil, err
		}
		if owner, clash := untouched[inv.IssueDate]; clash {
			return nil, fmt.Errorf("occurrence %s collides with invoice %s: %w", inv.IssueDate, owner,
				&entity.DuplicateOccurrenceError{ClientID: inv.ClientID, SeriesID: inv.SeriesID, IssueDate: inv.IssueDate})
		}
	}

	// Rows are removed and rewritten so shifted dates never collide with
	// the rows they replace.
	err = withStoreTimeout(ctx, e.cfg.StoreTimeout, "rewrite series", func(ctx context.Context) error {
		return e.txManager.WithTransaction(ctx, func(ctx context.Context) error {
			for _, inv := range updated {
				if err := e.invoices.Delete(ctx, inv.ID); err != nil {
					return fmt.Errorf("delete %s: %w", inv.ID, err)
				}
			}
			for _, inv := range updated {
				if err := e.invoices.Put(ctx, inv); err != nil {
					return fmt.Errorf("rewrite %s: %w", inv.ID, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (e *seriesEditorImpl) DeleteInvoice(ctx context.Context, id string, scope entity.Scope, opts EditOptions) ([]string, error) {
	if !scope.IsValid() {
		return nil, &entity.ValidationError{Field: "scope", Reason: "unknown scope " + string(scope)}
	}

	target, err := withStoreResult(ctx, e.cfg.StoreTimeout, "get invoice", func(ctx context.Context) (*entity.Invoice, error) {
		return e.invoices.Get(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("load invoice: %w", err)
	}
	if err := workflow.ForInvoice(target).Fire(ctx, workflow.TriggerDelete); err != nil {
		return nil, err
	}

	removed := []*entity.Invoice{target}
	if scope == entity.ScopeSeriesForward && target.InSeries() {
		tail, err := withStoreResult(ctx, e.cfg.StoreTimeout, "query series", func(ctx context.Context) ([]*entity.Invoice, error) {
			return e.invoices.Query(ctx, entity.InvoiceFilter{
				SeriesID:  target.SeriesID,
				Statuses:  []entity.InvoiceStatus{entity.StatusScheduled},
				IssueFrom: target.IssueDate,
			})
		})
		if err != nil {
			return nil, fmt.Errorf("load series tail: %w", err)
		}
		for _, inv := range tail {
			if inv.ID != target.ID {
				removed = append(removed, inv)
			}
		}
	}

	err = withStoreTimeout(ctx, e.cfg.StoreTimeout, "delete invoices", func(ctx context.Context) error {
		return e.txManager.WithTransaction(ctx, func(ctx context.Context) error {
			for _, inv := range removed {
				if err := e.invoices.Delete(ctx, inv.ID); err != nil {
					return fmt.Errorf("delete %s: %w", inv.ID, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		e.logger.Error("Invoice deletion failed", "invoice_id", id, "scope", scope, "error", err)
		return nil, err
	}

	moved := make(map[civil.Date]civil.Date, len(removed))
	for _, inv := range removed {
		moved[inv.IssueDate] = civil.Date{}
	}
	e.realignPointer(ctx, target.ClientID, moved)

	ids := invoiceIDs(removed)
	e.logger.Info("Invoices deleted", "invoice_id", id, "scope", scope, "removed", len(ids))
	if opts.NotifyClient {
		e.notifyDeletion(ctx, target.ClientID, removed)
	}
	publish(ctx, e.dispatcher, e.logger, event.InvoicesDeleted(target.ClientID, ids))
	return ids, nil
}

// realignPointer follows the client's billing pointer when the occurrence it
// pointed at was moved (non-zero target) or removed (zero target), so the
// daemon never bills a date that no longer has a matching occurrence.
func (e *seriesEditorImpl) realignPointer(ctx context.Context, clientID string, moved map[civil.Date]civil.Date) {
	client, err := e.loadClient(ctx, clientID)
	if err != nil || client.NextInvoiceDate.IsZero() {
		return
	}
	to, ok := moved[client.NextInvoiceDate]
	if !ok || to == client.NextInvoiceDate {
		return
	}

	today := e.clock.Today()
	next := to
	if next.IsZero() || next.Before(today) {
		upcoming, err := withStoreResult(ctx, e.cfg.StoreTimeout, "query invoices", func(ctx context.Context) ([]*entity.Invoice, error) {
			return e.invoices.Query(ctx, entity.InvoiceFilter{
				ClientID:  clientID,
				Statuses:  []entity.InvoiceStatus{entity.StatusScheduled},
				IssueFrom: today,
			})
		})
		if err != nil {
			e.logger.Error("Failed to realign billing pointer", "client_id", clientID, "error", err)
			return
		}
		next = civil.Date{}
		if len(upcoming) > 0 {
			next = upcoming[0].IssueDate
		}
	}

	err = withStoreTimeout(ctx, e.cfg.StoreTimeout, "update client", func(ctx context.Context) error {
		_, err := e.clients.Update(ctx, clientID, pointerPatch(next))
		return err
	})
	if err != nil {
		e.logger.Error("Failed to realign billing pointer", "client_id", clientID, "error", err)
		return
	}
	e.logger.Info("Billing pointer realigned", "client_id", clientID, "next_invoice_date", next.String())
}

func (e *seriesEditorImpl) notifyUpdate(ctx context.Context, clientID string, updated []*entity.Invoice) {
	client, err := e.loadClient(ctx, clientID)
	if err != nil {
		e.logger.Error("Cannot notify client", "client_id", clientID, "error", err)
		return
	}
	if err := e.notifier.SendSeriesUpdateNotice(ctx, updated, client, e.cfg.Account); err != nil {
		e.logger.Error("Series update notice failed", "client_id", clientID, "error", err)
	}
}

func (e *seriesEditorImpl) notifyDeletion(ctx context.Context, clientID string, removed []*entity.Invoice) {
	client, err := e.loadClient(ctx, clientID)
	if err != nil {
		e.logger.Error("Cannot notify client", "client_id", clientID, "error", err)
		return
	}
	if err := e.notifier.SendDeletionNotice(ctx, removed, client, e.cfg.Account); err != nil {
		e.logger.Error("Deletion notice failed", "client_id", clientID, "error", err)
	}
}

func (e *seriesEditorImpl) loadClient(ctx context.Context, clientID string) (*entity.Client, error) {
	return withStoreResult(ctx, e.cfg.StoreTimeout, "get client", func(ctx context.Context) (*entity.Client, error) {
		return e.clients.Get(ctx, clientID)
	})
}

func applyChanges(inv *entity.Invoice, c InvoiceChanges, netDays int) {
	if c.Amount != nil {
		inv.Amount = *c.Amount
	}
	if c.Description != nil {
		inv.Description = *c.Description
	}
	if c.BillingFrequency != nil {
		inv.BillingFrequency = *c.BillingFrequency
	}
	if c.IssueDate != nil {
		inv.IssueDate = *c.IssueDate
		if c.DueDate == nil {
			inv.DueDate = daterule.DueDate(inv.IssueDate, netDays)
		}
	}
	if c.DueDate != nil {
		inv.DueDate = *c.DueDate
	}
}
