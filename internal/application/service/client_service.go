package service

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/garyjia/invoice-scheduler/internal/application/dispatcher"
	"github.com/garyjia/invoice-scheduler/internal/application/port"
	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
	"github.com/garyjia/invoice-scheduler/internal/domain/event"
)

// StatusChangeResult reports a client transition and the scheduled invoices it removed
type StatusChangeResult struct {
	Client  *entity.Client `json:"client"`
	Removed []string       `json:"removed"`
}

// ClientService manages client billing configuration and standing
type ClientService interface {
	Create(ctx context.Context, client *entity.Client) (*entity.Client, error)
	Get(ctx context.Context, id string) (*entity.Client, error)
	List(ctx context.Context, filter entity.ClientFilter) ([]*entity.Client, error)
	UpdateBilling(ctx context.Context, id string, patch entity.ClientPatch) (*entity.Client, error)

	// ChangeStatus moves a client to status. Hold and cancellation delete the
	// client's scheduled invoices; resuming (active) requires a billing date
	// that is not in the past unless the client has no recurring billing.
	ChangeStatus(ctx context.Context, id string, status entity.ClientStatus, nextInvoiceDate *civil.Date) (*StatusChangeResult, error)
}

type clientServiceImpl struct {
	clients    port.ClientStore
	invoices   port.InvoiceStore
	txManager  port.TransactionManager
	clock      port.Clock
	dispatcher dispatcher.Dispatcher
	cfg        SchedulerConfig
	logger     Logger
}

// NewClientService creates a new ClientService
func NewClientService(
	clients port.ClientStore,
	invoices port.InvoiceStore,
	txManager port.TransactionManager,
	clock port.Clock,
	d dispatcher.Dispatcher,
	cfg SchedulerConfig,
	logger Logger,
) ClientService {
	return &clientServiceImpl{
		clients:    clients,
		invoices:   invoices,
		txManager:  txManager,
		clock:      clock,
		dispatcher: d,
		cfg:        cfg,
		logger:     logger,
	}
}

func (s *clientServiceImpl) Create(ctx context.Context, client *entity.Client) (*entity.Client, error) {
	if client.Status == "" {
		client.Status = entity.ClientActive
	}
	client.OnHold = client.Status == entity.ClientOnHold
	if !client.NextInvoiceDate.IsZero() && client.NextInvoiceDate.Before(s.clock.Today()) {
		return nil, &entity.ValidationError{Field: "next_invoice_date", Reason: "must not be in the past"}
	}
	err := withStoreTimeout(ctx, s.cfg.StoreTimeout, "create client", func(ctx context.Context) error {
		return s.clients.Create(ctx, client)
	})
	if err != nil {
		s.logger.Error("Failed to create client", "name", client.Name, "error", err)
		return nil, err
	}
	s.logger.Info("Client created", "client_id", client.ID, "frequency", client.BillingFrequency)
	return client, nil
}

func (s *clientServiceImpl) Get(ctx context.Context, id string) (*entity.Client, error) {
	return withStoreResult(ctx, s.cfg.StoreTimeout, "get client", func(ctx context.Context) (*entity.Client, error) {
		return s.clients.Get(ctx, id)
	})
}

func (s *clientServiceImpl) List(ctx context.Context, filter entity.ClientFilter) ([]*entity.Client, error) {
	return withStoreResult(ctx, s.cfg.StoreTimeout, "query clients", func(ctx context.Context) ([]*entity.Client, error) {
		return s.clients.Query(ctx, filter)
	})
}

// UpdateBilling edits billing terms only; standing goes through ChangeStatus
func (s *clientServiceImpl) UpdateBilling(ctx context.Context, id string, patch entity.ClientPatch) (*entity.Client, error) {
	if patch.Status != nil || patch.OnHold != nil || patch.LastInvoiced != nil {
		return nil, &entity.ValidationError{Reason: "status, hold and last invoiced date are managed by the scheduler"}
	}
	if patch.NextInvoiceDate != nil && patch.NextInvoiceDate.Before(s.clock.Today()) {
		return nil, &entity.ValidationError{Field: "next_invoice_date", Reason: "must not be in the past"}
	}
	client, err := withStoreResult(ctx, s.cfg.StoreTimeout, "update client", func(ctx context.Context) (*entity.Client, error) {
		return s.clients.Update(ctx, id, patch)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Client billing updated", "client_id", id)
	return client, nil
}

func (s *clientServiceImpl) ChangeStatus(ctx context.Context, id string, status entity.ClientStatus, nextInvoiceDate *civil.Date) (*StatusChangeResult, error) {
	if !status.IsValid() {
		return nil, &entity.ValidationError{Field: "status", Reason: "unknown status " + string(status)}
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	today := s.clock.Today()
	onHold := status == entity.ClientOnHold
	patch := entity.ClientPatch{Status: &status, OnHold: &onHold}

	switch status {
	case entity.ClientCancelled:
		patch.ClearNextInvoiceDate = true
	case entity.ClientActive:
		switch {
		case nextInvoiceDate != nil:
			if nextInvoiceDate.Before(today) {
				return nil, &entity.ValidationError{Field: "next_invoice_date", Reason: "must not be in the past"}
			}
			patch.NextInvoiceDate = nextInvoiceDate
		case current.NextInvoiceDate.Before(today) && current.BillingFrequency.IsRecurring():
			return nil, &entity.ValidationError{Field: "next_invoice_date", Reason: "is required to resume billing"}
		}
	}

	result := &StatusChangeResult{Removed: []string{}}
	err = withStoreTimeout(ctx, s.cfg.StoreTimeout, "change client status", func(ctx context.Context) error {
		return s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
			if status == entity.ClientOnHold || status == entity.ClientCancelled {
				removed, err := s.dropScheduled(ctx, id)
				if err != nil {
					return err
				}
				result.Removed = removed
			}
			client, err := s.clients.Update(ctx, id, patch)
			if err != nil {
				return err
			}
			result.Client = client
			return nil
		})
	})
	if err != nil {
		s.logger.Error("Client status change failed", "client_id", id, "status", status, "error", err)
		return nil, err
	}

	s.logger.Info("Client status changed",
		"client_id", id,
		"from", current.Status,
		"to", status,
		"removed_scheduled", len(result.Removed),
	)
	publish(ctx, s.dispatcher, s.logger, event.ClientStatusChanged(result.Client, current.Status))
	if len(result.Removed) > 0 {
		publish(ctx, s.dispatcher, s.logger, event.InvoicesDeleted(id, result.Removed).WithPayload("reason", string(status)))
	}
	return result, nil
}

// dropScheduled deletes every scheduled invoice of the client; issued ones stay
func (s *clientServiceImpl) dropScheduled(ctx context.Context, clientID string) ([]string, error) {
	scheduled, err := s.invoices.Query(ctx, entity.InvoiceFilter{
		ClientID: clientID,
		Statuses: []entity.InvoiceStatus{entity.StatusScheduled},
	})
	if err != nil {
		return nil, fmt.Errorf("load scheduled invoices: %w", err)
	}
	for _, inv := range scheduled {
		if err := s.invoices.Delete(ctx, inv.ID); err != nil {
			return nil, fmt.Errorf("delete %s: %w", inv.ID, err)
		}
	}
	return invoiceIDs(scheduled), nil
}
