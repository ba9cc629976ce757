package service

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/invoice-scheduler/internal/application/dispatcher"
	"github.com/garyjia/invoice-scheduler/internal/application/port"
	"github.com/garyjia/invoice-scheduler/internal/domain/daterule"
	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
	"github.com/garyjia/invoice-scheduler/internal/domain/event"
	"github.com/garyjia/invoice-scheduler/internal/domain/workflow"
)

// CreateInvoiceRequest describes an invoice entered by a user
type CreateInvoiceRequest struct {
	ClientID         string
	Amount           decimal.Decimal
	Description      string
	IssueDate        civil.Date       // zero means today
	NetDays          *int             // nil uses the client's terms
	BillingFrequency entity.Frequency // empty uses the client's frequency
	SendEmail        bool
}

// CreateInvoiceResult is the created invoice and the occurrences planned after it
type CreateInvoiceResult struct {
	Invoice *entity.Invoice   `json:"invoice"`
	Planned []*entity.Invoice `json:"planned"`
}

// ListInvoicesQuery filters invoice listings. Status "overdue" selects
// pending invoices past their due date.
type ListInvoicesQuery struct {
	ClientID string
	SeriesID string
	Status   entity.InvoiceStatus
	From     civil.Date
	To       civil.Date
}

// InvoiceService manages user actions on individual invoices
type InvoiceService interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (*CreateInvoiceResult, error)
	Get(ctx context.Context, id string) (*entity.Invoice, error)
	List(ctx context.Context, q ListInvoicesQuery) ([]*entity.Invoice, error)
	SendNow(ctx context.Context, id string) (*entity.Invoice, error)
	MarkPaid(ctx context.Context, id string, paidAt time.Time) (*entity.Invoice, error)
	MarkUnpaid(ctx context.Context, id string) (*entity.Invoice, error)
	Void(ctx context.Context, id string) (*entity.Invoice, error)
}

type invoiceServiceImpl struct {
	invoices   port.InvoiceStore
	clients    port.ClientStore
	numberer   port.InvoiceNumberer
	notifier   port.Notifier
	planner    SeriesPlanner
	clock      port.Clock
	dispatcher dispatcher.Dispatcher
	cfg        SchedulerConfig
	logger     Logger
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	invoices port.InvoiceStore,
	clients port.ClientStore,
	numberer port.InvoiceNumberer,
	notifier port.Notifier,
	planner SeriesPlanner,
	clock port.Clock,
	d dispatcher.Dispatcher,
	cfg SchedulerConfig,
	logger Logger,
) InvoiceService {
	return &invoiceServiceImpl{
		invoices:   invoices,
		clients:    clients,
		numberer:   numberer,
		notifier:   notifier,
		planner:    planner,
		clock:      clock,
		dispatcher: d,
		cfg:        cfg,
		logger:     logger,
	}
}

// Create stores a pending invoice when it is issued today or earlier and a
// scheduled one otherwise. Recurring invoices root a new series.
func (s *invoiceServiceImpl) Create(ctx context.Context, req CreateInvoiceRequest) (*CreateInvoiceResult, error) {
	client, err := s.loadClient(ctx, req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("load client: %w", err)
	}
	if req.Description == "" {
		return nil, &entity.ValidationError{Field: "description", Reason: "is required"}
	}

	today := s.clock.Today()
	now := s.clock.Now()
	issue := req.IssueDate
	if issue.IsZero() {
		issue = today
	}
	freq := req.BillingFrequency
	if freq == "" {
		freq = client.BillingFrequency
	}
	netDays := client.EffectiveNetDays(s.cfg.Account)
	if req.NetDays != nil {
		netDays = *req.NetDays
	}

	inv := &entity.Invoice{
		ClientID:         client.ID,
		ClientName:       client.Name,
		Amount:           req.Amount,
		Description:      req.Description,
		IssueDate:        issue,
		DueDate:          daterule.DueDate(issue, netDays),
		BillingFrequency: freq,
		Status:           entity.StatusScheduled,
		CreatedAt:        now,
	}
	if freq.IsRecurring() {
		inv.SeriesID = uuid.NewString()
	}
	if !issue.After(today) {
		inv.Status = entity.StatusPending
		if inv.InvoiceNumber, err = s.numberer.Next(ctx); err != nil {
			return nil, fmt.Errorf("assign invoice number: %w", err)
		}
	}
	inv.Record(entity.ActivityCreated, now, "created by user")

	if err := s.put(ctx, inv); err != nil {
		return nil, err
	}
	result := &CreateInvoiceResult{Invoice: inv, Planned: []*entity.Invoice{}}

	if inv.InSeries() {
		planned, err := s.planner.Plan(ctx, inv)
		if err != nil {
			return result, fmt.Errorf("plan series: %w", err)
		}
		result.Planned = planned
		s.pointAt(ctx, client, inv, planned, today)
	}

	if inv.Status == entity.StatusPending && req.SendEmail {
		if err := s.notifier.SendInvoiceEmail(ctx, inv, client, s.cfg.Account); err != nil {
			s.logger.Error("Invoice email failed", "invoice_id", inv.ID, "client_id", client.ID, "error", err)
		}
	}

	s.logger.Info("Invoice created",
		"invoice_id", inv.ID,
		"client_id", client.ID,
		"status", inv.Status,
		"planned", len(result.Planned),
	)
	if inv.Status == entity.StatusPending {
		publish(ctx, s.dispatcher, s.logger, event.InvoiceGenerated(inv, client))
	}
	return result, nil
}

// pointAt moves the client's pointer to the series' first unbilled occurrence
// unless the client is already due earlier. The pointer never lands before today.
func (s *invoiceServiceImpl) pointAt(ctx context.Context, client *entity.Client, root *entity.Invoice, planned []*entity.Invoice, today civil.Date) {
	next := root.IssueDate
	if root.Status != entity.StatusScheduled {
		if len(planned) == 0 {
			return
		}
		next = planned[0].IssueDate
	}
	if next.Before(today) {
		var err error
		if next, err = firstOnOrAfter(root.IssueDate, root.BillingFrequency, today); err != nil {
			s.logger.Error("Failed to set billing pointer", "client_id", client.ID, "error", err)
			return
		}
	}
	current := client.NextInvoiceDate
	if !current.IsZero() && !current.Before(today) && !current.After(next) {
		return
	}
	err := withStoreTimeout(ctx, s.cfg.StoreTimeout, "update client", func(ctx context.Context) error {
		_, err := s.clients.Update(ctx, client.ID, entity.ClientPatch{NextInvoiceDate: &next})
		return err
	})
	if err != nil {
		s.logger.Error("Failed to set billing pointer", "client_id", client.ID, "error", err)
	}
}

// firstOnOrAfter returns the first occurrence of the anchor's cadence that is
// not before today.
func firstOnOrAfter(anchor civil.Date, f entity.Frequency, today civil.Date) (civil.Date, error) {
	for k := 1; ; k++ {
		d, err := daterule.Occurrence(anchor, f, k)
		if err != nil {
			return civil.Date{}, err
		}
		if !d.Before(today) {
			return d, nil
		}
	}
}

func (s *invoiceServiceImpl) Get(ctx context.Context, id string) (*entity.Invoice, error) {
	return withStoreResult(ctx, s.cfg.StoreTimeout, "get invoice", func(ctx context.Context) (*entity.Invoice, error) {
		return s.invoices.Get(ctx, id)
	})
}

// List returns invoices with overdue derived from the due date
func (s *invoiceServiceImpl) List(ctx context.Context, q ListInvoicesQuery) ([]*entity.Invoice, error) {
	today := s.clock.Today()
	filter := entity.InvoiceFilter{
		ClientID:  q.ClientID,
		SeriesID:  q.SeriesID,
		IssueFrom: q.From,
		IssueTo:   q.To,
	}
	switch {
	case q.Status == "":
	case q.Status == entity.StatusOverdue:
		filter.Statuses = []entity.InvoiceStatus{entity.StatusPending}
		filter.DueBefore = today
	case q.Status.IsStored():
		filter.Statuses = []entity.InvoiceStatus{q.Status}
	default:
		return nil, &entity.ValidationError{Field: "status", Reason: "unknown status " + string(q.Status)}
	}

	list, err := withStoreResult(ctx, s.cfg.StoreTimeout, "query invoices", func(ctx context.Context) ([]*entity.Invoice, error) {
		return s.invoices.Query(ctx, filter)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*entity.Invoice, 0, len(list))
	for _, inv := range list {
		inv.Status = inv.EffectiveStatus(today)
		if q.Status == entity.StatusPending && inv.Status != entity.StatusPending {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

// SendNow promotes a scheduled occurrence immediately, re-issuing it today
func (s *invoiceServiceImpl) SendNow(ctx context.Context, id string) (*entity.Invoice, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	planned := inv.IssueDate
	if err := workflow.Transition(ctx, inv, workflow.TriggerSendNow); err != nil {
		return nil, err
	}

	client, err := s.loadClient(ctx, inv.ClientID)
	if err != nil {
		return nil, fmt.Errorf("load client: %w", err)
	}

	today := s.clock.Today()
	now := s.clock.Now()
	number, err := s.numberer.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("assign invoice number: %w", err)
	}
	inv.InvoiceNumber = number
	inv.IssueDate = today
	inv.DueDate = daterule.DueDate(today, client.EffectiveNetDays(s.cfg.Account))
	inv.Record(entity.ActivityPromoted, now, "sent manually, planned for "+planned.String())

	if err := s.put(ctx, inv); err != nil {
		return nil, err
	}

	if client.NextInvoiceDate == planned {
		err := withStoreTimeout(ctx, s.cfg.StoreTimeout, "advance pointer", func(ctx context.Context) error {
			next, err := nextBillingDate(ctx, s.invoices, client, today)
			if err != nil {
				return err
			}
			_, err = s.clients.Update(ctx, client.ID, pointerPatch(next))
			return err
		})
		if err != nil {
			s.logger.Error("Failed to advance billing pointer", "client_id", client.ID, "error", err)
		}
	}

	if err := s.notifier.SendInvoiceEmail(ctx, inv, client, s.cfg.Account); err != nil {
		s.logger.Error("Invoice email failed", "invoice_id", inv.ID, "client_id", client.ID, "error", err)
	}

	s.logger.Info("Invoice sent early", "invoice_id", inv.ID, "planned_date", planned.String())
	publish(ctx, s.dispatcher, s.logger, event.InvoicePromoted(inv))
	return inv, nil
}

func (s *invoiceServiceImpl) MarkPaid(ctx context.Context, id string, paidAt time.Time) (*entity.Invoice, error) {
	if paidAt.IsZero() {
		paidAt = s.clock.Now()
	}
	return s.changeStatus(ctx, id, workflow.TriggerMarkPaid, func(inv *entity.Invoice) {
		inv.PaidAt = &paidAt
		inv.Record(entity.ActivityPaid, s.clock.Now(), "")
	})
}

func (s *invoiceServiceImpl) MarkUnpaid(ctx context.Context, id string) (*entity.Invoice, error) {
	return s.changeStatus(ctx, id, workflow.TriggerMarkUnpaid, func(inv *entity.Invoice) {
		inv.PaidAt = nil
		inv.Record(entity.ActivityUnpaid, s.clock.Now(), "")
	})
}

func (s *invoiceServiceImpl) Void(ctx context.Context, id string) (*entity.Invoice, error) {
	return s.changeStatus(ctx, id, workflow.TriggerVoid, func(inv *entity.Invoice) {
		inv.Record(entity.ActivityVoided, s.clock.Now(), "")
	})
}

func (s *invoiceServiceImpl) changeStatus(ctx context.Context, id string, trigger workflow.Trigger, apply func(inv *entity.Invoice)) (*entity.Invoice, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := inv.Status
	if err := workflow.Transition(ctx, inv, trigger); err != nil {
		return nil, err
	}
	apply(inv)

	if err := s.put(ctx, inv); err != nil {
		s.logger.Error("Status change failed", "invoice_id", id, "trigger", trigger, "error", err)
		return nil, err
	}

	s.logger.Info("Invoice status changed", "invoice_id", id, "from", from, "to", inv.Status)
	publish(ctx, s.dispatcher, s.logger, event.InvoiceStatusChanged(inv, from))
	return inv, nil
}

func (s *invoiceServiceImpl) loadClient(ctx context.Context, id string) (*entity.Client, error) {
	return withStoreResult(ctx, s.cfg.StoreTimeout, "get client", func(ctx context.Context) (*entity.Client, error) {
		return s.clients.Get(ctx, id)
	})
}

func (s *invoiceServiceImpl) put(ctx context.Context, inv *entity.Invoice) error {
	return withStoreTimeout(ctx, s.cfg.StoreTimeout, "put invoice", func(ctx context.Context) error {
		return s.invoices.Put(ctx, inv)
	})
}
