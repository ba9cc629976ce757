package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
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

// TickReport summarizes one generation pass
type TickReport struct {
	Date      civil.Date        `json:"date"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
	Due       int               `json:"due"`
	Generated int               `json:"generated"`
	Promoted  int               `json:"promoted"`
	Skipped   int               `json:"skipped"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func (r *TickReport) fail(clientID string, err error) {
	r.Failed++
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[clientID] = err.Error()
}

// GenerationService runs the daemon tick: it bills every client due today.
type GenerationService interface {
	// Tick never returns an error; per-client failures are logged and reported.
	Tick(ctx context.Context) *TickReport
}

type generationServiceImpl struct {
	invoices   port.InvoiceStore
	clients    port.ClientStore
	numberer   port.InvoiceNumberer
	guard      port.OccurrenceGuard
	notifier   port.Notifier
	planner    SeriesPlanner
	clock      port.Clock
	dispatcher dispatcher.Dispatcher
	cfg        SchedulerConfig
	logger     Logger

	mu sync.Mutex
}

// NewGenerationService creates a new GenerationService
func NewGenerationService(
	invoices port.InvoiceStore,
	clients port.ClientStore,
	numberer port.InvoiceNumberer,
	guard port.OccurrenceGuard,
	notifier port.Notifier,
	planner SeriesPlanner,
	clock port.Clock,
	d dispatcher.Dispatcher,
	cfg SchedulerConfig,
	logger Logger,
) GenerationService {
	return &generationServiceImpl{
		invoices:   invoices,
		clients:    clients,
		numberer:   numberer,
		guard:      guard,
		notifier:   notifier,
		planner:    planner,
		clock:      clock,
		dispatcher: d,
		cfg:        cfg,
		logger:     logger,
	}
}

func (s *generationServiceImpl) Tick(ctx context.Context) *TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := s.clock.Today()
	report := &TickReport{Date: today, StartedAt: s.clock.Now()}
	defer func() {
		report.Duration = s.clock.Now().Sub(report.StartedAt)
	}()

	notHeld := false
	var due []*entity.Client
	err := withStoreTimeout(ctx, s.cfg.StoreTimeout, "query clients", func(ctx context.Context) error {
		var err error
		due, err = s.clients.Query(ctx, entity.ClientFilter{NextInvoiceDate: today, OnHold: &notHeld})
		return err
	})
	if err != nil {
		s.logger.Error("Tick aborted: cannot load due clients", "date", today.String(), "error", err)
		report.fail("*", err)
		return report
	}
	report.Due = len(due)

	var issuedToday []*entity.Invoice
	err = withStoreTimeout(ctx, s.cfg.StoreTimeout, "query invoices", func(ctx context.Context) error {
		var err error
		issuedToday, err = s.invoices.Query(ctx, entity.InvoiceFilter{IssueDate: today})
		return err
	})
	if err != nil {
		s.logger.Error("Tick aborted: cannot load today's invoices", "date", today.String(), "error", err)
		report.fail("*", err)
		return report
	}
	existing := make(map[string][]*entity.Invoice)
	for _, inv := range issuedToday {
		existing[inv.ClientID] = append(existing[inv.ClientID], inv)
	}

	for _, client := range due {
		if ctx.Err() != nil {
			s.logger.Info("Tick interrupted", "date", today.String(), "remaining", len(due)-report.Generated-report.Promoted-report.Skipped-report.Failed)
			break
		}
		s.processClient(ctx, today, client, existing[client.ID], report)
	}

	s.logger.Info("Tick completed",
		"date", today.String(),
		"due", report.Due,
		"generated", report.Generated,
		"promoted", report.Promoted,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report
}

func (s *generationServiceImpl) processClient(ctx context.Context, today civil.Date, client *entity.Client, existing []*entity.Invoice, report *TickReport) {
	claimed := false
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			s.logger.Error("Client generation panicked", "client_id", client.ID, "date", today.String(), "error", err)
			s.release(ctx, client.ID, today, claimed)
			report.fail(client.ID, err)
		}
	}()

	if !client.Billable() {
		s.logger.Info("Client skipped: not billable", "client_id", client.ID, "status", client.Status, "on_hold", client.OnHold)
		report.Skipped++
		return
	}

	ok, err := s.guard.Claim(ctx, client.ID, today)
	if err != nil {
		s.logger.Error("Occurrence claim failed", "client_id", client.ID, "date", today.String(), "error", err)
		report.fail(client.ID, err)
		return
	}
	if !ok {
		s.logger.Info("Client skipped: already processed", "client_id", client.ID, "date", today.String())
		report.Skipped++
		return
	}
	claimed = true

	invoices, promoted, err := s.generate(ctx, today, client, existing)
	switch {
	case errors.Is(err, entity.ErrDuplicateOccurrence):
		s.logger.Info("Client skipped: occurrence already issued", "client_id", client.ID, "date", today.String(), "error", err)
		report.Skipped++
		return
	case err != nil:
		s.logger.Error("Invoice generation failed", "client_id", client.ID, "date", today.String(), "error", err)
		s.release(ctx, client.ID, today, claimed)
		report.fail(client.ID, err)
		return
	}

	if promoted {
		report.Promoted += len(invoices)
	} else {
		report.Generated += len(invoices)
	}
}

func (s *generationServiceImpl) release(ctx context.Context, clientID string, today civil.Date, claimed bool) {
	if !claimed {
		return
	}
	if err := s.guard.Release(ctx, clientID, today); err != nil {
		s.logger.Error("Occurrence release failed", "client_id", clientID, "date", today.String(), "error", err)
	}
}

// generate bills one client. Scheduled rows for today are promoted; without
// them a fresh invoice is built from the client's terms and its series planned.
func (s *generationServiceImpl) generate(ctx context.Context, today civil.Date, client *entity.Client, existing []*entity.Invoice) ([]*entity.Invoice, bool, error) {
	var scheduled, issued []*entity.Invoice
	for _, inv := range existing {
		if inv.Status == entity.StatusScheduled {
			scheduled = append(scheduled, inv)
		} else {
			issued = append(issued, inv)
		}
	}

	if len(scheduled) == 0 && len(issued) > 0 {
		// Already billed today by an earlier run; only the pointer is behind.
		if err := s.advanceClient(ctx, client, today); err != nil {
			return nil, false, err
		}
		return nil, false, &entity.DuplicateOccurrenceError{ClientID: client.ID, SeriesID: issued[0].SeriesID, IssueDate: today}
	}

	var (
		billed   []*entity.Invoice
		promoted = len(scheduled) > 0
	)
	if promoted {
		for _, inv := range scheduled {
			if err := s.promote(ctx, inv); err != nil {
				return nil, true, err
			}
			billed = append(billed, inv)
		}
		for _, inv := range billed {
			if _, err := s.planner.Extend(ctx, inv.SeriesID); err != nil {
				s.logger.Error("Series top-up failed", "series_id", inv.SeriesID, "client_id", client.ID, "error", err)
			}
		}
	} else {
		inv, err := s.buildInvoice(ctx, today, client)
		if err != nil {
			return nil, false, err
		}
		err = withStoreTimeout(ctx, s.cfg.StoreTimeout, "put invoice", func(ctx context.Context) error {
			return s.invoices.Put(ctx, inv)
		})
		if err != nil {
			return nil, false, fmt.Errorf("persist invoice: %w", err)
		}
		billed = append(billed, inv)

		if inv.InSeries() {
			if _, err := s.planner.Plan(ctx, inv); err != nil {
				s.logger.Error("Series planning failed", "series_id", inv.SeriesID, "client_id", client.ID, "error", err)
			}
		}
	}

	for _, inv := range billed {
		if err := s.notifier.SendInvoiceEmail(ctx, inv, client, s.cfg.Account); err != nil {
			s.logger.Error("Invoice email failed", "invoice_id", inv.ID, "client_id", client.ID, "error", err)
		}
	}

	if err := s.advanceClient(ctx, client, today); err != nil {
		// The invoice exists. Releasing the claim lets a retry today reach the
		// already-issued branch above, which only moves the pointer.
		s.logger.Error("Failed to advance billing pointer", "client_id", client.ID, "error", err)
		s.release(ctx, client.ID, today, true)
	}

	for _, inv := range billed {
		s.logger.Info("Invoice generated",
			"invoice_id", inv.ID,
			"invoice_number", inv.InvoiceNumber,
			"client_id", client.ID,
			"series_id", inv.SeriesID,
			"amount", inv.Amount.StringFixed(2),
			"due_date", inv.DueDate.String(),
		)
		publish(ctx, s.dispatcher, s.logger, event.InvoiceGenerated(inv, client))
	}
	return billed, promoted, nil
}

func (s *generationServiceImpl) promote(ctx context.Context, inv *entity.Invoice) error {
	number, err := s.numberer.Next(ctx)
	if err != nil {
		return fmt.Errorf("assign invoice number: %w", err)
	}
	if err := workflow.Transition(ctx, inv, workflow.TriggerPromote); err != nil {
		return err
	}
	inv.InvoiceNumber = number
	inv.Record(entity.ActivityPromoted, s.clock.Now(), "issued by scheduler")

	err = withStoreTimeout(ctx, s.cfg.StoreTimeout, "put invoice", func(ctx context.Context) error {
		return s.invoices.Put(ctx, inv)
	})
	if err != nil {
		return fmt.Errorf("promote %s: %w", inv.ID, err)
	}
	return nil
}

func (s *generationServiceImpl) buildInvoice(ctx context.Context, today civil.Date, client *entity.Client) (*entity.Invoice, error) {
	amount, description, err := s.billingTerms(ctx, today, client)
	if err != nil {
		return nil, err
	}
	number, err := s.numberer.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("assign invoice number: %w", err)
	}

	now := s.clock.Now()
	inv := &entity.Invoice{
		ClientID:         client.ID,
		ClientName:       client.Name,
		Amount:           amount,
		Description:      description,
		IssueDate:        today,
		DueDate:          daterule.DueDate(today, client.EffectiveNetDays(s.cfg.Account)),
		BillingFrequency: client.BillingFrequency,
		Status:           entity.StatusPending,
		InvoiceNumber:    number,
		CreatedAt:        now,
	}
	if client.BillingFrequency.IsRecurring() {
		inv.SeriesID = uuid.NewString()
	}
	inv.Record(entity.ActivityCreated, now, "issued by scheduler")
	return inv, nil
}

// billingTerms prefers the client's fee, then the most recent earlier invoice
func (s *generationServiceImpl) billingTerms(ctx context.Context, today civil.Date, client *entity.Client) (decimal.Decimal, string, error) {
	var history []*entity.Invoice
	err := withStoreTimeout(ctx, s.cfg.StoreTimeout, "query invoices", func(ctx context.Context) error {
		var err error
		history, err = s.invoices.Query(ctx, entity.InvoiceFilter{ClientID: client.ID, IssueTo: today})
		return err
	})
	if err != nil {
		return decimal.Decimal{}, "", fmt.Errorf("load invoice history: %w", err)
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].IssueDate.After(history[j].IssueDate)
	})
	var latest *entity.Invoice
	if len(history) > 0 {
		latest = history[0]
	}

	description := client.Description
	if description == "" && latest != nil {
		description = latest.Description
	}
	if description == "" {
		description = s.cfg.Account.DefaultDescription
	}

	switch {
	case client.Fee != nil:
		return *client.Fee, description, nil
	case latest != nil:
		return latest.Amount, description, nil
	default:
		return decimal.Decimal{}, "", &entity.ValidationError{Field: "amount", Reason: "client has no fee and no earlier invoice to copy"}
	}
}

func (s *generationServiceImpl) advanceClient(ctx context.Context, client *entity.Client, today civil.Date) error {
	return withStoreTimeout(ctx, s.cfg.StoreTimeout, "update client", func(ctx context.Context) error {
		next, err := nextBillingDate(ctx, s.invoices, client, today)
		if err != nil {
			return err
		}
		patch := pointerPatch(next)
		patch.LastInvoiced = &today
		_, err = s.clients.Update(ctx, client.ID, patch)
		return err
	})
}
