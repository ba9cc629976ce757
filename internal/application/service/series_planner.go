package service

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/garyjia/invoice-scheduler/internal/application/dispatcher"
	"github.com/garyjia/invoice-scheduler/internal/application/port"
	"github.com/garyjia/invoice-scheduler/internal/domain/daterule"
	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
	"github.com/garyjia/invoice-scheduler/internal/domain/event"
)

// SeriesPlanner materializes the scheduled occurrences of a recurring series
type SeriesPlanner interface {
	// Plan persists every occurrence after seed that falls inside the horizon.
	// The caller plans a series root exactly once; Plan does not deduplicate.
	Plan(ctx context.Context, seed *entity.Invoice) ([]*entity.Invoice, error)

	// Extend tops up an existing series so it again covers the full horizon
	Extend(ctx context.Context, seriesID string) ([]*entity.Invoice, error)
}

type seriesPlannerImpl struct {
	invoices   port.InvoiceStore
	clients    port.ClientStore
	clock      port.Clock
	dispatcher dispatcher.Dispatcher
	cfg        SchedulerConfig
	logger     Logger
}

// NewSeriesPlanner creates a new SeriesPlanner
func NewSeriesPlanner(
	invoices port.InvoiceStore,
	clients port.ClientStore,
	clock port.Clock,
	d dispatcher.Dispatcher,
	cfg SchedulerConfig,
	logger Logger,
) SeriesPlanner {
	return &seriesPlannerImpl{
		invoices:   invoices,
		clients:    clients,
		clock:      clock,
		dispatcher: d,
		cfg:        cfg,
		logger:     logger,
	}
}

func (p *seriesPlannerImpl) Plan(ctx context.Context, seed *entity.Invoice) ([]*entity.Invoice, error) {
	if seed.ID == "" {
		return nil, &entity.ValidationError{Field: "id", Reason: "seed invoice must be persisted before planning"}
	}
	if !seed.BillingFrequency.IsRecurring() {
		return nil, &entity.ValidationError{Field: "billing_frequency", Reason: "cannot plan a series for " + string(seed.BillingFrequency)}
	}
	if seed.Status != entity.StatusPending && seed.Status != entity.StatusScheduled {
		return nil, &entity.ValidationError{Field: "status", Reason: "seed must be pending or scheduled"}
	}

	if seed.SeriesID == "" {
		seed.SeriesID = uuid.NewString()
		err := withStoreTimeout(ctx, p.cfg.StoreTimeout, "put invoice", func(ctx context.Context) error {
			return p.invoices.Put(ctx, seed)
		})
		if err != nil {
			return nil, fmt.Errorf("assign series id: %w", err)
		}
	}

	netDays, err := netDaysFor(ctx, p.clients, seed.ClientID, p.cfg)
	if err != nil {
		return nil, err
	}
	planned, err := p.materialize(ctx, seed, seed.IssueDate, 1, netDays)
	if err != nil {
		return planned, err
	}

	p.logger.Info("Series planned",
		"series_id", seed.SeriesID,
		"client_id", seed.ClientID,
		"occurrences", len(planned),
	)
	publish(ctx, p.dispatcher, p.logger, event.SeriesPlanned(seed.SeriesID, seed.ClientID, planned))
	return planned, nil
}

func (p *seriesPlannerImpl) Extend(ctx context.Context, seriesID string) ([]*entity.Invoice, error) {
	var members []*entity.Invoice
	err := withStoreTimeout(ctx, p.cfg.StoreTimeout, "query series", func(ctx context.Context) error {
		var err error
		members, err = p.invoices.Query(ctx, entity.InvoiceFilter{SeriesID: seriesID})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load series: %w", err)
	}
	if len(members) == 0 {
		return nil, &entity.NotFoundError{Kind: "series", ID: seriesID}
	}

	last := members[len(members)-1]
	anchor, next := cadenceAnchor(members, last.BillingFrequency)
	netDays, err := netDaysFor(ctx, p.clients, last.ClientID, p.cfg)
	if err != nil {
		return nil, err
	}

	added, err := p.materialize(ctx, last, anchor, next, netDays)
	if err != nil {
		return added, err
	}
	if len(added) > 0 {
		p.logger.Info("Series extended", "series_id", seriesID, "occurrences", len(added))
		publish(ctx, p.dispatcher, p.logger, event.SeriesPlanned(seriesID, last.ClientID, added))
	}
	return added, nil
}

// materialize writes scheduled copies of template at Occurrence(anchor, f, k)
// for k = from, from+1, ... while the date is before the horizon end.
// Occurrences already in the past are never scheduled.
func (p *seriesPlannerImpl) materialize(ctx context.Context, template *entity.Invoice, anchor civil.Date, from, netDays int) ([]*entity.Invoice, error) {
	today := p.clock.Today()
	end := daterule.HorizonEnd(today, p.cfg.HorizonMonths)
	now := p.clock.Now()

	planned := make([]*entity.Invoice, 0)
	for k := from; ; k++ {
		issue, err := daterule.Occurrence(anchor, template.BillingFrequency, k)
		if err != nil {
			return planned, err
		}
		if !issue.Before(end) {
			break
		}
		if issue.Before(today) {
			continue
		}

		inv := &entity.Invoice{
			SeriesID:         template.SeriesID,
			ClientID:         template.ClientID,
			ClientName:       template.ClientName,
			Amount:           template.Amount,
			Description:      template.Description,
			IssueDate:        issue,
			DueDate:          daterule.DueDate(issue, netDays),
			BillingFrequency: template.BillingFrequency,
			Status:           entity.StatusScheduled,
			CreatedAt:        now,
		}
		inv.Record(entity.ActivityCreated, now, "scheduled")

		err = withStoreTimeout(ctx, p.cfg.StoreTimeout, "put invoice", func(ctx context.Context) error {
			return p.invoices.Put(ctx, inv)
		})
		if err != nil {
			p.logger.Error("Failed to persist occurrence",
				"series_id", template.SeriesID,
				"issue_date", issue.String(),
				"error", err,
			)
			return planned, fmt.Errorf("persist occurrence %s: %w", issue, err)
		}
		planned = append(planned, inv)
	}
	return planned, nil
}

// cadenceAnchor finds the earliest member from which every later member lies
// on the series cadence, and the step index following the last member.
// Anchoring there keeps month-end series from drifting after clamping.
func cadenceAnchor(members []*entity.Invoice, f entity.Frequency) (civil.Date, int) {
	last := len(members) - 1
	anchor, next := members[last].IssueDate, 1
	for i := last - 1; i >= 0; i-- {
		k, ok := followsCadence(members[i].IssueDate, members[i+1:], f)
		if !ok {
			break
		}
		anchor, next = members[i].IssueDate, k
	}
	return anchor, next
}

func followsCadence(anchor civil.Date, later []*entity.Invoice, f entity.Frequency) (int, bool) {
	k := 1
	for _, m := range later {
		for {
			d, err := daterule.Occurrence(anchor, f, k)
			if err != nil || d.After(m.IssueDate) {
				return 0, false
			}
			k++
			if d == m.IssueDate {
				break
			}
		}
	}
	return k, true
}
