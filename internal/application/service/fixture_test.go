package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/invoice-scheduler/internal/application/dispatcher"
	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
	"github.com/garyjia/invoice-scheduler/internal/domain/event"
	"github.com/garyjia/invoice-scheduler/internal/infrastructure/clock"
	"github.com/garyjia/invoice-scheduler/internal/infrastructure/guard"
	"github.com/garyjia/invoice-scheduler/internal/infrastructure/persistence/memory"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

// MockNotifier mocks port.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendInvoiceEmail(ctx context.Context, inv *entity.Invoice, client *entity.Client, account entity.AccountConfig) error {
	args := m.Called(ctx, inv, client, account)
	return args.Error(0)
}

func (m *MockNotifier) SendSeriesUpdateNotice(ctx context.Context, updated []*entity.Invoice, client *entity.Client, account entity.AccountConfig) error {
	args := m.Called(ctx, updated, client, account)
	return args.Error(0)
}

func (m *MockNotifier) SendDeletionNotice(ctx context.Context, removed []*entity.Invoice, client *entity.Client, account entity.AccountConfig) error {
	args := m.Called(ctx, removed, client, account)
	return args.Error(0)
}

// permissiveNotifier accepts every call
func permissiveNotifier() *MockNotifier {
	n := new(MockNotifier)
	n.On("SendInvoiceEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	n.On("SendSeriesUpdateNotice", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	n.On("SendDeletionNotice", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return n
}

// eventRecorder collects every dispatched event
type eventRecorder struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *eventRecorder) handle(ctx context.Context, evt *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *eventRecorder) ofType(t event.Type) []*event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*event.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	invoices  *memory.InvoiceStore
	clients   *memory.ClientStore
	clock     *clock.FixedClock
	notifier  *MockNotifier
	events    *eventRecorder
	planner   SeriesPlanner
	editor    SeriesEditor
	generator GenerationService
	invoice   InvoiceService
	client    ClientService
}

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func newFixture(t *testing.T, today civil.Date) *fixture {
	return newFixtureWith(t, today, permissiveNotifier())
}

func newFixtureWith(t *testing.T, today civil.Date, notifier *MockNotifier) *fixture {
	t.Helper()

	f := &fixture{
		invoices: memory.NewInvoiceStore(),
		clients:  memory.NewClientStore(),
		clock:    clock.NewFixedClock(today),
		notifier: notifier,
		events:   &eventRecorder{},
	}
	d := dispatcher.NewDispatcher()
	d.Subscribe(dispatcher.AllEvents, f.events.handle)

	cfg := DefaultSchedulerConfig()
	cfg.Account.DefaultDescription = "Professional services"
	logger := nopLogger{}
	tx := memory.NewTxManager()
	numberer := memory.NewNumberer("INV-")

	f.planner = NewSeriesPlanner(f.invoices, f.clients, f.clock, d, cfg, logger)
	f.editor = NewSeriesEditor(f.invoices, f.clients, tx, notifier, f.clock, d, cfg, logger)
	f.generator = NewGenerationService(f.invoices, f.clients, numberer, guard.NewMemoryGuard(), notifier, f.planner, f.clock, d, cfg, logger)
	f.invoice = NewInvoiceService(f.invoices, f.clients, numberer, notifier, f.planner, f.clock, d, cfg, logger)
	f.client = NewClientService(f.clients, f.invoices, tx, f.clock, d, cfg, logger)
	return f
}

func money(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func intPtr(v int) *int { return &v }

func (f *fixture) addClient(t *testing.T, c *entity.Client) *entity.Client {
	t.Helper()
	require.NoError(t, f.clients.Create(context.Background(), c))
	return c
}

func (f *fixture) monthlyClient(t *testing.T, next civil.Date) *entity.Client {
	return f.addClient(t, &entity.Client{
		Name:             "Acme",
		Email:            "billing@acme.test",
		BillingFrequency: entity.FrequencyMonthly,
		Fee:              money(100),
		Description:      "Monthly retainer",
		NetDays:          intPtr(14),
		NextInvoiceDate:  next,
	})
}

func (f *fixture) query(t *testing.T, filter entity.InvoiceFilter) []*entity.Invoice {
	t.Helper()
	list, err := f.invoices.Query(context.Background(), filter)
	require.NoError(t, err)
	return list
}

func (f *fixture) reloadClient(t *testing.T, id string) *entity.Client {
	t.Helper()
	c, err := f.clients.Get(context.Background(), id)
	require.NoError(t, err)
	return c
}

func statuses(list []*entity.Invoice, s entity.InvoiceStatus) []*entity.Invoice {
	var out []*entity.Invoice
	for _, inv := range list {
		if inv.Status == s {
			out = append(out, inv)
		}
	}
	return out
}

// blockingStore blocks Put for one client until the call's deadline
type blockingStore struct {
	*memory.InvoiceStore
	blockClient string
}

func (s *blockingStore) Put(ctx context.Context, inv *entity.Invoice) error {
	if inv.ClientID == s.blockClient {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.InvoiceStore.Put(ctx, inv)
}

// stalledInvoices blocks every Get until the call's deadline
type stalledInvoices struct {
	*memory.InvoiceStore
}

func (s stalledInvoices) Get(ctx context.Context, id string) (*entity.Invoice, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// stalledClients blocks every Get until the call's deadline
type stalledClients struct {
	*memory.ClientStore
}

func (s stalledClients) Get(ctx context.Context, id string) (*entity.Client, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// flakyClients fails the next n updates and every read while down is set
type flakyClients struct {
	*memory.ClientStore
	mu          sync.Mutex
	failUpdates int
	down        bool
}

var errConnReset = errors.New("connection reset by peer")

func (s *flakyClients) Get(ctx context.Context, id string) (*entity.Client, error) {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()
	if down {
		return nil, errConnReset
	}
	return s.ClientStore.Get(ctx, id)
}

func (s *flakyClients) Update(ctx context.Context, id string, patch entity.ClientPatch) (*entity.Client, error) {
	s.mu.Lock()
	fail := s.failUpdates > 0
	if fail {
		s.failUpdates--
	}
	s.mu.Unlock()
	if fail {
		return nil, errConnReset
	}
	return s.ClientStore.Update(ctx, id, patch)
}

func newTestNumberer() *memory.Numberer { return memory.NewNumberer("T-") }

func newTestGuard() *guard.MemoryGuard { return guard.NewMemoryGuard() }

func newTestTx() *memory.TxManager { return memory.NewTxManager() }
