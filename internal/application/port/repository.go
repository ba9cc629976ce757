package port

import (
	"context"

	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
)

// InvoiceStore persists invoices keyed by id.
//
// Get returns an *entity.NotFoundError when the id is unknown. Put inserts when
// the id is empty or unknown (assigning an id) and otherwise updates with a
// version check: the stored version must equal inv.Version, and on success
// inv.Version is incremented. A collision on (client, series, issue date)
// returns an *entity.DuplicateOccurrenceError.
type InvoiceStore interface {
	Get(ctx context.Context, id string) (*entity.Invoice, error)
	Put(ctx context.Context, inv *entity.Invoice) error
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, filter entity.InvoiceFilter) ([]*entity.Invoice, error)
}

// ClientStore persists clients and their billing pointer
type ClientStore interface {
	Get(ctx context.Context, id string) (*entity.Client, error)
	Create(ctx context.Context, client *entity.Client) error
	Update(ctx context.Context, id string, patch entity.ClientPatch) (*entity.Client, error)
	Query(ctx context.Context, filter entity.ClientFilter) ([]*entity.Client, error)
}

// InvoiceNumberer hands out unique, monotonically increasing invoice numbers per account
type InvoiceNumberer interface {
	Next(ctx context.Context) (string, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
