package port

import (
	"context"
	"time"

	"cloud.google.com/go/civil"

	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
)

// Notifier delivers client-facing messages. Failures are reported to the
// caller but never undo the change that triggered them.
type Notifier interface {
	SendInvoiceEmail(ctx context.Context, inv *entity.Invoice, client *entity.Client, account entity.AccountConfig) error
	SendSeriesUpdateNotice(ctx context.Context, updated []*entity.Invoice, client *entity.Client, account entity.AccountConfig) error
	SendDeletionNotice(ctx context.Context, removed []*entity.Invoice, client *entity.Client, account entity.AccountConfig) error
}

// OccurrenceGuard records which (client, date) occurrences are being or have
// been generated. Claim returns false when another tick or replica holds it.
type OccurrenceGuard interface {
	Claim(ctx context.Context, clientID string, day civil.Date) (bool, error)
	Release(ctx context.Context, clientID string, day civil.Date) error
}

// Clock supplies the current instant and the process-local calendar date
type Clock interface {
	Now() time.Time
	Today() civil.Date
}
