package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-scheduler/internal/application/port"
	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
)

// LogNotifier records notifications in the log instead of sending them.
// Used when no SMTP relay is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendInvoiceEmail(ctx context.Context, inv *entity.Invoice, client *entity.Client, account entity.AccountConfig) error {
	n.logger.Info("Invoice email (not sent)",
		zap.String("client_id", client.ID),
		zap.String("to", client.Email),
		zap.String("invoice_id", inv.ID),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("amount", inv.Amount.StringFixed(2)),
		zap.String("due_date", inv.DueDate.String()))
	return nil
}

func (n *LogNotifier) SendSeriesUpdateNotice(ctx context.Context, updated []*entity.Invoice, client *entity.Client, account entity.AccountConfig) error {
	n.logger.Info("Series update notice (not sent)",
		zap.String("client_id", client.ID),
		zap.String("to", client.Email),
		zap.Strings("invoice_ids", ids(updated)))
	return nil
}

func (n *LogNotifier) SendDeletionNotice(ctx context.Context, removed []*entity.Invoice, client *entity.Client, account entity.AccountConfig) error {
	n.logger.Info("Deletion notice (not sent)",
		zap.String("client_id", client.ID),
		zap.String("to", client.Email),
		zap.Strings("invoice_ids", ids(removed)))
	return nil
}

func ids(invoices []*entity.Invoice) []string {
	out := make([]string, len(invoices))
	for i, inv := range invoices {
		out[i] = inv.ID
	}
	return out
}

var _ port.Notifier = (*LogNotifier)(nil)
