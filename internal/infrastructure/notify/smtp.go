// Package notify delivers client-facing invoice messages.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/garyjia/invoice-scheduler/internal/application/port"
	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
)

// SMTPConfig holds SMTP delivery settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer sends prepared messages. *gomail.Dialer satisfies it.
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPNotifier emails clients through an SMTP relay
type SMTPNotifier struct {
	mailer Mailer
	from   string
	logger *zap.Logger
}

// NewSMTPNotifier creates a notifier backed by a gomail dialer
func NewSMTPNotifier(cfg SMTPConfig, logger *zap.Logger) *SMTPNotifier {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return NewSMTPNotifierWithMailer(d, from, logger)
}

// NewSMTPNotifierWithMailer creates a notifier over an arbitrary mailer
func NewSMTPNotifierWithMailer(mailer Mailer, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		mailer: mailer,
		from:   from,
		logger: logger,
	}
}

// SendInvoiceEmail sends an issued invoice to the client
func (n *SMTPNotifier) SendInvoiceEmail(ctx context.Context, inv *entity.Invoice, client *entity.Client, account entity.AccountConfig) error {
	subject := fmt.Sprintf("Invoice %s from %s", inv.InvoiceNumber, account.Name)
	return n.send(ctx, client, account, subject, buildInvoiceBody(inv, client, account),
		zap.String("invoice_id", inv.ID), zap.String("invoice_number", inv.InvoiceNumber))
}

// SendSeriesUpdateNotice tells the client which invoices changed
func (n *SMTPNotifier) SendSeriesUpdateNotice(ctx context.Context, updated []*entity.Invoice, client *entity.Client, account entity.AccountConfig) error {
	subject := fmt.Sprintf("Your billing schedule with %s has changed", account.Name)
	return n.send(ctx, client, account, subject, buildUpdateBody(updated, client, account),
		zap.Int("invoices", len(updated)))
}

// SendDeletionNotice tells the client which invoices were withdrawn
func (n *SMTPNotifier) SendDeletionNotice(ctx context.Context, removed []*entity.Invoice, client *entity.Client, account entity.AccountConfig) error {
	subject := fmt.Sprintf("Invoices withdrawn by %s", account.Name)
	return n.send(ctx, client, account, subject, buildDeletionBody(removed, client, account),
		zap.Int("invoices", len(removed)))
}

func (n *SMTPNotifier) send(ctx context.Context, client *entity.Client, account entity.AccountConfig, subject, body string, fields ...zap.Field) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if client.Email == "" {
		return &entity.ValidationError{Field: "email", Reason: "client " + client.ID + " has no email address"}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", client.Email)
	if account.Email != "" {
		m.SetHeader("Reply-To", account.Email)
	}
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	fields = append(fields, zap.String("client_id", client.ID), zap.String("to", client.Email))
	if err := n.mailer.DialAndSend(m); err != nil {
		n.logger.Error("Failed to send email", append(fields, zap.Error(err))...)
		return fmt.Errorf("failed to send email: %w", err)
	}
	n.logger.Info("Email sent", append(fields, zap.String("subject", subject))...)
	return nil
}

func buildInvoiceBody(inv *entity.Invoice, client *entity.Client, account entity.AccountConfig) string {
	return fmt.Sprintf(`Dear %s,

Please find your invoice details below.

Invoice number: %s
Description:    %s
Amount:         %s
Issue date:     %s
Due date:       %s

%s`,
		client.Name,
		inv.InvoiceNumber,
		inv.Description,
		inv.Amount.StringFixed(2),
		inv.IssueDate,
		inv.DueDate,
		signature(account),
	)
}

func buildUpdateBody(updated []*entity.Invoice, client *entity.Client, account entity.AccountConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\nThe following invoices have been updated:\n\n", client.Name)
	writeInvoiceLines(&b, updated)
	b.WriteString("\n")
	b.WriteString(signature(account))
	return b.String()
}

func buildDeletionBody(removed []*entity.Invoice, client *entity.Client, account entity.AccountConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\nThe following invoices have been withdrawn and no longer need to be paid:\n\n", client.Name)
	writeInvoiceLines(&b, removed)
	b.WriteString("\n")
	b.WriteString(signature(account))
	return b.String()
}

func writeInvoiceLines(b *strings.Builder, invoices []*entity.Invoice) {
	for i, inv := range invoices {
		label := inv.InvoiceNumber
		if label == "" {
			label = "scheduled"
		}
		fmt.Fprintf(b, "%d. %s  %s  due %s  %s\n", i+1, inv.IssueDate, inv.Amount.StringFixed(2), inv.DueDate, label)
	}
}

func signature(account entity.AccountConfig) string {
	if account.Name == "" {
		return "This message was sent automatically, please do not reply.\n"
	}
	return fmt.Sprintf("Kind regards,\n%s\n", account.Name)
}

var _ port.Notifier = (*SMTPNotifier)(nil)
