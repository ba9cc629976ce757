package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-scheduler/internal/application/port"
	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
	"github.com/garyjia/invoice-scheduler/internal/infrastructure/persistence/sqltx"
)

const invoiceColumns = `id, series_id, client_id, client_name, amount, description,
	issue_date, due_date, billing_frequency, status, invoice_number,
	paid_at, activity, version, created_at, updated_at`

type invoiceRow struct {
	ID               string          `db:"id"`
	SeriesID         string          `db:"series_id"`
	ClientID         string          `db:"client_id"`
	ClientName       string          `db:"client_name"`
	Amount           decimal.Decimal `db:"amount"`
	Description      string          `db:"description"`
	IssueDate        string          `db:"issue_date"`
	DueDate          string          `db:"due_date"`
	BillingFrequency string          `db:"billing_frequency"`
	Status           string          `db:"status"`
	InvoiceNumber    string          `db:"invoice_number"`
	PaidAt           sql.NullTime    `db:"paid_at"`
	Activity         string          `db:"activity"`
	Version          int64           `db:"version"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

func (r invoiceRow) toEntity() (*entity.Invoice, error) {
	issue, err := parseDate(r.IssueDate)
	if err != nil {
		return nil, err
	}
	due, err := parseDate(r.DueDate)
	if err != nil {
		return nil, err
	}
	inv := &entity.Invoice{
		ID:               r.ID,
		SeriesID:         r.SeriesID,
		ClientID:         r.ClientID,
		ClientName:       r.ClientName,
		Amount:           r.Amount,
		Description:      r.Description,
		IssueDate:        issue,
		DueDate:          due,
		BillingFrequency: entity.Frequency(r.BillingFrequency),
		Status:           entity.InvoiceStatus(r.Status),
		InvoiceNumber:    r.InvoiceNumber,
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.PaidAt.Valid {
		paid := r.PaidAt.Time
		inv.PaidAt = &paid
	}
	if r.Activity != "" {
		if err := json.Unmarshal([]byte(r.Activity), &inv.Activity); err != nil {
			return nil, fmt.Errorf("invalid activity log of invoice %s: %w", r.ID, err)
		}
	}
	return inv, nil
}

// InvoiceRepository implements port.InvoiceStore over sqlite or postgres
type InvoiceRepository struct {
	db     *sqltx.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sqltx.DB, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves an invoice by id
func (r *InvoiceRepository) Get(ctx context.Context, id string) (*entity.Invoice, error) {
	exec := r.db.Executor(ctx)
	query := exec.Rebind(`SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`)

	var row invoiceRow
	if err := sqlx.GetContext(ctx, exec, &row, query, id); err != nil {
		if isNoRows(err) {
			return nil, &entity.NotFoundError{Kind: "invoice", ID: id}
		}
		r.logger.Error("Failed to get invoice", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return row.toEntity()
}

// Put inserts or updates an invoice with an optimistic version check
func (r *InvoiceRepository) Put(ctx context.Context, inv *entity.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	activity, err := json.Marshal(inv.Activity)
	if err != nil {
		return fmt.Errorf("failed to encode activity: %w", err)
	}
	if inv.Activity == nil {
		activity = []byte("[]")
	}

	exec := r.db.Executor(ctx)
	now := time.Now().UTC()
	var paidAt sql.NullTime
	if inv.PaidAt != nil {
		paidAt = sql.NullTime{Time: *inv.PaidAt, Valid: true}
	}

	id := inv.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := inv.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	update := exec.Rebind(`
		UPDATE invoices SET
			series_id = ?, client_id = ?, client_name = ?, amount = ?, description = ?,
			issue_date = ?, due_date = ?, billing_frequency = ?, status = ?, invoice_number = ?,
			paid_at = ?, activity = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`)
	args := []interface{}{
		inv.SeriesID, inv.ClientID, inv.ClientName, inv.Amount.String(), inv.Description,
		formatDate(inv.IssueDate), formatDate(inv.DueDate), string(inv.BillingFrequency), string(inv.Status), inv.InvoiceNumber,
		paidAt, string(activity), now,
	}

	if inv.ID != "" {
		res, err := exec.ExecContext(ctx, update, append(args, id, inv.Version)...)
		if err != nil {
			return r.mapWriteError(inv, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			inv.Version++
			inv.UpdatedAt = now
			return nil
		}

		var stored int64
		err = sqlx.GetContext(ctx, exec, &stored, exec.Rebind(`SELECT version FROM invoices WHERE id = ?`), id)
		if err == nil {
			return fmt.Errorf("%w: invoice %s at version %d, stored %d", entity.ErrVersionConflict, id, inv.Version, stored)
		}
		if !isNoRows(err) {
			return fmt.Errorf("failed to check invoice version: %w", err)
		}
	}

	insert := exec.Rebind(`
		INSERT INTO invoices (
			series_id, client_id, client_name, amount, description,
			issue_date, due_date, billing_frequency, status, invoice_number,
			paid_at, activity, updated_at, id, version, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if _, err := exec.ExecContext(ctx, insert, append(args, id, inv.Version+1, createdAt)...); err != nil {
		return r.mapWriteError(inv, err)
	}

	inv.ID = id
	inv.Version++
	inv.CreatedAt = createdAt
	inv.UpdatedAt = now
	return nil
}

func (r *InvoiceRepository) mapWriteError(inv *entity.Invoice, err error) error {
	if isUniqueViolation(err) {
		if strings.Contains(violatedConstraint(err), "number") {
			return fmt.Errorf("%w: invoice number %s already used", entity.ErrValidation, inv.InvoiceNumber)
		}
		return &entity.DuplicateOccurrenceError{ClientID: inv.ClientID, SeriesID: inv.SeriesID, IssueDate: inv.IssueDate}
	}
	r.logger.Error("Failed to write invoice", zap.String("id", inv.ID), zap.Error(err))
	return fmt.Errorf("failed to write invoice: %w", err)
}

// Delete removes an invoice
func (r *InvoiceRepository) Delete(ctx context.Context, id string) error {
	exec := r.db.Executor(ctx)
	res, err := exec.ExecContext(ctx, exec.Rebind(`DELETE FROM invoices WHERE id = ?`), id)
	if err != nil {
		r.logger.Error("Failed to delete invoice", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &entity.NotFoundError{Kind: "invoice", ID: id}
	}
	return nil
}

// Query lists invoices matching filter ordered by issue date
func (r *InvoiceRepository) Query(ctx context.Context, filter entity.InvoiceFilter) ([]*entity.Invoice, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, arg interface{}) {
		where = append(where, clause)
		args = append(args, arg)
	}
	if filter.ClientID != "" {
		add("client_id = ?", filter.ClientID)
	}
	if filter.SeriesID != "" {
		add("series_id = ?", filter.SeriesID)
	}
	if !filter.IssueDate.IsZero() {
		add("issue_date = ?", formatDate(filter.IssueDate))
	}
	if !filter.IssueFrom.IsZero() {
		add("issue_date >= ?", formatDate(filter.IssueFrom))
	}
	if !filter.IssueTo.IsZero() {
		add("issue_date <= ?", formatDate(filter.IssueTo))
	}
	if !filter.DueBefore.IsZero() {
		add("due_date < ?", formatDate(filter.DueBefore))
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY issue_date, created_at, id`

	exec := r.db.Executor(ctx)
	var rows []invoiceRow
	if err := sqlx.SelectContext(ctx, exec, &rows, exec.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to query invoices", zap.Error(err))
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}

	out := make([]*entity.Invoice, 0, len(rows))
	for _, row := range rows {
		inv, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

var _ port.InvoiceStore = (*InvoiceRepository)(nil)
