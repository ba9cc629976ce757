package repository

import (
	"context"
	"database/sql"
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

const clientColumns = `id, name, email, billing_frequency, fee, description, net_days,
	next_invoice_date, last_invoiced, status, on_hold, created_at, updated_at`

type clientRow struct {
	ID               string              `db:"id"`
	Name             string              `db:"name"`
	Email            string              `db:"email"`
	BillingFrequency string              `db:"billing_frequency"`
	Fee              decimal.NullDecimal `db:"fee"`
	Description      string              `db:"description"`
	NetDays          sql.NullInt64       `db:"net_days"`
	NextInvoiceDate  string              `db:"next_invoice_date"`
	LastInvoiced     string              `db:"last_invoiced"`
	Status           string              `db:"status"`
	OnHold           bool                `db:"on_hold"`
	CreatedAt        time.Time           `db:"created_at"`
	UpdatedAt        time.Time           `db:"updated_at"`
}

func (r clientRow) toEntity() (*entity.Client, error) {
	next, err := parseDate(r.NextInvoiceDate)
	if err != nil {
		return nil, err
	}
	last, err := parseDate(r.LastInvoiced)
	if err != nil {
		return nil, err
	}
	c := &entity.Client{
		ID:               r.ID,
		Name:             r.Name,
		Email:            r.Email,
		BillingFrequency: entity.Frequency(r.BillingFrequency),
		Description:      r.Description,
		NextInvoiceDate:  next,
		LastInvoiced:     last,
		Status:           entity.ClientStatus(r.Status),
		OnHold:           r.OnHold,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.Fee.Valid {
		fee := r.Fee.Decimal
		c.Fee = &fee
	}
	if r.NetDays.Valid {
		nd := int(r.NetDays.Int64)
		c.NetDays = &nd
	}
	return c, nil
}

func clientArgs(c *entity.Client) []interface{} {
	var fee, netDays interface{}
	if c.Fee != nil {
		fee = c.Fee.String()
	}
	if c.NetDays != nil {
		netDays = int64(*c.NetDays)
	}
	return []interface{}{
		c.Name, c.Email, string(c.BillingFrequency), fee, c.Description, netDays,
		formatDate(c.NextInvoiceDate), formatDate(c.LastInvoiced), string(c.Status), c.OnHold,
	}
}

// ClientRepository implements port.ClientStore over sqlite or postgres
type ClientRepository struct {
	db     *sqltx.DB
	logger *zap.Logger
}

// NewClientRepository creates a new client repository
func NewClientRepository(db *sqltx.DB, logger *zap.Logger) *ClientRepository {
	return &ClientRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a client by id
func (r *ClientRepository) Get(ctx context.Context, id string) (*entity.Client, error) {
	exec := r.db.Executor(ctx)
	var row clientRow
	err := sqlx.GetContext(ctx, exec, &row, exec.Rebind(`SELECT `+clientColumns+` FROM clients WHERE id = ?`), id)
	if err != nil {
		if isNoRows(err) {
			return nil, &entity.NotFoundError{Kind: "client", ID: id}
		}
		r.logger.Error("Failed to get client", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return row.toEntity()
}

// Create inserts a new client, assigning an id when absent
func (r *ClientRepository) Create(ctx context.Context, client *entity.Client) error {
	if client.Status == "" {
		client.Status = entity.ClientActive
	}
	if err := client.Validate(); err != nil {
		return err
	}
	id := client.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()

	exec := r.db.Executor(ctx)
	query := exec.Rebind(`
		INSERT INTO clients (
			name, email, billing_frequency, fee, description, net_days,
			next_invoice_date, last_invoiced, status, on_hold,
			id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	args := append(clientArgs(client), id, now, now)
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return &entity.ValidationError{Field: "id", Reason: "already exists"}
		}
		r.logger.Error("Failed to create client", zap.String("name", client.Name), zap.Error(err))
		return fmt.Errorf("failed to create client: %w", err)
	}

	client.ID = id
	client.CreatedAt = now
	client.UpdatedAt = now
	return nil
}

// Update applies patch to the stored client and returns the result
func (r *ClientRepository) Update(ctx context.Context, id string, patch entity.ClientPatch) (*entity.Client, error) {
	var updated *entity.Client
	err := r.db.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		patch.Apply(current)
		if err := current.Validate(); err != nil {
			return err
		}
		current.UpdatedAt = time.Now().UTC()

		exec := r.db.Executor(ctx)
		query := exec.Rebind(`
			UPDATE clients SET
				name = ?, email = ?, billing_frequency = ?, fee = ?, description = ?, net_days = ?,
				next_invoice_date = ?, last_invoiced = ?, status = ?, on_hold = ?, updated_at = ?
			WHERE id = ?
		`)
		args := append(clientArgs(current), current.UpdatedAt, id)
		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			r.logger.Error("Failed to update client", zap.String("id", id), zap.Error(err))
			return fmt.Errorf("failed to update client: %w", err)
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Query lists clients matching filter ordered by name
func (r *ClientRepository) Query(ctx context.Context, filter entity.ClientFilter) ([]*entity.Client, error) {
	var (
		where []string
		args  []interface{}
	)
	if !filter.NextInvoiceDate.IsZero() {
		where = append(where, "next_invoice_date = ?")
		args = append(args, formatDate(filter.NextInvoiceDate))
	}
	if filter.OnHold != nil {
		where = append(where, "on_hold = ?")
		args = append(args, *filter.OnHold)
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT ` + clientColumns + ` FROM clients`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY name, id`

	exec := r.db.Executor(ctx)
	var rows []clientRow
	if err := sqlx.SelectContext(ctx, exec, &rows, exec.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to query clients", zap.Error(err))
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}

	out := make([]*entity.Client, 0, len(rows))
	for _, row := range rows {
		c, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

var _ port.ClientStore = (*ClientRepository)(nil)
