package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-scheduler/internal/application/port"
	"github.com/garyjia/invoice-scheduler/internal/infrastructure/persistence/sqltx"
)

// SequenceNumberer issues invoice numbers from the single-row invoice_sequence table
type SequenceNumberer struct {
	db     *sqltx.DB
	prefix string
	logger *zap.Logger
}

// NewSequenceNumberer creates a numberer that formats numbers as prefix + 5 digits
func NewSequenceNumberer(db *sqltx.DB, prefix string, logger *zap.Logger) *SequenceNumberer {
	return &SequenceNumberer{
		db:     db,
		prefix: prefix,
		logger: logger,
	}
}

// Next increments the sequence and returns the formatted number
func (n *SequenceNumberer) Next(ctx context.Context) (string, error) {
	var value int64
	err := n.db.WithTransaction(ctx, func(ctx context.Context) error {
		exec := n.db.Executor(ctx)
		if _, err := exec.ExecContext(ctx, `UPDATE invoice_sequence SET value = value + 1 WHERE id = 1`); err != nil {
			return err
		}
		return sqlx.GetContext(ctx, exec, &value, `SELECT value FROM invoice_sequence WHERE id = 1`)
	})
	if err != nil {
		n.logger.Error("Failed to advance invoice sequence", zap.Error(err))
		return "", fmt.Errorf("failed to advance invoice sequence: %w", err)
	}
	return fmt.Sprintf("%s%05d", n.prefix, value), nil
}

var _ port.InvoiceNumberer = (*SequenceNumberer)(nil)
