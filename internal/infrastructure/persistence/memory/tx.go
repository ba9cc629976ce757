package memory

import (
	"context"
	"sync"

	"github.com/garyjia/invoice-scheduler/internal/application/port"
)

type txKey struct{}

// TxManager serializes transactional blocks. It offers isolation between
// blocks but no rollback; callers validate before mutating.
type TxManager struct {
	mu sync.Mutex
}

// NewTxManager creates a transaction manager
func NewTxManager() *TxManager {
	return &TxManager{}
}

func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, true))
}

var _ port.TransactionManager = (*TxManager)(nil)
