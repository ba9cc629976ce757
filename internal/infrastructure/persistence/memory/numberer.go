package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/garyjia/invoice-scheduler/internal/application/port"
)

// Numberer hands out sequential invoice numbers
type Numberer struct {
	mu     sync.Mutex
	prefix string
	next   int64
}

// NewNumberer creates a numberer starting at 1
func NewNumberer(prefix string) *Numberer {
	return &Numberer{prefix: prefix, next: 1}
}

func (n *Numberer) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	num := n.next
	n.next++
	return fmt.Sprintf("%s%05d", n.prefix, num), nil
}

var _ port.InvoiceNumberer = (*Numberer)(nil)
