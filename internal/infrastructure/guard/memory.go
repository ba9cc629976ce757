// Package guard implements OccurrenceGuard backends.
package guard

import (
	"context"
	"sync"

	"cloud.google.com/go/civil"

	"github.com/garyjia/invoice-scheduler/internal/application/port"
)

type claim struct {
	clientID string
	day      civil.Date
}

// MemoryGuard is the process-local processed set. It is cleared on restart
// and only protects a single daemon instance.
type MemoryGuard struct {
	mu      sync.Mutex
	claimed map[claim]struct{}
}

// NewMemoryGuard creates an empty processed set
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{claimed: make(map[claim]struct{})}
}

func (g *MemoryGuard) Claim(ctx context.Context, clientID string, day civil.Date) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prune(day)
	key := claim{clientID: clientID, day: day}
	if _, ok := g.claimed[key]; ok {
		return false, nil
	}
	g.claimed[key] = struct{}{}
	return true, nil
}

func (g *MemoryGuard) Release(ctx context.Context, clientID string, day civil.Date) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claimed, claim{clientID: clientID, day: day})
	return nil
}

// prune drops claims of earlier days so the set does not grow without bound
func (g *MemoryGuard) prune(today civil.Date) {
	for k := range g.claimed {
		if k.day.Before(today) {
			delete(g.claimed, k)
		}
	}
}

var _ port.OccurrenceGuard = (*MemoryGuard)(nil)
