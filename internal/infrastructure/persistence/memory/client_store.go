package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/invoice-scheduler/internal/application/port"
	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
)

// ClientStore keeps clients in memory
type ClientStore struct {
	mu      sync.RWMutex
	clients map[string]*entity.Client
}

// NewClientStore creates an empty store
func NewClientStore() *ClientStore {
	return &ClientStore{clients: make(map[string]*entity.Client)}
}

func (s *ClientStore) Get(ctx context.Context, id string) (*entity.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[id]
	if !ok {
		return nil, &entity.NotFoundError{Kind: "client", ID: id}
	}
	return c.Clone(), nil
}

func (s *ClientStore) Create(ctx context.Context, client *entity.Client) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if client.Status == "" {
		client.Status = entity.ClientActive
	}
	if err := client.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	if _, exists := s.clients[client.ID]; exists {
		return &entity.ValidationError{Field: "id", Reason: "already exists"}
	}
	now := time.Now()
	client.CreatedAt = now
	client.UpdatedAt = now
	s.clients[client.ID] = client.Clone()
	return nil
}

func (s *ClientStore) Update(ctx context.Context, id string, patch entity.ClientPatch) (*entity.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.clients[id]
	if !ok {
		return nil, &entity.NotFoundError{Kind: "client", ID: id}
	}
	next := current.Clone()
	patch.Apply(next)
	if err := next.Validate(); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now()
	s.clients[id] = next
	return next.Clone(), nil
}

// Query returns matching clients ordered by name
func (s *ClientStore) Query(ctx context.Context, filter entity.ClientFilter) ([]*entity.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entity.Client, 0)
	for _, c := range s.clients {
		if filter.Matches(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

var _ port.ClientStore = (*ClientStore)(nil)
