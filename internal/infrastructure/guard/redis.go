package guard

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-scheduler/internal/application/port"
)

// RedisConfig configures the shared claim store
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisGuard shares claims across replicas with SET NX, so two daemons
// never bill the same client on the same day.
type RedisGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisGuard creates a guard over an existing client
func NewRedisGuard(client *redis.Client, cfg RedisConfig, logger *zap.Logger) *RedisGuard {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "invoice-scheduler:claim"
	}
	return &RedisGuard{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (g *RedisGuard) key(clientID string, day civil.Date) string {
	return fmt.Sprintf("%s:%s:%s", g.prefix, day.String(), clientID)
}

func (g *RedisGuard) Claim(ctx context.Context, clientID string, day civil.Date) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(clientID, day), time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim: %w", err)
	}
	if !ok {
		g.logger.Debug("Occurrence already claimed", zap.String("client_id", clientID), zap.String("date", day.String()))
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, clientID string, day civil.Date) error {
	if err := g.client.Del(ctx, g.key(clientID, day)).Err(); err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}

// Close closes the underlying client
func (g *RedisGuard) Close() error {
	return g.client.Close()
}

var _ port.OccurrenceGuard = (*RedisGuard)(nil)
