// Package redis provides Redis persistence for workflows, connections and channels. Every
// record is a JSON string; per-type sorted sets keyed by creation time index them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/parley/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "parley:"

// Persistence implements the persistence layer on Redis.
type Persistence struct {
	client         redis.UniversalClient
	logger         *slog.Logger
	workflowRepo   *WorkflowRepository
	connectionRepo *ConnectionRepository
	channelRepo    *ChannelRepository
}

// NewPersistence connects to the Redis server at redisURL (redis://[user:pass@]host:port/db).
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", options.Addr, "db", options.DB)

	return NewPersistenceWithClient(logger, client), nil
}

// NewPersistenceWithClient builds the persistence layer on an existing client.
func NewPersistenceWithClient(logger *slog.Logger, client redis.UniversalClient) *Persistence {
	return &Persistence{
		client:         client,
		logger:         logger,
		workflowRepo:   &WorkflowRepository{client: client},
		connectionRepo: &ConnectionRepository{client: client},
		channelRepo:    &ChannelRepository{client: client},
	}
}

func (p *Persistence) Close(_ context.Context) error {
	err := p.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ConnectionRepository() persistence.ConnectionRepository {
	return p.connectionRepo
}

func (p *Persistence) ChannelRepository() persistence.ChannelRepository {
	return p.channelRepo
}

// collection addresses one record type: a JSON string per record plus a sorted set index.
type collection string

func (c collection) key(id string) string {
	return keyPrefix + string(c) + ":" + id
}

func (c collection) index() string {
	return keyPrefix + string(c) + "s"
}

// get returns nil, nil when the record does not exist.
func get[T any](ctx context.Context, client redis.Cmdable, c collection, id string) (*T, error) {
	data, err := client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get %s: %w", c.key(id), err)
	}

	var value T

	err = json.Unmarshal(data, &value)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", c.key(id), err)
	}

	return &value, nil
}

// all returns every record of the collection ordered by creation time.
func all[T any](ctx context.Context, client redis.Cmdable, c collection) ([]*T, error) {
	ids, err := client.ZRange(ctx, c.index(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", c.index(), err)
	}

	if len(ids) == 0 {
		return []*T{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}

	values, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s records: %w", c, err)
	}

	records := make([]*T, 0, len(values))

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}

		var record T

		err = json.Unmarshal([]byte(raw), &record)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", keys[i], err)
		}

		records = append(records, &record)
	}

	return records, nil
}

// put writes the record and its index entry in one MULTI/EXEC.
func put(ctx context.Context, pipe redis.Pipeliner, c collection, id string, createdAt time.Time, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", c.key(id), err)
	}

	pipe.Set(ctx, c.key(id), data, 0)
	pipe.ZAdd(ctx, c.index(), redis.Z{Score: float64(createdAt.UnixMicro()), Member: id})

	return nil
}

func remove(ctx context.Context, client redis.Cmdable, c collection, id string) error {
	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.key(id))
		pipe.ZRem(ctx, c.index(), id)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", c.key(id), err)
	}

	return nil
}
