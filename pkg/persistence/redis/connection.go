package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const connections collection = "connection"

// ConnectionRepository stores channel connections in Redis.
type ConnectionRepository struct {
	client redis.UniversalClient
}

func (r *ConnectionRepository) List(ctx context.Context, opts persistence.ListConnectionsOptions) ([]*models.ConnectionRecord, error) {
	stored, err := all[models.ConnectionRecord](ctx, r.client, connections)
	if err != nil {
		return nil, err
	}

	result := make([]*models.ConnectionRecord, 0, len(stored))

	for _, record := range stored {
		if opts.Matches(record) {
			result = append(result, record)
		}
	}

	return result, nil
}

func (r *ConnectionRepository) GetByID(ctx context.Context, connectionID string) (*models.ConnectionRecord, error) {
	return get[models.ConnectionRecord](ctx, r.client, connections, connectionID)
}

func (r *ConnectionRepository) Save(ctx context.Context, record *models.ConnectionRecord) error {
	base := record.Base()
	if base == nil {
		return models.ErrUnknownConnectionKind
	}

	now := time.Now().UTC()
	if base.CreatedAt.IsZero() {
		base.CreatedAt = now
	}

	base.UpdatedAt = now

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return put(ctx, pipe, connections, base.ConnectionID, base.CreatedAt, record)
	})
	if err != nil {
		return fmt.Errorf("failed to save connection %s: %w", base.ConnectionID, err)
	}

	return nil
}

func (r *ConnectionRepository) Delete(ctx context.Context, connectionID string) error {
	return remove(ctx, r.client, connections, connectionID)
}
