package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const (
	channels collection = "channel"

	maxSaveRetries = 3
)

// ChannelRepository stores business channels in Redis. A hash per business maps channel
// names to ids and guards name uniqueness.
type ChannelRepository struct {
	client redis.UniversalClient
}

func namesKey(businessID string) string {
	return keyPrefix + "channel_names:" + businessID
}

func (r *ChannelRepository) List(ctx context.Context, businessID string) ([]*models.BusinessChannel, error) {
	stored, err := all[models.BusinessChannel](ctx, r.client, channels)
	if err != nil {
		return nil, err
	}

	result := make([]*models.BusinessChannel, 0, len(stored))

	for _, channel := range stored {
		if businessID == "" || channel.BusinessID == businessID {
			result = append(result, channel)
		}
	}

	return result, nil
}

func (r *ChannelRepository) GetByID(ctx context.Context, id string) (*models.BusinessChannel, error) {
	return get[models.BusinessChannel](ctx, r.client, channels, id)
}

// Save runs an optimistic WATCH transaction over the business's name index and retries
// when another writer touched it first.
func (r *ChannelRepository) Save(ctx context.Context, channel *models.BusinessChannel) error {
	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = time.Now().UTC()
	}

	names := namesKey(channel.BusinessID)

	txf := func(tx *redis.Tx) error {
		ownerID, err := tx.HGet(ctx, names, channel.Name).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		if ownerID != "" && ownerID != channel.ID {
			return persistence.NewChannelError("Save", channel.ID, persistence.ErrChannelAlreadyExists)
		}

		previous, err := get[models.BusinessChannel](ctx, tx, channels, channel.ID)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if previous != nil && (previous.Name != channel.Name || previous.BusinessID != channel.BusinessID) {
				pipe.HDel(ctx, namesKey(previous.BusinessID), previous.Name)
			}

			pipe.HSet(ctx, names, channel.Name, channel.ID)

			return put(ctx, pipe, channels, channel.ID, channel.CreatedAt, channel)
		})

		return err
	}

	for range maxSaveRetries {
		err := r.client.Watch(ctx, txf, names, channels.key(channel.ID))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		if err != nil {
			if persistence.IsChannelAlreadyExists(err) {
				return err
			}

			return fmt.Errorf("failed to save channel %s: %w", channel.ID, err)
		}

		return nil
	}

	return fmt.Errorf("failed to save channel %s: %w", channel.ID, redis.TxFailedErr)
}

func (r *ChannelRepository) Delete(ctx context.Context, id string) error {
	channel, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if channel == nil {
		return nil
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, namesKey(channel.BusinessID), channel.Name)
		pipe.Del(ctx, channels.key(id))
		pipe.ZRem(ctx, channels.index(), id)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete channel %s: %w", id, err)
	}

	return nil
}
