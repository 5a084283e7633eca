package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
)

// ChannelRepository handles business channel file operations.
type ChannelRepository struct {
	store *documentStore[models.BusinessChannel]
}

// NewChannelRepository creates a new channel repository.
func NewChannelRepository(root string) *ChannelRepository {
	return &ChannelRepository{store: newDocumentStore[models.BusinessChannel](root, "channels")}
}

func (cr *ChannelRepository) List(_ context.Context, businessID string) ([]*models.BusinessChannel, error) {
	all, err := cr.store.all()
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}

	channels := make([]*models.BusinessChannel, 0, len(all))

	for _, channel := range all {
		if businessID == "" || channel.BusinessID == businessID {
			channels = append(channels, channel)
		}
	}

	sortChannels(channels)

	return channels, nil
}

func (cr *ChannelRepository) GetByID(_ context.Context, id string) (*models.BusinessChannel, error) {
	channel, err := cr.store.read(id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch channel %s: %w", id, err)
	}

	return channel, nil
}

// Save checks the name for uniqueness and writes under the store lock.
func (cr *ChannelRepository) Save(_ context.Context, channel *models.BusinessChannel) error {
	cr.store.mu.Lock()
	defer cr.store.mu.Unlock()

	existing, err := cr.store.allLocked()
	if err != nil {
		return fmt.Errorf("failed to list channels: %w", err)
	}

	for _, other := range existing {
		if other.ID != channel.ID && other.BusinessID == channel.BusinessID && other.Name == channel.Name {
			return persistence.NewChannelError("Save", channel.ID, persistence.ErrChannelAlreadyExists)
		}
	}

	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = time.Now().UTC()
	}

	err = cr.store.writeLocked(channel.ID, channel)
	if err != nil {
		return fmt.Errorf("failed to save channel %s: %w", channel.ID, err)
	}

	return nil
}

func (cr *ChannelRepository) Delete(_ context.Context, id string) error {
	return cr.store.remove(id)
}

func sortChannels(channels []*models.BusinessChannel) {
	sort.SliceStable(channels, func(i, j int) bool {
		if channels[i].CreatedAt.Equal(channels[j].CreatedAt) {
			return channels[i].Name < channels[j].Name
		}

		return channels[i].CreatedAt.Before(channels[j].CreatedAt)
	})
}
