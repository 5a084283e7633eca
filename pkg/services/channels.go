package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
	"github.com/google/uuid"
)

// Channels manages the business channel names offered as workflow categories.
type Channels struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

func NewChannels(persistence persistence.Persistence, logger *slog.Logger) *Channels {
	return &Channels{
		persistence: persistence,
		logger:      logger.With("module", "channel_service"),
	}
}

func (c *Channels) List(ctx context.Context, businessID string) ([]*models.BusinessChannel, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, ErrBusinessIDRequired
	}

	channels, err := c.persistence.ChannelRepository().List(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}

	return channels, nil
}

// Create adds a channel name to a business. Names are unique per business.
func (c *Channels) Create(ctx context.Context, businessID, name string) (*models.BusinessChannel, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, ErrBusinessIDRequired
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrChannelNameRequired
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate channel id: %w", err)
	}

	channel := &models.BusinessChannel{
		ID:         id.String(),
		BusinessID: businessID,
		Name:       name,
		CreatedAt:  time.Now().UTC(),
	}

	err = c.persistence.ChannelRepository().Save(ctx, channel)
	if err != nil {
		if persistence.IsChannelAlreadyExists(err) {
			return nil, &ServiceError{Op: "Create", Code: "CHANNEL_EXISTS",
				Message: fmt.Sprintf("channel '%s' already exists", name), Err: ErrChannelAlreadyExists}
		}

		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	c.logger.InfoContext(ctx, "Channel created", "channel_id", channel.ID, "business_id", businessID, "name", name)

	return channel, nil
}

func (c *Channels) Delete(ctx context.Context, id string) error {
	channel, err := c.persistence.ChannelRepository().GetByID(ctx, id)
	if err != nil {
		return err
	}

	if channel == nil {
		return persistence.NewChannelError("Delete", id, ErrChannelNotFound)
	}

	err = c.persistence.ChannelRepository().Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}

	c.logger.InfoContext(ctx, "Channel deleted", "channel_id", id, "business_id", channel.BusinessID)

	return nil
}
