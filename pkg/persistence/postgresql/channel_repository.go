package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

// ChannelRepository handles business channel database operations.
type ChannelRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewChannelRepository creates a new channel repository.
func NewChannelRepository(db *sql.DB, logger *slog.Logger) *ChannelRepository {
	return &ChannelRepository{db: db, logger: logger}
}

func (cr *ChannelRepository) List(ctx context.Context, businessID string) ([]*models.BusinessChannel, error) {
	query := `
		SELECT id, business_id, name, created_at
		FROM business_channels
		WHERE ($1 = '' OR business_id = $1)
		ORDER BY created_at ASC, name ASC
	`

	rows, err := cr.db.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}

	defer closeRows(ctx, cr.logger, rows)

	channels := make([]*models.BusinessChannel, 0)

	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}

		channels = append(channels, channel)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channels: %w", err)
	}

	return channels, nil
}

func (cr *ChannelRepository) GetByID(ctx context.Context, id string) (*models.BusinessChannel, error) {
	row := cr.db.QueryRowContext(ctx, "SELECT id, business_id, name, created_at FROM business_channels WHERE id = $1", id)

	channel, err := scanChannel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan channel: %w", err)
	}

	return channel, nil
}

func (cr *ChannelRepository) Save(ctx context.Context, channel *models.BusinessChannel) error {
	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO business_channels (id, business_id, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			business_id = EXCLUDED.business_id
		  , name = EXCLUDED.name
	`

	_, err := cr.db.ExecContext(ctx, query, channel.ID, channel.BusinessID, channel.Name, channel.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewChannelError("Save", channel.ID, persistence.ErrChannelAlreadyExists)
		}

		return fmt.Errorf("failed to save channel: %w", err)
	}

	return nil
}

func (cr *ChannelRepository) Delete(ctx context.Context, id string) error {
	_, err := cr.db.ExecContext(ctx, "DELETE FROM business_channels WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}

	return nil
}

func scanChannel(row scanner) (*models.BusinessChannel, error) {
	var channel models.BusinessChannel

	err := row.Scan(&channel.ID, &channel.BusinessID, &channel.Name, &channel.CreatedAt)
	if err != nil {
		return nil, err
	}

	channel.CreatedAt = channel.CreatedAt.UTC()

	return &channel, nil
}
