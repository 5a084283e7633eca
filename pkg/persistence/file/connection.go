package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
)

// ConnectionRepository handles channel connection file operations.
type ConnectionRepository struct {
	store *documentStore[models.ConnectionRecord]
}

// NewConnectionRepository creates a new connection repository.
func NewConnectionRepository(root string) *ConnectionRepository {
	return &ConnectionRepository{store: newDocumentStore[models.ConnectionRecord](root, "connections")}
}

func (cr *ConnectionRepository) List(_ context.Context, opts persistence.ListConnectionsOptions) ([]*models.ConnectionRecord, error) {
	all, err := cr.store.all()
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	records := make([]*models.ConnectionRecord, 0, len(all))

	for _, record := range all {
		if opts.Matches(record) {
			records = append(records, record)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Base().CreatedAt.Before(records[j].Base().CreatedAt)
	})

	return records, nil
}

func (cr *ConnectionRepository) GetByID(_ context.Context, connectionID string) (*models.ConnectionRecord, error) {
	record, err := cr.store.read(connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch connection %s: %w", connectionID, err)
	}

	return record, nil
}

func (cr *ConnectionRepository) Save(_ context.Context, record *models.ConnectionRecord) error {
	base := record.Base()
	if base == nil {
		return models.ErrUnknownConnectionKind
	}

	now := time.Now().UTC()
	if base.CreatedAt.IsZero() {
		base.CreatedAt = now
	}

	base.UpdatedAt = now

	err := cr.store.write(base.ConnectionID, record)
	if err != nil {
		return fmt.Errorf("failed to save connection %s: %w", base.ConnectionID, err)
	}

	return nil
}

func (cr *ConnectionRepository) Delete(_ context.Context, connectionID string) error {
	return cr.store.remove(connectionID)
}
