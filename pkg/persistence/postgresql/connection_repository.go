package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
)

// ConnectionRepository handles channel connection database operations. The full record is
// kept as JSONB next to the columns used for filtering.
type ConnectionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewConnectionRepository creates a new connection repository.
func NewConnectionRepository(db *sql.DB, logger *slog.Logger) *ConnectionRepository {
	return &ConnectionRepository{db: db, logger: logger}
}

func (cr *ConnectionRepository) List(ctx context.Context, opts persistence.ListConnectionsOptions) ([]*models.ConnectionRecord, error) {
	conditions := []string{"TRUE"}
	args := make([]any, 0, 3)

	if opts.BusinessID != "" {
		args = append(args, opts.BusinessID)
		conditions = append(conditions, fmt.Sprintf("business_id = $%d", len(args)))
	}

	if opts.Kind != "" {
		args = append(args, string(opts.Kind))
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}

	if opts.AgentID != nil {
		args = append(args, *opts.AgentID)
		conditions = append(conditions, fmt.Sprintf("agent_id = $%d", len(args)))
	}

	query := `
		SELECT record
		FROM channel_connections
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY created_at ASC, connection_id ASC`

	rows, err := cr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}

	defer closeRows(ctx, cr.logger, rows)

	records := make([]*models.ConnectionRecord, 0)

	for rows.Next() {
		record, err := cr.scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}

	return records, nil
}

func (cr *ConnectionRepository) GetByID(ctx context.Context, connectionID string) (*models.ConnectionRecord, error) {
	row := cr.db.QueryRowContext(ctx, "SELECT record FROM channel_connections WHERE connection_id = $1", connectionID)

	record, err := cr.scanConnection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan connection: %w", err)
	}

	return record, nil
}

// Save upserts the whole record in one statement, so a routing change lands atomically.
func (cr *ConnectionRepository) Save(ctx context.Context, record *models.ConnectionRecord) error {
	base := record.Base()
	if base == nil {
		return models.ErrUnknownConnectionKind
	}

	now := time.Now().UTC()
	if base.CreatedAt.IsZero() {
		base.CreatedAt = now
	}

	base.UpdatedAt = now

	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal connection: %w", err)
	}

	query := `
		INSERT INTO channel_connections (
			connection_id, kind, business_id, agent_id, status, default_flow_id, record, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (connection_id) DO UPDATE SET
			kind = EXCLUDED.kind
		  , business_id = EXCLUDED.business_id
		  , agent_id = EXCLUDED.agent_id
		  , status = EXCLUDED.status
		  , default_flow_id = EXCLUDED.default_flow_id
		  , record = EXCLUDED.record
		  , updated_at = EXCLUDED.updated_at
	`

	_, err = cr.db.ExecContext(ctx, query,
		base.ConnectionID,
		string(record.Kind()),
		base.BusinessID,
		nullString(base.AgentID),
		string(base.Status),
		nullString(base.DefaultFlowID),
		recordJSON,
		base.CreatedAt,
		base.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}

	return nil
}

func (cr *ConnectionRepository) Delete(ctx context.Context, connectionID string) error {
	_, err := cr.db.ExecContext(ctx, "DELETE FROM channel_connections WHERE connection_id = $1", connectionID)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}

	return nil
}

func (cr *ConnectionRepository) scanConnection(row scanner) (*models.ConnectionRecord, error) {
	var recordJSON []byte

	err := row.Scan(&recordJSON)
	if err != nil {
		return nil, err
	}

	var record models.ConnectionRecord

	err = json.Unmarshal(recordJSON, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal connection: %w", err)
	}

	return &record, nil
}
