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
	"github.com/google/uuid"
)

const workflowColumns = `
			id
		  , name
		  , business_id
		  , agent_id
		  , trigger_type
		  , active
		  , default_language
		  , entry_step_id
		  , steps
		  , translations
		  , created_at
		  , updated_at`

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// List returns the workflows matching opts, oldest first.
func (r *WorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.ConversationWorkflow, error) {
	query, args := buildListQuery(opts)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.ConversationWorkflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func buildListQuery(opts persistence.ListWorkflowsOptions) (string, []any) {
	conditions := []string{"deleted_at IS NULL"}
	args := make([]any, 0, 3)

	arg := func(value any) string {
		args = append(args, value)

		return fmt.Sprintf("$%d", len(args))
	}

	if opts.BusinessID != "" {
		conditions = append(conditions, "business_id = "+arg(opts.BusinessID))
	}

	if opts.Active != nil {
		conditions = append(conditions, "active = "+arg(*opts.Active))
	}

	if opts.AgentID != nil {
		placeholder := arg(*opts.AgentID)
		if opts.IncludeUnbound {
			conditions = append(conditions, fmt.Sprintf("(agent_id = %s OR agent_id IS NULL)", placeholder))
		} else {
			conditions = append(conditions, "agent_id = "+placeholder)
		}
	}

	query := "SELECT" + workflowColumns + `
		FROM workflows
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY created_at ASC, id ASC`

	return query, args
}

// GetByID returns nil, nil when the workflow does not exist or was deleted.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.ConversationWorkflow, error) {
	query := "SELECT" + workflowColumns + `
		FROM workflows
		WHERE id = $1 AND deleted_at IS NULL`

	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

// Save upserts a workflow in a single statement.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.ConversationWorkflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	stepsJSON, err := json.Marshal(workflow.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	translationsJSON, err := json.Marshal(workflow.Translations)
	if err != nil {
		return fmt.Errorf("failed to marshal translations: %w", err)
	}

	query := `
		INSERT INTO workflows (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , business_id = EXCLUDED.business_id
		  , agent_id = EXCLUDED.agent_id
		  , trigger_type = EXCLUDED.trigger_type
		  , active = EXCLUDED.active
		  , default_language = EXCLUDED.default_language
		  , entry_step_id = EXCLUDED.entry_step_id
		  , steps = EXCLUDED.steps
		  , translations = EXCLUDED.translations
		  , updated_at = EXCLUDED.updated_at
		  , deleted_at = NULL
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		workflow.BusinessID,
		nullString(workflow.AgentID),
		workflow.Trigger,
		workflow.Active,
		workflow.DefaultLanguage,
		nullString(&workflow.EntryStepID),
		stepsJSON,
		translationsJSON,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}

// Delete soft deletes a workflow by setting its deleted_at timestamp.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE workflows SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

func scanWorkflow(row scanner) (*models.ConversationWorkflow, error) {
	var (
		workflow                    models.ConversationWorkflow
		agentID, entryStepID        sql.NullString
		stepsJSON, translationsJSON []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.BusinessID,
		&agentID,
		&workflow.Trigger,
		&workflow.Active,
		&workflow.DefaultLanguage,
		&entryStepID,
		&stepsJSON,
		&translationsJSON,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.AgentID = stringPtr(agentID)
	workflow.EntryStepID = entryStepID.String

	err = json.Unmarshal(stepsJSON, &workflow.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}

	err = json.Unmarshal(translationsJSON, &workflow.Translations)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal translations: %w", err)
	}

	workflow.CreatedAt = workflow.CreatedAt.UTC()
	workflow.UpdatedAt = workflow.UpdatedAt.UTC()

	return &workflow, nil
}
