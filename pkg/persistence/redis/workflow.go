package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const workflows collection = "workflow"

// WorkflowRepository stores workflows in Redis.
type WorkflowRepository struct {
	client redis.UniversalClient
}

func (r *WorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.ConversationWorkflow, error) {
	stored, err := all[models.ConversationWorkflow](ctx, r.client, workflows)
	if err != nil {
		return nil, err
	}

	result := make([]*models.ConversationWorkflow, 0, len(stored))

	for _, workflow := range stored {
		if opts.Matches(workflow) {
			result = append(result, workflow)
		}
	}

	return result, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.ConversationWorkflow, error) {
	return get[models.ConversationWorkflow](ctx, r.client, workflows, id)
}

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

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return put(ctx, pipe, workflows, workflow.ID, workflow.CreatedAt, workflow)
	})
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	return remove(ctx, r.client, workflows, id)
}
