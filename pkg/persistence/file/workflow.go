package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
)

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	store *documentStore[models.ConversationWorkflow]
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{store: newDocumentStore[models.ConversationWorkflow](root, "workflows")}
}

// List returns the workflows matching opts, oldest first.
func (wr *WorkflowRepository) List(_ context.Context, opts persistence.ListWorkflowsOptions) ([]*models.ConversationWorkflow, error) {
	all, err := wr.store.all()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	workflows := make([]*models.ConversationWorkflow, 0, len(all))

	for _, workflow := range all {
		if opts.Matches(workflow) {
			workflows = append(workflows, workflow)
		}
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		if workflows[i].CreatedAt.Equal(workflows[j].CreatedAt) {
			return workflows[i].ID < workflows[j].ID
		}

		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// GetByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) GetByID(_ context.Context, workflowID string) (*models.ConversationWorkflow, error) {
	workflow, err := wr.store.read(workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err)
	}

	return workflow, nil
}

// Save saves a workflow to the file system.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.ConversationWorkflow) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	err := wr.store.write(workflow.ID, workflow)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return nil
}

// Delete removes a workflow by its ID.
func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	return wr.store.remove(id)
}
