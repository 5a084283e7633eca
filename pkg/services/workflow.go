package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/parley/pkg/builder"
	"github.com/dukex/parley/pkg/eventbus"
	"github.com/dukex/parley/pkg/events"
	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/otelhelper"
	"github.com/dukex/parley/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const defaultLanguage = "en"

type Workflow struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewWorkflow creates a new workflow service. publisher may be nil.
func NewWorkflow(persistence persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Workflow {
	return &Workflow{
		persistence: persistence,
		publisher:   publisher,
		logger:      logger.With("module", "workflow_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	BusinessID string
	AgentID    *string
	Active     *bool

	// IncludeUnbound also returns human-only workflows when AgentID is set.
	IncludeUnbound bool
}

// List returns the workflows of a business, oldest first.
func (w *Workflow) List(ctx context.Context, req ListWorkflowsRequest) ([]*models.ConversationWorkflow, error) {
	businessID := strings.TrimSpace(req.BusinessID)
	if businessID == "" {
		return nil, ErrBusinessIDRequired
	}

	workflows, err := w.persistence.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{
		BusinessID:     businessID,
		AgentID:        req.AgentID,
		Active:         req.Active,
		IncludeUnbound: req.IncludeUnbound,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.ConversationWorkflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, persistence.NewWorkflowError("FetchByID", id, ErrWorkflowNotFound)
	}

	return workflow, nil
}

// Create validates and stores a new workflow. A workflow without steps is accepted as an
// inactive draft; anything with steps must satisfy the graph and translation invariants.
func (w *Workflow) Create(ctx context.Context, workflow *models.ConversationWorkflow) (*models.ConversationWorkflow, error) {
	ctx, span := otelhelper.StartSpan(ctx, "workflow.create")
	defer span.End()

	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	err := normalizeWorkflow(workflow)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	err = validateWorkflow("Create", workflow)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate workflow id: %w", err)
	}

	now := time.Now().UTC()
	workflow.ID = id.String()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	span.SetAttributes(
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.BusinessIDKey, workflow.BusinessID),
	)

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow created",
		"workflow_id", workflow.ID,
		"business_id", workflow.BusinessID,
		"steps", len(workflow.Steps))

	publish(ctx, w.logger, w.publisher, workflow.ID, events.WorkflowCreated{
		BaseEvent:  events.NewBaseEvent(events.WorkflowCreatedEvent, workflow.BusinessID),
		WorkflowID: workflow.ID,
		Name:       workflow.Name,
		AgentID:    workflow.AgentID,
		Trigger:    workflow.Trigger,
		Active:     workflow.Active,
	})

	return workflow, nil
}

// Build creates a workflow from the category routing template. When input.Channels is nil
// the channel names registered for the business are used.
func (w *Workflow) Build(ctx context.Context, input builder.Input) (*models.ConversationWorkflow, error) {
	if strings.TrimSpace(input.BusinessID) == "" {
		return nil, ErrBusinessIDRequired
	}

	if input.Channels == nil {
		channels, err := w.persistence.ChannelRepository().List(ctx, input.BusinessID)
		if err != nil {
			return nil, fmt.Errorf("failed to list channels: %w", err)
		}

		input.Channels = make([]string, 0, len(channels))
		for _, channel := range channels {
			input.Channels = append(input.Channels, channel.Name)
		}
	}

	workflow, err := builder.Build(input)
	if err != nil {
		return nil, err
	}

	return w.Create(ctx, workflow)
}

// UpdateWorkflowRequest carries the fields of a workflow update. Every non-nil field
// replaces the stored value wholesale; nil fields are left untouched.
type UpdateWorkflowRequest struct {
	Name            *string                            `json:"name"`
	Trigger         *models.Trigger                    `json:"trigger"`
	Active          *bool                              `json:"active"`
	DefaultLanguage *string                            `json:"defaultLanguage"`
	EntryStepID     *string                            `json:"entryStepId"`
	Steps           *[]*models.WorkflowStep            `json:"steps"`
	Translations    *map[string]models.LanguageContent `json:"translations"`
}

// Update replaces the present fields of an existing workflow.
func (w *Workflow) Update(ctx context.Context, workflowID string, req UpdateWorkflowRequest) (*models.ConversationWorkflow, error) {
	ctx, span := otelhelper.StartSpan(ctx, "workflow.update", attribute.String(otelhelper.WorkflowIDKey, workflowID))
	defer span.End()

	existing, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	updated := *existing

	if req.Name != nil {
		updated.Name = *req.Name
	}

	if req.Trigger != nil {
		updated.Trigger = *req.Trigger
	}

	if req.Active != nil {
		updated.Active = *req.Active
	}

	if req.DefaultLanguage != nil {
		updated.DefaultLanguage = *req.DefaultLanguage
	}

	if req.EntryStepID != nil {
		updated.EntryStepID = *req.EntryStepID
	}

	if req.Steps != nil {
		updated.Steps = *req.Steps
	}

	if req.Translations != nil {
		updated.Translations = *req.Translations
	}

	err = normalizeWorkflow(&updated)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	err = validateWorkflow("Update", &updated)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	updated.UpdatedAt = time.Now().UTC()

	err = w.persistence.WorkflowRepository().Save(ctx, &updated)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	deactivated := existing.Active && !updated.Active

	w.logger.InfoContext(ctx, "Workflow updated",
		"workflow_id", updated.ID,
		"business_id", updated.BusinessID,
		"deactivated", deactivated)

	publish(ctx, w.logger, w.publisher, updated.ID, events.WorkflowUpdated{
		BaseEvent:   events.NewBaseEvent(events.WorkflowUpdatedEvent, updated.BusinessID),
		WorkflowID:  updated.ID,
		Name:        updated.Name,
		Active:      updated.Active,
		Deactivated: deactivated,
	})

	return &updated, nil
}

// Delete removes a workflow by its ID. Connections referencing it keep their defaultFlowId.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	ctx, span := otelhelper.StartSpan(ctx, "workflow.delete", attribute.String(otelhelper.WorkflowIDKey, workflowID))
	defer span.End()

	existing, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	err = w.persistence.WorkflowRepository().Delete(ctx, workflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow deleted", "workflow_id", workflowID, "business_id", existing.BusinessID)

	publish(ctx, w.logger, w.publisher, workflowID, events.WorkflowDeleted{
		BaseEvent:  events.NewBaseEvent(events.WorkflowDeletedEvent, existing.BusinessID),
		WorkflowID: workflowID,
	})

	return nil
}

func normalizeWorkflow(workflow *models.ConversationWorkflow) error {
	workflow.Name = strings.TrimSpace(workflow.Name)
	if workflow.Name == "" {
		return ErrWorkflowNameRequired
	}

	workflow.BusinessID = strings.TrimSpace(workflow.BusinessID)
	if workflow.BusinessID == "" {
		return ErrBusinessIDRequired
	}

	if workflow.AgentID != nil && strings.TrimSpace(*workflow.AgentID) == "" {
		workflow.AgentID = nil
	}

	if workflow.Trigger == "" {
		workflow.Trigger = models.TriggerConversationOpened
	}

	if !workflow.Trigger.Valid() {
		return NewValidationError("normalizeWorkflow", "INVALID_TRIGGER",
			fmt.Sprintf("invalid trigger '%s', allowed: %s, %s", workflow.Trigger, models.TriggerConversationOpened, models.TriggerFirstMessage),
			ErrInvalidTrigger)
	}

	if workflow.DefaultLanguage == "" {
		workflow.DefaultLanguage = defaultLanguage
	}

	if workflow.Steps == nil {
		workflow.Steps = []*models.WorkflowStep{}
	}

	if workflow.Translations == nil {
		workflow.Translations = map[string]models.LanguageContent{}
	}

	return nil
}

func validateWorkflow(op string, workflow *models.ConversationWorkflow) error {
	if len(workflow.Steps) == 0 {
		if workflow.Active {
			return NewValidationError(op, "ACTIVE_WITHOUT_STEPS", ErrActiveWithoutSteps.Error(), ErrActiveWithoutSteps)
		}

		return nil
	}

	err := models.ValidateWorkflow(workflow)
	if err != nil {
		return &ServiceError{Op: op, Code: "INVALID_WORKFLOW", Message: err.Error(), Err: err}
	}

	return nil
}
