package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/otelhelper"
	"github.com/dukex/parley/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// EffectiveSource tells how the effective workflow of a connection was chosen.
type EffectiveSource string

const (
	SourceDefaultFlow EffectiveSource = "default_flow"
	SourceFirstActive EffectiveSource = "first_active"
	SourceNone        EffectiveSource = "none"
)

// EffectiveWorkflow is the workflow the execution engine should run for a connection.
type EffectiveWorkflow struct {
	ConnectionID string                       `json:"connectionId"`
	Source       EffectiveSource              `json:"source"`
	Workflow     *models.ConversationWorkflow `json:"workflow,omitempty"`
	// StaleDefaultFlowID is the stored defaultFlowId when it was skipped.
	StaleDefaultFlowID *string `json:"staleDefaultFlowId,omitempty"`
}

// DecideRequest asks for the successor of a step given the user's input.
type DecideRequest struct {
	StepID string    `json:"stepId" validate:"required"`
	Input  string    `json:"input"`
	At     time.Time `json:"at"`
}

// Decision is the routing outcome for one user input.
type Decision struct {
	ConnectionID string          `json:"connectionId"`
	WorkflowID   string          `json:"workflowId"`
	Source       EffectiveSource `json:"source"`
	StepID       string          `json:"stepId"`
	Matched      bool            `json:"matched"`
	NextStepID   string          `json:"nextStepId,omitempty"`
	End          bool            `json:"end"`
	Mode         models.Mode     `json:"mode"`

	// Fallback is set when the input matched no branch.
	Fallback models.FallbackBehavior `json:"fallback,omitempty"`

	OutsideWorkingHours  bool                        `json:"outsideWorkingHours"`
	OutsideHoursBehavior models.OutsideHoursBehavior `json:"outsideHoursBehavior,omitempty"`
}

// Routing resolves which workflow a connection runs and what happens on each input.
type Routing struct {
	persistence persistence.Persistence
	logger      *slog.Logger
	now         func() time.Time
}

func NewRouting(persistence persistence.Persistence, logger *slog.Logger) *Routing {
	return &Routing{
		persistence: persistence,
		logger:      logger.With("module", "routing_service"),
		now:         time.Now,
	}
}

// EffectiveWorkflow returns the stored default flow when it still names an active workflow
// the connection may run, else the oldest such workflow, else SourceNone.
func (r *Routing) EffectiveWorkflow(ctx context.Context, connectionID string) (*EffectiveWorkflow, error) {
	ctx, span := otelhelper.StartSpan(ctx, "routing.effective_workflow", attribute.String(otelhelper.ConnectionIDKey, connectionID))
	defer span.End()

	record, err := r.loadConnection(ctx, connectionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	effective, err := r.resolve(ctx, record.Base())
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if effective.Workflow != nil {
		span.SetAttributes(attribute.String(otelhelper.WorkflowIDKey, effective.Workflow.ID))
	}

	return effective, nil
}

// Decide resolves the successor of stepID for input in the connection's effective workflow.
// When nothing matches, the connection's fallback adjusted to its mode is returned instead.
func (r *Routing) Decide(ctx context.Context, connectionID string, req DecideRequest) (*Decision, error) {
	ctx, span := otelhelper.StartSpan(ctx, "routing.decide",
		attribute.String(otelhelper.ConnectionIDKey, connectionID),
		attribute.String(otelhelper.StepIDKey, req.StepID))
	defer span.End()

	record, err := r.loadConnection(ctx, connectionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	base := record.Base()

	effective, err := r.resolve(ctx, base)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if effective.Workflow == nil {
		return nil, &ServiceError{Op: "Decide", Code: "NO_EFFECTIVE_WORKFLOW",
			Message: fmt.Sprintf("connection %s has no active workflow", connectionID), Err: ErrNoEffectiveWorkflow}
	}

	step := effective.Workflow.StepByID(req.StepID)
	if step == nil {
		return nil, NewValidationError("Decide", "STEP_NOT_FOUND",
			fmt.Sprintf("step '%s' does not exist in workflow %s", req.StepID, effective.Workflow.ID), ErrStepNotFound)
	}

	routing := base.Routing
	decision := &Decision{
		ConnectionID: connectionID,
		WorkflowID:   effective.Workflow.ID,
		Source:       effective.Source,
		StepID:       step.ID,
		Mode:         routing.Mode,
	}

	next, matched := models.ResolveNext(step, req.Input)
	if matched {
		decision.Matched = true
		decision.NextStepID = next
		decision.End = next == models.StepEnd
	} else {
		decision.Fallback = routing.FallbackBehavior.EffectiveFor(routing.Mode)
	}

	if routing.WorkingHours != nil {
		at := req.At
		if at.IsZero() {
			at = r.now()
		}

		open, err := routing.WorkingHours.OpenAt(at)
		if err != nil {
			r.logger.WarnContext(ctx, "Ignoring unreadable working hours", "connection_id", connectionID, "error", err)
		} else if !open {
			decision.OutsideWorkingHours = true
			decision.OutsideHoursBehavior = routing.OutsideHoursBehavior
		}
	}

	return decision, nil
}

func (r *Routing) loadConnection(ctx context.Context, connectionID string) (*models.ConnectionRecord, error) {
	record, err := r.persistence.ConnectionRepository().GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	if record == nil {
		return nil, persistence.NewConnectionError("loadConnection", connectionID, ErrConnectionNotFound)
	}

	return record, nil
}

func (r *Routing) resolve(ctx context.Context, base *models.ConnectionBase) (*EffectiveWorkflow, error) {
	effective := &EffectiveWorkflow{ConnectionID: base.ConnectionID, Source: SourceNone}

	if base.DefaultFlowID != nil {
		workflow, err := r.persistence.WorkflowRepository().GetByID(ctx, *base.DefaultFlowID)
		if err != nil {
			return nil, fmt.Errorf("failed to load default flow: %w", err)
		}

		if runnable(workflow, base) {
			effective.Source = SourceDefaultFlow
			effective.Workflow = workflow

			return effective, nil
		}

		stale := *base.DefaultFlowID
		effective.StaleDefaultFlowID = &stale

		r.logger.WarnContext(ctx, "Skipping stale default flow",
			"connection_id", base.ConnectionID,
			"default_flow_id", stale)
	}

	active := true

	workflows, err := r.persistence.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{
		BusinessID:     base.BusinessID,
		AgentID:        base.AgentID,
		Active:         &active,
		IncludeUnbound: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	for _, workflow := range workflows {
		if len(workflow.Steps) == 0 {
			continue
		}

		effective.Source = SourceFirstActive
		effective.Workflow = workflow

		break
	}

	return effective, nil
}

// runnable reports whether workflow is an active workflow the connection may run.
func runnable(workflow *models.ConversationWorkflow, base *models.ConnectionBase) bool {
	return workflow != nil &&
		workflow.BusinessID == base.BusinessID &&
		workflow.Active &&
		len(workflow.Steps) > 0 &&
		scopedTo(workflow, base.AgentID)
}
